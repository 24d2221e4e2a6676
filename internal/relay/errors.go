// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// ErrorKind classifies a relay failure so callers can choose a
// user-facing message without parsing error strings.
type ErrorKind int

const (
	// KindTimeout: the upstream did not answer within the deadline.
	KindTimeout ErrorKind = iota

	// KindUpstream: the upstream answered with a non-2xx status.
	KindUpstream

	// KindTransport: the request never completed (DNS, TCP, TLS,
	// connection reset).
	KindTransport

	// KindMalformed: a 2xx response whose body could not be decoded
	// or carried no usable choice.
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindUpstream:
		return "upstream"
	case KindTransport:
		return "transport"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// RelayError is the only error type Complete returns. StatusCode and
// Body are populated for KindUpstream only; Body is truncated to keep
// error strings displayable.
type RelayError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Body       string
	Cause      error
}

func (e *RelayError) Error() string {
	if e.Kind == KindUpstream {
		return fmt.Sprintf("relay: %s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("relay: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("relay: %s: %s", e.Kind, e.Message)
}

func (e *RelayError) Unwrap() error {
	return e.Cause
}

// =============================================================================
// CLASSIFICATION HELPERS
// =============================================================================

func isKind(err error, kind ErrorKind) bool {
	var re *RelayError
	return errors.As(err, &re) && re.Kind == kind
}

// IsTimeout reports whether err is a relay deadline failure.
func IsTimeout(err error) bool { return isKind(err, KindTimeout) }

// IsUpstream reports whether err is a non-2xx upstream answer.
func IsUpstream(err error) bool { return isKind(err, KindUpstream) }

// IsTransport reports whether err is a connection-level failure.
func IsTransport(err error) bool { return isKind(err, KindTransport) }

// IsMalformed reports whether err is an undecodable upstream answer.
func IsMalformed(err error) bool { return isKind(err, KindMalformed) }
