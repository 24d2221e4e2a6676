// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrBusy rejects mutations while a reply is pending. The caller
	// waits or selects away; there is no queue.
	ErrBusy = errors.New("a reply is already pending")

	// ErrNoConversation means an operation needs an active
	// conversation and none is selected.
	ErrNoConversation = errors.New("no active conversation")
)

// ValidationError reports caller input the engine refused before
// touching storage or the relay.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
