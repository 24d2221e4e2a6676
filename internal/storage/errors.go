// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrConversationNotFound means the conversation ID has no row.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrMessageNotFound means the message ID has no row.
	ErrMessageNotFound = errors.New("message not found")
)

// StoreError wraps a driver or I/O failure with the operation that hit
// it. The underlying error is preserved for errors.Is/As.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// storeErr wraps err unless it is nil or already one of the package
// sentinels, which callers match directly.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConversationNotFound) || errors.Is(err, ErrMessageNotFound) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsNotFound reports whether err is either not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrConversationNotFound) || errors.Is(err, ErrMessageNotFound)
}
