// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"github.com/google/uuid"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultTitle is the placeholder every conversation starts with.
	// The engine replaces it on the first successful exchange.
	DefaultTitle = "new conversation"

	// TitleRuneLimit is how many runes of the first user message become
	// the auto-derived title before an ellipsis is appended.
	TitleRuneLimit = 40
)

// =============================================================================
// CONVERSATION
// =============================================================================

// Conversation is the durable header row of a message sequence.
// Timestamps are unix nanoseconds; UpdatedAt moves whenever a message
// is appended, so ListConversations can sort by recency.
type Conversation struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// NewConversationID returns a fresh unique conversation identifier.
func NewConversationID() string {
	return "conv_" + uuid.NewString()
}

// HasDefaultTitle reports whether the conversation still carries the
// untouched placeholder title.
func (c *Conversation) HasDefaultTitle() bool {
	return c.Title == DefaultTitle
}

// DeriveTitle builds a conversation title from the user message that
// triggered the first exchange: the first TitleRuneLimit runes, with
// "..." appended only when the message was actually longer.
func DeriveTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= TitleRuneLimit {
		return text
	}
	return string(runes[:TitleRuneLimit]) + "..."
}
