// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"

	"github.com/google/uuid"
)

// =============================================================================
// ROLES
// =============================================================================

// Role identifies who authored a message.
type Role string

const (
	// RoleUser is a message typed by the person at the keyboard.
	RoleUser Role = "user"

	// RoleAssistant is a reply produced by the completion upstream.
	RoleAssistant Role = "assistant"

	// RoleSystem is an instruction turn prepended by the relay. It is
	// never persisted; it exists only on the wire.
	RoleSystem Role = "system"
)

// Narrow collapses a role to the two values the upstream accepts.
// Anything that is not assistant travels as user.
func (r Role) Narrow() Role {
	if r == RoleAssistant {
		return RoleAssistant
	}
	return RoleUser
}

// =============================================================================
// MESSAGE
// =============================================================================

// Message is one turn in a conversation.
//
// CreatedAt is the store-assigned ordering key in nanoseconds. It is
// strictly monotonic per store, so it doubles as the total order of the
// transcript; callers must never set it themselves.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           Role   `json:"role"`
	Content        string `json:"content"`
	CreatedAt      int64  `json:"created_at"`
}

// NewMessageID returns a fresh unique message identifier.
func NewMessageID() string {
	return "msg_" + uuid.NewString()
}

// Preview returns the first maxLen runes of the content with newlines
// collapsed, for list displays.
func (m *Message) Preview(maxLen int) string {
	s := strings.ReplaceAll(m.Content, "\n", " ")
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
