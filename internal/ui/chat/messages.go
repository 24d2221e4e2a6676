// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file defines the Bubble Tea message types used by the chat
// interface: exchange results from the engine, conversation list
// updates, attachment results, and toast expiry.
package chat

import (
	"time"

	"github.com/jeranaias/quill-tui/internal/engine"
	"github.com/jeranaias/quill-tui/internal/ingest"
	"github.com/jeranaias/quill-tui/internal/model"
)

// =============================================================================
// ENGINE MESSAGES
// =============================================================================

// ExchangeMsg delivers the result of a Send or EditAndRegenerate.
type ExchangeMsg struct {
	Exchange *engine.Exchange
	Err      error
}

// ConversationsMsg delivers a refreshed conversation list for the
// sidebar.
type ConversationsMsg struct {
	Conversations []model.Conversation
	Err           error
}

// TranscriptMsg signals that the active conversation changed and the
// transcript was reloaded.
type TranscriptMsg struct {
	Err error
}

// ConversationDeletedMsg signals a completed delete.
type ConversationDeletedMsg struct {
	ID  string
	Err error
}

// RenamedMsg signals a completed rename.
type RenamedMsg struct {
	Title string
	Err   error
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// AttachedMsg delivers an ingested file ready for prompt folding.
type AttachedMsg struct {
	File *ingest.File
	Err  error
}

// =============================================================================
// UI HOUSEKEEPING
// =============================================================================

// ToastExpiredMsg clears a transient notification.
type ToastExpiredMsg struct {
	At time.Time
}
