// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file builds the tea.Cmd closures that call the engine off the
// event loop. Every blocking call lives here; Update never blocks.
package chat

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/quill-tui/internal/ingest"
)

func (m Model) sendCmd(text string) tea.Cmd {
	eng := m.eng
	return func() tea.Msg {
		ex, err := eng.Send(context.Background(), text)
		return ExchangeMsg{Exchange: ex, Err: err}
	}
}

func (m Model) regenerateCmd(messageID, content string) tea.Cmd {
	eng := m.eng
	return func() tea.Msg {
		ex, err := eng.EditAndRegenerate(context.Background(), messageID, content)
		return ExchangeMsg{Exchange: ex, Err: err}
	}
}

func (m Model) editOnlyCmd(messageID, content string) tea.Cmd {
	eng := m.eng
	return func() tea.Msg {
		return TranscriptMsg{Err: eng.EditOnly(context.Background(), messageID, content)}
	}
}

func (m Model) loadConversationsCmd() tea.Cmd {
	eng := m.eng
	return func() tea.Msg {
		convs, err := eng.Conversations(context.Background())
		return ConversationsMsg{Conversations: convs, Err: err}
	}
}

func (m Model) selectCmd(id string) tea.Cmd {
	eng := m.eng
	return func() tea.Msg {
		return TranscriptMsg{Err: eng.Select(context.Background(), id)}
	}
}

func (m Model) newConversationCmd() tea.Cmd {
	eng := m.eng
	return func() tea.Msg {
		_, err := eng.NewConversation(context.Background())
		return TranscriptMsg{Err: err}
	}
}

func (m Model) renameCmd(id, title string) tea.Cmd {
	eng := m.eng
	return func() tea.Msg {
		return RenamedMsg{Title: title, Err: eng.Rename(context.Background(), id, title)}
	}
}

func (m Model) deleteCmd(id string) tea.Cmd {
	eng := m.eng
	return func() tea.Msg {
		return ConversationDeletedMsg{ID: id, Err: eng.Delete(context.Background(), id)}
	}
}

func (m Model) attachCmd(path string) tea.Cmd {
	return func() tea.Msg {
		f, err := ingest.Read(path)
		return AttachedMsg{File: f, Err: err}
	}
}
