// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file renders the view: header, transcript (or sidebar),
// feedback line, and the compose box.
package chat

import (
	"fmt"
	"strings"

	"github.com/jeranaias/quill-tui/internal/model"
	"github.com/jeranaias/quill-tui/internal/util"
)

// typingCursor trails the reveal so the animation reads as typing.
const typingCursor = "▌"

// View renders the whole chat surface.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	if m.mode == modeSidebar {
		b.WriteString(m.renderSidebar())
	} else {
		b.WriteString(m.viewport.View())
	}
	b.WriteString("\n")

	if line := m.renderFeedback(); line != "" {
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString(m.renderInput())
	b.WriteString("\n")
	b.WriteString(m.renderHelp())

	return b.String()
}

func (m Model) renderHeader() string {
	title := "quill"
	if active := m.eng.Active(); active != nil {
		title = util.TruncateWidth(active.Title, max(m.width-10, 20))
	}
	return m.theme.Header.Width(max(m.width, 20)).
		Render(m.theme.HeaderTitle.Render(title))
}

func (m Model) renderSidebar() string {
	if len(m.convs) == 0 {
		return m.theme.Sidebar.Render("No conversations yet. Press C-n to start one.")
	}

	activeID := ""
	if active := m.eng.Active(); active != nil {
		activeID = active.ID
	}

	var rows []string
	for i, c := range m.convs {
		marker := "  "
		if c.ID == activeID {
			marker = "* "
		}
		line := marker + util.TruncateWidth(c.Title, max(m.width-16, 20))
		if i == m.cursor {
			rows = append(rows, m.theme.SidebarItemSelected.Render(line))
		} else {
			rows = append(rows, m.theme.SidebarItem.Render(line))
		}
	}
	return m.theme.Sidebar.Render(strings.Join(rows, "\n"))
}

func (m Model) renderFeedback() string {
	switch {
	case m.pending:
		return m.spin.View() + m.theme.ThinkingText.Render(" thinking...")
	case m.errText != "":
		return m.theme.ErrorBanner.Render(m.errText)
	case m.toast != "":
		return m.theme.Toast.Render(m.toast)
	case m.attachment != nil:
		return m.theme.Toast.Render(fmt.Sprintf("Will attach %s to the next message", m.attachment.Name))
	}
	return ""
}

func (m Model) renderInput() string {
	switch m.mode {
	case modeRename:
		return m.theme.InputContainer.Render("New title: " + m.overlay.View())
	case modeAttach:
		return m.theme.InputContainer.Render("Attach: " + m.overlay.View())
	case modeEdit:
		label := "Edit (save only)"
		if m.editRegen {
			label = "Edit (regenerate)"
		}
		return m.theme.InputContainer.Render(label + "\n" + m.input.View())
	default:
		return m.theme.InputContainer.Render(m.input.View())
	}
}

func (m Model) renderHelp() string {
	switch m.mode {
	case modeSidebar:
		return m.theme.HelpText.Render("enter select · C-n new · C-x delete · esc back")
	case modeRename, modeAttach:
		return m.theme.HelpText.Render("enter confirm · esc cancel")
	case modeEdit:
		return m.theme.HelpText.Render("enter submit · esc cancel")
	default:
		return m.theme.HelpText.Render("enter send · tab finish typing · C-p conversations · C-e edit · C-r regenerate · C-o attach · C-c quit")
	}
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// syncTranscript re-renders the transcript into the viewport and
// follows the tail.
func (m *Model) syncTranscript() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m *Model) renderTranscript() string {
	msgs := m.eng.Messages()
	if len(msgs) == 0 {
		return m.theme.ThinkingText.Render("Send a message to get started.")
	}

	var blocks []string
	for i := range msgs {
		blocks = append(blocks, m.renderMessage(&msgs[i]))
	}
	return strings.Join(blocks, "\n\n")
}

func (m *Model) renderMessage(msg *model.Message) string {
	if msg.Role == model.RoleUser {
		return m.theme.UserLabel.Render("You") + "\n" +
			m.theme.UserBubble.Render(msg.Content)
	}

	label := m.theme.AssistantLabel.Render("Assistant")

	// A fresh message mid-animation shows its raw visible prefix with
	// a trailing cursor; Markdown rendering waits for the full text,
	// partial Markdown renders as garbage.
	if msg.ID == m.freshID && !m.reveal.Done() {
		return label + "\n" +
			m.theme.AssistantText.Render(m.reveal.Visible()+m.theme.TypingCursor.Render(typingCursor))
	}

	return label + "\n" + m.theme.AssistantText.Render(m.renderMarkdown(msg.Content))
}

// renderMarkdown renders assistant Markdown for terminal display,
// falling back to the raw text when rendering fails.
func (m *Model) renderMarkdown(content string) string {
	if m.renderer == nil {
		return content
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}
