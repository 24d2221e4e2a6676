// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file is the update loop: keyboard dispatch per mode, engine
// results, typewriter ticks, and window management.
package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/quill-tui/internal/model"
	"github.com/jeranaias/quill-tui/internal/typewriter"
)

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-8, 3)
		m.input.SetWidth(msg.Width - 4)
		m.syncTranscript()
		return m, nil

	case tea.KeyMsg:
		return m.updateKey(msg)

	case typewriter.TickMsg:
		return m.updateTick(msg)

	case spinner.TickMsg:
		if !m.pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case ExchangeMsg:
		return m.updateExchange(msg)

	case TranscriptMsg:
		m.mode = modeCompose
		m.freshID = ""
		if msg.Err != nil {
			m.errText = friendlyError(msg.Err)
			return m, nil
		}
		m.errText = ""
		m.syncTranscript()
		return m, m.loadConversationsCmd()

	case ConversationsMsg:
		if msg.Err != nil {
			m.errText = friendlyError(msg.Err)
			return m, nil
		}
		m.convs = msg.Conversations
		if m.cursor >= len(m.convs) {
			m.cursor = max(len(m.convs)-1, 0)
		}
		return m, nil

	case ConversationDeletedMsg:
		if msg.Err != nil {
			m.errText = friendlyError(msg.Err)
			return m, nil
		}
		toastCmd := m.showToast("Conversation deleted")
		m.syncTranscript()
		if m.eng.Active() == nil {
			return m, tea.Batch(toastCmd, m.newConversationCmd())
		}
		return m, tea.Batch(toastCmd, m.loadConversationsCmd())

	case RenamedMsg:
		m.mode = modeCompose
		if msg.Err != nil {
			m.errText = friendlyError(msg.Err)
			return m, nil
		}
		return m, tea.Batch(m.showToast("Renamed"), m.loadConversationsCmd())

	case AttachedMsg:
		m.mode = modeCompose
		m.input.Focus()
		if msg.Err != nil {
			m.errText = friendlyError(msg.Err)
			return m, nil
		}
		m.queueAttachment(msg.File)
		return m, m.showToast("Attached " + msg.File.Name)

	case ToastExpiredMsg:
		if msg.At.Equal(m.toastAt) {
			m.toast = ""
		}
		return m, nil
	}

	return m, nil
}

// =============================================================================
// TYPEWRITER TICKS
// =============================================================================

func (m Model) updateTick(msg typewriter.TickMsg) (Model, tea.Cmd) {
	// Ticks from unmounted content carry a stale generation; drop
	// them and their timer chain ends here.
	if msg.ID != revealID || msg.Gen != m.reveal.Gen() {
		return m, nil
	}
	if m.reveal.Done() {
		m.reveal.TakeCompletion()
		m.syncTranscript()
		return m, nil
	}

	delay := m.reveal.Step()
	m.syncTranscript()
	if m.reveal.Done() && m.reveal.TakeCompletion() {
		// Re-render once more so the finished message gets its full
		// Markdown treatment.
		m.syncTranscript()
		return m, nil
	}
	return m, typewriter.TickCmd(revealID, msg.Gen, delay)
}

// =============================================================================
// EXCHANGE RESULTS
// =============================================================================

func (m Model) updateExchange(msg ExchangeMsg) (Model, tea.Cmd) {
	m.pending = false

	if msg.Err != nil {
		m.errText = friendlyError(msg.Err)
		m.syncTranscript()
		return m, nil
	}

	ex := msg.Exchange
	if ex.Abandoned || ex.Assistant == nil {
		return m, nil
	}

	m.errText = ""
	cmds := []tea.Cmd{m.mountReveal(ex.Assistant)}
	if ex.TitleChanged {
		cmds = append(cmds, m.loadConversationsCmd())
	}
	m.syncTranscript()
	return m, tea.Batch(cmds...)
}

// =============================================================================
// KEYBOARD
// =============================================================================

func (m Model) updateKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	switch m.mode {
	case modeSidebar:
		return m.updateSidebarKey(msg)
	case modeRename, modeAttach:
		return m.updateOverlayKey(msg)
	case modeEdit:
		return m.updateEditKey(msg)
	default:
		return m.updateComposeKey(msg)
	}
}

func (m Model) updateComposeKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.RevealAll):
		if m.revealing() {
			m.reveal.RevealAll()
			m.reveal.TakeCompletion()
			m.syncTranscript()
		}
		return m, nil

	case key.Matches(msg, m.keys.NewConv):
		return m, m.newConversationCmd()

	case key.Matches(msg, m.keys.Sidebar):
		m.mode = modeSidebar
		return m, m.loadConversationsCmd()

	case key.Matches(msg, m.keys.Rename):
		if active := m.eng.Active(); active != nil {
			m.mode = modeRename
			m.overlay.SetValue(active.Title)
			m.overlay.CursorEnd()
			m.overlay.Focus()
		}
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		if active := m.eng.Active(); active != nil {
			return m, m.deleteCmd(active.ID)
		}
		return m, nil

	case key.Matches(msg, m.keys.EditLast):
		return m.beginEdit(false)

	case key.Matches(msg, m.keys.Regenerate):
		return m.beginEdit(true)

	case key.Matches(msg, m.keys.Attach):
		m.mode = modeAttach
		m.overlay.SetValue("")
		m.overlay.Placeholder = "path to file"
		m.overlay.Focus()
		return m, nil

	case key.Matches(msg, m.keys.ScrollUp):
		m.viewport.ViewUp()
		return m, nil

	case key.Matches(msg, m.keys.ScrollDown):
		m.viewport.ViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends whatever is in the compose box.
func (m Model) submit() (Model, tea.Cmd) {
	if m.pending {
		return m, m.showToast("Still waiting for the last reply")
	}
	text := m.composeText(strings.TrimSpace(m.input.Value()))
	if text == "" {
		return m, nil
	}

	m.input.Reset()
	m.errText = ""
	m.pending = true
	return m, tea.Batch(m.sendCmd(text), m.spin.Tick)
}

// beginEdit opens the last user message for rewriting.
func (m Model) beginEdit(regenerate bool) (Model, tea.Cmd) {
	if m.pending {
		return m, m.showToast("Still waiting for the last reply")
	}

	msgs := m.eng.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleUser {
			m.mode = modeEdit
			m.editID = msgs[i].ID
			m.editRegen = regenerate
			m.input.SetValue(msgs[i].Content)
			m.input.CursorEnd()
			return m, nil
		}
	}
	return m, m.showToast("Nothing to edit yet")
}

func (m Model) updateEditKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.CancelOverlay):
		m.mode = modeCompose
		m.editID = ""
		m.input.Reset()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		content := strings.TrimSpace(m.input.Value())
		if content == "" {
			return m, nil
		}
		id := m.editID
		m.mode = modeCompose
		m.editID = ""
		m.input.Reset()
		m.errText = ""
		if m.editRegen {
			m.pending = true
			return m, tea.Batch(m.regenerateCmd(id, content), m.spin.Tick)
		}
		return m, m.editOnlyCmd(id, content)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateSidebarKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.CancelOverlay), key.Matches(msg, m.keys.Sidebar):
		m.mode = modeCompose
		return m, nil

	case key.Matches(msg, m.keys.NewConv):
		return m, m.newConversationCmd()

	case key.Matches(msg, m.keys.Submit):
		if len(m.convs) == 0 {
			m.mode = modeCompose
			return m, nil
		}
		return m, m.selectCmd(m.convs[m.cursor].ID)

	case key.Matches(msg, m.keys.Delete):
		if len(m.convs) > 0 {
			return m, m.deleteCmd(m.convs[m.cursor].ID)
		}
		return m, nil
	}

	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.convs)-1 {
			m.cursor++
		}
	}
	return m, nil
}

func (m Model) updateOverlayKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.CancelOverlay):
		m.mode = modeCompose
		m.overlay.Reset()
		m.input.Focus()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		value := strings.TrimSpace(m.overlay.Value())
		wasRename := m.mode == modeRename
		m.overlay.Reset()
		if value == "" {
			m.mode = modeCompose
			m.input.Focus()
			return m, nil
		}
		if wasRename {
			if active := m.eng.Active(); active != nil {
				return m, m.renameCmd(active.ID, value)
			}
			m.mode = modeCompose
			return m, nil
		}
		return m, m.attachCmd(value)
	}

	var cmd tea.Cmd
	m.overlay, cmd = m.overlay.Update(msg)
	return m, cmd
}
