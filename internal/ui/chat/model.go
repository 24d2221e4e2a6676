// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
package chat

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/quill-tui/internal/config"
	"github.com/jeranaias/quill-tui/internal/engine"
	"github.com/jeranaias/quill-tui/internal/ingest"
	"github.com/jeranaias/quill-tui/internal/model"
	"github.com/jeranaias/quill-tui/internal/typewriter"
	"github.com/jeranaias/quill-tui/internal/ui/styles"
)

// =============================================================================
// MODES
// =============================================================================

// mode is which surface owns the keyboard.
type mode int

const (
	modeCompose mode = iota // typing into the message box
	modeSidebar             // picking a conversation
	modeRename              // typing a new title
	modeAttach              // typing a file path
	modeEdit                // rewriting an earlier user message
)

// revealID tags typewriter ticks for this view. There is only one
// reveal surface, so the ID is constant; generations do the real
// cancellation work.
const revealID = 1

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	eng *engine.Engine
	cfg *config.Manager

	theme *styles.Theme
	keys  KeyMap

	width  int
	height int

	viewport viewport.Model
	input    textarea.Model
	overlay  textinput.Model
	spin     spinner.Model

	mode    mode
	pending bool

	// Sidebar state
	convs  []model.Conversation
	cursor int

	// Message being edited, and whether submitting regenerates the
	// tail or just saves the correction.
	editID    string
	editRegen bool

	// Typewriter state: the assistant message currently being
	// revealed, if any.
	reveal  *typewriter.Reveal
	freshID string

	// Attachment queued for the next outgoing message.
	attachment *ingest.File

	// Feedback surfaces
	errText string
	toast   string
	toastAt time.Time

	renderer *glamour.TermRenderer
}

// New creates the chat view. The engine must already be booted.
func New(eng *engine.Engine, cfg *config.Manager) Model {
	theme := styles.New()

	input := textarea.New()
	input.Placeholder = "Type a message..."
	input.ShowLineNumbers = false
	input.SetHeight(3)
	input.Focus()

	overlay := textinput.New()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Spinner

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		renderer = nil
	}

	return Model{
		eng:      eng,
		cfg:      cfg,
		theme:    theme,
		keys:     DefaultKeyMap(),
		viewport: viewport.New(80, 20),
		input:    input,
		overlay:  overlay,
		spin:     sp,
		reveal:   typewriter.New(cfg.RevealDelay()),
		renderer: renderer,
	}
}

// Init starts the cursor blink and loads the sidebar.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.loadConversationsCmd())
}

// revealing reports whether an assistant message is mid-animation.
func (m *Model) revealing() bool {
	return m.freshID != "" && !m.reveal.Done()
}

// showToast sets a transient notification and returns its expiry
// command.
func (m *Model) showToast(text string) tea.Cmd {
	m.toast = text
	m.toastAt = time.Now()
	at := m.toastAt
	return tea.Tick(2500*time.Millisecond, func(time.Time) tea.Msg {
		return ToastExpiredMsg{At: at}
	})
}

// mountReveal starts the typewriter over a fresh assistant message.
func (m *Model) mountReveal(msg *model.Message) tea.Cmd {
	m.freshID = msg.ID
	m.reveal = typewriter.New(m.cfg.RevealDelay())
	m.reveal.SetContent(msg.Content)
	return typewriter.TickCmd(revealID, m.reveal.Gen(), m.cfg.RevealDelay())
}

// queueAttachment remembers a file to fold into the next message.
func (m *Model) queueAttachment(f *ingest.File) {
	m.attachment = f
}

// composeText returns the outgoing message text with any queued
// attachment folded in, and clears the queue.
func (m *Model) composeText(typed string) string {
	if m.attachment == nil {
		return typed
	}
	block := m.attachment.PromptBlock()
	m.attachment = nil
	if typed == "" {
		return block
	}
	return typed + "\n\n" + block
}
