// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the quill TUI.
package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application.
// It detects the terminal's color capability and adjusts accordingly.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// HEADER AND LAYOUT
	// ==========================================================================

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	StatusBar   lipgloss.Style

	// ==========================================================================
	// MESSAGE BUBBLES
	// ==========================================================================

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	UserBubble     lipgloss.Style
	AssistantText  lipgloss.Style
	TypingCursor   lipgloss.Style

	// ==========================================================================
	// SIDEBAR
	// ==========================================================================

	Sidebar             lipgloss.Style
	SidebarItem         lipgloss.Style
	SidebarItemSelected lipgloss.Style
	SidebarMeta         lipgloss.Style

	// ==========================================================================
	// INPUT AND FEEDBACK
	// ==========================================================================

	InputContainer lipgloss.Style
	Spinner        lipgloss.Style
	ThinkingText   lipgloss.Style
	ErrorBanner    lipgloss.Style
	Toast          lipgloss.Style
	HelpText       lipgloss.Style
}

// New creates a theme adapted to the current terminal.
func New() *Theme {
	profile := termenv.ColorProfile()
	isDark := termenv.HasDarkBackground()

	accent := lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7D79F6"}
	subtle := lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
	danger := lipgloss.AdaptiveColor{Light: "#C0392B", Dark: "#E74C3C"}
	good := lipgloss.AdaptiveColor{Light: "#1E8449", Dark: "#2ECC71"}

	return &Theme{
		IsDark:       isDark,
		ColorProfile: profile,

		Header: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(subtle).
			Padding(0, 1),
		HeaderTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent),
		StatusBar: lipgloss.NewStyle().
			Foreground(subtle).
			Padding(0, 1),

		UserLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(good),
		AssistantLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent),
		UserBubble: lipgloss.NewStyle().
			PaddingLeft(2),
		AssistantText: lipgloss.NewStyle().
			PaddingLeft(2),
		TypingCursor: lipgloss.NewStyle().
			Foreground(accent).
			Bold(true),

		Sidebar: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(subtle).
			Padding(0, 1),
		SidebarItem: lipgloss.NewStyle().
			PaddingLeft(1),
		SidebarItemSelected: lipgloss.NewStyle().
			PaddingLeft(1).
			Bold(true).
			Foreground(accent),
		SidebarMeta: lipgloss.NewStyle().
			Foreground(subtle),

		InputContainer: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
		Spinner: lipgloss.NewStyle().
			Foreground(accent),
		ThinkingText: lipgloss.NewStyle().
			Foreground(subtle).
			Italic(true),
		ErrorBanner: lipgloss.NewStyle().
			Foreground(danger).
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderForeground(danger).
			PaddingLeft(1),
		Toast: lipgloss.NewStyle().
			Foreground(good).
			Italic(true),
		HelpText: lipgloss.NewStyle().
			Foreground(subtle),
	}
}
