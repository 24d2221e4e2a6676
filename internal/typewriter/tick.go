// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package typewriter

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// TickMsg drives one animation step. ID names the Reveal instance the
// tick belongs to and Gen the content generation it was scheduled
// for; the update loop drops any tick whose pair no longer matches,
// which is how timers for unmounted content die.
type TickMsg struct {
	ID  int
	Gen int
}

// TickCmd schedules the next animation step after delay.
func TickCmd(id, gen int, delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return TickMsg{ID: id, Gen: gen}
	})
}
