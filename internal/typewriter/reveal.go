// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package typewriter reveals a completed message progressively, the
// way a person would watch it being typed. The full content is known
// up front; only the display advances.
//
// Pacing is structure-aware: prose appears one rune at a time, fenced
// code blocks pour out in bursts at double speed so long listings do
// not stall the reader.
package typewriter

import (
	"strings"
	"time"
)

// =============================================================================
// PACING
// =============================================================================

const (
	// DefaultBaseDelay is the tick interval for prose.
	DefaultBaseDelay = 15 * time.Millisecond

	// proseStep and codeStep are runes revealed per tick.
	proseStep = 1
	codeStep  = 10

	// fence is the Markdown code fence marker.
	fence = "```"
)

// InsideFence reports whether the rune cursor sits inside a fenced
// code block: an odd number of fence markers in the consumed prefix
// means a fence was opened and not yet closed. It is a pure function
// of its inputs, recomputed every tick, so the state can never drift
// from the content.
func InsideFence(content string, cursor int) bool {
	runes := []rune(content)
	if cursor > len(runes) {
		cursor = len(runes)
	}
	if cursor < 0 {
		cursor = 0
	}
	return strings.Count(string(runes[:cursor]), fence)%2 == 1
}

// =============================================================================
// REVEAL
// =============================================================================

// Reveal tracks the visible prefix of one message. Not safe for
// concurrent use; it belongs to the UI event loop.
type Reveal struct {
	content string
	runes   []rune
	cursor  int

	baseDelay time.Duration

	// gen increments whenever the content is replaced, so ticks
	// scheduled against abandoned content can be recognized and
	// dropped.
	gen int

	// signaled flips when the completion has been observed, so the
	// finish is reported exactly once no matter how it was reached.
	signaled bool
}

// New returns an empty Reveal. A non-positive baseDelay falls back to
// DefaultBaseDelay.
func New(baseDelay time.Duration) *Reveal {
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Reveal{baseDelay: baseDelay}
}

// SetContent mounts new content and restarts the animation from the
// first rune. Setting identical content is a no-op so redundant
// mounts do not flicker the display.
func (r *Reveal) SetContent(content string) {
	if content == r.content {
		return
	}
	r.content = content
	r.runes = []rune(content)
	r.cursor = 0
	r.signaled = false
	r.gen++
}

// Gen identifies the currently mounted content. Ticks carrying an
// older generation are stale.
func (r *Reveal) Gen() int {
	return r.gen
}

// Visible returns the revealed prefix.
func (r *Reveal) Visible() string {
	if r.cursor >= len(r.runes) {
		return r.content
	}
	return string(r.runes[:r.cursor])
}

// Done reports whether every rune is visible.
func (r *Reveal) Done() bool {
	return r.cursor >= len(r.runes)
}

// Step advances the animation by one tick and returns the delay until
// the next tick. The step size and the delay both follow the fence
// state at the cursor before advancing: one rune per baseDelay in
// prose, ten runes per half baseDelay inside a fence.
func (r *Reveal) Step() time.Duration {
	if r.Done() {
		return r.baseDelay
	}

	step := proseStep
	delay := r.baseDelay
	if InsideFence(r.content, r.cursor) {
		step = codeStep
		delay = r.baseDelay / 2
	}

	r.cursor += step
	if r.cursor > len(r.runes) {
		r.cursor = len(r.runes)
	}
	return delay
}

// RevealAll jumps straight to the end of the content.
func (r *Reveal) RevealAll() {
	r.cursor = len(r.runes)
}

// TakeCompletion reports a finished animation exactly once. The first
// call after the last rune becomes visible returns true; every other
// call returns false. RevealAll and natural ticking are
// indistinguishable here.
func (r *Reveal) TakeCompletion() bool {
	if !r.Done() || r.signaled {
		return false
	}
	r.signaled = true
	return true
}
