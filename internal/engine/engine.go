// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine owns the conversation lifecycle: which conversation
// is active, what its transcript is, and whether a reply is pending.
// It sits between the UI and the storage/relay layers so the UI never
// has to reason about persistence or upstream failures.
//
// The engine is a small state machine. Idle accepts any operation.
// AwaitingReply covers the single suspension point, the relay call,
// during which every mutation is rejected with ErrBusy. ErrorState is
// Idle that remembers what just went wrong; any accepted operation
// clears it.
package engine

import (
	"context"
	"strings"
	"sync"

	"github.com/jeranaias/quill-tui/internal/model"
	"github.com/jeranaias/quill-tui/internal/relay"
	"github.com/jeranaias/quill-tui/internal/storage"
)

// =============================================================================
// STATE
// =============================================================================

// State is the engine's lifecycle phase.
type State int

const (
	// Idle: no pending work, all operations accepted.
	Idle State = iota

	// AwaitingReply: a relay call is in flight.
	AwaitingReply

	// ErrorState: the last exchange failed; LastError explains it.
	// Behaves as Idle for admission, cleared by the next operation.
	ErrorState
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingReply:
		return "awaiting reply"
	case ErrorState:
		return "error"
	default:
		return "unknown"
	}
}

// Relay is the completion dependency. *relay.Client satisfies it; the
// tests substitute a scripted fake.
type Relay interface {
	Complete(ctx context.Context, history []relay.Turn, p relay.Params) (*relay.Reply, error)
}

// Exchange reports what one Send or EditAndRegenerate did. Assistant
// is nil when the exchange was abandoned by selecting away before the
// reply landed; the reply is still durable in its conversation.
type Exchange struct {
	User         *model.Message
	Assistant    *model.Message
	TitleChanged bool
	Title        string
	Abandoned    bool
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine coordinates one owner's conversations. Safe for concurrent
// use; the relay call runs outside the lock so reads stay responsive
// while a reply is pending.
type Engine struct {
	store  *storage.Store
	relay  Relay
	owner  string
	params func() relay.Params

	mu      sync.Mutex
	state   State
	lastErr error

	active *model.Conversation
	msgs   []model.Message

	// generation identifies the active transcript. Selecting a
	// different conversation bumps it, so a reply that lands late is
	// persisted but never spliced into a transcript it does not
	// belong to.
	generation int
}

// New creates an engine. params is consulted at each exchange so
// settings changes apply without restart; nil means relay defaults.
func New(store *storage.Store, r Relay, owner string, params func() relay.Params) *Engine {
	if params == nil {
		params = func() relay.Params { return relay.Params{} }
	}
	return &Engine{
		store:  store,
		relay:  r,
		owner:  owner,
		params: params,
	}
}

// =============================================================================
// INSPECTION
// =============================================================================

// State returns the current lifecycle phase.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastError returns the failure behind ErrorState, or nil.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Active returns a copy of the active conversation, or nil.
func (e *Engine) Active() *model.Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return nil
	}
	c := *e.active
	return &c
}

// Messages returns a copy of the active transcript, oldest first.
func (e *Engine) Messages() []model.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Message, len(e.msgs))
	copy(out, e.msgs)
	return out
}

// Conversations lists the owner's conversations, most recent first.
func (e *Engine) Conversations(ctx context.Context) ([]model.Conversation, error) {
	return e.store.ListConversations(ctx, e.owner)
}

// =============================================================================
// CONVERSATION MANAGEMENT
// =============================================================================

// Boot selects the most recently updated conversation, creating one
// when the store is empty. Call once at startup.
func (e *Engine) Boot(ctx context.Context) error {
	convs, err := e.store.ListConversations(ctx, e.owner)
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		_, err := e.NewConversation(ctx)
		return err
	}
	return e.Select(ctx, convs[0].ID)
}

// NewConversation creates an empty conversation and makes it active.
// Allowed while a reply is pending; the pending exchange is abandoned.
func (e *Engine) NewConversation(ctx context.Context) (*model.Conversation, error) {
	conv, err := e.store.CreateConversation(ctx, e.owner)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.activate(conv, nil)
	c := *conv
	return &c, nil
}

// Select makes the given conversation active and loads its transcript,
// replacing the in-memory sequence wholesale. Selecting away while a
// reply is pending abandons that exchange.
func (e *Engine) Select(ctx context.Context, id string) error {
	conv, err := e.store.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	msgs, err := e.store.ListMessages(ctx, id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.activate(conv, msgs)
	return nil
}

// activate installs conv as the active conversation. Caller holds mu.
// Bumping the generation is what abandons a pending exchange: the
// in-flight completion sees a stale generation and leaves the new
// transcript alone, so the state resets to Idle here.
func (e *Engine) activate(conv *model.Conversation, msgs []model.Message) {
	e.active = conv
	e.msgs = msgs
	e.generation++
	e.state = Idle
	e.lastErr = nil
}

// Rename retitles a conversation. Renaming the active conversation is
// rejected while a reply is pending so a landing auto-title cannot
// race a manual one.
func (e *Engine) Rename(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}

	e.mu.Lock()
	if e.state == AwaitingReply && e.active != nil && e.active.ID == id {
		e.mu.Unlock()
		return ErrBusy
	}
	e.mu.Unlock()

	if err := e.store.RenameConversation(ctx, id, title); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil && e.active.ID == id {
		e.active.Title = title
	}
	return nil
}

// Delete removes a conversation and its messages. Deleting the active
// conversation clears the transcript and abandons any pending reply.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if err := e.store.DeleteConversation(ctx, id); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil && e.active.ID == id {
		e.active = nil
		e.msgs = nil
		e.generation++
		e.state = Idle
		e.lastErr = nil
	}
	return nil
}

// =============================================================================
// SEND
// =============================================================================

// Send validates text, appends it as a user message, and runs one
// relay exchange. The user message survives a failed exchange; the
// caller sees the failure and the transcript keeps the question so it
// can be edited or retried by hand.
func (e *Engine) Send(ctx context.Context, text string) (*Exchange, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ValidationError{Field: "message", Reason: "must not be empty"}
	}

	e.mu.Lock()
	if e.state == AwaitingReply {
		e.mu.Unlock()
		return nil, ErrBusy
	}
	if e.active == nil {
		e.mu.Unlock()
		conv, err := e.NewConversation(ctx)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		if e.state == AwaitingReply {
			e.mu.Unlock()
			return nil, ErrBusy
		}
		if e.active == nil || e.active.ID != conv.ID {
			e.mu.Unlock()
			return nil, ErrNoConversation
		}
	}
	convID := e.active.ID
	gen := e.generation

	// Claim the busy state before touching storage so a concurrent
	// Send cannot interleave its own append.
	e.state = AwaitingReply
	e.lastErr = nil
	e.mu.Unlock()

	userMsg, err := e.store.AppendMessage(ctx, convID, model.RoleUser, text)
	if err != nil {
		e.failExchange(gen, err)
		return nil, err
	}

	ex := &Exchange{User: userMsg}

	e.mu.Lock()
	if e.generation != gen {
		// Selected away between admission and append. Persisted, not
		// displayed.
		e.mu.Unlock()
		ex.Abandoned = true
		return ex, nil
	}
	e.msgs = append(e.msgs, *userMsg)

	history := e.historyLocked()
	e.mu.Unlock()

	return e.completeExchange(ctx, convID, gen, history, ex)
}

// =============================================================================
// EDITS
// =============================================================================

// EditOnly rewrites a user message in place without regenerating
// anything after it. The transcript keeps its shape.
func (e *Engine) EditOnly(ctx context.Context, messageID, content string) error {
	if strings.TrimSpace(content) == "" {
		return &ValidationError{Field: "message", Reason: "must not be empty"}
	}

	e.mu.Lock()
	if e.state == AwaitingReply {
		e.mu.Unlock()
		return ErrBusy
	}
	e.mu.Unlock()

	if err := e.store.EditMessage(ctx, messageID, content); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.msgs {
		if e.msgs[i].ID == messageID {
			e.msgs[i].Content = content
			break
		}
	}
	return nil
}

// EditAndRegenerate rewrites a user message, discards everything after
// it, and runs a fresh exchange from the shortened history. There is
// no undo; the discarded tail is gone from the store as well.
func (e *Engine) EditAndRegenerate(ctx context.Context, messageID, content string) (*Exchange, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &ValidationError{Field: "message", Reason: "must not be empty"}
	}

	e.mu.Lock()
	if e.state == AwaitingReply {
		e.mu.Unlock()
		return nil, ErrBusy
	}
	if e.active == nil {
		e.mu.Unlock()
		return nil, ErrNoConversation
	}
	convID := e.active.ID

	var edited *model.Message
	for i := range e.msgs {
		if e.msgs[i].ID == messageID {
			edited = &e.msgs[i]
			break
		}
	}
	if edited == nil {
		e.mu.Unlock()
		return nil, storage.ErrMessageNotFound
	}
	if edited.Role != model.RoleUser {
		e.mu.Unlock()
		return nil, &ValidationError{Field: "message", Reason: "only user messages can be edited"}
	}
	cutoff := edited.CreatedAt
	gen := e.generation
	e.state = AwaitingReply
	e.lastErr = nil
	e.mu.Unlock()

	if err := e.store.EditMessage(ctx, messageID, content); err != nil {
		e.failExchange(gen, err)
		return nil, err
	}
	if _, err := e.store.TruncateAfter(ctx, convID, cutoff); err != nil {
		e.failExchange(gen, err)
		return nil, err
	}

	e.mu.Lock()
	if e.generation != gen {
		e.mu.Unlock()
		return &Exchange{Abandoned: true}, nil
	}

	// Mirror the truncation in memory: keep through the edited
	// message, drop the rest, install the new content.
	kept := e.msgs[:0]
	for _, m := range e.msgs {
		if m.CreatedAt > cutoff {
			break
		}
		if m.ID == messageID {
			m.Content = content
		}
		kept = append(kept, m)
	}
	e.msgs = kept

	ex := &Exchange{}
	for i := range e.msgs {
		if e.msgs[i].ID == messageID {
			ex.User = &e.msgs[i]
		}
	}

	history := e.historyLocked()
	e.mu.Unlock()

	return e.completeExchange(ctx, convID, gen, history, ex)
}

// =============================================================================
// EXCHANGE COMPLETION
// =============================================================================

// failExchange abandons a claimed exchange after a storage failure,
// unless the transcript already moved on.
func (e *Engine) failExchange(gen int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation == gen {
		e.state = ErrorState
		e.lastErr = err
	}
}

// historyLocked snapshots the transcript as relay turns. Caller holds
// mu.
func (e *Engine) historyLocked() []relay.Turn {
	history := make([]relay.Turn, len(e.msgs))
	for i, m := range e.msgs {
		history[i] = relay.Turn{Role: m.Role, Content: m.Content}
	}
	return history
}

// completeExchange runs the relay call and lands the result. This is
// the only code that runs in AwaitingReply; the engine lock is
// released for the duration of the upstream call.
func (e *Engine) completeExchange(ctx context.Context, convID string, gen int, history []relay.Turn, ex *Exchange) (*Exchange, error) {
	reply, relayErr := e.relay.Complete(ctx, history, e.params())

	if relayErr != nil {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.generation == gen {
			e.state = ErrorState
			e.lastErr = relayErr
		}
		return nil, relayErr
	}

	// The reply is durable no matter what the UI is looking at now.
	asstMsg, err := e.store.AppendMessage(ctx, convID, model.RoleAssistant, reply.Content)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.generation != gen {
		// Selected away mid-flight. Persisted above, nothing to splice.
		ex.Abandoned = true
		return ex, err
	}

	e.state = Idle
	if err != nil {
		e.state = ErrorState
		e.lastErr = err
		return nil, err
	}

	e.msgs = append(e.msgs, *asstMsg)
	ex.Assistant = asstMsg

	// A completed first exchange replaces the placeholder title,
	// derived from the triggering user message. A failed exchange
	// leaves the placeholder in place.
	if ex.User != nil && e.active != nil && e.active.HasDefaultTitle() {
		title := model.DeriveTitle(ex.User.Content)
		if e.store.RenameConversation(ctx, convID, title) == nil {
			e.active.Title = title
			ex.TitleChanged = true
			ex.Title = title
		}
	}
	return ex, nil
}
