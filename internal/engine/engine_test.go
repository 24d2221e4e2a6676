// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/quill-tui/internal/model"
	"github.com/jeranaias/quill-tui/internal/relay"
	"github.com/jeranaias/quill-tui/internal/storage"
)

// fakeRelay returns scripted replies. When block is non-nil every call
// parks until the channel is closed, which lets tests hold the engine
// in AwaitingReply.
type fakeRelay struct {
	mu      sync.Mutex
	reply   string
	err     error
	block   chan struct{}
	history [][]relay.Turn
}

func (f *fakeRelay) Complete(ctx context.Context, history []relay.Turn, p relay.Params) (*relay.Reply, error) {
	f.mu.Lock()
	f.history = append(f.history, history)
	block := f.block
	reply, err := f.reply, f.err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, &relay.RelayError{Kind: relay.KindTimeout, Message: "test deadline", Cause: ctx.Err()}
		}
	}
	if err != nil {
		return nil, err
	}
	return &relay.Reply{Content: reply, Model: "fake"}, nil
}

func (f *fakeRelay) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.history)
}

func newTestEngine(t *testing.T, r Relay) (*Engine, *storage.Store) {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "quill.db"))
	if err != nil {
		t.Fatalf("storage.Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, r, "local", nil), s
}

func waitForState(t *testing.T, e *Engine, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("engine never reached state %v (at %v)", want, e.State())
}

func TestSendAppendsExchange(t *testing.T) {
	fr := &fakeRelay{reply: "the answer"}
	e, s := newTestEngine(t, fr)
	ctx := context.Background()

	if err := e.Boot(ctx); err != nil {
		t.Fatalf("Boot() error: %v", err)
	}

	ex, err := e.Send(ctx, "the question")
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if ex.User == nil || ex.User.Content != "the question" {
		t.Errorf("exchange user = %+v", ex.User)
	}
	if ex.Assistant == nil || ex.Assistant.Content != "the answer" {
		t.Errorf("exchange assistant = %+v", ex.Assistant)
	}
	if e.State() != Idle {
		t.Errorf("state = %v, want Idle", e.State())
	}

	msgs := e.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[1].Role != model.RoleAssistant {
		t.Error("transcript roles wrong")
	}
	if msgs[0].CreatedAt >= msgs[1].CreatedAt {
		t.Error("assistant not ordered after user")
	}

	stored, err := s.ListMessages(ctx, e.Active().ID)
	if err != nil {
		t.Fatalf("ListMessages() error: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("store has %d messages, want 2", len(stored))
	}
}

func TestSendAutoTitle(t *testing.T) {
	fr := &fakeRelay{reply: "ok"}
	e, _ := newTestEngine(t, fr)
	ctx := context.Background()
	e.Boot(ctx)

	long := "Explain recursion in 45 words, please, with an example and a short caveat note."
	ex, err := e.Send(ctx, long)
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	want := "Explain recursion in 45 words, please, w..."
	if !ex.TitleChanged || ex.Title != want {
		t.Errorf("title = %q (changed=%v), want %q", ex.Title, ex.TitleChanged, want)
	}
	if e.Active().Title != want {
		t.Errorf("active title = %q", e.Active().Title)
	}

	// A second message never retitles.
	ex2, err := e.Send(ctx, "and another thing")
	if err != nil {
		t.Fatalf("second Send() error: %v", err)
	}
	if ex2.TitleChanged {
		t.Error("second send changed the title")
	}
	if e.Active().Title != want {
		t.Errorf("title drifted to %q", e.Active().Title)
	}
}

func TestSendRelayFailureLeavesDefaultTitle(t *testing.T) {
	fr := &fakeRelay{err: &relay.RelayError{Kind: relay.KindUpstream, StatusCode: 500, Message: "boom"}}
	e, s := newTestEngine(t, fr)
	ctx := context.Background()
	e.Boot(ctx)

	_, err := e.Send(ctx, "Explain recursion in 45 words, please, with an example and a short caveat note.")
	if !relay.IsUpstream(err) {
		t.Fatalf("Send() error = %v, want upstream relay error", err)
	}

	// The title changes only when an exchange completes; a failed first
	// exchange keeps the placeholder.
	if got := e.Active().Title; got != model.DefaultTitle {
		t.Errorf("title = %q, want %q after failed exchange", got, model.DefaultTitle)
	}
	stored, err := s.GetConversation(ctx, e.Active().ID)
	if err != nil {
		t.Fatalf("GetConversation() error: %v", err)
	}
	if stored.Title != model.DefaultTitle {
		t.Errorf("stored title = %q, want %q", stored.Title, model.DefaultTitle)
	}

	// The retry that succeeds retitles.
	fr.mu.Lock()
	fr.err = nil
	fr.reply = "ok"
	fr.mu.Unlock()

	ex, err := e.Send(ctx, "second try")
	if err != nil {
		t.Fatalf("retry Send() error: %v", err)
	}
	if !ex.TitleChanged || ex.Title != "second try" {
		t.Errorf("retry title = %q (changed=%v), want derived title", ex.Title, ex.TitleChanged)
	}
}

func TestSendShortMessageTitleUntruncated(t *testing.T) {
	fr := &fakeRelay{reply: "ok"}
	e, _ := newTestEngine(t, fr)
	ctx := context.Background()
	e.Boot(ctx)

	ex, err := e.Send(ctx, "short and sweet")
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if ex.Title != "short and sweet" {
		t.Errorf("title = %q, ellipsis added to short text", ex.Title)
	}
}

func TestSendValidation(t *testing.T) {
	fr := &fakeRelay{reply: "ok"}
	e, _ := newTestEngine(t, fr)
	ctx := context.Background()
	e.Boot(ctx)

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := e.Send(ctx, text); !IsValidation(err) {
			t.Errorf("Send(%q) error = %v, want validation error", text, err)
		}
	}
	if len(e.Messages()) != 0 {
		t.Error("rejected sends reached the transcript")
	}
	if fr.calls() != 0 {
		t.Error("rejected sends reached the relay")
	}
}

func TestSendBusyRejected(t *testing.T) {
	block := make(chan struct{})
	fr := &fakeRelay{reply: "slow answer", block: block}
	e, _ := newTestEngine(t, fr)
	ctx := context.Background()
	e.Boot(ctx)

	done := make(chan error, 1)
	go func() {
		_, err := e.Send(ctx, "first")
		done <- err
	}()
	waitForState(t, e, AwaitingReply)

	if _, err := e.Send(ctx, "second"); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Send() error = %v, want ErrBusy", err)
	}
	if err := e.EditOnly(ctx, "msg_x", "nope"); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent EditOnly() error = %v, want ErrBusy", err)
	}
	if _, err := e.EditAndRegenerate(ctx, "msg_x", "nope"); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent EditAndRegenerate() error = %v, want ErrBusy", err)
	}
	if err := e.Rename(ctx, e.Active().ID, "nope"); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Rename() error = %v, want ErrBusy", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first Send() error: %v", err)
	}
	if len(e.Messages()) != 2 {
		t.Errorf("len(messages) = %d after exchange", len(e.Messages()))
	}
}

// overlapRelay records how many Complete calls ever ran at once.
type overlapRelay struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
}

func (r *overlapRelay) Complete(ctx context.Context, history []relay.Turn, p relay.Params) (*relay.Reply, error) {
	r.mu.Lock()
	r.inFlight++
	if r.inFlight > r.maxSeen {
		r.maxSeen = r.inFlight
	}
	r.mu.Unlock()

	time.Sleep(time.Millisecond)

	r.mu.Lock()
	r.inFlight--
	r.mu.Unlock()
	return &relay.Reply{Content: "pong", Model: "fake"}, nil
}

func (r *overlapRelay) maxInFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxSeen
}

func TestConcurrentSendsAdmitOneExchange(t *testing.T) {
	fr := &overlapRelay{}
	e, _ := newTestEngine(t, fr)
	ctx := context.Background()

	// Race two Sends against an engine with no active conversation, so
	// the auto-create path runs; drop the conversation each round to
	// keep hitting it. However the admissions interleave, the relay
	// must never see two exchanges at once.
	for i := 0; i < 50; i++ {
		var wg sync.WaitGroup
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = e.Send(ctx, "ping")
			}()
		}
		wg.Wait()
		if active := e.Active(); active != nil {
			if err := e.Delete(ctx, active.ID); err != nil {
				t.Fatalf("Delete() error: %v", err)
			}
		}
	}

	if got := fr.maxInFlight(); got > 1 {
		t.Errorf("relay saw %d concurrent exchanges, want at most 1", got)
	}
}

func TestSendRelayFailureKeepsUserMessage(t *testing.T) {
	fr := &fakeRelay{err: &relay.RelayError{Kind: relay.KindUpstream, StatusCode: 500, Message: "boom"}}
	e, s := newTestEngine(t, fr)
	ctx := context.Background()
	e.Boot(ctx)

	_, err := e.Send(ctx, "doomed question")
	if !relay.IsUpstream(err) {
		t.Fatalf("Send() error = %v, want upstream relay error", err)
	}

	// The question stays, durable and visible.
	msgs := e.Messages()
	if len(msgs) != 1 || msgs[0].Content != "doomed question" {
		t.Fatalf("transcript = %+v, want the orphaned user message", msgs)
	}
	stored, _ := s.ListMessages(ctx, e.Active().ID)
	if len(stored) != 1 {
		t.Errorf("store has %d messages, want 1", len(stored))
	}

	if e.State() != ErrorState {
		t.Errorf("state = %v, want ErrorState", e.State())
	}
	if e.LastError() == nil {
		t.Error("LastError() = nil")
	}

	// The engine is not stuck: the next send works and clears the
	// error.
	fr.mu.Lock()
	fr.err = nil
	fr.reply = "recovered"
	fr.mu.Unlock()

	if _, err := e.Send(ctx, "retry by hand"); err != nil {
		t.Fatalf("follow-up Send() error: %v", err)
	}
	if e.State() != Idle || e.LastError() != nil {
		t.Error("error state not cleared by next exchange")
	}
}

func TestSelectAwayAbandonsPendingReply(t *testing.T) {
	block := make(chan struct{})
	fr := &fakeRelay{reply: "late reply", block: block}
	e, s := newTestEngine(t, fr)
	ctx := context.Background()
	e.Boot(ctx)
	convA := e.Active().ID

	type result struct {
		ex  *Exchange
		err error
	}
	done := make(chan result, 1)
	go func() {
		ex, err := e.Send(ctx, "question in A")
		done <- result{ex, err}
	}()
	waitForState(t, e, AwaitingReply)

	convB, err := e.NewConversation(ctx)
	if err != nil {
		t.Fatalf("NewConversation() error: %v", err)
	}
	if e.State() != Idle {
		t.Errorf("state after selecting away = %v, want Idle", e.State())
	}

	close(block)
	res := <-done
	if res.err != nil {
		t.Fatalf("Send() error: %v", res.err)
	}
	if !res.ex.Abandoned {
		t.Error("exchange not marked abandoned")
	}
	if res.ex.Assistant != nil {
		t.Error("abandoned exchange carries an assistant message")
	}

	// The late reply is durable in A but never visible in B.
	storedA, _ := s.ListMessages(ctx, convA)
	if len(storedA) != 2 {
		t.Fatalf("conversation A has %d messages, want 2", len(storedA))
	}
	if storedA[1].Role != model.RoleAssistant || storedA[1].Content != "late reply" {
		t.Errorf("late reply not persisted: %+v", storedA[1])
	}
	if len(e.Messages()) != 0 {
		t.Errorf("conversation B transcript polluted: %+v", e.Messages())
	}
	if e.Active().ID != convB.ID {
		t.Error("active conversation changed unexpectedly")
	}

	// Selecting back shows the full exchange.
	if err := e.Select(ctx, convA); err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	if len(e.Messages()) != 2 {
		t.Errorf("reselected transcript has %d messages, want 2", len(e.Messages()))
	}
}

func TestEditAndRegenerate(t *testing.T) {
	fr := &fakeRelay{reply: "first answer"}
	e, s := newTestEngine(t, fr)
	ctx := context.Background()
	e.Boot(ctx)

	ex1, err := e.Send(ctx, "first question")
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if _, err := e.Send(ctx, "second question"); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if len(e.Messages()) != 4 {
		t.Fatalf("len(messages) = %d, want 4", len(e.Messages()))
	}

	fr.mu.Lock()
	fr.reply = "regenerated answer"
	fr.mu.Unlock()

	ex, err := e.EditAndRegenerate(ctx, ex1.User.ID, "better first question")
	if err != nil {
		t.Fatalf("EditAndRegenerate() error: %v", err)
	}

	msgs := e.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len(messages) = %d, want 2 after regenerate", len(msgs))
	}
	if msgs[0].ID != ex1.User.ID || msgs[0].Content != "better first question" {
		t.Errorf("edited message = %+v", msgs[0])
	}
	if msgs[1].Content != "regenerated answer" {
		t.Errorf("new assistant = %+v", msgs[1])
	}
	if ex.Assistant == nil || ex.Assistant.ID != msgs[1].ID {
		t.Error("exchange assistant mismatch")
	}

	// The relay saw only the shortened history.
	fr.mu.Lock()
	last := fr.history[len(fr.history)-1]
	fr.mu.Unlock()
	if len(last) != 1 || last[0].Content != "better first question" {
		t.Errorf("regeneration history = %+v", last)
	}

	// Store agrees with memory.
	stored, _ := s.ListMessages(ctx, e.Active().ID)
	if len(stored) != 2 {
		t.Errorf("store has %d messages, want 2", len(stored))
	}
}

func TestEditAndRegenerateRejectsAssistantMessage(t *testing.T) {
	fr := &fakeRelay{reply: "answer"}
	e, _ := newTestEngine(t, fr)
	ctx := context.Background()
	e.Boot(ctx)

	ex, _ := e.Send(ctx, "question")
	if _, err := e.EditAndRegenerate(ctx, ex.Assistant.ID, "rewritten"); !IsValidation(err) {
		t.Errorf("error = %v, want validation error", err)
	}
}

func TestEditOnly(t *testing.T) {
	fr := &fakeRelay{reply: "answer"}
	e, s := newTestEngine(t, fr)
	ctx := context.Background()
	e.Boot(ctx)

	ex, _ := e.Send(ctx, "speling mistake")
	before := fr.calls()

	if err := e.EditOnly(ctx, ex.User.ID, "spelling mistake"); err != nil {
		t.Fatalf("EditOnly() error: %v", err)
	}

	msgs := e.Messages()
	if len(msgs) != 2 {
		t.Fatalf("EditOnly changed transcript length to %d", len(msgs))
	}
	if msgs[0].Content != "spelling mistake" {
		t.Errorf("content = %q", msgs[0].Content)
	}
	if fr.calls() != before {
		t.Error("EditOnly hit the relay")
	}

	stored, _ := s.GetMessage(ctx, ex.User.ID)
	if stored.Content != "spelling mistake" {
		t.Error("edit not persisted")
	}
}

func TestDeleteActiveConversation(t *testing.T) {
	fr := &fakeRelay{reply: "answer"}
	e, _ := newTestEngine(t, fr)
	ctx := context.Background()
	e.Boot(ctx)
	id := e.Active().ID
	e.Send(ctx, "hello")

	if err := e.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if e.Active() != nil {
		t.Error("active conversation survived delete")
	}
	if len(e.Messages()) != 0 {
		t.Error("transcript survived delete")
	}

	// Sending again lands in a fresh conversation.
	if _, err := e.Send(ctx, "starting over"); err != nil {
		t.Fatalf("Send() after delete error: %v", err)
	}
	if e.Active() == nil || e.Active().ID == id {
		t.Error("send did not create a fresh conversation")
	}
}

func TestBoot(t *testing.T) {
	fr := &fakeRelay{reply: "answer"}
	e, s := newTestEngine(t, fr)
	ctx := context.Background()

	// Empty store: Boot creates.
	if err := e.Boot(ctx); err != nil {
		t.Fatalf("Boot() error: %v", err)
	}
	if e.Active() == nil {
		t.Fatal("no active conversation after Boot")
	}

	// Populated store: Boot picks the most recently updated.
	recent, _ := s.CreateConversation(ctx, "local")
	s.AppendMessage(ctx, recent.ID, model.RoleUser, "newest activity")

	e2 := New(s, fr, "local", nil)
	if err := e2.Boot(ctx); err != nil {
		t.Fatalf("second Boot() error: %v", err)
	}
	if e2.Active().ID != recent.ID {
		t.Errorf("Boot selected %s, want %s", e2.Active().ID, recent.ID)
	}
	if len(e2.Messages()) != 1 {
		t.Errorf("Boot loaded %d messages, want 1", len(e2.Messages()))
	}
}

func TestRename(t *testing.T) {
	fr := &fakeRelay{reply: "answer"}
	e, _ := newTestEngine(t, fr)
	ctx := context.Background()
	e.Boot(ctx)

	if err := e.Rename(ctx, e.Active().ID, "  "); !IsValidation(err) {
		t.Errorf("blank rename error = %v, want validation error", err)
	}
	if err := e.Rename(ctx, e.Active().ID, "chosen by hand"); err != nil {
		t.Fatalf("Rename() error: %v", err)
	}
	if e.Active().Title != "chosen by hand" {
		t.Errorf("title = %q", e.Active().Title)
	}

	// Manual titles beat auto-derivation.
	if _, err := e.Send(ctx, "first message arrives later"); err != nil {
		t.Fatal(err)
	}
	if e.Active().Title != "chosen by hand" {
		t.Errorf("auto-title overwrote manual title: %q", e.Active().Title)
	}
}
