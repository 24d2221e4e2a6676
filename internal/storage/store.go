// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// store.go - SQLite-backed conversation and message persistence.
//
// All reads and writes go through a single *sql.DB handle. Ordering
// keys (message created_at) are assigned by the store itself, never by
// callers, from a clock that only moves forward.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/quill-tui/internal/model"
)

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	title      TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conv_created
	ON messages(conversation_id, created_at);

CREATE INDEX IF NOT EXISTS idx_conversations_owner_updated
	ON conversations(owner, updated_at);
`

// =============================================================================
// STORE
// =============================================================================

// Store is the message store gateway. Safe for concurrent use.
type Store struct {
	db *sql.DB

	// clockMu guards lastStamp. Timestamps are unix nanoseconds and
	// strictly increase across the life of the store, seeded from the
	// newest row already on disk so restarts cannot reuse a key.
	clockMu   sync.Mutex
	lastStamp int64
}

// Open opens (creating if necessary) the SQLite database at path and
// prepares the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storeErr("open", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, storeErr("open", err)
	}

	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY between the handle's own writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, storeErr("open", err)
	}

	s := &Store{db: db}
	if err := s.seedClock(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return storeErr("close", s.db.Close())
}

func (s *Store) seedClock() error {
	var last sql.NullInt64
	err := s.db.QueryRow(`
		SELECT MAX(t) FROM (
			SELECT MAX(created_at) AS t FROM messages
			UNION ALL
			SELECT MAX(updated_at) AS t FROM conversations
		)`).Scan(&last)
	if err != nil {
		return storeErr("seed clock", err)
	}
	if last.Valid {
		s.lastStamp = last.Int64
	}
	return nil
}

// nextStamp returns a timestamp strictly greater than any previously
// returned by this store.
func (s *Store) nextStamp() int64 {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	now := time.Now().UnixNano()
	if now <= s.lastStamp {
		now = s.lastStamp + 1
	}
	s.lastStamp = now
	return now
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// CreateConversation inserts a new conversation for owner with the
// default placeholder title and returns it.
func (s *Store) CreateConversation(ctx context.Context, owner string) (*model.Conversation, error) {
	now := s.nextStamp()
	conv := &model.Conversation{
		ID:        model.NewConversationID(),
		Owner:     owner,
		Title:     model.DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, owner, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		conv.ID, conv.Owner, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return nil, storeErr("create conversation", err)
	}
	return conv, nil
}

// GetConversation returns the conversation with the given ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner, title, created_at, updated_at FROM conversations WHERE id = ?`, id).
		Scan(&conv.ID, &conv.Owner, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, storeErr("get conversation", err)
	}
	return &conv, nil
}

// ListConversations returns all of owner's conversations, most
// recently updated first.
func (s *Store) ListConversations(ctx context.Context, owner string) ([]model.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner, title, created_at, updated_at
		 FROM conversations WHERE owner = ? ORDER BY updated_at DESC`, owner)
	if err != nil {
		return nil, storeErr("list conversations", err)
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.ID, &c.Owner, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, storeErr("list conversations", err)
		}
		convs = append(convs, c)
	}
	return convs, storeErr("list conversations", rows.Err())
}

// RenameConversation sets a new title.
func (s *Store) RenameConversation(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return storeErr("rename conversation", err)
	}
	return s.requireRow(res, "rename conversation", ErrConversationNotFound)
}

// DeleteConversation removes a conversation and every message in it.
// The two deletes run in one transaction so a crash cannot strand
// orphaned messages.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("delete conversation", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return storeErr("delete conversation", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete conversation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("delete conversation", err)
	}
	if n == 0 {
		return ErrConversationNotFound
	}
	return storeErr("delete conversation", tx.Commit())
}

// =============================================================================
// MESSAGES
// =============================================================================

// AppendMessage inserts a message at the tail of a conversation and
// bumps the parent's updated_at.
//
// The insert and the touch are two separate statements, not one
// transaction. If the touch fails the message is already durable and
// the conversation's recency is stale until the next append; callers
// get the touch error but must not treat the append as lost.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, role model.Role, content string) (*model.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	msg := &model.Message{
		ID:             model.NewMessageID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      s.nextStamp(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.CreatedAt)
	if err != nil {
		return nil, storeErr("append message", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, s.nextStamp(), conversationID)
	if err != nil {
		return msg, storeErr("touch conversation", err)
	}
	return msg, nil
}

// GetMessage returns the message with the given ID.
func (s *Store) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	err := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, role, content, created_at FROM messages WHERE id = ?`, id).
		Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, storeErr("get message", err)
	}
	return &msg, nil
}

// ListMessages returns a conversation's messages oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, storeErr("list messages", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, storeErr("list messages", rows.Err())
}

// EditMessage replaces a message's content in place. Role, position
// and ordering key are untouched.
func (s *Store) EditMessage(ctx context.Context, id, content string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET content = ? WHERE id = ?`, content, id)
	if err != nil {
		return storeErr("edit message", err)
	}
	return s.requireRow(res, "edit message", ErrMessageNotFound)
}

// TruncateAfter deletes every message in the conversation whose
// created_at is strictly greater than after. The boundary message
// itself survives, so the call is idempotent. Returns the number of
// rows removed, which is zero on repeat calls.
func (s *Store) TruncateAfter(ctx context.Context, conversationID string, after int64) (int64, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id = ? AND created_at > ?`, conversationID, after)
	if err != nil {
		return 0, storeErr("truncate after", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("truncate after", err)
	}
	return n, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) requireRow(res sql.Result, op string, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr(op, err)
	}
	if n == 0 {
		return missing
	}
	return nil
}

// DefaultPath returns ~/.quill/quill.db, falling back to the current
// directory when the home directory cannot be resolved.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "quill.db"
	}
	return filepath.Join(home, ".quill", "quill.db")
}
