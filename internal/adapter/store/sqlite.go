package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"cardchat/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS chats (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	path       TEXT NOT NULL,
	messages   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chats_user ON chats(user_id, created_at DESC);
`

// SQLiteChatStore persists conversations in a SQLite database. Messages
// are stored as a JSON document per chat; chats are small and always
// read and written whole, so row-per-message granularity buys nothing.
type SQLiteChatStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteChatStore opens (creating if needed) the database at path and
// ensures the schema exists.
func NewSQLiteChatStore(path string, logger *slog.Logger) (*SQLiteChatStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// modernc.org/sqlite serializes access per connection; a single
	// connection avoids SQLITE_BUSY under concurrent commits.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteChatStore{db: db, logger: logger}, nil
}

// Save upserts a conversation. Last write wins.
func (s *SQLiteChatStore) Save(ctx context.Context, conv *domain.Conversation) error {
	messages, err := json.Marshal(conv.Messages)
	if err != nil {
		return domain.NewDomainError("SQLiteChatStore.Save", err, "marshal messages")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chats (id, title, user_id, created_at, path, messages)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title    = excluded.title,
			messages = excluded.messages,
			path     = excluded.path`,
		conv.ID, conv.Title, conv.UserID, conv.CreatedAt.UnixMilli(), conv.Path, string(messages),
	)
	if err != nil {
		return domain.NewDomainError("SQLiteChatStore.Save", err, conv.ID)
	}
	return nil
}

// Load returns the conversation with the given id, or ErrChatNotFound.
func (s *SQLiteChatStore) Load(ctx context.Context, id string) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, user_id, created_at, path, messages
		FROM chats WHERE id = ?`, id)

	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrChatNotFound
		}
		return nil, domain.NewDomainError("SQLiteChatStore.Load", err, id)
	}
	return conv, nil
}

// ListByUser returns all conversations owned by userID, newest first.
func (s *SQLiteChatStore) ListByUser(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, user_id, created_at, path, messages
		FROM chats WHERE user_id = ?
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, domain.NewDomainError("SQLiteChatStore.ListByUser", err, userID)
	}
	defer rows.Close()

	var convs []*domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, domain.NewDomainError("SQLiteChatStore.ListByUser", err, userID)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewDomainError("SQLiteChatStore.ListByUser", err, userID)
	}
	return convs, nil
}

// Delete removes a conversation. Deleting a missing chat is a no-op.
func (s *SQLiteChatStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id); err != nil {
		return domain.NewDomainError("SQLiteChatStore.Delete", err, id)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteChatStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var (
		conv      domain.Conversation
		createdAt int64
		messages  string
	)
	if err := row.Scan(&conv.ID, &conv.Title, &conv.UserID, &createdAt, &conv.Path, &messages); err != nil {
		return nil, err
	}
	conv.CreatedAt = time.UnixMilli(createdAt)
	if err := json.Unmarshal([]byte(messages), &conv.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	return &conv, nil
}

var _ domain.ChatStore = (*SQLiteChatStore)(nil)
