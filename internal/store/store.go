package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/baochat/baochat/internal/model/chat"
)

func newConversationID() string {
	return uuid.NewString()
}

var ErrConversationNotFound = errors.New("conversation not found")

// Store is the append-only conversation log backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,
			created_at      DATETIME NOT NULL,
			used_search     BOOLEAN NOT NULL DEFAULT 0,
			search_results  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateConversation provisions a fresh conversation with equal timestamps.
func (s *Store) CreateConversation(ctx context.Context) (chat.Conversation, error) {
	conv := chat.Conversation{
		ID:        newConversationID(),
		CreatedAt: time.Now().UTC(),
	}
	conv.UpdatedAt = conv.CreatedAt

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (id, created_at, updated_at) VALUES (?, ?, ?)",
		conv.ID, conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// AppendMessage inserts a message, creating the conversation row first if it
// does not exist, and bumps updated_at. The whole operation is one transaction.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, msg chat.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	var resultsJSON sql.NullString
	if len(msg.SearchResults) > 0 {
		data, err := json.Marshal(msg.SearchResults)
		if err != nil {
			return fmt.Errorf("failed to marshal search results: %w", err)
		}
		resultsJSON = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		"INSERT INTO conversations (id, created_at, updated_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING",
		conversationID, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure conversation: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, created_at, used_search, search_results)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		conversationID, string(msg.Role), msg.Content, msg.CreatedAt, msg.UsedSearch, resultsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE conversations SET updated_at = ? WHERE id = ?",
		now, conversationID,
	)
	if err != nil {
		return fmt.Errorf("failed to bump conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

// History returns the most recent limit messages of a conversation, oldest
// first. A non-positive limit falls back to the default of 50. An unknown
// conversation yields an empty slice.
func (s *Store) History(ctx context.Context, conversationID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at, used_search, search_results
		 FROM messages WHERE conversation_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var newest []chat.Message
	for rows.Next() {
		var (
			msg         chat.Message
			role        string
			resultsJSON sql.NullString
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &msg.CreatedAt, &msg.UsedSearch, &resultsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = chat.Role(role)
		if resultsJSON.Valid {
			if err := json.Unmarshal([]byte(resultsJSON.String), &msg.SearchResults); err != nil {
				return nil, fmt.Errorf("failed to unmarshal search results: %w", err)
			}
		}
		newest = append(newest, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returned newest first; flip to oldest first.
	messages := make([]chat.Message, len(newest))
	for i, msg := range newest {
		messages[len(newest)-1-i] = msg
	}
	return messages, nil
}

// ListConversations returns summaries ordered by most recently updated.
func (s *Store) ListConversations(ctx context.Context) ([]chat.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM messages WHERE conversation_id = c.id),
			COALESCE((SELECT content FROM messages WHERE conversation_id = c.id ORDER BY created_at DESC, id DESC LIMIT 1), '')
		 FROM conversations c
		 ORDER BY c.updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	summaries := make([]chat.ConversationSummary, 0)
	for rows.Next() {
		var summary chat.ConversationSummary
		if err := rows.Scan(&summary.ID, &summary.CreatedAt, &summary.UpdatedAt, &summary.MessageCount, &summary.LastMessage); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// DeleteConversation removes a conversation and all of its messages. It
// returns ErrConversationNotFound when no conversation has that id.
func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", conversationID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count deleted rows: %w", err)
	}
	if affected == 0 {
		return ErrConversationNotFound
	}
	return tx.Commit()
}
