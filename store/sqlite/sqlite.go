// Package sqlite implements conclave.Store using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"conclave"
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements conclave.Store backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a Store using a local SQLite file at dbPath. A single shared
// connection serializes all goroutines, eliminating SQLITE_BUSY errors from
// concurrent writers.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init creates the conversations table.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			question TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			result TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("sqlite: init: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_conversations_created ON conversations(created_at DESC)`)
	if err != nil {
		return fmt.Errorf("sqlite: init index: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) SaveConversation(ctx context.Context, conv conclave.Conversation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, mode, question, created_at, result)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mode = excluded.mode,
			question = excluded.question,
			result = excluded.result`,
		conv.ID, conv.Mode, conv.Question, conv.CreatedAt, string(conv.Result))
	if err != nil {
		return fmt.Errorf("sqlite: save conversation: %w", err)
	}
	s.logger.Debug("sqlite: conversation saved", "id", conv.ID, "mode", conv.Mode)
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (conclave.Conversation, error) {
	var conv conclave.Conversation
	var result string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, mode, question, created_at, result
		FROM conversations WHERE id = ?`, id).
		Scan(&conv.ID, &conv.Mode, &conv.Question, &conv.CreatedAt, &result)
	if err != nil {
		return conclave.Conversation{}, fmt.Errorf("sqlite: get conversation %s: %w", id, err)
	}
	conv.Result = []byte(result)
	return conv, nil
}

func (s *Store) ListConversations(ctx context.Context, limit int) ([]conclave.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, question, created_at, result
		FROM conversations ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list conversations: %w", err)
	}
	defer rows.Close()

	var convs []conclave.Conversation
	for rows.Next() {
		var conv conclave.Conversation
		var result string
		if err := rows.Scan(&conv.ID, &conv.Mode, &conv.Question, &conv.CreatedAt, &result); err != nil {
			return nil, fmt.Errorf("sqlite: scan conversation: %w", err)
		}
		conv.Result = []byte(result)
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete conversation %s: %w", id, err)
	}
	return nil
}

// compile-time check
var _ conclave.Store = (*Store)(nil)
