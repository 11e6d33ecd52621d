// Package postgres implements conclave.Store using PostgreSQL.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor injection.
// The caller creates and closes the pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"conclave"
)

// Store implements conclave.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store using an existing pgxpool.Pool. The caller owns the
// pool; Close here is a no-op.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the conversations table.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			question TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			result JSONB NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("postgres: init: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS idx_conversations_created ON conversations(created_at DESC)`)
	if err != nil {
		return fmt.Errorf("postgres: init index: %w", err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *Store) Close() error { return nil }

func (s *Store) SaveConversation(ctx context.Context, conv conclave.Conversation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (id, mode, question, created_at, result)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			mode = EXCLUDED.mode,
			question = EXCLUDED.question,
			result = EXCLUDED.result`,
		conv.ID, conv.Mode, conv.Question, conv.CreatedAt, []byte(conv.Result))
	if err != nil {
		return fmt.Errorf("postgres: save conversation: %w", err)
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (conclave.Conversation, error) {
	var conv conclave.Conversation
	var result []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, mode, question, created_at, result
		FROM conversations WHERE id = $1`, id).
		Scan(&conv.ID, &conv.Mode, &conv.Question, &conv.CreatedAt, &result)
	if err != nil {
		return conclave.Conversation{}, fmt.Errorf("postgres: get conversation %s: %w", id, err)
	}
	conv.Result = result
	return conv, nil
}

func (s *Store) ListConversations(ctx context.Context, limit int) ([]conclave.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, mode, question, created_at, result
		FROM conversations ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list conversations: %w", err)
	}
	defer rows.Close()

	var convs []conclave.Conversation
	for rows.Next() {
		var conv conclave.Conversation
		var result []byte
		if err := rows.Scan(&conv.ID, &conv.Mode, &conv.Question, &conv.CreatedAt, &result); err != nil {
			return nil, fmt.Errorf("postgres: scan conversation: %w", err)
		}
		conv.Result = result
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete conversation %s: %w", id, err)
	}
	return nil
}

// compile-time check
var _ conclave.Store = (*Store)(nil)
