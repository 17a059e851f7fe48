package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/shopchat/internal/domain"
)

// SQLStore holds conversations, customer tokens and OAuth state.
type SQLStore struct {
	db  *DB
	now func() time.Time
}

// NewSQLStore creates a store using the given database.
func NewSQLStore(db *DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// AppendMessage records one message, creating the conversation on first use.
func (s *SQLStore) AppendMessage(ctx context.Context, conversationID, role, content string) (domain.Message, error) {
	now := s.now()
	ts := formatTime(now)

	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return domain.Message{}, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.db.rebind(
		`INSERT INTO conversations (id, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET updated_at = excluded.updated_at`),
		conversationID, ts, ts,
	); err != nil {
		return domain.Message{}, fmt.Errorf("upserting conversation %s: %w", conversationID, err)
	}

	var id int64
	if err := tx.QueryRowContext(ctx, s.db.rebind(
		`INSERT INTO messages (conversation_id, role, content, created_at)
		 VALUES (?, ?, ?, ?) RETURNING id`),
		conversationID, role, content, ts,
	).Scan(&id); err != nil {
		return domain.Message{}, fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Message{}, fmt.Errorf("commit append: %w", err)
	}

	return domain.Message{
		ID:             id,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      parseTime(ts),
	}, nil
}

// LoadHistory returns every message of a conversation in insertion order.
// An unknown conversation has an empty history.
func (s *SQLStore) LoadHistory(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := s.db.sql.QueryContext(ctx, s.db.rebind(
		`SELECT id, role, content, created_at FROM messages
		 WHERE conversation_id = ? ORDER BY id`), conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading history %s: %w", conversationID, err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		msg := domain.Message{ConversationID: conversationID}
		var ts string
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &ts); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.CreatedAt = parseTime(ts)
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// GetConversation returns a conversation, or nil if it does not exist.
func (s *SQLStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	var created, updated string
	err := s.db.sql.QueryRowContext(ctx, s.db.rebind(
		`SELECT created_at, updated_at FROM conversations WHERE id = ?`), id,
	).Scan(&created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation %s: %w", id, err)
	}
	return &domain.Conversation{ID: id, CreatedAt: parseTime(created), UpdatedAt: parseTime(updated)}, nil
}
