package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/chat"
)

// GetOrCreateConversation returns the conversation between a and b, creating
// it on first contact. The bool reports whether it was created by this call.
func (db *DB) GetOrCreateConversation(ctx context.Context, a, b string) (chat.Conversation, bool, error) {
	if a == b {
		return chat.Conversation{}, false, ErrSameParticipant
	}
	pair := chat.Pair(a, b)
	res, err := db.exec(ctx, `
		INSERT INTO conversations (id, user_a, user_b, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_a, user_b) DO NOTHING`,
		uuid.Must(uuid.NewV7()).String(), pair[0], pair[1], millis(time.Now()))
	if err != nil {
		return chat.Conversation{}, false, fmt.Errorf("insert conversation: %w", err)
	}
	n, _ := res.RowsAffected()

	row := db.queryRow(ctx, `
		SELECT id, user_a, user_b, created_at FROM conversations
		WHERE user_a = ? AND user_b = ?`, pair[0], pair[1])
	c, err := scanConversation(row)
	if err != nil {
		return chat.Conversation{}, false, fmt.Errorf("get conversation: %w", err)
	}
	return c, n > 0, nil
}

// GetConversation returns a conversation by id or ErrNotFound.
func (db *DB) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	row := db.queryRow(ctx, `SELECT id, user_a, user_b, created_at FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Conversation{}, ErrNotFound
	}
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

// ListConversations returns every conversation userID participates in.
func (db *DB) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	rows, err := db.query(ctx, `
		SELECT id, user_a, user_b, created_at FROM conversations
		WHERE user_a = ? OR user_b = ?
		ORDER BY created_at, id`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var convs []chat.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func scanConversation(s rowScanner) (chat.Conversation, error) {
	var (
		c       chat.Conversation
		created int64
	)
	if err := s.Scan(&c.ID, &c.Participants[0], &c.Participants[1], &created); err != nil {
		return chat.Conversation{}, err
	}
	c.CreatedAt = fromMillis(created)
	return c, nil
}
