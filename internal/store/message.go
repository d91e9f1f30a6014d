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

// InsertMessage persists m with status sent. The id and creation time are
// assigned by the store unless already set.
func (db *DB) InsertMessage(ctx context.Context, m *chat.Message) error {
	if m.ID == "" {
		m.ID = uuid.Must(uuid.NewV7()).String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	m.Status = chat.StatusSent
	m.Temporary = false
	_, err := db.exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, text, image, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.SenderID, m.ReceiverID, m.Text, m.Image, m.Status, millis(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessage returns a message by id or ErrNotFound.
func (db *DB) GetMessage(ctx context.Context, id string) (chat.Message, error) {
	row := db.queryRow(ctx, `
		SELECT id, conversation_id, sender_id, receiver_id, text, image, status, created_at
		FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Message{}, ErrNotFound
	}
	if err != nil {
		return chat.Message{}, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// ListMessagesDesc returns one page of a conversation, newest first, using a
// skip/limit cursor.
func (db *DB) ListMessagesDesc(ctx context.Context, conversationID string, skip, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 10
	}
	if skip < 0 {
		skip = 0
	}
	rows, err := db.query(ctx, `
		SELECT id, conversation_id, sender_id, receiver_id, text, image, status, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, conversationID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []chat.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// AdvanceStatus moves every message of a conversation addressed to
// receiverID from one status to the next in a single conditional update.
// Rows already past from are left alone, so repeating it is harmless.
func (db *DB) AdvanceStatus(ctx context.Context, conversationID, receiverID string, from, to chat.Status) (int64, error) {
	if err := chat.Transition(from, to); err != nil {
		return 0, err
	}
	res, err := db.exec(ctx, `
		UPDATE messages SET status = ?
		WHERE conversation_id = ? AND receiver_id = ? AND status = ?`,
		to, conversationID, receiverID, from)
	if err != nil {
		return 0, fmt.Errorf("advance status: %w", err)
	}
	return res.RowsAffected()
}

// AdvanceMessage moves a single message from one status to the next.
func (db *DB) AdvanceMessage(ctx context.Context, id string, from, to chat.Status) (bool, error) {
	if err := chat.Transition(from, to); err != nil {
		return false, err
	}
	res, err := db.exec(ctx, `UPDATE messages SET status = ? WHERE id = ? AND status = ?`, to, id, from)
	if err != nil {
		return false, fmt.Errorf("advance message: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func scanMessage(s rowScanner) (chat.Message, error) {
	var (
		m       chat.Message
		status  string
		created int64
	)
	if err := s.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.Text, &m.Image, &status, &created); err != nil {
		return chat.Message{}, err
	}
	m.Status = chat.Status(status)
	m.CreatedAt = fromMillis(created)
	return m, nil
}
