package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/matheus3301/chatsync/internal/chat"
)

// Sidebar returns every other user with the conversation shared with userID
// and its last message, newest conversation first.
func (db *DB) Sidebar(ctx context.Context, userID string) ([]chat.SidebarEntry, error) {
	rows, err := db.query(ctx, `
		SELECT u.id, u.full_name, u.email, u.profile_pic, u.last_seen, u.created_at,
			c.id, lm.text, lm.image, lm.sender_id, lm.created_at
		FROM users u
		LEFT JOIN conversations c
			ON (c.user_a = ? AND c.user_b = u.id) OR (c.user_b = ? AND c.user_a = u.id)
		LEFT JOIN messages lm ON lm.id = (
			SELECT m.id FROM messages m
			WHERE m.conversation_id = c.id
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT 1)
		WHERE u.id <> ?
		ORDER BY u.full_name, u.id`, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("sidebar: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []chat.SidebarEntry
	for rows.Next() {
		var (
			e        chat.SidebarEntry
			lastSeen sql.NullInt64
			created  int64
			convID   sql.NullString
			text     sql.NullString
			image    sql.NullString
			sender   sql.NullString
			lmAt     sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.FullName, &e.Email, &e.ProfilePic, &lastSeen, &created,
			&convID, &text, &image, &sender, &lmAt); err != nil {
			return nil, fmt.Errorf("scan sidebar: %w", err)
		}
		e.CreatedAt = fromMillis(created)
		if lastSeen.Valid {
			t := fromMillis(lastSeen.Int64)
			e.LastSeen = &t
		}
		e.ConversationID = convID.String
		if lmAt.Valid {
			lm := chat.Summarize(chat.Message{
				SenderID:  sender.String,
				Text:      text.String,
				Image:     image.String,
				CreatedAt: fromMillis(lmAt.Int64),
			})
			e.LastMessage = &lm
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return chat.SortSidebar(entries), nil
}
