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

// CreateUser inserts a user, assigning an id and creation time when unset.
func (db *DB) CreateUser(ctx context.Context, u *chat.User) error {
	if u.ID == "" {
		u.ID = uuid.Must(uuid.NewV7()).String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	_, err := db.exec(ctx, `
		INSERT INTO users (id, full_name, email, profile_pic, last_seen, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.FullName, u.Email, u.ProfilePic, nullMillis(u.LastSeen), millis(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser returns a user by id or ErrNotFound.
func (db *DB) GetUser(ctx context.Context, id string) (chat.User, error) {
	row := db.queryRow(ctx, `
		SELECT id, full_name, email, profile_pic, last_seen, created_at
		FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.User{}, ErrNotFound
	}
	if err != nil {
		return chat.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ListUsers returns every user ordered by name.
func (db *DB) ListUsers(ctx context.Context) ([]chat.User, error) {
	rows, err := db.query(ctx, `
		SELECT id, full_name, email, profile_pic, last_seen, created_at
		FROM users ORDER BY full_name, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []chat.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetLastSeen stores the user's last-seen time. A nil time marks the user
// as currently online.
func (db *DB) SetLastSeen(ctx context.Context, userID string, at *time.Time) error {
	_, err := db.exec(ctx, `UPDATE users SET last_seen = ? WHERE id = ?`, nullMillis(at), userID)
	if err != nil {
		return fmt.Errorf("set last seen: %w", err)
	}
	return nil
}

// ConsumeReply spends one reply suggestion from the user's quota and returns
// the updated count.
func (db *DB) ConsumeReply(ctx context.Context, userID string, quota int) (int, error) {
	res, err := db.exec(ctx, `
		UPDATE users SET ai_replies_used = ai_replies_used + 1
		WHERE id = ? AND ai_replies_used < ?`, userID, quota)
	if err != nil {
		return 0, fmt.Errorf("consume reply: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("consume reply: %w", err)
	}

	var used int
	err = db.queryRow(ctx, `SELECT ai_replies_used FROM users WHERE id = ?`, userID).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read reply count: %w", err)
	}
	if n == 0 {
		return used, ErrQuotaExceeded
	}
	return used, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (chat.User, error) {
	var (
		u        chat.User
		lastSeen sql.NullInt64
		created  int64
	)
	if err := s.Scan(&u.ID, &u.FullName, &u.Email, &u.ProfilePic, &lastSeen, &created); err != nil {
		return chat.User{}, err
	}
	u.CreatedAt = fromMillis(created)
	if lastSeen.Valid {
		t := fromMillis(lastSeen.Int64)
		u.LastSeen = &t
	}
	return u, nil
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: millis(*t), Valid: true}
}
