package store

import (
	"context"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
)

// Repository is the persistence surface of the chat server. DB implements it
// over SQL and mongostore over a document database.
type Repository interface {
	CreateUser(ctx context.Context, u *chat.User) error
	GetUser(ctx context.Context, id string) (chat.User, error)
	ListUsers(ctx context.Context) ([]chat.User, error)
	SetLastSeen(ctx context.Context, userID string, at *time.Time) error
	ConsumeReply(ctx context.Context, userID string, quota int) (int, error)

	GetOrCreateConversation(ctx context.Context, a, b string) (chat.Conversation, bool, error)
	GetConversation(ctx context.Context, id string) (chat.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error)

	InsertMessage(ctx context.Context, m *chat.Message) error
	GetMessage(ctx context.Context, id string) (chat.Message, error)
	ListMessagesDesc(ctx context.Context, conversationID string, skip, limit int) ([]chat.Message, error)
	AdvanceStatus(ctx context.Context, conversationID, receiverID string, from, to chat.Status) (int64, error)
	AdvanceMessage(ctx context.Context, id string, from, to chat.Status) (bool, error)

	Sidebar(ctx context.Context, userID string) ([]chat.SidebarEntry, error)

	Health(ctx context.Context) error
	Close() error
}

var _ Repository = (*DB)(nil)

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
