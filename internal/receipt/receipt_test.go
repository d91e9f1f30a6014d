package receipt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/event"
	"github.com/matheus3301/chatsync/internal/presence"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db  *store.DB
	reg *presence.Memory
	svc *Service
}

func newFixture(t *testing.T, users ...string) fixture {
	t.Helper()
	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Migrate()
	require.NoError(t, err)
	for _, id := range users {
		require.NoError(t, db.CreateUser(context.Background(), &chat.User{ID: id, FullName: id, Email: id + "@example.com"}))
	}
	reg := presence.NewMemory()
	return fixture{db: db, reg: reg, svc: NewService(db, reg, nil)}
}

func (f fixture) conversation(t *testing.T, a, b string) chat.Conversation {
	t.Helper()
	c, _, err := f.db.GetOrCreateConversation(context.Background(), a, b)
	require.NoError(t, err)
	return c
}

func (f fixture) send(t *testing.T, c chat.Conversation, from, text string) chat.Message {
	t.Helper()
	m := chat.Message{ConversationID: c.ID, SenderID: from, ReceiverID: c.Partner(from), Text: text}
	require.NoError(t, f.db.InsertMessage(context.Background(), &m))
	return m
}

func (f fixture) status(t *testing.T, id string) chat.Status {
	t.Helper()
	m, err := f.db.GetMessage(context.Background(), id)
	require.NoError(t, err)
	return m.Status
}

func (f fixture) connect(t *testing.T, userID string) {
	t.Helper()
	require.NoError(t, f.reg.Register(context.Background(), userID, presence.Handle{Instance: "test", ConnID: userID}))
}

func TestOfflineDeliveryPromotesOnConnect(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	c := f.conversation(t, "alice", "bob")
	f.connect(t, "alice")

	m := f.send(t, c, "alice", "hello")
	delivered, notices, err := f.svc.Deliver(ctx, m)
	require.NoError(t, err)
	assert.Empty(t, notices, "bob is offline")
	assert.Equal(t, chat.StatusSent, delivered.Status)
	assert.Equal(t, chat.StatusSent, f.status(t, m.ID))

	f.connect(t, "bob")
	notices, err = f.svc.SyncDelivered(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, chat.StatusDelivered, f.status(t, m.ID))
	require.Len(t, notices, 1)
	assert.Equal(t, "alice", notices[0].UserID)
	assert.Equal(t, event.MessageDelivered{ConversationID: c.ID}, notices[0].Payload)
}

func TestSyncDeliveredIdempotent(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	c := f.conversation(t, "alice", "bob")
	seen := f.send(t, c, "alice", "one")
	pending := f.send(t, c, "alice", "two")
	f.connect(t, "alice")

	_, err := f.db.AdvanceMessage(ctx, seen.ID, chat.StatusSent, chat.StatusDelivered)
	require.NoError(t, err)
	_, err = f.db.AdvanceMessage(ctx, seen.ID, chat.StatusDelivered, chat.StatusSeen)
	require.NoError(t, err)

	first, err := f.svc.SyncDelivered(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, first, 1)

	second, err := f.svc.SyncDelivered(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, second, "nothing left to promote")

	assert.Equal(t, chat.StatusSeen, f.status(t, seen.ID))
	assert.Equal(t, chat.StatusDelivered, f.status(t, pending.ID))
}

func TestDeliverToOnlineReceiver(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	c := f.conversation(t, "alice", "bob")
	f.connect(t, "bob")

	m := f.send(t, c, "alice", "hi")
	out, notices, err := f.svc.Deliver(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, chat.StatusDelivered, out.Status)
	assert.Equal(t, chat.StatusDelivered, f.status(t, m.ID))
	require.Len(t, notices, 1)
	assert.Equal(t, "bob", notices[0].UserID)
	pushed, ok := notices[0].Payload.(event.NewMessage)
	require.True(t, ok)
	assert.Equal(t, chat.StatusDelivered, pushed.Message.Status)
}

func TestMarkSeenScopedToConversation(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	ctx := context.Background()
	ab := f.conversation(t, "alice", "bob")
	cb := f.conversation(t, "carol", "bob")

	var fromAlice []chat.Message
	for i := 0; i < 3; i++ {
		fromAlice = append(fromAlice, f.send(t, ab, "alice", "m"))
	}
	other := f.send(t, cb, "carol", "elsewhere")

	f.connect(t, "bob")
	_, err := f.svc.SyncDelivered(ctx, "bob")
	require.NoError(t, err)

	f.connect(t, "alice")
	notices, err := f.svc.MarkSeen(ctx, "bob", ab.ID)
	require.NoError(t, err)
	for _, m := range fromAlice {
		assert.Equal(t, chat.StatusSeen, f.status(t, m.ID))
	}
	assert.Equal(t, chat.StatusDelivered, f.status(t, other.ID))
	require.Len(t, notices, 1)
	assert.Equal(t, "alice", notices[0].UserID)
	assert.Equal(t, event.MessagesSeen{ConversationID: ab.ID}, notices[0].Payload)

	// Repeating the signal changes nothing and notifies nobody.
	notices, err = f.svc.MarkSeen(ctx, "bob", ab.ID)
	require.NoError(t, err)
	assert.Empty(t, notices)
}

func TestMarkSeenRejectsOutsider(t *testing.T) {
	f := newFixture(t, "alice", "bob", "mallory")
	c := f.conversation(t, "alice", "bob")
	_, err := f.svc.MarkSeen(context.Background(), "mallory", c.ID)
	assert.ErrorIs(t, err, store.ErrNotParticipant)

	_, err = f.svc.MarkSeen(context.Background(), "bob", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSeenNeverSkipsDelivered(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	c := f.conversation(t, "alice", "bob")
	m := f.send(t, c, "alice", "still sent")

	_, err := f.svc.MarkSeen(context.Background(), "bob", c.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.StatusSent, f.status(t, m.ID))
}

func TestAnnounceOnlyWhenPartnerOnline(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	c := f.conversation(t, "alice", "bob")
	assert.Empty(t, f.svc.Announce(context.Background(), c, "alice"))

	f.connect(t, "bob")
	notices := f.svc.Announce(context.Background(), c, "alice")
	require.Len(t, notices, 1)
	assert.Equal(t, event.NewConversation{Conversation: c, SenderID: "alice"}, notices[0].Payload)
}
