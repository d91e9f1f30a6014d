// Package mongostore implements store.Repository on MongoDB, the document
// model the chat data was originally kept in.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 10 * time.Second
)

type userDoc struct {
	ID            string `bson:"_id"`
	FullName      string `bson:"full_name"`
	Email         string `bson:"email"`
	ProfilePic    string `bson:"profile_pic"`
	LastSeen      *int64 `bson:"last_seen"`
	AIRepliesUsed int    `bson:"ai_replies_used"`
	CreatedAt     int64  `bson:"created_at"`
}

type conversationDoc struct {
	ID        string `bson:"_id"`
	UserA     string `bson:"user_a"`
	UserB     string `bson:"user_b"`
	CreatedAt int64  `bson:"created_at"`
}

type messageDoc struct {
	ID             string `bson:"_id"`
	ConversationID string `bson:"conversation_id"`
	SenderID       string `bson:"sender_id"`
	ReceiverID     string `bson:"receiver_id"`
	Text           string `bson:"text"`
	Image          string `bson:"image"`
	Status         string `bson:"status"`
	CreatedAt      int64  `bson:"created_at"`
}

// Store is a MongoDB backed repository.
type Store struct {
	client   *mongo.Client
	users    *mongo.Collection
	convs    *mongo.Collection
	messages *mongo.Collection
	logger   *zap.Logger
}

var _ store.Repository = (*Store)(nil)

// Open connects to uri, selects database and ensures indexes.
func Open(ctx context.Context, uri, database string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(ctx, defaultReadTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:   client,
		users:    db.Collection("users"),
		convs:    db.Collection("conversations"),
		messages: db.Collection("messages"),
		logger:   logger,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("users index: %w", err)
	}
	if _, err := s.convs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_a", Value: 1}, {Key: "user_b", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("conversations index: %w", err)
	}
	if _, err := s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "status", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("messages index: %w", err)
	}
	return nil
}

// ensureTimeout applies d unless ctx already carries a deadline.
func ensureTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) CreateUser(ctx context.Context, u *chat.User) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()
	if u.ID == "" {
		u.ID = uuid.Must(uuid.NewV7()).String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	doc := userDoc{
		ID: u.ID, FullName: u.FullName, Email: u.Email, ProfilePic: u.ProfilePic,
		CreatedAt: u.CreatedAt.UnixMilli(),
	}
	if u.LastSeen != nil {
		ms := u.LastSeen.UnixMilli()
		doc.LastSeen = &ms
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (chat.User, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()
	var doc userDoc
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return chat.User{}, notFound(err)
	}
	return doc.toUser(), nil
}

func (s *Store) ListUsers(ctx context.Context) ([]chat.User, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()
	cur, err := s.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "full_name", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	users := make([]chat.User, len(docs))
	for i, d := range docs {
		users[i] = d.toUser()
	}
	return users, nil
}

func (s *Store) SetLastSeen(ctx context.Context, userID string, at *time.Time) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()
	var value any
	if at != nil {
		value = at.UnixMilli()
	}
	if _, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{"last_seen": value}}); err != nil {
		return fmt.Errorf("set last seen: %w", err)
	}
	return nil
}

func (s *Store) ConsumeReply(ctx context.Context, userID string, quota int) (int, error) {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()
	var doc userDoc
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": userID, "ai_replies_used": bson.M{"$lt": quota}},
		bson.M{"$inc": bson.M{"ai_replies_used": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.AIRepliesUsed, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, fmt.Errorf("consume reply: %w", err)
	}
	if err := s.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc); err != nil {
		return 0, notFound(err)
	}
	return doc.AIRepliesUsed, store.ErrQuotaExceeded
}

func (s *Store) GetOrCreateConversation(ctx context.Context, a, b string) (chat.Conversation, bool, error) {
	if a == b {
		return chat.Conversation{}, false, store.ErrSameParticipant
	}
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()
	pair := chat.Pair(a, b)
	filter := bson.M{"user_a": pair[0], "user_b": pair[1]}
	res, err := s.convs.UpdateOne(ctx, filter, bson.M{"$setOnInsert": bson.M{
		"_id":        uuid.Must(uuid.NewV7()).String(),
		"created_at": time.Now().UnixMilli(),
	}}, options.Update().SetUpsert(true))
	if err != nil {
		return chat.Conversation{}, false, fmt.Errorf("upsert conversation: %w", err)
	}
	var doc conversationDoc
	if err := s.convs.FindOne(ctx, filter).Decode(&doc); err != nil {
		return chat.Conversation{}, false, fmt.Errorf("get conversation: %w", err)
	}
	return doc.toConversation(), res.UpsertedCount > 0, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()
	var doc conversationDoc
	if err := s.convs.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return chat.Conversation{}, notFound(err)
	}
	return doc.toConversation(), nil
}

func (s *Store) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()
	filter := bson.M{"$or": bson.A{bson.M{"user_a": userID}, bson.M{"user_b": userID}}}
	cur, err := s.convs.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	var docs []conversationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	convs := make([]chat.Conversation, len(docs))
	for i, d := range docs {
		convs[i] = d.toConversation()
	}
	return convs, nil
}

func (s *Store) InsertMessage(ctx context.Context, m *chat.Message) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()
	if m.ID == "" {
		m.ID = uuid.Must(uuid.NewV7()).String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	m.Status = chat.StatusSent
	m.Temporary = false
	if _, err := s.messages.InsertOne(ctx, fromMessage(*m)); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (chat.Message, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()
	var doc messageDoc
	if err := s.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return chat.Message{}, notFound(err)
	}
	return doc.toMessage(), nil
}

func (s *Store) ListMessagesDesc(ctx context.Context, conversationID string, skip, limit int) ([]chat.Message, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()
	if limit <= 0 {
		limit = 10
	}
	if skip < 0 {
		skip = 0
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))
	cur, err := s.messages.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	msgs := make([]chat.Message, len(docs))
	for i, d := range docs {
		msgs[i] = d.toMessage()
	}
	return msgs, nil
}

func (s *Store) AdvanceStatus(ctx context.Context, conversationID, receiverID string, from, to chat.Status) (int64, error) {
	if err := chat.Transition(from, to); err != nil {
		return 0, err
	}
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()
	res, err := s.messages.UpdateMany(ctx,
		bson.M{"conversation_id": conversationID, "receiver_id": receiverID, "status": string(from)},
		bson.M{"$set": bson.M{"status": string(to)}})
	if err != nil {
		return 0, fmt.Errorf("advance status: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *Store) AdvanceMessage(ctx context.Context, id string, from, to chat.Status) (bool, error) {
	if err := chat.Transition(from, to); err != nil {
		return false, err
	}
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()
	res, err := s.messages.UpdateOne(ctx,
		bson.M{"_id": id, "status": string(from)},
		bson.M{"$set": bson.M{"status": string(to)}})
	if err != nil {
		return false, fmt.Errorf("advance message: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

func (s *Store) Sidebar(ctx context.Context, userID string) ([]chat.SidebarEntry, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	cur, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$ne": userID}},
		options.Find().SetSort(bson.D{{Key: "full_name", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("sidebar users: %w", err)
	}
	var users []userDoc
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode sidebar users: %w", err)
	}

	convs, err := s.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	byPartner := make(map[string]string, len(convs))
	for _, c := range convs {
		byPartner[c.Partner(userID)] = c.ID
	}

	entries := make([]chat.SidebarEntry, 0, len(users))
	for _, u := range users {
		e := chat.SidebarEntry{User: u.toUser(), ConversationID: byPartner[u.ID]}
		if e.ConversationID != "" {
			var last messageDoc
			err := s.messages.FindOne(ctx, bson.M{"conversation_id": e.ConversationID},
				options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}),
			).Decode(&last)
			switch {
			case err == nil:
				lm := chat.Summarize(last.toMessage())
				e.LastMessage = &lm
			case !errors.Is(err, mongo.ErrNoDocuments):
				return nil, fmt.Errorf("sidebar last message: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return chat.SortSidebar(entries), nil
}

func (s *Store) Health(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes every collection. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	for _, c := range []*mongo.Collection{s.users, s.convs, s.messages} {
		if err := c.Drop(ctx); err != nil {
			return err
		}
	}
	return s.ensureIndexes(ctx)
}

func (d userDoc) toUser() chat.User {
	u := chat.User{
		ID: d.ID, FullName: d.FullName, Email: d.Email, ProfilePic: d.ProfilePic,
		CreatedAt: time.UnixMilli(d.CreatedAt).UTC(),
	}
	if d.LastSeen != nil {
		t := time.UnixMilli(*d.LastSeen).UTC()
		u.LastSeen = &t
	}
	return u
}

func (d conversationDoc) toConversation() chat.Conversation {
	return chat.Conversation{
		ID:           d.ID,
		Participants: [2]string{d.UserA, d.UserB},
		CreatedAt:    time.UnixMilli(d.CreatedAt).UTC(),
	}
}

func fromMessage(m chat.Message) messageDoc {
	return messageDoc{
		ID: m.ID, ConversationID: m.ConversationID, SenderID: m.SenderID, ReceiverID: m.ReceiverID,
		Text: m.Text, Image: m.Image, Status: string(m.Status), CreatedAt: m.CreatedAt.UnixMilli(),
	}
}

func (d messageDoc) toMessage() chat.Message {
	return chat.Message{
		ID: d.ID, ConversationID: d.ConversationID, SenderID: d.SenderID, ReceiverID: d.ReceiverID,
		Text: d.Text, Image: d.Image, Status: chat.Status(d.Status), CreatedAt: time.UnixMilli(d.CreatedAt).UTC(),
	}
}
