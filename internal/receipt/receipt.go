// Package receipt advances message delivery and read status on the server
// and decides who must be told about it.
package receipt

import (
	"context"
	"fmt"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/event"
	"github.com/matheus3301/chatsync/internal/presence"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

// Notice is an event to push to one user.
type Notice struct {
	UserID  string
	Payload event.Payload
}

// Service owns the sent -> delivered -> seen transitions. Every method is
// safe to repeat: bulk updates only touch rows still in the source state.
type Service struct {
	store    store.Repository
	presence presence.Registry
	logger   *zap.Logger
}

func NewService(st store.Repository, reg presence.Registry, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, presence: reg, logger: logger}
}

func (s *Service) online(ctx context.Context, userID string) bool {
	_, ok, err := s.presence.Lookup(ctx, userID)
	if err != nil {
		s.logger.Warn("presence lookup failed", zap.String("user", userID), zap.Error(err))
		return false
	}
	return ok
}

// SyncDelivered runs when userID connects. Every message addressed to them
// still in sent moves to delivered, and each sender that is online learns
// about it once per conversation.
func (s *Service) SyncDelivered(ctx context.Context, userID string) ([]Notice, error) {
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	var notices []Notice
	for _, c := range convs {
		n, err := s.store.AdvanceStatus(ctx, c.ID, userID, chat.StatusSent, chat.StatusDelivered)
		if err != nil {
			return notices, err
		}
		if n == 0 {
			continue
		}
		partner := c.Partner(userID)
		s.logger.Debug("messages delivered on connect",
			zap.String("conversation", c.ID), zap.Int64("count", n))
		if s.online(ctx, partner) {
			notices = append(notices, Notice{UserID: partner, Payload: event.MessageDelivered{ConversationID: c.ID}})
		}
	}
	return notices, nil
}

// MarkSeen marks everything viewerID has received in the conversation as
// seen. Only delivered messages move; the partner is notified when online.
func (s *Service) MarkSeen(ctx context.Context, viewerID, conversationID string) ([]Notice, error) {
	c, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !c.Has(viewerID) {
		return nil, store.ErrNotParticipant
	}
	n, err := s.store.AdvanceStatus(ctx, c.ID, viewerID, chat.StatusDelivered, chat.StatusSeen)
	if err != nil {
		return nil, err
	}
	partner := c.Partner(viewerID)
	if n == 0 || !s.online(ctx, partner) {
		return nil, nil
	}
	return []Notice{{UserID: partner, Payload: event.MessagesSeen{ConversationID: c.ID}}}, nil
}

// Deliver handles a freshly persisted message. When the receiver is online
// the message moves to delivered before it is pushed, so the pushed copy
// carries the delivered status.
func (s *Service) Deliver(ctx context.Context, m chat.Message) (chat.Message, []Notice, error) {
	if !s.online(ctx, m.ReceiverID) {
		return m, nil, nil
	}
	ok, err := s.store.AdvanceMessage(ctx, m.ID, chat.StatusSent, chat.StatusDelivered)
	if err != nil {
		return m, nil, err
	}
	if ok {
		m, _ = chat.Advance(m, chat.StatusDelivered)
	}
	return m, []Notice{{UserID: m.ReceiverID, Payload: event.NewMessage{Message: m}}}, nil
}

// Announce tells the partner about a conversation initiator just created.
func (s *Service) Announce(ctx context.Context, c chat.Conversation, initiatorID string) []Notice {
	partner := c.Partner(initiatorID)
	if !s.online(ctx, partner) {
		return nil
	}
	return []Notice{{UserID: partner, Payload: event.NewConversation{Conversation: c, SenderID: initiatorID}}}
}
