package hub

import (
	"context"
	"errors"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/event"
	"github.com/matheus3301/chatsync/internal/receipt"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

var errNotViewing = errors.New("conversation not joined on this connection")

// handleEvent processes one client signal. Nothing a client sends may take
// the worker down: bad frames are logged and dropped.
func (h *Hub) handleEvent(c *conn, env event.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic handling event", zap.String("event", env.Event), zap.Any("panic", r))
		}
	}()

	p, err := event.Decode(env)
	if err != nil {
		c.logger.Warn("dropping client event", zap.String("event", env.Event), zap.Error(err))
		return
	}

	ctx := c.ctx
	switch p := p.(type) {
	case event.JoinConversation:
		if _, err = h.participant(ctx, c.userID, p.ConversationID); err == nil {
			c.join(p.ConversationID)
		}
	case event.LeaveConversation:
		c.leave(p.ConversationID)
	case event.Typing:
		c.setTyping(p.ConversationID, true)
		if err = h.relayTyping(ctx, c.userID, p.ConversationID, true); err != nil {
			c.setTyping(p.ConversationID, false)
		}
	case event.StopTyping:
		err = h.relayTyping(ctx, c.userID, p.ConversationID, false)
		c.setTyping(p.ConversationID, false)
	case event.SeenMessage:
		if !c.viewing(p.ConversationID) {
			err = errNotViewing
			break
		}
		var notices []receipt.Notice
		notices, err = h.receipts.MarkSeen(ctx, c.userID, p.ConversationID)
		h.Notify(ctx, notices...)
	default:
		c.logger.Warn("dropping server-only event from client", zap.String("event", env.Event))
		return
	}
	if err != nil {
		c.logger.Warn("client event rejected", zap.String("event", env.Event), zap.Error(err))
	}
}

// participant resolves a conversation and checks userID belongs to it.
func (h *Hub) participant(ctx context.Context, userID, conversationID string) (chat.Conversation, error) {
	conv, err := h.conversation(ctx, conversationID)
	if err != nil {
		return chat.Conversation{}, err
	}
	if !conv.Has(userID) {
		return chat.Conversation{}, store.ErrNotParticipant
	}
	return conv, nil
}

// relayTyping forwards a typing signal to the other participant only. The
// sender id is always the authenticated user, whatever the client claimed.
func (h *Hub) relayTyping(ctx context.Context, userID, conversationID string, typing bool) error {
	conv, err := h.participant(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	var p event.Payload = event.UserStoppedTyping{SenderID: userID, ConversationID: conv.ID}
	if typing {
		p = event.UserTyping{SenderID: userID, ConversationID: conv.ID}
	}
	return h.Push(ctx, conv.Partner(userID), p)
}
