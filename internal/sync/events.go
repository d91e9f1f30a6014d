package sync

import (
	"context"
	"fmt"
	"slices"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/event"
	"github.com/matheus3301/chatsync/internal/remote"
	"go.uber.org/zap"
)

// HandleEvent applies one push channel event. It never panics: a handler
// failure is logged and the event dropped.
func (c *Coordinator) HandleEvent(ctx context.Context, evt bus.Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("push handler panicked",
				zap.String("kind", evt.Kind),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	if evt.Kind == bus.KindPushClosed {
		closed, _ := evt.Payload.(remote.Closed)
		c.onClosed(ctx, closed)
		return
	}

	c.mu.Lock()
	applied := c.applyLocked(evt.Payload)
	c.mu.Unlock()

	if !applied {
		c.logger.Debug("push event ignored", zap.String("kind", evt.Kind))
		return
	}
	c.changed()
}

func (c *Coordinator) applyLocked(payload any) bool {
	self := c.opts.UserID
	switch p := payload.(type) {
	case event.OnlineUsers:
		online := slices.Clone(p.UserIDs)
		slices.Sort(online)
		c.online = slices.Compact(online)
		// A partner that dropped mid-burst never sends its stop signal.
		c.typingSet = c.typingSet.Retain(func(u string) bool {
			_, ok := slices.BinarySearch(c.online, u)
			return ok
		})

	case event.NewMessage:
		m := p.Message
		if m.ID == "" {
			return false
		}
		m.Temporary = false
		if msgs, ok := c.knownMessagesLocked(m.ConversationID); ok {
			if next, added := chat.AppendUnique(msgs, m); added {
				c.setMessagesLocked(m.ConversationID, next)
			}
		}
		c.applySidebarLocked(m)

	case event.NewConversation:
		partner := p.Conversation.Partner(self)
		if p.SenderID != self {
			partner = p.SenderID
		}
		c.byPartner = c.byPartner.Put(partner, p.Conversation)
		c.attachConversationLocked(partner, p.Conversation.ID)

	case event.MessageDelivered:
		return c.promoteLocked(p.ConversationID, chat.StatusDelivered)

	case event.MessagesSeen:
		return c.promoteLocked(p.ConversationID, chat.StatusSeen)

	case event.UserTyping:
		if p.SenderID == self {
			return false
		}
		c.typingSet = c.typingSet.Add(p.ConversationID, p.SenderID)

	case event.UserStoppedTyping:
		c.typingSet = c.typingSet.Remove(p.ConversationID, p.SenderID)

	default:
		return false
	}
	return true
}

// knownMessagesLocked returns the message list of conv when it is active
// or cached. Unknown conversations are fetched when opened.
func (c *Coordinator) knownMessagesLocked(conv string) ([]chat.Message, bool) {
	if conv == c.active {
		return c.messages, true
	}
	state, ok := c.byConv.Get(conv)
	return state.Messages, ok
}

// promoteLocked walks messages sent by the user in conv forward one step at
// a time until they reach to. Messages already past a step are untouched.
func (c *Coordinator) promoteLocked(conv string, to chat.Status) bool {
	msgs, ok := c.knownMessagesLocked(conv)
	if !ok {
		return false
	}
	total := 0
	steps := []chat.Status{chat.StatusSent, chat.StatusDelivered, chat.StatusSeen}
	for i := 0; i+1 < len(steps) && steps[i].Rank() < to.Rank(); i++ {
		var n int
		msgs, n = chat.Promote(msgs, c.opts.UserID, steps[i], steps[i+1])
		total += n
	}
	if total == 0 {
		return false
	}
	c.setMessagesLocked(conv, msgs)
	return true
}

func (c *Coordinator) attachConversationLocked(partnerID, conv string) {
	next := chat.ApplyConversation(c.sidebar, partnerID, conv)
	if len(next) == 0 {
		return
	}
	c.sidebar = next
	c.sidebarCache = c.sidebarCache.Put(c.opts.UserID, next)
}
