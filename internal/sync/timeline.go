package sync

import (
	"slices"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/outbox"
)

func outboxRequest(self, conv, receiver, text, image string) outbox.Request {
	return outbox.Request{
		ConversationID: conv,
		SenderID:       self,
		ReceiverID:     receiver,
		Text:           text,
		Image:          image,
	}
}

// timeline lets the send pipeline write into the coordinator.
type timeline struct{ c *Coordinator }

func (t timeline) Echo(m chat.Message) {
	c := t.c
	c.mu.Lock()
	msgs := append(slices.Clone(c.messagesLocked(m.ConversationID)), m)
	c.setMessagesLocked(m.ConversationID, msgs)
	c.applySidebarLocked(m)
	c.mu.Unlock()
	c.changed()
}

func (t timeline) Commit(localID string, m chat.Message) {
	c := t.c
	c.mu.Lock()
	msgs, _ := chat.AppendUnique(chat.WithoutEcho(c.messagesLocked(m.ConversationID), localID), m)
	c.setMessagesLocked(m.ConversationID, msgs)
	c.applySidebarLocked(m)
	c.mu.Unlock()
	c.changed()
}

func (t timeline) Discard(conv, localID string) {
	c := t.c
	c.mu.Lock()
	c.setMessagesLocked(conv, chat.WithoutEcho(c.messagesLocked(conv), localID))
	c.mu.Unlock()
	c.changed()
}

// messagesLocked returns the messages of conv from the view when active,
// otherwise from the cache.
func (c *Coordinator) messagesLocked(conv string) []chat.Message {
	if conv == c.active {
		return c.messages
	}
	state, _ := c.byConv.Get(conv)
	return state.Messages
}

func (c *Coordinator) applySidebarLocked(m chat.Message) {
	if len(c.sidebar) == 0 {
		return
	}
	c.sidebar = chat.ApplyMessage(c.sidebar, m, c.opts.UserID)
	c.sidebarCache = c.sidebarCache.Put(c.opts.UserID, c.sidebar)
}
