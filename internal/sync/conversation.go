package sync

import (
	"context"
	"fmt"
	"slices"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/event"
	"github.com/matheus3301/chatsync/internal/history"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/suggest"
	"go.uber.org/zap"
)

// LoadSidebar returns the contact list, from cache unless refresh is set.
func (c *Coordinator) LoadSidebar(ctx context.Context, refresh bool) ([]chat.SidebarEntry, error) {
	self := c.opts.UserID
	if !refresh {
		c.mu.Lock()
		cached, ok := c.sidebarCache.Get(self)
		if ok {
			c.sidebar = cached
		}
		c.mu.Unlock()
		if ok {
			c.changed()
			return cached, nil
		}
	}

	entries, err := c.api.Sidebar(ctx)
	if err != nil {
		c.fail("load sidebar", err)
		return nil, err
	}
	entries = chat.SortSidebar(entries)

	c.mu.Lock()
	c.sidebar = entries
	c.sidebarCache = c.sidebarCache.Put(self, entries)
	c.mu.Unlock()
	c.changed()
	return entries, nil
}

// OpenConversation makes the conversation with partnerID the active one,
// creating it on the server if needed, and loads its newest page.
func (c *Coordinator) OpenConversation(ctx context.Context, partnerID string) error {
	c.typing.Stop()

	c.mu.Lock()
	c.gen++
	gen := c.gen
	previous := c.active
	c.partner = c.contactLocked(partnerID)
	c.active = ""
	c.messages = nil
	c.page = 0
	c.hasMore = false
	c.loading = true
	c.loadingMore = false
	c.seenSent = make(map[string]struct{})
	conv, cached := c.byPartner.Get(partnerID)
	c.mu.Unlock()
	c.changed()

	if previous != "" {
		c.emit(event.LeaveConversation{ConversationID: previous})
	}

	if !cached {
		res, err := c.api.Conversation(ctx, partnerID)
		if err != nil {
			c.abortLoad(gen)
			c.fail("open conversation", err)
			return err
		}
		conv = res.Conversation
		c.mu.Lock()
		c.byPartner = c.byPartner.Put(partnerID, conv)
		if res.SelectedUser.ID != "" && c.gen == gen {
			c.partner = res.SelectedUser
		}
		if res.Created {
			c.attachConversationLocked(partnerID, conv.ID)
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.logger.Debug("dropping stale conversation lookup", zap.String("partner", partnerID))
		return nil
	}
	c.active = conv.ID
	state, hit := c.byConv.Get(conv.ID)
	if hit {
		c.applyConvLocked(state)
		c.loading = false
	}
	c.mu.Unlock()

	c.emit(event.JoinConversation{ConversationID: conv.ID})
	if hit {
		c.changed()
		return nil
	}

	page, err := c.loader.LoadInitial(ctx, conv.ID)
	if err != nil {
		c.abortLoad(gen)
		c.fail("load history", err)
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.logger.Debug("dropping stale history page", zap.String("conversation_id", conv.ID))
		return nil
	}
	state = convState{Messages: page.Messages, Page: page.CurrentPage, HasMore: page.HasMore}
	// Pushes that arrived while loading are kept.
	for _, m := range c.messages {
		state.Messages, _ = chat.AppendUnique(state.Messages, m)
	}
	c.byConv = c.byConv.Put(conv.ID, state)
	c.applyConvLocked(state)
	c.loading = false
	c.mu.Unlock()

	c.changed()
	return nil
}

// LoadMore fetches the next older page of the active conversation.
func (c *Coordinator) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if c.active == "" || !c.hasMore || c.loadingMore || c.loading {
		c.mu.Unlock()
		return nil
	}
	gen, conv, current := c.gen, c.active, c.page
	c.loadingMore = true
	c.mu.Unlock()
	c.changed()

	page, err := c.loader.LoadMore(ctx, conv, current, nil)
	if err != nil {
		c.abortLoad(gen)
		c.fail("load more", err)
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		// The user moved on; keep the page only if the cache still holds
		// the conversation it extends.
		if cached, ok := c.byConv.Get(conv); ok && cached.Page == current {
			c.byConv = c.byConv.Put(conv, convState{
				Messages: history.Prepend(cached.Messages, page.Messages),
				Page:     page.CurrentPage,
				HasMore:  page.HasMore,
			})
		}
		c.mu.Unlock()
		return nil
	}
	state := convState{
		Messages: history.Prepend(c.messages, page.Messages),
		Page:     page.CurrentPage,
		HasMore:  page.HasMore,
	}
	c.byConv = c.byConv.Put(conv, state)
	c.applyConvLocked(state)
	c.loadingMore = false
	c.mu.Unlock()

	c.changed()
	return nil
}

// MessageVisible reports that ratio of messageID is on screen. When the
// newest message of the active conversation, written by the partner,
// becomes visible enough, a seen signal is sent once for it.
func (c *Coordinator) MessageVisible(messageID string, ratio float64) {
	if ratio < c.opts.SeenThreshold {
		return
	}

	c.mu.Lock()
	conv := c.active
	newest := -1
	for i := len(c.messages) - 1; i >= 0; i-- {
		if !c.messages[i].Temporary {
			newest = i
			break
		}
	}
	if conv == "" || newest < 0 {
		c.mu.Unlock()
		return
	}
	m := c.messages[newest]
	if m.ID != messageID || m.SenderID == c.opts.UserID || m.Status == chat.StatusSeen {
		c.mu.Unlock()
		return
	}
	if _, done := c.seenSent[messageID]; done {
		c.mu.Unlock()
		return
	}
	c.seenSent[messageID] = struct{}{}
	msgs := c.messages
	msgs, _ = chat.Promote(msgs, m.SenderID, chat.StatusSent, chat.StatusDelivered)
	msgs, _ = chat.Promote(msgs, m.SenderID, chat.StatusDelivered, chat.StatusSeen)
	c.setMessagesLocked(conv, msgs)
	c.mu.Unlock()

	c.emit(event.SeenMessage{ConversationID: conv})
	c.changed()
}

// GenerateReplies returns reply suggestions for messageID in the active
// conversation. Cached suggestions are reused unless regenerate is set.
func (c *Coordinator) GenerateReplies(ctx context.Context, messageID string, regenerate bool) (suggest.Replies, error) {
	c.mu.Lock()
	conv := c.active
	key := suggest.Key(conv, messageID)
	cached, ok := c.replies.Get(key)
	c.mu.Unlock()
	if conv == "" {
		return suggest.Replies{}, fmt.Errorf("generate replies: no open conversation")
	}
	if ok && !regenerate {
		return cached, nil
	}

	replies, err := c.api.GenerateReplies(ctx, conv, messageID)
	if err != nil {
		switch {
		case remote.IsNotFound(err):
			err = fmt.Errorf("message no longer exists: %w", err)
		case remote.IsQuotaExceeded(err):
			err = fmt.Errorf("reply suggestion limit reached: %w", err)
		}
		c.fail("generate replies", err)
		return suggest.Replies{}, err
	}

	c.mu.Lock()
	c.replies = c.replies.Put(key, replies)
	c.mu.Unlock()
	return replies, nil
}

// Send sends text and/or image to the partner of the active conversation.
func (c *Coordinator) Send(ctx context.Context, text, image string) error {
	c.mu.Lock()
	req := outboxRequest(c.opts.UserID, c.active, c.partner.ID, text, image)
	c.mu.Unlock()
	err := c.outbox.Send(ctx, req)
	if remote.IsUnauthenticated(err) {
		c.Logout()
	}
	return err
}

// Keystroke reports the composer contents after an edit.
func (c *Coordinator) Keystroke(text string) {
	c.mu.Lock()
	conv := c.active
	c.mu.Unlock()
	if conv == "" {
		return
	}
	c.typing.Keystroke(conv, text)
}

// Blur reports that the composer lost focus.
func (c *Coordinator) Blur() {
	c.typing.Blur()
}

func (c *Coordinator) contactLocked(userID string) chat.User {
	i := slices.IndexFunc(c.sidebar, func(e chat.SidebarEntry) bool { return e.ID == userID })
	if i < 0 {
		return chat.User{ID: userID}
	}
	return c.sidebar[i].User
}

func (c *Coordinator) applyConvLocked(s convState) {
	c.messages = s.Messages
	c.page = s.Page
	c.hasMore = s.HasMore
}

// setMessagesLocked replaces the messages of conv in the view when it is
// active, and in the cache when an entry exists. An initial load in progress
// merges the view itself once the page arrives.
func (c *Coordinator) setMessagesLocked(conv string, msgs []chat.Message) {
	if conv == c.active {
		c.messages = msgs
		if !c.loading {
			c.byConv = c.byConv.Put(conv, convState{Messages: msgs, Page: c.page, HasMore: c.hasMore})
		}
		return
	}
	if state, ok := c.byConv.Get(conv); ok {
		state.Messages = msgs
		c.byConv = c.byConv.Put(conv, state)
	}
}

func (c *Coordinator) abortLoad(gen uint64) {
	c.mu.Lock()
	if c.gen == gen {
		c.loading = false
		c.loadingMore = false
	}
	c.mu.Unlock()
	c.changed()
}
