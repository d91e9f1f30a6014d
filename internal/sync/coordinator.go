// Package sync is the client's reactive store. It fuses request/response
// results, optimistic sends and push events into one consistent View.
//
// Every mutation happens under one mutex that is never held across I/O.
// Slices handed out in a View are never modified afterwards.
package sync

import (
	"context"
	"errors"
	"slices"
	stdsync "sync"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/clock"
	"github.com/matheus3301/chatsync/internal/event"
	"github.com/matheus3301/chatsync/internal/history"
	"github.com/matheus3301/chatsync/internal/outbox"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/suggest"
	"github.com/matheus3301/chatsync/internal/typing"
	"go.uber.org/zap"
)

// DefaultSeenThreshold is the visible fraction of the newest message that
// counts as having seen it.
const DefaultSeenThreshold = 0.5

// API is the request/response side of the server.
type API interface {
	Sidebar(ctx context.Context) ([]chat.SidebarEntry, error)
	Conversation(ctx context.Context, partnerID string) (remote.Conversation, error)
	History(ctx context.Context, conversationID string, page, limit int) (history.Page, error)
	Send(ctx context.Context, receiverID string, d chat.Draft) (chat.Message, error)
	GenerateReplies(ctx context.Context, conversationID, messageID string) (suggest.Replies, error)
}

// Channel is the push channel.
type Channel interface {
	Connect(ctx context.Context) error
	Emit(p event.Payload) error
	Close() error
}

// Options configures a Coordinator.
type Options struct {
	UserID        string
	Cache         cache.Policy
	PageLimit     int
	TypingIdle    time.Duration
	SeenThreshold float64
	ReconnectMin  time.Duration
	ReconnectMax  time.Duration
	Clock         clock.Clock
	Logger        *zap.Logger
}

// View is an immutable snapshot of everything the UI renders.
type View struct {
	Self         string
	Status       status.State
	Sidebar      []chat.SidebarEntry
	Online       []string
	Partner      chat.User
	Conversation string
	Messages     []chat.Message
	HasMore      bool
	Page         int
	Loading      bool
	LoadingMore  bool
	Typing       []string
}

// IsOnline reports whether userID has a live connection.
func (v View) IsOnline(userID string) bool {
	_, ok := slices.BinarySearch(v.Online, userID)
	return ok
}

// convState is what the messages cache keeps per conversation.
type convState struct {
	Messages []chat.Message
	Page     int
	HasMore  bool
}

// Coordinator owns all client state.
type Coordinator struct {
	api     API
	channel Channel
	bus     *bus.Bus
	machine *status.Machine
	loader  *history.Loader
	outbox  *outbox.Pipeline
	typing  *typing.Debouncer
	clock   clock.Clock
	logger  *zap.Logger
	opts    Options

	mu           stdsync.Mutex
	gen          uint64
	sidebar      []chat.SidebarEntry
	online       []string
	partner      chat.User
	active       string
	messages     []chat.Message
	page         int
	hasMore      bool
	loading      bool
	loadingMore  bool
	typingSet    typing.Set
	seenSent     map[string]struct{}
	byConv       cache.Map[convState]
	byPartner    cache.Map[chat.Conversation]
	sidebarCache cache.Map[[]chat.SidebarEntry]
	replies      cache.Map[suggest.Replies]

	cancel    context.CancelFunc
	reconnect clock.Timer
	backoff   time.Duration
}

// New creates a Coordinator. The machine may be shared with the UI.
func New(api API, ch Channel, b *bus.Bus, m *status.Machine, opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Cache == (cache.Policy{}) {
		opts.Cache = cache.DefaultPolicy
	}
	if opts.SeenThreshold <= 0 {
		opts.SeenThreshold = DefaultSeenThreshold
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = time.Second
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = 30 * time.Second
	}
	if m == nil {
		m = status.NewMachine(b)
	}

	c := &Coordinator{
		api:          api,
		channel:      ch,
		bus:          b,
		machine:      m,
		loader:       history.NewLoader(api, opts.PageLimit),
		clock:        opts.Clock,
		logger:       opts.Logger,
		opts:         opts,
		seenSent:     make(map[string]struct{}),
		byConv:       cache.New[convState](opts.Cache, opts.Clock),
		byPartner:    cache.New[chat.Conversation](opts.Cache, opts.Clock),
		sidebarCache: cache.New[[]chat.SidebarEntry](opts.Cache, opts.Clock),
		replies:      cache.New[suggest.Replies](opts.Cache, opts.Clock),
		backoff:      opts.ReconnectMin,
	}
	c.typing = typing.NewDebouncer(opts.Clock, opts.TypingIdle, c.emitTyping)
	c.outbox = outbox.NewPipeline(api, timeline{c}, c.typing, b, opts.Clock, opts.Logger)
	return c
}

// View returns the current snapshot.
func (c *Coordinator) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Coordinator) viewLocked() View {
	return View{
		Self:         c.opts.UserID,
		Status:       c.machine.Current(),
		Sidebar:      c.sidebar,
		Online:       c.online,
		Partner:      c.partner,
		Conversation: c.active,
		Messages:     c.messages,
		HasMore:      c.hasMore,
		Page:         c.page,
		Loading:      c.loading,
		LoadingMore:  c.loadingMore,
		Typing:       c.typingSet.Users(c.active),
	}
}

// changed publishes the view after a mutation. Call without holding mu.
func (c *Coordinator) changed() {
	c.bus.Emit(bus.KindViewChanged, c.View())
}

// Start subscribes to push events and connects. A failed connection is
// retried in the background; the error is still returned.
func (c *Coordinator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	events, unsub := c.bus.SubscribeLossless(bus.KindPushPrefix, 256)
	go func() {
		defer unsub()
		for {
			select {
			case evt := <-events:
				c.HandleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()

	return c.connect(ctx)
}

// Stop ends background work. The push channel is closed.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.mu.Unlock()
	c.typing.Stop()
	if cancel != nil {
		cancel()
	}
	_ = c.channel.Close()
}

func (c *Coordinator) transition(to status.State) {
	from := c.machine.Current()
	if err := c.machine.Transition(to); err != nil {
		c.logger.Debug("status transition skipped", zap.String("from", string(from)), zap.String("to", string(to)))
	}
}

func (c *Coordinator) connect(ctx context.Context) error {
	c.transition(status.Connecting)
	if err := c.channel.Connect(ctx); err != nil {
		if remote.IsUnauthenticated(err) {
			c.Logout()
			return err
		}
		c.logger.Warn("connect failed", zap.Error(err))
		c.scheduleReconnect(ctx)
		return err
	}

	c.transition(status.Syncing)
	if _, err := c.LoadSidebar(ctx, true); err != nil && remote.IsUnauthenticated(err) {
		return err
	}

	c.mu.Lock()
	active := c.active
	c.backoff = c.opts.ReconnectMin
	c.mu.Unlock()
	if active != "" {
		c.emit(event.JoinConversation{ConversationID: active})
	}
	c.transition(status.Ready)
	c.changed()
	return nil
}

func (c *Coordinator) scheduleReconnect(ctx context.Context) {
	c.transition(status.Reconnecting)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reconnect != nil || ctx.Err() != nil {
		return
	}
	delay := c.backoff
	c.backoff = min(c.backoff*2, c.opts.ReconnectMax)
	c.logger.Info("reconnecting", zap.Duration("in", delay))
	c.reconnect = c.clock.AfterFunc(delay, func() {
		c.mu.Lock()
		c.reconnect = nil
		c.mu.Unlock()
		if ctx.Err() != nil || c.machine.Current() != status.Reconnecting {
			return
		}
		go func() { _ = c.connect(ctx) }()
	})
}

func (c *Coordinator) onClosed(ctx context.Context, closed remote.Closed) {
	if closed.Requested || c.machine.Current() == status.LoggedOut {
		return
	}
	c.logger.Warn("push channel lost", zap.Error(closed.Err))
	c.mu.Lock()
	c.online = nil
	c.typingSet = typing.Set{}
	c.mu.Unlock()
	c.scheduleReconnect(ctx)
	c.changed()
}

// Logout clears every cache, resets the view and disconnects.
func (c *Coordinator) Logout() {
	c.typing.Stop()
	c.mu.Lock()
	c.gen++
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.sidebar = nil
	c.online = nil
	c.partner = chat.User{}
	c.active = ""
	c.messages = nil
	c.page = 0
	c.hasMore = false
	c.loading = false
	c.loadingMore = false
	c.typingSet = typing.Set{}
	c.seenSent = make(map[string]struct{})
	c.byConv = c.byConv.Clear()
	c.byPartner = c.byPartner.Clear()
	c.sidebarCache = c.sidebarCache.Clear()
	c.replies = c.replies.Clear()
	c.backoff = c.opts.ReconnectMin
	c.mu.Unlock()

	c.transition(status.LoggedOut)
	_ = c.channel.Close()
	c.changed()
}

// fail routes a request error: unauthenticated logs out, anything else is
// surfaced on the bus.
func (c *Coordinator) fail(op string, err error) {
	if remote.IsUnauthenticated(err) {
		c.logger.Warn("session rejected, logging out", zap.String("op", op))
		c.Logout()
		return
	}
	c.logger.Warn("request failed", zap.String("op", op), zap.Error(err))
	c.bus.Emit(bus.KindUIError, err)
}

func (c *Coordinator) emit(p event.Payload) {
	if err := c.channel.Emit(p); err != nil && !errors.Is(err, remote.ErrNotConnected) {
		c.logger.Warn("emit failed", zap.String("event", p.EventName()), zap.Error(err))
	}
}

func (c *Coordinator) emitTyping(s typing.Signal) {
	if s.Typing {
		c.emit(event.Typing{SenderID: c.opts.UserID, ConversationID: s.ConversationID})
		return
	}
	c.emit(event.StopTyping{SenderID: c.opts.UserID, ConversationID: s.ConversationID})
}
