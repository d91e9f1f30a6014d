// Package hub owns the push channel on the server: websocket connections,
// presence lifecycle, typing relay and inbound client signals.
package hub

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/clock"
	"github.com/matheus3301/chatsync/internal/event"
	"github.com/matheus3301/chatsync/internal/presence"
	"github.com/matheus3301/chatsync/internal/receipt"
	"go.uber.org/zap"
)

const (
	defaultWorkers    = 16
	defaultSendBuffer = 256
	workerQueueSize   = 256
)

// Store is the part of the repository the hub needs.
type Store interface {
	GetConversation(ctx context.Context, id string) (chat.Conversation, error)
	SetLastSeen(ctx context.Context, userID string, at *time.Time) error
}

// Receipts runs the delivery protocol on connect and on seen signals.
type Receipts interface {
	SyncDelivered(ctx context.Context, userID string) ([]receipt.Notice, error)
	MarkSeen(ctx context.Context, viewerID, conversationID string) ([]receipt.Notice, error)
}

// Options configures a Hub. Zero values pick defaults.
type Options struct {
	Instance       string
	Workers        int
	SendBuffer     int
	AllowedOrigins []string
	Relay          presence.Relay
	Clock          clock.Clock
	Logger         *zap.Logger
}

type inbound struct {
	conn *conn
	env  event.Envelope
}

// Hub tracks the local connection of every user served by this instance.
type Hub struct {
	instance string
	registry presence.Registry
	relay    presence.Relay
	receipts Receipts
	store    Store
	clock    clock.Clock
	logger   *zap.Logger
	upgrader websocket.Upgrader
	sendBuf  int

	mu    sync.RWMutex
	conns map[string]*conn

	convMu sync.Mutex
	convs  cache.Map[chat.Conversation]

	// One queue per worker; a connection always lands on the same worker so
	// its signals are handled in the order they were sent.
	inbound []chan inbound

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(reg presence.Registry, rc Receipts, st Store, opts Options) *Hub {
	if opts.Instance == "" {
		opts.Instance = "default"
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		instance: opts.Instance,
		registry: reg,
		relay:    opts.Relay,
		receipts: rc,
		store:    st,
		clock:    opts.Clock,
		logger:   opts.Logger,
		sendBuf:  opts.SendBuffer,
		conns:    make(map[string]*conn),
		convs:    cache.New[chat.Conversation](cache.Policy{TTL: 10 * time.Minute, MaxSize: 1024}, opts.Clock),
		inbound:  make([]chan inbound, opts.Workers),
		ctx:      ctx,
		cancel:   cancel,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	for i := range h.inbound {
		h.inbound[i] = make(chan inbound, workerQueueSize)
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Start launches the workers and, when a relay is configured, the listener
// for deliveries from other instances.
func (h *Hub) Start() {
	for _, q := range h.inbound {
		h.wg.Add(1)
		go func(q chan inbound) {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in := <-q:
					h.handleEvent(in.conn, in.env)
				}
			}
		}(q)
	}
	if h.relay != nil {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if err := h.relay.Listen(h.ctx, h.instance, h.deliverRelayed); err != nil {
				h.logger.Error("relay listener stopped", zap.Error(err))
			}
		}()
	}
	h.logger.Info("hub started", zap.String("instance", h.instance), zap.Int("workers", len(h.inbound)))
}

// Stop closes every connection and waits for the workers.
func (h *Hub) Stop() {
	h.mu.RLock()
	for _, c := range h.conns {
		c.close()
	}
	h.mu.RUnlock()
	h.cancel()
	h.wg.Wait()
	h.logger.Info("hub stopped")
}

// Instance returns the presence instance name of this hub.
func (h *Hub) Instance() string {
	return h.instance
}

// Connections returns the number of local connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Online returns every connected user across instances.
func (h *Hub) Online(ctx context.Context) ([]string, error) {
	return h.registry.Online(ctx)
}

// ServeWS upgrades the request and serves userID on the new connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithCancel(h.ctx)
	id := uuid.NewString()
	c := &conn{
		id:     id,
		userID: userID,
		ws:     ws,
		hub:    h,
		egress: make(chan event.Envelope, h.sendBuf),
		logger: h.logger.With(zap.String("user", userID), zap.String("conn", id)),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		joined: make(map[string]struct{}),
		typing: make(map[string]struct{}),
	}
	go c.writePump()
	h.onConnect(c)
	go c.readPump()
}

func (h *Hub) queueFor(c *conn) chan inbound {
	sum := sha1.Sum([]byte(c.id))
	return h.inbound[binary.BigEndian.Uint32(sum[:4])%uint32(len(h.inbound))]
}

func (h *Hub) onConnect(c *conn) {
	ctx := c.ctx

	h.mu.Lock()
	old := h.conns[c.userID]
	h.conns[c.userID] = c
	h.mu.Unlock()

	// The new handle must own the user before the old connection goes away,
	// otherwise its disconnect would unregister the user and stamp last seen.
	if err := h.registry.Register(ctx, c.userID, c.handle()); err != nil {
		c.logger.Error("register presence", zap.Error(err))
	}
	if err := h.store.SetLastSeen(ctx, c.userID, nil); err != nil {
		c.logger.Warn("clear last seen", zap.Error(err))
	}
	if old != nil {
		c.logger.Info("replacing previous connection", zap.String("previous", old.id))
		old.close()
	}
	h.broadcastOnline(ctx)

	notices, err := h.receipts.SyncDelivered(ctx, c.userID)
	if err != nil {
		c.logger.Error("delivery sync failed", zap.Error(err))
	}
	h.Notify(ctx, notices...)
	c.logger.Info("client connected")
}

func (h *Hub) onDisconnect(c *conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h.mu.Lock()
	if h.conns[c.userID] == c {
		delete(h.conns, c.userID)
	}
	h.mu.Unlock()

	for _, conv := range c.openTyping() {
		if err := h.relayTyping(ctx, c.userID, conv, false); err != nil {
			c.logger.Debug("relay stop typing", zap.String("conversation_id", conv), zap.Error(err))
		}
	}

	removed, err := h.registry.Unregister(ctx, c.userID, c.handle())
	if err != nil {
		c.logger.Error("unregister presence", zap.Error(err))
		return
	}
	if !removed {
		// A newer connection owns the user now.
		return
	}
	now := h.clock.Now().UTC()
	if err := h.store.SetLastSeen(ctx, c.userID, &now); err != nil {
		c.logger.Warn("persist last seen", zap.Error(err))
	}
	h.broadcastOnline(ctx)
	c.logger.Info("client disconnected")
}

func (h *Hub) local(userID string) *conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conns[userID]
}

func (h *Hub) localConns() []*conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	return out
}

func (h *Hub) broadcastOnline(ctx context.Context) {
	ids, err := h.registry.Online(ctx)
	if err != nil {
		h.logger.Error("list online users", zap.Error(err))
		return
	}
	env, err := event.Encode(event.OnlineUsers{UserIDs: ids})
	if err != nil {
		h.logger.Error("encode online users", zap.Error(err))
		return
	}
	for _, c := range h.localConns() {
		c.send(env)
	}
	if h.relay != nil {
		if err := h.relay.Broadcast(ctx, presence.Delivery{Origin: h.instance, Event: env}); err != nil {
			h.logger.Warn("relay online users", zap.Error(err))
		}
	}
}

// Notify pushes every notice to its user.
func (h *Hub) Notify(ctx context.Context, notices ...receipt.Notice) {
	for _, n := range notices {
		if err := h.Push(ctx, n.UserID, n.Payload); err != nil {
			h.logger.Warn("push failed", zap.String("user", n.UserID), zap.String("event", n.Payload.EventName()), zap.Error(err))
		}
	}
}

// Push sends p to userID, locally or through the relay. An offline user is
// not an error.
func (h *Hub) Push(ctx context.Context, userID string, p event.Payload) error {
	env, err := event.Encode(p)
	if err != nil {
		return err
	}
	if c := h.local(userID); c != nil {
		c.send(env)
		return nil
	}
	if h.relay == nil {
		return nil
	}
	handle, ok, err := h.registry.Lookup(ctx, userID)
	if err != nil || !ok || handle.Instance == h.instance {
		return err
	}
	return h.relay.Send(ctx, handle.Instance, presence.Delivery{
		UserID: userID,
		ConnID: handle.ConnID,
		Origin: h.instance,
		Event:  env,
	})
}

func (h *Hub) deliverRelayed(d presence.Delivery) {
	if d.UserID == "" {
		for _, c := range h.localConns() {
			c.send(d.Event)
		}
		return
	}
	c := h.local(d.UserID)
	if c == nil || (d.ConnID != "" && c.id != d.ConnID) {
		return
	}
	c.send(d.Event)
}

// conversation looks a conversation up through the participant cache.
// Conversations never change once created, so entries only expire to bound
// memory.
func (h *Hub) conversation(ctx context.Context, id string) (chat.Conversation, error) {
	h.convMu.Lock()
	conv, ok := h.convs.Get(id)
	h.convMu.Unlock()
	if ok {
		return conv, nil
	}
	conv, err := h.store.GetConversation(ctx, id)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("conversation %s: %w", id, err)
	}
	h.convMu.Lock()
	h.convs = h.convs.Put(id, conv)
	h.convMu.Unlock()
	return conv, nil
}
