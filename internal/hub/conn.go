package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/chatsync/internal/event"
	"github.com/matheus3301/chatsync/internal/presence"
	"go.uber.org/zap"
)

var (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingInterval       = (pongWait * 9) / 10
	maxMessageSize     = int64(64 * 1024)
	inboundSendTimeout = 500 * time.Millisecond
)

// conn is one websocket connection of one user.
type conn struct {
	id     string
	userID string
	ws     *websocket.Conn
	hub    *Hub
	egress chan event.Envelope
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}

	mu     sync.Mutex
	joined map[string]struct{}
	// conversations this connection has an open typing burst in
	typing map[string]struct{}
}

func (c *conn) handle() presence.Handle {
	return presence.Handle{Instance: c.hub.instance, ConnID: c.id}
}

func (c *conn) readPump() {
	defer func() {
		c.close()
		c.hub.onDisconnect(c)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			var ne net.Error
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				c.logger.Debug("client disconnected")
			case errors.As(err, &ne) && ne.Timeout():
				c.logger.Info("client timed out")
			case c.ctx.Err() != nil:
			default:
				c.logger.Debug("read failed", zap.Error(err))
			}
			return
		}
		var env event.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}

		select {
		case c.hub.queueFor(c) <- inbound{conn: c, env: env}:
		case <-time.After(inboundSendTimeout):
			c.logger.Warn("inbound queue full, dropping event", zap.String("event", env.Event))
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		close(c.done)
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case env := <-c.egress:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(env); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}
		}
	}
}

// send enqueues env. A connection whose buffer is full is dropped rather
// than allowed to stall the sender.
func (c *conn) send(env event.Envelope) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	select {
	case c.egress <- env:
		return true
	case <-c.ctx.Done():
		return false
	default:
		c.logger.Warn("egress full, disconnecting client", zap.String("event", env.Event))
		c.close()
		return false
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		c.cancel()
		go func() {
			select {
			case <-c.done:
			case <-time.After(5 * time.Second):
				_ = c.ws.Close()
			}
		}()
	})
}

func (c *conn) join(conversationID string) {
	c.mu.Lock()
	c.joined[conversationID] = struct{}{}
	c.mu.Unlock()
}

func (c *conn) leave(conversationID string) {
	c.mu.Lock()
	delete(c.joined, conversationID)
	c.mu.Unlock()
}

func (c *conn) viewing(conversationID string) bool {
	c.mu.Lock()
	_, ok := c.joined[conversationID]
	c.mu.Unlock()
	return ok
}

func (c *conn) setTyping(conversationID string, on bool) {
	c.mu.Lock()
	if on {
		c.typing[conversationID] = struct{}{}
	} else {
		delete(c.typing, conversationID)
	}
	c.mu.Unlock()
}

// openTyping returns and forgets every conversation still marked typing.
func (c *conn) openTyping() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.typing))
	for id := range c.typing {
		out = append(out, id)
	}
	clear(c.typing)
	return out
}
