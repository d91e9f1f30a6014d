package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/event"
	"go.uber.org/zap"
)

var (
	writeWait      = 10 * time.Second
	readWait       = 90 * time.Second
	maxMessageSize = int64(8 << 20)
)

// ErrNotConnected is returned by Emit while the push channel is down.
var ErrNotConnected = errors.New("push channel not connected")

// Closed is the payload of push.closed. Requested is true when Close ended
// the connection.
type Closed struct {
	Err       error
	Requested bool
}

// Push is the client end of the push channel. Inbound events are published
// on the bus as push.<event name> with the decoded payload.
type Push struct {
	url    string
	userID string
	dialer *websocket.Dialer
	bus    *bus.Bus
	logger *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	egress chan event.Envelope
	done   chan struct{}
	closed bool
}

// NewPush returns a push client for the server at base acting as userID.
func NewPush(base *url.URL, userID string, b *bus.Bus, logger *zap.Logger) *Push {
	u := *base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u = *u.JoinPath("/ws")
	return &Push{
		url:    u.String(),
		userID: userID,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		bus:    b,
		logger: logger,
	}
}

// Connect dials the server and starts the pumps. Calling Connect while
// connected is a no-op.
func (p *Push) Connect(ctx context.Context) error {
	p.mu.Lock()
	if p.conn != nil {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	header := http.Header{}
	header.Set(HeaderUserID, p.userID)
	ws, resp, err := p.dialer.DialContext(ctx, p.url, header)
	if err != nil {
		if resp != nil {
			return &Error{Message: "push channel: " + err.Error(), Status: resp.StatusCode}
		}
		return &Error{Message: "push channel: " + err.Error()}
	}

	p.mu.Lock()
	if p.conn != nil {
		p.mu.Unlock()
		_ = ws.Close()
		return nil
	}
	p.conn = ws
	p.egress = make(chan event.Envelope, 64)
	p.done = make(chan struct{})
	p.closed = false
	egress, done := p.egress, p.done
	p.mu.Unlock()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(readWait))
	ws.SetPingHandler(func(data string) error {
		_ = ws.SetReadDeadline(time.Now().Add(readWait))
		err := ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	go p.readPump(ws, done)
	go p.writePump(ws, egress, done)
	p.logger.Info("push channel connected", zap.String("url", p.url))
	return nil
}

// Connected reports whether the channel is up.
func (p *Push) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil
}

// Emit sends a client signal. It never blocks; a full send buffer drops
// the signal.
func (p *Push) Emit(payload event.Payload) error {
	env, err := event.Encode(payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return ErrNotConnected
	}
	select {
	case p.egress <- env:
		return nil
	default:
		return fmt.Errorf("emit %s: send buffer full", env.Event)
	}
}

// Close disconnects. It is safe to call when not connected.
func (p *Push) Close() error {
	p.mu.Lock()
	ws := p.conn
	if ws != nil {
		p.closed = true
	}
	p.mu.Unlock()
	if ws == nil {
		return nil
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return ws.Close()
}

func (p *Push) readPump(ws *websocket.Conn, done chan struct{}) {
	var readErr error
	defer func() {
		p.mu.Lock()
		requested := p.closed
		if p.conn == ws {
			p.conn = nil
		}
		p.mu.Unlock()
		close(done)
		_ = ws.Close()
		p.logger.Info("push channel closed", zap.Bool("requested", requested), zap.Error(readErr))
		p.bus.Emit(bus.KindPushClosed, Closed{Err: readErr, Requested: requested})
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				readErr = err
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readWait))

		var env event.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			p.logger.Warn("dropping malformed push frame", zap.Error(err))
			continue
		}
		payload, err := event.Decode(env)
		if err != nil {
			p.logger.Warn("dropping push event", zap.String("event", env.Event), zap.Error(err))
			continue
		}
		p.bus.Emit(bus.PushKind(env.Event), payload)
	}
}

func (p *Push) writePump(ws *websocket.Conn, egress <-chan event.Envelope, done <-chan struct{}) {
	for {
		select {
		case env := <-egress:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(env); err != nil {
				p.logger.Warn("push write failed", zap.String("event", env.Event), zap.Error(err))
				_ = ws.Close()
				return
			}
		case <-done:
			return
		}
	}
}
