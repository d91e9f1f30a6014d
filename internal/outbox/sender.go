// Package outbox implements optimistic sending: the message is echoed into the
// local timeline at once, then replaced by the server's copy or discarded.
package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/clock"
	"go.uber.org/zap"
)

// Request is one message the user asked to send.
type Request struct {
	ConversationID string
	SenderID       string
	ReceiverID     string
	Text           string
	Image          string
}

func (r Request) draft() chat.Draft {
	return chat.Draft{ConversationID: r.ConversationID, Text: r.Text, Image: r.Image}
}

// Persister stores a message on the server and returns the authoritative copy.
type Persister interface {
	Send(ctx context.Context, receiverID string, d chat.Draft) (chat.Message, error)
}

// Timeline is the local view the pipeline writes its echo into. Several
// sends may be in flight at once, so each one only touches the echo carrying
// its own LocalID.
type Timeline interface {
	// Echo appends a temporary message and bumps its sidebar entry.
	Echo(m chat.Message)
	// Commit replaces the echo tagged localID with m.
	Commit(localID string, m chat.Message)
	// Discard removes the echo tagged localID from conversationID.
	Discard(conversationID, localID string)
}

// TypingStopper ends the local typing burst.
type TypingStopper interface {
	Stop()
}

// SendError is the payload published on the bus when a send fails.
type SendError struct {
	ConversationID string
	Err            error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send message to conversation %s: %v", e.ConversationID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Pipeline sends messages optimistically.
type Pipeline struct {
	persister Persister
	timeline  Timeline
	typing    TypingStopper
	bus       *bus.Bus
	clock     clock.Clock
	logger    *zap.Logger
}

// NewPipeline creates a send pipeline. stopper may be nil.
func NewPipeline(p Persister, tl Timeline, stopper TypingStopper, b *bus.Bus, c clock.Clock, logger *zap.Logger) *Pipeline {
	if c == nil {
		c = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		persister: p,
		timeline:  tl,
		typing:    stopper,
		bus:       b,
		clock:     c,
		logger:    logger,
	}
}

// Send echoes req locally and persists it. An empty request, or one without
// a conversation or receiver, is ignored. On failure the echo is discarded,
// a ui.error event is published and the error is returned.
func (p *Pipeline) Send(ctx context.Context, req Request) error {
	d := req.draft()
	if d.Empty() || req.ConversationID == "" || req.ReceiverID == "" {
		return nil
	}

	localID := uuid.NewString()
	p.timeline.Echo(chat.Message{
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		ReceiverID:     req.ReceiverID,
		Text:           req.Text,
		Image:          req.Image,
		CreatedAt:      p.clock.Now(),
		Status:         chat.StatusSending,
		Temporary:      true,
		LocalID:        localID,
	})

	if p.typing != nil {
		p.typing.Stop()
	}

	msg, err := p.persister.Send(ctx, req.ReceiverID, d)
	if err != nil {
		p.timeline.Discard(req.ConversationID, localID)
		sendErr := &SendError{ConversationID: req.ConversationID, Err: err}
		p.logger.Warn("send failed, echo discarded",
			zap.String("conversation_id", req.ConversationID),
			zap.String("local_id", localID),
			zap.Error(err),
		)
		p.bus.Emit(bus.KindUIError, sendErr)
		return sendErr
	}

	p.timeline.Commit(localID, msg)
	p.logger.Debug("message sent",
		zap.String("conversation_id", msg.ConversationID),
		zap.String("message_id", msg.ID),
	)
	return nil
}
