// Package event defines the push channel vocabulary. Every event name maps
// to exactly one payload struct, and Decode is the single place where raw
// frames become typed payloads.
package event

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/matheus3301/chatsync/internal/chat"
)

// Server to client.
const (
	NameOnlineUsers       = "getOnlineUsers"
	NameNewMessage        = "newMessage"
	NameNewConversation   = "newConversation"
	NameMessageDelivered  = "messageDelivered"
	NameMessagesSeen      = "messagesSeen"
	NameUserTyping        = "userTyping"
	NameUserStoppedTyping = "userStoppedTyping"
)

// Client to server.
const (
	NameJoinConversation  = "joinConversation"
	NameLeaveConversation = "leaveConversation"
	NameSeenMessage       = "seenMessage"
	NameTyping            = "typing"
	NameStopTyping        = "stopTyping"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrInvalidPayload = errors.New("invalid event payload")
)

// Envelope is the wire frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Payload is implemented by every event struct.
type Payload interface {
	EventName() string
	validate() error
}

type OnlineUsers struct {
	UserIDs []string `json:"userIds"`
}

type NewMessage struct {
	Message chat.Message `json:"message"`
}

type NewConversation struct {
	Conversation chat.Conversation `json:"conversation"`
	SenderID     string            `json:"senderId"`
}

type MessageDelivered struct {
	ConversationID string `json:"conversationId"`
}

type MessagesSeen struct {
	ConversationID string `json:"conversationId"`
}

type UserTyping struct {
	SenderID       string `json:"senderId"`
	ConversationID string `json:"conversationId"`
}

type UserStoppedTyping struct {
	SenderID       string `json:"senderId"`
	ConversationID string `json:"conversationId"`
}

type JoinConversation struct {
	ConversationID string `json:"conversationId"`
}

type LeaveConversation struct {
	ConversationID string `json:"conversationId"`
}

type SeenMessage struct {
	ConversationID string `json:"conversationId"`
}

// Typing and StopTyping carry the sender as claimed by the client; the server
// replaces it with the authenticated identity before relaying.
type Typing struct {
	SenderID       string `json:"senderId"`
	ConversationID string `json:"conversationId"`
}

type StopTyping struct {
	SenderID       string `json:"senderId"`
	ConversationID string `json:"conversationId"`
}

func (OnlineUsers) EventName() string       { return NameOnlineUsers }
func (NewMessage) EventName() string        { return NameNewMessage }
func (NewConversation) EventName() string   { return NameNewConversation }
func (MessageDelivered) EventName() string  { return NameMessageDelivered }
func (MessagesSeen) EventName() string      { return NameMessagesSeen }
func (UserTyping) EventName() string        { return NameUserTyping }
func (UserStoppedTyping) EventName() string { return NameUserStoppedTyping }
func (JoinConversation) EventName() string  { return NameJoinConversation }
func (LeaveConversation) EventName() string { return NameLeaveConversation }
func (SeenMessage) EventName() string       { return NameSeenMessage }
func (Typing) EventName() string            { return NameTyping }
func (StopTyping) EventName() string        { return NameStopTyping }

func requireConversation(id string) error {
	if id == "" {
		return fmt.Errorf("%w: missing conversationId", ErrInvalidPayload)
	}
	return nil
}

func (OnlineUsers) validate() error { return nil }

func (p NewMessage) validate() error {
	if p.Message.ID == "" || p.Message.ConversationID == "" {
		return fmt.Errorf("%w: message without identity", ErrInvalidPayload)
	}
	return nil
}

func (p NewConversation) validate() error {
	if p.Conversation.ID == "" || p.SenderID == "" {
		return fmt.Errorf("%w: conversation without identity", ErrInvalidPayload)
	}
	return nil
}

func (p MessageDelivered) validate() error  { return requireConversation(p.ConversationID) }
func (p MessagesSeen) validate() error      { return requireConversation(p.ConversationID) }
func (p UserTyping) validate() error        { return requireConversation(p.ConversationID) }
func (p UserStoppedTyping) validate() error { return requireConversation(p.ConversationID) }
func (p JoinConversation) validate() error  { return requireConversation(p.ConversationID) }
func (p LeaveConversation) validate() error { return requireConversation(p.ConversationID) }
func (p SeenMessage) validate() error       { return requireConversation(p.ConversationID) }
func (p Typing) validate() error            { return requireConversation(p.ConversationID) }
func (p StopTyping) validate() error        { return requireConversation(p.ConversationID) }

// Encode wraps p in an envelope.
func Encode(p Payload) (Envelope, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", p.EventName(), err)
	}
	return Envelope{Event: p.EventName(), Data: data}, nil
}

// Decode turns an envelope into its typed payload.
func Decode(env Envelope) (Payload, error) {
	var p Payload
	switch env.Event {
	case NameOnlineUsers:
		p = &OnlineUsers{}
	case NameNewMessage:
		p = &NewMessage{}
	case NameNewConversation:
		p = &NewConversation{}
	case NameMessageDelivered:
		p = &MessageDelivered{}
	case NameMessagesSeen:
		p = &MessagesSeen{}
	case NameUserTyping:
		p = &UserTyping{}
	case NameUserStoppedTyping:
		p = &UserStoppedTyping{}
	case NameJoinConversation:
		p = &JoinConversation{}
	case NameLeaveConversation:
		p = &LeaveConversation{}
	case NameSeenMessage:
		p = &SeenMessage{}
	case NameTyping:
		p = &Typing{}
	case NameStopTyping:
		p = &StopTyping{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: %s without data", ErrInvalidPayload, env.Event)
	}
	if err := json.Unmarshal(env.Data, p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Event, err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return deref(p), nil
}

// deref returns payloads by value so type switches match the value types.
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *OnlineUsers:
		return *v
	case *NewMessage:
		return *v
	case *NewConversation:
		return *v
	case *MessageDelivered:
		return *v
	case *MessagesSeen:
		return *v
	case *UserTyping:
		return *v
	case *UserStoppedTyping:
		return *v
	case *JoinConversation:
		return *v
	case *LeaveConversation:
		return *v
	case *SeenMessage:
		return *v
	case *Typing:
		return *v
	case *StopTyping:
		return *v
	}
	return p
}
