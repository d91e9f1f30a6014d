// Package chat holds the domain types shared by the server and the client:
// users, conversations, messages and the sidebar projection.
package chat

import (
	"errors"
	"strings"
	"time"
)

// ErrEmptyPayload is returned when a message carries neither text nor image.
var ErrEmptyPayload = errors.New("message has no text or image")

// User is a chat participant. LastSeen is nil while the user is connected.
type User struct {
	ID         string     `json:"id"`
	FullName   string     `json:"fullName"`
	Email      string     `json:"email"`
	ProfilePic string     `json:"profilePic"`
	LastSeen   *time.Time `json:"lastSeen"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Conversation is the lazily created pair of two users. Participants are
// kept in sorted order so a pair maps to exactly one conversation.
type Conversation struct {
	ID           string    `json:"id"`
	Participants [2]string `json:"participants"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Pair returns the two ids in canonical order.
func Pair(a, b string) [2]string {
	if b < a {
		return [2]string{b, a}
	}
	return [2]string{a, b}
}

// Has reports whether userID participates in the conversation.
func (c Conversation) Has(userID string) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// Partner returns the participant that is not userID.
func (c Conversation) Partner(userID string) string {
	if c.Participants[0] == userID {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// Message is a single chat message. ID is empty while the message is a local
// echo awaiting the server's acknowledgment; LocalID then tells concurrent
// echoes apart.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId"`
	Text           string    `json:"text,omitempty"`
	Image          string    `json:"image,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	Status         Status    `json:"status"`
	Temporary      bool      `json:"-"`
	LocalID        string    `json:"-"`
}

// Draft is the client-supplied content of a message about to be sent.
type Draft struct {
	ConversationID string `json:"conversationId,omitempty"`
	Text           string `json:"text,omitempty"`
	Image          string `json:"image,omitempty"`
}

// Empty reports whether the draft has nothing to send.
func (d Draft) Empty() bool {
	return strings.TrimSpace(d.Text) == "" && d.Image == ""
}

// Validate returns ErrEmptyPayload for an empty draft.
func (d Draft) Validate() error {
	if d.Empty() {
		return ErrEmptyPayload
	}
	return nil
}

// IndexOf returns the position of the message with id, or -1.
func IndexOf(msgs []Message, id string) int {
	if id == "" {
		return -1
	}
	for i := range msgs {
		if msgs[i].ID == id {
			return i
		}
	}
	return -1
}

// AppendUnique appends m unless a message with the same id is already
// present. The input slice is never modified.
func AppendUnique(msgs []Message, m Message) ([]Message, bool) {
	if IndexOf(msgs, m.ID) >= 0 {
		return msgs, false
	}
	out := make([]Message, 0, len(msgs)+1)
	out = append(out, msgs...)
	return append(out, m), true
}

// WithoutEcho returns a copy of msgs without the local echo tagged localID.
// Other echoes and persisted messages are kept.
func WithoutEcho(msgs []Message, localID string) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Temporary && m.LocalID == localID {
			continue
		}
		out = append(out, m)
	}
	return out
}
