package chat

import (
	"fmt"
	"slices"
)

// Status is the delivery state of a message.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusSeen      Status = "seen"
)

// validTransitions lists the single forward step allowed from each status.
var validTransitions = map[Status][]Status{
	StatusSending:   {StatusSent},
	StatusSent:      {StatusDelivered},
	StatusDelivered: {StatusSeen},
	StatusSeen:      {},
}

var rank = map[Status]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusSeen:      3,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := rank[s]
	return ok
}

// Rank orders statuses; unknown statuses rank below sending.
func (s Status) Rank() int {
	r, ok := rank[s]
	if !ok {
		return -1
	}
	return r
}

// TransitionError is returned for a transition that skips or reverses a state.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// Transition validates a status change.
func Transition(from, to Status) error {
	if !slices.Contains(validTransitions[from], to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// Advance moves m to status to when that is the next legal step. Anything
// else leaves the message unchanged.
func Advance(m Message, to Status) (Message, bool) {
	if Transition(m.Status, to) != nil {
		return m, false
	}
	m.Status = to
	return m, true
}

// Promote advances every message in msgs authored by senderID from status
// from to status to. It returns a new slice and the number of changed
// messages; msgs is never modified.
func Promote(msgs []Message, senderID string, from, to Status) ([]Message, int) {
	if Transition(from, to) != nil {
		return msgs, 0
	}
	changed := 0
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		if m.SenderID == senderID && m.Status == from && !m.Temporary {
			m, _ = Advance(m, to)
			changed++
		}
		out[i] = m
	}
	if changed == 0 {
		return msgs, 0
	}
	return out, changed
}
