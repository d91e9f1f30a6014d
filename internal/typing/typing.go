// Package typing debounces local keystrokes into start/stop signals and
// tracks which remote users are typing in each conversation.
package typing

import (
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/clock"
)

// DefaultIdle is how long the field may stay untouched before a stop is sent.
const DefaultIdle = 1500 * time.Millisecond

// Signal is a start or stop emitted by the Debouncer.
type Signal struct {
	ConversationID string
	Typing         bool
}

// Debouncer turns a stream of keystrokes into one start per burst and one
// stop when the burst ends. Emit is called outside the internal lock.
type Debouncer struct {
	clock clock.Clock
	idle  time.Duration
	emit  func(Signal)

	mu     sync.Mutex
	conv   string
	active bool
	timer  clock.Timer
	gen    uint64
}

// NewDebouncer returns a Debouncer. A non-positive idle means DefaultIdle.
func NewDebouncer(c clock.Clock, idle time.Duration, emit func(Signal)) *Debouncer {
	if idle <= 0 {
		idle = DefaultIdle
	}
	return &Debouncer{clock: c, idle: idle, emit: emit}
}

// Keystroke records the composer contents after an edit in conv.
func (d *Debouncer) Keystroke(conv, text string) {
	var out []Signal

	d.mu.Lock()
	if text == "" {
		out = d.stopLocked(out)
		d.mu.Unlock()
		d.flush(out)
		return
	}
	if d.active && d.conv != conv {
		out = d.stopLocked(out)
	}
	if !d.active {
		d.active = true
		d.conv = conv
		out = append(out, Signal{ConversationID: conv, Typing: true})
	}
	d.armLocked()
	d.mu.Unlock()

	d.flush(out)
}

// Blur is called when the composer loses focus.
func (d *Debouncer) Blur() {
	d.Stop()
}

// Stop ends the current burst immediately, if any.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	out := d.stopLocked(nil)
	d.mu.Unlock()
	d.flush(out)
}

// Active reports whether a start was sent without a matching stop.
func (d *Debouncer) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *Debouncer) armLocked() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.idle, func() { d.expire(gen) })
}

func (d *Debouncer) expire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	out := d.stopLocked(nil)
	d.mu.Unlock()
	d.flush(out)
}

func (d *Debouncer) stopLocked(out []Signal) []Signal {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	if !d.active {
		return out
	}
	d.active = false
	return append(out, Signal{ConversationID: d.conv, Typing: false})
}

func (d *Debouncer) flush(out []Signal) {
	if d.emit == nil {
		return
	}
	for _, s := range out {
		d.emit(s)
	}
}

// Set records typing users per conversation. It is an immutable value:
// Add and Remove return a new Set and never modify the receiver.
type Set struct {
	byConv map[string]map[string]struct{}
}

// Add marks user as typing in conv. Adding twice is a no-op.
func (s Set) Add(conv, user string) Set {
	if s.Has(conv, user) {
		return s
	}
	next := s.clone()
	users := make(map[string]struct{}, len(s.byConv[conv])+1)
	for u := range s.byConv[conv] {
		users[u] = struct{}{}
	}
	users[user] = struct{}{}
	next.byConv[conv] = users
	return next
}

// Remove clears user's typing mark in conv.
func (s Set) Remove(conv, user string) Set {
	if !s.Has(conv, user) {
		return s
	}
	next := s.clone()
	users := make(map[string]struct{}, len(s.byConv[conv]))
	for u := range s.byConv[conv] {
		if u != user {
			users[u] = struct{}{}
		}
	}
	if len(users) == 0 {
		delete(next.byConv, conv)
	} else {
		next.byConv[conv] = users
	}
	return next
}

// Retain drops every user for whom keep returns false.
func (s Set) Retain(keep func(user string) bool) Set {
	var next Set
	for conv, users := range s.byConv {
		for u := range users {
			if !keep(u) {
				if next.byConv == nil {
					next = s.clone()
				}
				next = next.Remove(conv, u)
			}
		}
	}
	if next.byConv == nil {
		return s
	}
	return next
}

// Has reports whether user is typing in conv.
func (s Set) Has(conv, user string) bool {
	_, ok := s.byConv[conv][user]
	return ok
}

// Users lists who is typing in conv, in no particular order.
func (s Set) Users(conv string) []string {
	users := s.byConv[conv]
	if len(users) == 0 {
		return nil
	}
	out := make([]string, 0, len(users))
	for u := range users {
		out = append(out, u)
	}
	return out
}

func (s Set) clone() Set {
	next := Set{byConv: make(map[string]map[string]struct{}, len(s.byConv)+1)}
	for conv, users := range s.byConv {
		next.byConv[conv] = users
	}
	return next
}
