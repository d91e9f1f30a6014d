// Package cache implements a bounded key/value map with time-based staleness
// and first-in-first-out eviction.
//
// A Map is an immutable value: Put and Delete return a new Map and leave the
// receiver untouched, so a reader holding an older Map never observes a
// partial update. Eviction removes the earliest inserted key. Reading or
// refreshing a key does not move it in the queue.
package cache

import (
	"slices"
	"time"

	"github.com/matheus3301/chatsync/internal/clock"
)

// Policy bounds a Map. A zero TTL disables expiry and a zero MaxSize
// disables the size bound.
type Policy struct {
	TTL     time.Duration
	MaxSize int
}

// DefaultPolicy keeps entries for five minutes and at most fifty keys.
var DefaultPolicy = Policy{TTL: 5 * time.Minute, MaxSize: 50}

type entry[V any] struct {
	value  V
	stored time.Time
}

// Map is a copy-on-write cache keyed by string.
type Map[V any] struct {
	policy  Policy
	clock   clock.Clock
	order   []string
	entries map[string]entry[V]
}

// New returns an empty Map. A nil clock uses the system clock.
func New[V any](p Policy, c clock.Clock) Map[V] {
	if c == nil {
		c = clock.Real{}
	}
	return Map[V]{policy: p, clock: c}
}

func (m Map[V]) now() time.Time {
	if m.clock == nil {
		return time.Now()
	}
	return m.clock.Now()
}

// Get returns the value for key if present and younger than the TTL.
func (m Map[V]) Get(key string) (V, bool) {
	e, ok := m.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if m.policy.TTL > 0 && m.now().Sub(e.stored) >= m.policy.TTL {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value under key. A new key evicts the earliest inserted keys
// when the map is full; an existing key keeps its position.
func (m Map[V]) Put(key string, value V) Map[V] {
	next := Map[V]{
		policy:  m.policy,
		clock:   m.clock,
		entries: make(map[string]entry[V], len(m.entries)+1),
	}
	for k, e := range m.entries {
		next.entries[k] = e
	}

	if _, exists := m.entries[key]; exists {
		next.order = m.order
	} else {
		order := slices.Clone(m.order)
		if m.policy.MaxSize > 0 {
			for len(order) >= m.policy.MaxSize {
				delete(next.entries, order[0])
				order = order[1:]
			}
		}
		next.order = append(order, key)
	}
	next.entries[key] = entry[V]{value: value, stored: m.now()}
	return next
}

// Delete removes key.
func (m Map[V]) Delete(key string) Map[V] {
	if _, ok := m.entries[key]; !ok {
		return m
	}
	next := Map[V]{
		policy:  m.policy,
		clock:   m.clock,
		entries: make(map[string]entry[V], len(m.entries)),
	}
	for k, e := range m.entries {
		if k != key {
			next.entries[k] = e
		}
	}
	next.order = slices.DeleteFunc(slices.Clone(m.order), func(k string) bool { return k == key })
	return next
}

// Clear returns an empty Map with the same policy.
func (m Map[V]) Clear() Map[V] {
	return Map[V]{policy: m.policy, clock: m.clock}
}

// Len returns the number of stored keys, stale ones included.
func (m Map[V]) Len() int {
	return len(m.order)
}

// Keys returns the stored keys in insertion order.
func (m Map[V]) Keys() []string {
	return slices.Clone(m.order)
}
