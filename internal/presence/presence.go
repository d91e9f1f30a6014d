// Package presence tracks which users hold a live push connection and on
// which server instance.
package presence

import (
	"context"
	"sort"
	"sync"
)

// Handle identifies one push connection.
type Handle struct {
	Instance string `json:"instance"`
	ConnID   string `json:"connId"`
}

// Registry maps a user to the single connection currently serving them.
// A newer registration replaces an older one.
type Registry interface {
	Register(ctx context.Context, userID string, h Handle) error
	// Unregister removes the mapping only if it still points at h, so a
	// late disconnect of a replaced connection leaves the newer one alone.
	// It reports whether the mapping was removed.
	Unregister(ctx context.Context, userID string, h Handle) (bool, error)
	Lookup(ctx context.Context, userID string) (Handle, bool, error)
	// Online returns the ids of every registered user, sorted.
	Online(ctx context.Context) ([]string, error)
}

// Memory is a process-local Registry.
type Memory struct {
	mu    sync.RWMutex
	users map[string]Handle
}

var _ Registry = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{users: make(map[string]Handle)}
}

func (m *Memory) Register(_ context.Context, userID string, h Handle) error {
	m.mu.Lock()
	m.users[userID] = h
	m.mu.Unlock()
	return nil
}

func (m *Memory) Unregister(_ context.Context, userID string, h Handle) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.users[userID]; !ok || cur != h {
		return false, nil
	}
	delete(m.users, userID)
	return true, nil
}

func (m *Memory) Lookup(_ context.Context, userID string) (Handle, bool, error) {
	m.mu.RLock()
	h, ok := m.users[userID]
	m.mu.RUnlock()
	return h, ok, nil
}

func (m *Memory) Online(_ context.Context) ([]string, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}
