// Package model bridges the sync coordinator and the widgets: it caches the
// latest View and turns bus events into redraw and error signals.
package model

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/suggest"
	intsync "github.com/matheus3301/chatsync/internal/sync"
)

// MaxImageBytes bounds images attached from disk.
const MaxImageBytes = 8 << 20

// Engine is the part of the coordinator the UI drives.
type Engine interface {
	View() intsync.View
	LoadSidebar(ctx context.Context, refresh bool) ([]chat.SidebarEntry, error)
	OpenConversation(ctx context.Context, partnerID string) error
	LoadMore(ctx context.Context) error
	Send(ctx context.Context, text, image string) error
	Keystroke(text string)
	Blur()
	MessageVisible(messageID string, ratio float64)
	GenerateReplies(ctx context.Context, messageID string, regenerate bool) (suggest.Replies, error)
	Logout()
}

// ViewModel caches the coordinator's View and signals UI refreshes.
type ViewModel struct {
	Engine

	bus *bus.Bus

	mu   sync.RWMutex
	view intsync.View

	refreshCh chan struct{}
	errCh     chan error
}

// NewViewModel creates a view model over e. Call Watch to start tracking.
func NewViewModel(e Engine, b *bus.Bus) *ViewModel {
	return &ViewModel{
		Engine:    e,
		bus:       b,
		view:      e.View(),
		refreshCh: make(chan struct{}, 1),
		errCh:     make(chan error, 8),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

// Errors returns failures published by the coordinator.
func (vm *ViewModel) Errors() <-chan error {
	return vm.errCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// Watch follows view changes, status changes and errors until ctx ends.
func (vm *ViewModel) Watch(ctx context.Context) {
	views, unsubViews := vm.bus.Subscribe(bus.KindViewChanged, 64)
	states, unsubStates := vm.bus.Subscribe(bus.KindStatusChanged, 16)
	errs, unsubErrs := vm.bus.Subscribe(bus.KindUIError, 16)
	go func() {
		defer unsubViews()
		defer unsubStates()
		defer unsubErrs()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-views:
				if v, ok := evt.Payload.(intsync.View); ok {
					vm.mu.Lock()
					vm.view = v
					vm.mu.Unlock()
					vm.signalRefresh()
				}
			case evt := <-states:
				if change, ok := evt.Payload.(status.StatusChange); ok {
					vm.mu.Lock()
					vm.view.Status = change.To
					vm.mu.Unlock()
					vm.signalRefresh()
				}
			case evt := <-errs:
				if err, ok := evt.Payload.(error); ok {
					select {
					case vm.errCh <- err:
					default:
					}
				}
			}
		}
	}()
}

// Snapshot returns the latest view.
func (vm *ViewModel) Snapshot() intsync.View {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.view
}

// OpenByName opens the conversation with the first contact whose name or
// id contains query, case-insensitively.
func (vm *ViewModel) OpenByName(ctx context.Context, query string) (chat.User, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return chat.User{}, errors.New("usage: :chat <name>")
	}
	v := vm.Snapshot()
	i := slices.IndexFunc(v.Sidebar, func(e chat.SidebarEntry) bool {
		return strings.Contains(strings.ToLower(e.FullName), q) || strings.Contains(strings.ToLower(e.ID), q)
	})
	if i < 0 {
		return chat.User{}, fmt.Errorf("no contact matches %q", query)
	}
	u := v.Sidebar[i].User
	return u, vm.OpenConversation(ctx, u.ID)
}

// NewestFromPartner returns the newest persisted message written by the
// partner of the open conversation.
func (vm *ViewModel) NewestFromPartner() (chat.Message, bool) {
	v := vm.Snapshot()
	for i := len(v.Messages) - 1; i >= 0; i-- {
		m := v.Messages[i]
		if !m.Temporary && m.SenderID != v.Self {
			return m, true
		}
	}
	return chat.Message{}, false
}

// SendImage attaches the file at path as a data URL with an optional caption.
func (vm *ViewModel) SendImage(ctx context.Context, path, caption string) error {
	payload, err := ImageDataURL(path)
	if err != nil {
		return err
	}
	return vm.Send(ctx, caption, payload)
}

// ImageDataURL reads an image file into a data URL.
func ImageDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(data) > MaxImageBytes {
		return "", fmt.Errorf("%s is larger than %d bytes", path, MaxImageBytes)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%s is not an image (%s)", path, mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// DisplayName returns the contact's full name, or its id.
func DisplayName(u chat.User) string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.ID
}

// TypingLine describes who is typing in the open conversation.
func TypingLine(v intsync.View) string {
	if len(v.Typing) == 0 {
		return ""
	}
	names := make([]string, 0, len(v.Typing))
	for _, id := range v.Typing {
		name := id
		if id == v.Partner.ID {
			name = DisplayName(v.Partner)
		}
		names = append(names, name)
	}
	if len(names) == 1 {
		return names[0] + " is typing..."
	}
	return strings.Join(names, ", ") + " are typing..."
}
