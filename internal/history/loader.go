package history

import (
	"context"

	"github.com/matheus3301/chatsync/internal/chat"
)

// Fetcher retrieves one page of history from the server.
type Fetcher interface {
	History(ctx context.Context, conversationID string, page, limit int) (Page, error)
}

// Loader is the client side of pagination.
type Loader struct {
	fetch Fetcher
	limit int
}

func NewLoader(f Fetcher, limit int) *Loader {
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	return &Loader{fetch: f, limit: limit}
}

// LoadInitial fetches the newest page of a conversation.
func (l *Loader) LoadInitial(ctx context.Context, conversationID string) (Page, error) {
	p, err := l.fetch.History(ctx, conversationID, 1, l.limit)
	if err != nil {
		return Page{}, err
	}
	p.CurrentPage = 1
	p.HasMore = len(p.Messages) == l.limit
	return p, nil
}

// LoadMore fetches the page after current and prepends it to existing.
// The returned page carries the merged list.
func (l *Loader) LoadMore(ctx context.Context, conversationID string, current int, existing []chat.Message) (Page, error) {
	next := current + 1
	p, err := l.fetch.History(ctx, conversationID, next, l.limit)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Messages:    Prepend(existing, p.Messages),
		HasMore:     len(p.Messages) == l.limit,
		CurrentPage: next,
	}, nil
}

// Prepend puts older in front of existing, dropping any older message whose
// id is already present. existing is not modified.
func Prepend(existing, older []chat.Message) []chat.Message {
	seen := make(map[string]struct{}, len(existing))
	for _, m := range existing {
		if m.ID != "" {
			seen[m.ID] = struct{}{}
		}
	}
	out := make([]chat.Message, 0, len(older)+len(existing))
	for _, m := range older {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	return append(out, existing...)
}
