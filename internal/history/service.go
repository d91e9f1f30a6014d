// Package history serves conversation history one page at a time and merges
// older pages into an already loaded timeline on the client.
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/chatsync/internal/chat"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
	// MaxPage keeps (page-1)*limit far away from int overflow.
	MaxPage = 1_000_000
)

// ErrPageOutOfRange is returned for a page number above MaxPage.
var ErrPageOutOfRange = errors.New("page out of range")

// Page is one slice of a conversation in ascending chronological order.
type Page struct {
	Messages    []chat.Message `json:"messages"`
	HasMore     bool           `json:"hasMore"`
	CurrentPage int            `json:"currentPage"`
}

// Source lists a conversation newest first.
type Source interface {
	ListMessagesDesc(ctx context.Context, conversationID string, skip, limit int) ([]chat.Message, error)
}

// Service pages history out of a Source.
type Service struct {
	src          Source
	defaultLimit int
}

// NewService returns a Service whose pages default to limit messages.
func NewService(src Source, limit int) *Service {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Service{src: src, defaultLimit: limit}
}

// Page returns the page-th newest block of limit messages, oldest first.
// HasMore is true whenever the page came back full, so a conversation whose
// size is an exact multiple of limit costs one extra empty fetch.
func (s *Service) Page(ctx context.Context, conversationID string, page, limit int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		return Page{}, fmt.Errorf("history page %d: %w", page, ErrPageOutOfRange)
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	desc, err := s.src.ListMessagesDesc(ctx, conversationID, (page-1)*limit, limit)
	if err != nil {
		return Page{}, fmt.Errorf("history page %d: %w", page, err)
	}
	msgs := make([]chat.Message, len(desc))
	for i, m := range desc {
		msgs[len(desc)-1-i] = m
	}
	return Page{Messages: msgs, HasMore: len(desc) == limit, CurrentPage: page}, nil
}
