// Package suggest produces reply suggestions for a selected message and
// accounts them against a per-user quota.
package suggest

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

// DefaultQuota is the number of suggestion rounds a user may request.
const DefaultQuota = 10

// Replies is the response of one suggestion round.
type Replies struct {
	Options []string `json:"replyOptions"`
	Used    int      `json:"updatedAiGeneratedRepliesCount"`
}

// Key addresses the client cache of suggestions.
func Key(conversationID, messageID string) string {
	return conversationID + ":" + messageID
}

// Suggester turns a message into candidate replies.
type Suggester interface {
	Suggest(ctx context.Context, target chat.Message) ([]string, error)
}

// Canned picks replies from fixed lists. Questions get answers, images get
// reactions, everything else gets acknowledgments.
type Canned struct{}

var (
	cannedQuestion = []string{"Yes, sounds good.", "Not sure yet, let me check.", "No, sorry.", "Let me get back to you on that."}
	cannedImage    = []string{"Nice picture!", "Where was this?", "Love it."}
	cannedDefault  = []string{"Got it, thanks!", "Sounds good.", "Haha, nice.", "Talk soon!", "Okay 👍"}
)

func (Canned) Suggest(_ context.Context, target chat.Message) ([]string, error) {
	pool := cannedDefault
	switch {
	case strings.HasSuffix(strings.TrimSpace(target.Text), "?"):
		pool = cannedQuestion
	case target.Text == "" && target.Image != "":
		pool = cannedImage
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(target.ID))
	start := int(h.Sum32() % uint32(len(pool)))
	out := make([]string, 0, 3)
	for i := 0; i < 3 && i < len(pool); i++ {
		out = append(out, pool[(start+i)%len(pool)])
	}
	return out, nil
}

// Service validates a suggestion request, spends quota and asks the
// Suggester.
type Service struct {
	store     store.Repository
	suggester Suggester
	quota     int
	logger    *zap.Logger
}

func NewService(st store.Repository, s Suggester, quota int, logger *zap.Logger) *Service {
	if s == nil {
		s = Canned{}
	}
	if quota <= 0 {
		quota = DefaultQuota
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, suggester: s, quota: quota, logger: logger}
}

// Generate returns suggestions for messageID. A message that is missing or
// belongs to another conversation yields store.ErrNotFound; an exhausted
// quota yields store.ErrQuotaExceeded.
func (s *Service) Generate(ctx context.Context, userID, conversationID, messageID string) (Replies, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return Replies{}, err
	}
	if !conv.Has(userID) {
		return Replies{}, store.ErrNotParticipant
	}
	target, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return Replies{}, err
	}
	if target.ConversationID != conv.ID {
		return Replies{}, store.ErrNotFound
	}

	used, err := s.store.ConsumeReply(ctx, userID, s.quota)
	if err != nil {
		return Replies{Used: used}, err
	}
	opts, err := s.suggester.Suggest(ctx, target)
	if err != nil {
		return Replies{Used: used}, fmt.Errorf("suggest replies: %w", err)
	}
	s.logger.Debug("reply suggestions generated",
		zap.String("conversation", conversationID),
		zap.String("message", messageID),
		zap.Int("used", used))
	return Replies{Options: opts, Used: used}, nil
}
