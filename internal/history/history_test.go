package history

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSource keeps a conversation in ascending order.
type memSource struct {
	msgs []chat.Message
	err  error
}

func (s *memSource) ListMessagesDesc(_ context.Context, _ string, skip, limit int) ([]chat.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []chat.Message
	for i := len(s.msgs) - 1 - skip; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.msgs[i])
	}
	return out, nil
}

// serviceFetcher lets the client loader talk to the server service directly.
type serviceFetcher struct{ svc *Service }

func (f serviceFetcher) History(ctx context.Context, conv string, page, limit int) (Page, error) {
	return f.svc.Page(ctx, conv, page, limit)
}

func conversation(n int) []chat.Message {
	base := time.UnixMilli(1_700_000_000_000)
	msgs := make([]chat.Message, n)
	for i := range msgs {
		msgs[i] = chat.Message{ID: fmt.Sprintf("m%03d", i), ConversationID: "c1", CreatedAt: base.Add(time.Duration(i) * time.Second)}
	}
	return msgs
}

func ids(msgs []chat.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestServicePageAscending(t *testing.T) {
	svc := NewService(&memSource{msgs: conversation(15)}, 10)

	p, err := svc.Page(context.Background(), "c1", 1, 0)
	require.NoError(t, err)
	assert.Len(t, p.Messages, 10)
	assert.Equal(t, "m005", p.Messages[0].ID)
	assert.Equal(t, "m014", p.Messages[9].ID)
	assert.True(t, p.HasMore)
	assert.Equal(t, 1, p.CurrentPage)

	p, err = svc.Page(context.Background(), "c1", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"m000", "m001", "m002", "m003", "m004"}, ids(p.Messages))
	assert.False(t, p.HasMore)
}

func TestServiceExactMultipleCostsOneEmptyFetch(t *testing.T) {
	svc := NewService(&memSource{msgs: conversation(10)}, 10)
	p, err := svc.Page(context.Background(), "c1", 1, 10)
	require.NoError(t, err)
	assert.True(t, p.HasMore)

	p, err = svc.Page(context.Background(), "c1", 2, 10)
	require.NoError(t, err)
	assert.Empty(t, p.Messages)
	assert.False(t, p.HasMore)
}

func TestServiceClampsLimit(t *testing.T) {
	svc := NewService(&memSource{msgs: conversation(150)}, 0)
	p, err := svc.Page(context.Background(), "c1", 0, 1000)
	require.NoError(t, err)
	assert.Len(t, p.Messages, MaxLimit)
	assert.Equal(t, 1, p.CurrentPage)
}

func TestServiceRejectsHugePage(t *testing.T) {
	src := &countingSource{}
	svc := NewService(src, 10)

	_, err := svc.Page(context.Background(), "c1", math.MaxInt, MaxLimit)
	assert.ErrorIs(t, err, ErrPageOutOfRange)
	assert.Zero(t, src.calls, "source must not see an overflowed offset")

	_, err = svc.Page(context.Background(), "c1", MaxPage, MaxLimit)
	require.NoError(t, err)
	assert.Equal(t, (MaxPage-1)*MaxLimit, src.lastSkip)
}

func TestLoaderNeverAsksAboveMaxLimit(t *testing.T) {
	assert.Equal(t, MaxLimit, NewLoader(nil, 5000).limit)
	assert.Equal(t, DefaultLimit, NewLoader(nil, 0).limit)
}

type countingSource struct {
	calls    int
	lastSkip int
}

func (s *countingSource) ListMessagesDesc(_ context.Context, _ string, skip, _ int) ([]chat.Message, error) {
	s.calls++
	s.lastSkip = skip
	return nil, nil
}

func TestServiceWrapsSourceError(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(&memSource{err: boom}, 10)
	_, err := svc.Page(context.Background(), "c1", 1, 10)
	assert.ErrorIs(t, err, boom)
}

func TestPaginationCompleteness(t *testing.T) {
	for _, n := range []int{0, 1, 9, 10, 11, 25, 30} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			all := conversation(n)
			loader := NewLoader(serviceFetcher{NewService(&memSource{msgs: all}, 10)}, 10)
			ctx := context.Background()

			p, err := loader.LoadInitial(ctx, "c1")
			require.NoError(t, err)
			for p.HasMore {
				p, err = loader.LoadMore(ctx, "c1", p.CurrentPage, p.Messages)
				require.NoError(t, err)
			}
			assert.Equal(t, ids(all), ids(p.Messages))
		})
	}
}

func TestPrependDropsDuplicates(t *testing.T) {
	existing := []chat.Message{{ID: "m3"}, {ID: "m4"}, {Text: "pending", Temporary: true}}
	older := []chat.Message{{ID: "m1"}, {ID: "m2"}, {ID: "m3"}}

	got := Prepend(existing, older)
	assert.Equal(t, []string{"m1", "m2", "m3", "m4", ""}, ids(got))
	assert.Len(t, existing, 3, "input untouched")
}
