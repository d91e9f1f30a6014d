package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/clock"
	"go.uber.org/zap"
)

// mockPersister records calls and returns configurable results.
type mockPersister struct {
	calls []sendCall
	err   error
	// observe runs during the call so tests can inspect intermediate state.
	observe func()
}

type sendCall struct {
	ReceiverID string
	Draft      chat.Draft
}

func (m *mockPersister) Send(_ context.Context, receiverID string, d chat.Draft) (chat.Message, error) {
	m.calls = append(m.calls, sendCall{ReceiverID: receiverID, Draft: d})
	if m.observe != nil {
		m.observe()
	}
	if m.err != nil {
		return chat.Message{}, m.err
	}
	return chat.Message{
		ID:             "srv-1",
		ConversationID: d.ConversationID,
		SenderID:       "alice",
		ReceiverID:     receiverID,
		Text:           d.Text,
		Image:          d.Image,
		Status:         chat.StatusSent,
	}, nil
}

// memTimeline is a minimal Timeline over one message list per conversation.
type memTimeline struct {
	msgs map[string][]chat.Message
}

func newTimeline(existing ...chat.Message) *memTimeline {
	tl := &memTimeline{msgs: map[string][]chat.Message{}}
	for _, m := range existing {
		tl.msgs[m.ConversationID] = append(tl.msgs[m.ConversationID], m)
	}
	return tl
}

func (tl *memTimeline) Echo(m chat.Message) {
	tl.msgs[m.ConversationID] = append(tl.msgs[m.ConversationID], m)
}

func (tl *memTimeline) Commit(localID string, m chat.Message) {
	msgs := chat.WithoutEcho(tl.msgs[m.ConversationID], localID)
	tl.msgs[m.ConversationID], _ = chat.AppendUnique(msgs, m)
}

func (tl *memTimeline) Discard(conv, localID string) {
	tl.msgs[conv] = chat.WithoutEcho(tl.msgs[conv], localID)
}

type countingStopper struct{ n int }

func (s *countingStopper) Stop() { s.n++ }

func newPipeline(p Persister, tl Timeline, stopper TypingStopper, b *bus.Bus) *Pipeline {
	return NewPipeline(p, tl, stopper, b, clock.NewFake(time.Unix(100, 0)), zap.NewNop())
}

func TestSendEchoesThenCommits(t *testing.T) {
	tl := newTimeline(chat.Message{ID: "m0", ConversationID: "c1", Status: chat.StatusSeen})
	persister := &mockPersister{}
	stopper := &countingStopper{}
	p := newPipeline(persister, tl, stopper, nil)

	persister.observe = func() {
		msgs := tl.msgs["c1"]
		if len(msgs) != 2 {
			t.Fatalf("during send got %d messages, want 2", len(msgs))
		}
		echo := msgs[1]
		if !echo.Temporary || echo.ID != "" || echo.LocalID == "" || echo.Status != chat.StatusSending {
			t.Errorf("echo = %+v, want temporary sending message without id", echo)
		}
		if stopper.n != 1 {
			t.Errorf("typing stopped %d times before persist, want 1", stopper.n)
		}
	}

	err := p.Send(context.Background(), Request{
		ConversationID: "c1", SenderID: "alice", ReceiverID: "bob", Text: "hello",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(persister.calls) != 1 || persister.calls[0].ReceiverID != "bob" {
		t.Fatalf("calls = %+v, want one call to bob", persister.calls)
	}
	msgs := tl.msgs["c1"]
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[1].ID != "srv-1" || msgs[1].Temporary {
		t.Errorf("last message = %+v, want authoritative srv-1", msgs[1])
	}
}

// TestSendFailureDiscardsEcho verifies that no temporary message survives a
// failed send and the error reaches the UI through the bus.
func TestSendFailureDiscardsEcho(t *testing.T) {
	before := []chat.Message{
		{ID: "m0", ConversationID: "c1", Status: chat.StatusSeen},
		{ID: "m1", ConversationID: "c1", Status: chat.StatusDelivered},
	}
	tl := newTimeline(before...)
	netErr := errors.New("connection refused")
	b := bus.New()
	ch, unsub := b.Subscribe("ui.", 10)
	defer unsub()

	p := newPipeline(&mockPersister{err: netErr}, tl, nil, b)
	err := p.Send(context.Background(), Request{
		ConversationID: "c1", SenderID: "alice", ReceiverID: "bob", Text: "hello",
	})
	if !errors.Is(err, netErr) {
		t.Fatalf("Send() error = %v, want wrapping %v", err, netErr)
	}

	got := tl.msgs["c1"]
	if len(got) != len(before) {
		t.Fatalf("after discard got %d messages, want %d", len(got), len(before))
	}
	for i := range before {
		if got[i].ID != before[i].ID || got[i].Temporary {
			t.Errorf("message %d = %+v, want %+v", i, got[i], before[i])
		}
	}

	select {
	case evt := <-ch:
		sendErr, ok := evt.Payload.(*SendError)
		if !ok {
			t.Fatalf("payload type = %T, want *SendError", evt.Payload)
		}
		if sendErr.ConversationID != "c1" {
			t.Errorf("error conversation = %q, want c1", sendErr.ConversationID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for ui.error")
	}
}

func TestSendIgnoresIncompleteRequests(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"empty", Request{ConversationID: "c1", ReceiverID: "bob"}},
		{"whitespace", Request{ConversationID: "c1", ReceiverID: "bob", Text: "  "}},
		{"no conversation", Request{ReceiverID: "bob", Text: "hi"}},
		{"no receiver", Request{ConversationID: "c1", Text: "hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			persister := &mockPersister{}
			tl := newTimeline()
			p := newPipeline(persister, tl, nil, nil)
			if err := p.Send(context.Background(), tt.req); err != nil {
				t.Fatalf("Send() error = %v", err)
			}
			if len(persister.calls) != 0 {
				t.Errorf("persister called %d times, want 0", len(persister.calls))
			}
			if len(tl.msgs) != 0 {
				t.Errorf("timeline touched: %+v", tl.msgs)
			}
		})
	}
}

func TestImageOnlySend(t *testing.T) {
	persister := &mockPersister{}
	tl := newTimeline()
	p := newPipeline(persister, tl, nil, nil)

	err := p.Send(context.Background(), Request{
		ConversationID: "c1", SenderID: "alice", ReceiverID: "bob", Image: "data:image/png;base64,AAAA",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := persister.calls[0].Draft.Image; got == "" {
		t.Error("image not forwarded to persister")
	}
}

// TestFailedSendKeepsOtherEchoes starts a second send while the first is in
// flight; the first fails and must take only its own echo with it.
func TestFailedSendKeepsOtherEchoes(t *testing.T) {
	tl := newTimeline()
	netErr := errors.New("timeout")
	outer := &mockPersister{err: netErr}
	inner := &mockPersister{}
	p := newPipeline(outer, tl, nil, nil)
	second := newPipeline(inner, tl, nil, nil)

	outer.observe = func() {
		err := second.Send(context.Background(), Request{
			ConversationID: "c1", SenderID: "alice", ReceiverID: "bob", Text: "second",
		})
		if err != nil {
			t.Errorf("inner Send() error = %v", err)
		}
	}
	err := p.Send(context.Background(), Request{
		ConversationID: "c1", SenderID: "alice", ReceiverID: "bob", Text: "first",
	})
	if !errors.Is(err, netErr) {
		t.Fatalf("Send() error = %v, want %v", err, netErr)
	}

	got := tl.msgs["c1"]
	if len(got) != 1 || got[0].ID != "srv-1" || got[0].Temporary {
		t.Fatalf("messages = %+v, want only the persisted second send", got)
	}
}
