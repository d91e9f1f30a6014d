package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	stdsync "sync"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/clock"
	"github.com/matheus3301/chatsync/internal/event"
	"github.com/matheus3301/chatsync/internal/history"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/suggest"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// fakeAPI serves conversations from memory.
type fakeAPI struct {
	mu         stdsync.Mutex
	sidebar    []chat.SidebarEntry
	convs      map[string]chat.Conversation // by partner
	msgs       map[string][]chat.Message    // by conversation, ascending
	sendErr    error
	sidebarErr error
	onSend     func()
	// sendHook runs before a send is stored; a non-nil error fails it.
	sendHook func(chat.Draft) error
	// gates blocks History for a conversation until closed.
	gates       map[string]chan struct{}
	replyCalls  int
	historyHits int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		convs: map[string]chat.Conversation{},
		msgs:  map[string][]chat.Message{},
		gates: map[string]chan struct{}{},
	}
}

func (f *fakeAPI) Sidebar(context.Context) ([]chat.SidebarEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sidebar, f.sidebarErr
}

func (f *fakeAPI) Conversation(_ context.Context, partnerID string) (remote.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[partnerID]
	if ok {
		return remote.Conversation{Conversation: conv, SelectedUser: chat.User{ID: partnerID}}, nil
	}
	conv = chat.Conversation{ID: "conv-" + partnerID, Participants: chat.Pair("alice", partnerID)}
	f.convs[partnerID] = conv
	return remote.Conversation{Conversation: conv, SelectedUser: chat.User{ID: partnerID}, Created: true}, nil
}

func (f *fakeAPI) History(_ context.Context, conv string, page, limit int) (history.Page, error) {
	f.mu.Lock()
	gate := f.gates[conv]
	f.historyHits++
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.msgs[conv]
	end := len(all) - (page-1)*limit
	if end < 0 {
		end = 0
	}
	start := max(end-limit, 0)
	out := append([]chat.Message(nil), all[start:end]...)
	return history.Page{Messages: out, HasMore: len(out) == limit, CurrentPage: page}, nil
}

func (f *fakeAPI) Send(_ context.Context, receiverID string, d chat.Draft) (chat.Message, error) {
	if f.onSend != nil {
		f.onSend()
	}
	if f.sendHook != nil {
		if err := f.sendHook(d); err != nil {
			return chat.Message{}, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return chat.Message{}, f.sendErr
	}
	m := chat.Message{
		ID:             fmt.Sprintf("srv-%d", len(f.msgs[d.ConversationID])),
		ConversationID: d.ConversationID,
		SenderID:       "alice",
		ReceiverID:     receiverID,
		Text:           d.Text,
		Image:          d.Image,
		CreatedAt:      t0.Add(time.Hour),
		Status:         chat.StatusSent,
	}
	f.msgs[d.ConversationID] = append(f.msgs[d.ConversationID], m)
	return m, nil
}

func (f *fakeAPI) GenerateReplies(_ context.Context, conv, msg string) (suggest.Replies, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replyCalls++
	return suggest.Replies{Options: []string{"ok " + msg}, Used: f.replyCalls}, nil
}

// fakeChannel records emitted signals.
type fakeChannel struct {
	mu       stdsync.Mutex
	emitted  []event.Payload
	connects int
	err      error
	closes   int
}

func (f *fakeChannel) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.err
}

func (f *fakeChannel) Emit(p event.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, p)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeChannel) signals() []event.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]event.Payload(nil), f.emitted...)
}

type fixture struct {
	c     *Coordinator
	api   *fakeAPI
	ch    *fakeChannel
	bus   *bus.Bus
	clock *clock.Fake
}

func msg(id, conv, from, to string, st chat.Status, minute int) chat.Message {
	return chat.Message{
		ID: id, ConversationID: conv, SenderID: from, ReceiverID: to,
		Text: "text " + id, Status: st, CreatedAt: t0.Add(time.Duration(minute) * time.Minute),
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	api := newFakeAPI()
	api.sidebar = []chat.SidebarEntry{
		{User: chat.User{ID: "bob", FullName: "Bob"}},
		{User: chat.User{ID: "carol", FullName: "Carol"}},
	}
	ch := &fakeChannel{}
	b := bus.New()
	fc := clock.NewFake(t0)
	c := New(api, ch, b, nil, Options{
		UserID:    "alice",
		PageLimit: 3,
		Clock:     fc,
		Logger:    zap.NewNop(),
	})
	return &fixture{c: c, api: api, ch: ch, bus: b, clock: fc}
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := f.c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := f.c.View().Status; got != status.Ready {
		t.Fatalf("status = %s, want READY", got)
	}
}

func (f *fixture) open(t *testing.T, partner string) {
	t.Helper()
	if err := f.c.OpenConversation(context.Background(), partner); err != nil {
		t.Fatalf("OpenConversation(%s) error = %v", partner, err)
	}
}

func push(f *fixture, p event.Payload) {
	f.c.HandleEvent(context.Background(), bus.Event{Kind: bus.PushKind(p.EventName()), Payload: p})
}

func ids(msgs []chat.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func statuses(msgs []chat.Message) []chat.Status {
	out := make([]chat.Status, len(msgs))
	for i, m := range msgs {
		out[i] = m.Status
	}
	return out
}

func TestStartLoadsSidebar(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	v := f.c.View()
	if len(v.Sidebar) != 2 {
		t.Fatalf("sidebar = %d entries, want 2", len(v.Sidebar))
	}
	if f.ch.connects != 1 {
		t.Errorf("connects = %d, want 1", f.ch.connects)
	}
}

func TestOpenConversationJoinsAndLoads(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	for i := 0; i < 5; i++ {
		f.api.msgs["conv-bob"] = append(f.api.msgs["conv-bob"], msg(fmt.Sprintf("m%d", i), "conv-bob", "bob", "alice", chat.StatusDelivered, i))
	}

	f.open(t, "bob")
	v := f.c.View()
	if v.Conversation != "conv-bob" {
		t.Fatalf("active = %q, want conv-bob", v.Conversation)
	}
	if got := ids(v.Messages); fmt.Sprint(got) != "[m2 m3 m4]" {
		t.Errorf("messages = %v, want newest page ascending", got)
	}
	if !v.HasMore || v.Page != 1 || v.Loading {
		t.Errorf("page state = hasMore %v page %d loading %v", v.HasMore, v.Page, v.Loading)
	}
	// First contact attaches the conversation to the sidebar entry.
	if v.Sidebar[0].ConversationID != "conv-bob" {
		t.Errorf("sidebar conversation = %q, want conv-bob", v.Sidebar[0].ConversationID)
	}

	f.open(t, "carol")
	var join, leave int
	for _, s := range f.ch.signals() {
		switch p := s.(type) {
		case event.JoinConversation:
			join++
		case event.LeaveConversation:
			leave++
			if p.ConversationID != "conv-bob" {
				t.Errorf("left %q, want conv-bob", p.ConversationID)
			}
		}
	}
	if join != 2 || leave != 1 {
		t.Errorf("join/leave = %d/%d, want 2/1", join, leave)
	}

	// Reopening bob is served from the cache.
	hits := f.api.historyHits
	f.open(t, "bob")
	if f.api.historyHits != hits {
		t.Errorf("history fetched again for a cached conversation")
	}
	if got := ids(f.c.View().Messages); fmt.Sprint(got) != "[m2 m3 m4]" {
		t.Errorf("cached messages = %v", got)
	}
}

func TestLoadMoreReachesFullHistory(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	for i := 0; i < 7; i++ {
		f.api.msgs["conv-bob"] = append(f.api.msgs["conv-bob"], msg(fmt.Sprintf("m%d", i), "conv-bob", "bob", "alice", chat.StatusSeen, i))
	}
	f.open(t, "bob")

	for i := 0; i < 5 && f.c.View().HasMore; i++ {
		if err := f.c.LoadMore(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	v := f.c.View()
	if got := ids(v.Messages); fmt.Sprint(got) != "[m0 m1 m2 m3 m4 m5 m6]" {
		t.Errorf("messages = %v, want full ascending history", got)
	}
	if v.HasMore {
		t.Error("HasMore should be false after the last short page")
	}
}

// TestStaleHistoryIsNotApplied verifies that a slow page for a conversation
// the user already left never replaces the visible one.
func TestStaleHistoryIsNotApplied(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.api.msgs["conv-bob"] = []chat.Message{msg("b1", "conv-bob", "bob", "alice", chat.StatusSent, 1)}
	f.api.msgs["conv-carol"] = []chat.Message{msg("c1", "conv-carol", "carol", "alice", chat.StatusSent, 1)}
	gate := make(chan struct{})
	f.api.gates["conv-bob"] = gate

	done := make(chan error, 1)
	go func() { done <- f.c.OpenConversation(context.Background(), "bob") }()

	// Wait until the bob request is in flight.
	deadline := time.After(2 * time.Second)
	for {
		f.api.mu.Lock()
		hits := f.api.historyHits
		f.api.mu.Unlock()
		if hits == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("bob history never requested")
		case <-time.After(5 * time.Millisecond):
		}
	}

	f.open(t, "carol")
	close(gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	v := f.c.View()
	if v.Conversation != "conv-carol" || fmt.Sprint(ids(v.Messages)) != "[c1]" {
		t.Errorf("view = %s %v, want conv-carol [c1]", v.Conversation, ids(v.Messages))
	}
}

func TestSendCommitsAndResortsSidebar(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.open(t, "carol")

	var during []chat.Message
	f.api.onSend = func() { during = f.c.View().Messages }
	if err := f.c.Send(context.Background(), "hello", ""); err != nil {
		t.Fatal(err)
	}

	if len(during) != 1 || !during[0].Temporary || during[0].Status != chat.StatusSending {
		t.Fatalf("during send = %+v, want one temporary sending message", during)
	}
	v := f.c.View()
	if len(v.Messages) != 1 || v.Messages[0].ID != "srv-0" || v.Messages[0].Temporary {
		t.Fatalf("after send = %+v, want authoritative srv-0", v.Messages)
	}
	if v.Sidebar[0].ID != "carol" || v.Sidebar[0].LastMessage == nil || v.Sidebar[0].LastMessage.Content != "hello" {
		t.Errorf("sidebar head = %+v, want carol with last message hello", v.Sidebar[0])
	}
}

func TestSendFailureRestoresMessages(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.api.msgs["conv-bob"] = []chat.Message{msg("m1", "conv-bob", "bob", "alice", chat.StatusSeen, 1)}
	f.open(t, "bob")
	before := ids(f.c.View().Messages)

	errs, unsub := f.bus.Subscribe(bus.KindUIError, 10)
	defer unsub()
	f.api.sendErr = &remote.Error{Message: "boom", Status: http.StatusInternalServerError}

	if err := f.c.Send(context.Background(), "hello", ""); err == nil {
		t.Fatal("Send() should fail")
	}
	v := f.c.View()
	if fmt.Sprint(ids(v.Messages)) != fmt.Sprint(before) {
		t.Errorf("messages = %v, want %v", ids(v.Messages), before)
	}
	for _, m := range v.Messages {
		if m.Temporary {
			t.Error("temporary message survived rollback")
		}
	}
	select {
	case <-errs:
	case <-time.After(time.Second):
		t.Fatal("no ui.error published")
	}
}

// TestOverlappingSendsKeepCommittedMessage sends twice before either request
// returns. The first succeeds, then the second fails; the failure must only
// remove its own echo.
func TestOverlappingSendsKeepCommittedMessage(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.open(t, "bob")

	firstGate := make(chan struct{})
	secondGate := make(chan struct{})
	f.api.sendHook = func(d chat.Draft) error {
		if d.Text == "first" {
			<-firstGate
			return nil
		}
		<-secondGate
		return &remote.Error{Message: "boom", Status: http.StatusBadGateway}
	}

	waitEchoes := func(n int) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			count := 0
			for _, m := range f.c.View().Messages {
				if m.Temporary {
					count++
				}
			}
			if count == n {
				return
			}
			select {
			case <-deadline:
				t.Fatalf("never saw %d echoes", n)
			case <-time.After(5 * time.Millisecond):
			}
		}
	}

	first := make(chan error, 1)
	go func() { first <- f.c.Send(context.Background(), "first", "") }()
	waitEchoes(1)
	second := make(chan error, 1)
	go func() { second <- f.c.Send(context.Background(), "second", "") }()
	waitEchoes(2)

	close(firstGate)
	if err := <-first; err != nil {
		t.Fatalf("first Send() error = %v", err)
	}
	close(secondGate)
	if err := <-second; err == nil {
		t.Fatal("second Send() should fail")
	}

	v := f.c.View()
	if got := ids(v.Messages); fmt.Sprint(got) != "[srv-0]" {
		t.Fatalf("messages = %v, want [srv-0]", got)
	}
	if v.Messages[0].Temporary || v.Messages[0].Text != "first" {
		t.Errorf("message = %+v, want persisted first", v.Messages[0])
	}
}

// TestPushBeforeSendResponse verifies that the pushed copy of a message and
// the send response merge into one entry.
func TestPushBeforeSendResponse(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.open(t, "bob")

	f.api.onSend = func() {
		push(f, event.NewMessage{Message: msg("srv-0", "conv-bob", "alice", "bob", chat.StatusDelivered, 60)})
	}
	if err := f.c.Send(context.Background(), "hi", ""); err != nil {
		t.Fatal(err)
	}
	if got := ids(f.c.View().Messages); fmt.Sprint(got) != "[srv-0]" {
		t.Errorf("messages = %v, want one srv-0", got)
	}
}

// TestOfflineDeliveryThenSeen walks alice's own messages through the
// receipt events without refetching.
func TestOfflineDeliveryThenSeen(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.api.msgs["conv-bob"] = []chat.Message{
		msg("a1", "conv-bob", "alice", "bob", chat.StatusSent, 1),
		msg("a2", "conv-bob", "alice", "bob", chat.StatusSent, 2),
		msg("b1", "conv-bob", "bob", "alice", chat.StatusSent, 3),
	}
	f.open(t, "bob")
	hits := f.api.historyHits

	push(f, event.MessageDelivered{ConversationID: "conv-bob"})
	got := statuses(f.c.View().Messages)
	want := []chat.Status{chat.StatusDelivered, chat.StatusDelivered, chat.StatusSent}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("after delivered = %v, want %v", got, want)
	}

	push(f, event.MessagesSeen{ConversationID: "conv-bob"})
	got = statuses(f.c.View().Messages)
	want = []chat.Status{chat.StatusSeen, chat.StatusSeen, chat.StatusSent}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("after seen = %v, want %v", got, want)
	}

	// A late delivered event never moves a message backwards.
	push(f, event.MessageDelivered{ConversationID: "conv-bob"})
	if fmt.Sprint(statuses(f.c.View().Messages)) != fmt.Sprint(want) {
		t.Error("status regressed")
	}
	if f.api.historyHits != hits {
		t.Error("receipt events must not refetch history")
	}
}

func TestMessageVisibleSendsSeenOnce(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.api.msgs["conv-bob"] = []chat.Message{
		msg("b1", "conv-bob", "bob", "alice", chat.StatusDelivered, 1),
		msg("b2", "conv-bob", "bob", "alice", chat.StatusDelivered, 2),
	}
	f.open(t, "bob")

	countSeen := func() int {
		n := 0
		for _, s := range f.ch.signals() {
			if _, ok := s.(event.SeenMessage); ok {
				n++
			}
		}
		return n
	}

	f.c.MessageVisible("b2", 0.4)
	f.c.MessageVisible("b1", 1)
	if n := countSeen(); n != 0 {
		t.Fatalf("seen sent %d times for an older or barely visible message", n)
	}
	f.c.MessageVisible("b2", 0.5)
	f.c.MessageVisible("b2", 1)
	if n := countSeen(); n != 1 {
		t.Fatalf("seen sent %d times, want 1", n)
	}

	// Own newest message never triggers seen.
	if err := f.c.Send(context.Background(), "reply", ""); err != nil {
		t.Fatal(err)
	}
	v := f.c.View()
	f.c.MessageVisible(v.Messages[len(v.Messages)-1].ID, 1)
	if n := countSeen(); n != 1 {
		t.Errorf("seen sent for own message")
	}
}

func TestTypingIsScopedToConversation(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.open(t, "bob")

	push(f, event.UserTyping{SenderID: "carol", ConversationID: "conv-carol"})
	if len(f.c.View().Typing) != 0 {
		t.Fatal("typing from another conversation leaked into the open one")
	}
	push(f, event.UserTyping{SenderID: "bob", ConversationID: "conv-bob"})
	push(f, event.UserTyping{SenderID: "bob", ConversationID: "conv-bob"})
	if got := f.c.View().Typing; len(got) != 1 || got[0] != "bob" {
		t.Fatalf("typing = %v, want [bob]", got)
	}
	push(f, event.UserStoppedTyping{SenderID: "bob", ConversationID: "conv-bob"})
	if len(f.c.View().Typing) != 0 {
		t.Error("typing not cleared")
	}
}

// TestPartnerGoingOfflineClearsTyping covers a partner whose connection drops
// mid-burst so that no stop signal ever arrives.
func TestPartnerGoingOfflineClearsTyping(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.open(t, "bob")

	push(f, event.OnlineUsers{UserIDs: []string{"alice", "bob"}})
	push(f, event.UserTyping{SenderID: "bob", ConversationID: "conv-bob"})
	if got := f.c.View().Typing; len(got) != 1 {
		t.Fatalf("typing = %v, want [bob]", got)
	}

	push(f, event.OnlineUsers{UserIDs: []string{"alice"}})
	if got := f.c.View().Typing; len(got) != 0 {
		t.Errorf("typing = %v after bob went offline, want none", got)
	}
}

func TestKeystrokesAreDebounced(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.open(t, "bob")

	for _, text := range []string{"h", "he", "hel"} {
		f.c.Keystroke(text)
		f.clock.Advance(time.Second)
	}
	f.clock.Advance(time.Second)

	var starts, stops int
	for _, s := range f.ch.signals() {
		switch p := s.(type) {
		case event.Typing:
			starts++
			if p.SenderID != "alice" || p.ConversationID != "conv-bob" {
				t.Errorf("typing = %+v", p)
			}
		case event.StopTyping:
			stops++
		}
	}
	if starts != 1 || stops != 1 {
		t.Errorf("starts/stops = %d/%d, want 1/1", starts, stops)
	}
}

func TestOnlineUsers(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	push(f, event.OnlineUsers{UserIDs: []string{"carol", "bob", "bob"}})
	v := f.c.View()
	if !v.IsOnline("bob") || !v.IsOnline("carol") || v.IsOnline("dave") {
		t.Errorf("online = %v", v.Online)
	}
}

func TestNewConversationAttachesSidebar(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	conv := chat.Conversation{ID: "conv-x", Participants: chat.Pair("alice", "carol")}
	push(f, event.NewConversation{Conversation: conv, SenderID: "carol"})
	for _, e := range f.c.View().Sidebar {
		if e.ID == "carol" && e.ConversationID != "conv-x" {
			t.Errorf("carol conversation = %q, want conv-x", e.ConversationID)
		}
	}
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.c.HandleEvent(context.Background(), bus.Event{Kind: "push.newMessage", Payload: nil})
	f.c.HandleEvent(context.Background(), bus.Event{Kind: "push.newMessage", Payload: event.NewMessage{}})
	if f.c.View().Status != status.Ready {
		t.Error("coordinator state changed by a bad event")
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.c.HandleEvent(context.Background(), bus.Event{Kind: bus.KindPushClosed, Payload: remote.Closed{Err: errors.New("eof")}})
	if got := f.c.View().Status; got != status.Reconnecting {
		t.Fatalf("status = %s, want RECONNECTING", got)
	}

	f.clock.Advance(time.Second)

	deadline := time.After(2 * time.Second)
	for f.c.View().Status != status.Ready {
		select {
		case <-deadline:
			t.Fatalf("status = %s, want READY after reconnect", f.c.View().Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestUnauthenticatedLogsOut(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.open(t, "bob")

	f.api.sidebarErr = &remote.Error{Message: "unauthorized", Status: http.StatusUnauthorized}
	if _, err := f.c.LoadSidebar(context.Background(), true); err == nil {
		t.Fatal("LoadSidebar() should fail")
	}

	v := f.c.View()
	if v.Status != status.LoggedOut {
		t.Errorf("status = %s, want LOGGED_OUT", v.Status)
	}
	if v.Conversation != "" || v.Messages != nil || v.Sidebar != nil {
		t.Errorf("view not reset: %+v", v)
	}
	if f.c.byConv.Len() != 0 || f.c.byPartner.Len() != 0 || f.c.sidebarCache.Len() != 0 {
		t.Error("caches not cleared")
	}
	if f.ch.closes == 0 {
		t.Error("push channel not closed")
	}
}

func TestGenerateRepliesCaches(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.open(t, "bob")

	first, err := f.c.GenerateReplies(context.Background(), "m1", false)
	if err != nil {
		t.Fatal(err)
	}
	again, _ := f.c.GenerateReplies(context.Background(), "m1", false)
	if f.api.replyCalls != 1 || again.Used != first.Used {
		t.Errorf("cached replies refetched: calls = %d", f.api.replyCalls)
	}
	fresh, _ := f.c.GenerateReplies(context.Background(), "m1", true)
	if f.api.replyCalls != 2 || fresh.Used != 2 {
		t.Errorf("regenerate did not refetch: calls = %d", f.api.replyCalls)
	}
}
