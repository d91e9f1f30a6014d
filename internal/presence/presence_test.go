package presence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/matheus3301/chatsync/internal/event"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func registries(t *testing.T) map[string]Registry {
	return map[string]Registry{
		"memory": NewMemory(),
		"redis":  NewRedis(testRedis(t), ""),
	}
}

func TestRegistryReplaceAndConditionalUnregister(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := Handle{Instance: "a", ConnID: "c1"}
			second := Handle{Instance: "a", ConnID: "c2"}

			require.NoError(t, reg.Register(ctx, "alice", first))
			require.NoError(t, reg.Register(ctx, "alice", second))

			h, ok, err := reg.Lookup(ctx, "alice")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, second, h)

			// The replaced connection closing must not evict the new one.
			removed, err := reg.Unregister(ctx, "alice", first)
			require.NoError(t, err)
			assert.False(t, removed)
			_, ok, _ = reg.Lookup(ctx, "alice")
			assert.True(t, ok)

			removed, err = reg.Unregister(ctx, "alice", second)
			require.NoError(t, err)
			assert.True(t, removed)
			_, ok, _ = reg.Lookup(ctx, "alice")
			assert.False(t, ok)
		})
	}
}

func TestRegistryOnlineSorted(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []string{"carol", "alice", "bob"} {
				require.NoError(t, reg.Register(ctx, id, Handle{Instance: "a", ConnID: id}))
			}
			ids, err := reg.Online(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"alice", "bob", "carol"}, ids)
		})
	}
}

func TestRedisClearInstance(t *testing.T) {
	ctx := context.Background()
	reg := NewRedis(testRedis(t), "test:")
	require.NoError(t, reg.Register(ctx, "alice", Handle{Instance: "dead", ConnID: "1"}))
	require.NoError(t, reg.Register(ctx, "bob", Handle{Instance: "live", ConnID: "2"}))

	n, err := reg.Clear(ctx, "dead")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ids, err := reg.Online(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, ids)
}

func TestRedisRelayRoutesByInstance(t *testing.T) {
	rdb := testRedis(t)
	relay := NewRedisRelay(rdb, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Delivery, 4)
	done := make(chan error, 1)
	go func() { done <- relay.Listen(ctx, "b", func(d Delivery) { got <- d }) }()

	data, _ := json.Marshal(event.Typing{ConversationID: "c1"})
	d := Delivery{UserID: "bob", Origin: "a", Event: event.Envelope{Event: event.NameTyping, Data: data}}

	// Wait for the subscriber to attach.
	require.Eventually(t, func() bool {
		n, err := rdb.PubSubNumSub(ctx, DefaultPrefix+"relay:b").Result()
		return err == nil && n[DefaultPrefix+"relay:b"] > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, relay.Send(ctx, "other", d))
	require.NoError(t, relay.Send(ctx, "b", d))

	select {
	case recv := <-got:
		assert.Equal(t, "bob", recv.UserID)
		assert.Equal(t, event.NameTyping, recv.Event.Event)
	case <-time.After(2 * time.Second):
		t.Fatal("delivery not received")
	}

	// Broadcasts from the listener's own instance are skipped.
	require.NoError(t, relay.Broadcast(ctx, Delivery{Origin: "b", Event: d.Event}))
	require.NoError(t, relay.Broadcast(ctx, Delivery{Origin: "a", Event: d.Event}))
	select {
	case recv := <-got:
		assert.Equal(t, "a", recv.Origin)
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast not received")
	}
	select {
	case extra := <-got:
		t.Fatalf("unexpected delivery %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return")
	}
}
