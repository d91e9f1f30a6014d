package presence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/matheus3301/chatsync/internal/event"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Delivery is an event addressed to a user whose connection lives on
// another instance. An empty UserID addresses every local connection.
type Delivery struct {
	UserID string         `json:"userId,omitempty"`
	ConnID string         `json:"connId,omitempty"`
	Origin string         `json:"origin"`
	Event  event.Envelope `json:"event"`
}

// Relay forwards deliveries between server instances.
type Relay interface {
	Send(ctx context.Context, instance string, d Delivery) error
	Broadcast(ctx context.Context, d Delivery) error
	// Listen blocks, calling fn for every delivery addressed to instance or
	// broadcast, until ctx is cancelled.
	Listen(ctx context.Context, instance string, fn func(Delivery)) error
}

// RedisRelay implements Relay over redis pub/sub.
type RedisRelay struct {
	rdb    *redis.Client
	prefix string
	logger *zap.Logger
}

var _ Relay = (*RedisRelay)(nil)

func NewRedisRelay(rdb *redis.Client, prefix string, logger *zap.Logger) *RedisRelay {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{rdb: rdb, prefix: prefix, logger: logger}
}

func (r *RedisRelay) instanceChannel(instance string) string {
	return r.prefix + "relay:" + instance
}

func (r *RedisRelay) broadcastChannel() string {
	return r.prefix + "relay:all"
}

func (r *RedisRelay) publish(ctx context.Context, channel string, d Delivery) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode delivery: %w", err)
	}
	if err := r.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish delivery: %w", err)
	}
	return nil
}

func (r *RedisRelay) Send(ctx context.Context, instance string, d Delivery) error {
	return r.publish(ctx, r.instanceChannel(instance), d)
}

func (r *RedisRelay) Broadcast(ctx context.Context, d Delivery) error {
	return r.publish(ctx, r.broadcastChannel(), d)
}

func (r *RedisRelay) Listen(ctx context.Context, instance string, fn func(Delivery)) error {
	sub := r.rdb.Subscribe(ctx, r.instanceChannel(instance), r.broadcastChannel())
	defer func() { _ = sub.Close() }()

	// Wait for the subscription to be confirmed before consuming.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe relay: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var d Delivery
			if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
				r.logger.Warn("dropping malformed delivery", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if msg.Channel == r.broadcastChannel() && d.Origin == instance {
				continue
			}
			fn(d)
		}
	}
}
