package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key and channel this package touches.
const DefaultPrefix = "chatsync:"

// unregisterScript deletes the hash field only if it still holds ARGV[2].
var unregisterScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], ARGV[1]) == ARGV[2] then
	return redis.call("HDEL", KEYS[1], ARGV[1])
end
return 0
`)

// Redis is a Registry shared by every server instance through one hash.
type Redis struct {
	rdb *redis.Client
	key string
}

var _ Registry = (*Redis)(nil)

// NewRedis stores presence under prefix+"presence".
func NewRedis(rdb *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{rdb: rdb, key: prefix + "presence"}
}

func encodeHandle(h Handle) (string, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r *Redis) Register(ctx context.Context, userID string, h Handle) error {
	v, err := encodeHandle(h)
	if err != nil {
		return err
	}
	if err := r.rdb.HSet(ctx, r.key, userID, v).Err(); err != nil {
		return fmt.Errorf("register presence: %w", err)
	}
	return nil
}

func (r *Redis) Unregister(ctx context.Context, userID string, h Handle) (bool, error) {
	v, err := encodeHandle(h)
	if err != nil {
		return false, err
	}
	n, err := unregisterScript.Run(ctx, r.rdb, []string{r.key}, userID, v).Int()
	if err != nil {
		return false, fmt.Errorf("unregister presence: %w", err)
	}
	return n > 0, nil
}

func (r *Redis) Lookup(ctx context.Context, userID string) (Handle, bool, error) {
	v, err := r.rdb.HGet(ctx, r.key, userID).Result()
	if errors.Is(err, redis.Nil) {
		return Handle{}, false, nil
	}
	if err != nil {
		return Handle{}, false, fmt.Errorf("lookup presence: %w", err)
	}
	var h Handle
	if err := json.Unmarshal([]byte(v), &h); err != nil {
		return Handle{}, false, fmt.Errorf("decode presence: %w", err)
	}
	return h, true, nil
}

func (r *Redis) Online(ctx context.Context) ([]string, error) {
	ids, err := r.rdb.HKeys(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("online users: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Clear drops every entry owned by instance. Called on startup so a crashed
// instance does not leave users marked online.
func (r *Redis) Clear(ctx context.Context, instance string) (int, error) {
	all, err := r.rdb.HGetAll(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("scan presence: %w", err)
	}
	removed := 0
	for userID, v := range all {
		var h Handle
		if json.Unmarshal([]byte(v), &h) != nil || h.Instance != instance {
			continue
		}
		ok, err := r.Unregister(ctx, userID, h)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}
