package onetime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "onetime:"

// redeemScript atomically reads and deletes the entry; this is the
// consumed-check-and-set for the multi-process deployment. Expiry is
// enforced by the key's Redis TTL plus a belt-and-braces check in Go.
var redeemScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
	return false
end
redis.call('DEL', KEYS[1])
return v
`)

// RedisStore is a Store backed by a shared Redis instance, for deployments
// running more than one API process.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore verifies connectivity and returns the store.
func NewRedisStore(ctx context.Context, client *redis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("onetime: redis client is required")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("onetime: redis ping: %w", err)
	}
	return &RedisStore{client: client, prefix: defaultKeyPrefix}, nil
}

func (s *RedisStore) key(token string) string {
	return s.prefix + token
}

func (s *RedisStore) Put(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return errors.New("onetime: entry already expired")
	}
	return s.client.Set(ctx, s.key(entry.Token), data, ttl).Err()
}

func (s *RedisStore) Redeem(ctx context.Context, token string, now time.Time) ([]byte, bool, error) {
	res, err := redeemScript.Run(ctx, s.client, []string{s.key(token)}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	raw, ok := res.(string)
	if !ok {
		return nil, false, nil
	}
	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, false, err
	}
	if entry.Consumed || now.After(entry.ExpiresAt) {
		return nil, false, nil
	}
	return entry.Payload, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Del(ctx, s.key(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteExpired is a no-op: Redis evicts keys via their TTL.
func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}
