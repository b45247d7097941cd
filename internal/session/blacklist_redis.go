package session

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBlacklist stores invalidated-token digests as Redis keys that
// expire together with the token, so no sweep is needed and every replica
// sharing the instance sees the same set.
type RedisBlacklist struct {
	rdb    redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewRedisBlacklist returns a blacklist writing keys under prefix.
func NewRedisBlacklist(rdb redis.Cmdable, prefix string) *RedisBlacklist {
	if prefix == "" {
		prefix = "bl"
	}
	return &RedisBlacklist{rdb: rdb, prefix: prefix, now: time.Now}
}

func (b *RedisBlacklist) key(token string) string {
	return b.prefix + ":token:" + fingerprint(token)
}

func (b *RedisBlacklist) Add(ctx context.Context, token string, until time.Time) error {
	ttl := until.Sub(b.now())
	if token == "" || ttl <= 0 {
		return nil
	}
	return b.rdb.Set(ctx, b.key(token), 1, ttl).Err()
}

func (b *RedisBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	n, err := b.rdb.Exists(ctx, b.key(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
