// Package refcache is the fast path in front of the consumed-reference table.
// A miss means "ask the database", never "not consumed".
package refcache

import (
	"context"
	"errors"
	"time"

	"greentoken/internal/domain"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "greentoken:consumed:"

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// markScript sets the key once and refreshes its expiry on repeat marks.
var markScript = redis.NewScript(`
if redis.call("SET", KEYS[1], ARGV[2], "NX", "PX", ARGV[1]) then
  return 1
end
redis.call("PEXPIRE", KEYS[1], ARGV[1])
return 0
`)

func NewRedisCache(addr, password string, db int, ttl time.Duration, now func() time.Time) (domain.ReferenceCache, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return newRedisCache(client, ttl, now), nil
}

func newRedisCache(client *redis.Client, ttl time.Duration, now func() time.Time) *redisCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &redisCache{client: client, ttl: ttl, now: now}
}

func (r *redisCache) IsConsumed(ctx context.Context, reference string) (bool, error) {
	n, err := r.client.Exists(ctx, keyPrefix+reference).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *redisCache) Mark(ctx context.Context, reference string) error {
	if reference == "" {
		return errors.New("reference is required")
	}
	return markScript.Run(ctx, r.client, []string{keyPrefix + reference}, r.ttl.Milliseconds(), r.now().UTC().Unix()).Err()
}

// Ping reports whether the redis server answers.
func (r *redisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisCache) Close() error {
	return r.client.Close()
}
