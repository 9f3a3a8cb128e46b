package revocation

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "session:revoked:"

// RedisRegistry backs the blacklist with Redis, which expires entries
// server-side. This is the deployment registry: revocation is shared
// across instances and survives process restarts within the TTL.
type RedisRegistry struct {
	client redis.UniversalClient
	prefix string
}

var _ Registry = (*RedisRegistry)(nil)

// NewRedis creates a registry on an existing client. prefix namespaces
// the keys; empty uses the default.
func NewRedis(client redis.UniversalClient, prefix string) *RedisRegistry {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisRegistry{
		client: client,
		prefix: prefix,
	}
}

// Add implements Registry.
func (r *RedisRegistry) Add(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.prefix+tokenID, "1", ttl).Err()
}

// Contains implements Registry.
func (r *RedisRegistry) Contains(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
