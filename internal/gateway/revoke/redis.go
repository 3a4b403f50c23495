package revoke

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces revocation entries so the gateway can share a redis
// instance with other services.
const keyPrefix = "chatgate:revoked:"

// RedisTier is a SharedTier backed by redis. Entries are plain SET with EX,
// so redis expires them on its own and the tier never needs sweeping.
type RedisTier struct {
	client *redis.Client
}

// NewRedisTier creates a shared revocation tier against the given redis
// address.
func NewRedisTier(addr string) *RedisTier {
	return &RedisTier{
		client: redis.NewClient(&redis.Options{
			Addr:         addr,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  sharedTimeout,
			WriteTimeout: 2 * time.Second,
		}),
	}
}

func (t *RedisTier) Set(ctx context.Context, jti string, ttl time.Duration) error {
	return t.client.Set(ctx, keyPrefix+jti, "1", ttl).Err()
}

func (t *RedisTier) Exists(ctx context.Context, jti string) (bool, error) {
	n, err := t.client.Exists(ctx, keyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *RedisTier) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (t *RedisTier) Close() error {
	return t.client.Close()
}
