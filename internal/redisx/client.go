package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Deduper marks event keys on first sight. Used by the fulfillment
// processor to drop redelivered webhooks.
type Deduper struct {
	Client *redis.Client
}

// MarkIfNew returns true when key has not been seen before.
func (d Deduper) MarkIfNew(ctx context.Context, key string) (bool, error) {
	return d.Client.SetNX(ctx, key, "1", TTLDedup).Result()
}

// Release unmarks a key so a retried delivery is processed again.
func (d Deduper) Release(ctx context.Context, key string) error {
	return d.Client.Del(ctx, key).Err()
}

// OrderCache drops a cached order after its state changes.
type OrderCache struct {
	Client *redis.Client
}

func (c OrderCache) Invalidate(ctx context.Context, orderID string) error {
	return c.Client.Del(ctx, fmt.Sprintf(KeyOrderCache, orderID)).Err()
}
