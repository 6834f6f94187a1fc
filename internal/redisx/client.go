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

func Ping(ctx context.Context, rdb *redis.Client) error {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// FirstSeen records id for service and reports whether this is the first time
// it was seen within TTLDedup.
func FirstSeen(ctx context.Context, rdb *redis.Client, service, id string) (bool, error) {
	return rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, service, id), "1", TTLDedup).Result()
}

// Forget drops a dedup marker so a failed event can be processed again.
func Forget(ctx context.Context, rdb *redis.Client, service, id string) error {
	return rdb.Del(ctx, fmt.Sprintf(KeyDedup, service, id)).Err()
}
