package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

// OrderCache implements orders.OrderCache. Redis failures are logged and
// treated as misses.
type OrderCache struct {
	Redis *redis.Client
	TTL   time.Duration
	Log   *zap.Logger
}

var _ orders.OrderCache = (*OrderCache)(nil)

func (c *OrderCache) log() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}

func (c *OrderCache) ttl() time.Duration {
	if c.TTL <= 0 {
		return TTLOrderCache
	}
	return c.TTL
}

// putIfNewer writes the order unless the cached entry already has an equal or
// higher revision.
var putIfNewer = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], 'rev'))
if cur and cur >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'rev', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

func (c *OrderCache) Get(ctx context.Context, id string) (orders.Order, bool) {
	b, err := c.Redis.HGet(ctx, fmt.Sprintf(KeyOrder, id), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return orders.Order{}, false
	}
	if err != nil {
		c.log().Warn("order cache get", zap.String("order_id", id), zap.Error(err))
		return orders.Order{}, false
	}
	var o orders.Order
	if err := json.Unmarshal(b, &o); err != nil {
		c.log().Warn("order cache decode", zap.String("order_id", id), zap.Error(err))
		return orders.Order{}, false
	}
	return o, true
}

// Put stores o unless a newer revision of the same order is cached.
func (c *OrderCache) Put(ctx context.Context, o orders.Order) {
	b, err := json.Marshal(o)
	if err != nil {
		c.log().Warn("order cache encode", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	key := fmt.Sprintf(KeyOrder, o.ID)
	stored, err := putIfNewer.Run(ctx, c.Redis, []string{key}, o.Revision, b, c.ttl().Milliseconds()).Int()
	if err != nil {
		c.log().Warn("order cache put", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	if stored == 0 {
		c.log().Debug("order cache kept newer revision", zap.String("order_id", o.ID), zap.Int64("revision", o.Revision))
	}
}
