package redisx

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := New(mr.Addr())
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, Ping(context.Background(), rdb))
	return mr, rdb
}

func TestOrderCache(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	c := &OrderCache{Redis: rdb, TTL: time.Minute}

	_, ok := c.Get(ctx, "o-1")
	assert.False(t, ok)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	o := orders.Order{
		ID: "o-1", OwnerID: "alice", Status: orders.StatusPreparing, TotalCents: 1099, Revision: 2,
		CreatedAt: at, UpdatedAt: at,
		Lines: []orders.Line{
			{ItemID: "burger", ItemName: "Burger", Quantity: 1, UnitPriceCents: 899},
			{ItemID: "coke", ItemName: "Coke", Quantity: 1, UnitPriceCents: 200},
		},
	}
	c.Put(ctx, o)
	got, ok := c.Get(ctx, "o-1")
	require.True(t, ok)
	assert.Equal(t, o, got)
	assert.Equal(t, time.Minute, mr.TTL(fmt.Sprintf(KeyOrder, "o-1")))

	mr.HSet(fmt.Sprintf(KeyOrder, "bad"), "rev", "1", "data", "{not json")
	_, ok = c.Get(ctx, "bad")
	assert.False(t, ok, "undecodable entry is a miss")
}

func TestOrderCacheSwallowsOutage(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	c := &OrderCache{Redis: rdb}
	mr.Close()

	c.Put(ctx, orders.Order{ID: "o-1", Status: orders.StatusPending})
	_, ok := c.Get(ctx, "o-1")
	assert.False(t, ok)
}

func TestOrderCacheKeepsNewerRevision(t *testing.T) {
	ctx := context.Background()
	_, rdb := newRedis(t)
	c := &OrderCache{Redis: rdb}

	pending := orders.Order{ID: "o-1", OwnerID: "alice", Status: orders.StatusPending, Revision: 1}
	preparing := pending
	preparing.Status, preparing.Revision = orders.StatusPreparing, 2

	c.Put(ctx, pending)
	c.Put(ctx, preparing)
	c.Put(ctx, pending) // late read-through fill

	got, ok := c.Get(ctx, "o-1")
	require.True(t, ok)
	assert.Equal(t, orders.StatusPreparing, got.Status)
	assert.Equal(t, int64(2), got.Revision)
}

func TestIdempotency(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	idem := &Idempotency{Redis: rdb}

	id, err := idem.Begin(ctx, "alice", "k1")
	require.NoError(t, err)
	assert.Empty(t, id, "first caller owns the key")

	_, err = idem.Begin(ctx, "alice", "k1")
	assert.ErrorIs(t, err, ErrInFlight)

	id, err = idem.Begin(ctx, "bob", "k1")
	require.NoError(t, err)
	assert.Empty(t, id, "keys are scoped per subject")

	require.NoError(t, idem.Complete(ctx, "alice", "k1", "order-1"))
	id, err = idem.Begin(ctx, "alice", "k1")
	require.NoError(t, err)
	assert.Equal(t, "order-1", id)
	assert.Equal(t, TTLIdempotency, mr.TTL(idemKey("alice", "k1")))

	require.NoError(t, idem.Abort(ctx, "bob", "k1"))
	id, err = idem.Begin(ctx, "bob", "k1")
	require.NoError(t, err)
	assert.Empty(t, id, "aborted key can be claimed again")

	mr.FastForward(TTLInFlight + time.Second)
	id, err = idem.Begin(ctx, "bob", "k1")
	require.NoError(t, err)
	assert.Empty(t, id, "abandoned claim expires")
}

func TestFeed(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	f := &Feed{Redis: rdb, Limit: 3}

	empty, err := f.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, empty)

	for i := 1; i <= 5; i++ {
		require.NoError(t, f.Push(ctx, "alice", Notification{ID: fmt.Sprint(i), OrderID: "o-1"}))
	}
	got, err := f.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "5", got[0].ID, "newest first")
	assert.Equal(t, "3", got[2].ID)
	assert.Equal(t, TTLFeed, mr.TTL(fmt.Sprintf(KeyFeed, "alice")))
}

func TestFirstSeen(t *testing.T) {
	ctx := context.Background()
	_, rdb := newRedis(t)

	first, err := FirstSeen(ctx, rdb, "notifier", "ev-1")
	require.NoError(t, err)
	assert.True(t, first)
	first, err = FirstSeen(ctx, rdb, "notifier", "ev-1")
	require.NoError(t, err)
	assert.False(t, first)

	require.NoError(t, Forget(ctx, rdb, "notifier", "ev-1"))
	first, err = FirstSeen(ctx, rdb, "notifier", "ev-1")
	require.NoError(t, err)
	assert.True(t, first)
}
