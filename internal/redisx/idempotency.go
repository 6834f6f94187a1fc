package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const inFlight = "-"

// ErrInFlight is returned by Begin while another request with the same key
// has not finished yet.
var ErrInFlight = errors.New("idempotent request still in flight")

// Idempotency remembers which order a (subject, Idempotency-Key) pair
// created. Keys are scoped per subject so two callers never share one.
type Idempotency struct {
	Redis *redis.Client
}

func idemKey(subject, key string) string {
	return fmt.Sprintf(KeyIdemOrderCreate, subject, key)
}

// Begin claims the key. It returns the order id of a completed earlier
// request, or "" when the caller now owns the key and must call Complete or
// Abort.
func (i *Idempotency) Begin(ctx context.Context, subject, key string) (string, error) {
	k := idemKey(subject, key)
	claimed, err := i.Redis.SetNX(ctx, k, inFlight, TTLInFlight).Result()
	if err != nil {
		return "", fmt.Errorf("idempotency claim: %w", err)
	}
	if claimed {
		return "", nil
	}
	orderID, err := i.Redis.Get(ctx, k).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// expired between the two calls; try once more
		return i.Begin(ctx, subject, key)
	case err != nil:
		return "", fmt.Errorf("idempotency lookup: %w", err)
	case orderID == inFlight:
		return "", ErrInFlight
	}
	return orderID, nil
}

func (i *Idempotency) Complete(ctx context.Context, subject, key, orderID string) error {
	return i.Redis.Set(ctx, idemKey(subject, key), orderID, TTLIdempotency).Err()
}

// Abort releases a claimed key after the request failed, so the client may
// retry with the same key.
func (i *Idempotency) Abort(ctx context.Context, subject, key string) error {
	return i.Redis.Del(ctx, idemKey(subject, key)).Err()
}
