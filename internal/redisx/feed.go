package redisx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultFeedLimit = 50

type Notification struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Feed keeps the newest Limit notifications per subject.
type Feed struct {
	Redis *redis.Client
	Limit int64
}

func (f *Feed) limit() int64 {
	if f.Limit <= 0 {
		return DefaultFeedLimit
	}
	return f.Limit
}

func (f *Feed) Push(ctx context.Context, subject string, n Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	key := fmt.Sprintf(KeyFeed, subject)
	_, err = f.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, b)
		pipe.LTrim(ctx, key, 0, f.limit()-1)
		pipe.Expire(ctx, key, TTLFeed)
		return nil
	})
	if err != nil {
		return fmt.Errorf("feed push: %w", err)
	}
	return nil
}

// List returns the subject's feed, newest first. An unknown subject has an
// empty feed.
func (f *Feed) List(ctx context.Context, subject string) ([]Notification, error) {
	raw, err := f.Redis.LRange(ctx, fmt.Sprintf(KeyFeed, subject), 0, f.limit()-1).Result()
	if err != nil {
		return nil, fmt.Errorf("feed list: %w", err)
	}
	out := make([]Notification, 0, len(raw))
	for _, s := range raw {
		var n Notification
		if err := json.Unmarshal([]byte(s), &n); err != nil {
			return nil, fmt.Errorf("feed decode: %w", err)
		}
		out = append(out, n)
	}
	return out, nil
}
