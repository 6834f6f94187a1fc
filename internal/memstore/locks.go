package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

// keyLocks hands out one mutex per key. A mutex is a buffered channel of size
// one so acquisition can give up after a deadline.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func (k *keyLocks) get(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]chan struct{})
	}
	ch, ok := k.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.locks[key] = ch
	}
	return ch
}

// acquire takes every key in sorted order within one shared wait budget. On
// failure nothing stays held.
func (k *keyLocks) acquire(ctx context.Context, keys []string, wait time.Duration) (release func(), err error) {
	keys = sortedUnique(keys)
	timer := time.NewTimer(wait)
	defer timer.Stop()

	held := make([]chan struct{}, 0, len(keys))
	release = func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
		held = held[:0]
	}
	for _, key := range keys {
		ch := k.get(key)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-timer.C:
			release()
			return nil, orders.ErrContention
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}
	return release, nil
}

func sortedUnique(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}

func itemKey(id string) string  { return "item:" + id }
func orderKey(id string) string { return "order:" + id }
