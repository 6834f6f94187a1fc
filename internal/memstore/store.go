// Package memstore keeps the catalog and the order ledger in process memory.
// It backs tests and single-node development runs.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

const DefaultLockWait = 2 * time.Second

type Store struct {
	// LockWait bounds how long a writer waits for its keys.
	LockWait time.Duration
	Now      func() time.Time

	locks keyLocks

	mu     sync.RWMutex
	items  map[string]orders.Item
	orders map[string]orders.Order
}

var _ orders.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		items:  make(map[string]orders.Item),
		orders: make(map[string]orders.Order),
	}
}

func (s *Store) wait() time.Duration {
	if s.LockWait <= 0 {
		return DefaultLockWait
	}
	return s.LockWait
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *Store) GetItem(_ context.Context, id string) (orders.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return orders.Item{}, orders.ErrItemNotFound
	}
	return it, nil
}

func (s *Store) ListActive(context.Context) ([]orders.Item, error) {
	return s.listItems(true), nil
}

func (s *Store) ListAll(context.Context) ([]orders.Item, error) {
	return s.listItems(false), nil
}

func (s *Store) listItems(activeOnly bool) []orders.Item {
	s.mu.RLock()
	out := make([]orders.Item, 0, len(s.items))
	for _, it := range s.items {
		if activeOnly && !it.Active {
			continue
		}
		out = append(out, it)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// withItem runs fn with the item's key held and the maps write-locked.
func (s *Store) withItem(ctx context.Context, id string, fn func() error) error {
	release, err := s.locks.acquire(ctx, []string{itemKey(id)}, s.wait())
	if err != nil {
		return err
	}
	defer release()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *Store) UpsertItem(ctx context.Context, it orders.Item) (orders.Item, error) {
	if it.ID == "" {
		return orders.Item{}, fmt.Errorf("%w: item id is required", orders.ErrInvalidInput)
	}
	if it.Stock < 0 {
		return orders.Item{}, orders.ErrInvariantViolation
	}
	err := s.withItem(ctx, it.ID, func() error {
		now := s.now()
		if prev, ok := s.items[it.ID]; ok {
			it.CreatedAt = prev.CreatedAt
		} else {
			it.CreatedAt = now
		}
		it.UpdatedAt = now
		s.items[it.ID] = it
		return nil
	})
	return it, err
}

func (s *Store) SetActive(ctx context.Context, id string, active bool) (orders.Item, error) {
	var out orders.Item
	err := s.withItem(ctx, id, func() error {
		it, ok := s.items[id]
		if !ok {
			return orders.ErrItemNotFound
		}
		it.Active = active
		it.UpdatedAt = s.now()
		s.items[id] = it
		out = it
		return nil
	})
	return out, err
}

func (s *Store) AdjustStock(ctx context.Context, id string, delta int) (orders.Item, error) {
	var out orders.Item
	err := s.withItem(ctx, id, func() error {
		it, ok := s.items[id]
		if !ok {
			return orders.ErrItemNotFound
		}
		if it.Stock+delta < 0 {
			return orders.ErrInvariantViolation
		}
		it.Stock += delta
		it.UpdatedAt = s.now()
		s.items[id] = it
		out = it
		return nil
	})
	return out, err
}

func (s *Store) GetOrder(_ context.Context, id string) (orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (s *Store) ListOrders(_ context.Context, ownerID string) ([]orders.Order, error) {
	s.mu.RLock()
	out := make([]orders.Order, 0)
	for _, o := range s.orders {
		if ownerID != "" && o.OwnerID != ownerID {
			continue
		}
		out = append(out, o.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Atomically locks the scope's items and order, buffers fn's writes and
// applies them in one step if fn succeeds.
func (s *Store) Atomically(ctx context.Context, scope orders.Scope, fn func(tx orders.Tx) error) error {
	keys := make([]string, 0, len(scope.ItemIDs)+1)
	for _, id := range scope.ItemIDs {
		keys = append(keys, itemKey(id))
	}
	if scope.OrderID != "" {
		keys = append(keys, orderKey(scope.OrderID))
	}
	release, err := s.locks.acquire(ctx, keys, s.wait())
	if err != nil {
		return err
	}
	defer release()

	t := &tx{
		s:      s,
		locked: make(map[string]bool, len(keys)),
		stock:  make(map[string]int),
		status: make(map[string]orders.Status),
	}
	for _, k := range keys {
		t.locked[k] = true
	}
	if err := fn(t); err != nil {
		return err
	}
	return t.commit()
}
