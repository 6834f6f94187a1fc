package memstore

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

// tx buffers writes; global state changes only in commit.
type tx struct {
	s      *Store
	locked map[string]bool

	stock    map[string]int // item id -> delta
	inserted []orders.Order
	status   map[string]orders.Status
}

func (t *tx) GetItem(_ context.Context, id string) (orders.Item, error) {
	t.s.mu.RLock()
	it, ok := t.s.items[id]
	t.s.mu.RUnlock()
	if !ok {
		return orders.Item{}, orders.ErrItemNotFound
	}
	it.Stock += t.stock[id]
	return it, nil
}

func (t *tx) AdjustStock(ctx context.Context, id string, delta int) (orders.Item, error) {
	if !t.locked[itemKey(id)] {
		return orders.Item{}, fmt.Errorf("memstore: item %s is outside the unit of work", id)
	}
	it, err := t.GetItem(ctx, id)
	if err != nil {
		return orders.Item{}, err
	}
	if it.Stock+delta < 0 {
		return orders.Item{}, orders.ErrInvariantViolation
	}
	t.stock[id] += delta
	it.Stock += delta
	return it, nil
}

func (t *tx) InsertOrder(_ context.Context, o orders.Order) error {
	t.s.mu.RLock()
	_, exists := t.s.orders[o.ID]
	t.s.mu.RUnlock()
	if exists || t.pending(o.ID) >= 0 {
		return fmt.Errorf("memstore: order %s already exists", o.ID)
	}
	t.inserted = append(t.inserted, o.Clone())
	return nil
}

func (t *tx) pending(id string) int {
	for i, o := range t.inserted {
		if o.ID == id {
			return i
		}
	}
	return -1
}

func (t *tx) GetOrder(_ context.Context, id string) (orders.Order, error) {
	var o orders.Order
	if i := t.pending(id); i >= 0 {
		o = t.inserted[i].Clone()
	} else {
		t.s.mu.RLock()
		stored, ok := t.s.orders[id]
		t.s.mu.RUnlock()
		if !ok {
			return orders.Order{}, orders.ErrOrderNotFound
		}
		o = stored.Clone()
	}
	if st, ok := t.status[id]; ok {
		o.Status = st
	}
	return o, nil
}

func (t *tx) SetOrderStatus(ctx context.Context, id string, st orders.Status) error {
	if !t.locked[orderKey(id)] && t.pending(id) < 0 {
		return fmt.Errorf("memstore: order %s is outside the unit of work", id)
	}
	if _, err := t.GetOrder(ctx, id); err != nil {
		return err
	}
	t.status[id] = st
	return nil
}

func (t *tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, d := range t.stock {
		it, ok := s.items[id]
		if !ok {
			return orders.ErrItemNotFound
		}
		if it.Stock+d < 0 {
			return orders.ErrInvariantViolation
		}
	}

	now := s.now()
	for id, d := range t.stock {
		it := s.items[id]
		it.Stock += d
		it.UpdatedAt = now
		s.items[id] = it
	}
	for _, o := range t.inserted {
		s.orders[o.ID] = o
	}
	for id, st := range t.status {
		o := s.orders[id]
		o.Status = st
		o.Revision++
		o.UpdatedAt = now
		s.orders[id] = o
	}
	return nil
}
