package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

// txStore runs inside Store.Atomically after the scope rows are locked.
type txStore struct {
	tx pgx.Tx
}

func (t *txStore) GetItem(ctx context.Context, id string) (orders.Item, error) {
	return getItem(ctx, t.tx, id)
}

func (t *txStore) AdjustStock(ctx context.Context, id string, delta int) (orders.Item, error) {
	return adjustStock(ctx, t.tx, id, delta)
}

func (t *txStore) InsertOrder(ctx context.Context, o orders.Order) error {
	status, err := o.Status.MarshalText()
	if err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO orders (id, owner_id, status, total_cents, revision, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.OwnerID, string(status), o.TotalCents, o.Revision, o.CreatedAt, o.UpdatedAt); err != nil {
		return errors.Wrap(err, "insert order")
	}
	for i, l := range o.Lines {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO order_lines (order_id, position, item_id, item_name, quantity, unit_price_cents)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			o.ID, i, l.ItemID, l.ItemName, l.Quantity, l.UnitPriceCents); err != nil {
			return errors.Wrap(err, "insert order line")
		}
	}
	return nil
}

func (t *txStore) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	return getOrder(ctx, t.tx, id)
}

func (t *txStore) SetOrderStatus(ctx context.Context, id string, s orders.Status) error {
	status, err := s.MarshalText()
	if err != nil {
		return err
	}
	ct, err := t.tx.Exec(ctx, `UPDATE orders SET status = $2, revision = revision + 1, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return errors.Wrap(err, "update order status")
	}
	if ct.RowsAffected() != 1 {
		return orders.ErrOrderNotFound
	}
	return nil
}
