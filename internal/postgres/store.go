package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

const DefaultLockTimeout = 2 * time.Second

const itemColumns = `id, name, description, image_url, price_cents, stock, active, created_at, updated_at`

const orderColumns = `id, owner_id, status, total_cents, revision, created_at, updated_at`

// Store implements orders.Store on Postgres. Every write runs in a
// transaction with a bounded lock_timeout.
type Store struct {
	DB          *pgxpool.Pool
	LockTimeout time.Duration
}

var _ orders.Store = (*Store)(nil)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) GetItem(ctx context.Context, id string) (orders.Item, error) {
	return getItem(ctx, s.DB, id)
}

func (s *Store) ListActive(ctx context.Context) ([]orders.Item, error) {
	return s.listItems(ctx, `SELECT `+itemColumns+` FROM items WHERE active ORDER BY name, id`)
}

func (s *Store) ListAll(ctx context.Context) ([]orders.Item, error) {
	return s.listItems(ctx, `SELECT `+itemColumns+` FROM items ORDER BY name, id`)
}

func (s *Store) listItems(ctx context.Context, sql string) ([]orders.Item, error) {
	rows, err := s.DB.Query(ctx, sql)
	if err != nil {
		return nil, errors.Wrap(err, "list items")
	}
	defer rows.Close()

	out := []orders.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, errors.Wrap(rows.Err(), "list items")
}

func (s *Store) UpsertItem(ctx context.Context, it orders.Item) (orders.Item, error) {
	var out orders.Item
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO items (id, name, description, image_url, price_cents, stock, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				image_url = EXCLUDED.image_url,
				price_cents = EXCLUDED.price_cents,
				stock = EXCLUDED.stock,
				active = EXCLUDED.active,
				updated_at = now()
			RETURNING `+itemColumns,
			it.ID, it.Name, it.Description, it.ImageURL, it.PriceCents, it.Stock, it.Active)
		var err error
		out, err = scanItem(row)
		return err
	})
	return out, err
}

func (s *Store) SetActive(ctx context.Context, id string, active bool) (orders.Item, error) {
	var out orders.Item
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `UPDATE items SET active = $2, updated_at = now() WHERE id = $1 RETURNING `+itemColumns, id, active)
		var err error
		out, err = scanItem(row)
		return err
	})
	return out, err
}

func (s *Store) AdjustStock(ctx context.Context, id string, delta int) (orders.Item, error) {
	var out orders.Item
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = adjustStock(ctx, tx, id, delta)
		return err
	})
	return out, err
}

func (s *Store) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	return getOrder(ctx, s.DB, id)
}

func (s *Store) ListOrders(ctx context.Context, ownerID string) ([]orders.Order, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE $1 = '' OR owner_id = $1
		ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	out := []orders.Order{}
	index := map[string]int{}
	ids := []string{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[o.ID] = len(out)
		ids = append(ids, o.ID)
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	if len(ids) == 0 {
		return out, nil
	}

	lrows, err := s.DB.Query(ctx, `
		SELECT order_id, item_id, item_name, quantity, unit_price_cents FROM order_lines
		WHERE order_id = ANY($1)
		ORDER BY order_id, position`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "list order lines")
	}
	defer lrows.Close()
	for lrows.Next() {
		var (
			orderID string
			l       orders.Line
		)
		if err := lrows.Scan(&orderID, &l.ItemID, &l.ItemName, &l.Quantity, &l.UnitPriceCents); err != nil {
			return nil, errors.Wrap(err, "scan order line")
		}
		i := index[orderID]
		out[i].Lines = append(out[i].Lines, l)
	}
	return out, errors.Wrap(lrows.Err(), "list order lines")
}

// Atomically locks the scope rows (items sorted by id, then the order) with
// SELECT ... FOR UPDATE and runs fn in the same transaction.
func (s *Store) Atomically(ctx context.Context, scope orders.Scope, fn func(tx orders.Tx) error) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if len(scope.ItemIDs) > 0 {
			ids := sortedUnique(scope.ItemIDs)
			rows, err := tx.Query(ctx, `SELECT id FROM items WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
			if err != nil {
				return err
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return err
			}
		}
		if scope.OrderID != "" {
			if _, err := tx.Exec(ctx, `SELECT 1 FROM orders WHERE id = $1 FOR UPDATE`, scope.OrderID); err != nil {
				return err
			}
		}
		return fn(&txStore{tx: tx})
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return translate(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	timeout := s.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())); err != nil {
		return translate(err, "set lock_timeout")
	}
	if err := fn(tx); err != nil {
		return translate(err, "unit of work")
	}
	return translate(tx.Commit(ctx), "commit")
}

// translate maps lock and serialization failures to orders.ErrContention and
// check violations to orders.ErrInvariantViolation. Domain errors pass as is.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40001", "40P01":
			return fmt.Errorf("%w: %s", orders.ErrContention, pgErr.Message)
		case "23514":
			return fmt.Errorf("%w: %s", orders.ErrInvariantViolation, pgErr.ConstraintName)
		}
		return errors.Wrap(err, op)
	}
	return err
}

func sortedUnique(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	n := 0
	for i, id := range out {
		if i > 0 && id == out[n-1] {
			continue
		}
		out[n] = id
		n++
	}
	return out[:n]
}

func getItem(ctx context.Context, q querier, id string) (orders.Item, error) {
	return scanItem(q.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
}

func adjustStock(ctx context.Context, q querier, id string, delta int) (orders.Item, error) {
	it, err := scanItem(q.QueryRow(ctx, `
		UPDATE items SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING `+itemColumns, id, delta))
	if !errors.Is(err, orders.ErrItemNotFound) {
		return it, err
	}
	if _, err := getItem(ctx, q, id); err != nil {
		return orders.Item{}, err
	}
	return orders.Item{}, orders.ErrInvariantViolation
}

func scanItem(row pgx.Row) (orders.Item, error) {
	var it orders.Item
	err := row.Scan(&it.ID, &it.Name, &it.Description, &it.ImageURL, &it.PriceCents, &it.Stock, &it.Active, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Item{}, orders.ErrItemNotFound
	}
	if err != nil {
		return orders.Item{}, errors.Wrap(err, "scan item")
	}
	it.CreatedAt, it.UpdatedAt = it.CreatedAt.UTC(), it.UpdatedAt.UTC()
	return it, nil
}

func getOrder(ctx context.Context, q querier, id string) (orders.Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return orders.Order{}, err
	}
	rows, err := q.Query(ctx, `
		SELECT item_id, item_name, quantity, unit_price_cents FROM order_lines
		WHERE order_id = $1 ORDER BY position`, id)
	if err != nil {
		return orders.Order{}, errors.Wrap(err, "load order lines")
	}
	defer rows.Close()
	for rows.Next() {
		var l orders.Line
		if err := rows.Scan(&l.ItemID, &l.ItemName, &l.Quantity, &l.UnitPriceCents); err != nil {
			return orders.Order{}, errors.Wrap(err, "scan order line")
		}
		o.Lines = append(o.Lines, l)
	}
	return o, errors.Wrap(rows.Err(), "load order lines")
}

func scanOrder(row pgx.Row) (orders.Order, error) {
	var (
		o      orders.Order
		status string
	)
	err := row.Scan(&o.ID, &o.OwnerID, &status, &o.TotalCents, &o.Revision, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	if err != nil {
		return orders.Order{}, errors.Wrap(err, "scan order")
	}
	if o.Status, err = orders.ParseStatus(status); err != nil {
		return orders.Order{}, errors.Wrapf(err, "order %s", o.ID)
	}
	o.CreatedAt, o.UpdatedAt = o.CreatedAt.UTC(), o.UpdatedAt.UTC()
	return o, nil
}
