package postgres

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ariefcatur/go-storefront/internal/authz"
	"github.com/ariefcatur/go-storefront/internal/orders"
)

var (
	alice = authz.Actor{SubjectID: "alice", Role: authz.RoleStandard}
	admin = authz.Actor{SubjectID: "admin", Role: authz.RolePrivileged}
)

func startPostgres(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "orders",
				"POSTGRES_PASSWORD": "orders",
				"POSTGRES_DB":       "orders",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://orders:orders@%s:%s/orders?sslmode=disable", host, port.Port())

	require.NoError(t, Migrate(dsn))
	require.NoError(t, Migrate(dsn), "second run is a no-op")

	pool, err := Connect(ctx, dsn, 16)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool, dsn
}

func TestStore(t *testing.T) {
	pool, _ := startPostgres(t)
	ctx := context.Background()
	store := &Store{DB: pool, LockTimeout: 200 * time.Millisecond}
	e := &orders.Engine{Store: store, Attempts: 5, RetryBackoff: 5 * time.Millisecond}

	t.Run("seed", func(t *testing.T) {
		n, err := Seed(ctx, store)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		n, err = Seed(ctx, store)
		require.NoError(t, err)
		assert.Zero(t, n)

		items, err := store.ListActive(ctx)
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, "Cheese Pizza", items[0].Name)
	})

	t.Run("stock never goes negative", func(t *testing.T) {
		it, err := e.CreateItem(ctx, admin, orders.ItemInput{Name: "Fries", PriceCents: 300, Stock: 2, Active: true})
		require.NoError(t, err)

		_, err = store.AdjustStock(ctx, it.ID, -3)
		assert.ErrorIs(t, err, orders.ErrInvariantViolation)
		_, err = store.AdjustStock(ctx, "missing", 1)
		assert.ErrorIs(t, err, orders.ErrItemNotFound)

		got, err := store.GetItem(ctx, it.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Stock)
	})

	t.Run("create and cancel round trip", func(t *testing.T) {
		burger, err := e.CreateItem(ctx, admin, orders.ItemInput{Name: "Burger", PriceCents: 899, Stock: 50, Active: true})
		require.NoError(t, err)
		coke, err := e.CreateItem(ctx, admin, orders.ItemInput{Name: "Coke", PriceCents: 200, Stock: 10, Active: true})
		require.NoError(t, err)

		o, err := e.CreateOrder(ctx, alice, []orders.LineRequest{
			{ItemID: burger.ID, Quantity: 3},
			{ItemID: coke.ID, Quantity: 2},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3*899+2*200), o.TotalCents)

		stored, err := store.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, orders.StatusPending, stored.Status)
		assert.Equal(t, int64(1), stored.Revision)
		assert.Equal(t, o.Lines, stored.Lines)
		assert.Equal(t, "Burger", stored.Lines[0].ItemName)

		got, err := store.GetItem(ctx, burger.ID)
		require.NoError(t, err)
		assert.Equal(t, 47, got.Stock)

		_, err = e.CancelOrder(ctx, alice, o.ID)
		require.NoError(t, err)
		got, err = store.GetItem(ctx, burger.ID)
		require.NoError(t, err)
		assert.Equal(t, 50, got.Stock)
		stored, err = store.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stored.Revision)

		_, err = e.CancelOrder(ctx, alice, o.ID)
		assert.ErrorIs(t, err, orders.ErrTerminalState)

		mine, err := store.ListOrders(ctx, alice.SubjectID)
		require.NoError(t, err)
		require.NotEmpty(t, mine)
		assert.Equal(t, o.ID, mine[0].ID)
		assert.Len(t, mine[0].Lines, 2)
	})

	t.Run("failed order changes nothing", func(t *testing.T) {
		a, err := e.CreateItem(ctx, admin, orders.ItemInput{Name: "A", PriceCents: 100, Stock: 5, Active: true})
		require.NoError(t, err)
		b, err := e.CreateItem(ctx, admin, orders.ItemInput{Name: "B", PriceCents: 100, Stock: 1, Active: true})
		require.NoError(t, err)

		_, err = e.CreateOrder(ctx, alice, []orders.LineRequest{
			{ItemID: a.ID, Quantity: 2},
			{ItemID: b.ID, Quantity: 2},
		})
		var stockErr *orders.StockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, b.ID, stockErr.ItemID)

		got, err := store.GetItem(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 5, got.Stock)
	})

	t.Run("no oversell under concurrency", func(t *testing.T) {
		it, err := e.CreateItem(ctx, admin, orders.ItemInput{Name: "Last units", PriceCents: 100, Stock: 5, Active: true})
		require.NoError(t, err)

		var (
			wg sync.WaitGroup
			ok atomic.Int32
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := e.CreateOrder(ctx, alice, []orders.LineRequest{{ItemID: it.ID, Quantity: 1}}); err == nil {
					ok.Add(1)
				}
			}()
		}
		wg.Wait()

		got, err := store.GetItem(ctx, it.ID)
		require.NoError(t, err)
		assert.LessOrEqual(t, ok.Load(), int32(5))
		assert.Equal(t, 5, int(ok.Load())+got.Stock, "every unit is either sold once or still in stock")
	})

	t.Run("held row lock surfaces as contention", func(t *testing.T) {
		it, err := e.CreateItem(ctx, admin, orders.ItemInput{Name: "Locked", PriceCents: 100, Stock: 5, Active: true})
		require.NoError(t, err)

		held, err := pool.Begin(ctx)
		require.NoError(t, err)
		defer func() { _ = held.Rollback(ctx) }()
		_, err = held.Exec(ctx, `SELECT 1 FROM items WHERE id = $1 FOR UPDATE`, it.ID)
		require.NoError(t, err)

		err = store.Atomically(ctx, orders.Scope{ItemIDs: []string{it.ID}}, func(orders.Tx) error {
			t.Fatal("unit of work ran while the row was locked")
			return nil
		})
		assert.ErrorIs(t, err, orders.ErrContention)
		assert.True(t, orders.Retryable(err))
	})
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h:5432/db", migrateURL("postgres://u:p@h:5432/db"))
	assert.Equal(t, "pgx5://u:p@h/db", migrateURL("postgresql://u:p@h/db"))
	assert.Equal(t, "pgx5://h/db", migrateURL("pgx5://h/db"))
}

func TestSortedUnique(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, sortedUnique([]string{"c", "a", "b", "a", "c"}))
	assert.Empty(t, sortedUnique(nil))
}

func TestDefaultCatalogIsStable(t *testing.T) {
	first, second := DefaultCatalog(), DefaultCatalog()
	require.Len(t, first, 3)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.NoError(t, orders.ItemInput{Name: first[i].Name, PriceCents: first[i].PriceCents, Stock: first[i].Stock}.Validate())
	}
}
