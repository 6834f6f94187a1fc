package orders

import "context"

// Catalog is the only legal writer of item stock. Every method is atomic for
// a single item.
type Catalog interface {
	GetItem(ctx context.Context, id string) (Item, error)
	ListActive(ctx context.Context) ([]Item, error)
	ListAll(ctx context.Context) ([]Item, error)
	// UpsertItem inserts the item or replaces the editable fields of an
	// existing one. Timestamps are set by the store.
	UpsertItem(ctx context.Context, it Item) (Item, error)
	SetActive(ctx context.Context, id string, active bool) (Item, error)
	// AdjustStock applies stock += delta and fails with ErrInvariantViolation
	// if the result would be negative.
	AdjustStock(ctx context.Context, id string, delta int) (Item, error)
}

// Ledger is the read side of the order book. Orders are only written inside
// Store.Atomically.
type Ledger interface {
	GetOrder(ctx context.Context, id string) (Order, error)
	// ListOrders returns orders newest first; an empty ownerID lists all.
	ListOrders(ctx context.Context, ownerID string) ([]Order, error)
}

// Scope names everything a unit of work will write. Stores lock the scope in a
// deterministic order before running the unit.
type Scope struct {
	ItemIDs []string
	OrderID string
}

// Tx is a unit of work. Nothing it does is visible to others until the
// function passed to Atomically returns nil.
type Tx interface {
	GetItem(ctx context.Context, id string) (Item, error)
	AdjustStock(ctx context.Context, id string, delta int) (Item, error)
	InsertOrder(ctx context.Context, o Order) error
	GetOrder(ctx context.Context, id string) (Order, error)
	SetOrderStatus(ctx context.Context, id string, s Status) error
}

type Store interface {
	Catalog
	Ledger
	// Atomically runs fn with the scope locked. Lock waits are bounded;
	// exceeding them yields ErrContention and fn does not run.
	Atomically(ctx context.Context, scope Scope, fn func(tx Tx) error) error
}

// OrderCache is a best-effort read cache; implementations swallow their own
// failures. Put must not replace an entry holding a higher Revision.
type OrderCache interface {
	Get(ctx context.Context, id string) (Order, bool)
	Put(ctx context.Context, o Order)
}

// Notifier receives committed order changes. Delivery is best effort.
type Notifier interface {
	OrderCreated(ctx context.Context, o Order)
	OrderStatusChanged(ctx context.Context, o Order, from Status, by string)
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (Order, bool) { return Order{}, false }
func (nopCache) Put(context.Context, Order)                {}

type nopNotifier struct{}

func (nopNotifier) OrderCreated(context.Context, Order)                       {}
func (nopNotifier) OrderStatusChanged(context.Context, Order, Status, string) {}
