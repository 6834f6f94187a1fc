package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-storefront/internal/authz"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/ariefcatur/go-storefront/internal/orders")

// Engine owns order creation, the order lifecycle and catalog mutations. Every
// mutating call consults authz.Decide first.
type Engine struct {
	Store    Store
	Cache    OrderCache // optional
	Notifier Notifier   // optional
	Log      *zap.Logger

	// Attempts bounds how many times a unit of work is run when the store
	// reports ErrContention. Zero means one attempt.
	Attempts     int
	RetryBackoff time.Duration
	Now          func() time.Time
}

func (e *Engine) log() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

func (e *Engine) cache() OrderCache {
	if e.Cache == nil {
		return nopCache{}
	}
	return e.Cache
}

func (e *Engine) notifier() Notifier {
	if e.Notifier == nil {
		return nopNotifier{}
	}
	return e.Notifier
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

// atomically retries fn on ErrContention with exponential backoff. fn must be
// safe to run more than once.
func (e *Engine) atomically(ctx context.Context, scope Scope, fn func(tx Tx) error) error {
	attempts := e.Attempts
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.RetryBackoff
	if b.InitialInterval <= 0 {
		b.InitialInterval = 10 * time.Millisecond
	}
	b.MaxInterval = 20 * b.InitialInterval

	try := 0
	return backoff.Retry(func() error {
		try++
		err := e.Store.Atomically(ctx, scope, fn)
		if err == nil {
			return nil
		}
		if Retryable(err) {
			e.log().Debug("unit of work contended",
				zap.Int("attempt", try), zap.Strings("items", scope.ItemIDs), zap.String("order_id", scope.OrderID))
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CreateOrder validates every line, reserves stock, snapshots prices and
// persists a Pending order, all in one unit of work. Any failing line aborts
// the whole order.
func (e *Engine) CreateOrder(ctx context.Context, actor authz.Actor, lines []LineRequest) (order Order, err error) {
	ctx, span := tracer.Start(ctx, "orders.CreateOrder",
		trace.WithAttributes(attribute.String("actor.id", actor.SubjectID), attribute.Int("order.lines", len(lines))))
	defer func() { endSpan(span, err) }()

	if actor.SubjectID == "" {
		return Order{}, ErrForbidden
	}
	if authz.Decide(actor, authz.OrderCreate, actor.SubjectID) != authz.Permit {
		return Order{}, ErrRoleForbidden
	}
	if len(lines) == 0 {
		return Order{}, ErrEmptyOrder
	}
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.ItemID == "" {
			return Order{}, fmt.Errorf("%w: item id is required", ErrInvalidInput)
		}
		if l.Quantity < 1 {
			return Order{}, fmt.Errorf("%w (item %s)", ErrInvalidQuantity, l.ItemID)
		}
		ids = append(ids, l.ItemID)
	}

	err = e.atomically(ctx, Scope{ItemIDs: ids}, func(tx Tx) error {
		items := make([]Item, len(lines))
		requested := make(map[string]int, len(lines))
		for i, l := range lines {
			it, err := tx.GetItem(ctx, l.ItemID)
			if err != nil {
				return err
			}
			if !it.Active {
				return fmt.Errorf("%w: %s", ErrItemInactive, it.ID)
			}
			requested[it.ID] += l.Quantity
			if requested[it.ID] > it.Stock {
				return &StockError{ItemID: it.ID, Requested: requested[it.ID], Available: it.Stock}
			}
			items[i] = it
		}

		now := e.now()
		o := Order{
			ID:        uuid.NewString(),
			OwnerID:   actor.SubjectID,
			Status:    StatusPending,
			Revision:  1,
			CreatedAt: now,
			UpdatedAt: now,
			Lines:     make([]Line, 0, len(lines)),
		}
		for i, l := range lines {
			if _, err := tx.AdjustStock(ctx, l.ItemID, -l.Quantity); err != nil {
				return err
			}
			line := Line{ItemID: l.ItemID, ItemName: items[i].Name, Quantity: l.Quantity, UnitPriceCents: items[i].PriceCents}
			o.Lines = append(o.Lines, line)
			o.TotalCents += line.AmountCents()
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		e.log().Info("order rejected", zap.String("subject", actor.SubjectID), zap.Error(err))
		return Order{}, err
	}

	span.SetAttributes(attribute.String("order.id", order.ID), attribute.Int64("order.total_cents", order.TotalCents))
	e.log().Info("order created",
		zap.String("order_id", order.ID), zap.String("subject", actor.SubjectID),
		zap.Int("lines", len(order.Lines)), zap.Int64("total_cents", order.TotalCents))
	e.cache().Put(ctx, order)
	e.notifier().OrderCreated(ctx, order)
	return order, nil
}

// CancelOrder moves a Pending order to Cancelled and gives back every
// reserved unit. Restoration is additive, so interim admin stock edits are
// kept.
func (e *Engine) CancelOrder(ctx context.Context, actor authz.Actor, orderID string) (order Order, err error) {
	ctx, span := tracer.Start(ctx, "orders.CancelOrder",
		trace.WithAttributes(attribute.String("actor.id", actor.SubjectID), attribute.String("order.id", orderID)))
	defer func() { endSpan(span, err) }()

	current, err := e.Store.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if authz.Decide(actor, authz.OrderCancel, current.OwnerID) != authz.Permit {
		return Order{}, ErrForbidden
	}
	return e.cancel(ctx, actor, current)
}

func (e *Engine) cancel(ctx context.Context, actor authz.Actor, current Order) (Order, error) {
	var (
		order Order
		from  Status
	)
	err := e.atomically(ctx, Scope{ItemIDs: current.ItemIDs(), OrderID: current.ID}, func(tx Tx) error {
		o, err := tx.GetOrder(ctx, current.ID)
		if err != nil {
			return err
		}
		if err := CheckTransition(o.Status, StatusCancelled); err != nil {
			return err
		}
		for _, l := range o.Lines {
			if _, err := tx.AdjustStock(ctx, l.ItemID, l.Quantity); err != nil {
				return err
			}
		}
		if err := tx.SetOrderStatus(ctx, o.ID, StatusCancelled); err != nil {
			return err
		}
		from = o.Status
		o.Status = StatusCancelled
		o.Revision++
		o.UpdatedAt = e.now()
		order = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	e.log().Info("order cancelled", zap.String("order_id", order.ID), zap.String("by", actor.SubjectID))
	e.cache().Put(ctx, order)
	e.notifier().OrderStatusChanged(ctx, order, from, actor.SubjectID)
	return order, nil
}

// SetStatus is the privileged status update. A Cancelled target goes through
// the cancellation path so stock is always released.
func (e *Engine) SetStatus(ctx context.Context, actor authz.Actor, orderID string, target Status) (order Order, err error) {
	ctx, span := tracer.Start(ctx, "orders.SetStatus",
		trace.WithAttributes(attribute.String("order.id", orderID), attribute.String("order.target", target.String())))
	defer func() { endSpan(span, err) }()

	if !target.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status", ErrInvalidInput)
	}
	current, err := e.Store.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if authz.Decide(actor, authz.OrderAdvance, current.OwnerID) != authz.Permit {
		return Order{}, ErrForbidden
	}
	if target == StatusCancelled {
		return e.cancel(ctx, actor, current)
	}

	var from Status
	err = e.atomically(ctx, Scope{OrderID: orderID}, func(tx Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := CheckTransition(o.Status, target); err != nil {
			return err
		}
		if err := tx.SetOrderStatus(ctx, orderID, target); err != nil {
			return err
		}
		from = o.Status
		o.Status = target
		o.Revision++
		o.UpdatedAt = e.now()
		order = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	e.log().Info("order status changed",
		zap.String("order_id", orderID), zap.Stringer("from", from), zap.Stringer("to", target),
		zap.String("by", actor.SubjectID))
	e.cache().Put(ctx, order)
	e.notifier().OrderStatusChanged(ctx, order, from, actor.SubjectID)
	return order, nil
}

// GetOrder hides orders the actor may not read behind ErrOrderNotFound so
// their existence does not leak. A miss is filled from the store; the cache
// keeps the higher revision, so a slow fill cannot undo a status change.
func (e *Engine) GetOrder(ctx context.Context, actor authz.Actor, orderID string) (Order, error) {
	o, ok := e.cache().Get(ctx, orderID)
	if !ok {
		var err error
		if o, err = e.Store.GetOrder(ctx, orderID); err != nil {
			return Order{}, err
		}
		e.cache().Put(ctx, o)
	}
	if authz.Decide(actor, authz.OrderRead, o.OwnerID) != authz.Permit {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

// ListOrders returns every order for privileged actors and the caller's own
// orders otherwise.
func (e *Engine) ListOrders(ctx context.Context, actor authz.Actor) ([]Order, error) {
	if authz.Decide(actor, authz.OrderListAll, "") == authz.Permit {
		return e.Store.ListOrders(ctx, "")
	}
	if actor.SubjectID == "" {
		return nil, ErrForbidden
	}
	return e.Store.ListOrders(ctx, actor.SubjectID)
}
