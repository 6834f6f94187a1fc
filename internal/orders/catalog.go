package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-storefront/internal/authz"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ListItems lists active items, or every item when all is set. Only
// privileged actors may ask for all.
func (e *Engine) ListItems(ctx context.Context, actor authz.Actor, all bool) ([]Item, error) {
	if !all {
		return e.Store.ListActive(ctx)
	}
	if authz.Decide(actor, authz.CatalogListAll, "") != authz.Permit {
		return nil, ErrForbidden
	}
	return e.Store.ListAll(ctx)
}

// GetItem reports inactive items as not found unless the actor is privileged.
func (e *Engine) GetItem(ctx context.Context, actor authz.Actor, id string) (Item, error) {
	it, err := e.Store.GetItem(ctx, id)
	if err != nil {
		return Item{}, err
	}
	if !it.Active && authz.Decide(actor, authz.CatalogListAll, "") != authz.Permit {
		return Item{}, ErrItemNotFound
	}
	return it, nil
}

func (e *Engine) CreateItem(ctx context.Context, actor authz.Actor, in ItemInput) (Item, error) {
	if authz.Decide(actor, authz.CatalogMutate, "") != authz.Permit {
		return Item{}, ErrForbidden
	}
	if err := in.Validate(); err != nil {
		return Item{}, err
	}
	it, err := e.Store.UpsertItem(ctx, itemFromInput(uuid.NewString(), in))
	if err != nil {
		return Item{}, err
	}
	e.log().Info("item created", zap.String("item_id", it.ID), zap.String("by", actor.SubjectID))
	return it, nil
}

// UpdateItem replaces the editable fields of an existing item. Orders
// already placed keep their price snapshots.
func (e *Engine) UpdateItem(ctx context.Context, actor authz.Actor, id string, in ItemInput) (Item, error) {
	if authz.Decide(actor, authz.CatalogMutate, "") != authz.Permit {
		return Item{}, ErrForbidden
	}
	if err := in.Validate(); err != nil {
		return Item{}, err
	}
	if _, err := e.Store.GetItem(ctx, id); err != nil {
		return Item{}, err
	}
	it, err := e.Store.UpsertItem(ctx, itemFromInput(id, in))
	if err != nil {
		return Item{}, err
	}
	e.log().Info("item updated", zap.String("item_id", id), zap.String("by", actor.SubjectID))
	return it, nil
}

// DeactivateItem is the only removal path for catalog entries.
func (e *Engine) DeactivateItem(ctx context.Context, actor authz.Actor, id string) (Item, error) {
	if authz.Decide(actor, authz.CatalogMutate, "") != authz.Permit {
		return Item{}, ErrForbidden
	}
	it, err := e.Store.SetActive(ctx, id, false)
	if err != nil {
		return Item{}, err
	}
	e.log().Info("item deactivated", zap.String("item_id", id), zap.String("by", actor.SubjectID))
	return it, nil
}

func (e *Engine) AdjustStock(ctx context.Context, actor authz.Actor, id string, delta int) (Item, error) {
	if authz.Decide(actor, authz.CatalogMutate, "") != authz.Permit {
		return Item{}, ErrForbidden
	}
	if delta == 0 {
		return Item{}, fmt.Errorf("%w: delta must not be zero", ErrInvalidInput)
	}
	it, err := e.Store.AdjustStock(ctx, id, delta)
	if errors.Is(err, ErrInvariantViolation) {
		// operator withdrew more than is on the shelf
		return Item{}, fmt.Errorf("%w: stock cannot go below zero", ErrInvalidInput)
	}
	if err != nil {
		return Item{}, err
	}
	e.log().Info("stock adjusted",
		zap.String("item_id", id), zap.Int("delta", delta), zap.Int("stock", it.Stock), zap.String("by", actor.SubjectID))
	return it, nil
}

func itemFromInput(id string, in ItemInput) Item {
	return Item{
		ID:          id,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		ImageURL:    in.ImageURL,
		PriceCents:  in.PriceCents,
		Stock:       in.Stock,
		Active:      in.Active,
	}
}
