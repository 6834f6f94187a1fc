package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

var seedNamespace = uuid.MustParse("5d0c54b8-9a66-4c1e-a1f6-0c3f1e0b7a21")

// DefaultCatalog is the menu a fresh deployment starts with. Ids are derived
// from the names so seeding twice never duplicates an item.
func DefaultCatalog() []orders.Item {
	return []orders.Item{
		seedItem("Classic Burger", "Beef patty, cheddar, lettuce and house sauce", 899, 50),
		seedItem("Cheese Pizza", "Stone baked, mozzarella and tomato", 1250, 20),
		seedItem("Coke Zero", "330ml can", 200, 100),
	}
}

func seedItem(name, desc string, price int64, stock int) orders.Item {
	return orders.Item{
		ID:          uuid.NewSHA1(seedNamespace, []byte(name)).String(),
		Name:        name,
		Description: desc,
		PriceCents:  price,
		Stock:       stock,
		Active:      true,
	}
}

// Seed inserts DefaultCatalog when the catalog is empty and reports how many
// items were written.
func Seed(ctx context.Context, c orders.Catalog) (int, error) {
	existing, err := c.ListAll(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "seed: list items")
	}
	if len(existing) > 0 {
		return 0, nil
	}
	n := 0
	for _, it := range DefaultCatalog() {
		if _, err := c.UpsertItem(ctx, it); err != nil {
			return n, errors.Wrapf(err, "seed %q", it.Name)
		}
		n++
	}
	return n, nil
}
