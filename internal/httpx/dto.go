package httpx

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

// Prices travel as decimal strings with two places ("8.99") and are stored as
// cents.
func formatCents(c int64) string { return decimal.New(c, -2).StringFixed(2) }

func parsePrice(d decimal.Decimal) (int64, error) {
	if !d.Equal(d.Round(2)) {
		return 0, fmt.Errorf("%w: price has more than two decimals", orders.ErrInvalidInput)
	}
	cents := d.Shift(2)
	if !cents.IsInteger() || cents.GreaterThan(decimal.NewFromInt(1_000_000_000)) {
		return 0, fmt.Errorf("%w: price out of range", orders.ErrInvalidInput)
	}
	return cents.IntPart(), nil
}

type itemRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Active      *bool           `json:"active"`
}

func (req itemRequest) input() (orders.ItemInput, error) {
	cents, err := parsePrice(req.Price)
	if err != nil {
		return orders.ItemInput{}, err
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return orders.ItemInput{
		Name:        req.Name,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		PriceCents:  cents,
		Stock:       req.Stock,
		Active:      active,
	}, nil
}

type itemResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	Price       string    `json:"price"`
	Stock       int       `json:"stock"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toItem(it orders.Item) itemResponse {
	return itemResponse{
		ID:          it.ID,
		Name:        it.Name,
		Description: it.Description,
		ImageURL:    it.ImageURL,
		Price:       formatCents(it.PriceCents),
		Stock:       it.Stock,
		Active:      it.Active,
		CreatedAt:   it.CreatedAt,
		UpdatedAt:   it.UpdatedAt,
	}
}

func toItems(items []orders.Item) []itemResponse {
	out := make([]itemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, toItem(it))
	}
	return out
}

type stockRequest struct {
	Delta int `json:"delta"`
}

type createOrderRequest struct {
	Lines []orders.LineRequest `json:"lines"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type lineResponse struct {
	ItemID    string `json:"item_id"`
	ItemName  string `json:"item_name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Amount    string `json:"amount"`
}

type orderResponse struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"owner_id"`
	Status    orders.Status  `json:"status"`
	Total     string         `json:"total"`
	Lines     []lineResponse `json:"lines"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func toOrder(o orders.Order) orderResponse {
	lines := make([]lineResponse, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, lineResponse{
			ItemID:    l.ItemID,
			ItemName:  l.ItemName,
			Quantity:  l.Quantity,
			UnitPrice: formatCents(l.UnitPriceCents),
			Amount:    formatCents(l.AmountCents()),
		})
	}
	return orderResponse{
		ID:        o.ID,
		OwnerID:   o.OwnerID,
		Status:    o.Status,
		Total:     formatCents(o.TotalCents),
		Lines:     lines,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func toOrders(list []orders.Order) []orderResponse {
	out := make([]orderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, toOrder(o))
	}
	return out
}
