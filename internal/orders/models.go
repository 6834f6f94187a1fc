package orders

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxItemNameLen = 120
	MinPriceCents  = 1
)

type Item struct {
	ID          string
	Name        string
	Description string
	ImageURL    string
	PriceCents  int64
	Stock       int
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ItemInput is the editable part of an Item.
type ItemInput struct {
	Name        string
	Description string
	ImageURL    string
	PriceCents  int64
	Stock       int
	Active      bool
}

func (in ItemInput) Validate() error {
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	case utf8.RuneCountInString(name) > MaxItemNameLen:
		return fmt.Errorf("%w: name longer than %d characters", ErrInvalidInput, MaxItemNameLen)
	case in.PriceCents < MinPriceCents:
		return fmt.Errorf("%w: price must be at least 0.01", ErrInvalidInput)
	case in.Stock < 0:
		return fmt.Errorf("%w: stock cannot be negative", ErrInvalidInput)
	}
	return nil
}

type Order struct {
	ID         string
	OwnerID    string
	Status     Status
	TotalCents int64
	// Revision starts at 1 and grows by one with every committed status
	// change.
	Revision   int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Lines      []Line
}

// Line prices and names are snapshots taken at creation; catalog edits never
// reach them.
type Line struct {
	ItemID         string
	ItemName       string
	Quantity       int
	UnitPriceCents int64
}

func (l Line) AmountCents() int64 { return int64(l.Quantity) * l.UnitPriceCents }

// ItemIDs returns the distinct item ids of the order in line order.
func (o Order) ItemIDs() []string {
	seen := make(map[string]bool, len(o.Lines))
	out := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		if !seen[l.ItemID] {
			seen[l.ItemID] = true
			out = append(out, l.ItemID)
		}
	}
	return out
}

// Clone deep-copies the lines so callers cannot alias stored state.
func (o Order) Clone() Order {
	c := o
	c.Lines = append([]Line(nil), o.Lines...)
	return c
}

type LineRequest struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}
