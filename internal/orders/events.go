package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type LinePayload struct {
	ItemID         string `json:"item_id"`
	ItemName       string `json:"item_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type OrderCreatedPayload struct {
	OrderID    string        `json:"order_id"`
	OwnerID    string        `json:"owner_id"`
	Lines      []LinePayload `json:"lines"`
	TotalCents int64         `json:"total_cents"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	OwnerID string `json:"owner_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
	By      string `json:"by"`
}

func NewOrderCreatedPayload(o Order) OrderCreatedPayload {
	lines := make([]LinePayload, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, LinePayload{ItemID: l.ItemID, ItemName: l.ItemName, Quantity: l.Quantity, UnitPriceCents: l.UnitPriceCents})
	}
	return OrderCreatedPayload{OrderID: o.ID, OwnerID: o.OwnerID, Lines: lines, TotalCents: o.TotalCents}
}
