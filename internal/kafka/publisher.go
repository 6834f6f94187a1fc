package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

type publisher interface {
	Publish(ctx context.Context, m kafka.Message) error
}

// EventPublisher turns committed order changes into Kafka events. It
// implements orders.Notifier; failures are logged, never returned.
type EventPublisher struct {
	Producer publisher
	Service  string
	Log      *zap.Logger
	Now      func() time.Time
}

var _ orders.Notifier = (*EventPublisher)(nil)

func (p *EventPublisher) OrderCreated(ctx context.Context, o orders.Order) {
	p.publish(ctx, orders.TopicOrderCreated, orders.EventOrderCreated, o.ID, orders.NewOrderCreatedPayload(o))
}

func (p *EventPublisher) OrderStatusChanged(ctx context.Context, o orders.Order, from orders.Status, by string) {
	p.publish(ctx, orders.TopicOrderStatusChanged, orders.EventOrderStatusChanged, o.ID, orders.OrderStatusChangedPayload{
		OrderID: o.ID,
		OwnerID: o.OwnerID,
		From:    from,
		To:      o.Status,
		By:      by,
	})
}

func (p *EventPublisher) log() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}

func (p *EventPublisher) publish(ctx context.Context, topic, eventType, orderID string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		p.log().Error("encode event payload", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    now().UTC(),
		Producer:      p.Service,
		CorrelationID: orderID,
		Payload:       raw,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	b, err := json.Marshal(env)
	if err != nil {
		p.log().Error("encode envelope", zap.String("event_type", eventType), zap.Error(err))
		return
	}

	headers := []kafka.Header{
		{Key: HeaderEventType, Value: []byte(eventType)},
		{Key: HeaderEventVersion, Value: []byte("1")},
	}
	otel.GetTextMapPropagator().Inject(ctx, HeaderCarrier{Headers: &headers})

	err = p.Producer.Publish(ctx, kafka.Message{
		Topic:   topic,
		Key:     orders.PartitionKey(orderID),
		Value:   b,
		Headers: headers,
	})
	if err != nil {
		p.log().Warn("event dropped",
			zap.String("event_type", eventType), zap.String("order_id", orderID), zap.Error(err))
		return
	}
	p.log().Debug("event queued",
		zap.String("event_type", eventType), zap.String("event_id", env.EventID), zap.String("order_id", orderID))
}
