package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/redisx"
)

// Topics the notifier subscribes to.
var Topics = []string{orders.TopicOrderCreated, orders.TopicOrderStatusChanged}

// Service projects order events into per-owner notification feeds. Events are
// deduplicated by event id, so redelivery is harmless.
type Service struct {
	Redis       *redis.Client
	Feed        *redisx.Feed
	ServiceName string
	Log         *zap.Logger
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// Handle is installed as the consumer handler. Messages that can never be
// decoded are logged and acknowledged.
func (s *Service) Handle(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		s.log().Error("dropping undecodable message", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	owner, n, err := render(env)
	if err != nil {
		s.log().Error("dropping event", zap.String("event_id", env.EventID), zap.String("event_type", env.EventType), zap.Error(err))
		return nil
	}
	if owner == "" {
		return nil
	}

	first, err := redisx.FirstSeen(ctx, s.Redis, s.ServiceName, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		s.log().Debug("duplicate event", zap.String("event_id", env.EventID))
		return nil
	}
	if err := s.Feed.Push(ctx, owner, n); err != nil {
		if ferr := redisx.Forget(ctx, s.Redis, s.ServiceName, env.EventID); ferr != nil {
			s.log().Warn("forget dedup marker", zap.String("event_id", env.EventID), zap.Error(ferr))
		}
		return err
	}
	s.log().Info("notification stored",
		zap.String("event_id", env.EventID), zap.String("order_id", n.OrderID), zap.String("subject", owner))
	return nil
}

// render returns the feed owner and entry for an event. Unknown event types
// yield an empty owner.
func render(env orders.Envelope) (string, redisx.Notification, error) {
	n := redisx.Notification{ID: env.EventID, Kind: env.EventType, CreatedAt: env.OccurredAt}
	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			return "", n, err
		}
		units := 0
		for _, l := range p.Lines {
			units += l.Quantity
		}
		n.OrderID = p.OrderID
		n.Status = orders.StatusPending.String()
		n.Message = fmt.Sprintf("Order %s placed: %d item(s), total %s",
			p.OrderID, units, decimal.New(p.TotalCents, -2).StringFixed(2))
		return p.OwnerID, n, nil
	case orders.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return "", n, err
		}
		n.OrderID = p.OrderID
		n.Status = p.To.String()
		n.Message = fmt.Sprintf("Order %s is now %s", p.OrderID, p.To)
		if p.To == orders.StatusCancelled && p.By != p.OwnerID {
			n.Message = fmt.Sprintf("Order %s was cancelled by staff", p.OrderID)
		}
		return p.OwnerID, n, nil
	}
	return "", n, nil
}
