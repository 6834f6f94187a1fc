package kafka

import (
	"context"
	"errors"
	"sync"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Handler returns nil only when the message was processed and its offset may
// be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r       messageReader
	workers int
	log     *zap.Logger
}

func NewConsumer(brokers []string, group string, topics []string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     group,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newConsumer(r, workers, log)
}

func newConsumer(r messageReader, workers int, log *zap.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{r: r, workers: workers, log: log}
}

// Start fetches messages until ctx ends and hands them to a pool of workers.
// Offsets are committed only after h succeeds. Returns nil on shutdown.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	jobs := make(chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				c.handle(ctx, h, m)
			}
		}()
	}

	err := c.dispatch(ctx, jobs)
	close(jobs)
	wg.Wait()
	if cerr := c.r.Close(); cerr != nil {
		c.log.Warn("kafka reader close", zap.Error(cerr))
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Consumer) dispatch(ctx context.Context, jobs chan<- kafka.Message) error {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			return err
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, HeaderCarrier{Headers: &m.Headers})
	ctx, span := tracer.Start(ctx, "kafka.consume "+m.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination", m.Topic),
			attribute.Int("messaging.kafka.partition", m.Partition),
			attribute.Int64("messaging.kafka.offset", m.Offset)))
	defer span.End()

	fields := []zap.Field{zap.String("topic", m.Topic), zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset)}
	if err := h(ctx, m); err != nil {
		span.RecordError(err)
		c.log.Error("handler failed, offset not committed", append(fields, zap.Error(err))...)
		return
	}
	if err := c.r.CommitMessages(ctx, m); err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn("commit failed", append(fields, zap.Error(err))...)
	}
}
