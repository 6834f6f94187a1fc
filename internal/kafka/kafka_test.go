package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/goleak"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

func TestMain(m *testing.M) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	goleak.VerifyTestMain(m)
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
	fail   error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		return w.fail
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

type fakeReader struct {
	in chan kafka.Message

	mu        sync.Mutex
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.in:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestProducerFlushesOnClose(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 8, nil)
	p.Start(context.Background())

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Publish(context.Background(), kafka.Message{Topic: "t", Value: []byte{byte(i)}}))
	}
	p.Close()
	p.Close()

	assert.Len(t, w.written(), 5)
	assert.True(t, w.closed)
	assert.ErrorIs(t, p.Publish(context.Background(), kafka.Message{}), ErrProducerClosed)
}

func TestProducerStopsWithContext(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	require.NoError(t, p.Publish(ctx, kafka.Message{Topic: "t"}))
	cancel()

	assert.Eventually(t, func() bool {
		return errors.Is(p.Publish(context.Background(), kafka.Message{}), ErrProducerClosed)
	}, time.Second, 5*time.Millisecond)
	p.Close()
	assert.Len(t, w.written(), 1)
}

func TestProducerCloseWithoutStart(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 1, nil)
	p.Close()
	assert.True(t, w.closed)
}

func TestProducerWriteErrorsAreSwallowed(t *testing.T) {
	w := &fakeWriter{fail: errors.New("broker down")}
	p := newProducer(w, 1, nil)
	p.Start(context.Background())
	require.NoError(t, p.Publish(context.Background(), kafka.Message{Topic: "t"}))
	p.Close()
	assert.Empty(t, w.written())
}

func TestConsumerCommitsOnlyHandledMessages(t *testing.T) {
	r := &fakeReader{in: make(chan kafka.Message, 4)}
	c := newConsumer(r, 2, nil)
	for off := int64(0); off < 4; off++ {
		r.in <- kafka.Message{Topic: "t", Offset: off}
	}

	ctx, cancel := context.WithCancel(context.Background())
	var (
		mu   sync.Mutex
		seen int
	)
	done := make(chan error, 1)
	go func() {
		done <- c.Start(ctx, func(_ context.Context, m kafka.Message) error {
			mu.Lock()
			seen++
			mu.Unlock()
			if m.Offset == 2 {
				return errors.New("poison")
			}
			return nil
		})
	}()

	assert.Eventually(t, func() bool { return len(r.commits()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.ElementsMatch(t, []int64{0, 1, 3}, r.commits())
	assert.Equal(t, 4, seen)
	assert.True(t, r.closed)
}

type capturePublisher struct {
	msgs []kafka.Message
	err  error
}

func (c *capturePublisher) Publish(_ context.Context, m kafka.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, m)
	return nil
}

func TestEventPublisher(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanID:     trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	cp := &capturePublisher{}
	p := &EventPublisher{Producer: cp, Service: "orders-api"}

	o := orders.Order{ID: "o-1", OwnerID: "alice", Status: orders.StatusPending, TotalCents: 899,
		Lines: []orders.Line{{ItemID: "burger", Quantity: 1, UnitPriceCents: 899}}}
	p.OrderCreated(ctx, o)
	o.Status = orders.StatusCancelled
	p.OrderStatusChanged(ctx, o, orders.StatusPending, "alice")

	require.Len(t, cp.msgs, 2)
	created := cp.msgs[0]
	assert.Equal(t, orders.TopicOrderCreated, created.Topic)
	assert.Equal(t, []byte("o-1"), created.Key)
	assert.Equal(t, orders.EventOrderCreated, HeaderCarrier{Headers: &created.Headers}.Get(HeaderEventType))
	assert.NotEmpty(t, HeaderCarrier{Headers: &created.Headers}.Get("traceparent"))

	env, err := DecodeEnvelope(created.Value)
	require.NoError(t, err)
	assert.Equal(t, sc.TraceID().String(), env.TraceID)
	assert.Equal(t, "o-1", env.CorrelationID)
	payload, err := UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, "alice", payload.OwnerID)
	assert.Equal(t, int64(899), payload.TotalCents)

	changed := cp.msgs[1]
	assert.Equal(t, orders.TopicOrderStatusChanged, changed.Topic)
	env, err = DecodeEnvelope(changed.Value)
	require.NoError(t, err)
	status, err := UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, status.From)
	assert.Equal(t, orders.StatusCancelled, status.To)
	assert.Equal(t, "alice", status.By)

	cp.err = ErrProducerClosed
	p.OrderCreated(ctx, o)
	assert.Len(t, cp.msgs, 2, "dropped events do not panic or block")
}

func TestHeaderCarrier(t *testing.T) {
	var h []kafka.Header
	c := HeaderCarrier{Headers: &h}
	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("a", "3")
	assert.Equal(t, "3", c.Get("a"))
	assert.Equal(t, "", c.Get("missing"))
	assert.Equal(t, []string{"a", "b"}, c.Keys())
}
