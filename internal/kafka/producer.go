package kafka

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var ErrProducerClosed = errors.New("kafka producer closed")

const writeTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer buffers messages and writes them from one goroutine. Close flushes
// whatever is buffered before it returns.
type Producer struct {
	w     messageWriter
	log   *zap.Logger
	inbox chan kafka.Message
	done  chan struct{}

	mu      sync.RWMutex
	closed  bool
	started atomic.Bool
	once    sync.Once
}

// NewProducer writes to whatever topic each message names.
func NewProducer(brokers []string, buf int, log *zap.Logger) *Producer {
	return newProducer(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}, buf, log)
}

func newProducer(w messageWriter, buf int, log *zap.Logger) *Producer {
	if buf <= 0 {
		buf = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Producer{
		w:     w,
		log:   log,
		inbox: make(chan kafka.Message, buf),
		done:  make(chan struct{}),
	}
}

// Start runs the write loop until Close is called or ctx ends.
func (p *Producer) Start(ctx context.Context) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed || !p.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(p.done)
		for m := range p.inbox {
			p.write(m)
		}
		if err := p.w.Close(); err != nil {
			p.log.Warn("kafka writer close", zap.Error(err))
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			p.Close()
		case <-p.done:
		}
	}()
}

func (p *Producer) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.log.Error("kafka write failed",
			zap.String("topic", m.Topic), zap.ByteString("key", m.Key), zap.Error(err))
	}
}

func (p *Producer) Publish(ctx context.Context, m kafka.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	if m.Time.IsZero() {
		m.Time = time.Now()
	}
	select {
	case p.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting messages, flushes the buffer and waits for the write
// loop to exit. Safe to call more than once.
func (p *Producer) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.inbox)
		p.mu.Unlock()
		if !p.started.Load() {
			_ = p.w.Close()
			close(p.done)
		}
	})
	<-p.done
}
