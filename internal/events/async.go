package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sandeepkv93/special-access-gate/internal/observability"
)

var (
	ErrQueueFull = errors.New("event queue is full")
	ErrClosed    = errors.New("event publisher is closed")
)

// AsyncPublisher queues events for a single background sender so a slow or unreachable sink
// never holds up the request that produced the event. A full queue drops the event.
type AsyncPublisher struct {
	next    Publisher
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.RWMutex
	closed  bool
	queue   chan AccessEvent
	done    chan struct{}
	dropped atomic.Int64
}

func NewAsyncPublisher(next Publisher, buffer int, timeout time.Duration, logger *slog.Logger) *AsyncPublisher {
	if buffer < 1 {
		buffer = 1024
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &AsyncPublisher{
		next:    next,
		timeout: timeout,
		logger:  logger,
		queue:   make(chan AccessEvent, buffer),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish enqueues e without blocking.
func (p *AsyncPublisher) Publish(_ context.Context, e AccessEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- e:
		return nil
	default:
		p.dropped.Add(1)
		return ErrQueueFull
	}
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for e := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.next.Publish(ctx, e)
		cancel()
		if err != nil {
			observability.RecordEventPublication(context.Background(), p.next.Name(), "delivery_error")
			p.logger.Warn("access event delivery failed", "sink", p.next.Name(), "action", e.Action, "error", err)
			continue
		}
		observability.RecordEventPublication(context.Background(), p.next.Name(), "delivered")
	}
}

// Close stops accepting events, drains what is queued, then closes the wrapped sink.
func (p *AsyncPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	<-p.done
	if n := p.dropped.Load(); n > 0 {
		p.logger.Warn("access events dropped on full queue", "sink", p.next.Name(), "dropped", n)
	}
	return p.next.Close()
}

func (p *AsyncPublisher) Name() string { return p.next.Name() }

// Dropped reports how many events were discarded because the queue was full.
func (p *AsyncPublisher) Dropped() int64 { return p.dropped.Load() }
