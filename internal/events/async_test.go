package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// blockingPublisher holds every publish until release is closed.
type blockingPublisher struct {
	release chan struct{}
	mu      sync.Mutex
	got     []AccessEvent
	closed  bool
}

func (p *blockingPublisher) Publish(ctx context.Context, e AccessEvent) error {
	select {
	case <-p.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, e)
	return nil
}

func (p *blockingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *blockingPublisher) Name() string { return "blocking" }

func TestAsyncPublisherDoesNotWaitForSink(t *testing.T) {
	sink := &blockingPublisher{release: make(chan struct{})}
	p := NewAsyncPublisher(sink, 4, time.Minute, nil)

	start := time.Now()
	for i := 0; i < 4; i++ {
		if err := p.Publish(context.Background(), AccessEvent{Action: "page_access"}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("publish blocked on the sink for %v", elapsed)
	}

	close(sink.release)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(sink.got) != 4 || !sink.closed {
		t.Fatalf("expected queued events drained before close, got %d closed=%v", len(sink.got), sink.closed)
	}
}

func TestAsyncPublisherDropsWhenFull(t *testing.T) {
	sink := &blockingPublisher{release: make(chan struct{})}
	p := NewAsyncPublisher(sink, 1, time.Minute, nil)

	var full int
	for i := 0; i < 10; i++ {
		if err := p.Publish(context.Background(), AccessEvent{Action: "page_access"}); errors.Is(err, ErrQueueFull) {
			full++
		}
	}
	if full == 0 || p.Dropped() != int64(full) {
		t.Fatalf("expected drops to be counted, full=%d dropped=%d", full, p.Dropped())
	}

	close(sink.release)
	_ = p.Close()
	if err := p.Publish(context.Background(), AccessEvent{Action: "late"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestAsyncPublisherBoundsEachDelivery(t *testing.T) {
	sink := &blockingPublisher{release: make(chan struct{})}
	p := NewAsyncPublisher(sink, 2, 20*time.Millisecond, nil)
	_ = p.Publish(context.Background(), AccessEvent{Action: "a"})
	_ = p.Publish(context.Background(), AccessEvent{Action: "b"})

	done := make(chan struct{})
	go func() {
		_ = p.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("close hung on an unresponsive sink")
	}
	if len(sink.got) != 0 {
		t.Fatalf("timed out deliveries must not be recorded, got %d", len(sink.got))
	}
}
