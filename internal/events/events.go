// Package events ships special-access audit events to an external sink.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"
)

// AccessEvent mirrors one access-log row.
type AccessEvent struct {
	TokenID    *uint     `json:"token_id,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	Action     string    `json:"action"`
	PageURL    string    `json:"page_url,omitempty"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Key partitions events by token so one token's history stays ordered.
func (e AccessEvent) Key() string {
	if e.TokenID == nil {
		return "none"
	}
	return strconv.FormatUint(uint64(*e.TokenID), 10)
}

type Publisher interface {
	Publish(ctx context.Context, e AccessEvent) error
	Close() error
	Name() string
}

func encode(e AccessEvent) ([]byte, error) { return json.Marshal(e) }

type NoopPublisher struct{}

func NewNoopPublisher() *NoopPublisher { return &NoopPublisher{} }

func (NoopPublisher) Publish(context.Context, AccessEvent) error { return nil }
func (NoopPublisher) Close() error                               { return nil }
func (NoopPublisher) Name() string                               { return "none" }

// InMemoryPublisher keeps published events; used by tests and local tooling.
type InMemoryPublisher struct {
	mu     sync.Mutex
	events []AccessEvent
	err    error
}

func NewInMemoryPublisher() *InMemoryPublisher { return &InMemoryPublisher{} }

// FailWith makes subsequent publishes return err.
func (p *InMemoryPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *InMemoryPublisher) Publish(_ context.Context, e AccessEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *InMemoryPublisher) Events() []AccessEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]AccessEvent, len(p.events))
	copy(out, p.events)
	return out
}

func (p *InMemoryPublisher) Close() error { return nil }
func (p *InMemoryPublisher) Name() string { return "memory" }
