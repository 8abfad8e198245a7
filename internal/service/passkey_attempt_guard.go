package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sandeepkv93/special-access-gate/internal/security"
)

// PasskeyAttemptPolicy bounds failures per client IP and token pair (MaxFailures) and per token
// across every IP (MaxTokenFailures). Either limit starts the lockout for its counter.
type PasskeyAttemptPolicy struct {
	MaxFailures      int
	MaxTokenFailures int
	Window           time.Duration
	Lockout          time.Duration
}

func (p PasskeyAttemptPolicy) normalized() PasskeyAttemptPolicy {
	if p.MaxFailures < 1 {
		p.MaxFailures = 5
	}
	if p.MaxTokenFailures < 1 {
		p.MaxTokenFailures = 4 * p.MaxFailures
	}
	if p.MaxTokenFailures < p.MaxFailures {
		p.MaxTokenFailures = p.MaxFailures
	}
	if p.Window <= 0 {
		p.Window = 15 * time.Minute
	}
	if p.Lockout <= 0 {
		p.Lockout = 15 * time.Minute
	}
	return p
}

// PasskeyAttemptGuard throttles passkey guesses per client IP and presented token, and per token
// on its own. Check and RegisterFailure return the longest remaining lockout, zero when the
// caller may proceed.
type PasskeyAttemptGuard interface {
	Check(ctx context.Context, ip, token string) (time.Duration, error)
	RegisterFailure(ctx context.Context, ip, token string) (time.Duration, error)
	Reset(ctx context.Context, ip, token string) error
}

type attemptCounter struct {
	subject string
	limit   int
}

func attemptCounters(policy PasskeyAttemptPolicy, ip, token string) [2]attemptCounter {
	token = strings.ToLower(strings.TrimSpace(token))
	return [2]attemptCounter{
		{subject: security.Fingerprint(strings.TrimSpace(ip) + "|" + token), limit: policy.MaxFailures},
		{subject: security.Fingerprint("token|" + token), limit: policy.MaxTokenFailures},
	}
}

type NoopPasskeyAttemptGuard struct{}

func NewNoopPasskeyAttemptGuard() *NoopPasskeyAttemptGuard { return &NoopPasskeyAttemptGuard{} }

func (NoopPasskeyAttemptGuard) Check(context.Context, string, string) (time.Duration, error) {
	return 0, nil
}

func (NoopPasskeyAttemptGuard) RegisterFailure(context.Context, string, string) (time.Duration, error) {
	return 0, nil
}

func (NoopPasskeyAttemptGuard) Reset(context.Context, string, string) error { return nil }

type attemptState struct {
	failures    int
	windowStart time.Time
	lockedUntil time.Time
}

func (st attemptState) stale(now time.Time, window time.Duration) bool {
	return !st.lockedUntil.After(now) && (st.windowStart.IsZero() || now.Sub(st.windowStart) > window)
}

type InMemoryPasskeyAttemptGuard struct {
	policy PasskeyAttemptPolicy
	now    func() time.Time

	mu        sync.Mutex
	states    map[string]attemptState
	nextSweep time.Time
}

func NewInMemoryPasskeyAttemptGuard(policy PasskeyAttemptPolicy) *InMemoryPasskeyAttemptGuard {
	return &InMemoryPasskeyAttemptGuard{
		policy: policy.normalized(),
		now:    time.Now,
		states: make(map[string]attemptState),
	}
}

func (g *InMemoryPasskeyAttemptGuard) Check(_ context.Context, ip, token string) (time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	var longest time.Duration
	for _, c := range attemptCounters(g.policy, ip, token) {
		if remaining := g.states[c.subject].lockedUntil.Sub(now); remaining > longest {
			longest = remaining
		}
	}
	return longest, nil
}

func (g *InMemoryPasskeyAttemptGuard) RegisterFailure(_ context.Context, ip, token string) (time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.sweep(now)
	var longest time.Duration
	for _, c := range attemptCounters(g.policy, ip, token) {
		if remaining := g.registerLocked(c, now); remaining > longest {
			longest = remaining
		}
	}
	return longest, nil
}

func (g *InMemoryPasskeyAttemptGuard) registerLocked(c attemptCounter, now time.Time) time.Duration {
	st := g.states[c.subject]
	if remaining := st.lockedUntil.Sub(now); remaining > 0 {
		return remaining
	}
	if st.windowStart.IsZero() || now.Sub(st.windowStart) > g.policy.Window {
		st = attemptState{windowStart: now}
	}
	st.failures++
	if st.failures >= c.limit {
		g.states[c.subject] = attemptState{lockedUntil: now.Add(g.policy.Lockout)}
		return g.policy.Lockout
	}
	g.states[c.subject] = st
	return 0
}

// sweep drops counters whose window and lockout have both lapsed, at most once per window.
func (g *InMemoryPasskeyAttemptGuard) sweep(now time.Time) {
	if now.Before(g.nextSweep) {
		return
	}
	for k, st := range g.states {
		if st.stale(now, g.policy.Window) {
			delete(g.states, k)
		}
	}
	g.nextSweep = now.Add(g.policy.Window)
}

func (g *InMemoryPasskeyAttemptGuard) Reset(_ context.Context, ip, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range attemptCounters(g.policy, ip, token) {
		delete(g.states, c.subject)
	}
	return nil
}

func (g *InMemoryPasskeyAttemptGuard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.states)
}
