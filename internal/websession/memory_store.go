package websession

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

const (
	defaultMaxEntries    = 100_000
	defaultSweepInterval = time.Minute
)

// InMemoryStore keeps sessions in process. Expired entries are swept on writes at most once per
// sweep interval; at capacity the entry closest to expiry is evicted.
type InMemoryStore struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	now        func() time.Time
	maxEntries int
	sweepEvery time.Duration
	nextSweep  time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries:    make(map[string]memoryEntry),
		now:        time.Now,
		maxEntries: defaultMaxEntries,
		sweepEvery: defaultSweepInterval,
	}
}

func (m *InMemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *InMemoryStore) sweepLocked(now time.Time, force bool) {
	if !force && now.Before(m.nextSweep) {
		return
	}
	for id, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, id)
		}
	}
	m.nextSweep = now.Add(m.sweepEvery)
}

func (m *InMemoryStore) makeRoomLocked(id string, now time.Time) {
	if _, ok := m.entries[id]; ok || len(m.entries) < m.maxEntries {
		return
	}
	m.sweepLocked(now, true)
	for len(m.entries) >= m.maxEntries {
		var (
			victim  string
			soonest time.Time
		)
		for k, e := range m.entries {
			if victim == "" || e.expiresAt.Before(soonest) {
				victim, soonest = k, e.expiresAt
			}
		}
		delete(m.entries, victim)
	}
}

func (m *InMemoryStore) Load(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, id)
		return nil, ErrNotFound
	}
	cp := e.session
	if e.session.SpecialAccess != nil {
		sa := *e.session.SpecialAccess
		cp.SpecialAccess = &sa
	}
	cp.dirty = false
	return &cp, nil
}

func (m *InMemoryStore) Save(_ context.Context, s *Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweepLocked(now, false)
	m.makeRoomLocked(s.ID, now)
	cp := *s
	if s.SpecialAccess != nil {
		sa := *s.SpecialAccess
		cp.SpecialAccess = &sa
	}
	m.entries[s.ID] = memoryEntry{session: cp, expiresAt: now.Add(ttl)}
	s.dirty = false
	return nil
}

func (m *InMemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *InMemoryStore) Touch(_ context.Context, id string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.expiresAt = m.now().Add(ttl)
	m.entries[id] = e
	return nil
}
