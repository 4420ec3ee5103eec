package store

import (
	"sync"
	"time"

	"formflow/internal/domain"
)

// Store owns all active form-fill sessions. Implementations must serialize
// mutation of any single session record.
type Store interface {
	// Get returns the session with the given id, if present and not expired.
	Get(id string) (*domain.Session, bool)
	// Put registers or replaces a session.
	Put(s *domain.Session)
	// Remove drops a session. Removing an absent id is a no-op.
	Remove(id string)
	// FindByQuestion returns the session whose snapshot contains a question
	// with the given id, along with that question's index.
	FindByQuestion(questionID string) (*domain.Session, int, bool)
	// Len returns the number of active sessions.
	Len() int
	// Sweep drops all expired sessions and returns how many were removed.
	Sweep() int
}

type entry struct {
	session  *domain.Session
	deadline time.Time
}

// MemStore is an in-memory session store with TTL-based expiry.
type MemStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewMem creates an in-memory store. Sessions expire ttl after their last
// mutation; a non-positive ttl disables expiry.
func NewMem(ttl time.Duration) *MemStore {
	return &MemStore{ttl: ttl, now: time.Now, sessions: map[string]*entry{}}
}

// SetClock overrides the store's clock, for tests.
func (m *MemStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemStore) Get(id string) (*domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if m.expired(e) {
		delete(m.sessions, id)
		return nil, false
	}
	return e.session, true
}

func (m *MemStore) Put(s *domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = &entry{session: s, deadline: m.deadline()}
}

func (m *MemStore) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *MemStore) FindByQuestion(questionID string) (*domain.Session, int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.sessions {
		if m.expired(e) {
			delete(m.sessions, id)
			continue
		}
		for i, q := range e.session.Questions {
			if q.ID == questionID {
				return e.session, i, true
			}
		}
	}
	return nil, 0, false
}

func (m *MemStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.sessions {
		if m.expired(e) {
			delete(m.sessions, id)
			continue
		}
		n++
	}
	return n
}

func (m *MemStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.sessions {
		if m.expired(e) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

func (m *MemStore) deadline() time.Time {
	if m.ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(m.ttl)
}

func (m *MemStore) expired(e *entry) bool {
	return !e.deadline.IsZero() && m.now().After(e.deadline)
}
