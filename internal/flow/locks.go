package flow

import (
	"sync"
	"time"
)

// UserLocks serializes event handling per user so a redelivered or
// double-tapped webhook cannot race the session read-modify-write.
// Distinct users proceed in parallel.
type UserLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu       sync.Mutex
	lastUsed time.Time
}

// NewUserLocks creates an empty lock manager.
func NewUserLocks() *UserLocks {
	return &UserLocks{locks: make(map[string]*userLock)}
}

func (m *UserLocks) get(userID string) *userLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[userID]
	if !ok {
		l = &userLock{}
		m.locks[userID] = l
	}
	l.lastUsed = time.Now()
	return l
}

// WithLock runs fn while holding the user's lock.
func (m *UserLocks) WithLock(userID string, fn func() error) error {
	l := m.get(userID)
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn()
}

// Cleanup drops locks idle for longer than maxAge and returns how many
// were removed. Intended to be called from a periodic sweep.
func (m *UserLocks) Cleanup(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for userID, l := range m.locks {
		if l.lastUsed.Before(cutoff) && l.mu.TryLock() {
			l.mu.Unlock()
			delete(m.locks, userID)
			removed++
		}
	}
	return removed
}
