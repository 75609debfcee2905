package reconcile

import (
	"sync"

	"shopsync/internal/model"
)

// sessionLocks serializes mutations per (session, kind) so concurrent
// requests for the same collection never interleave load-modify-save.
// Locks are created on demand and never reaped; the map is bounded by
// the number of live sessions a single process serves.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for the given session and kind and returns the
// matching unlock func.
func (s *sessionLocks) lock(sessionID string, kind model.Kind) func() {
	key := string(kind) + ":" + sessionID

	s.mu.Lock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}
