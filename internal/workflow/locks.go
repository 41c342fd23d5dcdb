package workflow

import "sync"

// requestLocks serializes stage operations per request id so the status
// precondition and the transition it guards act as one unit. The underlying
// store has no transaction spanning the read-check-write sequence.
type requestLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newRequestLocks() *requestLocks {
	return &requestLocks{locks: map[string]*sync.Mutex{}}
}

func (l *requestLocks) lock(requestID string) func() {
	l.mu.Lock()
	m, ok := l.locks[requestID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[requestID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}
