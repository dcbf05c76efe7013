package link

import "sync/atomic"

// tryLock is a non-blocking ownership token. The interrupt path only ever
// tries it, so it can never stall behind the application.
type tryLock struct {
	held atomic.Bool
}

func (l *tryLock) TryLock() bool {
	return l.held.CompareAndSwap(false, true)
}

func (l *tryLock) Unlock() {
	l.held.Store(false)
}
