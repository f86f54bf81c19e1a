package eventlog

import (
	"time"
)

// WaitForAppend blocks until either a new append occurs, the store is closed,
// or timeout elapses. It returns true if woken, false on timeout.
func (l *Store) WaitForAppend(timeout time.Duration) bool {
	l.mu.RLock()
	ch := l.notifyCh
	l.mu.RUnlock()
	if timeout <= 0 {
		<-ch
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}
