package engine

import (
	"sync"
	"time"

	"github.com/rustyeddy/autotrader/rules"
)

type runKey struct {
	source  string
	useCase rules.UseCase
}

// runLocks provides per-(source, use-case) mutual exclusion for evaluation
// runs. Acquisition is non-blocking beyond a short deadline: a caller that
// cannot get the lock gives up, on the assumption the in-flight run will
// produce the same outcome. Locks for different keys never contend.
type runLocks struct {
	mu    sync.Mutex
	locks map[runKey]*sync.Mutex
}

func newRunLocks() *runLocks {
	return &runLocks{locks: make(map[runKey]*sync.Mutex)}
}

// acquire tries to take the lock for k, retrying until timeout. It returns a
// release func and true on success, or nil and false when the key stays
// contended past the deadline.
func (l *runLocks) acquire(k runKey, timeout time.Duration) (func(), bool) {
	lock := l.lockFor(k)

	deadline := time.Now().Add(timeout)
	for {
		if lock.TryLock() {
			return lock.Unlock, true
		}
		if time.Now().After(deadline) {
			return nil, false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (l *runLocks) lockFor(k runKey) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[k]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[k] = lock
	}
	return lock
}
