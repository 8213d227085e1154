package service

import (
	"sync"

	"github.com/amaumene/autopost/internal/domain"
)

// keyLock serializes work per group key. Entries are dropped once no
// holder or waiter remains.
type keyLock struct {
	mu    sync.Mutex
	locks map[domain.GroupKey]*keyEntry
}

type keyEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[domain.GroupKey]*keyEntry)}
}

func (l *keyLock) Lock(key domain.GroupKey) func() {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &keyEntry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
