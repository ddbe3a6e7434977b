package memory

import (
	"context"
	"sync"

	portlocker "github.com/alanyang/call-dispatch/internal/port/locker"
)

// Locker is an in-process keyed mutex implementing port/locker.AdvisoryLocker.
type Locker struct {
	mu    sync.Mutex
	locks map[int64]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

var _ portlocker.AdvisoryLocker = (*Locker)(nil)

func NewLocker() *Locker {
	return &Locker{locks: make(map[int64]*keyLock)}
}

// WithLock runs fn while holding the lock for key. Waiting honours ctx
// cancellation; once fn has started it runs to completion.
func (l *Locker) WithLock(ctx context.Context, key int64, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	defer l.release(key, kl)

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-kl.ch }()

	return fn(ctx)
}

func (l *Locker) release(key int64, kl *keyLock) {
	l.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}
