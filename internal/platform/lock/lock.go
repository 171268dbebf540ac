// Package lock provides keyed mutual exclusion across goroutines and, with
// the Redis implementation, across server instances. Payment posting and
// batch state transitions are serialized through it.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotHeld is returned when releasing a lock that expired or was taken
// over by another owner.
var ErrNotHeld = errors.New("lock not held by this owner")

// Release gives a lock back. Calling it more than once is a no-op.
type Release func(ctx context.Context) error

// Locker hands out exclusive locks keyed by an arbitrary string.
type Locker interface {
	// Acquire blocks until the lock is obtained or ctx is done.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error)
	// TryAcquire returns ok=false immediately when the lock is held elsewhere.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Release, bool, error)
}

// PaymentKey is the posting lock key for a payment.
func PaymentKey(id string) string { return "rcm:lock:payment:" + id }

// BatchKey is the transition lock key for a submission batch.
func BatchKey(id string) string { return "rcm:lock:batch:" + id }

// LocalLocker is an in-process Locker. The ttl argument is ignored: locks
// are held until released.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]chan struct{})}
}

func (l *LocalLocker) TryAcquire(_ context.Context, key string, _ time.Duration) (Release, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, false, nil
	}
	ch := make(chan struct{})
	l.held[key] = ch
	return l.releaser(key, ch), true, nil
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, _ time.Duration) (Release, error) {
	for {
		l.mu.Lock()
		ch, ok := l.held[key]
		if !ok {
			ch = make(chan struct{})
			l.held[key] = ch
			l.mu.Unlock()
			return l.releaser(key, ch), nil
		}
		l.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Held reports whether key is currently locked.
func (l *LocalLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

func (l *LocalLocker) releaser(key string, ch chan struct{}) Release {
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			if l.held[key] == ch {
				delete(l.held, key)
			}
			l.mu.Unlock()
			close(ch)
		})
		return nil
	}
}
