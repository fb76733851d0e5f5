// Package lock provides keyed mutual exclusion for case-scoped transactions.
package lock

import (
	"context"
	"errors"
	"sync"
)

var ErrNotHeld = errors.New("lock not held")

// Unlock releases a lock obtained from a Locker.
type Unlock func(ctx context.Context) error

// Locker grants exclusive access per key. Lock blocks until the key is free or ctx ends.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// LocalLocker serializes callers within one process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch      chan struct{}
	waiters int
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: map[string]*slot{}}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()

	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}

	s.waiters++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s, false)
		return nil, ctx.Err()
	}

	var once sync.Once

	return func(context.Context) error {
		err := ErrNotHeld

		once.Do(func() {
			l.release(key, s, true)
			err = nil
		})

		return err
	}, nil
}

func (l *LocalLocker) release(key string, s *slot, held bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if held {
		<-s.ch
	}

	s.waiters--
	if s.waiters == 0 {
		delete(l.slots, key)
	}
}
