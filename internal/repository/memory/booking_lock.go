package memory

import (
	"alcyxob/session-booking/internal/repository"
	"context"
	"sync"
)

// BookingLocker is a process-local repository.BookingLocker. Each key is a one-slot
// channel so waiters can give up when their context ends.
type BookingLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewBookingLocker creates an empty locker.
func NewBookingLocker() *BookingLocker {
	return &BookingLocker{slots: make(map[string]chan struct{})}
}

func (l *BookingLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Acquire takes every key in sorted order so two callers locking the same pair
// can never deadlock.
func (l *BookingLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	ordered := repository.LockOrder(keys)
	held := make([]chan struct{}, 0, len(ordered))

	releaseHeld := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for _, key := range ordered {
		ch := l.slot(key)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-ctx.Done():
			releaseHeld()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(releaseHeld) }, nil
}
