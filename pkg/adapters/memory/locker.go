package memory

import (
	"context"
	"sync"
	"time"

	"github.com/bert-systems/canvas/pkg/ports"
)

// Locker implements ports.DistributedLocker within a single process.
// It is mostly useful for tests and single-replica deployments that still
// want the claim semantics (TTL expiry included).
type Locker struct {
	mu   sync.Mutex
	held map[string]*lease
}

type lease struct {
	released chan struct{}
	timer    *time.Timer
}

// NewLocker creates an empty Locker.
func NewLocker() *Locker {
	return &Locker{held: make(map[string]*lease)}
}

// Lock blocks until the key is free or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	for {
		l.mu.Lock()
		cur, busy := l.held[key]
		if !busy {
			ls := &lease{released: make(chan struct{})}
			if ttl > 0 {
				ls.timer = time.AfterFunc(ttl, func() { l.drop(key, ls) })
			}
			l.held[key] = ls
			l.mu.Unlock()
			return func(context.Context) error {
				l.drop(key, ls)
				return nil
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-cur.released:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Held reports whether a key is currently locked.
func (l *Locker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

// drop releases a lease if it is still the holder of key.
func (l *Locker) drop(key string, ls *lease) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != ls {
		return
	}
	delete(l.held, key)
	if ls.timer != nil {
		ls.timer.Stop()
	}
	close(ls.released)
}
