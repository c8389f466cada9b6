package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var errLockUnavailable = errors.New("node lock unavailable")

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// keyLocks serializes work per node id. Entries are reference counted and
// removed once nobody holds or waits for them.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*lockEntry)}
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(key) after unlocking.
func (k *keyLocks) acquire(key string) *lockEntry {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, exists := k.locks[key]
	if !exists {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (k *keyLocks) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, exists := k.locks[key]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(k.locks, key)
	}
}

func (k *keyLocks) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// withLock executes fn while holding the local lock for nodeID and, when a
// distributed locker is configured, the cluster-wide one.
func (o *Outbox) withLock(ctx context.Context, nodeID string, fn func(context.Context) error) error {
	entry := o.locks.acquire(nodeID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		o.locks.release(nodeID)
	}()

	if o.locker != nil {
		unlock, err := o.locker.Lock(ctx, "sync:"+nodeID, o.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("%w: %w", errLockUnavailable, err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				o.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"node_id", nodeID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
