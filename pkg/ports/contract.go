package ports

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunOutboxStoreContract runs a suite of tests to verify that an OutboxStore implementation
// adheres to the defined interface contract. The store must start empty.
func RunOutboxStoreContract(t *testing.T, store OutboxStore) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entry := func(nodeID string, next time.Time) domain.OutboxEntry {
		return domain.OutboxEntry{
			NodeID: nodeID,
			Patch: domain.NodePatch{
				Label:      domain.StringPtr("Label " + nodeID),
				Parameters: map[string]any{"genre": "noir"},
				IsExpanded: domain.BoolPtr(true),
			},
			Attempts:    1,
			LastError:   "connection refused",
			NextAttempt: next,
			UpdatedAt:   base,
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		e := entry("contract-n1", base)
		require.NoError(t, store.Save(ctx, e), "Save should not return error")

		loaded, err := store.Load(ctx, "contract-n1")
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, e.NodeID, loaded.NodeID)
		assert.Equal(t, "Label contract-n1", *loaded.Patch.Label)
		assert.Equal(t, "noir", loaded.Patch.Parameters["genre"])
		assert.True(t, *loaded.Patch.IsExpanded)
		assert.Nil(t, loaded.Patch.IsLocked)
		assert.Equal(t, 1, loaded.Attempts)
		assert.Equal(t, "connection refused", loaded.LastError)
		assert.True(t, e.NextAttempt.Equal(loaded.NextAttempt), "NextAttempt %v != %v", e.NextAttempt, loaded.NextAttempt)

		require.NoError(t, store.Delete(ctx, "contract-n1"))
	})

	t.Run("Save Replaces", func(t *testing.T) {
		e := entry("contract-n2", base)
		require.NoError(t, store.Save(ctx, e))
		e.Attempts = 4
		e.DeadLetter = true
		require.NoError(t, store.Save(ctx, e))

		loaded, err := store.Load(ctx, "contract-n2")
		require.NoError(t, err)
		assert.Equal(t, 4, loaded.Attempts)
		assert.True(t, loaded.DeadLetter)

		all, err := store.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)

		require.NoError(t, store.Delete(ctx, "contract-n2"))
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "contract-missing")
		assert.ErrorIs(t, err, domain.ErrOutboxEntryNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, entry("contract-n3", base)))
		require.NoError(t, store.Delete(ctx, "contract-n3"), "Delete should not return error")

		_, err := store.Load(ctx, "contract-n3")
		assert.ErrorIs(t, err, domain.ErrOutboxEntryNotFound, "Load after Delete should return ErrOutboxEntryNotFound")
		assert.NoError(t, store.Delete(ctx, "contract-n3"), "Delete is idempotent")
	})

	t.Run("List and Due", func(t *testing.T) {
		late := entry("contract-b", base.Add(time.Minute))
		early := entry("contract-c", base.Add(-time.Minute))
		now := entry("contract-a", base)
		dead := entry("contract-d", base.Add(-time.Hour))
		dead.DeadLetter = true
		for _, e := range []domain.OutboxEntry{late, early, now, dead} {
			require.NoError(t, store.Save(ctx, e))
		}
		defer func() {
			for _, id := range []string{"contract-a", "contract-b", "contract-c", "contract-d"} {
				_ = store.Delete(ctx, id)
			}
		}()

		all, err := store.List(ctx)
		require.NoError(t, err)
		ids := make([]string, len(all))
		for i, e := range all {
			ids[i] = e.NodeID
		}
		assert.Equal(t, []string{"contract-a", "contract-b", "contract-c", "contract-d"}, ids)

		due, err := store.Due(ctx, base, 0)
		require.NoError(t, err)
		require.Len(t, due, 2)
		assert.Equal(t, "contract-c", due[0].NodeID, "oldest first")
		assert.Equal(t, "contract-a", due[1].NodeID)

		limited, err := store.Due(ctx, base.Add(time.Hour), 1)
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, "contract-c", limited[0].NodeID)
	})
}

// RunLockerContract verifies mutual exclusion and release of a DistributedLocker.
func RunLockerContract(t *testing.T, locker DistributedLocker) {
	ctx := context.Background()

	t.Run("Exclusive", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, "contract-lock", 5*time.Second)
		require.NoError(t, err)

		waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(waitCtx, "contract-lock", 5*time.Second)
		assert.Error(t, err, "second Lock must wait until the context expires")

		require.NoError(t, unlock(ctx))

		unlock2, err := locker.Lock(ctx, "contract-lock", 5*time.Second)
		require.NoError(t, err, "lock is free after unlock")
		require.NoError(t, unlock2(ctx))
	})

	t.Run("Independent Keys", func(t *testing.T) {
		u1, err := locker.Lock(ctx, "contract-k1", 5*time.Second)
		require.NoError(t, err)
		u2, err := locker.Lock(ctx, "contract-k2", 5*time.Second)
		require.NoError(t, err)
		require.NoError(t, u1(ctx))
		require.NoError(t, u2(ctx))
	})

	t.Run("Waiter Acquires After Release", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, "contract-wait", 5*time.Second)
		require.NoError(t, err)

		var wg sync.WaitGroup
		acquired := make(chan struct{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := locker.Lock(ctx, "contract-wait", 5*time.Second)
			if err == nil {
				close(acquired)
				_ = u(ctx)
			}
		}()

		time.Sleep(50 * time.Millisecond)
		require.NoError(t, unlock(ctx))

		select {
		case <-acquired:
		case <-time.After(3 * time.Second):
			t.Fatal("waiter never acquired the lock")
		}
		wg.Wait()
	})
}
