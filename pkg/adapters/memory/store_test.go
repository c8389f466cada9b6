package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bert-systems/canvas/pkg/adapters/memory"
	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/bert-systems/canvas/pkg/ports"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunOutboxStoreContract(t, store)
}

func TestMemoryStore_Isolation(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	entry := domain.OutboxEntry{
		NodeID:      "n1",
		Patch:       domain.NodePatch{Parameters: map[string]any{"genre": "noir"}},
		NextAttempt: time.Now(),
	}
	require.NoError(t, store.Save(ctx, entry))
	entry.Patch.Parameters["genre"] = "western"

	loaded, err := store.Load(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "noir", loaded.Patch.Parameters["genre"], "store must not alias caller maps")
}

func TestMemoryLocker_Contract(t *testing.T) {
	ports.RunLockerContract(t, memory.NewLocker())
}

func TestMemoryLocker_TTLExpiry(t *testing.T) {
	locker := memory.NewLocker()
	ctx := context.Background()

	_, err := locker.Lock(ctx, "k", 30*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, locker.Held("k"))

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlock, err := locker.Lock(waitCtx, "k", time.Second)
	require.NoError(t, err, "expired lease must free the key")

	require.NoError(t, unlock(ctx))
	assert.False(t, locker.Held("k"))
}
