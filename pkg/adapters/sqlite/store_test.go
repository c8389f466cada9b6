package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bert-systems/canvas/pkg/adapters/sqlite"
	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/bert-systems/canvas/pkg/ports"
)

func open(t *testing.T) (*sqlite.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "outbox.db")
	store, err := sqlite.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestSQLiteStore_Contract(t *testing.T) {
	store, _ := open(t)
	ports.RunOutboxStoreContract(t, store)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	store, path := open(t)
	ctx := context.Background()
	next := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, domain.OutboxEntry{
		NodeID:      "n1",
		Patch:       domain.NodePatch{CachedOutput: []domain.AssetRef{{ID: "a1", URL: "https://cdn/a1.png"}}},
		Attempts:    2,
		NextAttempt: next,
	}))
	require.NoError(t, store.Close())

	reopened, err := sqlite.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	entry, err := reopened.Load(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Attempts)
	assert.True(t, next.Equal(entry.NextAttempt))
	require.Len(t, entry.Patch.CachedOutput, 1)
	assert.Equal(t, "https://cdn/a1.png", entry.Patch.CachedOutput[0].URL)
	assert.True(t, entry.UpdatedAt.IsZero(), "zero times round-trip")
}

func TestSQLiteStore_InMemory(t *testing.T) {
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ports.RunOutboxStoreContract(t, store)
}
