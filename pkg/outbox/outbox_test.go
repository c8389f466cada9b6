package outbox_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bert-systems/canvas/pkg/adapters/memory"
	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/bert-systems/canvas/pkg/graph"
	"github.com/bert-systems/canvas/pkg/nodetype"
	"github.com/bert-systems/canvas/pkg/outbox"
)

var errUnavailable = errors.New("503 service unavailable")

// manualClock is advanced explicitly by tests.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	graph  *graph.Graph
	remote *memory.NodeSync
	store  *memory.Store
	clock  *manualClock
	box    *outbox.Outbox
}

func newFixture(t *testing.T, cfg outbox.Config, opts ...outbox.Option) *fixture {
	t.Helper()
	g := graph.New()
	for _, id := range []string{"n1", "n2"} {
		n, err := nodetype.Default().Build(nodetype.Spec{Type: nodetype.TextPrompt, ID: id})
		require.NoError(t, err)
		require.NoError(t, g.AddNode(n))
	}
	f := &fixture{
		graph:  g,
		remote: memory.NewNodeSync(),
		store:  memory.NewStore(),
		clock:  &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	opts = append([]outbox.Option{
		outbox.WithConfig(cfg),
		outbox.WithMarker(g),
		outbox.WithClock(f.clock.Now),
	}, opts...)
	f.box = outbox.New(f.remote, f.store, opts...)
	t.Cleanup(func() { _ = f.box.Close(context.Background()) })
	return f
}

func (f *fixture) unsynced(t *testing.T, id string) bool {
	t.Helper()
	n, ok := f.graph.GetNode(id)
	require.True(t, ok)
	return n.Unsynced
}

func TestOutbox_DebounceCoalesces(t *testing.T) {
	f := newFixture(t, outbox.Config{Debounce: 20 * time.Millisecond})

	require.NoError(t, f.box.Enqueue("n1", domain.NodePatch{Label: domain.StringPtr("first")}))
	require.NoError(t, f.box.Enqueue("n1", domain.NodePatch{Parameters: map[string]any{"text": "hello"}}))
	require.NoError(t, f.box.Enqueue("n1", domain.NodePatch{Label: domain.StringPtr("second")}))
	assert.Equal(t, []string{"n1"}, f.box.Debouncing())

	require.Eventually(t, func() bool { return len(f.remote.Delivered("n1")) == 1 }, time.Second, 2*time.Millisecond)
	// Give a stray second send a chance to show up.
	time.Sleep(40 * time.Millisecond)

	delivered := f.remote.Delivered("n1")
	require.Len(t, delivered, 1)
	assert.Equal(t, "second", *delivered[0].Label)
	assert.Equal(t, "hello", delivered[0].Parameters["text"])
	assert.Empty(t, f.box.Debouncing())
}

func TestOutbox_EmptyPatchIgnored(t *testing.T) {
	f := newFixture(t, outbox.Config{Debounce: time.Hour})
	require.NoError(t, f.box.Enqueue("n1", domain.NodePatch{}))
	assert.Empty(t, f.box.Debouncing())
}

func TestOutbox_FailureFlagsNodeAndRetries(t *testing.T) {
	f := newFixture(t, outbox.Config{Debounce: time.Hour, BaseBackoff: time.Second})
	ctx := context.Background()
	f.remote.SetFailing(errUnavailable)

	require.NoError(t, f.box.Enqueue("n1", domain.NodePatch{Label: domain.StringPtr("draft")}))
	err := f.box.Flush(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errUnavailable)

	// The local change stays; the node is flagged.
	assert.True(t, f.unsynced(t, "n1"))
	pending, err := f.box.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, errUnavailable.Error(), pending[0].LastError)
	assert.Equal(t, f.clock.Now().Add(time.Second), pending[0].NextAttempt)

	// Not due yet.
	n, err := f.box.Retry(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.remote.SetFailing(nil)
	f.clock.Advance(time.Second)
	n, err = f.box.Retry(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.False(t, f.unsynced(t, "n1"))
	pending, err = f.box.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	require.Len(t, f.remote.Delivered("n1"), 1)
	assert.Equal(t, "draft", *f.remote.Delivered("n1")[0].Label)
}

func TestOutbox_DeadLetterAndRequeue(t *testing.T) {
	var mu sync.Mutex
	var dead []string
	f := newFixture(t,
		outbox.Config{Debounce: time.Hour, MaxAttempts: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute},
		outbox.WithHooks(outbox.Hooks{OnDeadLetter: func(id string, attempts int, err error) {
			mu.Lock()
			defer mu.Unlock()
			dead = append(dead, id)
		}}),
	)
	ctx := context.Background()
	f.remote.SetFailing(errUnavailable)

	require.NoError(t, f.box.Enqueue("n2", domain.NodePatch{IsExpanded: domain.BoolPtr(true)}))
	require.Error(t, f.box.Flush(ctx))

	for range 2 {
		f.clock.Advance(time.Minute)
		_, err := f.box.Retry(ctx)
		require.NoError(t, err)
	}

	entry, err := f.store.Load(ctx, "n2")
	require.NoError(t, err)
	assert.Equal(t, 3, entry.Attempts)
	assert.True(t, entry.DeadLetter)
	assert.Equal(t, []string{"n2"}, dead)
	assert.True(t, f.unsynced(t, "n2"), "dead letters stay visible")

	// Dead letters are never due.
	f.clock.Advance(time.Hour)
	n, err := f.box.Retry(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, f.remote.Updates(), 3)

	require.NoError(t, f.box.Requeue(ctx, "n2"))
	f.remote.SetFailing(nil)
	n, err = f.box.Retry(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, f.unsynced(t, "n2"))
}

func TestOutbox_FreshEditMergesWithStoredEntry(t *testing.T) {
	f := newFixture(t, outbox.Config{Debounce: time.Hour})
	ctx := context.Background()

	f.remote.FailNext(1, errUnavailable)
	require.NoError(t, f.box.Enqueue("n1", domain.NodePatch{Label: domain.StringPtr("kept")}))
	require.Error(t, f.box.Flush(ctx))

	require.NoError(t, f.box.Enqueue("n1", domain.NodePatch{Parameters: map[string]any{"text": "new"}}))
	require.NoError(t, f.box.Flush(ctx))

	delivered := f.remote.Delivered("n1")
	require.Len(t, delivered, 1)
	assert.Equal(t, "kept", *delivered[0].Label, "earlier failed edit is carried along")
	assert.Equal(t, "new", delivered[0].Parameters["text"])

	pending, err := f.box.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.False(t, f.unsynced(t, "n1"))
}

func TestOutbox_Discard(t *testing.T) {
	f := newFixture(t, outbox.Config{Debounce: time.Hour})
	ctx := context.Background()

	f.remote.SetFailing(errUnavailable)
	require.NoError(t, f.box.Enqueue("n1", domain.NodePatch{Label: domain.StringPtr("a")}))
	require.Error(t, f.box.Flush(ctx))
	require.NoError(t, f.box.Enqueue("n1", domain.NodePatch{Label: domain.StringPtr("b")}))

	require.NoError(t, f.box.Discard(ctx, "n1"))
	assert.Empty(t, f.box.Debouncing())
	pending, err := f.box.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	f.remote.SetFailing(nil)
	require.NoError(t, f.box.Flush(ctx))
	assert.Len(t, f.remote.Updates(), 1, "only the original failed attempt reached the service")
}

func TestOutbox_DeletedNodeIsNotSynced(t *testing.T) {
	f := newFixture(t, outbox.Config{Debounce: time.Hour})
	ctx := context.Background()
	f.remote.SetFailing(errUnavailable)

	// n1 has a stored failure, n2 an edit still debouncing.
	require.NoError(t, f.box.Enqueue("n1", domain.NodePatch{Label: domain.StringPtr("a")}))
	require.Error(t, f.box.Flush(ctx))
	require.Len(t, f.remote.Updates(), 1)
	require.NoError(t, f.box.Enqueue("n2", domain.NodePatch{Label: domain.StringPtr("b")}))

	// Both nodes leave the board without the outbox being told.
	_, _, err := f.graph.RemoveNode("n1")
	require.NoError(t, err)
	_, _, err = f.graph.RemoveNode("n2")
	require.NoError(t, err)

	require.NoError(t, f.box.Flush(ctx))
	f.clock.Advance(time.Hour)
	n, err := f.box.Retry(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Len(t, f.remote.Updates(), 1, "no send for a deleted node")
	pending, err := f.box.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutbox_CloseFlushes(t *testing.T) {
	f := newFixture(t, outbox.Config{Debounce: time.Hour})
	ctx := context.Background()

	require.NoError(t, f.box.Enqueue("n1", domain.NodePatch{Label: domain.StringPtr("last words")}))
	require.NoError(t, f.box.Close(ctx))

	require.Len(t, f.remote.Delivered("n1"), 1)
	assert.ErrorIs(t, f.box.Enqueue("n1", domain.NodePatch{Label: domain.StringPtr("too late")}), outbox.ErrClosed)
	assert.NoError(t, f.box.Close(ctx), "Close is idempotent")
}

func TestOutbox_BackgroundRetry(t *testing.T) {
	remote := memory.NewNodeSync()
	store := memory.NewStore()
	box := outbox.New(remote, store, outbox.WithConfig(outbox.Config{
		Debounce:      time.Millisecond,
		BaseBackoff:   5 * time.Millisecond,
		RetryInterval: 5 * time.Millisecond,
	}))
	box.Start()
	defer box.Close(context.Background())

	remote.FailNext(1, errUnavailable)
	require.NoError(t, box.Enqueue("n1", domain.NodePatch{Label: domain.StringPtr("eventually")}))

	require.Eventually(t, func() bool {
		pending, err := box.Pending(context.Background())
		return err == nil && len(pending) == 0 && len(remote.Delivered("n1")) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, remote.Updates(), 2)
}

func TestOutbox_DistributedLock(t *testing.T) {
	locker := memory.NewLocker()
	f := newFixture(t, outbox.Config{Debounce: time.Hour}, outbox.WithLocker(locker))
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "sync:n1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, f.box.Enqueue("n1", domain.NodePatch{Label: domain.StringPtr("x")}))
	shortCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	err = f.box.Flush(shortCtx)
	require.Error(t, err, "another replica holds the node")
	assert.Empty(t, f.remote.Updates())

	require.NoError(t, unlock(ctx))
	require.NoError(t, f.box.Enqueue("n1", domain.NodePatch{Label: domain.StringPtr("y")}))
	require.NoError(t, f.box.Flush(ctx))
	assert.Len(t, f.remote.Delivered("n1"), 1)
	assert.False(t, locker.Held("sync:n1"))
}
