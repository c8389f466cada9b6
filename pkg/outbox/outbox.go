package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/bert-systems/canvas/internal/logging"
	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/bert-systems/canvas/pkg/ports"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("outbox is closed")

// Marker flags nodes whose remote state lags behind the local one. Edits
// for nodes it no longer holds are dropped.
type Marker interface {
	GetNode(nodeID string) (domain.Node, bool)
	SetUnsynced(nodeID string, unsynced bool) error
}

// Hooks observe sync outcomes. All fields are optional.
type Hooks struct {
	OnSynced     func(nodeID string, attempts int)
	OnFailed     func(nodeID string, attempts int, err error)
	OnDeadLetter func(nodeID string, attempts int, err error)
}

// Outbox pushes local node edits to the remote node service.
//
// Edits are coalesced per node for a debounce window, then sent. A failed
// send is persisted in the OutboxStore, the node is flagged unsynced, and a
// background loop retries with exponential backoff until the send succeeds or
// the retry budget is exhausted (dead letter). Sends for one node never overlap.
type Outbox struct {
	remote ports.NodeSync
	store  ports.OutboxStore
	marker Marker
	locker ports.DistributedLocker
	cfg    Config
	hooks  Hooks
	logger *slog.Logger
	now    func() time.Time

	locks *keyLocks

	mu      sync.Mutex
	pending map[string]*pendingPatch
	closed  bool
	stop    chan struct{}
	running bool
	wg      sync.WaitGroup
}

type pendingPatch struct {
	patch domain.NodePatch
	timer *time.Timer
}

// Option configures the Outbox.
type Option func(*Outbox)

// WithConfig overrides timing and retry settings. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(o *Outbox) {
		o.cfg = cfg.withDefaults()
	}
}

// WithMarker sets where the unsynced flag is written.
func WithMarker(m Marker) Option {
	return func(o *Outbox) {
		o.marker = m
	}
}

// WithLocker serializes sends per node across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(o *Outbox) {
		o.locker = locker
	}
}

// WithHooks registers outcome callbacks.
func WithHooks(h Hooks) Option {
	return func(o *Outbox) {
		o.hooks = h
	}
}

// WithLogger configures a logger for the Outbox.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Outbox) {
		o.logger = logger
	}
}

// WithClock replaces time.Now for backoff computations.
func WithClock(now func() time.Time) Option {
	return func(o *Outbox) {
		o.now = now
	}
}

// New creates an Outbox. Call Start to run the retry loop.
func New(remote ports.NodeSync, store ports.OutboxStore, opts ...Option) *Outbox {
	o := &Outbox{
		remote:  remote,
		store:   store,
		cfg:     DefaultConfig(),
		logger:  logging.NewNop(),
		now:     time.Now,
		locks:   newKeyLocks(),
		pending: make(map[string]*pendingPatch),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Enqueue schedules a patch for a node. Patches queued within the debounce
// window are merged and sent once.
func (o *Outbox) Enqueue(nodeID string, patch domain.NodePatch) error {
	if patch.IsEmpty() {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}

	p, ok := o.pending[nodeID]
	if !ok {
		p = &pendingPatch{}
		o.pending[nodeID] = p
	}
	p.patch = p.patch.Merge(patch.Clone())
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(o.cfg.Debounce, func() {
		o.flushTimer(nodeID, p)
	})
	return nil
}

func (o *Outbox) flushTimer(nodeID string, p *pendingPatch) {
	o.mu.Lock()
	if o.pending[nodeID] != p {
		o.mu.Unlock()
		return
	}
	delete(o.pending, nodeID)
	o.wg.Add(1)
	o.mu.Unlock()
	defer o.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.CallTimeout)
	defer cancel()
	if err := o.send(ctx, nodeID, p.patch); err != nil {
		o.logger.Debug("debounced sync deferred", "node_id", nodeID, "err", err)
	}
}

// restore puts a patch that could not even be attempted back in the debounce queue.
func (o *Outbox) restore(nodeID string, patch domain.NodePatch) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		o.logger.Warn("dropping edit that could not be sent before close", "node_id", nodeID)
		return
	}
	p, ok := o.pending[nodeID]
	if !ok {
		p = &pendingPatch{}
		o.pending[nodeID] = p
	}
	p.patch = patch.Merge(p.patch)
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(max(o.cfg.Debounce, o.cfg.RetryInterval), func() {
		o.flushTimer(nodeID, p)
	})
}

// Flush sends every debounced patch immediately and returns the joined
// errors of the sends that failed. Failed sends are kept for retry.
func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	batch := make(map[string]domain.NodePatch, len(o.pending))
	for id, p := range o.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		batch[id] = p.patch
	}
	clear(o.pending)
	o.mu.Unlock()

	var errs []error
	for _, id := range slices.Sorted(maps.Keys(batch)) {
		if err := o.send(ctx, id, batch[id]); err != nil {
			errs = append(errs, fmt.Errorf("sync node %q: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// send delivers a patch, folding it into any entry already waiting for the node.
func (o *Outbox) send(ctx context.Context, nodeID string, patch domain.NodePatch) error {
	err := o.withLock(ctx, nodeID, func(ctx context.Context) error {
		entry, err := o.store.Load(ctx, nodeID)
		switch {
		case errors.Is(err, domain.ErrOutboxEntryNotFound):
			entry = domain.OutboxEntry{NodeID: nodeID}
		case err != nil:
			return fmt.Errorf("load outbox entry: %w", err)
		}
		if entry.DeadLetter {
			// A fresh edit revives a dead entry with a new retry budget.
			entry.DeadLetter = false
			entry.Attempts = 0
		}
		entry.Patch = entry.Patch.Merge(patch)
		return o.attempt(ctx, entry)
	})
	switch {
	case errors.Is(err, errLockUnavailable):
		o.restore(nodeID, patch)
	case errors.Is(err, errSkipped):
		return nil
	}
	return err
}

// attempt calls the remote service once for an entry. Caller holds the node lock.
func (o *Outbox) attempt(ctx context.Context, entry domain.OutboxEntry) error {
	if o.marker != nil {
		if _, ok := o.marker.GetNode(entry.NodeID); !ok {
			if err := o.store.Delete(ctx, entry.NodeID); err != nil && !errors.Is(err, domain.ErrOutboxEntryNotFound) {
				return fmt.Errorf("clear outbox entry: %w", err)
			}
			o.logger.Debug("dropping edit for deleted node", "node_id", entry.NodeID)
			return errSkipped
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	err := o.remote.UpdateNode(callCtx, entry.NodeID, entry.Patch)
	cancel()

	if err == nil {
		if entry.Attempts > 0 || entry.LastError != "" {
			if derr := o.store.Delete(ctx, entry.NodeID); derr != nil {
				return fmt.Errorf("clear outbox entry: %w", derr)
			}
			o.logger.Info("node synced after retry", "node_id", entry.NodeID, "attempts", entry.Attempts+1)
		}
		o.mark(entry.NodeID, false)
		if o.hooks.OnSynced != nil {
			o.hooks.OnSynced(entry.NodeID, entry.Attempts+1)
		}
		return nil
	}

	now := o.now()
	entry.Attempts++
	entry.LastError = err.Error()
	entry.UpdatedAt = now
	entry.NextAttempt = now.Add(o.cfg.backoff(entry.Attempts))
	if entry.Attempts >= o.cfg.MaxAttempts {
		entry.DeadLetter = true
	}
	if serr := o.store.Save(ctx, entry); serr != nil {
		o.logger.Error("failed to persist outbox entry", "node_id", entry.NodeID, "err", serr)
		return errors.Join(err, serr)
	}
	o.mark(entry.NodeID, true)

	if entry.DeadLetter {
		o.logger.Error("node sync abandoned", "node_id", entry.NodeID, "attempts", entry.Attempts, "err", err)
		if o.hooks.OnDeadLetter != nil {
			o.hooks.OnDeadLetter(entry.NodeID, entry.Attempts, err)
		}
	} else {
		o.logger.Warn("node sync failed", "node_id", entry.NodeID, "attempts", entry.Attempts, "next_attempt", entry.NextAttempt, "err", err)
	}
	if o.hooks.OnFailed != nil {
		o.hooks.OnFailed(entry.NodeID, entry.Attempts, err)
	}
	return err
}

func (o *Outbox) mark(nodeID string, unsynced bool) {
	if o.marker == nil {
		return
	}
	if err := o.marker.SetUnsynced(nodeID, unsynced); err != nil && !errors.Is(err, domain.ErrNodeNotFound) {
		o.logger.Warn("failed to flag node", "node_id", nodeID, "unsynced", unsynced, "err", err)
	}
}

// Retry resends the entries that are due and reports how many succeeded.
func (o *Outbox) Retry(ctx context.Context) (int, error) {
	due, err := o.store.Due(ctx, o.now(), o.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list due entries: %w", err)
	}
	synced := 0
	for _, candidate := range due {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		err := o.withLock(ctx, candidate.NodeID, func(ctx context.Context) error {
			// Re-read under the lock: another replica or a fresh edit may have handled it.
			entry, err := o.store.Load(ctx, candidate.NodeID)
			if err != nil {
				return err
			}
			if entry.DeadLetter || entry.NextAttempt.After(o.now()) {
				return errSkipped
			}
			return o.attempt(ctx, entry)
		})
		switch {
		case err == nil:
			synced++
		case errors.Is(err, domain.ErrOutboxEntryNotFound), errors.Is(err, errSkipped):
		default:
			o.logger.Debug("retry failed", "node_id", candidate.NodeID, "err", err)
		}
	}
	return synced, nil
}

var errSkipped = errors.New("skipped")

// Requeue gives a dead-lettered entry a fresh retry budget, due immediately.
func (o *Outbox) Requeue(ctx context.Context, nodeID string) error {
	return o.withLock(ctx, nodeID, func(ctx context.Context) error {
		entry, err := o.store.Load(ctx, nodeID)
		if err != nil {
			return err
		}
		entry.DeadLetter = false
		entry.Attempts = 0
		entry.NextAttempt = o.now()
		entry.UpdatedAt = o.now()
		return o.store.Save(ctx, entry)
	})
}

// Discard drops everything queued for a node, typically because it was deleted.
func (o *Outbox) Discard(ctx context.Context, nodeID string) error {
	o.mu.Lock()
	if p, ok := o.pending[nodeID]; ok {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(o.pending, nodeID)
	}
	o.mu.Unlock()

	return o.withLock(ctx, nodeID, func(ctx context.Context) error {
		return o.store.Delete(ctx, nodeID)
	})
}

// Pending returns the persisted entries awaiting a retry, dead letters included.
func (o *Outbox) Pending(ctx context.Context) ([]domain.OutboxEntry, error) {
	return o.store.List(ctx)
}

// Debouncing returns the ids of nodes with an edit still inside the debounce window.
func (o *Outbox) Debouncing() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Sorted(maps.Keys(o.pending))
}

// Start runs the retry loop in the background until Close.
func (o *Outbox) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running || o.closed {
		return
	}
	o.running = true
	o.wg.Add(1)
	go o.loop()
}

func (o *Outbox) loop() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), o.cfg.RetryInterval+o.cfg.CallTimeout)
			if n, err := o.Retry(ctx); err != nil {
				o.logger.Warn("outbox retry pass failed", "err", err)
			} else if n > 0 {
				o.logger.Debug("outbox retry pass", "synced", n)
			}
			cancel()
		}
	}
}

// Close flushes debounced edits, stops the retry loop and waits for in-flight
// sends. Entries that still fail stay in the store.
func (o *Outbox) Close(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	close(o.stop)
	o.mu.Unlock()

	flushErr := o.Flush(ctx)

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if flushErr != nil {
		o.logger.Warn("unsynced edits left in outbox at close", "err", flushErr)
	}
	return nil
}
