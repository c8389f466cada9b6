package canvas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bert-systems/canvas/internal/logging"
	"github.com/bert-systems/canvas/pkg/adapters/memory"
	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/bert-systems/canvas/pkg/execution"
	"github.com/bert-systems/canvas/pkg/graph"
	"github.com/bert-systems/canvas/pkg/nodetype"
	"github.com/bert-systems/canvas/pkg/outbox"
	"github.com/bert-systems/canvas/pkg/ports"
	"github.com/bert-systems/canvas/pkg/validation"
)

// ErrClosed is returned by mutating calls after Close.
var ErrClosed = errors.New("session is closed")

// Session is the entry point of the canvas engine. It owns one board and
// aggregates the graph model, the validation engine, the execution controller
// and the sync outbox behind the calls a presentation layer makes.
type Session struct {
	graph      *graph.Graph
	registry   *nodetype.Registry
	controller *execution.Controller
	outbox     *outbox.Outbox
	hub        *hub
	logger     *slog.Logger
	newID      func() string

	jobs      ports.JobService
	remote    ports.NodeSync
	store     ports.OutboxStore
	locker    ports.DistributedLocker
	execCfg   execution.Config
	syncCfg   outbox.Config
	hooks     domain.LifecycleHooks
	syncHooks outbox.Hooks

	mu         sync.Mutex
	validation domain.GraphValidationResult
	validRev   uint64
	closed     bool
}

// Option defines a functional option for configuring the Session.
type Option func(*Session)

// WithRegistry replaces the built-in node templates.
func WithRegistry(r *nodetype.Registry) Option {
	return func(s *Session) {
		s.registry = r
	}
}

// WithNodeSync enables remote persistence of node edits through the outbox.
func WithNodeSync(remote ports.NodeSync) Option {
	return func(s *Session) {
		s.remote = remote
	}
}

// WithOutboxStore sets where failed edits wait for a retry.
// Without it, an in-memory store is used.
func WithOutboxStore(store ports.OutboxStore) Option {
	return func(s *Session) {
		s.store = store
	}
}

// WithLocker coordinates executions and sync sends across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(s *Session) {
		s.locker = locker
	}
}

// WithExecutionConfig overrides polling and timeout settings.
func WithExecutionConfig(cfg execution.Config) Option {
	return func(s *Session) {
		s.execCfg = cfg
	}
}

// WithSyncConfig overrides debounce and retry settings.
func WithSyncConfig(cfg outbox.Config) Option {
	return func(s *Session) {
		s.syncCfg = cfg
	}
}

// WithLifecycleHooks registers execution observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Session) {
		s.hooks = domain.ChainHooks(s.hooks, hooks)
	}
}

// WithSyncHooks registers remote sync outcome callbacks.
func WithSyncHooks(hooks outbox.Hooks) Option {
	return func(s *Session) {
		s.syncHooks = hooks
	}
}

// WithLogger sets a custom structured logger for the session.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithIDGenerator replaces the uuid generator used for new node and edge ids.
func WithIDGenerator(fn func() string) Option {
	return func(s *Session) {
		s.newID = fn
	}
}

// New creates a session bound to a job service.
func New(jobs ports.JobService, opts ...Option) (*Session, error) {
	if jobs == nil {
		return nil, fmt.Errorf("job service is required")
	}
	s := &Session{
		jobs:    jobs,
		logger:  logging.NewNop(),
		newID:   uuid.NewString,
		execCfg: execution.DefaultConfig(),
		syncCfg: outbox.DefaultConfig(),
		hub:     newHub(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = nodetype.Default()
	}
	s.hub.logger = s.logger.With("component", "notify")

	s.graph = graph.New(
		graph.WithLogger(s.logger.With("component", "graph")),
		graph.WithListener(s.onChange),
	)

	execOpts := []execution.Option{
		execution.WithConfig(s.execCfg),
		execution.WithHooks(s.hooks),
		execution.WithLogger(s.logger.With("component", "execution")),
	}
	if s.locker != nil {
		execOpts = append(execOpts, execution.WithLocker(s.locker))
	}
	s.controller = execution.New(s.graph, jobs, execOpts...)

	if s.remote != nil {
		if s.store == nil {
			s.store = memory.NewStore()
		}
		syncOpts := []outbox.Option{
			outbox.WithConfig(s.syncCfg),
			outbox.WithMarker(s.graph),
			outbox.WithHooks(s.syncHooks),
			outbox.WithLogger(s.logger.With("component", "outbox")),
		}
		if s.locker != nil {
			syncOpts = append(syncOpts, outbox.WithLocker(s.locker))
		}
		s.outbox = outbox.New(s.remote, s.store, syncOpts...)
		s.outbox.Start()
	}

	s.validation = domain.NewValidationResult(nil)
	return s, nil
}

// Graph returns a snapshot of the board.
func (s *Session) Graph() domain.GraphSnapshot {
	return s.graph.Snapshot()
}

// Node returns a copy of a node.
func (s *Session) Node(id string) (domain.Node, bool) {
	return s.graph.GetNode(id)
}

// NodeTypes lists the templates nodes can be created from.
func (s *Session) NodeTypes() []nodetype.Template {
	return s.registry.List()
}

// Registry exposes the node templates of the session.
func (s *Session) Registry() *nodetype.Registry {
	return s.registry
}

// Validate runs the validation engine on the current board.
func (s *Session) Validate() domain.GraphValidationResult {
	return s.revalidate()
}

// CreateNode instantiates a template and adds the node to the board.
// An empty spec id is replaced by a generated one once the spec is accepted.
func (s *Session) CreateNode(ctx context.Context, spec nodetype.Spec) (domain.Node, error) {
	if err := s.checkOpen(); err != nil {
		return domain.Node{}, err
	}
	n, err := s.registry.Build(spec)
	if err != nil {
		return domain.Node{}, err
	}
	if n.ID == "" {
		n.ID = s.newID()
	}
	if err := s.graph.AddNode(n); err != nil {
		return domain.Node{}, err
	}
	s.logger.DebugContext(ctx, "node created", "node_id", n.ID, "node_type", n.Type)
	created, _ := s.graph.GetNode(n.ID)
	return created, nil
}

// MutateNode applies a user edit locally and schedules its remote persistence.
// Parameters are validated against the node template first. A locked node
// only accepts lock and expand changes.
func (s *Session) MutateNode(ctx context.Context, id string, patch domain.NodePatch) (domain.Node, error) {
	if err := s.checkOpen(); err != nil {
		return domain.Node{}, err
	}
	n, ok := s.graph.GetNode(id)
	if !ok {
		return domain.Node{}, fmt.Errorf("%w: %q", domain.ErrNodeNotFound, id)
	}
	if n.IsLocked && !patch.OnlyUIState() {
		return domain.Node{}, fmt.Errorf("%w: %q", domain.ErrNodeLocked, id)
	}
	if patch.IsEmpty() {
		return n, nil
	}

	local := patch.Clone()
	remote := patch.Clone()
	if patch.Parameters != nil {
		full, err := s.registry.PatchParameters(n, patch.Parameters)
		if err != nil {
			return domain.Node{}, err
		}
		local.Parameters = full
		remote.Parameters = make(map[string]any, len(patch.Parameters))
		for k := range patch.Parameters {
			remote.Parameters[k] = full[k]
		}
	}

	updated, err := s.graph.UpdateNode(id, local)
	if err != nil {
		return domain.Node{}, err
	}
	s.enqueue(ctx, id, remote)
	return updated, nil
}

// Connect adds an edge. An empty edge id is replaced by a generated one.
func (s *Session) Connect(ctx context.Context, e domain.Edge) (domain.Edge, error) {
	if err := s.checkOpen(); err != nil {
		return domain.Edge{}, err
	}
	if e.ID == "" {
		e.ID = s.newID()
	}
	if err := s.graph.AddEdge(e); err != nil {
		return domain.Edge{}, err
	}
	s.logger.DebugContext(ctx, "edge added", "edge_id", e.ID)
	return e, nil
}

// Disconnect removes an edge.
func (s *Session) Disconnect(ctx context.Context, edgeID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.graph.RemoveEdge(edgeID)
	return err
}

// DeleteNode removes a node with its edges. Its execution, if any, is
// cancelled and its queued edits are dropped.
func (s *Session) DeleteNode(ctx context.Context, id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, _, err := s.graph.RemoveNode(id)
	return err
}

// Execute starts the execution of one node and returns the remote job id.
func (s *Session) Execute(ctx context.Context, id string) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	return s.controller.Start(ctx, id)
}

// ExecuteAll starts every unlocked, idle or finished node in dependency
// order. It refuses to start anything while the board has validation errors.
// The result maps node ids to job ids.
func (s *Session) ExecuteAll(ctx context.Context) (map[string]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if res := s.revalidate(); !res.Valid {
		return nil, &domain.InvalidGraphError{Result: res}
	}

	snap := s.graph.Snapshot()
	started := make(map[string]string)
	var errs []error
	for _, id := range graph.TopologicalOrder(snap) {
		n, ok := snap.Node(id)
		if !ok || n.IsLocked || n.Status == domain.StatusRunning || s.controller.IsActive(id) {
			continue
		}
		jobID, err := s.controller.Start(ctx, id)
		switch {
		case err == nil:
			started[id] = jobID
		case errors.Is(err, domain.ErrAlreadyRunning), errors.Is(err, domain.ErrNodeLocked), errors.Is(err, domain.ErrNodeNotFound):
		default:
			errs = append(errs, err)
		}
	}
	s.logger.InfoContext(ctx, "bulk execution started", "started", len(started), "failed", len(errs))
	return started, errors.Join(errs...)
}

// Cancel stops the execution of a node and returns it to idle.
func (s *Session) Cancel(ctx context.Context, id string) error {
	return s.controller.Cancel(ctx, id)
}

// Active returns the ids of nodes with a live execution.
func (s *Session) Active() []string {
	return s.controller.Active()
}

// Done is closed when the current execution of a node ends.
func (s *Session) Done(id string) <-chan struct{} {
	return s.controller.Done(id)
}

// Subscribe returns a channel of board notifications and a function that
// ends the subscription. Slow subscribers miss notifications.
func (s *Session) Subscribe() (<-chan domain.Notification, func()) {
	return s.hub.subscribe()
}

// PendingSync lists edits whose remote persistence has not succeeded yet.
func (s *Session) PendingSync(ctx context.Context) ([]domain.OutboxEntry, error) {
	if s.outbox == nil {
		return nil, nil
	}
	return s.outbox.Pending(ctx)
}

// FlushSync sends debounced edits immediately.
func (s *Session) FlushSync(ctx context.Context) error {
	if s.outbox == nil {
		return nil
	}
	return s.outbox.Flush(ctx)
}

// RetrySync gives a dead-lettered node edit a fresh retry budget.
func (s *Session) RetrySync(ctx context.Context, id string) error {
	if s.outbox == nil {
		return fmt.Errorf("%w: %q", domain.ErrOutboxEntryNotFound, id)
	}
	return s.outbox.Requeue(ctx, id)
}

// Close cancels every execution, flushes pending edits and ends all subscriptions.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	if err := s.controller.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown executions: %w", err))
	}
	if s.outbox != nil {
		if err := s.outbox.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close outbox: %w", err))
		}
	}
	s.hub.close()
	return errors.Join(errs...)
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Session) enqueue(ctx context.Context, id string, patch domain.NodePatch) {
	if s.outbox == nil || patch.IsEmpty() {
		return
	}
	if err := s.outbox.Enqueue(id, patch); err != nil {
		s.logger.WarnContext(ctx, "edit not queued for sync", "node_id", id, "err", err)
	}
}

// onChange routes graph changes to the controller, the outbox and subscribers.
// It runs on the goroutine that mutated the graph.
func (s *Session) onChange(ch domain.GraphChange) {
	n := domain.Notification{
		Revision:  ch.Revision,
		Timestamp: time.Now(),
		NodeID:    ch.NodeID,
		EdgeID:    ch.EdgeID,
	}

	switch ch.Kind {
	case domain.ChangeNodeAdded:
		n.Kind = domain.NotifyNodeAdded
		n.Node = ch.After
	case domain.ChangeNodeUpdated:
		diff := domain.Diff(ch.Before, ch.After)
		if diff == nil {
			return
		}
		n.Kind = domain.NotifyNodeUpdated
		n.Diff = diff
		if completedWithOutput(ch.Before, ch.After) {
			s.enqueue(context.Background(), ch.NodeID, domain.NodePatch{CachedOutput: ch.After.CachedOutput})
		}
	case domain.ChangeNodeRemoved:
		n.Kind = domain.NotifyNodeRemoved
		s.onRemoved(ch.NodeID)
	case domain.ChangeEdgeAdded:
		n.Kind = domain.NotifyEdgeAdded
		n.Edge = ch.Edge
	case domain.ChangeEdgeRemoved:
		n.Kind = domain.NotifyEdgeRemoved
		n.Edge = ch.Edge
	default:
		return
	}

	s.hub.publish(n)
	s.revalidate()
}

func completedWithOutput(before, after *domain.Node) bool {
	return before != nil && after != nil &&
		before.Status != domain.StatusCompleted &&
		after.Status == domain.StatusCompleted &&
		after.CachedOutput != nil
}

func (s *Session) onRemoved(id string) {
	ctx := context.Background()
	if err := s.controller.Cancel(ctx, id); err != nil && !errors.Is(err, domain.ErrNotRunning) {
		s.logger.Warn("cancel on delete failed", "node_id", id, "err", err)
	}
	if s.outbox != nil {
		if err := s.outbox.Discard(ctx, id); err != nil {
			s.logger.Warn("discard queued edits failed", "node_id", id, "err", err)
		}
	}
}

// revalidate recomputes the report and publishes it when it changed.
// Reports older than the last published one are dropped.
func (s *Session) revalidate() domain.GraphValidationResult {
	snap := s.graph.Snapshot()
	res := validation.Validate(snap, validation.WithCatalog(s.registry))

	s.mu.Lock()
	if snap.Revision < s.validRev {
		s.mu.Unlock()
		return res
	}
	changed := res.Valid != s.validation.Valid || !slices.Equal(res.Issues, s.validation.Issues)
	s.validation = res
	s.validRev = snap.Revision
	s.mu.Unlock()

	if changed {
		s.hub.publish(domain.Notification{
			Kind:       domain.NotifyValidation,
			Revision:   snap.Revision,
			Timestamp:  time.Now(),
			Validation: &res,
		})
	}
	return res
}
