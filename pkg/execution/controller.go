package execution

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

// ErrClosed is returned by Start after Shutdown.
var ErrClosed = errors.New("execution controller is shut down")

// Graph is the subset of the graph model the controller reads and writes.
type Graph interface {
	GetNode(id string) (domain.Node, bool)
	UpdateNodeStatus(id string, patch domain.StatusPatch) (domain.Node, error)
	UpdateNodeStatusIf(id string, want domain.NodeStatus, patch domain.StatusPatch) (domain.Node, bool, error)
	ResolveInputs(id string) (map[string][]domain.AssetRef, error)
}

// Controller drives node executions: it starts remote jobs and polls them to a
// terminal state. There is at most one task per node id.
type Controller struct {
	graph  Graph
	jobs   ports.JobService
	cfg    Config
	locker ports.DistributedLocker
	hooks  domain.LifecycleHooks
	logger *slog.Logger

	mu     sync.Mutex
	tasks  map[string]*task
	seq    uint64
	closed bool
	wg     sync.WaitGroup
}

type task struct {
	id       uint64
	nodeID   string
	nodeType string
	jobID    string
	started  time.Time
	cancel   context.CancelFunc
	done     chan struct{}

	releaseOnce sync.Once
	unlock      ports.UnlockFunc
}

// Option configures the Controller.
type Option func(*Controller)

// WithConfig overrides the polling configuration. Zero fields keep their
// defaults; a negative Timeout or CallTimeout disables that bound.
func WithConfig(cfg Config) Option {
	return func(c *Controller) {
		c.cfg = cfg.withDefaults()
	}
}

// WithLocker enables a distributed claim per execution, so two replicas never
// run the same node concurrently.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(c *Controller) {
		c.locker = locker
	}
}

// WithHooks registers lifecycle callbacks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Controller) {
		c.hooks = hooks
	}
}

// WithLogger configures a logger for the Controller.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// New creates a Controller over a graph and a job service.
func New(g Graph, jobs ports.JobService, opts ...Option) *Controller {
	c := &Controller{
		graph:  g,
		jobs:   jobs,
		cfg:    DefaultConfig(),
		tasks:  make(map[string]*task),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Start begins an execution of a node and returns the remote job id.
// The node must exist, be unlocked and not already running.
func (c *Controller) Start(ctx context.Context, nodeID string) (string, error) {
	node, ok := c.graph.GetNode(nodeID)
	if !ok {
		return "", &domain.ExecutionError{NodeID: nodeID, Err: domain.ErrNodeNotFound}
	}
	if node.IsLocked {
		return "", &domain.ExecutionError{NodeID: nodeID, Err: domain.ErrNodeLocked}
	}
	if node.Status == domain.StatusRunning || c.IsActive(nodeID) {
		return "", &domain.ExecutionError{NodeID: nodeID, Err: domain.ErrAlreadyRunning}
	}

	var unlock ports.UnlockFunc
	if c.locker != nil {
		claimCtx, cancel := context.WithTimeout(ctx, c.cfg.ClaimTimeout)
		u, err := c.locker.Lock(claimCtx, "exec:"+nodeID, c.cfg.lockTTL())
		cancel()
		if err != nil {
			return "", &domain.ExecutionError{NodeID: nodeID, Err: domain.ErrAlreadyRunning, Cause: err}
		}
		unlock = u
	}

	t, err := c.register(node, unlock)
	if err != nil {
		if unlock != nil {
			c.releaseLock(nodeID, unlock)
		}
		return "", err
	}
	c.fire(ctx, c.hooks.OnExecutionStart, t, nil)
	c.logger.Debug("execution starting", "node_id", nodeID, "node_type", node.Type)

	// A node deleted meanwhile resolves to no inputs; the start is discarded below.
	inputs, _ := c.graph.ResolveInputs(nodeID)
	callCtx, cancel := c.callContext(ctx)
	handle, startErr := c.jobs.StartJob(callCtx, domain.JobRequest{
		NodeID:     nodeID,
		NodeType:   node.Type,
		Parameters: node.Parameters,
		Inputs:     inputs,
	})
	cancel()

	c.mu.Lock()
	current := c.tasks[nodeID] == t
	switch {
	case startErr != nil && current:
		delete(c.tasks, nodeID)
		c.applyLocked(nodeID, domain.StatusPatch{
			Status:        domain.StatusError,
			ClearProgress: true,
			Stage:         ptr(""),
			Error:         ptr(fmt.Sprintf("%v: %v", domain.ErrJobStartFailed, startErr)),
		})
		c.mu.Unlock()
		t.cancel()
		close(t.done)
		c.release(t)
		c.logger.Error("job start failed", "node_id", nodeID, "err", startErr)
		c.fire(ctx, c.hooks.OnExecutionFail, t, startErr)
		return "", &domain.ExecutionError{NodeID: nodeID, Err: domain.ErrJobStartFailed, Cause: startErr}

	case startErr != nil:
		c.mu.Unlock()
		close(t.done)
		return "", &domain.ExecutionError{NodeID: nodeID, Err: domain.ErrJobStartFailed, Cause: startErr}

	case !current:
		c.mu.Unlock()
		// Cancelled while the start call was in flight.
		close(t.done)
		c.release(t)
		c.abandon(handle.JobID, nodeID)
		return "", &domain.ExecutionError{NodeID: nodeID, JobID: handle.JobID, Err: domain.ErrCancelled}
	}

	t.jobID = handle.JobID
	ctxTask, cancelTask := context.WithCancel(context.Background())
	t.cancel = cancelTask
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Info("execution started", "node_id", nodeID, "job_id", handle.JobID)
	go c.poll(ctxTask, t)
	return handle.JobID, nil
}

// register claims the node for a new task and marks it running.
func (c *Controller) register(node domain.Node, unlock ports.UnlockFunc) (*task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, &domain.ExecutionError{NodeID: node.ID, Err: ErrClosed}
	}
	if _, busy := c.tasks[node.ID]; busy {
		return nil, &domain.ExecutionError{NodeID: node.ID, Err: domain.ErrAlreadyRunning}
	}
	// Re-read under the controller lock; the node may have changed since Start looked.
	fresh, ok := c.graph.GetNode(node.ID)
	if !ok {
		return nil, &domain.ExecutionError{NodeID: node.ID, Err: domain.ErrNodeNotFound}
	}
	if fresh.IsLocked {
		return nil, &domain.ExecutionError{NodeID: node.ID, Err: domain.ErrNodeLocked}
	}
	if fresh.Status == domain.StatusRunning {
		return nil, &domain.ExecutionError{NodeID: node.ID, Err: domain.ErrAlreadyRunning}
	}

	if _, err := c.graph.UpdateNodeStatus(node.ID, domain.StatusPatch{
		Status:   domain.StatusRunning,
		Progress: ptr(0),
		Stage:    ptr(""),
		Error:    ptr(""),
	}); err != nil {
		return nil, &domain.ExecutionError{NodeID: node.ID, Err: domain.ErrNodeNotFound, Cause: err}
	}

	c.seq++
	t := &task{
		id:       c.seq,
		nodeID:   node.ID,
		nodeType: node.Type,
		started:  time.Now(),
		cancel:   func() {},
		done:     make(chan struct{}),
		unlock:   unlock,
	}
	c.tasks[node.ID] = t
	return t, nil
}

// poll runs one task until a terminal state, cancellation or timeout.
// Only one status request is in flight at a time; the next one is scheduled
// after the previous response has been handled.
func (c *Controller) poll(ctx context.Context, t *task) {
	defer c.wg.Done()
	defer close(t.done)

	logger := c.logger.With("node_id", t.nodeID, "job_id", t.jobID)

	var deadline <-chan time.Time
	if c.cfg.Timeout > 0 {
		dt := time.NewTimer(time.Until(t.started.Add(c.cfg.Timeout)))
		defer dt.Stop()
		deadline = dt.C
	}
	timer := time.NewTimer(c.cfg.PollInterval)
	defer timer.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			msg := fmt.Sprintf("%v: no result after %s", domain.ErrTimeout, c.cfg.Timeout)
			if c.finish(t, failedPatch(msg)) {
				logger.Error("execution timed out", "timeout", c.cfg.Timeout)
				c.fire(ctx, c.hooks.OnExecutionFail, t, domain.ErrTimeout)
				c.abandon(t.jobID, t.nodeID)
			}
			return
		case <-timer.C:
		}

		callCtx, cancel := c.callContext(ctx)
		rep, err := c.jobs.GetJobStatus(callCtx, t.jobID)
		cancel()
		if ctx.Err() != nil {
			// Cancelled while the request was in flight; the response is stale.
			return
		}

		if err == nil && !validState(rep.Status) {
			err = fmt.Errorf("unknown job status %q", rep.Status)
		}
		if err != nil {
			failures++
			logger.Warn("status check failed", "attempt", failures, "max", c.cfg.MaxPollFailures, "err", err)
			c.fire(ctx, c.hooks.OnPollError, t, err)
			if failures >= c.cfg.MaxPollFailures {
				if c.finish(t, failedPatch(domain.ErrPollTransport.Error())) {
					logger.Error("giving up on job", "failures", failures)
					c.fire(ctx, c.hooks.OnExecutionFail, t, domain.ErrPollTransport)
				}
				return
			}
			timer.Reset(c.cfg.PollInterval)
			continue
		}
		failures = 0

		switch rep.Status {
		case domain.JobRunning:
			patch := domain.StatusPatch{Progress: rep.Progress}
			if rep.CurrentStageName != "" {
				patch.Stage = ptr(rep.CurrentStageName)
			}
			if !c.progress(t, patch) {
				return
			}
			c.fireReport(ctx, c.hooks.OnExecutionProgress, t, rep)

		case domain.JobCompleted:
			assets := rep.GeneratedAssets
			if assets == nil {
				assets = []domain.AssetRef{}
			}
			if c.finish(t, domain.StatusPatch{
				Status:        domain.StatusCompleted,
				ClearProgress: true,
				Stage:         ptr(""),
				Error:         ptr(""),
				CachedOutput:  assets,
			}) {
				logger.Info("execution completed", "assets", len(assets))
				c.fire(ctx, c.hooks.OnExecutionComplete, t, nil)
			}
			return

		case domain.JobFailed:
			msg := rep.ErrorMessage
			if msg == "" {
				msg = domain.ErrJobFailed.Error()
			}
			if c.finish(t, failedPatch(msg)) {
				logger.Warn("job failed", "reason", msg)
				c.fire(ctx, c.hooks.OnExecutionFail, t, errors.New(msg))
			}
			return
		}

		timer.Reset(c.cfg.PollInterval)
	}
}

func validState(s domain.JobState) bool {
	return s == domain.JobRunning || s == domain.JobCompleted || s == domain.JobFailed
}

func failedPatch(msg string) domain.StatusPatch {
	return domain.StatusPatch{
		Status:        domain.StatusError,
		ClearProgress: true,
		Stage:         ptr(""),
		Error:         ptr(msg),
	}
}

// progress applies a non-terminal update. It returns false when the task is stale
// and polling must stop.
func (c *Controller) progress(t *task, patch domain.StatusPatch) bool {
	c.mu.Lock()
	if c.tasks[t.nodeID] != t {
		c.mu.Unlock()
		return false
	}
	if c.applyLocked(t.nodeID, patch) {
		c.mu.Unlock()
		return true
	}
	// The node vanished or left the running state behind our back.
	delete(c.tasks, t.nodeID)
	c.mu.Unlock()

	c.release(t)
	c.fire(context.Background(), c.hooks.OnExecutionCancel, t, nil)
	return false
}

// finish applies a terminal update and retires the task. It returns false if
// the task was no longer current, in which case nothing is written.
func (c *Controller) finish(t *task, patch domain.StatusPatch) bool {
	c.mu.Lock()
	if c.tasks[t.nodeID] != t {
		c.mu.Unlock()
		return false
	}
	delete(c.tasks, t.nodeID)
	applied := c.applyLocked(t.nodeID, patch)
	c.mu.Unlock()

	c.release(t)
	if !applied {
		c.fire(context.Background(), c.hooks.OnExecutionCancel, t, nil)
	}
	return applied
}

// applyLocked writes a status patch only while the node is still running.
// Caller holds c.mu.
func (c *Controller) applyLocked(nodeID string, patch domain.StatusPatch) bool {
	_, applied, err := c.graph.UpdateNodeStatusIf(nodeID, domain.StatusRunning, patch)
	if err != nil {
		return false
	}
	return applied
}

// Cancel stops a node's execution, asks the job service to abandon the job and
// returns the node to idle. It returns ErrNotRunning if there is no task.
func (c *Controller) Cancel(ctx context.Context, nodeID string) error {
	c.mu.Lock()
	t, ok := c.tasks[nodeID]
	if !ok {
		c.mu.Unlock()
		return &domain.ExecutionError{NodeID: nodeID, Err: domain.ErrNotRunning}
	}
	delete(c.tasks, nodeID)
	t.cancel()
	c.applyLocked(nodeID, domain.StatusPatch{
		Status:        domain.StatusIdle,
		ClearProgress: true,
		Stage:         ptr(""),
	})
	jobID := t.jobID
	c.mu.Unlock()

	if jobID != "" {
		callCtx, cancel := c.callContext(context.WithoutCancel(ctx))
		if err := c.jobs.CancelJob(callCtx, jobID); err != nil {
			c.logger.Warn("remote cancel failed", "node_id", nodeID, "job_id", jobID, "err", err)
		}
		cancel()
	}
	c.release(t)
	c.logger.Info("execution cancelled", "node_id", nodeID, "job_id", jobID)
	c.fire(ctx, c.hooks.OnExecutionCancel, t, nil)
	return nil
}

// Shutdown cancels every task and waits for the poll loops to exit.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	ids := slices.Sorted(maps.Keys(c.tasks))
	c.mu.Unlock()

	for _, id := range ids {
		if err := c.Cancel(ctx, id); err != nil && !errors.Is(err, domain.ErrNotRunning) {
			c.logger.Warn("cancel on shutdown failed", "node_id", id, "err", err)
		}
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the ids of nodes with a live task, sorted.
func (c *Controller) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.tasks))
}

// IsActive reports whether a node has a live task.
func (c *Controller) IsActive(nodeID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tasks[nodeID]
	return ok
}

// JobID returns the remote job id of a node's live task.
func (c *Controller) JobID(nodeID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[nodeID]
	if !ok || t.jobID == "" {
		return "", false
	}
	return t.jobID, true
}

// Done returns a channel closed when the node's current task ends.
// If there is no task, the channel is already closed.
func (c *Controller) Done(nodeID string) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tasks[nodeID]; ok {
		return t.done
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}

// abandon cancels a remote job we no longer track.
func (c *Controller) abandon(jobID, nodeID string) {
	if jobID == "" {
		return
	}
	ctx, cancel := c.callContext(context.Background())
	defer cancel()
	if err := c.jobs.CancelJob(ctx, jobID); err != nil {
		c.logger.Warn("failed to abandon job", "node_id", nodeID, "job_id", jobID, "err", err)
	}
}

func (c *Controller) release(t *task) {
	t.releaseOnce.Do(func() {
		if t.unlock != nil {
			c.releaseLock(t.nodeID, t.unlock)
		}
	})
}

func (c *Controller) releaseLock(nodeID string, unlock ports.UnlockFunc) {
	if err := unlock(context.Background()); err != nil {
		c.logger.Warn("Failed to release distributed lock (will expire via TTL)",
			"node_id", nodeID,
			"err", err,
		)
	}
}

func (c *Controller) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.CallTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.CallTimeout)
	}
	return context.WithCancel(ctx)
}

func (c *Controller) fire(ctx context.Context, hook func(context.Context, *domain.ExecutionEvent), t *task, err error) {
	if hook == nil {
		return
	}
	ev := &domain.ExecutionEvent{
		Timestamp: time.Now(),
		NodeID:    t.nodeID,
		NodeType:  t.nodeType,
		JobID:     t.jobID,
		Duration:  time.Since(t.started),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	hook(context.WithoutCancel(ctx), ev)
}

func (c *Controller) fireReport(ctx context.Context, hook func(context.Context, *domain.ExecutionEvent), t *task, rep domain.JobStatusReport) {
	if hook == nil {
		return
	}
	hook(context.WithoutCancel(ctx), &domain.ExecutionEvent{
		Timestamp: time.Now(),
		NodeID:    t.nodeID,
		NodeType:  t.nodeType,
		JobID:     t.jobID,
		Progress:  rep.Progress,
		Stage:     rep.CurrentStageName,
	})
}

func ptr[T any](v T) *T { return &v }
