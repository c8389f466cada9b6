package domain

import (
	"context"
	"time"
)

// ExecutionEvent describes a step of a node execution.
type ExecutionEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	NodeID    string        `json:"nodeId"`
	NodeType  string        `json:"nodeType"`
	JobID     string        `json:"jobId,omitempty"`
	Progress  *int          `json:"progress,omitempty"`
	Stage     string        `json:"stage,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"` // set on terminal events
}

// LifecycleHooks defines callbacks for execution observability.
type LifecycleHooks struct {
	OnExecutionStart    func(context.Context, *ExecutionEvent)
	OnExecutionProgress func(context.Context, *ExecutionEvent)
	OnExecutionComplete func(context.Context, *ExecutionEvent)
	OnExecutionFail     func(context.Context, *ExecutionEvent)
	OnExecutionCancel   func(context.Context, *ExecutionEvent)
	OnPollError         func(context.Context, *ExecutionEvent)
}

// ChainHooks fans every callback out to each non-nil hook in order.
func ChainHooks(hooks ...LifecycleHooks) LifecycleHooks {
	pick := func(get func(LifecycleHooks) func(context.Context, *ExecutionEvent)) func(context.Context, *ExecutionEvent) {
		var fns []func(context.Context, *ExecutionEvent)
		for _, h := range hooks {
			if fn := get(h); fn != nil {
				fns = append(fns, fn)
			}
		}
		if len(fns) == 0 {
			return nil
		}
		return func(ctx context.Context, ev *ExecutionEvent) {
			for _, fn := range fns {
				fn(ctx, ev)
			}
		}
	}
	return LifecycleHooks{
		OnExecutionStart:    pick(func(h LifecycleHooks) func(context.Context, *ExecutionEvent) { return h.OnExecutionStart }),
		OnExecutionProgress: pick(func(h LifecycleHooks) func(context.Context, *ExecutionEvent) { return h.OnExecutionProgress }),
		OnExecutionComplete: pick(func(h LifecycleHooks) func(context.Context, *ExecutionEvent) { return h.OnExecutionComplete }),
		OnExecutionFail:     pick(func(h LifecycleHooks) func(context.Context, *ExecutionEvent) { return h.OnExecutionFail }),
		OnExecutionCancel:   pick(func(h LifecycleHooks) func(context.Context, *ExecutionEvent) { return h.OnExecutionCancel }),
		OnPollError:         pick(func(h LifecycleHooks) func(context.Context, *ExecutionEvent) { return h.OnPollError }),
	}
}

// ChangeKind classifies a graph mutation.
type ChangeKind string

const (
	ChangeNodeAdded   ChangeKind = "node.added"
	ChangeNodeUpdated ChangeKind = "node.updated"
	ChangeNodeRemoved ChangeKind = "node.removed"
	ChangeEdgeAdded   ChangeKind = "edge.added"
	ChangeEdgeRemoved ChangeKind = "edge.removed"
)

// GraphChange is emitted by the graph model after every mutation.
// Before is nil for additions; After is nil for removals.
type GraphChange struct {
	Kind     ChangeKind
	Revision uint64
	NodeID   string
	EdgeID   string
	Before   *Node
	After    *Node
	Edge     *Edge
}

// NotificationKind classifies a session notification.
type NotificationKind string

const (
	NotifyNodeAdded   NotificationKind = "node.added"
	NotifyNodeUpdated NotificationKind = "node.updated"
	NotifyNodeRemoved NotificationKind = "node.removed"
	NotifyEdgeAdded   NotificationKind = "edge.added"
	NotifyEdgeRemoved NotificationKind = "edge.removed"
	NotifyValidation  NotificationKind = "validation"
)

// Notification is what the session pushes to subscribers.
type Notification struct {
	Kind       NotificationKind       `json:"kind"`
	Revision   uint64                 `json:"revision"`
	Timestamp  time.Time              `json:"timestamp"`
	NodeID     string                 `json:"nodeId,omitempty"`
	EdgeID     string                 `json:"edgeId,omitempty"`
	Node       *Node                  `json:"node,omitempty"`
	Diff       *NodeDiff              `json:"diff,omitempty"`
	Edge       *Edge                  `json:"edge,omitempty"`
	Validation *GraphValidationResult `json:"validation,omitempty"`
}
