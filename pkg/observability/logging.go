package observability

import (
	"context"
	"log/slog"

	"github.com/bert-systems/canvas/pkg/domain"
)

// LoggingHooks writes one structured record per execution lifecycle event.
// Progress is logged at Debug to keep the Info stream readable.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	attrs := func(ev *domain.ExecutionEvent) []any {
		out := []any{"node_id", ev.NodeID, "node_type", ev.NodeType}
		if ev.JobID != "" {
			out = append(out, "job_id", ev.JobID)
		}
		return out
	}
	return domain.LifecycleHooks{
		OnExecutionStart: func(ctx context.Context, ev *domain.ExecutionEvent) {
			logger.InfoContext(ctx, "execution_start", attrs(ev)...)
		},
		OnExecutionProgress: func(ctx context.Context, ev *domain.ExecutionEvent) {
			args := attrs(ev)
			if ev.Progress != nil {
				args = append(args, "progress", *ev.Progress)
			}
			if ev.Stage != "" {
				args = append(args, "stage", ev.Stage)
			}
			logger.DebugContext(ctx, "execution_progress", args...)
		},
		OnExecutionComplete: func(ctx context.Context, ev *domain.ExecutionEvent) {
			logger.InfoContext(ctx, "execution_complete", append(attrs(ev), "duration", ev.Duration)...)
		},
		OnExecutionFail: func(ctx context.Context, ev *domain.ExecutionEvent) {
			logger.WarnContext(ctx, "execution_fail", append(attrs(ev), "duration", ev.Duration, "err", ev.Error)...)
		},
		OnExecutionCancel: func(ctx context.Context, ev *domain.ExecutionEvent) {
			logger.InfoContext(ctx, "execution_cancel", attrs(ev)...)
		},
		OnPollError: func(ctx context.Context, ev *domain.ExecutionEvent) {
			logger.DebugContext(ctx, "poll_error", append(attrs(ev), "err", ev.Error)...)
		},
	}
}
