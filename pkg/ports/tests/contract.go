package tests

import (
	"context"
	"testing"
	"time"

	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/bert-systems/canvas/pkg/ports"
)

// JobServiceContractTest is a reusable test suite that verifies if an adapter complies with ports.JobService.
// The service must eventually complete every job it accepts.
func JobServiceContractTest(t *testing.T, svc ports.JobService) {
	t.Helper()
	ctx := context.Background()

	req := domain.JobRequest{
		NodeID:     "contract-node",
		NodeType:   "storyGenesis",
		Parameters: map[string]any{"genre": "noir"},
	}

	// 1. StartJob returns a handle
	t.Run("StartJob", func(t *testing.T) {
		h, err := svc.StartJob(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error starting job: %v", err)
		}
		if h.JobID == "" {
			t.Fatal("expected a job id")
		}
	})

	// 2. GetJobStatus reaches a terminal state
	t.Run("GetJobStatus_Terminal", func(t *testing.T) {
		h, err := svc.StartJob(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error starting job: %v", err)
		}
		deadline := time.Now().Add(5 * time.Second)
		for {
			rep, err := svc.GetJobStatus(ctx, h.JobID)
			if err != nil {
				t.Fatalf("unexpected error polling job %s: %v", h.JobID, err)
			}
			switch rep.Status {
			case domain.JobCompleted, domain.JobFailed:
				return
			case domain.JobRunning:
			default:
				t.Fatalf("unexpected status %q", rep.Status)
			}
			if time.Now().After(deadline) {
				t.Fatal("job never reached a terminal state")
			}
			time.Sleep(10 * time.Millisecond)
		}
	})

	// 3. GetJobStatus (NotFound)
	t.Run("GetJobStatus_NotFound", func(t *testing.T) {
		if _, err := svc.GetJobStatus(ctx, "non-existent-job"); err == nil {
			t.Error("expected error for non-existent job, got nil")
		}
	})

	// 4. CancelJob
	t.Run("CancelJob", func(t *testing.T) {
		h, err := svc.StartJob(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error starting job: %v", err)
		}
		if err := svc.CancelJob(ctx, h.JobID); err != nil {
			t.Errorf("unexpected error cancelling job: %v", err)
		}
	})
}
