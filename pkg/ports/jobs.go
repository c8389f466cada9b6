package ports

import (
	"context"

	"github.com/bert-systems/canvas/pkg/domain"
)

// JobService is the remote generation service a node execution maps to.
type JobService interface {
	// StartJob enqueues work for a node and returns its handle.
	StartJob(ctx context.Context, req domain.JobRequest) (domain.JobHandle, error)

	// GetJobStatus polls a job. Transport failures are returned as errors;
	// a job that failed remotely is reported through the status, not the error.
	GetJobStatus(ctx context.Context, jobID string) (domain.JobStatusReport, error)

	// CancelJob asks the service to abandon a job. It is best-effort.
	CancelJob(ctx context.Context, jobID string) error
}

// NodeSync is the remote node persistence service.
type NodeSync interface {
	// UpdateNode persists a partial node update.
	UpdateNode(ctx context.Context, nodeID string, patch domain.NodePatch) error
}
