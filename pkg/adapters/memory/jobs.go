package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/bert-systems/canvas/pkg/nodetype"
)

// ErrJobNotFound is returned when polling an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// Step is one scripted answer of GetJobStatus.
type Step struct {
	Report domain.JobStatusReport
	// Err is returned instead of Report, simulating a transport failure.
	Err error
	// Block, when set, holds the poll until it is closed or the caller's
	// context is done. The poll then answers with Report or Err.
	Block <-chan struct{}
}

// Script produces the answers for a new job.
type Script func(req domain.JobRequest) []Step

// JobService is an in-process ports.JobService. Each job consumes its script
// one step per poll; once exhausted the last step repeats.
type JobService struct {
	mu       sync.Mutex
	jobs     map[string]*job
	order    []string
	script   Script
	startErr error
}

type job struct {
	id        string
	req       domain.JobRequest
	steps     []Step
	polls     int
	cancelled bool
}

// JobOption configures the JobService.
type JobOption func(*JobService)

// WithScript sets the script used for new jobs.
func WithScript(s Script) JobOption {
	return func(j *JobService) {
		j.script = s
	}
}

// WithSteps runs the same steps for every job.
func WithSteps(steps ...Step) JobOption {
	return WithScript(func(domain.JobRequest) []Step { return steps })
}

// NewJobService creates a service that simulates generation with the
// built-in node catalog: a few progress reports, then one asset per output port.
func NewJobService(opts ...JobOption) *JobService {
	s := &JobService{
		jobs:   make(map[string]*job),
		script: Simulate(nodetype.Default(), 3),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailStarts makes every StartJob call fail with err until called again with nil.
func (s *JobService) FailStarts(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startErr = err
}

// StartJob registers a job and returns its id.
func (s *JobService) StartJob(ctx context.Context, req domain.JobRequest) (domain.JobHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.startErr != nil {
		return domain.JobHandle{}, s.startErr
	}
	j := &job{
		id:    uuid.NewString(),
		req:   req,
		steps: s.script(req),
	}
	s.jobs[j.id] = j
	s.order = append(s.order, j.id)
	return domain.JobHandle{JobID: j.id}, nil
}

// GetJobStatus answers with the job's next scripted step.
func (s *JobService) GetJobStatus(ctx context.Context, jobID string) (domain.JobStatusReport, error) {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return domain.JobStatusReport{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if j.cancelled {
		s.mu.Unlock()
		return domain.JobStatusReport{Status: domain.JobFailed, ErrorMessage: "job cancelled"}, nil
	}
	if len(j.steps) == 0 {
		j.polls++
		s.mu.Unlock()
		return domain.JobStatusReport{Status: domain.JobCompleted, GeneratedAssets: []domain.AssetRef{}}, nil
	}
	step := j.steps[min(j.polls, len(j.steps)-1)]
	j.polls++
	s.mu.Unlock()

	if step.Block != nil {
		select {
		case <-step.Block:
		case <-ctx.Done():
			return domain.JobStatusReport{}, ctx.Err()
		}
	}
	if step.Err != nil {
		return domain.JobStatusReport{}, step.Err
	}
	return step.Report, nil
}

// CancelJob marks a job as abandoned.
func (s *JobService) CancelJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	j.cancelled = true
	return nil
}

// Requests returns the requests of every started job, in start order.
func (s *JobService) Requests() []domain.JobRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.JobRequest, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id].req)
	}
	return out
}

// Started returns the number of jobs started so far.
func (s *JobService) Started() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Polls returns how many status requests a job has received.
func (s *JobService) Polls(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[jobID]; ok {
		return j.polls
	}
	return 0
}

// Cancelled reports whether CancelJob was called for a job.
func (s *JobService) Cancelled(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	return ok && j.cancelled
}

// Running returns a running report with the given progress and stage.
func Running(progress int, stage string) Step {
	return Step{Report: domain.JobStatusReport{
		Status:           domain.JobRunning,
		Progress:         domain.IntPtr(progress),
		CurrentStageName: stage,
	}}
}

// Completed returns a completed report carrying assets.
func Completed(assets ...domain.AssetRef) Step {
	if assets == nil {
		assets = []domain.AssetRef{}
	}
	return Step{Report: domain.JobStatusReport{Status: domain.JobCompleted, GeneratedAssets: assets}}
}

// Failed returns a failed report with a service message.
func Failed(msg string) Step {
	return Step{Report: domain.JobStatusReport{Status: domain.JobFailed, ErrorMessage: msg}}
}

// TransportError returns a step whose poll fails with err.
func TransportError(err error) Step {
	return Step{Err: err}
}

// Simulate builds a script that reports n evenly spaced progress steps and
// then completes with one asset per output port of the node's template.
func Simulate(catalog *nodetype.Registry, n int) Script {
	stages := []string{"queued", "drafting", "refining", "rendering", "finalizing"}
	return func(req domain.JobRequest) []Step {
		steps := make([]Step, 0, n+1)
		for i := range n {
			steps = append(steps, Running((i+1)*100/(n+1), stages[i%len(stages)]))
		}

		var assets []domain.AssetRef
		if t, ok := catalog.Lookup(req.NodeType); ok {
			for _, p := range t.Outputs {
				assets = append(assets, domain.AssetRef{
					ID:       uuid.NewString(),
					PortID:   p.ID,
					Kind:     p.Type,
					URL:      fmt.Sprintf("memory://%s/%s/%s", req.NodeType, req.NodeID, p.ID),
					MimeType: mimeFor(p.Type),
				})
			}
		}
		return append(steps, Completed(assets...))
	}
}

func mimeFor(t domain.PortType) string {
	switch t {
	case domain.PortImage, domain.PortStyle, domain.PortMoodboard, domain.PortPattern:
		return "image/png"
	case domain.PortVideo:
		return "video/mp4"
	case domain.PortAudio:
		return "audio/mpeg"
	case domain.PortMesh3D:
		return "model/gltf-binary"
	case domain.PortText:
		return "text/plain"
	default:
		return "application/json"
	}
}
