// Package remote provides HTTP clients for the generation job service and the
// node persistence service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bert-systems/canvas/internal/logging"
	"github.com/bert-systems/canvas/pkg/domain"
)

// ErrNotFound is returned for 404 answers.
var ErrNotFound = errors.New("remote resource not found")

// StatusError is returned for any other non-2xx answer.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.Code)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Temporary reports whether retrying the same request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Client is the shared HTTP plumbing of the service clients.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
	UserAgent  string

	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.HTTPClient = hc
	}
}

// WithToken sends a bearer token with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.Token = token
	}
}

// WithLogger configures a logger for the Client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		UserAgent: "canvas",
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends a JSON request and decodes a JSON answer into out, if out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("remote call", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Method: method, URL: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

// JobService implements ports.JobService over HTTP.
//
//	POST   /jobs        JobRequest      -> JobHandle
//	GET    /jobs/{id}                   -> JobStatusReport
//	DELETE /jobs/{id}
type JobService struct {
	*Client
}

// NewJobService creates a job service client.
func NewJobService(baseURL string, opts ...Option) *JobService {
	return &JobService{Client: NewClient(baseURL, opts...)}
}

// StartJob enqueues a job.
func (s *JobService) StartJob(ctx context.Context, req domain.JobRequest) (domain.JobHandle, error) {
	var h domain.JobHandle
	if err := s.do(ctx, http.MethodPost, "/jobs", req, &h); err != nil {
		return domain.JobHandle{}, err
	}
	if h.JobID == "" {
		return domain.JobHandle{}, errors.New("job service returned an empty job id")
	}
	return h, nil
}

// GetJobStatus polls a job.
func (s *JobService) GetJobStatus(ctx context.Context, jobID string) (domain.JobStatusReport, error) {
	var rep domain.JobStatusReport
	if err := s.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, &rep); err != nil {
		return domain.JobStatusReport{}, err
	}
	return rep, nil
}

// CancelJob abandons a job.
func (s *JobService) CancelJob(ctx context.Context, jobID string) error {
	return s.do(ctx, http.MethodDelete, "/jobs/"+url.PathEscape(jobID), nil, nil)
}

// NodeSync implements ports.NodeSync over HTTP.
//
//	PATCH /nodes/{id}   NodePatch
type NodeSync struct {
	*Client
}

// NewNodeSync creates a node persistence client.
func NewNodeSync(baseURL string, opts ...Option) *NodeSync {
	return &NodeSync{Client: NewClient(baseURL, opts...)}
}

// UpdateNode sends a partial node update.
func (s *NodeSync) UpdateNode(ctx context.Context, nodeID string, patch domain.NodePatch) error {
	return s.do(ctx, http.MethodPatch, "/nodes/"+url.PathEscape(nodeID), patch, nil)
}
