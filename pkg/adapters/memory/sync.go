package memory

import (
	"context"
	"sync"

	"github.com/bert-systems/canvas/pkg/domain"
)

// Update is one call received by NodeSync.
type Update struct {
	NodeID string
	Patch  domain.NodePatch
	Err    error
}

// NodeSync is an in-process ports.NodeSync that records every call and can
// be told to fail.
type NodeSync struct {
	mu       sync.Mutex
	updates  []Update
	failing  error
	failNext int
	nextErr  error
}

// NewNodeSync creates a NodeSync that accepts every update.
func NewNodeSync() *NodeSync {
	return &NodeSync{}
}

// UpdateNode records the patch and answers with the configured failure, if any.
func (s *NodeSync) UpdateNode(ctx context.Context, nodeID string, patch domain.NodePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	switch {
	case s.failNext > 0:
		s.failNext--
		err = s.nextErr
	case s.failing != nil:
		err = s.failing
	}
	s.updates = append(s.updates, Update{NodeID: nodeID, Patch: patch.Clone(), Err: err})
	return err
}

// SetFailing makes every call fail with err. A nil err restores success.
func (s *NodeSync) SetFailing(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = err
}

// FailNext makes the next n calls fail with err.
func (s *NodeSync) FailNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
	s.nextErr = err
}

// Updates returns every call received so far.
func (s *NodeSync) Updates() []Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Update, len(s.updates))
	copy(out, s.updates)
	return out
}

// Delivered returns the patches for nodeID that were accepted.
func (s *NodeSync) Delivered(nodeID string) []domain.NodePatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.NodePatch
	for _, u := range s.updates {
		if u.NodeID == nodeID && u.Err == nil {
			out = append(out, u.Patch)
		}
	}
	return out
}
