package domain

import (
	"errors"
	"fmt"
)

// Structural errors, rejected synchronously by the graph model.
var (
	ErrIncompatiblePorts = errors.New("incompatible ports")
	ErrPortOccupied      = errors.New("port occupied")
	ErrUnknownEndpoint   = errors.New("unknown endpoint")
	ErrUnknownPortType   = errors.New("unknown port type")
	ErrNodeNotFound      = errors.New("node not found")
	ErrEdgeNotFound      = errors.New("edge not found")
	ErrDuplicateNode     = errors.New("duplicate node")
	ErrDuplicateEdge     = errors.New("duplicate edge")
	ErrInvalidNode       = errors.New("invalid node")
)

// Execution errors.
var (
	ErrNodeLocked     = errors.New("node is locked")
	ErrAlreadyRunning = errors.New("node is already running")
	ErrNotRunning     = errors.New("node is not running")
	ErrJobStartFailed = errors.New("job start failed")
	ErrPollTransport  = errors.New("status check failed")
	ErrJobFailed      = errors.New("generation failed")
	ErrTimeout        = errors.New("timeout")
	ErrCancelled      = errors.New("execution cancelled")
)

// Template and session errors.
var (
	ErrUnknownNodeType   = errors.New("unknown node type")
	ErrInvalidParameters = errors.New("invalid parameters")
	ErrGraphInvalid      = errors.New("graph is invalid")
)

// ConnectionError is returned when an edge is rejected by the graph model.
type ConnectionError struct {
	Edge   Edge
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("connect %s.%s -> %s.%s: %v",
			e.Edge.SourceNodeID, e.Edge.SourcePortID, e.Edge.TargetNodeID, e.Edge.TargetPortID, e.Err)
	}
	return fmt.Sprintf("connect %s.%s -> %s.%s: %v: %s",
		e.Edge.SourceNodeID, e.Edge.SourcePortID, e.Edge.TargetNodeID, e.Edge.TargetPortID, e.Err, e.Reason)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ExecutionError is returned by the execution controller.
type ExecutionError struct {
	NodeID string
	JobID  string
	Err    error
	Cause  error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("execute node %q: %v", e.NodeID, e.Err)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is/As.
func (e *ExecutionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// InvalidGraphError carries the validation report that blocked a bulk execution.
type InvalidGraphError struct {
	Result GraphValidationResult
}

func (e *InvalidGraphError) Error() string {
	errs := e.Result.Errors()
	if len(errs) == 0 {
		return ErrGraphInvalid.Error()
	}
	return fmt.Sprintf("%v: %d error(s), first: %s", ErrGraphInvalid, len(errs), errs[0].Message)
}

func (e *InvalidGraphError) Unwrap() error { return ErrGraphInvalid }

// ErrOutboxEntryNotFound is returned by outbox stores for unknown node ids.
var ErrOutboxEntryNotFound = errors.New("outbox entry not found")
