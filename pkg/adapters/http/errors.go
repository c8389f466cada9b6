package http

import (
	"errors"
	"net/http"

	"github.com/bert-systems/canvas"
	"github.com/bert-systems/canvas/pkg/domain"
)

type errorBody struct {
	Error      string                        `json:"error"`
	Code       string                        `json:"code,omitempty"`
	Validation *domain.GraphValidationResult `json:"validation,omitempty"`
}

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrNodeNotFound, http.StatusNotFound, "NodeNotFound"},
	{domain.ErrEdgeNotFound, http.StatusNotFound, "EdgeNotFound"},
	{domain.ErrOutboxEntryNotFound, http.StatusNotFound, "SyncEntryNotFound"},
	{domain.ErrUnknownEndpoint, http.StatusUnprocessableEntity, "UnknownEndpoint"},
	{domain.ErrIncompatiblePorts, http.StatusUnprocessableEntity, "IncompatiblePorts"},
	{domain.ErrUnknownPortType, http.StatusUnprocessableEntity, "UnknownPortType"},
	{domain.ErrUnknownNodeType, http.StatusUnprocessableEntity, "UnknownNodeType"},
	{domain.ErrInvalidParameters, http.StatusUnprocessableEntity, "InvalidParameters"},
	{domain.ErrInvalidNode, http.StatusUnprocessableEntity, "InvalidNode"},
	{domain.ErrGraphInvalid, http.StatusUnprocessableEntity, "GraphInvalid"},
	{domain.ErrPortOccupied, http.StatusConflict, "PortOccupied"},
	{domain.ErrDuplicateNode, http.StatusConflict, "DuplicateNode"},
	{domain.ErrDuplicateEdge, http.StatusConflict, "DuplicateEdge"},
	{domain.ErrNodeLocked, http.StatusConflict, "NodeLocked"},
	{domain.ErrAlreadyRunning, http.StatusConflict, "AlreadyRunning"},
	{domain.ErrNotRunning, http.StatusConflict, "NotRunning"},
	{domain.ErrJobStartFailed, http.StatusBadGateway, "JobStartFailed"},
	{canvas.ErrClosed, http.StatusServiceUnavailable, "SessionClosed"},
}

// statusOf maps a session error to an HTTP status and a stable code.
func statusOf(err error) (int, string) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, "Internal"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	body := errorBody{Error: err.Error(), Code: code}
	var invalid *domain.InvalidGraphError
	if errors.As(err, &invalid) {
		body.Validation = &invalid.Result
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, body)
}
