package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/bert-systems/canvas"
	"github.com/bert-systems/canvas/internal/logging"
	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/bert-systems/canvas/pkg/nodetype"
	"github.com/bert-systems/canvas/pkg/porttype"
)

// Canvas is the session surface served over HTTP.
type Canvas interface {
	Graph() domain.GraphSnapshot
	Node(id string) (domain.Node, bool)
	NodeTypes() []nodetype.Template
	Validate() domain.GraphValidationResult
	CreateNode(ctx context.Context, spec nodetype.Spec) (domain.Node, error)
	MutateNode(ctx context.Context, id string, patch domain.NodePatch) (domain.Node, error)
	Connect(ctx context.Context, e domain.Edge) (domain.Edge, error)
	Disconnect(ctx context.Context, edgeID string) error
	DeleteNode(ctx context.Context, id string) error
	Execute(ctx context.Context, id string) (string, error)
	ExecuteAll(ctx context.Context) (map[string]string, error)
	Cancel(ctx context.Context, id string) error
	Subscribe() (<-chan domain.Notification, func())
	PendingSync(ctx context.Context) ([]domain.OutboxEntry, error)
	RetrySync(ctx context.Context, id string) error
}

var _ Canvas = (*canvas.Session)(nil)

// Server serves a canvas session.
type Server struct {
	canvas      Canvas
	contract    *Contract
	metrics     http.Handler
	allowOrigin string
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics mounts a metrics handler on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithAllowOrigin sets the CORS allowed origin. Empty disables CORS headers.
func WithAllowOrigin(origin string) Option {
	return func(s *Server) {
		s.allowOrigin = origin
	}
}

// NewHandler creates the HTTP handler for a canvas session.
func NewHandler(c Canvas, opts ...Option) (http.Handler, error) {
	contract, err := LoadContract()
	if err != nil {
		return nil, err
	}
	s := &Server{
		canvas:      c,
		contract:    contract,
		allowOrigin: "*",
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.allowOrigin == "*" || r.Header.Get("Origin") == "" || r.Header.Get("Origin") == s.allowOrigin
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.cors)
	r.Use(s.logRequests)
	r.Use(s.contract.Middleware)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(openapiSpec)
	})
	r.Get("/health", s.getHealth)
	r.Get("/info", s.getInfo)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Get("/graph", s.getGraph)
	r.Route("/nodes", func(r chi.Router) {
		r.Get("/", s.listNodes)
		r.Post("/", s.createNode)
		r.Get("/{id}", s.getNode)
		r.Patch("/{id}", s.updateNode)
		r.Delete("/{id}", s.deleteNode)
		r.Post("/{id}/execute", s.executeNode)
		r.Post("/{id}/cancel", s.cancelNode)
	})
	r.Post("/execute", s.executeAll)
	r.Route("/edges", func(r chi.Router) {
		r.Get("/", s.listEdges)
		r.Post("/", s.connect)
		r.Delete("/{id}", s.disconnect)
	})
	r.Get("/validate", s.validate)
	r.Get("/types", s.listNodeTypes)
	r.Get("/port-types", s.listPortTypes)
	r.Get("/sync/pending", s.pendingSync)
	r.Post("/sync/{id}/retry", s.retrySync)
	r.Get("/events", s.subscribeEvents)
	r.Get("/ws", s.subscribeSocket)

	return r, nil
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.allowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", ww.Status())
	})
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "canvas-http",
		"version":     strings.TrimSpace(canvas.Version),
		"api_version": s.contract.Version(),
	})
}

func (s *Server) getGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.canvas.Graph())
}

func (s *Server) listNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.canvas.Graph().Nodes)
}

func (s *Server) createNode(w http.ResponseWriter, r *http.Request) {
	var spec nodetype.Spec
	if !s.decode(w, r, &spec) {
		return
	}
	node, err := s.canvas.CreateNode(r.Context(), spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (s *Server) getNode(w http.ResponseWriter, r *http.Request) {
	node, ok := s.canvas.Node(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, r, domain.ErrNodeNotFound)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) updateNode(w http.ResponseWriter, r *http.Request) {
	var patch domain.NodePatch
	if !s.decode(w, r, &patch) {
		return
	}
	node, err := s.canvas.MutateNode(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) deleteNode(w http.ResponseWriter, r *http.Request) {
	if err := s.canvas.DeleteNode(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) executeNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	jobID, err := s.canvas.Execute(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"nodeId": id, "jobId": jobID})
}

func (s *Server) cancelNode(w http.ResponseWriter, r *http.Request) {
	if err := s.canvas.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) executeAll(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.canvas.ExecuteAll(r.Context())
	if err != nil && len(jobs) == 0 {
		s.writeError(w, r, err)
		return
	}
	resp := map[string]any{"jobs": jobs}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) listEdges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.canvas.Graph().Edges)
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	var e domain.Edge
	if !s.decode(w, r, &e) {
		return
	}
	created, err := s.canvas.Connect(r.Context(), e)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.canvas.Disconnect(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.canvas.Validate())
}

func (s *Server) listNodeTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.canvas.NodeTypes())
}

func (s *Server) listPortTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, porttype.All())
}

func (s *Server) pendingSync(w http.ResponseWriter, r *http.Request) {
	entries, err := s.canvas.PendingSync(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.OutboxEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) retrySync(w http.ResponseWriter, r *http.Request) {
	if err := s.canvas.RetrySync(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.logger.Warn("invalid request body", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error(), Code: "BadRequest"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "err", err)
	}
}
