package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/bert-systems/canvas"
	"github.com/bert-systems/canvas/internal/logging"
	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/bert-systems/canvas/pkg/nodetype"
)

// Canvas is the session surface exposed to agents.
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
}

var _ Canvas = (*canvas.Session)(nil)

// ExecutionResponse reports a started job.
type ExecutionResponse struct {
	NodeID string `json:"nodeId" jsonschema_description:"The executed node"`
	JobID  string `json:"jobId" jsonschema_description:"Remote generation job id"`
}

// BulkExecutionResponse reports the jobs started by execute_all.
type BulkExecutionResponse struct {
	Jobs  map[string]string `json:"jobs" jsonschema_description:"Job ids keyed by node id"`
	Error string            `json:"error,omitempty" jsonschema_description:"Nodes that failed to start"`
}

// Server exposes a canvas session as an MCP server.
type Server struct {
	canvas    Canvas
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(c Canvas, opts ...Option) *Server {
	s := &Server{
		canvas:    c,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("canvas-mcp", strings.TrimSpace(canvas.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on the given port until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(fmt.Sprintf("http://localhost:%d", port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))
	httpServer := &http.Server{Addr: addr, Handler: mux}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("mcp server listening (sse)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down mcp server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get every node and edge on the board."),
		mcp.WithOutputSchema[domain.GraphSnapshot](),
	), mcp.NewStructuredToolHandler(func(ctx context.Context, _ mcp.CallToolRequest, _ map[string]interface{}) (domain.GraphSnapshot, error) {
		return s.canvas.Graph(), nil
	}))

	s.mcpServer.AddTool(mcp.NewTool("list_node_types",
		mcp.WithDescription("List the node types that can be created, with their ports and parameters."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := json.Marshal(s.canvas.NodeTypes())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode node types: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})

	s.mcpServer.AddTool(mcp.NewTool("create_node",
		mcp.WithDescription("Add a node to the board."),
		mcp.WithString("node_type", mcp.Required(), mcp.Description("Node type, see list_node_types")),
		mcp.WithString("id", mcp.Description("Node id (generated when omitted)")),
		mcp.WithString("label", mcp.Description("Display label")),
		mcp.WithString("parameters", mcp.Description("JSON object of parameters")),
		mcp.WithOutputSchema[domain.Node](),
	), mcp.NewStructuredToolHandler(s.handleCreateNode))

	s.mcpServer.AddTool(mcp.NewTool("update_node",
		mcp.WithDescription("Edit a node's label, parameters or lock state. A null parameter resets it to its default."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node to edit")),
		mcp.WithString("label", mcp.Description("New label")),
		mcp.WithString("parameters", mcp.Description("JSON object of parameters to change")),
		mcp.WithBoolean("locked", mcp.Description("Lock or unlock the node")),
		mcp.WithBoolean("expanded", mcp.Description("Expand or collapse the node")),
		mcp.WithOutputSchema[domain.Node](),
	), mcp.NewStructuredToolHandler(s.handleUpdateNode))

	s.mcpServer.AddTool(mcp.NewTool("delete_node",
		mcp.WithDescription("Remove a node and its edges, cancelling any running execution."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node to remove")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("node_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := s.canvas.DeleteNode(ctx, id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("deleted " + id), nil
	})

	s.mcpServer.AddTool(mcp.NewTool("connect",
		mcp.WithDescription("Wire an output port to an input port. Port types must match unless either side is 'any'."),
		mcp.WithString("source_node_id", mcp.Required(), mcp.Description("Node owning the output port")),
		mcp.WithString("source_port_id", mcp.Required(), mcp.Description("Output port id")),
		mcp.WithString("target_node_id", mcp.Required(), mcp.Description("Node owning the input port")),
		mcp.WithString("target_port_id", mcp.Required(), mcp.Description("Input port id")),
		mcp.WithOutputSchema[domain.Edge](),
	), mcp.NewStructuredToolHandler(s.handleConnect))

	s.mcpServer.AddTool(mcp.NewTool("disconnect",
		mcp.WithDescription("Remove an edge."),
		mcp.WithString("edge_id", mcp.Required(), mcp.Description("Edge to remove")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("edge_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := s.canvas.Disconnect(ctx, id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("disconnected " + id), nil
	})

	s.mcpServer.AddTool(mcp.NewTool("execute_node",
		mcp.WithDescription("Start generation for a node. Progress shows up in get_graph."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node to run")),
		mcp.WithOutputSchema[ExecutionResponse](),
	), mcp.NewStructuredToolHandler(func(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ExecutionResponse, error) {
		id, _ := args["node_id"].(string)
		jobID, err := s.canvas.Execute(ctx, id)
		if err != nil {
			return ExecutionResponse{}, err
		}
		return ExecutionResponse{NodeID: id, JobID: jobID}, nil
	}))

	s.mcpServer.AddTool(mcp.NewTool("execute_all",
		mcp.WithDescription("Run every unlocked node in dependency order. Refused while the board has validation errors."),
		mcp.WithOutputSchema[BulkExecutionResponse](),
	), mcp.NewStructuredToolHandler(func(ctx context.Context, _ mcp.CallToolRequest, _ map[string]interface{}) (BulkExecutionResponse, error) {
		jobs, err := s.canvas.ExecuteAll(ctx)
		if err != nil && len(jobs) == 0 {
			return BulkExecutionResponse{}, err
		}
		resp := BulkExecutionResponse{Jobs: jobs}
		if err != nil {
			resp.Error = err.Error()
		}
		return resp, nil
	}))

	s.mcpServer.AddTool(mcp.NewTool("cancel_node",
		mcp.WithDescription("Cancel a running node and return it to idle."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node to cancel")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("node_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := s.canvas.Cancel(ctx, id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("cancelled " + id), nil
	})

	s.mcpServer.AddTool(mcp.NewTool("validate",
		mcp.WithDescription("Check the board for missing inputs, incompatible edges, locked running nodes and cycles."),
		mcp.WithOutputSchema[domain.GraphValidationResult](),
	), mcp.NewStructuredToolHandler(func(ctx context.Context, _ mcp.CallToolRequest, _ map[string]interface{}) (domain.GraphValidationResult, error) {
		return s.canvas.Validate(), nil
	}))
}

func (s *Server) handleCreateNode(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (domain.Node, error) {
	spec := nodetype.Spec{}
	spec.Type, _ = args["node_type"].(string)
	spec.ID, _ = args["id"].(string)
	spec.Label, _ = args["label"].(string)
	params, err := parseParameters(args)
	if err != nil {
		return domain.Node{}, err
	}
	spec.Parameters = params
	node, err := s.canvas.CreateNode(ctx, spec)
	if err != nil {
		s.logger.Debug("mcp create_node rejected", "node_type", spec.Type, "err", err)
		return domain.Node{}, err
	}
	return node, nil
}

func (s *Server) handleUpdateNode(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (domain.Node, error) {
	id, _ := args["node_id"].(string)
	var patch domain.NodePatch
	if label, ok := args["label"].(string); ok {
		patch.Label = &label
	}
	params, err := parseParameters(args)
	if err != nil {
		return domain.Node{}, err
	}
	patch.Parameters = params
	if locked, ok := args["locked"].(bool); ok {
		patch.IsLocked = &locked
	}
	if expanded, ok := args["expanded"].(bool); ok {
		patch.IsExpanded = &expanded
	}
	return s.canvas.MutateNode(ctx, id, patch)
}

func (s *Server) handleConnect(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (domain.Edge, error) {
	var e domain.Edge
	e.SourceNodeID, _ = args["source_node_id"].(string)
	e.SourcePortID, _ = args["source_port_id"].(string)
	e.TargetNodeID, _ = args["target_node_id"].(string)
	e.TargetPortID, _ = args["target_port_id"].(string)
	return s.canvas.Connect(ctx, e)
}

// parseParameters decodes the JSON-encoded "parameters" argument.
func parseParameters(args map[string]interface{}) (map[string]any, error) {
	raw, ok := args["parameters"].(string)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("parameters must be a JSON object: %w", err)
	}
	return params, nil
}

const (
	graphURI      = "canvas://graph"
	validationURI = "canvas://validation"
	typesURI      = "canvas://node-types"
)

func (s *Server) registerResources() {
	s.addJSONResource(graphURI, "Current Board", func() any { return s.canvas.Graph() })
	s.addJSONResource(validationURI, "Board Validation Report", func() any { return s.canvas.Validate() })
	s.addJSONResource(typesURI, "Node Type Catalog", func() any { return s.canvas.NodeTypes() })
}

func (s *Server) addJSONResource(uri, name string, read func() any) {
	s.mcpServer.AddResource(mcp.NewResource(uri, name,
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.Marshal(read())
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", uri, err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
