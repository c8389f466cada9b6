package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bert-systems/canvas"
	"github.com/bert-systems/canvas/pkg/adapters/memory"
	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/bert-systems/canvas/pkg/execution"
	"github.com/bert-systems/canvas/pkg/nodetype"
)

var requestID atomic.Int64

type toolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent"`
	IsError           bool            `json:"isError"`
}

func newTestServer(t *testing.T) (*Server, *canvas.Session) {
	t.Helper()
	jobs := memory.NewJobService(memory.WithSteps(memory.Completed()))
	s, err := canvas.New(jobs, canvas.WithExecutionConfig(execution.Config{PollInterval: 5 * time.Millisecond, MaxPollFailures: 3}))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return NewServer(s), s
}

func rpc(t *testing.T, srv *Server, method string, params any) json.RawMessage {
	t.Helper()
	msg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      requestID.Add(1),
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)
	resp := srv.mcpServer.HandleMessage(context.Background(), msg)
	out, err := json.Marshal(resp)
	require.NoError(t, err)

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(out, &envelope))
	require.Nil(t, envelope.Error, "rpc %s failed: %s", method, out)
	return envelope.Result
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) toolResult {
	t.Helper()
	raw := rpc(t, srv, "tools/call", map[string]any{"name": name, "arguments": args})
	var res toolResult
	require.NoError(t, json.Unmarshal(raw, &res))
	return res
}

func structured[T any](t *testing.T, res toolResult) T {
	t.Helper()
	require.False(t, res.IsError, "tool failed: %+v", res.Content)
	var v T
	require.NoError(t, json.Unmarshal(res.StructuredContent, &v), string(res.StructuredContent))
	return v
}

func TestServer_ListTools(t *testing.T) {
	srv, _ := newTestServer(t)
	var list struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rpc(t, srv, "tools/list", map[string]any{}), &list))

	var names []string
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	for _, want := range []string{"get_graph", "list_node_types", "create_node", "update_node", "delete_node",
		"connect", "disconnect", "execute_node", "execute_all", "cancel_node", "validate"} {
		assert.Contains(t, names, want)
	}
}

func TestServer_BuildBoard(t *testing.T) {
	srv, s := newTestServer(t)

	node := structured[domain.Node](t, callTool(t, srv, "create_node", map[string]any{
		"node_type": "storyGenesis", "id": "story", "parameters": `{"genre":"scifi"}`,
	}))
	assert.Equal(t, "story", node.ID)
	assert.Equal(t, "scifi", node.Parameters["genre"])

	structured[domain.Node](t, callTool(t, srv, "create_node", map[string]any{"node_type": "storyRefiner", "id": "refine"}))

	report := structured[domain.GraphValidationResult](t, callTool(t, srv, "validate", map[string]any{}))
	assert.False(t, report.Valid)

	edge := structured[domain.Edge](t, callTool(t, srv, "connect", map[string]any{
		"source_node_id": "story", "source_port_id": "story",
		"target_node_id": "refine", "target_port_id": "story",
	}))
	assert.Equal(t, "refine", edge.TargetNodeID)

	updated := structured[domain.Node](t, callTool(t, srv, "update_node", map[string]any{
		"node_id": "refine", "label": "Polish", "locked": true,
	}))
	assert.Equal(t, "Polish", updated.Label)
	assert.True(t, updated.IsLocked)

	snap := structured[domain.GraphSnapshot](t, callTool(t, srv, "get_graph", map[string]any{}))
	assert.Len(t, snap.Nodes, 2)
	assert.Len(t, snap.Edges, 1)

	res := callTool(t, srv, "disconnect", map[string]any{"edge_id": edge.ID})
	assert.False(t, res.IsError)
	res = callTool(t, srv, "delete_node", map[string]any{"node_id": "story"})
	assert.False(t, res.IsError)
	assert.Equal(t, 1, len(s.Graph().Nodes))
}

func TestServer_Execute(t *testing.T) {
	srv, s := newTestServer(t)
	structured[domain.Node](t, callTool(t, srv, "create_node", map[string]any{"node_type": "textPrompt", "id": "p"}))

	resp := structured[ExecutionResponse](t, callTool(t, srv, "execute_node", map[string]any{"node_id": "p"}))
	assert.Equal(t, "p", resp.NodeID)
	assert.NotEmpty(t, resp.JobID)

	require.Eventually(t, func() bool {
		n, ok := s.Node("p")
		return ok && n.Status == domain.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool { return len(s.Active()) == 0 }, 2*time.Second, 5*time.Millisecond)
	bulk := structured[BulkExecutionResponse](t, callTool(t, srv, "execute_all", map[string]any{}))
	assert.Contains(t, bulk.Jobs, "p")
}

func TestServer_ToolErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		tool string
		args map[string]any
	}{
		{"create_node", map[string]any{"node_type": "teleporter"}},
		{"create_node", map[string]any{"node_type": "textPrompt", "parameters": "not json"}},
		{"update_node", map[string]any{"node_id": "ghost", "label": "x"}},
		{"execute_node", map[string]any{"node_id": "ghost"}},
		{"cancel_node", map[string]any{"node_id": "ghost"}},
		{"delete_node", map[string]any{}},
		{"disconnect", map[string]any{"edge_id": "ghost"}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %v", tt.tool, tt.args), func(t *testing.T) {
			assert.True(t, callTool(t, srv, tt.tool, tt.args).IsError)
		})
	}
}

func TestServer_Resources(t *testing.T) {
	srv, s := newTestServer(t)
	_, err := s.CreateNode(t.Context(), nodetype.Spec{Type: nodetype.TextPrompt, ID: "p"})
	require.NoError(t, err)

	var read struct {
		Contents []struct {
			URI      string `json:"uri"`
			MIMEType string `json:"mimeType"`
			Text     string `json:"text"`
		} `json:"contents"`
	}
	require.NoError(t, json.Unmarshal(rpc(t, srv, "resources/read", map[string]any{"uri": graphURI}), &read))
	require.Len(t, read.Contents, 1)
	assert.Equal(t, "application/json", read.Contents[0].MIMEType)

	var snap domain.GraphSnapshot
	require.NoError(t, json.Unmarshal([]byte(read.Contents[0].Text), &snap))
	require.Len(t, snap.Nodes, 1)
	assert.Equal(t, "p", snap.Nodes[0].ID)

	require.NoError(t, json.Unmarshal(rpc(t, srv, "resources/read", map[string]any{"uri": typesURI}), &read))
	assert.Contains(t, read.Contents[0].Text, `"nodeType":"storyGenesis"`)
}
