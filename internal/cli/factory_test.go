package cli

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bert-systems/canvas/internal/config"
	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/bert-systems/canvas/pkg/nodetype"
)

const seed = `
name: sketch
nodes:
  - id: prompt
    nodeType: textPrompt
    parameters:
      text: Linen summer capsule.
  - id: story
    nodeType: storyGenesis
edges:
  - sourceNodeId: prompt
    sourcePortId: text
    targetNodeId: story
    targetPortId: premise
`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Execution.PollInterval = 5 * time.Millisecond
	cfg.Sync.Debounce = 5 * time.Millisecond
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config, opts Options) *App {
	t.Helper()
	app, err := NewApp(t.Context(), cfg, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, app.Close(ctx))
	})
	return app
}

func metricsBody(app *App) string {
	rec := httptest.NewRecorder()
	app.Metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestNewApp_Defaults(t *testing.T) {
	var logs bytes.Buffer
	cfg := testConfig(t)
	cfg.Log.Level = "debug"
	cfg.Log.Format = "json"
	app := newTestApp(t, cfg, Options{LogOutput: &logs})

	assert.Contains(t, logs.String(), "using simulated job service")
	assert.Contains(t, metricsBody(app), "canvas_graph_nodes 0")

	_, err := app.Session.CreateNode(t.Context(), nodetype.Spec{ID: "p", Type: nodetype.TextPrompt})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(metricsBody(app)), []byte("canvas_graph_nodes 1"))
	}, 2*time.Second, 5*time.Millisecond)

	_, err = app.Session.Execute(t.Context(), "p")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		n, _ := app.Session.Node("p")
		return n.Status == domain.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, metricsBody(app), `canvas_executions_started_total{node_type="textPrompt"} 1`)
}

func TestNewApp_Board(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))
	cfg := testConfig(t)
	cfg.Board = path

	app := newTestApp(t, cfg, Options{})
	require.NotNil(t, app.Board)
	assert.Equal(t, "sketch", app.Board.Name)
	assert.Len(t, app.Session.Graph().Nodes, 2)
	assert.True(t, app.Session.Validate().Valid)
}

func TestNewApp_BadBoard(t *testing.T) {
	cfg := testConfig(t)
	cfg.Board = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := NewApp(t.Context(), cfg, Options{})
	assert.Error(t, err)
}

func TestNewApp_SQLiteOutbox(t *testing.T) {
	cfg := testConfig(t)
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "state", "outbox.db")
	app := newTestApp(t, cfg, Options{Simulate: true})

	_, err := app.Session.CreateNode(t.Context(), nodetype.Spec{ID: "p", Type: nodetype.TextPrompt})
	require.NoError(t, err)
	_, err = app.Session.MutateNode(t.Context(), "p", domain.NodePatch{Label: domain.StringPtr("Brief")})
	require.NoError(t, err)
	require.NoError(t, app.Session.FlushSync(t.Context()))

	require.Eventually(t, func() bool {
		pending, err := app.Session.PendingSync(t.Context())
		return err == nil && len(pending) == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.FileExists(t, cfg.SQLite.Path)
}

func TestNewApp_RedisOutbox(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.Prefix = "test:"
	app := newTestApp(t, cfg, Options{Simulate: true})

	_, err := app.Session.CreateNode(t.Context(), nodetype.Spec{ID: "p", Type: nodetype.TextPrompt})
	require.NoError(t, err)
	_, err = app.Session.MutateNode(t.Context(), "p", domain.NodePatch{Label: domain.StringPtr("Brief")})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		pending, err := app.Session.PendingSync(t.Context())
		return err == nil && len(pending) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNewApp_InvalidLogLevel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Log.Level = "loud"
	_, err := NewApp(t.Context(), cfg, Options{})
	assert.Error(t, err)
}
