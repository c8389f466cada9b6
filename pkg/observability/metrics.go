package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bert-systems/canvas/pkg/domain"
	"github.com/bert-systems/canvas/pkg/outbox"
)

// Outcome label values.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Metrics holds the Prometheus collectors of a canvas process.
type Metrics struct {
	registry *prometheus.Registry

	executionsStarted  *prometheus.CounterVec
	executionsFinished *prometheus.CounterVec
	executionDuration  *prometheus.HistogramVec
	executionsActive   prometheus.Gauge
	pollErrors         *prometheus.CounterVec
	syncResults        *prometheus.CounterVec
	graphNodes         prometheus.Gauge
	graphEdges         prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		executionsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvas_executions_started_total",
				Help: "Total number of node executions started",
			},
			[]string{"node_type"},
		),
		executionsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvas_executions_finished_total",
				Help: "Total number of node executions that reached an end state",
			},
			[]string{"node_type", "outcome"},
		),
		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "canvas_execution_duration_seconds",
				Help:    "Duration of node executions",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"node_type", "outcome"},
		),
		executionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "canvas_executions_active",
			Help: "Number of node executions currently polling",
		}),
		pollErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvas_poll_errors_total",
				Help: "Total number of failed job status checks",
			},
			[]string{"node_type"},
		),
		syncResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvas_sync_results_total",
				Help: "Outcomes of remote node persistence attempts",
			},
			[]string{"result"},
		),
		graphNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "canvas_graph_nodes",
			Help: "Number of nodes on the board",
		}),
		graphEdges: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "canvas_graph_edges",
			Help: "Number of edges on the board",
		}),
	}
	m.registry.MustRegister(
		m.executionsStarted,
		m.executionsFinished,
		m.executionDuration,
		m.executionsActive,
		m.pollErrors,
		m.syncResults,
		m.graphNodes,
		m.graphEdges,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ExecutionHooks records execution lifecycle events.
func (m *Metrics) ExecutionHooks() domain.LifecycleHooks {
	finish := func(outcome string) func(context.Context, *domain.ExecutionEvent) {
		return func(_ context.Context, ev *domain.ExecutionEvent) {
			m.executionsActive.Dec()
			m.executionsFinished.WithLabelValues(ev.NodeType, outcome).Inc()
			m.executionDuration.WithLabelValues(ev.NodeType, outcome).Observe(ev.Duration.Seconds())
		}
	}
	return domain.LifecycleHooks{
		OnExecutionStart: func(_ context.Context, ev *domain.ExecutionEvent) {
			m.executionsActive.Inc()
			m.executionsStarted.WithLabelValues(ev.NodeType).Inc()
		},
		OnExecutionComplete: finish(OutcomeCompleted),
		OnExecutionFail:     finish(OutcomeFailed),
		OnExecutionCancel:   finish(OutcomeCancelled),
		OnPollError: func(_ context.Context, ev *domain.ExecutionEvent) {
			m.pollErrors.WithLabelValues(ev.NodeType).Inc()
		},
	}
}

// OutboxHooks records remote sync outcomes.
func (m *Metrics) OutboxHooks() outbox.Hooks {
	return outbox.Hooks{
		OnSynced: func(string, int) {
			m.syncResults.WithLabelValues("synced").Inc()
		},
		OnFailed: func(string, int, error) {
			m.syncResults.WithLabelValues("failed").Inc()
		},
		OnDeadLetter: func(string, int, error) {
			m.syncResults.WithLabelValues("dead_letter").Inc()
		},
	}
}

// ObserveGraph records the board size.
func (m *Metrics) ObserveGraph(nodes, edges int) {
	m.graphNodes.Set(float64(nodes))
	m.graphEdges.Set(float64(edges))
}
