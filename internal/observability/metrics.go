package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ChatTurns         *prometheus.CounterVec
	StageLatency      *prometheus.HistogramVec
	RecallResults     *prometheus.CounterVec
	MemoryWrites      *prometheus.CounterVec
	MemoryContexts    *prometheus.CounterVec
	ToolCalls         *prometheus.CounterVec
	UpstreamRequests  *prometheus.CounterVec
	FirstTokenLatency prometheus.Histogram
	WSConnections     prometheus.Gauge

	stages *StageWindow
}

func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the instruments on reg instead of the default registry.
func NewMetricsWith(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ChatTurns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns by terminal state.",
		}, []string{"outcome"}),
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_stage_latency_ms",
			Help:      "Time spent in each chat turn stage in milliseconds.",
			Buckets:   []float64{5, 25, 100, 250, 500, 1000, 2000, 3000, 5000, 10000, 30000},
		}, []string{"stage"}),
		RecallResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_recall_total",
			Help:      "Memory recalls by partition and outcome.",
		}, []string{"partition", "outcome"}),
		MemoryWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_writes_total",
			Help:      "Memory writes by partition and outcome.",
		}, []string{"partition", "outcome"}),
		MemoryContexts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_context_total",
			Help:      "Assembled memory contexts by whether anything was recalled.",
		}, []string{"kind"}),
		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Agent tool calls by tool and outcome.",
		}, []string{"tool", "outcome"}),
		UpstreamRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Requests to external APIs by service and status class.",
		}, []string{"service", "status"}),
		FirstTokenLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_token_latency_ms",
			Help:      "Latency from turn start to the first streamed agent event in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 1500, 2000, 3000, 5000, 8000},
		}),
		WSConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open websocket chat connections.",
		}),
		stages: NewStageWindow(256),
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageLatency.WithLabelValues(stage).Observe(float64(d.Milliseconds()))
	m.stages.Observe(stage, d)
}

func (m *Metrics) ObserveFirstToken(d time.Duration) {
	if m == nil {
		return
	}
	m.FirstTokenLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) TurnFinished(outcome string) {
	if m == nil {
		return
	}
	m.ChatTurns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Recall(partition, outcome string) {
	if m == nil {
		return
	}
	m.RecallResults.WithLabelValues(partition, outcome).Inc()
	if outcome != "ok" {
		m.stages.Count("recall_degraded_" + partition)
	}
}

func (m *Metrics) MemoryWrite(partition, outcome string) {
	if m == nil {
		return
	}
	m.MemoryWrites.WithLabelValues(partition, outcome).Inc()
	if outcome != "ok" {
		m.stages.Count("memory_write_failed_" + partition)
	}
}

// MemoryContext counts assembled contexts as "empty" or "recalled".
func (m *Metrics) MemoryContext(kind string) {
	if m == nil {
		return
	}
	m.MemoryContexts.WithLabelValues(kind).Inc()
}

func (m *Metrics) ToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) Upstream(service string, status int) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(service, statusClass(status)).Inc()
}

func (m *Metrics) SnapshotStages() StageSnapshot {
	if m == nil {
		return StageSnapshot{GeneratedAt: time.Now().UTC(), Stages: []StageStats{}}
	}
	return m.stages.Snapshot()
}

func statusClass(status int) string {
	switch {
	case status <= 0:
		return "error"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
