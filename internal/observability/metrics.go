package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors the daemon exports at
// /metrics: the request/response loop's query, tool, and provider
// activity (spec §4.4, §4.6, §6).
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	start := time.Now()
//	// ... run a query ...
//	metrics.RecordQuery("success", time.Since(start).Seconds())
type Metrics struct {
	// QueriesTotal counts completed /v1/messages requests and one-shot
	// CLI queries by outcome (success|error|cancelled).
	QueriesTotal *prometheus.CounterVec

	// QueryDuration measures end-to-end query latency in seconds.
	QueryDuration *prometheus.HistogramVec

	// ProviderRequestsTotal counts provider Send calls by provider,
	// model, and status (success|error).
	ProviderRequestsTotal *prometheus.CounterVec

	// ProviderRequestDuration measures provider Send latency in seconds.
	ProviderRequestDuration *prometheus.HistogramVec

	// ProviderTokensUsed tracks token consumption by provider, model,
	// and direction (input|output).
	ProviderTokensUsed *prometheus.CounterVec

	// ToolExecutionsTotal counts tool invocations by tool name and
	// status (success|error).
	ToolExecutionsTotal *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	ToolExecutionDuration *prometheus.HistogramVec
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// NewMetrics returns the process-wide Metrics, registering its
// collectors with Prometheus's default registry on first call. Callers
// that construct components more than once per process (the CLI rebuilds
// its component graph per backlog task) get back the same instance
// rather than hitting a duplicate-registration panic.
func NewMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = newMetrics()
	})
	return defaultMetrics
}

func newMetrics() *Metrics {
	return &Metrics{
		QueriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finch_queries_total",
				Help: "Total number of queries processed by outcome",
			},
			[]string{"outcome"},
		),

		QueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finch_query_duration_seconds",
				Help:    "End-to-end query latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"outcome"},
		),

		ProviderRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finch_provider_requests_total",
				Help: "Total number of provider requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		ProviderRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finch_provider_request_duration_seconds",
				Help:    "Duration of provider requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		ProviderTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finch_provider_tokens_total",
				Help: "Total number of tokens used by provider, model, and direction",
			},
			[]string{"provider", "model", "direction"},
		),

		ToolExecutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finch_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finch_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),
	}
}

// RecordQuery records a completed query's outcome and latency.
func (m *Metrics) RecordQuery(outcome string, durationSeconds float64) {
	m.QueriesTotal.WithLabelValues(outcome).Inc()
	m.QueryDuration.WithLabelValues(outcome).Observe(durationSeconds)
}

// RecordProviderRequest records one provider Send attempt.
func (m *Metrics) RecordProviderRequest(provider, model, status string, durationSeconds float64, inputTokens, outputTokens int) {
	m.ProviderRequestsTotal.WithLabelValues(provider, model, status).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if inputTokens > 0 {
		m.ProviderTokensUsed.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.ProviderTokensUsed.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

// RecordToolExecution records one tool dispatch.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionsTotal.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}
