// Package observability exposes the Agent Loop's runtime behavior as
// Prometheus metrics: message throughput, LLM request latency and cost,
// tool-execution outcomes, and session lifecycle. There is no HTTP API or
// database in a single-operator terminal agent, so the metric surface is
// narrower than a server control-plane would carry — it covers only what
// the loop and the Channel Router actually do.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/histogram/gauge the Agent Loop and Channel
// Router record against. Construct with NewMetrics against a registry scoped
// to the process (or, in tests, a fresh prometheus.NewRegistry()).
type Metrics struct {
	MessageCounter *prometheus.CounterVec

	LLMRequestDuration *prometheus.HistogramVec
	LLMRequestCounter  *prometheus.CounterVec
	LLMTokensUsed      *prometheus.CounterVec
	LLMCostUSD         *prometheus.CounterVec

	ToolExecutionCounter  *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec

	ErrorCounter *prometheus.CounterVec

	ActiveSessions    prometheus.Gauge
	SessionDuration   prometheus.Histogram
	ContextWindowUsed *prometheus.GaugeVec
	RunAttempts       *prometheus.CounterVec
}

// NewMetrics registers every opencrabs_* metric against reg. Tests should
// pass an isolated prometheus.NewRegistry() rather than the global default
// registry so repeated construction across test cases does not collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		MessageCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opencrabs_messages_total",
			Help: "Total messages processed by the Channel Router, by channel and direction.",
		}, []string{"channel", "direction"}),

		LLMRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opencrabs_llm_request_duration_seconds",
			Help:    "Provider request latency, by model and outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"model", "status"}),
		LLMRequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opencrabs_llm_requests_total",
			Help: "Total provider requests, by model and outcome.",
		}, []string{"model", "status"}),
		LLMTokensUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opencrabs_llm_tokens_total",
			Help: "Total provider tokens consumed, by model and token kind (input/output/cache).",
		}, []string{"model", "kind"}),
		LLMCostUSD: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opencrabs_llm_cost_usd_total",
			Help: "Estimated provider spend in USD, by model.",
		}, []string{"model"}),

		ToolExecutionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opencrabs_tool_executions_total",
			Help: "Total tool dispatches, by tool name and outcome.",
		}, []string{"tool", "status"}),
		ToolExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opencrabs_tool_execution_duration_seconds",
			Help:    "Tool Execute() latency, by tool name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),

		ErrorCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opencrabs_errors_total",
			Help: "Total errors, by component.",
		}, []string{"component"}),

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "opencrabs_active_sessions",
			Help: "Number of sessions currently open.",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "opencrabs_session_duration_seconds",
			Help:    "Session lifetime from creation to close.",
			Buckets: []float64{1, 10, 60, 300, 900, 3600, 14400, 86400},
		}),
		ContextWindowUsed: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "opencrabs_context_window_used_tokens",
			Help: "Tokens currently held in a session's Context Store, by session.",
		}, []string{"session_id"}),
		RunAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opencrabs_run_attempts_total",
			Help: "Agent Loop Run() invocations, by terminal state.",
		}, []string{"state"}),
	}
}

// MessageReceived records an inbound message on channel.
func (m *Metrics) MessageReceived(channel string) {
	m.MessageCounter.WithLabelValues(channel, "inbound").Inc()
}

// MessageSent records an outbound message on channel.
func (m *Metrics) MessageSent(channel string) {
	m.MessageCounter.WithLabelValues(channel, "outbound").Inc()
}

// RecordLLMRequest records one provider round trip's latency and status.
func (m *Metrics) RecordLLMRequest(model, status string, duration time.Duration) {
	m.LLMRequestDuration.WithLabelValues(model, status).Observe(duration.Seconds())
	m.LLMRequestCounter.WithLabelValues(model, status).Inc()
}

// RecordLLMTokens records the input/output/cache token usage of one request.
func (m *Metrics) RecordLLMTokens(model string, input, output, cache int) {
	if input > 0 {
		m.LLMTokensUsed.WithLabelValues(model, "input").Add(float64(input))
	}
	if output > 0 {
		m.LLMTokensUsed.WithLabelValues(model, "output").Add(float64(output))
	}
	if cache > 0 {
		m.LLMTokensUsed.WithLabelValues(model, "cache").Add(float64(cache))
	}
}

// RecordLLMCost adds costUSD to the running total for model.
func (m *Metrics) RecordLLMCost(model string, costUSD float64) {
	if costUSD <= 0 {
		return
	}
	m.LLMCostUSD.WithLabelValues(model).Add(costUSD)
}

// RecordToolExecution records one dispatch's outcome and latency.
func (m *Metrics) RecordToolExecution(tool, status string, duration time.Duration) {
	m.ToolExecutionCounter.WithLabelValues(tool, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordError increments the error counter for component.
func (m *Metrics) RecordError(component string) {
	m.ErrorCounter.WithLabelValues(component).Inc()
}

// SessionStarted increments the active-session gauge.
func (m *Metrics) SessionStarted() {
	m.ActiveSessions.Inc()
}

// SessionEnded decrements the active-session gauge and records duration.
func (m *Metrics) SessionEnded(duration time.Duration) {
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(duration.Seconds())
}

// RecordContextWindow sets the current token usage gauge for a session.
func (m *Metrics) RecordContextWindow(sessionID string, tokens int) {
	m.ContextWindowUsed.WithLabelValues(sessionID).Set(float64(tokens))
}

// RecordRunAttempt records one Run() call's terminal state.
func (m *Metrics) RecordRunAttempt(state string) {
	m.RunAttempts.WithLabelValues(state).Inc()
}
