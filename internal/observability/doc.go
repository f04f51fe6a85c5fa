// Package observability exposes the Agent Loop and Channel Router's runtime
// behavior as Prometheus metrics.
//
// # Scope
//
// A single-operator terminal agent has no HTTP surface, no multi-tenant
// control plane, and one process per run — so this package carries only the
// metric surface the Agent Loop (internal/agent) and Channel Router
// (internal/channels) can actually feed it: message throughput per channel,
// LLM request latency/count/token/cost, tool-execution outcomes, error
// counts per component, and session/context-window gauges. Structured
// logging is handled separately, by log/slog directly (see
// internal/channels/utils.EnsureLogger) rather than by a wrapper in this
// package.
//
// # Usage
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(reg)
//
//	loop := &agent.Loop{ /* ... */, Metrics: metrics}
//	router := &channels.Router{ /* ... */, Metrics: metrics}
//
// NewMetrics takes a prometheus.Registerer explicitly rather than
// registering against the global default registry, so tests (and a future
// process that wants several independently-scraped registries) can isolate
// metric state per instance.
//
// # Naming
//
// Every metric is registered under the opencrabs_ prefix, e.g.
// opencrabs_messages_total, opencrabs_llm_request_duration_seconds,
// opencrabs_tool_executions_total, opencrabs_active_sessions. A metrics
// endpoint exposing this registry (promhttp.HandlerFor(reg, ...)) is left to
// the process embedding this package — it's outside this package's own
// scope, same as the HTTP server that would host it.
package observability
