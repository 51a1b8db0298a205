// Package metrics records per-tier outcomes of image resolution.
//
// A Recorder feeds two sinks: Prometheus collectors registered on the
// Registerer it is built with, and an in-process Snapshot used by the
// periodic Reporter and the readiness endpoint.
//
// Prometheus metrics:
//   - imgproxy_tier_requests_total{tier, outcome} (Counter): Tier lookups by outcome
//   - imgproxy_tier_duration_seconds{tier} (Histogram): Tier lookup latency
//   - imgproxy_requests_total{tier, status} (Counter): HTTP responses by serving tier and status
//   - imgproxy_request_duration_seconds (Histogram): End-to-end request latency
//   - imgproxy_retries_total{error_class} (Counter): Remote retry attempts by error class
//   - imgproxy_circuit_state (Gauge): 0 closed, 1 open, 2 half-open
//   - imgproxy_circuit_transitions_total{to} (Counter): Breaker state changes
//
// Cache store metrics (imgproxy_cache_*) are defined in pkg/cache.
//
// Example Prometheus Queries:
//
//	# Cache Hit Rate
//	sum(rate(imgproxy_tier_requests_total{tier="cache",outcome="hit"}[5m])) /
//	sum(rate(imgproxy_tier_requests_total{tier="cache"}[5m]))
//
//	# P95 Request Latency
//	histogram_quantile(0.95, rate(imgproxy_request_duration_seconds_bucket[5m]))
//
//	# Local Fallback Rate
//	rate(imgproxy_requests_total{tier="local"}[5m]) / rate(imgproxy_requests_total[5m])
package metrics
