package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome is the result of consulting one tier.
type Outcome string

const (
	OutcomeHit     Outcome = "hit"
	OutcomeMiss    Outcome = "miss"
	OutcomeError   Outcome = "error"
	OutcomeSkipped Outcome = "skipped"
)

// DefaultSampleSize is the number of latency samples kept per tier.
const DefaultSampleSize = 1024

// Recorder is safe for concurrent use.
type Recorder struct {
	tierRequests    *prometheus.CounterVec
	tierDuration    *prometheus.HistogramVec
	requests        *prometheus.CounterVec
	requestDuration prometheus.Histogram
	retries         *prometheus.CounterVec
	circuitState    prometheus.Gauge
	transitions     *prometheus.CounterVec

	sampleSize int

	mu       sync.Mutex
	tiers    map[string]*tierStats
	total    int64
	failed   int64
	started  time.Time
	lastSeen time.Time
}

type tierStats struct {
	hits    int64
	misses  int64
	errors  int64
	skipped int64
	samples []time.Duration
	next    int
}

// NewRecorder registers the collectors on reg. A nil reg uses a private
// registry, which keeps tests independent of each other.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Recorder{
		tierRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgproxy_tier_requests_total",
				Help: "Tier lookups by tier and outcome",
			},
			[]string{"tier", "outcome"},
		),
		tierDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "imgproxy_tier_duration_seconds",
				Help:    "Tier lookup latency",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .2, .5, 1, 2.5, 5},
			},
			[]string{"tier"},
		),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgproxy_requests_total",
				Help: "HTTP responses by serving tier and status",
			},
			[]string{"tier", "status"},
		),
		requestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "imgproxy_request_duration_seconds",
				Help:    "End-to-end request latency",
				Buckets: []float64{.005, .01, .025, .05, .1, .2, .5, 1, 2.5, 5, 10},
			},
		),
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgproxy_retries_total",
				Help: "Remote retry attempts by error class",
			},
			[]string{"error_class"},
		),
		circuitState: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "imgproxy_circuit_state",
				Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
			},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgproxy_circuit_transitions_total",
				Help: "Circuit breaker state changes by target state",
			},
			[]string{"to"},
		),
		sampleSize: DefaultSampleSize,
		tiers:      make(map[string]*tierStats),
		started:    time.Now(),
	}
}

// RecordTier records one tier lookup.
func (r *Recorder) RecordTier(tier string, outcome Outcome, d time.Duration) {
	r.tierRequests.WithLabelValues(tier, string(outcome)).Inc()
	if outcome != OutcomeSkipped {
		r.tierDuration.WithLabelValues(tier).Observe(d.Seconds())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.tier(tier)
	switch outcome {
	case OutcomeHit:
		ts.hits++
	case OutcomeMiss:
		ts.misses++
	case OutcomeError:
		ts.errors++
	case OutcomeSkipped:
		ts.skipped++
		return
	}

	if len(ts.samples) < r.sampleSize {
		ts.samples = append(ts.samples, d)
	} else {
		ts.samples[ts.next] = d
		ts.next = (ts.next + 1) % r.sampleSize
	}
}

// RecordRequest records one finished HTTP request. Statuses of 500 and
// above count towards the error rate.
func (r *Recorder) RecordRequest(tier string, status int, d time.Duration) {
	r.requests.WithLabelValues(tier, statusLabel(status)).Inc()
	r.requestDuration.Observe(d.Seconds())

	r.mu.Lock()
	r.total++
	if status >= 500 {
		r.failed++
	}
	r.lastSeen = time.Now()
	r.mu.Unlock()
}

// RecordRetry records one retry of the remote tier.
func (r *Recorder) RecordRetry(errorClass string) {
	r.retries.WithLabelValues(errorClass).Inc()
}

// RecordCircuitState records a breaker transition. state is 0 closed,
// 1 open or 2 half-open; name labels the transition counter.
func (r *Recorder) RecordCircuitState(state int, name string) {
	r.circuitState.Set(float64(state))
	r.transitions.WithLabelValues(name).Inc()
}

func (r *Recorder) tier(name string) *tierStats {
	ts, ok := r.tiers[name]
	if !ok {
		ts = &tierStats{samples: make([]time.Duration, 0, 64)}
		r.tiers[name] = ts
	}
	return ts
}

// TierSnapshot summarizes one tier.
type TierSnapshot struct {
	Hits    int64         `json:"hits"`
	Misses  int64         `json:"misses"`
	Errors  int64         `json:"errors"`
	Skipped int64         `json:"skipped"`
	P50     time.Duration `json:"p50"`
	P95     time.Duration `json:"p95"`
}

// Snapshot is a point-in-time copy of the recorder's counters.
type Snapshot struct {
	Tiers        map[string]TierSnapshot `json:"tiers"`
	Requests     int64                   `json:"requests"`
	Failed       int64                   `json:"failed"`
	CacheHitRate float64                 `json:"cache_hit_rate"`
	ErrorRate    float64                 `json:"error_rate"`
	Uptime       time.Duration           `json:"uptime"`
}

// Snapshot copies the current counters. Percentiles are computed over the
// most recent DefaultSampleSize lookups of each tier.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		Tiers:    make(map[string]TierSnapshot, len(r.tiers)),
		Requests: r.total,
		Failed:   r.failed,
		Uptime:   time.Since(r.started),
	}

	for name, ts := range r.tiers {
		sorted := make([]time.Duration, len(ts.samples))
		copy(sorted, ts.samples)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		snap.Tiers[name] = TierSnapshot{
			Hits:    ts.hits,
			Misses:  ts.misses,
			Errors:  ts.errors,
			Skipped: ts.skipped,
			P50:     percentile(sorted, 0.50),
			P95:     percentile(sorted, 0.95),
		}
	}

	if c, ok := snap.Tiers["cache"]; ok {
		if lookups := c.Hits + c.Misses + c.Errors; lookups > 0 {
			snap.CacheHitRate = float64(c.Hits) / float64(lookups)
		}
	}
	if snap.Requests > 0 {
		snap.ErrorRate = float64(snap.Failed) / float64(snap.Requests)
	}

	return snap
}

// percentile uses the nearest-rank method on sorted samples.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(p*float64(len(sorted))+0.5) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
