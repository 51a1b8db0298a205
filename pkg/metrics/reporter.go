package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultReportInterval is used when Reporter is given a non-positive interval.
const DefaultReportInterval = time.Minute

// Reporter periodically logs a Snapshot.
type Reporter struct {
	recorder *Recorder
	interval time.Duration
	logger   zerolog.Logger
}

// NewReporter creates a reporter for recorder.
func NewReporter(recorder *Recorder, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	return &Reporter{
		recorder: recorder,
		interval: interval,
		logger:   log.With().Str("component", "metrics").Logger(),
	}
}

// Run logs a snapshot every interval until ctx is done, then logs a final one.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Report()
			return
		case <-ticker.C:
			r.Report()
		}
	}
}

// Report logs the current snapshot once.
func (r *Reporter) Report() {
	snap := r.recorder.Snapshot()

	event := r.logger.Info().
		Int64("requests", snap.Requests).
		Float64("cache_hit_rate", snap.CacheHitRate).
		Float64("error_rate", snap.ErrorRate).
		Dur("uptime", snap.Uptime)

	tiers := zerolog.Dict()
	for name, ts := range snap.Tiers {
		tiers.Dict(name, zerolog.Dict().
			Int64("hits", ts.Hits).
			Int64("misses", ts.Misses).
			Int64("errors", ts.Errors).
			Dur("p50", ts.P50).
			Dur("p95", ts.P95))
	}

	event.Dict("tiers", tiers).Msg("Image resolution metrics")
}
