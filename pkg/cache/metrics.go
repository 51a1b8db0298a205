package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the cache collectors shared by the memory and Redis layers.
type Metrics struct {
	// Hits tracks cache hits by layer (memory, redis)
	Hits *prometheus.CounterVec

	// Misses tracks cache misses by layer
	Misses *prometheus.CounterVec

	// Evictions tracks LRU evictions and expiry removals
	Evictions *prometheus.CounterVec // reason: "lru", "expired"

	// Size tracks cached bytes by layer
	Size *prometheus.GaugeVec

	// Errors tracks shared cache operation errors
	Errors *prometheus.CounterVec // operation: "get", "set", "delete"
}

// NewMetrics registers the cache collectors on reg. A nil reg uses a private
// registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		Hits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgproxy_cache_hits_total",
				Help: "Total number of image cache hits",
			},
			[]string{"layer"},
		),
		Misses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgproxy_cache_misses_total",
				Help: "Total number of image cache misses",
			},
			[]string{"layer"},
		),
		Evictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgproxy_cache_evictions_total",
				Help: "Total number of entries removed from the memory cache",
			},
			[]string{"reason"},
		),
		Size: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "imgproxy_cache_size_bytes",
				Help: "Current size of the image cache in bytes",
			},
			[]string{"layer"},
		),
		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgproxy_cache_errors_total",
				Help: "Total number of cache operation errors",
			},
			[]string{"operation"},
		),
	}
}
