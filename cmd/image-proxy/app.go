package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/williamjxj/bestitconsultants-sub001/pkg/cache"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/circuit"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/config"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/local"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/metrics"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/origin"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/pathvalidate"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/proxy"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/resolver"
)

// app holds the process-lifetime components built from one Config.
type app struct {
	config   config.Config
	handler  *proxy.Handler
	recorder *metrics.Recorder
	store    *cache.Store
	cache    *cache.Layered
	breaker  *circuit.Breaker
	redis    *redis.Client
}

// newApp wires every tier. Collectors are registered on reg and served from gatherer.
func newApp(ctx context.Context, cfg config.Config, reg prometheus.Registerer, gatherer prometheus.Gatherer) (*app, error) {
	a := &app{config: cfg, recorder: metrics.NewRecorder(reg)}

	cacheMetrics := cache.NewMetrics(reg)
	a.store = cache.NewStore(cache.Config{
		MaxBytes:        cfg.Cache.MaxBytes,
		TTL:             cfg.Cache.TTL,
		Shards:          cfg.Cache.Shards,
		CleanupInterval: cfg.Cache.CleanupInterval,
		Metrics:         cacheMetrics,
	})

	var shared *cache.RedisStore
	if cfg.Cache.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.redis = redis.NewClient(opts)
		shared = cache.NewRedisStore(a.redis, cfg.Cache.Namespace, cacheMetrics)

		pingCtx, cancel := context.WithTimeout(ctx, cfg.Cache.Timeout)
		if err := shared.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Str("addr", opts.Addr).Msg("Shared cache unreachable, continuing with memory cache")
		} else {
			log.Info().Str("addr", opts.Addr).Msg("Connected to shared cache")
		}
		cancel()
	}
	a.cache = cache.NewLayered(a.store, shared, cfg.Cache.Timeout)

	var remote origin.Client
	if cfg.Remote.Enabled {
		client, err := origin.New(ctx, origin.Config{
			Driver:         cfg.Origin.Driver,
			Timeout:        cfg.Remote.Timeout,
			MaxObjectBytes: cfg.Origin.MaxObjectBytes,
			BaseURL:        cfg.Origin.BaseURL,
			UserAgent:      cfg.Origin.UserAgent,
			Bucket:         cfg.Origin.Bucket,
			Prefix:         cfg.Origin.Prefix,
			Region:         cfg.Origin.Region,
			Endpoint:       cfg.Origin.Endpoint,
			AccessKey:      cfg.Origin.AccessKey,
			SecretKey:      cfg.Origin.SecretKey,
			UseSSL:         cfg.Origin.UseSSL,
			PathStyle:      cfg.Origin.PathStyle,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create origin client: %w", err)
		}

		a.breaker = circuit.New(client, circuit.Config{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			Cooldown:         cfg.Breaker.Cooldown,
			Window:           cfg.Breaker.Window,
			OnStateChange:    a.onBreakerChange,
		})
		remote = a.breaker
	}

	var fallback resolver.Local
	if cfg.Fallback.Enabled {
		l, err := local.New(local.Config{
			Root:     cfg.Fallback.Root,
			Timeout:  cfg.Fallback.Timeout,
			MaxBytes: cfg.Origin.MaxObjectBytes,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create local resolver: %w", err)
		}
		fallback = l
	}

	res := resolver.New(a.cache, remote, fallback, a.recorder, resolver.Config{
		RemoteEnabled:   cfg.Remote.Enabled,
		FallbackEnabled: cfg.Fallback.Enabled,
		RemoteTimeout:   cfg.Remote.Timeout,
		CacheTTL:        cfg.Cache.TTL,
		Retry: resolver.RetryConfig{
			MaxRetries: cfg.Retry.MaxRetries,
			Base:       cfg.Retry.Base,
			MaxBackoff: cfg.Retry.MaxBackoff,
			Jitter:     cfg.Retry.Jitter,
		},
	})

	validator := pathvalidate.New(pathvalidate.Config{
		MaxLength:         cfg.Paths.MaxLength,
		AllowedExtensions: cfg.Paths.AllowedExtensions,
	})

	a.handler = proxy.New(validator, res, a.recorder, a.cache, proxy.Config{AdminToken: cfg.Server.AdminToken})
	a.handler.Handle("/health", http.HandlerFunc(healthHandler))
	a.handler.Handle("/ready", http.HandlerFunc(a.readyHandler))
	a.handler.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return a, nil
}

func (a *app) onBreakerChange(from, to circuit.State) {
	log.Warn().
		Str("component", "circuit").
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Circuit breaker state changed")
	a.recorder.RecordCircuitState(int(to), to.String())
}

// Close releases the cache janitor and the Redis connection.
func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

type readyResponse struct {
	Status   string           `json:"status"`
	Circuit  string           `json:"circuit"`
	Cache    cache.Stats      `json:"cache"`
	Metrics  metrics.Snapshot `json:"metrics"`
	Checked  time.Time        `json:"checked_at"`
	Breaker  *circuit.Counts  `json:"breaker,omitempty"`
	Fallback bool             `json:"fallback_enabled"`
}

// readyHandler reports 503 only when no tier beyond the cache can serve:
// the breaker is open and the local fallback is disabled.
func (a *app) readyHandler(w http.ResponseWriter, r *http.Request) {
	resp := readyResponse{
		Status:   "ready",
		Circuit:  "disabled",
		Cache:    a.cache.Stats(),
		Metrics:  a.recorder.Snapshot(),
		Checked:  time.Now().UTC(),
		Fallback: a.config.Fallback.Enabled,
	}

	status := http.StatusOK
	if a.breaker != nil {
		state := a.breaker.State()
		counts := a.breaker.Counts()
		resp.Circuit = state.String()
		resp.Breaker = &counts
		if state == circuit.StateOpen {
			resp.Status = "degraded"
			if !a.config.Fallback.Enabled {
				resp.Status = "unavailable"
				status = http.StatusServiceUnavailable
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Debug().Err(err).Msg("Failed to write readiness response")
	}
}
