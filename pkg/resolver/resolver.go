// Package resolver sequences the image tiers: cache, then the remote origin
// behind its circuit breaker with retries, then the bundled local copy.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/williamjxj/bestitconsultants-sub001/pkg/asset"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/cache"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/circuit"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/local"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/metrics"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/origin"
)

var (
	// ErrNotFound means no tier could serve the path.
	ErrNotFound = errors.New("image not found in any tier")

	// ErrInternal means a tier failed unexpectedly. Details are logged, never returned.
	ErrInternal = errors.New("internal error")
)

// Tier names where an asset came from.
type Tier string

const (
	TierCache  Tier = "cache"
	TierRemote Tier = "remote"
	TierLocal  Tier = "local"
	TierNone   Tier = "none"
)

// Cache is the cache tier. *cache.Layered implements it.
type Cache interface {
	Get(ctx context.Context, path string) (cache.Entry, bool)
	Put(ctx context.Context, path string, a *asset.Asset, ttl time.Duration)
}

// Local is the bundled-copy tier. *local.Resolver implements it.
type Local interface {
	Resolve(ctx context.Context, path string) (*asset.Asset, error)
}

// Config holds resolver settings.
type Config struct {
	RemoteEnabled   bool
	FallbackEnabled bool

	// RemoteTimeout bounds one remote attempt
	RemoteTimeout time.Duration

	// CacheTTL is used for assets fetched from the remote tier (0 uses the cache default)
	CacheTTL time.Duration

	Retry RetryConfig
}

// DefaultConfig returns the default resolver configuration.
func DefaultConfig() Config {
	return Config{
		RemoteEnabled:   true,
		FallbackEnabled: true,
		RemoteTimeout:   5 * time.Second,
		Retry:           DefaultRetryConfig(),
	}
}

// Result is a resolved image and how it was obtained.
type Result struct {
	Asset *asset.Asset
	Tier  Tier

	// Attempts is the number of remote attempts behind the result
	Attempts int

	// Shared is true when the remote outcome was shared with concurrent requests
	Shared bool
}

// Resolver is safe for concurrent use. Build one per process.
type Resolver struct {
	cache    Cache
	remote   origin.Client
	local    Local
	recorder *metrics.Recorder
	config   Config
	group    singleflight.Group
	logger   zerolog.Logger
}

// New creates a resolver. cache, remote and local may each be nil, which
// disables that tier. remote is normally a *circuit.Breaker.
func New(c Cache, remote origin.Client, l Local, recorder *metrics.Recorder, config Config) *Resolver {
	if recorder == nil {
		recorder = metrics.NewRecorder(nil)
	}
	if config.RemoteTimeout <= 0 {
		config.RemoteTimeout = 5 * time.Second
	}
	if config.Retry.MaxRetries < 0 {
		config.Retry.MaxRetries = 0
	}
	return &Resolver{
		cache:    c,
		remote:   remote,
		local:    l,
		recorder: recorder,
		config:   config,
		logger:   log.With().Str("component", "resolver").Logger(),
	}
}

type remoteResult struct {
	asset    *asset.Asset
	attempts int
}

// Resolve returns the asset for an already validated path. The only errors
// it returns are ErrNotFound and ErrInternal.
func (r *Resolver) Resolve(ctx context.Context, path string) (Result, error) {
	logger := r.loggerFor(ctx).With().Str("path", path).Logger()

	// 1. Cache
	if r.cache != nil {
		start := time.Now()
		var entry cache.Entry
		var ok bool
		err := safely(func() error {
			entry, ok = r.cache.Get(ctx, path)
			return nil
		})
		switch {
		case err != nil:
			return r.internal(logger, TierCache, start, err)
		case ok:
			r.recorder.RecordTier(string(TierCache), metrics.OutcomeHit, time.Since(start))
			logger.Debug().Msg("Cache hit")
			return Result{Asset: entry.Asset, Tier: TierCache}, nil
		default:
			r.recorder.RecordTier(string(TierCache), metrics.OutcomeMiss, time.Since(start))
		}
	}

	// 2. Remote
	if r.remoteEnabled() {
		start := time.Now()
		res, shared, err := r.resolveRemote(ctx, path, logger)
		switch {
		case err == nil:
			r.recorder.RecordTier(string(TierRemote), metrics.OutcomeHit, time.Since(start))
			return Result{Asset: res.asset, Tier: TierRemote, Attempts: res.attempts, Shared: shared}, nil
		case errors.Is(err, errTierPanic):
			return r.internal(logger, TierRemote, start, err)
		case errors.Is(err, circuit.ErrCircuitOpen):
			r.recorder.RecordTier(string(TierRemote), metrics.OutcomeSkipped, time.Since(start))
			logger.Debug().Msg("Circuit open, skipping remote tier")
		case errors.Is(err, origin.ErrNotFound):
			r.recorder.RecordTier(string(TierRemote), metrics.OutcomeMiss, time.Since(start))
			logger.Debug().Msg("Remote tier miss")
		default:
			r.recorder.RecordTier(string(TierRemote), metrics.OutcomeError, time.Since(start))
			logger.Warn().Err(err).Str("error_class", string(origin.ClassOf(err))).Msg("Remote tier failed")
		}
	} else {
		r.recorder.RecordTier(string(TierRemote), metrics.OutcomeSkipped, 0)
	}

	// 3. Local fallback
	if r.fallbackEnabled() {
		start := time.Now()
		var a *asset.Asset
		err := safely(func() error {
			var err error
			a, err = r.local.Resolve(ctx, path)
			return err
		})
		switch {
		case err == nil:
			r.recorder.RecordTier(string(TierLocal), metrics.OutcomeHit, time.Since(start))
			logger.Debug().Msg("Served from local fallback")
			return Result{Asset: a, Tier: TierLocal}, nil
		case errors.Is(err, errTierPanic):
			return r.internal(logger, TierLocal, start, err)
		case errors.Is(err, local.ErrLocalNotFound):
			r.recorder.RecordTier(string(TierLocal), metrics.OutcomeMiss, time.Since(start))
		default:
			r.recorder.RecordTier(string(TierLocal), metrics.OutcomeError, time.Since(start))
			logger.Warn().Err(err).Msg("Local tier failed")
		}
	} else {
		r.recorder.RecordTier(string(TierLocal), metrics.OutcomeSkipped, 0)
	}

	// 4. Exhausted
	return Result{Tier: TierNone}, ErrNotFound
}

// resolveRemote coalesces concurrent fetches of path. The leader runs with a
// context detached from its caller so a caller leaving does not fail the
// others; each caller still stops waiting when its own context is done.
func (r *Resolver) resolveRemote(ctx context.Context, path string, logger zerolog.Logger) (remoteResult, bool, error) {
	ch := r.group.DoChan(path, func() (any, error) {
		leaderCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.remoteBudget())
		defer cancel()

		var res remoteResult
		err := safely(func() error {
			var err error
			res, err = r.fetchRemote(leaderCtx, path, logger)
			return err
		})
		return res, err
	})

	select {
	case out := <-ch:
		if out.Err != nil {
			return remoteResult{}, out.Shared, out.Err
		}
		return out.Val.(remoteResult), out.Shared, nil
	case <-ctx.Done():
		return remoteResult{}, false, &origin.Error{Class: origin.ErrorClassTimeout, Key: path, Err: ctx.Err()}
	}
}

func (r *Resolver) fetchRemote(ctx context.Context, path string, logger zerolog.Logger) (remoteResult, error) {
	var a *asset.Asset
	attempts, err := retryWithBackoff(ctx, r.config.Retry, logger, r.recordRetry, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, r.config.RemoteTimeout)
		defer cancel()

		var err error
		a, err = r.remote.Fetch(attemptCtx, path)
		return err
	})
	if err != nil {
		return remoteResult{attempts: attempts}, err
	}

	if r.cache != nil {
		r.cache.Put(ctx, path, a, r.config.CacheTTL)
	}
	logger.Debug().Int("attempts", attempts).Int64("size", a.Size).Msg("Fetched from remote origin")
	return remoteResult{asset: a, attempts: attempts}, nil
}

func (r *Resolver) recordRetry(class origin.ErrorClass) {
	r.recorder.RecordRetry(string(class))
}

// remoteBudget bounds the whole retry loop of a leader.
func (r *Resolver) remoteBudget() time.Duration {
	budget := time.Duration(r.config.Retry.MaxRetries+1) * r.config.RemoteTimeout
	for i := 0; i < r.config.Retry.MaxRetries; i++ {
		// Upper jitter bound
		budget += r.config.Retry.Backoff(i) * 6 / 5
	}
	return budget
}

func (r *Resolver) remoteEnabled() bool {
	return r.config.RemoteEnabled && r.remote != nil
}

func (r *Resolver) fallbackEnabled() bool {
	return r.config.FallbackEnabled && r.local != nil
}

func (r *Resolver) internal(logger zerolog.Logger, tier Tier, start time.Time, err error) (Result, error) {
	r.recorder.RecordTier(string(tier), metrics.OutcomeError, time.Since(start))
	logger.Error().Err(err).Str("tier", string(tier)).Msg("Unexpected tier failure")
	return Result{Tier: TierNone}, ErrInternal
}

// loggerFor prefers the request logger carried by ctx, which holds the request id.
func (r *Resolver) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &r.logger
}

var errTierPanic = errors.New("tier panicked")

// safely runs fn and converts a panic into an error wrapping errTierPanic.
func safely(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v\n%s", errTierPanic, p, debug.Stack())
		}
	}()
	return fn()
}
