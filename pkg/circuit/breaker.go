// Package circuit guards the remote origin with a failure-driven circuit breaker.
package circuit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/williamjxj/bestitconsultants-sub001/pkg/asset"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/origin"
)

// ErrCircuitOpen is returned without contacting the origin while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	// StateClosed - requests pass through
	StateClosed State = iota
	// StateOpen - requests are rejected
	StateOpen
	// StateHalfOpen - a single probe is in flight
	StateHalfOpen
)

// String returns string representation of state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config contains circuit breaker configuration
type Config struct {
	// Consecutive failures that trip the breaker
	FailureThreshold int

	// Time the breaker stays open before one probe is let through
	Cooldown time.Duration

	// Failures older than this no longer count towards the threshold (0 disables)
	Window time.Duration

	// Function called when state changes, outside the breaker lock
	OnStateChange func(from State, to State) `yaml:"-"`

	// Function to determine if an error should be counted as a failure
	IsFailure func(err error) bool `yaml:"-"`

	// Clock, overridable in tests
	Now func() time.Time `yaml:"-"`
}

// DefaultConfig returns the default breaker configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		Window:           60 * time.Second,
	}
}

// Counts is a snapshot of breaker bookkeeping.
type Counts struct {
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalFailures       uint64    `json:"total_failures"`
	TotalSuccesses      uint64    `json:"total_successes"`
	Rejected            uint64    `json:"rejected"`
	OpenedAt            time.Time `json:"opened_at"`
}

// Breaker wraps an origin.Client. It is itself an origin.Client.
type Breaker struct {
	next   origin.Client
	config Config

	mu           sync.Mutex
	state        State
	failures     int
	firstFailure time.Time
	openedAt     time.Time
	counts       Counts
}

// New creates a breaker in the closed state.
func New(next origin.Client, config Config) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}
	if config.IsFailure == nil {
		config.IsFailure = defaultIsFailure
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Breaker{
		next:   next,
		config: config,
		state:  StateClosed,
	}
}

// defaultIsFailure counts origin trouble only. A not-found answer proves the
// origin is healthy, and a caller giving up is not the origin's fault.
func defaultIsFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, origin.ErrNotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) && !errors.Is(err, origin.ErrTimeout) {
		return false
	}
	return true
}

// Fetch implements origin.Client.
func (b *Breaker) Fetch(ctx context.Context, key string) (*asset.Asset, error) {
	return b.Call(ctx, key)
}

// Call fails fast with ErrCircuitOpen while open; otherwise it delegates to
// the wrapped client and records the outcome.
func (b *Breaker) Call(ctx context.Context, key string) (*asset.Asset, error) {
	probe, err := b.beforeRequest()
	if err != nil {
		return nil, err
	}

	a, err := b.next.Fetch(ctx, key)
	b.afterRequest(probe, err)
	return a, err
}

// beforeRequest decides whether the call may proceed. The first caller after
// the cooldown becomes the probe and moves the breaker to half-open.
func (b *Breaker) beforeRequest() (bool, error) {
	b.mu.Lock()

	switch b.state {
	case StateOpen:
		if b.config.Now().Sub(b.openedAt) < b.config.Cooldown {
			b.counts.Rejected++
			b.mu.Unlock()
			return false, ErrCircuitOpen
		}
		notify := b.setState(StateHalfOpen)
		b.mu.Unlock()
		notify()
		return true, nil
	case StateHalfOpen:
		b.counts.Rejected++
		b.mu.Unlock()
		return false, ErrCircuitOpen
	}

	b.mu.Unlock()
	return false, nil
}

func (b *Breaker) afterRequest(probe bool, err error) {
	b.mu.Lock()
	now := b.config.Now()
	notify := func() {}

	// An abandoned probe proves nothing; reopen so the next caller probes again.
	if probe && b.state == StateHalfOpen && err != nil && errors.Is(err, context.Canceled) {
		notify = b.setState(StateOpen)
		b.mu.Unlock()
		notify()
		return
	}

	if !b.config.IsFailure(err) {
		b.counts.TotalSuccesses++
		b.failures = 0
		b.firstFailure = time.Time{}
		if probe && b.state == StateHalfOpen {
			notify = b.setState(StateClosed)
		}
		b.mu.Unlock()
		notify()
		return
	}

	b.counts.TotalFailures++
	switch {
	case probe && b.state == StateHalfOpen:
		b.openedAt = now
		notify = b.setState(StateOpen)
	case b.state == StateClosed:
		if b.failures == 0 || (b.config.Window > 0 && now.Sub(b.firstFailure) > b.config.Window) {
			b.failures = 0
			b.firstFailure = now
		}
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.openedAt = now
			notify = b.setState(StateOpen)
		}
	}
	b.mu.Unlock()
	notify()
}

// setState changes state under the lock and returns the hook call to run after unlocking.
func (b *Breaker) setState(state State) func() {
	prev := b.state
	if prev == state {
		return func() {}
	}

	b.state = state
	switch state {
	case StateClosed:
		b.failures = 0
		b.firstFailure = time.Time{}
		b.openedAt = time.Time{}
	case StateOpen:
		b.failures = 0
		b.firstFailure = time.Time{}
	}

	if b.config.OnStateChange == nil {
		return func() {}
	}
	hook := b.config.OnStateChange
	return func() { hook(prev, state) }
}

// State returns the current state. An open breaker whose cooldown has
// elapsed still reports open until the next call probes it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Counts returns a copy of the current counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.counts
	c.ConsecutiveFailures = b.failures
	c.OpenedAt = b.openedAt
	return c
}

// Reset returns the breaker to closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	notify := b.setState(StateClosed)
	b.failures = 0
	b.firstFailure = time.Time{}
	b.mu.Unlock()
	notify()
}
