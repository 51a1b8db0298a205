package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/williamjxj/bestitconsultants-sub001/pkg/asset"
	"github.com/williamjxj/bestitconsultants-sub001/pkg/origin"
)

// FakeOrigin is an in-process origin.Client with scripted answers.
//
// Answers are taken from the per-key script first (one per call, the last
// one repeating), then from Objects, and finally default to not found.
type FakeOrigin struct {
	mu      sync.Mutex
	objects map[string]*asset.Asset
	scripts map[string][]error
	failAll error
	delay   time.Duration
	gate    chan struct{}

	calls atomic.Int64
}

// NewFakeOrigin creates an empty fake origin.
func NewFakeOrigin() *FakeOrigin {
	return &FakeOrigin{
		objects: make(map[string]*asset.Asset),
		scripts: make(map[string][]error),
	}
}

// Put stores an object that Fetch will return.
func (f *FakeOrigin) Put(key string, a *asset.Asset) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = a
}

// Script queues errors for key; a nil entry means "answer normally".
func (f *FakeOrigin) Script(key string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[key] = append(f.scripts[key], errs...)
}

// FailAll makes every call fail with err until called again with nil.
func (f *FakeOrigin) FailAll(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAll = err
}

// SetDelay makes every call take d (or until ctx is done).
func (f *FakeOrigin) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// Hold blocks every Fetch until Release is called.
func (f *FakeOrigin) Hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
}

// Release unblocks fetches held by Hold.
func (f *FakeOrigin) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// Calls returns the number of Fetch calls so far.
func (f *FakeOrigin) Calls() int {
	return int(f.calls.Load())
}

// Fetch implements origin.Client.
func (f *FakeOrigin) Fetch(ctx context.Context, key string) (*asset.Asset, error) {
	f.calls.Add(1)

	f.mu.Lock()
	gate := f.gate
	delay := f.delay
	failAll := f.failAll
	var scripted error
	hasScript := false
	if queue := f.scripts[key]; len(queue) > 0 {
		scripted, hasScript = queue[0], true
		if len(queue) > 1 {
			f.scripts[key] = queue[1:]
		}
	}
	obj := f.objects[key]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &origin.Error{Class: origin.ErrorClassTimeout, Key: key, Err: ctx.Err()}
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &origin.Error{Class: origin.ErrorClassTimeout, Key: key, Err: ctx.Err()}
		}
	}

	if failAll != nil {
		return nil, failAll
	}
	if hasScript && scripted != nil {
		return nil, scripted
	}
	if obj == nil {
		return nil, &origin.Error{Class: origin.ErrorClassNotFound, Key: key, StatusCode: 404}
	}
	return obj, nil
}

// OriginError builds an origin error of the given class for tests.
func OriginError(class origin.ErrorClass) error {
	return &origin.Error{Class: class, Key: "test"}
}
