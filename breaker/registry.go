// Copyright 2025 Support Center Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package breaker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Registry holds breakers keyed by dependency name. Breakers are global
// per name: two workload categories calling the same dependency share one
// breaker instance and observe the same health state.
//
// A Registry is an explicit handle, not process-global state; tests
// construct isolated instances.
type Registry struct {
	defaults Config
	now      func() time.Time
	logger   *slog.Logger

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithDefaults sets the config applied to breakers created lazily by name.
func WithDefaults(cfg Config) RegistryOption {
	return func(r *Registry) {
		r.defaults = cfg.withDefaults()
	}
}

// WithRegistryClock overrides the time source for all breakers the
// registry creates.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRegistryLogger sets a custom logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty breaker registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		defaults: DefaultConfig(),
		now:      time.Now,
		logger:   slog.Default().With("component", "breaker-registry"),
		breakers: make(map[string]*Breaker),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Configure creates (or replaces) the breaker for name with explicit
// thresholds. Call before any work is submitted; replacing a breaker
// discards its accumulated state.
func (r *Registry) Configure(name string, cfg Config) *Breaker {
	b := New(name, cfg, WithClock(r.now), WithLogger(r.logger.With("dependency", name)))
	r.mu.Lock()
	r.breakers[name] = b
	r.mu.Unlock()
	return b
}

// Get returns the breaker for name, creating it with the registry
// defaults on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b = New(name, r.defaults, WithClock(r.now), WithLogger(r.logger.With("dependency", name)))
	r.breakers[name] = b
	return b
}

// Do routes fn through the breaker registered for name. This is the
// sanctioned call path for job code invoking a guarded external
// dependency.
func (r *Registry) Do(ctx context.Context, name string, fn func(ctx context.Context) (any, error)) (any, error) {
	return r.Get(name).Do(ctx, fn)
}

// Snapshots returns the current stats of every registered breaker.
func (r *Registry) Snapshots() []Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Stats, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Snapshot())
	}
	return out
}
