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
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the circuit breaker state.
type State int

const (
	// StateClosed lets calls pass through while counting consecutive failures.
	StateClosed State = iota
	// StateOpen fails every call fast without invoking the dependency.
	StateOpen
	// StateHalfOpen lets trial calls through while counting consecutive successes.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen indicates the breaker rejected a call without invoking the
// guarded dependency. Rejections never count toward the breaker's own
// failure counter, since the dependency was never reached.
var ErrOpen = errors.New("circuit breaker is open")

// OpenError is the concrete error returned for rejected calls.
// It unwraps to ErrOpen and names the dependency, so callers can tell a
// fast-fail apart from a real dependency failure and back off voluntarily.
type OpenError struct {
	Name string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open", e.Name)
}

func (e *OpenError) Unwrap() error { return ErrOpen }

// Config holds the thresholds for one breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures in Closed
	// state that opens the breaker.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive successes in HalfOpen
	// state that closes the breaker.
	SuccessThreshold int

	// RecoveryTimeout is how long the breaker stays Open before the next
	// call is allowed through as a half-open trial.
	RecoveryTimeout time.Duration
}

// DefaultConfig returns the thresholds used when a breaker is created
// lazily by name.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		RecoveryTimeout:  30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = d.RecoveryTimeout
	}
	return c
}

// Breaker is a circuit breaker guarding one named external dependency.
// It is safe for concurrent use by workers across multiple categories.
type Breaker struct {
	name   string
	cfg    Config
	now    func() time.Time
	logger *slog.Logger

	mu                   sync.Mutex
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	openedAt             time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock overrides the breaker's time source. Used in tests to drive
// the recovery timeout deterministically.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Breaker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a breaker for the named dependency. Zero-valued config
// fields fall back to DefaultConfig.
func New(name string, cfg Config, opts ...Option) *Breaker {
	b := &Breaker{
		name:   name,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
		state:  StateClosed,
		logger: slog.Default().With("component", "breaker", "dependency", name),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the dependency name this breaker guards.
func (b *Breaker) Name() string { return b.name }

// Do invokes fn under the breaker. When the breaker is Open and the
// recovery timeout has not elapsed, fn is never invoked and Do returns an
// *OpenError. Otherwise the outcome of fn updates the breaker state.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}

	value, err := fn(ctx)
	if err != nil {
		b.recordFailure()
		return nil, err
	}

	b.recordSuccess()
	return value, nil
}

// allow checks whether a call may proceed, performing the Open→HalfOpen
// transition when the recovery timeout has elapsed. The transition happens
// before the trial call executes.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cfg.RecoveryTimeout {
			b.transition(StateHalfOpen)
			b.consecutiveSuccesses = 0
			return nil
		}
		return &OpenError{Name: b.name}
	default:
		return &OpenError{Name: b.name}
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.open()
		}
	case StateHalfOpen:
		// A single trial failure sends the breaker straight back to Open.
		b.open()
	case StateOpen:
		// An in-flight call that started before the breaker opened just
		// finished. Refresh the recovery window.
		b.openedAt = b.now()
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.consecutiveFailures = 0
	case StateHalfOpen:
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
			b.consecutiveFailures = 0
			b.consecutiveSuccesses = 0
		}
	case StateOpen:
		// Stale success from a call that raced the opening; ignored.
	}
}

// open must be called with b.mu held.
func (b *Breaker) open() {
	b.transition(StateOpen)
	b.openedAt = b.now()
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	b.logger.Info("breaker state change", "from", b.state.String(), "to", to.String())
	b.state = to
}

// State returns the current state. It is a pure observation: an Open
// breaker whose recovery timeout has elapsed still reports Open until the
// next call performs the half-open transition.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats is a point-in-time snapshot of one breaker.
type Stats struct {
	Name                 string
	State                State
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	OpenedAt             time.Time
}

// Snapshot returns the breaker's current counters and state.
func (b *Breaker) Snapshot() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Name:                 b.name,
		State:                b.state,
		ConsecutiveFailures:  b.consecutiveFailures,
		ConsecutiveSuccesses: b.consecutiveSuccesses,
		OpenedAt:             b.openedAt,
	}
}
