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


package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oripridan-dot/support-center/breaker"
	"github.com/oripridan-dot/support-center/core"
	"github.com/oripridan-dot/support-center/storage"
	"github.com/panjf2000/ants/v2"
)

const (
	defaultDequeueWait = 250 * time.Millisecond
)

// defaultWorkers is the per-category worker count when not overridden.
// Interactive work gets its own capacity precisely so bulk floods cannot
// delay it.
var defaultWorkers = map[core.Category]int{
	core.CategoryInteractiveQuery: 4,
	core.CategoryScraping:         4,
	core.CategoryEmbedding:        4,
	core.CategoryBatchBulk:        2,
	core.CategoryMaintenance:      1,
}

// defaultTimeouts is the per-category execution timeout when not
// overridden. A timeout is handled exactly like any other failure and
// flows through the retry policy.
var defaultTimeouts = map[core.Category]time.Duration{
	core.CategoryInteractiveQuery: 30 * time.Second,
	core.CategoryScraping:         2 * time.Minute,
	core.CategoryEmbedding:        2 * time.Minute,
	core.CategoryBatchBulk:        10 * time.Minute,
	core.CategoryMaintenance:      10 * time.Minute,
}

// Orchestrator owns all category pools and named circuit breakers and is
// the single entry point callers use. It is an explicit handle: tests
// construct isolated instances rather than sharing process globals.
type Orchestrator struct {
	queues   map[core.Category]*taskQueue
	pools    map[core.Category]*categoryPool
	counters map[core.Category]*categoryCounters

	breakers *breaker.Registry
	exec     *ants.Pool
	clock    Clock
	logger   *slog.Logger
	archive  storage.TaskArchive // optional; nil disables archiving

	schedule Schedule // default retry schedule

	mu    sync.RWMutex
	tasks map[core.TaskID]*task

	timersMu sync.Mutex
	timers   map[core.TaskID]Timer

	closed atomic.Bool

	// construction-time knobs, consumed by New
	workers     map[core.Category]int
	timeouts    map[core.Category]time.Duration
	dequeueWait time.Duration
	execSize    int
}

// Option configures an Orchestrator before its pools start.
type Option func(*Orchestrator) error

// WithWorkers overrides the worker count for one category.
func WithWorkers(c core.Category, n int) Option {
	return func(o *Orchestrator) error {
		if err := core.ValidateCategory(c); err != nil {
			return err
		}
		if n < 1 {
			n = 1
		}
		o.workers[c] = n
		return nil
	}
}

// WithTimeout overrides the execution timeout for one category.
func WithTimeout(c core.Category, d time.Duration) Option {
	return func(o *Orchestrator) error {
		if err := core.ValidateCategory(c); err != nil {
			return err
		}
		if d <= 0 {
			return fmt.Errorf("timeout for %s must be positive", c)
		}
		o.timeouts[c] = d
		return nil
	}
}

// WithExecutionPoolSize bounds the shared secondary execution pool. The
// default is twice the total worker count, leaving room for attempts that
// outlive their timeout.
func WithExecutionPoolSize(n int) Option {
	return func(o *Orchestrator) error {
		if n < 1 {
			n = 1
		}
		o.execSize = n
		return nil
	}
}

// WithClock overrides the time source used for retry timers and timing.
func WithClock(clock Clock) Option {
	return func(o *Orchestrator) error {
		if clock != nil {
			o.clock = clock
		}
		return nil
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger != nil {
			o.logger = logger
		}
		return nil
	}
}

// WithBreakerRegistry supplies a pre-configured breaker registry, for
// callers that tune thresholds per dependency.
func WithBreakerRegistry(r *breaker.Registry) Option {
	return func(o *Orchestrator) error {
		if r != nil {
			o.breakers = r
		}
		return nil
	}
}

// WithArchive persists finished task records to the given archive, where
// they stay queryable (under the archive's retention) after the live
// entry is evicted.
func WithArchive(archive storage.TaskArchive) Option {
	return func(o *Orchestrator) error {
		o.archive = archive
		return nil
	}
}

// WithDefaultSchedule sets the retry schedule used when a submission does
// not carry one.
func WithDefaultSchedule(s Schedule) Option {
	return func(o *Orchestrator) error {
		if s != nil {
			o.schedule = s
		}
		return nil
	}
}

// WithDequeueWait bounds how long an idle worker waits on its queue
// before re-running its liveness check. Tests shorten it.
func WithDequeueWait(d time.Duration) Option {
	return func(o *Orchestrator) error {
		if d > 0 {
			o.dequeueWait = d
		}
		return nil
	}
}

// New creates an orchestrator with one fixed-size pool per category and
// starts its workers.
func New(opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		queues:      make(map[core.Category]*taskQueue),
		pools:       make(map[core.Category]*categoryPool),
		counters:    make(map[core.Category]*categoryCounters),
		breakers:    breaker.NewRegistry(),
		clock:       realClock{},
		logger:      slog.Default().With("component", "orchestrator"),
		schedule:    DefaultSchedule(),
		tasks:       make(map[core.TaskID]*task),
		timers:      make(map[core.TaskID]Timer),
		workers:     make(map[core.Category]int),
		timeouts:    make(map[core.Category]time.Duration),
		dequeueWait: defaultDequeueWait,
	}
	for c, n := range defaultWorkers {
		o.workers[c] = n
	}
	for c, d := range defaultTimeouts {
		o.timeouts[c] = d
	}

	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	if o.execSize == 0 {
		total := 0
		for _, n := range o.workers {
			total += n
		}
		o.execSize = total * 2
	}

	exec, err := ants.NewPool(o.execSize)
	if err != nil {
		return nil, err
	}
	o.exec = exec

	for _, c := range core.Categories() {
		q := newTaskQueue()
		o.queues[c] = q
		o.counters[c] = &categoryCounters{}
		o.pools[c] = newCategoryPool(c, q, poolConfig{
			workers:     o.workers[c],
			timeout:     o.timeouts[c],
			dequeueWait: o.dequeueWait,
		}, o)
	}
	for _, p := range o.pools {
		p.start()
	}

	return o, nil
}

// SubmitOption adjusts one submission.
type SubmitOption func(*task)

// WithSchedule overrides the retry schedule for this task.
func WithSchedule(s Schedule) SubmitOption {
	return func(t *task) {
		if s != nil {
			t.schedule = s
		}
	}
}

// WithPermanentIf supplies a classifier: when it returns true for a
// failure, the failure is terminal regardless of remaining retry budget.
func WithPermanentIf(fn func(error) bool) SubmitOption {
	return func(t *task) {
		t.permanent = fn
	}
}

// Submit enqueues a job into the category's priority queue and returns the
// task id used for later Status and Result queries. Submission to an
// unknown category is a configuration error and fails fast.
func (o *Orchestrator) Submit(category core.Category, priority core.Priority, job Job, maxRetries int, opts ...SubmitOption) (core.TaskID, error) {
	if o.closed.Load() {
		return "", ErrClosed
	}
	if err := core.ValidateCategory(category); err != nil {
		return "", err
	}
	if err := core.ValidatePriority(priority); err != nil {
		return "", err
	}
	if job == nil {
		return "", ErrNilJob
	}
	if maxRetries < 0 {
		return "", ErrNegativeRetries
	}

	queue := o.queues[category]
	t := &task{
		id:         core.TaskID(uuid.NewString()),
		category:   category,
		priority:   priority,
		job:        job,
		maxRetries: maxRetries,
		schedule:   o.schedule,
		seq:        queue.nextSeq(),
		createdAt:  o.clock.Now(),
		status:     core.StatusQueued,
	}
	for _, opt := range opts {
		opt(t)
	}

	o.mu.Lock()
	o.tasks[t.id] = t
	o.mu.Unlock()

	if !queue.enqueue(t) {
		// Shutdown closed the queue between the closed check above and
		// the insert; untrack the task instead of stranding it.
		o.mu.Lock()
		delete(o.tasks, t.id)
		o.mu.Unlock()
		return "", ErrClosed
	}
	o.counters[category].submitted.Add(1)

	o.logger.Debug("task submitted",
		"task", string(t.id),
		"category", category.String(),
		"priority", priority.String(),
		"max_retries", maxRetries)

	return t.id, nil
}

// Status returns the lifecycle state of a task, consulting the archive for
// tasks already evicted from memory.
func (o *Orchestrator) Status(ctx context.Context, id core.TaskID) (core.TaskStatus, error) {
	o.mu.RLock()
	t, ok := o.tasks[id]
	o.mu.RUnlock()
	if ok {
		return t.snapshotStatus(), nil
	}

	if o.archive != nil {
		rec, err := o.archive.GetTask(ctx, id)
		if err == nil {
			return rec.Status, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return 0, err
		}
	}

	return 0, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
}

// Result returns the outcome of a terminal task. For a failed task the
// returned error is the last observed execution error; callers can check
// errors.Is(err, breaker.ErrOpen) to tell a circuit fast-fail apart from a
// real dependency failure and back off instead of resubmitting.
//
// The first successful retrieval evicts the live entry; afterwards only
// the archived outcome (if an archive is configured) remains. Archived
// failures are rebuilt from the recorded message, so typed matching with
// errors.Is only works on the first retrieval.
func (o *Orchestrator) Result(ctx context.Context, id core.TaskID) (any, error) {
	o.mu.RLock()
	t, ok := o.tasks[id]
	o.mu.RUnlock()

	if ok {
		result, execErr, done := t.takeResult()
		if !done {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFinished, id)
		}

		o.mu.Lock()
		delete(o.tasks, id)
		o.mu.Unlock()

		return result, execErr
	}

	if o.archive != nil {
		rec, err := o.archive.GetTask(ctx, id)
		if err == nil {
			if rec.Status == core.StatusFailed {
				return nil, errors.New(rec.LastError)
			}
			return nil, fmt.Errorf("%w: %s", ErrResultEvicted, id)
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
}

// Wrap routes a call to a guarded external dependency through the circuit
// breaker registered for that dependency name. It is the only sanctioned
// path for job code to reach "network-fetch", "vector-store" or
// "ai-completion"-style collaborators. Breakers are shared across
// categories by name.
func (o *Orchestrator) Wrap(ctx context.Context, dependency string, fn func(ctx context.Context) (any, error)) (any, error) {
	return o.breakers.Do(ctx, dependency, fn)
}

// Breakers exposes the breaker registry, mainly so wiring code can tune
// thresholds per dependency before work is submitted.
func (o *Orchestrator) Breakers() *breaker.Registry {
	return o.breakers
}

// Health returns the read-only aggregate consumed by external monitoring.
// It reads atomic counters and short-lived queue locks only and never
// stalls task execution.
func (o *Orchestrator) Health() *Snapshot {
	snap := &Snapshot{
		Taken:    o.clock.Now(),
		Breakers: o.breakers.Snapshots(),
	}

	for _, c := range core.Categories() {
		m := o.counters[c]
		p := o.pools[c]
		completed := m.completed.Load()
		failed := m.failed.Load()

		rate := 1.0
		if completed+failed > 0 {
			rate = float64(completed) / float64(completed+failed)
		}

		snap.Categories = append(snap.Categories, CategoryHealth{
			Category:    c,
			Workers:     p.cfg.workers,
			LiveWorkers: p.liveWorkers(),
			QueueDepth:  o.queues[c].len(),
			Submitted:   m.submitted.Load(),
			Completed:   completed,
			Failed:      failed,
			Retried:     m.retried.Load(),
			Running:     m.running.Load(),
			SuccessRate: rate,
			AvgDuration: m.avgDuration(),
		})
	}

	return snap
}

// Shutdown stops accepting submissions, cancels pending retry timers,
// stops all workers, and releases the execution pool. Queued tasks that
// never started do not survive; there is no durable queue.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if !o.closed.CompareAndSwap(false, true) {
		return nil
	}

	o.timersMu.Lock()
	for id, timer := range o.timers {
		timer.Stop()
		delete(o.timers, id)
	}
	o.timersMu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, p := range o.pools {
			p.shutdown()
		}
		o.exec.Release()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// noteRunning tracks in-flight attempts for the health report.
func (o *Orchestrator) noteRunning(c core.Category, delta int64) {
	o.counters[c].running.Add(delta)
}

// completeTask records a successful attempt and archives the outcome.
func (o *Orchestrator) completeTask(t *task, result any, d time.Duration) {
	now := o.clock.Now()
	t.succeed(result, now, d)

	m := o.counters[t.category]
	m.completed.Add(1)
	m.observeDuration(d)

	o.archiveTask(t)

	o.logger.Info("task succeeded",
		"task", string(t.id),
		"category", t.category.String(),
		"attempts", t.attemptCount(),
		"duration", d)
}

// failAttempt routes a failed attempt through the retry policy: permanent
// failures and exhausted budgets terminate as Failed; transient failures
// are re-enqueued after the schedule delay by a timer, never by a
// sleeping worker.
func (o *Orchestrator) failAttempt(t *task, execErr error, d time.Duration) {
	m := o.counters[t.category]
	m.observeDuration(d)

	permanent := core.IsPermanent(execErr)
	if !permanent && t.permanent != nil {
		permanent = t.permanent(execErr)
	}

	if permanent || !t.retriesLeft() {
		t.fail(execErr, o.clock.Now(), d)
		m.failed.Add(1)
		o.archiveTask(t)

		o.logger.Warn("task failed",
			"task", string(t.id),
			"category", t.category.String(),
			"attempts", t.attemptCount(),
			"permanent", permanent,
			"circuit_open", errors.Is(execErr, breaker.ErrOpen),
			"err", execErr)
		return
	}

	t.markRetrying(execErr)
	delay := t.schedule.Delay(t.attemptCount())

	o.logger.Info("task retrying",
		"task", string(t.id),
		"category", t.category.String(),
		"attempt", t.attemptCount(),
		"delay", delay,
		"err", execErr)

	timer := o.clock.AfterFunc(delay, func() {
		o.timersMu.Lock()
		delete(o.timers, t.id)
		o.timersMu.Unlock()

		if o.closed.Load() {
			return
		}

		t.markQueued()
		if !o.queues[t.category].enqueue(t) {
			// The queue closed under us; retrying tasks are as
			// non-durable across shutdown as queued ones.
			return
		}
		o.counters[t.category].retried.Add(1)
	})

	o.timersMu.Lock()
	o.timers[t.id] = timer
	o.timersMu.Unlock()
}

// archiveTask persists the terminal record when an archive is configured.
// Archive failures are logged, never propagated onto the task.
func (o *Orchestrator) archiveTask(t *task) {
	if o.archive == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := o.archive.PutTask(ctx, t.record()); err != nil {
		o.logger.Error("error archiving task record", "task", string(t.id), "err", err)
	}
}
