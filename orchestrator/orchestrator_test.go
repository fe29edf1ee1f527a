package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oripridan-dot/support-center/breaker"
	"github.com/oripridan-dot/support-center/core"
	"github.com/oripridan-dot/support-center/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives retry timers manually so tests control when
// re-enqueues happen.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	ft := &fakeTimer{clock: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, ft)
	return ft
}

// Advance moves the clock and fires every due timer.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, ft := range c.timers {
		if !ft.stopped && !ft.fired && !ft.at.After(c.now) {
			ft.fired = true
			due = append(due, ft)
		}
	}
	c.mu.Unlock()

	for _, ft := range due {
		ft.fn()
	}
}

func (ft *fakeTimer) Stop() bool {
	ft.clock.mu.Lock()
	defer ft.clock.mu.Unlock()
	if ft.fired || ft.stopped {
		return false
	}
	ft.stopped = true
	return true
}

// fakeArchive is an in-memory storage.TaskArchive.
type fakeArchive struct {
	mu   sync.Mutex
	recs map[core.TaskID]*core.TaskRecord
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{recs: make(map[core.TaskID]*core.TaskRecord)}
}

func (a *fakeArchive) PutTask(_ context.Context, rec *core.TaskRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := *rec
	a.recs[rec.Id] = &cp
	return nil
}

func (a *fakeArchive) GetTask(_ context.Context, id core.TaskID) (*core.TaskRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.recs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (a *fakeArchive) Close() error { return nil }

func newTestOrchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()

	base := []Option{
		WithDequeueWait(10 * time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	o, err := New(append(base, opts...)...)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.Shutdown(ctx)
	})
	return o
}

func waitForStatus(t *testing.T, o *Orchestrator, id core.TaskID, want core.TaskStatus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := o.Status(context.Background(), id)
		if err == nil && got == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	got, err := o.Status(context.Background(), id)
	t.Fatalf("task %s never reached %s (last status %v, err %v)", id, want, got, err)
}

func TestOrchestrator_RejectsInvalidSubmissions(t *testing.T) {
	o := newTestOrchestrator(t)
	job := JobFunc(func(ctx context.Context) (any, error) { return nil, nil })

	_, err := o.Submit(core.Category(99), core.PriorityNormal, job, 0)
	assert.ErrorIs(t, err, core.ErrUnknownCategory, "unknown category must fail fast")

	_, err = o.Submit(core.CategoryScraping, core.Priority(42), job, 0)
	assert.ErrorIs(t, err, core.ErrUnknownPriority)

	_, err = o.Submit(core.CategoryScraping, core.PriorityNormal, nil, 0)
	assert.ErrorIs(t, err, ErrNilJob)

	_, err = o.Submit(core.CategoryScraping, core.PriorityNormal, job, -1)
	assert.ErrorIs(t, err, ErrNegativeRetries)
}

func TestOrchestrator_SuccessLifecycle(t *testing.T) {
	o := newTestOrchestrator(t)

	id, err := o.Submit(core.CategoryScraping, core.PriorityNormal,
		JobFunc(func(ctx context.Context) (any, error) { return "fetched", nil }), 0)
	require.NoError(t, err)

	waitForStatus(t, o, id, core.StatusSucceeded)

	result, err := o.Result(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "fetched", result)

	// First retrieval evicts the live entry; with no archive the task is
	// gone entirely.
	_, err = o.Result(context.Background(), id)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = o.Status(context.Background(), id)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestOrchestrator_ResultBeforeTerminal(t *testing.T) {
	o := newTestOrchestrator(t)

	release := make(chan struct{})
	id, err := o.Submit(core.CategoryScraping, core.PriorityNormal,
		JobFunc(func(ctx context.Context) (any, error) {
			<-release
			return nil, nil
		}), 0)
	require.NoError(t, err)

	_, err = o.Result(context.Background(), id)
	assert.ErrorIs(t, err, ErrTaskNotFinished)

	close(release)
	waitForStatus(t, o, id, core.StatusSucceeded)
}

func TestOrchestrator_PermanentFailureSkipsRetries(t *testing.T) {
	o := newTestOrchestrator(t)
	cause := errors.New("404 not found")

	var attempts atomic.Int32
	id, err := o.Submit(core.CategoryScraping, core.PriorityNormal,
		JobFunc(func(ctx context.Context) (any, error) {
			attempts.Add(1)
			return nil, core.Permanent(cause)
		}), 5)
	require.NoError(t, err)

	waitForStatus(t, o, id, core.StatusFailed)
	assert.Equal(t, int32(1), attempts.Load(), "permanent failures must not consume the retry budget")

	_, err = o.Result(context.Background(), id)
	assert.ErrorIs(t, err, cause)
}

func TestOrchestrator_PermanentIfClassifier(t *testing.T) {
	o := newTestOrchestrator(t)
	cause := errors.New("schema mismatch")

	var attempts atomic.Int32
	id, err := o.Submit(core.CategoryEmbedding, core.PriorityNormal,
		JobFunc(func(ctx context.Context) (any, error) {
			attempts.Add(1)
			return nil, cause
		}), 5,
		WithPermanentIf(func(err error) bool { return errors.Is(err, cause) }))
	require.NoError(t, err)

	waitForStatus(t, o, id, core.StatusFailed)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestOrchestrator_RetriesExhausted(t *testing.T) {
	o := newTestOrchestrator(t,
		WithDefaultSchedule(FixedSchedule{Interval: 0}))
	cause := errors.New("connection reset")

	var attempts atomic.Int32
	id, err := o.Submit(core.CategoryScraping, core.PriorityNormal,
		JobFunc(func(ctx context.Context) (any, error) {
			attempts.Add(1)
			return nil, cause
		}), 3)
	require.NoError(t, err)

	waitForStatus(t, o, id, core.StatusFailed)
	assert.Equal(t, int32(4), attempts.Load(), "maxRetries=3 allows exactly 4 attempts")

	_, err = o.Result(context.Background(), id)
	assert.ErrorIs(t, err, cause, "the last error must be preserved")
}

func TestOrchestrator_TransientThenSuccess(t *testing.T) {
	archive := newFakeArchive()
	o := newTestOrchestrator(t,
		WithDefaultSchedule(FixedSchedule{Interval: 0}),
		WithArchive(archive))

	var attempts atomic.Int32
	id, err := o.Submit(core.CategoryEmbedding, core.PriorityNormal,
		JobFunc(func(ctx context.Context) (any, error) {
			if attempts.Add(1) < 3 {
				return nil, errors.New("not yet")
			}
			return "done", nil
		}), 5)
	require.NoError(t, err)

	waitForStatus(t, o, id, core.StatusSucceeded)
	assert.Equal(t, int32(3), attempts.Load())

	// Success wipes the errors of the failed attempts that preceded it.
	result, err := o.Result(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "done", result)

	rec, err := archive.GetTask(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusSucceeded, rec.Status)
	assert.Empty(t, rec.LastError, "a succeeded record must not carry a transient attempt's error")

	health, ok := o.Health().Category(core.CategoryEmbedding)
	require.True(t, ok)
	assert.Equal(t, int64(2), health.Retried)
}

func TestOrchestrator_TimeoutIsAFailure(t *testing.T) {
	o := newTestOrchestrator(t,
		WithTimeout(core.CategoryScraping, 30*time.Millisecond))

	id, err := o.Submit(core.CategoryScraping, core.PriorityNormal,
		JobFunc(func(ctx context.Context) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}), 0)
	require.NoError(t, err)

	waitForStatus(t, o, id, core.StatusFailed)

	_, err = o.Result(context.Background(), id)
	assert.True(t, core.IsTimeout(err), "a timed-out attempt must surface context.DeadlineExceeded")
}

func TestOrchestrator_TimeoutThenRecovery(t *testing.T) {
	o := newTestOrchestrator(t,
		WithTimeout(core.CategoryScraping, 30*time.Millisecond),
		WithDefaultSchedule(FixedSchedule{Interval: 0}))

	var attempts atomic.Int32
	id, err := o.Submit(core.CategoryScraping, core.PriorityNormal,
		JobFunc(func(ctx context.Context) (any, error) {
			if attempts.Add(1) == 1 {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return "recovered", nil
		}), 2)
	require.NoError(t, err)

	waitForStatus(t, o, id, core.StatusSucceeded)
	assert.Equal(t, int32(2), attempts.Load(), "a timeout is transient and must be retried")
}

func TestOrchestrator_RetryWaitsForTimer(t *testing.T) {
	clock := newFakeClock()
	o := newTestOrchestrator(t,
		WithClock(clock),
		WithDefaultSchedule(FixedSchedule{Interval: time.Second}))

	var attempts atomic.Int32
	id, err := o.Submit(core.CategoryEmbedding, core.PriorityNormal,
		JobFunc(func(ctx context.Context) (any, error) {
			if attempts.Add(1) == 1 {
				return nil, errors.New("flaky")
			}
			return "ok", nil
		}), 1)
	require.NoError(t, err)

	waitForStatus(t, o, id, core.StatusRetrying)

	// The re-enqueue must not happen before the schedule delay elapses.
	time.Sleep(50 * time.Millisecond)
	status, err := o.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusRetrying, status)
	assert.Equal(t, int32(1), attempts.Load())

	clock.Advance(time.Second)
	waitForStatus(t, o, id, core.StatusSucceeded)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestOrchestrator_CriticalOverridesBacklog(t *testing.T) {
	o := newTestOrchestrator(t, WithWorkers(core.CategoryScraping, 2))

	var mu sync.Mutex
	var normalStarts int
	var normalsBeforeLastCritical int
	criticalsDone := 0

	gate := make(chan struct{})
	var blocked atomic.Int32
	blocker := JobFunc(func(ctx context.Context) (any, error) {
		blocked.Add(1)
		<-gate
		return nil, nil
	})

	// Occupy both workers so the backlog builds up in the queue.
	_, err := o.Submit(core.CategoryScraping, core.PriorityCritical, blocker, 0)
	require.NoError(t, err)
	_, err = o.Submit(core.CategoryScraping, core.PriorityCritical, blocker, 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return blocked.Load() == 2 },
		2*time.Second, 5*time.Millisecond)

	var ids []core.TaskID
	for i := 0; i < 50; i++ {
		id, err := o.Submit(core.CategoryScraping, core.PriorityNormal,
			JobFunc(func(ctx context.Context) (any, error) {
				mu.Lock()
				normalStarts++
				if criticalsDone < 5 {
					normalsBeforeLastCritical++
				}
				mu.Unlock()
				return nil, nil
			}), 0)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for i := 0; i < 5; i++ {
		id, err := o.Submit(core.CategoryScraping, core.PriorityCritical,
			JobFunc(func(ctx context.Context) (any, error) {
				mu.Lock()
				criticalsDone++
				mu.Unlock()
				return nil, nil
			}), 0)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	close(gate)
	for _, id := range ids {
		waitForStatus(t, o, id, core.StatusSucceeded)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 50, normalStarts)
	assert.LessOrEqual(t, normalsBeforeLastCritical, 2,
		"critical tasks must drain before more normal tasks than there are workers can start")
}

func TestOrchestrator_Conservation(t *testing.T) {
	o := newTestOrchestrator(t,
		WithDefaultSchedule(FixedSchedule{Interval: 0}))

	const total = 40
	var ids []core.TaskID
	for i := 0; i < total; i++ {
		id, err := o.Submit(core.CategoryBatchBulk, core.PriorityNormal,
			JobFunc(func(ctx context.Context) (any, error) {
				if i%4 == 0 {
					return nil, core.Permanent(errors.New("bad input"))
				}
				return i, nil
			}), 1)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for _, id := range ids {
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			status, err := o.Status(context.Background(), id)
			require.NoError(t, err)
			if status.Terminal() {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	health, ok := o.Health().Category(core.CategoryBatchBulk)
	require.True(t, ok)
	assert.Equal(t, int64(total), health.Submitted)
	assert.Equal(t, health.Submitted, health.Completed+health.Failed,
		"every submitted task must be accounted for")
	assert.Equal(t, 0, health.QueueDepth)
	assert.Equal(t, int64(0), health.Running)
	assert.Equal(t, int64(30), health.Completed)
	assert.Equal(t, int64(10), health.Failed)
}

func TestOrchestrator_WrapShortCircuits(t *testing.T) {
	registry := breaker.NewRegistry(breaker.WithDefaults(breaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		RecoveryTimeout:  time.Minute,
	}))
	o := newTestOrchestrator(t, WithBreakerRegistry(registry))

	ctx := context.Background()
	depErr := errors.New("connection refused")
	for i := 0; i < 5; i++ {
		_, err := o.Wrap(ctx, "network-fetch", func(ctx context.Context) (any, error) {
			return nil, depErr
		})
		require.ErrorIs(t, err, depErr)
	}

	invoked := false
	_, err := o.Wrap(ctx, "network-fetch", func(ctx context.Context) (any, error) {
		invoked = true
		return nil, nil
	})
	require.ErrorIs(t, err, breaker.ErrOpen)
	assert.False(t, invoked, "the 6th call must fail fast without reaching the dependency")

	stats, ok := o.Health().Breaker("network-fetch")
	require.True(t, ok)
	assert.Equal(t, breaker.StateOpen, stats.State)
}

func TestOrchestrator_BreakersSharedAcrossCategories(t *testing.T) {
	o := newTestOrchestrator(t)

	depErr := errors.New("down")
	job := JobFunc(func(ctx context.Context) (any, error) {
		return o.Wrap(ctx, "vector-store", func(ctx context.Context) (any, error) {
			return nil, depErr
		})
	})

	// Failures from two different categories accumulate on one breaker.
	for _, c := range []core.Category{core.CategoryScraping, core.CategoryEmbedding} {
		for i := 0; i < 3; i++ {
			id, err := o.Submit(c, core.PriorityNormal, job, 0)
			require.NoError(t, err)
			waitForStatus(t, o, id, core.StatusFailed)
		}
	}

	assert.Equal(t, breaker.StateOpen, o.Breakers().Get("vector-store").State(),
		"6 failures across categories must open the shared breaker (threshold 5)")
}

func TestOrchestrator_ArchiveKeepsOutcomeAfterEviction(t *testing.T) {
	archive := newFakeArchive()
	o := newTestOrchestrator(t, WithArchive(archive))

	id, err := o.Submit(core.CategoryScraping, core.PriorityNormal,
		JobFunc(func(ctx context.Context) (any, error) { return 7, nil }), 0)
	require.NoError(t, err)
	waitForStatus(t, o, id, core.StatusSucceeded)

	result, err := o.Result(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 7, result)

	// The live entry is gone but the archived record still answers Status.
	status, err := o.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusSucceeded, status)

	_, err = o.Result(context.Background(), id)
	assert.ErrorIs(t, err, ErrResultEvicted, "payloads are not archived, only outcomes")
}

func TestOrchestrator_ArchivePreservesFailureError(t *testing.T) {
	archive := newFakeArchive()
	o := newTestOrchestrator(t, WithArchive(archive))

	id, err := o.Submit(core.CategoryScraping, core.PriorityNormal,
		JobFunc(func(ctx context.Context) (any, error) {
			return nil, core.Permanent(errors.New("410 gone"))
		}), 0)
	require.NoError(t, err)
	waitForStatus(t, o, id, core.StatusFailed)

	_, err = o.Result(context.Background(), id)
	require.Error(t, err)

	_, err = o.Result(context.Background(), id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "410 gone",
		"the archived record must keep the failure message")
}

func TestOrchestrator_ShutdownRejectsSubmissions(t *testing.T) {
	o := newTestOrchestrator(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))

	_, err := o.Submit(core.CategoryScraping, core.PriorityNormal,
		JobFunc(func(ctx context.Context) (any, error) { return nil, nil }), 0)
	assert.ErrorIs(t, err, ErrClosed)

	require.NoError(t, o.Shutdown(ctx), "shutdown must be idempotent")
}

func TestOrchestrator_SubmitAfterQueueCloseIsRejected(t *testing.T) {
	o := newTestOrchestrator(t)

	// A submission can pass the closed check while shutdown is already
	// closing the queues; the closed queue itself must then reject it so
	// the task is not stranded as Queued with no worker left to run it.
	o.queues[core.CategoryScraping].close()

	id, err := o.Submit(core.CategoryScraping, core.PriorityNormal,
		JobFunc(func(ctx context.Context) (any, error) { return nil, nil }), 0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Empty(t, id)

	o.mu.RLock()
	tracked := len(o.tasks)
	o.mu.RUnlock()
	assert.Zero(t, tracked, "a rejected submission must not stay tracked")
}
