package orchestrator

import (
	"sync"
	"time"

	"github.com/oripridan-dot/support-center/core"
)

// task is the live envelope for one submitted unit of work. The envelope
// fields set at submission (id, category, priority, job, budget, schedule,
// seq) are immutable afterwards; the mutable lifecycle state is guarded by
// mu because workers, retry timers, and API callers touch it concurrently.
type task struct {
	id         core.TaskID
	category   core.Category
	priority   core.Priority
	job        Job
	maxRetries int
	schedule   Schedule
	permanent  func(error) bool // optional caller-supplied classifier
	seq        uint64
	createdAt  time.Time

	mu         sync.Mutex
	status     core.TaskStatus
	attempts   int // started attempts; invariant: attempts <= maxRetries+1
	lastErr    error
	result     any
	finishedAt time.Time
	duration   time.Duration
}

// beginAttempt marks the task Running and counts the started attempt.
func (t *task) beginAttempt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = core.StatusRunning
	t.attempts++
}

// succeed records a terminal success. Any error left over from earlier
// transient attempts is cleared: only terminal failures keep a last error.
func (t *task) succeed(result any, finishedAt time.Time, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = core.StatusSucceeded
	t.result = result
	t.lastErr = nil
	t.finishedAt = finishedAt
	t.duration = d
}

// fail records a terminal failure with the last observed error.
func (t *task) fail(err error, finishedAt time.Time, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = core.StatusFailed
	t.lastErr = err
	t.finishedAt = finishedAt
	t.duration = d
}

// markRetrying records a failed attempt that will be re-enqueued.
func (t *task) markRetrying(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = core.StatusRetrying
	t.lastErr = err
}

// markQueued is the one allowed cycle: Retrying → Queued when the retry
// timer fires.
func (t *task) markQueued() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = core.StatusQueued
}

// snapshotStatus returns the current status.
func (t *task) snapshotStatus() core.TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// takeResult returns the outcome of a terminal task. ok is false while the
// task is still in flight.
func (t *task) takeResult() (result any, err error, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.status.Terminal() {
		return nil, nil, false
	}
	return t.result, t.lastErr, true
}

// retriesLeft reports whether the retry budget allows another attempt.
func (t *task) retriesLeft() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts <= t.maxRetries
}

// attemptCount returns the number of started attempts.
func (t *task) attemptCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

// record builds the archival projection of the task.
func (t *task) record() *core.TaskRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := &core.TaskRecord{
		Id:          t.id,
		Category:    t.category,
		Priority:    t.priority,
		Status:      t.status,
		Attempts:    t.attempts,
		MaxRetries:  t.maxRetries,
		SubmittedAt: t.createdAt,
		FinishedAt:  t.finishedAt,
		Duration:    t.duration,
	}
	if t.lastErr != nil {
		rec.LastError = t.lastErr.Error()
	}
	return rec
}
