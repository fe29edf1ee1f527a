package orchestrator

import "time"

// Clock abstracts the time source used for retry timers and attempt
// timing, so retry delays are deterministic in tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc runs fn in its own goroutine after d has elapsed and
	// returns a handle that can cancel the pending call.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancellable pending call created by Clock.AfterFunc.
type Timer interface {
	// Stop prevents the call from firing. It reports whether it stopped
	// the timer before the call started.
	Stop() bool
}

// realClock is the production Clock backed by the time package.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return realTimer{t: time.AfterFunc(d, fn)}
}

type realTimer struct {
	t *time.Timer
}

func (rt realTimer) Stop() bool { return rt.t.Stop() }
