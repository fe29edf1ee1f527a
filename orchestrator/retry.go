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
	"time"
)

// Schedule computes the delay before a retry attempt. Implementations
// must be monotonically non-decreasing in attempt number.
type Schedule interface {
	// Delay returns the wait before re-enqueueing after the given failed
	// attempt. Attempts are 1-based: Delay(1) follows the first failure.
	Delay(attempt int) time.Duration
}

// FixedSchedule waits the same duration between every attempt.
type FixedSchedule struct {
	Interval time.Duration
}

func (s FixedSchedule) Delay(_ int) time.Duration { return s.Interval }

// ExponentialSchedule doubles (or multiplies) the base delay per attempt,
// capped at Max.
type ExponentialSchedule struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
}

func (s ExponentialSchedule) Delay(attempt int) time.Duration {
	mult := s.Multiplier
	if mult < 1.0 {
		mult = 2.0
	}

	delay := float64(s.Base)
	for i := 1; i < attempt; i++ {
		delay *= mult
		if s.Max > 0 && delay >= float64(s.Max) {
			return s.Max
		}
	}

	d := time.Duration(delay)
	if s.Max > 0 && d > s.Max {
		return s.Max
	}
	return d
}

// StepSchedule follows an explicit list of delays, holding the last step
// once attempts run past the end.
type StepSchedule struct {
	Steps []time.Duration
}

func (s StepSchedule) Delay(attempt int) time.Duration {
	if len(s.Steps) == 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(s.Steps) {
		return s.Steps[len(s.Steps)-1]
	}
	return s.Steps[attempt-1]
}

// DefaultSchedule is the retry schedule used when a submission does not
// supply one: 1s, 5s, 15s, then 15s for any further attempts.
func DefaultSchedule() Schedule {
	return StepSchedule{Steps: []time.Duration{
		1 * time.Second,
		5 * time.Second,
		15 * time.Second,
	}}
}
