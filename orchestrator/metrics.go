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
	"sync/atomic"
	"time"

	"github.com/oripridan-dot/support-center/breaker"
	"github.com/oripridan-dot/support-center/core"
)

// categoryCounters holds lock-free per-category counters. Writes happen on
// the hot path; reads are cold-path observation from Health and never
// block workers.
type categoryCounters struct {
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
	running   atomic.Int64

	// totalDurationMicros accumulates wall time of finished attempts for
	// the average-duration report.
	totalDurationMicros atomic.Int64
	timedAttempts       atomic.Int64
}

func (m *categoryCounters) observeDuration(d time.Duration) {
	m.totalDurationMicros.Add(d.Microseconds())
	m.timedAttempts.Add(1)
}

func (m *categoryCounters) avgDuration() time.Duration {
	n := m.timedAttempts.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(m.totalDurationMicros.Load()/n) * time.Microsecond
}

// CategoryHealth is the read-only per-category aggregate.
type CategoryHealth struct {
	Category    core.Category
	Workers     int   // configured worker count
	LiveWorkers int   // workers currently running their loop
	QueueDepth  int   // tasks waiting in the priority queue
	Submitted   int64 // total tasks accepted
	Completed   int64 // tasks that reached Succeeded
	Failed      int64 // tasks that reached Failed
	Retried     int64 // re-enqueues performed by the retry policy
	Running     int64 // attempts executing right now
	SuccessRate float64
	AvgDuration time.Duration
}

// Snapshot is the aggregate health view consumed by external monitoring.
type Snapshot struct {
	Taken      time.Time
	Categories []CategoryHealth
	Breakers   []breaker.Stats
}

// Breaker returns the stats for the named breaker, if present in the
// snapshot.
func (s *Snapshot) Breaker(name string) (breaker.Stats, bool) {
	for _, b := range s.Breakers {
		if b.Name == name {
			return b, true
		}
	}
	return breaker.Stats{}, false
}

// Category returns the health of one category, if present in the snapshot.
func (s *Snapshot) Category(c core.Category) (CategoryHealth, bool) {
	for _, ch := range s.Categories {
		if ch.Category == c {
			return ch, true
		}
	}
	return CategoryHealth{}, false
}
