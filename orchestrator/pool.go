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
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oripridan-dot/support-center/core"
)

// poolConfig holds the per-category pool knobs.
type poolConfig struct {
	workers     int
	timeout     time.Duration
	dequeueWait time.Duration
}

// categoryPool runs the fixed set of workers bound to one category's
// queue. Pools are fully independent: a backlog in one category cannot
// delay another.
type categoryPool struct {
	category core.Category
	queue    *taskQueue
	cfg      poolConfig
	orch     *Orchestrator
	logger   *slog.Logger

	live atomic.Int32
	stop chan struct{}
	wg   sync.WaitGroup
}

func newCategoryPool(category core.Category, queue *taskQueue, cfg poolConfig, orch *Orchestrator) *categoryPool {
	return &categoryPool{
		category: category,
		queue:    queue,
		cfg:      cfg,
		orch:     orch,
		logger:   orch.logger.With("category", category.String()),
		stop:     make(chan struct{}),
	}
}

// start launches the configured number of workers.
func (p *categoryPool) start() {
	for i := 0; i < p.cfg.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// shutdown stops the workers and waits for in-flight attempts to settle.
func (p *categoryPool) shutdown() {
	close(p.stop)
	p.queue.close()
	p.wg.Wait()
}

// worker is the wait loop: dequeue with a bounded wait, run the task, and
// go around. The loop is exception-proof; a misbehaving job can never kill
// the worker.
func (p *categoryPool) worker(n int) {
	defer p.wg.Done()
	p.live.Add(1)
	defer p.live.Add(-1)

	logger := p.logger.With("worker", n)
	logger.Debug("worker started")

	for {
		select {
		case <-p.stop:
			logger.Debug("worker stopping")
			return
		default:
		}

		t, ok := p.queue.dequeue(p.cfg.dequeueWait)
		if !ok {
			// Bounded wait expired or queue closed; loop back for the
			// liveness check.
			continue
		}

		p.runTask(t, logger)
	}
}

// execOutcome carries one attempt's result from the execution pool back to
// the waiting worker.
type execOutcome struct {
	value any
	err   error
}

// runTask executes one attempt. The job runs on the shared bounded
// execution pool, not on the worker goroutine, so a job that outlives its
// timeout cannot pin the worker: the worker stops waiting at the category
// timeout and the abandoned attempt finishes (cancelled) on the execution
// pool.
func (p *categoryPool) runTask(t *task, logger *slog.Logger) {
	t.beginAttempt()
	p.orch.noteRunning(p.category, 1)
	defer p.orch.noteRunning(p.category, -1)

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.timeout)
	defer cancel()

	start := p.orch.clock.Now()
	outcome := make(chan execOutcome, 1)

	submitErr := p.orch.exec.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				outcome <- execOutcome{err: fmt.Errorf("job panicked: %v", r)}
			}
		}()
		value, err := t.job.Execute(ctx)
		outcome <- execOutcome{value: value, err: err}
	})

	var res execOutcome
	if submitErr != nil {
		// Execution pool rejected the attempt (closed or overloaded);
		// treated as a transient failure like any other.
		res = execOutcome{err: fmt.Errorf("execution pool: %w", submitErr)}
	} else {
		select {
		case res = <-outcome:
		case <-ctx.Done():
			res = execOutcome{err: ctx.Err()}
		}
	}

	duration := p.orch.clock.Now().Sub(start)

	if res.err == nil {
		p.orch.completeTask(t, res.value, duration)
		return
	}

	logger.Debug("attempt failed",
		"task", string(t.id),
		"attempt", t.attemptCount(),
		"err", res.err)
	p.orch.failAttempt(t, res.err, duration)
}

// liveWorkers returns how many workers are currently in their loop.
func (p *categoryPool) liveWorkers() int {
	return int(p.live.Load())
}
