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
	"container/heap"
	"sync"
	"time"
)

// taskHeap orders tasks by priority, ties broken by submission sequence so
// equal-priority tasks dequeue FIFO.
type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// taskQueue is the bounded-wait blocking priority queue for one category.
// Nothing is ever silently dropped: every enqueued task stays in the heap
// until a worker dequeues it.
type taskQueue struct {
	mu     sync.Mutex
	items  taskHeap
	seq    uint64
	closed bool

	// wake is signalled on empty→non-empty transitions. A lost signal is
	// recovered by the bounded dequeue wait.
	wake chan struct{}
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{wake: make(chan struct{}, 1)}
	heap.Init(&q.items)
	return q
}

// nextSeq hands out the submission sequence number used for FIFO
// tie-breaking. Retried tasks keep their original sequence.
func (q *taskQueue) nextSeq() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	return q.seq
}

// enqueue inserts a task ordered by (priority, seq). It reports false
// without inserting once the queue is closed: after close no worker will
// drain the heap, so a late insert would strand its task as Queued
// forever.
func (q *taskQueue) enqueue(t *task) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	heap.Push(&q.items, t)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// dequeue returns the highest-priority, earliest-submitted task. It blocks
// up to wait when the queue is empty; the bound exists purely so callers
// can run periodic liveness and shutdown checks, it does not affect
// ordering. The second return is false when the wait expired or the queue
// closed with nothing available.
func (q *taskQueue) dequeue(wait time.Duration) (*task, bool) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if q.items.Len() > 0 {
			t := heap.Pop(&q.items).(*task)
			q.mu.Unlock()
			return t, true
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, false
		}

		select {
		case <-q.wake:
		case <-timer.C:
			return nil, false
		}
	}
}

// len returns the current queue depth.
func (q *taskQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// close marks the queue closed and wakes any waiting workers. Tasks still
// queued remain readable until drained.
func (q *taskQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}
