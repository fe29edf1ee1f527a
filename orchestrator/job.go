package orchestrator

import "context"

// Job is one opaque unit of work: fetch and parse one URL, embed one batch
// of text, retrieve context and produce an answer. The core never inspects
// job internals; it only executes them.
//
// Execute must honor ctx cancellation: the context carries the category
// timeout, and a job that ignores it keeps consuming an execution slot
// after its worker has moved on. Jobs may be executed more than once
// (at-least-once semantics), so they should be idempotent.
type Job interface {
	Execute(ctx context.Context) (any, error)
}

// JobFunc adapts a plain function to the Job interface.
type JobFunc func(ctx context.Context) (any, error)

// Execute calls f.
func (f JobFunc) Execute(ctx context.Context) (any, error) {
	return f(ctx)
}
