// Package orchestrator is the in-process task-orchestration core of the
// support center: a multi-category worker-pool scheduler that runs
// heterogeneous workloads concurrently while keeping latency-sensitive
// work responsive.
//
// # Model
//
// Work is submitted as an opaque Job into one of a fixed set of
// categories (interactive query, scraping, embedding, batch/bulk,
// maintenance). Each category owns a bounded priority queue and a fixed
// set of workers; pools run independently, so a flood of bulk submissions
// cannot delay interactive work. Within a category tasks dequeue in
// strict priority order, FIFO within the same priority; no ordering holds
// across categories, and completion order is not guaranteed once work has
// started.
//
// Jobs execute on a shared bounded secondary pool (ants) under a
// category-level timeout, so a stuck job cannot pin its worker. Failures
// are classified transient or permanent: transient failures are
// re-enqueued by a timer after a non-decreasing backoff schedule until
// the retry budget runs out, at which point the task is Failed with its
// last error preserved. Execution is at-least-once; idempotency belongs
// to the jobs.
//
// Calls to external dependencies go through named circuit breakers via
// Wrap; breakers are shared across categories by dependency name.
//
// # Usage
//
//	orch, err := orchestrator.New(
//	    orchestrator.WithWorkers(core.CategoryInteractiveQuery, 8),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer orch.Shutdown(context.Background())
//
//	id, err := orch.Submit(core.CategoryScraping, core.PriorityNormal,
//	    orchestrator.JobFunc(func(ctx context.Context) (any, error) {
//	        return orch.Wrap(ctx, "network-fetch", fetchPage)
//	    }), 3)
//
//	status, _ := orch.Status(ctx, id)
//	result, err := orch.Result(ctx, id)
package orchestrator
