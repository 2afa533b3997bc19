package pool

import (
	"context"
	"log/slog"
	"sync"
)

// runner is the dedicated execution context bound to a single connection.
// It runs exactly one worker goroutine that executes submitted jobs in
// order, so blocking driver calls against one handle never overlap.
type runner struct {
	jobs     chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

// newRunner creates a runner and starts its worker goroutine.
func newRunner(logger *slog.Logger) *runner {
	r := &runner{
		jobs:   make(chan func()),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
	go r.worker()
	return r
}

// worker executes jobs one at a time until the runner is stopped.
func (r *runner) worker() {
	defer close(r.done)
	for {
		select {
		case job := <-r.jobs:
			job()
		case <-r.quit:
			return
		}
	}
}

// submit enqueues fn on the worker and waits for it to finish. The context
// bounds both the enqueue and the wait, but a job that has already started
// always runs to completion: blocking driver calls are never interrupted.
// When submit returns early due to the context, the job's side effects on
// the handle still happen on the worker.
func (r *runner) submit(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	job := func() {
		defer close(finished)
		fn()
	}

	select {
	case r.jobs <- job:
	case <-r.quit:
		return newPoolError("submit", "execution context is shut down", ErrPoolClosed)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		r.logger.Warn("abandoning in-flight driver call, worker will finish it",
			"error", ctx.Err())
		return ctx.Err()
	}
}

// stop shuts the worker down. Jobs submitted before stop have either run or
// were never enqueued; stop does not wait for abandoned callers.
func (r *runner) stop() {
	r.stopOnce.Do(func() {
		close(r.quit)
	})
	<-r.done
}
