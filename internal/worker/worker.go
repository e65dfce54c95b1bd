// Package worker runs per-file detector tasks with bounded parallelism.
//
// A detector that finds many manifest files submits one task per file; at most
// maxWorkers of them parse concurrently. Task failures, including panics, are
// collected and returned from Wait so one broken file never stops the others.
package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/StinkyLord/depscan/internal/errors"
)

// Task is a unit of work. It receives the context the pool was created with.
type Task func(ctx context.Context) error

// Pool executes tasks concurrently, limited by a semaphore.
type Pool struct {
	ctx        context.Context
	semaphore  chan struct{}
	allErrors  *errors.MultiError
	wg         sync.WaitGroup
	errorsMu   sync.Mutex
	submitted  atomic.Int64
	isStopping atomic.Bool
}

// NewPool creates a pool that runs at most maxWorkers tasks at the same time.
// Tasks submitted after ctx is cancelled are skipped.
func NewPool(ctx context.Context, maxWorkers int) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	return &Pool{
		ctx:       ctx,
		semaphore: make(chan struct{}, maxWorkers),
		allErrors: &errors.MultiError{},
	}
}

func (wp *Pool) appendError(err error) {
	if err == nil {
		return
	}

	wp.errorsMu.Lock()
	wp.allErrors = wp.allErrors.Append(err)
	wp.errorsMu.Unlock()
}

// Submit schedules task. It never blocks the caller.
func (wp *Pool) Submit(task Task) {
	if wp.isStopping.Load() {
		return
	}

	wp.submitted.Add(1)
	wp.wg.Add(1)

	go func() {
		defer wp.wg.Done()

		select {
		case wp.semaphore <- struct{}{}:
		case <-wp.ctx.Done():
			wp.appendError(wp.ctx.Err())
			return
		}

		defer func() { <-wp.semaphore }()

		defer errors.Recover(wp.appendError)

		wp.appendError(task(wp.ctx))
	}()
}

// Wait blocks until every submitted task has finished and returns the
// collected errors, or nil.
func (wp *Pool) Wait() error {
	wp.wg.Wait()

	wp.errorsMu.Lock()
	defer wp.errorsMu.Unlock()

	return wp.allErrors.ErrorOrNil()
}

// GracefulStop rejects further submissions and waits for running tasks.
func (wp *Pool) GracefulStop() error {
	wp.isStopping.Store(true)

	return wp.Wait()
}

// Submitted returns how many tasks were accepted.
func (wp *Pool) Submitted() int {
	return int(wp.submitted.Load())
}
