// Package pool bounds concurrent execution of externally supplied work and
// awaits batches of tasks with an escalating timeout policy.
package pool

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/joss/torch/internal/logging"
)

var log = logging.New("pool")

// Pool runs at most capacity units of work at a time.
type Pool struct {
	sem *semaphore.Weighted

	running atomic.Int64
	peak    atomic.Int64
}

// New creates a pool with capacity permits. Capacity below 1 is raised to 1.
func New(capacity int) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{
		sem: semaphore.NewWeighted(int64(capacity)),
	}
}

// Running returns the number of tasks currently holding a permit.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Peak returns the highest Running value observed.
func (p *Pool) Peak() int {
	return int(p.peak.Load())
}

// Submit starts work in its own goroutine. The work runs only after it
// acquires a permit, and the permit is released on every exit path.
func (p *Pool) Submit(ctx context.Context, name string, work Work) *Task {
	t := newTask(ctx, name)
	go p.run(t, work)
	return t
}

func (p *Pool) run(t *Task, work Work) {
	if err := p.sem.Acquire(t.ctx, 1); err != nil {
		t.finish(StatusCancelled, "", nil)
		return
	}

	var (
		result string
		err    error
	)
	func() {
		defer p.sem.Release(1)
		defer p.running.Add(-1)
		p.enter()
		t.status.Store(int32(StatusRunning))

		err = logging.NewRecoveryHandler("pool").WrapError(func() error {
			var werr error
			result, werr = work(t.ctx)
			return werr
		})
	}()

	// Work that returned cleanly completed, even if cancellation arrived
	// afterwards; an error under a cancelled context is a cancellation.
	switch {
	case err == nil:
		t.finish(StatusDone, result, nil)
	case t.ctx.Err() != nil:
		t.finish(StatusCancelled, "", nil)
	default:
		log.Debug("task_failed", map[string]interface{}{"task": t.Name, "error": err.Error()})
		t.finish(StatusFailed, "", err)
	}
}

func (p *Pool) enter() {
	n := p.running.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			return
		}
	}
}
