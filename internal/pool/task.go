package pool

import (
	"context"
	"sync/atomic"
)

// Status is the lifecycle state of a Task.
type Status int32

const (
	StatusPending Status = iota
	StatusRunning
	StatusDone
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusDone:
		return "done"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Finished reports whether s is terminal.
func (s Status) Finished() bool {
	return s == StatusDone || s == StatusCancelled || s == StatusFailed
}

// Work is one unit of work run under a pool permit. It must return promptly
// once ctx is cancelled.
type Work func(ctx context.Context) (string, error)

// Task is the handle of a submitted unit of work. Only the goroutine started
// by Submit writes status, result and err; readers wait on Done first.
type Task struct {
	Name string

	status atomic.Int32
	result string
	err    error

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newTask(parent context.Context, name string) *Task {
	ctx, cancel := context.WithCancel(parent)
	return &Task{
		Name:   name,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Status returns the current status.
func (t *Task) Status() Status {
	return Status(t.status.Load())
}

// Done is closed once the task reached a terminal status and released its
// permit.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cancel requests cancellation. It does not wait; receive from Done for the
// acknowledgement.
func (t *Task) Cancel() {
	t.cancel()
}

// Result returns the output of a Done task. Valid after Done is closed.
func (t *Task) Result() string {
	return t.result
}

// Err returns the failure of a Failed task. Valid after Done is closed.
func (t *Task) Err() error {
	return t.err
}

func (t *Task) finish(status Status, result string, err error) {
	t.result = result
	t.err = err
	t.status.Store(int32(status))
	t.cancel()
	close(t.done)
}
