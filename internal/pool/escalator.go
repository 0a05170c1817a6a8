package pool

import (
	"context"
	"time"
)

// Reporter displays progress once waiting escalates past the instant window.
type Reporter interface {
	Start(total, completed int)
	Update(completed int)
	Stop()
}

// Outcome summarizes an AwaitAll call. Every task counted in Total is
// finished when it is returned.
type Outcome struct {
	Total     int
	Completed int
	Cancelled int
	Failed    int

	// Escalated is set when the instant window passed with tasks pending.
	Escalated bool
	// TimedOut is set when the hard deadline cancelled stragglers.
	TimedOut bool
	// Interrupted is set when the caller's context ended the wait.
	Interrupted bool
}

// Partial reports whether some tasks did not complete.
func (o Outcome) Partial() bool {
	return o.Completed < o.Total
}

// Escalator waits for a batch of tasks: a short silent wait first, then a
// visible progress phase bounded by a hard deadline, then a cancellation
// sweep over whatever is left.
type Escalator struct {
	Instant  time.Duration
	Hard     time.Duration
	Reporter Reporter
}

// AwaitAll blocks until every task is finished. Cancelled tasks count as not
// completed; they never turn the outcome into an error.
func (e *Escalator) AwaitAll(ctx context.Context, tasks []*Task) Outcome {
	out := Outcome{Total: len(tasks)}
	if len(tasks) == 0 {
		return out
	}

	finished := make(chan struct{}, len(tasks))
	for _, t := range tasks {
		go func(t *Task) {
			<-t.Done()
			finished <- struct{}{}
		}(t)
	}

	count := 0
	instant := time.NewTimer(e.Instant)
	defer instant.Stop()

instantLoop:
	for count < len(tasks) {
		select {
		case <-finished:
			count++
		case <-instant.C:
			break instantLoop
		case <-ctx.Done():
			out.Interrupted = true
			break instantLoop
		}
	}
	// Tasks unwinding from a cancelled ctx can all finish before ctx.Done
	// is selected.
	if ctx.Err() != nil {
		out.Interrupted = true
	}

	if count < len(tasks) && !out.Interrupted {
		out.Escalated = true
		e.progress(ctx, len(tasks), &count, finished, &out)
	}

	for _, t := range tasks {
		if !t.Status().Finished() {
			t.Cancel()
		}
	}
	for _, t := range tasks {
		<-t.Done()
		switch t.Status() {
		case StatusDone:
			out.Completed++
		case StatusCancelled:
			out.Cancelled++
		case StatusFailed:
			out.Failed++
		}
	}

	log.Info("await_finished", map[string]interface{}{
		"total":       out.Total,
		"completed":   out.Completed,
		"cancelled":   out.Cancelled,
		"failed":      out.Failed,
		"escalated":   out.Escalated,
		"timed_out":   out.TimedOut,
		"interrupted": out.Interrupted,
	})
	return out
}

func (e *Escalator) progress(ctx context.Context, total int, count *int, finished <-chan struct{}, out *Outcome) {
	if e.Reporter != nil {
		e.Reporter.Start(total, *count)
		defer e.Reporter.Stop()
	}

	hard := time.NewTimer(e.Hard)
	defer hard.Stop()

	for *count < total {
		select {
		case <-finished:
			*count++
			if e.Reporter != nil {
				e.Reporter.Update(*count)
			}
		case <-hard.C:
			out.TimedOut = true
			return
		case <-ctx.Done():
			out.Interrupted = true
			return
		}
	}
}
