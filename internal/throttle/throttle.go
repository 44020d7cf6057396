// internal/throttle/throttle.go

// Package throttle serializes access to a rate-limited upstream API. All
// callers funnel through a single queue drained by one worker, so the
// upstream never sees two requests closer together than the configured
// delay no matter how many goroutines enqueue work concurrently.
package throttle

import (
	"context"
	"sync"
	"time"
)

// Task is one unit of upstream work. Its result is delivered back to the
// caller that enqueued it.
type Task func() (interface{}, error)

type result struct {
	value interface{}
	err   error
}

type pendingTask struct {
	run  Task
	done chan result
}

// Queue executes tasks strictly in enqueue order, one at a time, waiting
// delay between consecutive executions. The delay is not applied after the
// last queued task drains. A failing task only fails its own caller;
// draining continues.
type Queue struct {
	delay time.Duration

	mu       sync.Mutex
	pending  []*pendingTask
	draining bool
}

func New(delay time.Duration) *Queue {
	return &Queue{delay: delay}
}

// Do enqueues task and blocks until its outcome is available or ctx is
// done. On context cancellation the task is not unqueued; it will still
// execute in its turn and its result is discarded.
func (q *Queue) Do(ctx context.Context, task Task) (interface{}, error) {
	pt := &pendingTask{run: task, done: make(chan result, 1)}

	q.mu.Lock()
	q.pending = append(q.pending, pt)
	if !q.draining {
		q.draining = true
		go q.drain()
	}
	q.mu.Unlock()

	select {
	case res := <-pt.done:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports the number of tasks waiting to execute.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		pt := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		value, err := pt.run()
		pt.done <- result{value: value, err: err}

		q.mu.Lock()
		remaining := len(q.pending)
		q.mu.Unlock()

		if remaining > 0 {
			time.Sleep(q.delay)
		}
	}
}
