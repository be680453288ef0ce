package scheduler

import (
	"context"
	"sync"
)

// Task is a unit of work run by a SerialQueue.
type Task func(ctx context.Context) error

type serialJob struct {
	ctx  context.Context
	fn   Task
	done chan error
}

// SerialQueue executes tasks one at a time, in submission order, on a single
// goroutine. It is the only owner of whatever the tasks touch.
type SerialQueue struct {
	jobs chan serialJob
	quit chan struct{}
	wg   sync.WaitGroup

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewSerialQueue starts the queue goroutine. queue is the number of tasks
// that may wait before Do blocks on submission.
func NewSerialQueue(queue int) *SerialQueue {
	if queue <= 0 {
		queue = 16
	}
	q := &SerialQueue{
		jobs: make(chan serialJob, queue),
		quit: make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *SerialQueue) run() {
	defer q.wg.Done()
	for job := range q.jobs {
		// Skip work whose caller has already given up.
		if err := job.ctx.Err(); err != nil {
			job.done <- err
			continue
		}
		job.done <- job.fn(job.ctx)
	}
}

// Do runs fn on the queue goroutine and waits for it to return. If ctx is
// canceled before fn is dequeued, fn is skipped and ctx.Err() is returned.
// A task that has started always runs to completion; fn decides for itself
// whether to observe ctx. Calling Do from inside a task deadlocks.
func (q *SerialQueue) Do(ctx context.Context, fn Task) error {
	job := serialJob{ctx: ctx, fn: fn, done: make(chan error, 1)}
	if err := q.enqueue(job); err != nil {
		return err
	}
	return <-job.done
}

func (q *SerialQueue) enqueue(job serialJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case <-q.quit:
		return ErrQueueClosed
	case <-job.ctx.Done():
		return job.ctx.Err()
	case q.jobs <- job:
		return nil
	}
}

// Close stops accepting tasks, runs the ones already queued and waits for the
// queue goroutine to exit.
func (q *SerialQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.quit)
		q.mu.Lock()
		q.closed = true
		close(q.jobs)
		q.mu.Unlock()
	})
	q.wg.Wait()
}
