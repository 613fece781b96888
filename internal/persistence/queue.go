package persistence

import "sync"

// job is one unit of work run on a context's queue goroutine.
type job func()

// jobQueue is a thread-safe FIFO queue of jobs.
//
// The queue is unbounded so that the dispatcher can hand merges to every
// subscriber while holding the store's writer gate without ever blocking on
// a slow context.
//
// Any goroutine may enqueue. Exactly one goroutine, the owning context's
// worker, dequeues.
type jobQueue struct {
	mu     sync.Mutex
	jobs   []job
	closed bool
	signal chan struct{} // Signals job availability (buffered, size 1)
}

func newJobQueue() *jobQueue {
	return &jobQueue{
		jobs:   make([]job, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a job to the back of the queue.
// Returns false if the queue is closed.
func (q *jobQueue) Enqueue(j job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.jobs = append(q.jobs, j)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front job without blocking.
func (q *jobQueue) TryDequeue() (job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil, false
	}

	j := q.jobs[0]
	// Nil out the slot so the closure and everything it captured can be collected.
	q.jobs[0] = nil
	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
	}
	return j, true
}

// Dequeue blocks until a job is available or the queue is closed and drained.
// Jobs enqueued before Close still run.
func (q *jobQueue) Dequeue() (job, bool) {
	for {
		if j, ok := q.TryDequeue(); ok {
			return j, true
		}

		q.mu.Lock()
		if q.closed && len(q.jobs) == 0 {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()

		<-q.signal
	}
}

// Len returns the number of pending jobs.
func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close stops accepting jobs and wakes the worker.
func (q *jobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
