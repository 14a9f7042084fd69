package scheduler

import (
	"container/heap"
	"context"
	"sync"

	"stakegate/internal/domain"
)

// jobHeap orders by PriorityScore descending, then admission Seq ascending.
type jobHeap []*domain.Job

func before(a, b *domain.Job) bool {
	if a.PriorityScore != b.PriorityScore {
		return a.PriorityScore > b.PriorityScore
	}
	return a.Seq < b.Seq
}

func (h jobHeap) Len() int           { return len(h) }
func (h jobHeap) Less(i, j int) bool { return before(h[i], h[j]) }
func (h jobHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(*domain.Job)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return j
}

// Queue is a mutex-guarded priority heap. Pop blocks on a wakeup channel
// instead of polling.
type Queue struct {
	mu     sync.Mutex
	h      jobHeap
	closed bool
	notify chan struct{}
	done   chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Push adds job. Returns ErrQueueClosed after Close.
func (q *Queue) Push(job *domain.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return domain.ErrQueueClosed
	}
	heap.Push(&q.h, job)
	q.signal()
	return nil
}

// TryPop removes the head without blocking.
func (q *Queue) TryPop() (*domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 {
		return nil, false
	}
	j := heap.Pop(&q.h).(*domain.Job)
	if len(q.h) > 0 {
		// Another consumer may be parked on the single-slot signal.
		q.signal()
	}
	return j, true
}

// Pop blocks until a job is available, ctx is done or the queue is closed
// and drained.
func (q *Queue) Pop(ctx context.Context) (*domain.Job, error) {
	for {
		if j, ok := q.TryPop(); ok {
			return j, nil
		}
		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, domain.ErrQueueClosed
		}

		select {
		case <-q.notify:
		case <-q.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Position returns the 1-based rank of the job with id, 0 if not queued.
func (q *Queue) Position(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	var target *domain.Job
	for _, j := range q.h {
		if j.ID == id {
			target = j
			break
		}
	}
	if target == nil {
		return 0
	}
	pos := 1
	for _, j := range q.h {
		if j != target && before(j, target) {
			pos++
		}
	}
	return pos
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

// Snapshot returns the queued jobs in dequeue order.
func (q *Queue) Snapshot() []*domain.Job {
	q.mu.Lock()
	cp := make(jobHeap, len(q.h))
	copy(cp, q.h)
	q.mu.Unlock()

	out := make([]*domain.Job, 0, len(cp))
	for cp.Len() > 0 {
		out = append(out, heap.Pop(&cp).(*domain.Job))
	}
	return out
}

// Close stops admissions. Jobs already queued can still be popped.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
