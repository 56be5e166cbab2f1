// internal/scheduler/queue.go
package scheduler

import (
	"sync"
	"time"
)

// Task runs with the state version it was scheduled against. The owner
// compares that against its current version under its own lock and does
// nothing when they differ.
type Task func(version uint64)

// Queue is a set of deferred tasks, each stamped with the state version
// current when it was scheduled. Cancelling drops every pending task; a
// task whose timer already fired but has not yet started is dropped too.
type Queue struct {
	mu      sync.Mutex
	gen     uint64
	nextID  uint64
	pending map[uint64]*time.Timer
	closed  bool
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{pending: make(map[uint64]*time.Timer)}
}

// Schedule runs fn(version) after delay on its own goroutine. It returns
// false when the queue is closed.
func (q *Queue) Schedule(version uint64, delay time.Duration, fn Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.nextID++
	id, gen := q.nextID, q.gen
	q.pending[id] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		_, live := q.pending[id]
		delete(q.pending, id)
		current := q.gen
		q.mu.Unlock()
		if !live || current != gen {
			return
		}
		fn(version)
	})
	return true
}

// CancelAll stops every pending task.
func (q *Queue) CancelAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelLocked()
}

func (q *Queue) cancelLocked() {
	q.gen++
	for id, t := range q.pending {
		t.Stop()
		delete(q.pending, id)
	}
}

// Close cancels everything and refuses new tasks.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelLocked()
	q.closed = true
}

// Pending counts tasks that have not fired yet.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
