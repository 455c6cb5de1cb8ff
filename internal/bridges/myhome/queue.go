package myhome

import (
	"context"
	"sync"

	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

// Task is one outbound frame waiting for a worker.
type Task struct {
	Message       openwebnet.Frame
	StatusRequest bool
}

// Queue is the shared multi-producer, multi-consumer FIFO between Send and
// the dispatch workers.
//
// With a positive capacity, a Push into a full queue evicts the oldest
// queued status request, or the oldest command if no status request is
// queued. A status request pushed into a queue full of commands is itself
// dropped; a command never gives way to a status request.
type Queue struct {
	mu       sync.Mutex
	items    []Task
	capacity int

	// notify holds at most one wake-up token. A consumer that takes a task
	// and leaves items behind passes the token on.
	notify chan struct{}

	onDrop func(Task)
}

// NewQueue creates a queue. capacity <= 0 means unbounded.
func NewQueue(capacity int) *Queue {
	return &Queue{
		capacity: max(capacity, 0),
		notify:   make(chan struct{}, 1),
	}
}

// OnDrop sets a callback invoked (outside the lock) for every dropped task,
// whether evicted or rejected on arrival.
func (q *Queue) OnDrop(fn func(Task)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onDrop = fn
}

// Push appends t and returns immediately.
//
// Returns:
//   - Task: the dropped task when the queue was full (t itself when it was
//     rejected)
//   - bool: true if a task was dropped
func (q *Queue) Push(t Task) (Task, bool) {
	q.mu.Lock()
	var (
		dropped Task
		lost    bool
		queued  = true
	)
	if q.capacity > 0 && len(q.items) >= q.capacity {
		idx := q.oldestStatusLocked()
		switch {
		case idx >= 0:
			dropped = q.removeLocked(idx)
		case t.StatusRequest:
			dropped = t
			queued = false
		default:
			dropped = q.removeLocked(0)
		}
		lost = true
	}
	if queued {
		q.items = append(q.items, t)
	}
	onDrop := q.onDrop
	q.mu.Unlock()

	if queued {
		q.signal()
	}
	if lost && onDrop != nil {
		onDrop(dropped)
	}
	return dropped, lost
}

// oldestStatusLocked returns the index of the oldest queued status request,
// or -1.
func (q *Queue) oldestStatusLocked() int {
	for i, t := range q.items {
		if t.StatusRequest {
			return i
		}
	}
	return -1
}

func (q *Queue) removeLocked(idx int) Task {
	dropped := q.items[idx]
	q.items = append(q.items[:idx], q.items[idx+1:]...)
	return dropped
}

// Pop blocks until a task is available or ctx is done.
func (q *Queue) Pop(ctx context.Context) (Task, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			t := q.items[0]
			q.items[0] = Task{}
			q.items = q.items[1:]
			remaining := len(q.items)
			if remaining == 0 {
				q.items = nil
			}
			q.mu.Unlock()

			if remaining > 0 {
				q.signal()
			}
			return t, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Task{}, ctx.Err()
		case <-q.notify:
		}
	}
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a copy of the queued tasks, oldest first.
func (q *Queue) Snapshot() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Task(nil), q.items...)
}

// Cap returns the configured capacity, 0 when unbounded.
func (q *Queue) Cap() int { return q.capacity }
