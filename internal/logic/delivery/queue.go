package delivery

import (
	"container/heap"
	"time"

	"github.com/skillcoder/watchhamster/internal/logic/alert"
)

type entry struct {
	event         alert.Event
	priority      alert.Severity
	seq           uint64
	retryCount    int
	maxRetries    int
	nextAttemptAt time.Time
	state         State
	lastErr       error
}

// readyHeap orders entries by priority, then by submission order.
type readyHeap []*entry

func (h readyHeap) Len() int { return len(h) }

func (h readyHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}

	return h[i].seq < h[j].seq
}

func (h readyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *readyHeap) Push(x any) { *h = append(*h, x.(*entry)) }

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]

	return e
}

// delayedHeap orders entries waiting for a retry by their next attempt time.
type delayedHeap []*entry

func (h delayedHeap) Len() int { return len(h) }

func (h delayedHeap) Less(i, j int) bool {
	if !h[i].nextAttemptAt.Equal(h[j].nextAttemptAt) {
		return h[i].nextAttemptAt.Before(h[j].nextAttemptAt)
	}

	return h[i].seq < h[j].seq
}

func (h delayedHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *delayedHeap) Push(x any) { *h = append(*h, x.(*entry)) }

func (h *delayedHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]

	return e
}

// queue is not synchronized; the pipeline guards it with its own mutex.
type queue struct {
	ready   readyHeap
	delayed delayedHeap
}

func newQueue() *queue {
	return &queue{}
}

func (q *queue) push(e *entry, now time.Time) {
	e.state = StateQueued

	if e.nextAttemptAt.After(now) {
		heap.Push(&q.delayed, e)

		return
	}

	heap.Push(&q.ready, e)
}

// pop returns the highest priority entry whose attempt time has come, or nil.
func (q *queue) pop(now time.Time) *entry {
	q.promote(now)

	if q.ready.Len() == 0 {
		return nil
	}

	e := heap.Pop(&q.ready).(*entry)
	e.state = StateInFlight

	return e
}

func (q *queue) promote(now time.Time) {
	for q.delayed.Len() > 0 && !q.delayed[0].nextAttemptAt.After(now) {
		heap.Push(&q.ready, heap.Pop(&q.delayed))
	}
}

// nextDue returns when the earliest delayed entry becomes ready.
func (q *queue) nextDue() (time.Time, bool) {
	if q.delayed.Len() == 0 {
		return time.Time{}, false
	}

	return q.delayed[0].nextAttemptAt, true
}

func (q *queue) len() int {
	return q.ready.Len() + q.delayed.Len()
}
