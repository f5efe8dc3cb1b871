package stream

import (
	"sync"

	"civicdesk/internal/audit"
)

const defaultCapacity = 10_000

// Queue is a bounded FIFO of entries awaiting delivery. A full queue evicts
// its oldest entry so recent activity is always kept.
type Queue struct {
	mu      sync.Mutex
	items   []audit.Entry
	limit   int
	evicted int64
}

func NewQueue(limit int) *Queue {
	if limit <= 0 {
		limit = defaultCapacity
	}
	return &Queue{limit: limit}
}

func (q *Queue) Push(e audit.Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == q.limit {
		q.items[0] = audit.Entry{}
		q.items = q.items[1:]
		q.evicted++
	}
	q.items = append(q.items, e)
}

// Take removes up to n entries, oldest first. It returns nil when empty.
func (q *Queue) Take(n int) []audit.Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	n = min(n, len(q.items))
	out := make([]audit.Entry, n)
	copy(out, q.items)
	clear(q.items[:n])
	q.items = q.items[n:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Evicted counts entries lost to overflow.
func (q *Queue) Evicted() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evicted
}
