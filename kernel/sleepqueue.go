package kernel

import (
	"container/heap"
	"time"
)

type sleeper struct {
	p   *Process
	seq uint64
}

// sleepHeap orders sleepers by wakeup time, then by the order they went
// to sleep.
type sleepHeap []sleeper

func (h sleepHeap) Len() int { return len(h) }

func (h sleepHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.p.wakeupTime.Equal(b.p.wakeupTime) {
		return a.seq < b.seq
	}

	return a.p.wakeupTime.Before(b.p.wakeupTime)
}

func (h sleepHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *sleepHeap) Push(x interface{}) {
	*h = append(*h, x.(sleeper))
}

func (h *sleepHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = sleeper{}
	*h = old[:n-1]
	return x
}

type sleepQueue struct {
	h   sleepHeap
	seq uint64
}

func (q *sleepQueue) Len() int {
	return q.h.Len()
}

func (q *sleepQueue) push(p *Process) {
	q.seq++
	heap.Push(&q.h, sleeper{p: p, seq: q.seq})
}

// popDue removes and returns the earliest sleeper if it is due at now.
func (q *sleepQueue) popDue(now time.Time) (*Process, bool) {
	if q.h.Len() == 0 {
		return nil, false
	}

	if q.h[0].p.wakeupTime.After(now) {
		return nil, false
	}

	s := heap.Pop(&q.h).(sleeper)
	return s.p, true
}

func (q *sleepQueue) next() (time.Time, bool) {
	if q.h.Len() == 0 {
		return time.Time{}, false
	}

	return q.h[0].p.wakeupTime, true
}

func (q *sleepQueue) remove(p *Process) bool {
	for i, s := range q.h {
		if s.p == p {
			heap.Remove(&q.h, i)
			return true
		}
	}

	return false
}

// pids lists sleepers in wake order.
func (q *sleepQueue) pids() []int {
	sorted := make(sleepHeap, len(q.h))
	copy(sorted, q.h)

	var out []int
	for sorted.Len() > 0 {
		out = append(out, heap.Pop(&sorted).(sleeper).p.pid)
	}

	return out
}
