package patch

import (
	"container/heap"
	"slices"
)

// NanoStepQueue is a min-ordered multiset of nanosteps. Duplicates are
// kept: several waiters may request the same nanostep.
type NanoStepQueue struct {
	h nanoHeap
}

type nanoHeap []uint64

func (h nanoHeap) Len() int           { return len(h) }
func (h nanoHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h nanoHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *nanoHeap) Push(x any)        { *h = append(*h, x.(uint64)) }

func (h *nanoHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

func NewNanoStepQueue(values ...uint64) *NanoStepQueue {
	q := &NanoStepQueue{h: append(nanoHeap(nil), values...)}
	heap.Init(&q.h)
	return q
}

func (q *NanoStepQueue) Len() int { return q.h.Len() }

func (q *NanoStepQueue) Insert(n uint64) {
	heap.Push(&q.h, n)
}

// PeekMin returns the smallest nanostep without removing it
func (q *NanoStepQueue) PeekMin() (uint64, bool) {
	if len(q.h) == 0 {
		return 0, false
	}
	return q.h[0], true
}

// PopMin removes one copy of the smallest nanostep
func (q *NanoStepQueue) PopMin() (uint64, bool) {
	if len(q.h) == 0 {
		return 0, false
	}
	return heap.Pop(&q.h).(uint64), true
}

func (q *NanoStepQueue) Contains(n uint64) bool {
	return slices.Contains(q.h, n)
}

// RemoveAll drops every copy of n and returns how many were dropped
func (q *NanoStepQueue) RemoveAll(n uint64) int {
	return q.removeIf(func(v uint64) bool { return v == n })
}

// RemoveFrom drops every nanostep >= n
func (q *NanoStepQueue) RemoveFrom(n uint64) int {
	return q.removeIf(func(v uint64) bool { return v >= n })
}

func (q *NanoStepQueue) removeIf(drop func(uint64) bool) int {
	before := len(q.h)
	q.h = slices.DeleteFunc(q.h, drop)
	if len(q.h) != before {
		heap.Init(&q.h)
	}
	return before - len(q.h)
}

// Values returns the queued nanosteps in ascending order
func (q *NanoStepQueue) Values() []uint64 {
	out := slices.Clone([]uint64(q.h))
	slices.Sort(out)
	return out
}
