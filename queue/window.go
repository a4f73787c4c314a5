package queue

import (
	"container/heap"
	"time"
)

// entryHeap is a priority queue of in-memory Entry values, sorted by
// Priority then NotBefore then Depth, lowest first.
type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	if !h[i].NotBefore.Equal(h[j].NotBefore) {
		return h[i].NotBefore.Before(h[j].NotBefore)
	}
	return h[i].Depth < h[j].Depth
}
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(*Entry)) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// window is the bounded in-memory structure for one job: enqueue beyond
// its capacity spills to the persistent table until drained.
type window struct {
	cap  int
	heap entryHeap
}

func newWindow(cap int) *window {
	w := &window{cap: cap}
	heap.Init(&w.heap)
	return w
}

func (w *window) len() int { return w.heap.Len() }

func (w *window) full() bool { return w.heap.Len() >= w.cap }

func (w *window) push(e *Entry) { heap.Push(&w.heap, e) }

// pop returns the highest-priority ready entry (NotBefore <= now), or nil
// if the window is empty or every entry is still delayed.
func (w *window) pop(now time.Time) *Entry {
	best := -1
	for i, e := range w.heap {
		if e.NotBefore.After(now) {
			continue
		}
		if best == -1 || w.heap.Less(i, best) {
			best = i
		}
	}
	if best == -1 {
		return nil
	}
	return heap.Remove(&w.heap, best).(*Entry)
}
