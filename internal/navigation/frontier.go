package navigation

import "github.com/zyedidia/generic/heap"

// frontierEntry is a queued cell with its priority (g for Dijkstra, g+h for A*).
// seq records insertion order and breaks priority ties first-in-first-out,
// which keeps both searches deterministic for a given grid and input.
type frontierEntry struct {
	idx      int
	priority float64
	seq      uint64
}

func lessEntry(a, b frontierEntry) bool {
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.seq < b.seq
}

// frontier is a min-priority queue of flat grid indices.
type frontier struct {
	h   *heap.Heap[frontierEntry]
	seq uint64
}

func newFrontier() *frontier {
	return &frontier{h: heap.New[frontierEntry](lessEntry)}
}

func (f *frontier) push(idx int, priority float64) {
	f.h.Push(frontierEntry{idx: idx, priority: priority, seq: f.seq})
	f.seq++
}

func (f *frontier) pop() (frontierEntry, bool) {
	return f.h.Pop()
}

func (f *frontier) len() int {
	return f.h.Size()
}

// reset drops all entries. The sequence counter restarts so a fresh
// computation orders ties exactly like the first one did.
func (f *frontier) reset() {
	f.h = heap.New[frontierEntry](lessEntry)
	f.seq = 0
}
