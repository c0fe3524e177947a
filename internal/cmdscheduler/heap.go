package cmdscheduler

// cmdHeap is a binary min-heap keyed by (Priority, timestamp): lower
// Priority value wins, ties broken by lower (earlier) timestamp, so
// earlier identical-priority commands win (spec.md §4.4).
type cmdHeap []*Command

func (h cmdHeap) Len() int { return len(h) }

func (h cmdHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].timestamp < h[j].timestamp
}

func (h cmdHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cmdHeap) Push(x any) {
	*h = append(*h, x.(*Command))
}

func (h *cmdHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
