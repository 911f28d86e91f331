package knn

import "container/heap"

// scoredID is one scored candidate: ascending score, id lexicographic
// tie-break.
type scoredID struct {
	id    string
	score float32
}

func less(a, b scoredID) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.id < b.id
}

// topKHeap is a bounded max-heap on (score, id): the worst of the
// current top-k sits at the root, so a full heap can reject a
// candidate in O(1) before any O(log k) work, and accept one in
// O(log k). Capacity is fixed at construction so it never grows past k
// entries — the engine never allocates proportional to n*k.
type topKHeap struct {
	k     int
	items []scoredID
}

func newTopKHeap(k int) *topKHeap {
	return &topKHeap{k: k, items: make([]scoredID, 0, k)}
}

func (h *topKHeap) Len() int { return len(h.items) }
func (h *topKHeap) Less(i, j int) bool {
	// Max-heap on "worse than": the root is the current worst kept
	// candidate, so a new better candidate can evict it.
	return less(h.items[j], h.items[i])
}
func (h *topKHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *topKHeap) Push(x interface{}) {
	h.items = append(h.items, x.(scoredID))
}
func (h *topKHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// offer inserts cand if the heap has room, or if cand beats the
// current worst kept candidate.
func (h *topKHeap) offer(cand scoredID) {
	if h.k <= 0 {
		return
	}
	if h.Len() < h.k {
		heap.Push(h, cand)
		return
	}
	worst := h.items[0]
	if less(cand, worst) {
		h.items[0] = cand
		heap.Fix(h, 0)
	}
}

// drain empties the heap into an ascending-sorted slice.
func (h *topKHeap) drain() []scoredID {
	out := make([]scoredID, 0, h.Len())
	for h.Len() > 0 {
		out = append(out, heap.Pop(h).(scoredID))
	}
	// heap.Pop on a max-heap yields descending order (worst first); the
	// caller wants ascending (best first).
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
