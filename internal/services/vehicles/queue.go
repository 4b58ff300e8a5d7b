package vehicles

import "container/heap"

// idHeap is a min-heap of numeric vehicle ids. Entries are removed lazily:
// whoever pops checks that the vehicle still exists and is still waiting.
type idHeap []int

func (h idHeap) Len() int           { return len(h) }
func (h idHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *idHeap) Push(x any) { *h = append(*h, x.(int)) }

func (h *idHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (h *idHeap) push(num int) { heap.Push(h, num) }

func (h *idHeap) peek() (int, bool) {
	if len(*h) == 0 {
		return 0, false
	}
	return (*h)[0], true
}

func (h *idHeap) pop() int { return heap.Pop(h).(int) }
