package bus

import (
	"container/heap"

	"aish/internal/api"
)

// maxQueueSize is the bounded FIFO capacity per CI queue (spec §4.3).
const maxQueueSize = 100

// maxDatagramSize bounds a single message so it stays atomic on the wire
// (spec §4.3 rationale: "atomic up to a configured maximum size").
const maxDatagramSize = 8 * 1024

type queuedMessage struct {
	msg api.Message
	seq int64
}

// priorityHeap orders queuedMessage by descending priority, then by
// ascending arrival sequence so equal-priority messages stay FIFO
// (spec §4.3 "higher priority dequeued first; equal priority by arrival
// order").
type priorityHeap []queuedMessage

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	if h[i].msg.Priority != h[j].msg.Priority {
		return h[i].msg.Priority > h[j].msg.Priority
	}
	return h[i].seq < h[j].seq
}

func (h priorityHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *priorityHeap) Push(x any) { *h = append(*h, x.(queuedMessage)) }

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*priorityHeap)(nil)
