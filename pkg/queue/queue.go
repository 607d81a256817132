package queue

import (
	"container/heap"
	"sync"

	"github.com/sambigeara/relay/pkg/types"
)

// Queue is an unbounded priority queue of messages ordered by
// (timestamp, sender id). Pop yields the minimal key enqueued at the time of
// the call; it makes no promise about messages that arrive later.
type Queue struct {
	h  msgHeap
	mu sync.Mutex
}

func New() *Queue {
	return &Queue{}
}

func (q *Queue) Push(m types.Message) {
	q.mu.Lock()
	heap.Push(&q.h, m)
	q.mu.Unlock()
}

func (q *Queue) Pop() (types.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.h) == 0 {
		return types.Message{}, false
	}
	return heap.Pop(&q.h).(types.Message), true //nolint:forcetypeassert
}

// Peek returns the minimal message without removing it.
func (q *Queue) Peek() (types.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.h) == 0 {
		return types.Message{}, false
	}
	return q.h[0], true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

type msgHeap []types.Message

func (h msgHeap) Len() int           { return len(h) }
func (h msgHeap) Less(i, j int) bool { return h[i].Key().Less(h[j].Key()) }
func (h msgHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *msgHeap) Push(x any) {
	*h = append(*h, x.(types.Message)) //nolint:forcetypeassert
}

func (h *msgHeap) Pop() any {
	old := *h
	n := len(old)
	m := old[n-1]
	old[n-1] = types.Message{}
	*h = old[:n-1]
	return m
}
