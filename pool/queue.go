package pool

import (
	"container/heap"
	"context"
	"time"
)

type taskState int

const (
	taskQueued taskState = iota
	taskActive
	taskDone
	taskCancelled
)

type taskResult struct {
	resp *Response
	err  error
}

// task is one pooled request: queued, then active, then done. A queued
// task whose caller gave up is marked cancelled and skipped by the pump
// without ever becoming active.
type task struct {
	req *Request
	ctx context.Context

	done chan taskResult

	state      taskState
	seq        uint64
	index      int
	enqueuedAt time.Time
}

// waitQueue is a priority heap: high before normal before low, FIFO
// within a tier via monotonic sequence numbers.
type waitQueue []*task

var _ heap.Interface = (*waitQueue)(nil)

func (q waitQueue) Len() int { return len(q) }

func (q waitQueue) Less(i, j int) bool {
	if q[i].req.Priority != q[j].req.Priority {
		return q[i].req.Priority > q[j].req.Priority
	}
	return q[i].seq < q[j].seq
}

func (q waitQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *waitQueue) Push(x any) {
	t := x.(*task)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *waitQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}

// popNext removes and returns the next runnable task, discarding
// cancelled entries along the way. Returns nil when the queue is empty.
func (q *waitQueue) popNext() *task {
	for q.Len() > 0 {
		t := heap.Pop(q).(*task)
		if t.state == taskCancelled {
			continue
		}
		return t
	}
	return nil
}
