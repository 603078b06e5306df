package orchestrator

import "github.com/stepflow-dev/stepflow/types"

// workQueue is a deque of pending work items. It is owned exclusively by the
// coordinator loop and therefore needs no locking.
type workQueue struct {
	items []*types.WorkItem
}

func newWorkQueue(items []*types.WorkItem) *workQueue {
	q := &workQueue{items: make([]*types.WorkItem, len(items))}
	copy(q.items, items)
	return q
}

// Pop removes and returns the item at the head of the queue.
func (q *workQueue) Pop() (*types.WorkItem, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// PushFront returns an item to the head of the queue. Used when a worker
// dies before reporting a result, so in-flight work is never lost.
func (q *workQueue) PushFront(item *types.WorkItem) {
	q.items = append([]*types.WorkItem{item}, q.items...)
}

func (q *workQueue) Len() int {
	return len(q.items)
}
