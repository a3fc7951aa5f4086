package engine

import (
	"context"
	"sync"

	"github.com/jgivc/downloadr/internal/entity"
)

// workQueue is an unbounded FIFO shared by the dispatcher and the workers.
// An id already waiting in the queue is not added twice.
type workQueue struct {
	mu      sync.Mutex
	items   []*entity.Item
	pending map[string]struct{}
	notify  chan struct{}
	closed  bool
}

func newWorkQueue() *workQueue {
	return &workQueue{
		pending: make(map[string]struct{}),
		notify:  make(chan struct{}, 1),
	}
}

// Push never blocks. It reports false when the queue is closed or the id is already waiting.
func (q *workQueue) Push(item *entity.Item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if _, ok := q.pending[item.ID]; ok {
		return false
	}

	q.pending[item.ID] = struct{}{}
	q.items = append(q.items, item)
	q.signalLocked()

	return true
}

// Pop waits for the next item. It returns false once ctx is done or the queue is
// closed and empty.
func (q *workQueue) Pop(ctx context.Context) (*entity.Item, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			delete(q.pending, item.ID)

			if len(q.items) > 0 {
				q.signalLocked()
			}
			q.mu.Unlock()

			return item, true
		}

		if q.closed {
			q.mu.Unlock()

			return nil, false
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-q.notify:
		}
	}
}

func (q *workQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.notify)
}

func (q *workQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

func (q *workQueue) signalLocked() {
	if q.closed {
		return
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}
}
