package sim

import (
	"context"
	"sync"
)

// WriteRequest is one outstanding attribute write from a robot program.
type WriteRequest struct {
	RobotID string
	Path    string
	Value   string
}

// WriteQueue is the FIFO shared between robot programs (producers) and the
// scheduler (single consumer). Producers block while the queue is full; the
// consumer's Drain never blocks.
//
// Every push is stamped with the generation of the Drain that will return it,
// so a producer can wait for the tick whose update reflects its write.
type WriteQueue struct {
	mu         sync.Mutex
	notFull    *sync.Cond
	data       []WriteRequest
	capacity   int
	generation uint64
	closed     bool
}

// NewWriteQueue constructs a queue holding at most capacity pending writes.
func NewWriteQueue(capacity int) *WriteQueue {
	if capacity < 1 {
		capacity = 1
	}
	q := &WriteQueue{
		data:     make([]WriteRequest, 0, capacity),
		capacity: capacity,
	}
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push stages a write, blocking while the queue is full. Returns the write
// generation that will apply it.
func (q *WriteQueue) Push(ctx context.Context, w WriteRequest) (uint64, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.notFull.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.data) >= q.capacity && !q.closed {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		q.notFull.Wait()
	}
	if q.closed {
		return 0, ErrQueueClosed
	}
	q.data = append(q.data, w)
	return q.generation + 1, nil
}

// Drain returns all staged writes in FIFO order and the generation they
// belong to. The generation advances even when nothing was staged.
func (q *WriteQueue) Drain() ([]WriteRequest, uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.generation++
	if len(q.data) == 0 {
		return nil, q.generation
	}
	writes := make([]WriteRequest, len(q.data))
	copy(writes, q.data)
	q.data = q.data[:0]
	q.notFull.Broadcast()
	return writes, q.generation
}

// Generation reports the most recent drained generation.
func (q *WriteQueue) Generation() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.generation
}

// Len reports the number of staged writes.
func (q *WriteQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

// Close wakes blocked producers; later pushes fail with ErrQueueClosed.
func (q *WriteQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notFull.Broadcast()
}
