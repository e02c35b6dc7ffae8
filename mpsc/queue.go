package mpsc

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrClosed is returned from Queue.Send after the receiving side has closed the queue
var ErrClosed = errors.New("mpsc: the receiving side of the queue has been closed")

// chunkSize is the number of items held by each node of the queue's linked list
const chunkSize = 64

// Sender is the producer half of a Queue. Any number of goroutines may call Send concurrently.
type Sender[T any] interface {
	Send(item T) error
}

type chunk[T any] struct {
	items   [chunkSize]T
	next    *chunk[T]
	readPos int
	pos     int
}

// Queue is an unbounded multi-producer, single-consumer FIFO. Sends never block, and the consumer
// drains with TryRecv on its own schedule. Items sent by one producer are received in the order
// they were sent, but no ordering is promised between different producers.
type Queue[T any] struct {
	mutex sync.Mutex

	head, tail *chunk[T]
	length     int
	closed     bool
}

// New creates an empty Queue
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Send appends an item to the tail of the queue. It returns ErrClosed if the receiver has closed
// the queue, in which case the item is not retained.
func (q *Queue[T]) Send(item T) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return ErrClosed
	}

	if q.tail == nil {
		q.tail = &chunk[T]{}
		q.head = q.tail
	}

	if q.tail.pos == chunkSize {
		newTail := &chunk[T]{}
		q.tail.next = newTail
		q.tail = newTail
	}

	q.tail.items[q.tail.pos] = item
	q.tail.pos++
	q.length++

	return nil
}

// TryRecv removes the item at the head of the queue. The boolean return value is false if the
// queue was empty.
func (q *Queue[T]) TryRecv() (T, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return q.popLocked()
}

func (q *Queue[T]) popLocked() (T, bool) {
	var zero T

	for q.head != nil {
		if q.head.readPos < q.head.pos {
			item := q.head.items[q.head.readPos]
			q.head.items[q.head.readPos] = zero
			q.head.readPos++
			q.length--
			return item, true
		}

		if q.head == q.tail {
			// Single exhausted chunk, rewind it instead of throwing it away
			q.head.pos = 0
			q.head.readPos = 0
			return zero, false
		}

		q.head = q.head.next
	}

	return zero, false
}

// Len returns the number of items currently waiting in the queue
func (q *Queue[T]) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return q.length
}

// IsEmpty returns true if there are no items waiting in the queue
func (q *Queue[T]) IsEmpty() bool {
	return q.Len() == 0
}

// Close tears down the receiving side of the queue. Every subsequent Send will fail with
// ErrClosed. The items that were still waiting in the queue are returned so that the
// caller can dispose of them.
func (q *Queue[T]) Close() []T {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.closed = true

	remaining := make([]T, 0, q.length)
	for {
		item, ok := q.popLocked()
		if !ok {
			break
		}
		remaining = append(remaining, item)
	}

	q.head = nil
	q.tail = nil
	return remaining
}

// Closed returns true once Close has been called
func (q *Queue[T]) Closed() bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return q.closed
}
