package util

import (
	"runtime"
	"sync/atomic"
)

// node represents a single element in the mailbox
type node[T interface{}] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// Mailbox is a lock-free multi-producer single-consumer queue.
// Implementation uses a linked list of nodes with atomic operations
// for concurrent push operations without locks.
type Mailbox[T interface{}] struct {
	head   atomic.Pointer[node[T]] // owned by the consumer
	tail   atomic.Pointer[node[T]]
	size   atomic.Int64
	closed atomic.Bool
	notify chan struct{}
}

// NewMailbox creates a new lock-free multi-producer single-consumer mailbox
func NewMailbox[T interface{}]() *Mailbox[T] {
	// sentinel node (dummy node at the beginning)
	sentinel := &node[T]{}

	q := &Mailbox[T]{
		notify: make(chan struct{}, 1),
	}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)
	return q
}

// Push adds an item to the mailbox.
// Returns true if the item was added, or false if the mailbox is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *Mailbox[T]) Push(value T) bool {
	if q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}

	var backoff uint8 = 0
	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// CAS may fail if another producer already helped moving the tail, that's fine
				q.tail.CompareAndSwap(tailNode, newNode)
				q.size.Add(1)
				q.wake()
				return true
			}
		} else {
			// help update the tail pointer if another producer appended but did not move the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		/*
		 Exponential backoff to handle contention:
		  - At low contention (<10 retries): spin with Gosched to avoid thread scheduling overhead
		  - Afterwards: yield once per retry
		*/
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// wake signals the consumer without blocking. The channel has capacity one,
// so any number of pushes between two drains coalesce into one wake-up.
func (q *Mailbox[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Notify returns the channel the consumer waits on. A receive means
// "Drain may have something for you", spurious wake-ups are possible.
func (q *Mailbox[T]) Notify() <-chan struct{} {
	return q.notify
}

// Drain removes up to max items (max <= 0 means all) and passes them to fn in queue order.
// It returns the number of drained items.
//
// Thread-safety: Only the single consumer may call Drain.
func (q *Mailbox[T]) Drain(max int, fn func(T)) int {
	n := 0
	for max <= 0 || n < max {
		head := q.head.Load()
		next := head.next.Load()
		if next == nil {
			break
		}
		value := next.value
		q.head.Store(next)

		// help go gc: the new head is the next sentinel, drop its payload
		var zero T
		next.value = zero

		q.size.Add(-1)
		n++
		fn(value)
	}
	return n
}

// Close closes the mailbox, preventing further pushes.
// Items already queued can still be drained.
func (q *Mailbox[T]) Close() {
	q.closed.Store(true)
	q.wake()
}

// IsClosed returns true if the mailbox is closed.
func (q *Mailbox[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns an approximate count of the number of items in the mailbox.
func (q *Mailbox[T]) Len() int {
	return int(q.size.Load())
}
