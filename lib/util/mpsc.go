// Package util
//
// This file provides an unbounded multi-producer single-consumer queue.
//
// Producers append to a linked list; a single forwarding goroutine moves the
// values into the channel returned by Recv. Push never waits for the consumer,
// so RPC handlers can hand reports to the leader loop without waiting for a
// reconciliation round to finish.
//
//   - Push is safe for concurrent use and never waits for the consumer
//   - Values pushed by one producer are received in push order
//   - Values of different producers interleave in completion order
//   - A Push that returned true happened before Close and is delivered
//   - After Close, queued values are still delivered, then Recv is closed
//   - Stop ends the forwarding goroutine at once and drops undelivered values
package util

import (
	"sync"
	"sync/atomic"
)

type mpscNode[T any] struct {
	value T
	next  atomic.Pointer[mpscNode[T]]
}

// MPSCQueue is an unbounded multi-producer single-consumer queue.
type MPSCQueue[T any] struct {
	head   *mpscNode[T] // only touched by the forwarding goroutine
	tail   *mpscNode[T] // guarded by mu
	out    chan T
	closed atomic.Bool
	pushed atomic.Int64
	popped atomic.Int64

	mu       sync.Mutex
	wake     *sync.Cond
	quit     chan struct{}
	quitOnce sync.Once
	stopped  sync.WaitGroup
}

// NewMPSCQueue creates a queue and starts its forwarding goroutine.
func NewMPSCQueue[T any]() *MPSCQueue[T] {
	sentinel := &mpscNode[T]{}
	q := &MPSCQueue[T]{
		head: sentinel,
		tail: sentinel,
		out:  make(chan T),
		quit: make(chan struct{}),
	}
	q.wake = sync.NewCond(&q.mu)

	q.stopped.Add(1)
	go q.forward()
	return q
}

// Push appends value. It returns false if the queue is closed.
func (q *MPSCQueue[T]) Push(value T) bool {
	n := &mpscNode[T]{value: value}

	// the closed check and the link are one step with respect to Close
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed.Load() {
		return false
	}
	q.tail.next.Store(n)
	q.tail = n
	q.pushed.Add(1)
	q.wake.Signal()
	return true
}

func (q *MPSCQueue[T]) forward() {
	defer q.stopped.Done()
	defer close(q.out)

	for {
		next := q.head.next.Load()
		if next != nil {
			var zero T
			v := next.value
			next.value = zero
			q.head = next

			// Hand the value to the consumer (or give up on Stop)
			select {
			case q.out <- v:
				q.popped.Add(1)
			case <-q.quit:
				return
			}
			continue
		}

		// Wait for the next value or Close
		q.mu.Lock()
		for q.head.next.Load() == nil && !q.closed.Load() {
			q.wake.Wait()
		}
		done := q.head.next.Load() == nil && q.closed.Load()
		q.mu.Unlock()
		if done {
			return
		}
	}
}

// Recv returns the channel the queued values are delivered on.
func (q *MPSCQueue[T]) Recv() <-chan T {
	return q.out
}

// Close stops accepting new values. Values already queued are still delivered.
func (q *MPSCQueue[T]) Close() {
	q.mu.Lock()
	q.closed.Store(true)
	q.wake.Broadcast()
	q.mu.Unlock()
}

// Stop closes the queue, drops all values nobody received yet and waits for
// the forwarding goroutine to exit. Recv is closed afterwards.
func (q *MPSCQueue[T]) Stop() {
	q.Close()
	q.quitOnce.Do(func() { close(q.quit) })
	q.stopped.Wait()
}

// IsClosed reports whether Close was called.
func (q *MPSCQueue[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns the number of values pushed but not yet received.
func (q *MPSCQueue[T]) Len() int {
	return int(q.pushed.Load() - q.popped.Load())
}
