package engine

import (
	"context"
	"errors"
	"sync"
)

// ErrDrained is returned by [DeliveryQueue.Next] once the queue is sealed and
// every ordinal has been released. It marks normal termination, like io.EOF.
var ErrDrained = errors.New("engine: delivery queue drained")

// Result carries the outcome of one unit's synthesis. Audio is nil when Err
// is set; a failed unit still occupies its ordinal slot so the consumer can
// advance past it.
type Result struct {
	Ordinal int
	Audio   []byte
	Err     error
}

// DeliveryQueue reorders synthesis results. Producers push results in
// whatever order synthesis completes; a single consumer calling [DeliveryQueue.Next]
// observes them in strictly increasing ordinal order, blocking until the next
// expected ordinal arrives.
//
// The queue never throttles producers. Push stores the result and returns;
// dispatch concurrency is bounded upstream by the [Dispatcher].
type DeliveryQueue struct {
	mu      sync.Mutex
	pending map[int]Result
	next    int
	total   int
	sealed  bool

	// wake is a single-slot doorbell; the consumer rechecks all state on
	// every wakeup, so one pending signal covers any number of pushes.
	wake chan struct{}
}

// NewDeliveryQueue returns an empty queue expecting ordinals from 0.
func NewDeliveryQueue() *DeliveryQueue {
	return &DeliveryQueue{
		pending: make(map[int]Result),
		wake:    make(chan struct{}, 1),
	}
}

// Push accepts a completed synthesis result. Safe for concurrent use; results
// may arrive in any order.
func (q *DeliveryQueue) Push(r Result) {
	q.mu.Lock()
	q.pending[r.Ordinal] = r
	q.mu.Unlock()
	q.signal()
}

// Seal declares how many results the queue will receive in total. Once the
// consumer has released all of them, [DeliveryQueue.Next] returns [ErrDrained].
// Sealing with the count of dispatched units guarantees termination because
// every dispatched unit pushes exactly one result, success or failure.
func (q *DeliveryQueue) Seal(total int) {
	q.mu.Lock()
	q.total = total
	q.sealed = true
	q.mu.Unlock()
	q.signal()
}

func (q *DeliveryQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Next blocks until the result with the next expected ordinal is available
// and returns it. Failed results are returned like successful ones; skipping
// them is the consumer's call. Next returns [ErrDrained] after the sealed
// total has been released, and ctx.Err() if ctx expires while waiting.
//
// Next must only be called from a single consumer goroutine.
func (q *DeliveryQueue) Next(ctx context.Context) (Result, error) {
	for {
		q.mu.Lock()
		if r, ok := q.pending[q.next]; ok {
			delete(q.pending, q.next)
			q.next++
			q.mu.Unlock()
			return r, nil
		}
		if q.sealed && q.next >= q.total {
			q.mu.Unlock()
			return Result{}, ErrDrained
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
}
