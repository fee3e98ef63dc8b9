// Package serial provides a FIFO write gate so concurrent producers never
// interleave writes to one shared sink.
package serial

import (
	"fmt"
	"sync"
)

// Queue chains write operations so that each one starts only after the
// previous one has settled. A failed operation does not stall the chain;
// later operations still run, in order.
//
// The zero value is not usable; create queues with New.
type Queue struct {
	mu   sync.Mutex
	tail chan struct{}
}

// New creates an empty Queue ready to accept operations.
func New() *Queue {
	tail := make(chan struct{})
	close(tail)
	return &Queue{tail: tail}
}

// Do enqueues op and returns a channel that receives its result once every
// previously enqueued operation has settled and op itself has run.
// The returned channel is buffered; the caller may discard it.
func (q *Queue) Do(op func() error) <-chan error {
	q.mu.Lock()
	prev := q.tail
	next := make(chan struct{})
	q.tail = next
	q.mu.Unlock()

	errc := make(chan error, 1)
	go func() {
		<-prev
		errc <- runOp(op)
		close(next)
	}()
	return errc
}

// DoSync enqueues op and blocks until it has run, returning its error.
func (q *Queue) DoSync(op func() error) error {
	return <-q.Do(op)
}

// Wait blocks until every operation enqueued before the call has settled.
func (q *Queue) Wait() {
	q.mu.Lock()
	tail := q.tail
	q.mu.Unlock()
	<-tail
}

// runOp invokes op, converting a panic into an error so one misbehaving
// operation cannot take down the chain behind it.
func runOp(op func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("write operation panicked: %v", r)
		}
	}()
	return op()
}
