// Package simthread confines calls into the world to a single goroutine.
//
// The simulated world is not safe for concurrent use. Backup workers run
// in parallel, but every enumeration, export and import they perform is
// marshalled onto the dispatcher's goroutine and executed in order.
package simthread

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned for calls submitted after Close.
var ErrClosed = errors.New("simthread: dispatcher closed")

// Dispatcher runs submitted functions one at a time on its own goroutine.
type Dispatcher struct {
	tasks chan func()

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// New starts a dispatcher with room for backlog pending calls.
func New(backlog int) *Dispatcher {
	if backlog < 0 {
		backlog = 0
	}
	d := &Dispatcher{
		tasks: make(chan func(), backlog),
		done:  make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for task := range d.tasks {
		task()
	}
}

// submit enqueues task unless the dispatcher is closed or ctx ends first.
func (d *Dispatcher) submit(ctx context.Context, task func()) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting calls, runs what is already queued and waits for
// the loop to exit.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.tasks)
	}
	d.mu.Unlock()
	<-d.done
}

// Call runs fn on the dispatcher and waits for its result. If ctx ends
// first, Call returns ctx.Err(); fn may still run later, and its result is
// discarded. A panic in fn is returned as an error instead of killing the
// dispatcher.
func Call[T any](ctx context.Context, d *Dispatcher, fn func() (T, error)) (T, error) {
	var zero T
	type result struct {
		val T
		err error
	}
	// buffered so an abandoned call never blocks the loop
	out := make(chan result, 1)

	task := func() {
		if ctx.Err() != nil {
			out <- result{err: ctx.Err()}
			return
		}
		var r result
		func() {
			defer func() {
				if p := recover(); p != nil {
					r = result{err: &PanicError{Value: p}}
				}
			}()
			r.val, r.err = fn()
		}()
		out <- r
	}

	if err := d.submit(ctx, task); err != nil {
		return zero, err
	}
	select {
	case r := <-out:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// PanicError carries a value recovered from a dispatched call.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return "simthread: panic in dispatched call: " + fmtValue(e.Value)
}

func fmtValue(v any) string {
	switch x := v.(type) {
	case error:
		return x.Error()
	case string:
		return x
	default:
		return "non-string panic value"
	}
}
