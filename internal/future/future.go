// Package future provides a single-assignment result cell that bridges a
// callback-driven completion into a blocking wait.
package future

import (
	"context"
	"sync/atomic"

	"pkt.systems/httptxn/fault"
)

const (
	statePending int32 = iota
	stateClaimed
	stateDone
)

// Future holds the outcome of one asynchronous operation. The first call to
// Resolve or Fail wins; later calls are discarded and report false.
type Future[T any] struct {
	state atomic.Int32
	done  chan struct{}
	value T
	err   error
}

// New returns a pending Future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve completes f with v. It reports whether this call won.
func (f *Future[T]) Resolve(v T) bool {
	if !f.state.CompareAndSwap(statePending, stateClaimed) {
		return false
	}
	f.value = v
	f.state.Store(stateDone)
	close(f.done)
	return true
}

// Fail completes f with err. It reports whether this call won.
func (f *Future[T]) Fail(err error) bool {
	if !f.state.CompareAndSwap(statePending, stateClaimed) {
		return false
	}
	if err == nil {
		err = fault.Transport("failed without cause", nil)
	}
	f.err = err
	f.state.Store(stateDone)
	close(f.done)
	return true
}

// Done is closed once f reaches a terminal state.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Peek returns the terminal outcome without blocking; ok is false while f is
// pending.
func (f *Future[T]) Peek() (value T, err error, ok bool) {
	select {
	case <-f.done:
		return f.value, f.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// Await blocks until f completes or ctx ends. When ctx ends first the result
// is an interrupted fault, even if f completes afterwards; the underlying
// operation is left running.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, fault.Interrupted("", context.Cause(ctx))
	}
}
