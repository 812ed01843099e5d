// Package async provides a minimal deliver-once task abstraction used for
// every network-bound operation in the runtime: session creation, login,
// listing population and tile reads all hand back a *Task so callers can
// await, poll or compose without blocking. A task resolves exactly once and
// any number of waiters observe the same outcome.
package async

import (
	"context"
	"fmt"
	"sync"
)

// Task is a handle on an asynchronous computation producing a T.
type Task[T any] struct {
	done   chan struct{}
	once   sync.Once
	cancel context.CancelFunc

	// val and err are written exactly once, before done is closed, and are
	// read-only afterwards.
	val T
	err error
}

// New returns an unresolved task. The returned resolve function completes it;
// calls after the first are no-ops.
func New[T any]() (*Task[T], func(T, error)) {
	t := &Task[T]{done: make(chan struct{})}
	return t, t.complete
}

// Go runs fn on a new goroutine and returns a task resolving with its result.
// The context passed to fn is canceled when Cancel is called on the task.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Task[T] {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task[T]{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				var zero T
				t.complete(zero, fmt.Errorf("task panicked: %v", r))
			}
		}()
		t.complete(fn(ctx))
	}()
	return t
}

// Completed returns a task already resolved with v.
func Completed[T any](v T) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}
	t.complete(v, nil)
	return t
}

// Failed returns a task already resolved with err.
func Failed[T any](err error) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}
	var zero T
	t.complete(zero, err)
	return t
}

func (t *Task[T]) complete(v T, err error) {
	t.once.Do(func() {
		t.val = v
		t.err = err
		close(t.done)
	})
}

// Await blocks until the task resolves or ctx is done.
func (t *Task[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.val, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel closed when the task has resolved.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// TryResult reports the outcome without blocking. ok is false while the task
// is still running.
func (t *Task[T]) TryResult() (v T, err error, ok bool) {
	select {
	case <-t.done:
		return t.val, t.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// Cancel requests cancellation of a task started with Go. It is safe to call
// on any task and more than once; tasks created resolved ignore it.
func (t *Task[T]) Cancel() {
	if t.cancel != nil {
		t.cancel()
	}
}
