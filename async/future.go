package async

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// Future is the pending result of an asynchronous call. It implements
// Callback; the first completion wins and later ones are ignored.
//
// Cancelling the context passed to Wait stops the wait only. The call
// producing the Future keeps running.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

// NewFuture returns a pending Future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Completed returns a Future holding value.
func Completed[T any](value T) *Future[T] {
	f := NewFuture[T]()
	f.Succeed(value)
	return f
}

// Failed returns a Future holding err.
func Failed[T any](err error) *Future[T] {
	f := NewFuture[T]()
	f.Fail(err)
	return f
}

// Succeed implements Callback.
func (f *Future[T]) Succeed(value T) {
	f.once.Do(func() {
		f.value = value
		close(f.done)
	})
}

// Fail implements Callback.
func (f *Future[T]) Fail(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done is closed once the Future completes.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the Future has completed.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get blocks until the Future completes.
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.value, f.err
}

// Wait blocks until the Future completes or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// AsyncElem returns the reflect.Type of T. Endpoint compilation uses it to
// recognise *Future[T] as an asynchronous return shape. It is safe to call
// on a nil *Future.
func (*Future[T]) AsyncElem() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// NewPendingAny creates a pending *Future[T] boxed as any and a function
// completing it from an untyped result. It is safe to call on a nil
// *Future.
func (*Future[T]) NewPendingAny() (future any, complete func(result any, err error)) {
	f := NewFuture[T]()
	return f, func(result any, err error) {
		if err != nil {
			f.Fail(err)
			return
		}
		if result == nil {
			var zero T
			f.Succeed(zero)
			return
		}
		typed, ok := result.(T)
		if !ok {
			f.Fail(fmt.Errorf("async: result of type %T is not assignable to %s", result, f.AsyncElem()))
			return
		}
		f.Succeed(typed)
	}
}
