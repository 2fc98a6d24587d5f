// Package async contains the callback discipline used by the call
// pipeline: terminal callbacks that fire at most once, executors, hop-aware
// delivery and the Future returned by asynchronous calls.
package async

import (
	"errors"
	"sync/atomic"
)

// Callback receives exactly one terminal outcome.
type Callback[T any] interface {
	Succeed(value T)
	Fail(err error)
}

// Funcs adapts a pair of functions to Callback. Nil functions are no-ops.
type Funcs[T any] struct {
	OnSuccess func(T)
	OnFailure func(error)
}

// Succeed implements Callback.
func (f Funcs[T]) Succeed(value T) {
	if f.OnSuccess != nil {
		f.OnSuccess(value)
	}
}

// Fail implements Callback.
func (f Funcs[T]) Fail(err error) {
	if f.OnFailure != nil {
		f.OnFailure(err)
	}
}

// ErrAlreadyCompleted is the panic value raised by a Once callback under
// the Panic policy when it is completed a second time.
var ErrAlreadyCompleted = errors.New("async: callback already completed")

// Policy decides what a Once callback does when completed twice.
type Policy int

const (
	// Panic raises ErrAlreadyCompleted in the offending caller. The
	// pipeline recovers it only while the caller runs inside a stage; a
	// collaborator completing twice from a goroutine of its own gets an
	// unrecovered panic, as with a closed channel. Use Ignore when
	// collaborators are not trusted.
	Panic Policy = iota
	// Ignore silently drops the extra completion.
	Ignore
)

func (p Policy) String() string {
	switch p {
	case Panic:
		return "panic"
	case Ignore:
		return "ignore"
	default:
		return "unknown"
	}
}

// Once guards a Callback so that only the first terminal call is
// forwarded. Claiming is a single compare-and-swap, so concurrent
// completions race safely.
type Once[T any] struct {
	cb     Callback[T]
	policy Policy
	done   atomic.Bool
	// OnViolation, if set, observes dropped completions before the policy
	// is applied.
	OnViolation func(err error)
}

// NewOnce wraps cb.
func NewOnce[T any](cb Callback[T], policy Policy) *Once[T] {
	return &Once[T]{cb: cb, policy: policy}
}

// Done reports whether a terminal call has been claimed.
func (o *Once[T]) Done() bool {
	return o.done.Load()
}

// Succeed implements Callback.
func (o *Once[T]) Succeed(value T) {
	if !o.done.CompareAndSwap(false, true) {
		o.violate(nil)
		return
	}
	o.cb.Succeed(value)
}

// Fail implements Callback.
func (o *Once[T]) Fail(err error) {
	if !o.done.CompareAndSwap(false, true) {
		o.violate(err)
		return
	}
	o.cb.Fail(err)
}

// TrySucceed is Succeed without the violation policy. It reports whether
// the value was delivered.
func (o *Once[T]) TrySucceed(value T) bool {
	if !o.done.CompareAndSwap(false, true) {
		return false
	}
	o.cb.Succeed(value)
	return true
}

// TryFail is Fail without the violation policy. It reports whether the
// error was delivered.
func (o *Once[T]) TryFail(err error) bool {
	if !o.done.CompareAndSwap(false, true) {
		return false
	}
	o.cb.Fail(err)
	return true
}

func (o *Once[T]) violate(dropped error) {
	if o.OnViolation != nil {
		o.OnViolation(dropped)
	}
	if o.policy == Panic {
		panic(ErrAlreadyCompleted)
	}
}
