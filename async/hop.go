package async

import (
	"sync/atomic"

	"github.com/petermattis/goid"
)

// Hop decides where the next step of a stage runs. A step arriving on the
// goroutine that is executing Run runs inline; any other step, whether it
// arrives after Run returned or from another goroutine while Run is still
// in progress, is handed to an executor. This keeps synchronous chains on
// one stack and moves completions from elsewhere onto a known executor.
type Hop struct {
	// owner is the id of the goroutine inside Run, 0 when idle.
	owner atomic.Int64
	// OnReject, if set, observes executor rejections before the step
	// falls back to running inline.
	OnReject func(err error)
}

// NewHop returns an idle Hop.
func NewHop() *Hop {
	return &Hop{}
}

// Run executes stage, making the calling goroutine the hop's owner for
// its duration.
func (h *Hop) Run(stage func()) {
	prev := h.owner.Swap(goid.Get())
	defer h.owner.Store(prev)
	stage()
}

// Running reports whether Run is in progress on any goroutine.
func (h *Hop) Running() bool {
	return h.owner.Load() != 0
}

// Do runs step inline when called from inside Run on the owning goroutine
// and on exec otherwise. If exec rejects step it runs inline and the
// rejection is reported to OnReject and returned.
func (h *Hop) Do(exec Executor, step func()) error {
	if owner := h.owner.Load(); owner != 0 && owner == goid.Get() {
		step()
		return nil
	}
	if err := exec.Execute(step); err != nil {
		if h.OnReject != nil {
			h.OnReject(err)
		}
		step()
		return err
	}
	return nil
}

// Deliver returns a Callback forwarding to cb through h.Do on exec.
// Rejections reach h.OnReject.
func Deliver[T any](cb Callback[T], h *Hop, exec Executor) Callback[T] {
	return &hopCallback[T]{cb: cb, hop: h, exec: exec}
}

type hopCallback[T any] struct {
	cb   Callback[T]
	hop  *Hop
	exec Executor
}

func (d *hopCallback[T]) Succeed(value T) {
	_ = d.hop.Do(d.exec, func() { d.cb.Succeed(value) })
}

func (d *hopCallback[T]) Fail(err error) {
	_ = d.hop.Do(d.exec, func() { d.cb.Fail(err) })
}

// On returns a Callback that always completes cb on exec, falling back to
// the calling goroutine if exec rejects the task.
func On[T any](cb Callback[T], exec Executor) Callback[T] {
	return OnReporting(cb, exec, nil)
}

// OnReporting is On with a hook observing executor rejections. A nil
// onReject is allowed.
func OnReporting[T any](cb Callback[T], exec Executor, onReject func(err error)) Callback[T] {
	return &onCallback[T]{cb: cb, exec: exec, onReject: onReject}
}

type onCallback[T any] struct {
	cb       Callback[T]
	exec     Executor
	onReject func(err error)
}

func (o *onCallback[T]) run(task func()) {
	if err := o.exec.Execute(task); err != nil {
		if o.onReject != nil {
			o.onReject(err)
		}
		task()
	}
}

func (o *onCallback[T]) Succeed(value T) {
	o.run(func() { o.cb.Succeed(value) })
}

func (o *onCallback[T]) Fail(err error) {
	o.run(func() { o.cb.Fail(err) })
}
