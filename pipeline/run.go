package pipeline

import (
	"time"

	"github.com/apex/log"

	"github.com/gryphon-zone/screech/async"
	"github.com/gryphon-zone/screech/endpoint"
	"github.com/gryphon-zone/screech/request"
)

// Go starts a call on the request executor and returns its pending
// future. The future is completed on the response executor.
func (p *Pipeline) Go(d *endpoint.Descriptor, target Target, args []any) *async.Future[Response] {
	future := async.NewFuture[Response]()
	p.Start(d, target, args, future)
	return future
}

// Start runs a call on the request executor and reports its outcome to
// cb on the response executor. cb receives exactly one outcome.
func (p *Pipeline) Start(d *endpoint.Descriptor, target Target, args []any, cb async.Callback[Response]) {
	c := p.newCall(d, cb)
	if err := p.requestExec.Execute(func() { c.start(target, args) }); err != nil {
		c.log.WithError(err).Warn("request executor rejected call")
		c.finish(err)
	}
}

// Call runs the chain on the calling goroutine and waits for its outcome.
// Failures are returned as the collaborator produced them.
func (p *Pipeline) Call(d *endpoint.Descriptor, target Target, args []any) (Response, error) {
	future := async.NewFuture[Response]()
	p.newCall(d, future).start(target, args)
	return future.Get()
}

// call is the state owned by one invocation.
type call struct {
	p       *Pipeline
	d       *endpoint.Descriptor
	log     log.Interface
	started time.Time
	sink    async.Callback[Response]
}

func (p *Pipeline) newCall(d *endpoint.Descriptor, result async.Callback[Response]) *call {
	c := &call{
		p:       p,
		d:       d,
		started: time.Now(),
		log: p.logger.WithFields(log.Fields{
			"endpoint": d.Name,
			"method":   d.Method,
		}),
	}
	c.sink = async.Funcs[Response]{
		OnSuccess: func(r Response) {
			c.log.WithField("elapsed", time.Since(c.started)).Debug("call succeeded")
			async.OnReporting(result, p.responseExec, c.rejected("response")).Succeed(r)
		},
		OnFailure: func(err error) {
			c.log.WithError(err).WithField("elapsed", time.Since(c.started)).Debug("call failed")
			async.OnReporting(result, p.responseExec, c.rejected("response")).Fail(err)
		},
	}
	return c
}

// rejected logs an executor rejection; the step then runs inline.
func (c *call) rejected(step string) func(error) {
	return func(err error) {
		c.log.WithError(err).WithField("step", step).Debug("executor rejected step, running inline")
	}
}

// hop returns a Hop reporting rejections to the call's log.
func (c *call) hop() *async.Hop {
	h := async.NewHop()
	h.OnReject = c.rejected("stage")
	return h
}

// finish fails the call before any stage ran.
func (c *call) finish(err error) {
	c.sink.Fail(err)
}

func (c *call) start(target Target, args []any) {
	var (
		req request.Request
		err error
	)
	if perr := capture(func() {
		var base string
		if base, err = target.Target(); err == nil {
			req, err = c.d.Request(base, args)
		}
	}); perr != nil {
		err = perr
	}
	if err != nil {
		c.finish(err)
		return
	}
	c.stage(0, req, c.sink, nil)
}

// once guards a callback handed to a collaborator.
func once[T any](c *call, cb async.Callback[T]) *async.Once[T] {
	o := async.NewOnce(cb, c.p.policy)
	o.OnViolation = func(dropped error) {
		e := c.log.WithField("policy", c.p.policy)
		if dropped != nil {
			e = e.WithError(dropped)
		}
		e.Warn("callback completed more than once")
	}
	return o
}

// forward fails cb, logging the error when cb already has an outcome.
func (c *call) forward(cb *async.Once[Response], err error) {
	if !cb.TryFail(err) {
		c.log.WithError(err).Warn("dropping failure of completed stage")
	}
}

// stage runs interceptor i, or the exchange once every interceptor has
// run. handler receives the stage's outcome; panics raised by handler are
// forwarded to outer, the callback of the enclosing stage.
func (c *call) stage(i int, req request.Request, handler async.Callback[Response], outer *async.Once[Response]) {
	hop := c.hop()
	cb := once(c, async.Deliver(c.guard(handler, outer), hop, c.p.responseExec))
	hop.Run(func() {
		if err := capture(func() { c.invoke(i, req, cb, hop) }); err != nil {
			c.forward(cb, err)
		}
	})
}

func (c *call) invoke(i int, req request.Request, cb *async.Once[Response], hop *async.Hop) {
	if i == len(c.p.interceptors) {
		c.exchange(req, cb)
		return
	}
	next := func(nreq request.Request, handler async.Callback[Response]) {
		if handler == nil {
			handler = cb
		}
		_ = hop.Do(c.p.requestExec, func() { c.stage(i+1, nreq, handler, cb) })
	}
	c.p.interceptors[i].Intercept(req, next, cb)
}

// guard delivers to handler, turning a panic in handler into a failure of
// outer.
func (c *call) guard(handler async.Callback[Response], outer *async.Once[Response]) async.Callback[Response] {
	raise := func(err error) {
		if outer == nil {
			c.log.WithError(err).Error("response handler failed")
			return
		}
		c.forward(outer, err)
	}
	return async.Funcs[Response]{
		OnSuccess: func(r Response) {
			if err := capture(func() { handler.Succeed(r) }); err != nil {
				raise(err)
			}
		},
		OnFailure: func(cause error) {
			if err := capture(func() { handler.Fail(cause) }); err != nil {
				raise(combine(cause, err))
			}
		},
	}
}
