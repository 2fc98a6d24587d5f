package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/gryphon-zone/screech/async"
	"github.com/gryphon-zone/screech/optional"
	"github.com/gryphon-zone/screech/request"
)

// exchange encodes the entity, if any, and hands the serialized request to
// the transport. cb is the callback of the innermost stage.
func (c *call) exchange(req request.Request, cb *async.Once[Response]) {
	entity, ok := req.Entity.Get()
	if !ok {
		c.send(req, optional.None[[]byte](), cb)
		return
	}
	if c.p.encoder == nil {
		c.forward(cb, ErrNoEncoder)
		return
	}

	hop := c.hop()
	encoded := once(c, async.Deliver[[]byte](async.Funcs[[]byte]{
		OnSuccess: func(data []byte) {
			if err := capture(func() { c.send(req, optional.Some(data), cb) }); err != nil {
				c.forward(cb, err)
			}
		},
		OnFailure: func(err error) {
			c.forward(cb, err)
		},
	}, hop, c.p.requestExec))
	hop.Run(func() {
		if err := capture(func() { c.p.encoder.Encode(entity, encoded) }); err != nil {
			if !encoded.TryFail(err) {
				c.log.WithError(err).Warn("encoder failed after completing")
			}
		}
	})
}

func (c *call) send(req request.Request, body optional.Value[[]byte], cb *async.Once[Response]) {
	s, err := Serialize(req, body, c.d.Templates())
	if err != nil {
		c.forward(cb, err)
		return
	}
	x := newClientCallback(c, cb)
	if err := capture(func() { c.p.transport.Request(s, x) }); err != nil {
		x.Abort(err)
	}
}

// clientCallback receives the transport's view of one exchange and drives
// the decoder chosen for the response status.
type clientCallback struct {
	c  *call
	cb *async.Once[Response]
	// result receives the decoder outcome.
	result *async.Once[any]

	terminal atomic.Bool

	mu      sync.Mutex
	headers *request.ResponseHeaders
	decoder Decoder
	errPath bool
}

func newClientCallback(c *call, cb *async.Once[Response]) *clientCallback {
	x := &clientCallback{c: c, cb: cb}
	x.result = once(c, async.Callback[any](async.Funcs[any]{
		OnSuccess: x.deliver,
		OnFailure: func(err error) { c.forward(cb, err) },
	}))
	return x
}

func dropContent([]byte) {}

// Headers picks the decoder for the response status. Content arriving
// after a failure is discarded.
func (x *clientCallback) Headers(headers *request.ResponseHeaders) ContentCallback {
	if headers == nil {
		x.fail(ErrNilHeaders)
		return dropContent
	}

	x.mu.Lock()
	if x.headers != nil {
		x.mu.Unlock()
		x.fail(ErrDuplicateHeaders)
		return dropContent
	}
	x.headers = headers
	factory := x.c.p.decoder
	if !headers.IsSuccess() {
		factory = x.c.p.errorDecoder
		x.errPath = true
	}
	x.mu.Unlock()

	x.c.log.WithField("status", headers.Status).Debug("response headers received")

	var decoder Decoder
	if err := capture(func() { decoder = factory.Create(*headers, x.c.d.Shape.Payload, x.result) }); err != nil {
		x.fail(err)
		return dropContent
	}
	if decoder == nil {
		x.fail(ErrNilDecoder)
		return dropContent
	}

	x.mu.Lock()
	x.decoder = decoder
	x.mu.Unlock()
	return x.content
}

func (x *clientCallback) content(chunk []byte) {
	if x.result.Done() {
		return
	}
	decoder := x.current()
	if err := capture(func() { decoder.Content(chunk) }); err != nil {
		x.fail(err)
	}
}

// Complete ends the body. Only the first of Complete and Abort counts.
func (x *clientCallback) Complete() {
	if !x.terminal.CompareAndSwap(false, true) {
		x.c.log.Debug("dropping completion of finished exchange")
		return
	}
	decoder := x.current()
	if decoder == nil {
		x.fail(ErrNoHeaders)
		return
	}
	if err := capture(decoder.Complete); err != nil {
		x.fail(err)
	}
}

// Abort fails the exchange. Only the first of Complete and Abort counts.
func (x *clientCallback) Abort(err error) {
	if !x.terminal.CompareAndSwap(false, true) {
		x.c.log.WithError(err).Debug("dropping abort of finished exchange")
		return
	}
	if err == nil {
		err = ErrAborted
	}
	if decoder := x.current(); decoder != nil {
		if perr := capture(func() { decoder.Abort(err) }); perr != nil {
			err = combine(err, perr)
		}
	}
	x.fail(err)
}

func (x *clientCallback) current() Decoder {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.decoder
}

func (x *clientCallback) fail(err error) {
	if !x.result.TryFail(err) {
		x.c.log.WithError(err).Debug("dropping failure of decoded exchange")
	}
}

// deliver turns a decoded value into the stage outcome. On the error path
// a value that is an error fails the call.
func (x *clientCallback) deliver(value any) {
	x.mu.Lock()
	headers, errPath := x.headers, x.errPath
	x.mu.Unlock()

	if errPath {
		if err, ok := value.(error); ok {
			x.c.forward(x.cb, err)
			return
		}
	}
	if !x.cb.TrySucceed(Response{Entity: value, Headers: headers}) {
		x.c.log.Warn("dropping response of completed stage")
	}
}
