// Package pipeline runs a single call through the interceptor chain, the
// request encoder, the transport and the response decoders. Every stage
// reports through callbacks; nothing in the pipeline blocks except the
// synchronous entry point.
package pipeline

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/apex/log"

	"github.com/gryphon-zone/screech/async"
	"github.com/gryphon-zone/screech/request"
)

// Response is the outcome of a successful call.
type Response struct {
	// Entity is the decoded payload.
	Entity any
	// Headers is nil for responses produced without an exchange, such as
	// those made up by a short-circuiting interceptor.
	Headers *request.ResponseHeaders
}

// Continuation resumes the chain at the next interceptor. A nil callback
// forwards the response straight to the interceptor's own callback.
type Continuation func(req request.Request, cb async.Callback[Response])

// Interceptor observes or alters a call. It either invokes next, possibly
// with a changed request and its own response callback, or completes cb
// itself.
type Interceptor interface {
	Intercept(req request.Request, next Continuation, cb async.Callback[Response])
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(req request.Request, next Continuation, cb async.Callback[Response])

// Intercept implements Interceptor.
func (f InterceptorFunc) Intercept(req request.Request, next Continuation, cb async.Callback[Response]) {
	f(req, next, cb)
}

// Encoder turns a request entity into bytes.
type Encoder interface {
	Encode(entity any, cb async.Callback[[]byte])
}

// EncoderFunc adapts a function to Encoder.
type EncoderFunc func(entity any, cb async.Callback[[]byte])

// Encode implements Encoder.
func (f EncoderFunc) Encode(entity any, cb async.Callback[[]byte]) {
	f(entity, cb)
}

// ContentCallback receives one chunk of the response body.
type ContentCallback func(chunk []byte)

// ClientCallback is handed to the transport with each request. Headers is
// called once, before any content; Complete and Abort are terminal and
// mutually exclusive.
type ClientCallback interface {
	Headers(headers *request.ResponseHeaders) ContentCallback
	Complete()
	Abort(err error)
}

// Transport performs the exchange for a serialized request.
type Transport interface {
	Request(req request.Serialized, cb ClientCallback)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(req request.Serialized, cb ClientCallback)

// Request implements Transport.
func (f TransportFunc) Request(req request.Serialized, cb ClientCallback) {
	f(req, cb)
}

// Decoder consumes a streamed response body and reports the decoded value
// through the callback it was created with.
type Decoder interface {
	Content(chunk []byte)
	Complete()
	Abort(err error)
}

// DecoderFactory creates a Decoder for one response. payload is the type
// the caller expects.
type DecoderFactory interface {
	Create(headers request.ResponseHeaders, payload reflect.Type, cb async.Callback[any]) Decoder
}

// DecoderFactoryFunc adapts a function to DecoderFactory.
type DecoderFactoryFunc func(headers request.ResponseHeaders, payload reflect.Type, cb async.Callback[any]) Decoder

// Create implements DecoderFactory.
func (f DecoderFactoryFunc) Create(headers request.ResponseHeaders, payload reflect.Type, cb async.Callback[any]) Decoder {
	return f(headers, payload, cb)
}

// Target supplies the base URI for a call.
type Target interface {
	Target() (string, error)
}

// StaticTarget is a fixed base URI.
type StaticTarget string

// Target implements Target.
func (t StaticTarget) Target() (string, error) {
	return string(t), nil
}

// TargetFunc adapts a function to Target.
type TargetFunc func() (string, error)

// Target implements Target.
func (f TargetFunc) Target() (string, error) {
	return f()
}

// Pipeline holds the collaborators shared by all calls. It is immutable
// after New and safe for concurrent use.
type Pipeline struct {
	interceptors []Interceptor
	encoder      Encoder
	transport    Transport
	decoder      DecoderFactory
	errorDecoder DecoderFactory
	requestExec  async.Executor
	responseExec async.Executor
	policy       async.Policy
	logger       log.Interface
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithInterceptors appends interceptors, outermost first.
func WithInterceptors(interceptors ...Interceptor) Option {
	return func(p *Pipeline) {
		p.interceptors = append(p.interceptors, interceptors...)
	}
}

// WithEncoder sets the request entity encoder.
func WithEncoder(encoder Encoder) Option {
	return func(p *Pipeline) {
		p.encoder = encoder
	}
}

// WithDecoder sets the factory used for 1xx and 2xx responses.
func WithDecoder(factory DecoderFactory) Option {
	return func(p *Pipeline) {
		p.decoder = factory
	}
}

// WithErrorDecoder sets the factory used for responses with status 300
// and above.
func WithErrorDecoder(factory DecoderFactory) Option {
	return func(p *Pipeline) {
		p.errorDecoder = factory
	}
}

// WithRequestExecutor sets the executor that starts asynchronous calls
// and resumes the chain after a hop.
func WithRequestExecutor(exec async.Executor) Option {
	return func(p *Pipeline) {
		p.requestExec = exec
	}
}

// WithResponseExecutor sets the executor that delivers responses.
func WithResponseExecutor(exec async.Executor) Option {
	return func(p *Pipeline) {
		p.responseExec = exec
	}
}

// WithPolicy sets how collaborators completing a callback twice are
// treated.
func WithPolicy(policy async.Policy) Option {
	return func(p *Pipeline) {
		p.policy = policy
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Interface) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

var (
	// ErrNoTransport is returned by New without a transport.
	ErrNoTransport = errors.New("pipeline: no transport configured")
	// ErrNoDecoder is returned by New when either decoder factory is
	// missing.
	ErrNoDecoder = errors.New("pipeline: decoder factories are required")
)

// New builds a Pipeline around transport. Both decoder factories must be
// configured; executors default to async.Spawn.
func New(transport Transport, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		transport:    transport,
		requestExec:  async.Spawn,
		responseExec: async.Spawn,
		policy:       async.Panic,
		logger:       log.Log,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.transport == nil {
		return nil, ErrNoTransport
	}
	if p.decoder == nil || p.errorDecoder == nil {
		return nil, ErrNoDecoder
	}
	for i, ic := range p.interceptors {
		if ic == nil {
			return nil, fmt.Errorf("pipeline: interceptor %d is nil", i)
		}
	}
	return p, nil
}

// Policy returns the double-completion policy.
func (p *Pipeline) Policy() async.Policy {
	return p.policy
}

// ResponseExecutor returns the executor used for final delivery.
func (p *Pipeline) ResponseExecutor() async.Executor {
	return p.responseExec
}
