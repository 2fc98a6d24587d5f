// Package client builds declarative HTTP clients: endpoint groups are
// compiled once into descriptors and every call runs through a pipeline of
// interceptors, an encoder, a transport and response decoders.
package client

import (
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/apex/log"

	"github.com/gryphon-zone/screech/async"
	"github.com/gryphon-zone/screech/codec"
	"github.com/gryphon-zone/screech/endpoint"
	"github.com/gryphon-zone/screech/pipeline"
	"github.com/gryphon-zone/screech/transport"
)

var (
	// ErrNoTarget is returned by New without a base URL or target.
	ErrNoTarget = errors.New("client: no base URL or target configured")
	// ErrUnknownEndpoint is returned for names no group declares.
	ErrUnknownEndpoint = errors.New("client: unknown endpoint")
	// ErrDuplicateEndpoint is returned by New when two methods share a
	// qualified name.
	ErrDuplicateEndpoint = errors.New("client: duplicate endpoint")
)

// TypeError reports a value that does not have the type a caller asked for.
type TypeError struct {
	Endpoint string
	Want     reflect.Type
	Got      reflect.Type
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("client: endpoint %s returns %v, not %v", e.Endpoint, e.Got, e.Want)
}

// Client calls the endpoints of a set of groups. It is safe for
// concurrent use.
type Client struct {
	descriptors map[string]*endpoint.Descriptor
	pipeline    *pipeline.Pipeline
	target      pipeline.Target
	logger      log.Interface
}

type options struct {
	target       pipeline.Target
	transport    pipeline.Transport
	pipeline     []pipeline.Option
	logger       log.Interface
	encoder      pipeline.Encoder
	decoder      pipeline.DecoderFactory
	errorDecoder pipeline.DecoderFactory
}

// Option configures a Client.
type Option func(*options)

// WithBaseURL sets a fixed base URL.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.target = pipeline.StaticTarget(baseURL)
	}
}

// WithTarget sets a base URL resolved on every call.
func WithTarget(target pipeline.Target) Option {
	return func(o *options) {
		o.target = target
	}
}

// WithTransport replaces the default net/http transport.
func WithTransport(t pipeline.Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithEncoder sets the request entity encoder (default: JSON).
func WithEncoder(e pipeline.Encoder) Option {
	return func(o *options) {
		o.encoder = e
	}
}

// WithDecoder sets the decoder factory for successful responses
// (default: JSON).
func WithDecoder(f pipeline.DecoderFactory) Option {
	return func(o *options) {
		o.decoder = f
	}
}

// WithErrorDecoder sets the decoder factory for responses with status
// 300 and above (default: codec.Status).
func WithErrorDecoder(f pipeline.DecoderFactory) Option {
	return func(o *options) {
		o.errorDecoder = f
	}
}

// WithInterceptors appends interceptors, outermost first.
func WithInterceptors(interceptors ...pipeline.Interceptor) Option {
	return func(o *options) {
		o.pipeline = append(o.pipeline, pipeline.WithInterceptors(interceptors...))
	}
}

// WithRequestExecutor sets the executor that runs asynchronous calls.
func WithRequestExecutor(exec async.Executor) Option {
	return func(o *options) {
		o.pipeline = append(o.pipeline, pipeline.WithRequestExecutor(exec))
	}
}

// WithResponseExecutor sets the executor that delivers every outcome.
func WithResponseExecutor(exec async.Executor) Option {
	return func(o *options) {
		o.pipeline = append(o.pipeline, pipeline.WithResponseExecutor(exec))
	}
}

// WithPolicy sets how collaborators completing a callback twice are
// treated.
func WithPolicy(policy async.Policy) Option {
	return func(o *options) {
		o.pipeline = append(o.pipeline, pipeline.WithPolicy(policy))
	}
}

// WithLogger sets the logger used by the client and its pipeline.
func WithLogger(logger log.Interface) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New compiles groups and assembles the call pipeline. Configuration
// errors in any group fail New.
func New(groups []endpoint.Group, opts ...Option) (*Client, error) {
	o := &options{
		logger:       log.Log,
		encoder:      codec.JSONEncoder(),
		decoder:      codec.JSON(),
		errorDecoder: codec.Status(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.target == nil {
		return nil, ErrNoTarget
	}
	if o.transport == nil {
		o.transport = transport.New(transport.WithLogger(o.logger))
	}

	descriptors := make(map[string]*endpoint.Descriptor)
	for _, g := range groups {
		compiled, err := endpoint.CompileGroup(g)
		if err != nil {
			return nil, err
		}
		for _, d := range compiled {
			if _, dup := descriptors[d.Name]; dup {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateEndpoint, d.Name)
			}
			descriptors[d.Name] = d
		}
	}

	popts := append([]pipeline.Option{
		pipeline.WithEncoder(o.encoder),
		pipeline.WithDecoder(o.decoder),
		pipeline.WithErrorDecoder(o.errorDecoder),
		pipeline.WithLogger(o.logger),
	}, o.pipeline...)
	p, err := pipeline.New(o.transport, popts...)
	if err != nil {
		return nil, err
	}

	o.logger.WithField("endpoints", len(descriptors)).Debug("client ready")
	return &Client{
		descriptors: descriptors,
		pipeline:    p,
		target:      o.target,
		logger:      o.logger,
	}, nil
}

// Endpoints returns the qualified endpoint names in sorted order.
func (c *Client) Endpoints() []string {
	names := make([]string, 0, len(c.descriptors))
	for name := range c.descriptors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Descriptor returns the compiled endpoint called name.
func (c *Client) Descriptor(name string) (*endpoint.Descriptor, bool) {
	d, ok := c.descriptors[name]
	return d, ok
}

func (c *Client) lookup(name string) (*endpoint.Descriptor, error) {
	d, ok := c.descriptors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEndpoint, name)
	}
	return d, nil
}

// Invoke calls the endpoint called name and returns the result in its
// declared shape. Asynchronous shapes return at once with a pending
// future; everything else blocks until the call is done.
func (c *Client) Invoke(name string, args ...any) (any, error) {
	d, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	return c.invoke(d, args)
}

func (c *Client) invoke(d *endpoint.Descriptor, args []any) (any, error) {
	if d.Shape.Async {
		declared, complete := d.Shape.Pending()
		c.pipeline.Start(d, c.target, args, async.Funcs[pipeline.Response]{
			OnSuccess: func(r pipeline.Response) { complete(r.Entity, nil) },
			OnFailure: func(err error) { complete(nil, err) },
		})
		return declared, nil
	}
	r, err := c.pipeline.Call(d, c.target, args)
	if err != nil {
		return nil, err
	}
	return d.Shape.Wrap(r.Entity)
}

// Exchange calls the endpoint called name synchronously and returns the
// raw pipeline response, headers included, regardless of its declared
// shape.
func (c *Client) Exchange(name string, args ...any) (pipeline.Response, error) {
	d, err := c.lookup(name)
	if err != nil {
		return pipeline.Response{}, err
	}
	return c.pipeline.Call(d, c.target, args)
}

// Go starts a call to the endpoint called name and returns at once. The
// future completes with the raw pipeline response on the response
// executor.
func (c *Client) Go(name string, args ...any) (*async.Future[pipeline.Response], error) {
	d, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	return c.pipeline.Go(d, c.target, args), nil
}
