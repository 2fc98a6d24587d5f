// Package transport implements pipeline.Transport on net/http. Responses
// are streamed to the pipeline in chunks as they are read.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/apex/log"
	"golang.org/x/net/http2"

	"github.com/gryphon-zone/screech/async"
	"github.com/gryphon-zone/screech/pipeline"
	"github.com/gryphon-zone/screech/request"
)

const (
	// DefaultTimeout bounds a whole exchange, body included.
	DefaultTimeout = 30 * time.Second
	// DefaultChunkSize is the read size for response bodies.
	DefaultChunkSize = 32 << 10
)

// Observer is told about every finished exchange before the pipeline is.
// status is zero when no response arrived.
type Observer func(req request.Serialized, status int, timing Timing, err error)

// HTTP sends serialized requests with an http.Client.
type HTTP struct {
	client    *http.Client
	exec      async.Executor
	headers   []request.Header
	chunkSize int
	observers []Observer
	logger    log.Interface
}

// Option configures an HTTP transport.
type Option func(*HTTP)

// WithClient replaces the underlying http.Client.
func WithClient(client *http.Client) Option {
	return func(t *HTTP) {
		t.client = client
	}
}

// WithTimeout sets the timeout for the whole exchange.
func WithTimeout(timeout time.Duration) Option {
	return func(t *HTTP) {
		t.client.Timeout = timeout
	}
}

// WithHeader adds a header sent with every request unless the request
// declares one with the same name.
func WithHeader(key, value string) Option {
	return func(t *HTTP) {
		t.headers = append(t.headers, request.Header{Key: key, Value: value})
	}
}

// WithExecutor sets where the blocking exchange runs. The default starts
// a goroutine per request.
func WithExecutor(exec async.Executor) Option {
	return func(t *HTTP) {
		t.exec = exec
	}
}

// WithChunkSize sets the body read size.
func WithChunkSize(n int) Option {
	return func(t *HTTP) {
		if n > 0 {
			t.chunkSize = n
		}
	}
}

// WithObserver registers an observer for finished exchanges.
func WithObserver(observer Observer) Option {
	return func(t *HTTP) {
		t.observers = append(t.observers, observer)
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Interface) Option {
	return func(t *HTTP) {
		t.logger = logger
	}
}

// WithInsecureSkipVerify disables certificate verification on the default
// transport.
func WithInsecureSkipVerify() Option {
	return func(t *HTTP) {
		base, ok := t.client.Transport.(*http.Transport)
		if !ok {
			return
		}
		base = base.Clone()
		if base.TLSClientConfig == nil {
			base.TLSClientConfig = &tls.Config{}
		}
		base.TLSClientConfig.InsecureSkipVerify = true
		t.client.Transport = base
	}
}

// WithH2C speaks HTTP/2 with prior knowledge over cleartext connections.
// https URLs are not supported by this transport.
func WithH2C() Option {
	return func(t *HTTP) {
		t.client.Transport = &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		}
	}
}

// New returns an HTTP transport.
func New(opts ...Option) *HTTP {
	t := &HTTP{
		client: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		},
		exec:      async.Spawn,
		chunkSize: DefaultChunkSize,
		logger:    log.Log,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Request implements pipeline.Transport.
func (t *HTTP) Request(req request.Serialized, cb pipeline.ClientCallback) {
	if err := t.exec.Execute(func() { t.do(req, cb) }); err != nil {
		cb.Abort(fmt.Errorf("transport: %w", err))
	}
}

// Build converts req into an *http.Request.
func (t *HTTP) Build(ctx context.Context, req request.Serialized) (*http.Request, error) {
	var body io.Reader
	b, hasBody := req.Body.Get()
	if hasBody {
		body = bytes.NewReader(b.Data)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL(), body)
	if err != nil {
		return nil, err
	}
	for _, h := range req.Headers {
		httpReq.Header.Add(h.Key, h.Value)
	}
	for _, h := range t.headers {
		if httpReq.Header.Get(h.Key) == "" {
			httpReq.Header.Set(h.Key, h.Value)
		}
	}
	if hasBody && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", b.ContentType)
	}
	return httpReq, nil
}

func (t *HTTP) do(req request.Serialized, cb pipeline.ClientCallback) {
	tr := newTracer()
	status, err := t.exchange(tr, req, cb)
	timing := tr.finish()

	entry := t.logger.WithFields(log.Fields{
		"method":  req.Method,
		"url":     req.URL(),
		"status":  status,
		"elapsed": timing.Total,
	})
	for _, observe := range t.observers {
		observe(req, status, timing, err)
	}
	if err != nil {
		entry.WithError(err).Debug("exchange failed")
		cb.Abort(err)
		return
	}
	entry.Debug("exchange completed")
	cb.Complete()
}

func (t *HTTP) exchange(tr *tracer, req request.Serialized, cb pipeline.ClientCallback) (int, error) {
	httpReq, err := t.Build(tr.with(context.Background()), req)
	if err != nil {
		return 0, err
	}
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	content := cb.Headers(&request.ResponseHeaders{
		Status:  resp.StatusCode,
		Headers: flatten(resp.Header),
	})

	buf := make([]byte, t.chunkSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			content(bytes.Clone(buf[:n]))
		}
		if errors.Is(err, io.EOF) {
			return resp.StatusCode, nil
		}
		if err != nil {
			return resp.StatusCode, err
		}
	}
}

// flatten lists header values with keys in sorted order.
func flatten(h http.Header) []request.Header {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var out []request.Header
	for _, k := range keys {
		for _, v := range h[k] {
			out = append(out, request.Header{Key: k, Value: v})
		}
	}
	return out
}
