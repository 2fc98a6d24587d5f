// Package interceptor holds stock pipeline interceptors: logging, latency
// histograms, Prometheus metrics, request IDs, static headers and canned
// responses.
package interceptor

import (
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"github.com/gryphon-zone/screech/async"
	"github.com/gryphon-zone/screech/pipeline"
	"github.com/gryphon-zone/screech/request"
)

// RequestIDHeader is the header set by RequestID when none is given.
const RequestIDHeader = "X-Request-Id"

// Logging logs each call when it starts and when it finishes.
func Logging(logger log.Interface) pipeline.Interceptor {
	return pipeline.InterceptorFunc(func(req request.Request, next pipeline.Continuation, cb async.Callback[pipeline.Response]) {
		entry := logger.WithFields(log.Fields{
			"endpoint": req.Endpoint,
			"method":   req.Method,
			"uri":      req.URI(),
		})
		start := time.Now()
		entry.Debug("calling")
		next(req, async.Funcs[pipeline.Response]{
			OnSuccess: func(r pipeline.Response) {
				e := entry.WithField("elapsed", time.Since(start))
				if r.Headers != nil {
					e = e.WithField("status", r.Headers.Status)
				}
				e.Info("call succeeded")
				cb.Succeed(r)
			},
			OnFailure: func(err error) {
				entry.WithError(err).WithField("elapsed", time.Since(start)).Warn("call failed")
				cb.Fail(err)
			},
		})
	})
}

// RequestID tags every request with a random UUID in header, unless the
// request already carries one. An empty header means RequestIDHeader.
func RequestID(header string) pipeline.Interceptor {
	if header == "" {
		header = RequestIDHeader
	}
	return pipeline.InterceptorFunc(func(req request.Request, next pipeline.Continuation, _ async.Callback[pipeline.Response]) {
		if _, ok := req.Header(header); !ok {
			req = req.WithHeader(header, uuid.NewString())
		}
		next(req, nil)
	})
}

// Header adds a header template to every request that does not already
// declare it.
func Header(key, value string) pipeline.Interceptor {
	return pipeline.InterceptorFunc(func(req request.Request, next pipeline.Continuation, _ async.Callback[pipeline.Response]) {
		if _, ok := req.Header(key); !ok {
			req = req.WithHeader(key, value)
		}
		next(req, nil)
	})
}

// Static answers every call with entity without contacting the server.
func Static(entity any) pipeline.Interceptor {
	return pipeline.InterceptorFunc(func(_ request.Request, _ pipeline.Continuation, cb async.Callback[pipeline.Response]) {
		cb.Succeed(pipeline.Response{Entity: entity})
	})
}

// Mock answers calls for which respond reports true and forwards the
// rest. A non-nil error from respond fails the call.
func Mock(respond func(req request.Request) (entity any, handled bool, err error)) pipeline.Interceptor {
	return pipeline.InterceptorFunc(func(req request.Request, next pipeline.Continuation, cb async.Callback[pipeline.Response]) {
		entity, handled, err := respond(req)
		switch {
		case err != nil:
			cb.Fail(err)
		case handled:
			cb.Succeed(pipeline.Response{Entity: entity})
		default:
			next(req, nil)
		}
	})
}
