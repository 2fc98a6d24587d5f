package interceptor

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gryphon-zone/screech/async"
	"github.com/gryphon-zone/screech/codec"
	"github.com/gryphon-zone/screech/pipeline"
	"github.com/gryphon-zone/screech/request"
)

// Metrics exports Prometheus metrics for every call passing through it.
// It is safe for concurrent use.
type Metrics struct {
	callsTotal    *prometheus.CounterVec
	callDuration  *prometheus.HistogramVec
	callsInFlight *prometheus.GaugeVec
	errorsTotal   *prometheus.CounterVec
}

// NewMetrics registers the call metrics on the default registerer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry registers the call metrics on registry.
func NewMetricsWithRegistry(registry prometheus.Registerer) *Metrics {
	return &Metrics{
		callsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "screech_calls_total",
				Help: "Total number of endpoint calls completed",
			},
			[]string{"endpoint", "method", "status_code"},
		),
		callDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "screech_call_duration_seconds",
				Help:    "Duration of endpoint calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "method", "status_code"},
		),
		callsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "screech_calls_in_flight",
				Help: "Number of endpoint calls currently in flight",
			},
			[]string{"endpoint", "method"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "screech_errors_total",
				Help: "Total number of failed endpoint calls",
			},
			[]string{"endpoint", "method", "type"},
		),
	}
}

// Intercept implements pipeline.Interceptor.
func (m *Metrics) Intercept(req request.Request, next pipeline.Continuation, cb async.Callback[pipeline.Response]) {
	start := time.Now()
	inFlight := m.callsInFlight.WithLabelValues(req.Endpoint, req.Method)
	inFlight.Inc()

	next(req, async.Funcs[pipeline.Response]{
		OnSuccess: func(r pipeline.Response) {
			inFlight.Dec()
			status := 0
			if r.Headers != nil {
				status = r.Headers.Status
			}
			m.record(req, status, time.Since(start))
			cb.Succeed(r)
		},
		OnFailure: func(err error) {
			inFlight.Dec()
			status := 0
			var se *codec.StatusError
			if errors.As(err, &se) {
				status = se.Status
			}
			m.record(req, status, time.Since(start))
			m.errorsTotal.WithLabelValues(req.Endpoint, req.Method, errorType(err)).Inc()
			cb.Fail(err)
		},
	})
}

func (m *Metrics) record(req request.Request, status int, d time.Duration) {
	code := "none"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.callsTotal.WithLabelValues(req.Endpoint, req.Method, code).Inc()
	m.callDuration.WithLabelValues(req.Endpoint, req.Method, code).Observe(d.Seconds())
}

// errorType classifies a call failure for the errors_total label.
func errorType(err error) string {
	var (
		se *codec.StatusError
		de *codec.DecodeError
		pe *pipeline.PanicError
	)
	switch {
	case errors.As(err, &se):
		return "status"
	case errors.As(err, &de):
		return "decode"
	case errors.As(err, &pe):
		return "panic"
	default:
		return "transport"
	}
}
