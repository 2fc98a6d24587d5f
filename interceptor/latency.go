package interceptor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/gryphon-zone/screech/async"
	"github.com/gryphon-zone/screech/pipeline"
	"github.com/gryphon-zone/screech/request"
)

// LatencyConfig bounds the latency histograms.
type LatencyConfig struct {
	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 3600000000 = 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultLatencyConfig returns the default configuration.
func DefaultLatencyConfig() LatencyConfig {
	return LatencyConfig{
		HistogramMin:     1,
		HistogramMax:     3600000000, // 1 hour in microseconds
		HistogramSigFigs: 3,
	}
}

// LatencyStats summarizes the calls recorded for one endpoint.
type LatencyStats struct {
	Count    int64
	Failures int64
	Min      time.Duration
	Max      time.Duration
	Mean     time.Duration
	StdDev   time.Duration
	P50      time.Duration
	P90      time.Duration
	P95      time.Duration
	P99      time.Duration
}

// Latency records call latency per endpoint in HDR histograms.
//
// Latency is measured from the moment the interceptor runs to the moment
// its response callback fires, so it covers every stage nested inside it.
// It is safe for concurrent use.
type Latency struct {
	config LatencyConfig

	// HDR histogram RecordValue is not thread-safe; mu guards the map and
	// every histogram in it.
	mu    sync.Mutex
	hists map[string]*hdrhistogram.Histogram

	failures sync.Map // endpoint -> *atomic.Int64
	now      func() time.Time
}

// NewLatency creates a Latency recorder with the default configuration.
func NewLatency() *Latency {
	return NewLatencyWithConfig(DefaultLatencyConfig())
}

// NewLatencyWithConfig creates a Latency recorder.
func NewLatencyWithConfig(config LatencyConfig) *Latency {
	return &Latency{
		config: config,
		hists:  make(map[string]*hdrhistogram.Histogram),
		now:    time.Now,
	}
}

// Intercept implements pipeline.Interceptor.
func (l *Latency) Intercept(req request.Request, next pipeline.Continuation, cb async.Callback[pipeline.Response]) {
	start := l.now()
	next(req, async.Funcs[pipeline.Response]{
		OnSuccess: func(r pipeline.Response) {
			l.Record(req.Endpoint, l.now().Sub(start), true)
			cb.Succeed(r)
		},
		OnFailure: func(err error) {
			l.Record(req.Endpoint, l.now().Sub(start), false)
			cb.Fail(err)
		},
	})
}

// Record adds one observation for endpoint.
func (l *Latency) Record(endpoint string, d time.Duration, success bool) {
	micros := max(d.Microseconds(), l.config.HistogramMin)

	l.mu.Lock()
	hist, ok := l.hists[endpoint]
	if !ok {
		hist = hdrhistogram.New(l.config.HistogramMin, l.config.HistogramMax, l.config.HistogramSigFigs)
		l.hists[endpoint] = hist
	}
	// values beyond HistogramMax are dropped by the histogram
	_ = hist.RecordValue(micros)
	l.mu.Unlock()

	if !success {
		counter, _ := l.failures.LoadOrStore(endpoint, new(atomic.Int64))
		counter.(*atomic.Int64).Add(1)
	}
}

// Stats returns a snapshot of every endpoint recorded so far.
func (l *Latency) Stats() map[string]LatencyStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make(map[string]LatencyStats, len(l.hists))
	for name, hist := range l.hists {
		stats := LatencyStats{
			Count:  hist.TotalCount(),
			Min:    time.Duration(hist.Min()) * time.Microsecond,
			Max:    time.Duration(hist.Max()) * time.Microsecond,
			Mean:   time.Duration(hist.Mean()) * time.Microsecond,
			StdDev: time.Duration(hist.StdDev()) * time.Microsecond,
			P50:    time.Duration(hist.ValueAtQuantile(50)) * time.Microsecond,
			P90:    time.Duration(hist.ValueAtQuantile(90)) * time.Microsecond,
			P95:    time.Duration(hist.ValueAtQuantile(95)) * time.Microsecond,
			P99:    time.Duration(hist.ValueAtQuantile(99)) * time.Microsecond,
		}
		if counter, ok := l.failures.Load(name); ok {
			stats.Failures = counter.(*atomic.Int64).Load()
		}
		result[name] = stats
	}
	return result
}

// Reset drops every observation.
func (l *Latency) Reset() {
	l.mu.Lock()
	l.hists = make(map[string]*hdrhistogram.Histogram)
	l.mu.Unlock()
	l.failures.Clear()
}
