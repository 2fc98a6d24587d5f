package interceptor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gryphon-zone/screech/async"
	"github.com/gryphon-zone/screech/pipeline"
	"github.com/gryphon-zone/screech/request"
)

// RateLimit paces calls with a leaky bucket: it forwards at most rate
// calls per second, delaying the rest on a timer instead of blocking the
// calling goroutine.
//
// The bucket keeps a virtual drip time advancing at the configured rate.
// A call arriving behind schedule is forwarded at once; one arriving
// ahead of it is forwarded when its slot comes. Accumulated slack is
// capped at the burst size, so a quiet period allows at most burst
// calls through back to back.
//
// RateLimit is safe for concurrent use.
type RateLimit struct {
	mu          sync.Mutex
	rate        float64
	burst       float64
	lastDrip    time.Time
	accumulated float64
	now         func() time.Time
	after       func(time.Duration, func())

	delayed   atomic.Int64
	totalWait atomic.Int64
}

// RateLimitStats reports how a RateLimit has paced calls.
type RateLimitStats struct {
	Rate      float64
	Burst     float64
	Delayed   int64
	TotalWait time.Duration
}

// NewRateLimit allows rate calls per second without bursting. A
// non-positive rate is one call per second.
func NewRateLimit(rate float64) *RateLimit {
	return NewRateLimitWithBurst(rate, 1)
}

// NewRateLimitWithBurst allows rate calls per second with up to burst
// calls stored up during quiet periods. burst is at least 1.
func NewRateLimitWithBurst(rate, burst float64) *RateLimit {
	if rate <= 0 {
		rate = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimit{
		rate:     rate,
		burst:    burst,
		lastDrip: time.Now(),
		now:      time.Now,
		after: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
}

// next returns when the next call may go out.
func (l *RateLimit) next() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	elapsed := max(now.Sub(l.lastDrip).Seconds(), 0)
	l.accumulated = min(l.accumulated+elapsed*l.rate, l.burst)

	if l.accumulated >= 1 {
		l.accumulated--
		l.lastDrip = now
		return now
	}

	// Slots already handed out lie ahead of now; queue behind the last.
	from := now
	if l.lastDrip.After(now) {
		from = l.lastDrip
	}
	wait := time.Duration((1 - l.accumulated) / l.rate * float64(time.Second))
	l.accumulated = 0
	l.lastDrip = from.Add(wait)
	return l.lastDrip
}

// Intercept implements pipeline.Interceptor.
func (l *RateLimit) Intercept(req request.Request, next pipeline.Continuation, _ async.Callback[pipeline.Response]) {
	wait := l.next().Sub(l.now())
	if wait <= 0 {
		next(req, nil)
		return
	}
	l.delayed.Add(1)
	l.totalWait.Add(int64(wait))
	l.after(wait, func() { next(req, nil) })
}

// Stats returns the pacing statistics so far.
func (l *RateLimit) Stats() RateLimitStats {
	l.mu.Lock()
	rate, burst := l.rate, l.burst
	l.mu.Unlock()
	return RateLimitStats{
		Rate:      rate,
		Burst:     burst,
		Delayed:   l.delayed.Load(),
		TotalWait: time.Duration(l.totalWait.Load()),
	}
}
