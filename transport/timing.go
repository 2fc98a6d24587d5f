package transport

import (
	"context"
	"crypto/tls"
	"net/http/httptrace"
	"sync"
	"time"
)

// Timing breaks down where the time of one exchange went.
type Timing struct {
	Start            time.Time
	DNSLookup        time.Duration
	TCPConnect       time.Duration
	TLSHandshake     time.Duration
	TimeToFirstByte  time.Duration
	ContentTransfer  time.Duration
	Total            time.Duration
	ReusedConnection bool
}

// tracer records Timing through an httptrace.ClientTrace. Hooks may fire
// on transport goroutines, so fields are guarded.
type tracer struct {
	mu sync.Mutex
	t  Timing

	dnsStart, connectStart, tlsStart time.Time
	// lastPhaseEnd marks the end of the last completed connection phase.
	lastPhaseEnd time.Time
	firstByte    time.Time
}

func newTracer() *tracer {
	now := time.Now()
	return &tracer{t: Timing{Start: now}, lastPhaseEnd: now}
}

func (tr *tracer) with(ctx context.Context) context.Context {
	return httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			tr.mu.Lock()
			defer tr.mu.Unlock()
			tr.t.ReusedConnection = info.Reused
		},
		DNSStart: func(httptrace.DNSStartInfo) {
			tr.mu.Lock()
			defer tr.mu.Unlock()
			tr.dnsStart = time.Now()
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			tr.mu.Lock()
			defer tr.mu.Unlock()
			now := time.Now()
			tr.t.DNSLookup = now.Sub(tr.dnsStart)
			tr.lastPhaseEnd = now
		},
		ConnectStart: func(string, string) {
			tr.mu.Lock()
			defer tr.mu.Unlock()
			tr.connectStart = time.Now()
		},
		ConnectDone: func(_, _ string, err error) {
			if err != nil {
				return
			}
			tr.mu.Lock()
			defer tr.mu.Unlock()
			now := time.Now()
			tr.t.TCPConnect = now.Sub(tr.connectStart)
			tr.lastPhaseEnd = now
		},
		TLSHandshakeStart: func() {
			tr.mu.Lock()
			defer tr.mu.Unlock()
			tr.tlsStart = time.Now()
		},
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			if err != nil {
				return
			}
			tr.mu.Lock()
			defer tr.mu.Unlock()
			now := time.Now()
			tr.t.TLSHandshake = now.Sub(tr.tlsStart)
			tr.lastPhaseEnd = now
		},
		GotFirstResponseByte: func() {
			tr.mu.Lock()
			defer tr.mu.Unlock()
			tr.firstByte = time.Now()
			tr.t.TimeToFirstByte = tr.firstByte.Sub(tr.lastPhaseEnd)
		},
	})
}

// finish closes the measurement once the body has been read.
func (tr *tracer) finish() Timing {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	now := time.Now()
	tr.t.Total = now.Sub(tr.t.Start)
	if !tr.firstByte.IsZero() {
		tr.t.ContentTransfer = now.Sub(tr.firstByte)
	}
	return tr.t
}
