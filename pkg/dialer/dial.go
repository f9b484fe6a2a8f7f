package dialer

import (
	"context"
	"sync"

	"github.com/getmockd/wshandshake/pkg/handshake"
)

// Outcome is everything observed during a blocking Dial.
type Outcome struct {
	// Stream is set on success.
	Stream *Stream

	// Err is the classified failure, or the context error when ctx ended
	// first.
	Err error

	// Requests and Responses hold the metadata of every attempt in order.
	Requests  []*handshake.RequestInfo
	Responses []*handshake.ResponseInfo
}

// Dial performs a handshake and blocks until it ends.
func Dial(ctx context.Context, opts Options) (*Stream, error) {
	out := DialOutcome(ctx, opts)
	return out.Stream, out.Err
}

// DialOutcome is Dial with the per-attempt metadata.
func DialOutcome(ctx context.Context, opts Options) *Outcome {
	obs := &dialObserver{ctx: ctx, trust: opts.Trust, done: make(chan struct{})}
	c := New(opts, obs)
	obs.stopped = c.Done()
	c.Start(ctx)

	select {
	case <-obs.done:
	case <-ctx.Done():
		c.Cancel()
		select {
		case <-obs.done:
		default:
			out := obs.snapshot()
			out.Err = ctx.Err()
			return out
		}
	}
	return obs.snapshot()
}

type dialObserver struct {
	ctx     context.Context
	trust   TrustFunc
	stopped <-chan struct{}

	mu   sync.Mutex
	out  Outcome
	once sync.Once
	done chan struct{}
}

func (o *dialObserver) OnOpeningHandshakeStarted(req *handshake.RequestInfo) {
	o.mu.Lock()
	o.out.Requests = append(o.out.Requests, req)
	o.mu.Unlock()
}

func (o *dialObserver) OnOpeningHandshakeFinished(resp *handshake.ResponseInfo) {
	o.mu.Lock()
	o.out.Responses = append(o.out.Responses, resp)
	o.mu.Unlock()
}

// OnTrustDecisionRequired asks the TrustFunc on its own goroutine so a slow
// answer never holds up the coordinator. The func's context ends when the
// handshake does.
func (o *dialObserver) OnTrustDecisionRequired(cert *CertificateInfo, d *TrustDecision) {
	if o.trust == nil {
		d.Abort()
		return
	}
	ctx, cancel := context.WithCancel(o.ctx)
	go func() {
		select {
		case <-o.stopped:
			cancel()
		case <-ctx.Done():
		}
	}()
	go func() {
		defer cancel()
		if o.trust(ctx, cert) {
			d.Continue()
			return
		}
		d.Abort()
	}()
}

func (o *dialObserver) OnSuccess(s *Stream) {
	o.mu.Lock()
	o.out.Stream = s
	o.mu.Unlock()
	o.finish()
}

func (o *dialObserver) OnFailure(err error, _ string) {
	o.mu.Lock()
	o.out.Err = err
	o.mu.Unlock()
	o.finish()
}

func (o *dialObserver) finish() { o.once.Do(func() { close(o.done) }) }

func (o *dialObserver) snapshot() *Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.out
	return &out
}
