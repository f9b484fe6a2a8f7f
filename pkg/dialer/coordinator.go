package dialer

import (
	"bufio"
	"context"
	"crypto/x509"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getmockd/wshandshake/pkg/auth"
	"github.com/getmockd/wshandshake/pkg/handshake"
	"github.com/getmockd/wshandshake/pkg/logging"
	"github.com/getmockd/wshandshake/pkg/transport"
)

// Failure messages produced by the coordinator itself.
const (
	MessageTimeout       = "WebSocket opening handshake timed out"
	MessageNoCredentials = "HTTP Authentication failed; no valid credentials available"
)

var (
	errCancelled = errors.New("handshake cancelled")
	errFinished  = errors.New("handshake finished")
	errStopped   = errors.New("coordinator stopped")
)

// aLongTimeAgo is a deadline in the past, used to abort blocked I/O.
var aLongTimeAgo = time.Unix(1, 0)

// Coordinator drives one opening handshake from connect to a terminal state.
//
// Start may be called once. Cancel may be called at any time from any
// goroutine, including from inside an Observer method.
type Coordinator struct {
	opts    Options
	obs     Observer
	log     *slog.Logger
	builder *handshake.Builder

	mu           sync.Mutex
	state        State
	started      bool
	conn         net.Conn
	timerRunning bool
	startedAt    time.Time
	cancel       context.CancelCauseFunc
	stopParent   func() bool
	done         chan struct{}

	cbMu       sync.Mutex
	silenced   atomic.Bool
	inCallback atomic.Bool
}

// New returns an idle coordinator. A nil obs is replaced by BaseObserver.
func New(opts Options, obs Observer) *Coordinator {
	opts = opts.withDefaults()
	if obs == nil {
		obs = BaseObserver{}
	}
	return &Coordinator{
		opts:    opts,
		obs:     obs,
		log:     logging.WithComponent(opts.Logger, "dialer"),
		builder: opts.builder(),
		done:    make(chan struct{}),
	}
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the coordinator reaches a terminal state.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Start begins the handshake in a new goroutine. Invalid options fail
// immediately with KindInvalidRequest. When ctx is done the coordinator is
// cancelled.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.state != StateIdle {
		c.mu.Unlock()
		return
	}
	c.started = true
	runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.mu.Unlock()

	if err := handshake.CheckURL(c.opts.URL); err != nil {
		c.fail(err)
		return
	}
	if err := c.builder.Check(); err != nil {
		c.fail(err)
		return
	}

	stop := context.AfterFunc(ctx, c.Cancel)
	c.mu.Lock()
	c.stopParent = stop
	c.mu.Unlock()

	if !c.step(StateConnecting) {
		stop()
		return
	}
	c.log.Debug("handshake started", logging.KeyURL, c.opts.URL.Redacted())
	go c.run(runCtx)
}

// Cancel aborts the handshake and releases the connection. No Observer
// method starts after Cancel returns. Cancel does not wait for a method that
// is already running, since that method may be the caller. Cancel after a
// terminal state is a no-op.
func (c *Coordinator) Cancel() {
	c.silenced.Store(true)
	if _, ok := c.transition(StateCancelled, errCancelled); ok {
		c.log.Debug("handshake cancelled")
	}
	if !c.inCallback.Load() {
		// Wait for an emit that passed the silenced check but has not
		// entered the observer yet.
		c.cbMu.Lock()
		c.cbMu.Unlock() //nolint:staticcheck // barrier
	}
}

func (c *Coordinator) run(ctx context.Context) {
	var (
		authorization string
		allowed       = slices.Clone(c.opts.AllowedCertificates)
		rounds        int
		tried         = make(map[string]bool)
	)
	for attempt := 1; ; attempt++ {
		log := c.log.With(logging.KeyAttempt, attempt)

		conn, ok := c.connect(ctx, log, &allowed)
		if !ok {
			return
		}
		if !c.step(StateSendingRequest) {
			return
		}

		req, err := c.builder.Build(c.opts.URL, authorization)
		if err != nil {
			c.fail(err)
			return
		}
		c.emit(false, func(o Observer) { o.OnOpeningHandshakeStarted(req.Info()) })

		resp, br, err := c.exchange(ctx, conn, req)
		if err != nil {
			if !errors.Is(err, errStopped) {
				c.fail(classify(err))
			}
			return
		}
		log.Debug("response received", "status", resp.StatusCode)
		c.emit(false, func(o Observer) { o.OnOpeningHandshakeFinished(resp.Info(req)) })

		if !c.step(StateValidating) {
			return
		}
		if resp.StatusCode == http.StatusUnauthorized {
			if !c.step(StateAuthChallenge) {
				return
			}
			authorization, err = c.answer(ctx, req, resp, &rounds, tried)
			if err != nil {
				c.fail(err)
				return
			}
			log.Debug("retrying with credentials")
			c.release()
			if !c.step(StateConnecting) {
				return
			}
			continue
		}

		negotiated, err := handshake.Validate(req, resp)
		if err != nil {
			c.fail(err)
			return
		}
		stream := &Stream{br: br, negotiated: negotiated, request: req.Info(), response: resp.Info(req)}
		got, ok := c.transition(StateSucceeded, errFinished)
		if !ok {
			return
		}
		stream.conn = got
		log.Info("handshake succeeded", "subprotocol", negotiated.Subprotocol)
		c.emit(true, func(o Observer) { o.OnSuccess(stream) })
		return
	}
}

// connect dials until a connection is adopted, asking the observer about
// untrusted certificates.
func (c *Coordinator) connect(ctx context.Context, log *slog.Logger, allowed *[]*x509.Certificate) (net.Conn, bool) {
	for {
		conn, err := c.opts.Transport.Connect(ctx, transport.Target{URL: c.opts.URL, AllowedCertificates: *allowed})
		if err == nil {
			return conn, c.adopt(conn)
		}

		var certErr *transport.CertificateError
		if !errors.As(err, &certErr) {
			c.fail(classify(err))
			return nil, false
		}
		log.Debug("certificate needs a decision", "code", certErr.Code)
		leaf := certErr.Leaf()
		if leaf == nil || !c.trust(ctx, certErr) {
			c.fail(&handshake.Error{Kind: handshake.KindSSLFailure, Detail: certErr.Code, Err: err})
			return nil, false
		}
		*allowed = append(*allowed, leaf)
		if !c.step(StateConnecting) {
			return nil, false
		}
	}
}

func (c *Coordinator) trust(ctx context.Context, certErr *transport.CertificateError) bool {
	d := newTrustDecision()
	info := &CertificateInfo{URL: c.opts.URL, Code: certErr.Code, Chain: certErr.Chain}
	c.emit(false, func(o Observer) { o.OnTrustDecisionRequired(info, d) })
	select {
	case proceed := <-d.ch:
		return proceed
	case <-ctx.Done():
		return false
	}
}

// exchange writes the request and reads the response head. A cancelled ctx
// unblocks both.
func (c *Coordinator) exchange(ctx context.Context, conn net.Conn, req *handshake.Request) (*handshake.Response, *bufio.Reader, error) {
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(aLongTimeAgo) })
	defer stop()

	if _, err := conn.Write(req.Bytes()); err != nil {
		return nil, nil, err
	}
	if !c.step(StateReadingResponse) {
		return nil, nil, errStopped
	}
	br := bufio.NewReader(conn)
	resp, err := handshake.ReadResponse(br, c.opts.Limits)
	if err != nil {
		return nil, nil, err
	}
	return resp, br, nil
}

// answer turns a 401 into an Authorization value.
func (c *Coordinator) answer(ctx context.Context, req *handshake.Request, resp *handshake.Response, rounds *int, tried map[string]bool) (string, error) {
	noCredentials := func(err error) error {
		return &handshake.Error{Kind: handshake.KindNoCredentials, Detail: MessageNoCredentials, Err: err}
	}
	if *rounds >= c.opts.MaxAuthRounds {
		return "", noCredentials(nil)
	}
	ch, ok := auth.Select(auth.ParseChallenges(resp.Header.Values(handshake.HeaderWWWAuthenticate)...))
	if !ok {
		return "", noCredentials(nil)
	}
	creds, ok := c.opts.Credentials.Lookup(ctx, auth.Query{URL: c.opts.URL, Scheme: ch.Scheme, Realm: ch.Realm()})
	if !ok {
		return "", noCredentials(nil)
	}
	key := ch.Scheme + "\x00" + ch.Realm() + "\x00" + creds.Username + "\x00" + creds.Password
	if tried[key] {
		return "", noCredentials(nil)
	}
	tried[key] = true
	*rounds++

	value, err := c.opts.Authorizer.Authorize(ch, creds, http.MethodGet, req.URL().RequestURI())
	if err != nil {
		return "", noCredentials(err)
	}
	return value, nil
}

// adopt records conn as the current connection, or closes it when the
// coordinator already stopped.
func (c *Coordinator) adopt(conn net.Conn) bool {
	c.mu.Lock()
	if c.state.Terminal() {
		c.mu.Unlock()
		_ = conn.Close()
		return false
	}
	c.conn = conn
	c.mu.Unlock()
	return true
}

// release closes the current connection before an auth retry.
func (c *Coordinator) release() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Coordinator) onTimeout() {
	c.fail(handshake.NewError(handshake.KindHandshakeTimeout, MessageTimeout))
}

func (c *Coordinator) fail(err error) {
	if _, ok := c.transition(StateFailed, err); !ok {
		return
	}
	c.log.Info("handshake failed", "kind", handshake.KindOf(err), logging.KeyError, err)
	msg := err.Error()
	c.emit(true, func(o Observer) { o.OnFailure(err, msg) })
}

func (c *Coordinator) step(to State) bool {
	_, ok := c.transition(to, nil)
	return ok
}

// transition moves to state to if the edge is legal. Entering Connecting
// from Idle starts the timer. Entering a terminal state stops the timer,
// cancels pending work and releases the connection; for Succeeded the
// connection is returned instead of closed.
func (c *Coordinator) transition(to State, cause error) (net.Conn, bool) {
	c.mu.Lock()
	from := c.state
	if !canTransition(from, to) {
		c.mu.Unlock()
		return nil, false
	}
	c.state = to
	if from == StateIdle && to == StateConnecting {
		c.startedAt = time.Now()
		c.timerRunning = true
		c.opts.Timer.Start(c.opts.Timeout, c.onTimeout)
	}
	if !to.Terminal() {
		c.mu.Unlock()
		c.log.Debug("state changed", "from", from, logging.KeyState, to)
		return nil, true
	}

	if c.timerRunning {
		c.timerRunning = false
		c.opts.Timer.Stop()
	}
	conn := c.conn
	c.conn = nil
	cancel, stopParent, startedAt := c.cancel, c.stopParent, c.startedAt
	c.mu.Unlock()

	c.log.Debug("state changed", "from", from, logging.KeyState, to)
	if cancel != nil {
		cancel(cause)
	}
	if stopParent != nil {
		stopParent()
	}
	if to != StateSucceeded && conn != nil {
		_ = conn.Close()
		conn = nil
	}
	c.record(from, to, cause, startedAt)
	close(c.done)
	return conn, true
}

func (c *Coordinator) record(from, to State, cause error, startedAt time.Time) {
	if c.opts.Recorder == nil {
		return
	}
	var elapsed time.Duration
	if !startedAt.IsZero() {
		elapsed = time.Since(startedAt)
	}
	switch to {
	case StateSucceeded:
		c.opts.Recorder.RecordHandshake(ResultConnected, handshake.KindUnknown, elapsed)
	case StateFailed:
		c.opts.Recorder.RecordHandshake(ResultFailed, handshake.KindOf(cause), elapsed)
	case StateCancelled:
		if from != StateIdle {
			c.opts.Recorder.RecordHandshake(ResultIncomplete, handshake.KindUnknown, elapsed)
		}
	}
}

// emit calls fn with the observer unless the coordinator was cancelled.
// Non-terminal callbacks are also dropped once a terminal state is reached.
func (c *Coordinator) emit(terminal bool, fn func(Observer)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	if c.silenced.Load() {
		return
	}
	if !terminal && c.State().Terminal() {
		return
	}
	c.inCallback.Store(true)
	defer c.inCallback.Store(false)
	fn(c.obs)
}

// classify maps transport and I/O errors to handshake errors.
func classify(err error) error {
	var he *handshake.Error
	if errors.As(err, &he) {
		return err
	}
	var ce *transport.ConnectError
	if errors.As(err, &ce) {
		return &handshake.Error{Kind: handshake.KindConnectionError, Detail: ce.Code, Err: err}
	}
	return &handshake.Error{Kind: handshake.KindConnectionError, Detail: transport.ConnectCode(err), Err: err}
}
