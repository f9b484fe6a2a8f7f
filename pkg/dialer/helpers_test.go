package dialer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/getmockd/wshandshake/pkg/handshake"
	"github.com/getmockd/wshandshake/pkg/transport"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

// ============================================================================
// Timer
// ============================================================================

type manualTimer struct {
	mu     sync.Mutex
	fire   func()
	d      time.Duration
	starts int
	stops  int
}

func (m *manualTimer) Start(d time.Duration, fire func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d, m.fire = d, fire
	m.starts++
}

func (m *manualTimer) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
}

func (m *manualTimer) Fire() {
	m.mu.Lock()
	f := m.fire
	m.mu.Unlock()
	if f != nil {
		f()
	}
}

func (m *manualTimer) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts, m.stops
}

// ============================================================================
// Observer
// ============================================================================

type recordingObserver struct {
	mu        sync.Mutex
	events    []string
	requests  []*handshake.RequestInfo
	responses []*handshake.ResponseInfo
	stream    *Stream
	err       error
	msg       string
	done      chan struct{}

	onStarted func()
	onTrust   func(*CertificateInfo, *TrustDecision)
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{done: make(chan struct{})}
}

func (o *recordingObserver) add(ev string) {
	o.mu.Lock()
	o.events = append(o.events, ev)
	o.mu.Unlock()
}

func (o *recordingObserver) OnOpeningHandshakeStarted(req *handshake.RequestInfo) {
	o.mu.Lock()
	o.requests = append(o.requests, req)
	o.mu.Unlock()
	o.add("started")
	if o.onStarted != nil {
		o.onStarted()
	}
}

func (o *recordingObserver) OnOpeningHandshakeFinished(resp *handshake.ResponseInfo) {
	o.mu.Lock()
	o.responses = append(o.responses, resp)
	o.mu.Unlock()
	o.add("finished")
}

func (o *recordingObserver) OnTrustDecisionRequired(cert *CertificateInfo, d *TrustDecision) {
	o.add("trust")
	if o.onTrust != nil {
		o.onTrust(cert, d)
		return
	}
	d.Abort()
}

func (o *recordingObserver) OnSuccess(s *Stream) {
	o.mu.Lock()
	o.stream = s
	o.mu.Unlock()
	o.add("success")
	close(o.done)
}

func (o *recordingObserver) OnFailure(err error, msg string) {
	o.mu.Lock()
	o.err, o.msg = err, msg
	o.mu.Unlock()
	o.add("failure")
	close(o.done)
}

func (o *recordingObserver) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

func (o *recordingObserver) wait(t *testing.T) {
	t.Helper()
	select {
	case <-o.done:
	case <-time.After(waitTimeout):
		t.Fatalf("handshake did not finish; events so far: %v", o.Events())
	}
}

// ============================================================================
// Recorder
// ============================================================================

type record struct {
	result Result
	kind   handshake.Kind
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []record
}

func (r *fakeRecorder) RecordHandshake(result Result, kind handshake.Kind, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record{result, kind})
}

func (r *fakeRecorder) all() []record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]record(nil), r.records...)
}

// ============================================================================
// Transport
// ============================================================================

type connectStep func(ctx context.Context, target transport.Target) (net.Conn, error)

// scriptedTransport runs one step per Connect call; the last step repeats.
type scriptedTransport struct {
	mu      sync.Mutex
	targets []transport.Target
	steps   []connectStep
}

func script(steps ...connectStep) *scriptedTransport {
	return &scriptedTransport{steps: steps}
}

func (s *scriptedTransport) Connect(ctx context.Context, target transport.Target) (net.Conn, error) {
	s.mu.Lock()
	i := min(len(s.targets), len(s.steps)-1)
	s.targets = append(s.targets, target)
	step := s.steps[i]
	s.mu.Unlock()
	return step(ctx, target)
}

func (s *scriptedTransport) Targets() []transport.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.Target(nil), s.targets...)
}

// serverHandler runs on the server end of a pipe after the request head
// has been read.
type serverHandler func(req *http.Request, conn net.Conn)

func serve(t *testing.T, h serverHandler) connectStep {
	return func(context.Context, transport.Target) (net.Conn, error) {
		client, server := net.Pipe()
		t.Cleanup(func() {
			_ = server.Close()
			_ = client.Close()
		})
		go func() {
			req, err := http.ReadRequest(bufio.NewReader(server))
			if err != nil {
				return
			}
			h(req, server)
		}()
		return client, nil
	}
}

func refuse(code string) connectStep {
	return func(context.Context, transport.Target) (net.Conn, error) {
		return nil, &transport.ConnectError{Code: code, Err: fmt.Errorf("dial tcp: %s", code)}
	}
}

// blockUntilDone signals entered and waits for ctx.
func blockUntilDone(entered chan<- struct{}) connectStep {
	return func(ctx context.Context, _ transport.Target) (net.Conn, error) {
		close(entered)
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

func respond(lines ...string) serverHandler {
	return func(_ *http.Request, conn net.Conn) {
		_, _ = io.WriteString(conn, strings.Join(lines, "\r\n")+"\r\n\r\n")
	}
}

// upgrade answers with a valid 101 plus extra header lines and trailing
// bytes.
func upgrade(trailing string, extra ...string) serverHandler {
	return func(req *http.Request, conn net.Conn) {
		lines := []string{
			"HTTP/1.1 101 Switching Protocols",
			"Upgrade: websocket",
			"Connection: Upgrade",
			"Sec-WebSocket-Accept: " + handshake.AcceptKey(req.Header.Get("Sec-WebSocket-Key")),
		}
		lines = append(lines, extra...)
		_, _ = io.WriteString(conn, strings.Join(lines, "\r\n")+"\r\n\r\n"+trailing)
	}
}

// hold signals reached and then waits for the client to release the pipe.
func hold(reached chan<- struct{}, released chan<- struct{}) serverHandler {
	return func(_ *http.Request, conn net.Conn) {
		close(reached)
		_, _ = io.Copy(io.Discard, conn)
		close(released)
	}
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}
