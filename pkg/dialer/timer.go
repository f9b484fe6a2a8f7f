package dialer

import (
	"sync"
	"time"
)

// Timer is the handshake-wide deadline. A coordinator calls Start once and
// Stop at most once. Start must not call fire before it returns.
type Timer interface {
	Start(d time.Duration, fire func())
	Stop()
}

// NewTimer returns a Timer backed by time.AfterFunc.
func NewTimer() Timer { return &realTimer{} }

type realTimer struct {
	mu sync.Mutex
	t  *time.Timer
}

func (r *realTimer) Start(d time.Duration, fire func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.t != nil {
		r.t.Stop()
	}
	r.t = time.AfterFunc(d, fire)
}

func (r *realTimer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.t != nil {
		r.t.Stop()
		r.t = nil
	}
}
