package metrics

import (
	"time"

	"github.com/getmockd/wshandshake/pkg/dialer"
	"github.com/getmockd/wshandshake/pkg/handshake"
)

// Handshake metric names.
const (
	HandshakesTotalName   = "wshandshake_handshakes_total"
	HandshakeDurationName = "wshandshake_handshake_duration_seconds"
)

// Handshake records opening-handshake outcomes into a Registry.
type Handshake struct {
	total    *Counter
	duration *Histogram
}

var _ dialer.Recorder = (*Handshake)(nil)

// NewHandshake registers the handshake metrics with r.
func NewHandshake(r *Registry) (*Handshake, error) {
	total, err := r.NewCounter(HandshakesTotalName,
		"Total number of opening handshakes by result and failure kind", "result", "kind")
	if err != nil {
		return nil, err
	}
	duration, err := r.NewHistogram(HandshakeDurationName,
		"Opening handshake duration in seconds", DurationBuckets, "result")
	if err != nil {
		return nil, err
	}
	return &Handshake{total: total, duration: duration}, nil
}

// RecordHandshake implements dialer.Recorder. The kind label is empty unless
// the handshake failed.
func (h *Handshake) RecordHandshake(result dialer.Result, kind handshake.Kind, elapsed time.Duration) {
	kindLabel := ""
	if result == dialer.ResultFailed {
		kindLabel = kind.String()
	}
	if vec, err := h.total.WithLabels(string(result), kindLabel); err == nil {
		_ = vec.Inc()
	}
	if vec, err := h.duration.WithLabels(string(result)); err == nil {
		vec.Observe(elapsed.Seconds())
	}
}
