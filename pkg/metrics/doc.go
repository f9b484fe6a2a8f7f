// Package metrics provides Prometheus-compatible counters and histograms for
// handshake outcomes.
//
// Metrics are written in the Prometheus text exposition format
// (text/plain; version=0.0.4) by Registry.WriteText. All metrics are safe for
// concurrent use.
//
// # Handshake Metrics
//
// NewHandshake registers:
//
//   - wshandshake_handshakes_total: Counter (labels: result, kind)
//   - wshandshake_handshake_duration_seconds: Histogram (labels: result)
//
// result is one of connected, failed or incomplete. kind is the snake_case
// failure kind, such as accept_mismatch, and empty for other results.
//
// # Usage
//
//	registry := metrics.NewRegistry()
//	recorder, err := metrics.NewHandshake(registry)
//	if err != nil {
//		return err
//	}
//	stream, err := dialer.Dial(ctx, dialer.Options{URL: u, Recorder: recorder})
//	...
//	_ = registry.WriteText(os.Stdout)
package metrics
