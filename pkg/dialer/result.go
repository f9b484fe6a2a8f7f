package dialer

import (
	"time"

	"github.com/getmockd/wshandshake/pkg/handshake"
)

// Result is how a started handshake ended.
type Result string

// Handshake results.
const (
	ResultConnected  Result = "connected"
	ResultFailed     Result = "failed"
	ResultIncomplete Result = "incomplete"
)

// Recorder receives one record per coordinator that left Idle. kind is
// KindUnknown unless result is ResultFailed.
type Recorder interface {
	RecordHandshake(result Result, kind handshake.Kind, elapsed time.Duration)
}
