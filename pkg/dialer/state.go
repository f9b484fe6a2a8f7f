package dialer

import "fmt"

// State is a coordinator lifecycle state.
type State int

// Coordinator states.
const (
	StateIdle State = iota
	StateConnecting
	StateSendingRequest
	StateReadingResponse
	StateValidating
	StateAuthChallenge
	StateSucceeded
	StateFailed
	StateCancelled
)

var stateNames = [...]string{
	StateIdle:            "idle",
	StateConnecting:      "connecting",
	StateSendingRequest:  "sending_request",
	StateReadingResponse: "reading_response",
	StateValidating:      "validating",
	StateAuthChallenge:   "auth_challenge",
	StateSucceeded:       "succeeded",
	StateFailed:          "failed",
	StateCancelled:       "cancelled",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// edges is the complete set of legal transitions. Cancelled is reachable from
// every non-terminal state and Failed from every non-terminal state except
// Idle's implicit start, so both are added by canTransition.
var edges = map[State][]State{
	StateIdle:            {StateConnecting},
	StateConnecting:      {StateConnecting, StateSendingRequest},
	StateSendingRequest:  {StateReadingResponse},
	StateReadingResponse: {StateValidating},
	StateValidating:      {StateAuthChallenge, StateSucceeded},
	StateAuthChallenge:   {StateConnecting},
}

func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateCancelled || to == StateFailed {
		return true
	}
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}
