package replication

import "github.com/gcbaptista/go-autocomplete/internal/metrics"

// State is the lifecycle of the change-notification subscription
type State int32

const (
	StateDisconnected State = iota
	StateSubscribing
	StateActive
	StateFailed
)

var allStates = []State{StateDisconnected, StateSubscribing, StateActive, StateFailed}

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateSubscribing:
		return "subscribing"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (e *Engine) setState(s State) {
	old := State(e.state.Swap(int32(s)))
	for _, st := range allStates {
		value := 0.0
		if st == s {
			value = 1
		}
		metrics.SubscriptionState.WithLabelValues(st.String()).Set(value)
	}
	if old != s {
		e.logger.Debug("subscription state changed", "from", old.String(), "to", s.String())
	}
}

// State returns the current subscription state
func (e *Engine) State() State {
	return State(e.state.Load())
}
