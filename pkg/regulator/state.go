package regulator

// State is the regulation loop state.
type State int32

const (
	// StateRegulating applies the PID correction every cycle.
	StateRegulating State = iota
	// StateManuallyFixed holds the output; over-voltage protection still applies.
	StateManuallyFixed
	// StateTerminated is final: the output was driven to zero and the channel closed.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRegulating:
		return "Regulating"
	case StateManuallyFixed:
		return "ManuallyFixed"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}
