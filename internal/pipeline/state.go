package pipeline

// State is a step of one run's state machine.
type State int

const (
	StateInit State = iota
	StateGenerated
	StateScored
	StateAccepted
	StateRetrying
	StateArbitrating
	StateFinalized
)

var stateNames = [...]string{
	StateInit:        "INIT",
	StateGenerated:   "GENERATED",
	StateScored:      "SCORED",
	StateAccepted:    "ACCEPTED",
	StateRetrying:    "RETRYING",
	StateArbitrating: "ARBITRATING",
	StateFinalized:   "FINALIZED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Every non-terminal state may also jump to FINALIZED, which is how a canceled
// run ends.
var transitions = map[State][]State{
	StateInit:        {StateGenerated},
	StateGenerated:   {StateScored},
	StateScored:      {StateAccepted, StateRetrying, StateArbitrating},
	StateAccepted:    {},
	StateRetrying:    {StateGenerated},
	StateArbitrating: {},
}

// CanTransition reports whether to may follow s.
func (s State) CanTransition(to State) bool {
	if s == StateFinalized {
		return false
	}
	if to == StateFinalized {
		return true
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the run is over.
func (s State) Terminal() bool { return s == StateFinalized }
