package checkout

// State is the progress of a Builder through a checkout.
type State int

const (
	StateEmpty State = iota
	StatePending
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StatePending:
		return "PENDING"
	case StateCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// CanTransitionTo reports whether moving from s to next is legal. A failed
// checkout reverts Pending to Empty; a completed builder may start a new one.
func (s State) CanTransitionTo(next State) bool {
	switch s {
	case StateEmpty:
		return next == StatePending
	case StatePending:
		return next == StateCompleted || next == StateEmpty
	case StateCompleted:
		return next == StatePending
	default:
		return false
	}
}
