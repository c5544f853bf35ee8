package engine

import "fmt"

// UnitState is the evaluator's lifecycle state for one unit.
//
//	Pending -> Running -> DrainingAsync -> Completed
//	                 \            \---> Faulted
//	                  \---------------> Completed | Faulted
type UnitState string

const (
	StatePending       UnitState = "PENDING"
	StateRunning       UnitState = "RUNNING"
	StateDrainingAsync UnitState = "DRAINING_ASYNC"
	StateCompleted     UnitState = "COMPLETED"
	StateFaulted       UnitState = "FAULTED"
)

// IsTerminal reports whether the state is final.
func (s UnitState) IsTerminal() bool {
	return s == StateCompleted || s == StateFaulted
}

func isAllowedTransition(from, to UnitState) bool {
	switch from {
	case StatePending:
		return to == StateRunning
	case StateRunning:
		return to == StateDrainingAsync || to == StateCompleted || to == StateFaulted
	case StateDrainingAsync:
		return to == StateCompleted || to == StateFaulted
	default:
		return false
	}
}

// Lifecycle tracks a unit's state and rejects invalid transitions.
type Lifecycle struct {
	state UnitState
}

// NewLifecycle starts in Pending.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StatePending}
}

// State returns the current state.
func (l *Lifecycle) State() UnitState { return l.state }

// To moves to the next state.
func (l *Lifecycle) To(next UnitState) error {
	if !isAllowedTransition(l.state, next) {
		return fmt.Errorf("disallowed unit transition: %s -> %s", l.state, next)
	}
	l.state = next
	return nil
}

// Finish moves to Completed, or Faulted when faulted is set, from either
// Running or DrainingAsync.
func (l *Lifecycle) Finish(faulted bool) error {
	if faulted {
		return l.To(StateFaulted)
	}
	return l.To(StateCompleted)
}
