package value_object

import "fmt"

// CircuitState is the lifecycle state of a client-owned circuit.
type CircuitState byte

const (
	StatePending CircuitState = iota
	StateBuilding
	StateEstablished
	StateRotating
	StateDestroying
	StateDestroyed
	StateFailed
)

func (s CircuitState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateBuilding:
		return "BUILDING"
	case StateEstablished:
		return "ESTABLISHED"
	case StateRotating:
		return "ROTATING"
	case StateDestroying:
		return "DESTROYING"
	case StateDestroyed:
		return "DESTROYED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(s))
	}
}

// CanTransition reports whether moving to next is a legal lifecycle step.
// Rotating returns to Established when the replacement build fails and the
// old path stays in service.
func (s CircuitState) CanTransition(next CircuitState) bool {
	switch s {
	case StatePending:
		return next == StateBuilding || next == StateDestroying || next == StateFailed
	case StateBuilding:
		return next == StateEstablished || next == StateDestroying || next == StateFailed
	case StateEstablished:
		return next == StateRotating || next == StateDestroying || next == StateFailed
	case StateRotating:
		return next == StateEstablished || next == StateDestroying || next == StateFailed
	case StateDestroying:
		return next == StateDestroyed
	default:
		return false
	}
}

// IsTerminal reports whether the state admits no further transitions.
func (s CircuitState) IsTerminal() bool {
	return s == StateDestroyed || s == StateFailed
}
