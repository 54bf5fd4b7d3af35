package warmer

import "fmt"

// State is a step of the warm-up state machine.
//
//	Start → Warming → Surfacing → Ready
//	           │          │
//	           └──────────┴──→ Failed
type State int

const (
	StateStart     State = iota // Process entered; nothing warmed yet
	StateWarming                // Registry WarmAll in progress
	StateSurfacing              // All subsystems warm; creating the blank surface
	StateReady                  // Terminal: eligible for handout
	StateFailed                 // Terminal: must be discarded
)

// Terminal reports whether s ends the warmer's role.
func (s State) Terminal() bool {
	return s == StateReady || s == StateFailed
}

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateWarming:
		return "warming"
	case StateSurfacing:
		return "surfacing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// parseState is the inverse of String for terminal states, used when decoding
// a report produced by another process.
func parseState(s string) (State, error) {
	switch s {
	case "ready":
		return StateReady, nil
	case "failed":
		return StateFailed, nil
	default:
		return 0, fmt.Errorf("unknown terminal warmer state %q", s)
	}
}
