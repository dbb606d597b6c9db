package pool

// State is a worker's position in its lifecycle. Transitions happen only
// under the pool mutex.
//
//	Starting -> Idle -> Busy -> Idle -> ... -> Terminating -> Dead
//
// with a parallel crash path (Starting|Idle|Busy) -> Crashed -> Respawning
// -> Starting.
type State int

const (
	StateStarting State = iota
	StateIdle
	StateBusy
	StateCrashed
	StateRespawning
	StateTerminating
	StateDead
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StateCrashed:
		return "crashed"
	case StateRespawning:
		return "respawning"
	case StateTerminating:
		return "terminating"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}
