package capture

// State is the lifecycle position of the coordinator. Resolved,
// RejectedTooShort and FailedPermission are terminal outcomes of a session;
// the coordinator passes through them back to Idle.
type State int

const (
	StateIdle State = iota
	StateRequestingPermission
	StateRecording
	StateStopping
	StateResolved
	StateRejectedTooShort
	StateFailedPermission
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestingPermission:
		return "requesting-permission"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateResolved:
		return "resolved"
	case StateRejectedTooShort:
		return "rejected-too-short"
	case StateFailedPermission:
		return "failed-permission"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Active reports whether a recording session exists in this state.
func (s State) Active() bool {
	return s == StateRequestingPermission || s == StateRecording || s == StateStopping
}
