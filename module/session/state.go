package session

// State is the lifecycle position of one session entry.
type State int

const (
	Uninitialized State = iota
	Initializing
	AwaitingCredential
	Ready
	Disconnected // terminal; a later start builds a new entry
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case AwaitingCredential:
		return "awaiting_credential"
	case Ready:
		return "ready"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// canMove reports whether from -> to is a legal transition.
func canMove(from, to State) bool {
	switch to {
	case AwaitingCredential:
		return from == Initializing || from == AwaitingCredential
	case Ready:
		return from == Initializing || from == AwaitingCredential
	case Disconnected:
		return from != Disconnected
	default:
		return false
	}
}
