package capture

// State of a capture session.
type State int32

const (
	Idle State = iota
	Capturing
	Stopped
)

// States lists every state name, for metrics.
var States = []string{Idle.String(), Capturing.String(), Stopped.String()}

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Active reports whether the device is held.
func (s State) Active() bool { return s == Capturing }
