package connection

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Disposed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Disposed:
		return "disposed"
	default:
		return "unknown"
	}
}
