package serialchat

// PortStatus describes the live connection state of a port. It is derived
// from the handle at query time and is never persisted as Online.
type PortStatus int

const (
	StatusOffline PortStatus = iota
	StatusOnline
	StatusError
)

func (s PortStatus) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusError:
		return "error"
	default:
		return "offline"
	}
}
