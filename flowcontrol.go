package serialchat

// FlowControl is recorded per port and persisted with the other line
// parameters. The driver exposes no mode flag for it, so FlowHardware is
// applied by raising DTR/RTS when the port opens; FlowSoftware is kept as
// configuration only.
type FlowControl int

func (fc FlowControl) Int() int {
	return int(fc)
}

func (fc FlowControl) Valid() bool {
	switch fc {
	case FlowNone, FlowHardware, FlowSoftware:
		return true
	}
	return false
}

const (
	FlowNone     FlowControl = 0
	FlowHardware FlowControl = 1
	FlowSoftware FlowControl = 2

	DefaultFlowControl = FlowNone
)
