package serialchat

import gobug "go.bug.st/serial"

// StopBits uses human-facing values (1, 2, 3 meaning one-and-a-half) so
// the persisted form stays readable; Get maps them to the driver enum.
type StopBits int

func (sb StopBits) Get() gobug.StopBits {
	switch sb {
	case StopBits2:
		return gobug.TwoStopBits
	case StopBits1Half:
		return gobug.OnePointFiveStopBits
	default:
		return gobug.OneStopBit
	}
}

func (sb StopBits) Valid() bool {
	return sb == StopBits1 || sb == StopBits2 || sb == StopBits1Half
}

const (
	// StopBits1 represents 1 stop bit
	StopBits1 StopBits = 1
	// StopBits2 represents 2 stop bits
	StopBits2 StopBits = 2
	// StopBits1Half represents 1.5 stop bits
	StopBits1Half StopBits = 3

	DefaultStopBits = StopBits1
)
