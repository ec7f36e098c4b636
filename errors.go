package serialchat

import "errors"

var (
	// ErrPortNotOpen is returned by send operations on a handle that is
	// not currently online.
	ErrPortNotOpen = errors.New("serialchat: port not open")

	// ErrUnknownPort is returned when an operation names a port that has
	// no live handle.
	ErrUnknownPort = errors.New("serialchat: unknown port")

	// ErrInvalidPortName rejects empty or path-traversing device names.
	ErrInvalidPortName = errors.New("serialchat: invalid port name")

	// ErrInvalidHex is returned when a hex payload cannot be decoded.
	ErrInvalidHex = errors.New("serialchat: invalid hex string")

	// ErrEmptyPayload rejects zero-length sends.
	ErrEmptyPayload = errors.New("serialchat: empty payload")

	// ErrRegistryClosed is returned once the registry has been shut down.
	ErrRegistryClosed = errors.New("serialchat: registry closed")

	// ErrArchiveClosed is returned by archive operations after Close.
	ErrArchiveClosed = errors.New("serialchat: archive closed")
)
