package protocol

import "errors"

var (
	// ErrInvalidProperty is returned for ids outside the registry
	ErrInvalidProperty = errors.New("invalid property id")

	// ErrNotReadable is returned when a property has no read data phase
	ErrNotReadable = errors.New("property is not readable")

	// ErrNotWritable is returned when a property has no write data phase
	ErrNotWritable = errors.New("property is not writable")

	// ErrPayloadSize is returned when a value does not match the wire size
	ErrPayloadSize = errors.New("payload size mismatch")

	// ErrTimeout is returned when the chain did not answer in time
	ErrTimeout = errors.New("chain timeout")

	// ErrTransportClosed is returned after the transport has been closed
	ErrTransportClosed = errors.New("transport closed")
)
