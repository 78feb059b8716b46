package controller

import (
	"errors"
	"fmt"

	"flapchain/protocol"
)

var (
	// ErrIncompleteReply is returned when the chain sent fewer bytes than expected
	ErrIncompleteReply = errors.New("incomplete reply")

	// ErrHeaderMismatch is returned when a read_all reply starts with another header
	ErrHeaderMismatch = errors.New("reply header mismatch")

	// ErrEchoMismatch is returned when the broadcast came back altered
	ErrEchoMismatch = errors.New("broadcast echo mismatch")

	// ErrAckMismatch is returned when the byte after a write is not the ACK
	ErrAckMismatch = errors.New("acknowledge mismatch")

	// ErrNoModules is returned when read_all counted zero modules
	ErrNoModules = errors.New("no modules on the chain")
)

// ReplyError reports a reply cut short. It matches ErrIncompleteReply and
// unwraps to the transport error, usually protocol.ErrTimeout.
type ReplyError struct {
	Op   string
	Got  int
	Want int
	Err  error
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("%s: %v: got %d of %d bytes: %v", e.Op, ErrIncompleteReply, e.Got, e.Want, e.Err)
}

func (e *ReplyError) Unwrap() error {
	return e.Err
}

func (e *ReplyError) Is(target error) bool {
	return target == ErrIncompleteReply
}

// IsTimeout reports whether err was caused by a silent chain
func IsTimeout(err error) bool {
	return errors.Is(err, protocol.ErrTimeout)
}

// Retryable reports whether a failed transaction may succeed when issued
// again after the modules resynchronized. Validation errors and a closed
// transport are final.
func Retryable(err error) bool {
	if errors.Is(err, protocol.ErrTransportClosed) {
		return false
	}
	return errors.Is(err, ErrIncompleteReply) ||
		errors.Is(err, ErrHeaderMismatch) ||
		errors.Is(err, ErrEchoMismatch) ||
		errors.Is(err, ErrAckMismatch) ||
		IsTimeout(err)
}
