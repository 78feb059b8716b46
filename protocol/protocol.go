// Package protocol implements the split-flap chain communication protocol
package protocol

import "time"

// Version represents the flapchain protocol implementation version
const Version = "0.2.0"

// Protocol constants
const (
	MaxProperties  = 64  // 6-bit property identifier
	ChainComMaxLen = 256 // Largest property payload including a dynamic size prefix

	// AckByte travels behind write_all and write_sequential payloads
	AckByte = 0x00

	// IndexSize is the width of the read_all node index riding the wire
	IndexSize = 2

	// DynamicSizePrefix is the little-endian length prefix of dynamic values
	DynamicSizePrefix = 2
)

// Timing constants
const (
	TriggerDelay = 50 * time.Millisecond // Minimum gap between controller commands
	ExtraDelay   = 5 * time.Millisecond  // Margin kept between module and controller timeouts

	// ModuleTimeout is the idle window after which a module resynchronizes
	ModuleTimeout = TriggerDelay - ExtraDelay
)
