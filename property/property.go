// Package property holds typed module property values and their wire codecs.
// Both the module firmware and the controller use these encodings.
package property

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidLength = errors.New("invalid value length")
	ErrInvalidValue  = errors.New("invalid value")
)

// Character is an index into the module's character set
type Character uint8

func (c Character) MarshalBinary() ([]byte, error) { return []byte{byte(c)}, nil }

func (c *Character) UnmarshalBinary(data []byte) error {
	if len(data) != 1 {
		return fmt.Errorf("%w: character expects 1 byte, got %d", ErrInvalidLength, len(data))
	}
	*c = Character(data[0])
	return nil
}

// Offset is the flap calibration offset in encoder steps
type Offset uint8

func (o Offset) MarshalBinary() ([]byte, error) { return []byte{byte(o)}, nil }

func (o *Offset) UnmarshalBinary(data []byte) error {
	if len(data) != 1 {
		return fmt.Errorf("%w: offset expects 1 byte, got %d", ErrInvalidLength, len(data))
	}
	*o = Offset(data[0])
	return nil
}

// MinimumRotation is the number of extra flaps turned on every move
type MinimumRotation uint8

func (m MinimumRotation) MarshalBinary() ([]byte, error) { return []byte{byte(m)}, nil }

func (m *MinimumRotation) UnmarshalBinary(data []byte) error {
	if len(data) != 1 {
		return fmt.Errorf("%w: minimum_rotation expects 1 byte, got %d", ErrInvalidLength, len(data))
	}
	*m = MinimumRotation(data[0])
	return nil
}

// RGB is a 24-bit color
type RGB struct {
	R, G, B uint8
}

func (c RGB) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Color holds the flap foreground and background colors
type Color struct {
	Foreground RGB
	Background RGB
}

func (c Color) MarshalBinary() ([]byte, error) {
	return []byte{
		c.Foreground.R, c.Foreground.G, c.Foreground.B,
		c.Background.R, c.Background.G, c.Background.B,
	}, nil
}

func (c *Color) UnmarshalBinary(data []byte) error {
	if len(data) != 6 {
		return fmt.Errorf("%w: color expects 6 bytes, got %d", ErrInvalidLength, len(data))
	}
	c.Foreground = RGB{data[0], data[1], data[2]}
	c.Background = RGB{data[3], data[4], data[5]}
	return nil
}

// Motion holds the stepper ramp parameters
type Motion struct {
	SpeedMin          uint8
	SpeedMax          uint8
	DistanceRampStart uint8
	DistanceRampStop  uint8
}

func (m Motion) MarshalBinary() ([]byte, error) {
	return []byte{m.SpeedMin, m.SpeedMax, m.DistanceRampStart, m.DistanceRampStop}, nil
}

func (m *Motion) UnmarshalBinary(data []byte) error {
	if len(data) != 4 {
		return fmt.Errorf("%w: motion expects 4 bytes, got %d", ErrInvalidLength, len(data))
	}
	m.SpeedMin = data[0]
	m.SpeedMax = data[1]
	m.DistanceRampStart = data[2]
	m.DistanceRampStop = data[3]
	return nil
}

// ModuleType identifies the kind of module
type ModuleType uint8

const (
	ModuleTypeUndefined ModuleType = 0
	ModuleTypeSplitflap ModuleType = 1
)

func (t ModuleType) String() string {
	switch t {
	case ModuleTypeUndefined:
		return "undefined"
	case ModuleTypeSplitflap:
		return "splitflap"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

const (
	moduleInfoColumnEnd = 0x01
	moduleInfoTypeShift = 1
	moduleInfoTypeMask  = 0x0F
)

// ModuleInfo is the read-only module description bitfield
type ModuleInfo struct {
	ColumnEnd bool
	Type      ModuleType
}

func (m ModuleInfo) MarshalBinary() ([]byte, error) {
	if m.Type > moduleInfoTypeMask {
		return nil, fmt.Errorf("%w: module type %d", ErrInvalidValue, m.Type)
	}
	b := byte(m.Type) << moduleInfoTypeShift
	if m.ColumnEnd {
		b |= moduleInfoColumnEnd
	}
	return []byte{b}, nil
}

func (m *ModuleInfo) UnmarshalBinary(data []byte) error {
	if len(data) != 1 {
		return fmt.Errorf("%w: module_info expects 1 byte, got %d", ErrInvalidLength, len(data))
	}
	m.ColumnEnd = data[0]&moduleInfoColumnEnd != 0
	m.Type = ModuleType((data[0] >> moduleInfoTypeShift) & moduleInfoTypeMask)
	return nil
}

// Command is a one-shot action executed by the module
type Command uint8

const (
	CommandNone   Command = 0
	CommandReboot Command = 1
)

func (c Command) MarshalBinary() ([]byte, error) {
	if c > CommandReboot {
		return nil, fmt.Errorf("%w: command %d", ErrInvalidValue, c)
	}
	return []byte{byte(c)}, nil
}

func (c *Command) UnmarshalBinary(data []byte) error {
	if len(data) != 1 {
		return fmt.Errorf("%w: command expects 1 byte, got %d", ErrInvalidLength, len(data))
	}
	if Command(data[0]) > CommandReboot {
		return fmt.Errorf("%w: command %d", ErrInvalidValue, data[0])
	}
	*c = Command(data[0])
	return nil
}

// CharacterSetEntrySize is the wire width of one character set entry
const CharacterSetEntrySize = 4

// CharacterSet lists the characters printed on the flaps in order
type CharacterSet []string

func (cs CharacterSet) MarshalBinary() ([]byte, error) {
	data := make([]byte, 0, len(cs)*CharacterSetEntrySize)
	for i, ch := range cs {
		if utf8.RuneCountInString(ch) != 1 || len(ch) > CharacterSetEntrySize {
			return nil, fmt.Errorf("%w: entry %d %q is not a single character", ErrInvalidValue, i, ch)
		}
		var entry [CharacterSetEntrySize]byte
		copy(entry[:], ch)
		data = append(data, entry[:]...)
	}
	return data, nil
}

func (cs *CharacterSet) UnmarshalBinary(data []byte) error {
	if len(data)%CharacterSetEntrySize != 0 {
		return fmt.Errorf("%w: character_set expects a multiple of %d bytes, got %d",
			ErrInvalidLength, CharacterSetEntrySize, len(data))
	}
	set := make(CharacterSet, 0, len(data)/CharacterSetEntrySize)
	for i := 0; i < len(data); i += CharacterSetEntrySize {
		entry := data[i : i+CharacterSetEntrySize]
		n := 0
		for n < len(entry) && entry[n] != 0 {
			n++
		}
		if !utf8.Valid(entry[:n]) {
			return fmt.Errorf("%w: entry %d is not valid UTF-8", ErrInvalidValue, i/CharacterSetEntrySize)
		}
		set = append(set, string(entry[:n]))
	}
	*cs = set
	return nil
}

// DefaultCharacterSet is the flap order of a stock module
const DefaultCharacterSet = " ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789€$&@%#:.-?!"

// Index returns the position of ch in the set, or -1
func (cs CharacterSet) Index(ch string) int {
	for i, c := range cs {
		if c == ch {
			return i
		}
	}
	return -1
}

// ParseCharacterSet splits a string into single-character entries
func ParseCharacterSet(s string) CharacterSet {
	set := make(CharacterSet, 0, utf8.RuneCountInString(s))
	for _, r := range s {
		set = append(set, string(r))
	}
	return set
}

func (cs CharacterSet) String() string {
	return strings.Join(cs, "")
}

// FirmwareVersion is the module firmware version string
type FirmwareVersion string

func (v FirmwareVersion) MarshalBinary() ([]byte, error) { return []byte(v), nil }

func (v *FirmwareVersion) UnmarshalBinary(data []byte) error {
	*v = FirmwareVersion(data)
	return nil
}

// FirmwareBlockSize is the number of image bytes in one firmware_update block
const FirmwareBlockSize = 128

// FirmwareBlock is one block of a firmware image transfer
type FirmwareBlock struct {
	Index uint16
	Data  [FirmwareBlockSize]byte
}

func (b FirmwareBlock) MarshalBinary() ([]byte, error) {
	data := make([]byte, 2+FirmwareBlockSize)
	binary.BigEndian.PutUint16(data, b.Index)
	copy(data[2:], b.Data[:])
	return data, nil
}

func (b *FirmwareBlock) UnmarshalBinary(data []byte) error {
	if len(data) != 2+FirmwareBlockSize {
		return fmt.Errorf("%w: firmware_update expects %d bytes, got %d",
			ErrInvalidLength, 2+FirmwareBlockSize, len(data))
	}
	b.Index = binary.BigEndian.Uint16(data)
	copy(b.Data[:], data[2:])
	return nil
}
