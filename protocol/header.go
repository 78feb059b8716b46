package protocol

import "fmt"

// Action is the 2-bit transaction kind carried in the header
type Action uint8

const (
	ActionDoNothing       Action = 0
	ActionReadAll         Action = 1
	ActionWriteSequential Action = 2
	ActionWriteAll        Action = 3
)

const (
	headerPropertyMask = 0x3F
	headerActionShift  = 6
	headerActionMask   = 0x03
)

func (a Action) String() string {
	switch a {
	case ActionDoNothing:
		return "do_nothing"
	case ActionReadAll:
		return "read_all"
	case ActionWriteSequential:
		return "write_sequential"
	case ActionWriteAll:
		return "write_all"
	default:
		return "unknown"
	}
}

// Header is the first byte of every transaction
type Header struct {
	Property PropertyID
	Action   Action
}

// EncodeHeader packs a header into a single byte
// bits [0:5] hold the property id, bits [6:7] the action
func EncodeHeader(h Header) (byte, error) {
	if int(h.Property) >= MaxProperties {
		return 0, fmt.Errorf("%w: id %d", ErrInvalidProperty, h.Property)
	}
	if h.Action > ActionWriteAll {
		return 0, fmt.Errorf("invalid action %d", h.Action)
	}
	return byte(h.Property)&headerPropertyMask | byte(h.Action)<<headerActionShift, nil
}

// MustEncodeHeader is EncodeHeader for ids already validated by the registry
func MustEncodeHeader(property PropertyID, action Action) byte {
	b, err := EncodeHeader(Header{Property: property, Action: action})
	if err != nil {
		panic(err)
	}
	return b
}

// DecodeHeader unpacks a header byte. Every byte is a valid header.
func DecodeHeader(b byte) Header {
	return Header{
		Property: PropertyID(b & headerPropertyMask),
		Action:   Action((b >> headerActionShift) & headerActionMask),
	}
}

func (h Header) String() string {
	return fmt.Sprintf("%s(%d)", h.Action, h.Property)
}
