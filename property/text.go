package property

import (
	"encoding"
	"fmt"
	"strconv"
	"strings"

	"flapchain/protocol"
)

// Parse converts command line arguments into the wire value of a property
func Parse(id protocol.PropertyID, args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: missing value", ErrInvalidValue)
	}

	var v encoding.BinaryMarshaler
	switch id {
	case protocol.PropertyCharacter:
		n, err := parseUint8(args[0])
		if err != nil {
			return nil, err
		}
		v = Character(n)
	case protocol.PropertyOffset:
		n, err := parseUint8(args[0])
		if err != nil {
			return nil, err
		}
		v = Offset(n)
	case protocol.PropertyMinimumRotation:
		n, err := parseUint8(args[0])
		if err != nil {
			return nil, err
		}
		v = MinimumRotation(n)
	case protocol.PropertyColor:
		c, err := ParseColor(strings.Join(args, ","))
		if err != nil {
			return nil, err
		}
		v = c
	case protocol.PropertyMotion:
		if len(args) != 4 {
			return nil, fmt.Errorf("%w: motion expects 4 values", ErrInvalidValue)
		}
		var vals [4]uint8
		for i, a := range args {
			n, err := parseUint8(a)
			if err != nil {
				return nil, err
			}
			vals[i] = n
		}
		v = Motion{SpeedMin: vals[0], SpeedMax: vals[1], DistanceRampStart: vals[2], DistanceRampStop: vals[3]}
	case protocol.PropertyCharacterSet:
		v = ParseCharacterSet(strings.Join(args, " "))
	case protocol.PropertyCommand:
		switch args[0] {
		case "reboot":
			v = CommandReboot
		case "none":
			v = CommandNone
		default:
			return nil, fmt.Errorf("%w: unknown command %q", ErrInvalidValue, args[0])
		}
	default:
		return nil, fmt.Errorf("%w: property %d cannot be parsed from text", ErrInvalidValue, id)
	}

	return v.MarshalBinary()
}

// Format renders a wire value for display
func Format(id protocol.PropertyID, data []byte) string {
	var v encoding.BinaryUnmarshaler
	switch id {
	case protocol.PropertyCharacter:
		v = new(Character)
	case protocol.PropertyOffset:
		v = new(Offset)
	case protocol.PropertyMinimumRotation:
		v = new(MinimumRotation)
	case protocol.PropertyColor:
		v = new(Color)
	case protocol.PropertyMotion:
		v = new(Motion)
	case protocol.PropertyModuleInfo:
		v = new(ModuleInfo)
	case protocol.PropertyCharacterSet:
		v = new(CharacterSet)
	case protocol.PropertyFirmwareVersion:
		v = new(FirmwareVersion)
	default:
		return fmt.Sprintf("% x", data)
	}

	if err := v.UnmarshalBinary(data); err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	switch val := v.(type) {
	case *Character:
		return strconv.Itoa(int(*val))
	case *Offset:
		return strconv.Itoa(int(*val))
	case *MinimumRotation:
		return strconv.Itoa(int(*val))
	case *Color:
		return val.Foreground.String() + "," + val.Background.String()
	case *Motion:
		return fmt.Sprintf("%d %d %d %d", val.SpeedMin, val.SpeedMax, val.DistanceRampStart, val.DistanceRampStop)
	case *ModuleInfo:
		return fmt.Sprintf("type=%s column_end=%t", val.Type, val.ColumnEnd)
	case *CharacterSet:
		return strconv.Quote(val.String())
	case *FirmwareVersion:
		return string(*val)
	}
	return ""
}

// ParseColor parses "#rrggbb,#rrggbb" (foreground, background)
func ParseColor(s string) (Color, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Color{}, fmt.Errorf("%w: color expects foreground,background", ErrInvalidValue)
	}
	fg, err := parseRGB(parts[0])
	if err != nil {
		return Color{}, err
	}
	bg, err := parseRGB(parts[1])
	if err != nil {
		return Color{}, err
	}
	return Color{Foreground: fg, Background: bg}, nil
}

func parseRGB(s string) (RGB, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return RGB{}, fmt.Errorf("%w: color %q", ErrInvalidValue, s)
	}
	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("%w: color %q", ErrInvalidValue, s)
	}
	return RGB{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n)}, nil
}

func parseUint8(s string) (uint8, error) {
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a byte value", ErrInvalidValue, s)
	}
	return uint8(n), nil
}
