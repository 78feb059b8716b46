package property

import (
	"bytes"
	"errors"
	"testing"

	"flapchain/protocol"
)

func TestColorEncoding(t *testing.T) {
	c := Color{Foreground: RGB{0xFF, 0x80, 0x00}, Background: RGB{0x01, 0x02, 0x03}}

	data, err := c.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	expected := []byte{0xFF, 0x80, 0x00, 0x01, 0x02, 0x03}
	if !bytes.Equal(data, expected) {
		t.Errorf("Expected %v, got %v", expected, data)
	}

	var decoded Color
	if err := decoded.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if decoded != c {
		t.Errorf("Expected %+v, got %+v", c, decoded)
	}

	if err := decoded.UnmarshalBinary(data[:2]); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("Expected ErrInvalidLength, got %v", err)
	}
}

func TestModuleInfoBitfield(t *testing.T) {
	info := ModuleInfo{ColumnEnd: true, Type: ModuleTypeSplitflap}

	data, err := info.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	if data[0] != 0x03 {
		t.Errorf("Expected 0x03, got 0x%02x", data[0])
	}

	var decoded ModuleInfo
	if err := decoded.UnmarshalBinary([]byte{0x02}); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if decoded.ColumnEnd || decoded.Type != ModuleTypeSplitflap {
		t.Errorf("Unexpected module info %+v", decoded)
	}

	if _, err := (ModuleInfo{Type: 16}).MarshalBinary(); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue for oversize type, got %v", err)
	}
}

func TestCharacterSetEncoding(t *testing.T) {
	set := ParseCharacterSet(" AB€")

	data, err := set.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	if len(data) != 4*CharacterSetEntrySize {
		t.Fatalf("Expected %d bytes, got %d", 4*CharacterSetEntrySize, len(data))
	}
	if data[4] != 'A' || data[5] != 0 {
		t.Errorf("Expected zero padded 'A' entry, got % x", data[4:8])
	}

	var decoded CharacterSet
	if err := decoded.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if decoded.String() != " AB€" {
		t.Errorf("Expected ' AB€', got '%s'", decoded.String())
	}

	if err := decoded.UnmarshalBinary([]byte{1, 2, 3}); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("Expected ErrInvalidLength, got %v", err)
	}

	if _, err := (CharacterSet{"AB"}).MarshalBinary(); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue for multi-character entry, got %v", err)
	}
}

func TestCommandValidation(t *testing.T) {
	var c Command
	if err := c.UnmarshalBinary([]byte{1}); err != nil || c != CommandReboot {
		t.Errorf("Expected reboot, got %d (%v)", c, err)
	}
	if err := c.UnmarshalBinary([]byte{9}); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue, got %v", err)
	}
}

func TestFirmwareBlock(t *testing.T) {
	var block FirmwareBlock
	block.Index = 0x0102
	block.Data[0] = 0xAA

	// Index goes out high byte first
	data, _ := block.MarshalBinary()
	if len(data) != 130 || data[0] != 0x01 || data[1] != 0x02 || data[2] != 0xAA {
		t.Errorf("Unexpected encoding % x", data[:4])
	}

	var decoded FirmwareBlock
	if err := decoded.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if decoded != block {
		t.Error("Firmware block did not survive encoding")
	}
}

func TestParseAndFormat(t *testing.T) {
	tests := []struct {
		id   protocol.PropertyID
		args []string
		want string
	}{
		{protocol.PropertyCharacter, []string{"12"}, "12"},
		{protocol.PropertyOffset, []string{"0x10"}, "16"},
		{protocol.PropertyColor, []string{"#ff0000,#000000"}, "#ff0000,#000000"},
		{protocol.PropertyColor, []string{"#00ff00", "#0000ff"}, "#00ff00,#0000ff"},
		{protocol.PropertyMotion, []string{"10", "80", "6", "10"}, "10 80 6 10"},
		{protocol.PropertyCharacterSet, []string{"AB", "C"}, `"AB C"`},
		{protocol.PropertyMinimumRotation, []string{"2"}, "2"},
	}

	for _, tt := range tests {
		data, err := Parse(tt.id, tt.args)
		if err != nil {
			t.Fatalf("Parse(%d, %v) failed: %v", tt.id, tt.args, err)
		}
		if got := Format(tt.id, data); got != tt.want {
			t.Errorf("Format(%d): expected '%s', got '%s'", tt.id, tt.want, got)
		}
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		id   protocol.PropertyID
		args []string
	}{
		{protocol.PropertyCharacter, nil},
		{protocol.PropertyCharacter, []string{"300"}},
		{protocol.PropertyColor, []string{"red"}},
		{protocol.PropertyMotion, []string{"1", "2"}},
		{protocol.PropertyCommand, []string{"explode"}},
		{protocol.PropertyModuleInfo, []string{"1"}},
	}

	for _, c := range cases {
		if _, err := Parse(c.id, c.args); !errors.Is(err, ErrInvalidValue) {
			t.Errorf("Parse(%d, %v): expected ErrInvalidValue, got %v", c.id, c.args, err)
		}
	}
}

func TestParseCommand(t *testing.T) {
	data, err := Parse(protocol.PropertyCommand, []string{"reboot"})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !bytes.Equal(data, []byte{1}) {
		t.Errorf("Expected [1], got %v", data)
	}
}
