package protocol

import (
	"errors"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	actions := []Action{ActionDoNothing, ActionReadAll, ActionWriteSequential, ActionWriteAll}

	for id := 0; id < MaxProperties; id++ {
		for _, action := range actions {
			h := Header{Property: PropertyID(id), Action: action}
			b, err := EncodeHeader(h)
			if err != nil {
				t.Fatalf("EncodeHeader(%v) failed: %v", h, err)
			}
			if got := DecodeHeader(b); got != h {
				t.Errorf("Expected %v after round trip, got %v", h, got)
			}
		}
	}
}

func TestHeaderBitLayout(t *testing.T) {
	tests := []struct {
		header Header
		want   byte
	}{
		{Header{PropertyNone, ActionDoNothing}, 0x00},
		{Header{PropertyCharacter, ActionReadAll}, 0x46},
		{Header{PropertyNone, ActionWriteSequential}, 0x80},
		{Header{PropertyColor, ActionWriteAll}, 0xC8},
		{Header{63, ActionWriteAll}, 0xFF},
	}

	for _, tt := range tests {
		got, err := EncodeHeader(tt.header)
		if err != nil {
			t.Fatalf("EncodeHeader(%v) failed: %v", tt.header, err)
		}
		if got != tt.want {
			t.Errorf("EncodeHeader(%v): expected 0x%02x, got 0x%02x", tt.header, tt.want, got)
		}
	}
}

func TestHeaderRejectsOutOfRange(t *testing.T) {
	_, err := EncodeHeader(Header{Property: MaxProperties, Action: ActionReadAll})
	if !errors.Is(err, ErrInvalidProperty) {
		t.Errorf("Expected ErrInvalidProperty, got %v", err)
	}

	_, err = EncodeHeader(Header{Property: PropertyCharacter, Action: Action(4)})
	if err == nil {
		t.Error("Expected error for invalid action")
	}
}

func TestActionString(t *testing.T) {
	if ActionWriteSequential.String() != "write_sequential" {
		t.Errorf("Expected 'write_sequential', got '%s'", ActionWriteSequential.String())
	}
	if Action(7).String() != "unknown" {
		t.Errorf("Expected 'unknown', got '%s'", Action(7).String())
	}
}
