package protocol

import (
	"errors"
	"testing"
)

func TestDefaultRegistryTable(t *testing.T) {
	reg := DefaultRegistry()

	tests := []struct {
		id        PropertyID
		name      string
		readSize  uint16
		writeSize uint16
	}{
		{PropertyCommand, "command", 0, 1},
		{PropertyModuleInfo, "module_info", 1, 0},
		{PropertyCharacter, "character", 1, 1},
		{PropertyOffset, "offset", 1, 1},
		{PropertyColor, "color", 6, 6},
		{PropertyMotion, "motion", 4, 4},
		{PropertyMinimumRotation, "minimum_rotation", 1, 1},
		{PropertyFirmwareUpdate, "firmware_update", 0, 130},
	}

	for _, tt := range tests {
		d, err := reg.Lookup(tt.id)
		if err != nil {
			t.Fatalf("Lookup(%d) failed: %v", tt.id, err)
		}
		if d.Name != tt.name {
			t.Errorf("Property %d: expected name '%s', got '%s'", tt.id, tt.name, d.Name)
		}
		if d.Read.StaticSize != tt.readSize {
			t.Errorf("%s: expected read size %d, got %d", tt.name, tt.readSize, d.Read.StaticSize)
		}
		if d.Write.StaticSize != tt.writeSize {
			t.Errorf("%s: expected write size %d, got %d", tt.name, tt.writeSize, d.Write.StaticSize)
		}
	}

	cs, _ := reg.Lookup(PropertyCharacterSet)
	if !cs.Read.DynamicSize || !cs.Write.DynamicSize {
		t.Error("character_set should be dynamic in both directions")
	}
}

func TestRegistryNoneIsEmpty(t *testing.T) {
	reg := DefaultRegistry()

	d, err := reg.Lookup(PropertyNone)
	if err != nil {
		t.Fatalf("Lookup(none) failed: %v", err)
	}
	if d.Read.Supported() || d.Write.Supported() {
		t.Error("PropertyNone must report size 0 in both directions")
	}
	if _, err := reg.Readable(PropertyNone); err != nil {
		t.Errorf("PropertyNone should be usable for read_all discovery: %v", err)
	}
}

func TestRegistryEveryIDHasDescriptor(t *testing.T) {
	reg := DefaultRegistry()

	for id := 0; id < MaxProperties; id++ {
		d, err := reg.Lookup(PropertyID(id))
		if err != nil {
			t.Fatalf("Lookup(%d) failed: %v", id, err)
		}
		if d.ID != PropertyID(id) {
			t.Errorf("Expected descriptor id %d, got %d", id, d.ID)
		}
	}
}

func TestRegistryBoundsChecked(t *testing.T) {
	reg := DefaultRegistry()

	if _, err := reg.Lookup(MaxProperties); !errors.Is(err, ErrInvalidProperty) {
		t.Errorf("Expected ErrInvalidProperty for out of range id, got %v", err)
	}
	if _, err := reg.Readable(40); !errors.Is(err, ErrInvalidProperty) {
		t.Errorf("Expected ErrInvalidProperty for unregistered id, got %v", err)
	}
	if reg.Name(200) != "" {
		t.Error("Expected empty name for out of range id")
	}
}

func TestRegistryDirection(t *testing.T) {
	reg := DefaultRegistry()

	if _, err := reg.Writable(PropertyModuleInfo); !errors.Is(err, ErrNotWritable) {
		t.Errorf("Expected ErrNotWritable for module_info, got %v", err)
	}
	if _, err := reg.Readable(PropertyCommand); !errors.Is(err, ErrNotReadable) {
		t.Errorf("Expected ErrNotReadable for command, got %v", err)
	}
	if _, err := reg.Writable(PropertyCharacter); err != nil {
		t.Errorf("character should be writable: %v", err)
	}
}

func TestRegistryByName(t *testing.T) {
	reg := DefaultRegistry()

	d, err := reg.ByName("motion")
	if err != nil {
		t.Fatalf("ByName failed: %v", err)
	}
	if d.ID != PropertyMotion {
		t.Errorf("Expected id %d, got %d", PropertyMotion, d.ID)
	}

	if _, err := reg.ByName("does_not_exist"); !errors.Is(err, ErrInvalidProperty) {
		t.Errorf("Expected ErrInvalidProperty, got %v", err)
	}
}

func TestRegistryRegister(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(Descriptor{ID: 20, Name: "brightness", Write: Attributes{StaticSize: 1}}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if reg.Count() != 2 {
		t.Errorf("Expected 2 properties, got %d", reg.Count())
	}
	if err := reg.Register(Descriptor{ID: 21, Name: "brightness"}); err == nil {
		t.Error("Expected error for duplicate name")
	}
	if err := reg.Register(Descriptor{ID: PropertyNone, Name: "other"}); !errors.Is(err, ErrInvalidProperty) {
		t.Errorf("Expected ErrInvalidProperty for reserved id, got %v", err)
	}
	if err := reg.Register(Descriptor{ID: MaxProperties, Name: "big"}); !errors.Is(err, ErrInvalidProperty) {
		t.Errorf("Expected ErrInvalidProperty for out of range id, got %v", err)
	}

	props := reg.Properties()
	if len(props) != 1 || props[0].Name != "brightness" {
		t.Errorf("Expected [brightness], got %v", props)
	}
}

func TestAttributesCheckValue(t *testing.T) {
	static := Attributes{StaticSize: 6}
	if err := static.CheckValue(6); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if err := static.CheckValue(5); !errors.Is(err, ErrPayloadSize) {
		t.Errorf("Expected ErrPayloadSize, got %v", err)
	}

	dynamic := Attributes{DynamicSize: true}
	if err := dynamic.CheckValue(ChainComMaxLen - DynamicSizePrefix); err != nil {
		t.Errorf("Expected no error at max length, got %v", err)
	}
	if err := dynamic.CheckValue(ChainComMaxLen); !errors.Is(err, ErrPayloadSize) {
		t.Errorf("Expected ErrPayloadSize, got %v", err)
	}
	if dynamic.WireSize(4) != 6 {
		t.Errorf("Expected wire size 6, got %d", dynamic.WireSize(4))
	}
}
