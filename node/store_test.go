package node

import (
	"bytes"
	"errors"
	"testing"

	"flapchain/property"
	"flapchain/protocol"

	"tinygo.org/x/tinyfs"
)

func newTestStore(t *testing.T) (*Store, *tinyfs.MemBlockDevice) {
	// 256 byte pages, 4096 byte blocks, 64 blocks
	blockDev := tinyfs.NewMemoryDevice(256, 4096, 64)

	s, err := OpenStore(blockDev, true)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	return s, blockDev
}

func TestStoreSaveLoad(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()

	value := []byte{0xFF, 0x00, 0x00, 0x10, 0x10, 0x10}
	if err := s.Save("color", value); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := s.Load("color")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !bytes.Equal(loaded, value) {
		t.Errorf("Expected %v, got %v", value, loaded)
	}

	// Overwrite keeps only the latest value
	if err := s.Save("color", []byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, _ = s.Load("color")
	if !bytes.Equal(loaded, []byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("Expected overwritten value, got %v", loaded)
	}
}

func TestStoreMissingRecord(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()

	if _, err := s.Load("offset"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}

func TestStoreCorruptRecord(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()

	if err := s.Save("offset", []byte{7}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	raw := []byte{7, 0, 0}
	raw[1] ^= 0x5A
	if err := s.atomicWrite(recordPath("offset"), raw); err != nil {
		t.Fatalf("atomicWrite failed: %v", err)
	}

	if _, err := s.Load("offset"); !errors.Is(err, ErrRecordCorrupt) {
		t.Errorf("Expected ErrRecordCorrupt, got %v", err)
	}
}

func TestStoreSurvivesRemount(t *testing.T) {
	s, blockDev := newTestStore(t)
	if err := s.Save("motion", []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	s.Close()

	s2, err := OpenStore(blockDev, false)
	if err != nil {
		t.Fatalf("Remount failed: %v", err)
	}
	defer s2.Close()

	loaded, err := s2.Load("motion")
	if err != nil {
		t.Fatalf("Load after remount failed: %v", err)
	}
	if !bytes.Equal(loaded, []byte{1, 2, 3, 4}) {
		t.Errorf("Expected [1 2 3 4], got %v", loaded)
	}
}

func TestModuleAttachRestores(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()

	m := NewModule("1.0.0")
	if n := m.Attach(s); n != 0 {
		t.Errorf("Expected nothing restored from an empty store, got %d", n)
	}
	if err := m.Set(protocol.PropertyOffset, []byte{12}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := m.Set(protocol.PropertyMotion, []byte{5, 50, 3, 4}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	// Character is not persisted
	if err := m.Set(protocol.PropertyCharacter, []byte{3}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := m.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	restored := NewModule("1.0.0")
	if n := restored.Attach(s); n != 2 {
		t.Errorf("Expected 2 properties restored, got %d", n)
	}
	if restored.Offset != 12 {
		t.Errorf("Expected offset 12, got %d", restored.Offset)
	}
	expected := property.Motion{SpeedMin: 5, SpeedMax: 50, DistanceRampStart: 3, DistanceRampStop: 4}
	if restored.Motion != expected {
		t.Errorf("Expected motion %+v, got %+v", expected, restored.Motion)
	}
	if restored.Character != 0 {
		t.Errorf("Expected character to stay at default, got %d", restored.Character)
	}
}

func TestModuleSetDefersStoreWrites(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()

	m := NewModule("1.0.0")
	m.Attach(s)
	if m.Dirty() {
		t.Error("Expected a freshly attached module to be clean")
	}
	if err := m.Set(protocol.PropertyOffset, []byte{9}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := s.Load("offset"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Expected no record before Flush, got %v", err)
	}
	if !m.Dirty() {
		t.Error("Expected module to be dirty after Set")
	}

	if err := m.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if m.Dirty() {
		t.Error("Expected module to be clean after Flush")
	}
	loaded, err := s.Load("offset")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !bytes.Equal(loaded, []byte{9}) {
		t.Errorf("Expected [9], got %v", loaded)
	}
}

func TestModuleRecordNamesFollowRegistry(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()

	reg := protocol.NewRegistry()
	if err := reg.Register(protocol.Descriptor{ID: protocol.PropertyOffset, Name: "flap_offset",
		Read:  protocol.Attributes{StaticSize: 1},
		Write: protocol.Attributes{StaticSize: 1}}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	m := NewModule("1.0.0")
	if _, err := m.Handlers(reg); err != nil {
		t.Fatalf("Handlers failed: %v", err)
	}
	m.Attach(s)
	if err := m.Set(protocol.PropertyOffset, []byte{4}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := m.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if _, err := s.Load("flap_offset"); err != nil {
		t.Errorf("Expected record under registry name, got %v", err)
	}
	if _, err := s.Load("offset"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Expected no record under default name, got %v", err)
	}

	restored := NewModule("1.0.0")
	if _, err := restored.Handlers(reg); err != nil {
		t.Fatalf("Handlers failed: %v", err)
	}
	if n := restored.Attach(s); n != 1 {
		t.Errorf("Expected 1 property restored, got %d", n)
	}
	if restored.Offset != 4 {
		t.Errorf("Expected offset 4, got %d", restored.Offset)
	}
}
