package node

import (
	"encoding"
	"errors"
	"fmt"

	"flapchain/protocol"
	"flapchain/property"
)

// Module is the property state of one split-flap module. The motor control
// loop reads it; the protocol engine changes it through the handlers.
type Module struct {
	Info            property.ModuleInfo
	Version         property.FirmwareVersion
	CharacterSet    property.CharacterSet
	Character       property.Character
	Offset          property.Offset
	Color           property.Color
	Motion          property.Motion
	MinimumRotation property.MinimumRotation

	// OnCommand runs one-shot commands such as reboot
	OnCommand func(property.Command)

	// OnFirmwareBlock receives firmware_update blocks
	OnFirmwareBlock func(property.FirmwareBlock) error

	// OnChange is called after a property value was applied
	OnChange func(protocol.PropertyID)

	registry *protocol.Registry
	store    *Store
	dirty    uint64 // persistent values changed since the last Flush
}

// NewModule creates a module with factory defaults
func NewModule(version string) *Module {
	return &Module{
		Info:            property.ModuleInfo{Type: property.ModuleTypeSplitflap},
		Version:         property.FirmwareVersion(version),
		CharacterSet:    property.ParseCharacterSet(property.DefaultCharacterSet),
		Color:           property.Color{Foreground: property.RGB{R: 0xFF, G: 0xFF, B: 0xFF}},
		Motion:          property.Motion{SpeedMin: 10, SpeedMax: 80, DistanceRampStart: 6, DistanceRampStop: 10},
		MinimumRotation: 0,
	}
}

// persistent lists the properties written to the store by Flush
var persistent = []protocol.PropertyID{
	protocol.PropertyCharacterSet,
	protocol.PropertyOffset,
	protocol.PropertyColor,
	protocol.PropertyMotion,
	protocol.PropertyMinimumRotation,
}

// value returns the typed field behind a property id
func (m *Module) value(id protocol.PropertyID) (encoding.BinaryMarshaler, encoding.BinaryUnmarshaler) {
	switch id {
	case protocol.PropertyFirmwareVersion:
		return m.Version, &m.Version
	case protocol.PropertyModuleInfo:
		return m.Info, &m.Info
	case protocol.PropertyCharacterSet:
		return m.CharacterSet, &m.CharacterSet
	case protocol.PropertyCharacter:
		return m.Character, &m.Character
	case protocol.PropertyOffset:
		return m.Offset, &m.Offset
	case protocol.PropertyColor:
		return m.Color, &m.Color
	case protocol.PropertyMotion:
		return m.Motion, &m.Motion
	case protocol.PropertyMinimumRotation:
		return m.MinimumRotation, &m.MinimumRotation
	}
	return nil, nil
}

// Get encodes the current value of a property into buf
func (m *Module) Get(id protocol.PropertyID, buf []byte) (int, error) {
	v, _ := m.value(id)
	if v == nil {
		return 0, fmt.Errorf("%w: id %d", protocol.ErrNotReadable, id)
	}
	data, err := v.MarshalBinary()
	if err != nil {
		return 0, err
	}
	if len(data) > len(buf) {
		return 0, fmt.Errorf("%w: %d bytes do not fit %d", protocol.ErrPayloadSize, len(data), len(buf))
	}
	return copy(buf, data), nil
}

// Set applies a value received from the chain
func (m *Module) Set(id protocol.PropertyID, data []byte) error {
	switch id {
	case protocol.PropertyCommand:
		var c property.Command
		if err := c.UnmarshalBinary(data); err != nil {
			return err
		}
		if m.OnCommand != nil {
			m.OnCommand(c)
		}
		return nil

	case protocol.PropertyFirmwareUpdate:
		var block property.FirmwareBlock
		if err := block.UnmarshalBinary(data); err != nil {
			return err
		}
		if m.OnFirmwareBlock == nil {
			return fmt.Errorf("%w: firmware update not supported", protocol.ErrNotWritable)
		}
		return m.OnFirmwareBlock(block)

	case protocol.PropertyCharacter:
		var c property.Character
		if err := c.UnmarshalBinary(data); err != nil {
			return err
		}
		if int(c) >= len(m.CharacterSet) {
			return fmt.Errorf("%w: character %d outside set of %d", property.ErrInvalidValue, c, len(m.CharacterSet))
		}
		m.Character = c

	case protocol.PropertyCharacterSet:
		var cs property.CharacterSet
		if err := cs.UnmarshalBinary(data); err != nil {
			return err
		}
		if len(cs) == 0 {
			return fmt.Errorf("%w: empty character set", property.ErrInvalidValue)
		}
		m.CharacterSet = cs
		if int(m.Character) >= len(cs) {
			m.Character = 0
		}

	default:
		_, u := m.value(id)
		if u == nil {
			return fmt.Errorf("%w: id %d", protocol.ErrNotWritable, id)
		}
		if err := u.UnmarshalBinary(data); err != nil {
			return err
		}
	}

	if m.store != nil && isPersistent(id) {
		m.dirty |= 1 << id
	}
	if m.OnChange != nil {
		m.OnChange(id)
	}
	return nil
}

func (m *Module) writable(id protocol.PropertyID) bool {
	if id == protocol.PropertyCommand || id == protocol.PropertyFirmwareUpdate {
		return true
	}
	_, u := m.value(id)
	return u != nil
}

// recordName returns the store record name of a property
func (m *Module) recordName(id protocol.PropertyID) string {
	if m.registry != nil {
		return m.registry.Name(id)
	}
	return protocol.DefaultRegistry().Name(id)
}

func isPersistent(id protocol.PropertyID) bool {
	for _, p := range persistent {
		if p == id {
			return true
		}
	}
	return false
}

// Handlers builds the engine handler set for this module
func (m *Module) Handlers(registry *protocol.Registry) (*Handlers, error) {
	h := NewHandlers(registry)
	m.registry = h.Registry()
	for _, d := range h.Registry().Properties() {
		id := d.ID
		if d.Read.Supported() {
			if v, _ := m.value(id); v != nil {
				if err := h.HandleGet(id, GetterFunc(func(buf []byte) (int, error) {
					return m.Get(id, buf)
				})); err != nil {
					return nil, err
				}
			}
		}
		if d.Write.Supported() && m.writable(id) {
			if err := h.HandleSet(id, SetterFunc(func(data []byte) error {
				return m.Set(id, data)
			})); err != nil {
				return nil, err
			}
		}
	}
	return h, nil
}

// Attach restores saved values from store and records future changes for
// Flush. Returns the number of properties restored.
func (m *Module) Attach(store *Store) int {
	m.store = nil
	m.dirty = 0
	restored := 0
	for _, id := range persistent {
		data, err := store.Load(m.recordName(id))
		if err != nil {
			continue // Not saved yet or corrupt: keep the default
		}
		if err := m.Set(id, data); err != nil {
			continue
		}
		restored++
	}
	m.store = store
	return restored
}

// Dirty reports whether persistent values changed since the last Flush
func (m *Module) Dirty() bool {
	return m.dirty != 0
}

// Flush writes changed persistent values to the store. Flash writes are
// slow, so call it while the chain is idle and never from a handler.
func (m *Module) Flush() error {
	if m.store == nil || m.dirty == 0 {
		return nil
	}
	var buf [protocol.ChainComMaxLen]byte
	var errs []error
	for _, id := range persistent {
		if m.dirty&(1<<id) == 0 {
			continue
		}
		n, err := m.Get(id, buf[:])
		if err == nil {
			err = m.store.Save(m.recordName(id), buf[:n])
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", m.recordName(id), err))
			continue
		}
		m.dirty &^= 1 << id
	}
	return errors.Join(errs...)
}
