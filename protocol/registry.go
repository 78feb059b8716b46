package protocol

import (
	"fmt"
	"sync"
)

// PropertyID identifies a property on the wire (6 bits)
type PropertyID uint8

// Registered properties
const (
	PropertyNone PropertyID = iota
	PropertyFirmwareVersion
	PropertyFirmwareUpdate
	PropertyCommand
	PropertyModuleInfo
	PropertyCharacterSet
	PropertyCharacter
	PropertyOffset
	PropertyColor
	PropertyMotion
	PropertyMinimumRotation
)

// Attributes describe the data phase of one direction of a property
type Attributes struct {
	Multipart   bool   // Value is moved one block per transaction
	DynamicSize bool   // Length travels in-band as a 2-byte LE prefix
	StaticSize  uint16 // Byte count when not dynamic, 0 = no data phase
}

// Supported reports whether the direction has a data phase at all
func (a Attributes) Supported() bool {
	return a.DynamicSize || a.StaticSize > 0
}

// WireSize returns the number of bytes a value of valueLen occupies on the wire
func (a Attributes) WireSize(valueLen int) int {
	if a.DynamicSize {
		return DynamicSizePrefix + valueLen
	}
	return int(a.StaticSize)
}

// CheckValue validates a value length against the attributes
func (a Attributes) CheckValue(valueLen int) error {
	if a.DynamicSize {
		if DynamicSizePrefix+valueLen > ChainComMaxLen {
			return fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadSize, valueLen, ChainComMaxLen-DynamicSizePrefix)
		}
		return nil
	}
	if valueLen != int(a.StaticSize) {
		return fmt.Errorf("%w: got %d, want %d", ErrPayloadSize, valueLen, a.StaticSize)
	}
	return nil
}

// Descriptor is the registry entry for one property id
type Descriptor struct {
	ID    PropertyID
	Name  string
	Read  Attributes
	Write Attributes
}

// Registered reports whether the descriptor names a real property
func (d Descriptor) Registered() bool {
	return d.ID == PropertyNone || d.Name != ""
}

// Registry maps property ids to their wire-format attributes
type Registry struct {
	mu          sync.RWMutex
	descriptors [MaxProperties]Descriptor
	nameToID    map[string]PropertyID
}

var defaultRegistry = newDefaultRegistry()

// NewRegistry creates a registry holding only the reserved "none" property
func NewRegistry() *Registry {
	r := &Registry{
		nameToID: make(map[string]PropertyID),
	}
	for i := range r.descriptors {
		r.descriptors[i].ID = PropertyID(i)
	}
	r.descriptors[PropertyNone].Name = "none"
	r.nameToID["none"] = PropertyNone
	return r
}

func newDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, d := range defaultDescriptors {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

var defaultDescriptors = []Descriptor{
	{ID: PropertyFirmwareVersion, Name: "firmware_version",
		Read: Attributes{DynamicSize: true}},
	{ID: PropertyFirmwareUpdate, Name: "firmware_update",
		Write: Attributes{Multipart: true, StaticSize: 130}},
	{ID: PropertyCommand, Name: "command",
		Write: Attributes{StaticSize: 1}},
	{ID: PropertyModuleInfo, Name: "module_info",
		Read: Attributes{StaticSize: 1}},
	{ID: PropertyCharacterSet, Name: "character_set",
		Read: Attributes{DynamicSize: true}, Write: Attributes{DynamicSize: true}},
	{ID: PropertyCharacter, Name: "character",
		Read: Attributes{StaticSize: 1}, Write: Attributes{StaticSize: 1}},
	{ID: PropertyOffset, Name: "offset",
		Read: Attributes{StaticSize: 1}, Write: Attributes{StaticSize: 1}},
	{ID: PropertyColor, Name: "color",
		Read: Attributes{StaticSize: 6}, Write: Attributes{StaticSize: 6}},
	{ID: PropertyMotion, Name: "motion",
		Read: Attributes{StaticSize: 4}, Write: Attributes{StaticSize: 4}},
	{ID: PropertyMinimumRotation, Name: "minimum_rotation",
		Read: Attributes{StaticSize: 1}, Write: Attributes{StaticSize: 1}},
}

// DefaultRegistry returns the registry holding the standard property table
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register adds a property to the registry
func (r *Registry) Register(d Descriptor) error {
	if int(d.ID) >= MaxProperties {
		return fmt.Errorf("%w: id %d", ErrInvalidProperty, d.ID)
	}
	if d.ID == PropertyNone {
		return fmt.Errorf("%w: id 0 is reserved", ErrInvalidProperty)
	}
	if d.Name == "" {
		return fmt.Errorf("property %d has no name", d.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.nameToID[d.Name]; exists && id != d.ID {
		return fmt.Errorf("property name %q already registered as %d", d.Name, id)
	}
	if old := r.descriptors[d.ID]; old.Name != "" && old.Name != d.Name {
		delete(r.nameToID, old.Name)
	}

	r.descriptors[d.ID] = d
	r.nameToID[d.Name] = d.ID
	return nil
}

// Lookup returns the descriptor for an id. Unregistered ids inside the
// range report no data phase in either direction.
func (r *Registry) Lookup(id PropertyID) (Descriptor, error) {
	if int(id) >= MaxProperties {
		return Descriptor{}, fmt.Errorf("%w: id %d", ErrInvalidProperty, id)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.descriptors[id], nil
}

// ByName returns the descriptor registered under name
func (r *Registry) ByName(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: unknown name %q", ErrInvalidProperty, name)
	}
	return r.descriptors[id], nil
}

// Name returns the property name or "" for unknown ids
func (r *Registry) Name(id PropertyID) string {
	d, err := r.Lookup(id)
	if err != nil {
		return ""
	}
	return d.Name
}

// ReadAttributes returns the read attributes of a property
func (r *Registry) ReadAttributes(id PropertyID) (Attributes, error) {
	d, err := r.Lookup(id)
	if err != nil {
		return Attributes{}, err
	}
	return d.Read, nil
}

// WriteAttributes returns the write attributes of a property
func (r *Registry) WriteAttributes(id PropertyID) (Attributes, error) {
	d, err := r.Lookup(id)
	if err != nil {
		return Attributes{}, err
	}
	return d.Write, nil
}

// Readable validates that id is a registered property with a read data phase
func (r *Registry) Readable(id PropertyID) (Descriptor, error) {
	d, err := r.Lookup(id)
	if err != nil {
		return d, err
	}
	if !d.Registered() {
		return d, fmt.Errorf("%w: id %d", ErrInvalidProperty, id)
	}
	if id != PropertyNone && !d.Read.Supported() {
		return d, fmt.Errorf("%w: %s", ErrNotReadable, d.Name)
	}
	return d, nil
}

// Writable validates that id is a registered property with a write data phase
func (r *Registry) Writable(id PropertyID) (Descriptor, error) {
	d, err := r.Lookup(id)
	if err != nil {
		return d, err
	}
	if !d.Registered() {
		return d, fmt.Errorf("%w: id %d", ErrInvalidProperty, id)
	}
	if id != PropertyNone && !d.Write.Supported() {
		return d, fmt.Errorf("%w: %s", ErrNotWritable, d.Name)
	}
	return d, nil
}

// Properties returns every registered property except "none", in id order
func (r *Registry) Properties() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var list []Descriptor
	for _, d := range r.descriptors[PropertyNone+1:] {
		if d.Name != "" {
			list = append(list, d)
		}
	}
	return list
}

// Count returns the number of registered properties including "none"
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToID)
}

// LookupProperty is a convenience function using the default registry
func LookupProperty(id PropertyID) (Descriptor, error) {
	return defaultRegistry.Lookup(id)
}

// PropertyByName is a convenience function using the default registry
func PropertyByName(name string) (Descriptor, error) {
	return defaultRegistry.ByName(name)
}
