// Package display keeps the controller's picture of every module's
// properties and tracks which of them still have to reach the chain.
package display

import (
	"bytes"
	"fmt"
	"sync"

	"flapchain/protocol"
)

// Module is the controller-side copy of one module's properties
type Module struct {
	values [protocol.MaxProperties][]byte
	desync uint64 // bit per property: value still has to be written
}

// Value returns the last known or intended value of a property
func (m *Module) Value(id protocol.PropertyID) []byte {
	if int(id) >= protocol.MaxProperties {
		return nil
	}
	return m.values[id]
}

// Desynced reports whether the module still needs a write of id
func (m *Module) Desynced(id protocol.PropertyID) bool {
	return int(id) < protocol.MaxProperties && m.desync&(1<<id) != 0
}

// Display is the ordered set of modules on the chain, indexed in chain order
type Display struct {
	mu       sync.Mutex
	registry *protocol.Registry
	modules  []*Module

	pendingRead  uint64 // bit per property: read_all requested
	pendingWrite uint64 // bit per property: write_all of module 0's value requested
}

// New creates an empty display. A nil registry uses the default one.
func New(registry *protocol.Registry) *Display {
	if registry == nil {
		registry = protocol.DefaultRegistry()
	}
	return &Display{registry: registry}
}

// Registry returns the property registry values are validated against
func (d *Display) Registry() *protocol.Registry {
	return d.registry
}

// Len returns the number of modules
func (d *Display) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.modules)
}

// Resize sets the module count. Existing modules keep their state.
func (d *Display) Resize(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resize(n)
}

func (d *Display) resize(n int) {
	if n < 0 {
		n = 0
	}
	for len(d.modules) < n {
		d.modules = append(d.modules, &Module{})
	}
	d.modules = d.modules[:n]
}

// Value returns a copy of module i's value of id
func (d *Display) Value(i int, id protocol.PropertyID) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.modules) {
		return nil
	}
	return bytes.Clone(d.modules[i].Value(id))
}

// Desynced reports whether module i still needs a write of id
func (d *Display) Desynced(i int, id protocol.PropertyID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.modules) {
		return false
	}
	return d.modules[i].Desynced(id)
}

// MarkRead requests a read_all of id on the next sync
func (d *Display) MarkRead(id protocol.PropertyID) error {
	if _, err := d.registry.Readable(id); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingRead |= 1 << id
	return nil
}

// MarkWrite requests a broadcast of module 0's value of id on the next sync
func (d *Display) MarkWrite(id protocol.PropertyID) error {
	if _, err := d.registry.Writable(id); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingWrite |= 1 << id
	return nil
}

// SetValue stores the intended value of id for module i and flags the
// module for a sequential write
func (d *Display) SetValue(i int, id protocol.PropertyID, value []byte) error {
	desc, err := d.registry.Writable(id)
	if err != nil {
		return err
	}
	if err := desc.Write.CheckValue(len(value)); err != nil {
		return fmt.Errorf("%s: %w", desc.Name, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.modules) {
		return fmt.Errorf("module %d out of range (display has %d)", i, len(d.modules))
	}
	m := d.modules[i]
	m.values[id] = bytes.Clone(value)
	m.desync |= 1 << id
	return nil
}

// SetAll stores value for every module and requests a broadcast
func (d *Display) SetAll(id protocol.PropertyID, value []byte) error {
	desc, err := d.registry.Writable(id)
	if err != nil {
		return err
	}
	if err := desc.Write.CheckValue(len(value)); err != nil {
		return fmt.Errorf("%s: %w", desc.Name, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.modules {
		m.values[id] = bytes.Clone(value)
		m.desync &^= 1 << id
	}
	d.pendingWrite |= 1 << id
	return nil
}

// PromoteWriteSeqToWriteAll turns pending sequential writes into a single
// broadcast for every property where all modules hold the same value.
// Returns the promoted property ids.
func (d *Display) PromoteWriteSeqToWriteAll() []protocol.PropertyID {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.modules) == 0 {
		return nil
	}

	var promoted []protocol.PropertyID
	for id := protocol.PropertyID(0); int(id) < protocol.MaxProperties; id++ {
		if !d.anyDesynced(id) {
			continue
		}
		first := d.modules[0].values[id]
		if first == nil {
			continue
		}
		same := true
		for _, m := range d.modules[1:] {
			if !bytes.Equal(m.values[id], first) {
				same = false
				break
			}
		}
		if !same {
			continue
		}
		for _, m := range d.modules {
			m.desync &^= 1 << id
		}
		d.pendingWrite |= 1 << id
		promoted = append(promoted, id)
	}
	return promoted
}

func (d *Display) anyDesynced(id protocol.PropertyID) bool {
	for _, m := range d.modules {
		if m.Desynced(id) {
			return true
		}
	}
	return false
}

// takeRead clears and returns the pending read flag of id
func (d *Display) takeRead(id protocol.PropertyID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	pending := d.pendingRead&(1<<id) != 0
	d.pendingRead &^= 1 << id
	return pending
}

// takeWrite clears the pending broadcast flag of id and returns the value
// to broadcast. The flag is cleared before the write goes out.
func (d *Display) takeWrite(id protocol.PropertyID) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pendingWrite&(1<<id) == 0 {
		return nil, false
	}
	d.pendingWrite &^= 1 << id
	if len(d.modules) == 0 {
		return nil, false
	}
	value := d.modules[0].values[id]
	if value == nil {
		value = []byte{}
	}
	return bytes.Clone(value), true
}

// restoreRead re-requests a read_all that failed
func (d *Display) restoreRead(id protocol.PropertyID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingRead |= 1 << id
}

// restoreWrite re-requests a broadcast that failed
func (d *Display) restoreWrite(id protocol.PropertyID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingWrite |= 1 << id
}

// applyBroadcast records a successful write_all in every module
func (d *Display) applyBroadcast(id protocol.PropertyID, value []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.modules {
		m.values[id] = bytes.Clone(value)
		m.desync &^= 1 << id
	}
}

// sequential returns the per-module values of a sequential write of id,
// nil for modules that are in sync. The slice ends at the last desynced
// module; ok is false when no module needs the write.
func (d *Display) sequential(id protocol.PropertyID) (values [][]byte, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	last := -1
	for i, m := range d.modules {
		if m.Desynced(id) {
			last = i
		}
	}
	if last < 0 {
		return nil, false
	}

	values = make([][]byte, last+1)
	for i, m := range d.modules[:last+1] {
		if m.Desynced(id) {
			values[i] = bytes.Clone(m.values[id])
		}
	}
	return values, true
}

// confirmSequential clears the desync flag of modules whose value was
// written and has not changed since
func (d *Display) confirmSequential(id protocol.PropertyID, written [][]byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, v := range written {
		if v == nil || i >= len(d.modules) {
			continue
		}
		m := d.modules[i]
		if bytes.Equal(m.values[id], v) {
			m.desync &^= 1 << id
		}
	}
}

// applyRead stores the values returned by read_all. Modules with a
// pending write keep their intended value.
func (d *Display) applyRead(id protocol.PropertyID, values [][]byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resize(len(values))
	if id == protocol.PropertyNone {
		return
	}
	for i, v := range values {
		m := d.modules[i]
		if m.Desynced(id) {
			continue
		}
		m.values[id] = bytes.Clone(v)
	}
}
