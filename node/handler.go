package node

import (
	"fmt"

	"flapchain/protocol"
)

// Getter fills buf with the module's current value of a property and
// returns the number of bytes written
type Getter interface {
	Get(buf []byte) (int, error)
}

// Setter applies a value received from the chain
type Setter interface {
	Set(data []byte) error
}

// PropertyHandler handles both directions of a read/write property
type PropertyHandler interface {
	Getter
	Setter
}

// GetterFunc adapts a function to the Getter interface
type GetterFunc func(buf []byte) (int, error)

func (f GetterFunc) Get(buf []byte) (int, error) { return f(buf) }

// SetterFunc adapts a function to the Setter interface
type SetterFunc func(data []byte) error

func (f SetterFunc) Set(data []byte) error { return f(data) }

// Handlers maps property ids to the module's get/set capabilities.
// Registration is validated against the registry, so a handler can only
// exist for a direction that has a data phase on the wire.
type Handlers struct {
	registry *protocol.Registry
	getters  [protocol.MaxProperties]Getter
	setters  [protocol.MaxProperties]Setter
}

// NewHandlers creates an empty handler set bound to a registry
func NewHandlers(registry *protocol.Registry) *Handlers {
	if registry == nil {
		registry = protocol.DefaultRegistry()
	}
	return &Handlers{registry: registry}
}

// Registry returns the registry the handlers were validated against
func (h *Handlers) Registry() *protocol.Registry {
	return h.registry
}

// HandleGet registers the read side of a property
func (h *Handlers) HandleGet(id protocol.PropertyID, g Getter) error {
	d, err := h.registry.Readable(id)
	if err != nil {
		return err
	}
	if id == protocol.PropertyNone {
		return fmt.Errorf("%w: %s carries no data", protocol.ErrNotReadable, d.Name)
	}
	h.getters[id] = g
	return nil
}

// HandleSet registers the write side of a property
func (h *Handlers) HandleSet(id protocol.PropertyID, s Setter) error {
	d, err := h.registry.Writable(id)
	if err != nil {
		return err
	}
	if id == protocol.PropertyNone {
		return fmt.Errorf("%w: %s carries no data", protocol.ErrNotWritable, d.Name)
	}
	h.setters[id] = s
	return nil
}

// Handle registers both directions of a property
func (h *Handlers) Handle(id protocol.PropertyID, ph PropertyHandler) error {
	if err := h.HandleGet(id, ph); err != nil {
		return err
	}
	return h.HandleSet(id, ph)
}

// Getter returns the read handler of a property, nil when absent
func (h *Handlers) Getter(id protocol.PropertyID) Getter {
	if int(id) >= protocol.MaxProperties {
		return nil
	}
	return h.getters[id]
}

// Setter returns the write handler of a property, nil when absent
func (h *Handlers) Setter(id protocol.PropertyID) Setter {
	if int(id) >= protocol.MaxProperties {
		return nil
	}
	return h.setters[id]
}
