// Package chain simulates a daisy chain of modules. Module i's output feeds
// module i+1's input and the last module's output returns to the
// controller. Time is virtual: idle timeouts fire only when the chain is
// advanced, which keeps protocol tests independent of wall-clock timing.
package chain

import (
	"fmt"
	"time"

	"flapchain/core"
	"flapchain/node"
	"flapchain/protocol"
)

// member is one module in the chain
type member struct {
	module  *node.Module
	engine  *node.Engine
	idle    core.Timer
	stalled bool
}

// Chain is a simulated module chain on a virtual clock
type Chain struct {
	registry    *protocol.Registry
	nodes       []*member
	sched       *core.Scheduler
	now         uint32
	idleTimeout uint32
	trace       *core.TraceRing

	rx []byte // bytes returned to the controller

	// fault injection
	dropAfter int // bytes still delivered to the controller, -1 = unlimited
}

// Option configures a Chain
type Option func(*Chain)

// WithIdleTimeout sets the module idle timeout (default protocol.ModuleTimeout)
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Chain) {
		c.idleTimeout = core.TimerFromDuration(d)
	}
}

// WithRegistry uses a custom property registry
func WithRegistry(r *protocol.Registry) Option {
	return func(c *Chain) {
		c.registry = r
	}
}

// WithTrace records every module's engine events in ring
func WithTrace(ring *core.TraceRing) Option {
	return func(c *Chain) {
		c.trace = ring
	}
}

// New creates a chain of n modules with factory defaults
func New(n int, opts ...Option) (*Chain, error) {
	if n < 1 {
		return nil, fmt.Errorf("chain needs at least one module, got %d", n)
	}

	c := &Chain{
		registry:    protocol.DefaultRegistry(),
		sched:       core.NewScheduler(),
		idleTimeout: core.TimerFromDuration(protocol.ModuleTimeout),
		dropAfter:   -1,
	}
	for _, opt := range opts {
		opt(c)
	}

	for i := 0; i < n; i++ {
		module := node.NewModule(protocol.Version)
		handlers, err := module.Handlers(c.registry)
		if err != nil {
			return nil, fmt.Errorf("module %d: %w", i, err)
		}

		m := &member{module: module, engine: node.NewEngine(handlers)}
		m.engine.SetTrace(c.trace, uint16(i))
		m.idle.Handler = func(*core.Timer) uint8 {
			m.engine.Timeout()
			return core.SF_DONE
		}
		c.nodes = append(c.nodes, m)
	}
	return c, nil
}

// Len returns the number of modules
func (c *Chain) Len() int {
	return len(c.nodes)
}

// Module returns the property state of module i
func (c *Chain) Module(i int) *node.Module {
	return c.nodes[i].module
}

// Engine returns the protocol engine of module i
func (c *Chain) Engine(i int) *node.Engine {
	return c.nodes[i].engine
}

// Now returns the virtual clock in ticks
func (c *Chain) Now() uint32 {
	return c.now
}

// Inject feeds controller bytes into the first module and propagates them
// through the chain. Bytes reaching the end are queued for Drain.
func (c *Chain) Inject(data []byte) {
	for _, b := range data {
		c.deliver(0, b)
	}
}

// deliver hands a byte to module i, or to the controller past the last one
func (c *Chain) deliver(i int, b byte) {
	if i == len(c.nodes) {
		c.emit(b)
		return
	}

	m := c.nodes[i]
	if m.stalled {
		return
	}
	c.touch(m)
	out, ok := m.engine.Receive(b)
	if ok {
		c.transmit(i, out)
	}
}

// transmit sends b downstream from module i and keeps going while the
// module has more bytes to send on transmit-complete
func (c *Chain) transmit(i int, b byte) {
	m := c.nodes[i]
	for {
		c.deliver(i+1, b)
		c.touch(m)

		next, ok := m.engine.TransmitComplete()
		if !ok {
			return
		}
		b = next
	}
}

func (c *Chain) emit(b byte) {
	if c.dropAfter == 0 {
		return
	}
	if c.dropAfter > 0 {
		c.dropAfter--
	}
	c.rx = append(c.rx, b)
}

// touch re-arms the idle timer of a module after bus activity
func (c *Chain) touch(m *member) {
	m.idle.WakeTime = c.now + c.idleTimeout
	c.sched.Schedule(&m.idle)
}

// Advance moves the virtual clock forward and fires due idle timeouts
func (c *Chain) Advance(d time.Duration) {
	c.AdvanceTicks(core.TimerFromDuration(d))
}

// AdvanceTicks moves the virtual clock forward by ticks
func (c *Chain) AdvanceTicks(ticks uint32) {
	c.now += ticks
	core.SetTime(c.now)
	c.sched.Dispatch(c.now)
}

// Settle advances past the idle timeout so every module returns to idle
// (and commits pending sequential writes)
func (c *Chain) Settle() {
	c.AdvanceTicks(c.idleTimeout + 1)
}

// Drain returns and clears the bytes that reached the controller
func (c *Chain) Drain() []byte {
	out := c.rx
	c.rx = nil
	return out
}

// Pending returns the number of bytes waiting for the controller
func (c *Chain) Pending() int {
	return len(c.rx)
}

// TruncateReply delivers only the next n bytes to the controller and drops
// the rest until ClearFaults
func (c *Chain) TruncateReply(n int) {
	c.dropAfter = n
}

// Stall makes module i swallow everything it receives
func (c *Chain) Stall(i int, stalled bool) {
	c.nodes[i].stalled = stalled
}

// ClearFaults removes all injected faults
func (c *Chain) ClearFaults() {
	c.dropAfter = -1
	for _, m := range c.nodes {
		m.stalled = false
	}
}

// Trace returns the shared trace ring, nil unless WithTrace was given
func (c *Chain) Trace() *core.TraceRing {
	return c.trace
}
