// Package node implements the module side of the chain protocol: a byte
// driven state machine that relays, consumes or injects bytes as a
// transaction passes through the module.
package node

import (
	"encoding/binary"

	"flapchain/core"
	"flapchain/protocol"
)

// State is the protocol engine state
type State uint8

const (
	StateReceiveHeader State = iota
	StateIndexModules
	StatePassthrough
	StateReceiveData
	StateWaitForAcknowledge
	StateTransmitData
	StateErrorIgnoreData
	stateCount
)

func (s State) String() string {
	switch s {
	case StateReceiveHeader:
		return "receiveHeader"
	case StateIndexModules:
		return "indexModules"
	case StatePassthrough:
		return "passthrough"
	case StateReceiveData:
		return "receiveData"
	case StateWaitForAcknowledge:
		return "waitForAcknowledge"
	case StateTransmitData:
		return "transmitData"
	case StateErrorIgnoreData:
		return "errorIgnoreData"
	default:
		return "unknown"
	}
}

// EventKind is one of the three bus events a module reacts to
type EventKind uint8

const (
	EventReceive EventKind = iota
	EventTransmitComplete
	EventTimeout
)

// Event is a bus event. Data is only meaningful for EventReceive.
type Event struct {
	Kind EventKind
	Data byte
}

// Stats counts engine outcomes since the last reset of the module
type Stats struct {
	Commits       uint32
	Ignored       uint32
	Timeouts      uint32
	HandlerErrors uint32
}

// Engine is the per-module protocol state machine. It owns its scratch
// buffer and counters; nothing else reads or writes them.
type Engine struct {
	registry *protocol.Registry
	handlers *Handlers
	trace    *core.TraceRing
	label    uint16

	state  State
	header protocol.Header
	attr   protocol.Attributes

	rxCount int
	txCount int
	index   uint16
	carry   bool

	scratch protocol.Scratch
	size    int // wire size of the value in scratch, -1 while a dynamic prefix is pending

	// read_all passthrough: position inside the block of another module
	blockCount int
	blockSize  int
	prefixLo   byte

	sequential    bool // current data phase belongs to write_sequential
	pendingCommit bool // write_sequential value waiting for the idle timeout
	committed     bool // waitForAcknowledge entered after a timeout commit
	ackRelayed    bool // write_all ACK handed out, value applied on transmit complete

	stats Stats
}

// NewEngine creates an engine in the receiveHeader state
func NewEngine(handlers *Handlers) *Engine {
	if handlers == nil {
		handlers = NewHandlers(nil)
	}
	e := &Engine{
		registry: handlers.Registry(),
		handlers: handlers,
	}
	e.reset()
	return e
}

// SetTrace attaches a trace ring; label identifies this engine in the ring
func (e *Engine) SetTrace(ring *core.TraceRing, label uint16) {
	e.trace = ring
	e.label = label
}

// State returns the current state
func (e *Engine) State() State {
	return e.state
}

// Index returns the remaining read_all node index
func (e *Engine) Index() uint16 {
	return e.index
}

// Stats returns the engine counters
func (e *Engine) Stats() Stats {
	return e.stats
}

// Receive handles a received byte and returns the byte to transmit, if any
func (e *Engine) Receive(b byte) (byte, bool) {
	return e.Dispatch(Event{Kind: EventReceive, Data: b})
}

// TransmitComplete handles the end of a transmission and returns the next
// byte to transmit, if any
func (e *Engine) TransmitComplete() (byte, bool) {
	return e.Dispatch(Event{Kind: EventTransmitComplete})
}

// Timeout handles the idle timeout
func (e *Engine) Timeout() {
	e.Dispatch(Event{Kind: EventTimeout})
}

type stateFuncs struct {
	rx      func(e *Engine, b byte) (byte, bool)
	tx      func(e *Engine) (byte, bool)
	timeout func(e *Engine)
}

var stateTable = [stateCount]stateFuncs{
	StateReceiveHeader:      {rx: (*Engine).rxHeader, tx: (*Engine).txNone, timeout: (*Engine).timeoutReset},
	StateIndexModules:       {rx: (*Engine).rxIndex, tx: (*Engine).txNone, timeout: (*Engine).timeoutReset},
	StatePassthrough:        {rx: (*Engine).rxPassthrough, tx: (*Engine).txNone, timeout: (*Engine).timeoutPassthrough},
	StateReceiveData:        {rx: (*Engine).rxData, tx: (*Engine).txNone, timeout: (*Engine).timeoutReset},
	StateWaitForAcknowledge: {rx: (*Engine).rxAcknowledge, tx: (*Engine).txAcknowledge, timeout: (*Engine).timeoutAcknowledge},
	StateTransmitData:       {rx: (*Engine).rxDrop, tx: (*Engine).txData, timeout: (*Engine).timeoutReset},
	StateErrorIgnoreData:    {rx: (*Engine).rxDrop, tx: (*Engine).txNone, timeout: (*Engine).timeoutReset},
}

// Dispatch feeds one event through the state table
func (e *Engine) Dispatch(ev Event) (byte, bool) {
	funcs := &stateTable[e.state]

	switch ev.Kind {
	case EventReceive:
		e.record(core.EvtRx, uint16(ev.Data))
		out, ok := funcs.rx(e, ev.Data)
		if ok {
			e.record(core.EvtTx, uint16(out))
		}
		return out, ok
	case EventTransmitComplete:
		out, ok := funcs.tx(e)
		if ok {
			e.record(core.EvtTx, uint16(out))
		}
		return out, ok
	case EventTimeout:
		e.stats.Timeouts++
		e.record(core.EvtTimeout, uint16(e.state))
		funcs.timeout(e)
	}
	return 0, false
}

// reset returns to the idle header-receiving state
func (e *Engine) reset() {
	e.state = StateReceiveHeader
	e.header = protocol.Header{}
	e.attr = protocol.Attributes{}
	e.rxCount = 0
	e.txCount = 0
	e.index = 0
	e.carry = false
	e.scratch.Reset()
	e.size = 0
	e.blockCount = 0
	e.blockSize = 0
	e.prefixLo = 0
	e.sequential = false
	e.pendingCommit = false
	e.committed = false
	e.ackRelayed = false
}

func (e *Engine) ignore() (byte, bool) {
	e.reset()
	e.state = StateErrorIgnoreData
	e.stats.Ignored++
	e.record(core.EvtIgnore, 0)
	return 0, false
}

func (e *Engine) rxHeader(b byte) (byte, bool) {
	h := protocol.DecodeHeader(b)
	d, err := e.registry.Lookup(h.Property)
	if err != nil {
		return e.ignore()
	}
	none := h.Property == protocol.PropertyNone

	e.reset()
	e.header = h

	switch h.Action {
	case protocol.ActionDoNothing:
		if !none {
			return e.ignore()
		}
		// Idle byte (also how an ACK crosses an idle module)
		return b, true

	case protocol.ActionReadAll:
		if !none && (!d.Registered() || !d.Read.Supported()) {
			return e.ignore()
		}
		e.attr = d.Read
		e.state = StateIndexModules
		return b, true

	case protocol.ActionWriteAll:
		if !none && (!d.Registered() || !d.Write.Supported()) {
			return e.ignore()
		}
		e.attr = d.Write
		if e.attr.Supported() {
			e.beginData()
		} else {
			e.state = StateWaitForAcknowledge
		}
		return b, true

	case protocol.ActionWriteSequential:
		if none {
			// Not addressed to this module, let the rest of the pass through
			e.state = StatePassthrough
			return 0, false
		}
		if !d.Registered() || !d.Write.Supported() {
			return e.ignore()
		}
		e.attr = d.Write
		e.sequential = true
		e.beginData()
		return 0, false
	}

	return e.ignore()
}

func (e *Engine) rxIndex(b byte) (byte, bool) {
	if e.rxCount == 0 {
		lo := b + 1
		e.carry = lo == 0
		e.index = uint16(lo)
		e.rxCount++
		return lo, true
	}

	hi := b
	if e.carry {
		hi++
	}
	e.index |= uint16(hi) << 8
	e.rxCount = 0

	if !e.attr.Supported() {
		// Discovery only, nothing to answer or count
		e.reset()
		return hi, true
	}

	e.loadValue()
	e.index--
	if e.index == 0 {
		e.state = StateTransmitData
	} else {
		e.state = StatePassthrough
		e.blockCount = 0
		e.blockSize = e.blockWireSize()
	}
	return hi, true
}

// blockWireSize returns the size of a read block, -1 until a dynamic prefix is seen
func (e *Engine) blockWireSize() int {
	if e.attr.DynamicSize {
		return -1
	}
	return int(e.attr.StaticSize)
}

func (e *Engine) rxPassthrough(b byte) (byte, bool) {
	if e.header.Action != protocol.ActionReadAll {
		return b, true
	}

	e.blockCount++
	if e.attr.DynamicSize {
		switch e.blockCount {
		case 1:
			e.prefixLo = b
		case protocol.DynamicSizePrefix:
			e.blockSize = protocol.DynamicSizePrefix + (int(e.prefixLo) | int(b)<<8)
		}
	}

	if e.blockSize >= 0 && e.blockCount == e.blockSize {
		e.blockCount = 0
		e.blockSize = e.blockWireSize()
		e.index--
		if e.index == 0 {
			e.state = StateTransmitData
		}
	}
	return b, true
}

func (e *Engine) beginData() {
	e.state = StateReceiveData
	e.scratch.Reset()
	e.rxCount = 0
	if e.attr.DynamicSize {
		e.size = -1
	} else {
		e.size = int(e.attr.StaticSize)
	}
}

func (e *Engine) rxData(b byte) (byte, bool) {
	e.scratch.Append(b)
	e.rxCount++

	if e.size < 0 && e.rxCount == protocol.DynamicSizePrefix {
		n := int(binary.LittleEndian.Uint16(e.scratch.Result()))
		if protocol.DynamicSizePrefix+n > protocol.ChainComMaxLen {
			return e.ignore()
		}
		e.size = protocol.DynamicSizePrefix + n
	}

	relay := !e.sequential
	if e.size >= 0 && e.rxCount >= e.size {
		if e.sequential {
			e.pendingCommit = true
			e.state = StatePassthrough
		} else {
			e.state = StateWaitForAcknowledge
		}
	}
	return b, relay
}

func (e *Engine) rxAcknowledge(b byte) (byte, bool) {
	if e.ackRelayed {
		// Next byte arrived before transmit complete
		e.finishAcknowledge()
		return e.rxHeader(b)
	}
	if b == protocol.AckByte {
		if !e.committed && e.attr.Supported() {
			// Relay first, the value is applied once the ACK is out
			e.ackRelayed = true
			return b, true
		}
		e.reset()
		return b, true
	}
	if e.committed {
		// The next command followed the sequential commit directly
		return e.rxHeader(b)
	}
	// Anything but the ACK means the broadcast was corrupted; do not apply it
	return e.ignore()
}

func (e *Engine) txAcknowledge() (byte, bool) {
	if e.ackRelayed {
		e.finishAcknowledge()
	}
	return 0, false
}

func (e *Engine) timeoutAcknowledge() {
	if e.ackRelayed {
		e.finishAcknowledge()
	}
	e.reset()
}

// finishAcknowledge applies a broadcast value whose ACK has been relayed
func (e *Engine) finishAcknowledge() {
	e.commit()
	e.reset()
}

func (e *Engine) rxDrop(b byte) (byte, bool) {
	return 0, false
}

func (e *Engine) txNone() (byte, bool) {
	return 0, false
}

func (e *Engine) txData() (byte, bool) {
	if e.txCount >= e.size {
		e.reset()
		return 0, false
	}
	out := e.scratch.At(e.txCount)
	e.txCount++
	if e.txCount >= e.size {
		// Last byte is on its way, accept the next header immediately
		e.reset()
	}
	return out, true
}

func (e *Engine) timeoutReset() {
	e.reset()
}

func (e *Engine) timeoutPassthrough() {
	if !e.pendingCommit {
		e.reset()
		return
	}
	e.commit()
	e.reset()
	e.state = StateWaitForAcknowledge
	e.committed = true
}

// loadValue fills scratch with this module's value in wire format
func (e *Engine) loadValue() {
	e.scratch.Reset()
	getter := e.handlers.Getter(e.header.Property)

	if e.attr.DynamicSize {
		free := e.scratch.Free()
		n := 0
		if getter != nil {
			var err error
			n, err = getter.Get(free[protocol.DynamicSizePrefix:])
			if err != nil {
				e.handlerError()
				n = 0
			}
		}
		binary.LittleEndian.PutUint16(free, uint16(n))
		e.scratch.Advance(protocol.DynamicSizePrefix + n)
	} else {
		size := int(e.attr.StaticSize)
		free := e.scratch.Free()[:size]
		for i := range free {
			free[i] = 0
		}
		if getter != nil {
			if _, err := getter.Get(free); err != nil {
				e.handlerError()
				for i := range free {
					free[i] = 0
				}
			}
		}
		e.scratch.Advance(size)
	}

	e.size = e.scratch.CurPosition()
	e.txCount = 0
}

// value returns the received value without its dynamic size prefix
func (e *Engine) value() []byte {
	data := e.scratch.Result()
	if e.attr.DynamicSize && len(data) >= protocol.DynamicSizePrefix {
		return data[protocol.DynamicSizePrefix:]
	}
	return data
}

func (e *Engine) commit() {
	setter := e.handlers.Setter(e.header.Property)
	if setter == nil {
		return
	}
	if err := setter.Set(e.value()); err != nil {
		e.handlerError()
		return
	}
	e.stats.Commits++
	e.record(core.EvtCommit, uint16(e.header.Property))
}

func (e *Engine) handlerError() {
	e.stats.HandlerErrors++
	e.record(core.EvtError, uint16(e.header.Property))
}

func (e *Engine) record(evt uint8, value uint16) {
	if e.trace != nil {
		e.trace.Record(evt, e.label, uint8(e.state), value)
	}
}
