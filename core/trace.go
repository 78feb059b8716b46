package core

// TraceEvent captures one protocol engine event for post-mortem analysis
type TraceEvent struct {
	EventType uint8  // Event type code
	Node      uint16 // Module position, when known to the owner of the ring
	Clock     uint32 // System clock at event
	State     uint8  // Engine state after the event
	Value     uint16 // Context-dependent value
}

// Event type codes
const (
	EvtRx      = 1 // Byte received
	EvtTx      = 2 // Byte queued for transmit
	EvtTimeout = 3 // Idle timeout fired
	EvtCommit  = 4 // Property value applied
	EvtIgnore  = 5 // Header rejected, data ignored until timeout
	EvtError   = 6 // Handler reported an error
)

const (
	TraceRingSize = 32 // Keep last 32 events for post-mortem
)

// TraceRing is a fixed-size ring of trace events. Recording never blocks.
type TraceRing struct {
	events  [TraceRingSize]TraceEvent
	head    uint8
	enabled bool
}

// NewTraceRing creates an enabled trace ring
func NewTraceRing() *TraceRing {
	return &TraceRing{enabled: true}
}

// SetEnabled turns recording on or off
func (r *TraceRing) SetEnabled(enabled bool) {
	r.enabled = enabled
}

// Record captures an event in the ring buffer
func (r *TraceRing) Record(eventType uint8, node uint16, state uint8, value uint16) {
	if r == nil || !r.enabled {
		return
	}
	idx := r.head
	r.events[idx] = TraceEvent{
		EventType: eventType,
		Node:      node,
		Clock:     GetTime(),
		State:     state,
		Value:     value,
	}
	r.head = (idx + 1) % TraceRingSize
}

// Events returns the recorded events from oldest to newest
func (r *TraceRing) Events() []TraceEvent {
	var out []TraceEvent
	for i := uint8(0); i < TraceRingSize; i++ {
		evt := r.events[(r.head+i)%TraceRingSize]
		if evt.EventType == 0 {
			continue // Empty slot
		}
		out = append(out, evt)
	}
	return out
}

// Clear empties the ring
func (r *TraceRing) Clear() {
	for i := range r.events {
		r.events[i] = TraceEvent{}
	}
	r.head = 0
}

// EventName returns a short name for an event type code
func EventName(eventType uint8) string {
	switch eventType {
	case EvtRx:
		return "RX"
	case EvtTx:
		return "TX"
	case EvtTimeout:
		return "TIMEOUT"
	case EvtCommit:
		return "COMMIT"
	case EvtIgnore:
		return "IGNORE"
	case EvtError:
		return "ERROR!"
	default:
		return "UNKNOWN"
	}
}

// Dump writes the ring through w (call on shutdown/error)
func (r *TraceRing) Dump(w DebugWriter) {
	if w == nil {
		return
	}

	w("[TRACE] === Trace Ring Dump ===")
	for _, evt := range r.Events() {
		w("[TRACE] " + EventName(evt.EventType) +
			" node=" + Utoa(uint32(evt.Node)) +
			" clock=" + Utoa(evt.Clock) +
			" state=" + Utoa(uint32(evt.State)) +
			" value=0x" + hex16(evt.Value))
	}
	w("[TRACE] === End Dump ===")
}

// DumpTraceRing writes the ring through the global debug writer
func DumpTraceRing(r *TraceRing) {
	r.Dump(debugPrintln)
}
