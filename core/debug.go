package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// BusEvent captures one bus-level event for post-mortem analysis
type BusEvent struct {
	EventType uint8  // Event type code
	Word      uint8  // Command word on the wire
	Seq       uint32 // Monotonic event number
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtBusReset  = 1 // global reset performed
	EvtTransact  = 2 // command cycle finished: v1=reply bytes, v2=dropped bits
	EvtConfigure = 3 // timing changed: v1=tolerance, v2=timeout
	EvtBusError  = 4 // HAL error during a cycle
	EvtFrameBad  = 5 // host frame rejected by the transport
)

const (
	BusRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active.
	// Disabled by default: printing from a bus handler stretches the cycle.
	debugEnabled bool = false

	busRing     [BusRingSize]BusEvent
	busRingHead uint8
	busEventSeq uint32
)

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// RecordBusEvent stores an event in the ring buffer. It never allocates and
// is safe to call right after a bus phase.
func RecordBusEvent(eventType uint8, word uint8, value1, value2 uint32) {
	busEventSeq++
	idx := busRingHead
	busRing[idx] = BusEvent{
		EventType: eventType,
		Word:      word,
		Seq:       busEventSeq,
		Value1:    value1,
		Value2:    value2,
	}
	busRingHead = (idx + 1) % BusRingSize
}

// BusEvents returns the recorded events, oldest first
func BusEvents() []BusEvent {
	out := make([]BusEvent, 0, BusRingSize)
	start := busRingHead
	for i := uint8(0); i < BusRingSize; i++ {
		evt := busRing[(start+i)%BusRingSize]
		if evt.EventType == 0 {
			continue // Empty slot
		}
		out = append(out, evt)
	}
	return out
}

// DumpBusEvents writes the ring through the debug writer
func DumpBusEvents() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[BUS] === Event Ring Dump ===")
	for _, evt := range BusEvents() {
		var name string
		switch evt.EventType {
		case EvtBusReset:
			name = "RESET"
		case EvtTransact:
			name = "TRANSACT"
		case EvtConfigure:
			name = "CONFIGURE"
		case EvtBusError:
			name = "BUS_ERROR!"
		case EvtFrameBad:
			name = "FRAME_BAD"
		default:
			name = "UNKNOWN"
		}

		debugPrintln("[BUS] " + itoa(int(evt.Seq)) + " " + name +
			" word=0x" + hexByte(evt.Word) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[BUS] === End Dump ===")
}

// ClearBusEvents clears the event ring
func ClearBusEvents() {
	for i := range busRing {
		busRing[i] = BusEvent{}
	}
	busRingHead = 0
	busEventSeq = 0
}
