package core

import "sync/atomic"

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TraceEvent captures a link event for post-mortem analysis
type TraceEvent struct {
	Type  uint8  // Event type code
	Line  uint8  // SPI line the event belongs to
	State uint8  // Link state when the event was recorded
	Clock uint32 // System time in ms
	Value uint32 // Context-dependent value
}

// Trace event type codes
const (
	TraceTransferDone = 1 // Transaction completed (Value = in_len<<16 | out_len)
	TraceReply        = 2 // Result message composed (Value = result type)
	TraceSwapIn       = 3 // Input cache handed to the application
	TraceSwapOut      = 4 // Output handed to the cache
	TraceBusy         = 5 // Try-lock contention or saturation
	TraceFault        = 6 // Line fault detected (Value = fault reason)
	TraceRecover      = 7 // Link re-initialized
	TraceLiveness     = 8 // Remote became active (1) or inactive (0)
	TraceChecksum     = 9 // Packet dropped on checksum mismatch
	TraceDropped      = 10
)

const (
	TraceRingSize = 64 // Keep last 64 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled atomic.Bool

	traceRing    [TraceRingSize]TraceEvent
	traceHead    atomic.Uint32
	traceEnabled atomic.Bool
)

func init() {
	traceEnabled.Store(true)
}

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, etc.
func SetDebugWriter(writer DebugWriter) {
	if writer == nil {
		writer = func(string) {}
	}
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled.Load()
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled.Load() {
		debugPrintln(msg)
	}
}

// SetTraceEnabled turns link event capture on or off
func SetTraceEnabled(enabled bool) {
	traceEnabled.Store(enabled)
}

// RecordTrace captures a link event in the ring buffer.
// Non-blocking and safe from interrupt context on either core.
func RecordTrace(eventType, line, state uint8, value uint32) {
	if !traceEnabled.Load() {
		return
	}
	idx := (traceHead.Add(1) - 1) % TraceRingSize
	traceRing[idx] = TraceEvent{
		Type:  eventType,
		Line:  line,
		State: state,
		Clock: GetTime(),
		Value: value,
	}
}

// TraceSnapshot copies the ring from oldest to newest, skipping empty slots
func TraceSnapshot() []TraceEvent {
	head := traceHead.Load()
	out := make([]TraceEvent, 0, TraceRingSize)
	for i := uint32(0); i < TraceRingSize; i++ {
		evt := traceRing[(head+i)%TraceRingSize]
		if evt.Type == 0 {
			continue
		}
		out = append(out, evt)
	}
	return out
}

// TraceName returns the short name of a trace event type
func TraceName(eventType uint8) string {
	switch eventType {
	case TraceTransferDone:
		return "XFER_DONE"
	case TraceReply:
		return "REPLY"
	case TraceSwapIn:
		return "SWAP_IN"
	case TraceSwapOut:
		return "SWAP_OUT"
	case TraceBusy:
		return "BUSY"
	case TraceFault:
		return "FAULT!"
	case TraceRecover:
		return "RECOVER"
	case TraceLiveness:
		return "LIVENESS"
	case TraceChecksum:
		return "CHECKSUM!"
	case TraceDropped:
		return "DROPPED"
	}
	return "UNKNOWN"
}

// DumpTraceRing outputs the trace ring (call on fault or from a debug command)
func DumpTraceRing() {
	debugPrintln("[TRACE] === Link Trace Dump ===")
	for _, evt := range TraceSnapshot() {
		debugPrintln("[TRACE] " + TraceName(evt.Type) +
			" line=" + Itoa(evt.Line) +
			" state=" + Itoa(evt.State) +
			" clock=" + Itoa(evt.Clock) +
			" v=" + Itoa(evt.Value))
	}
	debugPrintln("[TRACE] === End Dump ===")
}

// ClearTraceRing clears the trace buffer
func ClearTraceRing() {
	for i := range traceRing {
		traceRing[i] = TraceEvent{}
	}
	traceHead.Store(0)
}
