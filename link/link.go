// Package link implements the SPI link layer between a keyboard half (the
// SPI master) and the Neuron (the SPI slave).
//
// Every transaction carries a small control message. The slave cannot start
// a transfer, so each step prepares the reply for the master's next clock
// burst and interprets whatever arrived in the burst that just finished.
// A master pushes a payload with SEND_START then DATA, and pulls one with
// RECV_START then a poll that clocks the DATA message out.
package link

import (
	"errors"
	"time"

	"golang.org/x/exp/slog"

	"defylink/core"
	"defylink/protocol"
)

var (
	ErrBusy          = errors.New("link busy")
	ErrTooLarge      = errors.New("message larger than link maximum")
	ErrShortBuffer   = errors.New("read buffer smaller than message")
	ErrNotIdle       = errors.New("link already started")
	ErrNak           = errors.New("slave rejected message")
	ErrNoSlave       = errors.New("slave not responding")
	ErrBadReply      = errors.New("malformed reply from slave")
	ErrNotConfigured = errors.New("link not configured")
)

// DefaultResetPulse is how long the remote reset line stays low after the
// peripheral is configured again
const DefaultResetPulse = time.Microsecond

// DefaultMessageSizeMax fits a checksummed packet behind the control header
const DefaultMessageSizeMax = ControlHeaderSize + protocol.ChecksumFrameSize

// State of the slave state machine
type State uint8

const (
	Idle State = iota
	ListeningStart
	Listening
	DataReceiveStart
	DataReceiving
	DataSendStart
	DataSending
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case ListeningStart:
		return "LISTENING_START"
	case Listening:
		return "LISTENING"
	case DataReceiveStart:
		return "DATA_RECEIVE_START"
	case DataReceiving:
		return "DATA_RECEIVING"
	case DataSendStart:
		return "DATA_SEND_START"
	case DataSending:
		return "DATA_SENDING"
	}
	return "STATE_" + hex2(uint8(s))
}

// Event is delivered to Config.Handler from interrupt context
type Event uint8

const (
	// EventDataInReady: a received message is ready for Read
	EventDataInReady Event = iota + 1
	// EventDataOutSent: the message given to Send went out on the wire
	EventDataOutSent
	// EventFault: a line fault was detected and the link was re-initialized
	EventFault
)

func (e Event) String() string {
	switch e {
	case EventDataInReady:
		return "DATA_IN_READY"
	case EventDataOutSent:
		return "DATA_OUT_SENT"
	case EventFault:
		return "FAULT"
	}
	return "EVENT_" + hex2(uint8(e))
}

// FaultReason explains why the link was re-initialized
type FaultReason uint8

const (
	FaultNone      FaultReason = iota
	FaultShort                 // Fewer bytes than a control header
	FaultIgnored               // Idle line level instead of a message type
	FaultOversize              // Declared length above the message maximum
	FaultTransfer              // Peripheral refused to arm a transfer
	FaultRequested             // Recover called by the owner
)

func (r FaultReason) String() string {
	switch r {
	case FaultNone:
		return "none"
	case FaultShort:
		return "short"
	case FaultIgnored:
		return "ignored"
	case FaultOversize:
		return "oversize"
	case FaultTransfer:
		return "transfer"
	case FaultRequested:
		return "requested"
	}
	return "fault-" + hex2(uint8(r))
}

// Config describes one slave link
type Config struct {
	Line core.SPILine
	Mode core.SPIMode
	Rate uint32

	// ResetPin drives the remote half's reset line (active low)
	ResetPin core.GPIOPin
	// ResetPulse is the minimum low time of the reset line. Recovery holds
	// the line low while the peripheral is re-initialized.
	ResetPulse time.Duration

	// MessageSizeMax is the largest link message including its header
	MessageSizeMax int

	// Handler receives link events in interrupt context. It must not block.
	Handler func(Event)

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.MessageSizeMax == 0 {
		c.MessageSizeMax = DefaultMessageSizeMax
	}
	if c.MessageSizeMax > 255 {
		c.MessageSizeMax = 255
	}
	if c.MessageSizeMax < ControlHeaderSize {
		c.MessageSizeMax = ControlHeaderSize
	}
	if c.ResetPulse == 0 {
		c.ResetPulse = DefaultResetPulse
	}
}

// Stats are diagnostic counters; they wrap silently
type Stats struct {
	Transfers  uint32 // Completed transactions
	Received   uint32 // DATA messages accepted (OK or OK_BUSY)
	Sent       uint32 // DATA messages clocked out
	Busy       uint32 // BUSY replies (saturated or lock contention)
	Saturated  uint32 // OK_BUSY replies
	Errors     uint32 // ERR replies
	Faults     uint32 // Line faults
	Recoveries uint32 // Re-initializations, including requested ones

	LastFault FaultReason
}
