// Package keyscanner emulates the keyboard-half end of a link. It drives a
// link.Master the way a keyscanner does: key reports and keep-alives go
// out, LED and control packets come back and are dispatched to listeners.
// The bench firmware runs it against a real Neuron; tests run it against
// the simulated peripheral.
package keyscanner

import (
	"errors"
	"math/rand"

	"golang.org/x/exp/slog"

	"defylink/core"
	"defylink/link"
	"defylink/protocol"
)

var (
	ErrQueueFull = errors.New("keyscanner tx queue full")
	ErrBadDevice = errors.New("keyscanner device must be a keyboard half")
)

// Defaults
const (
	DefaultQueueDepth    = 16
	DefaultAliveInterval = 100 // ms
)

// Config describes the emulated half
type Config struct {
	Device         protocol.Device // DeviceKeyscannerLeft or DeviceKeyscannerRight
	AliveInterval  uint32          // ms between IS_ALIVE packets while idle
	AliveVariation uint32          // Random ms added to each interval
	Checksum       bool
	QueueDepth     int
	Version        string // GET_VERSION reply, defaults to protocol.Version

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.AliveInterval == 0 {
		c.AliveInterval = DefaultAliveInterval
	}
	if c.QueueDepth == 0 {
		c.QueueDepth = DefaultQueueDepth
	}
	if c.Version == "" {
		c.Version = protocol.Version
	}
}

// Stats are diagnostic counters
type Stats struct {
	Sent           uint32
	Received       uint32
	KeepAlives     uint32
	Busy           uint32 // Sends refused with BUSY, retried later
	Rejected       uint32 // Received packets with a bad payload
	ChecksumErrors uint32
	LineFaults     uint32 // Received packets with a bad size field
	LinkErrors     uint32
}

// Half is one emulated keyboard half. It is driven from a single loop.
type Half struct {
	m     *link.Master
	clock core.Clock
	cb    *core.Callbacks
	cfg   Config
	log   *slog.Logger
	rng   *rand.Rand

	tx        *core.Queue[protocol.Packet]
	lastOut   uint32
	interval  uint32
	inBuf     []byte
	outBuf    []byte
	stats     Stats
	leds      map[protocol.Command]protocol.Packet
	connected bool
}

// New creates a half on m. A nil clock uses the system clock.
func New(m *link.Master, clock core.Clock, cfg Config) (*Half, error) {
	if !cfg.Device.IsKeyscanner() {
		return nil, ErrBadDevice
	}
	cfg.applyDefaults()
	if clock == nil {
		clock = core.SystemClock{}
	}
	h := &Half{
		m:      m,
		clock:  clock,
		cb:     core.NewCallbacks(),
		cfg:    cfg,
		log:    core.LoggerOrNop(cfg.Logger).With("half", cfg.Device.String()),
		rng:    rand.New(rand.NewSource(int64(cfg.Device))),
		tx:     core.NewQueue[protocol.Packet](cfg.QueueDepth),
		inBuf:  make([]byte, m.MaxPayload()),
		outBuf: make([]byte, 0, protocol.ChecksumFrameSize),
		leds:   make(map[protocol.Command]protocol.Packet),
	}
	h.lastOut = clock.Millis()
	h.interval = h.nextInterval()
	return h, nil
}

// Callbacks is the registry received packets are dispatched to
func (h *Half) Callbacks() *core.Callbacks {
	return h.cb
}

func (h *Half) Stats() Stats {
	return h.stats
}

// AliveInterval returns the keep-alive base and variation in use
func (h *Half) AliveInterval() (base, variation uint32) {
	return h.cfg.AliveInterval, h.cfg.AliveVariation
}

// LED returns the last packet received for an LED command
func (h *Half) LED(cmd protocol.Command) (protocol.Packet, bool) {
	p, ok := h.leds[cmd]
	return p, ok
}

// Queue adds a packet for the Neuron
func (h *Half) Queue(cmd protocol.Command, payload []byte) error {
	pkt, err := protocol.NewPacket(cmd, h.cfg.Device, payload)
	if err != nil {
		return err
	}
	if !h.tx.Push(pkt) {
		return ErrQueueFull
	}
	return nil
}

// SendKeys queues a HAS_KEYS report carrying the key matrix state
func (h *Half) SendKeys(matrix []byte) error {
	return h.Queue(protocol.CmdHasKeys, matrix)
}

// Run does one round: poll the Neuron, take a pending packet if it has one,
// then send the next queued packet or a keep-alive when idle.
func (h *Half) Run() error {
	if _, err := h.m.Poll(); err != nil {
		return h.linkError(err)
	}
	if h.m.DataReady() {
		if err := h.receive(); err != nil {
			return err
		}
	}

	now := h.clock.Millis()
	pkt, ok := h.tx.Peek()
	keepAlive := false
	if !ok {
		if !core.Elapsed(now, h.lastOut, h.interval) {
			return nil
		}
		pkt, _ = protocol.NewPacket(protocol.CmdIsAlive, h.cfg.Device, nil)
		keepAlive = true
	}

	err := h.send(&pkt)
	switch {
	case err == link.ErrBusy:
		h.stats.Busy++
		return nil
	case err != nil:
		return h.linkError(err)
	}

	if keepAlive {
		h.stats.KeepAlives++
	} else {
		h.tx.Pop()
	}
	h.stats.Sent++
	h.lastOut = now
	h.interval = h.nextInterval()
	return nil
}

func (h *Half) send(pkt *protocol.Packet) error {
	pkt.SetDevice(h.cfg.Device)
	pkt.SetHasMore(h.tx.Len() > 1)
	out := pkt.Bytes()
	if h.cfg.Checksum {
		out = protocol.AppendChecksum(h.outBuf[:0], pkt)
	}
	return h.m.Send(out)
}

func (h *Half) receive() error {
	n, err := h.m.Receive(h.inBuf)
	if err != nil {
		if err == link.ErrBusy {
			return nil
		}
		return h.linkError(err)
	}

	var pkt protocol.Packet
	if h.cfg.Checksum {
		pkt, err = protocol.VerifyChecksum(h.inBuf[:n])
	} else {
		pkt, err = protocol.DecodePacket(h.inBuf[:n])
	}
	switch {
	case err == protocol.ErrChecksum:
		h.stats.ChecksumErrors++
		return nil
	case err != nil:
		h.stats.LineFaults++
		return nil
	}
	h.stats.Received++
	if !h.connected {
		h.connected = true
		h.log.Info("neuron seen", "device", pkt.Device().String())
	}
	h.handle(&pkt)
	return nil
}

func (h *Half) handle(pkt *protocol.Packet) {
	switch cmd := pkt.Command(); cmd {
	case protocol.CmdSetAliveInterval:
		base, variation, err := protocol.DecodeAliveInterval(pkt.Payload())
		if err != nil {
			h.stats.Rejected++
			h.log.Warn("bad alive interval", "err", err.Error())
			return
		}
		h.cfg.AliveInterval = base
		h.cfg.AliveVariation = variation
		h.interval = h.nextInterval()
		h.log.Debug("alive interval", "base", base, "variation", variation)

	case protocol.CmdGetVersion:
		if err := h.Queue(protocol.CmdGetVersion, []byte(h.cfg.Version)); err != nil {
			h.log.Warn("version reply dropped", "err", err.Error())
		}

	case protocol.CmdSetBrightness, protocol.CmdSetModeLED, protocol.CmdSetLED,
		protocol.CmdSetLEDBank, protocol.CmdSetPaletteColors,
		protocol.CmdSetLayerKeymapColors, protocol.CmdSetLayerUnderglowColors:
		h.leds[cmd] = *pkt
	}
	h.cb.Call(pkt.Command(), pkt)
}

func (h *Half) linkError(err error) error {
	h.stats.LinkErrors++
	if h.connected && err == link.ErrNoSlave {
		h.connected = false
		h.log.Warn("neuron lost")
	}
	return err
}

func (h *Half) nextInterval() uint32 {
	if h.cfg.AliveVariation == 0 {
		return h.cfg.AliveInterval
	}
	return h.cfg.AliveInterval + uint32(h.rng.Int63n(int64(h.cfg.AliveVariation)+1))
}
