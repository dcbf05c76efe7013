// Package transport carries protocol packets over one link slave. It keeps
// a tx and an rx packet queue, sends keep-alives when idle, tracks whether
// the remote half is alive, and hands received packets to the dispatch
// registry from the polling loop.
package transport

import (
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slog"

	"defylink/core"
	"defylink/link"
	"defylink/protocol"
)

var ErrQueueFull = errors.New("transport tx queue full")

// Defaults for Config
const (
	DefaultQueueDepth    = 40
	DefaultAliveTimeout  = 200 // ms without a valid packet before the remote is inactive
	DefaultAliveInterval = 100 // ms of idle output before a keep-alive is sent
)

// Direction of a monitored packet
type Direction uint8

const (
	DirRx Direction = iota
	DirTx
)

func (d Direction) String() string {
	if d == DirTx {
		return "tx"
	}
	return "rx"
}

// Config describes one port
type Config struct {
	// Device is the remote half expected on this link. DeviceUnknown learns
	// it from the first valid packet.
	Device protocol.Device
	// Local is written into the device field of every outgoing packet
	Local protocol.Device

	QueueDepth    int
	AliveTimeout  uint32
	AliveInterval uint32

	// Checksum appends and verifies a CRC-8 trailer on every packet
	Checksum bool

	// OnLiveness is called from Run when the remote goes active or inactive
	OnLiveness func(dev protocol.Device, active bool)

	// Monitor sees every packet dispatched (DirRx) or accepted by
	// SendPacket (DirTx), from the loop context
	Monitor func(dir Direction, p *protocol.Packet)

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Local == protocol.DeviceUnknown {
		c.Local = protocol.DeviceNeuronWired
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = DefaultQueueDepth
	}
	if c.AliveTimeout == 0 {
		c.AliveTimeout = DefaultAliveTimeout
	}
	if c.AliveInterval == 0 {
		c.AliveInterval = DefaultAliveInterval
	}
}

// Stats are diagnostic counters; they wrap silently
type Stats struct {
	Received       uint32 // Packets queued for dispatch
	Dispatched     uint32
	Sent           uint32 // Packets handed to the link, keep-alives included
	KeepAlives     uint32
	TxFull         uint32 // Packets refused by SendPacket or the sticky re-push
	LineFaults     uint32 // Undecodable packets
	ChecksumErrors uint32
	ForeignDevice  uint32
	LinkFaults     uint32 // FAULT events raised by the link
	Recoveries     uint32 // Link recoveries started by the port
	Connects       uint32
	Disconnects    uint32
}

type counters struct {
	received       atomic.Uint32
	dispatched     atomic.Uint32
	sent           atomic.Uint32
	keepAlives     atomic.Uint32
	txFull         atomic.Uint32
	lineFaults     atomic.Uint32
	checksumErrors atomic.Uint32
	foreignDevice  atomic.Uint32
	linkFaults     atomic.Uint32
	recoveries     atomic.Uint32
	connects       atomic.Uint32
	disconnects    atomic.Uint32
}

type stickyKey struct {
	cmd   protocol.Command
	index uint8
}

// Port moves packets between the queues and one link slave.
//
// The link event handler and Run both service the link under a port
// try-lock, so the rx queue has one producer and the tx queue one consumer
// at any time. SendPacket and SetAliveInterval must be called from the
// loop that calls Run.
type Port struct {
	slave *link.Slave
	clock core.Clock
	cb    *core.Callbacks
	cfg   Config
	log   *slog.Logger

	tx *core.Queue[protocol.Packet]
	rx *core.Queue[protocol.Packet]

	busy  atomic.Bool
	retry atomic.Bool

	// Set from the event handler, where the link cannot be recovered
	recoverWanted atomic.Bool
	lastRetry     uint32

	inBuf  []byte
	outBuf []byte

	remote   atomic.Uint32
	lastSeen atomic.Uint32
	lastOut  atomic.Uint32
	rxCount  atomic.Uint32

	active atomic.Bool

	// Liveness state, owned by Run
	everActive bool
	seenCount  uint32

	stickyMu sync.Mutex
	sticky   []protocol.Packet
	keys     []stickyKey

	stats counters
}

// NewPort creates a port over slave and installs its event handler. The
// slave is started by the caller afterwards.
func NewPort(slave *link.Slave, clock core.Clock, cb *core.Callbacks, cfg Config) *Port {
	cfg.applyDefaults()
	if clock == nil {
		clock = core.SystemClock{}
	}
	if cb == nil {
		cb = core.NewCallbacks()
	}
	p := &Port{
		slave:  slave,
		clock:  clock,
		cb:     cb,
		cfg:    cfg,
		log:    core.LoggerOrNop(cfg.Logger).With("line", int(slave.Line())),
		tx:     core.NewQueue[protocol.Packet](cfg.QueueDepth),
		rx:     core.NewQueue[protocol.Packet](cfg.QueueDepth),
		inBuf:  make([]byte, slave.MaxPayload()),
		outBuf: make([]byte, 0, protocol.ChecksumFrameSize),
	}
	p.remote.Store(uint32(cfg.Device))
	now := clock.Millis()
	p.lastSeen.Store(now)
	p.lastOut.Store(now)
	p.lastRetry = now - cfg.AliveInterval
	slave.SetHandler(p.HandleEvent)
	return p
}

// Link returns the underlying slave
func (p *Port) Link() *link.Slave {
	return p.slave
}

// Callbacks returns the registry packets are dispatched to
func (p *Port) Callbacks() *core.Callbacks {
	return p.cb
}

// Active reports whether the remote half was heard within AliveTimeout
func (p *Port) Active() bool {
	return p.active.Load()
}

// Remote returns the remote device, DeviceUnknown until it is learned
func (p *Port) Remote() protocol.Device {
	return protocol.Device(p.remote.Load())
}

func (p *Port) Stats() Stats {
	return Stats{
		Received:       p.stats.received.Load(),
		Dispatched:     p.stats.dispatched.Load(),
		Sent:           p.stats.sent.Load(),
		KeepAlives:     p.stats.keepAlives.Load(),
		TxFull:         p.stats.txFull.Load(),
		LineFaults:     p.stats.lineFaults.Load(),
		ChecksumErrors: p.stats.checksumErrors.Load(),
		ForeignDevice:  p.stats.foreignDevice.Load(),
		LinkFaults:     p.stats.linkFaults.Load(),
		Recoveries:     p.stats.recoveries.Load(),
		Connects:       p.stats.connects.Load(),
		Disconnects:    p.stats.disconnects.Load(),
	}
}

// SendPacket queues pkt for the remote half. It never blocks and returns
// false when the tx queue is full.
func (p *Port) SendPacket(pkt protocol.Packet) bool {
	if isSticky(pkt.Command()) {
		p.remember(pkt)
	}
	if !p.tx.Push(pkt) {
		p.stats.txFull.Add(1)
		return false
	}
	if p.cfg.Monitor != nil {
		p.cfg.Monitor(DirTx, &pkt)
	}
	return true
}

// SetAliveInterval asks the remote half to send its keep-alive every base
// milliseconds plus up to variation of jitter
func (p *Port) SetAliveInterval(base, variation uint32) error {
	payload, err := protocol.EncodeAliveInterval(base, variation)
	if err != nil {
		return err
	}
	pkt, err := protocol.NewPacket(protocol.CmdSetAliveInterval, p.cfg.Local, payload)
	if err != nil {
		return err
	}
	if !p.SendPacket(pkt) {
		return ErrQueueFull
	}
	return nil
}

// HandleEvent is the link event handler. It runs in interrupt context.
func (p *Port) HandleEvent(e link.Event) {
	if e == link.EventFault {
		p.stats.linkFaults.Add(1)
	}
	p.service()
}

// Run is called from the polling loop. It carries out recoveries asked for
// by the event handler, services the link, evaluates liveness and
// dispatches queued packets in wire order.
func (p *Port) Run() {
	p.recoverPending()
	p.service()
	p.recoverPending()
	p.checkLiveness()
	p.dispatch()
	p.service()
}

// recoverPending recovers the link when ingest asked for it, and retries a
// link whose last recovery failed once every AliveInterval
func (p *Port) recoverPending() {
	if p.recoverWanted.Swap(false) {
		p.recover()
		return
	}
	if !p.slave.Stalled() {
		return
	}
	now := p.clock.Millis()
	if !core.Elapsed(now, p.lastRetry, p.cfg.AliveInterval) {
		return
	}
	p.lastRetry = now
	p.recover()
}

func (p *Port) service() {
	for {
		if !p.busy.CompareAndSwap(false, true) {
			p.retry.Store(true)
			return
		}
		p.retry.Store(false)
		p.ingest()
		// A recovery would discard whatever refill handed over
		if !p.recoverWanted.Load() {
			p.refill()
		}
		p.busy.Store(false)
		if !p.retry.Load() {
			return
		}
	}
}

// ingest moves received packets from the link into the rx queue. Nothing
// is read while the queue is full, which holds the data in the link and
// pushes back on the master. It may run in interrupt context, so a needed
// recovery is only flagged for Run.
func (p *Port) ingest() {
	for !p.rx.IsFull() && p.slave.ReadAvailable() {
		n, err := p.slave.Read(p.inBuf)
		if err != nil || n == 0 {
			return
		}

		var pkt protocol.Packet
		if p.cfg.Checksum {
			pkt, err = protocol.VerifyChecksum(p.inBuf[:n])
		} else {
			pkt, err = protocol.DecodePacket(p.inBuf[:n])
		}
		switch {
		case err == protocol.ErrChecksum:
			p.stats.checksumErrors.Add(1)
			core.RecordTrace(core.TraceChecksum, uint8(p.slave.Line()), 0, uint32(n))
			continue
		case err != nil:
			p.stats.lineFaults.Add(1)
			p.recoverWanted.Store(true)
			return
		}

		if !p.accept(pkt.Device()) {
			p.stats.foreignDevice.Add(1)
			core.RecordTrace(core.TraceDropped, uint8(p.slave.Line()), uint8(pkt.Command()), uint32(pkt.Device()))
			continue
		}
		p.lastSeen.Store(p.clock.Millis())
		p.rxCount.Add(1)

		switch pkt.Command() {
		case protocol.CmdIsDead:
			p.recoverWanted.Store(true)
			return
		case protocol.CmdIsAlive:
		default:
			p.rx.Push(pkt)
			p.stats.received.Add(1)
		}
	}
}

// accept checks the sender, learning it on first contact
func (p *Port) accept(dev protocol.Device) bool {
	want := protocol.Device(p.remote.Load())
	if want == protocol.DeviceUnknown {
		if dev == protocol.DeviceUnknown || dev == p.cfg.Local {
			return false
		}
		p.remote.Store(uint32(dev))
		return true
	}
	return dev == want
}

// refill hands the next packet to the link once its output is free. With
// nothing queued, a keep-alive goes out every AliveInterval.
func (p *Port) refill() {
	if p.slave.OutputPending() {
		return
	}
	now := p.clock.Millis()

	pkt, ok := p.tx.Peek()
	keepAlive := false
	if !ok {
		if !core.Elapsed(now, p.lastOut.Load(), p.cfg.AliveInterval) {
			return
		}
		pkt, _ = protocol.NewPacket(protocol.CmdIsAlive, p.cfg.Local, nil)
		keepAlive = true
	}
	pkt.SetDevice(p.cfg.Local)
	pkt.SetHasMore(p.tx.Len() > 1)

	out := pkt.Bytes()
	if p.cfg.Checksum {
		out = protocol.AppendChecksum(p.outBuf[:0], &pkt)
	}
	if err := p.slave.Send(out); err != nil {
		return
	}

	if keepAlive {
		p.stats.keepAlives.Add(1)
	} else {
		p.tx.Pop()
	}
	p.stats.sent.Add(1)
	p.lastOut.Store(now)
}

func (p *Port) recover() {
	p.stats.recoveries.Add(1)
	_ = p.slave.Recover()
}

func (p *Port) checkLiveness() {
	// lastSeen is loaded before now so an update racing in from the
	// interrupt cannot look like a time in the future
	seen := p.lastSeen.Load()
	count := p.rxCount.Load()
	now := p.clock.Millis()

	if !p.active.Load() {
		if count == p.seenCount {
			return
		}
		p.active.Store(true)
		p.seenCount = count
		p.stats.connects.Add(1)
		dev := p.Remote()
		p.log.Info("remote active", "device", dev.String())
		core.RecordTrace(core.TraceLiveness, uint8(p.slave.Line()), 1, uint32(dev))
		if p.cfg.OnLiveness != nil {
			p.cfg.OnLiveness(dev, true)
		}
		p.notify(protocol.CmdConnected, dev)
		if p.everActive {
			p.repush()
		}
		p.everActive = true
		return
	}

	p.seenCount = count
	// Inactive only once the silence is longer than the timeout
	if now-seen <= p.cfg.AliveTimeout {
		return
	}
	p.active.Store(false)
	p.stats.disconnects.Add(1)
	dev := p.Remote()
	p.log.Warn("remote inactive", "device", dev.String(), "silent_ms", int(now-seen))
	core.RecordTrace(core.TraceLiveness, uint8(p.slave.Line()), 0, uint32(dev))
	if p.cfg.OnLiveness != nil {
		p.cfg.OnLiveness(dev, false)
	}
	p.notify(protocol.CmdDisconnected, dev)
	p.recover()
}

// notify dispatches a liveness packet synthesized on behalf of dev
func (p *Port) notify(cmd protocol.Command, dev protocol.Device) {
	pkt, _ := protocol.NewPacket(cmd, dev, nil)
	p.cb.Call(cmd, &pkt)
}

func (p *Port) dispatch() {
	for i := 0; i < p.rx.Cap(); i++ {
		pkt, ok := p.rx.Pop()
		if !ok {
			return
		}
		if p.cfg.Monitor != nil {
			p.cfg.Monitor(DirRx, &pkt)
		}
		p.stats.dispatched.Add(1)
		p.cb.Call(pkt.Command(), &pkt)
	}
}
