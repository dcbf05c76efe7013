package link

import (
	"sync/atomic"

	"golang.org/x/exp/slog"

	"defylink/core"
)

type counters struct {
	transfers  atomic.Uint32
	received   atomic.Uint32
	sent       atomic.Uint32
	busy       atomic.Uint32
	saturated  atomic.Uint32
	errors     atomic.Uint32
	faults     atomic.Uint32
	recoveries atomic.Uint32
	lastFault  atomic.Uint32
}

// Slave is the link state machine for one SPI slave peripheral.
//
// The cache buffers belong to the interrupt path while a transfer is armed.
// The process buffers belong to Read and Send. Ownership only changes hands
// in a swap under the matching tryLock.
type Slave struct {
	drv  core.SPISlaveDriver
	gpio core.GPIODriver
	cfg  Config
	log  *slog.Logger

	state   atomic.Uint32
	stalled atomic.Bool // A fault recovery failed; nothing is armed

	inCache, inProcess   *Buffer
	outCache, outProcess *Buffer
	inLock, outLock      tryLock

	dataInAvailable  atomic.Bool
	dataOutAvailable atomic.Bool
	lineInBusy       atomic.Bool // Received data held in the in cache
	lineInSaturated  bool        // Input disabled for the armed transfer

	xfer    core.SPISlaveTransfer
	pending []Event // Events raised during one completion, fired at the end
	stats   counters
}

// NewSlave creates a slave link over drv. gpio drives the remote reset line
// and may be nil when the board has none.
func NewSlave(drv core.SPISlaveDriver, gpio core.GPIODriver, cfg Config) *Slave {
	cfg.applyDefaults()
	s := &Slave{
		drv:        drv,
		gpio:       gpio,
		cfg:        cfg,
		log:        core.LoggerOrNop(cfg.Logger).With("line", int(cfg.Line)),
		inCache:    NewBuffer(cfg.MessageSizeMax),
		inProcess:  NewBuffer(cfg.MessageSizeMax),
		outCache:   NewBuffer(cfg.MessageSizeMax),
		outProcess: NewBuffer(cfg.MessageSizeMax),
		pending:    make([]Event, 0, 4),
	}
	s.xfer.BuffersSet = s.buffersSet
	s.xfer.Done = s.transferDone
	return s
}

// Start holds the remote half in reset while the peripheral is configured,
// releases it and begins listening
func (s *Slave) Start() error {
	if s.State() != Idle {
		return ErrNotIdle
	}
	if s.gpio != nil {
		if err := s.gpio.ConfigureOutput(s.cfg.ResetPin); err != nil {
			return err
		}
	}
	s.holdReset(true)
	err := s.drv.Configure(s.peripheralConfig())
	core.BusyWait(s.cfg.ResetPulse)
	s.holdReset(false)
	if err != nil {
		return err
	}
	s.log.Debug("link start", "max", s.cfg.MessageSizeMax)
	composeResult(s.outCache, ResultReady)
	return s.transferStart(ListeningStart)
}

// Recover re-initializes the link: the peripheral is reset, the remote half
// is pulsed through its reset line, all buffers are emptied and the slave
// listens again. It logs, so call it from the polling loop and never from
// the event handler.
func (s *Slave) Recover() error {
	err := s.recover(FaultRequested)
	if err != nil {
		s.log.Error("link recover failed", "err", err.Error())
	} else {
		s.log.Info("link recovered")
	}
	return err
}

// Stalled reports whether a fault left the link with nothing armed. Only
// Recover brings it back.
func (s *Slave) Stalled() bool {
	return s.stalled.Load()
}

// SetHandler replaces the event handler. Call it before Start.
func (s *Slave) SetHandler(fn func(Event)) {
	s.cfg.Handler = fn
}

// State returns the current state machine state
func (s *Slave) State() State {
	return State(s.state.Load())
}

// Line returns the SPI line this slave serves
func (s *Slave) Line() core.SPILine {
	return s.cfg.Line
}

// MaxPayload is the largest message Send accepts
func (s *Slave) MaxPayload() int {
	return s.cfg.MessageSizeMax - ControlHeaderSize
}

// ReadAvailable reports whether Read would return data
func (s *Slave) ReadAvailable() bool {
	return s.dataInAvailable.Load() || s.lineInBusy.Load()
}

// Read copies the oldest received message into p. It returns 0 and no error
// when nothing is waiting, and ErrBusy when the interrupt path holds the
// buffers; the caller retries later.
func (s *Slave) Read(p []byte) (int, error) {
	if !s.ReadAvailable() {
		return 0, nil
	}
	if !s.inLock.TryLock() {
		return 0, ErrBusy
	}
	defer s.inLock.Unlock()

	if !s.dataInAvailable.Load() && s.lineInBusy.Load() {
		s.takeHeldInput()
	}
	if !s.dataInAvailable.Load() {
		return 0, nil
	}

	msg := s.inProcess.Bytes()
	if len(p) < len(msg) {
		return 0, ErrShortBuffer
	}
	n := copy(p, msg)
	s.inProcess.Recycle()
	s.dataInAvailable.Store(false)

	// The line reported OK_BUSY while the process buffer was full. Its data
	// is complete in the cache; hand it over now that there is room.
	if s.lineInBusy.Load() {
		s.takeHeldInput()
	}
	return n, nil
}

// takeHeldInput swaps a held cache into the empty process buffer.
// Caller holds inLock.
func (s *Slave) takeHeldInput() {
	s.inCache, s.inProcess = s.inProcess, s.inCache
	s.dataInAvailable.Store(true)
	s.lineInBusy.Store(false)
	core.RecordTrace(core.TraceSwapIn, uint8(s.cfg.Line), uint8(s.State()), uint32(s.inProcess.Load()))
}

// OutputPending reports whether a message given to Send has not yet been
// picked up by the master
func (s *Slave) OutputPending() bool {
	return s.dataOutAvailable.Load()
}

// Send queues p for the master's next RECV_START. Only one message is held
// at a time; ErrBusy means the previous one is still pending.
func (s *Slave) Send(p []byte) error {
	if len(p) > s.MaxPayload() {
		return ErrTooLarge
	}
	if s.dataOutAvailable.Load() {
		return ErrBusy
	}
	if !s.outLock.TryLock() {
		return ErrBusy
	}
	defer s.outLock.Unlock()

	composeData(s.outProcess, p)
	s.dataOutAvailable.Store(true)
	return nil
}

// Stats returns a snapshot of the link counters
func (s *Slave) Stats() Stats {
	return Stats{
		Transfers:  s.stats.transfers.Load(),
		Received:   s.stats.received.Load(),
		Sent:       s.stats.sent.Load(),
		Busy:       s.stats.busy.Load(),
		Saturated:  s.stats.saturated.Load(),
		Errors:     s.stats.errors.Load(),
		Faults:     s.stats.faults.Load(),
		Recoveries: s.stats.recoveries.Load(),
		LastFault:  FaultReason(s.stats.lastFault.Load()),
	}
}

func (s *Slave) peripheralConfig() core.SPISlaveConfig {
	return core.SPISlaveConfig{Line: s.cfg.Line, Mode: s.cfg.Mode, Rate: s.cfg.Rate}
}

func (s *Slave) setState(st State) {
	s.state.Store(uint32(st))
}

func (s *Slave) trace(eventType uint8, value uint32) {
	core.RecordTrace(eventType, uint8(s.cfg.Line), uint8(s.State()), value)
}

// prepareTransfer points the armed transfer at the caches. Output is
// disabled when there is nothing to send; input is disabled while the in
// cache still holds data, which is what saturates the line.
func (s *Slave) prepareTransfer() {
	s.xfer.Out = nil
	s.xfer.In = nil
	if s.outCache.Load() > 0 {
		s.xfer.Out = s.outCache.Bytes()
	}

	s.lineInSaturated = true
	if s.inLock.TryLock() {
		if s.inCache.Load() == 0 {
			s.xfer.In = s.inCache.Tail()
			s.lineInSaturated = false
		}
		s.inLock.Unlock()
	}
}

// transferStart arms the next transaction. The state is set first because
// the armed callback may fire before Transfer returns.
func (s *Slave) transferStart(next State) error {
	prev := s.State()
	s.setState(next)
	s.prepareTransfer()
	if err := s.drv.Transfer(&s.xfer); err != nil {
		s.setState(prev)
		return err
	}
	return nil
}

func (s *Slave) buffersSet() {
	switch s.State() {
	case ListeningStart:
		s.setState(Listening)
	case DataReceiveStart:
		s.setState(DataReceiving)
	case DataSendStart:
		s.setState(DataSending)
	}
}

func (s *Slave) listen(result MsgType) {
	s.reply(result)
	if err := s.transferStart(ListeningStart); err != nil {
		s.fault(FaultTransfer)
	}
}

func (s *Slave) dataReceiveStart(result MsgType) {
	s.reply(result)
	if err := s.transferStart(DataReceiveStart); err != nil {
		s.fault(FaultTransfer)
	}
}

func (s *Slave) dataSendStart() {
	if err := s.transferStart(DataSendStart); err != nil {
		s.fault(FaultTransfer)
	}
}

func (s *Slave) reply(result MsgType) {
	composeResult(s.outCache, result)
	switch result {
	case ResultBusy:
		s.stats.busy.Add(1)
	case ResultOKBusy:
		s.stats.saturated.Add(1)
	case ResultErr:
		s.stats.errors.Add(1)
	}
	s.trace(core.TraceReply, uint32(result))
}

// moveInCache hands the received message to the application side
func (s *Slave) moveInCache() MsgType {
	if !s.inLock.TryLock() {
		s.trace(core.TraceBusy, 1)
		return ResultBusy
	}
	defer s.inLock.Unlock()

	if s.dataInAvailable.Load() || s.inProcess.Load() > 0 {
		return ResultBusy
	}
	s.inCache, s.inProcess = s.inProcess, s.inCache
	s.trace(core.TraceSwapIn, uint32(s.inProcess.Load()))
	return ResultOK
}

// moveOutCache takes the message prepared by Send for the next transaction
func (s *Slave) moveOutCache() MsgType {
	if !s.outLock.TryLock() {
		s.trace(core.TraceBusy, 2)
		return ResultBusy
	}
	defer s.outLock.Unlock()

	if s.outProcess.Load() > 0 && s.outCache.Load() == 0 {
		s.outCache, s.outProcess = s.outProcess, s.outCache
		s.trace(core.TraceSwapOut, uint32(s.outCache.Load()))
	}
	s.dataOutAvailable.Store(false)
	return ResultOK
}

// transferDone runs in interrupt context when the master releases chip
// select. The outbound side is settled first, then the received message
// decides the next transfer. Events are fired last, once the next transfer
// is armed, so handlers may call Read, Send or Recover.
func (s *Slave) transferDone(outLen, inLen int) {
	s.pending = s.pending[:0]
	s.stats.transfers.Add(1)
	s.trace(core.TraceTransferDone, uint32(inLen)<<16|uint32(outLen)&0xFFFF)

	state := s.State()

	s.outCache.Recycle()
	if state == DataSending {
		s.stats.sent.Add(1)
		s.pending = append(s.pending, EventDataOutSent)
	}

	s.processInput(state, inLen)

	for _, evt := range s.pending {
		if s.cfg.Handler != nil {
			s.cfg.Handler(evt)
		}
	}
}

func (s *Slave) processInput(state State, inLen int) {
	if s.lineInBusy.Load() || s.lineInSaturated {
		s.listen(ResultBusy)
		return
	}
	if inLen < ControlHeaderSize {
		s.fault(FaultShort)
		return
	}

	s.inCache.Commit(inLen)
	head := s.inCache.Bytes()
	msgLen := int(head[positionLen])
	msgType := MsgType(head[positionType])

	if msgType.IsIgnored() {
		s.fault(FaultIgnored)
		return
	}
	if msgLen > s.cfg.MessageSizeMax {
		s.fault(FaultOversize)
		return
	}

	switch msgType {
	case MsgMasterDataSendStart:
		s.inCache.Recycle()
		if msgLen == ControlHeaderSize {
			s.dataReceiveStart(ResultOK)
		} else {
			s.listen(ResultErr)
		}

	case MsgMasterDataRecvStart:
		s.inCache.Recycle()
		if msgLen != ControlHeaderSize {
			s.listen(ResultErr)
			return
		}
		result := s.moveOutCache()
		if result != ResultOK {
			s.listen(result)
			return
		}
		if s.outCache.Load() == 0 {
			composeData(s.outCache, nil)
		}
		s.dataSendStart()

	case MsgData:
		if state != DataReceiving || msgLen < ControlHeaderSize || msgLen > inLen {
			s.inCache.Recycle()
			s.listen(ResultErr)
			return
		}
		s.inCache.Truncate(msgLen)
		_ = s.inCache.Discard(ControlHeaderSize)

		result := s.moveInCache()
		if result == ResultOK {
			s.dataInAvailable.Store(true)
		} else {
			result = ResultOKBusy
			s.lineInBusy.Store(true)
		}
		if !s.lineInBusy.Load() {
			s.inCache.Recycle()
		}
		s.stats.received.Add(1)
		s.listen(result)
		s.pending = append(s.pending, EventDataInReady)

	default:
		s.inCache.Recycle()
		switch {
		case state == DataReceiving:
			s.dataReceiveStart(ResultOK)
		case !msgType.IsResult():
			s.listen(ResultErr)
		case s.dataOutAvailable.Load():
			s.listen(ResultDataReady)
		default:
			s.listen(ResultReady)
		}
	}
}

// fault handles a line fault from interrupt context
func (s *Slave) fault(reason FaultReason) {
	s.stats.faults.Add(1)
	s.stats.lastFault.Store(uint32(reason))
	s.trace(core.TraceFault, uint32(reason))
	_ = s.recover(reason)
	s.pending = append(s.pending, EventFault)
}

func (s *Slave) recover(reason FaultReason) error {
	st := core.DisableInterrupts()
	defer core.RestoreInterrupts(st)

	s.setState(Idle)
	_ = s.drv.Disable()
	s.holdReset(true)
	err := s.drv.Configure(s.peripheralConfig())

	s.inCache.Recycle()
	s.outCache.Recycle()
	s.lineInBusy.Store(false)
	s.lineInSaturated = false

	// Process buffers may be mid-copy in a preempted Read or Send; leave
	// them to their owner in that case.
	if s.inLock.TryLock() {
		s.inProcess.Recycle()
		s.dataInAvailable.Store(false)
		s.inLock.Unlock()
	}
	if s.outLock.TryLock() {
		s.outProcess.Recycle()
		s.dataOutAvailable.Store(false)
		s.outLock.Unlock()
	}

	core.BusyWait(s.cfg.ResetPulse)
	s.holdReset(false)
	if err != nil {
		s.stalled.Store(true)
		return err
	}

	s.stats.recoveries.Add(1)
	s.trace(core.TraceRecover, uint32(reason))

	composeResult(s.outCache, ResultReady)
	if err := s.transferStart(ListeningStart); err != nil {
		s.stalled.Store(true)
		return err
	}
	s.stalled.Store(false)
	return nil
}

// holdReset drives the active-low remote reset line
func (s *Slave) holdReset(hold bool) {
	if s.gpio != nil {
		_ = s.gpio.SetPin(s.cfg.ResetPin, !hold)
	}
}
