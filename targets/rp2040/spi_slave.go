//go:build rp2040

package main

import (
	"device/rp"
	"machine"
	"runtime/volatile"
	"unsafe"

	"defylink/core"
	"defylink/link"
)

// PL022 register bits
const (
	sspCR0DSS8Bit = 0x7    // 8-bit frames
	sspCR0SPO     = 1 << 6 // Clock polarity
	sspCR0SPH     = 1 << 7 // Clock phase
	sspCR1SSE     = 1 << 1 // Port enable
	sspCR1MS      = 1 << 2 // Slave mode
	sspDMACRRXE   = 1 << 0
	sspDMACRTXE   = 1 << 1

	// The slave needs clk_peri at least 12x the line clock; the prescaler
	// is only applied in master mode but must hold a legal value
	sspCPSRMin = 2
)

// DMA channel register block, one every 0x40 bytes from the DMA base
type dmaChannel struct {
	READ_ADDR   volatile.Register32
	WRITE_ADDR  volatile.Register32
	TRANS_COUNT volatile.Register32
	CTRL_TRIG   volatile.Register32
	AL1_CTRL    volatile.Register32 // CTRL without trigger
	_           [11]volatile.Register32
}

const (
	dmaBase       = 0x50000000
	dmaCtrlEn     = 1 << 0
	dmaCtrlHiPrio = 1 << 1
	dmaCtrlIncRd  = 1 << 4
	dmaCtrlIncWr  = 1 << 5
	dmaChainToPos = 11
	dmaTreqPos    = 15

	dreqSPI0TX = 16
	dreqSPI0RX = 17
	dreqSPI1TX = 18
	dreqSPI1RX = 19
)

func dmaChannelAt(ch uint8) *dmaChannel {
	return (*dmaChannel)(unsafe.Pointer(uintptr(dmaBase + uint32(ch)*0x40)))
}

// dmaCtrl builds a byte-wide, unchained channel control word
func dmaCtrl(ch uint8, dreq uint32, incRead, incWrite, hiPrio bool) uint32 {
	c := uint32(dmaCtrlEn) | uint32(ch)<<dmaChainToPos | dreq<<dmaTreqPos
	if incRead {
		c |= dmaCtrlIncRd
	}
	if incWrite {
		c |= dmaCtrlIncWr
	}
	if hiPrio {
		c |= dmaCtrlHiPrio
	}
	return c
}

// SlavePins are the GPIOs of one slave line. The pins must be valid SPI
// function pins of the selected peripheral.
type SlavePins struct {
	MISO, MOSI, CLK, CS machine.Pin
}

// idleOutLen is the number of filler bytes clocked out when nothing is to
// be sent. It covers any frame the master can request.
const idleOutLen = 255

// RPSPISlave implements core.SPISlaveDriver with a PL022 in slave mode and
// two DMA channels. A transaction ends when the master releases chip
// select; the rising edge interrupt collects the DMA counts.
type RPSPISlave struct {
	hw       *rp.SPI0_Type
	line     core.SPILine
	resetBit uint32
	pins     SlavePins
	txCh     uint8
	rxCh     uint8
	dreqTx   uint32
	dreqRx   uint32
	cr0      uint32

	xfer   *core.SPISlaveTransfer
	outLen int
	inLen  int

	dummyIn     [1]byte
	dummyOut    [1]byte
	dummyInUsed bool
	dummyOutUse bool

	busy   bool
	resend bool

	// The chip select interrupt is hooked once; TinyGo refuses a second
	// callback on a pin and Configure runs again on every recovery
	onCS     func(machine.Pin)
	csHooked bool
}

// NewRPSPISlave creates the driver for SPI0 or SPI1. Each line owns a fixed
// pair of DMA channels.
func NewRPSPISlave(line core.SPILine, pins SlavePins) *RPSPISlave {
	d := &RPSPISlave{line: line, pins: pins}
	if line == 0 {
		d.hw = rp.SPI0
		d.resetBit = rp.RESETS_RESET_SPI0
		d.txCh, d.rxCh = 0, 1
		d.dreqTx, d.dreqRx = dreqSPI0TX, dreqSPI0RX
	} else {
		d.hw = rp.SPI1
		d.resetBit = rp.RESETS_RESET_SPI1
		d.txCh, d.rxCh = 2, 3
		d.dreqTx, d.dreqRx = dreqSPI1TX, dreqSPI1RX
	}
	// Idle output reads as an ignored message on the master side
	d.dummyOut[0] = uint8(link.MsgIgnoredHigh)
	d.onCS = func(machine.Pin) { d.chipSelectReleased() }
	return d
}

// Configure sets up the peripheral and its pins. The chip select release
// interrupt is hooked on the first call only, so recovery can call it from
// interrupt context.
func (d *RPSPISlave) Configure(cfg core.SPISlaveConfig) error {
	if cfg.Line != d.line || cfg.Line > 1 {
		return errBadLine
	}

	d.cr0 = sspCR0DSS8Bit
	if cfg.Mode&0x2 != 0 {
		d.cr0 |= sspCR0SPO
	}
	// Mode 1 lets chip select stay low across bytes; with SPH clear the
	// PL022 slave expects it to pulse between frames
	if cfg.Mode&0x1 != 0 {
		d.cr0 |= sspCR0SPH
	}
	d.reset()

	pinCfg := machine.PinConfig{Mode: machine.PinSPI}
	d.pins.MISO.Configure(pinCfg)
	d.pins.MOSI.Configure(pinCfg)
	d.pins.CLK.Configure(pinCfg)
	d.pins.CS.Configure(pinCfg)

	if d.csHooked {
		return nil
	}
	if err := d.pins.CS.SetInterrupt(machine.PinRising, d.onCS); err != nil {
		return err
	}
	d.csHooked = true
	return nil
}

// reset pulses the peripheral reset, which also flushes both FIFOs, and
// restores the slave configuration
func (d *RPSPISlave) reset() {
	rp.RESETS.RESET.SetBits(d.resetBit)
	rp.RESETS.RESET.ClearBits(d.resetBit)
	for !rp.RESETS.RESET_DONE.HasBits(d.resetBit) {
	}

	d.hw.SSPCR0.Set(d.cr0)
	d.hw.SSPCPSR.Set(sspCPSRMin)
	d.hw.SSPCR1.Set(sspCR1MS)
}

// Transfer arms both DMA channels and enables the port
func (d *RPSPISlave) Transfer(xfer *core.SPISlaveTransfer) error {
	if d.busy {
		return errSlaveBusy
	}
	d.xfer = xfer

	in := xfer.In
	d.dummyInUsed = len(in) == 0
	if d.dummyInUsed {
		// Input is always armed so an empty chip select pulse is detectable
		in = d.dummyIn[:]
	}
	out := xfer.Out
	outCount := len(out)
	d.dummyOutUse = outCount == 0
	if d.dummyOutUse {
		out = d.dummyOut[:]
		outCount = idleOutLen
	}
	d.inLen = len(in)
	d.outLen = outCount

	dr := uint32(uintptr(unsafe.Pointer(&d.hw.SSPDR)))

	rx := dmaChannelAt(d.rxCh)
	rx.READ_ADDR.Set(dr)
	rx.WRITE_ADDR.Set(uint32(uintptr(unsafe.Pointer(&in[0]))))
	rx.TRANS_COUNT.Set(uint32(d.inLen))
	rx.AL1_CTRL.Set(dmaCtrl(d.rxCh, d.dreqRx, false, !d.dummyInUsed, true))

	tx := dmaChannelAt(d.txCh)
	tx.READ_ADDR.Set(uint32(uintptr(unsafe.Pointer(&out[0]))))
	tx.WRITE_ADDR.Set(dr)
	tx.TRANS_COUNT.Set(uint32(d.outLen))
	tx.AL1_CTRL.Set(dmaCtrl(d.txCh, d.dreqTx, !d.dummyOutUse, false, false))

	d.busy = true
	rp.DMA.MULTI_CHAN_TRIGGER.Set(1<<d.txCh | 1<<d.rxCh)
	if xfer.BuffersSet != nil {
		xfer.BuffersSet()
	}

	d.hw.SSPDMACR.Set(sspDMACRRXE | sspDMACRTXE)
	if !d.pins.CS.Get() {
		// The master is mid-frame; enabling now would shift the stream.
		// Sit this transaction out and re-arm on its release.
		d.resend = true
		return nil
	}
	d.hw.SSPCR1.SetBits(sspCR1SSE)
	return nil
}

// Disable stops the port and aborts the armed transaction
func (d *RPSPISlave) Disable() error {
	d.stop()
	d.busy = false
	d.resend = false
	return nil
}

func (d *RPSPISlave) stop() {
	d.hw.SSPCR1.ClearBits(sspCR1SSE)
	d.hw.SSPDMACR.Set(0)

	rp.DMA.CHAN_ABORT.Set(1<<d.txCh | 1<<d.rxCh)
	for rp.DMA.CHAN_ABORT.Get() != 0 {
	}
	d.reset()
}

// chipSelectReleased runs in interrupt context on the chip select rising
// edge
func (d *RPSPISlave) chipSelectReleased() {
	if !d.busy {
		return
	}

	inLen := d.inLen - int(dmaChannelAt(d.rxCh).TRANS_COUNT.Get())
	outLen := d.outLen - int(dmaChannelAt(d.txCh).TRANS_COUNT.Get())
	d.stop()
	d.busy = false

	// Nothing clocked in means chip select toggled without a frame, as
	// when the master restarts
	valid := inLen != 0
	if d.dummyInUsed {
		inLen = 0
	}
	if d.dummyOutUse {
		outLen = 0
	}

	if !valid || d.resend {
		d.resend = false
		if err := d.Transfer(d.xfer); err != nil {
			core.RecordTrace(core.TraceFault, uint8(d.line), 0, 0)
		}
		return
	}

	if d.xfer.Done != nil {
		d.xfer.Done(outLen, inLen)
	}
}
