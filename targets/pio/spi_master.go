//go:build rp2040

package pio

// PIO SPI master for the bench keyscanner. Mode 1 only (CPHA=1, CPOL=0),
// which is what the Neuron's PL022 slave runs; chip select is a plain GPIO
// held low for a whole link frame.

import (
	"errors"
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

var (
	ErrNoStateMachine = errors.New("pio: no free state machine")
	ErrLength         = errors.New("pio: tx and rx lengths differ")
	ErrTimeout        = errors.New("pio: spi transfer timeout")
)

// buildSPIMasterProgram creates the cpha1 program: data changes on the
// rising edge and is sampled on the falling edge. Side-set drives SCK.
func buildSPIMasterProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 1}
	return []uint16{
		// .wrap_target
		asm.Out(rp2pio.OutDestX, 1).Side(0).Encode(),                          // 0: out x, 1 side 0
		asm.Mov(rp2pio.MovDestPins, rp2pio.MovSrcX).Side(1).Delay(1).Encode(), // 1: mov pins, x side 1 [1]
		asm.In(rp2pio.InSrcPins, 1).Side(0).Encode(),                          // 2: in pins, 1 side 0
		// .wrap
	}
}

// SPIMasterConfig describes the master pins and clock
type SPIMasterConfig struct {
	SCK, MOSI, MISO, CS machine.Pin
	Frequency           uint32
}

// SPIMaster drives a link as the keyscanner end. It implements link.Bus.
type SPIMaster struct {
	pio    *rp2pio.PIO
	sm     rp2pio.StateMachine
	cs     machine.Pin
	offset uint8
}

// NewSPIMaster loads the program into a free state machine and starts it
func NewSPIMaster(cfg SPIMasterConfig) (*SPIMaster, error) {
	pioNum, smNum, ok := allocatePIO()
	if !ok {
		return nil, ErrNoStateMachine
	}
	pioHW := rp2pio.PIO0
	if pioNum == 1 {
		pioHW = rp2pio.PIO1
	}
	m := &SPIMaster{pio: pioHW, sm: pioHW.StateMachine(smNum), cs: cfg.CS}
	if !m.sm.TryClaim() {
		return nil, ErrNoStateMachine
	}

	m.cs.Configure(machine.PinConfig{Mode: machine.PinOutput})
	m.cs.High()

	program := buildSPIMasterProgram()
	offset, err := m.pio.AddProgram(program, -1)
	if err != nil {
		return nil, err
	}
	m.offset = offset

	// Four PIO cycles per bit
	whole, frac, err := rp2pio.ClkDivFromFrequency(cfg.Frequency*4, machine.CPUFrequency())
	if err != nil {
		return nil, err
	}

	pinCfg := machine.PinConfig{Mode: m.pio.PinMode()}
	cfg.SCK.Configure(pinCfg)
	cfg.MOSI.Configure(pinCfg)
	cfg.MISO.Configure(pinCfg)

	smCfg := rp2pio.DefaultStateMachineConfig()
	smCfg.SetOutPins(cfg.MOSI, 1)
	smCfg.SetInPins(cfg.MISO, 1)
	smCfg.SetSidesetParams(1, false, false)
	smCfg.SetSidesetPins(cfg.SCK)

	// MSB first, autopull/autopush every 8 bits
	smCfg.SetOutShift(false, true, 8)
	smCfg.SetInShift(false, true, 8)
	smCfg.SetWrap(offset+uint8(len(program))-1, offset)
	smCfg.SetClkDivIntFrac(whole, frac)

	m.sm.Init(offset, smCfg)

	// Pin directions after Init
	m.sm.SetPindirsConsecutive(cfg.SCK, 1, true)
	m.sm.SetPindirsConsecutive(cfg.MOSI, 1, true)
	m.sm.SetPindirsConsecutive(cfg.MISO, 1, false)
	m.sm.SetPinsConsecutive(cfg.SCK, 1, false)
	m.sm.SetPinsConsecutive(cfg.MOSI, 1, false)

	m.sm.SetEnabled(true)
	return m, nil
}

// Transfer clocks one frame with chip select held low
func (m *SPIMaster) Transfer(tx, rx []byte) error {
	if len(tx) != len(rx) {
		return ErrLength
	}
	m.cs.Low()
	err := m.tx(tx, rx)
	m.cs.High()
	return err
}

func (m *SPIMaster) tx(w, r []byte) error {
	txRemain, rxRemain := len(w), len(r)
	retries := 1024
	for rxRemain != 0 || txRemain != 0 {
		stall := true
		if txRemain != 0 && !m.sm.IsTxFIFOFull() {
			// Left-justify the byte for the left-shifting OSR
			m.sm.TxPut(uint32(w[len(w)-txRemain]) << 24)
			txRemain--
			stall = false
		}
		if rxRemain != 0 && !m.sm.IsRxFIFOEmpty() {
			r[len(r)-rxRemain] = uint8(m.sm.RxGet())
			rxRemain--
			stall = false
		}
		if stall {
			retries--
			if retries <= 0 {
				return ErrTimeout
			}
		} else {
			retries = 1024
		}
	}
	return nil
}
