// Package sim provides an in-memory SPI slave peripheral and GPIO bank so
// the link stack can be exercised on a host without hardware. The master
// side of the simulated wire is a Bus that clocks whole transactions.
package sim

import (
	"errors"
	"sync"

	"defylink/core"
)

var (
	ErrNotConfigured = errors.New("sim: peripheral not configured")
	ErrInjected      = errors.New("sim: injected failure")
)

// IdleByte is what the master reads when the slave has nothing armed
const IdleByte = 0xFF

// Journal records peripheral and GPIO calls in the order they happen. A
// Peripheral and a GPIO bank may share one.
type Journal struct {
	mu  sync.Mutex
	ops []string
}

func (j *Journal) add(op string) {
	if j == nil {
		return
	}
	j.mu.Lock()
	j.ops = append(j.ops, op)
	j.mu.Unlock()
}

// Ops returns the recorded calls
func (j *Journal) Ops() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.ops...)
}

// Peripheral implements core.SPISlaveDriver
type Peripheral struct {
	mu         sync.Mutex
	configured bool
	cfg        core.SPISlaveConfig
	armed      *core.SPISlaveTransfer

	// FailTransfer makes the next n calls to Transfer fail
	FailTransfer int
	// FailConfigure makes the next n calls to Configure fail
	FailConfigure int

	Journal *Journal

	Configures int
	Disables   int
	Transfers  int
}

// NewPeripheral creates an unconfigured peripheral
func NewPeripheral() *Peripheral {
	return &Peripheral{}
}

func (p *Peripheral) Configure(cfg core.SPISlaveConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Journal.add("configure")
	if p.FailConfigure > 0 {
		p.FailConfigure--
		return ErrInjected
	}
	p.cfg = cfg
	p.configured = true
	p.Configures++
	return nil
}

func (p *Peripheral) Transfer(xfer *core.SPISlaveTransfer) error {
	p.mu.Lock()
	if !p.configured {
		p.mu.Unlock()
		return ErrNotConfigured
	}
	if p.FailTransfer > 0 {
		p.FailTransfer--
		p.mu.Unlock()
		return ErrInjected
	}
	armed := *xfer
	p.armed = &armed
	p.Transfers++
	p.Journal.add("transfer")
	p.mu.Unlock()

	if xfer.BuffersSet != nil {
		xfer.BuffersSet()
	}
	return nil
}

func (p *Peripheral) Disable() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.armed = nil
	p.configured = false
	p.Disables++
	p.Journal.add("disable")
	return nil
}

// Config returns the last configuration applied
func (p *Peripheral) Config() core.SPISlaveConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// Armed reports whether a transaction is waiting for the master
func (p *Peripheral) Armed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.armed != nil
}

// Master returns the master end of the wire
func (p *Peripheral) Master() *Bus {
	return &Bus{p: p}
}

// clock runs one transaction of n bytes. tx is shifted in, rx is filled with
// what the slave shifted out. The completion callback runs on the caller's
// goroutine, standing in for the chip-select interrupt.
func (p *Peripheral) clock(tx, rx []byte, n int) {
	p.mu.Lock()
	armed := p.armed
	p.armed = nil
	p.mu.Unlock()

	for i := range rx {
		rx[i] = IdleByte
	}
	if armed == nil {
		return
	}

	outLen := min(len(armed.Out), n, len(rx))
	copy(rx, armed.Out[:outLen])
	for i := outLen; i < len(rx) && i < n; i++ {
		rx[i] = 0
	}

	inLen := min(len(armed.In), n, len(tx))
	copy(armed.In, tx[:inLen])

	if armed.Done != nil {
		armed.Done(outLen, inLen)
	}
}

// Bus is the master side of a simulated link
type Bus struct {
	p *Peripheral
}

// Transfer clocks len(tx) bytes full duplex. rx must be as long as tx.
func (b *Bus) Transfer(tx, rx []byte) error {
	b.p.clock(tx, rx, len(tx))
	return nil
}

// Glitch clocks only n bytes of tx, as a noisy or half-plugged cable would
func (b *Bus) Glitch(tx []byte, n int) []byte {
	rx := make([]byte, len(tx))
	b.p.clock(tx, rx, n)
	return rx
}

// GPIO is an in-memory core.GPIODriver that records pin activity
type GPIO struct {
	Journal *Journal

	mu         sync.Mutex
	configured map[core.GPIOPin]bool
	level      map[core.GPIOPin]bool
	pulses     map[core.GPIOPin]int
}

// NewGPIO creates a GPIO bank with every pin unconfigured and low
func NewGPIO() *GPIO {
	return &GPIO{
		configured: make(map[core.GPIOPin]bool),
		level:      make(map[core.GPIOPin]bool),
		pulses:     make(map[core.GPIOPin]int),
	}
}

func (g *GPIO) ConfigureOutput(pin core.GPIOPin) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.configured[pin] = true
	return nil
}

func (g *GPIO) SetPin(pin core.GPIOPin, value bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.configured[pin] {
		return ErrNotConfigured
	}
	if g.level[pin] && !value {
		g.pulses[pin]++
	}
	g.level[pin] = value
	if value {
		g.Journal.add("reset-high")
	} else {
		g.Journal.add("reset-low")
	}
	return nil
}

// Level returns the current level of pin
func (g *GPIO) Level(pin core.GPIOPin) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.level[pin]
}

// Pulses counts high-to-low transitions on pin (reset pulses when active low)
func (g *GPIO) Pulses(pin core.GPIOPin) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pulses[pin]
}
