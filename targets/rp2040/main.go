//go:build rp2040

package main

import (
	"machine"
	"sync/atomic"
	"time"

	"golang.org/x/exp/slog"

	"defylink/bridge"
	"defylink/config"
	"defylink/core"
	"defylink/link"
	"defylink/protocol"
	"defylink/transport"
)

// injectDepth bounds host packets waiting for a link loop
const injectDepth = 8

// neuronLink is one SPI link and everything its loop touches
type neuronLink struct {
	index    uint8
	cfg      *config.LinkConfig
	slave    *link.Slave
	port     *transport.Port
	inject   *core.Queue[protocol.Packet] // USB reader to link loop
	sayAlive atomic.Bool                  // Remote connected, alive interval not yet sent
}

var (
	links  []*neuronLink
	led    *statusLED
	usb    *usbWriter
	out    *bridge.Writer
	logger *slog.Logger

	panics     atomic.Uint32
	core1Ready atomic.Bool
)

func main() {
	// Disable the watchdog on boot to clear any previous state
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()
	UpdateSystemTime()
	core.TimerInit()

	cfg := config.DefaultNeuronConfig()

	usb = &usbWriter{}
	out = bridge.NewWriter(usb)
	logOut := out.LogWriter()
	core.SetDebugWriter(func(s string) {
		logOut.Write([]byte(s + "\n"))
	})
	core.SetDebugEnabled(true)
	logger = core.NewDebugLogger(nil, cfg.Level())

	led = newStatusLED(machine.Pin(cfg.StatusLEDPin))
	gpio := NewRPGPIODriver()

	for i := range cfg.Links {
		l, err := setupLink(uint8(i), &cfg.Links[i], gpio, cfg.Bridge)
		if err != nil {
			logger.Error("link setup failed", "link", cfg.Links[i].Name, "err", err.Error())
			continue
		}
		links = append(links, l)
	}
	logger.Info("neuron up", "links", len(links), "protocol", protocol.Version)

	go usbReaderLoop()

	// The second link gets its own core so one half's traffic cannot
	// delay the other's replies
	local := links
	if cfg.SecondCore && len(links) > 1 {
		local = links[:1]
		machine.Core1.Start(func() { core1Main(links[1:]) })
		for !core1Ready.Load() {
			time.Sleep(time.Millisecond)
		}
	}

	lastStats := core.GetTime()
	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					panics.Add(1)
					core.DumpTraceRing()
				}
			}()

			UpdateSystemTime()
			for _, l := range local {
				l.poll()
			}
			led.Update()

			now := core.GetTime()
			if cfg.Bridge && cfg.StatsIntervalMs != 0 && core.Elapsed(now, lastStats, cfg.StatsIntervalMs) {
				lastStats = now
				logger.Debug("neuron", "uptime_ms", core.GetUptime(), "panics", panics.Load())
				for _, l := range links {
					out.Stats(bridge.StatsRecord{Link: l.index, Port: l.port.Stats(), Line: l.slave.Stats()})
				}
			}
		}()

		time.Sleep(10 * time.Microsecond)
	}
}

// core1Main runs the loops of the links handed to core 1
func core1Main(mine []*neuronLink) {
	core1Ready.Store(true)
	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					panics.Add(1)
				}
			}()
			UpdateSystemTime()
			for _, l := range mine {
				l.poll()
			}
		}()
		time.Sleep(10 * time.Microsecond)
	}
}

// setupLink builds the driver stack of one link and starts listening
func setupLink(index uint8, lc *config.LinkConfig, gpio *RPGPIODriver, monitor bool) (*neuronLink, error) {
	log := logger.With("link", lc.Name)

	if err := gpio.ConfigureOutput(core.GPIOPin(lc.Pins.Reset)); err != nil {
		return nil, err
	}
	drv := NewRPSPISlave(core.SPILine(lc.SPI), SlavePins{
		MISO: machine.Pin(lc.Pins.MISO),
		MOSI: machine.Pin(lc.Pins.MOSI),
		CLK:  machine.Pin(lc.Pins.CLK),
		CS:   machine.Pin(lc.Pins.CS),
	})

	l := &neuronLink{
		index:  index,
		cfg:    lc,
		slave:  link.NewSlave(drv, gpio, lc.ToLink(log)),
		inject: core.NewQueue[protocol.Packet](injectDepth),
	}

	tc := lc.ToTransport(log)
	tc.OnLiveness = func(dev protocol.Device, active bool) {
		led.SetLive(index, active)
		l.sayAlive.Store(active)
		if monitor {
			out.Liveness(bridge.LivenessRecord{Link: index, Device: dev, Active: active})
		}
	}
	if monitor {
		tc.Monitor = func(dir transport.Direction, p *protocol.Packet) {
			kind := bridge.KindRx
			if dir == transport.DirTx {
				kind = bridge.KindTx
			}
			out.Packet(kind, index, p)
		}
	}
	l.port = transport.NewPort(l.slave, core.SystemClock{}, nil, tc)

	cb := l.port.Callbacks()
	cb.Bind(protocol.CmdConnected, func(p *protocol.Packet) {
		log.Info("half connected", "device", p.Device().String())
	})
	cb.Bind(protocol.CmdDisconnected, func(p *protocol.Packet) {
		log.Warn("half disconnected", "device", p.Device().String())
	})
	cb.Bind(protocol.CmdGetVersion, func(p *protocol.Packet) {
		log.Info("half version", "version", string(p.Payload()))
	})

	if err := l.slave.Start(); err != nil {
		return nil, err
	}
	return l, nil
}

// poll runs one iteration of a link loop
func (l *neuronLink) poll() {
	for {
		pkt, ok := l.inject.Peek()
		if !ok || !l.port.SendPacket(pkt) {
			break
		}
		l.inject.Pop()
	}

	// SET_ALIVE_INTERVAL goes out once per connection
	if l.cfg.RemoteAliveMs != 0 && l.sayAlive.CompareAndSwap(true, false) {
		if err := l.port.SetAliveInterval(l.cfg.RemoteAliveMs, l.cfg.RemoteAliveVariation); err != nil {
			l.sayAlive.Store(true)
		}
	}

	l.port.Run()
}

// usbReaderLoop feeds host bytes into the bridge decoder and routes inject
// frames to their link loop
func usbReaderLoop() {
	dec := bridge.NewDecoder(0)
	var chunk [64]byte
	for {
		n := 0
		for n < len(chunk) && USBAvailable() > 0 {
			b, err := USBRead()
			if err != nil {
				break
			}
			chunk[n] = b
			n++
		}
		if n > 0 {
			usb.Reconnected()
			dec.Feed(chunk[:n], routeFrame)
		}
		time.Sleep(100 * time.Microsecond)
	}
}

func routeFrame(f bridge.Frame) {
	if f.Kind != bridge.KindInject {
		return
	}
	rec, err := bridge.DecodePacketRecord(f.Payload)
	if err != nil {
		return
	}
	for _, l := range links {
		if l.index == rec.Link {
			if l.inject.Push(rec.Packet) {
				out.Packet(bridge.KindInject, rec.Link, &rec.Packet)
			}
			return
		}
	}
}
