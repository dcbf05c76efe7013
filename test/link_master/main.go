//go:build rp2040

// Bench keyscanner for the Neuron link.
//
// Runs on a second RP2040 wired to one of the Neuron's SPI slave lines and
// plays a keyboard half: it reports a walking key bit every keyscan period,
// sends IS_ALIVE while idle, honours SET_ALIVE_INTERVAL and answers
// GET_VERSION. Received LED commands and counters are printed on USB.
//
// Wiring (bench board -> Neuron right line):
//
//	GP2 SCK  -> GPIO18
//	GP3 MOSI -> GPIO20
//	GP4 MISO <- GPIO23
//	GP5 CS   -> GPIO21
package main

import (
	"machine"
	"time"

	"golang.org/x/exp/slog"

	"defylink/core"
	"defylink/keyscanner"
	"defylink/link"
	"defylink/protocol"
	"defylink/targets/pio"
)

const (
	busFrequency   = 4_000_000
	keyscanPeriod  = 500 // ms between key reports
	reportPeriod   = 5000
	matrixBytes    = 9 // 8x9 key matrix, one bit per key
	errorBackoffMs = 50
)

var logger *slog.Logger

func main() {
	machine.Serial.Configure(machine.UARTConfig{})
	time.Sleep(2 * time.Second)

	core.SetDebugWriter(func(s string) { println(s) })
	logger = core.NewDebugLogger(nil, slog.LevelDebug)

	bus, err := pio.NewSPIMaster(pio.SPIMasterConfig{
		SCK:       machine.GP2,
		MOSI:      machine.GP3,
		MISO:      machine.GP4,
		CS:        machine.GP5,
		Frequency: busFrequency,
	})
	if err != nil {
		logger.Error("spi master", "err", err.Error())
		return
	}

	half, err := keyscanner.New(link.NewMaster(bus, link.DefaultMessageSizeMax), nil, keyscanner.Config{
		Device: protocol.DeviceKeyscannerRight,
		Logger: logger,
	})
	if err != nil {
		logger.Error("keyscanner", "err", err.Error())
		return
	}

	cb := half.Callbacks()
	cb.Bind(protocol.CmdSetModeLED, func(p *protocol.Packet) {
		logger.Info("mode led", "payload", core.Hex(p.Payload()))
	})
	cb.Bind(protocol.CmdSetBrightness, func(p *protocol.Packet) {
		logger.Info("brightness", "payload", core.Hex(p.Payload()))
	})
	cb.Bind(protocol.CmdSetAliveInterval, func(*protocol.Packet) {
		base, variation := half.AliveInterval()
		logger.Info("alive interval", "base", base, "variation", variation)
	})

	var matrix [matrixBytes]byte
	bit := 0
	lastScan := core.GetTime()
	lastReport := lastScan

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("loop panic")
				}
			}()

			core.SetTime(uint32(time.Now().UnixMilli()))
			now := core.GetTime()

			if core.Elapsed(now, lastScan, keyscanPeriod) {
				lastScan = now
				matrix = [matrixBytes]byte{}
				matrix[bit/8] = 1 << (bit % 8)
				bit = (bit + 1) % (matrixBytes * 8)
				if err := half.SendKeys(matrix[:]); err != nil {
					logger.Warn("key report dropped", "err", err.Error())
				}
			}

			if err := half.Run(); err != nil {
				time.Sleep(errorBackoffMs * time.Millisecond)
			}

			if core.Elapsed(now, lastReport, reportPeriod) {
				lastReport = now
				s := half.Stats()
				logger.Info("stats", "sent", s.Sent, "received", s.Received, "alive", s.KeepAlives,
					"busy", s.Busy, "link_errors", s.LinkErrors)
			}
		}()

		time.Sleep(time.Millisecond)
	}
}
