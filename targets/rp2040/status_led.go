//go:build rp2040

package main

import (
	"image/color"
	"machine"
	"sync/atomic"

	"tinygo.org/x/drivers/ws2812"
)

// Status LED colours by number of live halves
var statusColors = [...]color.RGBA{
	{R: 0x20, G: 0x00, B: 0x00}, // No half connected
	{R: 0x20, G: 0x10, B: 0x00}, // One half
	{R: 0x00, G: 0x20, B: 0x00}, // Both halves
}

// statusLED shows link liveness on the Neuron's ws2812. Liveness callbacks
// only flip bits; the main loop repaints when the mask changed.
type statusLED struct {
	dev   ws2812.Device
	live  atomic.Uint32 // Bit per link index
	shown uint32
	drawn bool
}

func newStatusLED(pin machine.Pin) *statusLED {
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &statusLED{dev: ws2812.New(pin)}
}

// SetLive records whether link i has an active remote. Safe from any core.
func (s *statusLED) SetLive(i uint8, active bool) {
	for {
		old := s.live.Load()
		next := old &^ (1 << i)
		if active {
			next |= 1 << i
		}
		if s.live.CompareAndSwap(old, next) {
			return
		}
	}
}

// Update repaints the LED if the live set changed since the last call
func (s *statusLED) Update() {
	live := s.live.Load()
	if s.drawn && live == s.shown {
		return
	}
	s.shown = live
	s.drawn = true

	n := 0
	for m := live; m != 0; m &= m - 1 {
		n++
	}
	if n >= len(statusColors) {
		n = len(statusColors) - 1
	}
	s.dev.WriteColors([]color.RGBA{statusColors[n]})
}
