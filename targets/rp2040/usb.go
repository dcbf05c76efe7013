//go:build rp2040

package main

import (
	"machine"
	"sync/atomic"
)

// InitUSB initializes USB serial communication.
// On RP2040 machine.Serial is USB CDC; TinyGo's runtime sets the descriptors.
func InitUSB() {
	machine.Serial.Configure(machine.UARTConfig{})
}

// USBAvailable returns the number of bytes available to read from USB
func USBAvailable() int {
	return machine.Serial.Buffered()
}

// USBRead reads a single byte from USB
func USBRead() (byte, error) {
	return machine.Serial.ReadByte()
}

// usbWriter adapts USB CDC to io.Writer for the bridge. Writes that fail
// repeatedly mark the host as gone so the link loops stop paying for them.
type usbWriter struct {
	failures atomic.Uint32
}

const usbMaxFailures = 10

func (w *usbWriter) Write(p []byte) (int, error) {
	if w.failures.Load() > usbMaxFailures {
		return len(p), nil
	}
	written := 0
	for written < len(p) {
		n, err := machine.Serial.Write(p[written:])
		if err != nil || n == 0 {
			w.failures.Add(1)
			if err == nil {
				err = errUSBStalled
			}
			return written, err
		}
		written += n
	}
	w.failures.Store(0)
	return written, nil
}

// Reconnected clears the failure count after the host wrote to us again
func (w *usbWriter) Reconnected() {
	w.failures.Store(0)
}
