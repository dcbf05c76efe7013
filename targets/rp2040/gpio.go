//go:build rp2040

package main

import (
	"machine"

	"defylink/core"
)

// RPGPIODriver implements core.GPIODriver for the keyscanner reset lines.
// Pins are configured from main before the links start; SetPin may then be
// called from interrupt context during link recovery.
type RPGPIODriver struct {
	// Track configured pins to avoid reconfiguring a live line
	configuredPins map[core.GPIOPin]machine.Pin
}

// NewRPGPIODriver creates a new RP2040 GPIO driver
func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{
		configuredPins: make(map[core.GPIOPin]machine.Pin),
	}
}

// ConfigureOutput configures a pin as a digital output, idle high so the
// remote half stays out of reset
func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	if _, exists := d.configuredPins[pin]; exists {
		return nil
	}

	machinePin := machine.Pin(pin)
	machinePin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	machinePin.High()

	d.configuredPins[pin] = machinePin
	return nil
}

// SetPin sets the pin to high (true) or low (false)
func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	machinePin, exists := d.configuredPins[pin]
	if !exists {
		return errPinNotConfigured
	}

	machinePin.Set(value)
	return nil
}
