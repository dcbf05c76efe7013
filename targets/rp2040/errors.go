//go:build rp2040

package main

import "errors"

var (
	errBadLine          = errors.New("spi slave: line does not match driver")
	errSlaveBusy        = errors.New("spi slave: transfer already armed")
	errPinNotConfigured = errors.New("gpio: pin not configured")
	errUSBStalled       = errors.New("usb: write made no progress")
)
