// Package serial opens the Neuron's USB CDC port on the host
package serial

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/tarm/serial"
)

var ErrNoDevice = errors.New("no USB serial device found")

// Port is an open serial connection. Tests substitute an in-memory pipe.
type Port interface {
	io.ReadWriteCloser
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3"). "auto" picks the first
	// USB CDC device found.
	Device string

	// Baud rate (USB CDC ignores it, but the OS driver wants one)
	Baud int

	// ReadTimeout bounds each Read so callers can poll for shutdown
	ReadTimeout time.Duration
}

// DefaultConfig returns the configuration for the Neuron's USB CDC port
func DefaultConfig(device string) Config {
	return Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Open opens the port described by cfg
func Open(cfg Config) (Port, error) {
	if cfg.Device == "" || cfg.Device == "auto" {
		found := Candidates()
		if len(found) == 0 {
			return nil, ErrNoDevice
		}
		cfg.Device = found[0]
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	return port, nil
}

// Candidates lists USB CDC device nodes on Linux and macOS, sorted
func Candidates() []string {
	var found []string
	for _, pattern := range []string{"/dev/ttyACM*", "/dev/cu.usbmodem*"} {
		matches, _ := filepath.Glob(pattern)
		found = append(found, matches...)
	}
	sort.Strings(found)
	return found
}
