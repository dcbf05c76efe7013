package config

import (
	"encoding/json"
	"errors"

	"golang.org/x/exp/slog"

	"defylink/core"
	"defylink/link"
	"defylink/protocol"
	"defylink/transport"
)

var (
	ErrNoLinks       = errors.New("config: no links")
	ErrTooManyLinks  = errors.New("config: more links than SPI peripherals")
	ErrBadSPI        = errors.New("config: spi must be 0 or 1")
	ErrDuplicateSPI  = errors.New("config: spi peripheral used twice")
	ErrBadDevice     = errors.New("config: unknown device name")
	ErrBadMode       = errors.New("config: spi mode must be 0-3")
	ErrBadRate       = errors.New("config: spi rate out of range")
	ErrPinConflict   = errors.New("config: pin used twice")
	ErrMessageSize   = errors.New("config: message size cannot hold a packet")
	ErrAliveTimeout  = errors.New("config: alive timeout must exceed the alive interval")
	ErrBadLogLevel   = errors.New("config: unknown log level")
	ErrStatusLEDPin  = errors.New("config: status LED pin used by a link")
	ErrAliveInterval = errors.New("config: remote alive interval out of range")
)

// MaxRate is the fastest SPI clock a PL022 slave follows at the 125 MHz
// system clock (clk_peri / 12)
const MaxRate = 10_000_000

// PinConfig holds the GPIO numbers of one link
type PinConfig struct {
	MISO  uint8
	MOSI  uint8
	CLK   uint8
	CS    uint8
	Reset uint8 // Remote half reset, active low
}

// LinkConfig describes one SPI link to a keyboard half
type LinkConfig struct {
	Name   string // Label for logs and the host monitor
	SPI    uint8  // Peripheral index
	Pins   PinConfig
	Rate   uint32 // Hz
	Mode   uint8
	Device string // Expected remote half, "" to learn it

	Checksum        bool
	MessageSizeMax  int
	QueueDepth      int
	AliveTimeoutMs  uint32
	AliveIntervalMs uint32

	// RemoteAliveMs, when set, is sent to the half as SET_ALIVE_INTERVAL
	// every time it connects
	RemoteAliveMs        uint32
	RemoteAliveVariation uint32
}

// NeuronConfig is the firmware configuration
type NeuronConfig struct {
	Links []LinkConfig

	StatusLEDPin    uint8
	LogLevel        string // "debug", "info", "warn" or "error"
	Bridge          bool   // Stream traffic frames over USB
	StatsIntervalMs uint32 // 0 disables periodic stats frames
	SecondCore      bool   // Run the second link loop on core 1
}

// Load parses a JSON configuration, applies defaults and validates it
func Load(jsonData []byte) (*NeuronConfig, error) {
	var config NeuronConfig

	err := json.Unmarshal(jsonData, &config)
	if err != nil {
		return nil, err
	}

	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyDefaults fills in missing configuration values
func applyDefaults(config *NeuronConfig) {
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	for i := range config.Links {
		l := &config.Links[i]
		if l.Name == "" {
			l.Name = l.Device
		}
		if l.Name == "" {
			l.Name = "spi" + core.Itoa(l.SPI)
		}
		if l.Rate == 0 {
			l.Rate = 4_000_000
		}
		if l.MessageSizeMax == 0 {
			l.MessageSizeMax = link.DefaultMessageSizeMax
		}
		if l.QueueDepth == 0 {
			l.QueueDepth = transport.DefaultQueueDepth
		}
		if l.AliveTimeoutMs == 0 {
			l.AliveTimeoutMs = transport.DefaultAliveTimeout
		}
		if l.AliveIntervalMs == 0 {
			l.AliveIntervalMs = transport.DefaultAliveInterval
		}
	}
}

// Validate checks the configuration for values the firmware cannot run with
func (c *NeuronConfig) Validate() error {
	if len(c.Links) == 0 {
		return ErrNoLinks
	}
	if len(c.Links) > 2 {
		return ErrTooManyLinks
	}
	if _, ok := parseLevel(c.LogLevel); !ok {
		return ErrBadLogLevel
	}

	pins := make(map[uint8]bool)
	spis := make(map[uint8]bool)
	for i := range c.Links {
		l := &c.Links[i]
		if err := l.Validate(); err != nil {
			return err
		}
		if spis[l.SPI] {
			return ErrDuplicateSPI
		}
		spis[l.SPI] = true
		for _, pin := range []uint8{l.Pins.MISO, l.Pins.MOSI, l.Pins.CLK, l.Pins.CS, l.Pins.Reset} {
			if pins[pin] {
				return ErrPinConflict
			}
			pins[pin] = true
		}
	}
	if pins[c.StatusLEDPin] {
		return ErrStatusLEDPin
	}
	return nil
}

// Validate checks one link on its own
func (l *LinkConfig) Validate() error {
	if l.SPI > 1 {
		return ErrBadSPI
	}
	if l.Mode > 3 {
		return ErrBadMode
	}
	if l.Rate == 0 || l.Rate > MaxRate {
		return ErrBadRate
	}
	if _, ok := l.RemoteDevice(); !ok {
		return ErrBadDevice
	}

	need := link.ControlHeaderSize + protocol.PacketSize
	if l.Checksum {
		need = link.ControlHeaderSize + protocol.ChecksumFrameSize
	}
	if l.MessageSizeMax < need || l.MessageSizeMax > 255 {
		return ErrMessageSize
	}
	if l.AliveTimeoutMs <= l.AliveIntervalMs {
		return ErrAliveTimeout
	}
	if l.RemoteAliveMs != 0 {
		if _, err := protocol.EncodeAliveInterval(l.RemoteAliveMs, l.RemoteAliveVariation); err != nil {
			return ErrAliveInterval
		}
	}
	return nil
}

// RemoteDevice parses Device. An empty name means learn the remote.
func (l *LinkConfig) RemoteDevice() (protocol.Device, bool) {
	if l.Device == "" {
		return protocol.DeviceUnknown, true
	}
	d, ok := protocol.ParseDevice(l.Device)
	if !ok || !d.IsKeyscanner() {
		return protocol.DeviceUnknown, false
	}
	return d, true
}

// ToLink converts the link settings for link.NewSlave
func (l *LinkConfig) ToLink(logger *slog.Logger) link.Config {
	return link.Config{
		Line:           core.SPILine(l.SPI),
		Mode:           core.SPIMode(l.Mode),
		Rate:           l.Rate,
		ResetPin:       core.GPIOPin(l.Pins.Reset),
		MessageSizeMax: l.MessageSizeMax,
		Logger:         logger,
	}
}

// ToTransport converts the port settings for transport.NewPort
func (l *LinkConfig) ToTransport(logger *slog.Logger) transport.Config {
	dev, _ := l.RemoteDevice()
	return transport.Config{
		Device:        dev,
		Local:         protocol.DeviceNeuronWired,
		QueueDepth:    l.QueueDepth,
		AliveTimeout:  l.AliveTimeoutMs,
		AliveInterval: l.AliveIntervalMs,
		Checksum:      l.Checksum,
		Logger:        logger,
	}
}

// Level returns the slog level named by LogLevel
func (c *NeuronConfig) Level() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(name string) (slog.Level, bool) {
	switch name {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// DefaultNeuronConfig returns the Defy wiring: SPI1 to the left half and
// SPI0 to the right half, 4 MHz, mode 1
func DefaultNeuronConfig() *NeuronConfig {
	return &NeuronConfig{
		Links: []LinkConfig{
			{
				Name:   "left",
				SPI:    1,
				Pins:   PinConfig{MISO: 11, MOSI: 8, CLK: 14, CS: 9, Reset: 10},
				Rate:   4_000_000,
				Mode:   1,
				Device: "left",

				MessageSizeMax:  link.DefaultMessageSizeMax,
				QueueDepth:      transport.DefaultQueueDepth,
				AliveTimeoutMs:  transport.DefaultAliveTimeout,
				AliveIntervalMs: transport.DefaultAliveInterval,
			},
			{
				Name:   "right",
				SPI:    0,
				Pins:   PinConfig{MISO: 23, MOSI: 20, CLK: 18, CS: 21, Reset: 22},
				Rate:   4_000_000,
				Mode:   1,
				Device: "right",

				MessageSizeMax:  link.DefaultMessageSizeMax,
				QueueDepth:      transport.DefaultQueueDepth,
				AliveTimeoutMs:  transport.DefaultAliveTimeout,
				AliveIntervalMs: transport.DefaultAliveInterval,
			},
		},
		StatusLEDPin:    16,
		LogLevel:        "info",
		Bridge:          true,
		StatsIntervalMs: 1000,
		SecondCore:      true,
	}
}
