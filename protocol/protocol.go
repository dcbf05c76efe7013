// Package protocol defines the packet framing shared by every link between
// the keyboard halves and the Neuron.
package protocol

// Version of the link protocol implemented by this module
const Version = "1.0.0"

// Packet layout constants
const (
	PacketSize = 128 // Bytes on the wire for one packet
	HeaderSize = 3   // command, device, size|has_more
	MaxPayload = PacketSize - HeaderSize

	// Position of each header field inside a packet
	PositionCommand = 0
	PositionDevice  = 1
	PositionSize    = 2

	sizeMask    = 0x7F
	hasMoreFlag = 0x80
)

// Command identifies what a packet carries
type Command uint8

// Commands exchanged between the Neuron and the keyscanners
const (
	CmdIsDead Command = iota
	CmdIsAlive
	CmdConnected
	CmdDisconnected
	CmdSleep
	CmdWakeUp
	CmdGetVersion
	CmdSetAliveInterval
)

// Key commands
const (
	CmdHasKeys Command = iota + 10
	CmdSetKeyscanInterval
)

// LED commands
const (
	CmdSetBrightness Command = iota + 20
	CmdSetModeLED
	CmdSetLED
	CmdSetLEDBank
	CmdSetPaletteColors
	CmdSetLayerKeymapColors
	CmdSetLayerUnderglowColors
	CmdGetOpenLED
	CmdGetShortLED
)

var commandNames = map[Command]string{
	CmdIsDead:                  "IS_DEAD",
	CmdIsAlive:                 "IS_ALIVE",
	CmdConnected:               "CONNECTED",
	CmdDisconnected:            "DISCONNECTED",
	CmdSleep:                   "SLEEP",
	CmdWakeUp:                  "WAKE_UP",
	CmdGetVersion:              "GET_VERSION",
	CmdSetAliveInterval:        "SET_ALIVE_INTERVAL",
	CmdHasKeys:                 "HAS_KEYS",
	CmdSetKeyscanInterval:      "SET_KEYSCAN_INTERVAL",
	CmdSetBrightness:           "SET_BRIGHTNESS",
	CmdSetModeLED:              "SET_MODE_LED",
	CmdSetLED:                  "SET_LED",
	CmdSetLEDBank:              "SET_LED_BANK",
	CmdSetPaletteColors:        "SET_PALETTE_COLORS",
	CmdSetLayerKeymapColors:    "SET_LAYER_KEYMAP_COLORS",
	CmdSetLayerUnderglowColors: "SET_LAYER_UNDERGLOW_COLORS",
	CmdGetOpenLED:              "GET_OPEN_LED",
	CmdGetShortLED:             "GET_SHORT_LED",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "CMD_" + hex2(uint8(c))
}

// ParseCommand looks a command up by its wire name (e.g. "SET_MODE_LED")
func ParseCommand(name string) (Command, bool) {
	for c, n := range commandNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}

// Device identifies the sender of a packet
type Device uint8

const (
	DeviceUnknown Device = iota
	DeviceKeyscannerLeft
	DeviceKeyscannerRight
	DeviceNeuronWired
	DeviceNeuronWireless
)

func (d Device) String() string {
	switch d {
	case DeviceUnknown:
		return "unknown"
	case DeviceKeyscannerLeft:
		return "left"
	case DeviceKeyscannerRight:
		return "right"
	case DeviceNeuronWired:
		return "neuron"
	case DeviceNeuronWireless:
		return "neuron-wireless"
	}
	return "device-" + hex2(uint8(d))
}

// IsKeyscanner reports whether d is one of the two halves
func (d Device) IsKeyscanner() bool {
	return d == DeviceKeyscannerLeft || d == DeviceKeyscannerRight
}

// ParseDevice is the inverse of Device.String for the named devices
func ParseDevice(name string) (Device, bool) {
	for d := DeviceUnknown; d <= DeviceNeuronWireless; d++ {
		if d.String() == name {
			return d, true
		}
	}
	return DeviceUnknown, false
}

func hex2(b uint8) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[b>>4], digits[b&0x0F]})
}
