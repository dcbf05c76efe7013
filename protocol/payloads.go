package protocol

import (
	"encoding/binary"
	"errors"
)

// Limits for SET_ALIVE_INTERVAL, in milliseconds
const (
	AliveIntervalMin          = 1
	AliveIntervalMax          = 499
	AliveIntervalVariationMax = 100
)

var ErrAliveInterval = errors.New("alive interval out of range")

// EncodeAliveInterval builds the SET_ALIVE_INTERVAL payload: base and
// variation as little-endian uint32 milliseconds.
func EncodeAliveInterval(base, variation uint32) ([]byte, error) {
	if base < AliveIntervalMin || base > AliveIntervalMax || variation > AliveIntervalVariationMax {
		return nil, ErrAliveInterval
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:], base)
	binary.LittleEndian.PutUint32(buf[4:], variation)
	return buf, nil
}

// DecodeAliveInterval is the inverse of EncodeAliveInterval
func DecodeAliveInterval(payload []byte) (base, variation uint32, err error) {
	if len(payload) < 8 {
		return 0, 0, ErrShortPacket
	}
	base = binary.LittleEndian.Uint32(payload[0:])
	variation = binary.LittleEndian.Uint32(payload[4:])
	if base < AliveIntervalMin || base > AliveIntervalMax || variation > AliveIntervalVariationMax {
		return 0, 0, ErrAliveInterval
	}
	return base, variation, nil
}

// LEDModeSolidColor is the SET_MODE_LED mode byte for a single-color fill
const LEDModeSolidColor = 0x02

// SolidColor is the SET_MODE_LED payload for a single-color fill. A zero
// Mode encodes as LEDModeSolidColor.
type SolidColor struct {
	Mode       uint8
	R, G, B, W uint8
}

func (c SolidColor) Bytes() []byte {
	mode := c.Mode
	if mode == 0 {
		mode = LEDModeSolidColor
	}
	return []byte{mode, c.R, c.G, c.B, c.W}
}

// Brightness is the SET_BRIGHTNESS payload
func Brightness(level uint8) []byte {
	return []byte{level}
}
