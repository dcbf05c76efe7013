package protocol

import (
	"bytes"
	"testing"
)

func TestPacketRoundTrip(t *testing.T) {
	commands := []Command{CmdIsAlive, CmdHasKeys, CmdSetModeLED, CmdSetLayerUnderglowColors}
	devices := []Device{DeviceUnknown, DeviceKeyscannerLeft, DeviceKeyscannerRight, DeviceNeuronWired, DeviceNeuronWireless}

	for _, cmd := range commands {
		for _, dev := range devices {
			for size := 0; size <= MaxPayload; size++ {
				payload := make([]byte, size)
				for i := range payload {
					payload[i] = byte(i*7 + size)
				}

				p, err := NewPacket(cmd, dev, payload)
				if err != nil {
					t.Fatalf("NewPacket(%v, %v, %d bytes) failed: %v", cmd, dev, size, err)
				}

				decoded, err := DecodePacket(p.Bytes())
				if err != nil {
					t.Fatalf("DecodePacket failed for size %d: %v", size, err)
				}
				if decoded.Command() != cmd {
					t.Errorf("Expected command %v, got %v", cmd, decoded.Command())
				}
				if decoded.Device() != dev {
					t.Errorf("Expected device %v, got %v", dev, decoded.Device())
				}
				if decoded.Size() != size {
					t.Errorf("Expected size %d, got %d", size, decoded.Size())
				}
				if !bytes.Equal(decoded.Payload(), payload) {
					t.Errorf("Payload mismatch for %v size %d", cmd, size)
				}
			}
		}
	}
}

func TestPacketWireLayout(t *testing.T) {
	p, err := NewPacket(CmdSetModeLED, DeviceNeuronWired, []byte{0x02, 255, 0, 0, 0})
	if err != nil {
		t.Fatalf("NewPacket failed: %v", err)
	}
	p.SetHasMore(true)

	b := p.Bytes()
	if len(b) != PacketSize {
		t.Errorf("Expected %d wire bytes, got %d", PacketSize, len(b))
	}
	if b[0] != 21 || b[1] != 3 {
		t.Errorf("Expected command 21 device 3, got %d %d", b[0], b[1])
	}
	if b[2] != 0x85 {
		t.Errorf("Expected size byte 0x85 (size 5, has_more), got 0x%02X", b[2])
	}
	if !bytes.Equal(b[3:8], []byte{0x02, 255, 0, 0, 0}) {
		t.Errorf("Unexpected payload bytes %v", b[3:8])
	}

	p.SetHasMore(false)
	if p.HasMore() || p.Size() != 5 {
		t.Errorf("Clearing has_more changed size: size=%d more=%v", p.Size(), p.HasMore())
	}
}

func TestPacketHeaderRoundTrip(t *testing.T) {
	var buf [HeaderSize]byte
	in := Header{Command: CmdHasKeys, Device: DeviceKeyscannerRight, Size: 125, HasMore: true}
	EncodeHeader(buf[:], in)

	out, err := DecodeHeader(buf[:])
	if err != nil {
		t.Fatalf("DecodeHeader failed: %v", err)
	}
	if out != in {
		t.Errorf("Expected %+v, got %+v", in, out)
	}
}

func TestPacketPayloadTooLarge(t *testing.T) {
	_, err := NewPacket(CmdSetLEDBank, DeviceNeuronWired, make([]byte, MaxPayload+1))
	if err != ErrPayloadTooLarge {
		t.Errorf("Expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestDecodePacketMalformed(t *testing.T) {
	if _, err := DecodePacket([]byte{1, 2}); err != ErrShortPacket {
		t.Errorf("Expected ErrShortPacket, got %v", err)
	}

	// size 127 cannot fit behind a 3-byte header
	b := make([]byte, PacketSize)
	b[PositionSize] = 0x7F
	if _, err := DecodePacket(b); err != ErrBadSize {
		t.Errorf("Expected ErrBadSize for size 127, got %v", err)
	}

	// size larger than the bytes actually present
	if _, err := DecodePacket([]byte{1, 1, 10, 0, 0}); err != ErrBadSize {
		t.Errorf("Expected ErrBadSize for truncated frame, got %v", err)
	}
}

func TestCommandNames(t *testing.T) {
	if CmdSetModeLED.String() != "SET_MODE_LED" {
		t.Errorf("Expected SET_MODE_LED, got %s", CmdSetModeLED.String())
	}
	if Command(99).String() != "CMD_63" {
		t.Errorf("Expected CMD_63 for unknown command, got %s", Command(99).String())
	}
	cmd, ok := ParseCommand("HAS_KEYS")
	if !ok || cmd != CmdHasKeys {
		t.Errorf("Expected HAS_KEYS to parse, got %v %v", cmd, ok)
	}
	if CmdGetShortLED != 28 || CmdSetKeyscanInterval != 11 || CmdSetAliveInterval != 7 {
		t.Error("Command codes drifted from the wire protocol")
	}
}

func TestDeviceNames(t *testing.T) {
	for d := DeviceUnknown; d <= DeviceNeuronWireless; d++ {
		got, ok := ParseDevice(d.String())
		if !ok || got != d {
			t.Errorf("Expected %s to parse back to %d, got %d", d.String(), d, got)
		}
	}
	if _, ok := ParseDevice("middle"); ok {
		t.Error("Expected unknown name to fail")
	}
	if !DeviceKeyscannerLeft.IsKeyscanner() || DeviceNeuronWired.IsKeyscanner() {
		t.Error("IsKeyscanner misclassified a device")
	}
}
