package neuron

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"defylink/bridge"
	"defylink/protocol"
)

type fakePort struct {
	in     *bytes.Reader
	out    bytes.Buffer
	closed bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	// Hand out a few bytes at a time, as USB does
	if len(b) > 7 {
		b = b[:7]
	}
	return p.in.Read(b)
}

func (p *fakePort) Write(b []byte) (int, error) { return p.out.Write(b) }
func (p *fakePort) Close() error                { p.closed = true; return nil }

func stream(t *testing.T, build func(w *bridge.Writer)) *fakePort {
	t.Helper()
	var buf bytes.Buffer
	build(bridge.NewWriter(&buf))
	return &fakePort{in: bytes.NewReader(buf.Bytes())}
}

func TestConnReadFrames(t *testing.T) {
	pkt, _ := protocol.NewPacket(protocol.CmdHasKeys, protocol.DeviceKeyscannerLeft, []byte{0, 4, 0})
	port := stream(t, func(w *bridge.Writer) {
		w.Packet(bridge.KindRx, 1, &pkt)
		w.Liveness(bridge.LivenessRecord{Link: 0, Device: protocol.DeviceKeyscannerRight, Active: false})
	})
	c := NewConn(port)

	f, err := c.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if f.Kind != bridge.KindRx {
		t.Errorf("Expected rx frame, got %v", f.Kind)
	}
	f, err = c.ReadFrame()
	if err != nil || f.Kind != bridge.KindLiveness {
		t.Errorf("Expected liveness frame, got %v (%v)", f.Kind, err)
	}
	if _, err := c.ReadFrame(); err != io.EOF {
		t.Errorf("Expected io.EOF at end of stream, got %v", err)
	}
}

func TestConnInject(t *testing.T) {
	port := &fakePort{in: bytes.NewReader(nil)}
	c := NewConn(port)

	if err := c.Inject(1, protocol.CmdSetModeLED, []byte{0x02, 0xFF, 0, 0, 0}); err != nil {
		t.Fatalf("Inject failed: %v", err)
	}

	var frames []bridge.Frame
	bridge.NewDecoder(0).Feed(port.out.Bytes(), func(f bridge.Frame) {
		frames = append(frames, bridge.Frame{Kind: f.Kind, Payload: append([]byte(nil), f.Payload...)})
	})
	if len(frames) != 1 || frames[0].Kind != bridge.KindInject {
		t.Fatalf("Expected one inject frame, got %v", frames)
	}
	r, err := bridge.DecodePacketRecord(frames[0].Payload)
	if err != nil {
		t.Fatalf("DecodePacketRecord failed: %v", err)
	}
	if r.Link != 1 || r.Packet.Command() != protocol.CmdSetModeLED {
		t.Errorf("Unexpected inject record link %d cmd %v", r.Link, r.Packet.Command())
	}
	if !bytes.Equal(r.Packet.Payload(), []byte{0x02, 0xFF, 0, 0, 0}) {
		t.Errorf("Unexpected payload % x", r.Packet.Payload())
	}

	if err := c.Inject(0, protocol.CmdSetLED, make([]byte, protocol.MaxPayload+1)); err != protocol.ErrPayloadTooLarge {
		t.Errorf("Expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestConnClose(t *testing.T) {
	port := &fakePort{in: bytes.NewReader(nil)}
	c := NewConn(port)
	c.Close()

	if !port.closed {
		t.Error("Expected the port closed")
	}
	if _, err := c.ReadFrame(); err != ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestFormat(t *testing.T) {
	names := Names{"left", "right"}

	pkt, _ := protocol.NewPacket(protocol.CmdSetModeLED, protocol.DeviceNeuronWired, []byte{0x02, 0xFF, 0, 0, 0})
	pkt.SetHasMore(true)
	r := bridge.PacketRecord{Link: 1, Packet: pkt}
	line, err := Format(bridge.Frame{Kind: bridge.KindTx, Payload: r.Append(nil)}, names)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	for _, want := range []string{"right", "->", "SET_MODE_LED", "dev=neuron", "02 ff 00 00 00", "+more"} {
		if !strings.Contains(line, want) {
			t.Errorf("Expected %q in %q", want, line)
		}
	}

	lr := bridge.LivenessRecord{Link: 0, Device: protocol.DeviceKeyscannerLeft, Active: true}
	line, _ = Format(bridge.Frame{Kind: bridge.KindLiveness, Payload: lr.Append(nil)}, names)
	if !strings.Contains(line, "left") || !strings.HasSuffix(line, "UP") {
		t.Errorf("Unexpected liveness line %q", line)
	}

	line, _ = Format(bridge.Frame{Kind: bridge.KindLog, Payload: []byte("[INFO] link start\n")}, names)
	if line != "log    [INFO] link start" {
		t.Errorf("Unexpected log line %q", line)
	}

	if _, err := Format(bridge.Frame{Kind: bridge.KindStats, Payload: []byte{1}}, names); err != bridge.ErrShortRecord {
		t.Errorf("Expected ErrShortRecord, got %v", err)
	}
}

func TestNamesFallback(t *testing.T) {
	if Names(nil).Link(3) != "link3" {
		t.Errorf("Expected link3, got %s", Names(nil).Link(3))
	}
}

func TestLinkOf(t *testing.T) {
	if LinkOf(bridge.Frame{Kind: bridge.KindRx, Payload: []byte{1, 2}}) != 1 {
		t.Error("Expected link 1 for an rx frame")
	}
	if LinkOf(bridge.Frame{Kind: bridge.KindLog, Payload: []byte("x")}) != -1 {
		t.Error("Expected -1 for a log frame")
	}
}
