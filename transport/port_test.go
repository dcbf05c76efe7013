package transport

import (
	"bytes"
	"context"
	"testing"

	"golang.org/x/exp/slog"

	"defylink/core"
	"defylink/driver/sim"
	"defylink/link"
	"defylink/protocol"
)

// half plays the keyscanner end of the link
type half struct {
	t        *testing.T
	m        *link.Master
	dev      protocol.Device
	checksum bool
}

func (h *half) send(cmd protocol.Command, payload []byte) error {
	h.t.Helper()
	pkt, err := protocol.NewPacket(cmd, h.dev, payload)
	if err != nil {
		h.t.Fatalf("NewPacket failed: %v", err)
	}
	return h.sendPacket(&pkt)
}

func (h *half) sendPacket(pkt *protocol.Packet) error {
	if h.checksum {
		return h.m.Send(protocol.AppendChecksum(nil, pkt))
	}
	return h.m.Send(pkt.Bytes())
}

// receive pulls every packet the Neuron has queued for this half
func (h *half) receive() []protocol.Packet {
	h.t.Helper()
	var out []protocol.Packet
	buf := make([]byte, h.m.MaxPayload())
	for i := 0; i < 100; i++ {
		if !h.dataReady() {
			return out
		}
		n, err := h.m.Receive(buf)
		if err != nil {
			h.t.Fatalf("Receive failed: %v", err)
		}
		var pkt protocol.Packet
		if h.checksum {
			pkt, err = protocol.VerifyChecksum(buf[:n])
		} else {
			pkt, err = protocol.DecodePacket(buf[:n])
		}
		if err != nil {
			h.t.Fatalf("Decode of received packet failed: %v", err)
		}
		out = append(out, pkt)
	}
	return out
}

// dataReady polls until the slave's reply reflects its current output.
// A reply is prepared one transaction ahead, so the first may be stale.
func (h *half) dataReady() bool {
	h.t.Helper()
	for i := 0; i < 2; i++ {
		reply, err := h.m.Poll()
		if err != nil {
			h.t.Fatalf("Poll failed: %v", err)
		}
		if reply == link.ResultDataReady {
			return true
		}
	}
	return false
}

type liveness struct {
	dev    protocol.Device
	active bool
}

type testPort struct {
	port   *Port
	half   *half
	clock  *core.ManualClock
	cb     *core.Callbacks
	gpio   *sim.GPIO
	periph *sim.Peripheral
	events []liveness
}

func newTestPort(t *testing.T, cfg Config) *testPort {
	t.Helper()
	tp := &testPort{
		clock: &core.ManualClock{},
		cb:    core.NewCallbacks(),
		gpio:  sim.NewGPIO(),
	}
	periph := sim.NewPeripheral()
	tp.periph = periph
	slave := link.NewSlave(periph, tp.gpio, link.Config{Line: 0, Mode: 1, Rate: 4000000, ResetPin: 22})

	cfg.OnLiveness = func(dev protocol.Device, active bool) {
		tp.events = append(tp.events, liveness{dev, active})
	}
	tp.port = NewPort(slave, tp.clock, tp.cb, cfg)
	if err := slave.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	tp.half = &half{
		t:        t,
		m:        link.NewMaster(periph.Master(), 0),
		dev:      protocol.DeviceKeyscannerRight,
		checksum: cfg.Checksum,
	}
	return tp
}

// record collects the packets dispatched for cmd
func (tp *testPort) record(cmd protocol.Command) *[]protocol.Packet {
	var got []protocol.Packet
	tp.cb.Bind(cmd, func(p *protocol.Packet) {
		got = append(got, *p)
	})
	return &got
}

func TestPortFIFOOrder(t *testing.T) {
	tp := newTestPort(t, Config{Device: protocol.DeviceKeyscannerRight})
	got := tp.record(protocol.CmdHasKeys)

	for _, b := range []byte("ABC") {
		if err := tp.half.send(protocol.CmdHasKeys, []byte{b}); err != nil {
			t.Fatalf("Send %c failed: %v", b, err)
		}
	}
	tp.port.Run()

	if len(*got) != 3 {
		t.Fatalf("Expected 3 packets, got %d", len(*got))
	}
	for i, want := range []byte("ABC") {
		if (*got)[i].Payload()[0] != want {
			t.Errorf("Expected packet %d to be %c, got %c", i, want, (*got)[i].Payload()[0])
		}
	}
}

func TestPortSetModeLEDScenario(t *testing.T) {
	tp := newTestPort(t, Config{Device: protocol.DeviceKeyscannerRight})

	payload := []byte{protocol.LEDModeSolidColor, 255, 0, 0, 0}
	pkt, _ := protocol.NewPacket(protocol.CmdSetModeLED, protocol.DeviceNeuronWired, payload)
	if !tp.port.SendPacket(pkt) {
		t.Fatal("SendPacket refused")
	}
	tp.port.Run()

	rx := tp.half.receive()
	if len(rx) != 1 {
		t.Fatalf("Expected 1 packet at the half, got %d", len(rx))
	}
	if rx[0].Command() != protocol.CmdSetModeLED {
		t.Errorf("Expected SET_MODE_LED, got %v", rx[0].Command())
	}
	if rx[0].Device() != protocol.DeviceNeuronWired {
		t.Errorf("Expected device neuron, got %v", rx[0].Device())
	}
	if !bytes.Equal(rx[0].Payload(), payload) {
		t.Errorf("Expected payload %v, got %v", payload, rx[0].Payload())
	}
	if rx[0].HasMore() {
		t.Error("Expected has_more clear on the only packet")
	}
}

func TestPortReceivesFromHalf(t *testing.T) {
	tp := newTestPort(t, Config{Device: protocol.DeviceKeyscannerRight})
	got := tp.record(protocol.CmdSetModeLED)

	payload := protocol.SolidColor{R: 255}.Bytes()
	if err := tp.half.send(protocol.CmdSetModeLED, payload); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	tp.port.Run()

	if len(*got) != 1 {
		t.Fatalf("Expected 1 packet, got %d", len(*got))
	}
	if !bytes.Equal((*got)[0].Payload(), payload) {
		t.Errorf("Expected payload %v, got %v", payload, (*got)[0].Payload())
	}
}

func TestPortHasMore(t *testing.T) {
	tp := newTestPort(t, Config{Device: protocol.DeviceKeyscannerRight})

	for i := 0; i < 3; i++ {
		pkt, _ := protocol.NewPacket(protocol.CmdSetLED, protocol.DeviceNeuronWired, []byte{uint8(i)})
		tp.port.SendPacket(pkt)
	}
	tp.port.Run()

	rx := tp.half.receive()
	if len(rx) != 3 {
		t.Fatalf("Expected 3 packets, got %d", len(rx))
	}
	for i, want := range []bool{true, true, false} {
		if rx[i].HasMore() != want {
			t.Errorf("Expected has_more %v on packet %d, got %v", want, i, rx[i].HasMore())
		}
		if rx[i].Payload()[0] != uint8(i) {
			t.Errorf("Expected packet %d in order, got %d", i, rx[i].Payload()[0])
		}
	}
}

func TestPortLivenessOnce(t *testing.T) {
	tp := newTestPort(t, Config{Device: protocol.DeviceKeyscannerRight})
	connected := tp.record(protocol.CmdConnected)
	disconnected := tp.record(protocol.CmdDisconnected)

	tp.port.Run()
	if tp.port.Active() || len(tp.events) != 0 {
		t.Fatal("Expected no liveness change before the half speaks")
	}

	tp.half.send(protocol.CmdIsAlive, nil)
	tp.port.Run()
	tp.port.Run()
	if !tp.port.Active() {
		t.Fatal("Expected port active after IS_ALIVE")
	}
	if len(tp.events) != 1 || tp.events[0] != (liveness{protocol.DeviceKeyscannerRight, true}) {
		t.Errorf("Expected one active event, got %v", tp.events)
	}
	if len(*connected) != 1 || (*connected)[0].Device() != protocol.DeviceKeyscannerRight {
		t.Errorf("Expected one CONNECTED from the right half, got %d", len(*connected))
	}

	tp.clock.Advance(150)
	tp.port.Run()
	if !tp.port.Active() {
		t.Error("Expected port still active before the timeout")
	}

	tp.clock.Advance(60)
	tp.port.Run()
	tp.clock.Advance(500)
	tp.port.Run()
	if tp.port.Active() {
		t.Fatal("Expected port inactive after the timeout")
	}
	if len(tp.events) != 2 || tp.events[1].active {
		t.Errorf("Expected one inactive event, got %v", tp.events)
	}
	if len(*disconnected) != 1 {
		t.Errorf("Expected one DISCONNECTED, got %d", len(*disconnected))
	}
	if st := tp.port.Stats(); st.Recoveries != 1 || st.Disconnects != 1 {
		t.Errorf("Expected one recovery on disconnect, got %+v", st)
	}
	if tp.gpio.Pulses(22) != 1 {
		t.Errorf("Expected the half reset once, got %d", tp.gpio.Pulses(22))
	}

	if err := tp.half.send(protocol.CmdIsAlive, nil); err != nil {
		t.Fatalf("Send after recovery failed: %v", err)
	}
	tp.port.Run()
	tp.port.Run()
	if !tp.port.Active() || len(tp.events) != 3 || !tp.events[2].active {
		t.Errorf("Expected exactly one reconnect, got %v", tp.events)
	}
	if len(*connected) != 2 {
		t.Errorf("Expected two CONNECTED in total, got %d", len(*connected))
	}
}

func TestPortKeepAlive(t *testing.T) {
	tp := newTestPort(t, Config{Device: protocol.DeviceKeyscannerRight, AliveInterval: 50})

	tp.port.Run()
	if rx := tp.half.receive(); len(rx) != 0 {
		t.Fatalf("Expected no keep-alive yet, got %d packets", len(rx))
	}

	tp.clock.Advance(50)
	tp.port.Run()
	rx := tp.half.receive()
	if len(rx) != 1 || rx[0].Command() != protocol.CmdIsAlive {
		t.Fatalf("Expected one IS_ALIVE, got %v", rx)
	}
	if tp.port.Stats().KeepAlives != 1 {
		t.Errorf("Expected 1 keep-alive, got %d", tp.port.Stats().KeepAlives)
	}
}

func TestPortIsAliveNotDispatched(t *testing.T) {
	tp := newTestPort(t, Config{Device: protocol.DeviceKeyscannerRight})
	got := tp.record(protocol.CmdIsAlive)

	tp.half.send(protocol.CmdIsAlive, nil)
	tp.port.Run()

	if len(*got) != 0 {
		t.Errorf("Expected IS_ALIVE to be consumed by the port, got %d dispatched", len(*got))
	}
}

func TestPortBackpressure(t *testing.T) {
	tp := newTestPort(t, Config{Device: protocol.DeviceKeyscannerRight, QueueDepth: 2})
	got := tp.record(protocol.CmdHasKeys)

	for i := 1; i <= 4; i++ {
		if err := tp.half.send(protocol.CmdHasKeys, []byte{uint8(i)}); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
	}
	if err := tp.half.send(protocol.CmdHasKeys, []byte{5}); err != link.ErrBusy {
		t.Fatalf("Expected ErrBusy with every buffer full, got %v", err)
	}

	tp.port.Run()
	tp.port.Run()

	tp.half.m.Poll()
	if err := tp.half.send(protocol.CmdHasKeys, []byte{5}); err != nil {
		t.Fatalf("Resend 5 failed: %v", err)
	}
	tp.port.Run()

	if len(*got) != 5 {
		t.Fatalf("Expected 5 packets, got %d", len(*got))
	}
	for i, pkt := range *got {
		if pkt.Payload()[0] != uint8(i+1) {
			t.Errorf("Expected packet %d, got %d", i+1, pkt.Payload()[0])
		}
	}
}

func TestPortChecksumDrop(t *testing.T) {
	tp := newTestPort(t, Config{Device: protocol.DeviceKeyscannerRight, Checksum: true})
	got := tp.record(protocol.CmdHasKeys)

	tp.half.send(protocol.CmdHasKeys, []byte{1})

	bad, _ := protocol.NewPacket(protocol.CmdHasKeys, protocol.DeviceKeyscannerRight, []byte{2})
	frame := protocol.AppendChecksum(nil, &bad)
	frame[protocol.HeaderSize] ^= 0x40
	if err := tp.half.m.Send(frame); err != nil {
		t.Fatalf("Send of corrupt frame failed: %v", err)
	}

	tp.half.send(protocol.CmdHasKeys, []byte{3})
	tp.port.Run()

	if len(*got) != 2 {
		t.Fatalf("Expected 2 packets, got %d", len(*got))
	}
	if (*got)[0].Payload()[0] != 1 || (*got)[1].Payload()[0] != 3 {
		t.Errorf("Expected packets 1 and 3, got %d and %d", (*got)[0].Payload()[0], (*got)[1].Payload()[0])
	}
	if tp.port.Stats().ChecksumErrors != 1 {
		t.Errorf("Expected 1 checksum error, got %d", tp.port.Stats().ChecksumErrors)
	}
}

func TestPortChecksumOutgoing(t *testing.T) {
	tp := newTestPort(t, Config{Device: protocol.DeviceKeyscannerRight, Checksum: true})

	pkt, _ := protocol.NewPacket(protocol.CmdSetBrightness, protocol.DeviceNeuronWired, protocol.Brightness(80))
	tp.port.SendPacket(pkt)
	tp.port.Run()

	rx := tp.half.receive()
	if len(rx) != 1 || rx[0].Command() != protocol.CmdSetBrightness {
		t.Fatalf("Expected one checksummed SET_BRIGHTNESS, got %v", rx)
	}
}

func TestPortBadSizeIsLineFault(t *testing.T) {
	tp := newTestPort(t, Config{Device: protocol.DeviceKeyscannerRight})

	raw := make([]byte, protocol.PacketSize)
	raw[protocol.PositionCommand] = uint8(protocol.CmdHasKeys)
	raw[protocol.PositionDevice] = uint8(protocol.DeviceKeyscannerRight)
	raw[protocol.PositionSize] = protocol.MaxPayload + 1
	tp.half.m.Send(raw)
	if st := tp.port.Stats(); st.LineFaults != 1 || st.Recoveries != 0 {
		t.Errorf("Expected the recovery left to Run, got %+v", st)
	}
	tp.port.Run()

	st := tp.port.Stats()
	if st.LineFaults != 1 || st.Recoveries != 1 {
		t.Errorf("Expected a line fault and a recovery, got %+v", st)
	}
	if tp.port.Link().State() != link.Listening {
		t.Errorf("Expected link listening after recovery, got %v", tp.port.Link().State())
	}
}

func TestPortIsDeadRecovers(t *testing.T) {
	tp := newTestPort(t, Config{Device: protocol.DeviceKeyscannerRight})
	got := tp.record(protocol.CmdIsDead)

	// The reply to the final poll is lost to the recovery
	tp.half.send(protocol.CmdIsDead, nil)
	tp.port.Run()

	if tp.port.Link().Stats().Recoveries != 1 {
		t.Errorf("Expected one link recovery, got %d", tp.port.Link().Stats().Recoveries)
	}
	if len(*got) != 0 {
		t.Error("IS_DEAD must not be dispatched")
	}
}

func TestPortForeignDevice(t *testing.T) {
	tp := newTestPort(t, Config{Device: protocol.DeviceKeyscannerRight})
	got := tp.record(protocol.CmdHasKeys)

	tp.half.dev = protocol.DeviceKeyscannerLeft
	tp.half.send(protocol.CmdHasKeys, []byte{1})
	tp.port.Run()

	if len(*got) != 0 {
		t.Error("Packet from the wrong half was dispatched")
	}
	if tp.port.Stats().ForeignDevice != 1 {
		t.Errorf("Expected 1 foreign packet, got %d", tp.port.Stats().ForeignDevice)
	}
	if tp.port.Active() {
		t.Error("A foreign packet must not count as liveness")
	}
}

func TestPortLearnsRemote(t *testing.T) {
	tp := newTestPort(t, Config{})

	if tp.port.Remote() != protocol.DeviceUnknown {
		t.Fatalf("Expected unknown remote, got %v", tp.port.Remote())
	}
	tp.half.dev = protocol.DeviceKeyscannerLeft
	tp.half.send(protocol.CmdIsAlive, nil)
	tp.port.Run()

	if tp.port.Remote() != protocol.DeviceKeyscannerLeft {
		t.Errorf("Expected remote left, got %v", tp.port.Remote())
	}
	if len(tp.events) != 1 || tp.events[0].dev != protocol.DeviceKeyscannerLeft {
		t.Errorf("Expected liveness for the left half, got %v", tp.events)
	}
}

func TestPortStickyRepush(t *testing.T) {
	tp := newTestPort(t, Config{Device: protocol.DeviceKeyscannerRight})

	tp.half.send(protocol.CmdIsAlive, nil)
	tp.port.Run()

	send := func(cmd protocol.Command, payload ...byte) {
		pkt, _ := protocol.NewPacket(cmd, protocol.DeviceNeuronWired, payload)
		tp.port.SendPacket(pkt)
	}
	send(protocol.CmdSetBrightness, 50)
	send(protocol.CmdSetModeLED, protocol.SolidColor{G: 255}.Bytes()...)
	send(protocol.CmdSetLayerKeymapColors, 0, 1, 2)
	send(protocol.CmdSetLayerKeymapColors, 1, 3, 4)
	send(protocol.CmdSetBrightness, 80)
	send(protocol.CmdSetLED, 7)
	tp.port.Run()
	if rx := tp.half.receive(); len(rx) != 6 {
		t.Fatalf("Expected 6 packets before disconnect, got %d", len(rx))
	}

	tp.clock.Advance(DefaultAliveTimeout + 1)
	tp.port.Run()
	if tp.port.Active() {
		t.Fatal("Expected disconnect")
	}
	tp.half.receive()

	tp.half.send(protocol.CmdIsAlive, nil)
	tp.port.Run()

	var rx []protocol.Packet
	for _, pkt := range tp.half.receive() {
		if pkt.Command() != protocol.CmdIsAlive {
			rx = append(rx, pkt)
		}
	}
	want := []struct {
		cmd   protocol.Command
		first uint8
	}{
		{protocol.CmdSetBrightness, 80},
		{protocol.CmdSetModeLED, protocol.LEDModeSolidColor},
		{protocol.CmdSetLayerKeymapColors, 0},
		{protocol.CmdSetLayerKeymapColors, 1},
	}
	if len(rx) != len(want) {
		t.Fatalf("Expected %d sticky packets, got %d", len(want), len(rx))
	}
	for i, w := range want {
		if rx[i].Command() != w.cmd || rx[i].Payload()[0] != w.first {
			t.Errorf("Expected %v/%d at %d, got %v/%d", w.cmd, w.first, i, rx[i].Command(), rx[i].Payload()[0])
		}
	}
}

func TestPortSetAliveInterval(t *testing.T) {
	tp := newTestPort(t, Config{Device: protocol.DeviceKeyscannerRight})

	if err := tp.port.SetAliveInterval(500, 0); err != protocol.ErrAliveInterval {
		t.Errorf("Expected ErrAliveInterval, got %v", err)
	}
	if err := tp.port.SetAliveInterval(20, 5); err != nil {
		t.Fatalf("SetAliveInterval failed: %v", err)
	}
	tp.port.Run()

	rx := tp.half.receive()
	if len(rx) != 1 || rx[0].Command() != protocol.CmdSetAliveInterval {
		t.Fatalf("Expected SET_ALIVE_INTERVAL, got %v", rx)
	}
	base, variation, err := protocol.DecodeAliveInterval(rx[0].Payload())
	if err != nil || base != 20 || variation != 5 {
		t.Errorf("Expected 20/5, got %d/%d (%v)", base, variation, err)
	}
}

func TestPortTxFull(t *testing.T) {
	tp := newTestPort(t, Config{Device: protocol.DeviceKeyscannerRight, QueueDepth: 1})

	pkt, _ := protocol.NewPacket(protocol.CmdSetLED, protocol.DeviceNeuronWired, nil)
	if !tp.port.SendPacket(pkt) {
		t.Fatal("Expected first packet accepted")
	}
	if tp.port.SendPacket(pkt) {
		t.Error("Expected full queue to refuse")
	}
	if tp.port.Stats().TxFull != 1 {
		t.Errorf("Expected TxFull 1, got %d", tp.port.Stats().TxFull)
	}
}

func TestPortMonitor(t *testing.T) {
	var dirs []Direction
	tp := newTestPort(t, Config{
		Device:  protocol.DeviceKeyscannerRight,
		Monitor: func(dir Direction, p *protocol.Packet) { dirs = append(dirs, dir) },
	})

	pkt, _ := protocol.NewPacket(protocol.CmdSetLED, protocol.DeviceNeuronWired, nil)
	tp.port.SendPacket(pkt)
	tp.half.send(protocol.CmdHasKeys, []byte{1})
	tp.port.Run()

	if len(dirs) != 2 || dirs[0] != DirTx || dirs[1] != DirRx {
		t.Errorf("Expected [tx rx], got %v", dirs)
	}
}

func TestPortTimeoutNeedsLongerSilence(t *testing.T) {
	tp := newTestPort(t, Config{Device: protocol.DeviceKeyscannerRight})

	tp.half.send(protocol.CmdIsAlive, nil)
	tp.port.Run()
	if !tp.port.Active() {
		t.Fatal("Expected port active after IS_ALIVE")
	}

	tp.clock.Advance(DefaultAliveTimeout)
	tp.port.Run()
	if !tp.port.Active() {
		t.Error("Expected port still active at exactly the timeout")
	}
	tp.clock.Advance(1)
	tp.port.Run()
	if tp.port.Active() {
		t.Error("Expected port inactive once the timeout is exceeded")
	}
}

func TestPortRetriesStalledLink(t *testing.T) {
	tp := newTestPort(t, Config{Device: protocol.DeviceKeyscannerRight})

	tp.periph.FailConfigure = 1
	tp.periph.Master().Glitch([]byte{2, uint8(link.MsgMasterDataSendStart)}, 1)
	if !tp.port.Link().Stalled() {
		t.Fatal("Expected the link stalled after a failed recovery")
	}

	tp.port.Run()
	if tp.port.Link().Stalled() || tp.port.Link().State() != link.Listening {
		t.Fatalf("Expected LISTENING after Run, got %v", tp.port.Link().State())
	}
	if tp.port.Stats().Recoveries != 1 {
		t.Errorf("Expected one port recovery, got %d", tp.port.Stats().Recoveries)
	}

	got := tp.record(protocol.CmdHasKeys)
	if err := tp.half.send(protocol.CmdHasKeys, []byte{9}); err != nil {
		t.Fatalf("Send after retry failed: %v", err)
	}
	tp.port.Run()
	if len(*got) != 1 {
		t.Errorf("Expected 1 HAS_KEYS after retry, got %d", len(*got))
	}
}

// wireBus marks the time spent inside a transaction, which is when the
// chip-select completion and the event handler run
type wireBus struct {
	bus    *sim.Bus
	inside bool
}

func (w *wireBus) Transfer(tx, rx []byte) error {
	w.inside = true
	defer func() { w.inside = false }()
	return w.bus.Transfer(tx, rx)
}

// wireLog keeps the messages logged while a transaction is in progress
type wireLog struct {
	bus  *wireBus
	msgs *[]string
}

func (h wireLog) Enabled(context.Context, slog.Level) bool { return true }

func (h wireLog) Handle(_ context.Context, r slog.Record) error {
	if h.bus.inside {
		*h.msgs = append(*h.msgs, r.Message)
	}
	return nil
}

func (h wireLog) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h wireLog) WithGroup(string) slog.Handler      { return h }

func TestPortRecoversOutsideEventHandler(t *testing.T) {
	periph := sim.NewPeripheral()
	bus := &wireBus{bus: periph.Master()}
	var msgs []string
	logger := slog.New(wireLog{bus: bus, msgs: &msgs})

	slave := link.NewSlave(periph, sim.NewGPIO(), link.Config{Line: 0, Mode: 1, ResetPin: 22, Logger: logger})
	port := NewPort(slave, &core.ManualClock{}, nil, Config{Device: protocol.DeviceKeyscannerRight, Logger: logger})
	if err := slave.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h := &half{t: t, m: link.NewMaster(bus, 0), dev: protocol.DeviceKeyscannerRight}
	h.send(protocol.CmdIsDead, nil)
	if slave.Stats().Recoveries != 0 {
		t.Error("Expected no recovery from the event handler")
	}

	port.Run()
	if slave.Stats().Recoveries != 1 {
		t.Errorf("Expected one recovery from Run, got %d", slave.Stats().Recoveries)
	}
	if len(msgs) != 0 {
		t.Errorf("Expected nothing logged during a transaction, got %v", msgs)
	}
}
