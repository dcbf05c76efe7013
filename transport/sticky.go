package transport

import "defylink/protocol"

// LED state commands whose latest value is re-sent after a reconnect
func isSticky(cmd protocol.Command) bool {
	switch cmd {
	case protocol.CmdSetBrightness,
		protocol.CmdSetModeLED,
		protocol.CmdSetPaletteColors,
		protocol.CmdSetLayerKeymapColors,
		protocol.CmdSetLayerUnderglowColors:
		return true
	}
	return false
}

func keyOf(pkt *protocol.Packet) stickyKey {
	k := stickyKey{cmd: pkt.Command()}
	switch k.cmd {
	case protocol.CmdSetLayerKeymapColors, protocol.CmdSetLayerUnderglowColors:
		if payload := pkt.Payload(); len(payload) > 0 {
			k.index = payload[0]
		}
	}
	return k
}

// remember replaces the stored value for the packet's key, keeping the
// order in which keys were first seen
func (p *Port) remember(pkt protocol.Packet) {
	p.stickyMu.Lock()
	defer p.stickyMu.Unlock()

	k := keyOf(&pkt)
	for i := range p.keys {
		if p.keys[i] == k {
			p.sticky[i] = pkt
			return
		}
	}
	p.keys = append(p.keys, k)
	p.sticky = append(p.sticky, pkt)
}

// Sticky returns a copy of the remembered LED state
func (p *Port) Sticky() []protocol.Packet {
	p.stickyMu.Lock()
	defer p.stickyMu.Unlock()
	return append([]protocol.Packet(nil), p.sticky...)
}

func (p *Port) repush() {
	for _, pkt := range p.Sticky() {
		if !p.tx.Push(pkt) {
			p.stats.txFull.Add(1)
			p.log.Warn("sticky state dropped", "cmd", pkt.Command().String())
			return
		}
	}
}
