package bridge

import (
	"encoding/binary"

	"defylink/link"
	"defylink/protocol"
	"defylink/transport"
)

// PacketRecord is the payload of KindRx, KindTx and KindInject frames. Only
// the meaningful bytes of the packet are carried.
type PacketRecord struct {
	Link   uint8
	Packet protocol.Packet
}

func (r *PacketRecord) Append(dst []byte) []byte {
	dst = append(dst, r.Link)
	return append(dst, r.Packet[:protocol.HeaderSize+r.Packet.Size()]...)
}

func DecodePacketRecord(b []byte) (PacketRecord, error) {
	if len(b) < 1+protocol.HeaderSize {
		return PacketRecord{}, ErrShortRecord
	}
	pkt, err := protocol.DecodePacket(b[1:])
	if err != nil {
		return PacketRecord{}, err
	}
	return PacketRecord{Link: b[0], Packet: pkt}, nil
}

// LivenessRecord is the payload of KindLiveness frames
type LivenessRecord struct {
	Link   uint8
	Device protocol.Device
	Active bool
}

func (r *LivenessRecord) Append(dst []byte) []byte {
	active := uint8(0)
	if r.Active {
		active = 1
	}
	return append(dst, r.Link, uint8(r.Device), active)
}

func DecodeLivenessRecord(b []byte) (LivenessRecord, error) {
	if len(b) < 3 {
		return LivenessRecord{}, ErrShortRecord
	}
	return LivenessRecord{Link: b[0], Device: protocol.Device(b[1]), Active: b[2] != 0}, nil
}

// StatsRecord is the payload of KindStats frames
type StatsRecord struct {
	Link uint8
	Port transport.Stats
	Line link.Stats
}

const statsCounters = 20

func (r *StatsRecord) counters() [statsCounters]*uint32 {
	return [statsCounters]*uint32{
		&r.Port.Received, &r.Port.Dispatched, &r.Port.Sent, &r.Port.KeepAlives,
		&r.Port.TxFull, &r.Port.LineFaults, &r.Port.ChecksumErrors, &r.Port.ForeignDevice,
		&r.Port.LinkFaults, &r.Port.Recoveries, &r.Port.Connects, &r.Port.Disconnects,
		&r.Line.Transfers, &r.Line.Received, &r.Line.Sent, &r.Line.Busy,
		&r.Line.Saturated, &r.Line.Errors, &r.Line.Faults, &r.Line.Recoveries,
	}
}

func (r *StatsRecord) Append(dst []byte) []byte {
	dst = append(dst, r.Link, uint8(r.Line.LastFault))
	for _, c := range r.counters() {
		dst = binary.LittleEndian.AppendUint32(dst, *c)
	}
	return dst
}

func DecodeStatsRecord(b []byte) (StatsRecord, error) {
	var r StatsRecord
	if len(b) < 2+4*statsCounters {
		return r, ErrShortRecord
	}
	r.Link = b[0]
	r.Line.LastFault = link.FaultReason(b[1])
	b = b[2:]
	for _, c := range r.counters() {
		*c = binary.LittleEndian.Uint32(b)
		b = b[4:]
	}
	return r, nil
}
