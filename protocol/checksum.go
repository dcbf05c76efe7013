package protocol

import (
	"errors"

	"github.com/sigurn/crc8"
)

// ChecksumFrameSize is a packet followed by its CRC-8 trailer
const ChecksumFrameSize = PacketSize + 1

var ErrChecksum = errors.New("packet checksum mismatch")

var crcTable = crc8.MakeTable(crc8.CRC8)

// Checksum returns the CRC-8 of a packet's wire bytes
func Checksum(p *Packet) uint8 {
	return crc8Of(p[:])
}

// AppendChecksum returns the packet bytes with the CRC-8 trailer appended
func AppendChecksum(dst []byte, p *Packet) []byte {
	dst = append(dst, p[:]...)
	return append(dst, Checksum(p))
}

// VerifyChecksum decodes a checksummed frame. The size field is validated
// after the checksum, so a corrupt frame reports ErrChecksum.
func VerifyChecksum(b []byte) (Packet, error) {
	if len(b) < ChecksumFrameSize {
		return Packet{}, ErrShortPacket
	}
	if crc8Of(b[:PacketSize]) != b[PacketSize] {
		return Packet{}, ErrChecksum
	}
	return DecodePacket(b[:PacketSize])
}

func crc8Of(b []byte) uint8 {
	return crc8.Checksum(b, crcTable)
}
