package protocol

import "errors"

var (
	ErrPayloadTooLarge = errors.New("payload larger than packet")
	ErrShortPacket     = errors.New("packet shorter than header")
	ErrBadSize         = errors.New("packet size field out of range")
)

// Header is the decoded form of the first three packet bytes
type Header struct {
	Command Command
	Device  Device
	Size    uint8 // Payload length, 0..MaxPayload
	HasMore bool  // Sender has another packet queued behind this one
}

// EncodeHeader packs h into the first HeaderSize bytes of dst
func EncodeHeader(dst []byte, h Header) {
	dst[PositionCommand] = uint8(h.Command)
	dst[PositionDevice] = uint8(h.Device)
	b := h.Size & sizeMask
	if h.HasMore {
		b |= hasMoreFlag
	}
	dst[PositionSize] = b
}

// DecodeHeader unpacks the header at the start of src
func DecodeHeader(src []byte) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, ErrShortPacket
	}
	return Header{
		Command: Command(src[PositionCommand]),
		Device:  Device(src[PositionDevice]),
		Size:    src[PositionSize] & sizeMask,
		HasMore: src[PositionSize]&hasMoreFlag != 0,
	}, nil
}

// Packet is one fixed-size frame as it crosses the link.
// Payload bytes past Size are undefined and must not be read.
type Packet [PacketSize]byte

// NewPacket builds a packet with the given command, sender and payload
func NewPacket(cmd Command, dev Device, payload []byte) (Packet, error) {
	var p Packet
	p.SetCommand(cmd)
	p.SetDevice(dev)
	if err := p.SetPayload(payload); err != nil {
		return Packet{}, err
	}
	return p, nil
}

// DecodePacket copies a received frame into a Packet, validating the size field
func DecodePacket(b []byte) (Packet, error) {
	var p Packet
	h, err := DecodeHeader(b)
	if err != nil {
		return p, err
	}
	if int(h.Size) > MaxPayload || HeaderSize+int(h.Size) > len(b) {
		return p, ErrBadSize
	}
	copy(p[:], b)
	return p, nil
}

func (p *Packet) Header() Header {
	h, _ := DecodeHeader(p[:])
	return h
}

func (p *Packet) Command() Command { return Command(p[PositionCommand]) }
func (p *Packet) Device() Device   { return Device(p[PositionDevice]) }
func (p *Packet) Size() int        { return int(p[PositionSize] & sizeMask) }
func (p *Packet) HasMore() bool    { return p[PositionSize]&hasMoreFlag != 0 }

func (p *Packet) SetCommand(c Command) { p[PositionCommand] = uint8(c) }
func (p *Packet) SetDevice(d Device)   { p[PositionDevice] = uint8(d) }

// SetHasMore is owned by the transport; producers leave it alone
func (p *Packet) SetHasMore(more bool) {
	if more {
		p[PositionSize] |= hasMoreFlag
	} else {
		p[PositionSize] &^= hasMoreFlag
	}
}

// SetPayload copies data into the payload area and updates the size field
func (p *Packet) SetPayload(data []byte) error {
	if len(data) > MaxPayload {
		return ErrPayloadTooLarge
	}
	copy(p[HeaderSize:], data)
	p[PositionSize] = p[PositionSize]&hasMoreFlag | uint8(len(data))
	return nil
}

// Payload returns the meaningful payload bytes (aliases the packet)
func (p *Packet) Payload() []byte {
	return p[HeaderSize : HeaderSize+p.Size()]
}

// Bytes returns the full wire representation
func (p *Packet) Bytes() []byte {
	return p[:]
}
