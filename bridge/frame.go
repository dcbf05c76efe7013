// Package bridge frames link traffic for the USB serial connection between
// the Neuron and a host monitor.
//
// A frame is a sync byte, a kind, a payload length, the payload and a
// big-endian CRC16 over kind, length and payload. The decoder drops bytes
// until it finds a sync byte that starts a valid frame, so a host can attach
// mid-stream.
package bridge

import (
	"bytes"
	"errors"

	"defylink/core"
	"defylink/protocol"
)

const (
	SyncByte    = 0x7E
	HeaderSize  = 3 // sync, kind, len
	TrailerSize = 2 // CRC16
	MaxPayload  = 255
	MaxFrame    = HeaderSize + MaxPayload + TrailerSize

	positionKind = 1
	positionLen  = 2
)

var (
	ErrFrameTooLarge = errors.New("bridge payload larger than a frame")
	ErrShortRecord   = errors.New("bridge record too short")
)

// Kind tells what a frame carries
type Kind uint8

const (
	KindRx       Kind = iota + 1 // Neuron to host: packet received on a link
	KindTx                       // Neuron to host: packet queued on a link
	KindLiveness                 // Neuron to host: remote went active or inactive
	KindStats                    // Neuron to host: link and port counters
	KindInject                   // Host to Neuron: packet to queue on a link
	KindLog                      // Neuron to host: one line of debug output
)

func (k Kind) String() string {
	switch k {
	case KindRx:
		return "rx"
	case KindTx:
		return "tx"
	case KindLiveness:
		return "liveness"
	case KindStats:
		return "stats"
	case KindInject:
		return "inject"
	case KindLog:
		return "log"
	}
	return "kind-" + core.Hex([]byte{uint8(k)})
}

// Frame is one decoded bridge frame. Payload aliases decoder storage and
// is valid until the next call to Next.
type Frame struct {
	Kind    Kind
	Payload []byte
}

// AppendFrame encodes one frame onto dst
func AppendFrame(dst []byte, kind Kind, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return dst, ErrFrameTooLarge
	}
	start := len(dst)
	dst = append(dst, SyncByte, uint8(kind), uint8(len(payload)))
	dst = append(dst, payload...)
	crc := protocol.CRC16(dst[start+positionKind:])
	return append(dst, uint8(crc>>8), uint8(crc)), nil
}

// DecoderStats counts what the decoder saw
type DecoderStats struct {
	Frames    uint32
	CRCErrors uint32
	Dropped   uint32 // Bytes skipped while searching for a sync byte
}

// Decoder reassembles frames from a byte stream
type Decoder struct {
	in      *fifo
	payload [MaxPayload]byte
	stats   DecoderStats
}

// NewDecoder creates a decoder buffering up to capacity bytes. The capacity
// is raised to hold at least two full frames.
func NewDecoder(capacity int) *Decoder {
	if capacity < 2*MaxFrame+1 {
		capacity = 2*MaxFrame + 1
	}
	return &Decoder{in: newFifo(capacity)}
}

func (d *Decoder) Stats() DecoderStats {
	return d.stats
}

// Write buffers stream bytes and returns how many fit
func (d *Decoder) Write(data []byte) int {
	return d.in.Write(data)
}

// Feed buffers data and calls fn for every complete frame, draining as it
// goes so input larger than the buffer is not lost
func (d *Decoder) Feed(data []byte, fn func(Frame)) {
	for len(data) > 0 {
		n := d.in.Write(data)
		data = data[n:]
		for {
			f, ok := d.Next()
			if !ok {
				break
			}
			fn(f)
		}
		if n == 0 && len(data) > 0 {
			// Full with no complete frame: the buffered bytes are garbage
			d.stats.Dropped += uint32(d.in.Available())
			d.in.Reset()
		}
	}
}

// Next returns the next complete frame, or false when more input is needed
func (d *Decoder) Next() (Frame, bool) {
	for {
		data := d.in.Data()
		if len(data) == 0 {
			return Frame{}, false
		}

		if data[0] != SyncByte {
			skip := bytes.IndexByte(data, SyncByte)
			if skip < 0 {
				skip = len(data)
			}
			d.in.Pop(skip)
			d.stats.Dropped += uint32(skip)
			continue
		}

		if len(data) < HeaderSize {
			return Frame{}, false
		}
		n := int(data[positionLen])
		total := HeaderSize + n + TrailerSize
		if len(data) < total {
			return Frame{}, false
		}

		want := uint16(data[total-2])<<8 | uint16(data[total-1])
		if protocol.CRC16(data[positionKind:HeaderSize+n]) != want {
			// Drop this sync byte and look for the next one
			d.in.Pop(1)
			d.stats.CRCErrors++
			d.stats.Dropped++
			continue
		}

		f := Frame{
			Kind:    Kind(data[positionKind]),
			Payload: d.payload[:n],
		}
		copy(f.Payload, data[HeaderSize:HeaderSize+n])
		d.in.Pop(total)
		d.stats.Frames++
		return f, true
	}
}
