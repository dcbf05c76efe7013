// Package neuron talks to the Neuron firmware's USB bridge from a host
package neuron

import (
	"errors"
	"fmt"
	"io"

	"defylink/bridge"
	"defylink/host/serial"
	"defylink/protocol"
)

var ErrClosed = errors.New("neuron connection closed")

// Conn decodes bridge frames from the Neuron and sends inject frames to it
type Conn struct {
	port   io.ReadWriteCloser
	dec    *bridge.Decoder
	w      *bridge.Writer
	buf    []byte
	queue  []bridge.Frame
	closed bool

	// follow retries io.EOF, which a serial port returns on read timeout
	follow bool
}

// NewConn wraps an open port
func NewConn(port io.ReadWriteCloser) *Conn {
	return &Conn{
		port: port,
		dec:  bridge.NewDecoder(4096),
		w:    bridge.NewWriter(port),
		buf:  make([]byte, 512),
	}
}

// Connect opens the Neuron's serial device
func Connect(device string) (*Conn, error) {
	port, err := serial.Open(serial.DefaultConfig(device))
	if err != nil {
		return nil, err
	}
	c := NewConn(port)
	c.follow = true
	return c, nil
}

func (c *Conn) Close() error {
	c.closed = true
	return c.port.Close()
}

// ReadFrame blocks until the next complete frame arrives. Read timeouts on
// the port are retried.
func (c *Conn) ReadFrame() (bridge.Frame, error) {
	for len(c.queue) == 0 {
		if c.closed {
			return bridge.Frame{}, ErrClosed
		}
		n, err := c.port.Read(c.buf)
		if n > 0 {
			c.dec.Feed(c.buf[:n], func(f bridge.Frame) {
				payload := append([]byte(nil), f.Payload...)
				c.queue = append(c.queue, bridge.Frame{Kind: f.Kind, Payload: payload})
			})
		}
		if err != nil && err != io.EOF {
			return bridge.Frame{}, fmt.Errorf("read from neuron: %w", err)
		}
		if err == io.EOF && !c.follow && n == 0 && len(c.queue) == 0 {
			return bridge.Frame{}, io.EOF
		}
	}
	f := c.queue[0]
	c.queue = c.queue[1:]
	return f, nil
}

// Inject asks the Neuron to queue a packet on one of its links
func (c *Conn) Inject(linkIndex uint8, cmd protocol.Command, payload []byte) error {
	pkt, err := protocol.NewPacket(cmd, protocol.DeviceNeuronWired, payload)
	if err != nil {
		return err
	}
	if err := c.w.Packet(bridge.KindInject, linkIndex, &pkt); err != nil {
		return fmt.Errorf("inject %s: %w", cmd, err)
	}
	return nil
}

// Stats returns the frame decoder counters
func (c *Conn) Stats() bridge.DecoderStats {
	return c.dec.Stats()
}
