package neuron

import (
	"fmt"
	"strings"

	"defylink/bridge"
)

// Names maps link indexes to labels for display
type Names []string

func (n Names) Link(index uint8) string {
	if int(index) < len(n) && n[index] != "" {
		return n[index]
	}
	return fmt.Sprintf("link%d", index)
}

// Format renders one frame as a single line
func Format(f bridge.Frame, names Names) (string, error) {
	switch f.Kind {
	case bridge.KindRx, bridge.KindTx, bridge.KindInject:
		r, err := bridge.DecodePacketRecord(f.Payload)
		if err != nil {
			return "", err
		}
		arrow := "<-"
		if f.Kind != bridge.KindRx {
			arrow = "->"
		}
		h := r.Packet.Header()
		line := fmt.Sprintf("%-6s %s %-26s dev=%-6s len=%-3d % x",
			names.Link(r.Link), arrow, h.Command, h.Device, h.Size, r.Packet.Payload())
		if h.HasMore {
			line += " +more"
		}
		return line, nil

	case bridge.KindLiveness:
		r, err := bridge.DecodeLivenessRecord(f.Payload)
		if err != nil {
			return "", err
		}
		state := "DOWN"
		if r.Active {
			state = "UP"
		}
		return fmt.Sprintf("%-6s == %s %s", names.Link(r.Link), r.Device, state), nil

	case bridge.KindStats:
		r, err := bridge.DecodeStatsRecord(f.Payload)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%-6s stats rx=%d tx=%d alive=%d xfer=%d busy=%d okbusy=%d err=%d faults=%d(%s) recov=%d crc=%d foreign=%d",
			names.Link(r.Link), r.Port.Dispatched, r.Port.Sent, r.Port.KeepAlives,
			r.Line.Transfers, r.Line.Busy, r.Line.Saturated, r.Line.Errors,
			r.Line.Faults, r.Line.LastFault, r.Line.Recoveries,
			r.Port.ChecksumErrors, r.Port.ForeignDevice), nil

	case bridge.KindLog:
		return "log    " + strings.TrimRight(string(f.Payload), "\r\n"), nil
	}
	return fmt.Sprintf("%s % x", f.Kind, f.Payload), nil
}

// LinkOf returns the link index a frame refers to, or -1 for frames that
// are not tied to a link
func LinkOf(f bridge.Frame) int {
	switch f.Kind {
	case bridge.KindRx, bridge.KindTx, bridge.KindInject, bridge.KindLiveness, bridge.KindStats:
		if len(f.Payload) > 0 {
			return int(f.Payload[0])
		}
	}
	return -1
}
