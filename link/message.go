package link

// ControlHeaderSize is the {len, type} header in front of every link message
const ControlHeaderSize = 2

// Position of each header field in a link message
const (
	positionLen  = 0
	positionType = 1
)

// MsgType is the type byte of a link control message
type MsgType uint8

// Requests from the master
const (
	MsgMasterDataSendStart MsgType = 0x01
	MsgMasterDataRecvStart MsgType = 0x02
	MsgData                MsgType = 0x03
)

// Results from the slave. The master also sends a result type as an idle
// poll.
const (
	ResultOK        MsgType = 0x80
	ResultErr       MsgType = 0x81
	ResultReady     MsgType = 0x82
	ResultOKBusy    MsgType = 0x83
	ResultBusy      MsgType = 0x84
	ResultDataReady MsgType = 0x85
)

// Line idle levels. A slave that is not armed, or is unplugged, reads back
// as one of these.
const (
	MsgIgnoredLow  MsgType = 0x00
	MsgIgnoredHigh MsgType = 0xFF
)

// IsResult reports whether t is in the slave result range
func (t MsgType) IsResult() bool {
	return t >= ResultOK && t <= ResultDataReady
}

// IsIgnored reports whether t is an idle line level rather than a message
func (t MsgType) IsIgnored() bool {
	return t == MsgIgnoredLow || t == MsgIgnoredHigh
}

func (t MsgType) String() string {
	switch t {
	case MsgMasterDataSendStart:
		return "SEND_START"
	case MsgMasterDataRecvStart:
		return "RECV_START"
	case MsgData:
		return "DATA"
	case ResultOK:
		return "OK"
	case ResultErr:
		return "ERR"
	case ResultReady:
		return "READY"
	case ResultOKBusy:
		return "OK_BUSY"
	case ResultBusy:
		return "BUSY"
	case ResultDataReady:
		return "DATA_READY"
	case MsgIgnoredLow, MsgIgnoredHigh:
		return "IGNORED"
	}
	return "MSG_" + hex2(uint8(t))
}

// composeResult replaces the buffer contents with a bare result message
func composeResult(b *Buffer, t MsgType) {
	b.Recycle()
	_ = b.Add([]byte{ControlHeaderSize, uint8(t)})
}

// composeData replaces the buffer contents with a DATA message carrying p
func composeData(b *Buffer, p []byte) {
	assert(ControlHeaderSize+len(p) <= b.Cap(), "data message larger than buffer")
	b.Recycle()
	if ControlHeaderSize+len(p) > b.Cap() {
		p = p[:b.Cap()-ControlHeaderSize]
	}
	_ = b.Add([]byte{uint8(ControlHeaderSize + len(p)), uint8(MsgData)})
	_ = b.Add(p)
}

func hex2(b uint8) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[b>>4], digits[b&0x0F]})
}
