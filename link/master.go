package link

// Bus is a full-duplex SPI master. Transfer clocks len(tx) bytes and fills
// rx, which has the same length, with what the slave shifted out.
type Bus interface {
	Transfer(tx, rx []byte) error
}

// Master drives the keyscanner end of a link. Every transaction clocks a
// full message frame; the reply to a request arrives in the next
// transaction, so each operation ends with a poll that collects it.
type Master struct {
	bus    Bus
	tx, rx []byte
	status MsgType
}

// NewMaster creates a master clocking frames of messageSizeMax bytes
func NewMaster(bus Bus, messageSizeMax int) *Master {
	if messageSizeMax == 0 {
		messageSizeMax = DefaultMessageSizeMax
	}
	return &Master{
		bus: bus,
		tx:  make([]byte, messageSizeMax),
		rx:  make([]byte, messageSizeMax),
	}
}

// MaxPayload is the largest payload Send accepts
func (m *Master) MaxPayload() int {
	return len(m.tx) - ControlHeaderSize
}

// Status is the last idle status reported by the slave
func (m *Master) Status() MsgType {
	return m.status
}

// DataReady reports whether the slave last said it has a message for us
func (m *Master) DataReady() bool {
	return m.status == ResultDataReady
}

func (m *Master) exchange(t MsgType, payload []byte) (MsgType, error) {
	for i := range m.tx {
		m.tx[i] = 0
	}
	m.tx[positionLen] = uint8(ControlHeaderSize + len(payload))
	m.tx[positionType] = uint8(t)
	copy(m.tx[ControlHeaderSize:], payload)

	if err := m.bus.Transfer(m.tx, m.rx); err != nil {
		return 0, err
	}
	reply := MsgType(m.rx[positionType])
	if reply.IsIgnored() {
		return reply, ErrNoSlave
	}
	if reply == ResultReady || reply == ResultDataReady {
		m.status = reply
	}
	return reply, nil
}

// Poll clocks an idle transaction and returns the slave's reply
func (m *Master) Poll() (MsgType, error) {
	return m.exchange(ResultReady, nil)
}

// Send pushes one message to the slave. A nil error means the slave
// accepted it, possibly with OK_BUSY; ErrBusy means it was not accepted and
// may be retried.
func (m *Master) Send(payload []byte) error {
	if len(payload) > m.MaxPayload() {
		return ErrTooLarge
	}
	if _, err := m.exchange(MsgMasterDataSendStart, nil); err != nil {
		return err
	}
	reply, err := m.exchange(MsgData, payload)
	if err != nil {
		return err
	}
	if err := replyError(reply); err != nil {
		return err
	}
	reply, err = m.Poll()
	if err != nil {
		return err
	}
	if reply == ResultOKBusy {
		m.status = ResultOKBusy
		return nil
	}
	return replyError(reply)
}

// Receive pulls the slave's pending message into p. It returns 0 when the
// slave had nothing queued.
func (m *Master) Receive(p []byte) (int, error) {
	if _, err := m.exchange(MsgMasterDataRecvStart, nil); err != nil {
		return 0, err
	}
	reply, err := m.Poll()
	if err != nil {
		return 0, err
	}
	if reply != MsgData {
		if err := replyError(reply); err != nil {
			return 0, err
		}
		return 0, ErrBadReply
	}

	msgLen := int(m.rx[positionLen])
	if msgLen < ControlHeaderSize || msgLen > len(m.rx) {
		return 0, ErrBadReply
	}
	n := msgLen - ControlHeaderSize
	if n > len(p) {
		return 0, ErrShortBuffer
	}
	copy(p, m.rx[ControlHeaderSize:msgLen])
	m.status = ResultReady
	return n, nil
}

func replyError(reply MsgType) error {
	switch reply {
	case ResultOK:
		return nil
	case ResultBusy, ResultOKBusy:
		return ErrBusy
	case ResultErr:
		return ErrNak
	}
	return ErrBadReply
}
