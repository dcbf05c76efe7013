package bridge

import (
	"io"
	"sync"

	"defylink/protocol"
)

// Writer encodes frames onto a byte stream. It is safe to use from both
// cores; each frame is written with a single Write call.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	buf []byte
	rec []byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:   w,
		buf: make([]byte, 0, MaxFrame),
		rec: make([]byte, 0, MaxPayload),
	}
}

// Frame writes one frame of the given kind
func (w *Writer) Frame(kind Kind, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frame(kind, payload)
}

func (w *Writer) frame(kind Kind, payload []byte) error {
	var err error
	w.buf, err = AppendFrame(w.buf[:0], kind, payload)
	if err != nil {
		return err
	}
	_, err = w.w.Write(w.buf)
	return err
}

// Packet writes a KindRx, KindTx or KindInject frame
func (w *Writer) Packet(kind Kind, linkIndex uint8, p *protocol.Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	r := PacketRecord{Link: linkIndex, Packet: *p}
	w.rec = r.Append(w.rec[:0])
	return w.frame(kind, w.rec)
}

func (w *Writer) Liveness(r LivenessRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rec = r.Append(w.rec[:0])
	return w.frame(KindLiveness, w.rec)
}

func (w *Writer) Stats(r StatsRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rec = r.Append(w.rec[:0])
	return w.frame(KindStats, w.rec)
}

// LogWriter returns an io.Writer that wraps each write in KindLog frames,
// so debug output can share the stream with traffic frames
func (w *Writer) LogWriter() io.Writer {
	return logWriter{w}
}

type logWriter struct {
	w *Writer
}

func (l logWriter) Write(p []byte) (int, error) {
	n := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > MaxPayload {
			chunk = chunk[:MaxPayload]
		}
		if err := l.w.Frame(KindLog, chunk); err != nil {
			return n, err
		}
		n += len(chunk)
		p = p[len(chunk):]
	}
	return n, nil
}
