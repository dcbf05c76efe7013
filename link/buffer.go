package link

import "errors"

var (
	ErrBufferFull  = errors.New("buffer has no room for data")
	ErrBufferShort = errors.New("buffer holds less data than requested")
)

// Buffer is a linear byte region filled from the front and drained in
// order. It never wraps, so DMA can target Tail directly; Recycle starts a
// new generation once a message exchange is complete.
type Buffer struct {
	buf      []byte
	readPos  int
	writePos int
}

// NewBuffer allocates a buffer with the given capacity
func NewBuffer(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, capacity)}
}

func (b *Buffer) Cap() int { return len(b.buf) }

// Load is the number of unread bytes
func (b *Buffer) Load() int { return b.writePos - b.readPos }

// Free is the number of bytes that can still be added. Load+Free == Cap.
func (b *Buffer) Free() int { return len(b.buf) - b.Load() }

// Add appends data. Nothing is written if it does not fit.
func (b *Buffer) Add(data []byte) error {
	if len(data) > b.Free() {
		return ErrBufferFull
	}
	if b.writePos+len(data) > len(b.buf) {
		b.compact()
	}
	b.writePos += copy(b.buf[b.writePos:], data)
	return nil
}

// GetAndDiscard copies len(p) bytes out and consumes them
func (b *Buffer) GetAndDiscard(p []byte) error {
	if len(p) > b.Load() {
		return ErrBufferShort
	}
	b.readPos += copy(p, b.buf[b.readPos:b.writePos])
	return nil
}

// Discard consumes n bytes without copying them
func (b *Buffer) Discard(n int) error {
	if n > b.Load() {
		return ErrBufferShort
	}
	b.readPos += n
	return nil
}

// Bytes returns the unread data, aliasing the buffer
func (b *Buffer) Bytes() []byte {
	return b.buf[b.readPos:b.writePos]
}

// Tail returns the writable region after the data, for DMA targets
func (b *Buffer) Tail() []byte {
	return b.buf[b.writePos:]
}

// Commit accounts for n bytes written into Tail by hardware
func (b *Buffer) Commit(n int) {
	if n > len(b.buf)-b.writePos {
		n = len(b.buf) - b.writePos
	}
	b.writePos += n
}

// Truncate keeps only the first n bytes of the current generation
func (b *Buffer) Truncate(n int) {
	if n < b.readPos {
		n = b.readPos
	}
	if n < b.writePos {
		b.writePos = n
	}
}

// Recycle empties the buffer for the next generation
func (b *Buffer) Recycle() {
	b.readPos = 0
	b.writePos = 0
}

func (b *Buffer) compact() {
	n := copy(b.buf, b.buf[b.readPos:b.writePos])
	b.readPos = 0
	b.writePos = n
}
