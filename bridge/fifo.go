package bridge

// fifo is a circular byte buffer for the serial side of the bridge. One
// slot stays empty to tell full from empty.
type fifo struct {
	buf   []byte
	read  int
	write int
	size  int
}

func newFifo(capacity int) *fifo {
	return &fifo{
		buf:  make([]byte, capacity),
		size: capacity,
	}
}

// Write appends as much of data as fits and returns the count written
func (f *fifo) Write(data []byte) int {
	written := 0
	for _, b := range data {
		nextWrite := (f.write + 1) % f.size
		if nextWrite == f.read {
			break
		}
		f.buf[f.write] = b
		f.write = nextWrite
		written++
	}
	return written
}

func (f *fifo) Available() int {
	if f.write >= f.read {
		return f.write - f.read
	}
	return f.size - f.read + f.write
}

func (f *fifo) Free() int {
	return f.size - f.Available() - 1
}

// Data returns the buffered bytes as one slice. A wrapped buffer is copied
// so frames can be parsed contiguously.
func (f *fifo) Data() []byte {
	if f.read <= f.write {
		return f.buf[f.read:f.write]
	}
	result := make([]byte, f.Available())
	firstLen := f.size - f.read
	copy(result, f.buf[f.read:])
	copy(result[firstLen:], f.buf[:f.write])
	return result
}

// Pop removes n bytes from the front
func (f *fifo) Pop(n int) {
	if avail := f.Available(); n > avail {
		n = avail
	}
	f.read = (f.read + n) % f.size
}

func (f *fifo) Reset() {
	f.read = 0
	f.write = 0
}
