package protocol

// Scratch is a fixed-size payload buffer owned by a single module engine
type Scratch struct {
	buf [ChainComMaxLen]byte
	pos int
}

// NewScratch creates a new, empty Scratch
func NewScratch() *Scratch {
	return &Scratch{pos: 0}
}

// Output appends data, truncating at capacity. Returns the bytes copied.
func (s *Scratch) Output(data []byte) int {
	n := copy(s.buf[s.pos:], data)
	s.pos += n
	return n
}

// Append stores one byte. Returns false when the buffer is full.
func (s *Scratch) Append(b byte) bool {
	if s.pos >= len(s.buf) {
		return false
	}
	s.buf[s.pos] = b
	s.pos++
	return true
}

func (s *Scratch) CurPosition() int {
	return s.pos
}

// At returns the byte at position i, or 0 beyond the written data
func (s *Scratch) At(i int) byte {
	if i < 0 || i >= s.pos {
		return 0
	}
	return s.buf[i]
}

// Free returns the unused capacity
func (s *Scratch) Free() []byte {
	return s.buf[s.pos:]
}

// Advance marks n bytes written directly into Free()
func (s *Scratch) Advance(n int) {
	s.pos += n
	if s.pos > len(s.buf) {
		s.pos = len(s.buf)
	}
}

// Result returns the accumulated data
func (s *Scratch) Result() []byte {
	return s.buf[:s.pos]
}

// Reset clears the buffer
func (s *Scratch) Reset() {
	s.pos = 0
}

// FifoBuffer is a ring buffer between the serial reader and the
// transaction code. It holds exactly its capacity; Write drops what does
// not fit.
type FifoBuffer struct {
	buf   []byte
	head  int // next byte to read
	count int
}

// NewFifoBuffer creates a new FifoBuffer with the specified capacity
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write appends data and returns the number of bytes stored
func (f *FifoBuffer) Write(data []byte) int {
	n := min(len(data), f.Free())
	tail := (f.head + f.count) % len(f.buf)
	copied := copy(f.buf[tail:], data[:n])
	copy(f.buf, data[copied:n])
	f.count += n
	return n
}

// Read moves up to len(data) bytes out of the buffer
func (f *FifoBuffer) Read(data []byte) int {
	n := min(len(data), f.count)
	copied := copy(data[:n], f.buf[f.head:])
	copy(data[copied:n], f.buf)
	f.head = (f.head + n) % len(f.buf)
	f.count -= n
	return n
}

// Available returns the number of bytes available for reading
func (f *FifoBuffer) Available() int {
	return f.count
}

// Free returns the number of bytes available for writing
func (f *FifoBuffer) Free() int {
	return len(f.buf) - f.count
}

// IsEmpty returns true if the buffer is empty
func (f *FifoBuffer) IsEmpty() bool {
	return f.count == 0
}

// Reset clears the buffer
func (f *FifoBuffer) Reset() {
	f.head = 0
	f.count = 0
}
