package buffer

import (
	"io"
)

// Buffer is similar to bytes.Buffer but specialized for feeding encoded
// values to a decoder and collecting the output of an encoder.
//
// Bytes are appended at the end and consumed from the front. The zero
// value is an empty buffer ready to use.
type Buffer struct {
	b []byte
	i int
}

// New returns a Buffer reading from b.
func New(b []byte) *Buffer {
	return &Buffer{b: b}
}

// Next returns a slice containing the next n bytes from the buffer
// and advances the buffer.
//
// If there are fewer than n bytes in the buffer, Next returns the
// remaining contents and false. The slice is only valid until the
// next call to a write method.
func (b *Buffer) Next(n int64) ([]byte, bool) {
	if b.readCheck(n) {
		buf := b.b[b.i:len(b.b)]
		b.i = len(b.b)
		return buf, false
	}

	buf := b.b[b.i : b.i+int(n)]
	b.i += int(n)
	return buf, true
}

// Reset resets the buffer to be empty but retains the
// underlying storage for use by future writes.
func (b *Buffer) Reset() {
	b.b = b.b[:0]
	b.i = 0
}

func (b *Buffer) readCheck(n int64) bool {
	return int64(b.i)+n > int64(len(b.b))
}

// ReadFromOnce reads from r to populate the buffer.
// Reads up to 512 bytes from r in a single call.
func (b *Buffer) ReadFromOnce(r io.Reader) error {
	const minRead = 512

	l := len(b.b)
	if cap(b.b)-l < minRead {
		total := l * 2
		if total < minRead {
			total = minRead
		}
		grown := make([]byte, l, l+total)
		copy(grown, b.b)
		b.b = grown
	}

	n, err := r.Read(b.b[l:cap(b.b)])
	b.b = b.b[:l+n]
	return err
}

// Append appends p to the end of the buffer.
func (b *Buffer) Append(p []byte) {
	b.b = append(b.b, p...)
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	return len(b.b) - b.i
}

// Bytes returns the unread portion of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.b[b.i:]
}

// Detach returns the underlying byte slice, disassociating it from the buffer.
func (b *Buffer) Detach() []byte {
	temp := b.b
	b.b = nil
	b.i = 0
	return temp
}

// Write implements io.Writer by appending p.
func (b *Buffer) Write(p []byte) (int, error) {
	b.Append(p)
	return len(p), nil
}
