package testconn

import (
	"io"
)

// Recorder is a reader that hands out the bytes of an underlying reader
// in fragments. Fragment sizes cycle through the sizes given to
// NewRecorder; each fragment is copied to w followed by a SPLIT line so
// the boundaries of a failing run can be replayed.
type Recorder struct {
	r     io.Reader
	w     io.Writer
	sizes []int
	next  int
}

// NewRecorder returns a Recorder reading from r. w may be nil.
func NewRecorder(w io.Writer, r io.Reader, sizes ...int) *Recorder {
	return &Recorder{
		r:     r,
		w:     w,
		sizes: sizes,
	}
}

func (r *Recorder) Read(b []byte) (int, error) {
	if len(r.sizes) > 0 {
		size := r.sizes[r.next%len(r.sizes)]
		r.next++
		if size > 0 && size < len(b) {
			b = b[:size]
		}
	}

	n, err := r.r.Read(b)
	if r.w != nil && n > 0 {
		_, _ = r.w.Write(b[:n])
		_, _ = r.w.Write([]byte("SPLIT\n"))
	}
	return n, err
}

// Close closes the underlying reader when it is an io.Closer.
func (r *Recorder) Close() error {
	if c, ok := r.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
