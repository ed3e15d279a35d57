package fasta

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

const readerBufSize = 1 << 20

// Reader streams sequence lines from a FASTA file starting at a byte offset
// recorded in an Index.  It is not safe for concurrent use.
type Reader struct {
	rs  io.ReadSeeker
	buf []byte
	pos int // next unread byte in buf
	eof bool
}

// NewReader returns a Reader over rs.  Call Seek before the first ReadLine.
func NewReader(rs io.ReadSeeker) *Reader {
	return &Reader{rs: rs, buf: make([]byte, 0, readerBufSize)}
}

// Seek positions the reader at the given byte offset.
func (r *Reader) Seek(offset int64) error {
	n, err := r.rs.Seek(offset, io.SeekStart)
	if err != nil {
		return errors.Wrapf(err, "failed to seek to offset %d", offset)
	}
	if n != offset {
		return errors.Errorf("failed to seek to offset %d: got %d", offset, n)
	}
	r.buf = r.buf[:0]
	r.pos = 0
	r.eof = false
	return nil
}

// ReadLine returns the next line with the trailing newline (and any '\r')
// removed.  The returned slice is valid until the next ReadLine call.  At end
// of input it returns io.EOF; a final line with no trailing newline is
// returned before that.
func (r *Reader) ReadLine() ([]byte, error) {
	for {
		if i := bytes.IndexByte(r.buf[r.pos:], '\n'); i >= 0 {
			line := r.buf[r.pos : r.pos+i]
			r.pos += i + 1
			return trimCR(line), nil
		}
		if r.eof {
			if r.pos < len(r.buf) {
				line := r.buf[r.pos:]
				r.pos = len(r.buf)
				return trimCR(line), nil
			}
			return nil, io.EOF
		}
		r.fill()
	}
}

func (r *Reader) fill() {
	// Keep the unread tail, then read more.
	n := copy(r.buf[:cap(r.buf)], r.buf[r.pos:])
	r.buf = r.buf[:n]
	r.pos = 0
	if len(r.buf) == cap(r.buf) {
		// A single line longer than the buffer; grow.
		next := make([]byte, len(r.buf), cap(r.buf)*2)
		copy(next, r.buf)
		r.buf = next
	}
	m, err := r.rs.Read(r.buf[len(r.buf):cap(r.buf)])
	r.buf = r.buf[:len(r.buf)+m]
	if err != nil {
		r.eof = true
	}
}

func trimCR(line []byte) []byte {
	if len(line) > 0 && line[len(line)-1] == '\r' {
		return line[:len(line)-1]
	}
	return line
}
