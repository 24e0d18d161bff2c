// Package wire holds the fixed width, little endian framing shared by every
// hashed or signed encoding in the ledger.
package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const maxBytesLen = 1 << 26

var ErrTooLong = errors.New("length prefix exceeds limit")

type Writer struct {
	bytes.Buffer
}

func (w *Writer) U8(v uint8) {
	w.WriteByte(v)
}

func (w *Writer) U32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func (w *Writer) U64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.Write(b[:])
}

func (w *Writer) Fixed(b []byte) {
	w.Write(b)
}

// Var writes a u32 length prefix then b.
func (w *Writer) Var(b []byte) {
	w.U32(uint32(len(b)))
	w.Write(b)
}

type Reader struct {
	r *bytes.Reader
}

func NewReader(b []byte) *Reader {
	return &Reader{r: bytes.NewReader(b)}
}

func (r *Reader) Len() int {
	return r.r.Len()
}

func (r *Reader) U8() (uint8, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, errors.Wrap(io.ErrUnexpectedEOF, "reading u8")
	}
	return b, nil
}

func (r *Reader) U32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, errors.Wrap(err, "reading u32")
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (r *Reader) U64() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, errors.Wrap(err, "reading u64")
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func (r *Reader) Fixed(dst []byte) error {
	if _, err := io.ReadFull(r.r, dst); err != nil {
		return errors.Wrap(err, "reading fixed bytes")
	}
	return nil
}

func (r *Reader) Var() ([]byte, error) {
	l, err := r.U32()
	if err != nil {
		return nil, err
	}
	if l > maxBytesLen || int(l) > r.r.Len() {
		return nil, ErrTooLong
	}
	b := make([]byte, l)
	if err := r.Fixed(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Done errors if unread bytes remain.
func (r *Reader) Done() error {
	if r.r.Len() != 0 {
		return errors.Errorf("%d trailing bytes", r.r.Len())
	}
	return nil
}
