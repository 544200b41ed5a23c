package pcapio

import (
	"bytes"
	"encoding/binary"
	"io"
)

// Reader reads unsigned integer primitives from an underlying byte source,
// assembling multi-byte values in a fixed byte order. The byte order is
// chosen at construction time; everything else is identical between the two
// orders.
type Reader struct {
	r     io.Reader
	order binary.ByteOrder
	buf   [8]byte
}

// NewReader returns a Reader that consumes from r using the given byte order.
func NewReader(r io.Reader, order binary.ByteOrder) *Reader {
	return &Reader{r: r, order: order}
}

// NewBufferReader returns a Reader over an in-memory byte slice.
func NewBufferReader(data []byte, order binary.ByteOrder) *Reader {
	return &Reader{r: bytes.NewReader(data), order: order}
}

// Order reports the byte order this reader assembles values with.
func (r *Reader) Order() binary.ByteOrder {
	return r.order
}

func (r *Reader) fill(n int) ([]byte, error) {
	b := r.buf[:n]
	if _, err := io.ReadFull(r.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Uint8 reads one byte.
func (r *Reader) Uint8() (uint8, error) {
	b, err := r.fill(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16 reads two bytes and assembles them per the reader's byte order.
func (r *Reader) Uint16() (uint16, error) {
	b, err := r.fill(2)
	if err != nil {
		return 0, err
	}
	return r.order.Uint16(b), nil
}

// Uint32 reads four bytes and assembles them per the reader's byte order.
func (r *Reader) Uint32() (uint32, error) {
	b, err := r.fill(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(b), nil
}

// Uint64 reads eight bytes and assembles them per the reader's byte order.
func (r *Reader) Uint64() (uint64, error) {
	b, err := r.fill(8)
	if err != nil {
		return 0, err
	}
	return r.order.Uint64(b), nil
}

// Bytes reads exactly n raw bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Skip discards exactly n bytes.
func (r *Reader) Skip(n int) error {
	if n == 0 {
		return nil
	}
	skipped, err := io.CopyN(io.Discard, r.r, int64(n))
	if err == io.EOF && skipped < int64(n) {
		return io.ErrUnexpectedEOF
	}
	return err
}
