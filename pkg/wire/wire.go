// Package wire defines the binary records exchanged between the tower and
// its collaborators over named pipes.
//
// Every record is a flat, fixed-size, little-endian concatenation of its
// fields in declaration order. There is no length prefix and no delimiter:
// producers and consumers agree on the buffer length through Size().
// Strings occupy fixed-width, NUL-padded fields and are always NUL
// terminated, so the longest storable string is width-1 bytes.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// SchemaVersion is bumped whenever a record layout changes.
const SchemaVersion = 1

const (
	ViolationIDWidth   = 32
	AirlineWidth       = 32
	FlightNumberWidth  = 16
	PaymentStatusWidth = 16
)

// Payment status values carried by Violation.PaymentStatus.
const (
	PaymentStatusUnpaid = "unpaid"
	PaymentStatusPaid   = "paid"
)

// ReadyToken is sent once by the violation processor to signal it is ready
// to receive violation records.
const ReadyToken = "AVN_READY"

// ReadyTokenBufferSize is the read buffer used for the readiness channel.
const ReadyTokenBufferSize = 16

var (
	// ErrShortRecord is returned when a read yields more than zero but fewer
	// than Size() bytes. The stream is out of frame and must be resynchronised.
	ErrShortRecord = errors.New("wire: short record")

	// ErrPartialWrite is returned when fewer than Size() bytes were written.
	// The record is dropped, delivery is at most once.
	ErrPartialWrite = errors.New("wire: partial write")

	// ErrBufferSize is returned by UnmarshalBinary for a buffer of the wrong length.
	ErrBufferSize = errors.New("wire: buffer size mismatch")
)

// Record is implemented by every fixed-layout message.
type Record interface {
	Size() int
	MarshalBinary() ([]byte, error)
	UnmarshalBinary(data []byte) error
}

// ReadRecord performs one non-blocking read of a full record from r.
//
// It returns ok=false with a nil error when no data is available yet
// (zero bytes or io.EOF), and ErrShortRecord when only part of a record
// arrived. The reader is expected to return promptly in both cases.
func ReadRecord(r io.Reader, rec Record) (bool, error) {
	buf := make([]byte, rec.Size())
	n, err := r.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch {
	case n == 0:
		return false, nil
	case n < len(buf):
		return false, fmt.Errorf("%w: got %d of %d bytes", ErrShortRecord, n, len(buf))
	}
	if err := rec.UnmarshalBinary(buf); err != nil {
		return false, err
	}
	return true, nil
}

// WriteRecord writes rec to w in a single call. A short write is reported
// as ErrPartialWrite and is not retried.
func WriteRecord(w io.Writer, rec Record) error {
	buf, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	n, err := w.Write(buf)
	if err != nil {
		return fmt.Errorf("%w: wrote %d of %d bytes: %v", ErrPartialWrite, n, len(buf), err)
	}
	if n != len(buf) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrPartialWrite, n, len(buf))
	}
	return nil
}

// IsReadyToken reports whether buf carries the readiness token, ignoring
// the trailing NUL and any padding.
func IsReadyToken(buf []byte) bool {
	return cString(buf) == ReadyToken
}

// ReadyTokenBytes returns the NUL-terminated token as written by the peer.
func ReadyTokenBytes() []byte {
	return append([]byte(ReadyToken), 0)
}

var byteOrder = binary.LittleEndian

// putString copies s into the fixed-width field dst, truncating so that the
// last byte is always NUL.
func putString(dst []byte, s string) {
	clear(dst)
	n := copy(dst[:len(dst)-1], s)
	dst[n] = 0
}

// cString returns the bytes of b up to the first NUL.
func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// encoder and decoder walk a fixed buffer field by field.
type encoder struct {
	buf []byte
	off int
}

func (e *encoder) string(s string, width int) {
	putString(e.buf[e.off:e.off+width], s)
	e.off += width
}

func (e *encoder) int32(v int32) {
	byteOrder.PutUint32(e.buf[e.off:], uint32(v))
	e.off += 4
}

func (e *encoder) int64(v int64) {
	byteOrder.PutUint64(e.buf[e.off:], uint64(v))
	e.off += 8
}

func (e *encoder) float32(v float32) {
	byteOrder.PutUint32(e.buf[e.off:], float32bits(v))
	e.off += 4
}

func (e *encoder) float64(v float64) {
	byteOrder.PutUint64(e.buf[e.off:], float64bits(v))
	e.off += 8
}

func (e *encoder) bool(v bool) {
	if v {
		e.buf[e.off] = 1
	} else {
		e.buf[e.off] = 0
	}
	e.off++
}

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) string(width int) string {
	s := cString(d.buf[d.off : d.off+width])
	d.off += width
	return s
}

func (d *decoder) int32() int32 {
	v := int32(byteOrder.Uint32(d.buf[d.off:]))
	d.off += 4
	return v
}

func (d *decoder) int64() int64 {
	v := int64(byteOrder.Uint64(d.buf[d.off:]))
	d.off += 8
	return v
}

func (d *decoder) float32() float32 {
	v := float32frombits(byteOrder.Uint32(d.buf[d.off:]))
	d.off += 4
	return v
}

func (d *decoder) float64() float64 {
	v := float64frombits(byteOrder.Uint64(d.buf[d.off:]))
	d.off += 8
	return v
}

func (d *decoder) bool() bool {
	v := d.buf[d.off] != 0
	d.off++
	return v
}

func checkSize(data []byte, want int) error {
	if len(data) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrBufferSize, len(data), want)
	}
	return nil
}
