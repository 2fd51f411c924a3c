// Package codec implements the binary wire contract that generated
// accessor code speaks, independent of target language:
//
//   - strings: 4-byte little-endian unsigned byte count, then the UTF-8
//     bytes (a zero count carries no bytes);
//   - optionals: 1-byte presence flag (0 absent, 1 present), then the
//     payload only when present;
//   - sequences: 4-byte little-endian unsigned element count, then that
//     many encoded elements;
//   - enums: the integer ordinal as a 4-byte little-endian value;
//   - fixed-width integers and floats: little-endian at their natural
//     width, floats in IEEE 754 bits.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrStringTooLong is returned when a string exceeds the 4-byte count.
var ErrStringTooLong = errors.New("codec: string exceeds uint32 length")

// ErrSequenceTooLong is returned when a sequence exceeds the 4-byte count.
var ErrSequenceTooLong = errors.New("codec: sequence exceeds uint32 length")

// Writer encodes values to an underlying stream. Methods return the first
// error encountered; after an error every subsequent call is a no-op
// returning the same error, so call sites can chain writes and check once.
type Writer struct {
	w   io.Writer
	buf [8]byte
	err error
}

// NewWriter returns a Writer over w.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

// Err returns the sticky error, nil while the stream is healthy.
func (w *Writer) Err() error { return w.err }

func (w *Writer) write(p []byte) {
	if w.err != nil {
		return
	}
	_, w.err = w.w.Write(p)
}

// String writes a length-prefixed UTF-8 string.
func (w *Writer) String(s string) error {
	if w.err != nil {
		return w.err
	}
	if uint64(len(s)) > math.MaxUint32 {
		w.err = ErrStringTooLong
		return w.err
	}
	w.Uint32(uint32(len(s)))
	w.write([]byte(s))
	return w.err
}

// Bool writes a single byte, 1 for true.
func (w *Writer) Bool(v bool) error {
	b := byte(0)
	if v {
		b = 1
	}
	w.write([]byte{b})
	return w.err
}

// Presence writes the optional-value flag. The caller encodes the payload
// only when present is true.
func (w *Writer) Presence(present bool) error { return w.Bool(present) }

// Count writes a sequence element count.
func (w *Writer) Count(n int) error {
	if w.err != nil {
		return w.err
	}
	if n < 0 || int64(n) > math.MaxUint32 {
		w.err = ErrSequenceTooLong
		return w.err
	}
	return w.Uint32(uint32(n))
}

// Ordinal writes an enum ordinal as a 4-byte value.
func (w *Writer) Ordinal(v int32) error { return w.Uint32(uint32(v)) }

// Bytes writes a length-prefixed byte blob.
func (w *Writer) Bytes(p []byte) error {
	if w.err != nil {
		return w.err
	}
	if uint64(len(p)) > math.MaxUint32 {
		w.err = ErrSequenceTooLong
		return w.err
	}
	w.Uint32(uint32(len(p)))
	w.write(p)
	return w.err
}

func (w *Writer) Uint8(v uint8) error {
	w.write([]byte{v})
	return w.err
}

func (w *Writer) Uint16(v uint16) error {
	binary.LittleEndian.PutUint16(w.buf[:2], v)
	w.write(w.buf[:2])
	return w.err
}

func (w *Writer) Uint32(v uint32) error {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	w.write(w.buf[:4])
	return w.err
}

func (w *Writer) Uint64(v uint64) error {
	binary.LittleEndian.PutUint64(w.buf[:8], v)
	w.write(w.buf[:8])
	return w.err
}

func (w *Writer) Int8(v int8) error   { return w.Uint8(uint8(v)) }
func (w *Writer) Int16(v int16) error { return w.Uint16(uint16(v)) }
func (w *Writer) Int32(v int32) error { return w.Uint32(uint32(v)) }
func (w *Writer) Int64(v int64) error { return w.Uint64(uint64(v)) }

func (w *Writer) Float32(v float32) error { return w.Uint32(math.Float32bits(v)) }
func (w *Writer) Float64(v float64) error { return w.Uint64(math.Float64bits(v)) }

// Reader decodes values produced by Writer. Errors are sticky in the same
// way; a short stream surfaces as io.ErrUnexpectedEOF.
type Reader struct {
	r   io.Reader
	buf [8]byte
	err error
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader { return &Reader{r: r} }

// Err returns the sticky error, nil while the stream is healthy.
func (r *Reader) Err() error { return r.err }

func (r *Reader) read(p []byte) bool {
	if r.err != nil {
		return false
	}
	if _, err := io.ReadFull(r.r, p); err != nil {
		if errors.Is(err, io.EOF) && len(p) > 0 {
			err = io.ErrUnexpectedEOF
		}
		r.err = err
		return false
	}
	return true
}

// String reads a length-prefixed UTF-8 string.
func (r *Reader) String() (string, error) {
	n, err := r.Uint32()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	p := make([]byte, n)
	if !r.read(p) {
		return "", r.err
	}
	return string(p), nil
}

// Bool reads a single byte; any nonzero value is true.
func (r *Reader) Bool() (bool, error) {
	if !r.read(r.buf[:1]) {
		return false, r.err
	}
	return r.buf[0] != 0, nil
}

// Presence reads the optional-value flag.
func (r *Reader) Presence() (bool, error) { return r.Bool() }

// Count reads a sequence element count.
func (r *Reader) Count() (int, error) {
	n, err := r.Uint32()
	return int(n), err
}

// Ordinal reads an enum ordinal.
func (r *Reader) Ordinal() (int32, error) {
	n, err := r.Uint32()
	return int32(n), err
}

// Bytes reads a length-prefixed byte blob.
func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	p := make([]byte, n)
	if !r.read(p) {
		return nil, r.err
	}
	return p, nil
}

func (r *Reader) Uint8() (uint8, error) {
	if !r.read(r.buf[:1]) {
		return 0, r.err
	}
	return r.buf[0], nil
}

func (r *Reader) Uint16() (uint16, error) {
	if !r.read(r.buf[:2]) {
		return 0, r.err
	}
	return binary.LittleEndian.Uint16(r.buf[:2]), nil
}

func (r *Reader) Uint32() (uint32, error) {
	if !r.read(r.buf[:4]) {
		return 0, r.err
	}
	return binary.LittleEndian.Uint32(r.buf[:4]), nil
}

func (r *Reader) Uint64() (uint64, error) {
	if !r.read(r.buf[:8]) {
		return 0, r.err
	}
	return binary.LittleEndian.Uint64(r.buf[:8]), nil
}

func (r *Reader) Int8() (int8, error) {
	v, err := r.Uint8()
	return int8(v), err
}

func (r *Reader) Int16() (int16, error) {
	v, err := r.Uint16()
	return int16(v), err
}

func (r *Reader) Int32() (int32, error) {
	v, err := r.Uint32()
	return int32(v), err
}

func (r *Reader) Int64() (int64, error) {
	v, err := r.Uint64()
	return int64(v), err
}

func (r *Reader) Float32() (float32, error) {
	v, err := r.Uint32()
	return math.Float32frombits(v), err
}

func (r *Reader) Float64() (float64, error) {
	v, err := r.Uint64()
	return math.Float64frombits(v), err
}

// Expect reads and discards n bytes, failing when the stream is short.
// Generated decoders use it to skip deprecated fixed-width fields.
func (r *Reader) Expect(n int) error {
	if n <= 0 {
		return r.err
	}
	if _, err := io.CopyN(io.Discard, r.r, int64(n)); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		if r.err == nil {
			r.err = fmt.Errorf("codec: skip %d bytes: %w", n, err)
		}
		return r.err
	}
	return nil
}
