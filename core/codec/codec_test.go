package codec

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestStringLayout(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.String("héllo"); err != nil {
		t.Fatalf("String() error = %v", err)
	}
	// 6 UTF-8 bytes, little-endian count first.
	want := []byte{0x06, 0x00, 0x00, 0x00, 'h', 0xc3, 0xa9, 'l', 'l', 'o'}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("bytes = % x, want % x", buf.Bytes(), want)
	}
}

func TestEmptyStringLayout(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).String(""); err != nil {
		t.Fatalf("String() error = %v", err)
	}
	want := []byte{0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("bytes = % x, want % x (count only, no payload)", buf.Bytes(), want)
	}
}

func TestOptionalLayout(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Presence(false)
	w.Presence(true)
	w.Int32(7)
	want := []byte{0x00, 0x01, 0x07, 0x00, 0x00, 0x00}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("bytes = % x, want % x", buf.Bytes(), want)
	}
}

func TestSequenceLayout(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Count(2)
	w.Uint16(0x0102)
	w.Uint16(0x0304)
	want := []byte{0x02, 0x00, 0x00, 0x00, 0x02, 0x01, 0x04, 0x03}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("bytes = % x, want % x", buf.Bytes(), want)
	}
}

func TestOrdinalLayout(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).Ordinal(258); err != nil {
		t.Fatalf("Ordinal() error = %v", err)
	}
	want := []byte{0x02, 0x01, 0x00, 0x00}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("bytes = % x, want % x", buf.Bytes(), want)
	}
}

func TestIntegerWidths(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Int8(-1)
	w.Uint16(0xBEEF)
	w.Int32(-2)
	w.Uint64(0x1122334455667788)
	want := []byte{
		0xff,
		0xef, 0xbe,
		0xfe, 0xff, 0xff, 0xff,
		0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11,
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("bytes = % x, want % x", buf.Bytes(), want)
	}
}

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.String("player")
	w.Presence(true)
	w.Float64(2.5)
	w.Count(3)
	for _, v := range []int64{-1, 0, 1} {
		w.Int64(v)
	}
	w.Bool(true)
	w.Float32(1.5)
	if err := w.Err(); err != nil {
		t.Fatalf("write error = %v", err)
	}

	r := NewReader(&buf)
	if s, _ := r.String(); s != "player" {
		t.Errorf("String() = %q, want %q", s, "player")
	}
	if p, _ := r.Presence(); !p {
		t.Error("Presence() = false, want true")
	}
	if f, _ := r.Float64(); f != 2.5 {
		t.Errorf("Float64() = %v, want 2.5", f)
	}
	n, _ := r.Count()
	if n != 3 {
		t.Fatalf("Count() = %d, want 3", n)
	}
	for _, want := range []int64{-1, 0, 1} {
		if v, _ := r.Int64(); v != want {
			t.Errorf("Int64() = %d, want %d", v, want)
		}
	}
	if b, _ := r.Bool(); !b {
		t.Error("Bool() = false, want true")
	}
	if f, _ := r.Float32(); f != 1.5 {
		t.Errorf("Float32() = %v, want 1.5", f)
	}
	if err := r.Err(); err != nil {
		t.Fatalf("read error = %v", err)
	}
}

func TestShortStream(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0x05, 0x00, 0x00, 0x00, 'a', 'b'}))
	if _, err := r.String(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("String() error = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestStickyWriteError(t *testing.T) {
	w := NewWriter(failWriter{})
	w.Uint32(1)
	first := w.Err()
	if first == nil {
		t.Fatal("Err() = nil, want write failure")
	}
	w.String("more")
	if w.Err() != first {
		t.Errorf("Err() changed after failure: %v vs %v", w.Err(), first)
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }
