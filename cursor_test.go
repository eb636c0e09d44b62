package dyldcache

import (
	"errors"
	"testing"
)

func TestCursorReads(t *testing.T) {
	c := NewCursor([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 'h', 'i', 0x00})

	if v, err := c.Uint16(); err != nil || v != 0x0201 {
		t.Errorf("Uint16() = %#x, %v; want 0x0201", v, err)
	}
	if v, err := c.Uint32(); err != nil || v != 0x06050403 {
		t.Errorf("Uint32() = %#x, %v; want 0x06050403", v, err)
	}
	if err := c.Seek(0); err != nil {
		t.Fatalf("Seek(0) = %v", err)
	}
	if v, err := c.Uint64(); err != nil || v != 0x0807060504030201 {
		t.Errorf("Uint64() = %#x, %v", v, err)
	}
	if s, err := c.CString(64); err != nil || s != "hi" {
		t.Errorf("CString() = %q, %v; want hi", s, err)
	}
	if c.Remaining() != 0 {
		t.Errorf("Remaining() = %d; want 0", c.Remaining())
	}
}

func TestCursorBounds(t *testing.T) {
	c := NewCursor([]byte{0x01})

	if _, err := c.Uint32(); !errors.Is(err, ErrRangeOutOfBounds) {
		t.Errorf("Uint32() = %v; want ErrRangeOutOfBounds", err)
	}
	if err := c.Seek(2); !errors.Is(err, ErrOffsetOutOfBounds) {
		t.Errorf("Seek(2) = %v; want ErrOffsetOutOfBounds", err)
	}
	if err := c.Seek(1); err != nil {
		t.Errorf("Seek(1) = %v; want nil", err)
	}
	if _, err := NewCursor([]byte{'a', 'b'}).CString(16); !errors.Is(err, ErrRangeOutOfBounds) {
		t.Errorf("CString(unterminated) = %v; want ErrRangeOutOfBounds", err)
	}
}

func TestCursorUleb128(t *testing.T) {
	tests := []struct {
		in   []byte
		want uint64
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x7f}, 0x7f},
		{[]byte{0xe5, 0x8e, 0x26}, 624485},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}, 0xffffffffffffffff},
	}
	for _, tt := range tests {
		got, err := NewCursor(tt.in).Uleb128()
		if err != nil || got != tt.want {
			t.Errorf("Uleb128(% x) = %#x, %v; want %#x", tt.in, got, err, tt.want)
		}
	}

	overlong := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}
	if _, err := NewCursor(overlong).Uleb128(); !errors.Is(err, ErrInvalidULEB128) {
		t.Errorf("Uleb128(overlong) = %v; want ErrInvalidULEB128", err)
	}
	if _, err := NewCursor([]byte{0x80}).Uleb128(); !errors.Is(err, ErrRangeOutOfBounds) {
		t.Errorf("Uleb128(truncated) = %v; want ErrRangeOutOfBounds", err)
	}
}
