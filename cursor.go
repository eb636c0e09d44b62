package dyldcache

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// A Cursor is a bounds-checked sequential reader over a borrowed byte slice.
// Every read fails with a typed error instead of slicing past the end.
type Cursor struct {
	data []byte
	pos  int
}

func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Offset returns the current position.
func (c *Cursor) Offset() uint64 {
	return uint64(c.pos)
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.data) - c.pos
}

// Seek moves to an absolute offset inside the slice.
func (c *Cursor) Seek(offset uint64) error {
	if offset > uint64(len(c.data)) {
		return errors.Wrapf(ErrOffsetOutOfBounds, "seek to %#x in %#x bytes", offset, len(c.data))
	}
	c.pos = int(offset)
	return nil
}

// Bytes reads exactly n bytes.
func (c *Cursor) Bytes(n uint64) ([]byte, error) {
	if n > uint64(c.Remaining()) {
		return nil, errors.Wrapf(ErrRangeOutOfBounds, "read %d bytes at %#x of %#x", n, c.pos, len(c.data))
	}
	b := c.data[c.pos : c.pos+int(n)]
	c.pos += int(n)
	return b, nil
}

func (c *Cursor) Uint8() (uint8, error) {
	b, err := c.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) Uint16() (uint16, error) {
	b, err := c.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *Cursor) Uint32() (uint32, error) {
	b, err := c.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *Cursor) Uint64() (uint64, error) {
	b, err := c.Bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// CString reads a NUL-terminated UTF-8 string of at most max bytes.
func (c *Cursor) CString(max int) (string, error) {
	start := c.pos
	for c.pos < len(c.data) {
		if c.data[c.pos] == 0 {
			s := string(c.data[start:c.pos])
			c.pos++
			return s, nil
		}
		if c.pos-start >= max {
			return "", errors.Wrapf(ErrRangeOutOfBounds, "unterminated string at %#x exceeds %d bytes", start, max)
		}
		c.pos++
	}
	return "", errors.Wrapf(ErrRangeOutOfBounds, "unterminated string at %#x", start)
}

// Uleb128 decodes one unsigned LEB128 value.
func (c *Cursor) Uleb128() (uint64, error) {
	var result uint64
	var shift uint64

	for {
		b, err := c.Uint8()
		if err != nil {
			return 0, err
		}

		if shift > 63 {
			return 0, ErrInvalidULEB128
		}

		result |= uint64(b&0x7f) << shift

		if (b & 0x80) == 0 {
			break
		}

		shift += 7
	}

	return result, nil
}
