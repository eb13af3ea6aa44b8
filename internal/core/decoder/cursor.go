// Package decoder locates protocol layers inside captured frames.
package decoder

import (
	"encoding/binary"

	"firestige.xyz/hsprobe/internal/core"
)

// Cursor is a bounds-checked read position over a frame. All multi-byte reads are big endian.
// A failed read never moves the cursor.
type Cursor struct {
	buf []byte
	off int
}

// NewCursor returns a cursor positioned at the start of buf.
func NewCursor(buf []byte) Cursor {
	return Cursor{buf: buf}
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.buf) - c.off }

// Offset returns the position relative to the start of the underlying buffer.
func (c *Cursor) Offset() int { return c.off }

// Rest returns the unread bytes without copying.
func (c *Cursor) Rest() []byte { return c.buf[c.off:] }

// Advance skips n bytes.
func (c *Cursor) Advance(n int) error {
	if n < 0 || n > c.Remaining() {
		return core.ErrTruncatedPacket
	}
	c.off += n
	return nil
}

func (c *Cursor) PeekU8() (uint8, error) { return c.PeekU8At(0) }

func (c *Cursor) PeekU16() (uint16, error) { return c.PeekU16At(0) }

func (c *Cursor) PeekU32() (uint32, error) { return c.PeekU32At(0) }

// PeekU8At reads the byte rel bytes past the current position.
func (c *Cursor) PeekU8At(rel int) (uint8, error) {
	if !c.has(rel, 1) {
		return 0, core.ErrTruncatedPacket
	}
	return c.buf[c.off+rel], nil
}

// PeekU16At reads the 16-bit field rel bytes past the current position.
func (c *Cursor) PeekU16At(rel int) (uint16, error) {
	if !c.has(rel, 2) {
		return 0, core.ErrTruncatedPacket
	}
	return binary.BigEndian.Uint16(c.buf[c.off+rel:]), nil
}

// PeekU32At reads the 32-bit field rel bytes past the current position.
func (c *Cursor) PeekU32At(rel int) (uint32, error) {
	if !c.has(rel, 4) {
		return 0, core.ErrTruncatedPacket
	}
	return binary.BigEndian.Uint32(c.buf[c.off+rel:]), nil
}

func (c *Cursor) ReadU8() (uint8, error) {
	v, err := c.PeekU8()
	if err == nil {
		c.off++
	}
	return v, err
}

func (c *Cursor) ReadU16() (uint16, error) {
	v, err := c.PeekU16()
	if err == nil {
		c.off += 2
	}
	return v, err
}

func (c *Cursor) ReadU32() (uint32, error) {
	v, err := c.PeekU32()
	if err == nil {
		c.off += 4
	}
	return v, err
}

// ReadBytes returns the next n bytes without copying and advances past them.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > c.Remaining() {
		return nil, core.ErrTruncatedPacket
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

func (c *Cursor) has(rel, n int) bool {
	return rel >= 0 && c.off+rel+n <= len(c.buf)
}
