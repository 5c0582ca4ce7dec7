package util

import (
	"encoding/binary"
	"io"
	"slices"
)

type Integer interface {
	~int | ~int16 | ~int32 | ~int64 | ~uint | ~uint16 | ~uint32 | ~uint64
}

func PutBE[T Integer](b []byte, num T) []byte {
	for i, n := 0, len(b); i < n; i++ {
		b[i] = byte(num >> ((n - i - 1) << 3))
	}
	return b
}

func ReadBE[T Integer](b []byte) (num T) {
	for i, n := 0, len(b); i < n; i++ {
		num += T(b[i]) << ((n - i - 1) << 3)
	}
	return
}

// Buffer is a growable byte slice with big-endian read and write cursors.
// Reads consume from the front, writes append to the back.
type Buffer []byte

func (b *Buffer) Read(buf []byte) (n int, err error) {
	if !b.CanReadN(len(buf)) {
		n = copy(buf, *b)
		*b = (*b)[n:]
		return n, io.EOF
	}
	return copy(buf, b.ReadN(len(buf))), nil
}

// ReadN consumes up to n bytes. The result aliases the buffer.
func (b *Buffer) ReadN(n int) Buffer {
	l := b.Len()
	if n > l {
		n = l
	}
	r := (*b)[:n:n]
	*b = (*b)[n:l]
	return r
}

// Skip drops n bytes, or the whole remainder when fewer are left.
func (b *Buffer) Skip(n int) {
	b.ReadN(n)
}

func (b *Buffer) ReadUint64() uint64 {
	return binary.BigEndian.Uint64(b.ReadN(8))
}
func (b *Buffer) ReadUint32() uint32 {
	return binary.BigEndian.Uint32(b.ReadN(4))
}
func (b *Buffer) ReadUint24() uint32 {
	return ReadBE[uint32](b.ReadN(3))
}
func (b *Buffer) ReadUint16() uint16 {
	return binary.BigEndian.Uint16(b.ReadN(2))
}
func (b *Buffer) ReadInt32() int32 {
	return int32(b.ReadUint32())
}
func (b *Buffer) ReadInt64() int64 {
	return int64(b.ReadUint64())
}
func (b *Buffer) ReadByte() (byte, error) {
	if !b.CanRead() {
		return 0, io.EOF
	}
	return b.ReadN(1)[0], nil
}

// ReadBytes returns a copy of the next n bytes.
func (b *Buffer) ReadBytes(n int) []byte {
	return slices.Clone([]byte(b.ReadN(n)))
}

func (b *Buffer) WriteUint64(v uint64) {
	binary.BigEndian.PutUint64(b.Malloc(8), v)
}
func (b *Buffer) WriteUint32(v uint32) {
	binary.BigEndian.PutUint32(b.Malloc(4), v)
}
func (b *Buffer) WriteUint24(v uint32) {
	PutBE(b.Malloc(3), v)
}
func (b *Buffer) WriteUint16(v uint16) {
	binary.BigEndian.PutUint16(b.Malloc(2), v)
}
func (b *Buffer) WriteByte(v byte) error {
	b.Malloc(1)[0] = v
	return nil
}
func (b *Buffer) Write(a []byte) (n int, err error) {
	*b = append(*b, a...)
	return len(a), nil
}

// WriteZero appends n zero bytes.
func (b *Buffer) WriteZero(n int) {
	clear(b.Malloc(n))
}

func (b Buffer) Len() int {
	return len(b)
}

func (b Buffer) CanRead() bool {
	return b.CanReadN(1)
}

func (b Buffer) CanReadN(n int) bool {
	return n >= 0 && b.Len() >= n
}

func (b Buffer) SubBuf(start int, length int) Buffer {
	return b[start : start+length]
}

// Malloc extends the buffer by count bytes and returns the new tail.
func (b *Buffer) Malloc(count int) Buffer {
	l := b.Len()
	*b = slices.Grow(*b, count)[:l+count]
	return b.SubBuf(l, count)
}

func (b *Buffer) Reset() {
	*b = (*b)[:0]
}
