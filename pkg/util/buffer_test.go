package util

import (
	"io"
	"testing"
)

func TestBuffer(t *testing.T) {
	t.Run("write read", func(t *testing.T) {
		var b Buffer
		b.WriteUint32(0x66747970)
		b.WriteUint24(0x010203)
		b.WriteUint16(0xfffe)
		b.WriteUint64(1 << 40)
		b.WriteByte(7)
		b.WriteZero(2)
		b.Write([]byte("ab"))
		if b.Len() != 4+3+2+8+1+2+2 {
			t.Fatalf("len %d", b.Len())
		}
		if v := b.ReadUint32(); v != 0x66747970 {
			t.Errorf("uint32 %x", v)
		}
		if v := b.ReadUint24(); v != 0x010203 {
			t.Errorf("uint24 %x", v)
		}
		if v := b.ReadUint16(); v != 0xfffe {
			t.Errorf("uint16 %x", v)
		}
		if v := b.ReadUint64(); v != 1<<40 {
			t.Errorf("uint64 %x", v)
		}
		if v, _ := b.ReadByte(); v != 7 {
			t.Errorf("byte %d", v)
		}
		b.Skip(2)
		if s := string(b.ReadBytes(2)); s != "ab" {
			t.Errorf("string %q", s)
		}
		if b.CanRead() {
			t.Errorf("%d bytes left", b.Len())
		}
	})
	t.Run("short read", func(t *testing.T) {
		b := Buffer{1, 2, 3}
		p := make([]byte, 5)
		n, err := b.Read(p)
		if n != 3 || err != io.EOF || b.Len() != 0 {
			t.Errorf("read %d %v, %d left", n, err, b.Len())
		}
		if r := b.ReadN(4); len(r) != 0 {
			t.Errorf("ReadN past end %v", r)
		}
	})
	t.Run("malloc reuses", func(t *testing.T) {
		b := make(Buffer, 0, 16)
		b.Malloc(8)
		b.Reset()
		tail := b.Malloc(4)
		if &tail[0] != &b[0] || cap(b) != 16 {
			t.Error("backing array not reused")
		}
	})
	t.Run("signed", func(t *testing.T) {
		var b Buffer
		b.Write(PutBE(make([]byte, 4), uint32(0xffffff00)))
		b.Write(PutBE(make([]byte, 8), uint64(1<<63)))
		if v := b.ReadInt32(); v != -256 {
			t.Errorf("int32 %d", v)
		}
		if v := b.ReadInt64(); v != -1<<63 {
			t.Errorf("int64 %d", v)
		}
		if v := ReadBE[uint32]([]byte{1, 0}); v != 256 {
			t.Errorf("ReadBE %d", v)
		}
	})
}
