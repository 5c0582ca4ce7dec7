package util

import (
	"context"
	"errors"
	"io"
)

// growStep caps each allocation made ahead of the bytes arriving.
const growStep = 1 << 20

// ReadFull reads exactly n bytes from r into buf, reusing its backing array.
// A stream that ends early yields io.ErrUnexpectedEOF.
func ReadFull(r io.Reader, buf *Buffer, n uint64) error {
	buf.Reset()
	for remain := n; remain > 0; {
		step := min(remain, growStep)
		l := buf.Len()
		if _, err := io.ReadFull(r, buf.Malloc(int(step))); err != nil {
			*buf = (*buf)[:l]
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		remain -= step
	}
	return nil
}

// ReadAll reads r to its end into buf, reusing its backing array.
func ReadAll(r io.Reader, buf *Buffer) error {
	buf.Reset()
	for {
		l := buf.Len()
		n, err := io.ReadFull(r, buf.Malloc(growStep))
		*buf = (*buf)[:l+n]
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		case err != nil:
			return err
		}
	}
}

// OffsetReader tracks how many bytes have been consumed from the wrapped
// reader and stops at the first read after its context is done.
type OffsetReader struct {
	ctx    context.Context
	r      io.Reader
	Offset uint64
}

func NewOffsetReader(ctx context.Context, r io.Reader) *OffsetReader {
	if ctx == nil {
		ctx = context.Background()
	}
	return &OffsetReader{ctx: ctx, r: r}
}

// WithContext rebinds the reader to ctx for subsequent reads.
func (o *OffsetReader) WithContext(ctx context.Context) *OffsetReader {
	if ctx != nil {
		o.ctx = ctx
	}
	return o
}

func (o *OffsetReader) Read(p []byte) (n int, err error) {
	if err = o.ctx.Err(); err != nil {
		return
	}
	n, err = o.r.Read(p)
	o.Offset += uint64(n)
	return
}

// Skip advances past n bytes, seeking when the source allows it.
func (o *OffsetReader) Skip(n uint64) error {
	if err := o.ctx.Err(); err != nil {
		return err
	}
	if s, ok := o.r.(io.Seeker); ok {
		if _, err := s.Seek(int64(n), io.SeekCurrent); err == nil {
			o.Offset += n
			return nil
		}
	}
	copied, err := io.CopyN(io.Discard, o.r, int64(n))
	o.Offset += uint64(copied)
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
