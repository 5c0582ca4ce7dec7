package box

import (
	"bytes"
	"fmt"
	"io"

	"m7s.live/isobmff/pkg/util"
)

// FreeBox covers both free and skip.
type FreeBox struct {
	BoxType BoxType `json:"type"`
	Data    []byte  `json:"-"`
}

func (free *FreeBox) Type() BoxType {
	if free.BoxType == (BoxType{}) {
		return TypeFREE
	}
	return free.BoxType
}

func (free *FreeBox) Size() uint64 {
	return boxSize(uint64(len(free.Data)))
}

func (free *FreeBox) Decode(payload []byte) error {
	free.Data = bytes.Clone(payload)
	return nil
}

func (free *FreeBox) writePayload(b *util.Buffer) {
	b.Write(free.Data)
}

func (free *FreeBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, free)
}

func (free *FreeBox) Summary() string {
	return fmt.Sprintf("size=%d", len(free.Data))
}

// MediaDataBox holds sample payload. File parsing only records where the
// payload sits and never decodes it; Data is used when writing.
type MediaDataBox struct {
	Data []byte `json:"-"`
}

func (mdat *MediaDataBox) Type() BoxType { return TypeMDAT }

func (mdat *MediaDataBox) Size() uint64 {
	return boxSize(uint64(len(mdat.Data)))
}

func (mdat *MediaDataBox) Decode(payload []byte) error {
	mdat.Data = bytes.Clone(payload)
	return nil
}

func (mdat *MediaDataBox) writePayload(b *util.Buffer) {
	b.Write(mdat.Data)
}

func (mdat *MediaDataBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, mdat)
}

func (mdat *MediaDataBox) Summary() string {
	return fmt.Sprintf("data=%d", len(mdat.Data))
}
