package box

import (
	"bytes"
	"fmt"
	"io"

	"m7s.live/isobmff/pkg/util"
)

var registry = map[BoxType]func() IBox{
	TypeFTYP: func() IBox { return new(FileTypeBox) },
	TypeMOOV: func() IBox { return new(MovieBox) },
	TypeMVHD: func() IBox { return new(MovieHeaderBox) },
	TypeTRAK: func() IBox { return new(TrackBox) },
	TypeTKHD: func() IBox { return new(TrackHeaderBox) },
	TypeEDTS: func() IBox { return new(EditBox) },
	TypeELST: func() IBox { return new(EditListBox) },
	TypeMDIA: func() IBox { return new(MediaBox) },
	TypeMDHD: func() IBox { return new(MediaHeaderBox) },
	TypeHDLR: func() IBox { return new(HandlerBox) },
	TypeMINF: func() IBox { return new(MediaInformationBox) },
	TypeVMHD: func() IBox { return new(VideoMediaHeaderBox) },
	TypeSMHD: func() IBox { return new(SoundMediaHeaderBox) },
	TypeSTBL: func() IBox { return new(SampleTableBox) },
	TypeSTSD: func() IBox { return new(SampleDescriptionBox) },
	TypeSTTS: func() IBox { return new(TimeToSampleBox) },
	TypeCTTS: func() IBox { return new(CompositionOffsetBox) },
	TypeSTSS: func() IBox { return new(SyncSampleBox) },
	TypeSTSC: func() IBox { return new(SampleToChunkBox) },
	TypeSTSZ: func() IBox { return new(SampleSizeBox) },
	TypeSTCO: func() IBox { return new(ChunkOffsetBox) },
	TypeCO64: func() IBox { return new(ChunkLargeOffsetBox) },
	TypeMVEX: func() IBox { return new(MovieExtendsBox) },
	TypeMEHD: func() IBox { return new(MovieExtendsHeaderBox) },
	TypeTREX: func() IBox { return new(TrackExtendsBox) },
	TypeMOOF: func() IBox { return new(MovieFragmentBox) },
	TypeMFHD: func() IBox { return new(MovieFragmentHeaderBox) },
	TypeTRAF: func() IBox { return new(TrackFragmentBox) },
	TypeTFHD: func() IBox { return new(TrackFragmentHeaderBox) },
	TypeTFDT: func() IBox { return new(TrackFragmentBaseMediaDecodeTimeBox) },
	TypeTRUN: func() IBox { return new(TrackRunBox) },
	TypeEMSG: func() IBox { return new(EventMessageBox) },
	TypeMDAT: func() IBox { return new(MediaDataBox) },
	TypeFREE: func() IBox { return &FreeBox{BoxType: TypeFREE} },
	TypeSKIP: func() IBox { return &FreeBox{BoxType: TypeSKIP} },
}

// Known reports whether t has a typed decoder.
func Known(t BoxType) bool {
	_, ok := registry[t]
	return ok
}

// New returns an empty box of type t, or nil when t is not registered.
func New(t BoxType) IBox {
	if fn, ok := registry[t]; ok {
		return fn()
	}
	return nil
}

// Decode turns a header and its payload into a typed box. Unregistered
// types come back as *RawBox.
func Decode(h *BasicBox, payload []byte) (IBox, error) {
	box := New(h.Type)
	if box == nil {
		box = &RawBox{BoxType: h.Type, UserType: h.UserType}
	}
	if err := box.Decode(payload); err != nil {
		return nil, decodeErr(h.Type, err)
	}
	return box, nil
}

// ReadChildren walks the boxes packed in payload. A child whose declared
// size runs past the parent is rejected. Fewer than 8 trailing bytes are
// ignored, some writers pad containers with a zero terminator.
func ReadChildren(payload []byte, fn func(h *BasicBox, data []byte) error) error {
	var offset uint64
	total := uint64(len(payload))
	for total-offset >= BasicBoxLen {
		var h BasicBox
		n, err := h.Parse(payload[offset:])
		if err == io.ErrUnexpectedEOF {
			return fmt.Errorf("%w: truncated child header at %d", ErrInvalidData, offset)
		} else if err != nil {
			return err
		}
		size := h.Size
		if h.ToEnd() {
			size = total - offset
		}
		if size > total-offset {
			return fmt.Errorf("%w: child %s size %d overruns parent (%d left)", ErrInvalidData, h.Type, size, total-offset)
		}
		h.Offset = offset
		h.Size = size
		if err = fn(&h, payload[offset+uint64(n):offset+size]); err != nil {
			return err
		}
		offset += size
	}
	return nil
}

func decodeAs[T any, P interface {
	*T
	IBox
}](h *BasicBox, data []byte) (P, error) {
	p := P(new(T))
	if err := p.Decode(data); err != nil {
		return nil, decodeErr(h.Type, err)
	}
	return p, nil
}

func decodeRaw(h *BasicBox, data []byte) *RawBox {
	return &RawBox{BoxType: h.Type, UserType: h.UserType, Data: bytes.Clone(data)}
}

func sizeOf[T IBox](boxes ...T) (n uint64) {
	for _, b := range boxes {
		n += b.Size()
	}
	return
}

func writeBoxes[T IBox](b *util.Buffer, boxes ...T) {
	for _, box := range boxes {
		box.Encode(b)
	}
}

// RawBox keeps a box this package has no decoder for.
type RawBox struct {
	BoxType  BoxType  `json:"type"`
	UserType [16]byte `json:"-"`
	Data     []byte   `json:"-"`
}

func (box *RawBox) Type() BoxType { return box.BoxType }

func (box *RawBox) Size() uint64 {
	n := uint64(len(box.Data))
	if box.BoxType == TypeUUID {
		n += userTypeLen
	}
	return boxSize(n)
}

func (box *RawBox) Decode(payload []byte) error {
	box.Data = bytes.Clone(payload)
	return nil
}

func (box *RawBox) writePayload(b *util.Buffer) {
	if box.BoxType == TypeUUID {
		b.Write(box.UserType[:])
	}
	b.Write(box.Data)
}

func (box *RawBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, box)
}

func (box *RawBox) Summary() string {
	return fmt.Sprintf("%s data=%d", box.BoxType, len(box.Data))
}
