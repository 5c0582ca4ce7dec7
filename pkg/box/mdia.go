package box

import (
	"fmt"
	"io"

	"github.com/yapingcat/gomedia/go-codec"
	"m7s.live/isobmff/pkg/util"
)

type MediaBox struct {
	Mdhd   *MediaHeaderBox      `json:"mdhd"`
	Hdlr   *HandlerBox          `json:"hdlr"`
	Minf   *MediaInformationBox `json:"minf"`
	Others []IBox               `json:"-"`
}

func (mdia *MediaBox) Type() BoxType { return TypeMDIA }

func (mdia *MediaBox) Size() uint64 {
	n := sizeOf(mdia.Others...)
	if mdia.Mdhd != nil {
		n += mdia.Mdhd.Size()
	}
	if mdia.Hdlr != nil {
		n += mdia.Hdlr.Size()
	}
	if mdia.Minf != nil {
		n += mdia.Minf.Size()
	}
	return boxSize(n)
}

func (mdia *MediaBox) Decode(payload []byte) error {
	*mdia = MediaBox{}
	err := ReadChildren(payload, func(h *BasicBox, data []byte) (err error) {
		switch h.Type {
		case TypeMDHD:
			mdia.Mdhd, err = decodeAs[MediaHeaderBox](h, data)
		case TypeHDLR:
			mdia.Hdlr, err = decodeAs[HandlerBox](h, data)
		case TypeMINF:
			mdia.Minf, err = decodeAs[MediaInformationBox](h, data)
		default:
			mdia.Others = append(mdia.Others, decodeRaw(h, data))
		}
		return
	})
	switch {
	case err != nil:
		return err
	case mdia.Mdhd == nil:
		return missing(TypeMDHD)
	case mdia.Hdlr == nil:
		return missing(TypeHDLR)
	case mdia.Minf == nil:
		return missing(TypeMINF)
	}
	return nil
}

func (mdia *MediaBox) writePayload(b *util.Buffer) {
	if mdia.Mdhd != nil {
		mdia.Mdhd.Encode(b)
	}
	if mdia.Hdlr != nil {
		mdia.Hdlr.Encode(b)
	}
	if mdia.Minf != nil {
		mdia.Minf.Encode(b)
	}
	writeBoxes(b, mdia.Others...)
}

func (mdia *MediaBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, mdia)
}

func (mdia *MediaBox) Summary() string {
	if mdia.Hdlr == nil {
		return "handler=?"
	}
	return fmt.Sprintf("handler=%s", mdia.Hdlr.HandlerType)
}

// aligned(8) class MediaHeaderBox extends FullBox(‘mdhd’, version, 0) {
//     if (version==1) {
//         unsigned int(64) creation_time;
//         unsigned int(64) modification_time;
//         unsigned int(32) timescale;
//         unsigned int(64) duration;
//     } else { // version==0
//         unsigned int(32) creation_time;
//         unsigned int(32) modification_time;
//         unsigned int(32) timescale;
//         unsigned int(32) duration;
//     }
//     bit(1) pad = 0;
//     unsigned int(5)[3] language; // ISO-639-2/T language code
//     unsigned int(16) pre_defined = 0;
// }

type MediaHeaderBox struct {
	FullBox
	CreationTime     uint64 `json:"creationTime"`
	ModificationTime uint64 `json:"modificationTime"`
	Timescale        uint32 `json:"timescale"`
	Duration         uint64 `json:"duration"`
	Language         string `json:"language"`
}

func (mdhd *MediaHeaderBox) Type() BoxType { return TypeMDHD }

func (mdhd *MediaHeaderBox) Size() uint64 {
	if mdhd.Version == 1 {
		return boxSize(fullPrefixLen + 28 + 4)
	}
	return boxSize(fullPrefixLen + 16 + 4)
}

func (mdhd *MediaHeaderBox) Decode(payload []byte) (err error) {
	b := util.Buffer(payload)
	if err = mdhd.decodeFull(&b); err != nil {
		return
	}
	if err = mdhd.checkVersion(1); err != nil {
		return
	}
	if mdhd.Version == 1 {
		if err = need(&b, 28+4, "mdhd"); err != nil {
			return
		}
		mdhd.CreationTime = b.ReadUint64()
		mdhd.ModificationTime = b.ReadUint64()
		mdhd.Timescale = b.ReadUint32()
		mdhd.Duration = b.ReadUint64()
	} else {
		if err = need(&b, 16+4, "mdhd"); err != nil {
			return
		}
		mdhd.CreationTime = uint64(b.ReadUint32())
		mdhd.ModificationTime = uint64(b.ReadUint32())
		mdhd.Timescale = b.ReadUint32()
		mdhd.Duration = uint64(b.ReadUint32())
	}
	bs := codec.NewBitStream(b.ReadN(2))
	bs.SkipBits(1)
	var lang [3]byte
	for i := range lang {
		lang[i] = bs.Uint8(5) + 0x60
	}
	mdhd.Language = string(lang[:])
	return
}

func (mdhd *MediaHeaderBox) writePayload(b *util.Buffer) {
	mdhd.encodeFull(b)
	if mdhd.Version == 1 {
		b.WriteUint64(mdhd.CreationTime)
		b.WriteUint64(mdhd.ModificationTime)
		b.WriteUint32(mdhd.Timescale)
		b.WriteUint64(mdhd.Duration)
	} else {
		b.WriteUint32(uint32(mdhd.CreationTime))
		b.WriteUint32(uint32(mdhd.ModificationTime))
		b.WriteUint32(mdhd.Timescale)
		b.WriteUint32(uint32(mdhd.Duration))
	}
	lang := mdhd.Language
	if len(lang) != 3 {
		lang = "und"
	}
	bsw := codec.NewBitStreamWriter(2)
	bsw.PutUint8(0, 1)
	for i := 0; i < 3; i++ {
		bsw.PutUint8(lang[i]-0x60, 5)
	}
	b.Write(bsw.Bits()[:2])
	b.WriteUint16(0)
}

func (mdhd *MediaHeaderBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, mdhd)
}

func (mdhd *MediaHeaderBox) Summary() string {
	return fmt.Sprintf("version=%d timescale=%d duration=%d language=%s", mdhd.Version, mdhd.Timescale, mdhd.Duration, mdhd.Language)
}

// aligned(8) class HandlerBox extends FullBox(‘hdlr’, version = 0, 0) {
//     unsigned int(32) pre_defined = 0;
//     unsigned int(32) handler_type;
//     const unsigned int(32)[3] reserved = 0;
//     string name;
// }

type HandlerBox struct {
	FullBox
	HandlerType BoxType `json:"handlerType"`
	Name        string  `json:"name"`
}

func (hdlr *HandlerBox) Type() BoxType { return TypeHDLR }

func (hdlr *HandlerBox) Size() uint64 {
	return boxSize(fullPrefixLen + 20 + uint64(len(hdlr.Name)) + 1)
}

func (hdlr *HandlerBox) Decode(payload []byte) (err error) {
	b := util.Buffer(payload)
	if err = hdlr.decodeFull(&b); err != nil {
		return
	}
	if err = need(&b, 20, "hdlr"); err != nil {
		return
	}
	b.Skip(4)
	copy(hdlr.HandlerType[:], b.ReadN(4))
	b.Skip(12)
	// QuickTime writers sometimes leave the name unterminated
	if hdlr.Name, err = readCString(&b); err != nil {
		hdlr.Name, err = string(b), nil
	}
	return
}

func (hdlr *HandlerBox) writePayload(b *util.Buffer) {
	hdlr.encodeFull(b)
	b.WriteUint32(0)
	b.Write(hdlr.HandlerType[:])
	b.WriteZero(12)
	writeCString(b, hdlr.Name)
}

func (hdlr *HandlerBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, hdlr)
}

func (hdlr *HandlerBox) Summary() string {
	return fmt.Sprintf("handler_type=%s name=%q", hdlr.HandlerType, hdlr.Name)
}

type MediaInformationBox struct {
	Vmhd   *VideoMediaHeaderBox `json:"vmhd,omitempty"`
	Smhd   *SoundMediaHeaderBox `json:"smhd,omitempty"`
	Stbl   *SampleTableBox      `json:"stbl"`
	Others []IBox               `json:"-"`
}

func (minf *MediaInformationBox) Type() BoxType { return TypeMINF }

func (minf *MediaInformationBox) Size() uint64 {
	n := sizeOf(minf.Others...)
	if minf.Vmhd != nil {
		n += minf.Vmhd.Size()
	}
	if minf.Smhd != nil {
		n += minf.Smhd.Size()
	}
	if minf.Stbl != nil {
		n += minf.Stbl.Size()
	}
	return boxSize(n)
}

func (minf *MediaInformationBox) Decode(payload []byte) error {
	*minf = MediaInformationBox{}
	err := ReadChildren(payload, func(h *BasicBox, data []byte) (err error) {
		switch h.Type {
		case TypeVMHD:
			minf.Vmhd, err = decodeAs[VideoMediaHeaderBox](h, data)
		case TypeSMHD:
			minf.Smhd, err = decodeAs[SoundMediaHeaderBox](h, data)
		case TypeSTBL:
			minf.Stbl, err = decodeAs[SampleTableBox](h, data)
		default:
			minf.Others = append(minf.Others, decodeRaw(h, data))
		}
		return
	})
	if err != nil {
		return err
	}
	if minf.Stbl == nil {
		return missing(TypeSTBL)
	}
	return nil
}

func (minf *MediaInformationBox) writePayload(b *util.Buffer) {
	if minf.Vmhd != nil {
		minf.Vmhd.Encode(b)
	}
	if minf.Smhd != nil {
		minf.Smhd.Encode(b)
	}
	writeBoxes(b, minf.Others...)
	if minf.Stbl != nil {
		minf.Stbl.Encode(b)
	}
}

func (minf *MediaInformationBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, minf)
}

func (minf *MediaInformationBox) Summary() string {
	return fmt.Sprintf("video=%t sound=%t", minf.Vmhd != nil, minf.Smhd != nil)
}

// aligned(8) class VideoMediaHeaderBox extends FullBox(‘vmhd’, version = 0, 1) {
//     template unsigned int(16) graphicsmode = 0; // copy, see below
//     template unsigned int(16)[3] opcolor = {0, 0, 0};
// }

type VideoMediaHeaderBox struct {
	FullBox
	GraphicsMode uint16    `json:"graphicsMode"`
	OpColor      [3]uint16 `json:"opColor"`
}

func (vmhd *VideoMediaHeaderBox) Type() BoxType { return TypeVMHD }

func (vmhd *VideoMediaHeaderBox) Size() uint64 {
	return boxSize(fullPrefixLen + 8)
}

func (vmhd *VideoMediaHeaderBox) Decode(payload []byte) (err error) {
	b := util.Buffer(payload)
	if err = vmhd.decodeFull(&b); err != nil {
		return
	}
	if err = need(&b, 8, "vmhd"); err != nil {
		return
	}
	vmhd.GraphicsMode = b.ReadUint16()
	for i := range vmhd.OpColor {
		vmhd.OpColor[i] = b.ReadUint16()
	}
	return
}

func (vmhd *VideoMediaHeaderBox) writePayload(b *util.Buffer) {
	vmhd.encodeFull(b)
	b.WriteUint16(vmhd.GraphicsMode)
	for _, c := range vmhd.OpColor {
		b.WriteUint16(c)
	}
}

func (vmhd *VideoMediaHeaderBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, vmhd)
}

func (vmhd *VideoMediaHeaderBox) Summary() string {
	return fmt.Sprintf("graphicsmode=%d opcolor=%v", vmhd.GraphicsMode, vmhd.OpColor)
}

// aligned(8) class SoundMediaHeaderBox extends FullBox(‘smhd’, version = 0, 0) {
//     template int(16) balance = 0;
//     const unsigned int(16) reserved = 0;
// }

type SoundMediaHeaderBox struct {
	FullBox
	Balance int16 `json:"balance"`
}

func (smhd *SoundMediaHeaderBox) Type() BoxType { return TypeSMHD }

func (smhd *SoundMediaHeaderBox) Size() uint64 {
	return boxSize(fullPrefixLen + 4)
}

func (smhd *SoundMediaHeaderBox) Decode(payload []byte) (err error) {
	b := util.Buffer(payload)
	if err = smhd.decodeFull(&b); err != nil {
		return
	}
	if err = need(&b, 4, "smhd"); err != nil {
		return
	}
	smhd.Balance = int16(b.ReadUint16())
	return
}

func (smhd *SoundMediaHeaderBox) writePayload(b *util.Buffer) {
	smhd.encodeFull(b)
	b.WriteUint16(uint16(smhd.Balance))
	b.WriteUint16(0)
}

func (smhd *SoundMediaHeaderBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, smhd)
}

func (smhd *SoundMediaHeaderBox) Summary() string {
	return fmt.Sprintf("balance=%d", smhd.Balance)
}
