package box

import (
	"bytes"
	"fmt"
	"io"

	"m7s.live/isobmff/pkg/util"
)

// aligned(8) class SampleDescriptionBox (unsigned int(32) handler_type) extends FullBox('stsd', version, 0) {
//     int i ;
//     unsigned int(32) entry_count;
//     for (i = 1 ; i <= entry_count ; i++) {
//         SampleEntry(); // an instance of a class derived from SampleEntry
//     }
// }

type SampleDescriptionBox struct {
	FullBox
	Entries []IBox `json:"entries"`
}

func (stsd *SampleDescriptionBox) Type() BoxType { return TypeSTSD }

func (stsd *SampleDescriptionBox) Size() uint64 {
	return boxSize(fullPrefixLen + 4 + sizeOf(stsd.Entries...))
}

func (stsd *SampleDescriptionBox) Decode(payload []byte) (err error) {
	b := util.Buffer(payload)
	if err = stsd.decodeFull(&b); err != nil {
		return
	}
	count, err := readCount(&b, BasicBoxLen)
	if err != nil {
		return
	}
	stsd.Entries = make([]IBox, 0, count)
	err = ReadChildren(b, func(h *BasicBox, data []byte) (err error) {
		if uint32(len(stsd.Entries)) == count {
			return nil
		}
		var entry IBox
		switch {
		case isVisual(h.Type):
			entry = &VisualSampleEntry{Format: h.Type}
		case isAudio(h.Type):
			entry = &AudioSampleEntry{Format: h.Type}
		default:
			entry = &RawBox{BoxType: h.Type, UserType: h.UserType}
		}
		if err = entry.Decode(data); err != nil {
			err = decodeErr(h.Type, err)
		}
		if err == nil {
			stsd.Entries = append(stsd.Entries, entry)
		}
		return
	})
	if err == nil && uint32(len(stsd.Entries)) != count {
		err = fmt.Errorf("%w: stsd declares %d entries, found %d", ErrInvalidData, count, len(stsd.Entries))
	}
	return
}

func (stsd *SampleDescriptionBox) writePayload(b *util.Buffer) {
	stsd.encodeFull(b)
	b.WriteUint32(uint32(len(stsd.Entries)))
	writeBoxes(b, stsd.Entries...)
}

func (stsd *SampleDescriptionBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, stsd)
}

func (stsd *SampleDescriptionBox) Summary() string {
	formats := make([]string, 0, len(stsd.Entries))
	for _, entry := range stsd.Entries {
		formats = append(formats, entry.Type().String())
	}
	return fmt.Sprintf("entries=%v", formats)
}

// CodecInfo describes the first entry that carries one.
func (stsd *SampleDescriptionBox) CodecInfo() *CodecInfo {
	for _, entry := range stsd.Entries {
		switch e := entry.(type) {
		case *VisualSampleEntry:
			return e.Codec
		case *AudioSampleEntry:
			return e.Codec
		}
	}
	return nil
}

func isVisual(t BoxType) bool {
	switch t {
	case TypeAVC1, TypeAVC3, TypeHVC1, TypeHEV1, TypeVP09, TypeAV01, TypeMP4V, TypeENCV:
		return true
	}
	return false
}

func isAudio(t BoxType) bool {
	switch t {
	case TypeMP4A, TypeENCA, TypeAC3, TypeEC3, TypeOPUS, TypeFLAC, TypeULAW, TypeALAW:
		return true
	}
	return false
}

// class VisualSampleEntry(codingname) extends SampleEntry (codingname){
//     const unsigned int(8)[6] reserved = 0;
//     unsigned int(16) data_reference_index;
//     unsigned int(16) pre_defined = 0;
//     const unsigned int(16) reserved = 0;
//     unsigned int(32)[3] pre_defined = 0;
//     unsigned int(16) width;
//     unsigned int(16) height;
//     template unsigned int(32) horizresolution = 0x00480000; // 72 dpi
//     template unsigned int(32) vertresolution = 0x00480000; // 72 dpi
//     const unsigned int(32) reserved = 0;
//     template unsigned int(16) frame_count = 1;
//     string[32] compressorname;
//     template unsigned int(16) depth = 0x0018;
//     int(16) pre_defined = -1;
// }

const visualSampleEntryLen = 78

type VisualSampleEntry struct {
	Format             BoxType    `json:"format"`
	DataReferenceIndex uint16     `json:"dataReferenceIndex"`
	Width              uint16     `json:"width"`
	Height             uint16     `json:"height"`
	HorizResolution    Fixed32    `json:"horizResolution"`
	VertResolution     Fixed32    `json:"vertResolution"`
	FrameCount         uint16     `json:"frameCount"`
	CompressorName     string     `json:"compressorName"`
	Depth              uint16     `json:"depth"`
	Children           []*RawBox  `json:"-"`
	Codec              *CodecInfo `json:"codec,omitempty"`
}

func (entry *VisualSampleEntry) Type() BoxType { return entry.Format }

func (entry *VisualSampleEntry) Size() uint64 {
	return boxSize(visualSampleEntryLen + sizeOf(entry.Children...))
}

func (entry *VisualSampleEntry) Decode(payload []byte) (err error) {
	b := util.Buffer(payload)
	if err = need(&b, visualSampleEntryLen, "visual sample entry"); err != nil {
		return
	}
	b.Skip(6)
	entry.DataReferenceIndex = b.ReadUint16()
	b.Skip(16)
	entry.Width = b.ReadUint16()
	entry.Height = b.ReadUint16()
	entry.HorizResolution = Fixed32(b.ReadUint32())
	entry.VertResolution = Fixed32(b.ReadUint32())
	b.Skip(4)
	entry.FrameCount = b.ReadUint16()
	name := b.ReadN(32)
	if n := int(name[0]); n < 32 {
		entry.CompressorName = string(bytes.TrimRight(name[1:1+n], "\x00"))
	}
	entry.Depth = b.ReadUint16()
	b.Skip(2)
	entry.Children = nil
	if err = ReadChildren(b, func(h *BasicBox, data []byte) error {
		entry.Children = append(entry.Children, decodeRaw(h, data))
		return nil
	}); err != nil {
		return
	}
	entry.Codec = videoCodecInfo(entry)
	return
}

func (entry *VisualSampleEntry) writePayload(b *util.Buffer) {
	b.WriteZero(6)
	b.WriteUint16(entry.DataReferenceIndex)
	b.WriteZero(16)
	b.WriteUint16(entry.Width)
	b.WriteUint16(entry.Height)
	b.WriteUint32(uint32(entry.HorizResolution))
	b.WriteUint32(uint32(entry.VertResolution))
	b.WriteZero(4)
	b.WriteUint16(entry.FrameCount)
	name := b.Malloc(32)
	clear(name)
	name[0] = byte(copy(name[1:], entry.CompressorName))
	b.WriteUint16(entry.Depth)
	b.WriteUint16(0xFFFF)
	writeBoxes(b, entry.Children...)
}

func (entry *VisualSampleEntry) Encode(w io.Writer) (int, error) {
	return encodeBox(w, entry)
}

func (entry *VisualSampleEntry) Summary() string {
	return fmt.Sprintf("format=%s width=%d height=%d compressor=%q children=%d", entry.Format, entry.Width, entry.Height, entry.CompressorName, len(entry.Children))
}

// Child returns the first child box of type t.
func (entry *VisualSampleEntry) Child(t BoxType) *RawBox {
	return findRaw(entry.Children, t)
}

// class AudioSampleEntry(codingname) extends SampleEntry (codingname){
//     const unsigned int(8)[6] reserved = 0;
//     unsigned int(16) data_reference_index;
//     const unsigned int(32)[2] reserved = 0;
//     template unsigned int(16) channelcount = 2;
//     template unsigned int(16) samplesize = 16;
//     unsigned int(16) pre_defined = 0;
//     const unsigned int(16) reserved = 0 ;
//     template unsigned int(32) samplerate = { default samplerate of media}<<16;
// }
//
// QuickTime writers put a version in the first reserved word; version 1
// appends 16 bytes and version 2 appends 36 bytes before the child boxes.

const audioSampleEntryLen = 28

type AudioSampleEntry struct {
	Format             BoxType    `json:"format"`
	DataReferenceIndex uint16     `json:"dataReferenceIndex"`
	SoundVersion       uint16     `json:"soundVersion"`
	ChannelCount       uint16     `json:"channelCount"`
	SampleSize         uint16     `json:"sampleSize"`
	SampleRate         Fixed32    `json:"sampleRate"`
	QuickTimeExtension []byte     `json:"-"`
	Children           []*RawBox  `json:"-"`
	Codec              *CodecInfo `json:"codec,omitempty"`
}

func (entry *AudioSampleEntry) Type() BoxType { return entry.Format }

func (entry *AudioSampleEntry) Size() uint64 {
	return boxSize(audioSampleEntryLen + uint64(len(entry.QuickTimeExtension)) + sizeOf(entry.Children...))
}

func (entry *AudioSampleEntry) Decode(payload []byte) (err error) {
	b := util.Buffer(payload)
	if err = need(&b, audioSampleEntryLen, "audio sample entry"); err != nil {
		return
	}
	b.Skip(6)
	entry.DataReferenceIndex = b.ReadUint16()
	entry.SoundVersion = b.ReadUint16()
	b.Skip(6)
	entry.ChannelCount = b.ReadUint16()
	entry.SampleSize = b.ReadUint16()
	b.Skip(4)
	entry.SampleRate = Fixed32(b.ReadUint32())
	entry.QuickTimeExtension = nil
	var ext int
	switch entry.SoundVersion {
	case 1:
		ext = 16
	case 2:
		ext = 36
	}
	if ext > 0 {
		if err = need(&b, ext, "sound description extension"); err != nil {
			return
		}
		entry.QuickTimeExtension = b.ReadBytes(ext)
	}
	entry.Children = nil
	if err = ReadChildren(b, func(h *BasicBox, data []byte) error {
		entry.Children = append(entry.Children, decodeRaw(h, data))
		return nil
	}); err != nil {
		return
	}
	entry.Codec = audioCodecInfo(entry)
	return
}

func (entry *AudioSampleEntry) writePayload(b *util.Buffer) {
	b.WriteZero(6)
	b.WriteUint16(entry.DataReferenceIndex)
	b.WriteUint16(entry.SoundVersion)
	b.WriteZero(6)
	b.WriteUint16(entry.ChannelCount)
	b.WriteUint16(entry.SampleSize)
	b.WriteZero(4)
	b.WriteUint32(uint32(entry.SampleRate))
	b.Write(entry.QuickTimeExtension)
	writeBoxes(b, entry.Children...)
}

func (entry *AudioSampleEntry) Encode(w io.Writer) (int, error) {
	return encodeBox(w, entry)
}

func (entry *AudioSampleEntry) Summary() string {
	return fmt.Sprintf("format=%s channels=%d sample_size=%d sample_rate=%g children=%d", entry.Format, entry.ChannelCount, entry.SampleSize, entry.SampleRate.Float(), len(entry.Children))
}

// Child returns the first child box of type t.
func (entry *AudioSampleEntry) Child(t BoxType) *RawBox {
	return findRaw(entry.Children, t)
}

func findRaw(boxes []*RawBox, t BoxType) *RawBox {
	for _, box := range boxes {
		if box.BoxType == t {
			return box
		}
	}
	return nil
}
