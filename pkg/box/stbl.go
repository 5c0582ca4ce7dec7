package box

import (
	"fmt"
	"io"

	"m7s.live/isobmff/pkg/util"
)

type SampleTableBox struct {
	Stsd   *SampleDescriptionBox `json:"stsd,omitempty"`
	Stts   *TimeToSampleBox      `json:"stts"`
	Ctts   *CompositionOffsetBox `json:"ctts,omitempty"`
	Stss   *SyncSampleBox        `json:"stss,omitempty"`
	Stsc   *SampleToChunkBox     `json:"stsc"`
	Stsz   *SampleSizeBox        `json:"stsz"`
	Stco   *ChunkOffsetBox       `json:"stco,omitempty"`
	Co64   *ChunkLargeOffsetBox  `json:"co64,omitempty"`
	Others []IBox                `json:"-"`
}

func (stbl *SampleTableBox) Type() BoxType { return TypeSTBL }

// Children lists the present tables in write order.
func (stbl *SampleTableBox) Children() (boxes []IBox) {
	if stbl.Stsd != nil {
		boxes = append(boxes, stbl.Stsd)
	}
	if stbl.Stts != nil {
		boxes = append(boxes, stbl.Stts)
	}
	if stbl.Ctts != nil {
		boxes = append(boxes, stbl.Ctts)
	}
	if stbl.Stss != nil {
		boxes = append(boxes, stbl.Stss)
	}
	if stbl.Stsc != nil {
		boxes = append(boxes, stbl.Stsc)
	}
	if stbl.Stsz != nil {
		boxes = append(boxes, stbl.Stsz)
	}
	if stbl.Stco != nil {
		boxes = append(boxes, stbl.Stco)
	}
	if stbl.Co64 != nil {
		boxes = append(boxes, stbl.Co64)
	}
	return append(boxes, stbl.Others...)
}

func (stbl *SampleTableBox) Size() uint64 {
	return boxSize(sizeOf(stbl.Children()...))
}

func (stbl *SampleTableBox) Decode(payload []byte) error {
	*stbl = SampleTableBox{}
	err := ReadChildren(payload, func(h *BasicBox, data []byte) (err error) {
		switch h.Type {
		case TypeSTSD:
			stbl.Stsd, err = decodeAs[SampleDescriptionBox](h, data)
		case TypeSTTS:
			stbl.Stts, err = decodeAs[TimeToSampleBox](h, data)
		case TypeCTTS:
			stbl.Ctts, err = decodeAs[CompositionOffsetBox](h, data)
		case TypeSTSS:
			stbl.Stss, err = decodeAs[SyncSampleBox](h, data)
		case TypeSTSC:
			stbl.Stsc, err = decodeAs[SampleToChunkBox](h, data)
		case TypeSTSZ:
			stbl.Stsz, err = decodeAs[SampleSizeBox](h, data)
		case TypeSTCO:
			stbl.Stco, err = decodeAs[ChunkOffsetBox](h, data)
		case TypeCO64:
			stbl.Co64, err = decodeAs[ChunkLargeOffsetBox](h, data)
		default:
			stbl.Others = append(stbl.Others, decodeRaw(h, data))
		}
		return
	})
	return err
}

// Validate reports a missing table the sample resolver needs. Decode does
// not enforce these so that one broken track does not fail the whole moov.
func (stbl *SampleTableBox) Validate() error {
	switch {
	case stbl.Stts == nil:
		return missing(TypeSTTS)
	case stbl.Stsc == nil:
		return missing(TypeSTSC)
	case stbl.Stsz == nil:
		return missing(TypeSTSZ)
	case stbl.Stco == nil && stbl.Co64 == nil:
		return missing(TypeSTCO)
	}
	return nil
}

func (stbl *SampleTableBox) writePayload(b *util.Buffer) {
	writeBoxes(b, stbl.Children()...)
}

func (stbl *SampleTableBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, stbl)
}

func (stbl *SampleTableBox) Summary() string {
	var samples uint32
	if stbl.Stsz != nil {
		samples = stbl.Stsz.SampleCount
	}
	return fmt.Sprintf("samples=%d chunks=%d", samples, stbl.ChunkCount())
}

// ChunkCount is the number of entries in whichever chunk offset table is present.
func (stbl *SampleTableBox) ChunkCount() int {
	if stbl.Co64 != nil {
		return len(stbl.Co64.Entries)
	}
	if stbl.Stco != nil {
		return len(stbl.Stco.Entries)
	}
	return 0
}

// ChunkOffset returns the 1-based chunk's file offset from stco or co64.
func (stbl *SampleTableBox) ChunkOffset(chunk uint32) (uint64, error) {
	if chunk == 0 || int(chunk) > stbl.ChunkCount() {
		return 0, fmt.Errorf("%w: chunk %d of %d", ErrEntryNotFound, chunk, stbl.ChunkCount())
	}
	if stbl.Co64 != nil {
		return stbl.Co64.Entries[chunk-1], nil
	}
	return uint64(stbl.Stco.Entries[chunk-1]), nil
}

// aligned(8) class TimeToSampleBox extends FullBox(’stts’, version = 0, 0) {
//     unsigned int(32) entry_count;
//     for (i=1; i <= entry_count; i++) {
//         unsigned int(32) sample_count;
//         unsigned int(32) sample_delta;
//     }
// }

type STTSEntry struct {
	SampleCount uint32 `json:"sampleCount"`
	SampleDelta uint32 `json:"sampleDelta"`
}

type TimeToSampleBox struct {
	FullBox
	Entries []STTSEntry `json:"entries"`
}

func (stts *TimeToSampleBox) Type() BoxType { return TypeSTTS }

func (stts *TimeToSampleBox) Size() uint64 {
	return boxSize(fullPrefixLen + 4 + 8*uint64(len(stts.Entries)))
}

func (stts *TimeToSampleBox) Decode(payload []byte) (err error) {
	b := util.Buffer(payload)
	if err = stts.decodeFull(&b); err != nil {
		return
	}
	count, err := readCount(&b, 8)
	if err != nil {
		return
	}
	stts.Entries = make([]STTSEntry, count)
	for i := range stts.Entries {
		stts.Entries[i] = STTSEntry{b.ReadUint32(), b.ReadUint32()}
	}
	return
}

func (stts *TimeToSampleBox) writePayload(b *util.Buffer) {
	stts.encodeFull(b)
	b.WriteUint32(uint32(len(stts.Entries)))
	for _, entry := range stts.Entries {
		b.WriteUint32(entry.SampleCount)
		b.WriteUint32(entry.SampleDelta)
	}
}

func (stts *TimeToSampleBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, stts)
}

func (stts *TimeToSampleBox) Summary() string {
	return fmt.Sprintf("entries=%d", len(stts.Entries))
}

// aligned(8) class CompositionOffsetBox extends FullBox(‘ctts’, version, 0) {
//     unsigned int(32) entry_count;
//     for (i=1; i <= entry_count; i++) {
//         if (version==0) {
//             unsigned int(32) sample_count;
//             unsigned int(32) sample_offset;
//         } else if (version == 1) {
//             unsigned int(32) sample_count;
//             signed int(32) sample_offset;
//         }
//     }
// }

// CTTSEntry stores the offset signed. Version 0 offsets are written as
// unsigned on the wire and reinterpreted here, as most players do.
type CTTSEntry struct {
	SampleCount  uint32 `json:"sampleCount"`
	SampleOffset int32  `json:"sampleOffset"`
}

type CompositionOffsetBox struct {
	FullBox
	Entries []CTTSEntry `json:"entries"`
}

func (ctts *CompositionOffsetBox) Type() BoxType { return TypeCTTS }

func (ctts *CompositionOffsetBox) Size() uint64 {
	return boxSize(fullPrefixLen + 4 + 8*uint64(len(ctts.Entries)))
}

func (ctts *CompositionOffsetBox) Decode(payload []byte) (err error) {
	b := util.Buffer(payload)
	if err = ctts.decodeFull(&b); err != nil {
		return
	}
	if err = ctts.checkVersion(1); err != nil {
		return
	}
	count, err := readCount(&b, 8)
	if err != nil {
		return
	}
	ctts.Entries = make([]CTTSEntry, count)
	for i := range ctts.Entries {
		ctts.Entries[i] = CTTSEntry{b.ReadUint32(), b.ReadInt32()}
	}
	return
}

func (ctts *CompositionOffsetBox) writePayload(b *util.Buffer) {
	ctts.encodeFull(b)
	b.WriteUint32(uint32(len(ctts.Entries)))
	for _, entry := range ctts.Entries {
		b.WriteUint32(entry.SampleCount)
		b.WriteUint32(uint32(entry.SampleOffset))
	}
}

func (ctts *CompositionOffsetBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, ctts)
}

func (ctts *CompositionOffsetBox) Summary() string {
	return fmt.Sprintf("version=%d entries=%d", ctts.Version, len(ctts.Entries))
}

// aligned(8) class SyncSampleBox extends FullBox(‘stss’, version = 0, 0) {
//     unsigned int(32) entry_count;
//     for (i=0; i < entry_count; i++) {
//         unsigned int(32) sample_number;
//     }
// }

type SyncSampleBox struct {
	FullBox
	Entries []uint32 `json:"entries"`
}

func (stss *SyncSampleBox) Type() BoxType { return TypeSTSS }

func (stss *SyncSampleBox) Size() uint64 {
	return boxSize(fullPrefixLen + 4 + 4*uint64(len(stss.Entries)))
}

func (stss *SyncSampleBox) Decode(payload []byte) (err error) {
	b := util.Buffer(payload)
	if err = stss.decodeFull(&b); err != nil {
		return
	}
	count, err := readCount(&b, 4)
	if err != nil {
		return
	}
	stss.Entries = make([]uint32, count)
	for i := range stss.Entries {
		stss.Entries[i] = b.ReadUint32()
	}
	return
}

func (stss *SyncSampleBox) writePayload(b *util.Buffer) {
	stss.encodeFull(b)
	b.WriteUint32(uint32(len(stss.Entries)))
	for _, n := range stss.Entries {
		b.WriteUint32(n)
	}
}

func (stss *SyncSampleBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, stss)
}

func (stss *SyncSampleBox) Summary() string {
	return fmt.Sprintf("entries=%d", len(stss.Entries))
}

// aligned(8) class SampleToChunkBox extends FullBox(‘stsc’, version = 0, 0) {
//     unsigned int(32) entry_count;
//     for (i=1; i <= entry_count; i++) {
//         unsigned int(32) first_chunk;
//         unsigned int(32) samples_per_chunk;
//         unsigned int(32) sample_description_index;
//     }
// }

type STSCEntry struct {
	FirstChunk             uint32 `json:"firstChunk"`
	SamplesPerChunk        uint32 `json:"samplesPerChunk"`
	SampleDescriptionIndex uint32 `json:"sampleDescriptionIndex"`
}

type SampleToChunkBox struct {
	FullBox
	Entries []STSCEntry `json:"entries"`
}

func (stsc *SampleToChunkBox) Type() BoxType { return TypeSTSC }

func (stsc *SampleToChunkBox) Size() uint64 {
	return boxSize(fullPrefixLen + 4 + 12*uint64(len(stsc.Entries)))
}

func (stsc *SampleToChunkBox) Decode(payload []byte) (err error) {
	b := util.Buffer(payload)
	if err = stsc.decodeFull(&b); err != nil {
		return
	}
	count, err := readCount(&b, 12)
	if err != nil {
		return
	}
	stsc.Entries = make([]STSCEntry, count)
	for i := range stsc.Entries {
		stsc.Entries[i] = STSCEntry{b.ReadUint32(), b.ReadUint32(), b.ReadUint32()}
	}
	return
}

func (stsc *SampleToChunkBox) writePayload(b *util.Buffer) {
	stsc.encodeFull(b)
	b.WriteUint32(uint32(len(stsc.Entries)))
	for _, entry := range stsc.Entries {
		b.WriteUint32(entry.FirstChunk)
		b.WriteUint32(entry.SamplesPerChunk)
		b.WriteUint32(entry.SampleDescriptionIndex)
	}
}

func (stsc *SampleToChunkBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, stsc)
}

func (stsc *SampleToChunkBox) Summary() string {
	return fmt.Sprintf("entries=%d", len(stsc.Entries))
}

// aligned(8) class SampleSizeBox extends FullBox(‘stsz’, version = 0, 0) {
//     unsigned int(32) sample_size;
//     unsigned int(32) sample_count;
//     if (sample_size==0) {
//         for (i=1; i <= sample_count; i++) {
//             unsigned int(32) entry_size;
//         }
//     }
// }

type SampleSizeBox struct {
	FullBox
	SampleSize  uint32   `json:"sampleSize"`
	SampleCount uint32   `json:"sampleCount"`
	EntrySizes  []uint32 `json:"entrySizes,omitempty"`
}

func (stsz *SampleSizeBox) Type() BoxType { return TypeSTSZ }

func (stsz *SampleSizeBox) Size() uint64 {
	n := uint64(fullPrefixLen + 8)
	if stsz.SampleSize == 0 {
		n += 4 * uint64(len(stsz.EntrySizes))
	}
	return boxSize(n)
}

func (stsz *SampleSizeBox) Decode(payload []byte) (err error) {
	b := util.Buffer(payload)
	if err = stsz.decodeFull(&b); err != nil {
		return
	}
	if err = need(&b, 4, "sample_size"); err != nil {
		return
	}
	stsz.SampleSize = b.ReadUint32()
	if stsz.SampleSize != 0 {
		if err = need(&b, 4, "sample_count"); err == nil {
			stsz.SampleCount = b.ReadUint32()
		}
		stsz.EntrySizes = nil
		return
	}
	if stsz.SampleCount, err = readCount(&b, 4); err != nil {
		return
	}
	stsz.EntrySizes = make([]uint32, stsz.SampleCount)
	for i := range stsz.EntrySizes {
		stsz.EntrySizes[i] = b.ReadUint32()
	}
	return
}

func (stsz *SampleSizeBox) writePayload(b *util.Buffer) {
	stsz.encodeFull(b)
	b.WriteUint32(stsz.SampleSize)
	if stsz.SampleSize != 0 {
		b.WriteUint32(stsz.SampleCount)
		return
	}
	b.WriteUint32(uint32(len(stsz.EntrySizes)))
	for _, size := range stsz.EntrySizes {
		b.WriteUint32(size)
	}
}

func (stsz *SampleSizeBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, stsz)
}

func (stsz *SampleSizeBox) Summary() string {
	return fmt.Sprintf("sample_size=%d sample_count=%d", stsz.SampleSize, stsz.SampleCount)
}

// SampleSizeAt returns the size of the 1-based sample.
func (stsz *SampleSizeBox) SampleSizeAt(sample uint64) (uint32, error) {
	if sample == 0 || sample > uint64(stsz.SampleCount) {
		return 0, fmt.Errorf("%w: sample %d of %d", ErrEntryNotFound, sample, stsz.SampleCount)
	}
	if stsz.SampleSize != 0 {
		return stsz.SampleSize, nil
	}
	if sample > uint64(len(stsz.EntrySizes)) {
		return 0, fmt.Errorf("%w: sample %d of %d sizes", ErrEntryNotFound, sample, len(stsz.EntrySizes))
	}
	return stsz.EntrySizes[sample-1], nil
}

// aligned(8) class ChunkOffsetBox extends FullBox(‘stco’, version = 0, 0) {
//     unsigned int(32) entry_count;
//     for (i=1; i <= entry_count; i++) {
//         unsigned int(32) chunk_offset;
//     }
// }

type ChunkOffsetBox struct {
	FullBox
	Entries []uint32 `json:"entries"`
}

func (stco *ChunkOffsetBox) Type() BoxType { return TypeSTCO }

func (stco *ChunkOffsetBox) Size() uint64 {
	return boxSize(fullPrefixLen + 4 + 4*uint64(len(stco.Entries)))
}

func (stco *ChunkOffsetBox) Decode(payload []byte) (err error) {
	b := util.Buffer(payload)
	if err = stco.decodeFull(&b); err != nil {
		return
	}
	count, err := readCount(&b, 4)
	if err != nil {
		return
	}
	stco.Entries = make([]uint32, count)
	for i := range stco.Entries {
		stco.Entries[i] = b.ReadUint32()
	}
	return
}

func (stco *ChunkOffsetBox) writePayload(b *util.Buffer) {
	stco.encodeFull(b)
	b.WriteUint32(uint32(len(stco.Entries)))
	for _, offset := range stco.Entries {
		b.WriteUint32(offset)
	}
}

func (stco *ChunkOffsetBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, stco)
}

func (stco *ChunkOffsetBox) Summary() string {
	return fmt.Sprintf("entries=%d", len(stco.Entries))
}

// aligned(8) class ChunkLargeOffsetBox extends FullBox(‘co64’, version = 0, 0) {
//     unsigned int(32) entry_count;
//     for (i=1; i <= entry_count; i++) {
//         unsigned int(64) chunk_offset;
//     }
// }

type ChunkLargeOffsetBox struct {
	FullBox
	Entries []uint64 `json:"entries"`
}

func (co64 *ChunkLargeOffsetBox) Type() BoxType { return TypeCO64 }

func (co64 *ChunkLargeOffsetBox) Size() uint64 {
	return boxSize(fullPrefixLen + 4 + 8*uint64(len(co64.Entries)))
}

func (co64 *ChunkLargeOffsetBox) Decode(payload []byte) (err error) {
	b := util.Buffer(payload)
	if err = co64.decodeFull(&b); err != nil {
		return
	}
	count, err := readCount(&b, 8)
	if err != nil {
		return
	}
	co64.Entries = make([]uint64, count)
	for i := range co64.Entries {
		co64.Entries[i] = b.ReadUint64()
	}
	return
}

func (co64 *ChunkLargeOffsetBox) writePayload(b *util.Buffer) {
	co64.encodeFull(b)
	b.WriteUint32(uint32(len(co64.Entries)))
	for _, offset := range co64.Entries {
		b.WriteUint64(offset)
	}
}

func (co64 *ChunkLargeOffsetBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, co64)
}

func (co64 *ChunkLargeOffsetBox) Summary() string {
	return fmt.Sprintf("entries=%d", len(co64.Entries))
}
