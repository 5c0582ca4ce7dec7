package box

import (
	"fmt"
	"io"

	"m7s.live/isobmff/pkg/util"
)

const (
	TR_FLAG_DATA_OFFSET                  uint32 = 0x000001
	TR_FLAG_DATA_FIRST_SAMPLE_FLAGS      uint32 = 0x000004
	TR_FLAG_DATA_SAMPLE_DURATION         uint32 = 0x000100
	TR_FLAG_DATA_SAMPLE_SIZE             uint32 = 0x000200
	TR_FLAG_DATA_SAMPLE_FLAGS            uint32 = 0x000400
	TR_FLAG_DATA_SAMPLE_COMPOSITION_TIME uint32 = 0x000800
)

// SampleIsNonSync is the sample_is_non_sync_sample bit of a sample flags word.
const SampleIsNonSync uint32 = 0x00010000

// maxImplicitSamples bounds runs that carry no per-sample fields, where
// the byte count gives no limit on sample_count.
const maxImplicitSamples = 1 << 20

// aligned(8) class TrackRunBox extends FullBox(‘trun’, version, tr_flags) {
//     unsigned int(32) sample_count;
//     // the following are optional fields
//     signed int(32) data_offset;
//     unsigned int(32) first_sample_flags;
//     // all fields in the following array are optional
//     {
//         unsigned int(32) sample_duration;
//         unsigned int(32) sample_size;
//         unsigned int(32) sample_flags
//         if (version == 0)
//             { unsigned int(32) sample_composition_time_offset; }
//         else
//             { signed int(32) sample_composition_time_offset; }
//     }[ sample_count ]
// }

type TRUNEntry struct {
	SampleDuration              uint32 `json:"sampleDuration,omitempty"`
	SampleSize                  uint32 `json:"sampleSize,omitempty"`
	SampleFlags                 uint32 `json:"sampleFlags,omitempty"`
	SampleCompositionTimeOffset int32  `json:"sampleCompositionTimeOffset,omitempty"`
}

type TrackRunBox struct {
	FullBox
	SampleCount      uint32      `json:"sampleCount"`
	DataOffset       int32       `json:"dataOffset,omitempty"`
	FirstSampleFlags uint32      `json:"firstSampleFlags,omitempty"`
	Entries          []TRUNEntry `json:"entries,omitempty"`
}

func (trun *TrackRunBox) Type() BoxType { return TypeTRUN }

func (trun *TrackRunBox) Has(flag uint32) bool {
	return trun.Flags&flag != 0
}

func (trun *TrackRunBox) entrySize() (n int) {
	for _, flag := range []uint32{TR_FLAG_DATA_SAMPLE_DURATION, TR_FLAG_DATA_SAMPLE_SIZE, TR_FLAG_DATA_SAMPLE_FLAGS, TR_FLAG_DATA_SAMPLE_COMPOSITION_TIME} {
		if trun.Has(flag) {
			n += 4
		}
	}
	return
}

func (trun *TrackRunBox) Size() uint64 {
	n := uint64(fullPrefixLen + 4)
	if trun.Has(TR_FLAG_DATA_OFFSET) {
		n += 4
	}
	if trun.Has(TR_FLAG_DATA_FIRST_SAMPLE_FLAGS) {
		n += 4
	}
	return boxSize(n + uint64(trun.entrySize()*len(trun.Entries)))
}

func (trun *TrackRunBox) Decode(payload []byte) (err error) {
	b := util.Buffer(payload)
	if err = trun.decodeFull(&b); err != nil {
		return
	}
	if err = trun.checkVersion(1); err != nil {
		return
	}
	if err = need(&b, 4, "sample_count"); err != nil {
		return
	}
	trun.SampleCount = b.ReadUint32()
	if trun.Has(TR_FLAG_DATA_OFFSET) {
		if err = need(&b, 4, "data_offset"); err != nil {
			return
		}
		trun.DataOffset = b.ReadInt32()
	}
	if trun.Has(TR_FLAG_DATA_FIRST_SAMPLE_FLAGS) {
		if err = need(&b, 4, "first_sample_flags"); err != nil {
			return
		}
		trun.FirstSampleFlags = b.ReadUint32()
	}
	trun.Entries = nil
	size := trun.entrySize()
	if size == 0 {
		if trun.SampleCount > maxImplicitSamples {
			return fmt.Errorf("%w: sample_count %d without per-sample fields", ErrInvalidData, trun.SampleCount)
		}
		return
	}
	if uint64(trun.SampleCount) > uint64(b.Len()/size) {
		return fmt.Errorf("%w: sample_count %d exceeds %d remaining bytes", ErrInvalidData, trun.SampleCount, b.Len())
	}
	trun.Entries = make([]TRUNEntry, trun.SampleCount)
	for i := range trun.Entries {
		entry := &trun.Entries[i]
		if trun.Has(TR_FLAG_DATA_SAMPLE_DURATION) {
			entry.SampleDuration = b.ReadUint32()
		}
		if trun.Has(TR_FLAG_DATA_SAMPLE_SIZE) {
			entry.SampleSize = b.ReadUint32()
		}
		if trun.Has(TR_FLAG_DATA_SAMPLE_FLAGS) {
			entry.SampleFlags = b.ReadUint32()
		}
		if trun.Has(TR_FLAG_DATA_SAMPLE_COMPOSITION_TIME) {
			entry.SampleCompositionTimeOffset = b.ReadInt32()
		}
	}
	return
}

func (trun *TrackRunBox) writePayload(b *util.Buffer) {
	trun.encodeFull(b)
	if trun.entrySize() > 0 {
		b.WriteUint32(uint32(len(trun.Entries)))
	} else {
		b.WriteUint32(trun.SampleCount)
	}
	if trun.Has(TR_FLAG_DATA_OFFSET) {
		b.WriteUint32(uint32(trun.DataOffset))
	}
	if trun.Has(TR_FLAG_DATA_FIRST_SAMPLE_FLAGS) {
		b.WriteUint32(trun.FirstSampleFlags)
	}
	for _, entry := range trun.Entries {
		if trun.Has(TR_FLAG_DATA_SAMPLE_DURATION) {
			b.WriteUint32(entry.SampleDuration)
		}
		if trun.Has(TR_FLAG_DATA_SAMPLE_SIZE) {
			b.WriteUint32(entry.SampleSize)
		}
		if trun.Has(TR_FLAG_DATA_SAMPLE_FLAGS) {
			b.WriteUint32(entry.SampleFlags)
		}
		if trun.Has(TR_FLAG_DATA_SAMPLE_COMPOSITION_TIME) {
			b.WriteUint32(uint32(entry.SampleCompositionTimeOffset))
		}
	}
}

func (trun *TrackRunBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, trun)
}

func (trun *TrackRunBox) Summary() string {
	return fmt.Sprintf("version=%d flags=0x%06x sample_count=%d data_offset=%d first_sample_flags=0x%08x",
		trun.Version, trun.Flags, trun.SampleCount, trun.DataOffset, trun.FirstSampleFlags)
}
