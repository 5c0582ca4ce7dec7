package box

import (
	"fmt"
	"io"

	"m7s.live/isobmff/pkg/util"
)

type MovieFragmentBox struct {
	Mfhd   *MovieFragmentHeaderBox `json:"mfhd"`
	Trafs  []*TrackFragmentBox     `json:"trafs"`
	Others []IBox                  `json:"-"`
}

func (moof *MovieFragmentBox) Type() BoxType { return TypeMOOF }

func (moof *MovieFragmentBox) Size() uint64 {
	n := sizeOf(moof.Trafs...) + sizeOf(moof.Others...)
	if moof.Mfhd != nil {
		n += moof.Mfhd.Size()
	}
	return boxSize(n)
}

func (moof *MovieFragmentBox) Decode(payload []byte) error {
	*moof = MovieFragmentBox{}
	err := ReadChildren(payload, func(h *BasicBox, data []byte) (err error) {
		switch h.Type {
		case TypeMFHD:
			moof.Mfhd, err = decodeAs[MovieFragmentHeaderBox](h, data)
		case TypeTRAF:
			var traf *TrackFragmentBox
			if traf, err = decodeAs[TrackFragmentBox](h, data); err == nil {
				moof.Trafs = append(moof.Trafs, traf)
			}
		default:
			moof.Others = append(moof.Others, decodeRaw(h, data))
		}
		return
	})
	if err != nil {
		return err
	}
	if moof.Mfhd == nil {
		return missing(TypeMFHD)
	}
	return nil
}

func (moof *MovieFragmentBox) writePayload(b *util.Buffer) {
	if moof.Mfhd != nil {
		moof.Mfhd.Encode(b)
	}
	writeBoxes(b, moof.Trafs...)
	writeBoxes(b, moof.Others...)
}

func (moof *MovieFragmentBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, moof)
}

func (moof *MovieFragmentBox) Summary() string {
	var seq uint32
	if moof.Mfhd != nil {
		seq = moof.Mfhd.SequenceNumber
	}
	return fmt.Sprintf("sequence_number=%d trafs=%d", seq, len(moof.Trafs))
}

// aligned(8) class MovieFragmentHeaderBox extends FullBox(‘mfhd’, 0, 0){
//     unsigned int(32) sequence_number;
// }

type MovieFragmentHeaderBox struct {
	FullBox
	SequenceNumber uint32 `json:"sequenceNumber"`
}

func (mfhd *MovieFragmentHeaderBox) Type() BoxType { return TypeMFHD }

func (mfhd *MovieFragmentHeaderBox) Size() uint64 {
	return boxSize(fullPrefixLen + 4)
}

func (mfhd *MovieFragmentHeaderBox) Decode(payload []byte) (err error) {
	b := util.Buffer(payload)
	if err = mfhd.decodeFull(&b); err != nil {
		return
	}
	if err = need(&b, 4, "sequence_number"); err == nil {
		mfhd.SequenceNumber = b.ReadUint32()
	}
	return
}

func (mfhd *MovieFragmentHeaderBox) writePayload(b *util.Buffer) {
	mfhd.encodeFull(b)
	b.WriteUint32(mfhd.SequenceNumber)
}

func (mfhd *MovieFragmentHeaderBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, mfhd)
}

func (mfhd *MovieFragmentHeaderBox) Summary() string {
	return fmt.Sprintf("sequence_number=%d", mfhd.SequenceNumber)
}

type TrackFragmentBox struct {
	Tfhd   *TrackFragmentHeaderBox              `json:"tfhd"`
	Tfdt   *TrackFragmentBaseMediaDecodeTimeBox `json:"tfdt,omitempty"`
	Truns  []*TrackRunBox                       `json:"truns"`
	Others []IBox                               `json:"-"`
}

func (traf *TrackFragmentBox) Type() BoxType { return TypeTRAF }

func (traf *TrackFragmentBox) Size() uint64 {
	n := sizeOf(traf.Truns...) + sizeOf(traf.Others...)
	if traf.Tfhd != nil {
		n += traf.Tfhd.Size()
	}
	if traf.Tfdt != nil {
		n += traf.Tfdt.Size()
	}
	return boxSize(n)
}

func (traf *TrackFragmentBox) Decode(payload []byte) error {
	*traf = TrackFragmentBox{}
	err := ReadChildren(payload, func(h *BasicBox, data []byte) (err error) {
		switch h.Type {
		case TypeTFHD:
			traf.Tfhd, err = decodeAs[TrackFragmentHeaderBox](h, data)
		case TypeTFDT:
			traf.Tfdt, err = decodeAs[TrackFragmentBaseMediaDecodeTimeBox](h, data)
		case TypeTRUN:
			var trun *TrackRunBox
			if trun, err = decodeAs[TrackRunBox](h, data); err == nil {
				traf.Truns = append(traf.Truns, trun)
			}
		default:
			traf.Others = append(traf.Others, decodeRaw(h, data))
		}
		return
	})
	if err != nil {
		return err
	}
	if traf.Tfhd == nil {
		return missing(TypeTFHD)
	}
	return nil
}

func (traf *TrackFragmentBox) writePayload(b *util.Buffer) {
	if traf.Tfhd != nil {
		traf.Tfhd.Encode(b)
	}
	if traf.Tfdt != nil {
		traf.Tfdt.Encode(b)
	}
	writeBoxes(b, traf.Truns...)
	writeBoxes(b, traf.Others...)
}

func (traf *TrackFragmentBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, traf)
}

func (traf *TrackFragmentBox) Summary() string {
	var trackID uint32
	if traf.Tfhd != nil {
		trackID = traf.Tfhd.TrackID
	}
	return fmt.Sprintf("track_id=%d truns=%d", trackID, len(traf.Truns))
}

// SampleCount sums the samples of every run.
func (traf *TrackFragmentBox) SampleCount() (n uint64) {
	for _, trun := range traf.Truns {
		n += uint64(trun.SampleCount)
	}
	return
}

const (
	TF_FLAG_BASE_DATA_OFFSET                 uint32 = 0x000001
	TF_FLAG_SAMPLE_DESCRIPTION_INDEX_PRESENT uint32 = 0x000002
	TF_FLAG_DEFAULT_SAMPLE_DURATION_PRESENT  uint32 = 0x000008
	TF_FLAG_DEFAULT_SAMPLE_SIZE_PRESENT      uint32 = 0x000010
	TF_FLAG_DEFAULT_SAMPLE_FLAGS_PRESENT     uint32 = 0x000020
	TF_FLAG_DURATION_IS_EMPTY                uint32 = 0x010000
	TF_FLAG_DEFAULT_BASE_IS_MOOF             uint32 = 0x020000
)

// aligned(8) class TrackFragmentHeaderBox extends FullBox(‘tfhd’, 0, tf_flags){
//     unsigned int(32) track_ID;
//     // all the following are optional fields
//     unsigned int(64) base_data_offset;
//     unsigned int(32) sample_description_index;
//     unsigned int(32) default_sample_duration;
//     unsigned int(32) default_sample_size;
//     unsigned int(32) default_sample_flags
// }

type TrackFragmentHeaderBox struct {
	FullBox
	TrackID                uint32 `json:"trackId"`
	BaseDataOffset         uint64 `json:"baseDataOffset,omitempty"`
	SampleDescriptionIndex uint32 `json:"sampleDescriptionIndex,omitempty"`
	DefaultSampleDuration  uint32 `json:"defaultSampleDuration,omitempty"`
	DefaultSampleSize      uint32 `json:"defaultSampleSize,omitempty"`
	DefaultSampleFlags     uint32 `json:"defaultSampleFlags,omitempty"`
}

func (tfhd *TrackFragmentHeaderBox) Type() BoxType { return TypeTFHD }

func (tfhd *TrackFragmentHeaderBox) Has(flag uint32) bool {
	return tfhd.Flags&flag != 0
}

func (tfhd *TrackFragmentHeaderBox) Size() uint64 {
	n := uint64(fullPrefixLen + 4)
	if tfhd.Has(TF_FLAG_BASE_DATA_OFFSET) {
		n += 8
	}
	for _, flag := range []uint32{TF_FLAG_SAMPLE_DESCRIPTION_INDEX_PRESENT, TF_FLAG_DEFAULT_SAMPLE_DURATION_PRESENT, TF_FLAG_DEFAULT_SAMPLE_SIZE_PRESENT, TF_FLAG_DEFAULT_SAMPLE_FLAGS_PRESENT} {
		if tfhd.Has(flag) {
			n += 4
		}
	}
	return boxSize(n)
}

func (tfhd *TrackFragmentHeaderBox) Decode(payload []byte) (err error) {
	b := util.Buffer(payload)
	if err = tfhd.decodeFull(&b); err != nil {
		return
	}
	if err = need(&b, int(tfhd.Size()-BasicBoxLen-fullPrefixLen), "tfhd"); err != nil {
		return
	}
	tfhd.TrackID = b.ReadUint32()
	if tfhd.Has(TF_FLAG_BASE_DATA_OFFSET) {
		tfhd.BaseDataOffset = b.ReadUint64()
	}
	if tfhd.Has(TF_FLAG_SAMPLE_DESCRIPTION_INDEX_PRESENT) {
		tfhd.SampleDescriptionIndex = b.ReadUint32()
	}
	if tfhd.Has(TF_FLAG_DEFAULT_SAMPLE_DURATION_PRESENT) {
		tfhd.DefaultSampleDuration = b.ReadUint32()
	}
	if tfhd.Has(TF_FLAG_DEFAULT_SAMPLE_SIZE_PRESENT) {
		tfhd.DefaultSampleSize = b.ReadUint32()
	}
	if tfhd.Has(TF_FLAG_DEFAULT_SAMPLE_FLAGS_PRESENT) {
		tfhd.DefaultSampleFlags = b.ReadUint32()
	}
	return
}

func (tfhd *TrackFragmentHeaderBox) writePayload(b *util.Buffer) {
	tfhd.encodeFull(b)
	b.WriteUint32(tfhd.TrackID)
	if tfhd.Has(TF_FLAG_BASE_DATA_OFFSET) {
		b.WriteUint64(tfhd.BaseDataOffset)
	}
	if tfhd.Has(TF_FLAG_SAMPLE_DESCRIPTION_INDEX_PRESENT) {
		b.WriteUint32(tfhd.SampleDescriptionIndex)
	}
	if tfhd.Has(TF_FLAG_DEFAULT_SAMPLE_DURATION_PRESENT) {
		b.WriteUint32(tfhd.DefaultSampleDuration)
	}
	if tfhd.Has(TF_FLAG_DEFAULT_SAMPLE_SIZE_PRESENT) {
		b.WriteUint32(tfhd.DefaultSampleSize)
	}
	if tfhd.Has(TF_FLAG_DEFAULT_SAMPLE_FLAGS_PRESENT) {
		b.WriteUint32(tfhd.DefaultSampleFlags)
	}
}

func (tfhd *TrackFragmentHeaderBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, tfhd)
}

func (tfhd *TrackFragmentHeaderBox) Summary() string {
	return fmt.Sprintf("track_id=%d flags=0x%06x base_data_offset=%d default_sample_duration=%d default_sample_size=%d default_sample_flags=0x%08x",
		tfhd.TrackID, tfhd.Flags, tfhd.BaseDataOffset, tfhd.DefaultSampleDuration, tfhd.DefaultSampleSize, tfhd.DefaultSampleFlags)
}

// aligned(8) class TrackFragmentBaseMediaDecodeTimeBox extends FullBox(‘tfdt’, version, 0) {
//     if (version==1) {
//         unsigned int(64) baseMediaDecodeTime;
//     } else { // version==0
//         unsigned int(32) baseMediaDecodeTime;
//     }
// }

type TrackFragmentBaseMediaDecodeTimeBox struct {
	FullBox
	BaseMediaDecodeTime uint64 `json:"baseMediaDecodeTime"`
}

func (tfdt *TrackFragmentBaseMediaDecodeTimeBox) Type() BoxType { return TypeTFDT }

func (tfdt *TrackFragmentBaseMediaDecodeTimeBox) Size() uint64 {
	if tfdt.Version == 1 {
		return boxSize(fullPrefixLen + 8)
	}
	return boxSize(fullPrefixLen + 4)
}

func (tfdt *TrackFragmentBaseMediaDecodeTimeBox) Decode(payload []byte) (err error) {
	b := util.Buffer(payload)
	if err = tfdt.decodeFull(&b); err != nil {
		return
	}
	if err = tfdt.checkVersion(1); err != nil {
		return
	}
	if tfdt.Version == 1 {
		if err = need(&b, 8, "baseMediaDecodeTime"); err == nil {
			tfdt.BaseMediaDecodeTime = b.ReadUint64()
		}
		return
	}
	if err = need(&b, 4, "baseMediaDecodeTime"); err == nil {
		tfdt.BaseMediaDecodeTime = uint64(b.ReadUint32())
	}
	return
}

func (tfdt *TrackFragmentBaseMediaDecodeTimeBox) writePayload(b *util.Buffer) {
	tfdt.encodeFull(b)
	if tfdt.Version == 1 {
		b.WriteUint64(tfdt.BaseMediaDecodeTime)
	} else {
		b.WriteUint32(uint32(tfdt.BaseMediaDecodeTime))
	}
}

func (tfdt *TrackFragmentBaseMediaDecodeTimeBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, tfdt)
}

func (tfdt *TrackFragmentBaseMediaDecodeTimeBox) Summary() string {
	return fmt.Sprintf("version=%d base_media_decode_time=%d", tfdt.Version, tfdt.BaseMediaDecodeTime)
}
