package box

import (
	"fmt"
	"io"

	"m7s.live/isobmff/pkg/util"
)

type TrackBox struct {
	Tkhd   *TrackHeaderBox `json:"tkhd"`
	Edts   *EditBox        `json:"edts,omitempty"`
	Mdia   *MediaBox       `json:"mdia"`
	Others []IBox          `json:"-"`
}

func (trak *TrackBox) Type() BoxType { return TypeTRAK }

func (trak *TrackBox) Size() uint64 {
	n := sizeOf(trak.Others...)
	if trak.Tkhd != nil {
		n += trak.Tkhd.Size()
	}
	if trak.Edts != nil {
		n += trak.Edts.Size()
	}
	if trak.Mdia != nil {
		n += trak.Mdia.Size()
	}
	return boxSize(n)
}

func (trak *TrackBox) Decode(payload []byte) error {
	*trak = TrackBox{}
	err := ReadChildren(payload, func(h *BasicBox, data []byte) (err error) {
		switch h.Type {
		case TypeTKHD:
			trak.Tkhd, err = decodeAs[TrackHeaderBox](h, data)
		case TypeEDTS:
			trak.Edts, err = decodeAs[EditBox](h, data)
		case TypeMDIA:
			trak.Mdia, err = decodeAs[MediaBox](h, data)
		default:
			trak.Others = append(trak.Others, decodeRaw(h, data))
		}
		return
	})
	if err != nil {
		return err
	}
	if trak.Tkhd == nil {
		return missing(TypeTKHD)
	}
	if trak.Mdia == nil {
		return missing(TypeMDIA)
	}
	return nil
}

func (trak *TrackBox) writePayload(b *util.Buffer) {
	if trak.Tkhd != nil {
		trak.Tkhd.Encode(b)
	}
	if trak.Edts != nil {
		trak.Edts.Encode(b)
	}
	if trak.Mdia != nil {
		trak.Mdia.Encode(b)
	}
	writeBoxes(b, trak.Others...)
}

func (trak *TrackBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, trak)
}

func (trak *TrackBox) Summary() string {
	if trak.Tkhd == nil {
		return "track_id=?"
	}
	return fmt.Sprintf("track_id=%d", trak.Tkhd.TrackID)
}

// Stbl is a shortcut to mdia/minf/stbl.
func (trak *TrackBox) Stbl() *SampleTableBox {
	if trak.Mdia == nil || trak.Mdia.Minf == nil {
		return nil
	}
	return trak.Mdia.Minf.Stbl
}

const (
	TrackEnabled   = 0x000001
	TrackInMovie   = 0x000002
	TrackInPreview = 0x000004
)

// aligned(8) class TrackHeaderBox extends FullBox(‘tkhd’, version, flags) {
//     if (version==1) {
//         unsigned int(64) creation_time;
//         unsigned int(64) modification_time;
//         unsigned int(32) track_ID;
//         const unsigned int(32) reserved = 0;
//         unsigned int(64) duration;
//     } else { // version==0
//         unsigned int(32) creation_time;
//         unsigned int(32) modification_time;
//         unsigned int(32) track_ID;
//         const unsigned int(32) reserved = 0;
//         unsigned int(32) duration;
//     }
//     const unsigned int(32)[2] reserved = 0;
//     template int(16) layer = 0;
//     template int(16) alternate_group = 0;
//     template int(16) volume = {if track_is_audio 0x0100 else 0};
//     const unsigned int(16) reserved = 0;
//     template int(32)[9] matrix = { 0x00010000,0,0,0,0x00010000,0,0,0,0x40000000 };
//     unsigned int(32) width;
//     unsigned int(32) height;
// }

type TrackHeaderBox struct {
	FullBox
	CreationTime     uint64   `json:"creationTime"`
	ModificationTime uint64   `json:"modificationTime"`
	TrackID          uint32   `json:"trackId"`
	Duration         uint64   `json:"duration"`
	Layer            int16    `json:"layer"`
	AlternateGroup   int16    `json:"alternateGroup"`
	Volume           Fixed16  `json:"volume"`
	Matrix           [9]int32 `json:"matrix"`
	Width            Fixed32  `json:"width"`
	Height           Fixed32  `json:"height"`
}

// NewTrackHeaderBox returns an enabled version 0 header with the unity matrix.
func NewTrackHeaderBox(trackID uint32) *TrackHeaderBox {
	return &TrackHeaderBox{
		FullBox: FullBox{Flags: TrackEnabled},
		TrackID: trackID,
		Matrix:  UnityMatrix,
	}
}

func (tkhd *TrackHeaderBox) Type() BoxType { return TypeTKHD }

func (tkhd *TrackHeaderBox) Size() uint64 {
	if tkhd.Version == 1 {
		return boxSize(fullPrefixLen + 32 + 60)
	}
	return boxSize(fullPrefixLen + 20 + 60)
}

func (tkhd *TrackHeaderBox) Enabled() bool {
	return tkhd.Flags&TrackEnabled != 0
}

func (tkhd *TrackHeaderBox) Decode(payload []byte) (err error) {
	b := util.Buffer(payload)
	if err = tkhd.decodeFull(&b); err != nil {
		return
	}
	if err = tkhd.checkVersion(1); err != nil {
		return
	}
	if tkhd.Version == 1 {
		if err = need(&b, 32+60, "tkhd"); err != nil {
			return
		}
		tkhd.CreationTime = b.ReadUint64()
		tkhd.ModificationTime = b.ReadUint64()
		tkhd.TrackID = b.ReadUint32()
		b.Skip(4)
		tkhd.Duration = b.ReadUint64()
	} else {
		if err = need(&b, 20+60, "tkhd"); err != nil {
			return
		}
		tkhd.CreationTime = uint64(b.ReadUint32())
		tkhd.ModificationTime = uint64(b.ReadUint32())
		tkhd.TrackID = b.ReadUint32()
		b.Skip(4)
		tkhd.Duration = uint64(b.ReadUint32())
	}
	b.Skip(8)
	tkhd.Layer = int16(b.ReadUint16())
	tkhd.AlternateGroup = int16(b.ReadUint16())
	tkhd.Volume = Fixed16(b.ReadUint16())
	b.Skip(2)
	for i := range tkhd.Matrix {
		tkhd.Matrix[i] = b.ReadInt32()
	}
	tkhd.Width = Fixed32(b.ReadUint32())
	tkhd.Height = Fixed32(b.ReadUint32())
	return
}

func (tkhd *TrackHeaderBox) writePayload(b *util.Buffer) {
	tkhd.encodeFull(b)
	if tkhd.Version == 1 {
		b.WriteUint64(tkhd.CreationTime)
		b.WriteUint64(tkhd.ModificationTime)
		b.WriteUint32(tkhd.TrackID)
		b.WriteZero(4)
		b.WriteUint64(tkhd.Duration)
	} else {
		b.WriteUint32(uint32(tkhd.CreationTime))
		b.WriteUint32(uint32(tkhd.ModificationTime))
		b.WriteUint32(tkhd.TrackID)
		b.WriteZero(4)
		b.WriteUint32(uint32(tkhd.Duration))
	}
	b.WriteZero(8)
	b.WriteUint16(uint16(tkhd.Layer))
	b.WriteUint16(uint16(tkhd.AlternateGroup))
	b.WriteUint16(uint16(tkhd.Volume))
	b.WriteZero(2)
	for _, m := range tkhd.Matrix {
		b.WriteUint32(uint32(m))
	}
	b.WriteUint32(uint32(tkhd.Width))
	b.WriteUint32(uint32(tkhd.Height))
}

func (tkhd *TrackHeaderBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, tkhd)
}

func (tkhd *TrackHeaderBox) Summary() string {
	return fmt.Sprintf("version=%d track_id=%d enabled=%t duration=%d volume=%g width=%g height=%g",
		tkhd.Version, tkhd.TrackID, tkhd.Enabled(), tkhd.Duration, tkhd.Volume.Float(), tkhd.Width.Float(), tkhd.Height.Float())
}

type EditBox struct {
	Elst   *EditListBox `json:"elst,omitempty"`
	Others []IBox       `json:"-"`
}

func (edts *EditBox) Type() BoxType { return TypeEDTS }

func (edts *EditBox) Size() uint64 {
	n := sizeOf(edts.Others...)
	if edts.Elst != nil {
		n += edts.Elst.Size()
	}
	return boxSize(n)
}

func (edts *EditBox) Decode(payload []byte) error {
	*edts = EditBox{}
	return ReadChildren(payload, func(h *BasicBox, data []byte) (err error) {
		if h.Type == TypeELST {
			edts.Elst, err = decodeAs[EditListBox](h, data)
		} else {
			edts.Others = append(edts.Others, decodeRaw(h, data))
		}
		return
	})
}

func (edts *EditBox) writePayload(b *util.Buffer) {
	if edts.Elst != nil {
		edts.Elst.Encode(b)
	}
	writeBoxes(b, edts.Others...)
}

func (edts *EditBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, edts)
}

func (edts *EditBox) Summary() string {
	if edts.Elst == nil {
		return "elst=none"
	}
	return fmt.Sprintf("elst=%d", len(edts.Elst.Entries))
}

// aligned(8) class EditListBox extends FullBox(‘elst’, version, 0) {
//     unsigned int(32) entry_count;
//     for (i=1; i <= entry_count; i++) {
//         if (version==1) {
//             unsigned int(64) segment_duration;
//             int(64) media_time;
//         } else { // version==0
//             unsigned int(32) segment_duration;
//             int(32) media_time;
//         }
//         int(16) media_rate_integer;
//         int(16) media_rate_fraction = 0;
//     }
// }

type ELSTEntry struct {
	SegmentDuration   uint64 `json:"segmentDuration"`
	MediaTime         int64  `json:"mediaTime"`
	MediaRateInteger  int16  `json:"mediaRateInteger"`
	MediaRateFraction int16  `json:"mediaRateFraction"`
}

type EditListBox struct {
	FullBox
	Entries []ELSTEntry `json:"entries"`
}

func (elst *EditListBox) Type() BoxType { return TypeELST }

func (elst *EditListBox) entrySize() int {
	if elst.Version == 1 {
		return 20
	}
	return 12
}

func (elst *EditListBox) Size() uint64 {
	return boxSize(fullPrefixLen + 4 + uint64(elst.entrySize()*len(elst.Entries)))
}

func (elst *EditListBox) Decode(payload []byte) (err error) {
	b := util.Buffer(payload)
	if err = elst.decodeFull(&b); err != nil {
		return
	}
	if err = elst.checkVersion(1); err != nil {
		return
	}
	count, err := readCount(&b, elst.entrySize())
	if err != nil {
		return
	}
	elst.Entries = make([]ELSTEntry, count)
	for i := range elst.Entries {
		entry := &elst.Entries[i]
		if elst.Version == 1 {
			entry.SegmentDuration = b.ReadUint64()
			entry.MediaTime = b.ReadInt64()
		} else {
			entry.SegmentDuration = uint64(b.ReadUint32())
			entry.MediaTime = int64(b.ReadInt32())
		}
		entry.MediaRateInteger = int16(b.ReadUint16())
		entry.MediaRateFraction = int16(b.ReadUint16())
	}
	return
}

func (elst *EditListBox) writePayload(b *util.Buffer) {
	elst.encodeFull(b)
	b.WriteUint32(uint32(len(elst.Entries)))
	for _, entry := range elst.Entries {
		if elst.Version == 1 {
			b.WriteUint64(entry.SegmentDuration)
			b.WriteUint64(uint64(entry.MediaTime))
		} else {
			b.WriteUint32(uint32(entry.SegmentDuration))
			b.WriteUint32(uint32(int32(entry.MediaTime)))
		}
		b.WriteUint16(uint16(entry.MediaRateInteger))
		b.WriteUint16(uint16(entry.MediaRateFraction))
	}
}

func (elst *EditListBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, elst)
}

func (elst *EditListBox) Summary() string {
	return fmt.Sprintf("version=%d entries=%d", elst.Version, len(elst.Entries))
}
