package box

import (
	"fmt"
	"io"

	"m7s.live/isobmff/pkg/util"
)

type MovieBox struct {
	Mvhd   *MovieHeaderBox  `json:"mvhd"`
	Traks  []*TrackBox      `json:"traks"`
	Mvex   *MovieExtendsBox `json:"mvex,omitempty"`
	Others []IBox           `json:"-"`
}

func (moov *MovieBox) Type() BoxType { return TypeMOOV }

func (moov *MovieBox) Size() uint64 {
	n := sizeOf(moov.Traks...) + sizeOf(moov.Others...)
	if moov.Mvhd != nil {
		n += moov.Mvhd.Size()
	}
	if moov.Mvex != nil {
		n += moov.Mvex.Size()
	}
	return boxSize(n)
}

func (moov *MovieBox) Decode(payload []byte) error {
	*moov = MovieBox{}
	err := ReadChildren(payload, func(h *BasicBox, data []byte) (err error) {
		switch h.Type {
		case TypeMVHD:
			moov.Mvhd, err = decodeAs[MovieHeaderBox](h, data)
		case TypeTRAK:
			var trak *TrackBox
			if trak, err = decodeAs[TrackBox](h, data); err == nil {
				moov.Traks = append(moov.Traks, trak)
			}
		case TypeMVEX:
			moov.Mvex, err = decodeAs[MovieExtendsBox](h, data)
		default:
			moov.Others = append(moov.Others, decodeRaw(h, data))
		}
		return
	})
	if err != nil {
		return err
	}
	if moov.Mvhd == nil {
		return missing(TypeMVHD)
	}
	return nil
}

func (moov *MovieBox) writePayload(b *util.Buffer) {
	if moov.Mvhd != nil {
		moov.Mvhd.Encode(b)
	}
	writeBoxes(b, moov.Traks...)
	if moov.Mvex != nil {
		moov.Mvex.Encode(b)
	}
	writeBoxes(b, moov.Others...)
}

func (moov *MovieBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, moov)
}

func (moov *MovieBox) Summary() string {
	return fmt.Sprintf("traks=%d fragmented=%t", len(moov.Traks), moov.Mvex != nil)
}

// Trex returns the trex defaults for trackID, if any.
func (moov *MovieBox) Trex(trackID uint32) *TrackExtendsBox {
	if moov.Mvex == nil {
		return nil
	}
	for _, trex := range moov.Mvex.Trexs {
		if trex.TrackID == trackID {
			return trex
		}
	}
	return nil
}

// aligned(8) class MovieHeaderBox extends FullBox(‘mvhd’, version, 0) {
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
//     template int(32) rate = 0x00010000; // typically 1.0
//     template int(16) volume = 0x0100; // typically, full volume
//     const bit(16) reserved = 0;
//     const unsigned int(32)[2] reserved = 0;
//     template int(32)[9] matrix = { 0x00010000,0,0,0,0x00010000,0,0,0,0x40000000 };
//     bit(32)[6] pre_defined = 0;
//     unsigned int(32) next_track_ID;
// }

type MovieHeaderBox struct {
	FullBox
	CreationTime     uint64   `json:"creationTime"`
	ModificationTime uint64   `json:"modificationTime"`
	Timescale        uint32   `json:"timescale"`
	Duration         uint64   `json:"duration"`
	Rate             Fixed32  `json:"rate"`
	Volume           Fixed16  `json:"volume"`
	Matrix           [9]int32 `json:"matrix"`
	NextTrackID      uint32   `json:"nextTrackId"`
}

func (mvhd *MovieHeaderBox) Type() BoxType { return TypeMVHD }

func (mvhd *MovieHeaderBox) Size() uint64 {
	if mvhd.Version == 1 {
		return boxSize(fullPrefixLen + 28 + 80)
	}
	return boxSize(fullPrefixLen + 16 + 80)
}

func (mvhd *MovieHeaderBox) Decode(payload []byte) (err error) {
	b := util.Buffer(payload)
	if err = mvhd.decodeFull(&b); err != nil {
		return
	}
	if err = mvhd.checkVersion(1); err != nil {
		return
	}
	if mvhd.Version == 1 {
		if err = need(&b, 28+80, "mvhd"); err != nil {
			return
		}
		mvhd.CreationTime = b.ReadUint64()
		mvhd.ModificationTime = b.ReadUint64()
		mvhd.Timescale = b.ReadUint32()
		mvhd.Duration = b.ReadUint64()
	} else {
		if err = need(&b, 16+80, "mvhd"); err != nil {
			return
		}
		mvhd.CreationTime = uint64(b.ReadUint32())
		mvhd.ModificationTime = uint64(b.ReadUint32())
		mvhd.Timescale = b.ReadUint32()
		mvhd.Duration = uint64(b.ReadUint32())
	}
	mvhd.Rate = Fixed32(b.ReadUint32())
	mvhd.Volume = Fixed16(b.ReadUint16())
	b.Skip(10)
	for i := range mvhd.Matrix {
		mvhd.Matrix[i] = b.ReadInt32()
	}
	b.Skip(24)
	mvhd.NextTrackID = b.ReadUint32()
	return
}

func (mvhd *MovieHeaderBox) writePayload(b *util.Buffer) {
	mvhd.encodeFull(b)
	if mvhd.Version == 1 {
		b.WriteUint64(mvhd.CreationTime)
		b.WriteUint64(mvhd.ModificationTime)
		b.WriteUint32(mvhd.Timescale)
		b.WriteUint64(mvhd.Duration)
	} else {
		b.WriteUint32(uint32(mvhd.CreationTime))
		b.WriteUint32(uint32(mvhd.ModificationTime))
		b.WriteUint32(mvhd.Timescale)
		b.WriteUint32(uint32(mvhd.Duration))
	}
	b.WriteUint32(uint32(mvhd.Rate))
	b.WriteUint16(uint16(mvhd.Volume))
	b.WriteZero(10)
	for _, m := range mvhd.Matrix {
		b.WriteUint32(uint32(m))
	}
	b.WriteZero(24)
	b.WriteUint32(mvhd.NextTrackID)
}

func (mvhd *MovieHeaderBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, mvhd)
}

func (mvhd *MovieHeaderBox) Summary() string {
	return fmt.Sprintf("version=%d timescale=%d duration=%d rate=%g volume=%g next_track_id=%d",
		mvhd.Version, mvhd.Timescale, mvhd.Duration, mvhd.Rate.Float(), mvhd.Volume.Float(), mvhd.NextTrackID)
}
