package box

import (
	"fmt"
	"io"

	"m7s.live/isobmff/pkg/util"
)

type MovieExtendsBox struct {
	Mehd   *MovieExtendsHeaderBox `json:"mehd,omitempty"`
	Trexs  []*TrackExtendsBox     `json:"trexs"`
	Others []IBox                 `json:"-"`
}

func (mvex *MovieExtendsBox) Type() BoxType { return TypeMVEX }

func (mvex *MovieExtendsBox) Size() uint64 {
	n := sizeOf(mvex.Trexs...) + sizeOf(mvex.Others...)
	if mvex.Mehd != nil {
		n += mvex.Mehd.Size()
	}
	return boxSize(n)
}

func (mvex *MovieExtendsBox) Decode(payload []byte) error {
	*mvex = MovieExtendsBox{}
	return ReadChildren(payload, func(h *BasicBox, data []byte) (err error) {
		switch h.Type {
		case TypeMEHD:
			mvex.Mehd, err = decodeAs[MovieExtendsHeaderBox](h, data)
		case TypeTREX:
			var trex *TrackExtendsBox
			if trex, err = decodeAs[TrackExtendsBox](h, data); err == nil {
				mvex.Trexs = append(mvex.Trexs, trex)
			}
		default:
			mvex.Others = append(mvex.Others, decodeRaw(h, data))
		}
		return
	})
}

func (mvex *MovieExtendsBox) writePayload(b *util.Buffer) {
	if mvex.Mehd != nil {
		mvex.Mehd.Encode(b)
	}
	writeBoxes(b, mvex.Trexs...)
	writeBoxes(b, mvex.Others...)
}

func (mvex *MovieExtendsBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, mvex)
}

func (mvex *MovieExtendsBox) Summary() string {
	return fmt.Sprintf("trexs=%d", len(mvex.Trexs))
}

// aligned(8) class MovieExtendsHeaderBox extends FullBox(‘mehd’, version, 0) {
//     if (version==1) {
//         unsigned int(64) fragment_duration;
//     } else { // version==0
//         unsigned int(32) fragment_duration;
//     }
// }

type MovieExtendsHeaderBox struct {
	FullBox
	FragmentDuration uint64 `json:"fragmentDuration"`
}

func (mehd *MovieExtendsHeaderBox) Type() BoxType { return TypeMEHD }

func (mehd *MovieExtendsHeaderBox) Size() uint64 {
	if mehd.Version == 1 {
		return boxSize(fullPrefixLen + 8)
	}
	return boxSize(fullPrefixLen + 4)
}

func (mehd *MovieExtendsHeaderBox) Decode(payload []byte) (err error) {
	b := util.Buffer(payload)
	if err = mehd.decodeFull(&b); err != nil {
		return
	}
	if err = mehd.checkVersion(1); err != nil {
		return
	}
	if mehd.Version == 1 {
		if err = need(&b, 8, "fragment_duration"); err == nil {
			mehd.FragmentDuration = b.ReadUint64()
		}
		return
	}
	if err = need(&b, 4, "fragment_duration"); err == nil {
		mehd.FragmentDuration = uint64(b.ReadUint32())
	}
	return
}

func (mehd *MovieExtendsHeaderBox) writePayload(b *util.Buffer) {
	mehd.encodeFull(b)
	if mehd.Version == 1 {
		b.WriteUint64(mehd.FragmentDuration)
	} else {
		b.WriteUint32(uint32(mehd.FragmentDuration))
	}
}

func (mehd *MovieExtendsHeaderBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, mehd)
}

func (mehd *MovieExtendsHeaderBox) Summary() string {
	return fmt.Sprintf("version=%d fragment_duration=%d", mehd.Version, mehd.FragmentDuration)
}

// aligned(8) class TrackExtendsBox extends FullBox(‘trex’, 0, 0) {
//     unsigned int(32) track_ID;
//     unsigned int(32) default_sample_description_index;
//     unsigned int(32) default_sample_duration;
//     unsigned int(32) default_sample_size;
//     unsigned int(32) default_sample_flags;
// }

type TrackExtendsBox struct {
	FullBox
	TrackID                       uint32 `json:"trackId"`
	DefaultSampleDescriptionIndex uint32 `json:"defaultSampleDescriptionIndex"`
	DefaultSampleDuration         uint32 `json:"defaultSampleDuration"`
	DefaultSampleSize             uint32 `json:"defaultSampleSize"`
	DefaultSampleFlags            uint32 `json:"defaultSampleFlags"`
}

func (trex *TrackExtendsBox) Type() BoxType { return TypeTREX }

func (trex *TrackExtendsBox) Size() uint64 {
	return boxSize(fullPrefixLen + 20)
}

func (trex *TrackExtendsBox) Decode(payload []byte) (err error) {
	b := util.Buffer(payload)
	if err = trex.decodeFull(&b); err != nil {
		return
	}
	if err = need(&b, 20, "trex"); err != nil {
		return
	}
	trex.TrackID = b.ReadUint32()
	trex.DefaultSampleDescriptionIndex = b.ReadUint32()
	trex.DefaultSampleDuration = b.ReadUint32()
	trex.DefaultSampleSize = b.ReadUint32()
	trex.DefaultSampleFlags = b.ReadUint32()
	return
}

func (trex *TrackExtendsBox) writePayload(b *util.Buffer) {
	trex.encodeFull(b)
	b.WriteUint32(trex.TrackID)
	b.WriteUint32(trex.DefaultSampleDescriptionIndex)
	b.WriteUint32(trex.DefaultSampleDuration)
	b.WriteUint32(trex.DefaultSampleSize)
	b.WriteUint32(trex.DefaultSampleFlags)
}

func (trex *TrackExtendsBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, trex)
}

func (trex *TrackExtendsBox) Summary() string {
	return fmt.Sprintf("track_id=%d default_sample_duration=%d default_sample_size=%d default_sample_flags=0x%08x",
		trex.TrackID, trex.DefaultSampleDuration, trex.DefaultSampleSize, trex.DefaultSampleFlags)
}
