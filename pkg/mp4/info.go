package mp4

import (
	"fmt"
	"strings"

	. "m7s.live/isobmff/pkg/box"
)

type (
	TrackInfo struct {
		TrackID         uint32     `json:"trackId"`
		Handler         BoxType    `json:"handler"`
		Codec           *CodecInfo `json:"codec,omitempty"`
		Timescale       uint32     `json:"timescale"`
		Duration        uint64     `json:"duration"`
		DurationSeconds float64    `json:"durationSeconds"`
		Samples         int        `json:"samples"`
		SyncSamples     int        `json:"syncSamples"`
		Bytes           uint64     `json:"bytes"`
	}

	// Info is the JSON view of a parsed file.
	Info struct {
		MajorBrand       BoxType            `json:"majorBrand,omitempty"`
		MinorVersion     uint32             `json:"minorVersion,omitempty"`
		CompatibleBrands []BoxType          `json:"compatibleBrands,omitempty"`
		Timescale        uint32             `json:"timescale,omitempty"`
		Duration         uint64             `json:"duration,omitempty"`
		Fragments        []*Fragment        `json:"fragments,omitempty"`
		Emsgs            []*EventMessageBox `json:"emsgs,omitempty"`
		Mdats            []MediaData        `json:"mdats,omitempty"`
		Tracks           []TrackInfo        `json:"tracks"`
		TrackErrors      map[uint32]string  `json:"trackErrors,omitempty"`
	}
)

func (track *Track) Info() TrackInfo {
	info := TrackInfo{
		TrackID:         track.TrackID,
		Handler:         track.Handler,
		Codec:           track.Codec,
		Timescale:       track.Timescale,
		Duration:        track.Duration,
		DurationSeconds: track.Seconds(track.Duration),
		Samples:         len(track.Samples),
		SyncSamples:     track.SyncCount(),
	}
	for i := range track.Samples {
		info.Bytes += uint64(track.Samples[i].Size)
	}
	return info
}

func (file *File) Info() *Info {
	info := &Info{
		Fragments: file.Fragments,
		Emsgs:     file.Emsgs,
		Mdats:     file.Mdats,
		Tracks:    make([]TrackInfo, 0, len(file.Tracks)),
	}
	if file.Ftyp != nil {
		info.MajorBrand = file.Ftyp.MajorBrand
		info.MinorVersion = file.Ftyp.MinorVersion
		info.CompatibleBrands = file.Ftyp.CompatibleBrands
	}
	if file.Moov != nil {
		info.Timescale = file.Moov.Mvhd.Timescale
		info.Duration = file.Moov.Mvhd.Duration
	}
	for _, id := range file.TrackIDs() {
		info.Tracks = append(info.Tracks, file.Tracks[id].Info())
	}
	if len(file.TrackErrors) > 0 {
		info.TrackErrors = make(map[uint32]string, len(file.TrackErrors))
		for id, err := range file.TrackErrors {
			info.TrackErrors[id] = err.Error()
		}
	}
	return info
}

// Summary renders the box tree down to the sample tables, one box per line.
func (file *File) Summary() string {
	var sb strings.Builder
	line := func(depth int, b IBox) {
		fmt.Fprintf(&sb, "%s%s size=%d %s\n", strings.Repeat("  ", depth), b.Type(), b.Size(), b.Summary())
	}
	if file.Ftyp != nil {
		line(0, file.Ftyp)
	}
	if moov := file.Moov; moov != nil {
		line(0, moov)
		line(1, moov.Mvhd)
		for _, trak := range moov.Traks {
			line(1, trak)
			line(2, trak.Tkhd)
			if trak.Edts != nil && trak.Edts.Elst != nil {
				line(2, trak.Edts.Elst)
			}
			line(2, trak.Mdia.Mdhd)
			line(2, trak.Mdia.Hdlr)
			stbl := trak.Stbl()
			line(2, stbl)
			for _, child := range stbl.Children() {
				line(3, child)
			}
		}
		if moov.Mvex != nil {
			line(1, moov.Mvex)
		}
	}
	for _, frag := range file.Fragments {
		line(0, frag.Moof)
		for _, traf := range frag.Moof.Trafs {
			line(1, traf)
			line(2, traf.Tfhd)
			if traf.Tfdt != nil {
				line(2, traf.Tfdt)
			}
			for _, trun := range traf.Truns {
				line(2, trun)
			}
		}
	}
	for _, emsg := range file.Emsgs {
		line(0, emsg)
	}
	for _, md := range file.Mdats {
		fmt.Fprintf(&sb, "mdat offset=%d size=%d\n", md.Offset, md.Size)
	}
	for _, id := range file.TrackIDs() {
		sb.WriteString(file.Tracks[id].String())
		sb.WriteByte('\n')
	}
	for id, err := range file.TrackErrors {
		fmt.Fprintf(&sb, "track %d failed: %v\n", id, err)
	}
	return sb.String()
}
