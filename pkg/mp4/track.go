package mp4

import (
	"errors"
	"fmt"

	. "m7s.live/isobmff/pkg/box"
)

// maxPrealloc caps the sample slice reserved up front. With a fixed stsz
// size the declared count is not backed by any table bytes.
const maxPrealloc = 1 << 16

type (
	// Sample is one resolved sample. Times are in the track timescale.
	Sample struct {
		Offset          uint64 `json:"offset"`
		Size            uint32 `json:"size"`
		Duration        uint32 `json:"duration"`
		StartTime       uint64 `json:"startTime"`
		RenderingOffset int32  `json:"renderingOffset"`
		IsSync          bool   `json:"isSync"`
	}

	Track struct {
		TrackID               uint32     `json:"trackId"`
		Duration              uint64     `json:"duration"`
		Timescale             uint32     `json:"timescale"`
		DefaultSampleDuration uint32     `json:"defaultSampleDuration"`
		Handler               BoxType    `json:"handler"`
		Codec                 *CodecInfo `json:"codec,omitempty"`
		Samples               []Sample   `json:"-"`
		Trak                  *TrackBox  `json:"-"`
		trex                  *TrackExtendsBox
		endTime               uint64
	}
)

// PresentationTime is the decode time plus the rendering offset.
func (s *Sample) PresentationTime() int64 {
	return int64(s.StartTime) + int64(s.RenderingOffset)
}

// NewTrack resolves every sample described by trak. trex may be nil.
// Indexes whose offset or size cannot be found are skipped; skipped
// reports how many.
func NewTrack(trak *TrackBox, trex *TrackExtendsBox) (track *Track, skipped int, err error) {
	track = &Track{
		TrackID:   trak.Tkhd.TrackID,
		Timescale: trak.Mdia.Mdhd.Timescale,
		Duration:  trak.Mdia.Mdhd.Duration,
		Handler:   trak.Mdia.Hdlr.HandlerType,
		Trak:      trak,
		trex:      trex,
	}
	wrap := func(err error) error {
		return &Error{Op: "build", Type: TypeTRAK, TrackID: track.TrackID, Err: err}
	}
	st, err := NewSampleTable(trak.Stbl())
	if err != nil {
		return nil, 0, wrap(err)
	}
	if stsd := st.Stsd; stsd != nil {
		track.Codec = stsd.CodecInfo()
	}
	if trex != nil && trex.DefaultSampleDuration != 0 {
		track.DefaultSampleDuration = trex.DefaultSampleDuration
	} else if n := len(st.Stts.Entries); n > 0 {
		track.DefaultSampleDuration = st.Stts.Entries[n-1].SampleDelta
	}
	if skipped, err = track.build(st); err != nil {
		return nil, skipped, wrap(err)
	}
	return track, skipped, nil
}

func (track *Track) build(st *SampleTable) (skipped int, err error) {
	count := uint64(st.SampleCount())
	track.Samples = make([]Sample, 0, min(count, st.covered, maxPrealloc))
	var (
		chunk  uint32
		prevID uint64
		next   uint64 // offset following the last resolved sample of chunk
	)
	// ids past the last chunk can never resolve
	last := min(count, st.covered)
	skipped = int(count - last)
	for id := uint64(1); id <= last; id++ {
		var s Sample
		c, _, err := st.chunkOf(id)
		if err == nil {
			s.Size, err = st.SampleSize(uint32(id))
		}
		if err == nil {
			if c == chunk && prevID == id-1 {
				s.Offset = next
			} else {
				s.Offset, err = st.SampleOffset(uint32(id))
			}
		}
		if err != nil {
			if errors.Is(err, ErrEntryNotFound) {
				skipped++
				continue
			}
			return skipped, err
		}
		if s.StartTime, s.Duration, err = st.SampleTime(uint32(id)); err != nil {
			return skipped, err
		}
		// a ctts shorter than the track leaves the tail at zero
		if s.RenderingOffset, err = st.SampleRenderingOffset(uint32(id)); err != nil && !errors.Is(err, ErrEntryNotFound) {
			return skipped, err
		}
		s.IsSync = st.IsSync(uint32(id))
		chunk, prevID, next = c, id, s.Offset+uint64(s.Size)
		track.Samples = append(track.Samples, s)
		track.endTime = s.StartTime + uint64(s.Duration)
	}
	return skipped, nil
}

func (track *Track) SampleCount() int {
	return len(track.Samples)
}

// Sample returns the resolved sample with 1-based id.
func (track *Track) Sample(id uint32) (*Sample, error) {
	if id == 0 || int(id) > len(track.Samples) {
		return nil, &Error{Op: "lookup", TrackID: track.TrackID, Sample: uint64(id), Err: ErrEntryNotFound}
	}
	return &track.Samples[id-1], nil
}

// EndTime is the decode time just past the last sample.
func (track *Track) EndTime() uint64 {
	return track.endTime
}

// Seconds converts a duration in the track timescale.
func (track *Track) Seconds(d uint64) float64 {
	if track.Timescale == 0 {
		return 0
	}
	return float64(d) / float64(track.Timescale)
}

func (track *Track) SyncCount() (n int) {
	for i := range track.Samples {
		if track.Samples[i].IsSync {
			n++
		}
	}
	return
}

func (track *Track) String() string {
	codec := "unknown"
	if track.Codec != nil {
		codec = track.Codec.String()
	}
	return fmt.Sprintf("track %d %s %s samples=%d timescale=%d duration=%d", track.TrackID, track.Handler, codec, len(track.Samples), track.Timescale, track.Duration)
}
