package mp4

import (
	"fmt"

	. "m7s.live/isobmff/pkg/box"
)

// Fragment is a folded moof and the file offset of its first header byte.
type Fragment struct {
	Offset         uint64            `json:"offset"`
	SequenceNumber uint32            `json:"sequenceNumber"`
	Samples        int               `json:"samples"`
	Moof           *MovieFragmentBox `json:"-"`
}

type trafRun struct {
	track   *Track
	samples []Sample
	endTime uint64
}

// addMoof appends the samples of every traf in moof to its track. moof
// starts at offset in the file. Nothing is applied unless every traf
// resolves, so a fragment naming an unknown track leaves all tracks as
// they were.
func (file *File) addMoof(moof *MovieFragmentBox, offset uint64) error {
	runs := make([]trafRun, 0, len(moof.Trafs))
	ends := make(map[uint32]uint64, len(moof.Trafs))
	dataEnd := offset
	total := 0
	for i, traf := range moof.Trafs {
		tfhd := traf.Tfhd
		track, ok := file.Tracks[tfhd.TrackID]
		if !ok {
			return &Error{Op: "merge", Type: TypeTRAF, TrackID: tfhd.TrackID, Err: ErrTrakNotFound}
		}
		base := dataEnd
		switch {
		case tfhd.Has(TF_FLAG_BASE_DATA_OFFSET):
			base = tfhd.BaseDataOffset
		case tfhd.Has(TF_FLAG_DEFAULT_BASE_IS_MOOF) || i == 0:
			base = offset
		}
		start, ok := ends[tfhd.TrackID]
		if !ok {
			start = track.endTime
		}
		if traf.Tfdt != nil {
			start = traf.Tfdt.BaseMediaDecodeTime
		}
		samples, end, next, err := track.resolveTraf(traf, base, start)
		if err != nil {
			return &Error{Op: "merge", Type: TypeTRAF, TrackID: tfhd.TrackID, Err: err}
		}
		dataEnd = next
		ends[tfhd.TrackID] = end
		total += len(samples)
		runs = append(runs, trafRun{track: track, samples: samples, endTime: end})
	}
	for _, r := range runs {
		r.track.Samples = append(r.track.Samples, r.samples...)
		r.track.endTime = r.endTime
		r.track.Duration = max(r.track.Duration, r.endTime)
	}
	file.Fragments = append(file.Fragments, &Fragment{
		Offset:         offset,
		SequenceNumber: moof.Mfhd.SequenceNumber,
		Samples:        total,
		Moof:           moof,
	})
	file.Logger.Debug("fragment merged", "offset", offset, "sequence", moof.Mfhd.SequenceNumber, "trafs", len(moof.Trafs), "samples", total)
	return nil
}

// resolveTraf computes the samples of one traf. Per-sample fields fall back
// to the tfhd defaults, then to trex, then to the track default duration.
// base is the offset trun data offsets are relative to and start the decode
// time of the first sample. It returns the decode time and data offset
// just past the last sample.
func (track *Track) resolveTraf(traf *TrackFragmentBox, base, start uint64) (samples []Sample, endTime, dataEnd uint64, err error) {
	tfhd := traf.Tfhd
	duration, size, flags := track.DefaultSampleDuration, uint32(0), uint32(0)
	if trex := track.trex; trex != nil {
		if trex.DefaultSampleDuration != 0 {
			duration = trex.DefaultSampleDuration
		}
		size, flags = trex.DefaultSampleSize, trex.DefaultSampleFlags
	}
	if tfhd.Has(TF_FLAG_DEFAULT_SAMPLE_DURATION_PRESENT) {
		duration = tfhd.DefaultSampleDuration
	}
	if tfhd.Has(TF_FLAG_DEFAULT_SAMPLE_SIZE_PRESENT) {
		size = tfhd.DefaultSampleSize
	}
	if tfhd.Has(TF_FLAG_DEFAULT_SAMPLE_FLAGS_PRESENT) {
		flags = tfhd.DefaultSampleFlags
	}

	pos, t := base, start
	samples = make([]Sample, 0, min(traf.SampleCount(), maxPrealloc))
	for _, trun := range traf.Truns {
		if trun.Has(TR_FLAG_DATA_OFFSET) {
			abs := int64(base) + int64(trun.DataOffset)
			if abs < 0 {
				return nil, 0, 0, fmt.Errorf("%w: trun data_offset %d before file start", ErrInvalidData, trun.DataOffset)
			}
			pos = uint64(abs)
		}
		for j := uint32(0); j < trun.SampleCount; j++ {
			s := Sample{Offset: pos, StartTime: t, Duration: duration, Size: size}
			sampleFlags := flags
			if int(j) < len(trun.Entries) {
				e := &trun.Entries[j]
				if trun.Has(TR_FLAG_DATA_SAMPLE_DURATION) {
					s.Duration = e.SampleDuration
				}
				if trun.Has(TR_FLAG_DATA_SAMPLE_SIZE) {
					s.Size = e.SampleSize
				}
				if trun.Has(TR_FLAG_DATA_SAMPLE_FLAGS) {
					sampleFlags = e.SampleFlags
				}
				if trun.Has(TR_FLAG_DATA_SAMPLE_COMPOSITION_TIME) {
					s.RenderingOffset = e.SampleCompositionTimeOffset
				}
			}
			if j == 0 && trun.Has(TR_FLAG_DATA_FIRST_SAMPLE_FLAGS) {
				sampleFlags = trun.FirstSampleFlags
			}
			s.IsSync = sampleFlags&SampleIsNonSync == 0
			samples = append(samples, s)
			pos += uint64(s.Size)
			t += uint64(s.Duration)
		}
	}
	return samples, t, pos, nil
}
