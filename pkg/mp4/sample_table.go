package mp4

import (
	"fmt"
	"slices"
	"sort"

	. "m7s.live/isobmff/pkg/box"
)

// SampleTable answers per-sample queries against the compact tables of one
// stbl. Sample ids are 1-based. The run tables are indexed once so that a
// single lookup is a binary search rather than a scan from the start.
type SampleTable struct {
	*SampleTableBox

	sttsFirst  []uint64 // first sample id of each stts run
	sttsStart  []uint64 // decode time of that sample
	cttsFirst  []uint64
	stscFirst  []uint64 // first sample id of each stsc run
	stscChunks []uint64 // chunks covered by each stsc run
	covered    uint64   // last sample id stsc places in a chunk
}

func NewSampleTable(stbl *SampleTableBox) (*SampleTable, error) {
	if stbl == nil {
		return nil, fmt.Errorf("%w: missing stbl", ErrBoxNotFound)
	}
	if err := stbl.Validate(); err != nil {
		return nil, err
	}
	st := &SampleTable{SampleTableBox: stbl}

	next, start := uint64(1), uint64(0)
	st.sttsFirst = make([]uint64, len(stbl.Stts.Entries))
	st.sttsStart = make([]uint64, len(stbl.Stts.Entries))
	for i, e := range stbl.Stts.Entries {
		st.sttsFirst[i], st.sttsStart[i] = next, start
		next += uint64(e.SampleCount)
		start += uint64(e.SampleCount) * uint64(e.SampleDelta)
	}

	if stbl.Ctts != nil {
		next = 1
		st.cttsFirst = make([]uint64, len(stbl.Ctts.Entries))
		for i, e := range stbl.Ctts.Entries {
			st.cttsFirst[i] = next
			next += uint64(e.SampleCount)
		}
	}

	if stbl.Stss != nil {
		for i, id := range stbl.Stss.Entries {
			if id == 0 || (i > 0 && id <= stbl.Stss.Entries[i-1]) {
				return nil, &Error{Op: "index", Type: TypeSTSS, Err: fmt.Errorf("%w: entry %d sample %d not ascending", ErrInvalidData, i+1, id)}
			}
		}
	}

	runs := stbl.Stsc.Entries
	chunkCount := uint64(stbl.ChunkCount())
	st.stscFirst = make([]uint64, len(runs))
	st.stscChunks = make([]uint64, len(runs))
	next = 1
	for i, e := range runs {
		if e.FirstChunk == 0 || (i > 0 && e.FirstChunk <= runs[i-1].FirstChunk) {
			return nil, &Error{Op: "index", Type: TypeSTSC, Err: fmt.Errorf("%w: run %d first_chunk %d", ErrInvalidData, i+1, e.FirstChunk)}
		}
		var chunks uint64
		if i+1 < len(runs) {
			chunks = uint64(runs[i+1].FirstChunk - e.FirstChunk)
		} else if chunkCount >= uint64(e.FirstChunk) {
			chunks = chunkCount - uint64(e.FirstChunk) + 1
		}
		st.stscFirst[i], st.stscChunks[i] = next, chunks
		next += chunks * uint64(e.SamplesPerChunk)
	}
	st.covered = next - 1
	return st, nil
}

// SampleCount is the sample count declared by stsz.
func (st *SampleTable) SampleCount() uint32 {
	return st.Stsz.SampleCount
}

// run returns the index of the last run starting at or before id.
func run(first []uint64, id uint64) int {
	return sort.Search(len(first), func(i int) bool { return first[i] > id }) - 1
}

func notFound(t BoxType, id uint64) error {
	return &Error{Op: "lookup", Type: t, Sample: id, Err: ErrEntryNotFound}
}

// chunkOf returns the 1-based chunk holding id and the first sample id stored in it.
func (st *SampleTable) chunkOf(id uint64) (chunk uint32, first uint64, err error) {
	i := run(st.stscFirst, id)
	if id == 0 || i < 0 {
		return 0, 0, notFound(TypeSTSC, id)
	}
	e := st.Stsc.Entries[i]
	if e.SamplesPerChunk == 0 || id >= st.stscFirst[i]+st.stscChunks[i]*uint64(e.SamplesPerChunk) {
		return 0, 0, notFound(TypeSTSC, id)
	}
	k := (id - st.stscFirst[i]) / uint64(e.SamplesPerChunk)
	return e.FirstChunk + uint32(k), st.stscFirst[i] + k*uint64(e.SamplesPerChunk), nil
}

func (st *SampleTable) SampleSize(id uint32) (uint32, error) {
	size, err := st.Stsz.SampleSizeAt(uint64(id))
	if err != nil {
		return 0, &Error{Op: "lookup", Type: TypeSTSZ, Sample: uint64(id), Err: err}
	}
	return size, nil
}

// SampleOffset is the chunk offset plus the sizes of the samples that
// precede id inside the same chunk.
func (st *SampleTable) SampleOffset(id uint32) (uint64, error) {
	chunk, first, err := st.chunkOf(uint64(id))
	if err != nil {
		return 0, err
	}
	offset, err := st.ChunkOffset(chunk)
	if err != nil {
		return 0, &Error{Op: "lookup", Type: TypeSTCO, Sample: uint64(id), Err: err}
	}
	for s := first; s < uint64(id); s++ {
		size, err := st.SampleSize(uint32(s))
		if err != nil {
			return 0, err
		}
		offset += uint64(size)
	}
	return offset, nil
}

// SampleTime returns the decode time and duration of id.
func (st *SampleTable) SampleTime(id uint32) (start uint64, duration uint32, err error) {
	i := run(st.sttsFirst, uint64(id))
	if id == 0 || i < 0 {
		return 0, 0, notFound(TypeSTTS, uint64(id))
	}
	e := st.Stts.Entries[i]
	n := uint64(id) - st.sttsFirst[i]
	if n >= uint64(e.SampleCount) {
		return 0, 0, notFound(TypeSTTS, uint64(id))
	}
	return st.sttsStart[i] + n*uint64(e.SampleDelta), e.SampleDelta, nil
}

// SampleRenderingOffset is zero for every sample when ctts is absent.
func (st *SampleTable) SampleRenderingOffset(id uint32) (int32, error) {
	if st.Ctts == nil {
		return 0, nil
	}
	i := run(st.cttsFirst, uint64(id))
	if id == 0 || i < 0 || uint64(id)-st.cttsFirst[i] >= uint64(st.Ctts.Entries[i].SampleCount) {
		return 0, notFound(TypeCTTS, uint64(id))
	}
	return st.Ctts.Entries[i].SampleOffset, nil
}

// IsSync reports true for every sample when stss is absent. stss entries
// are strictly ascending, checked by NewSampleTable.
func (st *SampleTable) IsSync(id uint32) bool {
	if st.Stss == nil {
		return true
	}
	_, found := slices.BinarySearch(st.Stss.Entries, id)
	return found
}

// Sample resolves every field of id.
func (st *SampleTable) Sample(id uint32) (s Sample, err error) {
	if s.Offset, err = st.SampleOffset(id); err != nil {
		return
	}
	if s.Size, err = st.SampleSize(id); err != nil {
		return
	}
	if s.StartTime, s.Duration, err = st.SampleTime(id); err != nil {
		return
	}
	if s.RenderingOffset, err = st.SampleRenderingOffset(id); err != nil {
		return
	}
	s.IsSync = st.IsSync(id)
	return
}
