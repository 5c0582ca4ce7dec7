package mp4

import (
	"errors"
	"testing"

	. "m7s.live/isobmff/pkg/box"
)

func mustTable(t *testing.T, stbl *SampleTableBox) *SampleTable {
	t.Helper()
	st, err := NewSampleTable(stbl)
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestSampleOffset(t *testing.T) {
	// chunk 1 holds 3 samples, every later chunk holds 2
	st := mustTable(t, &SampleTableBox{
		Stts: &TimeToSampleBox{Entries: []STTSEntry{{SampleCount: 7, SampleDelta: 1000}}},
		Stsc: &SampleToChunkBox{Entries: []STSCEntry{{FirstChunk: 1, SamplesPerChunk: 3, SampleDescriptionIndex: 1}, {FirstChunk: 2, SamplesPerChunk: 2, SampleDescriptionIndex: 1}}},
		Stsz: &SampleSizeBox{SampleSize: 100, SampleCount: 7},
		Stco: &ChunkOffsetBox{Entries: []uint32{1000, 5000}},
	})
	want := map[uint32]uint64{1: 1000, 2: 1100, 3: 1200, 4: 5000, 5: 5100}
	for id, offset := range want {
		got, err := st.SampleOffset(id)
		if err != nil {
			t.Fatalf("sample %d: %v", id, err)
		}
		if got != offset {
			t.Errorf("sample %d offset %d, want %d", id, got, offset)
		}
	}
	for _, id := range []uint32{0, 6, 7} {
		if _, err := st.SampleOffset(id); !errors.Is(err, ErrEntryNotFound) {
			t.Errorf("sample %d: got %v, want ErrEntryNotFound", id, err)
		}
	}
}

func TestSampleOffsetVariableSizes(t *testing.T) {
	stbl := &SampleTableBox{
		Stts: &TimeToSampleBox{Entries: []STTSEntry{{SampleCount: 4, SampleDelta: 1}}},
		Stsc: &SampleToChunkBox{Entries: []STSCEntry{{FirstChunk: 1, SamplesPerChunk: 2, SampleDescriptionIndex: 1}}},
		Stsz: &SampleSizeBox{SampleCount: 4, EntrySizes: []uint32{10, 20, 30, 40}},
		Co64: &ChunkLargeOffsetBox{Entries: []uint64{1 << 33, 1<<33 + 1000}},
	}
	st := mustTable(t, stbl)
	for id, offset := range []uint64{1 << 33, 1<<33 + 10, 1<<33 + 1000, 1<<33 + 1030} {
		got, err := st.SampleOffset(uint32(id + 1))
		if err != nil {
			t.Fatal(err)
		}
		if got != offset {
			t.Errorf("sample %d offset %d, want %d", id+1, got, offset)
		}
		size, _ := st.SampleSize(uint32(id + 1))
		if size != stbl.Stsz.EntrySizes[id] {
			t.Errorf("sample %d size %d", id+1, size)
		}
	}
}

func TestSampleTime(t *testing.T) {
	st := mustTable(t, &SampleTableBox{
		Stts: &TimeToSampleBox{Entries: []STTSEntry{{SampleCount: 2, SampleDelta: 1000}, {SampleCount: 3, SampleDelta: 500}}},
		Stsc: &SampleToChunkBox{Entries: []STSCEntry{{FirstChunk: 1, SamplesPerChunk: 5, SampleDescriptionIndex: 1}}},
		Stsz: &SampleSizeBox{SampleSize: 1, SampleCount: 5},
		Stco: &ChunkOffsetBox{Entries: []uint32{0}},
	})
	starts := []uint64{0, 1000, 2000, 2500, 3000}
	durations := []uint32{1000, 1000, 500, 500, 500}
	for i := range starts {
		start, duration, err := st.SampleTime(uint32(i + 1))
		if err != nil {
			t.Fatal(err)
		}
		if start != starts[i] || duration != durations[i] {
			t.Errorf("sample %d: start=%d duration=%d, want %d %d", i+1, start, duration, starts[i], durations[i])
		}
	}
	if _, _, err := st.SampleTime(6); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("got %v, want ErrEntryNotFound", err)
	}
}

func TestSyncSample(t *testing.T) {
	stbl := &SampleTableBox{
		Stts: &TimeToSampleBox{Entries: []STTSEntry{{SampleCount: 5, SampleDelta: 1}}},
		Stsc: &SampleToChunkBox{Entries: []STSCEntry{{FirstChunk: 1, SamplesPerChunk: 5, SampleDescriptionIndex: 1}}},
		Stsz: &SampleSizeBox{SampleSize: 1, SampleCount: 5},
		Stco: &ChunkOffsetBox{Entries: []uint32{0}},
	}
	t.Run("no stss", func(t *testing.T) {
		st := mustTable(t, stbl)
		for id := uint32(1); id <= 5; id++ {
			if !st.IsSync(id) {
				t.Errorf("sample %d not sync", id)
			}
		}
	})
	t.Run("stss", func(t *testing.T) {
		withStss := *stbl
		withStss.Stss = &SyncSampleBox{Entries: []uint32{1, 4}}
		st := mustTable(t, &withStss)
		for id := uint32(1); id <= 5; id++ {
			if want := id == 1 || id == 4; st.IsSync(id) != want {
				t.Errorf("sample %d sync=%v", id, !want)
			}
		}
	})
}

func TestRenderingOffset(t *testing.T) {
	stbl := &SampleTableBox{
		Stts: &TimeToSampleBox{Entries: []STTSEntry{{SampleCount: 5, SampleDelta: 1}}},
		Ctts: &CompositionOffsetBox{FullBox: FullBox{Version: 1}, Entries: []CTTSEntry{{SampleCount: 2, SampleOffset: 0}, {SampleCount: 1, SampleOffset: 500}, {SampleCount: 1, SampleOffset: -200}}},
		Stsc: &SampleToChunkBox{Entries: []STSCEntry{{FirstChunk: 1, SamplesPerChunk: 5, SampleDescriptionIndex: 1}}},
		Stsz: &SampleSizeBox{SampleSize: 1, SampleCount: 5},
		Stco: &ChunkOffsetBox{Entries: []uint32{0}},
	}
	st := mustTable(t, stbl)
	for id, want := range []int32{0, 0, 500, -200} {
		got, err := st.SampleRenderingOffset(uint32(id + 1))
		if err != nil || got != want {
			t.Errorf("sample %d: %d %v, want %d", id+1, got, err, want)
		}
	}
	if _, err := st.SampleRenderingOffset(5); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("got %v, want ErrEntryNotFound", err)
	}
	stbl.Ctts = nil
	if got, err := mustTable(t, stbl).SampleRenderingOffset(3); got != 0 || err != nil {
		t.Errorf("without ctts: %d %v", got, err)
	}
}

func TestSampleTableInvalid(t *testing.T) {
	valid := func() *SampleTableBox {
		return &SampleTableBox{
			Stts: &TimeToSampleBox{},
			Stsc: &SampleToChunkBox{Entries: []STSCEntry{{FirstChunk: 1, SamplesPerChunk: 1, SampleDescriptionIndex: 1}, {FirstChunk: 3, SamplesPerChunk: 2, SampleDescriptionIndex: 1}}},
			Stsz: &SampleSizeBox{},
			Stco: &ChunkOffsetBox{},
		}
	}
	tests := map[string]struct {
		change func(*SampleTableBox)
		want   error
	}{
		"first chunk zero": {func(s *SampleTableBox) { s.Stsc.Entries[0].FirstChunk = 0 }, ErrInvalidData},
		"not increasing":   {func(s *SampleTableBox) { s.Stsc.Entries[1].FirstChunk = 1 }, ErrInvalidData},
		"no stsz":          {func(s *SampleTableBox) { s.Stsz = nil }, ErrBoxNotFound},
		"no chunk offsets": {func(s *SampleTableBox) { s.Stco = nil }, ErrBoxNotFound},
		"stss unsorted":    {func(s *SampleTableBox) { s.Stss = &SyncSampleBox{Entries: []uint32{31, 1, 61}} }, ErrInvalidData},
		"stss repeated":    {func(s *SampleTableBox) { s.Stss = &SyncSampleBox{Entries: []uint32{1, 1}} }, ErrInvalidData},
		"stss zero":        {func(s *SampleTableBox) { s.Stss = &SyncSampleBox{Entries: []uint32{0, 5}} }, ErrInvalidData},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			stbl := valid()
			tt.change(stbl)
			if _, err := NewSampleTable(stbl); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
	if _, err := NewSampleTable(valid()); err != nil {
		t.Error(err)
	}
}

func TestSample(t *testing.T) {
	st := mustTable(t, &SampleTableBox{
		Stts: &TimeToSampleBox{Entries: []STTSEntry{{SampleCount: 3, SampleDelta: 40}}},
		Ctts: &CompositionOffsetBox{Entries: []CTTSEntry{{SampleCount: 3, SampleOffset: 80}}},
		Stss: &SyncSampleBox{Entries: []uint32{1}},
		Stsc: &SampleToChunkBox{Entries: []STSCEntry{{FirstChunk: 1, SamplesPerChunk: 3, SampleDescriptionIndex: 1}}},
		Stsz: &SampleSizeBox{SampleCount: 3, EntrySizes: []uint32{5, 6, 7}},
		Stco: &ChunkOffsetBox{Entries: []uint32{64}},
	})
	s, err := st.Sample(3)
	if err != nil {
		t.Fatal(err)
	}
	want := Sample{Offset: 75, Size: 7, Duration: 40, StartTime: 80, RenderingOffset: 80}
	if s != want {
		t.Errorf("got %+v, want %+v", s, want)
	}
	if s.PresentationTime() != 160 {
		t.Errorf("presentation time %d", s.PresentationTime())
	}
}
