package mp4

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"
	"testing/iotest"

	. "m7s.live/isobmff/pkg/box"
)

func sampleMoof(seq, trackID uint32, decodeTime uint64, sizes ...uint32) *MovieFragmentBox {
	trun := &TrackRunBox{FullBox: FullBox{Flags: TR_FLAG_DATA_OFFSET | TR_FLAG_DATA_SAMPLE_SIZE}, SampleCount: uint32(len(sizes))}
	for _, size := range sizes {
		trun.Entries = append(trun.Entries, TRUNEntry{SampleSize: size})
	}
	moof := &MovieFragmentBox{
		Mfhd: &MovieFragmentHeaderBox{SequenceNumber: seq},
		Trafs: []*TrackFragmentBox{{
			Tfhd:  &TrackFragmentHeaderBox{FullBox: FullBox{Flags: TF_FLAG_DEFAULT_BASE_IS_MOOF | TF_FLAG_DEFAULT_SAMPLE_DURATION_PRESENT}, TrackID: trackID, DefaultSampleDuration: 500},
			Tfdt:  &TrackFragmentBaseMediaDecodeTimeBox{BaseMediaDecodeTime: decodeTime},
			Truns: []*TrackRunBox{trun},
		}},
	}
	// samples start right after the mdat header that follows the moof
	trun.DataOffset = int32(moof.Size() + BasicBoxLen)
	return moof
}

func initSegment(t *testing.T, stbl *SampleTableBox, trexs ...*TrackExtendsBox) []byte {
	moov := &MovieBox{
		Mvhd:  &MovieHeaderBox{Timescale: 1000},
		Traks: []*TrackBox{newTrak(1, stbl)},
		Mvex:  &MovieExtendsBox{Trexs: trexs},
	}
	return encodeAll(t, testFtyp, moov)
}

func TestFragmentAppend(t *testing.T) {
	stbl := &SampleTableBox{
		Stts: &TimeToSampleBox{Entries: []STTSEntry{{SampleCount: 2, SampleDelta: 1000}}},
		Stsc: &SampleToChunkBox{Entries: []STSCEntry{{FirstChunk: 1, SamplesPerChunk: 2, SampleDescriptionIndex: 1}}},
		Stsz: &SampleSizeBox{SampleSize: 4, SampleCount: 2},
		Stco: &ChunkOffsetBox{Entries: []uint32{16}},
	}
	head := initSegment(t, stbl)
	moof := sampleMoof(1, 1, 2000, 5, 6, 7)
	data := append(head, encodeAll(t, moof, &MediaDataBox{Data: make([]byte, 18)})...)

	file, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	track, _ := file.Track(1)
	if track.SampleCount() != 5 {
		t.Fatalf("samples %d, want 5", track.SampleCount())
	}
	base := uint64(len(head)) + moof.Size() + BasicBoxLen
	want := []Sample{
		{Offset: 16, Size: 4, Duration: 1000, StartTime: 0, IsSync: true},
		{Offset: 20, Size: 4, Duration: 1000, StartTime: 1000, IsSync: true},
		{Offset: base, Size: 5, Duration: 500, StartTime: 2000, IsSync: true},
		{Offset: base + 5, Size: 6, Duration: 500, StartTime: 2500, IsSync: true},
		{Offset: base + 11, Size: 7, Duration: 500, StartTime: 3000, IsSync: true},
	}
	if !reflect.DeepEqual(track.Samples, want) {
		t.Errorf("samples\n got %+v\nwant %+v", track.Samples, want)
	}
	if len(file.Fragments) != 1 || file.Fragments[0].Offset != uint64(len(head)) || file.Fragments[0].Samples != 3 {
		t.Errorf("fragments %+v", file.Fragments)
	}
	if track.EndTime() != 3500 || track.Duration != 3500 {
		t.Errorf("end %d duration %d", track.EndTime(), track.Duration)
	}
}

func TestFragmentUnknownTrack(t *testing.T) {
	head := initSegment(t, emptyStbl())
	t.Run("single traf", func(t *testing.T) {
		data := append(bytes.Clone(head), encodeAll(t, sampleMoof(1, 2, 0, 5))...)
		file, err := Parse(data)
		if !errors.Is(err, ErrTrakNotFound) {
			t.Fatalf("got %v, want ErrTrakNotFound", err)
		}
		if track, _ := file.Track(1); track.SampleCount() != 0 || len(file.Fragments) != 0 {
			t.Error("track 1 mutated")
		}
	})
	t.Run("second traf", func(t *testing.T) {
		moof := sampleMoof(1, 1, 0, 5)
		moof.Trafs = append(moof.Trafs, sampleMoof(1, 2, 0, 5).Trafs[0])
		file, err := Parse(append(bytes.Clone(head), encodeAll(t, moof)...))
		if !errors.Is(err, ErrTrakNotFound) {
			t.Fatalf("got %v, want ErrTrakNotFound", err)
		}
		if track, _ := file.Track(1); track.SampleCount() != 0 || track.EndTime() != 0 {
			t.Error("track 1 mutated by a rejected fragment")
		}
	})
}

func TestFragmentDefaults(t *testing.T) {
	moov := &MovieBox{
		Mvhd:  &MovieHeaderBox{Timescale: 1000},
		Traks: []*TrackBox{newTrak(1, emptyStbl()), newTrak(2, emptyStbl())},
		Mvex: &MovieExtendsBox{Trexs: []*TrackExtendsBox{
			{TrackID: 1, DefaultSampleDescriptionIndex: 1, DefaultSampleDuration: 512, DefaultSampleSize: 7, DefaultSampleFlags: SampleIsNonSync},
		}},
	}
	file, err := Parse(encodeAll(t, moov))
	if err != nil {
		t.Fatal(err)
	}
	moof := &MovieFragmentBox{
		Mfhd: &MovieFragmentHeaderBox{SequenceNumber: 1},
		Trafs: []*TrackFragmentBox{{
			Tfhd: &TrackFragmentHeaderBox{TrackID: 1},
			Truns: []*TrackRunBox{
				{FullBox: FullBox{Flags: TR_FLAG_DATA_OFFSET | TR_FLAG_DATA_FIRST_SAMPLE_FLAGS}, SampleCount: 2, DataOffset: 100},
				{
					FullBox:     FullBox{Version: 1, Flags: TR_FLAG_DATA_SAMPLE_DURATION | TR_FLAG_DATA_SAMPLE_SIZE | TR_FLAG_DATA_SAMPLE_COMPOSITION_TIME},
					SampleCount: 1,
					Entries:     []TRUNEntry{{SampleDuration: 100, SampleSize: 3, SampleCompositionTimeOffset: -10}},
				},
			},
		}, {
			Tfhd:  &TrackFragmentHeaderBox{FullBox: FullBox{Flags: TF_FLAG_DEFAULT_SAMPLE_DURATION_PRESENT | TF_FLAG_DEFAULT_SAMPLE_SIZE_PRESENT}, TrackID: 2, DefaultSampleDuration: 40, DefaultSampleSize: 9},
			Tfdt:  &TrackFragmentBaseMediaDecodeTimeBox{FullBox: FullBox{Version: 1}, BaseMediaDecodeTime: 90000},
			Truns: []*TrackRunBox{{SampleCount: 2}},
		}},
	}
	if err = file.addMoof(moof, 1000); err != nil {
		t.Fatal(err)
	}
	track1, _ := file.Track(1)
	want1 := []Sample{
		{Offset: 1100, Size: 7, Duration: 512, StartTime: 0, IsSync: true},
		{Offset: 1107, Size: 7, Duration: 512, StartTime: 512},
		{Offset: 1114, Size: 3, Duration: 100, StartTime: 1024, RenderingOffset: -10},
	}
	if !reflect.DeepEqual(track1.Samples, want1) {
		t.Errorf("track 1\n got %+v\nwant %+v", track1.Samples, want1)
	}
	track2, _ := file.Track(2)
	want2 := []Sample{
		{Offset: 1117, Size: 9, Duration: 40, StartTime: 90000, IsSync: true},
		{Offset: 1126, Size: 9, Duration: 40, StartTime: 90040, IsSync: true},
	}
	if !reflect.DeepEqual(track2.Samples, want2) {
		t.Errorf("track 2\n got %+v\nwant %+v", track2.Samples, want2)
	}

	// explicit base offset, decode time continues from the track end
	next := &MovieFragmentBox{
		Mfhd: &MovieFragmentHeaderBox{SequenceNumber: 2},
		Trafs: []*TrackFragmentBox{{
			Tfhd:  &TrackFragmentHeaderBox{FullBox: FullBox{Flags: TF_FLAG_BASE_DATA_OFFSET}, TrackID: 1, BaseDataOffset: 5000},
			Truns: []*TrackRunBox{{FullBox: FullBox{Flags: TR_FLAG_DATA_OFFSET}, SampleCount: 1, DataOffset: 8}},
		}},
	}
	if err = file.addMoof(next, 2000); err != nil {
		t.Fatal(err)
	}
	if got, want := track1.Samples[3], (Sample{Offset: 5008, Size: 7, Duration: 512, StartTime: 1124}); got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if len(file.Fragments) != 2 || file.Fragments[1].SequenceNumber != 2 {
		t.Errorf("fragments %+v", file.Fragments)
	}
}

func TestFragmentNegativeOffset(t *testing.T) {
	file, err := Parse(initSegment(t, emptyStbl()))
	if err != nil {
		t.Fatal(err)
	}
	moof := sampleMoof(1, 1, 0, 5)
	moof.Trafs[0].Truns[0].DataOffset = -10
	if err = file.addMoof(moof, 4); !errors.Is(err, ErrInvalidData) {
		t.Errorf("got %v, want ErrInvalidData", err)
	}
}

func TestIncrementalMatchesParse(t *testing.T) {
	data := initSegment(t, emptyStbl(), &TrackExtendsBox{TrackID: 1, DefaultSampleDescriptionIndex: 1})
	for i := uint32(0); i < 3; i++ {
		sizes := []uint32{3 + i, 4, 5}
		data = append(data, encodeAll(t, sampleMoof(i+1, 1, uint64(i)*1500, sizes...), &MediaDataBox{Data: make([]byte, 12+i)})...)
	}
	data = append(data, encodeAll(t, &EventMessageBox{SchemeIDURI: "urn:test", Value: "1", Timescale: 1000, ID: 7, MessageData: []byte("hi")})...)

	parsed, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	file := NewFile(iotest.OneByteReader(bytes.NewReader(data)))
	if err = file.ReadHeader(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(file.Mdats) != 1 || len(file.Fragments) != 1 {
		t.Fatalf("header stopped after %d mdats, %d fragments", len(file.Mdats), len(file.Fragments))
	}
	if err = file.ReadFragments(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(file.Info(), parsed.Info()) {
		t.Errorf("incremental %+v\nparsed %+v", file.Info(), parsed.Info())
	}
	if !reflect.DeepEqual(file.Tracks[1].Samples, parsed.Tracks[1].Samples) {
		t.Error("samples differ")
	}
	if len(parsed.Tracks[1].Samples) != 9 || len(parsed.Emsgs) != 1 || parsed.Emsgs[0].ID != 7 {
		t.Errorf("samples %d emsgs %d", len(parsed.Tracks[1].Samples), len(parsed.Emsgs))
	}
	if file.Offset() != uint64(len(data)) {
		t.Errorf("consumed %d of %d", file.Offset(), len(data))
	}
}
