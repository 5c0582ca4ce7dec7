package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"m7s.live/isobmff/pkg/box"
	"m7s.live/isobmff/pkg/config"
	"m7s.live/isobmff/pkg/db"
	"m7s.live/isobmff/pkg/util"
)

// writeFile stores a progressive file with one chunk of samples.
func writeFile(t *testing.T, sizes ...uint32) string {
	t.Helper()
	var total uint32
	for _, size := range sizes {
		total += size
	}
	stbl := &box.SampleTableBox{
		Stts: &box.TimeToSampleBox{Entries: []box.STTSEntry{{SampleCount: uint32(len(sizes)), SampleDelta: 512}}},
		Ctts: &box.CompositionOffsetBox{Entries: []box.CTTSEntry{{SampleCount: uint32(len(sizes)), SampleOffset: 1024}}},
		Stss: &box.SyncSampleBox{Entries: []uint32{1}},
		Stsc: &box.SampleToChunkBox{Entries: []box.STSCEntry{{FirstChunk: 1, SamplesPerChunk: uint32(len(sizes)), SampleDescriptionIndex: 1}}},
		Stsz: &box.SampleSizeBox{SampleCount: uint32(len(sizes)), EntrySizes: sizes},
		Stco: &box.ChunkOffsetBox{Entries: []uint32{0}},
	}
	moov := &box.MovieBox{
		Mvhd: &box.MovieHeaderBox{Timescale: 1000, Duration: 1000, Rate: 0x10000, Matrix: box.UnityMatrix, NextTrackID: 2},
		Traks: []*box.TrackBox{{
			Tkhd: box.NewTrackHeaderBox(1),
			Mdia: &box.MediaBox{
				Mdhd: &box.MediaHeaderBox{Timescale: 12800, Language: "und"},
				Hdlr: &box.HandlerBox{HandlerType: box.TypeVIDE, Name: "video"},
				Minf: &box.MediaInformationBox{Stbl: stbl},
			},
		}},
	}
	stbl.Stco.Entries[0] = uint32(moov.Size() + box.BasicBoxLen)
	var b util.Buffer
	for _, x := range []box.IBox{moov, &box.MediaDataBox{Data: make([]byte, total)}} {
		if _, err := x.Encode(&b); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "a.mp4")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	var cfg Config
	var c config.Config
	if err := c.Parse(&cfg, "MP4SAMPLE"); err != nil {
		t.Fatal(err)
	}
	return &cfg
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestText(t *testing.T) {
	path := writeFile(t, 100, 200)
	var out bytes.Buffer
	if err := run(context.Background(), testConfig(t), discard, []string{path}, &out); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	want := []string{
		"[1] start_time=0 duration=512 rendering_offset=1024 size=100 is_sync=true",
		"[2] start_time=512 duration=512 rendering_offset=1024 size=200 is_sync=false",
	}
	if len(lines) != 3 || lines[1] != want[0] || lines[2] != want[1] {
		t.Errorf("output:\n%s", out.String())
	}
}

func TestJSONAndMetrics(t *testing.T) {
	a, b := writeFile(t, 10), writeFile(t, 10, 20, 30)
	cfg := testConfig(t)
	cfg.Format = "json"
	cfg.Metrics = true
	var out bytes.Buffer
	if err := run(context.Background(), cfg, discard, []string{a, b}, &out); err != nil {
		t.Fatal(err)
	}
	dec := json.NewDecoder(&out)
	for _, samples := range []int{1, 3} {
		var info struct {
			Tracks []struct {
				Handler string `json:"handler"`
				Samples int    `json:"samples"`
			} `json:"tracks"`
		}
		if err := dec.Decode(&info); err != nil {
			t.Fatal(err)
		}
		if len(info.Tracks) != 1 || info.Tracks[0].Samples != samples || info.Tracks[0].Handler != "vide" {
			t.Errorf("info %+v", info)
		}
	}
	rest, _ := io.ReadAll(io.MultiReader(dec.Buffered(), &out))
	if !strings.Contains(string(rest), "isobmff_track_samples{") {
		t.Errorf("metrics missing:\n%s", rest)
	}
}

func TestExport(t *testing.T) {
	path := writeFile(t, 10, 20)
	cfg := testConfig(t)
	cfg.Format = "summary"
	cfg.Export = true
	cfg.DB.DSN = filepath.Join(t.TempDir(), "index.db")
	if err := run(context.Background(), cfg, discard, []string{path}, io.Discard); err != nil {
		t.Fatal(err)
	}
	store, err := db.Open(cfg.DB)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	samples, err := store.LoadSamples(path, 1)
	if err != nil || len(samples) != 2 || samples[1].Size != 20 {
		t.Errorf("stored %+v %v", samples, err)
	}
}

func TestErrors(t *testing.T) {
	cfg := testConfig(t)
	missing := filepath.Join(t.TempDir(), "missing.mp4")
	if err := run(context.Background(), cfg, discard, []string{missing}, io.Discard); err == nil || !strings.Contains(err.Error(), missing) {
		t.Errorf("got %v", err)
	}
	cfg.Format = "xml"
	if err := run(context.Background(), cfg, discard, []string{writeFile(t, 1)}, io.Discard); err == nil {
		t.Error("unknown format accepted")
	}
}
