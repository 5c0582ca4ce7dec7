package mp4

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector(t *testing.T) {
	file, err := Parse(progressive(t, 10, 20, 30))
	if err != nil {
		t.Fatal(err)
	}
	c := NewCollector()
	c.Add("a.mp4", file)
	expected := `
# HELP isobmff_track_samples Resolved samples per track
# TYPE isobmff_track_samples gauge
isobmff_track_samples{file="a.mp4",handler="vide",track="1"} 3
# HELP isobmff_track_sync_samples Sync samples per track
# TYPE isobmff_track_sync_samples gauge
isobmff_track_sync_samples{file="a.mp4",handler="vide",track="1"} 1
# HELP isobmff_mdat_bytes Media data payload bytes
# TYPE isobmff_mdat_bytes gauge
isobmff_mdat_bytes{file="a.mp4"} 60
`
	if err = testutil.CollectAndCompare(c, strings.NewReader(expected), "isobmff_track_samples", "isobmff_track_sync_samples", "isobmff_mdat_bytes"); err != nil {
		t.Error(err)
	}
	if n := testutil.CollectAndCount(c); n != 7 {
		t.Errorf("collected %d metrics, want 7", n)
	}
	c.Remove("a.mp4")
	if n := testutil.CollectAndCount(c); n != 0 {
		t.Errorf("collected %d metrics after remove", n)
	}
}
