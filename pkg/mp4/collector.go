package mp4

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type collectorDesc struct {
	Samples, SyncSamples, Duration, Bytes *prometheus.Desc
	MdatBytes, Fragments, TrackErrors     *prometheus.Desc
}

func (d *collectorDesc) init() {
	trackLabels := []string{"file", "track", "handler"}
	d.Samples = prometheus.NewDesc("isobmff_track_samples", "Resolved samples per track", trackLabels, nil)
	d.SyncSamples = prometheus.NewDesc("isobmff_track_sync_samples", "Sync samples per track", trackLabels, nil)
	d.Duration = prometheus.NewDesc("isobmff_track_duration_seconds", "Track duration", trackLabels, nil)
	d.Bytes = prometheus.NewDesc("isobmff_track_bytes", "Sample payload bytes per track", trackLabels, nil)
	d.MdatBytes = prometheus.NewDesc("isobmff_mdat_bytes", "Media data payload bytes", []string{"file"}, nil)
	d.Fragments = prometheus.NewDesc("isobmff_fragments", "Movie fragments folded", []string{"file"}, nil)
	d.TrackErrors = prometheus.NewDesc("isobmff_track_errors", "Tracks that failed to resolve", []string{"file"}, nil)
}

// Collector exports the tracks of parsed files. Files are added once
// parsing is done and must not be modified afterwards.
type Collector struct {
	desc  collectorDesc
	mu    sync.RWMutex
	files map[string]*File
}

func NewCollector() *Collector {
	c := &Collector{files: make(map[string]*File)}
	c.desc.init()
	return c
}

func (c *Collector) Add(name string, file *File) {
	c.mu.Lock()
	c.files[name] = file
	c.mu.Unlock()
}

func (c *Collector) Remove(name string) {
	c.mu.Lock()
	delete(c.files, name)
	c.mu.Unlock()
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc.Samples
	ch <- c.desc.SyncSamples
	ch <- c.desc.Duration
	ch <- c.desc.Bytes
	ch <- c.desc.MdatBytes
	ch <- c.desc.Fragments
	ch <- c.desc.TrackErrors
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for name, file := range c.files {
		var mdat uint64
		for _, md := range file.Mdats {
			mdat += md.Size
		}
		ch <- prometheus.MustNewConstMetric(c.desc.MdatBytes, prometheus.GaugeValue, float64(mdat), name)
		ch <- prometheus.MustNewConstMetric(c.desc.Fragments, prometheus.GaugeValue, float64(len(file.Fragments)), name)
		ch <- prometheus.MustNewConstMetric(c.desc.TrackErrors, prometheus.GaugeValue, float64(len(file.TrackErrors)), name)
		for _, id := range file.TrackIDs() {
			info := file.Tracks[id].Info()
			labels := []string{name, strconv.FormatUint(uint64(id), 10), info.Handler.String()}
			ch <- prometheus.MustNewConstMetric(c.desc.Samples, prometheus.GaugeValue, float64(info.Samples), labels...)
			ch <- prometheus.MustNewConstMetric(c.desc.SyncSamples, prometheus.GaugeValue, float64(info.SyncSamples), labels...)
			ch <- prometheus.MustNewConstMetric(c.desc.Duration, prometheus.GaugeValue, info.DurationSeconds, labels...)
			ch <- prometheus.MustNewConstMetric(c.desc.Bytes, prometheus.GaugeValue, float64(info.Bytes), labels...)
		}
	}
}
