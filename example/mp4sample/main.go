package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"golang.org/x/sync/errgroup"
	"m7s.live/isobmff/pkg"
	"m7s.live/isobmff/pkg/config"
	"m7s.live/isobmff/pkg/db"
	"m7s.live/isobmff/pkg/mp4"
	"m7s.live/isobmff/pkg/source"
)

type Config struct {
	Log       pkg.LogConfig `yaml:"log"`
	Format    string        `default:"text" desc:"text, json or summary"`
	Fragments bool          `default:"true" desc:"read moof boxes after the first mdat"`
	Workers   int           `default:"4"`
	Timeout   time.Duration `default:"1m"`
	Proxy     string
	Metrics   bool
	Export    bool      `desc:"save resolved samples to the database"`
	DB        config.DB `yaml:"db"`
}

func main() {
	conf := flag.String("c", "", "config file")
	format := flag.String("format", "", "text, json or summary")
	metrics := flag.Bool("metrics", false, "print metrics after the files")
	export := flag.Bool("export", false, "save resolved samples to the database")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: mp4sample [flags] <file|url>...")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}
	var cfg Config
	if _, err := config.Load(&cfg, *conf, "MP4SAMPLE"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *format != "" {
		cfg.Format = *format
	}
	cfg.Metrics = cfg.Metrics || *metrics
	cfg.Export = cfg.Export || *export
	logger, err := pkg.NewLogger(os.Stderr, cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err = run(context.Background(), &cfg, logger, flag.Args(), os.Stdout); err != nil {
		logger.Error("mp4sample", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *Config, logger *slog.Logger, targets []string, w io.Writer) (err error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	files := make([]*mp4.File, len(targets))
	g, ctx := errgroup.WithContext(ctx)
	if cfg.Workers > 0 {
		g.SetLimit(cfg.Workers)
	}
	for i, target := range targets {
		g.Go(func() (err error) {
			files[i], err = open(ctx, cfg, logger.With("file", target), target)
			if err != nil {
				return fmt.Errorf("%s: %w", target, err)
			}
			return
		})
	}
	if err = g.Wait(); err != nil {
		return
	}
	if cfg.Export {
		var store *db.Store
		if store, err = db.Open(cfg.DB); err != nil {
			return
		}
		defer store.Close()
		store.Logger = logger
		for i, file := range files {
			if err = store.Save(targets[i], file); err != nil {
				return
			}
		}
	}
	for i, file := range files {
		if err = dump(w, cfg.Format, targets[i], file); err != nil {
			return
		}
	}
	if cfg.Metrics {
		collector := mp4.NewCollector()
		for i, file := range files {
			collector.Add(targets[i], file)
		}
		err = writeMetrics(w, collector)
	}
	return
}

func open(ctx context.Context, cfg *Config, logger *slog.Logger, target string) (*mp4.File, error) {
	r, err := source.Open(ctx, target, source.Options{Proxy: cfg.Proxy})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	file := mp4.NewFile(r)
	file.Logger = logger
	if err = file.ReadHeader(ctx); err != nil {
		return nil, err
	}
	if cfg.Fragments {
		if err = file.ReadFragments(ctx); err != nil {
			return nil, err
		}
	}
	logger.Debug("parsed", "tracks", len(file.Tracks), "fragments", len(file.Fragments))
	return file, nil
}

func dump(w io.Writer, format, target string, file *mp4.File) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(file.Info())
	case "summary":
		_, err := fmt.Fprintf(w, "%s\n%s", target, file.Summary())
		return err
	case "text":
		for _, id := range file.TrackIDs() {
			track := file.Tracks[id]
			fmt.Fprintf(w, "%s %s\n", target, track)
			for i := range track.Samples {
				s := &track.Samples[i]
				if _, err := fmt.Fprintf(w, "[%d] start_time=%d duration=%d rendering_offset=%d size=%d is_sync=%t\n",
					i+1, s.StartTime, s.Duration, s.RenderingOffset, s.Size, s.IsSync); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return fmt.Errorf("unknown format %q", format)
}

func writeMetrics(w io.Writer, collector prometheus.Collector) error {
	registry := prometheus.NewRegistry()
	if err := registry.Register(collector); err != nil {
		return err
	}
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err = expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
