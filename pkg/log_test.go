package pkg

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"trace": TraceLevel,
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("%s: got %v, want %v", in, got, want)
		}
	}
}

func TestMultiLogHandler(t *testing.T) {
	var a, b bytes.Buffer
	ha := slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelDebug})
	hb := slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelWarn})
	logger := slog.New(NewMultiLogHandler(slog.LevelDebug, ha, hb)).With("file", "a.mp4")
	logger.Debug("skip box", "type", "free")
	logger.Warn("track dropped", "track", 2)
	if !strings.Contains(a.String(), "skip box") || !strings.Contains(a.String(), "track dropped") {
		t.Errorf("debug handler got %q", a.String())
	}
	if strings.Contains(b.String(), "skip box") || !strings.Contains(b.String(), "file=a.mp4") {
		t.Errorf("warn handler got %q", b.String())
	}

	multi := NewMultiLogHandler(slog.LevelInfo, ha)
	multi.Remove(ha)
	a.Reset()
	slog.New(multi).Info("dropped")
	if a.Len() != 0 {
		t.Errorf("removed handler still written: %q", a.String())
	}
}

func TestNewLogger(t *testing.T) {
	var out bytes.Buffer
	logger, err := NewLogger(&out, LogConfig{Level: "warn", Dir: t.TempDir(), MaxSize: 1 << 20, MaxFiles: 2, Layout: "2006-01-02T15"})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "track", 1)
	if strings.Contains(out.String(), "hidden") || !strings.Contains(out.String(), "shown") {
		t.Errorf("console output %q", out.String())
	}
}
