package pkg

import (
	"context"
	"io"
	"log/slog"
	"slices"

	"github.com/alchemy/rotoslog"
	"github.com/phsym/console-slog"
)

const TraceLevel = slog.LevelDebug - 4

const timeFormat = "2006-01-02 15:04:05.000"

var _ slog.Handler = (*MultiLogHandler)(nil)

func ParseLevel(level string) slog.Level {
	var lv slog.LevelVar
	if level == "trace" {
		lv.Set(TraceLevel)
	} else {
		lv.UnmarshalText([]byte(level))
	}
	return lv.Level()
}

// LogConfig selects the console level and an optional rotating file log.
type LogConfig struct {
	Level    string `default:"info" yaml:"level"`
	Dir      string `yaml:"dir"`
	MaxSize  uint64 `default:"1048576" yaml:"maxsize"`
	MaxFiles uint64 `default:"7" yaml:"maxfiles"`
	Layout   string `default:"2006-01-02T15" yaml:"layout"`
}

// MultiLogHandler hands every record to all of its handlers.
type MultiLogHandler struct {
	handlers []slog.Handler
	level    slog.Leveler
}

func NewMultiLogHandler(level slog.Leveler, handlers ...slog.Handler) *MultiLogHandler {
	return &MultiLogHandler{handlers: handlers, level: level}
}

func (m *MultiLogHandler) Add(h slog.Handler) {
	m.handlers = append(m.handlers, h)
}

func (m *MultiLogHandler) Remove(h slog.Handler) {
	if i := slices.Index(m.handlers, h); i != -1 {
		m.handlers = slices.Delete(m.handlers, i, i+1)
	}
}

// Enabled implements slog.Handler.
func (m *MultiLogHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= m.level.Level()
}

// Handle implements slog.Handler.
func (m *MultiLogHandler) Handle(ctx context.Context, rec slog.Record) error {
	for _, h := range m.handlers {
		if !h.Enabled(ctx, rec.Level) {
			continue
		}
		if err := h.Handle(ctx, rec.Clone()); err != nil {
			return err
		}
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (m *MultiLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	result := &MultiLogHandler{handlers: make([]slog.Handler, len(m.handlers)), level: m.level}
	for i, h := range m.handlers {
		result.handlers[i] = h.WithAttrs(attrs)
	}
	return result
}

// WithGroup implements slog.Handler.
func (m *MultiLogHandler) WithGroup(name string) slog.Handler {
	result := &MultiLogHandler{handlers: make([]slog.Handler, len(m.handlers)), level: m.level}
	for i, h := range m.handlers {
		result.handlers[i] = h.WithGroup(name)
	}
	return result
}

// NewLogger writes colored records to w and, when conf.Dir is set, plain
// records to rotated files under it.
func NewLogger(w io.Writer, conf LogConfig) (*slog.Logger, error) {
	level := ParseLevel(conf.Level)
	multi := NewMultiLogHandler(level, console.NewHandler(w, &console.HandlerOptions{Level: level, TimeFormat: timeFormat}))
	if conf.Dir != "" {
		builder := func(w io.Writer, _ *slog.HandlerOptions) slog.Handler {
			return console.NewHandler(w, &console.HandlerOptions{NoColor: true, Level: level, TimeFormat: timeFormat})
		}
		h, err := rotoslog.NewHandler(rotoslog.LogHandlerBuilder(builder), rotoslog.LogDir(conf.Dir), rotoslog.MaxFileSize(conf.MaxSize), rotoslog.DateTimeLayout(conf.Layout), rotoslog.MaxRotatedFiles(conf.MaxFiles))
		if err != nil {
			return nil, err
		}
		multi.Add(h)
	}
	return slog.New(multi), nil
}
