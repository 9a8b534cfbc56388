// Package logging provides centralized structured logging for streampool.
// Components retrieve loggers via Component() instead of passing through constructors.
// The handler behind every component logger can be replaced at runtime, so
// package-level loggers pick up the configured level and format.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Format selects the output encoding.
type Format string

const (
	FormatColor Format = "color"
	FormatJSON  Format = "json"
	FormatText  Format = "text"
)

// Options configures the root handler.
type Options struct {
	Level  string
	Format Format
	Output io.Writer
}

var (
	root     atomic.Pointer[slog.Handler]
	level    = new(slog.LevelVar)
	initOnce sync.Once
)

// Init configures the root handler from opts. Later calls replace the handler.
func Init(opts Options) {
	level.Set(ParseLevel(opts.Level))

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	format := opts.Format
	if format == "" {
		format = FormatColor
	}
	if format == FormatColor && os.Getenv("NO_COLOR") != "" {
		format = FormatJSON
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch format {
	case FormatJSON:
		h = slog.NewJSONHandler(out, handlerOpts)
	case FormatText:
		h = slog.NewTextHandler(out, handlerOpts)
	default:
		h = NewColorHandler(out, handlerOpts)
	}
	SetHandler(h)
}

// SetHandler replaces the root handler used by every component logger.
func SetHandler(h slog.Handler) {
	root.Store(&h)
}

func ensureInit() {
	initOnce.Do(func() {
		if root.Load() != nil {
			return
		}
		Init(Options{
			Level:  os.Getenv("LOG_LEVEL"),
			Format: Format(strings.ToLower(os.Getenv("LOG_FORMAT"))),
		})
	})
}

// Logger returns the global logger.
func Logger() *slog.Logger {
	ensureInit()
	return slog.New(&dynamicHandler{})
}

// Component returns a logger with component context.
// Use this at package level: var log = logging.Component("consumer")
func Component(name string) *slog.Logger {
	return Logger().With("component", name)
}

// Level returns the current log level.
func Level() slog.Level {
	ensureInit()
	return level.Level()
}

// IsDebugEnabled returns true if debug logging is enabled.
func IsDebugEnabled() bool {
	return Level() <= slog.LevelDebug
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// dynamicHandler resolves the root handler on every call and replays the
// attrs and groups added through With/WithGroup on top of it.
type dynamicHandler struct {
	ops []func(slog.Handler) slog.Handler
}

func (d *dynamicHandler) current() slog.Handler {
	ensureInit()
	h := *root.Load()
	for _, op := range d.ops {
		h = op(h)
	}
	return h
}

func (d *dynamicHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return d.current().Enabled(ctx, l)
}

func (d *dynamicHandler) Handle(ctx context.Context, r slog.Record) error {
	return d.current().Handle(ctx, r)
}

func (d *dynamicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return d.with(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (d *dynamicHandler) WithGroup(name string) slog.Handler {
	return d.with(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (d *dynamicHandler) with(op func(slog.Handler) slog.Handler) slog.Handler {
	ops := make([]func(slog.Handler) slog.Handler, len(d.ops), len(d.ops)+1)
	copy(ops, d.ops)
	return &dynamicHandler{ops: append(ops, op)}
}
