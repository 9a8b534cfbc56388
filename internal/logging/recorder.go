package logging

import (
	"context"
	"log/slog"
	"sync"
)

// Event is a captured log record flattened into its message, level and attributes.
type Event struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// Recorder is a slog.Handler that keeps every record in memory.
// Tests use it to assert on emitted events instead of parsing text.
type Recorder struct {
	mu     *sync.Mutex
	events *[]Event
	attrs  []slog.Attr
	prefix string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{mu: &sync.Mutex{}, events: &[]Event{}}
}

// Logger returns a logger writing into the recorder.
func (r *Recorder) Logger() *slog.Logger {
	return slog.New(r)
}

func (r *Recorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *Recorder) Handle(_ context.Context, rec slog.Record) error {
	ev := Event{Level: rec.Level, Message: rec.Message, Attrs: make(map[string]any, len(r.attrs)+rec.NumAttrs())}
	for _, a := range r.attrs {
		ev.Attrs[a.Key] = a.Value.Resolve().Any()
	}
	rec.Attrs(func(a slog.Attr) bool {
		ev.Attrs[r.prefix+a.Key] = a.Value.Resolve().Any()
		return true
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	*r.events = append(*r.events, ev)
	return nil
}

func (r *Recorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *r
	next.attrs = make([]slog.Attr, 0, len(r.attrs)+len(attrs))
	next.attrs = append(next.attrs, r.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, slog.Attr{Key: r.prefix + a.Key, Value: a.Value})
	}
	return &next
}

func (r *Recorder) WithGroup(name string) slog.Handler {
	next := *r
	next.prefix = r.prefix + name + "."
	return &next
}

// Events returns a copy of the captured events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(*r.events))
	copy(out, *r.events)
	return out
}

// Find returns the captured events with the given message.
func (r *Recorder) Find(msg string) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Message == msg {
			out = append(out, ev)
		}
	}
	return out
}

// Reset discards all captured events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.events = (*r.events)[:0]
}
