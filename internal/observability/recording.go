package observability

import (
	"context"
	"sync"
	"time"
)

// Sample is one recorded metric call.
type Sample struct {
	Name     string
	Value    float64
	Duration time.Duration
	Tags     map[string]string
}

// RecordingProvider keeps every metric call in memory. Tests use it to
// assert on what a component reported.
type RecordingProvider struct {
	mu         sync.Mutex
	counters   []Sample
	gauges     []Sample
	histograms []Sample
	timings    []Sample
}

var _ MetricsProvider = (*RecordingProvider)(nil)

func (r *RecordingProvider) Counter(_ context.Context, name string, value int64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = append(r.counters, Sample{Name: name, Value: float64(value), Tags: tags})
}

func (r *RecordingProvider) Gauge(_ context.Context, name string, value float64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges = append(r.gauges, Sample{Name: name, Value: value, Tags: tags})
}

func (r *RecordingProvider) Histogram(_ context.Context, name string, value float64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histograms = append(r.histograms, Sample{Name: name, Value: value, Tags: tags})
}

func (r *RecordingProvider) Timing(_ context.Context, name string, duration time.Duration, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timings = append(r.timings, Sample{Name: name, Duration: duration, Tags: tags})
}

func (r *RecordingProvider) Flush(context.Context) error { return nil }
func (r *RecordingProvider) Close(context.Context) error { return nil }

// Counters returns the recorded counter calls.
func (r *RecordingProvider) Counters() []Sample { return r.snapshot(&r.counters) }

// Gauges returns the recorded gauge calls.
func (r *RecordingProvider) Gauges() []Sample { return r.snapshot(&r.gauges) }

// Timings returns the recorded timing calls.
func (r *RecordingProvider) Timings() []Sample { return r.snapshot(&r.timings) }

// CounterTotal sums all increments of the named counter.
func (r *RecordingProvider) CounterTotal(name string) float64 {
	var total float64
	for _, s := range r.Counters() {
		if s.Name == name {
			total += s.Value
		}
	}
	return total
}

// LastGauge returns the most recent value set for the named gauge whose tags contain match.
func (r *RecordingProvider) LastGauge(name string, match map[string]string) (float64, bool) {
	gauges := r.Gauges()
	for i := len(gauges) - 1; i >= 0; i-- {
		if gauges[i].Name == name && tagsContain(gauges[i].Tags, match) {
			return gauges[i].Value, true
		}
	}
	return 0, false
}

func (r *RecordingProvider) snapshot(s *[]Sample) []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sample, len(*s))
	copy(out, *s)
	return out
}

func tagsContain(tags, match map[string]string) bool {
	for k, v := range match {
		if tags[k] != v {
			return false
		}
	}
	return true
}
