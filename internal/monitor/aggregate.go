package monitor

import (
	"sort"
	"time"

	"github.com/stiffinWanjohi/streampool/internal/domain"
)

// Report is the throughput computed from one full scan of the target stream.
// Rates are entries per distinct second in which at least one entry was appended.
type Report struct {
	At        time.Time      `json:"at"`
	Total     int            `json:"total"`
	Seconds   int            `json:"seconds"`
	Overall   float64        `json:"overall"`
	Skipped   int            `json:"skipped"`
	Consumers []ConsumerRate `json:"consumers"`
}

// ConsumerRate is the throughput of one consumer identity.
type ConsumerRate struct {
	ID      string  `json:"id"`
	Total   int     `json:"total"`
	Seconds int     `json:"seconds"`
	Rate    float64 `json:"rate"`
}

// Empty reports whether no valid processed message was seen.
func (r Report) Empty() bool {
	return r.Total == 0
}

// Rate returns the rate of consumer id, if it appeared in the scan.
func (r Report) Rate(id string) (float64, bool) {
	for _, c := range r.Consumers {
		if c.ID == id {
			return c.Rate, true
		}
	}
	return 0, false
}

// aggregator buckets entries by the second of their stream id.
// State lives for a single scan.
type aggregator struct {
	decoder  *Decoder
	overall  map[int64]int
	consumer map[string]map[int64]int
	total    int
	skipped  int
}

func newAggregator(decoder *Decoder) *aggregator {
	return &aggregator{
		decoder:  decoder,
		overall:  make(map[int64]int),
		consumer: make(map[string]map[int64]int),
	}
}

// add counts entry, or returns why it was skipped.
func (a *aggregator) add(entry domain.Entry) error {
	id, err := domain.ParseEntryID(entry.ID)
	if err != nil {
		a.skipped++
		return err
	}
	pm, err := a.decoder.Decode(entry)
	if err != nil {
		a.skipped++
		return err
	}

	second := id.Second()
	a.overall[second]++
	buckets, ok := a.consumer[pm.ProcessedBy]
	if !ok {
		buckets = make(map[int64]int)
		a.consumer[pm.ProcessedBy] = buckets
	}
	buckets[second]++
	a.total++
	return nil
}

func (a *aggregator) report(at time.Time) Report {
	r := Report{
		At:      at,
		Total:   a.total,
		Seconds: len(a.overall),
		Skipped: a.skipped,
	}
	if r.Seconds > 0 {
		r.Overall = float64(r.Total) / float64(r.Seconds)
	}

	r.Consumers = make([]ConsumerRate, 0, len(a.consumer))
	for id, buckets := range a.consumer {
		total := 0
		for _, n := range buckets {
			total += n
		}
		r.Consumers = append(r.Consumers, ConsumerRate{
			ID:      id,
			Total:   total,
			Seconds: len(buckets),
			Rate:    float64(total) / float64(len(buckets)),
		})
	}
	sort.Slice(r.Consumers, func(i, j int) bool { return r.Consumers[i].ID < r.Consumers[j].ID })
	return r
}

// Compute builds a report from entries already read from the target stream.
// Malformed entries are counted in Skipped and excluded from every rate.
func Compute(decoder *Decoder, entries []domain.Entry, at time.Time) Report {
	a := newAggregator(decoder)
	for _, e := range entries {
		_ = a.add(e)
	}
	return a.report(at)
}
