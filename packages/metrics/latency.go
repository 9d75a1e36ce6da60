// Package metrics aggregates flow latencies into HDR histograms.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	minLatencyUs = 1
	maxLatencyUs = 60_000_000
	sigFigs      = 3
)

// Latency collects per-label latency histograms (microsecond precision)
type Latency struct {
	mu sync.Mutex

	total  atomic.Int64
	errors atomic.Int64

	histogram *hdrhistogram.Histogram
	byLabel   map[string]*labelStats
}

type labelStats struct {
	count     int64
	errors    int64
	histogram *hdrhistogram.Histogram
}

// Stats is a latency summary.
type Stats struct {
	Label  string
	Count  int64
	Errors int64
	P50    time.Duration
	P95    time.Duration
	P99    time.Duration
	Max    time.Duration
	Mean   time.Duration
}

// Summary holds the overall stats and a breakdown per label.
type Summary struct {
	Stats
	Labels []Stats
}

// NewLatency creates an empty collector.
func NewLatency() *Latency {
	return &Latency{
		histogram: hdrhistogram.New(minLatencyUs, maxLatencyUs, sigFigs),
		byLabel:   make(map[string]*labelStats),
	}
}

// Record adds one observation. Failed exchanges are counted but their
// duration is not part of the percentiles.
func (l *Latency) Record(label string, d time.Duration, err error) {
	l.total.Add(1)
	if err != nil {
		l.errors.Add(1)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ls, ok := l.byLabel[label]
	if !ok {
		ls = &labelStats{histogram: hdrhistogram.New(minLatencyUs, maxLatencyUs, sigFigs)}
		l.byLabel[label] = ls
	}
	ls.count++
	if err != nil {
		ls.errors++
		return
	}

	us := clamp(d.Microseconds())
	_ = l.histogram.RecordValue(us)
	_ = ls.histogram.RecordValue(us)
}

func clamp(us int64) int64 {
	if us < minLatencyUs {
		return minLatencyUs
	}
	if us > maxLatencyUs {
		return maxLatencyUs
	}
	return us
}

// Summary returns the current stats.
func (l *Latency) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Summary{Stats: statsOf("all", l.total.Load(), l.errors.Load(), l.histogram)}
	for label, ls := range l.byLabel {
		s.Labels = append(s.Labels, statsOf(label, ls.count, ls.errors, ls.histogram))
	}
	sort.Slice(s.Labels, func(i, j int) bool { return s.Labels[i].Label < s.Labels[j].Label })
	return s
}

func statsOf(label string, count, errors int64, h *hdrhistogram.Histogram) Stats {
	st := Stats{Label: label, Count: count, Errors: errors}
	if h.TotalCount() == 0 {
		return st
	}
	st.P50 = time.Duration(h.ValueAtQuantile(50)) * time.Microsecond
	st.P95 = time.Duration(h.ValueAtQuantile(95)) * time.Microsecond
	st.P99 = time.Duration(h.ValueAtQuantile(99)) * time.Microsecond
	st.Max = time.Duration(h.Max()) * time.Microsecond
	st.Mean = time.Duration(h.Mean()) * time.Microsecond
	return st
}
