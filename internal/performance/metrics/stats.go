package metrics

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/inferload/inferload/internal/performance/request"
)

// DefaultPercentiles are always reported.
var DefaultPercentiles = []float64{50, 90, 95, 99}

// Percentile returns the p-th percentile of an ascending slice using the
// nearest-rank rule: index ceil(p/100 * n) - 1, clamped to [0, n-1].
// For [10 20 30 40 50], p90 selects index 4 (50) and p50 selects index 2 (30).
func Percentile(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	// p*n/100 rather than p/100*n keeps integral percentiles exact
	idx := int(math.Ceil(p*float64(n)/100)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

// PercentileKey formats p as a report key: 90 -> "p90", 99.9 -> "p99.9".
func PercentileKey(p float64) string {
	return "p" + strconv.FormatFloat(p, 'f', -1, 64)
}

// ParsePercentileKey is the inverse of PercentileKey.
func ParsePercentileKey(key string) (float64, error) {
	if len(key) < 2 || key[0] != 'p' {
		return 0, fmt.Errorf("invalid percentile %q", key)
	}
	p, err := strconv.ParseFloat(key[1:], 64)
	if err != nil || p < 0 || p > 100 {
		return 0, fmt.Errorf("invalid percentile %q", key)
	}
	return p, nil
}

// AggregateStats summarizes one sample set.
type AggregateStats struct {
	Count     int64 `json:"count" yaml:"count"`
	Successes int64 `json:"successes" yaml:"successes"`
	Failures  int64 `json:"failures" yaml:"failures"`

	FailuresByReason map[request.FailureReason]int64 `json:"failuresByReason,omitempty" yaml:"failuresByReason,omitempty"`
	FailuresByCheck  map[string]int64                `json:"failuresByCheck,omitempty" yaml:"failuresByCheck,omitempty"`

	ErrorRate float64 `json:"errorRate" yaml:"errorRate"`

	Min    time.Duration `json:"min" yaml:"min"`
	Max    time.Duration `json:"max" yaml:"max"`
	Mean   time.Duration `json:"mean" yaml:"mean"`
	Median time.Duration `json:"median" yaml:"median"`
	P90    time.Duration `json:"p90" yaml:"p90"`
	P95    time.Duration `json:"p95" yaml:"p95"`
	P99    time.Duration `json:"p99" yaml:"p99"`

	// Percentiles holds every configured percentile keyed by PercentileKey.
	Percentiles map[string]time.Duration `json:"percentiles,omitempty" yaml:"percentiles,omitempty"`

	TTFBP50 time.Duration `json:"ttfbP50,omitempty" yaml:"ttfbP50,omitempty"`
	TTFBP95 time.Duration `json:"ttfbP95,omitempty" yaml:"ttfbP95,omitempty"`

	Usage request.Usage `json:"usage" yaml:"usage"`
	Bytes int64         `json:"bytes" yaml:"bytes"`

	// Window spans the first request start to the last completion.
	FirstStart time.Time     `json:"firstStart" yaml:"firstStart"`
	LastEnd    time.Time     `json:"lastEnd" yaml:"lastEnd"`
	Window     time.Duration `json:"window" yaml:"window"`

	RPS                float64 `json:"rps" yaml:"rps"`
	OutputTokensPerSec float64 `json:"outputTokensPerSec,omitempty" yaml:"outputTokensPerSec,omitempty"`
}

// FailureCount returns the failures recorded for reason.
func (s *AggregateStats) FailureCount(reason request.FailureReason) int64 {
	return s.FailuresByReason[reason]
}

// Percentile returns a configured percentile, computing nothing new.
func (s *AggregateStats) Percentile(p float64) (time.Duration, bool) {
	d, ok := s.Percentiles[PercentileKey(p)]
	return d, ok
}

// sampleSet is the raw data behind one tag. Durations are kept in arrival order.
type sampleSet struct {
	durations []time.Duration
	ttfbs     []time.Duration
	successes int64
	byReason  map[request.FailureReason]int64
	byCheck   map[string]int64
	usage     request.Usage
	bytes     int64
	first     time.Time
	last      time.Time
}

func newSampleSet() *sampleSet {
	return &sampleSet{
		byReason: make(map[request.FailureReason]int64),
		byCheck:  make(map[string]int64),
	}
}

func (s *sampleSet) add(o request.Outcome) {
	s.durations = append(s.durations, o.Duration)
	if o.TTFB > 0 {
		s.ttfbs = append(s.ttfbs, o.TTFB)
	}
	if o.Success {
		s.successes++
	} else {
		reason := o.Reason
		if reason == request.ReasonNone {
			reason = request.ReasonValidation
		}
		s.byReason[reason]++
		if o.Check != "" {
			s.byCheck[o.Check]++
		}
	}
	s.usage.Add(o.Usage)
	s.bytes += int64(o.BytesReceived)

	if !o.StartedAt.IsZero() {
		if s.first.IsZero() || o.StartedAt.Before(s.first) {
			s.first = o.StartedAt
		}
		if end := o.StartedAt.Add(o.Duration); end.After(s.last) {
			s.last = end
		}
	}
}

func (s *sampleSet) merge(other *sampleSet) {
	s.durations = append(s.durations, other.durations...)
	s.ttfbs = append(s.ttfbs, other.ttfbs...)
	s.successes += other.successes
	for k, v := range other.byReason {
		s.byReason[k] += v
	}
	for k, v := range other.byCheck {
		s.byCheck[k] += v
	}
	s.usage.Add(other.usage)
	s.bytes += other.bytes
	if !other.first.IsZero() && (s.first.IsZero() || other.first.Before(s.first)) {
		s.first = other.first
	}
	if other.last.After(s.last) {
		s.last = other.last
	}
}

// stats computes aggregate statistics. It sorts copies, leaving the arrival
// order intact.
func (s *sampleSet) stats(percentiles []float64) AggregateStats {
	count := int64(len(s.durations))
	agg := AggregateStats{
		Count:       count,
		Successes:   s.successes,
		Failures:    count - s.successes,
		Usage:       s.usage,
		Bytes:       s.bytes,
		FirstStart:  s.first,
		LastEnd:     s.last,
		Percentiles: make(map[string]time.Duration, len(percentiles)),
	}
	if len(s.byReason) > 0 {
		agg.FailuresByReason = make(map[request.FailureReason]int64, len(s.byReason))
		for k, v := range s.byReason {
			agg.FailuresByReason[k] = v
		}
	}
	if len(s.byCheck) > 0 {
		agg.FailuresByCheck = make(map[string]int64, len(s.byCheck))
		for k, v := range s.byCheck {
			agg.FailuresByCheck[k] = v
		}
	}
	if count == 0 {
		return agg
	}

	sorted := sortedCopy(s.durations)
	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	agg.ErrorRate = float64(agg.Failures) / float64(count)
	agg.Min = sorted[0]
	agg.Max = sorted[len(sorted)-1]
	agg.Mean = sum / time.Duration(count)
	agg.Median = Percentile(sorted, 50)
	agg.P90 = Percentile(sorted, 90)
	agg.P95 = Percentile(sorted, 95)
	agg.P99 = Percentile(sorted, 99)
	for _, p := range percentiles {
		agg.Percentiles[PercentileKey(p)] = Percentile(sorted, p)
	}

	if len(s.ttfbs) > 0 {
		ttfb := sortedCopy(s.ttfbs)
		agg.TTFBP50 = Percentile(ttfb, 50)
		agg.TTFBP95 = Percentile(ttfb, 95)
	}

	if !s.first.IsZero() && s.last.After(s.first) {
		agg.Window = s.last.Sub(s.first)
		secs := agg.Window.Seconds()
		agg.RPS = float64(count) / secs
		agg.OutputTokensPerSec = float64(s.usage.CompletionTokens) / secs
	}

	return agg
}

func sortedCopy(in []time.Duration) []time.Duration {
	out := make([]time.Duration, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
