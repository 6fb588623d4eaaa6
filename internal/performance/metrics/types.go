// Package metrics aggregates request outcomes.
//
// Two views are kept. The Collector retains every duration, partitioned by
// concurrency tag, and computes exact percentiles once at the end of a run.
// The LiveEngine observes the same outcomes through HDR histograms and feeds
// progress displays and the per-second time series while the run is active.
package metrics

import (
	"time"

	"github.com/inferload/inferload/internal/performance/request"
)

// Phase represents a phase of the load test.
type Phase string

const (
	// PhaseInit is the initialization phase before the test starts
	PhaseInit Phase = "init"

	// PhaseRampUp is a stage whose target is above the previous one
	PhaseRampUp Phase = "ramp-up"

	// PhaseSteady is a stage holding its target
	PhaseSteady Phase = "steady"

	// PhaseRampDown is a stage whose target is below the previous one
	PhaseRampDown Phase = "ramp-down"

	// PhaseDrain is the graceful ramp-down window after the last stage
	PhaseDrain Phase = "drain"

	// PhaseDone indicates the test has completed
	PhaseDone Phase = "done"
)

// Observer receives every recorded outcome.
type Observer interface {
	Observe(o request.Outcome)
}

// StateObserver is implemented by observers that also track scheduler state.
type StateObserver interface {
	SetActiveVUs(n int)
	SetPhase(phase Phase, tag string)
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// LatencyPercentiles holds latency percentile values.
type LatencyPercentiles struct {
	Min time.Duration
	Max time.Duration
	P50 time.Duration
	P90 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// TimeBucket represents metrics for one emitter interval.
//
// Each bucket captures cumulative totals and the interval deltas.
type TimeBucket struct {
	Timestamp time.Time `json:"timestamp"`

	// Cumulative counters (total since test start)
	TotalRequests  int64 `json:"totalRequests"`
	TotalSuccesses int64 `json:"totalSuccesses"`
	TotalFailures  int64 `json:"totalFailures"`
	TotalBytes     int64 `json:"totalBytes"`

	// Interval metrics
	IntervalRequests int64   `json:"intervalRequests"`
	IntervalRPS      float64 `json:"intervalRPS"`
	IntervalTokens   int64   `json:"intervalTokens"`

	// Latency percentiles (from HDR histogram at this point in time)
	LatencyMin time.Duration `json:"latencyMin"`
	LatencyMax time.Duration `json:"latencyMax"`
	LatencyP50 time.Duration `json:"latencyP50"`
	LatencyP90 time.Duration `json:"latencyP90"`
	LatencyP95 time.Duration `json:"latencyP95"`
	LatencyP99 time.Duration `json:"latencyP99"`

	ActiveVUs int    `json:"activeVUs"`
	Phase     Phase  `json:"phase"`
	Tag       string `json:"tag,omitempty"`

	IntervalErrorRate float64 `json:"intervalErrorRate"`
}

// PhaseChange records when a phase transition occurred.
type PhaseChange struct {
	Phase     Phase     `json:"phase"`
	Tag       string    `json:"tag,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Requests  int64     `json:"requests"`
}

// Snapshot contains a point-in-time view of the live metrics.
type Snapshot struct {
	TotalRequests   int64         `json:"totalRequests"`
	SuccessRequests int64         `json:"successRequests"`
	FailedRequests  int64         `json:"failedRequests"`
	TotalBytes      int64         `json:"totalBytes"`
	TotalTokens     int64         `json:"totalTokens"`
	Latency         LatencyStats  `json:"latency"`
	RPS             float64       `json:"rps"`
	SteadyStateRPS  float64       `json:"steadyStateRps"`
	ErrorRate       float64       `json:"errorRate"`
	ActiveVUs       int           `json:"activeVUs"`
	CurrentPhase    Phase         `json:"currentPhase"`
	CurrentTag      string        `json:"currentTag,omitempty"`
	Elapsed         time.Duration `json:"elapsed"`
	StartTime       time.Time     `json:"startTime"`
	Timestamp       time.Time     `json:"timestamp"`
}
