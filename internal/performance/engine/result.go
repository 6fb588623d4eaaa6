package engine

import (
	"time"

	"github.com/inferload/inferload/internal/performance/metrics"
)

// Result contains the complete results of a run. Every report format is a
// rendering of this struct.
type Result struct {
	// Run metadata
	RunID       string        `json:"runId" yaml:"runId"`
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Target      string        `json:"target" yaml:"target"`
	Protocol    string        `json:"protocol" yaml:"protocol"`
	Model       string        `json:"model,omitempty" yaml:"model,omitempty"`
	Executor    string        `json:"executor" yaml:"executor"`
	Timeline    string        `json:"timeline" yaml:"timeline"`
	StartTime   time.Time     `json:"startTime" yaml:"startTime"`
	EndTime     time.Time     `json:"endTime" yaml:"endTime"`
	Duration    time.Duration `json:"duration" yaml:"duration"`

	// Aggregate holds the exact per-tag and overall statistics
	Aggregate *metrics.Aggregate `json:"aggregate" yaml:"aggregate"`

	// Live is the final HDR snapshot; TimeSeries and Phases come from the
	// same engine and are approximate
	Live       *metrics.Snapshot     `json:"live,omitempty" yaml:"live,omitempty"`
	TimeSeries []*metrics.TimeBucket `json:"timeSeries,omitempty" yaml:"timeSeries,omitempty"`
	Phases     []metrics.PhaseChange `json:"phases,omitempty" yaml:"phases,omitempty"`

	// VU accounting
	Spawned            int64 `json:"spawned" yaml:"spawned"`
	ForcedTerminations int64 `json:"forcedTerminations" yaml:"forcedTerminations"`

	// Threshold evaluation
	Passed     bool              `json:"passed" yaml:"passed"`
	Thresholds []ThresholdResult `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Overall returns the run-wide statistics.
func (r *Result) Overall() *metrics.AggregateStats {
	if r == nil || r.Aggregate == nil {
		return &metrics.AggregateStats{}
	}
	return &r.Aggregate.Overall
}

// Tags returns the per-tag statistics in order of first appearance.
func (r *Result) Tags() []*metrics.TagStats {
	if r == nil || r.Aggregate == nil {
		return nil
	}
	return r.Aggregate.Tags
}
