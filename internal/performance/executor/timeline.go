package executor

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/inferload/inferload/internal/performance"
	"github.com/inferload/inferload/internal/performance/metrics"
)

// DefaultTagFormat labels outcomes by the stage target.
const DefaultTagFormat = "{target} VUs"

// Stage defines one segment of a concurrency timeline.
type Stage struct {
	// Duration of this stage
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Target VU count reached at the end of the stage
	Target int `json:"target" yaml:"target"`

	// Optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Timeline is an ordered list of stages plus the drain window that follows
// the last one. It is read-only once a run starts.
type Timeline struct {
	Stages []Stage `json:"stages" yaml:"stages"`

	// StartVUs is the level the first stage ramps from.
	StartVUs int `json:"startVUs,omitempty" yaml:"startVUs,omitempty"`

	GracefulRampDown time.Duration `json:"gracefulRampDown" yaml:"gracefulRampDown"`
}

// Validate checks the timeline is non-empty and has no negative values.
func (t Timeline) Validate() error {
	if len(t.Stages) == 0 {
		return &performance.ConfigError{Field: "stages", Message: "at least one stage is required"}
	}
	for i, s := range t.Stages {
		if s.Duration < 0 {
			return &performance.ConfigError{Field: fmt.Sprintf("stages[%d].duration", i), Message: "must be >= 0"}
		}
		if s.Target < 0 {
			return &performance.ConfigError{Field: fmt.Sprintf("stages[%d].target", i), Message: "must be >= 0"}
		}
	}
	if t.StartVUs < 0 {
		return &performance.ConfigError{Field: "startVUs", Message: "must be >= 0"}
	}
	if t.GracefulRampDown < 0 {
		return &performance.ConfigError{Field: "gracefulRampDown", Message: "must be >= 0"}
	}
	return nil
}

// TotalDuration is the sum of the stage durations.
func (t Timeline) TotalDuration() time.Duration {
	var total time.Duration
	for _, s := range t.Stages {
		total += s.Duration
	}
	return total
}

// MaxTarget returns the highest VU level of the timeline.
func (t Timeline) MaxTarget() int {
	m := t.StartVUs
	for _, s := range t.Stages {
		m = max(m, s.Target)
	}
	return m
}

// prevTarget is the level stage i starts from.
func (t Timeline) prevTarget(i int) int {
	if i <= 0 {
		return t.StartVUs
	}
	return t.Stages[i-1].Target
}

// StageAt returns the index of the stage active at elapsed. Zero-duration
// stages are never active; past the end the last stage is returned.
func (t Timeline) StageAt(elapsed time.Duration) int {
	var start time.Duration
	for i, s := range t.Stages {
		end := start + s.Duration
		if elapsed < end {
			return i
		}
		start = end
	}
	return len(t.Stages) - 1
}

// TargetAt returns the VU target at elapsed.
//
// Within a stage the target moves linearly from the previous stage's target
// to this one's. Fractional values round toward the stage target (up while
// ramping up, down while ramping down) and the stage target is exact at the
// stage boundary.
func (t Timeline) TargetAt(elapsed time.Duration) int {
	if len(t.Stages) == 0 {
		return 0
	}
	if elapsed < 0 {
		elapsed = 0
	}

	var start time.Duration
	for i, s := range t.Stages {
		end := start + s.Duration
		if elapsed < end {
			return interpolate(t.prevTarget(i), s.Target, int64(elapsed-start), int64(s.Duration))
		}
		start = end
	}
	return t.Stages[len(t.Stages)-1].Target
}

// interpolate computes from + (to-from)*num/den rounded toward to, in
// integer arithmetic so boundaries are exact.
func interpolate(from, to int, num, den int64) int {
	if den <= 0 || from == to {
		return to
	}
	delta := int64(to-from) * num
	if delta >= 0 {
		return from + int((delta+den-1)/den)
	}
	return from - int((-delta+den-1)/den)
}

// PhaseOf classifies stage i by comparing its target with the previous one.
func (t Timeline) PhaseOf(i int) metrics.Phase {
	if i < 0 || i >= len(t.Stages) {
		return metrics.PhaseDone
	}
	prev := t.prevTarget(i)
	switch {
	case t.Stages[i].Target > prev:
		return metrics.PhaseRampUp
	case t.Stages[i].Target < prev:
		return metrics.PhaseRampDown
	default:
		return metrics.PhaseSteady
	}
}

// String renders the timeline as "duration:target" pairs, prefixed with
// "start:N" when the first stage does not ramp from zero.
func (t Timeline) String() string {
	parts := make([]string, 0, len(t.Stages)+1)
	if t.StartVUs > 0 {
		parts = append(parts, "start:"+strconv.Itoa(t.StartVUs))
	}
	for _, s := range t.Stages {
		parts = append(parts, s.Duration.String()+":"+strconv.Itoa(s.Target))
	}
	return strings.Join(parts, ",")
}

// FormatTag renders format for stage i. Supported tokens are {target},
// {stage} (1-based index) and {name} (stage name, or "stage-N").
func FormatTag(format string, i int, s Stage) string {
	if format == "" {
		format = DefaultTagFormat
	}
	name := s.Name
	if name == "" {
		name = "stage-" + strconv.Itoa(i+1)
	}
	r := strings.NewReplacer(
		"{target}", strconv.Itoa(s.Target),
		"{stage}", strconv.Itoa(i+1),
		"{name}", name,
	)
	return r.Replace(format)
}
