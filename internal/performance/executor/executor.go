// Package executor drives a VU pool along a concurrency timeline.
package executor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/inferload/inferload/internal/performance"
	"github.com/inferload/inferload/internal/performance/metrics"
)

// Type identifies the type of executor.
type Type string

const (
	// TypeRampingVUs ramps VU count up and down according to stages.
	TypeRampingVUs Type = "ramping-vus"

	// TypeConstantVUs runs a fixed number of VUs for a duration.
	TypeConstantVUs Type = "constant-vus"
)

// DefaultTick is how often the ramp controller re-evaluates its target.
const DefaultTick = 100 * time.Millisecond

// DefaultGracefulRampDown bounds the drain after the last stage.
const DefaultGracefulRampDown = 30 * time.Second

// Executor defines the interface for load generation strategies.
//
// Executors decide how many VUs should be running at every instant and tell
// the scheduler; the VUs themselves are owned by the scheduler.
type Executor interface {
	// Type returns the executor type.
	Type() Type

	// Init initializes the executor with configuration.
	// Called once before Run().
	Init(ctx context.Context, config *Config) error

	// Run drives scheduler along the timeline and blocks until every VU has
	// terminated. Cancelling ctx ends the timeline early; VUs still drain.
	Run(ctx context.Context, scheduler *performance.VUScheduler, state metrics.StateObserver) error

	// CurrentTag returns the label for outcomes of iterations starting now.
	CurrentTag() string

	// GetProgress returns current progress (0.0 to 1.0).
	GetProgress() float64

	// GetStats returns executor-specific statistics.
	GetStats() *Stats

	// Stop ends the timeline early.
	Stop(ctx context.Context) error
}

// Config contains configuration for an executor.
type Config struct {
	// Name is the name of this executor instance
	Name string `json:"name" yaml:"name"`

	// Type is the executor type
	Type Type `json:"type" yaml:"type"`

	// constant-vus only
	VUs      int           `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// ramping-vus only
	Stages   []Stage `json:"stages,omitempty" yaml:"stages,omitempty"`
	StartVUs int     `json:"startVUs,omitempty" yaml:"startVUs,omitempty"`

	GracefulRampDown time.Duration `json:"gracefulRampDown,omitempty" yaml:"gracefulRampDown,omitempty"`

	// Tick is the controller resolution; DefaultTick when zero.
	Tick time.Duration `json:"tick,omitempty" yaml:"tick,omitempty"`

	// TagFormat renders outcome tags; DefaultTagFormat when empty.
	TagFormat string `json:"tagFormat,omitempty" yaml:"tagFormat,omitempty"`

	Logger *zap.Logger `json:"-" yaml:"-"`
}

// Validate validates the executor configuration.
func (c *Config) Validate() error {
	if c.Type == "" {
		return &performance.ConfigError{Field: "executor", Message: "executor type is required"}
	}

	switch c.Type {
	case TypeConstantVUs:
		if c.VUs <= 0 {
			return &performance.ConfigError{Field: "vus", Message: "vus must be > 0"}
		}
		if c.Duration <= 0 {
			return &performance.ConfigError{Field: "duration", Message: "duration must be > 0"}
		}
	case TypeRampingVUs:
		// checked by Timeline
	default:
		return &performance.ConfigError{Field: "executor", Message: "unknown executor type: " + string(c.Type)}
	}

	if c.Tick < 0 {
		return &performance.ConfigError{Field: "tick", Message: "must be >= 0"}
	}
	return c.Timeline().Validate()
}

// Timeline returns the concurrency timeline this config describes.
func (c *Config) Timeline() Timeline {
	grace := c.GracefulRampDown
	switch c.Type {
	case TypeConstantVUs:
		return Timeline{
			Stages: []Stage{
				{Duration: 0, Target: c.VUs, Name: c.Name},
				{Duration: c.Duration, Target: c.VUs, Name: c.Name},
			},
			GracefulRampDown: grace,
		}
	default:
		return Timeline{Stages: c.Stages, StartVUs: c.StartVUs, GracefulRampDown: grace}
	}
}

// TotalDuration returns the length of the timeline, drain excluded.
func (c *Config) TotalDuration() time.Duration {
	return c.Timeline().TotalDuration()
}

// Stats contains real-time executor statistics.
type Stats struct {
	// Timing
	StartTime     time.Time     `json:"startTime"`
	CurrentTime   time.Time     `json:"currentTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`

	// VU stats
	ActiveVUs int   `json:"activeVUs"`
	TargetVUs int   `json:"targetVUs"`
	Spawned   int64 `json:"spawned"`

	// ForcedTerminations counts VUs cancelled after the graceful ramp-down.
	ForcedTerminations int64 `json:"forcedTerminations"`

	// Stage info
	CurrentStage     int    `json:"currentStage"`
	CurrentStageName string `json:"currentStageName"`
	CurrentTag       string `json:"currentTag"`
	TotalStages      int    `json:"totalStages"`
}
