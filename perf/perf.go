package perf

import (
	"context"

	"github.com/inferload/inferload/internal/performance/config"
	"github.com/inferload/inferload/internal/performance/engine"
	"github.com/inferload/inferload/internal/performance/metrics"
)

// Configuration types.
type (
	Config        = config.TestConfig
	TargetConfig  = config.TargetConfig
	PromptsConfig = config.PromptsConfig
	LoadSection   = config.LoadSection
	StageConfig   = config.StageConfig
	PacingConfig  = config.PacingConfig
	MetricsConfig = config.MetricsConfig
	Duration      = config.Duration
)

// Result types.
type (
	Result          = engine.Result
	ThresholdResult = engine.ThresholdResult
	TagStats        = metrics.TagStats
	Snapshot        = metrics.Snapshot
)

// Option configures a Runner.
type Option = engine.Option

// DurationOf returns a *Duration for optional fields such as
// LoadSection.GracefulRampDown.
var DurationOf = config.DurationOf

// Runner options.
var (
	WithLogger    = engine.WithLogger
	WithObserver  = engine.WithObserver
	WithTransport = engine.WithTransport
)

// LoadConfig reads a YAML or JSON configuration file.
func LoadConfig(path string) (*Config, error) {
	return config.LoadConfig(path)
}

// Runner provides a high-level API for running load tests.
type Runner struct {
	engine *engine.Engine
}

// NewRunner validates cfg and prepares a runner. Defaults are applied to cfg
// in place.
func NewRunner(cfg *Config, opts ...Option) (*Runner, error) {
	eng, err := engine.NewEngine(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Runner{engine: eng}, nil
}

// Run executes the sweep. Cancelling ctx ends it early; a result is still
// returned for whatever completed.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	return r.engine.Run(ctx)
}

// Stop ends the timeline early and lets VUs drain.
func (r *Runner) Stop(ctx context.Context) error {
	return r.engine.Stop(ctx)
}

// GetMetrics returns the current metrics snapshot.
// Can be called during test execution to get real-time metrics.
func (r *Runner) GetMetrics() *Snapshot {
	return r.engine.GetMetrics()
}

// Progress returns the timeline progress from 0 to 1.
func (r *Runner) Progress() float64 {
	return r.engine.GetProgress()
}

// RunTest is NewRunner followed by Run.
func RunTest(ctx context.Context, cfg *Config, opts ...Option) (*Result, error) {
	r, err := NewRunner(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}
