// Package engine orchestrates a load test run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inferload/inferload/internal/logging"
	"github.com/inferload/inferload/internal/performance"
	"github.com/inferload/inferload/internal/performance/config"
	"github.com/inferload/inferload/internal/performance/executor"
	"github.com/inferload/inferload/internal/performance/metrics"
	"github.com/inferload/inferload/internal/performance/request"
	"github.com/inferload/inferload/internal/transport"
)

// Engine is the main orchestrator for a load test.
//
// It coordinates:
//   - Configuration validation and prompt loading
//   - The request executor, VU pool and timeline executor
//   - Metrics collection and aggregation
//   - Threshold evaluation
//
// Example usage:
//
//	cfg, _ := config.LoadConfig("test.yaml")
//	eng, _ := engine.NewEngine(cfg)
//	result, _ := eng.Run(context.Background())
//	fmt.Printf("Test passed: %v\n", result.Passed)
type Engine struct {
	config    *config.TestConfig
	logger    *zap.Logger
	transport transport.Transport
	observers []metrics.Observer
	rng       performance.RandSource

	// Built at the start of Run
	live      *metrics.LiveEngine
	collector *metrics.Collector
	executor  executor.Executor
	pool      *performance.VUScheduler
	mu        sync.RWMutex

	// State
	runID     string
	startTime time.Time
	running   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger passed to every component.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTransport replaces the default HTTP transport.
func WithTransport(t transport.Transport) Option {
	return func(e *Engine) { e.transport = t }
}

// WithObserver adds an observer notified of every outcome and state change.
func WithObserver(o metrics.Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithRandSource overrides the prompt and pacing randomness.
func WithRandSource(r performance.RandSource) Option {
	return func(e *Engine) { e.rng = r }
}

// NewEngine applies defaults to cfg and validates it.
//
// Returns the engine or an error if configuration is invalid.
func NewEngine(cfg *config.TestConfig, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}

	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e := &Engine{config: cfg}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrNop(e.logger).With(zap.String("component", "engine"))
	if e.transport == nil {
		e.transport = transport.NewHTTPTransport(cfg.TransportConfig())
	}
	if e.rng == nil {
		e.rng = performance.NewRandSource(cfg.Prompts.Seed)
	}
	return e, nil
}

// Run executes the load test and returns the results.
//
// Cancelling ctx ends the timeline early; VUs still drain for the graceful
// ramp-down window and a result is returned. Only configuration problems
// return an error.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine is already running")
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	if err := e.prepare(ctx); err != nil {
		return nil, err
	}
	defer e.live.Stop()

	e.mu.Lock()
	e.startTime = time.Now()
	e.mu.Unlock()

	log := e.logger.With(zap.String("runId", e.runID))
	log.Info("run started",
		zap.String("name", e.config.Name),
		zap.String("url", e.config.Target.URL),
		zap.String("protocol", e.config.Target.Protocol),
		zap.String("executor", string(e.executor.Type())))

	e.collector.SetPhase(metrics.PhaseInit, e.executor.CurrentTag())
	if err := e.executor.Run(ctx, e.pool, e.collector); err != nil {
		return nil, fmt.Errorf("executor failed: %w", err)
	}

	agg, err := e.collector.Finalize()
	if err != nil {
		return nil, fmt.Errorf("failed to finalize metrics: %w", err)
	}

	result := e.buildResult(agg)
	for _, w := range result.Warnings {
		log.Warn(w)
	}
	log.Info("run finished",
		zap.Int64("requests", agg.Overall.Count),
		zap.Int64("failures", agg.Overall.Failures),
		zap.Duration("duration", result.Duration),
		zap.Bool("passed", result.Passed))

	return result, nil
}

// prepare builds the per-run components. Any error is a configuration error.
func (e *Engine) prepare(ctx context.Context) error {
	prompts, err := config.LoadPrompts(e.config.Prompts)
	if err != nil {
		return &performance.ConfigError{Field: "prompts", Message: err.Error()}
	}
	sampler, err := performance.NewSampler(prompts, e.rng)
	if err != nil {
		return err
	}

	checks, err := request.BuildChecks(e.config.Checks)
	if err != nil {
		return &performance.ConfigError{Field: "checks", Message: err.Error()}
	}
	reqExec, err := request.NewExecutor(e.config.RequestConfig(checks), e.transport)
	if err != nil {
		return &performance.ConfigError{Field: "target", Message: err.Error()}
	}

	exec, err := executor.CreateAndInitExecutor(ctx, e.config.ExecutorConfig(e.logger))
	if err != nil {
		return err
	}

	live := metrics.NewLiveEngine(metrics.DefaultLiveConfig())
	collectorOpts := []metrics.CollectorOption{
		metrics.WithPercentiles(e.config.Metrics.Percentiles...),
		metrics.WithObserver(live),
	}
	for _, o := range e.observers {
		collectorOpts = append(collectorOpts, metrics.WithObserver(o))
	}
	collector := metrics.NewCollector(collectorOpts...)

	pool, err := performance.NewVUScheduler(performance.SchedulerConfig{
		Sampler:  sampler,
		Executor: reqExec,
		Recorder: collector,
		Tag:      exec.CurrentTag,
		Pacing:   e.config.Pacing(),
		Rand:     e.rng,
		Gauge:    collector,
		Logger:   e.logger,
	})
	if err != nil {
		live.Stop()
		return err
	}

	e.mu.Lock()
	e.runID = uuid.NewString()
	e.live = live
	e.collector = collector
	e.executor = exec
	e.pool = pool
	e.mu.Unlock()
	return nil
}

func (e *Engine) buildResult(agg *metrics.Aggregate) *Result {
	e.mu.RLock()
	start := e.startTime
	e.mu.RUnlock()
	end := time.Now()

	stats := e.executor.GetStats()
	result := &Result{
		RunID:              e.runID,
		Name:               e.config.Name,
		Description:        e.config.Description,
		Target:             e.config.Target.URL,
		Protocol:           e.config.Target.Protocol,
		Model:              e.config.Body.Model,
		Executor:           string(e.executor.Type()),
		Timeline:           e.config.ExecutorConfig(nil).Timeline().String(),
		StartTime:          start,
		EndTime:            end,
		Duration:           end.Sub(start),
		Aggregate:          agg,
		Live:               e.live.GetSnapshot(),
		TimeSeries:         e.live.GetTimeSeries(),
		Phases:             e.live.GetPhaseHistory(),
		Spawned:            stats.Spawned,
		ForcedTerminations: stats.ForcedTerminations,
		Passed:             true,
	}

	if result.ForcedTerminations > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%v: %d", performance.ErrForcedTermination, result.ForcedTerminations))
	}
	if agg.Overall.Count == 0 {
		result.Warnings = append(result.Warnings, "no requests completed")
	}

	ths, err := e.config.Thresholds.Thresholds()
	if err != nil {
		// validated in NewEngine
		result.Warnings = append(result.Warnings, err.Error())
	}
	result.Thresholds = EvaluateThresholds(ths, &agg.Overall)
	for _, tr := range result.Thresholds {
		if !tr.Passed {
			result.Passed = false
			break
		}
	}
	return result
}

// GetConfig returns the test configuration.
func (e *Engine) GetConfig() *config.TestConfig {
	return e.config
}

// RunID returns the identifier of the current or last run.
func (e *Engine) RunID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runID
}

// GetMetrics returns the current live metrics snapshot.
func (e *Engine) GetMetrics() *metrics.Snapshot {
	e.mu.RLock()
	live := e.live
	e.mu.RUnlock()
	if live == nil {
		return nil
	}
	return live.GetSnapshot()
}

// GetTimeSeries returns the time series data.
func (e *Engine) GetTimeSeries() []*metrics.TimeBucket {
	e.mu.RLock()
	live := e.live
	e.mu.RUnlock()
	if live == nil {
		return nil
	}
	return live.GetTimeSeries()
}

// GetStats returns the executor statistics, or nil before Run.
func (e *Engine) GetStats() *executor.Stats {
	e.mu.RLock()
	exec := e.executor
	e.mu.RUnlock()
	if exec == nil {
		return nil
	}
	return exec.GetStats()
}

// GetProgress returns the timeline progress (0.0 to 1.0).
func (e *Engine) GetProgress() float64 {
	e.mu.RLock()
	exec := e.executor
	e.mu.RUnlock()
	if exec == nil {
		return 0.0
	}
	return exec.GetProgress()
}

// IsRunning returns true if the engine is currently running.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Stop ends the timeline early. Run still drains and returns a result.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.RLock()
	exec := e.executor
	running := e.running
	e.mu.RUnlock()

	if !running || exec == nil {
		return nil
	}
	return exec.Stop(ctx)
}
