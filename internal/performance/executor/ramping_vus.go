package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/inferload/inferload/internal/logging"
	"github.com/inferload/inferload/internal/performance"
	"github.com/inferload/inferload/internal/performance/metrics"
)

// RampingVUs ramps VU count up and down according to stages.
//
// A controller goroutine re-evaluates the timeline every tick and asks the
// scheduler to spawn or retire VUs so the running count matches the
// interpolated target. When the timeline ends every VU is drained for up to
// GracefulRampDown and the stragglers are cancelled.
//
// Example stages:
//
//	stages:
//	  - duration: 15s
//	    target: 64     # Ramp from 0 to 64 VUs over 15s
//	  - duration: 2m
//	    target: 64     # Stay at 64 VUs for 2 minutes
//	  - duration: 15s
//	    target: 0      # Ramp down to 0 VUs over 15s
type RampingVUs struct {
	config   *Config
	timeline Timeline
	tick     time.Duration
	logger   *zap.Logger
	typ      Type

	// State
	startTime    time.Time
	targetVUs    atomic.Int32
	currentStage atomic.Int32
	running      atomic.Bool
	finished     atomic.Bool
	tag          atomic.Pointer[string]

	scheduler *performance.VUScheduler

	// Cancellation
	cancelFunc context.CancelFunc

	mu sync.RWMutex
}

// NewRampingVUs creates a new ramping VUs executor.
func NewRampingVUs() *RampingVUs {
	e := &RampingVUs{typ: TypeRampingVUs}
	e.currentStage.Store(-1)
	return e
}

// Type returns the executor type.
func (e *RampingVUs) Type() Type {
	return e.typ
}

// Init initializes the executor with configuration.
func (e *RampingVUs) Init(ctx context.Context, config *Config) error {
	if config.Type != e.typ {
		return fmt.Errorf("invalid config type: expected %s, got %s", e.typ, config.Type)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	e.config = config
	e.timeline = config.Timeline()
	e.tick = config.Tick
	if e.tick == 0 {
		e.tick = DefaultTick
	}
	e.logger = logging.OrNop(config.Logger).With(
		zap.String("component", "executor"),
		zap.String("executor", string(e.typ)),
	)

	first := FormatTag(config.TagFormat, 0, e.timeline.Stages[0])
	e.tag.Store(&first)
	return nil
}

// CurrentTag returns the tag of the active stage.
func (e *RampingVUs) CurrentTag() string {
	if p := e.tag.Load(); p != nil {
		return *p
	}
	return ""
}

// Run starts the executor and blocks until completion.
func (e *RampingVUs) Run(ctx context.Context, scheduler *performance.VUScheduler, state metrics.StateObserver) error {
	if e.config == nil {
		return fmt.Errorf("executor not initialized")
	}
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("executor already running")
	}

	e.mu.Lock()
	e.scheduler = scheduler
	e.startTime = time.Now()
	runCtx, cancel := context.WithTimeout(ctx, e.timeline.TotalDuration())
	e.cancelFunc = cancel
	e.mu.Unlock()
	defer cancel()

	// VUs outlive the timeline context so the drain below can let in-flight
	// requests finish; Shutdown cancels each VU individually.
	vuCtx := context.WithoutCancel(ctx)

	e.logger.Info("timeline started",
		zap.Int("stages", len(e.timeline.Stages)),
		zap.Duration("duration", e.timeline.TotalDuration()),
		zap.Int("maxVUs", e.timeline.MaxTarget()))

	e.step(vuCtx, scheduler, state, 0)

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-runCtx.Done():
			break loop
		case <-ticker.C:
			e.step(vuCtx, scheduler, state, time.Since(e.startTime))
		}
	}

	if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		e.step(vuCtx, scheduler, state, e.timeline.TotalDuration())
	} else {
		e.logger.Warn("timeline interrupted", zap.Duration("elapsed", time.Since(e.startTime)))
	}

	tag := e.CurrentTag()
	if state != nil {
		state.SetPhase(metrics.PhaseDrain, tag)
	}
	e.logger.Info("timeline complete, draining",
		zap.Int("live", scheduler.LiveCount()),
		zap.Duration("gracefulRampDown", e.timeline.GracefulRampDown))

	if forced := scheduler.Shutdown(e.timeline.GracefulRampDown); forced > 0 {
		e.logger.Warn("virtual users force-terminated", zap.Int("forced", forced))
	}

	if state != nil {
		state.SetPhase(metrics.PhaseDone, tag)
	}
	e.finished.Store(true)
	e.running.Store(false)
	return nil
}

// step applies the timeline at elapsed: it updates the stage, tag and phase
// when the stage changes, then scales the pool to the target.
func (e *RampingVUs) step(ctx context.Context, scheduler *performance.VUScheduler, state metrics.StateObserver, elapsed time.Duration) {
	idx := e.timeline.StageAt(elapsed)
	target := e.timeline.TargetAt(elapsed)

	if prev := int(e.currentStage.Swap(int32(idx))); prev != idx {
		stage := e.timeline.Stages[idx]
		tag := FormatTag(e.config.TagFormat, idx, stage)
		e.tag.Store(&tag)

		phase := e.timeline.PhaseOf(idx)
		if state != nil {
			state.SetPhase(phase, tag)
		}
		e.logger.Info("stage started",
			zap.Int("stage", idx+1),
			zap.String("name", stage.Name),
			zap.Int("target", stage.Target),
			zap.Duration("duration", stage.Duration),
			zap.String("phase", string(phase)),
			zap.String("tag", tag))
	}

	e.targetVUs.Store(int32(target))
	spawned, retired := scheduler.ScaleTo(ctx, target)
	if spawned > 0 || retired > 0 {
		e.logger.Debug("scaled",
			zap.Int("target", target),
			zap.Int("spawned", spawned),
			zap.Int("retired", retired))
	}
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *RampingVUs) GetProgress() float64 {
	if e.finished.Load() {
		return 1.0
	}
	if !e.running.Load() {
		return 0.0
	}

	e.mu.RLock()
	start := e.startTime
	e.mu.RUnlock()

	totalDuration := e.timeline.TotalDuration()
	if totalDuration == 0 {
		return 1.0
	}

	progress := float64(time.Since(start)) / float64(totalDuration)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// GetStats returns executor statistics.
func (e *RampingVUs) GetStats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var elapsed time.Duration
	if !e.startTime.IsZero() {
		elapsed = time.Since(e.startTime)
	}

	stats := &Stats{
		StartTime:     e.startTime,
		CurrentTime:   time.Now(),
		Elapsed:       elapsed,
		TotalDuration: e.timeline.TotalDuration(),
		TargetVUs:     int(e.targetVUs.Load()),
		CurrentStage:  int(e.currentStage.Load()),
		CurrentTag:    e.CurrentTag(),
		TotalStages:   len(e.timeline.Stages),
	}
	if idx := stats.CurrentStage; idx >= 0 && idx < len(e.timeline.Stages) {
		stats.CurrentStageName = e.timeline.Stages[idx].Name
	}
	if e.scheduler != nil {
		stats.ActiveVUs = e.scheduler.LiveCount()
		stats.Spawned = e.scheduler.Spawned()
		stats.ForcedTerminations = e.scheduler.ForcedTerminations()
	}
	return stats
}

// Stop ends the timeline early; Run still drains the pool.
func (e *RampingVUs) Stop(ctx context.Context) error {
	e.mu.RLock()
	cancel := e.cancelFunc
	e.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	return nil
}
