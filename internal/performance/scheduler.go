package performance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/inferload/inferload/internal/logging"
)

// forceWait bounds how long Shutdown waits for VUs after cancelling them.
const forceWait = 5 * time.Second

// ActiveVUsGauge receives the live VU count whenever it changes.
type ActiveVUsGauge interface {
	SetActiveVUs(n int)
}

// SchedulerConfig wires a VU pool.
type SchedulerConfig struct {
	Sampler  *Sampler
	Executor RequestExecutor
	Recorder Recorder

	// Tag returns the label stamped on outcomes; usually the current stage.
	Tag func() string

	Pacing Pacing
	Rand   RandSource

	// Gauge is optional.
	Gauge ActiveVUsGauge

	Logger *zap.Logger
}

// VUScheduler manages the pool of Virtual Users.
//
// It keeps the live set in spawn order so retirement is oldest-first, runs
// each VU in its own goroutine, and removes a VU from the live set once it
// terminates. Executors drive it through ScaleTo and Shutdown.
type VUScheduler struct {
	env    *vuEnv
	gauge  ActiveVUsGauge
	logger *zap.Logger

	// live set, oldest first
	vus   []*VirtualUser
	vusMu sync.RWMutex

	nextVUID atomic.Int32
	spawned  atomic.Int64
	forced   atomic.Int64

	wg sync.WaitGroup
}

// NewVUScheduler validates cfg and creates an empty pool.
func NewVUScheduler(cfg SchedulerConfig) (*VUScheduler, error) {
	switch {
	case cfg.Sampler == nil:
		return nil, &ConfigError{Field: "sampler", Message: "is required"}
	case cfg.Executor == nil:
		return nil, &ConfigError{Field: "executor", Message: "is required"}
	case cfg.Recorder == nil:
		return nil, &ConfigError{Field: "recorder", Message: "is required"}
	}
	if err := cfg.Pacing.Validate(); err != nil {
		return nil, &ConfigError{Field: "pacing", Message: err.Error()}
	}

	tag := cfg.Tag
	if tag == nil {
		tag = func() string { return "" }
	}
	rng := cfg.Rand
	if rng == nil {
		rng = NewRandSource(0)
	}

	return &VUScheduler{
		env: &vuEnv{
			sampler:  cfg.Sampler,
			executor: cfg.Executor,
			recorder: cfg.Recorder,
			tag:      tag,
			pacing:   cfg.Pacing,
			rng:      rng,
		},
		gauge:  cfg.Gauge,
		logger: logging.OrNop(cfg.Logger).With(zap.String("component", "scheduler")),
	}, nil
}

// SpawnVU creates a VU, adds it to the live set, and starts it. The VU's
// context derives from ctx so cancelling ctx aborts it.
func (s *VUScheduler) SpawnVU(ctx context.Context) *VirtualUser {
	vu := newVirtualUser(int(s.nextVUID.Add(1)), s.env)

	vuCtx, cancel := context.WithCancel(ctx)
	vu.cancel = cancel

	s.vusMu.Lock()
	s.vus = append(s.vus, vu)
	live := len(s.vus)
	s.vusMu.Unlock()

	s.spawned.Add(1)
	s.reportActive(live)
	s.logger.Debug("vu spawned", zap.Int("vu", vu.ID), zap.Int("live", live))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		vu.Run(vuCtx)
		s.remove(vu)
	}()

	return vu
}

func (s *VUScheduler) remove(vu *VirtualUser) {
	s.vusMu.Lock()
	for i, v := range s.vus {
		if v == vu {
			s.vus = append(s.vus[:i], s.vus[i+1:]...)
			break
		}
	}
	live := len(s.vus)
	s.vusMu.Unlock()

	s.reportActive(live)
	s.logger.Debug("vu terminated", zap.Int("vu", vu.ID), zap.Int64("iterations", vu.GetIteration()))
}

func (s *VUScheduler) reportActive(n int) {
	if s.gauge != nil {
		s.gauge.SetActiveVUs(n)
	}
}

// LiveCount returns the number of VUs not yet terminated, draining included.
func (s *VUScheduler) LiveCount() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()
	return len(s.vus)
}

// RunningCount returns the number of VUs that have not been asked to stop.
// Ramp decisions are made against this count.
func (s *VUScheduler) RunningCount() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	count := 0
	for _, vu := range s.vus {
		if st := vu.GetState(); st == VUStateIdle || st == VUStateRunning {
			count++
		}
	}
	return count
}

// GetActiveVUs returns a snapshot of the live set, oldest first.
func (s *VUScheduler) GetActiveVUs() []*VirtualUser {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()
	out := make([]*VirtualUser, len(s.vus))
	copy(out, s.vus)
	return out
}

// RetireOldest asks the n oldest running VUs to drain and returns how many
// were signalled.
func (s *VUScheduler) RetireOldest(n int) int {
	if n <= 0 {
		return 0
	}

	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	retired := 0
	for _, vu := range s.vus {
		if retired >= n {
			break
		}
		if st := vu.GetState(); st == VUStateIdle || st == VUStateRunning {
			vu.RequestStop()
			retired++
			s.logger.Debug("vu retiring", zap.Int("vu", vu.ID))
		}
	}
	return retired
}

// ScaleTo spawns or retires VUs until the running count equals target.
func (s *VUScheduler) ScaleTo(ctx context.Context, target int) (spawned, retired int) {
	if target < 0 {
		target = 0
	}
	current := s.RunningCount()

	switch {
	case target > current:
		for i := current; i < target; i++ {
			s.SpawnVU(ctx)
			spawned++
		}
	case target < current:
		retired = s.RetireOldest(current - target)
	}
	return spawned, retired
}

// StopAllVUs asks every live VU to drain.
func (s *VUScheduler) StopAllVUs() {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	for _, vu := range s.vus {
		vu.RequestStop()
	}
}

// WaitForAllVUs waits for all live VUs to terminate.
//
// Returns the number of VUs that did not terminate within the timeout.
func (s *VUScheduler) WaitForAllVUs(timeout time.Duration) int {
	deadline := time.Now().Add(timeout)

	notStopped := 0
	for _, vu := range s.GetActiveVUs() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			select {
			case <-vu.Done():
			default:
				notStopped++
			}
			continue
		}
		if !vu.WaitForStop(remaining) {
			notStopped++
		}
	}
	return notStopped
}

// ErrForcedTermination is reported when VUs had to be cancelled after the
// graceful ramp-down window.
var ErrForcedTermination = errors.New("virtual users force-terminated after graceful ramp-down")

// Shutdown drains every VU, waiting up to grace, then cancels the stragglers.
// It returns the number of VUs that were force-terminated; their in-flight
// outcomes are discarded.
func (s *VUScheduler) Shutdown(grace time.Duration) int {
	s.StopAllVUs()

	stragglers := s.WaitForAllVUs(grace)
	if stragglers == 0 {
		s.wg.Wait()
		return 0
	}

	s.logger.Warn("graceful ramp-down expired, forcing termination",
		zap.Int("vus", stragglers), zap.Duration("gracefulRampDown", grace))

	forced := 0
	for _, vu := range s.GetActiveVUs() {
		select {
		case <-vu.Done():
		default:
			vu.cancel()
			forced++
		}
	}
	s.forced.Add(int64(forced))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(forceWait):
		s.logger.Error("virtual users ignored cancellation", zap.Int("live", s.LiveCount()))
	}

	return forced
}

// Spawned returns the total number of VUs ever spawned.
func (s *VUScheduler) Spawned() int64 {
	return s.spawned.Load()
}

// ForcedTerminations returns the total number of VUs cancelled by Shutdown.
func (s *VUScheduler) ForcedTerminations() int64 {
	return s.forced.Load()
}
