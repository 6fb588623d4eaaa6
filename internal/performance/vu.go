package performance

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/inferload/inferload/internal/performance/request"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU has been spawned but has not started iterating.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is looping over iterations.
	VUStateRunning
	// VUStateDraining indicates a stop was requested; the in-flight iteration
	// completes and is recorded, no new one starts.
	VUStateDraining
	// VUStateTerminated indicates the VU goroutine has exited.
	VUStateTerminated
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateDraining:
		return "draining"
	case VUStateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// RequestExecutor performs one request-response cycle.
type RequestExecutor interface {
	Execute(ctx context.Context, payload request.Payload) request.Outcome
}

// Recorder receives finished outcomes.
type Recorder interface {
	Record(o request.Outcome)
}

// vuEnv is what every VU of a pool shares. It is read-only after construction.
type vuEnv struct {
	sampler  *Sampler
	executor RequestExecutor
	recorder Recorder
	tag      func() string
	pacing   Pacing
	rng      RandSource
}

// VirtualUser is one simulated client issuing a sequential stream of requests.
//
// Only the VUScheduler starts or stops a VU.
type VirtualUser struct {
	ID int

	env *vuEnv

	state atomic.Int32

	// stopCh is closed on Running->Draining
	stopCh chan struct{}

	// doneCh is closed when the VU reaches Terminated
	doneCh chan struct{}

	// cancel aborts the in-flight request; used only for forced termination
	cancel context.CancelFunc

	iteration atomic.Int64
	spawnedAt time.Time
}

func newVirtualUser(id int, env *vuEnv) *VirtualUser {
	return &VirtualUser{
		ID:        id,
		env:       env,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		spawnedAt: time.Now(),
	}
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns the number of iterations started.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// SpawnedAt returns when the VU was created.
func (vu *VirtualUser) SpawnedAt() time.Time {
	return vu.spawnedAt
}

// Run loops until a stop is requested or ctx is cancelled, then marks the VU
// terminated. The stop signal is checked at the top of every iteration and
// during pacing; it never interrupts a request in flight.
func (vu *VirtualUser) Run(ctx context.Context) {
	defer vu.markTerminated()

	if !vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning)) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-vu.stopCh:
			return
		default:
		}

		if !vu.RunIteration(ctx) {
			return
		}

		delay := vu.env.pacing.Delay(vu.env.rng)
		if delay <= 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-vu.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunIteration samples a payload, executes it, and records the outcome tagged
// with the stage active when the iteration began. It returns false when the
// request was aborted by ctx; such outcomes are not recorded.
func (vu *VirtualUser) RunIteration(ctx context.Context) bool {
	vu.iteration.Add(1)

	tag := vu.env.tag()
	payload := vu.env.sampler.NextPayload()

	outcome := vu.env.executor.Execute(ctx, payload)
	if ctx.Err() != nil {
		return false
	}

	outcome.Tag = tag
	outcome.VU = vu.ID
	vu.env.recorder.Record(outcome)
	return true
}

// RequestStop moves the VU to Draining. It is idempotent.
func (vu *VirtualUser) RequestStop() {
	if vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateDraining)) ||
		vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateDraining)) {
		close(vu.stopCh)
	}
}

// WaitForStop waits for the VU to terminate.
//
// Returns true if the VU terminated within the timeout, false otherwise.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-vu.doneCh:
		return true
	case <-timer.C:
		return false
	}
}

// Done is closed once the VU has terminated.
func (vu *VirtualUser) Done() <-chan struct{} {
	return vu.doneCh
}

func (vu *VirtualUser) markTerminated() {
	vu.state.Store(int32(VUStateTerminated))
	select {
	case <-vu.doneCh:
	default:
		close(vu.doneCh)
	}
}
