package performance

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/inferload/inferload/internal/performance/request"
)

// fakeExecutor sleeps for delay, honouring ctx like a real transport.
type fakeExecutor struct {
	delay time.Duration
	calls atomic.Int64

	// ignoreCtx makes the request uninterruptible.
	ignoreCtx bool
}

func (f *fakeExecutor) Execute(ctx context.Context, p request.Payload) request.Outcome {
	f.calls.Add(1)
	start := time.Now()
	if f.delay > 0 {
		if f.ignoreCtx {
			time.Sleep(f.delay)
		} else {
			select {
			case <-ctx.Done():
				return request.Outcome{StartedAt: start, Duration: time.Since(start), Reason: request.ReasonTransport}
			case <-time.After(f.delay):
			}
		}
	}
	return request.Outcome{StartedAt: start, Duration: time.Since(start), Success: true, StatusCode: 200}
}

type memRecorder struct {
	mu       sync.Mutex
	outcomes []request.Outcome
}

func (m *memRecorder) Record(o request.Outcome) {
	m.mu.Lock()
	m.outcomes = append(m.outcomes, o)
	m.mu.Unlock()
}

func (m *memRecorder) all() []request.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]request.Outcome(nil), m.outcomes...)
}

// seqSource returns 0, 1, 2, ... modulo n.
type seqSource struct {
	next atomic.Int64
}

func (s *seqSource) IntN(n int) int {
	return int(s.next.Add(1)-1) % n
}

type gaugeRecorder struct {
	last atomic.Int64
	max  atomic.Int64
}

func (g *gaugeRecorder) SetActiveVUs(n int) {
	g.last.Store(int64(n))
	for {
		m := g.max.Load()
		if int64(n) <= m || g.max.CompareAndSwap(m, int64(n)) {
			return
		}
	}
}

func newTestEnv(exec RequestExecutor, rec Recorder, tag string) *vuEnv {
	sampler, _ := NewSampler([]string{"a", "b"}, &seqSource{})
	return &vuEnv{
		sampler:  sampler,
		executor: exec,
		recorder: rec,
		tag:      func() string { return tag },
		rng:      &seqSource{},
	}
}

func waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
