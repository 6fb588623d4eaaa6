package performance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, exec RequestExecutor, rec Recorder, gauge ActiveVUsGauge) *VUScheduler {
	t.Helper()
	sampler, err := NewSampler([]string{"p"}, NewRandSource(1))
	require.NoError(t, err)

	s, err := NewVUScheduler(SchedulerConfig{
		Sampler:  sampler,
		Executor: exec,
		Recorder: rec,
		Tag:      func() string { return "t" },
		Gauge:    gauge,
	})
	require.NoError(t, err)
	return s
}

func TestNewVUScheduler_RequiresCollaborators(t *testing.T) {
	sampler, _ := NewSampler([]string{"p"}, nil)

	cases := []SchedulerConfig{
		{Executor: &fakeExecutor{}, Recorder: &memRecorder{}},
		{Sampler: sampler, Recorder: &memRecorder{}},
		{Sampler: sampler, Executor: &fakeExecutor{}},
		{Sampler: sampler, Executor: &fakeExecutor{}, Recorder: &memRecorder{}, Pacing: Pacing{Type: "bogus"}},
	}
	for i, cfg := range cases {
		_, err := NewVUScheduler(cfg)
		var cerr *ConfigError
		assert.True(t, errors.As(err, &cerr), "case %d: error = %v", i, err)
	}
}

func TestVUScheduler_ScaleUpAndDown(t *testing.T) {
	gauge := &gaugeRecorder{}
	s := newTestScheduler(t, &fakeExecutor{delay: time.Millisecond}, &memRecorder{}, gauge)
	ctx := context.Background()

	spawned, retired := s.ScaleTo(ctx, 5)
	assert.Equal(t, 5, spawned)
	assert.Zero(t, retired)
	assert.Equal(t, 5, s.RunningCount())
	assert.Equal(t, 5, s.LiveCount())
	assert.Equal(t, int64(5), gauge.max.Load())

	spawned, retired = s.ScaleTo(ctx, 2)
	assert.Zero(t, spawned)
	assert.Equal(t, 3, retired)
	assert.Equal(t, 2, s.RunningCount())
	require.True(t, waitFor(func() bool { return gauge.last.Load() == 2 }, time.Second))
	assert.Equal(t, 2, s.LiveCount())

	// a no-op scale
	spawned, retired = s.ScaleTo(ctx, 2)
	assert.Zero(t, spawned+retired)

	assert.Zero(t, s.Shutdown(time.Second))
	assert.Zero(t, s.LiveCount())
	assert.Equal(t, int64(5), s.Spawned())
}

func TestVUScheduler_RetiresOldestFirst(t *testing.T) {
	s := newTestScheduler(t, &fakeExecutor{delay: time.Millisecond}, &memRecorder{}, nil)
	ctx := context.Background()

	s.ScaleTo(ctx, 4)
	before := s.GetActiveVUs()
	require.Len(t, before, 4)
	require.True(t, waitFor(func() bool {
		for _, vu := range before {
			if vu.GetIteration() == 0 {
				return false
			}
		}
		return true
	}, time.Second))

	s.RetireOldest(2)

	assert.Equal(t, VUStateTerminated, waitState(before[0]))
	assert.Equal(t, VUStateTerminated, waitState(before[1]))
	assert.Equal(t, VUStateRunning, before[2].GetState())
	assert.Equal(t, VUStateRunning, before[3].GetState())

	require.True(t, waitFor(func() bool { return s.LiveCount() == 2 }, time.Second))
	after := s.GetActiveVUs()
	assert.Equal(t, before[2].ID, after[0].ID)
	assert.Equal(t, before[3].ID, after[1].ID)

	s.Shutdown(time.Second)
}

func waitState(vu *VirtualUser) VUState {
	vu.WaitForStop(time.Second)
	return vu.GetState()
}

func TestVUScheduler_DrainingVUsStayLiveButNotRunning(t *testing.T) {
	exec := &fakeExecutor{delay: 200 * time.Millisecond}
	s := newTestScheduler(t, exec, &memRecorder{}, nil)

	s.ScaleTo(context.Background(), 3)
	require.True(t, waitFor(func() bool { return exec.calls.Load() == 3 }, time.Second))

	s.ScaleTo(context.Background(), 1)
	assert.Equal(t, 1, s.RunningCount())
	assert.Equal(t, 3, s.LiveCount(), "draining VUs remain live until their request completes")

	require.True(t, waitFor(func() bool { return s.LiveCount() == 1 }, time.Second))
	s.Shutdown(time.Second)
}

func TestVUScheduler_ShutdownForcesStragglers(t *testing.T) {
	rec := &memRecorder{}
	exec := &fakeExecutor{delay: time.Hour}
	s := newTestScheduler(t, exec, rec, nil)

	s.ScaleTo(context.Background(), 3)
	require.True(t, waitFor(func() bool { return exec.calls.Load() == 3 }, time.Second))

	start := time.Now()
	forced := s.Shutdown(50 * time.Millisecond)

	assert.Equal(t, 3, forced)
	assert.Equal(t, int64(3), s.ForcedTerminations())
	assert.Zero(t, s.LiveCount())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Empty(t, rec.all(), "aborted requests are not recorded")
}

func TestVUScheduler_ShutdownWithinGrace(t *testing.T) {
	rec := &memRecorder{}
	exec := &fakeExecutor{delay: 50 * time.Millisecond}
	s := newTestScheduler(t, exec, rec, nil)

	s.ScaleTo(context.Background(), 2)
	require.True(t, waitFor(func() bool { return exec.calls.Load() == 2 }, time.Second))

	forced := s.Shutdown(time.Second)

	assert.Zero(t, forced)
	assert.Len(t, rec.all(), 2, "in-flight iterations complete and are recorded")
}
