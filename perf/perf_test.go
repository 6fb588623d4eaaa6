package perf_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferload/inferload/internal/mockserver"
	"github.com/inferload/inferload/perf"
)

func TestRunTest(t *testing.T) {
	ts := httptest.NewServer(mockserver.New(mockserver.Config{Latency: time.Millisecond}).Handler())
	defer ts.Close()

	cfg := &perf.Config{
		Name:    "library",
		Target:  perf.TargetConfig{URL: ts.URL + "/v1/embeddings"},
		Prompts: perf.PromptsConfig{Inline: []string{"hello world"}, Seed: 9},
		Load: perf.LoadSection{
			Stages: []perf.StageConfig{
				{Duration: perf.Duration(300 * time.Millisecond), Target: 1},
			},
			GracefulRampDown: perf.DurationOf(time.Second),
		},
	}

	result, err := perf.RunTest(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, result.Passed)
	require.Len(t, result.Tags(), 1)
	assert.Equal(t, "1 VUs", result.Tags()[0].Tag)
	assert.Greater(t, result.Overall().Count, int64(0))
}

func TestNewRunner_InvalidConfig(t *testing.T) {
	_, err := perf.NewRunner(&perf.Config{})
	assert.Error(t, err)

	_, err = perf.NewRunner(nil)
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: from-file
target:
  url: http://localhost:8000/v1/embeddings
prompts:
  inline: [a]
load:
  stages:
    - {duration: 1s, target: 2}
`), 0o644))

	cfg, err := perf.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Name)

	r, err := perf.NewRunner(cfg)
	require.NoError(t, err)
	assert.Nil(t, r.GetMetrics())
	assert.Zero(t, r.Progress())
	assert.NoError(t, r.Stop(context.Background()))
}
