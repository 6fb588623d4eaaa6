package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inferload/inferload/internal/performance/engine"
	"github.com/inferload/inferload/internal/performance/metrics"
	"github.com/inferload/inferload/internal/performance/request"
)

func sampleResult(t *testing.T, runID string, start time.Time) *engine.Result {
	t.Helper()
	c := metrics.NewCollector()
	for i := 0; i < 20; i++ {
		tag := "1 VUs"
		if i >= 10 {
			tag = "4 VUs"
		}
		o := request.Outcome{
			Tag:           tag,
			StartedAt:     start.Add(time.Duration(i) * 50 * time.Millisecond),
			Duration:      time.Duration(i+1) * time.Millisecond,
			StatusCode:    200,
			Success:       true,
			BytesReceived: 128,
			Usage:         request.Usage{PromptTokens: 4, TotalTokens: 4},
		}
		if i == 19 {
			o.Success = false
			o.StatusCode = 500
			o.Reason = request.ReasonValidation
			o.Check = "status"
		}
		c.Record(o)
	}
	agg, err := c.Finalize()
	require.NoError(t, err)

	return &engine.Result{
		RunID:     runID,
		Name:      "embeddings ramp",
		Target:    "http://localhost:8080/v1/embeddings",
		Protocol:  "embeddings",
		Model:     "mock-embed",
		Executor:  "ramping-vus",
		Timeline:  "0→1 (1s), 1→4 (1s)",
		StartTime: start,
		EndTime:   start.Add(2 * time.Second),
		Duration:  2 * time.Second,
		Aggregate: agg,
		TimeSeries: []*metrics.TimeBucket{
			{Timestamp: start.Add(time.Second), IntervalRPS: 10, LatencyP95: 5 * time.Millisecond, ActiveVUs: 1, Phase: metrics.PhaseRampUp, Tag: "1 VUs"},
		},
		Spawned: 4,
		Passed:  true,
		Thresholds: []engine.ThresholdResult{
			{Metric: "p95", Expression: "< 500ms", Passed: true, Value: "19ms"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"YAML", FormatYAML, false},
		{"yml", FormatYAML, false},
		{" html ", FormatHTML, false},
		{"console", FormatConsole, false},
		{"csv", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseFormat(%q) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFormat(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	f, err := FormatFromPath("out/report.html")
	require.NoError(t, err)
	assert.Equal(t, FormatHTML, f)

	_, err = FormatFromPath("report")
	assert.Error(t, err)
}

func TestFileSink_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "run.json")
	sink, err := NewFileSink("", path)
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, sink.Format)

	result := sampleResult(t, "run-1", time.Now())
	require.NoError(t, sink.Write(context.Background(), result))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded engine.Result
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	require.Len(t, decoded.Tags(), 2)
	assert.Equal(t, int64(10), decoded.Tags()[0].Count)
	assert.Equal(t, int64(1), decoded.Overall().FailureCount(request.ReasonValidation))
}

func TestFileSink_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	sink, err := NewFileSink(FormatYAML, path)
	require.NoError(t, err)
	require.NoError(t, sink.Write(context.Background(), sampleResult(t, "run-2", time.Now())))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "runId: run-2")
	assert.Contains(t, string(data), "tag: 4 VUs")
}

func TestFileSink_Stdout(t *testing.T) {
	sink, err := NewFileSink(FormatJSON, "-")
	require.NoError(t, err)
	var buf bytes.Buffer
	sink.stdout = &buf

	require.NoError(t, sink.Write(context.Background(), sampleResult(t, "run-3", time.Now())))
	assert.Contains(t, buf.String(), `"runId": "run-3"`)
}

func TestNewFileSink_Errors(t *testing.T) {
	_, err := NewFileSink(FormatJSON, "")
	assert.Error(t, err)
	_, err = NewFileSink("", "report.txt")
	assert.Error(t, err)
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, sampleResult(t, "run-4", time.Now())))

	html := buf.String()
	assert.Contains(t, html, "<title>embeddings ramp - Load Test Report</title>")
	assert.Contains(t, html, "<td>4 VUs</td>")
	assert.Contains(t, html, "<th>p99</th>")
	assert.Contains(t, html, "PASSED")
	assert.Contains(t, html, "validation-failure")
	assert.Contains(t, html, `"intervalRPS":10`)
	assert.Contains(t, html, "run run-4")

	assert.Error(t, WriteHTML(&buf, nil))
}

func TestSummary_Print(t *testing.T) {
	var buf bytes.Buffer
	result := sampleResult(t, "run-5", time.Now())
	result.Warnings = []string{"1 VU(s) did not finish within the grace period"}

	require.NoError(t, NewSummary(&buf, nil).Print(result))

	out := buf.String()
	assert.Contains(t, out, "embeddings ramp - Completed ✓")
	assert.Contains(t, out, "Latency by Concurrency:")
	assert.Contains(t, out, "1 VUs")
	assert.Contains(t, out, "4 VUs")
	assert.Contains(t, out, "overall")
	assert.Contains(t, out, "p95")
	assert.Contains(t, out, "validation-failure")
	assert.Contains(t, out, `check "status":`)
	assert.Contains(t, out, "p95 < 500ms (actual: 19ms)")
	assert.Contains(t, out, "did not finish within the grace period")
	assert.NotContains(t, out, "\x1b[", "nil scheme must not colour output")
}

func TestSummary_Failed(t *testing.T) {
	var buf bytes.Buffer
	result := sampleResult(t, "run-6", time.Now())
	result.Passed = false

	require.NoError(t, NewSummary(&buf, nil).Print(result))
	assert.Contains(t, buf.String(), "Failed ✗")
}

type fakeSink struct {
	name   string
	err    error
	writes atomic.Int32
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Write(ctx context.Context, _ *engine.Result) error {
	f.writes.Add(1)
	return f.err
}

func TestPublish_WritesEverySink(t *testing.T) {
	errBoom := errors.New("boom")
	ok1 := &fakeSink{name: "ok1"}
	ok2 := &fakeSink{name: "ok2"}
	bad := &fakeSink{name: "bad", err: errBoom}

	err := Publish(context.Background(), zap.NewNop(), sampleResult(t, "run-7", time.Now()), ok1, bad, nil, ok2)

	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.True(t, strings.Contains(err.Error(), "bad: boom"))
	assert.Equal(t, int32(1), ok1.writes.Load())
	assert.Equal(t, int32(1), ok2.writes.Load())
	assert.Equal(t, int32(1), bad.writes.Load())
}

func TestPublish_NoErrors(t *testing.T) {
	s := &fakeSink{name: "ok"}
	assert.NoError(t, Publish(context.Background(), nil, sampleResult(t, "run-8", time.Now()), s))
	assert.Error(t, Publish(context.Background(), nil, nil, s))
}

func TestHistoryStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := OpenHistory(path)
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := sampleResult(t, "older", base)
	newer := sampleResult(t, "newer", base.Add(time.Hour))
	newer.Passed = false

	require.NoError(t, store.Write(context.Background(), newer))
	require.NoError(t, store.Save(older))

	entries, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "newer", entries[0].RunID)
	assert.False(t, entries[0].Passed)
	assert.Equal(t, "older", entries[1].RunID)
	assert.Equal(t, int64(20), entries[1].Requests)
	assert.InDelta(t, 0.05, entries[1].ErrorRate, 1e-9)

	limited, err := store.List(1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "newer", limited[0].RunID)

	got, err := store.Get("older")
	require.NoError(t, err)
	assert.Equal(t, "embeddings ramp", got.Name)
	require.Len(t, got.Tags(), 2)
	assert.Equal(t, "1 VUs", got.Tags()[0].Tag)

	_, err = store.Get("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestHistoryStore_ReplacesSameRun(t *testing.T) {
	store, err := OpenHistory(filepath.Join(t.TempDir(), "h.db"))
	require.NoError(t, err)
	defer store.Close()

	base := time.Now()
	first := sampleResult(t, "same", base)
	require.NoError(t, store.Save(first))

	second := sampleResult(t, "same", base.Add(time.Minute))
	second.Name = "renamed"
	require.NoError(t, store.Save(second))

	entries, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "renamed", entries[0].Name)

	assert.Error(t, store.Save(&engine.Result{}))
}

func TestHistoryStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.db")
	store, err := OpenHistory(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(sampleResult(t, "persisted", time.Now())))
	require.NoError(t, store.Close())

	store, err = OpenHistory(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Get("persisted")
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.RunID)
	assert.Equal(t, "history:"+path, store.Name())
}
