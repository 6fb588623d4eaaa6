// Command sample-report writes an HTML report for a synthetic concurrency
// sweep, for previewing report changes without a model server.
package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/inferload/inferload/internal/performance/config"
	"github.com/inferload/inferload/internal/performance/engine"
	"github.com/inferload/inferload/internal/performance/metrics"
	"github.com/inferload/inferload/internal/performance/report"
	"github.com/inferload/inferload/internal/performance/request"
)

// sweep is the synthetic schedule: each level is held for holdSeconds.
var sweep = []int{1, 2, 4, 8, 16}

const holdSeconds = 30

func main() {
	result, err := createSampleResult(time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	outputPath := "sample-report.html"
	if len(os.Args) > 1 {
		outputPath = os.Args[1]
	}

	sink, err := report.NewFileSink(report.FormatHTML, outputPath)
	if err == nil {
		err = report.Publish(context.Background(), nil, result, sink)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Sample report generated: %s\n", outputPath)
}

// createSampleResult synthesises outcomes whose latency grows with
// concurrency and aggregates them the same way a real run does.
func createSampleResult(now time.Time) (*engine.Result, error) {
	rng := rand.New(rand.NewPCG(1, 2))
	start := now.Add(-time.Duration(len(sweep)*holdSeconds) * time.Second)

	collector := metrics.NewCollector(metrics.WithPercentiles(99.9))
	var (
		buckets []*metrics.TimeBucket
		total   int64
	)
	for level, vus := range sweep {
		tag := fmt.Sprintf("%d VUs", vus)
		base := 18*time.Millisecond + time.Duration(vus*vus)*400*time.Microsecond
		for s := 0; s < holdSeconds; s++ {
			second := start.Add(time.Duration(level*holdSeconds+s) * time.Second)
			perVU := int(time.Second / base)
			var interval int64
			for v := 0; v < vus; v++ {
				for i := 0; i < perVU; i++ {
					d := base + time.Duration(rng.ExpFloat64()*float64(base)/4)
					o := request.Outcome{
						Tag:           tag,
						VU:            v,
						StartedAt:     second.Add(time.Duration(i) * base),
						Duration:      d,
						TTFB:          d * 9 / 10,
						StatusCode:    200,
						Success:       true,
						BytesReceived: 1536,
						Usage:         request.Usage{PromptTokens: 12, TotalTokens: 12},
					}
					if rng.Float64() < 0.002*float64(vus) {
						o.Success = false
						o.StatusCode = 503
						o.Reason = request.ReasonValidation
						o.Check = "status"
					}
					collector.Record(o)
					interval++
				}
			}
			total += interval
			buckets = append(buckets, &metrics.TimeBucket{
				Timestamp:        second.Add(time.Second),
				TotalRequests:    total,
				IntervalRequests: interval,
				IntervalRPS:      float64(interval),
				LatencyP50:       base,
				LatencyP95:       base * 3 / 2,
				LatencyP99:       base * 2,
				ActiveVUs:        vus,
				Phase:            metrics.PhaseSteady,
				Tag:              tag,
			})
		}
	}

	agg, err := collector.Finalize()
	if err != nil {
		return nil, err
	}

	var thresholds []config.Threshold
	for _, t := range []struct{ metric, expr string }{
		{"http_req_duration", "p95 < 250ms"},
		{"http_req_duration", "p99.9 < 1s"},
		{"http_req_failed", "rate < 0.05"},
	} {
		th, err := config.ParseThreshold(t.metric, t.expr)
		if err != nil {
			return nil, err
		}
		thresholds = append(thresholds, th)
	}

	stages := make([]config.StageConfig, 0, len(sweep))
	for _, vus := range sweep {
		stages = append(stages, config.StageConfig{Duration: config.Duration(holdSeconds * time.Second), Target: vus})
	}
	cfg := &config.TestConfig{Name: "embeddings concurrency sweep", Load: config.LoadSection{Stages: stages}}
	config.ApplyDefaults(cfg)

	result := &engine.Result{
		RunID:       "sample",
		Name:        cfg.Name,
		Description: "Synthetic sweep over 1 to 16 VUs",
		Target:      "http://localhost:8000/v1/embeddings",
		Protocol:    string(request.ProtocolEmbeddings),
		Model:       "nvidia/llama-3.2-nv-embedqa-1b-v2",
		Executor:    cfg.Load.Executor,
		Timeline:    cfg.ExecutorConfig(nil).Timeline().String(),
		StartTime:   start,
		EndTime:     now,
		Duration:    now.Sub(start),
		Aggregate:   agg,
		TimeSeries:  buckets,
		Spawned:     int64(sweep[len(sweep)-1]),
		Thresholds:  engine.EvaluateThresholds(thresholds, &agg.Overall),
		Passed:      true,
	}
	for _, t := range result.Thresholds {
		if !t.Passed {
			result.Passed = false
		}
	}
	return result, nil
}
