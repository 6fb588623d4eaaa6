// Package perf runs inferload sweeps from Go code.
//
// It is the library face of the CLI: the same configuration document, engine
// and result type, without the live display or report sinks.
//
// # Quick Start
//
//	cfg, _ := perf.LoadConfig("sweep.yaml")
//	result, _ := perf.RunTest(context.Background(), cfg)
//
//	for _, tag := range result.Tags() {
//	    fmt.Printf("%s: p95=%v rps=%.1f\n", tag.Tag, tag.P95, tag.RPS)
//	}
//	fmt.Printf("Passed: %v\n", result.Passed)
//
// # Programmatic Configuration
//
//	cfg := &perf.Config{
//	    Name:   "embed-sweep",
//	    Target: perf.TargetConfig{URL: "http://localhost:8000/v1/embeddings"},
//	    Prompts: perf.PromptsConfig{Inline: []string{"hello world"}},
//	    Load: perf.LoadSection{
//	        Stages: []perf.StageConfig{
//	            {Duration: perf.Duration(10 * time.Second), Target: 1},
//	            {Duration: perf.Duration(time.Minute), Target: 1},
//	            {Duration: perf.Duration(10 * time.Second), Target: 8},
//	            {Duration: perf.Duration(time.Minute), Target: 8},
//	        },
//	    },
//	}
//
// # Watching a Run
//
// A Runner exposes the live snapshot while Run is in progress, and Stop ends
// the timeline early while letting in-flight requests finish:
//
//	runner, _ := perf.NewRunner(cfg, perf.WithLogger(logger))
//	go func() {
//	    for range time.Tick(time.Second) {
//	        if m := runner.GetMetrics(); m != nil {
//	            log.Printf("%s: %.1f req/s", m.CurrentTag, m.RPS)
//	        }
//	    }
//	}()
//	result, err := runner.Run(ctx)
package perf
