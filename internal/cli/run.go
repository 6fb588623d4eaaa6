package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inferload/inferload/internal/performance/config"
	"github.com/inferload/inferload/internal/performance/engine"
	"github.com/inferload/inferload/internal/performance/output"
	"github.com/inferload/inferload/internal/performance/report"
	"github.com/inferload/inferload/internal/telemetry"
)

const (
	// progressInterval is how often the live display refreshes.
	progressInterval = time.Second

	// defaultQuickDuration applies to quick mode without --stages or --duration.
	defaultQuickDuration = 30 * time.Second
)

// runFlags holds the quick-mode and reporting flags of the run command.
type runFlags struct {
	configFile  string
	name        string
	url         string
	protocol    string
	model       string
	apiKey      string
	stages      string
	startVUs    int
	vus         int
	duration    string
	prompts     []string
	promptsFile string
	seed        uint64
	stream      bool
	maxTokens   int
	grace       string
	outputs     []string
	historyPath string
	metricsAddr string
	quiet       bool
}

func newRunCmd(a *app) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test from a configuration file or flags",
		Long: `Run a concurrency sweep against an embeddings or chat endpoint.

Config file mode:
  inferload run --config sweep.yaml

Quick mode:
  inferload run --url http://localhost:8000/v1/embeddings \
    --model nvidia/llama-3.2-nv-embedqa-1b-v2 \
    --stages "10s:1,1m:1,10s:4,1m:4,10s:0" \
    --prompts-file prompts.txt

Reports:
  inferload run -c sweep.yaml -o report.html -o json=results.json --history ~/.inferload/history.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.url = a.v.GetString("url")
			f.apiKey = a.v.GetString("api-key")
			f.metricsAddr = a.v.GetString("metrics-addr")
			f.historyPath = a.v.GetString("history")
			return a.runLoadTest(cmd.Context(), f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configFile, "config", "c", "", "Configuration file (YAML or JSON)")
	fl.StringVar(&f.name, "name", "", "Test name for reports")
	fl.String("url", "", "Endpoint URL, overrides target.url")
	fl.StringVar(&f.protocol, "protocol", "", "Protocol: embeddings or chat")
	fl.StringVar(&f.model, "model", "", "Model name sent in the request body")
	fl.String("api-key", "", "Bearer token, overrides target.apiKey")
	fl.StringVar(&f.stages, "stages", "", "Stages as 'duration:target[:name],...' for ramping-vus")
	fl.IntVar(&f.startVUs, "start-vus", 0, "VU level the first stage ramps from")
	fl.IntVar(&f.vus, "vus", 0, "Virtual users for constant-vus")
	fl.StringVar(&f.duration, "duration", "", "Test duration for constant-vus (e.g. 1m)")
	fl.StringArrayVar(&f.prompts, "prompt", nil, "Inline prompt (repeatable)")
	fl.StringVar(&f.promptsFile, "prompts-file", "", "Prompt corpus file")
	fl.Uint64Var(&f.seed, "seed", 0, "Prompt sampling seed (0 = random)")
	fl.BoolVar(&f.stream, "stream", false, "Request streamed chat completions")
	fl.IntVar(&f.maxTokens, "max-tokens", 0, "max_tokens for chat requests")
	fl.StringVar(&f.grace, "graceful-ramp-down", "", "How long retiring VUs may finish their request")
	fl.StringArrayVarP(&f.outputs, "output", "o", nil, "Report output: path or format=path, '-' for stdout (repeatable)")
	fl.String("history", "", "Save the run to this history database")
	fl.String("metrics-addr", "", "Expose Prometheus metrics on this address during the run")
	fl.BoolVarP(&f.quiet, "quiet", "q", false, "Disable live progress output")

	for _, name := range []string{"url", "api-key", "history", "metrics-addr"} {
		_ = a.v.BindPFlag(name, fl.Lookup(name))
	}
	return cmd
}

// runLoadTest executes one run end to end: config, engine, live display,
// reports and exit status.
func (a *app) runLoadTest(ctx context.Context, f *runFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := a.log()

	cfg, err := loadRunConfig(f)
	if err != nil {
		return err
	}

	var opts []engine.Option
	opts = append(opts, engine.WithLogger(logger))

	if f.metricsAddr != "" {
		obs := telemetry.NewObserver(cfg.Name)
		srv, err := telemetry.Start(f.metricsAddr, obs, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		opts = append(opts, engine.WithObserver(obs))
	}

	eng, err := engine.NewEngine(cfg, opts...)
	if err != nil {
		return err
	}

	sinks, closeSinks, err := buildSinks(f)
	if err != nil {
		return err
	}
	defer closeSinks()

	timeline := eng.GetConfig().ExecutorConfig(nil).Timeline()
	console := output.NewConsoleOutput(output.ConsoleOutputConfig{
		TestName:      cfg.Name,
		ExecutorType:  cfg.Load.Executor,
		Timeline:      timeline.String(),
		TotalDuration: timeline.TotalDuration(),
		Writer:        a.stdout,
		Quiet:         f.quiet,
		NoColor:       a.v.GetBool("no-color"),
	})
	console.PrintHeader()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopSignals := handleSignals(ctx, eng, cancel, logger)
	defer stopSignals()

	type runOutcome struct {
		result *engine.Result
		err    error
	}
	done := make(chan runOutcome, 1)
	go func() {
		r, err := eng.Run(ctx)
		done <- runOutcome{r, err}
	}()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	var outcome runOutcome
progressLoop:
	for {
		select {
		case outcome = <-done:
			break progressLoop
		case <-ticker.C:
			if eng.IsRunning() {
				console.Render(output.StatsFromMetrics(eng.GetMetrics(), eng.GetStats(), eng.GetProgress()))
			}
		}
	}
	console.Finish()

	if outcome.err != nil {
		return outcome.err
	}

	if err := report.NewSummary(a.stdout, console.Colors()).Print(outcome.result); err != nil {
		return err
	}
	if err := report.Publish(context.WithoutCancel(ctx), logger, outcome.result, sinks...); err != nil {
		fmt.Fprintf(a.stderr, "Error writing reports: %v\n", err)
	}
	for _, s := range sinks {
		if fs, ok := s.(*report.FileSink); ok && fs.Path != "-" {
			fmt.Fprintf(a.stdout, "Report: %s\n", fs.Path)
		}
	}

	if !outcome.result.Passed {
		return errThresholdsFailed
	}
	return nil
}

// loadRunConfig reads the config file, if any, and overlays flag values.
func loadRunConfig(f *runFlags) (*config.TestConfig, error) {
	var cfg *config.TestConfig
	if f.configFile != "" {
		c, err := config.LoadConfig(f.configFile)
		if err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
		cfg = c
	} else {
		if f.url == "" {
			return nil, errors.New("either --config or --url is required")
		}
		cfg = &config.TestConfig{Description: fmt.Sprintf("Quick run against %s", f.url)}
	}

	if f.name != "" {
		cfg.Name = f.name
	}
	if f.url != "" {
		cfg.Target.URL = f.url
	}
	if f.apiKey != "" {
		cfg.Target.APIKey = f.apiKey
	}
	if f.protocol != "" {
		cfg.Target.Protocol = f.protocol
	}
	if f.model != "" {
		cfg.Target.Model = f.model
		cfg.Body.Model = f.model
	}
	if f.stream {
		cfg.Body.Stream = true
	}
	if f.maxTokens > 0 {
		cfg.Body.MaxTokens = f.maxTokens
	}

	if f.stages != "" {
		stages, err := config.ParseStages(f.stages)
		if err != nil {
			return nil, fmt.Errorf("invalid --stages: %w", err)
		}
		cfg.Load.Stages = stages
		cfg.Load.Executor = ""
	}
	if f.startVUs > 0 {
		cfg.Load.StartVUs = f.startVUs
	}
	if f.vus > 0 {
		cfg.Load.VUs = f.vus
	}
	if f.duration != "" {
		d, err := config.ParseDurationString(f.duration)
		if err != nil {
			return nil, fmt.Errorf("invalid --duration: %w", err)
		}
		cfg.Load.Duration = config.Duration(d)
	}
	if f.grace != "" {
		d, err := config.ParseDurationString(f.grace)
		if err != nil {
			return nil, fmt.Errorf("invalid --graceful-ramp-down: %w", err)
		}
		cfg.Load.GracefulRampDown = config.DurationOf(d)
	}
	if f.configFile == "" && len(cfg.Load.Stages) == 0 {
		if cfg.Load.VUs == 0 {
			cfg.Load.VUs = 1
		}
		if cfg.Load.Duration == 0 {
			cfg.Load.Duration = config.Duration(defaultQuickDuration)
		}
	}

	if len(f.prompts) > 0 {
		cfg.Prompts.Inline = f.prompts
		cfg.Prompts.File = ""
	}
	if f.promptsFile != "" {
		cfg.Prompts.File = f.promptsFile
	}
	if f.seed != 0 {
		cfg.Prompts.Seed = f.seed
	}

	return cfg, nil
}

// parseOutput splits "format=path" or infers the format from path.
func parseOutput(spec string) (report.Format, string, error) {
	if format, path, ok := strings.Cut(spec, "="); ok {
		f, err := report.ParseFormat(format)
		if err != nil {
			return "", "", err
		}
		return f, path, nil
	}
	if spec == "-" {
		return report.FormatJSON, spec, nil
	}
	f, err := report.FormatFromPath(spec)
	if err != nil {
		return "", "", err
	}
	return f, spec, nil
}

// buildSinks resolves the report outputs and optional history store. The
// returned func closes anything that holds a file.
func buildSinks(f *runFlags) ([]report.Sink, func(), error) {
	var sinks []report.Sink
	for _, spec := range f.outputs {
		format, path, err := parseOutput(spec)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --output %q: %w", spec, err)
		}
		s, err := report.NewFileSink(format, path)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, s)
	}

	closeFn := func() {}
	if f.historyPath != "" {
		store, err := report.OpenHistory(expandHome(f.historyPath))
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, store)
		closeFn = func() { _ = store.Close() }
	}
	return sinks, closeFn, nil
}

// handleSignals stops the timeline on the first interrupt so VUs drain, and
// cancels the run on the second.
func handleSignals(ctx context.Context, eng *engine.Engine, cancel context.CancelFunc, logger *zap.Logger) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		stopped := false
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-sigCh:
				if !ok {
					return
				}
				if stopped {
					logger.Warn("second signal, cancelling run", zap.String("signal", sig.String()))
					cancel()
					return
				}
				stopped = true
				logger.Warn("signal received, stopping and draining VUs", zap.String("signal", sig.String()))
				if err := eng.Stop(ctx); err != nil {
					logger.Error("stop failed", zap.Error(err))
				}
			}
		}
	}()
	return func() { signal.Stop(sigCh) }
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + path[1:]
}
