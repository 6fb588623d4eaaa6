package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/inferload/inferload/internal/performance"
	"github.com/inferload/inferload/internal/performance/executor"
	"github.com/inferload/inferload/internal/performance/request"
)

func TestParseDurationString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{name: "standard seconds", input: "30s", expected: 30 * time.Second},
		{name: "standard minutes", input: "2m", expected: 2 * time.Minute},
		{name: "milliseconds", input: "500ms", expected: 500 * time.Millisecond},
		{name: "combined duration", input: "1h30m", expected: 90 * time.Minute},
		{name: "integer as seconds", input: "30", expected: 30 * time.Second},
		{name: "surrounding space", input: " 15s ", expected: 15 * time.Second},
		{name: "empty string", input: "", expected: 0},
		{name: "invalid format", input: "abc", wantErr: true},
		{name: "trailing garbage", input: "30abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDurationString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDurationString() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.expected {
				t.Errorf("ParseDurationString() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseStages(t *testing.T) {
	stages, err := ParseStages("15s:64, 2m:64:hold,15:0")
	if err != nil {
		t.Fatalf("ParseStages() error = %v", err)
	}
	want := []StageConfig{
		{Duration: Duration(15 * time.Second), Target: 64},
		{Duration: Duration(2 * time.Minute), Target: 64, Name: "hold"},
		{Duration: Duration(15 * time.Second), Target: 0},
	}
	if len(stages) != len(want) {
		t.Fatalf("got %d stages, want %d", len(stages), len(want))
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("stage %d = %+v, want %+v", i, stages[i], want[i])
		}
	}

	for _, bad := range []string{"", "10s", "10s:x", "nope:3"} {
		if _, err := ParseStages(bad); err == nil {
			t.Errorf("ParseStages(%q) expected error", bad)
		}
	}
}

const sampleYAML = `
name: embeddings-sweep
target:
  url: http://localhost:8000/v1/embeddings
  protocol: embeddings
  model: nvidia/llama-3.2-nv-embedqa-1b-v2
  headers:
    X-Team: perf
  timeout: 10s
body:
  inputType: query
  encodingFormat: float
  truncatePromptTokens: 1
prompts:
  inline: ["hello", "world"]
  seed: 42
load:
  stages:
    - duration: 15s
      target: 64
    - duration: 2m
      target: 64
      name: hold
    - duration: 15
      target: 0
  gracefulRampDown: 5s
  pacing:
    type: random
    min: 10ms
    max: 50ms
metrics:
  percentiles: [75, 99.9]
thresholds:
  http_req_duration: ["p95 < 500ms", "p99.9 < 2s"]
  http_req_failed: ["rate < 0.01"]
`

func TestParseConfig_YAML(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleYAML), "test.yaml")
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}

	if cfg.Name != "embeddings-sweep" {
		t.Errorf("Name = %q", cfg.Name)
	}
	if cfg.Target.Timeout != Duration(10*time.Second) {
		t.Errorf("Target.Timeout = %v", cfg.Target.Timeout)
	}
	if cfg.Body.TruncatePromptTokens != 1 || cfg.Body.InputType != "query" {
		t.Errorf("Body = %+v", cfg.Body)
	}
	if len(cfg.Load.Stages) != 3 || cfg.Load.Stages[2].Duration != Duration(15*time.Second) {
		t.Errorf("Stages = %+v", cfg.Load.Stages)
	}
	if cfg.Load.Stages[1].Name != "hold" {
		t.Errorf("Stages[1].Name = %q", cfg.Load.Stages[1].Name)
	}
	if cfg.Load.Pacing == nil || cfg.Load.Pacing.Max != Duration(50*time.Millisecond) {
		t.Errorf("Pacing = %+v", cfg.Load.Pacing)
	}
	if cfg.Prompts.Seed != 42 {
		t.Errorf("Seed = %d", cfg.Prompts.Seed)
	}

	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Load.Executor != string(executor.TypeRampingVUs) {
		t.Errorf("Executor = %q, want ramping-vus", cfg.Load.Executor)
	}
	if cfg.Body.Model != "nvidia/llama-3.2-nv-embedqa-1b-v2" {
		t.Errorf("Body.Model = %q, want copied from target", cfg.Body.Model)
	}
	// embeddings defaults do not require usage
	if len(cfg.Checks) != 2 || cfg.Checks[1].Type != request.CheckEmbedding {
		t.Errorf("default checks = %+v", cfg.Checks)
	}
}

func TestParseConfig_JSON(t *testing.T) {
	data := `{
		"name": "chat",
		"target": {"url": "https://api.example.com/v1/chat/completions", "protocol": "chat"},
		"body": {"model": "m", "maxTokens": 64, "temperature": 0.5, "stream": true},
		"prompts": {"inline": ["hi"]},
		"load": {"executor": "constant-vus", "vus": 4, "duration": "1m", "gracefulRampDown": 3}
	}`

	cfg, err := ParseConfig([]byte(data), "test.json")
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.Protocol() != request.ProtocolChat {
		t.Errorf("Protocol() = %v", cfg.Protocol())
	}
	if cfg.Load.GracePeriod() != 3*time.Second {
		t.Errorf("GracefulRampDown = %v, want 3s from bare integer", cfg.Load.GracePeriod())
	}
	if cfg.Body.Temperature == nil || *cfg.Body.Temperature != 0.5 {
		t.Errorf("Temperature = %v", cfg.Body.Temperature)
	}
	// streaming chat defaults do not require usage
	if len(cfg.Checks) != 2 || cfg.Checks[1].Type != request.CheckChatContent {
		t.Errorf("Checks = %+v", cfg.Checks)
	}

	ec := cfg.ExecutorConfig(nil)
	if ec.Type != executor.TypeConstantVUs || ec.VUs != 4 || ec.Duration != time.Minute {
		t.Errorf("ExecutorConfig() = %+v", ec)
	}
	if err := ec.Validate(); err != nil {
		t.Errorf("ExecutorConfig().Validate() error = %v", err)
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	if _, err := ParseConfig([]byte("{not json"), "bad.json"); err == nil {
		t.Error("expected JSON error")
	}
	if _, err := ParseConfig([]byte("load: [unclosed"), "bad.yaml"); err == nil {
		t.Error("expected YAML error")
	}
	if _, err := ParseConfig([]byte("load:\n  tick: soon\n"), "bad.yaml"); err == nil {
		t.Error("expected duration error")
	}
}

func TestParseConfig_GracefulRampDownAndStartVUs(t *testing.T) {
	tests := []struct {
		name      string
		load      string
		wantGrace time.Duration
		wantStart int
	}{
		{"unset grace uses default", "  stages: [{duration: 10s, target: 4}]\n", 30 * time.Second, 0},
		{"explicit zero grace is kept", "  gracefulRampDown: 0s\n  stages: [{duration: 10s, target: 4}]\n", 0, 0},
		{"bare zero grace is kept", "  gracefulRampDown: 0\n  stages: [{duration: 10s, target: 4}]\n", 0, 0},
		{"start vus", "  startVUs: 1\n  gracefulRampDown: 5s\n  stages: [{duration: 10s, target: 4}]\n", 5 * time.Second, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := "target:\n  url: http://localhost:8000/v1/embeddings\nprompts:\n  inline: [hi]\nload:\n" + tt.load
			cfg, err := ParseConfig([]byte(data), "sweep.yaml")
			if err != nil {
				t.Fatalf("ParseConfig() error = %v", err)
			}
			ApplyDefaults(cfg)
			if err := cfg.Validate(); err != nil {
				t.Fatalf("Validate() error = %v", err)
			}

			ec := cfg.ExecutorConfig(nil)
			if ec.GracefulRampDown != tt.wantGrace {
				t.Errorf("GracefulRampDown = %v, want %v", ec.GracefulRampDown, tt.wantGrace)
			}
			tl := ec.Timeline()
			if tl.StartVUs != tt.wantStart || tl.TargetAt(0) != tt.wantStart {
				t.Errorf("StartVUs = %d, TargetAt(0) = %d, want %d", tl.StartVUs, tl.TargetAt(0), tt.wantStart)
			}
			if err := ec.Validate(); err != nil {
				t.Errorf("ExecutorConfig().Validate() error = %v", err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &TestConfig{
		Target:  TargetConfig{URL: "http://x"},
		Prompts: PromptsConfig{Inline: []string{"a"}},
		Load:    LoadSection{VUs: 2, Duration: Duration(time.Minute), Pacing: &PacingConfig{Type: "constant"}},
	}
	ApplyDefaults(cfg)

	if cfg.Target.Protocol != "embeddings" {
		t.Errorf("Protocol = %q", cfg.Target.Protocol)
	}
	if cfg.Target.Timeout != Duration(DefaultTimeout) {
		t.Errorf("Timeout = %v", cfg.Target.Timeout)
	}
	if cfg.Load.Executor != "constant-vus" {
		t.Errorf("Executor = %q, want constant-vus when only vus is set", cfg.Load.Executor)
	}
	if cfg.Load.GracePeriod() != 30*time.Second || cfg.Load.Tick != Duration(100*time.Millisecond) {
		t.Errorf("Load = %+v", cfg.Load)
	}
	if cfg.Load.Pacing.Duration != Duration(time.Second) {
		t.Errorf("constant pacing default = %v, want 1s", cfg.Load.Pacing.Duration)
	}
	if cfg.Metrics.TagFormat != "{target} VUs" {
		t.Errorf("TagFormat = %q", cfg.Metrics.TagFormat)
	}

	p := cfg.Pacing()
	if p.Type != performance.PacingConstant || p.Duration != time.Second {
		t.Errorf("Pacing() = %+v", p)
	}
}

func TestLoadConfig_ResolvesPromptsFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "prompts.txt"), []byte("one\n\ntwo\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "load.yaml")
	body := "target:\n  url: http://localhost:1\nprompts:\n  file: prompts.txt\nload:\n  stages: [{duration: 1s, target: 1}]\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Prompts.File != filepath.Join(dir, "prompts.txt") {
		t.Errorf("Prompts.File = %q", cfg.Prompts.File)
	}

	prompts, err := LoadPrompts(cfg.Prompts)
	if err != nil {
		t.Fatalf("LoadPrompts() error = %v", err)
	}
	if len(prompts) != 2 || prompts[0] != "one" || prompts[1] != "two" {
		t.Errorf("prompts = %q", prompts)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestReadPromptsFile_Formats(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"p.json": `["alpha", "  ", "beta"]`,
		"p.yaml": "- alpha\n- beta\n",
		"p.txt":  "alpha\nbeta",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		got, err := ReadPromptsFile(path)
		if err != nil {
			t.Errorf("%s: error = %v", name, err)
			continue
		}
		if len(got) != 2 || got[0] != "alpha" || got[1] != "beta" {
			t.Errorf("%s: got %q", name, got)
		}
	}

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`{"not": "a list"}`), 0o644)
	if _, err := ReadPromptsFile(bad); err == nil {
		t.Error("expected error for non-list JSON")
	}
}
