package config

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/inferload/inferload/internal/performance/request"
)

func validConfig() *TestConfig {
	return &TestConfig{
		Name:    "ok",
		Target:  TargetConfig{URL: "http://localhost:8000/v1/embeddings", Protocol: "embeddings"},
		Prompts: PromptsConfig{Inline: []string{"hello"}},
		Load: LoadSection{
			Executor: "ramping-vus",
			Stages:   []StageConfig{{Duration: Duration(time.Second), Target: 2}},
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidate_CollectsFieldPaths(t *testing.T) {
	temp := 3.0
	tests := []struct {
		name   string
		mutate func(*TestConfig)
		field  string
	}{
		{"missing url", func(c *TestConfig) { c.Target.URL = "" }, "target.url"},
		{"bad scheme", func(c *TestConfig) { c.Target.URL = "ftp://host/x" }, "target.url"},
		{"bad protocol", func(c *TestConfig) { c.Target.Protocol = "rerank" }, "target.protocol"},
		{"no prompts", func(c *TestConfig) { c.Prompts = PromptsConfig{} }, "prompts"},
		{"unknown executor", func(c *TestConfig) { c.Load.Executor = "constant-arrival-rate" }, "load.executor"},
		{"no stages", func(c *TestConfig) { c.Load.Stages = nil }, "load.stages"},
		{"negative target", func(c *TestConfig) { c.Load.Stages[0].Target = -1 }, "load.stages[0].target"},
		{"negative stage duration", func(c *TestConfig) { c.Load.Stages[0].Duration = Duration(-time.Second) }, "load.stages[0].duration"},
		{"constant without vus", func(c *TestConfig) {
			c.Load = LoadSection{Executor: "constant-vus", Duration: Duration(time.Second)}
		}, "load.vus"},
		{"constant without duration", func(c *TestConfig) {
			c.Load = LoadSection{Executor: "constant-vus", VUs: 1}
		}, "load.duration"},
		{"negative start vus", func(c *TestConfig) { c.Load.StartVUs = -1 }, "load.startVUs"},
		{"start vus on constant", func(c *TestConfig) {
			c.Load = LoadSection{Executor: "constant-vus", VUs: 1, Duration: Duration(time.Second), StartVUs: 1}
		}, "load.startVUs"},
		{"negative grace", func(c *TestConfig) { c.Load.GracefulRampDown = DurationOf(-time.Second) }, "load.gracefulRampDown"},
		{"random pacing inverted", func(c *TestConfig) {
			c.Load.Pacing = &PacingConfig{Type: "random", Min: Duration(2 * time.Second), Max: Duration(time.Second)}
		}, "load.pacing"},
		{"unknown pacing", func(c *TestConfig) { c.Load.Pacing = &PacingConfig{Type: "poisson"} }, "load.pacing.type"},
		{"bad check", func(c *TestConfig) { c.Checks = []request.CheckSpec{{Type: "status"}, {Type: "jsonpath"}} }, "checks[1]"},
		{"bad schema", func(c *TestConfig) { c.Checks = []request.CheckSpec{{Type: "schema", Schema: "{"}} }, "checks[0]"},
		{"bad encoding", func(c *TestConfig) { c.Body.EncodingFormat = "int8" }, "body.encodingFormat"},
		{"bad temperature", func(c *TestConfig) { c.Body.Temperature = &temp }, "body.temperature"},
		{"bad role", func(c *TestConfig) { c.Body.History = []request.Message{{Role: "tool", Content: "x"}} }, "body.history[0].role"},
		{"bad percentile", func(c *TestConfig) { c.Metrics.Percentiles = []float64{0} }, "metrics.percentiles[0]"},
		{"bad threshold stat", func(c *TestConfig) {
			c.Thresholds = &ThresholdsConfig{HTTPReqFailed: []string{"p95 < 1"}}
		}, "thresholds.http_req_failed[0]"},
		{"bad threshold op", func(c *TestConfig) {
			c.Thresholds = &ThresholdsConfig{HTTPReqDuration: []string{"p95 => 1s"}}
		}, "thresholds.http_req_duration[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			var verrs *ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("Validate() error = %v, want *ValidationErrors", err)
			}
			if !slices.Contains(verrs.Fields(), tt.field) {
				t.Errorf("fields = %v, want %q", verrs.Fields(), tt.field)
			}
		})
	}
}

func TestValidate_ReportsEveryError(t *testing.T) {
	cfg := &TestConfig{}
	err := cfg.Validate()

	var verrs *ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(verrs.Errors) < 3 {
		t.Errorf("got %d errors, want url, prompts and executor at least", len(verrs.Errors))
	}
	if !strings.Contains(err.Error(), "validation errors:") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestParseThreshold(t *testing.T) {
	tests := []struct {
		metric  string
		expr    string
		stat    string
		op      string
		value   string
		wantErr bool
	}{
		{"http_req_duration", "p95 < 500ms", "p95", "<", "500ms", false},
		{"http_req_duration", "avg<=200ms", "avg", "<=", "200ms", false},
		{"http_req_duration", "p99.9 < 2s", "p99.9", "<", "2s", false},
		{"http_req_failed", "rate < 0.01", "rate", "<", "0.01", false},
		{"http_reqs", "count >= 10", "count", ">=", "10", false},
		{"http_reqs", "rate > 5", "rate", ">", "5", false},
		{"http_reqs", "p95 < 1", "", "", "", true},
		{"http_req_duration", "", "", "", "", true},
		{"http_req_duration", "fast", "", "", "", true},
		{"http_req_duration", "p95 =< 1s", "", "", "", true},
		{"custom", "count > 1", "", "", "", true},
	}

	for _, tt := range tests {
		th, err := ParseThreshold(tt.metric, tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseThreshold(%q, %q) error = %v, wantErr %v", tt.metric, tt.expr, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			continue
		}
		if th.Stat != tt.stat || th.Op != tt.op || th.Value != tt.value {
			t.Errorf("ParseThreshold(%q) = %+v", tt.expr, th)
		}
	}
}

func TestThresholdsConfig_Thresholds(t *testing.T) {
	var nilCfg *ThresholdsConfig
	if ths, err := nilCfg.Thresholds(); err != nil || ths != nil {
		t.Errorf("nil Thresholds() = %v, %v", ths, err)
	}

	cfg := &ThresholdsConfig{
		HTTPReqs:        []string{"count > 1"},
		HTTPReqDuration: []string{"p95 < 1s"},
	}
	ths, err := cfg.Thresholds()
	if err != nil {
		t.Fatalf("Thresholds() error = %v", err)
	}
	if len(ths) != 2 || ths[0].Metric != "http_req_duration" || ths[1].Metric != "http_reqs" {
		t.Errorf("Thresholds() = %+v", ths)
	}
}
