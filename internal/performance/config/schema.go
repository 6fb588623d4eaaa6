// Package config provides configuration parsing and validation for load tests.
package config

import (
	"encoding/json"
	"time"

	"github.com/inferload/inferload/internal/performance/request"
)

// TestConfig is the root configuration for a load test.
//
// Example YAML:
//
//	name: embeddings-sweep
//	target:
//	  url: http://localhost:8000/v1/embeddings
//	  protocol: embeddings
//	  model: nvidia/llama-3.2-nv-embedqa-1b-v2
//	body:
//	  inputType: query
//	  truncatePromptTokens: 1
//	prompts:
//	  file: prompts.txt
//	load:
//	  executor: ramping-vus
//	  stages:
//	    - duration: 15s
//	      target: 64
//	    - duration: 2m
//	      target: 64
//	    - duration: 15s
//	      target: 0
type TestConfig struct {
	// Name of the test (for reporting)
	Name string `json:"name" yaml:"name"`

	// Description of the test (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Target TargetConfig `json:"target" yaml:"target"`

	// Body holds the protocol-specific request parameters
	Body request.BodyConfig `json:"body,omitempty" yaml:"body,omitempty"`

	Prompts PromptsConfig `json:"prompts" yaml:"prompts"`

	Load LoadSection `json:"load" yaml:"load"`

	// Checks run in order against every response. Empty means the protocol defaults.
	Checks []request.CheckSpec `json:"checks,omitempty" yaml:"checks,omitempty"`

	Metrics MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`

	// Thresholds define pass/fail criteria for the run
	Thresholds *ThresholdsConfig `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// TargetConfig identifies the endpoint under test.
type TargetConfig struct {
	URL      string `json:"url" yaml:"url"`
	Protocol string `json:"protocol,omitempty" yaml:"protocol,omitempty"`

	// APIKey is sent as a bearer token
	APIKey string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`

	// Model is copied into the body when the body does not set one
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Timeout is the HTTP request timeout; the only per-request deadline
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	MaxConnsPerHost    int  `json:"maxConnsPerHost,omitempty" yaml:"maxConnsPerHost,omitempty"`
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`
}

// PromptsConfig is the prompt corpus. Inline prompts come first, then the
// contents of File.
type PromptsConfig struct {
	Inline []string `json:"inline,omitempty" yaml:"inline,omitempty"`

	// File holds one prompt per line (.txt) or a JSON/YAML list of strings
	File string `json:"file,omitempty" yaml:"file,omitempty"`

	// Seed makes prompt selection reproducible; 0 seeds from the clock
	Seed uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// LoadSection is the concurrency profile.
type LoadSection struct {
	// Executor is "ramping-vus" or "constant-vus"
	Executor string `json:"executor,omitempty" yaml:"executor,omitempty"`

	// constant-vus only
	VUs      int      `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	Stages []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`

	// StartVUs is the level the first stage ramps from (ramping-vus only)
	StartVUs int `json:"startVUs,omitempty" yaml:"startVUs,omitempty"`

	// GracefulRampDown is how long VUs may drain after the last stage. Unset
	// means the default; an explicit 0 cancels stragglers immediately.
	GracefulRampDown *Duration `json:"gracefulRampDown,omitempty" yaml:"gracefulRampDown,omitempty"`

	Pacing *PacingConfig `json:"pacing,omitempty" yaml:"pacing,omitempty"`

	// Tick is the ramp controller resolution
	Tick Duration `json:"tick,omitempty" yaml:"tick,omitempty"`
}

// StageConfig defines a single stage of the timeline.
type StageConfig struct {
	Duration Duration `json:"duration" yaml:"duration"`
	Target   int      `json:"target" yaml:"target"`
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
}

// PacingConfig controls pacing between iterations.
type PacingConfig struct {
	// Type is the pacing strategy: "none", "constant", "random"
	Type string `json:"type" yaml:"type"`

	// Duration is the wait time for constant pacing
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Min and Max bound random pacing
	Min Duration `json:"min,omitempty" yaml:"min,omitempty"`
	Max Duration `json:"max,omitempty" yaml:"max,omitempty"`
}

// MetricsConfig controls aggregation.
type MetricsConfig struct {
	// Percentiles are reported in addition to p50/p90/p95/p99
	Percentiles []float64 `json:"percentiles,omitempty" yaml:"percentiles,omitempty"`

	// TagFormat labels outcomes; tokens {target} {stage} {name}
	TagFormat string `json:"tagFormat,omitempty" yaml:"tagFormat,omitempty"`
}

// ThresholdsConfig defines pass/fail criteria for the test.
type ThresholdsConfig struct {
	// HTTPReqDuration thresholds for request duration
	// e.g., ["p95 < 500ms", "avg < 200ms"]
	HTTPReqDuration []string `json:"http_req_duration,omitempty" yaml:"http_req_duration,omitempty"`

	// HTTPReqFailed thresholds for failure rate
	// e.g., ["rate < 0.01"] (less than 1% failures)
	HTTPReqFailed []string `json:"http_req_failed,omitempty" yaml:"http_req_failed,omitempty"`

	// HTTPReqs thresholds for request count/rate
	// e.g., ["count > 1000", "rate > 100"]
	HTTPReqs []string `json:"http_reqs,omitempty" yaml:"http_reqs,omitempty"`
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings
// or bare integer seconds.
type Duration time.Duration

// DurationOf returns a pointer to d, for optional fields.
func DurationOf(d time.Duration) *Duration {
	v := Duration(d)
	return &v
}

// GetDuration returns the duration or a default if zero.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes if present
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
