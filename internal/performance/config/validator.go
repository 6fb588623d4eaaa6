package config

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/inferload/inferload/internal/performance/executor"
	"github.com/inferload/inferload/internal/performance/metrics"
	"github.com/inferload/inferload/internal/performance/request"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Fields returns the field path of every error, in order.
func (e *ValidationErrors) Fields() []string {
	out := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		out[i] = err.Field
	}
	return out
}

// Validate validates the entire test configuration.
//
// Returns nil if valid, or a *ValidationErrors containing all validation errors.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	validateTarget(&c.Target, errs)
	validateBody(&c.Body, errs)

	if len(c.Prompts.Inline) == 0 && c.Prompts.File == "" {
		errs.Add("prompts", "inline prompts or a prompts file is required")
	}

	validateLoad(&c.Load, errs)

	for i, spec := range c.Checks {
		if _, err := request.BuildChecks([]request.CheckSpec{spec}); err != nil {
			// BuildChecks prefixes its own index; report ours instead
			msg := strings.TrimPrefix(err.Error(), "checks[0]: ")
			errs.Add(fmt.Sprintf("checks[%d]", i), msg)
		}
	}

	for i, p := range c.Metrics.Percentiles {
		if p <= 0 || p > 100 {
			errs.Add(fmt.Sprintf("metrics.percentiles[%d]", i), "percentile must be in (0, 100]")
		}
	}

	if c.Thresholds != nil {
		validateThresholds(c.Thresholds, errs)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateTarget(t *TargetConfig, errs *ValidationErrors) {
	if t.URL == "" {
		errs.Add("target.url", "url is required")
	} else if u, err := url.Parse(t.URL); err != nil {
		errs.Add("target.url", fmt.Sprintf("invalid URL: %v", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs.Add("target.url", fmt.Sprintf("unsupported scheme %q", u.Scheme))
	} else if u.Host == "" {
		errs.Add("target.url", "url must include a host")
	}

	if _, err := request.ParseProtocol(t.Protocol); err != nil {
		errs.Add("target.protocol", err.Error())
	}
	if t.Timeout < 0 {
		errs.Add("target.timeout", "cannot be negative")
	}
	if t.MaxConnsPerHost < 0 {
		errs.Add("target.maxConnsPerHost", "cannot be negative")
	}
}

func validateBody(b *request.BodyConfig, errs *ValidationErrors) {
	switch b.EncodingFormat {
	case "", "float", "base64":
	default:
		errs.Add("body.encodingFormat", fmt.Sprintf("invalid encoding format: %s", b.EncodingFormat))
	}
	if b.Dimensions < 0 {
		errs.Add("body.dimensions", "cannot be negative")
	}
	if b.TruncatePromptTokens < 0 {
		errs.Add("body.truncatePromptTokens", "cannot be negative")
	}
	if b.MaxTokens < 0 {
		errs.Add("body.maxTokens", "cannot be negative")
	}
	if b.Temperature != nil && (*b.Temperature < 0 || *b.Temperature > 2) {
		errs.Add("body.temperature", "must be between 0 and 2")
	}
	for i, m := range b.History {
		switch m.Role {
		case "system", "user", "assistant":
		default:
			errs.Add(fmt.Sprintf("body.history[%d].role", i), fmt.Sprintf("invalid role: %s", m.Role))
		}
	}
}

func validateLoad(l *LoadSection, errs *ValidationErrors) {
	switch executor.Type(l.Executor) {
	case executor.TypeConstantVUs:
		if l.VUs <= 0 {
			errs.Add("load.vus", "vus must be greater than 0")
		}
		if l.Duration <= 0 {
			errs.Add("load.duration", "duration is required for constant-vus executor")
		}
	case executor.TypeRampingVUs:
		if len(l.Stages) == 0 {
			errs.Add("load.stages", "at least one stage is required for ramping-vus executor")
		}
	case "":
		errs.Add("load.executor", "executor type is required")
	default:
		if _, err := executor.NewExecutor(executor.Type(l.Executor)); err != nil {
			errs.Add("load.executor", err.Error())
		}
	}

	for i, stage := range l.Stages {
		prefix := fmt.Sprintf("load.stages[%d]", i)
		if stage.Duration < 0 {
			errs.Add(prefix+".duration", "duration cannot be negative")
		}
		if stage.Target < 0 {
			errs.Add(prefix+".target", "target cannot be negative")
		}
	}

	if l.StartVUs < 0 {
		errs.Add("load.startVUs", "cannot be negative")
	}
	if l.StartVUs > 0 && executor.Type(l.Executor) == executor.TypeConstantVUs {
		errs.Add("load.startVUs", "only applies to the ramping-vus executor")
	}
	if l.GracefulRampDown != nil && *l.GracefulRampDown < 0 {
		errs.Add("load.gracefulRampDown", "cannot be negative")
	}
	if l.Tick < 0 {
		errs.Add("load.tick", "cannot be negative")
	}

	if l.Pacing != nil {
		validatePacing("load.pacing", l.Pacing, errs)
	}
}

// validatePacing validates pacing configuration.
func validatePacing(prefix string, pacing *PacingConfig, errs *ValidationErrors) {
	switch pacing.Type {
	case "", "none":
	case "constant":
		if pacing.Duration < 0 {
			errs.Add(prefix+".duration", "duration cannot be negative")
		}
	case "random":
		if pacing.Min < 0 {
			errs.Add(prefix+".min", "min cannot be negative")
		}
		if pacing.Max <= 0 {
			errs.Add(prefix+".max", "max is required for random pacing")
		}
		if pacing.Min > pacing.Max {
			errs.Add(prefix, "min must be less than or equal to max")
		}
	default:
		errs.Add(prefix+".type", fmt.Sprintf("invalid pacing type: %s", pacing.Type))
	}
}

// thresholdPattern matches "<stat> <op> <value>".
var thresholdPattern = regexp.MustCompile(`^([a-z][\w.]*)\s*([<>=!]+)\s*(.+)$`)

var thresholdStats = map[string][]string{
	"http_req_duration": {"p50", "p90", "p95", "p99", "min", "max", "avg", "med"},
	"http_req_failed":   {"rate"},
	"http_reqs":         {"count", "rate"},
}

// Threshold is a parsed threshold expression such as "p95 < 500ms".
type Threshold struct {
	Metric     string
	Expression string
	Stat       string
	Op         string
	Value      string
}

// ParseThreshold parses expr for metric ("http_req_duration",
// "http_req_failed" or "http_reqs"). Any percentile key such as p99.9 is
// accepted for http_req_duration.
func ParseThreshold(metric, expr string) (Threshold, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Threshold{}, fmt.Errorf("threshold expression cannot be empty")
	}

	m := thresholdPattern.FindStringSubmatch(expr)
	if m == nil {
		return Threshold{}, fmt.Errorf("threshold must look like '<stat> <op> <value>'")
	}
	t := Threshold{Metric: metric, Expression: expr, Stat: m[1], Op: m[2], Value: strings.TrimSpace(m[3])}

	allowed, ok := thresholdStats[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unknown threshold metric %q", metric)
	}
	valid := slices.Contains(allowed, t.Stat)
	if !valid && metric == "http_req_duration" {
		_, err := metrics.ParsePercentileKey(t.Stat)
		valid = err == nil
	}
	if !valid {
		return Threshold{}, fmt.Errorf("unsupported statistic %q for %s (valid: %s)",
			t.Stat, metric, strings.Join(allowed, ", "))
	}

	switch t.Op {
	case "<", ">", "<=", ">=", "==", "!=":
	default:
		return Threshold{}, fmt.Errorf("invalid operator %q (valid: <, >, <=, >=, ==, !=)", t.Op)
	}
	return t, nil
}

// Thresholds parses every configured expression in metric order.
func (t *ThresholdsConfig) Thresholds() ([]Threshold, error) {
	if t == nil {
		return nil, nil
	}
	var out []Threshold
	for _, g := range t.groups() {
		for _, expr := range g.exprs {
			th, err := ParseThreshold(g.metric, expr)
			if err != nil {
				return nil, fmt.Errorf("thresholds.%s: %w", g.metric, err)
			}
			out = append(out, th)
		}
	}
	return out, nil
}

type thresholdGroup struct {
	metric string
	exprs  []string
}

func (t *ThresholdsConfig) groups() []thresholdGroup {
	return []thresholdGroup{
		{"http_req_duration", t.HTTPReqDuration},
		{"http_req_failed", t.HTTPReqFailed},
		{"http_reqs", t.HTTPReqs},
	}
}

// validateThresholds validates threshold configuration.
func validateThresholds(t *ThresholdsConfig, errs *ValidationErrors) {
	for _, g := range t.groups() {
		for i, expr := range g.exprs {
			if _, err := ParseThreshold(g.metric, expr); err != nil {
				errs.Add(fmt.Sprintf("thresholds.%s[%d]", g.metric, i), err.Error())
			}
		}
	}
}
