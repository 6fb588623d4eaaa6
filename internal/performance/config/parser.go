package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inferload/inferload/internal/performance/executor"
	"github.com/inferload/inferload/internal/performance/request"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultTimeout          = 30 * time.Second
	DefaultGracefulRampDown = executor.DefaultGracefulRampDown
	DefaultTick             = executor.DefaultTick
	DefaultConstantPacing   = time.Second
)

// LoadConfig loads a test configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
//
// A relative prompts.file is resolved against the config file's directory.
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := ParseConfig(data, path)
	if err != nil {
		return nil, err
	}

	if f := cfg.Prompts.File; f != "" && !filepath.IsAbs(f) {
		cfg.Prompts.File = filepath.Join(filepath.Dir(path), f)
	}
	return cfg, nil
}

// ParseConfig parses configuration data.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*TestConfig, error) {
	var config TestConfig

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		// Try YAML by default
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}

	return &config, nil
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	// Try standard Go duration parsing first
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	// Try parsing as integer seconds
	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// ParseStages parses the compact "duration:target[:name],..." form used on
// the command line, e.g. "15s:64,2m:64,15s:0".
func ParseStages(s string) ([]StageConfig, error) {
	var stages []StageConfig
	for i, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ":", 3)
		if len(fields) < 2 {
			return nil, fmt.Errorf("stage %d: expected duration:target, got %q", i+1, part)
		}
		d, err := ParseDurationString(fields[0])
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i+1, err)
		}
		target, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid target %q", i+1, fields[1])
		}
		stage := StageConfig{Duration: Duration(d), Target: target}
		if len(fields) == 3 {
			stage.Name = strings.TrimSpace(fields[2])
		}
		stages = append(stages, stage)
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("no stages in %q", s)
	}
	return stages, nil
}

// ApplyDefaults applies default values to a TestConfig.
func ApplyDefaults(config *TestConfig) {
	if config.Name == "" {
		config.Name = "inferload"
	}

	// Target
	if config.Target.Protocol == "" {
		config.Target.Protocol = string(request.ProtocolEmbeddings)
	}
	if config.Target.Timeout == 0 {
		config.Target.Timeout = Duration(DefaultTimeout)
	}
	if config.Body.Model == "" {
		config.Body.Model = config.Target.Model
	}

	applyLoadDefaults(&config.Load)

	if config.Metrics.TagFormat == "" {
		config.Metrics.TagFormat = executor.DefaultTagFormat
	}

	if len(config.Checks) == 0 {
		config.Checks = request.DefaultCheckSpecs(request.Protocol(config.Target.Protocol), config.Body.Stream)
	}
}

func applyLoadDefaults(load *LoadSection) {
	// Default executor
	if load.Executor == "" {
		if len(load.Stages) == 0 && load.VUs > 0 {
			load.Executor = string(executor.TypeConstantVUs)
		} else {
			load.Executor = string(executor.TypeRampingVUs)
		}
	}

	if load.GracefulRampDown == nil {
		load.GracefulRampDown = DurationOf(DefaultGracefulRampDown)
	}
	if load.Tick == 0 {
		load.Tick = Duration(DefaultTick)
	}

	if load.Pacing == nil {
		load.Pacing = &PacingConfig{Type: "none"}
	}
	if load.Pacing.Type == "" {
		load.Pacing.Type = "none"
	}
	if load.Pacing.Type == "constant" && load.Pacing.Duration == 0 {
		load.Pacing.Duration = Duration(DefaultConstantPacing)
	}
}
