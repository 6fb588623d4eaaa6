package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/inferload/inferload/internal/performance"
)

func TestNewExecutor(t *testing.T) {
	for _, typ := range []Type{TypeRampingVUs, TypeConstantVUs} {
		e, err := NewExecutor(typ)
		if err != nil {
			t.Fatalf("NewExecutor(%s) error = %v", typ, err)
		}
		if e.Type() != typ {
			t.Errorf("Type() = %v, want %v", e.Type(), typ)
		}
	}

	_, err := NewExecutor("constant-arrival-rate")
	if err == nil {
		t.Fatal("NewExecutor(constant-arrival-rate) expected error")
	}
	if !strings.Contains(err.Error(), "constant-vus, ramping-vus") {
		t.Errorf("error %q should list supported types", err)
	}
}

func TestTypes(t *testing.T) {
	got := Types()
	want := []Type{TypeConstantVUs, TypeRampingVUs}
	if len(got) != len(want) {
		t.Fatalf("Types() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Types()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestCreateAndInitExecutor_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"constant without vus", &Config{Type: TypeConstantVUs, Duration: time.Second}},
		{"constant without duration", &Config{Type: TypeConstantVUs, VUs: 2}},
		{"ramping without stages", &Config{Type: TypeRampingVUs}},
		{"negative tick", &Config{Type: TypeRampingVUs, Stages: []Stage{{Duration: time.Second}}, Tick: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateAndInitExecutor(context.Background(), tt.cfg)
			var cerr *performance.ConfigError
			if !errors.As(err, &cerr) {
				t.Errorf("error = %v, want wrapped *ConfigError", err)
			}
		})
	}
}

func TestConfig_TimelineForConstantVUs(t *testing.T) {
	cfg := &Config{Type: TypeConstantVUs, VUs: 4, Duration: time.Minute, GracefulRampDown: 5 * time.Second}
	tl := cfg.Timeline()

	if len(tl.Stages) != 2 {
		t.Fatalf("stages = %d, want 2", len(tl.Stages))
	}
	if tl.TargetAt(0) != 4 || tl.TargetAt(30*time.Second) != 4 {
		t.Errorf("constant timeline target = %d/%d, want 4", tl.TargetAt(0), tl.TargetAt(30*time.Second))
	}
	if cfg.TotalDuration() != time.Minute {
		t.Errorf("TotalDuration() = %v", cfg.TotalDuration())
	}
	if tl.GracefulRampDown != 5*time.Second {
		t.Errorf("GracefulRampDown = %v", tl.GracefulRampDown)
	}
}
