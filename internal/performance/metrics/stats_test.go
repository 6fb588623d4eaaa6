package metrics

import (
	"testing"
	"time"
)

func ms(v ...int) []time.Duration {
	out := make([]time.Duration, len(v))
	for i, x := range v {
		out[i] = time.Duration(x) * time.Millisecond
	}
	return out
}

func TestPercentile(t *testing.T) {
	samples := ms(10, 20, 30, 40, 50)

	tests := []struct {
		p    float64
		want time.Duration
	}{
		{0, 10 * time.Millisecond},
		{20, 10 * time.Millisecond},
		{21, 20 * time.Millisecond},
		{50, 30 * time.Millisecond},
		{90, 50 * time.Millisecond},
		{95, 50 * time.Millisecond},
		{99, 50 * time.Millisecond},
		{100, 50 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := Percentile(samples, tt.p); got != tt.want {
			t.Errorf("Percentile(p%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestPercentile_Hundred(t *testing.T) {
	samples := make([]time.Duration, 100)
	for i := range samples {
		samples[i] = time.Duration(i+1) * time.Millisecond
	}

	for _, p := range []float64{50, 90, 95, 99} {
		want := time.Duration(p) * time.Millisecond
		if got := Percentile(samples, p); got != want {
			t.Errorf("Percentile(p%v) = %v, want %v", p, got, want)
		}
	}
	if got := Percentile(samples, 99.9); got != 100*time.Millisecond {
		t.Errorf("Percentile(p99.9) = %v, want 100ms", got)
	}
}

func TestPercentile_Edges(t *testing.T) {
	if got := Percentile(nil, 50); got != 0 {
		t.Errorf("Percentile(empty) = %v, want 0", got)
	}
	one := ms(7)
	for _, p := range []float64{0, 50, 100} {
		if got := Percentile(one, p); got != 7*time.Millisecond {
			t.Errorf("Percentile(single, p%v) = %v, want 7ms", p, got)
		}
	}
}

func TestPercentileKey(t *testing.T) {
	tests := map[float64]string{50: "p50", 99.9: "p99.9", 0: "p0"}
	for p, want := range tests {
		if got := PercentileKey(p); got != want {
			t.Errorf("PercentileKey(%v) = %q, want %q", p, got, want)
		}
		back, err := ParsePercentileKey(want)
		if err != nil || back != p {
			t.Errorf("ParsePercentileKey(%q) = %v, %v", want, back, err)
		}
	}
	for _, bad := range []string{"", "p", "x90", "p101", "pabc"} {
		if _, err := ParsePercentileKey(bad); err == nil {
			t.Errorf("ParsePercentileKey(%q) succeeded, want error", bad)
		}
	}
}

func TestSampleSetStats_KeepsArrivalOrder(t *testing.T) {
	s := newSampleSet()
	for _, d := range ms(50, 10, 40, 20, 30) {
		s.durations = append(s.durations, d)
	}

	stats := s.stats(DefaultPercentiles)

	if stats.Median != 30*time.Millisecond {
		t.Errorf("Median = %v, want 30ms", stats.Median)
	}
	if stats.P90 != 50*time.Millisecond {
		t.Errorf("P90 = %v, want 50ms", stats.P90)
	}
	if stats.Mean != 30*time.Millisecond {
		t.Errorf("Mean = %v, want 30ms", stats.Mean)
	}
	if s.durations[0] != 50*time.Millisecond {
		t.Error("stats() reordered the arrival-ordered samples")
	}
}
