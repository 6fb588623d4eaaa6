package output

import (
	"strings"
	"testing"
	"time"
)

func TestColorSchemes(t *testing.T) {
	for name, scheme := range map[string]*ColorScheme{
		"default": DefaultColorScheme(),
		"none":    NoColorScheme(),
		"forced":  ForceColorScheme(),
	} {
		for i, c := range scheme.all() {
			if c == nil {
				t.Errorf("%s scheme: color %d is nil", name, i)
			}
		}
	}
}

func TestNoColorScheme_PlainText(t *testing.T) {
	scheme := NoColorScheme()
	if got := scheme.Value.Sprint("42"); got != "42" {
		t.Errorf("Value.Sprint() = %q, want plain text", got)
	}
	if got := scheme.Error.Sprint("bad"); strings.Contains(got, "\x1b[") {
		t.Errorf("Error.Sprint() = %q, should not contain escape codes", got)
	}
}

func TestForceColorScheme_Escapes(t *testing.T) {
	scheme := ForceColorScheme()
	if got := scheme.Success.Sprint("ok"); !strings.Contains(got, "\x1b[") {
		t.Errorf("Success.Sprint() = %q, want escape codes", got)
	}
}

func TestErrorRateColor(t *testing.T) {
	scheme := NoColorScheme()
	tests := []struct {
		rate float64
		want interface{}
	}{
		{0, scheme.Success},
		{0.01, scheme.Success},
		{0.02, scheme.Warn},
		{0.05, scheme.Warn},
		{0.5, scheme.Error},
	}
	for _, tt := range tests {
		if got := scheme.ErrorRate(tt.rate); got != tt.want {
			t.Errorf("ErrorRate(%v) picked the wrong color", tt.rate)
		}
	}
}

func TestIcons(t *testing.T) {
	tests := []struct {
		name string
		fn   func(bool) string
		want string
	}{
		{"success", SuccessIcon, "✓"},
		{"error", ErrorIcon, "✗"},
		{"info", InfoIcon, "ℹ"},
		{"warning", WarningIcon, "⚠"},
	}
	for _, tt := range tests {
		if got := tt.fn(true); got != tt.want {
			t.Errorf("%s icon without color = %q, want %q", tt.name, got, tt.want)
		}
		if got := tt.fn(false); !strings.Contains(got, tt.want) {
			t.Errorf("%s icon with color = %q, should contain %q", tt.name, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{850 * time.Millisecond, "850ms"},
		{12500 * time.Millisecond, "12.5s"},
		{2*time.Minute + 5*time.Second, "2m 05s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h 02m 03s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatLatency(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0"},
		{500 * time.Nanosecond, "500ns"},
		{50 * time.Microsecond, "50.0µs"},
		{250 * time.Microsecond, "250µs"},
		{2500 * time.Microsecond, "2.50ms"},
		{45 * time.Millisecond, "45.0ms"},
		{450 * time.Millisecond, "450ms"},
		{1500 * time.Millisecond, "1.50s"},
		{15 * time.Second, "15.0s"},
	}
	for _, tt := range tests {
		if got := FormatLatency(tt.d); got != tt.want {
			t.Errorf("FormatLatency(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-4500, "-4,500"},
	}
	for _, tt := range tests {
		if got := FormatNumber(tt.n); got != tt.want {
			t.Errorf("FormatNumber(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KB"},
		{3 * 1024 * 1024, "3.00 MB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatPercent(t *testing.T) {
	if got := FormatPercent(0.0125); got != "1.2%" && got != "1.3%" {
		t.Errorf("FormatPercent(0.0125) = %q", got)
	}
	if got := FormatPercent(1); got != "100.0%" {
		t.Errorf("FormatPercent(1) = %q, want 100.0%%", got)
	}
}
