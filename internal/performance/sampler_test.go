package performance

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewSampler_EmptyCorpus(t *testing.T) {
	_, err := NewSampler(nil, nil)
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("NewSampler(nil) error = %v, want *ConfigError", err)
	}
	if cerr.Field != "prompts" {
		t.Errorf("Field = %q, want prompts", cerr.Field)
	}
}

func TestSampler_UsesInjectedSource(t *testing.T) {
	corpus := []string{"alpha", "beta", "gamma"}
	s, err := NewSampler(corpus, &seqSource{})
	if err != nil {
		t.Fatalf("NewSampler() error: %v", err)
	}

	for i := 0; i < 6; i++ {
		p := s.NextPayload()
		if p.Index != i%3 || p.Prompt != corpus[i%3] {
			t.Errorf("NextPayload() #%d = %+v, want index %d", i, p, i%3)
		}
	}
}

func TestSampler_CopiesCorpus(t *testing.T) {
	corpus := []string{"alpha"}
	s, _ := NewSampler(corpus, &seqSource{})
	corpus[0] = "mutated"
	if got := s.NextPayload().Prompt; got != "alpha" {
		t.Errorf("NextPayload() = %q, want alpha", got)
	}
}

func TestNewRandSource_SeededIsDeterministic(t *testing.T) {
	a, b := NewRandSource(42), NewRandSource(42)
	for i := 0; i < 20; i++ {
		if x, y := a.IntN(1000), b.IntN(1000); x != y {
			t.Fatalf("draw %d differs: %d vs %d", i, x, y)
		}
	}
}

func TestSampler_ConcurrentUniform(t *testing.T) {
	corpus := []string{"a", "b", "c", "d"}
	s, _ := NewSampler(corpus, NewRandSource(7))

	var mu sync.Mutex
	counts := make(map[string]int)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make(map[string]int)
			for i := 0; i < 2000; i++ {
				local[s.NextPayload().Prompt]++
			}
			mu.Lock()
			for k, v := range local {
				counts[k] += v
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, p := range corpus {
		// 16000 draws over 4 prompts: expect ~4000 each
		if counts[p] < 3400 || counts[p] > 4600 {
			t.Errorf("prompt %q drawn %d times, want ~4000", p, counts[p])
		}
	}
}

func TestPacing_Delay(t *testing.T) {
	tests := []struct {
		name string
		p    Pacing
		want time.Duration
	}{
		{"zero value", Pacing{}, 0},
		{"none", Pacing{Type: PacingNone, Duration: time.Second}, 0},
		{"constant", Pacing{Type: PacingConstant, Duration: time.Second}, time.Second},
		{"random degenerate", Pacing{Type: PacingRandom, Min: time.Second, Max: time.Second}, time.Second},
	}
	for _, tt := range tests {
		if got := tt.p.Delay(&seqSource{}); got != tt.want {
			t.Errorf("%s: Delay() = %v, want %v", tt.name, got, tt.want)
		}
	}

	random := Pacing{Type: PacingRandom, Min: time.Second, Max: 2 * time.Second}
	rng := NewRandSource(1)
	for i := 0; i < 100; i++ {
		if d := random.Delay(rng); d < time.Second || d > 2*time.Second {
			t.Fatalf("random Delay() = %v, want within [1s, 2s]", d)
		}
	}
}

func TestPacing_Validate(t *testing.T) {
	valid := []Pacing{{}, {Type: PacingNone}, {Type: PacingConstant, Duration: 0}, {Type: PacingRandom, Min: 1, Max: 2}}
	for _, p := range valid {
		if err := p.Validate(); err != nil {
			t.Errorf("Validate(%+v) error: %v", p, err)
		}
	}
	invalid := []Pacing{{Type: "poisson"}, {Type: PacingConstant, Duration: -1}, {Type: PacingRandom, Min: 2, Max: 1}}
	for _, p := range invalid {
		if err := p.Validate(); err == nil {
			t.Errorf("Validate(%+v) succeeded, want error", p)
		}
	}
}
