package performance

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/inferload/inferload/internal/performance/request"
)

// RandSource is the randomness used for prompt selection and random pacing.
// Implementations must be safe for concurrent use.
type RandSource interface {
	// IntN returns a value in [0, n). n must be positive.
	IntN(n int) int
}

type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (s *lockedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

// NewRandSource returns a concurrency-safe source. Seed 0 seeds from the clock.
func NewRandSource(seed uint64) RandSource {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &lockedSource{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Sampler picks prompts uniformly at random from a fixed corpus.
type Sampler struct {
	corpus []string
	rng    RandSource
}

// NewSampler copies corpus. An empty corpus is a ConfigError.
func NewSampler(corpus []string, rng RandSource) (*Sampler, error) {
	if len(corpus) == 0 {
		return nil, &ConfigError{Field: "prompts", Message: "prompt corpus is empty"}
	}
	if rng == nil {
		rng = NewRandSource(0)
	}
	return &Sampler{
		corpus: append([]string(nil), corpus...),
		rng:    rng,
	}, nil
}

// NextPayload returns a uniformly chosen prompt.
func (s *Sampler) NextPayload() request.Payload {
	i := s.rng.IntN(len(s.corpus))
	return request.Payload{Index: i, Prompt: s.corpus[i]}
}

// Size returns the corpus size.
func (s *Sampler) Size() int {
	return len(s.corpus)
}
