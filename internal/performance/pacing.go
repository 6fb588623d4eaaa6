package performance

import (
	"fmt"
	"time"
)

// PacingType selects how long a virtual user waits between iterations.
type PacingType string

const (
	// PacingNone starts the next iteration immediately.
	PacingNone PacingType = "none"

	// PacingConstant waits a fixed duration.
	PacingConstant PacingType = "constant"

	// PacingRandom waits a uniform duration in [Min, Max].
	PacingRandom PacingType = "random"
)

// Pacing is the inter-iteration delay policy. The zero value means no pacing.
type Pacing struct {
	Type     PacingType
	Duration time.Duration
	Min      time.Duration
	Max      time.Duration
}

// Validate checks that the policy is usable.
func (p Pacing) Validate() error {
	switch p.Type {
	case "", PacingNone:
		return nil
	case PacingConstant:
		if p.Duration < 0 {
			return fmt.Errorf("constant pacing duration must be non-negative")
		}
		return nil
	case PacingRandom:
		if p.Min < 0 || p.Max < p.Min {
			return fmt.Errorf("random pacing requires 0 <= min <= max")
		}
		return nil
	}
	return fmt.Errorf("unknown pacing type %q", p.Type)
}

// Delay returns the wait before the next iteration.
func (p Pacing) Delay(rng RandSource) time.Duration {
	switch p.Type {
	case PacingConstant:
		return p.Duration
	case PacingRandom:
		span := p.Max - p.Min
		if span <= 0 || rng == nil {
			return p.Min
		}
		return p.Min + time.Duration(rng.IntN(int(span)+1))
	}
	return 0
}
