package executor

// ConstantVUs runs a fixed number of VUs for a specified duration.
//
// It is a ramping timeline of [{0s, VUs}, {Duration, VUs}]: all VUs are
// spawned at once, held for Duration, then drained.
type ConstantVUs struct {
	*RampingVUs
}

// NewConstantVUs creates a new constant VUs executor.
func NewConstantVUs() *ConstantVUs {
	r := NewRampingVUs()
	r.typ = TypeConstantVUs
	return &ConstantVUs{RampingVUs: r}
}
