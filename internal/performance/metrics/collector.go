package metrics

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/inferload/inferload/internal/performance/request"
)

// ErrAlreadyFinalized is returned by a second call to Finalize.
var ErrAlreadyFinalized = errors.New("metrics collector already finalized")

// TagStats is the aggregate for one concurrency tag.
type TagStats struct {
	Tag string `json:"tag" yaml:"tag"`
	AggregateStats `yaml:",inline"`
}

// Aggregate is the finalized result of a run.
type Aggregate struct {
	// Tags are in order of first appearance.
	Tags    []*TagStats    `json:"tags" yaml:"tags"`
	Overall AggregateStats `json:"overall" yaml:"overall"`

	// Percentiles lists the configured percentiles.
	Percentiles []float64 `json:"percentiles" yaml:"percentiles"`
}

// Tag returns the stats for tag.
func (a *Aggregate) Tag(tag string) (*TagStats, bool) {
	for _, t := range a.Tags {
		if t.Tag == tag {
			return t, true
		}
	}
	return nil, false
}

// lockedSet pairs a sample set with its own lock so writers on different tags
// never contend.
type lockedSet struct {
	mu  sync.Mutex
	set *sampleSet
}

// Collector accumulates outcomes from all virtual users.
//
// Record may be called from any number of goroutines. Finalize must be
// called once, after every writer has stopped.
type Collector struct {
	setsMu sync.RWMutex
	sets   map[string]*lockedSet
	order  []string

	recorded  atomic.Int64
	finalized atomic.Bool

	percentiles []float64
	observers   []Observer
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithPercentiles sets extra percentiles. The defaults are always included.
func WithPercentiles(ps ...float64) CollectorOption {
	return func(c *Collector) {
		c.percentiles = mergePercentiles(DefaultPercentiles, ps)
	}
}

// WithObserver adds an observer notified on every Record.
func WithObserver(o Observer) CollectorOption {
	return func(c *Collector) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// NewCollector creates an empty collector.
func NewCollector(opts ...CollectorOption) *Collector {
	c := &Collector{
		sets:        make(map[string]*lockedSet),
		percentiles: mergePercentiles(DefaultPercentiles, nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Record appends o to the sample set for o.Tag. Outcomes recorded after
// Finalize are discarded.
func (c *Collector) Record(o request.Outcome) {
	if c.finalized.Load() {
		return
	}

	ls := c.setFor(o.Tag)
	ls.mu.Lock()
	ls.set.add(o)
	ls.mu.Unlock()
	c.recorded.Add(1)

	for _, obs := range c.observers {
		obs.Observe(o)
	}
}

func (c *Collector) setFor(tag string) *lockedSet {
	c.setsMu.RLock()
	ls, ok := c.sets[tag]
	c.setsMu.RUnlock()
	if ok {
		return ls
	}

	c.setsMu.Lock()
	defer c.setsMu.Unlock()
	if ls, ok = c.sets[tag]; ok {
		return ls
	}
	ls = &lockedSet{set: newSampleSet()}
	c.sets[tag] = ls
	c.order = append(c.order, tag)
	return ls
}

// Count returns the number of outcomes recorded so far.
func (c *Collector) Count() int64 {
	return c.recorded.Load()
}

// Tags returns the tags seen so far, in order of first appearance.
func (c *Collector) Tags() []string {
	c.setsMu.RLock()
	defer c.setsMu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// SetActiveVUs forwards the live VU count to state observers.
func (c *Collector) SetActiveVUs(n int) {
	for _, obs := range c.observers {
		if so, ok := obs.(StateObserver); ok {
			so.SetActiveVUs(n)
		}
	}
}

// SetPhase forwards a phase change to state observers.
func (c *Collector) SetPhase(phase Phase, tag string) {
	for _, obs := range c.observers {
		if so, ok := obs.(StateObserver); ok {
			so.SetPhase(phase, tag)
		}
	}
}

// Finalize computes per-tag and overall statistics. It may be called once.
func (c *Collector) Finalize() (*Aggregate, error) {
	if !c.finalized.CompareAndSwap(false, true) {
		return nil, ErrAlreadyFinalized
	}

	c.setsMu.Lock()
	defer c.setsMu.Unlock()

	agg := &Aggregate{
		Tags:        make([]*TagStats, 0, len(c.order)),
		Percentiles: append([]float64(nil), c.percentiles...),
	}
	overall := newSampleSet()
	for _, tag := range c.order {
		ls := c.sets[tag]
		ls.mu.Lock()
		agg.Tags = append(agg.Tags, &TagStats{Tag: tag, AggregateStats: ls.set.stats(c.percentiles)})
		overall.merge(ls.set)
		ls.mu.Unlock()
	}
	agg.Overall = overall.stats(c.percentiles)

	return agg, nil
}

func mergePercentiles(base, extra []float64) []float64 {
	seen := make(map[float64]bool)
	out := make([]float64, 0, len(base)+len(extra))
	for _, list := range [][]float64{base, extra} {
		for _, p := range list {
			if p < 0 || p > 100 || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Float64s(out)
	return out
}

var _ StateObserver = (*Collector)(nil)
