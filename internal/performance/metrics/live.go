package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/inferload/inferload/internal/performance/request"
)

// LiveEngine tracks running metrics with HDR histograms for progress output
// and the time series. Its percentiles are approximate (3 significant
// figures); final reports use the Collector's exact values.
//
// LiveEngine is safe for concurrent use. Counters are atomic, histograms are
// mutex protected, and the bucket emitter runs in its own goroutine.
type LiveEngine struct {
	// Range: 1 microsecond to 1 hour, 3 significant figures
	latencyHist   *hdrhistogram.Histogram
	latencyHistMu sync.Mutex

	tagHists   map[string]*hdrhistogram.Histogram
	tagHistsMu sync.RWMutex

	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64
	totalBytes      atomic.Int64
	totalTokens     atomic.Int64

	activeVUs atomic.Int32

	bucketStore *TimeBucketStore

	currentPhase Phase
	currentTag   string
	phaseMu      sync.RWMutex
	phaseHistory []PhaseChange

	startTime time.Time

	emitterCtx    context.Context
	emitterCancel context.CancelFunc
	emitterWg     sync.WaitGroup
	stopOnce      sync.Once

	config LiveConfig
}

// LiveConfig contains configuration for the live engine.
type LiveConfig struct {
	// BucketInterval is the interval for time-series buckets (default: 1s)
	BucketInterval time.Duration

	// MaxBuckets is the maximum number of buckets to retain (default: 3600)
	MaxBuckets int

	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultLiveConfig returns the default configuration.
func DefaultLiveConfig() LiveConfig {
	return LiveConfig{
		BucketInterval:   time.Second,
		MaxBuckets:       3600,
		HistogramMin:     1,
		HistogramMax:     3600000000,
		HistogramSigFigs: 3,
	}
}

// NewLiveEngine creates a live engine and starts its bucket emitter.
func NewLiveEngine(config LiveConfig) *LiveEngine {
	def := DefaultLiveConfig()
	if config.BucketInterval <= 0 {
		config.BucketInterval = def.BucketInterval
	}
	if config.HistogramMin <= 0 {
		config.HistogramMin = def.HistogramMin
	}
	if config.HistogramMax <= config.HistogramMin {
		config.HistogramMax = def.HistogramMax
	}
	if config.HistogramSigFigs <= 0 {
		config.HistogramSigFigs = def.HistogramSigFigs
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &LiveEngine{
		latencyHist:   hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		tagHists:      make(map[string]*hdrhistogram.Histogram),
		bucketStore:   NewTimeBucketStore(config.MaxBuckets),
		currentPhase:  PhaseInit,
		startTime:     time.Now(),
		emitterCtx:    ctx,
		emitterCancel: cancel,
		config:        config,
	}

	e.emitterWg.Add(1)
	go e.runEmitter()

	return e
}

// Observe records one outcome.
func (e *LiveEngine) Observe(o request.Outcome) {
	latencyMicros := e.clamp(o.Duration.Microseconds())

	e.latencyHistMu.Lock()
	e.latencyHist.RecordValue(latencyMicros)
	e.latencyHistMu.Unlock()

	if o.Tag != "" {
		e.recordTagHistogram(o.Tag, latencyMicros)
	}

	tokens := int64(o.Usage.CompletionTokens)
	if tokens == 0 {
		tokens = int64(o.Usage.TotalTokens)
	}

	e.totalRequests.Add(1)
	e.totalBytes.Add(int64(o.BytesReceived))
	e.totalTokens.Add(tokens)
	if o.Success {
		e.successRequests.Add(1)
	} else {
		e.failedRequests.Add(1)
	}

	e.bucketStore.RecordRequest(o.Success, tokens)
}

func (e *LiveEngine) clamp(v int64) int64 {
	if v < e.config.HistogramMin {
		return e.config.HistogramMin
	}
	if v > e.config.HistogramMax {
		return e.config.HistogramMax
	}
	return v
}

// recordTagHistogram records into the tag's histogram.
// NOTE: HDR histogram RecordValue is NOT thread-safe, so we must hold a lock.
func (e *LiveEngine) recordTagHistogram(tag string, latencyMicros int64) {
	e.tagHistsMu.Lock()
	defer e.tagHistsMu.Unlock()

	hist, exists := e.tagHists[tag]
	if !exists {
		hist = hdrhistogram.New(e.config.HistogramMin, e.config.HistogramMax, e.config.HistogramSigFigs)
		e.tagHists[tag] = hist
	}
	hist.RecordValue(latencyMicros)
}

// SetPhase records a phase or stage transition.
func (e *LiveEngine) SetPhase(phase Phase, tag string) {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()

	if e.currentPhase == phase && e.currentTag == tag {
		return
	}

	e.currentPhase = phase
	e.currentTag = tag
	e.phaseHistory = append(e.phaseHistory, PhaseChange{
		Phase:     phase,
		Tag:       tag,
		Timestamp: time.Now(),
		Requests:  e.totalRequests.Load(),
	})
}

// GetPhase returns the current phase and stage tag.
func (e *LiveEngine) GetPhase() (Phase, string) {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()
	return e.currentPhase, e.currentTag
}

// SetActiveVUs updates the active VU count.
func (e *LiveEngine) SetActiveVUs(count int) {
	e.activeVUs.Store(int32(count))
}

// GetActiveVUs returns the current active VU count.
func (e *LiveEngine) GetActiveVUs() int {
	return int(e.activeVUs.Load())
}

func (e *LiveEngine) runEmitter() {
	defer e.emitterWg.Done()

	ticker := time.NewTicker(e.config.BucketInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.emitterCtx.Done():
			return
		case <-ticker.C:
			e.emitBucket()
		}
	}
}

func (e *LiveEngine) emitBucket() {
	phase, tag := e.GetPhase()
	e.bucketStore.CreateBucket(
		Totals{
			Requests:  e.totalRequests.Load(),
			Successes: e.successRequests.Load(),
			Failures:  e.failedRequests.Load(),
			Bytes:     e.totalBytes.Load(),
		},
		e.GetLatencyPercentiles(),
		BucketState{ActiveVUs: e.GetActiveVUs(), Phase: phase, Tag: tag},
	)
}

// GetLatencyPercentiles returns current latency percentiles.
func (e *LiveEngine) GetLatencyPercentiles() LatencyPercentiles {
	e.latencyHistMu.Lock()
	defer e.latencyHistMu.Unlock()

	return LatencyPercentiles{
		Min: micros(e.latencyHist.Min()),
		Max: micros(e.latencyHist.Max()),
		P50: micros(e.latencyHist.ValueAtQuantile(50)),
		P90: micros(e.latencyHist.ValueAtQuantile(90)),
		P95: micros(e.latencyHist.ValueAtQuantile(95)),
		P99: micros(e.latencyHist.ValueAtQuantile(99)),
	}
}

// GetSnapshot returns a point-in-time snapshot of all metrics.
func (e *LiveEngine) GetSnapshot() *Snapshot {
	e.latencyHistMu.Lock()
	latency := histStats(e.latencyHist)
	e.latencyHistMu.Unlock()

	elapsed := time.Since(e.startTime)
	totalReqs := e.totalRequests.Load()
	failedReqs := e.failedRequests.Load()

	overallRPS := 0.0
	if elapsed.Seconds() > 0 {
		overallRPS = float64(totalReqs) / elapsed.Seconds()
	}

	steadyRPS, _ := e.bucketStore.CalculateSteadyStateRPS()

	errorRate := 0.0
	if totalReqs > 0 {
		errorRate = float64(failedReqs) / float64(totalReqs)
	}

	phase, tag := e.GetPhase()

	return &Snapshot{
		TotalRequests:   totalReqs,
		SuccessRequests: e.successRequests.Load(),
		FailedRequests:  failedReqs,
		TotalBytes:      e.totalBytes.Load(),
		TotalTokens:     e.totalTokens.Load(),
		Latency:         latency,
		RPS:             overallRPS,
		SteadyStateRPS:  steadyRPS,
		ErrorRate:       errorRate,
		ActiveVUs:       e.GetActiveVUs(),
		CurrentPhase:    phase,
		CurrentTag:      tag,
		Elapsed:         elapsed,
		StartTime:       e.startTime,
		Timestamp:       time.Now(),
	}
}

// GetTimeSeries returns all time-series buckets.
func (e *LiveEngine) GetTimeSeries() []*TimeBucket {
	return e.bucketStore.GetBuckets()
}

// GetLatestBucket returns the most recent bucket, or nil if none.
func (e *LiveEngine) GetLatestBucket() *TimeBucket {
	return e.bucketStore.GetLatestBucket()
}

// GetPhaseHistory returns the history of phase changes.
func (e *LiveEngine) GetPhaseHistory() []PhaseChange {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()

	result := make([]PhaseChange, len(e.phaseHistory))
	copy(result, e.phaseHistory)
	return result
}

// GetTagStats returns approximate per-tag latency statistics.
func (e *LiveEngine) GetTagStats() map[string]LatencyStats {
	e.tagHistsMu.RLock()
	defer e.tagHistsMu.RUnlock()

	result := make(map[string]LatencyStats, len(e.tagHists))
	for tag, hist := range e.tagHists {
		result[tag] = histStats(hist)
	}
	return result
}

// Stop stops the emitter and emits a final bucket. Safe to call twice.
func (e *LiveEngine) Stop() {
	e.stopOnce.Do(func() {
		e.emitterCancel()
		e.emitterWg.Wait()
		e.emitBucket()
	})
}

func histStats(h *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Min:    micros(h.Min()),
		Max:    micros(h.Max()),
		Mean:   time.Duration(h.Mean() * float64(time.Microsecond)),
		StdDev: time.Duration(h.StdDev() * float64(time.Microsecond)),
		P50:    micros(h.ValueAtQuantile(50)),
		P90:    micros(h.ValueAtQuantile(90)),
		P95:    micros(h.ValueAtQuantile(95)),
		P99:    micros(h.ValueAtQuantile(99)),
		Count:  h.TotalCount(),
	}
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}

var (
	_ Observer      = (*LiveEngine)(nil)
	_ StateObserver = (*LiveEngine)(nil)
)
