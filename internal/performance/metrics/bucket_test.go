package metrics

import "testing"

func TestTimeBucketStore_RingBuffer(t *testing.T) {
	store := NewTimeBucketStore(3)

	for i := 1; i <= 5; i++ {
		store.RecordRequest(true, 0)
		store.CreateBucket(Totals{Requests: int64(i)}, LatencyPercentiles{}, BucketState{Phase: PhaseSteady})
	}

	if store.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", store.Count())
	}

	buckets := store.GetBuckets()
	for i, want := range []int64{3, 4, 5} {
		if buckets[i].TotalRequests != want {
			t.Errorf("buckets[%d].TotalRequests = %d, want %d", i, buckets[i].TotalRequests, want)
		}
	}
	if latest := store.GetLatestBucket(); latest.TotalRequests != 5 {
		t.Errorf("latest TotalRequests = %d, want 5", latest.TotalRequests)
	}
}

func TestTimeBucketStore_IntervalCounters(t *testing.T) {
	store := NewTimeBucketStore(0)

	store.RecordRequest(true, 10)
	store.RecordRequest(false, 0)
	store.RecordRequest(true, 5)
	first := store.CreateBucket(Totals{Requests: 3}, LatencyPercentiles{}, BucketState{Phase: PhaseRampUp})

	if first.IntervalRequests != 3 {
		t.Errorf("IntervalRequests = %d, want 3", first.IntervalRequests)
	}
	if first.IntervalTokens != 15 {
		t.Errorf("IntervalTokens = %d, want 15", first.IntervalTokens)
	}
	if first.IntervalErrorRate < 0.33 || first.IntervalErrorRate > 0.34 {
		t.Errorf("IntervalErrorRate = %v, want 1/3", first.IntervalErrorRate)
	}

	second := store.CreateBucket(Totals{Requests: 3}, LatencyPercentiles{}, BucketState{Phase: PhaseSteady})
	if second.IntervalRequests != 0 || second.IntervalErrorRate != 0 {
		t.Errorf("empty interval = %+v", second)
	}

	if rps, n := store.CalculateSteadyStateRPS(); n != 1 || rps != 0 {
		t.Errorf("CalculateSteadyStateRPS() = %v, %d; want 0, 1", rps, n)
	}
	if store.GetBuckets() == nil || NewTimeBucketStore(1).GetBuckets() != nil {
		t.Error("GetBuckets() nil handling")
	}
}
