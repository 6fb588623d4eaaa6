package main

import (
	"testing"
	"time"
)

func TestCreateSampleResult(t *testing.T) {
	result, err := createSampleResult(time.Now())
	if err != nil {
		t.Fatalf("createSampleResult() error: %v", err)
	}
	if got := len(result.Tags()); got != len(sweep) {
		t.Fatalf("tags = %d, want %d", got, len(sweep))
	}
	if result.Tags()[0].Tag != "1 VUs" {
		t.Errorf("first tag = %q, want %q", result.Tags()[0].Tag, "1 VUs")
	}
	if len(result.TimeSeries) != len(sweep)*holdSeconds {
		t.Errorf("time series = %d buckets, want %d", len(result.TimeSeries), len(sweep)*holdSeconds)
	}
	if len(result.Thresholds) != 3 {
		t.Errorf("thresholds = %d, want 3", len(result.Thresholds))
	}
	first, last := result.Tags()[0], result.Tags()[len(sweep)-1]
	if last.Median <= first.Median {
		t.Errorf("median should grow with concurrency: %s -> %s", first.Median, last.Median)
	}
}
