package engine

import (
	"fmt"
	"strconv"
	"time"

	"github.com/inferload/inferload/internal/performance/config"
	"github.com/inferload/inferload/internal/performance/metrics"
)

// ThresholdResult contains the result of a threshold evaluation.
type ThresholdResult struct {
	Metric     string `json:"metric" yaml:"metric"`
	Expression string `json:"expression" yaml:"expression"`
	Passed     bool   `json:"passed" yaml:"passed"`
	Value      string `json:"value" yaml:"value"`
	Message    string `json:"message,omitempty" yaml:"message,omitempty"`
}

// EvaluateThresholds evaluates every threshold against stats.
func EvaluateThresholds(thresholds []config.Threshold, stats *metrics.AggregateStats) []ThresholdResult {
	if len(thresholds) == 0 {
		return nil
	}
	results := make([]ThresholdResult, 0, len(thresholds))
	for _, th := range thresholds {
		var r ThresholdResult
		switch th.Metric {
		case "http_req_duration":
			r = evaluateDurationThreshold(th, stats)
		case "http_req_failed":
			r = evaluateFailedThreshold(th, stats)
		case "http_reqs":
			r = evaluateRequestsThreshold(th, stats)
		default:
			r = ThresholdResult{Metric: th.Metric, Expression: th.Expression,
				Message: fmt.Sprintf("unknown metric %s", th.Metric)}
		}
		results = append(results, r)
	}
	return results
}

// evaluateDurationThreshold evaluates a duration threshold expression.
func evaluateDurationThreshold(th config.Threshold, stats *metrics.AggregateStats) ThresholdResult {
	result := ThresholdResult{
		Metric:     th.Metric,
		Expression: th.Expression,
	}

	var actualValue time.Duration
	switch th.Stat {
	case "min":
		actualValue = stats.Min
	case "max":
		actualValue = stats.Max
	case "avg":
		actualValue = stats.Mean
	case "med", "p50":
		actualValue = stats.Median
	case "p90":
		actualValue = stats.P90
	case "p95":
		actualValue = stats.P95
	case "p99":
		actualValue = stats.P99
	default:
		p, err := metrics.ParsePercentileKey(th.Stat)
		if err != nil {
			result.Message = err.Error()
			return result
		}
		v, ok := stats.Percentile(p)
		if !ok {
			result.Message = fmt.Sprintf("%s is not a configured percentile", th.Stat)
			return result
		}
		actualValue = v
	}

	// Parse threshold value
	thresholdValue, err := config.ParseDurationString(th.Value)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	result.Value = actualValue.String()
	result.Passed = compareValues(float64(actualValue), th.Op, float64(thresholdValue))

	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %s, threshold: %s %s", th.Stat, actualValue, th.Op, thresholdValue)
	}

	return result
}

// evaluateFailedThreshold evaluates a failure rate threshold expression.
func evaluateFailedThreshold(th config.Threshold, stats *metrics.AggregateStats) ThresholdResult {
	result := ThresholdResult{
		Metric:     th.Metric,
		Expression: th.Expression,
	}

	thresholdValue, err := strconv.ParseFloat(th.Value, 64)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	result.Value = fmt.Sprintf("%.4f", stats.ErrorRate)
	result.Passed = compareValues(stats.ErrorRate, th.Op, thresholdValue)

	if !result.Passed {
		result.Message = fmt.Sprintf("error rate is %.4f, threshold: %s %.4f", stats.ErrorRate, th.Op, thresholdValue)
	}

	return result
}

// evaluateRequestsThreshold evaluates a request count/rate threshold expression.
func evaluateRequestsThreshold(th config.Threshold, stats *metrics.AggregateStats) ThresholdResult {
	result := ThresholdResult{
		Metric:     th.Metric,
		Expression: th.Expression,
	}

	thresholdValue, err := strconv.ParseFloat(th.Value, 64)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	var actualValue float64
	switch th.Stat {
	case "count":
		actualValue = float64(stats.Count)
	case "rate":
		actualValue = stats.RPS
	default:
		result.Message = fmt.Sprintf("http_reqs only supports 'count' or 'rate' metrics, got: %s", th.Stat)
		return result
	}

	result.Value = fmt.Sprintf("%.2f", actualValue)
	result.Passed = compareValues(actualValue, th.Op, thresholdValue)

	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %.2f, threshold: %s %.2f", th.Stat, actualValue, th.Op, thresholdValue)
	}

	return result
}

// compareValues compares two values using the given operator.
func compareValues(actual float64, op string, threshold float64) bool {
	switch op {
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	case "==":
		return actual == threshold
	case "!=":
		return actual != threshold
	default:
		return false
	}
}
