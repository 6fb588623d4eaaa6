package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/inferload/inferload/internal/output"
	"github.com/inferload/inferload/internal/performance/engine"
	"github.com/inferload/inferload/internal/performance/metrics"
)

// ReportData contains all data needed to render the HTML report.
type ReportData struct {
	*engine.Result
	Overall        *metrics.AggregateStats
	Percentiles    []float64
	TimeSeriesJSON template.JS
	TagChartJSON   template.JS
}

// TimeSeriesPoint represents a single point in the time series for JSON export.
type TimeSeriesPoint struct {
	Timestamp         string  `json:"timestamp"`
	IntervalRPS       float64 `json:"intervalRPS"`
	LatencyP50        float64 `json:"latencyP50Ms"`
	LatencyP95        float64 `json:"latencyP95Ms"`
	LatencyP99        float64 `json:"latencyP99Ms"`
	ActiveVUs         int     `json:"activeVUs"`
	Phase             string  `json:"phase"`
	Tag               string  `json:"tag"`
	IntervalErrorRate float64 `json:"intervalErrorRate"`
}

// tagPoint is one bar group in the per-tag latency chart.
type tagPoint struct {
	Tag string  `json:"tag"`
	P50 float64 `json:"p50Ms"`
	P95 float64 `json:"p95Ms"`
	P99 float64 `json:"p99Ms"`
	RPS float64 `json:"rps"`
}

// WriteHTML renders result as a self-contained HTML page.
func WriteHTML(w io.Writer, result *engine.Result) error {
	html, err := GenerateHTMLString(result)
	if err != nil {
		return fmt.Errorf("failed to generate HTML: %w", err)
	}
	_, err = io.WriteString(w, html)
	return err
}

// GenerateHTMLString generates an HTML report from test results and returns it as a string.
func GenerateHTMLString(result *engine.Result) (string, error) {
	if result == nil {
		return "", fmt.Errorf("result cannot be nil")
	}

	tmpl, err := template.New("report").Funcs(templateFuncs()).Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	timeSeriesJSON, err := convertTimeSeriesJSON(result.TimeSeries)
	if err != nil {
		return "", fmt.Errorf("failed to convert time series: %w", err)
	}
	tagJSON, err := convertTagJSON(result.Tags())
	if err != nil {
		return "", fmt.Errorf("failed to convert tag stats: %w", err)
	}

	data := ReportData{
		Result:         result,
		Overall:        result.Overall(),
		Percentiles:    metrics.DefaultPercentiles,
		TimeSeriesJSON: template.JS(timeSeriesJSON),
		TagChartJSON:   template.JS(tagJSON),
	}
	if result.Aggregate != nil && len(result.Aggregate.Percentiles) > 0 {
		data.Percentiles = result.Aggregate.Percentiles
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

// convertTimeSeriesJSON converts the time series buckets to JSON for chart rendering.
func convertTimeSeriesJSON(timeSeries []*metrics.TimeBucket) (string, error) {
	if len(timeSeries) == 0 {
		return "[]", nil
	}

	points := make([]TimeSeriesPoint, len(timeSeries))
	for i, bucket := range timeSeries {
		points[i] = TimeSeriesPoint{
			Timestamp:         bucket.Timestamp.Format(time.RFC3339),
			IntervalRPS:       bucket.IntervalRPS,
			LatencyP50:        ms(bucket.LatencyP50),
			LatencyP95:        ms(bucket.LatencyP95),
			LatencyP99:        ms(bucket.LatencyP99),
			ActiveVUs:         bucket.ActiveVUs,
			Phase:             string(bucket.Phase),
			Tag:               bucket.Tag,
			IntervalErrorRate: bucket.IntervalErrorRate,
		}
	}

	jsonBytes, err := json.Marshal(points)
	if err != nil {
		return "[]", err
	}
	return string(jsonBytes), nil
}

func convertTagJSON(tags []*metrics.TagStats) (string, error) {
	points := make([]tagPoint, 0, len(tags))
	for _, ts := range tags {
		points = append(points, tagPoint{
			Tag: ts.Tag,
			P50: ms(ts.Median),
			P95: ms(ts.P95),
			P99: ms(ts.P99),
			RPS: ts.RPS,
		})
	}
	jsonBytes, err := json.Marshal(points)
	if err != nil {
		return "[]", err
	}
	return string(jsonBytes), nil
}

// templateFuncs returns the template helper functions.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDuration": output.FormatDuration,
		"formatNumber":   output.FormatNumber,
		"formatLatency":  output.FormatLatency,
		"formatBytes":    output.FormatBytes,
		"percentileKey":  metrics.PercentileKey,
		"percentile":     percentile,
		"mul":            mul,
		"successRate":    successRate,
	}
}

// percentile looks up a computed percentile for the template. It takes a
// value so both overall and embedded per-tag stats can be passed.
func percentile(st metrics.AggregateStats, p float64) time.Duration {
	v, _ := st.Percentile(p)
	return v
}

// mul multiplies two float64 values (for template use).
func mul(a, b float64) float64 {
	return a * b
}

// successRate returns the success percentage of a stats block.
func successRate(st *metrics.AggregateStats) float64 {
	if st == nil || st.Count == 0 {
		return 0
	}
	return float64(st.Successes) / float64(st.Count) * 100
}
