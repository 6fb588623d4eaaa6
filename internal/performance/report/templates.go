package report

// htmlTemplate is the single-page report. Charts load Chart.js from a CDN; the
// tables render without it.
const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Name}} - Load Test Report</title>
    <script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
    <style>
        :root {
            --bg: #f8fafc;
            --card: #ffffff;
            --text: #1e293b;
            --muted: #64748b;
            --border: #e2e8f0;
            --primary: #3b82f6;
            --success: #22c55e;
            --warning: #f59e0b;
            --error: #ef4444;
        }
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: var(--bg);
            color: var(--text);
            line-height: 1.5;
        }
        .container { max-width: 1300px; margin: 0 auto; padding: 2rem; }
        .card {
            background: var(--card);
            border: 1px solid var(--border);
            border-radius: 10px;
            padding: 1.5rem;
            margin-bottom: 1.5rem;
        }
        .header { display: flex; justify-content: space-between; align-items: center; flex-wrap: wrap; gap: 1rem; }
        .header h1 { font-size: 1.6rem; }
        .meta { color: var(--muted); font-size: 0.9rem; }
        .meta span { margin-right: 1.25rem; }
        .status { font-weight: 700; padding: 0.5rem 1.25rem; border-radius: 999px; color: #fff; }
        .status.pass { background: var(--success); }
        .status.fail { background: var(--error); }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(170px, 1fr)); gap: 1rem; }
        .metric .label { color: var(--muted); font-size: 0.8rem; text-transform: uppercase; }
        .metric .value { font-size: 1.5rem; font-weight: 700; }
        .metric .unit { font-size: 0.85rem; color: var(--muted); margin-left: 0.25rem; }
        h2 { font-size: 1.15rem; margin-bottom: 1rem; }
        table { width: 100%; border-collapse: collapse; font-size: 0.9rem; }
        th, td { padding: 0.5rem 0.75rem; border-bottom: 1px solid var(--border); text-align: right; }
        th:first-child, td:first-child { text-align: left; }
        th { color: var(--muted); font-weight: 600; }
        tr.overall td { font-weight: 700; }
        .charts { display: grid; grid-template-columns: repeat(auto-fit, minmax(480px, 1fr)); gap: 1.5rem; }
        .chart { position: relative; height: 280px; }
        .threshold { display: flex; gap: 0.75rem; padding: 0.5rem 0; border-bottom: 1px solid var(--border); }
        .threshold .icon.pass { color: var(--success); }
        .threshold .icon.fail { color: var(--error); }
        .threshold .msg { color: var(--error); font-size: 0.8rem; }
        .warning { color: var(--warning); }
        .footer { text-align: center; color: var(--muted); font-size: 0.8rem; padding: 1rem; }
    </style>
</head>
<body>
<div class="container">
    <div class="card header">
        <div>
            <h1>{{.Name}}</h1>
            {{if .Description}}<p>{{.Description}}</p>{{end}}
            <div class="meta">
                <span>{{.StartTime.Format "2006-01-02 15:04:05"}}</span>
                <span>{{formatDuration .Duration}}</span>
                <span>{{.Protocol}} &rarr; {{.Target}}</span>
                {{if .Model}}<span>model {{.Model}}</span>{{end}}
                <span>{{.Executor}}: {{.Timeline}}</span>
            </div>
        </div>
        <div class="status {{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}PASSED{{else}}FAILED{{end}}</div>
    </div>

    <div class="card grid">
        <div class="metric"><div class="label">Requests</div><div class="value">{{formatNumber .Overall.Count}}</div></div>
        <div class="metric"><div class="label">Throughput</div><div class="value">{{printf "%.1f" .Overall.RPS}}<span class="unit">req/s</span></div></div>
        <div class="metric"><div class="label">Success</div><div class="value">{{printf "%.2f" (successRate .Overall)}}<span class="unit">%</span></div></div>
        <div class="metric"><div class="label">Median</div><div class="value">{{formatLatency .Overall.Median}}</div></div>
        <div class="metric"><div class="label">P95</div><div class="value">{{formatLatency .Overall.P95}}</div></div>
        <div class="metric"><div class="label">P99</div><div class="value">{{formatLatency .Overall.P99}}</div></div>
        <div class="metric"><div class="label">Received</div><div class="value">{{formatBytes .Overall.Bytes}}</div></div>
        {{if .Overall.Usage.TotalTokens}}
        <div class="metric"><div class="label">Output tokens/s</div><div class="value">{{printf "%.1f" .Overall.OutputTokensPerSec}}</div></div>
        {{end}}
        <div class="metric"><div class="label">VUs spawned</div><div class="value">{{.Spawned}}</div></div>
    </div>

    <div class="card">
        <h2>Latency by Concurrency</h2>
        <table>
            <thead>
            <tr>
                <th>Tag</th><th>Requests</th><th>Failed</th><th>Error %</th><th>RPS</th>
                <th>Min</th><th>Avg</th>
                {{range .Percentiles}}<th>{{percentileKey .}}</th>{{end}}
                <th>Max</th><th>TTFB p50</th>
            </tr>
            </thead>
            <tbody>
            {{$ps := .Percentiles}}
            {{range .Tags}}
            <tr>
                <td>{{.Tag}}</td>
                <td>{{formatNumber .Count}}</td>
                <td>{{formatNumber .Failures}}</td>
                <td>{{printf "%.2f" (mul .ErrorRate 100)}}</td>
                <td>{{printf "%.2f" .RPS}}</td>
                <td>{{formatLatency .Min}}</td>
                <td>{{formatLatency .Mean}}</td>
                {{$st := .AggregateStats}}
                {{range $ps}}<td>{{formatLatency (percentile $st .)}}</td>{{end}}
                <td>{{formatLatency .Max}}</td>
                <td>{{formatLatency .TTFBP50}}</td>
            </tr>
            {{end}}
            <tr class="overall">
                <td>overall</td>
                <td>{{formatNumber .Overall.Count}}</td>
                <td>{{formatNumber .Overall.Failures}}</td>
                <td>{{printf "%.2f" (mul .Overall.ErrorRate 100)}}</td>
                <td>{{printf "%.2f" .Overall.RPS}}</td>
                <td>{{formatLatency .Overall.Min}}</td>
                <td>{{formatLatency .Overall.Mean}}</td>
                {{$ov := .Overall}}
                {{range $ps}}<td>{{formatLatency (percentile $ov .)}}</td>{{end}}
                <td>{{formatLatency .Overall.Max}}</td>
                <td>{{formatLatency .Overall.TTFBP50}}</td>
            </tr>
            </tbody>
        </table>
    </div>

    <div class="card">
        <h2>Charts</h2>
        <div class="charts">
            <div class="chart"><canvas id="tagChart"></canvas></div>
            {{if .TimeSeries}}
            <div class="chart"><canvas id="rpsChart"></canvas></div>
            <div class="chart"><canvas id="latencyChart"></canvas></div>
            <div class="chart"><canvas id="vusChart"></canvas></div>
            {{end}}
        </div>
    </div>

    {{if .Overall.FailuresByReason}}
    <div class="card">
        <h2>Failures</h2>
        <table>
            <thead><tr><th>Reason</th><th>Count</th></tr></thead>
            <tbody>
            {{range $reason, $n := .Overall.FailuresByReason}}<tr><td>{{$reason}}</td><td>{{formatNumber $n}}</td></tr>{{end}}
            {{range $check, $n := .Overall.FailuresByCheck}}<tr><td>check: {{$check}}</td><td>{{formatNumber $n}}</td></tr>{{end}}
            </tbody>
        </table>
    </div>
    {{end}}

    {{if .Thresholds}}
    <div class="card">
        <h2>Thresholds</h2>
        {{range .Thresholds}}
        <div class="threshold">
            <span class="icon {{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}&#10003;{{else}}&#10007;{{end}}</span>
            <span>{{.Metric}} <code>{{.Expression}}</code></span>
            <span>actual: {{.Value}}</span>
            {{if .Message}}<span class="msg">{{.Message}}</span>{{end}}
        </div>
        {{end}}
    </div>
    {{end}}

    {{if .Warnings}}
    <div class="card">
        <h2>Warnings</h2>
        {{range .Warnings}}<p class="warning">{{.}}</p>{{end}}
    </div>
    {{end}}

    <div class="footer">run {{.RunID}} &bull; generated {{.EndTime.Format "2006-01-02 15:04:05 MST"}}</div>
</div>
<script>
    const timeSeriesData = {{.TimeSeriesJSON}};
    const tagData = {{.TagChartJSON}};

    function line(id, label, datasets, yTitle) {
        const el = document.getElementById(id);
        if (!el || typeof Chart === 'undefined') return;
        new Chart(el.getContext('2d'), {
            type: 'line',
            data: { labels: timeSeriesData.map((d, i) => i + 's'), datasets: datasets },
            options: {
                responsive: true,
                maintainAspectRatio: false,
                interaction: { mode: 'index', intersect: false },
                plugins: { title: { display: true, text: label } },
                scales: { y: { beginAtZero: true, title: { display: !!yTitle, text: yTitle } } },
                elements: { point: { radius: 0 }, line: { tension: 0.3, borderWidth: 2 } }
            }
        });
    }

    if (typeof Chart !== 'undefined' && tagData.length) {
        new Chart(document.getElementById('tagChart').getContext('2d'), {
            type: 'bar',
            data: {
                labels: tagData.map(d => d.tag),
                datasets: [
                    { label: 'p50', data: tagData.map(d => d.p50Ms), backgroundColor: '#22c55e' },
                    { label: 'p95', data: tagData.map(d => d.p95Ms), backgroundColor: '#f59e0b' },
                    { label: 'p99', data: tagData.map(d => d.p99Ms), backgroundColor: '#ef4444' }
                ]
            },
            options: {
                responsive: true,
                maintainAspectRatio: false,
                plugins: { title: { display: true, text: 'Latency by concurrency (ms)' } },
                scales: { y: { beginAtZero: true } }
            }
        });
    }

    line('rpsChart', 'Requests/sec', [
        { label: 'RPS', data: timeSeriesData.map(d => d.intervalRPS), borderColor: '#3b82f6' }
    ]);
    line('latencyChart', 'Latency', [
        { label: 'p50', data: timeSeriesData.map(d => d.latencyP50Ms), borderColor: '#22c55e' },
        { label: 'p95', data: timeSeriesData.map(d => d.latencyP95Ms), borderColor: '#f59e0b' },
        { label: 'p99', data: timeSeriesData.map(d => d.latencyP99Ms), borderColor: '#ef4444' }
    ], 'ms');
    line('vusChart', 'Active VUs', [
        { label: 'VUs', data: timeSeriesData.map(d => d.activeVUs), borderColor: '#8b5cf6', stepped: true }
    ]);
</script>
</body>
</html>
`
