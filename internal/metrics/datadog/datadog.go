// Package datadog implements a Datadog backend for the internal/metrics package.
//
// Samples are buffered in memory and submitted on a ticker (default once per
// minute) plus one final Flush on Close, so a long batch conversion shows up
// as a time series rather than a single spike at exit. Flush snapshots and
// resets the buffers under the lock and submits outside it.
//
// If the process is killed with SIGKILL/OOM, Close() won't run and the tail
// of the buffer is lost.
package datadog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"sqlconv/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric.
	// If empty, defaults to "sqlconv".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod", "team:data"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams; production code never sets them.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the subset of *datadogV2.MetricsApi the backend needs,
// so tests can capture payloads without HTTP.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	closeOnce  sync.Once

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	tableCounts     map[string]float64 // status -> count
	stmtCounts      map[string]float64 // kind -> count
	rowCount        float64
	chunkCount      float64
	stepCounts      map[string]float64 // step\x00status -> count
	durationSamples map[string][]float64

	httpReqCounts map[string]float64 // status -> count
	httpReqDur    map[string][]float64
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the background flush loop and performs one final Flush().
// Later calls only flush.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
	})
	return b.Flush()
}

// NewBackend constructs a Datadog backend using the official client and
// starts its flush loop.
//
// Edge cases:
//   - If opts.FlushEvery <= 0, defaults to 60s.
//   - If opts.JobName is empty, defaults to "sqlconv".
//   - Environment tag selection uses ENV then DD_ENV, otherwise env:unknown.
//
// Errors:
//   - Returns an error when DD_API_KEY is not set; the caller decides whether
//     to run without metrics. Network errors surface from Flush().
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	if opts.submitter == nil && strings.TrimSpace(os.Getenv("DD_API_KEY")) == "" {
		return nil, wrapInitErr(errors.New("DD_API_KEY is not set"))
	}

	job := opts.JobName
	if job == "" {
		job = "sqlconv"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),

		baseTags: baseTags,

		now:       nowFn,
		newTicker: newTicker,

		tableCounts:     make(map[string]float64),
		stmtCounts:      make(map[string]float64),
		stepCounts:      make(map[string]float64),
		durationSamples: make(map[string][]float64),

		httpReqCounts: make(map[string]float64),
		httpReqDur:    make(map[string][]float64),
	}

	go b.loop()
	return b, nil
}

func labelOr(labels metrics.Labels, key, def string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return def
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.TablesTotal:
		b.tableCounts[labelOr(labels, "status", "unknown")] += delta

	case metrics.StatementsTotal:
		kind := labels["kind"]
		if kind == "" {
			return
		}
		b.stmtCounts[kind] += delta

	case metrics.RowsTotal:
		b.rowCount += delta

	case metrics.ChunksTotal:
		b.chunkCount += delta

	case metrics.StepTotal:
		b.stepCounts[stepStatusKey(labels["step"], labels["status"])] += delta

	case metrics.HTTPRequestsTotal:
		b.httpReqCounts[labelOr(labels, "status", "unknown")] += delta
	}
}

// ObserveHistogram implements metrics.Backend. Unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.StepDurationSeconds:
		k := stepStatusKey(labels["step"], labels["status"])
		b.durationSamples[k] = append(b.durationSamples[k], value)

	case metrics.HTTPRequestDurationSeconds:
		status := labelOr(labels, "status", "unknown")
		b.httpReqDur[status] = append(b.httpReqDur[status], value)
	}
}

// snapshot is the detached buffer state of one flush window.
type snapshot struct {
	tableCounts     map[string]float64
	stmtCounts      map[string]float64
	rowCount        float64
	chunkCount      float64
	stepCounts      map[string]float64
	durationSamples map[string][]float64

	httpReqCounts map[string]float64
	httpReqDur    map[string][]float64
}

// snapshotAndReset takes the lock, detaches the buffers and installs fresh
// ones.
func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		tableCounts:     b.tableCounts,
		stmtCounts:      b.stmtCounts,
		rowCount:        b.rowCount,
		chunkCount:      b.chunkCount,
		stepCounts:      b.stepCounts,
		durationSamples: b.durationSamples,
		httpReqCounts:   b.httpReqCounts,
		httpReqDur:      b.httpReqDur,
	}

	b.tableCounts = make(map[string]float64)
	b.stmtCounts = make(map[string]float64)
	b.rowCount = 0
	b.chunkCount = 0
	b.stepCounts = make(map[string]float64)
	b.durationSamples = make(map[string][]float64)
	b.httpReqCounts = make(map[string]float64)
	b.httpReqDur = make(map[string][]float64)

	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.tableCounts) == 0 &&
		len(s.stmtCounts) == 0 &&
		s.rowCount == 0 &&
		s.chunkCount == 0 &&
		len(s.stepCounts) == 0 &&
		len(s.durationSamples) == 0 &&
		len(s.httpReqCounts) == 0 &&
		len(s.httpReqDur) == 0
}

// Flush submits buffered metrics to Datadog and resets local buffers.
//
// Errors:
//   - Returns any error from Datadog submission.
//   - Returns nil if there is nothing to submit.
//
// Edge cases:
//   - Safe to call concurrently with IncCounter/ObserveHistogram.
//   - Buffers are reset even if submission fails; delivery is at most once.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	series := b.buildSeries(snap, b.now().Unix())
	payload := datadogV2.MetricPayload{Series: series}

	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries turns a snapshot into Datadog series at a fixed timestamp.
// Series names and tags are an operational contract for dashboards.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.tableCounts)+len(s.stmtCounts)+len(s.stepCounts)+16)

	for _, status := range sortedKeys(s.tableCounts) {
		if v := s.tableCounts[status]; v != 0 {
			series = append(series, countSeries("sqlconv.tables.total", v, withTags(b.baseTags, "status:"+status), nowUnix))
		}
	}
	for _, kind := range sortedKeys(s.stmtCounts) {
		if v := s.stmtCounts[kind]; v != 0 {
			series = append(series, countSeries("sqlconv.statements.total", v, withTags(b.baseTags, "kind:"+kind), nowUnix))
		}
	}
	if s.rowCount != 0 {
		series = append(series, countSeries("sqlconv.rows.total", s.rowCount, b.baseTags, nowUnix))
	}
	if s.chunkCount != 0 {
		series = append(series, countSeries("sqlconv.chunks.total", s.chunkCount, b.baseTags, nowUnix))
	}
	for _, k := range sortedKeys(s.stepCounts) {
		if v := s.stepCounts[k]; v != 0 {
			step, status := splitStepStatusKey(k)
			series = append(series, countSeries("sqlconv.step.total", v, withTags(b.baseTags, "step:"+step, "status:"+status), nowUnix))
		}
	}
	for _, k := range sortedKeys(s.durationSamples) {
		step, status := splitStepStatusKey(k)
		addPercentiles(&series, "sqlconv.step.duration_seconds", s.durationSamples[k], withTags(b.baseTags, "step:"+step, "status:"+status), nowUnix)
	}

	for _, status := range sortedKeys(s.httpReqCounts) {
		if v := s.httpReqCounts[status]; v != 0 {
			series = append(series, countSeries("sqlconv.http.requests.total", v, withTags(b.baseTags, "status:"+status), nowUnix))
		}
	}
	for _, status := range sortedKeys(s.httpReqDur) {
		addPercentiles(&series, "sqlconv.http.request_duration_seconds", s.httpReqDur[status], withTags(b.baseTags, "status:"+status), nowUnix)
	}

	return series
}

// addPercentiles appends p50/p90/p95/p99/max/samples gauges for samples.
// It sorts a copy; samples is not mutated. Empty input appends nothing.
func addPercentiles(series *[]datadogV2.MetricSeries, metricPrefix string, samples []float64, tags []string, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	*series = append(*series,
		gaugeSeries(metricPrefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix),
		gaugeSeries(metricPrefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix),
		gaugeSeries(metricPrefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix),
		gaugeSeries(metricPrefix+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix),
		gaugeSeries(metricPrefix+".max", cp[len(cp)-1], tags, nowUnix),
		gaugeSeries(metricPrefix+".samples", float64(len(cp)), tags, nowUnix),
	)
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func stepStatusKey(step, status string) string {
	return step + "\x00" + status
}

func splitStepStatusKey(k string) (step, status string) {
	parts := strings.SplitN(k, "\x00", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return k, "unknown"
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)
var _ metrics.Flusher = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,team:data".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// wrapInitErr prefixes backend construction failures.
func wrapInitErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("datadog metrics init: %w", err)
}
