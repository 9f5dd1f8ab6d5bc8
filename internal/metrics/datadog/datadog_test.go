package datadog

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"sqlconv/internal/metrics"
)

// fakeSubmitter captures payloads submitted by Backend.Flush().
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubmitter) last() (datadogV2.MetricPayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return datadogV2.MetricPayload{}, false
	}
	return f.payloads[len(f.payloads)-1], true
}

func quietOptions(fs *fakeSubmitter) Options {
	return Options{
		JobName:    "job1",
		FlushEvery: 24 * time.Hour,
		submitter:  fs,
		now:        func() time.Time { return time.Unix(1000, 0) },
		newTicker:  func(d time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) },
	}
}

// TestResolveEnvTag verifies environment-tag precedence and defaults.
//
// Edge cases:
//   - ENV wins over DD_ENV.
//   - Whitespace-only env vars are ignored.
//   - If neither is set, "env:unknown" is returned.
func TestResolveEnvTag(t *testing.T) {
	tests := []struct {
		name string
		env  string
		dd   string
		want string
	}{
		{name: "ENV_wins", env: "prod", dd: "stage", want: "env:prod"},
		{name: "DD_ENV_used_when_ENV_empty", env: "", dd: "stage", want: "env:stage"},
		{name: "whitespace_ignored", env: "   ", dd: "\n\t", want: "env:unknown"},
		{name: "default_unknown", env: "", dd: "", want: "env:unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ENV", tc.env)
			t.Setenv("DD_ENV", tc.dd)
			if got := resolveEnvTag(); got != tc.want {
				t.Fatalf("resolveEnvTag()=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewBackend_RequiresAPIKey(t *testing.T) {
	t.Setenv("DD_API_KEY", "")

	_, err := NewBackend(context.Background(), Options{})
	if err == nil {
		t.Fatalf("NewBackend() err=nil, want missing key error")
	}
	if !strings.Contains(err.Error(), "datadog metrics init:") {
		t.Fatalf("error prefix missing: %v", err)
	}
}

func TestWrapInitErr(t *testing.T) {
	if got := wrapInitErr(nil); got != nil {
		t.Fatalf("wrapInitErr(nil)=%v, want nil", got)
	}
	in := errors.New("boom")
	if got := wrapInitErr(in); !errors.Is(got, in) {
		t.Fatalf("wrapInitErr did not wrap original error: got=%v", got)
	}
}

func TestStepStatusKeyRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		step   string
		status string
	}{
		{name: "normal", step: "render", status: "ok"},
		{name: "empty_step", step: "", status: "ok"},
		{name: "empty_status", step: "infer", status: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			step, status := splitStepStatusKey(stepStatusKey(tc.step, tc.status))
			if step != tc.step || status != tc.status {
				t.Fatalf("roundtrip got=(%q,%q), want=(%q,%q)", step, status, tc.step, tc.status)
			}
		})
	}

	step, status := splitStepStatusKey("no-sep")
	if step != "no-sep" || status != "unknown" {
		t.Fatalf("splitStepStatusKey()=(%q,%q), want (no-sep, unknown)", step, status)
	}
}

func TestWithTags(t *testing.T) {
	base := []string{"env:test", "job:sqlconv"}
	got := withTags(base, "step:render", "status:ok")
	want := []string{"env:test", "job:sqlconv", "step:render", "status:ok"}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("withTags()=%v, want %v", got, want)
	}
	got[0] = "env:mutated"
	if base[0] == "env:mutated" {
		t.Fatalf("withTags output aliases base slice")
	}
}

func TestPercentileNearestRank(t *testing.T) {
	tests := []struct {
		name string
		s    []float64
		p    float64
		want float64
	}{
		{name: "empty", s: nil, p: 0.50, want: 0},
		{name: "single", s: []float64{7}, p: 0.95, want: 7},
		{name: "p_le_0", s: []float64{1, 2, 3}, p: -1, want: 1},
		{name: "p_ge_1", s: []float64{1, 2, 3}, p: 2, want: 3},
		{name: "median", s: []float64{1, 2, 3, 4, 5}, p: 0.50, want: 3},
		{name: "p90_small_n", s: []float64{1, 2, 3, 4, 5}, p: 0.90, want: 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := percentileNearestRank(tc.s, tc.p); got != tc.want {
				t.Fatalf("percentileNearestRank(%v,%v)=%v, want %v", tc.s, tc.p, got, tc.want)
			}
		})
	}
}

func TestAddPercentiles(t *testing.T) {
	orig := []float64{5, 1, 3, 2, 4}
	in := append([]float64(nil), orig...)

	var series []datadogV2.MetricSeries
	addPercentiles(&series, "sqlconv.step.duration_seconds", in, []string{"step:render"}, 999)

	if len(series) != 6 {
		t.Fatalf("series.len=%d, want 6", len(series))
	}
	if !reflect.DeepEqual(in, orig) {
		t.Fatalf("samples mutated: got %v, want %v", in, orig)
	}
	last := series[5]
	if last.Metric != "sqlconv.step.duration_seconds.samples" || *last.Points[0].Value != 5 {
		t.Fatalf("samples gauge=%s %v", last.Metric, *last.Points[0].Value)
	}
	if *series[4].Points[0].Value != 5 {
		t.Fatalf("max gauge=%v, want 5", *series[4].Points[0].Value)
	}

	addPercentiles(&series, "x", nil, nil, 1)
	if len(series) != 6 {
		t.Fatalf("empty samples appended series")
	}
}

func TestNewBackend_Defaults(t *testing.T) {
	fs := &fakeSubmitter{}
	opts := quietOptions(fs)
	opts.JobName = ""
	opts.FlushEvery = 0
	opts.Tags = []string{"team:data"}

	b, err := NewBackend(context.Background(), opts)
	if err != nil {
		t.Fatalf("NewBackend() err=%v, want nil", err)
	}
	defer func() { _ = b.Close() }()

	if !contains(b.baseTags, "job:sqlconv") || !contains(b.baseTags, "team:data") {
		t.Fatalf("baseTags=%v", b.baseTags)
	}
	if b.flushEvery != 60*time.Second {
		t.Fatalf("flushEvery=%s, want 60s", b.flushEvery)
	}
}

func TestFlush_SubmitsAndResets(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), quietOptions(fs))
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer func() { _ = b.Close() }()

	b.IncCounter(metrics.TablesTotal, 2, metrics.Labels{"status": "ok"})
	b.IncCounter(metrics.StatementsTotal, 3, metrics.Labels{"kind": "insert"})
	b.IncCounter(metrics.RowsTotal, 1500, nil)
	b.IncCounter(metrics.ChunksTotal, 4, nil)
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "render", "status": "ok"})
	b.ObserveHistogram(metrics.StepDurationSeconds, 0.5, metrics.Labels{"step": "render", "status": "ok"})
	b.IncCounter(metrics.HTTPRequestsTotal, 7, metrics.Labels{"status": "200"})
	b.ObserveHistogram(metrics.HTTPRequestDurationSeconds, 0.1, metrics.Labels{"status": "200"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v, want nil", err)
	}
	if fs.count() != 1 {
		t.Fatalf("submit calls=%d, want 1", fs.count())
	}
	if len(b.tableCounts) != 0 || len(b.stmtCounts) != 0 || b.rowCount != 0 || b.chunkCount != 0 || len(b.durationSamples) != 0 {
		t.Fatalf("buffers not reset after Flush")
	}

	payload, _ := fs.last()
	got := map[string]datadogV2.MetricSeries{}
	for _, s := range payload.Series {
		got[s.Metric] = s
	}
	for _, w := range []string{
		"sqlconv.tables.total",
		"sqlconv.statements.total",
		"sqlconv.rows.total",
		"sqlconv.chunks.total",
		"sqlconv.step.total",
		"sqlconv.step.duration_seconds.p50",
		"sqlconv.step.duration_seconds.samples",
		"sqlconv.http.requests.total",
		"sqlconv.http.request_duration_seconds.p99",
	} {
		if _, ok := got[w]; !ok {
			t.Fatalf("payload missing metric %q", w)
		}
	}
	rows := got["sqlconv.rows.total"]
	if *rows.Points[0].Value != 1500 || *rows.Points[0].Timestamp != 1000 {
		t.Fatalf("rows point=%v@%v", *rows.Points[0].Value, *rows.Points[0].Timestamp)
	}
	if !contains(got["sqlconv.statements.total"].Tags, "kind:insert") {
		t.Fatalf("statements tags=%v", got["sqlconv.statements.total"].Tags)
	}
}

func TestFlush_NoDataDoesNotSubmit(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), quietOptions(fs))
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer func() { _ = b.Close() }()

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v, want nil", err)
	}
	if fs.count() != 0 {
		t.Fatalf("unexpected submission count=%d, want 0", fs.count())
	}
}

func TestFlush_ReturnsSubmitError(t *testing.T) {
	fs := &fakeSubmitter{err: errors.New("intake down")}
	b, err := NewBackend(context.Background(), quietOptions(fs))
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer func() { _ = b.Close() }()

	b.IncCounter(metrics.RowsTotal, 1, nil)
	if err := b.Flush(); err == nil {
		t.Fatalf("Flush() err=nil, want submit error")
	}
	if b.rowCount != 0 {
		t.Fatalf("buffers must reset even when submission fails")
	}
}

func TestLoopAndClose(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), Options{
		JobName:    "job1",
		FlushEvery: 5 * time.Millisecond,
		submitter:  fs,
		now:        func() time.Time { return time.Unix(2000, 0) },
	})
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}

	b.IncCounter(metrics.ChunksTotal, 1, nil)

	deadline := time.Now().Add(250 * time.Millisecond)
	for time.Now().Before(deadline) && fs.count() < 1 {
		time.Sleep(2 * time.Millisecond)
	}
	if fs.count() < 1 {
		_ = b.Close()
		t.Fatalf("expected at least one background Flush submission; got %d", fs.count())
	}

	b.IncCounter(metrics.ChunksTotal, 1, nil)
	if err := b.Close(); err != nil {
		t.Fatalf("Close() err=%v, want nil", err)
	}
	if fs.count() < 2 {
		t.Fatalf("expected at least 2 submissions after Close; got %d", fs.count())
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close() err=%v, want nil", err)
	}
}

func TestBackend_ConcurrentAccess(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), quietOptions(fs))
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer func() { _ = b.Close() }()

	workers := runtime.GOMAXPROCS(0) * 4
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				b.IncCounter(metrics.RowsTotal, 1, nil)
				b.IncCounter(metrics.TablesTotal, 1, metrics.Labels{"status": "ok"})
				b.ObserveHistogram(metrics.StepDurationSeconds, 0.01, metrics.Labels{"step": "infer", "status": "ok"})
			}
		}()
	}
	wg.Wait()

	if b.rowCount != float64(workers*1000) {
		t.Fatalf("rowCount=%v, want %d", b.rowCount, workers*1000)
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v, want nil", err)
	}
}

func TestIncCounterAndObserveHistogram_EdgeCases(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), quietOptions(fs))
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer func() { _ = b.Close() }()

	b.IncCounter(metrics.RowsTotal, 0, nil)
	b.IncCounter(metrics.StatementsTotal, 1, metrics.Labels{})
	b.IncCounter("unknown_total", 1, metrics.Labels{"x": "y"})
	b.ObserveHistogram(metrics.StepDurationSeconds, -1, metrics.Labels{"step": "infer", "status": "ok"})
	b.IncCounter(metrics.TablesTotal, 1, metrics.Labels{})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v, want nil", err)
	}
	payload, ok := fs.last()
	if !ok {
		t.Fatalf("missing payload")
	}
	if len(payload.Series) != 1 {
		t.Fatalf("series=%d, want only the tables counter", len(payload.Series))
	}
	if s := payload.Series[0]; s.Metric != "sqlconv.tables.total" || !contains(s.Tags, "status:unknown") {
		t.Fatalf("series=%s tags=%v", s.Metric, s.Tags)
	}
}

func contains[T comparable](xs []T, v T) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func TestParseTagsCSV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty_returns_nil", in: "", want: nil},
		{name: "trims_and_skips_empty_segments", in: " env:prod , ,team:data,  ", want: []string{"env:prod", "team:data"}},
		{name: "single_tag", in: "team:data", want: []string{"team:data"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ParseTagsCSV(tc.in); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ParseTagsCSV(%q)=%v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
