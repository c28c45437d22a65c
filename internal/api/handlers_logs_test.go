// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/grepwise/grepwise/internal/buffer"
	"github.com/grepwise/grepwise/internal/bus"
	"github.com/grepwise/grepwise/internal/config"
	"github.com/grepwise/grepwise/internal/index"
	"github.com/grepwise/grepwise/internal/models"
	"github.com/grepwise/grepwise/internal/search"
	"github.com/grepwise/grepwise/internal/spl"
)

type fakeSearch struct {
	result  *search.Result
	buckets []search.HistogramBucket
	slots   map[int64]int
	err     error

	lastReq      search.Request
	lastInterval time.Duration
}

func (f *fakeSearch) Search(_ context.Context, req search.Request) (*search.Result, error) {
	f.lastReq = req
	return f.result, f.err
}

func (f *fakeSearch) Histogram(_ context.Context, query string, rng spl.TimeRange, interval time.Duration) ([]search.HistogramBucket, error) {
	f.lastReq = search.Request{Query: query, Range: rng}
	f.lastInterval = interval
	return f.buckets, f.err
}

func (f *fakeSearch) TimeAggregation(_ context.Context, query string, rng spl.TimeRange, slots int) (map[int64]int, error) {
	f.lastReq = search.Request{Query: query, Range: rng, Limit: slots}
	return f.slots, f.err
}

func (f *fakeSearch) CacheStats() search.CacheStats { return search.CacheStats{} }

type fakeIngestBuffer struct {
	events   []*models.LogEvent
	capacity int
	healthy  bool
}

func (f *fakeIngestBuffer) Enqueue(_ context.Context, ev *models.LogEvent) error {
	if f.capacity > 0 && len(f.events) >= f.capacity {
		return buffer.ErrBufferFull
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeIngestBuffer) Healthy() bool        { return f.healthy }
func (f *fakeIngestBuffer) Utilization() float64 { return 0.1 }
func (f *fakeIngestBuffer) Size() int            { return len(f.events) }

type fakePartitions struct {
	metas []index.Meta
}

func (f *fakePartitions) Partitions() []index.Meta { return f.metas }

type envelope struct {
	Status string           `json:"status"`
	Data   json.RawMessage  `json:"data"`
	Error  *models.APIError `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v\nbody: %s", err, rec.Body.String())
	}
	return env
}

type fixture struct {
	search *fakeSearch
	buffer *fakeIngestBuffer
	events *bus.Bus
	router http.Handler
}

func newFixture(t *testing.T, push config.HTTPPushConfig) *fixture {
	t.Helper()
	fs := &fakeSearch{result: &search.Result{}}
	fb := &fakeIngestBuffer{healthy: true}
	b := bus.New()
	t.Cleanup(b.Close)

	handler := NewHandler(fs, nil, fb, &fakePartitions{}, b, push)
	router := NewRouter(handler, config.ServerConfig{
		Timeout:           5 * time.Second,
		RateLimitDisabled: true,
		CORSOrigins:       []string{"*"},
	}).Setup()
	return &fixture{search: fs, buffer: fb, events: b, router: router}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestSearchLogsReturnsEvents(t *testing.T) {
	f := newFixture(t, config.HTTPPushConfig{})
	ev := models.NewLogEvent("app", "ERROR", "boom", "boom")
	f.search.result = &search.Result{Events: []*models.LogEvent{ev}}

	rec := f.do(http.MethodGet, "/api/logs/search?query=error&timeRange=1h", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	var events []*models.LogEvent
	if err := json.Unmarshal(env.Data, &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) != 1 || events[0].Message != "boom" {
		t.Fatalf("events = %+v", events)
	}
	if f.search.lastReq.Query != "error" {
		t.Errorf("query = %q", f.search.lastReq.Query)
	}
	window := f.search.lastReq.Range.End.Sub(f.search.lastReq.Range.Start)
	if window != time.Hour {
		t.Errorf("range window = %v, want 1h", window)
	}
}

func TestSearchLogsRegexFlagWrapsQuery(t *testing.T) {
	f := newFixture(t, config.HTTPPushConfig{})
	rec := f.do(http.MethodGet, "/api/logs/search?query=status%3D5..&isRegex=true&timeRange=1h", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.search.lastReq.Query != "/status=5../" {
		t.Errorf("query = %q, want regex atom", f.search.lastReq.Query)
	}
}

func TestSearchLogsRejectsBadTimeRange(t *testing.T) {
	f := newFixture(t, config.HTTPPushConfig{})
	rec := f.do(http.MethodGet, "/api/logs/search?query=x&timeRange=7d", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("error envelope = %+v", env.Error)
	}
}

func TestSearchLogsMapsSyntaxErrors(t *testing.T) {
	f := newFixture(t, config.HTTPPushConfig{})
	f.search.err = &spl.SyntaxError{Position: 3, Expected: "value"}
	rec := f.do(http.MethodGet, "/api/logs/search?query=level%3D&timeRange=1h", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSearchLogsCustomRange(t *testing.T) {
	f := newFixture(t, config.HTTPPushConfig{})
	rec := f.do(http.MethodGet,
		"/api/logs/search?query=x&timeRange=custom&startTime=2026-08-20T00:00:00Z&endTime=2026-08-20T06:00:00Z", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	want := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	if !f.search.lastReq.Range.Start.Equal(want) {
		t.Errorf("start = %v, want %v", f.search.lastReq.Range.Start, want)
	}
}

func TestHistogramRejectsUnknownInterval(t *testing.T) {
	f := newFixture(t, config.HTTPPushConfig{})
	rec := f.do(http.MethodGet, "/api/logs/histogram?query=x&from=2026-08-20T00:00:00Z&to=2026-08-20T01:00:00Z&interval=2m", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHistogramPassesInterval(t *testing.T) {
	f := newFixture(t, config.HTTPPushConfig{})
	f.search.buckets = []search.HistogramBucket{{Count: 4}}
	rec := f.do(http.MethodGet, "/api/logs/histogram?query=x&from=2026-08-20T00:00:00Z&to=2026-08-20T01:00:00Z&interval=15m", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if f.search.lastInterval != 15*time.Minute {
		t.Errorf("interval = %v, want 15m", f.search.lastInterval)
	}
}

func TestPushAcceptsJSONArray(t *testing.T) {
	f := newFixture(t, config.HTTPPushConfig{Enabled: true})
	body := `[{"message":"a","level":"warn"},{"message":"b","timestamp":"2026-08-20T10:00:00Z"}]`

	rec := f.do(http.MethodPost, "/api/logs/http-push/my-service", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	var out map[string]int
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if out["accepted"] != 2 {
		t.Errorf("accepted = %d, want 2", out["accepted"])
	}
	if len(f.buffer.events) != 2 {
		t.Fatalf("buffered %d events", len(f.buffer.events))
	}
	if f.buffer.events[0].Source != "my-service" || f.buffer.events[0].Level != "WARN" {
		t.Errorf("first event = %+v", f.buffer.events[0])
	}
	want := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	if !f.buffer.events[1].RecordTime.Equal(want) {
		t.Errorf("recordTime = %v", f.buffer.events[1].RecordTime)
	}
}

func TestPushAcceptsNDJSONAndRawLines(t *testing.T) {
	f := newFixture(t, config.HTTPPushConfig{Enabled: true})
	body := "{\"message\":\"structured\"}\n2026-08-20T10:00:00Z ERROR raw line\n"

	rec := f.do(http.MethodPost, "/api/logs/http-push/svc", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(f.buffer.events) != 2 {
		t.Fatalf("buffered %d events", len(f.buffer.events))
	}
	if f.buffer.events[1].Level != "ERROR" {
		t.Errorf("raw line level = %s", f.buffer.events[1].Level)
	}
}

func TestPushRequiresBearerToken(t *testing.T) {
	f := newFixture(t, config.HTTPPushConfig{Enabled: true, RequireAuth: true, AuthToken: "secret"})

	rec := f.do(http.MethodPost, "/api/logs/http-push/svc", `[{"message":"x"}]`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/logs/http-push/svc", strings.NewReader(`[{"message":"x"}]`))
	req.Header.Set("Authorization", "Bearer secret")
	ok := httptest.NewRecorder()
	f.router.ServeHTTP(ok, req)
	if ok.Code != http.StatusOK {
		t.Fatalf("status with token = %d, body %s", ok.Code, ok.Body.String())
	}
}

func TestPushFullBufferReturns429(t *testing.T) {
	f := newFixture(t, config.HTTPPushConfig{Enabled: true})
	f.buffer.capacity = 1

	rec := f.do(http.MethodPost, "/api/logs/http-push/svc", `[{"message":"a"},{"message":"b"}]`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	var out map[string]int
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if out["accepted"] != 1 {
		t.Errorf("accepted = %d, want 1", out["accepted"])
	}
}

func TestPushDisabledReturns404(t *testing.T) {
	f := newFixture(t, config.HTTPPushConfig{Enabled: false})
	rec := f.do(http.MethodPost, "/api/logs/http-push/svc", `[{"message":"x"}]`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHealthReportsBufferState(t *testing.T) {
	f := newFixture(t, config.HTTPPushConfig{})
	rec := f.do(http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	f.buffer.healthy = false
	degraded := f.do(http.MethodGet, "/api/health", "")
	if degraded.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d, want 503", degraded.Code)
	}
}
