// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

// Package search runs compiled queries against the partition manager,
// caching results and collapsing concurrent identical searches into one
// execution.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/grepwise/grepwise/internal/bus"
	"github.com/grepwise/grepwise/internal/logging"
	"github.com/grepwise/grepwise/internal/metrics"
	"github.com/grepwise/grepwise/internal/models"
	"github.com/grepwise/grepwise/internal/spl"
)

// DefaultLimit caps plain searches that carry no explicit limit.
const DefaultLimit = 1000

// ErrUnboundedRange is returned by aggregations that need a concrete
// time window.
var ErrUnboundedRange = errors.New("search: time range must be bounded")

// Store is the index fan-out surface. limit <= 0 materializes every
// match.
type Store interface {
	Search(ctx context.Context, pred spl.Predicate, rng spl.TimeRange, limit int) ([]*models.LogEvent, error)
}

// Request is one search invocation.
type Request struct {
	Query string
	Range spl.TimeRange
	Limit int
}

// Result is a completed search. Events is set for plain searches and
// streaming pipelines; Rows is set when the pipeline produced tabular
// output.
type Result struct {
	Events []*models.LogEvent `json:"events,omitempty"`
	Rows   []spl.Row          `json:"rows,omitempty"`
}

// Clone returns a copy safe to hand to a caller. Events are immutable
// once indexed, so the slice is copied shallowly; rows are maps and get
// copied deep.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := &Result{}
	if r.Events != nil {
		out.Events = make([]*models.LogEvent, len(r.Events))
		copy(out.Events, r.Events)
	}
	if r.Rows != nil {
		out.Rows = make([]spl.Row, len(r.Rows))
		for i, row := range r.Rows {
			cp := make(spl.Row, len(row))
			for k, v := range row {
				cp[k] = v
			}
			out.Rows[i] = cp
		}
	}
	return out
}

// Executor is the search front door.
type Executor struct {
	store  Store
	cache  *Cache
	events *bus.Bus
	group  singleflight.Group
	now    func() time.Time
}

// NewExecutor wires the executor. events may be nil.
func NewExecutor(store Store, cache *Cache, events *bus.Bus) *Executor {
	return &Executor{store: store, cache: cache, events: events, now: time.Now}
}

// Search compiles and executes one query. Identical concurrent requests
// share a single execution; the shared run survives caller cancellation
// so the remaining waiters still get their result.
func (e *Executor) Search(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	result, err := e.search(ctx, req)
	metrics.RecordSearch("search", time.Since(start), err)
	return result, err
}

func (e *Executor) search(ctx context.Context, req Request) (*Result, error) {
	compiled, err := spl.Compile(req.Query, req.Range, e.now())
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	fp := fingerprint(compiled, limit)
	if cached := e.cache.Get(fp); cached != nil {
		return cached.Clone(), nil
	}

	leaderCtx := context.WithoutCancel(ctx)
	v, err, _ := e.group.Do(fp, func() (any, error) {
		result, err := e.execute(leaderCtx, compiled, limit)
		if err != nil {
			return nil, err
		}
		e.cache.Put(fp, result)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return v.(*Result).Clone(), nil
}

func (e *Executor) execute(ctx context.Context, compiled *spl.CompiledQuery, limit int) (*Result, error) {
	fetchLimit := limit
	if compiled.NeedsFullMaterialization() {
		fetchLimit = 0
	}
	events, err := e.store.Search(ctx, compiled.Predicate, compiled.Range, fetchLimit)
	if err != nil {
		return nil, err
	}
	if e.events != nil {
		for _, ev := range events {
			e.events.Publish(bus.TopicLogsMatched, ev)
		}
	}

	if len(compiled.Pipeline) == 0 {
		return &Result{Events: events}, nil
	}

	rows := make([]spl.Row, len(events))
	for i, ev := range events {
		rows[i] = rowFromEvent(ev)
	}
	rows, err = spl.ExecutePipeline(rows, compiled.Pipeline)
	if err != nil {
		return nil, err
	}
	logging.Debug().
		Str("query", compiled.Canonical).
		Int("matched", len(events)).
		Int("rows", len(rows)).
		Msg("pipeline executed")
	return &Result{Rows: rows}, nil
}

// fingerprint identifies one computation: canonical query text, resolved
// time bounds, and the result limit.
func fingerprint(q *spl.CompiledQuery, limit int) string {
	return fmt.Sprintf("%s\x00%d\x00%d\x00%d",
		q.Canonical, q.Range.Start.UnixMilli(), q.Range.End.UnixMilli(), limit)
}

// rowFromEvent flattens an event for the pipeline stages. Metadata never
// shadows the built-in columns.
func rowFromEvent(ev *models.LogEvent) spl.Row {
	row := spl.Row{
		"id":        ev.ID,
		"timestamp": ev.EffectiveTime(),
		"level":     ev.Level,
		"source":    ev.Source,
		"message":   ev.Message,
		"_raw":      ev.RawContent,
	}
	for k, v := range ev.Metadata {
		if _, taken := row[k]; !taken {
			row[k] = v
		}
	}
	return row
}

// HistogramBucket is one interval of the search histogram.
type HistogramBucket struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
}

// Histogram counts matches per interval across the range. The range must
// be bounded; empty intervals are zero-filled.
func (e *Executor) Histogram(ctx context.Context, query string, rng spl.TimeRange, interval time.Duration) ([]HistogramBucket, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("search: invalid histogram interval %v", interval)
	}
	start := time.Now()
	buckets, err := e.histogram(ctx, query, rng, interval)
	metrics.RecordSearch("histogram", time.Since(start), err)
	return buckets, err
}

func (e *Executor) histogram(ctx context.Context, query string, rng spl.TimeRange, interval time.Duration) ([]HistogramBucket, error) {
	if rng.Start.IsZero() || rng.End.IsZero() {
		return nil, ErrUnboundedRange
	}
	compiled, err := spl.Compile(query, rng, e.now())
	if err != nil {
		return nil, err
	}
	events, err := e.store.Search(ctx, compiled.Predicate, compiled.Range, 0)
	if err != nil {
		return nil, err
	}

	counts := make(map[time.Time]int)
	for _, ev := range events {
		counts[ev.EffectiveTime().Truncate(interval)]++
	}
	var out []HistogramBucket
	for t := rng.Start.Truncate(interval); t.Before(rng.End); t = t.Add(interval) {
		out = append(out, HistogramBucket{Timestamp: t, Count: counts[t]})
	}
	return out, nil
}

// TimeAggregation counts matches per slot, the range divided into slots
// equal spans, keyed by slot start in epoch milliseconds.
func (e *Executor) TimeAggregation(ctx context.Context, query string, rng spl.TimeRange, slots int) (map[int64]int, error) {
	if slots <= 0 {
		return nil, fmt.Errorf("search: invalid slot count %d", slots)
	}
	if rng.Start.IsZero() || rng.End.IsZero() || !rng.End.After(rng.Start) {
		return nil, ErrUnboundedRange
	}
	compiled, err := spl.Compile(query, rng, e.now())
	if err != nil {
		return nil, err
	}
	events, err := e.store.Search(ctx, compiled.Predicate, compiled.Range, 0)
	if err != nil {
		return nil, err
	}

	width := rng.End.Sub(rng.Start) / time.Duration(slots)
	if width <= 0 {
		width = time.Millisecond
	}
	out := make(map[int64]int, slots)
	for i := 0; i < slots; i++ {
		out[rng.Start.Add(time.Duration(i)*width).UnixMilli()] = 0
	}
	for _, ev := range events {
		slot := int(ev.EffectiveTime().Sub(rng.Start) / width)
		if slot < 0 {
			slot = 0
		}
		if slot >= slots {
			slot = slots - 1
		}
		out[rng.Start.Add(time.Duration(slot)*width).UnixMilli()]++
	}
	return out, nil
}

// CacheStats exposes the cache counters for the stats endpoint.
func (e *Executor) CacheStats() CacheStats {
	return e.cache.Stats()
}
