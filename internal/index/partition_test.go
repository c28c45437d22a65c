// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grepwise/grepwise/internal/models"
	"github.com/grepwise/grepwise/internal/spl"
)

func testEvent(t *testing.T, source, level, message string, at time.Time) *models.LogEvent {
	t.Helper()
	ev := models.NewLogEvent(source, level, message, message)
	ev.RecordTime = at
	return ev
}

func openTestPartition(t *testing.T) *Partition {
	t.Helper()
	start := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	p, err := OpenPartition(t.TempDir(), Meta{
		Bucket:  "2026-08-20",
		StartTs: start,
		EndTs:   start.AddDate(0, 0, 1),
		State:   StateActive,
	})
	if err != nil {
		t.Fatalf("OpenPartition: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPartitionAddSearchRoundTrip(t *testing.T) {
	p := openTestPartition(t)
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	events := []*models.LogEvent{
		testEvent(t, "app", "INFO", "request served", base),
		testEvent(t, "app", "ERROR", "db timeout", base.Add(time.Minute)),
		testEvent(t, "nginx", "INFO", "upstream ok", base.Add(2*time.Minute)),
	}
	if err := p.AddBatch(events, nil); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}
	if err := p.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := p.Search(context.Background(), spl.MatchAll{}, spl.TimeRange{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	// Timestamp descending.
	for i := 1; i < len(got); i++ {
		if got[i].EffectiveTime().After(got[i-1].EffectiveTime()) {
			t.Fatalf("results out of order at %d: %v after %v", i, got[i].EffectiveTime(), got[i-1].EffectiveTime())
		}
	}
	if got[0].Message != "upstream ok" {
		t.Fatalf("newest first: got %q", got[0].Message)
	}
}

func TestDeleteExpiredSparesFreshIngest(t *testing.T) {
	p := openTestPartition(t)
	cutoff := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	aged := testEvent(t, "app", "INFO", "aged out", cutoff.Add(-2*time.Hour))
	aged.IngestTime = cutoff.Add(-time.Hour)
	backfill := testEvent(t, "app", "INFO", "replayed backfill", cutoff.Add(-3*time.Hour))
	backfill.IngestTime = cutoff.Add(time.Hour)

	if err := p.AddBatch([]*models.LogEvent{aged, backfill}, nil); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}

	ctx := context.Background()
	n, err := p.DeleteExpired(ctx, cutoff, "")
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted %d events, want 1", n)
	}

	got, err := p.Search(ctx, spl.MatchAll{}, spl.TimeRange{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Message != "replayed backfill" {
		t.Fatalf("survivor = %+v, want the fresh-ingest backfill", got)
	}

	recent, err := p.HasIngestSince(ctx, cutoff)
	if err != nil {
		t.Fatalf("HasIngestSince: %v", err)
	}
	if !recent {
		t.Error("HasIngestSince missed the surviving backfill")
	}
	recent, err = p.HasIngestSince(ctx, cutoff.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("HasIngestSince: %v", err)
	}
	if recent {
		t.Error("HasIngestSince reported an ingest newer than any event")
	}
}

func TestPartitionTermAndCompareQueries(t *testing.T) {
	p := openTestPartition(t)
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	slow := testEvent(t, "app", "WARN", "slow request", base)
	slow.Metadata["duration"] = "1500"
	fast := testEvent(t, "app", "INFO", "fast request", base.Add(time.Second))
	fast.Metadata["duration"] = "12"
	if err := p.AddBatch([]*models.LogEvent{slow, fast}, nil); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}

	tests := []struct {
		name string
		pred spl.Predicate
		want int
	}{
		{"level term is case-insensitive", spl.Term{Field: "level", Value: "warn"}, 1},
		{"message term", spl.Term{Field: spl.DefaultField, Value: "request"}, 2},
		{"numeric compare", spl.Compare{Field: "duration", Op: spl.OpGt, Value: "1000"}, 1},
		{"numeric range", spl.Range{Field: "duration", Min: "10", Max: "100"}, 1},
		{"no match", spl.Term{Field: "level", Value: "fatal"}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := p.Search(context.Background(), tc.pred, spl.TimeRange{}, 10)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(got) != tc.want {
				t.Fatalf("got %d events, want %d", len(got), tc.want)
			}
		})
	}
}

func TestPartitionTimeRangeFilters(t *testing.T) {
	p := openTestPartition(t)
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	var events []*models.LogEvent
	for i := 0; i < 5; i++ {
		events = append(events, testEvent(t, "app", "INFO", "tick", base.Add(time.Duration(i)*time.Hour)))
	}
	if err := p.AddBatch(events, nil); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}

	rng := spl.TimeRange{Start: base.Add(time.Hour), End: base.Add(3 * time.Hour)}
	got, err := p.Search(context.Background(), spl.MatchAll{}, rng, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events in range, want 3", len(got))
	}
}

func TestPartitionDeleteMatching(t *testing.T) {
	p := openTestPartition(t)
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	events := []*models.LogEvent{
		testEvent(t, "app", "ERROR", "boom", base),
		testEvent(t, "app", "INFO", "fine", base.Add(time.Second)),
		testEvent(t, "app", "ERROR", "boom again", base.Add(2*time.Second)),
	}
	if err := p.AddBatch(events, nil); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}

	n, err := p.DeleteMatching(context.Background(), spl.Term{Field: "level", Value: "error"}, spl.TimeRange{})
	if err != nil {
		t.Fatalf("DeleteMatching: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted %d, want 2", n)
	}

	count, err := p.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("count after delete = %d, want 1", count)
	}

	// Second pass is a no-op.
	n, err = p.DeleteMatching(context.Background(), spl.Term{Field: "level", Value: "error"}, spl.TimeRange{})
	if err != nil {
		t.Fatalf("DeleteMatching second pass: %v", err)
	}
	if n != 0 {
		t.Fatalf("second delete removed %d, want 0", n)
	}
}

func TestPartitionSealRejectsWrites(t *testing.T) {
	p := openTestPartition(t)
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	if err := p.AddBatch([]*models.LogEvent{testEvent(t, "app", "INFO", "one", base)}, nil); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}
	if err := p.Seal(); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	// Idempotent.
	if err := p.Seal(); err != nil {
		t.Fatalf("second Seal: %v", err)
	}

	err := p.AddBatch([]*models.LogEvent{testEvent(t, "app", "INFO", "two", base)}, nil)
	if !errors.Is(err, ErrSealed) {
		t.Fatalf("AddBatch after seal: got %v, want ErrSealed", err)
	}

	if _, err := os.Stat(filepath.Join(p.Dir(), lockFileName)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("write.lock still present after seal: %v", err)
	}

	// Sealed partitions stay searchable and deletable.
	got, err := p.Search(context.Background(), spl.MatchAll{}, spl.TimeRange{}, 10)
	if err != nil {
		t.Fatalf("Search after seal: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d events after seal, want 1", len(got))
	}
	if _, err := p.DeleteMatching(context.Background(), spl.MatchAll{}, spl.TimeRange{}); err != nil {
		t.Fatalf("DeleteMatching after seal: %v", err)
	}
}

func TestPartitionReopenRestoresState(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	meta := Meta{Bucket: "2026-08-20", StartTs: start, EndTs: start.AddDate(0, 0, 1), State: StateActive}

	p, err := OpenPartition(dir, meta)
	if err != nil {
		t.Fatalf("OpenPartition: %v", err)
	}
	ev := testEvent(t, "app", "INFO", "persisted", start.Add(time.Hour))
	if err := p.AddBatch([]*models.LogEvent{ev}, nil); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}
	if err := p.Seal(); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close is not idempotent: %v", err)
	}

	reopened, err := OpenPartition(dir, Meta{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	if got := reopened.Meta().State; got != StateSealed {
		t.Fatalf("state after reopen = %s, want SEALED", got)
	}
	got, err := reopened.Search(context.Background(), spl.MatchAll{}, spl.TimeRange{}, 10)
	if err != nil {
		t.Fatalf("Search after reopen: %v", err)
	}
	if len(got) != 1 || got[0].ID != ev.ID {
		t.Fatalf("reopened search lost the event: %+v", got)
	}
}

func TestFieldConfigurationControlsIndexing(t *testing.T) {
	p := openTestPartition(t)
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	ev := testEvent(t, "app", "INFO", "payload", base)
	ev.Metadata["secret"] = "hunter2"
	ev.Metadata["path"] = "/api/v1/users"

	flags := map[string]models.FieldConfiguration{
		"secret": {Name: "secret", Indexed: false},
		"path":   {Name: "path", Indexed: true, Tokenized: true},
	}
	if err := p.AddBatch([]*models.LogEvent{ev}, flags); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}

	got, err := p.Search(context.Background(), spl.Term{Field: "secret", Value: "hunter2"}, spl.TimeRange{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("unindexed field matched %d events, want 0", len(got))
	}

	got, err = p.Search(context.Background(), spl.Term{Field: "path", Value: "users"}, spl.TimeRange{}, 10)
	if err != nil {
		t.Fatalf("Search tokenized: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("tokenized field matched %d events, want 1", len(got))
	}
}
