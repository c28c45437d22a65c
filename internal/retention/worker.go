// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

// Package retention ages data out of the index. A background worker
// sweeps on an interval, applying the configured policies: partitions
// entirely older than a policy's cutoff are dropped whole, partitions
// straddling the cutoff lose only the events past it.
package retention

import (
	"context"
	"time"

	"github.com/grepwise/grepwise/internal/config"
	"github.com/grepwise/grepwise/internal/index"
	"github.com/grepwise/grepwise/internal/logging"
	"github.com/grepwise/grepwise/internal/metrics"
	"github.com/grepwise/grepwise/internal/models"
)

// Invalidator drops cached search results after a sweep deletes data.
type Invalidator interface {
	Invalidate()
}

// Worker runs retention sweeps against the partition manager.
type Worker struct {
	cfg     config.RetentionConfig
	manager *index.Manager
	cache   Invalidator

	now func() time.Time
}

// NewWorker builds a retention worker. cache may be nil when search
// caching is disabled.
func NewWorker(cfg config.RetentionConfig, manager *index.Manager, cache Invalidator) *Worker {
	return &Worker{cfg: cfg, manager: manager, cache: cache, now: time.Now}
}

// Serve sweeps on the configured interval until ctx is canceled. It
// satisfies the supervisor service contract.
func (w *Worker) Serve(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.SweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				logging.Error().Err(err).Msg("retention sweep failed")
			}
		}
	}
}

// Sweep applies every enabled policy once. Sweeps are idempotent: a
// second pass over already-aged data deletes nothing.
func (w *Worker) Sweep(ctx context.Context) error {
	metrics.RetentionSweeps.Inc()
	changed := false

	for i := range w.cfg.Policies {
		policy := &w.cfg.Policies[i]
		if !policy.Enabled {
			continue
		}
		if err := policy.Validate(); err != nil {
			logging.Warn().Err(err).Msg("skipping invalid retention policy")
			continue
		}
		n, err := w.apply(ctx, policy)
		if err != nil {
			return err
		}
		changed = changed || n
	}

	if changed && w.cache != nil {
		w.cache.Invalidate()
	}
	return nil
}

// apply runs one policy and reports whether anything was deleted.
func (w *Worker) apply(ctx context.Context, policy *models.RetentionPolicy) (bool, error) {
	threshold := policy.Threshold(w.now().UTC())
	changed := false

	// Whole partitions first. A partition is removable only when the
	// policy covers every event it could hold: source-filtered policies
	// always go the event-level route, and a partition holding any
	// recently ingested event is trimmed instead of dropped.
	if policy.SourceFilter == "" {
		for _, meta := range w.manager.Partitions() {
			if meta.State == index.StateArchived {
				continue
			}
			if meta.EndTs.After(threshold) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return changed, err
			}
			recent, err := w.manager.HasIngestSince(ctx, meta.Bucket, threshold)
			if err != nil {
				return changed, err
			}
			if recent {
				// A backfilled event keeps max(ingestTime, recordTime)
				// ahead of the cutoff; the event-level pass below spares it.
				continue
			}
			if err := w.manager.Remove(meta.Bucket); err != nil {
				return changed, err
			}
			metrics.RetentionPartitionsDeleted.Inc()
			logging.Info().
				Str("policy", policy.Name).
				Str("bucket", meta.Bucket).
				Msg("retention removed expired partition")
			changed = true
		}
	}

	// Event-level pass for boundary partitions, source filters, and
	// partitions held back by recent ingests. The cutoff is exclusive:
	// an event with max(ingestTime, recordTime) at or past the threshold
	// survives.
	n, err := w.manager.DeleteExpired(ctx, threshold, policy.SourceFilter)
	if err != nil {
		return changed, err
	}
	if n > 0 {
		metrics.RetentionEventsDeleted.Add(float64(n))
		logging.Info().
			Str("policy", policy.Name).
			Int("events", n).
			Msg("retention deleted expired events")
		changed = true
	}
	return changed, nil
}
