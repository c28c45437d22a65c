// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package ingest

import (
	"context"
	"time"

	"github.com/grepwise/grepwise/internal/metrics"
	"github.com/grepwise/grepwise/internal/models"
)

// Enqueuer admits events into the pipeline. The write-behind buffer is
// the production implementation.
type Enqueuer interface {
	Enqueue(ctx context.Context, ev *models.LogEvent) error
}

const (
	backoffInitial = time.Second
	backoffMax     = 60 * time.Second
)

// backoff is the per-source retry delay: doubling from one second,
// capped at a minute, reset on success.
type backoff struct {
	current time.Duration
}

func (b *backoff) next() time.Duration {
	if b.current == 0 {
		b.current = backoffInitial
	} else {
		b.current *= 2
		if b.current > backoffMax {
			b.current = backoffMax
		}
	}
	return b.current
}

func (b *backoff) reset() {
	b.current = 0
}

// sleep waits out the current backoff or returns early on cancellation.
func (b *backoff) sleep(ctx context.Context) error {
	timer := time.NewTimer(b.next())
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue pushes one event and accounts for the outcome. Buffer-full
// drops are already counted by the buffer; enqueue only counts accepts.
func enqueue(ctx context.Context, buf Enqueuer, ev *models.LogEvent) error {
	if err := buf.Enqueue(ctx, ev); err != nil {
		return err
	}
	metrics.EventsAccepted.WithLabelValues(ev.Source).Inc()
	return nil
}
