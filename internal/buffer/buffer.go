// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

// Package buffer implements the bounded write-behind queue between the
// ingestion sources and the index. Sources enqueue single events; a
// background flusher drains batches, runs field extraction, and routes
// them through the partition manager.
package buffer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/grepwise/grepwise/internal/bus"
	"github.com/grepwise/grepwise/internal/config"
	"github.com/grepwise/grepwise/internal/extract"
	"github.com/grepwise/grepwise/internal/logging"
	"github.com/grepwise/grepwise/internal/metrics"
	"github.com/grepwise/grepwise/internal/models"
)

// ErrBufferFull is returned when an enqueue under BACKPRESSURE waits out
// its timeout without space opening up.
var ErrBufferFull = errors.New("buffer: full")

// highWatermark is the utilization above which the health indicator
// starts its DOWN streak.
const highWatermark = 0.8

// Sink receives flushed batches. The partition manager is the production
// sink.
type Sink interface {
	Route(ctx context.Context, events []*models.LogEvent, flags map[string]models.FieldConfiguration) error
}

// Buffer is the bounded FIFO. Enqueue preserves per-caller order; the
// flusher drains in FIFO order, so events from one source keep their wire
// order through to the index.
type Buffer struct {
	cfg       config.BufferConfig
	extractor *extract.Extractor
	sink      Sink
	events    *bus.Bus

	ch   chan *models.LogEvent
	kick chan struct{}

	mu        sync.Mutex
	highSince time.Time
	down      bool
}

// New constructs a buffer. events may be nil when no bus is wired.
func New(cfg config.BufferConfig, extractor *extract.Extractor, sink Sink, events *bus.Bus) *Buffer {
	return &Buffer{
		cfg:       cfg,
		extractor: extractor,
		sink:      sink,
		events:    events,
		ch:        make(chan *models.LogEvent, cfg.MaxSize),
		kick:      make(chan struct{}, 1),
	}
}

// Enqueue admits one event. Under DROP_OLDEST a full queue evicts its
// oldest entry and the call succeeds; under BACKPRESSURE the call blocks
// up to the enqueue timeout and then drops the new event with
// ErrBufferFull.
func (b *Buffer) Enqueue(ctx context.Context, ev *models.LogEvent) error {
	select {
	case b.ch <- ev:
		b.afterEnqueue()
		return nil
	default:
	}

	if b.cfg.Policy == config.PolicyDropOldest {
		for {
			select {
			case b.ch <- ev:
				b.afterEnqueue()
				return nil
			default:
			}
			select {
			case old := <-b.ch:
				metrics.EventsDropped.WithLabelValues(old.Source, "buffer_full").Inc()
			default:
			}
		}
	}

	timer := time.NewTimer(b.cfg.EnqueueTimeout())
	defer timer.Stop()
	select {
	case b.ch <- ev:
		b.afterEnqueue()
		return nil
	case <-timer.C:
		metrics.EventsDropped.WithLabelValues(ev.Source, "enqueue_timeout").Inc()
		return ErrBufferFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Buffer) afterEnqueue() {
	metrics.BufferUtilization.Set(b.Utilization())
	if len(b.ch) >= b.cfg.BatchSize {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
}

// Size returns the number of queued events.
func (b *Buffer) Size() int { return len(b.ch) }

// Utilization returns size/capacity in [0, 1].
func (b *Buffer) Utilization() float64 {
	if b.cfg.MaxSize == 0 {
		return 0
	}
	return float64(len(b.ch)) / float64(b.cfg.MaxSize)
}

// Healthy reports the health indicator: DOWN only after utilization has
// stayed above the high watermark for the configured streak.
func (b *Buffer) Healthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.down
}

func (b *Buffer) observeHealth(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Utilization() <= highWatermark {
		b.highSince = time.Time{}
		b.down = false
		return
	}
	if b.highSince.IsZero() {
		b.highSince = now
		return
	}
	if !b.down && now.Sub(b.highSince) > b.cfg.WarnStreak() {
		b.down = true
		logging.Warn().
			Float64("utilization", b.Utilization()).
			Msg("buffer utilization high, marking health DOWN")
	}
}

// Flush drains up to one batch, extracts fields, and routes it to the
// sink. Returns the number of events flushed.
func (b *Buffer) Flush(ctx context.Context) (int, error) {
	batch := make([]*models.LogEvent, 0, b.cfg.BatchSize)
	for len(batch) < b.cfg.BatchSize {
		select {
		case ev := <-b.ch:
			batch = append(batch, ev)
		default:
			goto drained
		}
	}
drained:
	if len(batch) == 0 {
		return 0, nil
	}

	start := time.Now()
	for _, ev := range batch {
		b.extractor.Apply(ev)
	}
	flags := fieldFlags(b.extractor.Fields())
	if err := b.sink.Route(ctx, batch, flags); err != nil {
		metrics.IngestErrors.WithLabelValues("buffer", "flush").Inc()
		logging.Error().Err(err).Int("events", len(batch)).Msg("buffer flush failed, batch lost")
		return 0, err
	}
	if b.events != nil {
		for _, ev := range batch {
			b.events.Publish(bus.TopicLogsIngested, ev)
		}
	}
	metrics.RecordFlush(len(batch), time.Since(start))
	metrics.BufferUtilization.Set(b.Utilization())
	return len(batch), nil
}

// fieldFlags indexes the enabled field configurations by name for the
// index document builder.
func fieldFlags(cfgs []models.FieldConfiguration) map[string]models.FieldConfiguration {
	if len(cfgs) == 0 {
		return nil
	}
	out := make(map[string]models.FieldConfiguration, len(cfgs))
	for _, fc := range cfgs {
		out[fc.Name] = fc
	}
	return out
}

// Serve runs the flush loop until ctx is canceled, then drains. It
// satisfies the supervisor service contract.
func (b *Buffer) Serve(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.FlushInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return b.drain()
		case <-ticker.C:
			b.flushAll(ctx)
			b.observeHealth(time.Now())
		case <-b.kick:
			b.flushAll(ctx)
		}
	}
}

// flushAll keeps flushing while full batches are available, so a burst
// does not wait out the flush interval one batch at a time.
func (b *Buffer) flushAll(ctx context.Context) {
	for {
		n, err := b.Flush(ctx)
		if err != nil || n < b.cfg.BatchSize {
			return
		}
	}
}

// drain force-flushes everything, including partial batches, within the
// drain timeout.
func (b *Buffer) drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.DrainTimeout())
	defer cancel()

	for len(b.ch) > 0 {
		if ctx.Err() != nil {
			logging.Warn().Int("remaining", len(b.ch)).Msg("drain timeout expired with events still queued")
			return ctx.Err()
		}
		if _, err := b.Flush(ctx); err != nil {
			return err
		}
	}
	logging.Info().Msg("buffer drained")
	return nil
}
