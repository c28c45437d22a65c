// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package buffer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/grepwise/grepwise/internal/config"
	"github.com/grepwise/grepwise/internal/extract"
	"github.com/grepwise/grepwise/internal/models"
)

type captureSink struct {
	mu     sync.Mutex
	events []*models.LogEvent
	err    error
}

func (s *captureSink) Route(_ context.Context, events []*models.LogEvent, _ map[string]models.FieldConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, events...)
	return nil
}

func (s *captureSink) all() []*models.LogEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.LogEvent, len(s.events))
	copy(out, s.events)
	return out
}

func testBuffer(t *testing.T, cfg config.BufferConfig, sink Sink) *Buffer {
	t.Helper()
	x, err := extract.New(nil)
	if err != nil {
		t.Fatalf("extract.New: %v", err)
	}
	return New(cfg, x, sink, nil)
}

func testCfg() config.BufferConfig {
	return config.BufferConfig{
		MaxSize:          100,
		FlushIntervalMs:  50,
		Policy:           config.PolicyBackpressure,
		EnqueueTimeoutMs: 20,
		BatchSize:        10,
		DrainTimeoutMs:   1000,
		WarnStreakMs:     50,
	}
}

func TestFlushRoutesInOrder(t *testing.T) {
	sink := &captureSink{}
	b := testBuffer(t, testCfg(), sink)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ev := models.NewLogEvent("app", "INFO", fmt.Sprintf("msg-%d", i), "")
		if err := b.Enqueue(ctx, ev); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}
	n, err := b.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n != 5 {
		t.Fatalf("flushed %d, want 5", n)
	}
	got := sink.all()
	for i, ev := range got {
		if want := fmt.Sprintf("msg-%d", i); ev.Message != want {
			t.Fatalf("order broken at %d: got %q, want %q", i, ev.Message, want)
		}
	}
	if b.Size() != 0 {
		t.Fatalf("size after flush = %d, want 0", b.Size())
	}
}

func TestFlushAppliesExtraction(t *testing.T) {
	sink := &captureSink{}
	x, err := extract.New([]models.FieldConfiguration{{
		Name:              "status",
		Type:              models.FieldTypeNumber,
		ExtractionPattern: `status=(\d+)`,
		Indexed:           true,
		Enabled:           true,
	}})
	if err != nil {
		t.Fatalf("extract.New: %v", err)
	}
	b := New(testCfg(), x, sink, nil)
	ctx := context.Background()

	if err := b.Enqueue(ctx, models.NewLogEvent("app", "INFO", "request status=404 done", "")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	got := sink.all()
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].Metadata["status"] != "404" {
		t.Fatalf("extracted status = %q, want 404", got[0].Metadata["status"])
	}
}

func TestDropOldestKeepsMostRecent(t *testing.T) {
	cfg := testCfg()
	cfg.Policy = config.PolicyDropOldest
	sink := &captureSink{}
	b := testBuffer(t, cfg, sink)
	ctx := context.Background()

	// Flusher is not running; overfill 3x.
	for i := 0; i < 300; i++ {
		ev := models.NewLogEvent("app", "INFO", fmt.Sprintf("msg-%d", i), "")
		if err := b.Enqueue(ctx, ev); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}
	if b.Size() != 100 {
		t.Fatalf("size = %d, want capacity 100", b.Size())
	}

	for {
		n, err := b.Flush(ctx)
		if err != nil {
			t.Fatalf("Flush: %v", err)
		}
		if n == 0 {
			break
		}
	}
	got := sink.all()
	if len(got) != 100 {
		t.Fatalf("flushed %d events, want 100", len(got))
	}
	if got[0].Message != "msg-200" || got[99].Message != "msg-299" {
		t.Fatalf("survivors are not the most recent 100: first=%q last=%q", got[0].Message, got[99].Message)
	}
}

func TestBackpressureTimesOut(t *testing.T) {
	cfg := testCfg()
	cfg.MaxSize = 1
	b := testBuffer(t, cfg, &captureSink{})
	ctx := context.Background()

	if err := b.Enqueue(ctx, models.NewLogEvent("app", "INFO", "first", "")); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	start := time.Now()
	err := b.Enqueue(ctx, models.NewLogEvent("app", "INFO", "second", ""))
	if !errors.Is(err, ErrBufferFull) {
		t.Fatalf("second Enqueue: got %v, want ErrBufferFull", err)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Fatalf("enqueue gave up after %v, want the configured wait first", elapsed)
	}
}

func TestBackpressureRespectsContext(t *testing.T) {
	cfg := testCfg()
	cfg.MaxSize = 1
	cfg.EnqueueTimeoutMs = 5000
	b := testBuffer(t, cfg, &captureSink{})

	if err := b.Enqueue(context.Background(), models.NewLogEvent("app", "INFO", "first", "")); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := b.Enqueue(ctx, models.NewLogEvent("app", "INFO", "second", "")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want context.DeadlineExceeded", err)
	}
}

func TestServeDrainsOnShutdown(t *testing.T) {
	cfg := testCfg()
	cfg.FlushIntervalMs = 60_000 // only the drain path flushes
	sink := &captureSink{}
	b := testBuffer(t, cfg, sink)

	for i := 0; i < 25; i++ {
		// Stay below BatchSize kicks by filling before Serve starts.
		if err := b.Enqueue(context.Background(), models.NewLogEvent("app", "INFO", fmt.Sprintf("msg-%d", i), "")); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if got := len(sink.all()); got != 25 {
		t.Fatalf("drained %d events, want 25", got)
	}
}

func TestHealthStreak(t *testing.T) {
	cfg := testCfg()
	cfg.MaxSize = 10
	b := testBuffer(t, cfg, &captureSink{})
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		if err := b.Enqueue(ctx, models.NewLogEvent("app", "INFO", "fill", "")); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if u := b.Utilization(); u != 0.9 {
		t.Fatalf("utilization = %v, want 0.9", u)
	}

	now := time.Now()
	b.observeHealth(now)
	if !b.Healthy() {
		t.Fatal("health DOWN before the streak elapsed")
	}
	b.observeHealth(now.Add(100 * time.Millisecond))
	if b.Healthy() {
		t.Fatal("health still UP after sustained high utilization")
	}

	// Draining recovers.
	if _, err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	b.observeHealth(now.Add(200 * time.Millisecond))
	if !b.Healthy() {
		t.Fatal("health did not recover after drain")
	}
}
