// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package bus

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPublishSubscribeOrdering(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe(TopicLogsIngested, 16)
	defer sub.Close()

	for i := 0; i < 5; i++ {
		b.Publish(TopicLogsIngested, i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 5; i++ {
		ev, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("Next(%d): %v", i, err)
		}
		if ev.Payload.(int) != i {
			t.Errorf("event %d payload = %v", i, ev.Payload)
		}
		if ev.Seq != uint64(i+1) {
			t.Errorf("event %d seq = %d, want %d", i, ev.Seq, i+1)
		}
	}
}

func TestSlowSubscriberLags(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe(TopicLogsMatched, 4)
	defer sub.Close()

	// 10 events into a ring of 4: the oldest 6 are dropped.
	for i := 0; i < 10; i++ {
		b.Publish(TopicLogsMatched, i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := sub.Next(ctx)
	var lagged *LaggedError
	if !errors.As(err, &lagged) {
		t.Fatalf("Next() error = %v, want LaggedError", err)
	}
	if lagged.Skipped != 6 {
		t.Errorf("skipped = %d, want 6", lagged.Skipped)
	}

	// Delivery resumes from the oldest retained event.
	ev, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next after lag: %v", err)
	}
	if ev.Payload.(int) != 6 {
		t.Errorf("first retained payload = %v, want 6", ev.Payload)
	}
}

func TestSubscribersAreIndependent(t *testing.T) {
	b := New()
	defer b.Close()

	fast := b.Subscribe(TopicLogsIngested, 16)
	defer fast.Close()
	slow := b.Subscribe(TopicLogsIngested, 2)
	defer slow.Close()

	for i := 0; i < 6; i++ {
		b.Publish(TopicLogsIngested, i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// The fast subscriber sees everything.
	for i := 0; i < 6; i++ {
		ev, err := fast.Next(ctx)
		if err != nil {
			t.Fatalf("fast Next: %v", err)
		}
		if ev.Payload.(int) != i {
			t.Errorf("fast payload = %v, want %d", ev.Payload, i)
		}
	}

	// The slow subscriber lagged without affecting the fast one.
	var lagged *LaggedError
	if _, err := slow.Next(ctx); !errors.As(err, &lagged) {
		t.Fatalf("slow Next error = %v, want LaggedError", err)
	}
}

func TestNextBlocksUntilPublish(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe(TopicAlarmEvents, 8)
	defer sub.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		b.Publish(TopicAlarmEvents, "fired")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ev, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.Payload.(string) != "fired" {
		t.Errorf("payload = %v", ev.Payload)
	}
}

func TestNextHonorsContextCancel(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe(TopicLogsIngested, 8)
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := sub.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next error = %v, want DeadlineExceeded", err)
	}
}

func TestBusCloseDrainsThenErrClosed(t *testing.T) {
	b := New()
	sub := b.Subscribe(TopicLogsIngested, 8)

	b.Publish(TopicLogsIngested, "last")
	b.Close()

	ctx := context.Background()
	ev, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next should drain buffered event, got %v", err)
	}
	if ev.Payload.(string) != "last" {
		t.Errorf("payload = %v", ev.Payload)
	}

	if _, err := sub.Next(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Next after drain = %v, want ErrClosed", err)
	}

	// Publish after close is a silent no-op.
	b.Publish(TopicLogsIngested, "ignored")
}

func TestSubscriberCloseDiscardsBuffer(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe(TopicLogsIngested, 8)
	b.Publish(TopicLogsIngested, 1)
	sub.Close()

	if _, err := sub.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Next after Close = %v, want ErrClosed", err)
	}
}
