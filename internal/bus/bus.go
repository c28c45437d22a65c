// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

// Package bus implements the in-process event bus used for realtime log
// streaming and alarm fan-out. Each subscriber owns a bounded ring buffer;
// a slow subscriber loses its oldest undelivered events rather than
// blocking publishers, and learns about the gap through a Lagged error.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/grepwise/grepwise/internal/metrics"
)

// Well-known topics.
const (
	// TopicLogsIngested carries every event accepted into the pipeline.
	TopicLogsIngested = "logs.ingested"
	// TopicLogsMatched carries events that matched a live search feed.
	TopicLogsMatched = "logs.matched"
	// TopicAlarmEvents carries alarm state changes.
	TopicAlarmEvents = "alarms.events"
)

// DefaultSubscriberCapacity is the per-subscriber ring size.
const DefaultSubscriberCapacity = 1024

// ErrClosed is returned by Next once the subscriber or bus is closed and
// all buffered events have been delivered.
var ErrClosed = fmt.Errorf("bus: closed")

// LaggedError reports that a slow subscriber missed events. The subscriber
// remains usable; subsequent Next calls deliver from the current position.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("bus: subscriber lagged, skipped %d events", e.Skipped)
}

// Event is a single bus message. Seq is monotonically increasing per topic,
// so subscribers can detect ordering across reconnects.
type Event struct {
	Topic   string
	Seq     uint64
	Time    time.Time
	Payload any
}

// Bus is a topic-based in-process publish/subscribe hub.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]*topicState
	closed bool
}

type topicState struct {
	seq  uint64
	subs map[*Subscriber]struct{}
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{topics: make(map[string]*topicState)}
}

// Publish delivers payload to every subscriber of topic. Publishing never
// blocks on subscribers; full rings drop their oldest event instead.
// Publishing on a closed bus is a no-op.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	ts := b.topics[topic]
	if ts == nil {
		ts = &topicState{subs: make(map[*Subscriber]struct{})}
		b.topics[topic] = ts
	}
	ts.seq++
	ev := Event{Topic: topic, Seq: ts.seq, Time: time.Now(), Payload: payload}
	subs := make([]*Subscriber, 0, len(ts.subs))
	for s := range ts.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	metrics.BusPublished.WithLabelValues(topic).Inc()
	for _, s := range subs {
		s.push(ev)
	}
}

// Subscribe registers a new subscriber on topic with the given ring
// capacity. Capacity <= 0 uses DefaultSubscriberCapacity.
func (b *Bus) Subscribe(topic string, capacity int) *Subscriber {
	if capacity <= 0 {
		capacity = DefaultSubscriberCapacity
	}
	s := &Subscriber{
		bus:    b,
		topic:  topic,
		buf:    make([]Event, capacity),
		notify: make(chan struct{}, 1),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.closed = true
		return s
	}
	ts := b.topics[topic]
	if ts == nil {
		ts = &topicState{subs: make(map[*Subscriber]struct{})}
		b.topics[topic] = ts
	}
	ts.subs[s] = struct{}{}
	return s
}

// Close shuts the bus down. All subscribers drain their remaining buffered
// events and then receive ErrClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*Subscriber
	for _, ts := range b.topics {
		for s := range ts.subs {
			all = append(all, s)
		}
		ts.subs = make(map[*Subscriber]struct{})
	}
	b.mu.Unlock()

	for _, s := range all {
		s.markClosed()
	}
}

func (b *Bus) unsubscribe(s *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ts := b.topics[s.topic]; ts != nil {
		delete(ts.subs, s)
	}
}

// Subscriber receives events from one topic through a bounded ring.
type Subscriber struct {
	bus   *Bus
	topic string

	mu      sync.Mutex
	buf     []Event
	head    int
	count   int
	skipped uint64
	closed  bool
	notify  chan struct{}
}

// push appends an event, evicting the oldest when the ring is full.
func (s *Subscriber) push(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.count == len(s.buf) {
		s.head = (s.head + 1) % len(s.buf)
		s.count--
		s.skipped++
		metrics.BusLagged.WithLabelValues(s.topic).Inc()
	}
	s.buf[(s.head+s.count)%len(s.buf)] = ev
	s.count++
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next returns the next event. When the subscriber has fallen behind, Next
// first returns a *LaggedError describing the gap, then resumes delivery
// from the oldest retained event. Blocks until an event arrives, the
// context is canceled, or the subscriber is closed with an empty ring.
func (s *Subscriber) Next(ctx context.Context) (Event, error) {
	for {
		s.mu.Lock()
		if s.skipped > 0 {
			n := s.skipped
			s.skipped = 0
			s.mu.Unlock()
			return Event{}, &LaggedError{Skipped: n}
		}
		if s.count > 0 {
			ev := s.buf[s.head]
			s.buf[s.head] = Event{}
			s.head = (s.head + 1) % len(s.buf)
			s.count--
			s.mu.Unlock()
			return ev, nil
		}
		if s.closed {
			s.mu.Unlock()
			return Event{}, ErrClosed
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-s.notify:
		}
	}
}

// Close unregisters the subscriber. Buffered events are discarded.
func (s *Subscriber) Close() {
	s.bus.unsubscribe(s)
	s.mu.Lock()
	s.closed = true
	s.count = 0
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// markClosed flags the subscriber closed but keeps buffered events so they
// can still be drained. Used on bus shutdown.
func (s *Subscriber) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
