// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package alarm

import (
	"context"
	"sync"
	"time"

	"github.com/grepwise/grepwise/internal/bus"
	"github.com/grepwise/grepwise/internal/logging"
	"github.com/grepwise/grepwise/internal/metrics"
	"github.com/grepwise/grepwise/internal/models"
	"github.com/grepwise/grepwise/internal/search"
	"github.com/grepwise/grepwise/internal/spl"
)

// evaluationLimit caps how many raw matches one evaluation fetches when
// the alarm query carries no aggregation.
const evaluationLimit = 100_000

// Searcher runs alarm queries. The search executor satisfies this.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Result, error)
}

type compiledEntry struct {
	query    string
	compiled *spl.CompiledQuery
}

type groupState struct {
	start   time.Time
	matches int64
	// eventID is the open firing the group folds additional matches into.
	eventID string
}

// Scheduler evaluates enabled alarms on their own cadence, grouping
// consecutive firings and throttling notifications per channel.
type Scheduler struct {
	store      *Store
	searcher   Searcher
	dispatcher *Dispatcher
	events     *bus.Bus
	tick       time.Duration
	now        func() time.Time

	mu       sync.Mutex
	compiled map[string]compiledEntry
	lastEval map[string]time.Time
	groups   map[string]*groupState
}

// NewScheduler wires the scheduler. events may be nil.
func NewScheduler(store *Store, searcher Searcher, dispatcher *Dispatcher, events *bus.Bus, tick time.Duration) *Scheduler {
	return &Scheduler{
		store:      store,
		searcher:   searcher,
		dispatcher: dispatcher,
		events:     events,
		tick:       tick,
		now:        time.Now,
		compiled:   make(map[string]compiledEntry),
		lastEval:   make(map[string]time.Time),
		groups:     make(map[string]*groupState),
	}
}

// Serve runs the evaluation loop until ctx is canceled. It satisfies the
// supervisor service contract.
func (s *Scheduler) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.EvaluateDue(ctx)
		}
	}
}

// evalInterval is the per-alarm cadence: the time window, capped at one
// minute so short spikes are noticed promptly.
func evalInterval(a *models.Alarm) time.Duration {
	window := time.Duration(a.TimeWindowMinutes) * time.Minute
	if window > time.Minute {
		return time.Minute
	}
	return window
}

// EvaluateDue evaluates every enabled alarm whose cadence has elapsed.
func (s *Scheduler) EvaluateDue(ctx context.Context) {
	alarms, err := s.store.EnabledAlarms(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("scheduler could not list alarms")
		return
	}
	now := s.now()
	for _, a := range alarms {
		s.mu.Lock()
		last := s.lastEval[a.ID]
		due := now.Sub(last) >= evalInterval(a)
		if due {
			s.lastEval[a.ID] = now
		}
		s.mu.Unlock()
		if !due {
			continue
		}
		if err := s.Evaluate(ctx, a); err != nil {
			logging.Error().Err(err).Str("alarm", a.ID).Msg("alarm evaluation failed")
		}
	}
}

// compiledFor returns the compiled form of the alarm query, recompiling
// only when the query text changed.
func (s *Scheduler) compiledFor(a *models.Alarm) (*spl.CompiledQuery, error) {
	s.mu.Lock()
	entry, ok := s.compiled[a.ID]
	s.mu.Unlock()
	if ok && entry.query == a.Query {
		return entry.compiled, nil
	}
	compiled, err := spl.Compile(a.Query, spl.TimeRange{}, s.now())
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.compiled[a.ID] = compiledEntry{query: a.Query, compiled: compiled}
	s.mu.Unlock()
	return compiled, nil
}

// Evaluate runs one alarm once: execute the query over the lookback
// window, compare the match count, and fire if the condition holds.
func (s *Scheduler) Evaluate(ctx context.Context, a *models.Alarm) error {
	metrics.AlarmEvaluations.Inc()

	compiled, err := s.compiledFor(a)
	if err != nil {
		return err
	}
	now := s.now()
	rng := spl.TimeRange{Start: now.Add(-time.Duration(a.TimeWindowMinutes) * time.Minute), End: now}

	result, err := s.searcher.Search(ctx, search.Request{Query: a.Query, Range: rng, Limit: evaluationLimit})
	if err != nil {
		return err
	}
	count := matchCount(compiled, result)

	if !a.Condition.Satisfied(count, a.Threshold) {
		return nil
	}
	return s.fire(ctx, a, count, now)
}

// matchCount extracts the evaluation value: the count aggregate when the
// pipeline computes one, else the number of result rows or events.
func matchCount(compiled *spl.CompiledQuery, result *search.Result) int64 {
	if compiled.HasStats() && len(result.Rows) > 0 {
		if v, ok := result.Rows[0]["count"]; ok {
			if f, ok := v.(float64); ok {
				return int64(f)
			}
		}
		return int64(len(result.Rows))
	}
	if result.Rows != nil {
		return int64(len(result.Rows))
	}
	return int64(len(result.Events))
}

// fire records the firing, applying grouping and per-channel throttling.
func (s *Scheduler) fire(ctx context.Context, a *models.Alarm, count int64, now time.Time) error {
	groupKey := a.GroupKey()
	groupingWindow := time.Duration(a.GroupingWindowMinutes) * time.Minute

	s.mu.Lock()
	if g, ok := s.groups[groupKey]; ok && now.Sub(g.start) < groupingWindow {
		// Consecutive firing inside the grouping window: fold into the
		// open event's running matchCount, no new event or notification.
		g.matches += count
		eventID, total := g.eventID, g.matches
		s.mu.Unlock()
		if err := s.store.AddEventMatches(ctx, eventID, count); err != nil {
			return err
		}
		logging.Debug().Str("alarm", a.ID).Str("group", groupKey).Int64("matches", total).
			Msg("firing collapsed into grouping window")
		return nil
	}
	s.mu.Unlock()

	ev := &models.AlarmEvent{
		AlarmID:    a.ID,
		Timestamp:  now.UTC(),
		Status:     models.AlarmTriggered,
		MatchCount: count,
	}
	if err := s.store.InsertEvent(ctx, ev); err != nil {
		return err
	}
	s.mu.Lock()
	s.groups[groupKey] = &groupState{start: now, matches: count, eventID: ev.ID}
	s.mu.Unlock()
	metrics.AlarmFirings.WithLabelValues(a.Name).Inc()
	if s.events != nil {
		s.events.Publish(bus.TopicAlarmEvents, ev)
	}
	logging.Info().Str("alarm", a.ID).Str("name", a.Name).Int64("matches", count).
		Msg("alarm triggered")

	s.notify(ctx, a, ev, count)
	return nil
}

// notify dispatches to each channel in order. A channel failure or
// throttle never suppresses the remaining channels.
func (s *Scheduler) notify(ctx context.Context, a *models.Alarm, ev *models.AlarmEvent, count int64) {
	throttleWindow := time.Duration(a.ThrottleWindowMinutes) * time.Minute
	n := Notification{Alarm: a, Event: ev, MatchCount: count}

	for _, ch := range a.NotificationChannels {
		sent, err := s.store.CountNotifications(ctx, a.ID, ch.Key(), ev.Timestamp.Add(-throttleWindow))
		if err != nil {
			logging.Error().Err(err).Str("alarm", a.ID).Str("channel", ch.Key()).
				Msg("throttle lookup failed, skipping channel")
			continue
		}
		if sent >= a.MaxNotificationsPerWindow {
			metrics.AlarmSuppressions.WithLabelValues(a.Name, "throttled").Inc()
			if err := s.store.RecordSuppression(ctx, a.ID, ch.Key(), "throttled", ev.Timestamp); err != nil {
				logging.Error().Err(err).Str("alarm", a.ID).Msg("could not record suppression")
			}
			continue
		}

		dispatchErr := s.dispatcher.Dispatch(ctx, ch, n)
		errMsg := ""
		if dispatchErr != nil {
			errMsg = dispatchErr.Error()
			logging.Error().Err(dispatchErr).Str("alarm", a.ID).Str("channel", ch.Key()).
				Msg("notification failed")
		}
		if err := s.store.RecordNotification(ctx, a.ID, ch.Key(), ev.Timestamp, dispatchErr == nil, errMsg); err != nil {
			logging.Error().Err(err).Str("alarm", a.ID).Msg("could not record notification")
		}
	}
}
