// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/grepwise/grepwise/internal/alarm"
	"github.com/grepwise/grepwise/internal/bus"
	"github.com/grepwise/grepwise/internal/config"
	"github.com/grepwise/grepwise/internal/models"
)

func newAlarmFixture(t *testing.T) (*fixture, *alarm.Store) {
	t.Helper()
	store, err := alarm.OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	b := bus.New()
	t.Cleanup(b.Close)
	handler := NewHandler(&fakeSearch{}, store, &fakeIngestBuffer{healthy: true}, &fakePartitions{}, b, config.HTTPPushConfig{})
	router := NewRouter(handler, config.ServerConfig{
		Timeout:           5 * time.Second,
		RateLimitDisabled: true,
	}).Setup()
	return &fixture{router: router}, store
}

func alarmBody(name string) string {
	return fmt.Sprintf(`{
		"name": %q,
		"query": "level=ERROR",
		"condition": ">",
		"threshold": 5,
		"time_window_minutes": 5,
		"enabled": true,
		"throttle_window_minutes": 10,
		"max_notifications_per_window": 2,
		"grouping_window_minutes": 5,
		"notification_channels": [{"type": "WEBHOOK", "target": "https://example.com/hook"}]
	}`, name)
}

func TestAlarmCRUDOverHTTP(t *testing.T) {
	f, _ := newAlarmFixture(t)

	created := f.do(http.MethodPost, "/api/alarms/", alarmBody("http-errors"))
	if created.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", created.Code, created.Body.String())
	}
	var a models.Alarm
	if err := json.Unmarshal(decodeEnvelope(t, created).Data, &a); err != nil {
		t.Fatalf("decode alarm: %v", err)
	}
	if a.ID == "" {
		t.Fatal("created alarm has no id")
	}

	got := f.do(http.MethodGet, "/api/alarms/"+a.ID, "")
	if got.Code != http.StatusOK {
		t.Fatalf("get status = %d", got.Code)
	}

	list := f.do(http.MethodGet, "/api/alarms/", "")
	var alarms []*models.Alarm
	if err := json.Unmarshal(decodeEnvelope(t, list).Data, &alarms); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(alarms) != 1 {
		t.Fatalf("list has %d alarms, want 1", len(alarms))
	}

	deleted := f.do(http.MethodDelete, "/api/alarms/"+a.ID, "")
	if deleted.Code != http.StatusOK {
		t.Fatalf("delete status = %d", deleted.Code)
	}
	if again := f.do(http.MethodGet, "/api/alarms/"+a.ID, ""); again.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d, want 404", again.Code)
	}
}

func TestCreateAlarmDuplicateNameConflicts(t *testing.T) {
	f, _ := newAlarmFixture(t)

	if rec := f.do(http.MethodPost, "/api/alarms/", alarmBody("dup")); rec.Code != http.StatusCreated {
		t.Fatalf("first create = %d", rec.Code)
	}
	rec := f.do(http.MethodPost, "/api/alarms/", alarmBody("dup"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate create = %d, want 409", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Error == nil || env.Error.Code != "CONFLICT" {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestCreateAlarmValidation(t *testing.T) {
	f, _ := newAlarmFixture(t)
	rec := f.do(http.MethodPost, "/api/alarms/", `{"name":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUpdateUnknownAlarmIs404(t *testing.T) {
	f, _ := newAlarmFixture(t)
	rec := f.do(http.MethodPut, "/api/alarms/no-such-id", alarmBody("renamed"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAlarmEventLifecycleOverHTTP(t *testing.T) {
	f, store := newAlarmFixture(t)
	ctx := context.Background()

	a := &models.Alarm{
		Name: "fired", Query: "level=ERROR", Condition: models.ConditionGreater,
		Threshold: 1, TimeWindowMinutes: 5, Enabled: true,
		ThrottleWindowMinutes: 10, MaxNotificationsPerWindow: 1, GroupingWindowMinutes: 5,
	}
	if err := store.CreateAlarm(ctx, a); err != nil {
		t.Fatalf("CreateAlarm: %v", err)
	}
	ev := &models.AlarmEvent{
		ID: "ev-1", AlarmID: a.ID, Timestamp: time.Now().UTC(),
		Status: models.AlarmTriggered, MatchCount: 7,
	}
	if err := store.InsertEvent(ctx, ev); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}

	list := f.do(http.MethodGet, "/api/alarms/"+a.ID+"/events", "")
	var events []*models.AlarmEvent
	if err := json.Unmarshal(decodeEnvelope(t, list).Data, &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) != 1 || events[0].MatchCount != 7 {
		t.Fatalf("events = %+v", events)
	}

	ack := f.do(http.MethodPost, "/api/alarms/events/ev-1/acknowledge", `{"by":"oncall"}`)
	if ack.Code != http.StatusOK {
		t.Fatalf("acknowledge = %d, body %s", ack.Code, ack.Body.String())
	}
	var acked models.AlarmEvent
	if err := json.Unmarshal(decodeEnvelope(t, ack).Data, &acked); err != nil {
		t.Fatalf("decode acked: %v", err)
	}
	if acked.Status != models.AlarmAcknowledged || acked.AcknowledgedBy != "oncall" {
		t.Fatalf("acked = %+v", acked)
	}

	// Double acknowledge violates the state machine.
	if rec := f.do(http.MethodPost, "/api/alarms/events/ev-1/acknowledge", ""); rec.Code != http.StatusConflict {
		t.Fatalf("double ack = %d, want 409", rec.Code)
	}

	resolve := f.do(http.MethodPost, "/api/alarms/events/ev-1/resolve", `{"by":"oncall"}`)
	if resolve.Code != http.StatusOK {
		t.Fatalf("resolve = %d", resolve.Code)
	}

	// RESOLVED is terminal.
	if rec := f.do(http.MethodPost, "/api/alarms/events/ev-1/resolve", ""); rec.Code != http.StatusConflict {
		t.Fatalf("resolve after resolve = %d, want 409", rec.Code)
	}
}
