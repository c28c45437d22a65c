// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package api

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/grepwise/grepwise/internal/bus"
	"github.com/grepwise/grepwise/internal/config"
	"github.com/grepwise/grepwise/internal/models"
)

func newRealtimeServer(t *testing.T) (*httptest.Server, *bus.Bus) {
	t.Helper()
	b := bus.New()
	t.Cleanup(b.Close)
	handler := NewHandler(&fakeSearch{}, nil, &fakeIngestBuffer{healthy: true}, &fakePartitions{}, b, config.HTTPPushConfig{})
	srv := httptest.NewServer(NewRouter(handler, config.ServerConfig{
		Timeout:           5 * time.Second,
		RateLimitDisabled: true,
	}).Setup())
	t.Cleanup(srv.Close)
	return srv, b
}

// readSSEEvent reads frames until one with the given event name arrives.
func readSSEEvent(t *testing.T, reader *bufio.Reader, name string) string {
	t.Helper()
	deadline := time.After(5 * time.Second)
	var event, data string
	for {
		select {
		case <-deadline:
			t.Fatalf("no %q event within deadline", name)
		default:
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read SSE stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if event == name {
				return data
			}
			event, data = "", ""
		}
	}
}

func TestSSEStreamDeliversMatchingEvents(t *testing.T) {
	srv, b := newRealtimeServer(t)

	resp, err := http.Get(srv.URL + "/api/realtime/logs?query=level%3DERROR")
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	// Give the handler a moment to subscribe before publishing.
	time.Sleep(100 * time.Millisecond)
	b.Publish(bus.TopicLogsIngested, models.NewLogEvent("app", "INFO", "filtered out", "filtered out"))
	b.Publish(bus.TopicLogsIngested, models.NewLogEvent("app", "ERROR", "kernel panic", "kernel panic"))

	data := readSSEEvent(t, bufio.NewReader(resp.Body), "message")
	var ev models.LogEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		t.Fatalf("decode event: %v\ndata: %s", err, data)
	}
	if ev.Message != "kernel panic" {
		t.Fatalf("streamed message = %q, filter leaked", ev.Message)
	}
}

func TestSSEStreamRejectsBadQuery(t *testing.T) {
	srv, _ := newRealtimeServer(t)
	resp, err := http.Get(srv.URL + "/api/realtime/logs?query=level%3D")
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestWebSocketStreamDeliversEvents(t *testing.T) {
	srv, b := newRealtimeServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/realtime/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()
	_ = resp.Body.Close()

	time.Sleep(100 * time.Millisecond)
	b.Publish(bus.TopicLogsIngested, models.NewLogEvent("app", "WARN", "disk filling", "disk filling"))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if msg.Type != "log" || msg.Data == nil || msg.Data.Message != "disk filling" {
		t.Fatalf("frame = %+v", msg)
	}
}
