// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/grepwise/grepwise/internal/bus"
	"github.com/grepwise/grepwise/internal/logging"
	"github.com/grepwise/grepwise/internal/models"
	"github.com/grepwise/grepwise/internal/spl"
)

// heartbeatInterval keeps idle SSE connections from being reaped by
// proxies.
const heartbeatInterval = 15 * time.Second

// writeTimeout bounds a single WebSocket write.
const writeTimeout = 10 * time.Second

// streamPredicate compiles the optional query filter for a realtime feed.
func streamPredicate(r *http.Request) (spl.Predicate, error) {
	q := r.URL.Query().Get("query")
	if q == "" {
		return spl.MatchAll{}, nil
	}
	compiled, err := spl.Compile(searchQuery(r), spl.TimeRange{}, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return compiled.Predicate, nil
}

// StreamLogsSSE streams matching events as server-sent events. A slow
// client receives a lagged signal instead of stale backlog and should
// re-query to fill the gap.
func (h *Handler) StreamLogsSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming unsupported")
		return
	}
	pred, err := streamPredicate(r)
	if err != nil {
		respondWithError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.events.Subscribe(bus.TopicLogsIngested, 0)
	defer sub.Close()

	var mu sync.Mutex
	write := func(format string, args ...any) {
		mu.Lock()
		fmt.Fprintf(w, format, args...)
		flusher.Flush()
		mu.Unlock()
	}

	ctx := r.Context()
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				write(": ping\n\n")
			}
		}
	}()

	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			var lagged *bus.LaggedError
			if errors.As(err, &lagged) {
				write("event: lagged\ndata: {\"skipped\":%d}\n\n", lagged.Skipped)
				continue
			}
			return
		}
		logEv, ok := ev.Payload.(*models.LogEvent)
		if !ok || !spl.MatchEvent(pred, logEv) {
			continue
		}
		data, err := json.Marshal(logEv)
		if err != nil {
			logging.Error().Err(err).Msg("failed to marshal SSE event")
			continue
		}
		write("event: message\ndata: %s\n\n", data)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// CORS already gates browser access at the router.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsMessage is the frame format on the WebSocket feed.
type wsMessage struct {
	Type    string           `json:"type"`
	Data    *models.LogEvent `json:"data,omitempty"`
	Skipped uint64           `json:"skipped,omitempty"`
}

// StreamLogsWS streams matching events over a WebSocket, mirroring the
// SSE feed for clients that need bidirectional transport.
func (h *Handler) StreamLogsWS(w http.ResponseWriter, r *http.Request) {
	pred, err := streamPredicate(r)
	if err != nil {
		respondWithError(w, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Read pump: discard client frames, notice the close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	sub := h.events.Subscribe(bus.TopicLogsIngested, 0)
	defer sub.Close()

	send := func(msg wsMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(msg)
	}

	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			var lagged *bus.LaggedError
			if errors.As(err, &lagged) {
				if err := send(wsMessage{Type: "lagged", Skipped: lagged.Skipped}); err != nil {
					return
				}
				continue
			}
			return
		}
		logEv, ok := ev.Payload.(*models.LogEvent)
		if !ok || !spl.MatchEvent(pred, logEv) {
			continue
		}
		if err := send(wsMessage{Type: "log", Data: logEv}); err != nil {
			return
		}
	}
}
