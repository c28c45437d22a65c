// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package api

import (
	"bufio"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/grepwise/grepwise/internal/buffer"
	"github.com/grepwise/grepwise/internal/ingest"
	"github.com/grepwise/grepwise/internal/models"
	"github.com/grepwise/grepwise/internal/search"
	"github.com/grepwise/grepwise/internal/spl"
)

// maxPushBody caps the HTTP push request body.
const maxPushBody = 10 << 20

// histogramIntervals are the named bucket widths accepted by interval.
var histogramIntervals = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"3h":  3 * time.Hour,
	"6h":  6 * time.Hour,
	"12h": 12 * time.Hour,
	"24h": 24 * time.Hour,
}

// searchQuery folds the isRegex flag into the query text. Regex queries
// become a /pattern/ atom against the message field.
func searchQuery(r *http.Request) string {
	q := r.URL.Query().Get("query")
	if r.URL.Query().Get("isRegex") != "true" {
		return q
	}
	return "/" + strings.ReplaceAll(q, "/", `\/`) + "/"
}

// SearchLogs runs one SPL query over the bounded time range.
func (h *Handler) SearchLogs(w http.ResponseWriter, r *http.Request) {
	rng, err := parseSearchRange(r, time.Now().UTC())
	if err != nil {
		respondWithError(w, err)
		return
	}

	result, err := h.search.Search(r.Context(), search.Request{
		Query: searchQuery(r),
		Range: rng,
		Limit: getIntParam(r, "limit", 0),
	})
	if err != nil {
		respondWithError(w, err)
		return
	}

	if result.Rows != nil {
		respondData(w, http.StatusOK, result.Rows)
		return
	}
	events := result.Events
	if events == nil {
		events = []*models.LogEvent{}
	}
	respondData(w, http.StatusOK, events)
}

// HistogramLogs counts matches per interval over [from, to].
func (h *Handler) HistogramLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	interval, ok := histogramIntervals[q.Get("interval")]
	if !ok {
		respondWithError(w, &badRequestError{"interval must be one of 1m, 5m, 15m, 30m, 1h, 3h, 6h, 12h, 24h"})
		return
	}
	from, err := parseTimestamp(q.Get("from"))
	if err != nil {
		respondWithError(w, &badRequestError{"from must be RFC3339 or epoch milliseconds"})
		return
	}
	to, err := parseTimestamp(q.Get("to"))
	if err != nil {
		respondWithError(w, &badRequestError{"to must be RFC3339 or epoch milliseconds"})
		return
	}

	buckets, err := h.search.Histogram(r.Context(), searchQuery(r), spl.TimeRange{Start: from, End: to}, interval)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondData(w, http.StatusOK, buckets)
}

// TimeAggregationLogs distributes matches over a fixed number of slots.
func (h *Handler) TimeAggregationLogs(w http.ResponseWriter, r *http.Request) {
	slots := getIntParam(r, "slots", 24)
	rng, err := parseSearchRange(r, time.Now().UTC())
	if err != nil {
		respondWithError(w, err)
		return
	}

	slotCounts, err := h.search.TimeAggregation(r.Context(), searchQuery(r), rng, slots)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondData(w, http.StatusOK, slotCounts)
}

// pushRecord is one JSON event in an HTTP push body.
type pushRecord struct {
	Message   string            `json:"message"`
	Level     string            `json:"level"`
	Timestamp string            `json:"timestamp"`
	Metadata  map[string]string `json:"metadata"`
}

func (rec *pushRecord) toEvent(sourceID string) *models.LogEvent {
	level := strings.ToUpper(rec.Level)
	if level == "" {
		level = "INFO"
	}
	ev := models.NewLogEvent(sourceID, level, rec.Message, rec.Message)
	if rec.Timestamp != "" {
		if ts, err := parseTimestamp(rec.Timestamp); err == nil {
			ev.RecordTime = ts
		}
	}
	for k, v := range rec.Metadata {
		ev.Metadata[k] = v
	}
	return ev
}

// authorized checks the bearer token in constant time.
func (h *Handler) authorized(r *http.Request) bool {
	if !h.push.RequireAuth {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.push.AuthToken)) == 1
}

// PushLogs ingests a JSON array or NDJSON body for one source. A full
// buffer surfaces as 429 with the count accepted so far.
func (h *Handler) PushLogs(w http.ResponseWriter, r *http.Request) {
	if !h.push.Enabled {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "http push is disabled")
		return
	}
	if !h.authorized(r) {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid bearer token")
		return
	}
	sourceID := chi.URLParam(r, "sourceId")

	events, err := decodePushBody(r, sourceID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	accepted := 0
	for _, ev := range events {
		if err := h.buffer.Enqueue(r.Context(), ev); err != nil {
			if errors.Is(err, buffer.ErrBufferFull) {
				respondJSON(w, http.StatusTooManyRequests, &models.APIResponse{
					Status:   "error",
					Data:     map[string]int{"accepted": accepted},
					Metadata: models.Metadata{Timestamp: time.Now().UTC()},
					Error:    &models.APIError{Code: "BUFFER_FULL", Message: "ingest buffer is full"},
				})
				return
			}
			respondWithError(w, err)
			return
		}
		accepted++
	}
	respondData(w, http.StatusOK, map[string]int{"accepted": accepted})
}

// decodePushBody accepts a JSON array of records or NDJSON, where each
// NDJSON line is either a JSON record or a raw log line.
func decodePushBody(r *http.Request, sourceID string) ([]*models.LogEvent, error) {
	body := http.MaxBytesReader(nil, r.Body, maxPushBody)
	reader := bufio.NewReader(body)

	head, err := reader.Peek(1)
	if err != nil {
		return nil, &badRequestError{"empty request body"}
	}

	if head[0] == '[' {
		var records []pushRecord
		if err := json.NewDecoder(reader).Decode(&records); err != nil {
			return nil, &badRequestError{"invalid JSON array: " + err.Error()}
		}
		events := make([]*models.LogEvent, 0, len(records))
		for i := range records {
			events = append(events, records[i].toEvent(sourceID))
		}
		return events, nil
	}

	parse := ingest.ParserFor("")
	var events []*models.LogEvent
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "{") {
			var rec pushRecord
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				return nil, &badRequestError{"invalid NDJSON line: " + err.Error()}
			}
			events = append(events, rec.toEvent(sourceID))
			continue
		}
		events = append(events, parse(sourceID, line))
	}
	if err := scanner.Err(); err != nil {
		return nil, &badRequestError{"reading request body: " + err.Error()}
	}
	return events, nil
}
