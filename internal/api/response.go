// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/grepwise/grepwise/internal/alarm"
	"github.com/grepwise/grepwise/internal/buffer"
	"github.com/grepwise/grepwise/internal/logging"
	"github.com/grepwise/grepwise/internal/models"
	"github.com/grepwise/grepwise/internal/search"
	"github.com/grepwise/grepwise/internal/spl"
)

// respondJSON sends the standard response envelope.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("failed to write JSON response")
	}
}

// respondData wraps a successful payload.
func respondData(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, &models.APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
	})
}

// respondError sends an error envelope.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, &models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
		Error:    &models.APIError{Code: code, Message: message},
	})
}

// respondWithError maps a domain error onto the HTTP taxonomy and sends it.
func respondWithError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logging.Error().Err(err).Msg("request failed")
	}
	respondError(w, status, code, err.Error())
}

// badRequestError marks request parameter problems detected before any
// domain call.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

// errorStatus translates domain errors into status codes and error codes.
func errorStatus(err error) (int, string) {
	var syntaxErr *spl.SyntaxError
	var unknownField *spl.UnknownFieldError
	var typeMismatch *spl.TypeMismatchError
	var badReq *badRequestError
	switch {
	case errors.As(err, &syntaxErr),
		errors.As(err, &unknownField),
		errors.As(err, &typeMismatch),
		errors.As(err, &badReq),
		errors.Is(err, search.ErrUnboundedRange):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, alarm.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, alarm.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, alarm.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, buffer.ErrBufferFull):
		return http.StatusTooManyRequests, "BUFFER_FULL"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "DEADLINE_EXCEEDED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// getIntParam extracts an integer query parameter with a default value.
func getIntParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// parseTimestamp accepts RFC3339 or epoch milliseconds.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

// relativeRanges are the named lookback windows accepted by timeRange.
var relativeRanges = map[string]time.Duration{
	"1h":  time.Hour,
	"3h":  3 * time.Hour,
	"12h": 12 * time.Hour,
	"24h": 24 * time.Hour,
}

// parseSearchRange resolves the timeRange/startTime/endTime parameters.
// An empty timeRange defaults to the last 24 hours.
func parseSearchRange(r *http.Request, now time.Time) (spl.TimeRange, error) {
	q := r.URL.Query()
	name := q.Get("timeRange")

	if d, ok := relativeRanges[name]; ok {
		return spl.TimeRange{Start: now.Add(-d), End: now}, nil
	}
	if name != "" && name != "custom" {
		return spl.TimeRange{}, &badRequestError{"timeRange must be one of 1h, 3h, 12h, 24h, custom"}
	}

	startRaw, endRaw := q.Get("startTime"), q.Get("endTime")
	if name == "" && startRaw == "" && endRaw == "" {
		return spl.TimeRange{Start: now.Add(-24 * time.Hour), End: now}, nil
	}
	start, err := parseTimestamp(startRaw)
	if err != nil {
		return spl.TimeRange{}, &badRequestError{"startTime must be RFC3339 or epoch milliseconds"}
	}
	end, err := parseTimestamp(endRaw)
	if err != nil {
		return spl.TimeRange{}, &badRequestError{"endTime must be RFC3339 or epoch milliseconds"}
	}
	if !end.After(start) {
		return spl.TimeRange{}, &badRequestError{"endTime must be after startTime"}
	}
	return spl.TimeRange{Start: start, End: end}, nil
}
