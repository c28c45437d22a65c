// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/grepwise/grepwise/internal/models"
)

// decodeAlarm reads and validates an alarm payload.
func decodeAlarm(r *http.Request) (*models.Alarm, error) {
	var a models.Alarm
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(&a); err != nil {
		return nil, &badRequestError{"invalid alarm JSON: " + err.Error()}
	}
	if err := validate.Struct(&a); err != nil {
		return nil, &badRequestError{"invalid alarm: " + err.Error()}
	}
	return &a, nil
}

// ListAlarms returns every alarm.
func (h *Handler) ListAlarms(w http.ResponseWriter, r *http.Request) {
	alarms, err := h.alarms.ListAlarms(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}
	if alarms == nil {
		alarms = []*models.Alarm{}
	}
	respondData(w, http.StatusOK, alarms)
}

// CreateAlarm stores a new alarm rule.
func (h *Handler) CreateAlarm(w http.ResponseWriter, r *http.Request) {
	a, err := decodeAlarm(r)
	if err != nil {
		respondWithError(w, err)
		return
	}
	if err := h.alarms.CreateAlarm(r.Context(), a); err != nil {
		respondWithError(w, err)
		return
	}
	respondData(w, http.StatusCreated, a)
}

// GetAlarm returns one alarm by id.
func (h *Handler) GetAlarm(w http.ResponseWriter, r *http.Request) {
	a, err := h.alarms.GetAlarm(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondData(w, http.StatusOK, a)
}

// UpdateAlarm replaces an alarm definition. The path id wins over any id
// in the body.
func (h *Handler) UpdateAlarm(w http.ResponseWriter, r *http.Request) {
	a, err := decodeAlarm(r)
	if err != nil {
		respondWithError(w, err)
		return
	}
	a.ID = chi.URLParam(r, "id")
	if err := h.alarms.UpdateAlarm(r.Context(), a); err != nil {
		respondWithError(w, err)
		return
	}
	respondData(w, http.StatusOK, a)
}

// DeleteAlarm removes an alarm and its history.
func (h *Handler) DeleteAlarm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.alarms.DeleteAlarm(r.Context(), id); err != nil {
		respondWithError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"deleted": id})
}

// ListAlarmEvents returns an alarm's firing history, newest first.
func (h *Handler) ListAlarmEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.alarms.ListEvents(r.Context(), chi.URLParam(r, "id"), getIntParam(r, "limit", 100))
	if err != nil {
		respondWithError(w, err)
		return
	}
	if events == nil {
		events = []*models.AlarmEvent{}
	}
	respondData(w, http.StatusOK, events)
}

// transitionRequest names the operator performing an ack/resolve.
type transitionRequest struct {
	By string `json:"by"`
}

func decodeTransition(r *http.Request) string {
	var req transitionRequest
	_ = json.NewDecoder(http.MaxBytesReader(nil, r.Body, 4096)).Decode(&req)
	if req.By == "" {
		return "api"
	}
	return req.By
}

// AcknowledgeAlarmEvent moves a TRIGGERED event to ACKNOWLEDGED.
func (h *Handler) AcknowledgeAlarmEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.alarms.Acknowledge(r.Context(), chi.URLParam(r, "eventId"), decodeTransition(r))
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondData(w, http.StatusOK, ev)
}

// ResolveAlarmEvent moves an event to the terminal RESOLVED state.
func (h *Handler) ResolveAlarmEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.alarms.Resolve(r.Context(), chi.URLParam(r, "eventId"), decodeTransition(r))
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondData(w, http.StatusOK, ev)
}
