// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/grepwise/grepwise/internal/alarm"
	"github.com/grepwise/grepwise/internal/bus"
	"github.com/grepwise/grepwise/internal/config"
	"github.com/grepwise/grepwise/internal/index"
	"github.com/grepwise/grepwise/internal/models"
	"github.com/grepwise/grepwise/internal/search"
	"github.com/grepwise/grepwise/internal/spl"
)

// SearchService is the query surface the handlers need.
type SearchService interface {
	Search(ctx context.Context, req search.Request) (*search.Result, error)
	Histogram(ctx context.Context, query string, rng spl.TimeRange, interval time.Duration) ([]search.HistogramBucket, error)
	TimeAggregation(ctx context.Context, query string, rng spl.TimeRange, slots int) (map[int64]int, error)
	CacheStats() search.CacheStats
}

// IngestBuffer is the write-behind buffer surface used by HTTP push and
// the health endpoint.
type IngestBuffer interface {
	Enqueue(ctx context.Context, ev *models.LogEvent) error
	Healthy() bool
	Utilization() float64
	Size() int
}

// PartitionInventory exposes partition descriptors for the health report.
type PartitionInventory interface {
	Partitions() []index.Meta
}

var validate = validator.New()

// Handler carries the dependencies for all HTTP endpoints.
type Handler struct {
	search     SearchService
	alarms     *alarm.Store
	buffer     IngestBuffer
	partitions PartitionInventory
	events     *bus.Bus
	push       config.HTTPPushConfig
	startTime  time.Time
}

// NewHandler wires the handler dependencies.
func NewHandler(searchSvc SearchService, alarms *alarm.Store, buf IngestBuffer, partitions PartitionInventory, events *bus.Bus, push config.HTTPPushConfig) *Handler {
	return &Handler{
		search:     searchSvc,
		alarms:     alarms,
		buffer:     buf,
		partitions: partitions,
		events:     events,
		push:       push,
		startTime:  time.Now(),
	}
}

// Health reports aggregate component health. The response degrades to
// 503 when the ingest buffer has been saturated past its warn streak.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	counts := map[index.State]int{}
	for _, meta := range h.partitions.Partitions() {
		counts[meta.State]++
	}

	healthy := h.buffer.Healthy()
	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	respondData(w, code, map[string]any{
		"status":         status,
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"buffer": map[string]any{
			"healthy":     healthy,
			"utilization": h.buffer.Utilization(),
			"size":        h.buffer.Size(),
		},
		"partitions": map[string]any{
			"active": counts[index.StateActive],
			"sealed": counts[index.StateSealed],
		},
		"cache": h.search.CacheStats(),
	})
}
