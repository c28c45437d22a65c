// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/grepwise/grepwise/internal/config"
	"github.com/grepwise/grepwise/internal/middleware"
)

// Router builds the HTTP handler tree.
type Router struct {
	handler *Handler
	cfg     config.ServerConfig
}

// NewRouter creates a router serving the given handler set.
func NewRouter(handler *Handler, cfg config.ServerConfig) *Router {
	return &Router{handler: handler, cfg: cfg}
}

// rateLimit returns the per-IP limiter, or a pass-through when disabled.
func (rt *Router) rateLimit() func(http.Handler) http.Handler {
	if rt.cfg.RateLimitDisabled || rt.cfg.RateLimitReqs <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.LimitByIP(rt.cfg.RateLimitReqs, rt.cfg.RateLimitWindow)
}

// Setup wires every route. Synchronous query endpoints run under the
// server timeout so slow searches surface as 504 instead of hanging;
// the realtime feeds are exempt since they hold connections open.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		MaxAge:         86400,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/health", rt.handler.Health)

	r.Route("/api/logs", func(r chi.Router) {
		r.Use(rt.rateLimit())
		r.With(chimiddleware.Timeout(rt.cfg.Timeout)).Group(func(r chi.Router) {
			r.Get("/search", rt.handler.SearchLogs)
			r.Get("/histogram", rt.handler.HistogramLogs)
			r.Get("/time-aggregation", rt.handler.TimeAggregationLogs)
		})
		r.Post("/http-push/{sourceId}", rt.handler.PushLogs)
	})

	r.Route("/api/alarms", func(r chi.Router) {
		r.Use(rt.rateLimit())
		r.Get("/", rt.handler.ListAlarms)
		r.Post("/", rt.handler.CreateAlarm)
		r.Get("/{id}", rt.handler.GetAlarm)
		r.Put("/{id}", rt.handler.UpdateAlarm)
		r.Delete("/{id}", rt.handler.DeleteAlarm)
		r.Get("/{id}/events", rt.handler.ListAlarmEvents)
		r.Post("/events/{eventId}/acknowledge", rt.handler.AcknowledgeAlarmEvent)
		r.Post("/events/{eventId}/resolve", rt.handler.ResolveAlarmEvent)
	})

	r.Route("/api/realtime", func(r chi.Router) {
		r.Get("/logs", rt.handler.StreamLogsSSE)
		r.Get("/ws", rt.handler.StreamLogsWS)
	})

	return r
}
