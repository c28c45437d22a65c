// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

// Package metrics exposes Prometheus instrumentation for the ingestion
// pipeline, index partitions, search, alarms, and the realtime feed.
// Instruments are registered with promauto at package init and scraped
// from /metrics.
package metrics
