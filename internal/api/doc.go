// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

// Package api provides the HTTP surface: Chi routing, the log search and
// alarm handlers, the HTTP push ingestion endpoint, and the realtime
// SSE/WebSocket feeds.
package api
