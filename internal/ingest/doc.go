// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

// Package ingest hosts the log sources: file tailers, syslog listeners,
// and the CloudWatch puller. Every source translates its wire format to
// a LogEvent and enqueues it into the write-behind buffer; a failing
// source backs off exponentially without affecting the others.
package ingest
