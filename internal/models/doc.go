// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

// Package models defines the core data types shared across the GrepWise
// pipeline: log events, field extraction rules, alarms and their lifecycle,
// notification channels, and retention policies.
//
// Configuration-like sets (field configurations, alarms, retention policies)
// are published as immutable snapshots; readers load the current snapshot
// once per operation and never observe a partially updated set.
package models
