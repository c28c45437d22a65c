// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

// Package index owns the inverted log index. Events live in time-bucketed
// partitions, each backed by its own Bluge index directory with a single
// writer. The Manager routes writes to ACTIVE partitions, seals buckets as
// time rolls over, and fans searches out across every partition whose time
// span overlaps the query.
package index
