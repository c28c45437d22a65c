// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package models

import "sync/atomic"

// Snapshot holds an immutable value swapped atomically on update.
// Readers take the current value with a single load and must treat the
// result as read-only; writers publish a fully built replacement.
type Snapshot[T any] struct {
	v atomic.Pointer[T]
}

// NewSnapshot creates a snapshot holding the initial value.
func NewSnapshot[T any](initial *T) *Snapshot[T] {
	s := &Snapshot[T]{}
	s.v.Store(initial)
	return s
}

// Load returns the current value.
func (s *Snapshot[T]) Load() *T {
	return s.v.Load()
}

// Store publishes a new value.
func (s *Snapshot[T]) Store(next *T) {
	s.v.Store(next)
}
