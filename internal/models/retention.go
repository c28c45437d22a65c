// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package models

import (
	"fmt"
	"time"
)

// RetentionPolicy describes age-based deletion. An event is a deletion
// candidate when max(ingestTime, recordTime) < now - MaxAgeDays.
type RetentionPolicy struct {
	Name       string `json:"name" koanf:"name" validate:"required"`
	MaxAgeDays int    `json:"max_age_days" koanf:"maxAgeDays" validate:"min=1"`
	Enabled    bool   `json:"enabled" koanf:"enabled"`

	// SourceFilter limits the policy to one source. Empty matches all.
	SourceFilter string `json:"source_filter,omitempty" koanf:"sourceFilter"`
}

// Threshold returns the cutoff instant for the given evaluation time.
func (p *RetentionPolicy) Threshold(now time.Time) time.Time {
	return now.Add(-time.Duration(p.MaxAgeDays) * 24 * time.Hour)
}

// Validate checks the policy invariants.
func (p *RetentionPolicy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("retention policy requires a name")
	}
	if p.MaxAgeDays < 1 {
		return fmt.Errorf("retention policy %q: max age must be >= 1 day", p.Name)
	}
	return nil
}
