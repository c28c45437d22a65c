// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package models

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// LogEvent is the atomic unit flowing through the pipeline.
//
// Ownership: the ingestion pipeline owns an event exclusively until it is
// handed to the index store; once indexed, the index store is the sole owner
// and the event is never mutated again. The field extractor is the last stage
// allowed to augment Metadata.
type LogEvent struct {
	// ID is a 128-bit ULID. ULIDs are lexicographically ordered by creation
	// time, which makes the string compare used for sort tie-breaks stable.
	ID string `json:"id"`

	// IngestTime is the wall-clock time the event entered the pipeline.
	IngestTime time.Time `json:"ingest_time"`

	// RecordTime is the timestamp parsed from the payload, if any.
	// Zero when the payload carried no usable timestamp.
	RecordTime time.Time `json:"record_time,omitempty"`

	// Level is a free-form severity label (e.g. "INFO", "ERROR").
	Level string `json:"level"`

	// Source identifies the logical origin (file path, syslog host, source id).
	Source string `json:"source"`

	// Message is the parsed body of the event.
	Message string `json:"message"`

	// RawContent is the original wire line, stored verbatim.
	RawContent string `json:"raw_content"`

	// Metadata carries structured key/value pairs, augmented by the field
	// extractor before indexing.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewEventID returns a fresh ULID string for a log event.
func NewEventID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// NewLogEvent constructs an event with a fresh ID and the current ingest time.
func NewLogEvent(source, level, message, raw string) *LogEvent {
	return &LogEvent{
		ID:         NewEventID(),
		IngestTime: time.Now().UTC(),
		Level:      level,
		Source:     source,
		Message:    message,
		RawContent: raw,
		Metadata:   make(map[string]string),
	}
}

// EffectiveTime returns the record time when the payload carried one,
// falling back to the ingest time. Partition routing and retention both
// key off this value.
func (e *LogEvent) EffectiveTime() time.Time {
	if !e.RecordTime.IsZero() {
		return e.RecordTime
	}
	return e.IngestTime
}

// RetentionTime returns max(ingestTime, recordTime), the timestamp the
// retention worker compares against policy thresholds.
func (e *LogEvent) RetentionTime() time.Time {
	if e.RecordTime.After(e.IngestTime) {
		return e.RecordTime
	}
	return e.IngestTime
}

// Clone returns a deep copy. Used when an event crosses an ownership
// boundary that must not alias the original metadata map.
func (e *LogEvent) Clone() *LogEvent {
	cp := *e
	if e.Metadata != nil {
		cp.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
