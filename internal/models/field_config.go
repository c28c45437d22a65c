// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package models

import (
	"fmt"
	"regexp"
)

// FieldType is the declared type of an extracted field.
type FieldType string

const (
	FieldTypeString  FieldType = "STRING"
	FieldTypeNumber  FieldType = "NUMBER"
	FieldTypeDate    FieldType = "DATE"
	FieldTypeBoolean FieldType = "BOOLEAN"
)

// FieldConfiguration is a named extraction rule applied to every event
// before indexing. The pattern's first capture group wins; when the pattern
// has no groups the whole match is used.
type FieldConfiguration struct {
	Name              string    `json:"name" validate:"required"`
	Type              FieldType `json:"type" validate:"required,oneof=STRING NUMBER DATE BOOLEAN"`
	SourceField       string    `json:"source_field,omitempty"`
	ExtractionPattern string    `json:"extraction_pattern" validate:"required"`
	// DateLayout is the Go time layout used for DATE fields when the value
	// is not RFC3339. Empty means RFC3339.
	DateLayout string `json:"date_layout,omitempty"`
	Stored     bool   `json:"stored"`
	Indexed    bool   `json:"indexed"`
	Tokenized  bool   `json:"tokenized"`
	Enabled    bool   `json:"enabled"`
}

// Compile validates the extraction pattern and returns the compiled regexp.
func (fc *FieldConfiguration) Compile() (*regexp.Regexp, error) {
	re, err := regexp.Compile(fc.ExtractionPattern)
	if err != nil {
		return nil, fmt.Errorf("field %q: pattern does not compile: %w", fc.Name, err)
	}
	return re, nil
}

// Validate checks the invariants the rest of the pipeline relies on.
func (fc *FieldConfiguration) Validate() error {
	if fc.Name == "" {
		return fmt.Errorf("field configuration requires a name")
	}
	switch fc.Type {
	case FieldTypeString, FieldTypeNumber, FieldTypeDate, FieldTypeBoolean:
	default:
		return fmt.Errorf("field %q: unknown type %q", fc.Name, fc.Type)
	}
	_, err := fc.Compile()
	return err
}
