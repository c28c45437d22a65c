// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package spl

import "fmt"

// SyntaxError reports a parse failure at a byte offset in the query string.
type SyntaxError struct {
	Position int
	Expected string
	Got      string
}

func (e *SyntaxError) Error() string {
	if e.Got == "" {
		return fmt.Sprintf("syntax error at offset %d: expected %s", e.Position, e.Expected)
	}
	return fmt.Sprintf("syntax error at offset %d: expected %s, got %q", e.Position, e.Expected, e.Got)
}

// UnknownFieldError reports a pipeline command referencing a field that the
// preceding stage cannot produce.
type UnknownFieldError struct {
	Name string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q", e.Name)
}

// TypeMismatchError reports a value whose runtime type does not satisfy an
// operation. Mixed-type aggregation inputs surface this instead of being
// silently coerced.
type TypeMismatchError struct {
	Field    string
	Expected string
	Got      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch on field %q: expected %s, got %s", e.Field, e.Expected, e.Got)
}
