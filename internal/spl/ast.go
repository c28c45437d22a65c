// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package spl

import "time"

// DefaultField is the field a bare term matches against.
const DefaultField = "message"

// Predicate is the index-side search expression tree. It is a pure value;
// the index layer translates it into engine-specific queries, and the
// executor can also evaluate it against rows for post-filtering.
type Predicate interface {
	isPredicate()
}

// MatchAll matches every event. An empty query compiles to this.
type MatchAll struct{}

// And matches when every child matches.
type And struct {
	Preds []Predicate
}

// Or matches when any child matches.
type Or struct {
	Preds []Predicate
}

// Not inverts its child.
type Not struct {
	Pred Predicate
}

// Term is an exact single-token match on a field.
type Term struct {
	Field string
	Value string
}

// Phrase is a position-aware multi-token match on a field.
type Phrase struct {
	Field string
	Value string
}

// Wildcard matches with * and ? glob characters.
type Wildcard struct {
	Field   string
	Pattern string
}

// Regex matches a field against a regular expression.
type Regex struct {
	Field   string
	Pattern string
}

// Range is an inclusive [min TO max] match. Empty Min or Max means open.
type Range struct {
	Field string
	Min   string
	Max   string
}

// CompareOp is a relational operator in a field comparison.
type CompareOp string

const (
	OpGt  CompareOp = ">"
	OpGte CompareOp = ">="
	OpLt  CompareOp = "<"
	OpLte CompareOp = "<="
)

// Compare is a relational match on a numeric or date field.
type Compare struct {
	Field string
	Op    CompareOp
	Value string
}

func (MatchAll) isPredicate() {}
func (And) isPredicate()      {}
func (Or) isPredicate()       {}
func (Not) isPredicate()      {}
func (Term) isPredicate()     {}
func (Phrase) isPredicate()   {}
func (Wildcard) isPredicate() {}
func (Regex) isPredicate()    {}
func (Range) isPredicate()    {}
func (Compare) isPredicate()  {}

// Command is one pipeline stage following the search expression.
type Command interface {
	isCommand()
}

// AggFunc names a stats aggregation function.
type AggFunc string

const (
	AggCount         AggFunc = "count"
	AggSum           AggFunc = "sum"
	AggAvg           AggFunc = "avg"
	AggMin           AggFunc = "min"
	AggMax           AggFunc = "max"
	AggDistinctCount AggFunc = "distinct_count"
)

// Aggregation is one stats output column.
type Aggregation struct {
	Func  AggFunc
	Field string // empty for count
}

// OutputName is the result column name for the aggregation.
func (a Aggregation) OutputName() string {
	if a.Func == AggCount && a.Field == "" {
		return "count"
	}
	return string(a.Func) + "(" + a.Field + ")"
}

// StatsCommand aggregates rows, optionally grouped by fields.
type StatsCommand struct {
	Aggs []Aggregation
	By   []string
}

// WhereCommand filters rows with a boolean expression.
type WhereCommand struct {
	Expr Expr
}

// EvalCommand adds or replaces a field computed from an expression.
type EvalCommand struct {
	Field string
	Expr  Expr
}

// SortKey is one sort criterion. Desc sorts descending.
type SortKey struct {
	Field string
	Desc  bool
}

// SortCommand orders rows by keys. The sort is stable.
type SortCommand struct {
	Keys []SortKey
}

// HeadCommand keeps the first N rows.
type HeadCommand struct {
	N int
}

// RenameCommand renames a result column.
type RenameCommand struct {
	From string
	To   string
}

func (StatsCommand) isCommand()  {}
func (WhereCommand) isCommand()  {}
func (EvalCommand) isCommand()   {}
func (SortCommand) isCommand()   {}
func (HeadCommand) isCommand()   {}
func (RenameCommand) isCommand() {}

// Expr is a scalar expression used by where and eval.
type Expr interface {
	isExpr()
}

// NumberLit is a numeric literal.
type NumberLit struct {
	Value float64
}

// StringLit is a string literal.
type StringLit struct {
	Value string
}

// FieldRef reads a row field.
type FieldRef struct {
	Name string
}

// BinaryExpr applies an operator to two operands. Operators: arithmetic
// (+ - * /), comparison (= != > >= < <=), and boolean (AND OR).
type BinaryExpr struct {
	Op string
	L  Expr
	R  Expr
}

// NotExpr is boolean negation.
type NotExpr struct {
	X Expr
}

func (NumberLit) isExpr()  {}
func (StringLit) isExpr()  {}
func (FieldRef) isExpr()   {}
func (BinaryExpr) isExpr() {}
func (NotExpr) isExpr()    {}

// TimeRange is the absolute time window a query runs over.
// Zero Start or End means unbounded on that side.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// Overlaps reports whether [start, end] intersects the range.
func (r TimeRange) Overlaps(start, end time.Time) bool {
	if !r.Start.IsZero() && end.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && start.After(r.End) {
		return false
	}
	return true
}

// Query is the parsed form of one SPL pipeline expression.
type Query struct {
	Search   Predicate
	Pipeline []Command
	// Range carries earliest=/latest= from the query string. The executor
	// intersects it with request-level bounds.
	Range TimeRange
}

// CompiledQuery is the validated, executable form of a query: the index
// predicate, the resolved time range, and the command pipeline.
type CompiledQuery struct {
	Predicate Predicate
	Range     TimeRange
	Pipeline  []Command
	// Canonical is the canonical printed form, used for fingerprinting.
	Canonical string
}

// HasStats reports whether the pipeline contains a stats stage, meaning
// results are aggregate rows rather than log events.
func (q *CompiledQuery) HasStats() bool {
	for _, c := range q.Pipeline {
		if _, ok := c.(StatsCommand); ok {
			return true
		}
	}
	return false
}

// NeedsFullMaterialization reports whether the executor must collect every
// matching event before running the pipeline, rather than capping fan-out
// at the request limit.
func (q *CompiledQuery) NeedsFullMaterialization() bool {
	for _, c := range q.Pipeline {
		switch c.(type) {
		case StatsCommand, SortCommand:
			return true
		}
	}
	return false
}
