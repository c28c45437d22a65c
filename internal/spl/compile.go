// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package spl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Compile parses and validates a query, resolves earliest=/latest= time
// specifiers against now, and intersects them with the request-level range.
func Compile(input string, reqRange TimeRange, now time.Time) (*CompiledQuery, error) {
	q, err := Parse(input)
	if err != nil {
		return nil, err
	}

	pred, qRange, err := extractTimeBounds(q.Search, now)
	if err != nil {
		return nil, err
	}
	q.Search = pred
	q.Range = qRange

	if err := validatePipeline(q.Pipeline); err != nil {
		return nil, err
	}

	rng := intersectRanges(qRange, reqRange)

	return &CompiledQuery{
		Predicate: q.Search,
		Range:     rng,
		Pipeline:  q.Pipeline,
		Canonical: Print(q),
	}, nil
}

// intersectRanges returns the overlap of two ranges, treating zero bounds
// as open.
func intersectRanges(a, b TimeRange) TimeRange {
	out := a
	if !b.Start.IsZero() && (out.Start.IsZero() || b.Start.After(out.Start)) {
		out.Start = b.Start
	}
	if !b.End.IsZero() && (out.End.IsZero() || b.End.Before(out.End)) {
		out.End = b.End
	}
	return out
}

// extractTimeBounds removes earliest=/latest= terms from the predicate and
// returns the resulting time range. The specifiers are only honored at the
// top level of the search expression (directly, or inside the top AND).
func extractTimeBounds(pred Predicate, now time.Time) (Predicate, TimeRange, error) {
	var rng TimeRange

	consume := func(p Predicate) (bool, error) {
		t, ok := p.(Term)
		if !ok {
			return false, nil
		}
		switch strings.ToLower(t.Field) {
		case "earliest":
			ts, err := ParseTimeSpec(t.Value, now)
			if err != nil {
				return false, err
			}
			rng.Start = ts
			return true, nil
		case "latest":
			ts, err := ParseTimeSpec(t.Value, now)
			if err != nil {
				return false, err
			}
			rng.End = ts
			return true, nil
		}
		return false, nil
	}

	if took, err := consume(pred); err != nil {
		return nil, rng, err
	} else if took {
		return MatchAll{}, rng, nil
	}

	and, ok := pred.(And)
	if !ok {
		return pred, rng, nil
	}

	kept := make([]Predicate, 0, len(and.Preds))
	for _, p := range and.Preds {
		took, err := consume(p)
		if err != nil {
			return nil, rng, err
		}
		if !took {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return MatchAll{}, rng, nil
	case 1:
		return kept[0], rng, nil
	default:
		return And{Preds: kept}, rng, nil
	}
}

var relativeSpec = regexp.MustCompile(`^-(\d+)([smhdw])$`)

// ParseTimeSpec resolves a time specifier: "now", a relative offset like
// "-15m" or "-7d", epoch milliseconds, or an RFC3339 timestamp.
func ParseTimeSpec(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "now") {
		return now, nil
	}

	if m := relativeSpec.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid time specifier %q", s)
		}
		var unit time.Duration
		switch m[2] {
		case "s":
			unit = time.Second
		case "m":
			unit = time.Minute
		case "h":
			unit = time.Hour
		case "d":
			unit = 24 * time.Hour
		case "w":
			unit = 7 * 24 * time.Hour
		}
		return now.Add(-time.Duration(n) * unit), nil
	}

	if allDigits(s) && len(s) >= 12 {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid time specifier %q", s)
		}
		return time.UnixMilli(ms).UTC(), nil
	}

	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid time specifier %q", s)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// validatePipeline checks field references command by command. Before a
// stats stage the row schema is open (fields resolve against event metadata
// at search time); once stats closes the schema, every reference must name
// a column the aggregate actually produces.
func validatePipeline(cmds []Command) error {
	// schema == nil means open.
	var schema map[string]struct{}

	refError := func(name string) error {
		if schema == nil {
			return nil
		}
		if _, ok := schema[name]; !ok {
			return &UnknownFieldError{Name: name}
		}
		return nil
	}

	for _, cmd := range cmds {
		switch c := cmd.(type) {
		case StatsCommand:
			if len(c.Aggs) == 0 {
				return &SyntaxError{Expected: "at least one aggregation"}
			}
			for _, agg := range c.Aggs {
				if agg.Func != AggCount && agg.Field == "" {
					return &SyntaxError{Expected: "field for " + string(agg.Func)}
				}
				if err := refError(agg.Field); agg.Field != "" && err != nil {
					return err
				}
			}
			for _, by := range c.By {
				if err := refError(by); err != nil {
					return err
				}
			}
			schema = make(map[string]struct{})
			for _, by := range c.By {
				schema[by] = struct{}{}
			}
			for _, agg := range c.Aggs {
				schema[agg.OutputName()] = struct{}{}
			}

		case WhereCommand:
			for _, ref := range exprFields(c.Expr) {
				if err := refError(ref); err != nil {
					return err
				}
			}

		case EvalCommand:
			for _, ref := range exprFields(c.Expr) {
				if err := refError(ref); err != nil {
					return err
				}
			}
			if schema != nil {
				schema[c.Field] = struct{}{}
			}

		case SortCommand:
			for _, key := range c.Keys {
				if err := refError(key.Field); err != nil {
					return err
				}
			}

		case HeadCommand:
			// No field references.

		case RenameCommand:
			if err := refError(c.From); err != nil {
				return err
			}
			if schema != nil {
				delete(schema, c.From)
				schema[c.To] = struct{}{}
			}
		}
	}
	return nil
}

// exprFields collects field references from a scalar expression.
func exprFields(e Expr) []string {
	var out []string
	var walk func(Expr)
	walk = func(e Expr) {
		switch x := e.(type) {
		case FieldRef:
			out = append(out, x.Name)
		case BinaryExpr:
			walk(x.L)
			walk(x.R)
		case NotExpr:
			walk(x.X)
		}
	}
	walk(e)
	return out
}
