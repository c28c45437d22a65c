// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package spl

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Row is one tabular result. Values are string, float64, bool, or
// time.Time; numeric metadata arrives as canonical strings and is coerced
// lazily by comparisons and aggregations.
type Row map[string]any

// ExecutePipeline runs the command pipeline over materialized rows.
// stats and sort consume the whole input; where, eval, head, and rename
// stream row by row.
func ExecutePipeline(rows []Row, cmds []Command) ([]Row, error) {
	var err error
	for _, cmd := range cmds {
		switch c := cmd.(type) {
		case StatsCommand:
			rows, err = execStats(rows, c)
		case WhereCommand:
			rows, err = execWhere(rows, c)
		case EvalCommand:
			rows, err = execEval(rows, c)
		case SortCommand:
			execSort(rows, c)
		case HeadCommand:
			if c.N < len(rows) {
				rows = rows[:c.N]
			}
		case RenameCommand:
			for _, row := range rows {
				if v, ok := row[c.From]; ok {
					delete(row, c.From)
					row[c.To] = v
				}
			}
		default:
			err = fmt.Errorf("unsupported pipeline command %T", cmd)
		}
		if err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// --- stats ---

type aggState struct {
	count    int64
	sum      float64
	min      any
	max      any
	distinct map[string]struct{}
}

func execStats(rows []Row, cmd StatsCommand) ([]Row, error) {
	type group struct {
		keys  []any
		state []*aggState
	}
	groups := make(map[string]*group)
	var order []string

	for _, row := range rows {
		keyParts := make([]string, len(cmd.By))
		keyVals := make([]any, len(cmd.By))
		for i, by := range cmd.By {
			v, ok := row[by]
			if !ok {
				v = ""
			}
			keyParts[i] = formatValue(v)
			keyVals[i] = v
		}
		key := strings.Join(keyParts, "\x00")

		g := groups[key]
		if g == nil {
			g = &group{keys: keyVals, state: make([]*aggState, len(cmd.Aggs))}
			for i := range g.state {
				g.state[i] = &aggState{distinct: make(map[string]struct{})}
			}
			groups[key] = g
			order = append(order, key)
		}

		for i, agg := range cmd.Aggs {
			if err := accumulate(g.state[i], agg, row); err != nil {
				return nil, err
			}
		}
	}

	out := make([]Row, 0, len(order))
	for _, key := range order {
		g := groups[key]
		row := make(Row, len(cmd.By)+len(cmd.Aggs))
		for i, by := range cmd.By {
			row[by] = g.keys[i]
		}
		for i, agg := range cmd.Aggs {
			row[agg.OutputName()] = finalize(g.state[i], agg)
		}
		out = append(out, row)
	}
	return out, nil
}

func accumulate(st *aggState, agg Aggregation, row Row) error {
	if agg.Func == AggCount && agg.Field == "" {
		st.count++
		return nil
	}

	v, ok := row[agg.Field]
	if !ok || v == nil {
		return nil
	}

	switch agg.Func {
	case AggCount:
		st.count++
	case AggDistinctCount:
		st.distinct[formatValue(v)] = struct{}{}
	case AggSum, AggAvg:
		n, ok := toNumber(v)
		if !ok {
			return &TypeMismatchError{Field: agg.Field, Expected: "number", Got: typeName(v)}
		}
		st.sum += n
		st.count++
	case AggMin, AggMax:
		return accumulateMinMax(st, agg, v)
	}
	return nil
}

// accumulateMinMax tracks an extremum. Values must stay one comparable
// type across the group; a mix of numbers and strings is an error rather
// than a silent coercion.
func accumulateMinMax(st *aggState, agg Aggregation, v any) error {
	cur := st.min
	if agg.Func == AggMax {
		cur = st.max
	}

	if cur != nil {
		_, curNum := toNumber(cur)
		_, vNum := toNumber(v)
		if curNum != vNum {
			return &TypeMismatchError{Field: agg.Field, Expected: typeName(cur), Got: typeName(v)}
		}
	}

	replace := cur == nil
	if !replace {
		c := compareValues(v, cur)
		if agg.Func == AggMin {
			replace = c < 0
		} else {
			replace = c > 0
		}
	}
	if replace {
		if agg.Func == AggMin {
			st.min = v
		} else {
			st.max = v
		}
	}
	return nil
}

func finalize(st *aggState, agg Aggregation) any {
	switch agg.Func {
	case AggCount:
		return float64(st.count)
	case AggSum:
		return st.sum
	case AggAvg:
		if st.count == 0 {
			return 0.0
		}
		return st.sum / float64(st.count)
	case AggMin:
		return st.min
	case AggMax:
		return st.max
	case AggDistinctCount:
		return float64(len(st.distinct))
	default:
		return nil
	}
}

// --- where / eval ---

func execWhere(rows []Row, cmd WhereCommand) ([]Row, error) {
	out := rows[:0]
	for _, row := range rows {
		v, err := evalExpr(row, cmd.Expr)
		if err != nil {
			return nil, err
		}
		if b, ok := v.(bool); ok && b {
			out = append(out, row)
		}
	}
	return out, nil
}

func execEval(rows []Row, cmd EvalCommand) ([]Row, error) {
	for _, row := range rows {
		v, err := evalExpr(row, cmd.Expr)
		if err != nil {
			return nil, err
		}
		row[cmd.Field] = v
	}
	return rows, nil
}

// evalExpr evaluates a scalar expression. A missing field yields nil;
// comparisons against nil are false and arithmetic on nil yields nil, so
// sparse rows filter out instead of erroring.
func evalExpr(row Row, e Expr) (any, error) {
	switch x := e.(type) {
	case NumberLit:
		return x.Value, nil
	case StringLit:
		return x.Value, nil
	case FieldRef:
		return row[x.Name], nil
	case NotExpr:
		v, err := evalExpr(row, x.X)
		if err != nil {
			return nil, err
		}
		b, ok := v.(bool)
		if !ok {
			return nil, &TypeMismatchError{Field: printExpr(x.X, false), Expected: "boolean", Got: typeName(v)}
		}
		return !b, nil
	case BinaryExpr:
		return evalBinary(row, x)
	default:
		return nil, fmt.Errorf("unsupported expression %T", e)
	}
}

func evalBinary(row Row, x BinaryExpr) (any, error) {
	l, err := evalExpr(row, x.L)
	if err != nil {
		return nil, err
	}

	// Short-circuit booleans.
	if x.Op == "AND" || x.Op == "OR" {
		lb, ok := l.(bool)
		if !ok {
			return nil, &TypeMismatchError{Field: printExpr(x.L, false), Expected: "boolean", Got: typeName(l)}
		}
		if x.Op == "AND" && !lb {
			return false, nil
		}
		if x.Op == "OR" && lb {
			return true, nil
		}
		r, err := evalExpr(row, x.R)
		if err != nil {
			return nil, err
		}
		rb, ok := r.(bool)
		if !ok {
			return nil, &TypeMismatchError{Field: printExpr(x.R, false), Expected: "boolean", Got: typeName(r)}
		}
		return rb, nil
	}

	r, err := evalExpr(row, x.R)
	if err != nil {
		return nil, err
	}

	switch x.Op {
	case "=", "!=", ">", ">=", "<", "<=":
		if l == nil || r == nil {
			return false, nil
		}
		c := compareValues(l, r)
		switch x.Op {
		case "=":
			return c == 0, nil
		case "!=":
			return c != 0, nil
		case ">":
			return c > 0, nil
		case ">=":
			return c >= 0, nil
		case "<":
			return c < 0, nil
		default:
			return c <= 0, nil
		}

	case "+", "-", "*", "/":
		if l == nil || r == nil {
			return nil, nil
		}
		// String concatenation for +.
		if x.Op == "+" {
			if _, lNum := toNumber(l); !lNum {
				return formatValue(l) + formatValue(r), nil
			}
			if _, rNum := toNumber(r); !rNum {
				return formatValue(l) + formatValue(r), nil
			}
		}
		ln, ok := toNumber(l)
		if !ok {
			return nil, &TypeMismatchError{Field: printExpr(x.L, false), Expected: "number", Got: typeName(l)}
		}
		rn, ok := toNumber(r)
		if !ok {
			return nil, &TypeMismatchError{Field: printExpr(x.R, false), Expected: "number", Got: typeName(r)}
		}
		switch x.Op {
		case "+":
			return ln + rn, nil
		case "-":
			return ln - rn, nil
		case "*":
			return ln * rn, nil
		default:
			if rn == 0 {
				return nil, nil
			}
			return ln / rn, nil
		}
	}
	return nil, fmt.Errorf("unsupported operator %q", x.Op)
}

// --- sort ---

func execSort(rows []Row, cmd SortCommand) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, key := range cmd.Keys {
			c := compareValues(rows[i][key.Field], rows[j][key.Field])
			if c == 0 {
				continue
			}
			if key.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// --- value helpers ---

// compareValues orders two dynamic values. Numbers (and numeric strings)
// compare numerically, times chronologically, everything else as strings.
// nil sorts before any value.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Compare(bt)
		}
	}

	an, aok := toNumber(a)
	bn, bok := toNumber(b)
	if aok && bok {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}

	return strings.Compare(formatValue(a), formatValue(b))
}

// toNumber coerces a value to float64 when it is numeric.
func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// formatValue renders a value the way results serialize it.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64, int, int64:
		return "number"
	case bool:
		return "boolean"
	case time.Time:
		return "date"
	default:
		return fmt.Sprintf("%T", v)
	}
}
