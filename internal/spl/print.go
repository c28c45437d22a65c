// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package spl

import (
	"strconv"
	"strings"
)

// Print renders a query in canonical form. Parsing the output yields an
// equivalent query, which makes the canonical form usable as a cache
// fingerprint component.
func Print(q *Query) string {
	var parts []string
	if search := printPredicate(q.Search, false); search != "" {
		parts = append(parts, search)
	}
	for _, cmd := range q.Pipeline {
		parts = append(parts, printCommand(cmd))
	}
	if len(parts) == 0 {
		return ""
	}
	if _, isAll := q.Search.(MatchAll); isAll {
		return "| " + strings.Join(parts, " | ")
	}
	return strings.Join(parts, " | ")
}

func printPredicate(p Predicate, nested bool) string {
	switch x := p.(type) {
	case MatchAll:
		return ""
	case And:
		items := make([]string, len(x.Preds))
		for i, c := range x.Preds {
			items[i] = printPredicate(c, true)
		}
		s := strings.Join(items, " AND ")
		if nested {
			return "(" + s + ")"
		}
		return s
	case Or:
		items := make([]string, len(x.Preds))
		for i, c := range x.Preds {
			items[i] = printPredicate(c, true)
		}
		s := strings.Join(items, " OR ")
		if nested {
			return "(" + s + ")"
		}
		return s
	case Not:
		return "NOT " + printPredicate(x.Pred, true)
	case Term:
		return printFieldValue(x.Field, quoteValue(x.Value))
	case Phrase:
		return printFieldValue(x.Field, quoteString(x.Value))
	case Wildcard:
		return printFieldValue(x.Field, x.Pattern)
	case Regex:
		return printFieldValue(x.Field, "/"+strings.ReplaceAll(x.Pattern, "/", `\/`)+"/")
	case Range:
		min, max := x.Min, x.Max
		if min == "" {
			min = "*"
		}
		if max == "" {
			max = "*"
		}
		return x.Field + "=[" + min + " TO " + max + "]"
	case Compare:
		return x.Field + string(x.Op) + quoteValue(x.Value)
	default:
		return ""
	}
}

// printFieldValue omits the default field so bare terms stay bare.
func printFieldValue(field, value string) string {
	if field == DefaultField {
		return value
	}
	return field + "=" + value
}

// quoteValue quotes a value only when it would not survive re-lexing as a
// single bareword.
func quoteValue(v string) string {
	if v == "" || strings.ContainsAny(v, " \t"+barewordBreak) {
		return quoteString(v)
	}
	return v
}

func quoteString(v string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case '"', '\\':
			sb.WriteByte('\\')
			sb.WriteByte(v[i])
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteByte(v[i])
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

func printCommand(cmd Command) string {
	switch c := cmd.(type) {
	case StatsCommand:
		aggs := make([]string, len(c.Aggs))
		for i, a := range c.Aggs {
			aggs[i] = a.OutputName()
		}
		s := "stats " + strings.Join(aggs, ", ")
		if len(c.By) > 0 {
			s += " by " + strings.Join(c.By, ", ")
		}
		return s
	case WhereCommand:
		return "where " + printExpr(c.Expr, false)
	case EvalCommand:
		return "eval " + c.Field + " = " + printExpr(c.Expr, false)
	case SortCommand:
		keys := make([]string, len(c.Keys))
		for i, k := range c.Keys {
			if k.Desc {
				keys[i] = "-" + k.Field
			} else {
				keys[i] = k.Field
			}
		}
		return "sort " + strings.Join(keys, ", ")
	case HeadCommand:
		return "head " + strconv.Itoa(c.N)
	case RenameCommand:
		return "rename " + c.From + " AS " + c.To
	default:
		return ""
	}
}

func printExpr(e Expr, nested bool) string {
	switch x := e.(type) {
	case NumberLit:
		return strconv.FormatFloat(x.Value, 'f', -1, 64)
	case StringLit:
		return quoteString(x.Value)
	case FieldRef:
		return x.Name
	case NotExpr:
		return "NOT " + printExpr(x.X, true)
	case BinaryExpr:
		s := printExpr(x.L, true) + " " + x.Op + " " + printExpr(x.R, true)
		if nested {
			return "(" + s + ")"
		}
		return s
	default:
		return ""
	}
}
