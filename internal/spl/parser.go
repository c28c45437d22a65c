// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package spl

import (
	"regexp"
	"strconv"
	"strings"
)

// Parse turns an SPL pipeline expression into a Query. An empty search
// expression matches everything, so "| stats count" is legal.
func Parse(input string) (*Query, error) {
	p := &parser{lex: newLexer(input)}
	return p.parseQuery()
}

type parser struct {
	lex *lexer
}

func (p *parser) parseQuery() (*Query, error) {
	q := &Query{}

	t, err := p.lex.peek()
	if err != nil {
		return nil, err
	}
	if t.kind == tokEOF || t.kind == tokPipe {
		q.Search = MatchAll{}
	} else {
		q.Search, err = p.parseOr()
		if err != nil {
			return nil, err
		}
	}

	for {
		t, err := p.lex.next()
		if err != nil {
			return nil, err
		}
		if t.kind == tokEOF {
			break
		}
		if t.kind != tokPipe {
			return nil, &SyntaxError{Position: t.pos, Expected: "| or end of query", Got: t.text}
		}
		cmd, err := p.parseCommand()
		if err != nil {
			return nil, err
		}
		q.Pipeline = append(q.Pipeline, cmd)
	}

	return q, nil
}

func (p *parser) parseOr() (Predicate, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	preds := []Predicate{left}
	for {
		t, err := p.lex.peek()
		if err != nil {
			return nil, err
		}
		if t.kind != tokIdent || !strings.EqualFold(t.text, "OR") {
			break
		}
		if _, err := p.lex.next(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		preds = append(preds, right)
	}
	if len(preds) == 1 {
		return left, nil
	}
	return Or{Preds: preds}, nil
}

func (p *parser) parseAnd() (Predicate, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	preds := []Predicate{left}
	for {
		t, err := p.lex.peek()
		if err != nil {
			return nil, err
		}
		explicit := t.kind == tokIdent && strings.EqualFold(t.text, "AND")
		if explicit {
			if _, err := p.lex.next(); err != nil {
				return nil, err
			}
		} else if !startsAtom(t) {
			break
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		preds = append(preds, right)
	}
	if len(preds) == 1 {
		return left, nil
	}
	return And{Preds: preds}, nil
}

// startsAtom reports whether a token can begin a search atom, which drives
// implicit AND.
func startsAtom(t token) bool {
	switch t.kind {
	case tokIdent:
		return !strings.EqualFold(t.text, "OR") && !strings.EqualFold(t.text, "AND")
	case tokString, tokNumber, tokRegex, tokLParen:
		return true
	default:
		return false
	}
}

func (p *parser) parseNot() (Predicate, error) {
	t, err := p.lex.peek()
	if err != nil {
		return nil, err
	}
	if t.kind == tokIdent && strings.EqualFold(t.text, "NOT") {
		if _, err := p.lex.next(); err != nil {
			return nil, err
		}
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Not{Pred: inner}, nil
	}
	return p.parseAtom()
}

func (p *parser) parseAtom() (Predicate, error) {
	t, err := p.lex.next()
	if err != nil {
		return nil, err
	}

	switch t.kind {
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		closing, err := p.lex.next()
		if err != nil {
			return nil, err
		}
		if closing.kind != tokRParen {
			return nil, &SyntaxError{Position: closing.pos, Expected: ")", Got: closing.text}
		}
		return inner, nil

	case tokString:
		return termOrPhrase(DefaultField, t.text, true), nil

	case tokRegex:
		if _, err := regexp.Compile(t.text); err != nil {
			return nil, &SyntaxError{Position: t.pos, Expected: "valid regex", Got: t.text}
		}
		return Regex{Field: DefaultField, Pattern: t.text}, nil

	case tokNumber:
		return Term{Field: DefaultField, Value: t.text}, nil

	case tokIdent:
		op, err := p.lex.peek()
		if err != nil {
			return nil, err
		}
		switch op.kind {
		case tokEq, tokNeq, tokGt, tokGte, tokLt, tokLte:
			if _, err := p.lex.next(); err != nil {
				return nil, err
			}
			return p.parseFieldTerm(t.text, op)
		default:
			return barewordPredicate(DefaultField, t.text), nil
		}
	}

	return nil, &SyntaxError{Position: t.pos, Expected: "search term", Got: t.text}
}

func (p *parser) parseFieldTerm(field string, op token) (Predicate, error) {
	switch op.kind {
	case tokGt, tokGte, tokLt, tokLte:
		v, err := p.lex.next()
		if err != nil {
			return nil, err
		}
		if v.kind != tokNumber && v.kind != tokIdent && v.kind != tokString {
			return nil, &SyntaxError{Position: v.pos, Expected: "comparison value", Got: v.text}
		}
		return Compare{Field: field, Op: CompareOp(op.text), Value: v.text}, nil
	}

	// = : !=
	v, err := p.lex.next()
	if err != nil {
		return nil, err
	}

	var pred Predicate
	switch v.kind {
	case tokString:
		pred = termOrPhrase(field, v.text, true)
	case tokRegex:
		if _, err := regexp.Compile(v.text); err != nil {
			return nil, &SyntaxError{Position: v.pos, Expected: "valid regex", Got: v.text}
		}
		pred = Regex{Field: field, Pattern: v.text}
	case tokNumber:
		pred = Term{Field: field, Value: v.text}
	case tokIdent:
		pred = barewordPredicate(field, v.text)
	case tokLBracket:
		rng, err := p.parseRange(field)
		if err != nil {
			return nil, err
		}
		pred = rng
	default:
		return nil, &SyntaxError{Position: v.pos, Expected: "field value", Got: v.text}
	}

	if op.kind == tokNeq {
		return Not{Pred: pred}, nil
	}
	return pred, nil
}

func (p *parser) parseRange(field string) (Predicate, error) {
	lo, err := p.lex.next()
	if err != nil {
		return nil, err
	}
	if lo.kind != tokNumber && lo.kind != tokIdent && lo.kind != tokString {
		return nil, &SyntaxError{Position: lo.pos, Expected: "range lower bound", Got: lo.text}
	}
	to, err := p.lex.next()
	if err != nil {
		return nil, err
	}
	if to.kind != tokIdent || !strings.EqualFold(to.text, "TO") {
		return nil, &SyntaxError{Position: to.pos, Expected: "TO", Got: to.text}
	}
	hi, err := p.lex.next()
	if err != nil {
		return nil, err
	}
	if hi.kind != tokNumber && hi.kind != tokIdent && hi.kind != tokString {
		return nil, &SyntaxError{Position: hi.pos, Expected: "range upper bound", Got: hi.text}
	}
	closing, err := p.lex.next()
	if err != nil {
		return nil, err
	}
	if closing.kind != tokRBracket {
		return nil, &SyntaxError{Position: closing.pos, Expected: "]", Got: closing.text}
	}

	min, max := lo.text, hi.text
	if min == "*" {
		min = ""
	}
	if max == "*" {
		max = ""
	}
	return Range{Field: field, Min: min, Max: max}, nil
}

// termOrPhrase maps a quoted value: multi-token values become phrases,
// single tokens stay exact terms.
func termOrPhrase(field, value string, quoted bool) Predicate {
	if quoted && strings.ContainsAny(value, " \t") {
		return Phrase{Field: field, Value: value}
	}
	return Term{Field: field, Value: value}
}

// barewordPredicate maps an unquoted value: * and ? make it a wildcard.
func barewordPredicate(field, value string) Predicate {
	if strings.ContainsAny(value, "*?") {
		return Wildcard{Field: field, Pattern: value}
	}
	return Term{Field: field, Value: value}
}

// --- commands ---

func (p *parser) parseCommand() (Command, error) {
	t, err := p.lex.next()
	if err != nil {
		return nil, err
	}
	if t.kind != tokIdent {
		return nil, &SyntaxError{Position: t.pos, Expected: "command name", Got: t.text}
	}

	switch strings.ToLower(t.text) {
	case "stats":
		return p.parseStats()
	case "where":
		expr, err := p.parseExprMode()
		if err != nil {
			return nil, err
		}
		return WhereCommand{Expr: expr}, nil
	case "eval":
		return p.parseEval()
	case "sort":
		return p.parseSort()
	case "head":
		return p.parseHead()
	case "rename":
		return p.parseRename()
	default:
		return nil, &SyntaxError{Position: t.pos, Expected: "stats, where, eval, sort, head, or rename", Got: t.text}
	}
}

func (p *parser) parseStats() (Command, error) {
	var cmd StatsCommand
	for {
		agg, err := p.parseAggregation()
		if err != nil {
			return nil, err
		}
		cmd.Aggs = append(cmd.Aggs, agg)

		t, err := p.lex.peek()
		if err != nil {
			return nil, err
		}
		if t.kind == tokComma {
			if _, err := p.lex.next(); err != nil {
				return nil, err
			}
			continue
		}
		if t.kind == tokIdent && !strings.EqualFold(t.text, "by") {
			continue
		}
		break
	}

	t, err := p.lex.peek()
	if err != nil {
		return nil, err
	}
	if t.kind == tokIdent && strings.EqualFold(t.text, "by") {
		if _, err := p.lex.next(); err != nil {
			return nil, err
		}
		for {
			f, err := p.lex.next()
			if err != nil {
				return nil, err
			}
			if f.kind != tokIdent {
				return nil, &SyntaxError{Position: f.pos, Expected: "group-by field", Got: f.text}
			}
			cmd.By = append(cmd.By, f.text)
			nxt, err := p.lex.peek()
			if err != nil {
				return nil, err
			}
			if nxt.kind != tokComma {
				break
			}
			if _, err := p.lex.next(); err != nil {
				return nil, err
			}
		}
	}

	return cmd, nil
}

func (p *parser) parseAggregation() (Aggregation, error) {
	t, err := p.lex.next()
	if err != nil {
		return Aggregation{}, err
	}
	if t.kind != tokIdent {
		return Aggregation{}, &SyntaxError{Position: t.pos, Expected: "aggregation function", Got: t.text}
	}

	fn := AggFunc(strings.ToLower(t.text))
	switch fn {
	case AggCount, AggSum, AggAvg, AggMin, AggMax, AggDistinctCount:
	default:
		return Aggregation{}, &SyntaxError{Position: t.pos, Expected: "count, sum, avg, min, max, or distinct_count", Got: t.text}
	}

	next, err := p.lex.peek()
	if err != nil {
		return Aggregation{}, err
	}
	if next.kind != tokLParen {
		if fn != AggCount {
			return Aggregation{}, &SyntaxError{Position: next.pos, Expected: "(field)", Got: next.text}
		}
		return Aggregation{Func: AggCount}, nil
	}

	if _, err := p.lex.next(); err != nil {
		return Aggregation{}, err
	}
	f, err := p.lex.next()
	if err != nil {
		return Aggregation{}, err
	}
	if f.kind == tokRParen && fn == AggCount {
		return Aggregation{Func: AggCount}, nil
	}
	if f.kind != tokIdent {
		return Aggregation{}, &SyntaxError{Position: f.pos, Expected: "field name", Got: f.text}
	}
	closing, err := p.lex.next()
	if err != nil {
		return Aggregation{}, err
	}
	if closing.kind != tokRParen {
		return Aggregation{}, &SyntaxError{Position: closing.pos, Expected: ")", Got: closing.text}
	}
	return Aggregation{Func: fn, Field: f.text}, nil
}

func (p *parser) parseEval() (Command, error) {
	f, err := p.lex.next()
	if err != nil {
		return nil, err
	}
	if f.kind != tokIdent {
		return nil, &SyntaxError{Position: f.pos, Expected: "field name", Got: f.text}
	}
	eq, err := p.lex.next()
	if err != nil {
		return nil, err
	}
	if eq.kind != tokEq || eq.text != "=" {
		return nil, &SyntaxError{Position: eq.pos, Expected: "=", Got: eq.text}
	}
	expr, err := p.parseExprMode()
	if err != nil {
		return nil, err
	}
	return EvalCommand{Field: f.text, Expr: expr}, nil
}

func (p *parser) parseSort() (Command, error) {
	var cmd SortCommand
	for {
		t, err := p.lex.next()
		if err != nil {
			return nil, err
		}
		if t.kind != tokIdent {
			return nil, &SyntaxError{Position: t.pos, Expected: "sort field", Got: t.text}
		}
		key := SortKey{Field: t.text}
		if strings.HasPrefix(key.Field, "-") {
			key.Desc = true
			key.Field = key.Field[1:]
		} else {
			key.Field = strings.TrimPrefix(key.Field, "+")
		}
		if key.Field == "" {
			return nil, &SyntaxError{Position: t.pos, Expected: "sort field", Got: t.text}
		}

		// Optional asc/desc suffix.
		nxt, err := p.lex.peek()
		if err != nil {
			return nil, err
		}
		if nxt.kind == tokIdent {
			switch strings.ToLower(nxt.text) {
			case "asc":
				if _, err := p.lex.next(); err != nil {
					return nil, err
				}
			case "desc":
				key.Desc = true
				if _, err := p.lex.next(); err != nil {
					return nil, err
				}
			}
		}
		cmd.Keys = append(cmd.Keys, key)

		nxt, err = p.lex.peek()
		if err != nil {
			return nil, err
		}
		if nxt.kind != tokComma {
			break
		}
		if _, err := p.lex.next(); err != nil {
			return nil, err
		}
	}
	return cmd, nil
}

func (p *parser) parseHead() (Command, error) {
	t, err := p.lex.next()
	if err != nil {
		return nil, err
	}
	if t.kind != tokNumber {
		return nil, &SyntaxError{Position: t.pos, Expected: "row count", Got: t.text}
	}
	n, err := strconv.Atoi(t.text)
	if err != nil || n < 0 {
		return nil, &SyntaxError{Position: t.pos, Expected: "non-negative integer", Got: t.text}
	}
	return HeadCommand{N: n}, nil
}

func (p *parser) parseRename() (Command, error) {
	from, err := p.lex.next()
	if err != nil {
		return nil, err
	}
	if from.kind != tokIdent {
		return nil, &SyntaxError{Position: from.pos, Expected: "field name", Got: from.text}
	}
	as, err := p.lex.next()
	if err != nil {
		return nil, err
	}
	if as.kind != tokIdent || !strings.EqualFold(as.text, "AS") {
		return nil, &SyntaxError{Position: as.pos, Expected: "AS", Got: as.text}
	}
	to, err := p.lex.next()
	if err != nil {
		return nil, err
	}
	if to.kind != tokIdent {
		return nil, &SyntaxError{Position: to.pos, Expected: "field name", Got: to.text}
	}
	return RenameCommand{From: from.text, To: to.text}, nil
}

// --- scalar expressions (where / eval) ---

// parseExprMode parses a scalar expression with the lexer in expression
// mode, where "/" divides instead of opening a regex literal.
func (p *parser) parseExprMode() (Expr, error) {
	p.lex.exprMode = true
	defer func() { p.lex.exprMode = false }()
	return p.parseExpr()
}

func (p *parser) parseExpr() (Expr, error) {
	return p.parseOrExpr()
}

func (p *parser) parseOrExpr() (Expr, error) {
	left, err := p.parseAndExpr()
	if err != nil {
		return nil, err
	}
	for {
		t, err := p.lex.peek()
		if err != nil {
			return nil, err
		}
		if t.kind != tokIdent || !strings.EqualFold(t.text, "OR") {
			return left, nil
		}
		if _, err := p.lex.next(); err != nil {
			return nil, err
		}
		right, err := p.parseAndExpr()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: "OR", L: left, R: right}
	}
}

func (p *parser) parseAndExpr() (Expr, error) {
	left, err := p.parseNotExpr()
	if err != nil {
		return nil, err
	}
	for {
		t, err := p.lex.peek()
		if err != nil {
			return nil, err
		}
		if t.kind != tokIdent || !strings.EqualFold(t.text, "AND") {
			return left, nil
		}
		if _, err := p.lex.next(); err != nil {
			return nil, err
		}
		right, err := p.parseNotExpr()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: "AND", L: left, R: right}
	}
}

func (p *parser) parseNotExpr() (Expr, error) {
	t, err := p.lex.peek()
	if err != nil {
		return nil, err
	}
	if t.kind == tokIdent && strings.EqualFold(t.text, "NOT") {
		if _, err := p.lex.next(); err != nil {
			return nil, err
		}
		inner, err := p.parseNotExpr()
		if err != nil {
			return nil, err
		}
		return NotExpr{X: inner}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	t, err := p.lex.peek()
	if err != nil {
		return nil, err
	}
	var op string
	switch t.kind {
	case tokEq:
		op = "="
	case tokNeq:
		op = "!="
	case tokGt:
		op = ">"
	case tokGte:
		op = ">="
	case tokLt:
		op = "<"
	case tokLte:
		op = "<="
	default:
		return left, nil
	}
	if _, err := p.lex.next(); err != nil {
		return nil, err
	}
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return BinaryExpr{Op: op, L: left, R: right}, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		t, err := p.lex.peek()
		if err != nil {
			return nil, err
		}
		if t.kind != tokIdent || (t.text != "+" && t.text != "-") {
			// + and - lex as barewords when standalone.
			return left, nil
		}
		op := t.text
		if _, err := p.lex.next(); err != nil {
			return nil, err
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: op, L: left, R: right}
	}
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parsePrimaryExpr()
	if err != nil {
		return nil, err
	}
	for {
		t, err := p.lex.peek()
		if err != nil {
			return nil, err
		}
		if t.kind != tokIdent || (t.text != "*" && t.text != "/") {
			return left, nil
		}
		op := t.text
		if _, err := p.lex.next(); err != nil {
			return nil, err
		}
		right, err := p.parsePrimaryExpr()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: op, L: left, R: right}
	}
}

func (p *parser) parsePrimaryExpr() (Expr, error) {
	t, err := p.lex.next()
	if err != nil {
		return nil, err
	}
	switch t.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, &SyntaxError{Position: t.pos, Expected: "number", Got: t.text}
		}
		return NumberLit{Value: f}, nil
	case tokString:
		return StringLit{Value: t.text}, nil
	case tokIdent:
		return FieldRef{Name: t.text}, nil
	case tokLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		closing, err := p.lex.next()
		if err != nil {
			return nil, err
		}
		if closing.kind != tokRParen {
			return nil, &SyntaxError{Position: closing.pos, Expected: ")", Got: closing.text}
		}
		return inner, nil
	default:
		return nil, &SyntaxError{Position: t.pos, Expected: "expression", Got: t.text}
	}
}
