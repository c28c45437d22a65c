// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package spl

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString // "quoted"
	tokNumber
	tokRegex // /pattern/
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokPipe
	tokComma
	tokEq     // = or :
	tokNeq    // !=
	tokGt     // >
	tokGte    // >=
	tokLt     // <
	tokLte    // <=
	tokAssign // = inside eval (same rune as tokEq; disambiguated by parser)
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// barewordBreak lists runes that terminate a bareword.
const barewordBreak = "()[]|,=:<>!\"/"

type lexer struct {
	input string
	pos   int
	// peeked holds a single token of lookahead.
	peeked *token
	// exprMode is set while lexing where/eval expressions, where "/" is the
	// division operator rather than a regex delimiter.
	exprMode bool
}

func newLexer(input string) *lexer {
	return &lexer{input: input}
}

func (l *lexer) peek() (token, error) {
	if l.peeked == nil {
		t, err := l.lex()
		if err != nil {
			return token{}, err
		}
		l.peeked = &t
	}
	return *l.peeked, nil
}

func (l *lexer) next() (token, error) {
	if l.peeked != nil {
		t := *l.peeked
		l.peeked = nil
		return t, nil
	}
	return l.lex()
}

func (l *lexer) lex() (token, error) {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
	start := l.pos
	if l.pos >= len(l.input) {
		return token{kind: tokEOF, pos: start}, nil
	}

	c := l.input[l.pos]
	switch c {
	case '(':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case ')':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case '[':
		l.pos++
		return token{kind: tokLBracket, text: "[", pos: start}, nil
	case ']':
		l.pos++
		return token{kind: tokRBracket, text: "]", pos: start}, nil
	case '|':
		l.pos++
		return token{kind: tokPipe, text: "|", pos: start}, nil
	case ',':
		l.pos++
		return token{kind: tokComma, text: ",", pos: start}, nil
	case '=', ':':
		l.pos++
		return token{kind: tokEq, text: string(c), pos: start}, nil
	case '!':
		if l.pos+1 < len(l.input) && l.input[l.pos+1] == '=' {
			l.pos += 2
			return token{kind: tokNeq, text: "!=", pos: start}, nil
		}
		return token{}, &SyntaxError{Position: start, Expected: "!=", Got: "!"}
	case '>':
		if l.pos+1 < len(l.input) && l.input[l.pos+1] == '=' {
			l.pos += 2
			return token{kind: tokGte, text: ">=", pos: start}, nil
		}
		l.pos++
		return token{kind: tokGt, text: ">", pos: start}, nil
	case '<':
		if l.pos+1 < len(l.input) && l.input[l.pos+1] == '=' {
			l.pos += 2
			return token{kind: tokLte, text: "<=", pos: start}, nil
		}
		l.pos++
		return token{kind: tokLt, text: "<", pos: start}, nil
	case '"':
		return l.lexString(start)
	case '/':
		if l.exprMode {
			l.pos++
			return token{kind: tokIdent, text: "/", pos: start}, nil
		}
		return l.lexRegex(start)
	}

	return l.lexBareword(start)
}

func (l *lexer) lexString(start int) (token, error) {
	l.pos++ // opening quote
	var sb strings.Builder
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch c {
		case '\\':
			if l.pos+1 >= len(l.input) {
				return token{}, &SyntaxError{Position: l.pos, Expected: "escape sequence"}
			}
			esc := l.input[l.pos+1]
			switch esc {
			case '"', '\\':
				sb.WriteByte(esc)
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte('\\')
				sb.WriteByte(esc)
			}
			l.pos += 2
		case '"':
			l.pos++
			return token{kind: tokString, text: sb.String(), pos: start}, nil
		default:
			sb.WriteByte(c)
			l.pos++
		}
	}
	return token{}, &SyntaxError{Position: start, Expected: "closing quote"}
}

func (l *lexer) lexRegex(start int) (token, error) {
	l.pos++ // opening slash
	var sb strings.Builder
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == '\\' && l.pos+1 < len(l.input) && l.input[l.pos+1] == '/' {
			sb.WriteByte('/')
			l.pos += 2
			continue
		}
		if c == '/' {
			l.pos++
			return token{kind: tokRegex, text: sb.String(), pos: start}, nil
		}
		sb.WriteByte(c)
		l.pos++
	}
	return token{}, &SyntaxError{Position: start, Expected: "closing /"}
}

func (l *lexer) lexBareword(start int) (token, error) {
	for l.pos < len(l.input) {
		c := rune(l.input[l.pos])
		if unicode.IsSpace(c) || strings.ContainsRune(barewordBreak, c) {
			break
		}
		l.pos++
	}
	text := l.input[start:l.pos]
	if text == "" {
		return token{}, &SyntaxError{Position: start, Expected: "token", Got: string(l.input[start])}
	}
	if isNumber(text) {
		return token{kind: tokNumber, text: text, pos: start}, nil
	}
	return token{kind: tokIdent, text: text, pos: start}, nil
}

// isNumber reports whether s is a decimal literal, including a leading sign.
func isNumber(s string) bool {
	if s == "" || s == "-" || s == "+" {
		return false
	}
	i := 0
	if s[0] == '-' || s[0] == '+' {
		i = 1
	}
	dot := false
	digits := 0
	for ; i < len(s); i++ {
		switch {
		case s[i] >= '0' && s[i] <= '9':
			digits++
		case s[i] == '.' && !dot:
			dot = true
		default:
			return false
		}
	}
	return digits > 0
}
