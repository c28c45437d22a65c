// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package spl

import (
	"regexp"
	"strings"

	"github.com/grepwise/grepwise/internal/models"
)

// MatchEvent evaluates a predicate directly against a log event. The
// realtime feed uses this to filter the live stream without touching the
// index, and the executor uses it to post-filter stored-but-unindexed
// fields.
func MatchEvent(p Predicate, ev *models.LogEvent) bool {
	switch x := p.(type) {
	case MatchAll:
		return true
	case And:
		for _, c := range x.Preds {
			if !MatchEvent(c, ev) {
				return false
			}
		}
		return true
	case Or:
		for _, c := range x.Preds {
			if MatchEvent(c, ev) {
				return true
			}
		}
		return false
	case Not:
		return !MatchEvent(x.Pred, ev)
	case Term:
		return matchText(eventField(ev, x.Field), x.Value, x.Field == DefaultField)
	case Phrase:
		return containsFold(eventField(ev, x.Field), x.Value)
	case Wildcard:
		re, err := regexp.Compile("(?i)^" + wildcardToRegexp(x.Pattern) + "$")
		if err != nil {
			return false
		}
		if x.Field == DefaultField {
			// Tokenized field: any token may satisfy the glob.
			for _, tok := range strings.Fields(eventField(ev, x.Field)) {
				if re.MatchString(tok) {
					return true
				}
			}
			return false
		}
		return re.MatchString(eventField(ev, x.Field))
	case Regex:
		re, err := regexp.Compile(x.Pattern)
		if err != nil {
			return false
		}
		return re.MatchString(eventField(ev, x.Field))
	case Range:
		v := eventField(ev, x.Field)
		if v == "" {
			return false
		}
		if x.Min != "" && compareValues(v, x.Min) < 0 {
			return false
		}
		if x.Max != "" && compareValues(v, x.Max) > 0 {
			return false
		}
		return true
	case Compare:
		v := eventField(ev, x.Field)
		if v == "" {
			return false
		}
		c := compareValues(v, x.Value)
		switch x.Op {
		case OpGt:
			return c > 0
		case OpGte:
			return c >= 0
		case OpLt:
			return c < 0
		case OpLte:
			return c <= 0
		}
		return false
	default:
		return false
	}
}

// eventField resolves a predicate field name to the event value.
func eventField(ev *models.LogEvent, name string) string {
	switch name {
	case "id":
		return ev.ID
	case "level":
		return ev.Level
	case "source":
		return ev.Source
	case DefaultField:
		return ev.Message
	case "raw", "rawContent":
		return ev.RawContent
	default:
		return ev.Metadata[name]
	}
}

// matchText applies term semantics: tokenized fields match any token,
// exact fields require full equality. Both are case-insensitive.
func matchText(haystack, needle string, tokenized bool) bool {
	if tokenized {
		for _, tok := range strings.Fields(haystack) {
			if strings.EqualFold(strings.Trim(tok, ".,;:!?\"'()[]"), needle) {
				return true
			}
		}
		return false
	}
	return strings.EqualFold(haystack, needle)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// wildcardToRegexp translates * and ? globs into a regular expression.
func wildcardToRegexp(pattern string) string {
	var sb strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return sb.String()
}
