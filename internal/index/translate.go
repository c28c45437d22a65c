// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package index

import (
	"strconv"
	"strings"
	"time"

	"github.com/blugelabs/bluge"

	"github.com/grepwise/grepwise/internal/spl"
)

// farFuture stands in for an open upper time bound; Bluge date ranges need
// concrete endpoints.
var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// translate converts a compiled predicate plus time range into a Bluge
// query tree.
func translate(pred spl.Predicate, rng spl.TimeRange) bluge.Query {
	root := bluge.NewBooleanQuery()
	root.AddMust(translatePredicate(pred))
	if !rng.Start.IsZero() || !rng.End.IsZero() {
		root.AddMust(timeRangeQuery(rng))
	}
	return root
}

func timeRangeQuery(rng spl.TimeRange) bluge.Query {
	start := rng.Start
	if start.IsZero() {
		start = time.Unix(0, 0).UTC()
	}
	end := rng.End
	if end.IsZero() {
		end = farFuture
	}
	return bluge.NewDateRangeInclusiveQuery(start, end, true, true).SetField(fieldTimestamp)
}

// expiredQuery matches events aged out by a retention cutoff: both the
// effective timestamp and the ingest time must precede it. A backfilled
// event keeps a fresh ingest time and survives until that too ages out.
func expiredQuery(threshold time.Time, source string) bluge.Query {
	epoch := time.Unix(0, 0).UTC()
	q := bluge.NewBooleanQuery()
	q.AddMust(bluge.NewDateRangeInclusiveQuery(epoch, threshold, true, false).SetField(fieldTimestamp))
	q.AddMust(bluge.NewDateRangeInclusiveQuery(epoch, threshold, true, false).SetField(fieldIngestTime))
	if source != "" {
		q.AddMust(bluge.NewTermQuery(strings.ToLower(source)).SetField(fieldSource))
	}
	return q
}

func translatePredicate(pred spl.Predicate) bluge.Query {
	switch p := pred.(type) {
	case spl.MatchAll:
		return bluge.NewMatchAllQuery()

	case spl.And:
		q := bluge.NewBooleanQuery()
		for _, c := range p.Preds {
			q.AddMust(translatePredicate(c))
		}
		return q

	case spl.Or:
		q := bluge.NewBooleanQuery()
		for _, c := range p.Preds {
			q.AddShould(translatePredicate(c))
		}
		q.SetMinShould(1)
		return q

	case spl.Not:
		q := bluge.NewBooleanQuery()
		q.AddMust(bluge.NewMatchAllQuery())
		q.AddMustNot(translatePredicate(p.Pred))
		return q

	case spl.Term:
		if p.Field == spl.DefaultField {
			// Tokenized field: run the value through the analyzer.
			return bluge.NewMatchQuery(p.Value).SetField(fieldMessage)
		}
		return bluge.NewTermQuery(strings.ToLower(p.Value)).SetField(p.Field)

	case spl.Phrase:
		return bluge.NewMatchPhraseQuery(p.Value).SetField(p.Field)

	case spl.Wildcard:
		return bluge.NewWildcardQuery(strings.ToLower(p.Pattern)).SetField(p.Field)

	case spl.Regex:
		return bluge.NewRegexpQuery(p.Pattern).SetField(p.Field)

	case spl.Range:
		if minN, maxN, ok := numericBounds(p.Min, p.Max); ok {
			return bluge.NewNumericRangeInclusiveQuery(minN, maxN, true, true).
				SetField(numericField(p.Field))
		}
		return bluge.NewTermRangeInclusiveQuery(strings.ToLower(p.Min), strings.ToLower(p.Max), true, true).
			SetField(p.Field)

	case spl.Compare:
		n, err := strconv.ParseFloat(p.Value, 64)
		if err != nil {
			// Fall back to term-range semantics on the keyword field.
			switch p.Op {
			case spl.OpGt:
				return bluge.NewTermRangeInclusiveQuery(strings.ToLower(p.Value), "", false, true).SetField(p.Field)
			case spl.OpGte:
				return bluge.NewTermRangeInclusiveQuery(strings.ToLower(p.Value), "", true, true).SetField(p.Field)
			case spl.OpLt:
				return bluge.NewTermRangeInclusiveQuery("", strings.ToLower(p.Value), true, false).SetField(p.Field)
			default:
				return bluge.NewTermRangeInclusiveQuery("", strings.ToLower(p.Value), true, true).SetField(p.Field)
			}
		}
		var q bluge.Query
		switch p.Op {
		case spl.OpGt:
			q = bluge.NewNumericRangeQuery(n, bluge.MaxNumeric).SetField(numericField(p.Field))
		case spl.OpGte:
			q = bluge.NewNumericRangeInclusiveQuery(n, bluge.MaxNumeric, true, false).SetField(numericField(p.Field))
		case spl.OpLt:
			q = bluge.NewNumericRangeQuery(bluge.MinNumeric, n).SetField(numericField(p.Field))
		default: // OpLte
			q = bluge.NewNumericRangeInclusiveQuery(bluge.MinNumeric, n, false, true).SetField(numericField(p.Field))
		}
		return q

	default:
		return bluge.NewMatchNoneQuery()
	}
}

// numericBounds parses range endpoints as numbers. Open endpoints stay
// open; a range is numeric only when every present bound parses.
func numericBounds(min, max string) (float64, float64, bool) {
	lo, hi := bluge.MinNumeric, bluge.MaxNumeric
	if min != "" {
		n, err := strconv.ParseFloat(min, 64)
		if err != nil {
			return 0, 0, false
		}
		lo = n
	}
	if max != "" {
		n, err := strconv.ParseFloat(max, 64)
		if err != nil {
			return 0, 0, false
		}
		hi = n
	}
	return lo, hi, true
}

// numericField maps a field name to its numeric shadow. The timestamp
// field is date-indexed directly.
func numericField(field string) string {
	if field == fieldTimestamp {
		return fieldTimestamp
	}
	return field + numericSuffix
}
