// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package index

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blugelabs/bluge"
	"github.com/blugelabs/bluge/search"
	"github.com/goccy/go-json"

	"github.com/grepwise/grepwise/internal/models"
)

// Index field names. Keyword copies are lowercased so term matching is
// case-insensitive; the stored _source blob keeps original casing.
const (
	fieldSource     = "source"
	fieldLevel      = "level"
	fieldMessage    = "message"
	fieldTimestamp  = "timestamp"
	fieldIngestTime = "ingest_time"
	fieldStored     = "_source"

	// numericSuffix marks the numeric shadow of a metadata field, used by
	// range and comparison queries.
	numericSuffix = "#num"
)

// buildDocument maps a log event to a Bluge document. Field configurations
// control how extracted metadata is indexed; metadata without a matching
// configuration gets the default keyword treatment.
func buildDocument(ev *models.LogEvent, flags map[string]models.FieldConfiguration) (*bluge.Document, error) {
	blob, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}

	doc := bluge.NewDocument(ev.ID)
	doc.AddField(bluge.NewStoredOnlyField(fieldStored, blob))
	doc.AddField(bluge.NewDateTimeField(fieldTimestamp, ev.EffectiveTime()).Sortable())
	doc.AddField(bluge.NewDateTimeField(fieldIngestTime, ev.IngestTime.UTC()))
	doc.AddField(bluge.NewKeywordField(fieldSource, strings.ToLower(ev.Source)))
	doc.AddField(bluge.NewKeywordField(fieldLevel, strings.ToLower(ev.Level)))
	doc.AddField(bluge.NewTextField(fieldMessage, ev.Message).SearchTermPositions())

	for key, val := range ev.Metadata {
		fc, hasFC := flags[key]
		if hasFC && !fc.Indexed {
			continue
		}
		if hasFC && fc.Tokenized {
			doc.AddField(bluge.NewTextField(key, val).SearchTermPositions())
			continue
		}
		doc.AddField(bluge.NewKeywordField(key, strings.ToLower(val)))
		if n, err := strconv.ParseFloat(val, 64); err == nil {
			doc.AddField(bluge.NewNumericField(key+numericSuffix, n))
		}
	}

	return doc, nil
}

// decodeMatch extracts the stored event from a search hit.
func decodeMatch(match *search.DocumentMatch) (*models.LogEvent, error) {
	var ev *models.LogEvent
	var visitErr error
	err := match.VisitStoredFields(func(field string, value []byte) bool {
		if field == fieldStored {
			var decoded models.LogEvent
			if err := json.Unmarshal(value, &decoded); err != nil {
				visitErr = fmt.Errorf("decode stored event: %w", err)
				return false
			}
			ev = &decoded
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if visitErr != nil {
		return nil, visitErr
	}
	if ev == nil {
		return nil, fmt.Errorf("hit without stored source")
	}
	return ev, nil
}

// matchID extracts only the document id from a search hit.
func matchID(match *search.DocumentMatch) (string, error) {
	var id string
	err := match.VisitStoredFields(func(field string, value []byte) bool {
		if field == "_id" {
			id = string(value)
			return false
		}
		return true
	})
	return id, err
}
