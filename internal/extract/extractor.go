// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

// Package extract applies configured field extraction rules to log events
// before they are indexed. Rules are regex based with typed coercion; a
// rule that fails to match or coerce never fails the event, it only bumps
// that rule's error counter.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grepwise/grepwise/internal/logging"
	"github.com/grepwise/grepwise/internal/models"
)

// Well-known SourceField selectors. Anything else names a metadata key.
const (
	SourceRaw     = "_raw"
	SourceMessage = "message"
	SourceLevel   = "level"
	SourceOrigin  = "source"
)

type compiledRule struct {
	cfg models.FieldConfiguration
	re  *regexp.Regexp
}

type ruleSet struct {
	rules []compiledRule
}

// Extractor applies the current rule set to events. The rule set is an
// immutable snapshot swapped atomically on Update, so Apply never takes a
// lock on the hot path.
type Extractor struct {
	rules *models.Snapshot[ruleSet]

	mu     sync.Mutex
	errors map[string]uint64
}

// New builds an extractor from the initial configurations. Disabled rules
// are kept in the set but skipped during Apply.
func New(cfgs []models.FieldConfiguration) (*Extractor, error) {
	rs, err := compile(cfgs)
	if err != nil {
		return nil, err
	}
	return &Extractor{
		rules:  models.NewSnapshot(rs),
		errors: make(map[string]uint64),
	}, nil
}

// Update replaces the rule set. The new set is compiled and validated in
// full before it is published; a bad configuration leaves the old set
// untouched.
func (x *Extractor) Update(cfgs []models.FieldConfiguration) error {
	rs, err := compile(cfgs)
	if err != nil {
		return err
	}
	x.rules.Store(rs)
	logging.Debug().Int("rules", len(rs.rules)).Msg("field extraction rules updated")
	return nil
}

// Fields returns a copy of the current configurations.
func (x *Extractor) Fields() []models.FieldConfiguration {
	rs := x.rules.Load()
	out := make([]models.FieldConfiguration, len(rs.rules))
	for i, r := range rs.rules {
		out[i] = r.cfg
	}
	return out
}

// ErrorCounts returns a copy of the per-rule error counters.
func (x *Extractor) ErrorCounts() map[string]uint64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make(map[string]uint64, len(x.errors))
	for k, v := range x.errors {
		out[k] = v
	}
	return out
}

// Apply runs every enabled rule against the event and writes extracted
// values into the event's metadata under the rule name. Values are stored
// in canonical string form so index and query layers agree on formatting.
func (x *Extractor) Apply(ev *models.LogEvent) {
	rs := x.rules.Load()
	for i := range rs.rules {
		r := &rs.rules[i]
		if !r.cfg.Enabled {
			continue
		}

		input := sourceText(ev, r.cfg.SourceField)
		if input == "" {
			continue
		}

		raw, ok := firstCapture(r.re, input)
		if !ok {
			continue
		}

		val, err := coerce(raw, &r.cfg)
		if err != nil {
			x.countError(r.cfg.Name)
			continue
		}

		if ev.Metadata == nil {
			ev.Metadata = make(map[string]string)
		}
		ev.Metadata[r.cfg.Name] = val
	}
}

func (x *Extractor) countError(name string) {
	x.mu.Lock()
	x.errors[name]++
	x.mu.Unlock()
}

func compile(cfgs []models.FieldConfiguration) (*ruleSet, error) {
	rs := &ruleSet{rules: make([]compiledRule, 0, len(cfgs))}
	seen := make(map[string]struct{}, len(cfgs))
	for i := range cfgs {
		cfg := cfgs[i]
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[cfg.Name]; dup {
			return nil, fmt.Errorf("duplicate field name %q", cfg.Name)
		}
		seen[cfg.Name] = struct{}{}
		re, err := cfg.Compile()
		if err != nil {
			return nil, err
		}
		rs.rules = append(rs.rules, compiledRule{cfg: cfg, re: re})
	}
	return rs, nil
}

// sourceText selects the input string a rule runs against.
func sourceText(ev *models.LogEvent, field string) string {
	switch field {
	case "", SourceRaw:
		return ev.RawContent
	case SourceMessage:
		return ev.Message
	case SourceLevel:
		return ev.Level
	case SourceOrigin:
		return ev.Source
	default:
		return ev.Metadata[field]
	}
}

// firstCapture returns the first capture group of the match, or the whole
// match when the pattern has no groups.
func firstCapture(re *regexp.Regexp, input string) (string, bool) {
	m := re.FindStringSubmatch(input)
	if m == nil {
		return "", false
	}
	if len(m) > 1 {
		return m[1], true
	}
	return m[0], true
}

// coerce normalizes a raw capture according to the rule type.
func coerce(raw string, cfg *models.FieldConfiguration) (string, error) {
	raw = strings.TrimSpace(raw)
	switch cfg.Type {
	case models.FieldTypeString:
		return raw, nil
	case models.FieldTypeNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", fmt.Errorf("field %q: not a number: %q", cfg.Name, raw)
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case models.FieldTypeBoolean:
		b, err := strconv.ParseBool(strings.ToLower(raw))
		if err != nil {
			return "", fmt.Errorf("field %q: not a boolean: %q", cfg.Name, raw)
		}
		return strconv.FormatBool(b), nil
	case models.FieldTypeDate:
		layout := cfg.DateLayout
		if layout == "" {
			layout = time.RFC3339
		}
		ts, err := time.Parse(layout, raw)
		if err != nil {
			return "", fmt.Errorf("field %q: not a date: %q", cfg.Name, raw)
		}
		// Epoch millis, so date fields sort and compare numerically.
		return strconv.FormatInt(ts.UnixMilli(), 10), nil
	default:
		return "", fmt.Errorf("field %q: unknown type %q", cfg.Name, cfg.Type)
	}
}
