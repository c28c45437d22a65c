// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package ingest

import (
	"regexp"
	"strings"
	"time"

	"github.com/grepwise/grepwise/internal/models"
)

// LineParser turns one raw line into a LogEvent for a given source id.
type LineParser func(sourceID, line string) *models.LogEvent

// ParserFor returns the parser for a configured file format. Empty or
// unknown formats fall back to plain.
func ParserFor(format string) LineParser {
	switch format {
	case "nginx", "apache":
		// Both serve the common/combined access log layout.
		return parseAccessLine
	default:
		return parsePlainLine
	}
}

var levelPattern = regexp.MustCompile(`(?i)\b(TRACE|DEBUG|INFO|NOTICE|WARN|WARNING|ERROR|ERR|CRITICAL|FATAL)\b`)

// timestampLayouts are tried in order against the head of a plain line.
var timestampLayouts = []struct {
	pattern *regexp.Regexp
	layout  string
}{
	{regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?(?:Z|[+-]\d{2}:?\d{2})?`), ""},
	{regexp.MustCompile(`^[A-Z][a-z]{2} +\d{1,2} \d{2}:\d{2}:\d{2}`), "Jan 2 15:04:05"},
	{regexp.MustCompile(`^\d{2}/[A-Z][a-z]{2}/\d{4}:\d{2}:\d{2}:\d{2}`), "02/Jan/2006:15:04:05"},
}

var iso8601Layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05,000",
	"2006-01-02 15:04:05",
}

// StartsNewEvent reports whether a line opens a new event. Lines that
// begin with whitespace continue the previous event until the next
// timestamped line.
func StartsNewEvent(line string) bool {
	if line == "" {
		return false
	}
	if line[0] == ' ' || line[0] == '\t' {
		return false
	}
	return true
}

// leadingTimestamp extracts a timestamp from the head of the line, if
// one of the known layouts matches.
func leadingTimestamp(line string) (time.Time, bool) {
	for _, candidate := range timestampLayouts {
		match := candidate.pattern.FindString(line)
		if match == "" {
			continue
		}
		if candidate.layout == "" {
			for _, layout := range iso8601Layouts {
				if t, err := time.Parse(layout, strings.Replace(match, " ", "T", 1)); err == nil {
					return t.UTC(), true
				}
				if t, err := time.Parse(layout, match); err == nil {
					return t.UTC(), true
				}
			}
			continue
		}
		if t, err := time.Parse(candidate.layout, match); err == nil {
			// Layouts without a year resolve to year 0; assume now.
			if t.Year() == 0 {
				now := time.Now().UTC()
				t = t.AddDate(now.Year(), 0, 0)
				if t.After(now.AddDate(0, 0, 1)) {
					t = t.AddDate(-1, 0, 0)
				}
			}
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// detectLevel finds a severity token anywhere in the line, defaulting to
// INFO.
func detectLevel(line string) string {
	match := levelPattern.FindString(line)
	if match == "" {
		return "INFO"
	}
	switch strings.ToUpper(match) {
	case "WARNING":
		return "WARN"
	case "ERR":
		return "ERROR"
	case "CRITICAL":
		return "FATAL"
	default:
		return strings.ToUpper(match)
	}
}

// parsePlainLine handles free-form application logs: a leading timestamp
// when present, a severity token when present.
func parsePlainLine(sourceID, line string) *models.LogEvent {
	ev := models.NewLogEvent(sourceID, detectLevel(line), line, line)
	if t, ok := leadingTimestamp(line); ok {
		ev.RecordTime = t
	}
	return ev
}

// accessLogPattern covers the Apache common and combined formats, which
// nginx emits by default as well. The referer and user-agent groups are
// absent in the common format.
var accessLogPattern = regexp.MustCompile(
	`^(\S+) \S+ (\S+) \[([^\]]+)\] "([^"]*)" (\d{3}) (\d+|-)(?: "([^"]*)" "([^"]*)")?`)

// parseAccessLine parses one access-log line, populating request
// metadata. Lines that do not match degrade to plain parsing.
func parseAccessLine(sourceID, line string) *models.LogEvent {
	m := accessLogPattern.FindStringSubmatch(line)
	if m == nil {
		return parsePlainLine(sourceID, line)
	}
	remoteIP, user, ts, request, status, bytes, referer, userAgent :=
		m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8]

	level := "INFO"
	if status >= "500" {
		level = "ERROR"
	} else if status >= "400" {
		level = "WARN"
	}

	ev := models.NewLogEvent(sourceID, level, request, line)
	if t, err := time.Parse("02/Jan/2006:15:04:05 -0700", ts); err == nil {
		ev.RecordTime = t.UTC()
	}
	ev.Metadata["remote_ip"] = remoteIP
	ev.Metadata["status"] = status
	if bytes != "-" {
		ev.Metadata["bytes"] = bytes
	}
	if user != "-" && user != "" {
		ev.Metadata["user"] = user
	}
	if referer != "" && referer != "-" {
		ev.Metadata["referer"] = referer
	}
	if userAgent != "" && userAgent != "-" {
		ev.Metadata["user_agent"] = userAgent
	}
	return ev
}
