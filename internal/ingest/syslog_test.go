// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package ingest

import (
	"bufio"
	"strings"
	"testing"
	"time"

	"github.com/grepwise/grepwise/internal/config"
)

func newSyslogFixture() *SyslogServer {
	return NewSyslogServer(config.SyslogSourceConfig{
		ID:       "syslog-test",
		Protocol: "udp",
		Port:     1514,
	}, &memBuffer{})
}

func TestSyslogParseRFC3164(t *testing.T) {
	s := newSyslogFixture()
	ev := s.parse("<13>Oct 11 22:14:15 host app: hello world")

	if ev.Source != "host" {
		t.Errorf("source = %q, want host", ev.Source)
	}
	if !strings.Contains(ev.Message, "hello world") {
		t.Errorf("message = %q, want it to contain hello world", ev.Message)
	}
	// Severity 13 & 7 = 5 (notice) maps to INFO.
	if ev.Level != "INFO" {
		t.Errorf("level = %q, want INFO", ev.Level)
	}
	if ev.RecordTime.IsZero() {
		t.Error("recordTime not set from syslog timestamp")
	}
	if ev.Metadata["app"] != "app" {
		t.Errorf("metadata[app] = %q, want app", ev.Metadata["app"])
	}
}

func TestSyslogParseRFC5424(t *testing.T) {
	s := newSyslogFixture()
	ev := s.parse(`<165>1 2026-08-20T10:15:30.000Z web01 nginx 1234 ID47 - upstream timed out`)

	if ev.Source != "web01" {
		t.Errorf("source = %q, want web01", ev.Source)
	}
	if ev.Message != "upstream timed out" {
		t.Errorf("message = %q", ev.Message)
	}
	// Severity 165 & 7 = 5 maps to INFO.
	if ev.Level != "INFO" {
		t.Errorf("level = %q, want INFO", ev.Level)
	}
	want := time.Date(2026, 8, 20, 10, 15, 30, 0, time.UTC)
	if !ev.RecordTime.Equal(want) {
		t.Errorf("recordTime = %v, want %v", ev.RecordTime, want)
	}
	if ev.Metadata["app"] != "nginx" || ev.Metadata["pid"] != "1234" {
		t.Errorf("metadata = %v", ev.Metadata)
	}
}

func TestSyslogParseFailureFallsBack(t *testing.T) {
	s := newSyslogFixture()
	raw := "totally unparseable {{{"
	ev := s.parse(raw)

	if ev.Source != "syslog-test" {
		t.Errorf("fallback source = %q, want the source id", ev.Source)
	}
	if ev.Level != "INFO" {
		t.Errorf("fallback level = %q, want INFO", ev.Level)
	}
	if ev.RawContent != raw {
		t.Errorf("rawContent = %q, want the original payload", ev.RawContent)
	}
}

func TestSeverityLevels(t *testing.T) {
	tests := []struct {
		severity uint8
		want     string
	}{
		{0, "FATAL"}, {2, "FATAL"}, {3, "ERROR"}, {4, "WARN"},
		{5, "INFO"}, {6, "INFO"}, {7, "DEBUG"},
	}
	for _, tc := range tests {
		if got := severityLevel(&tc.severity); got != tc.want {
			t.Errorf("severityLevel(%d) = %s, want %s", tc.severity, got, tc.want)
		}
	}
	if got := severityLevel(nil); got != "INFO" {
		t.Errorf("severityLevel(nil) = %s, want INFO", got)
	}
}

func TestReadFrameOctetCounting(t *testing.T) {
	msg := "<13>Oct 11 22:14:15 host app: hi"
	framed := "32 " + msg + "24 <13>Oct 11 22:14:15 x: y"
	if len(msg) != 32 {
		t.Fatalf("fixture length drifted: %d", len(msg))
	}
	reader := bufio.NewReader(strings.NewReader(framed))

	first, err := readFrame(reader)
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if first != msg {
		t.Fatalf("first frame = %q", first)
	}
	second, err := readFrame(reader)
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if second != "<13>Oct 11 22:14:15 x: y" {
		t.Fatalf("second frame = %q", second)
	}
}

func TestReadFrameNewlineDelimited(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader("<13>first message\n<14>second message\n"))

	first, err := readFrame(reader)
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if strings.TrimRight(first, "\n") != "<13>first message" {
		t.Fatalf("first frame = %q", first)
	}
}

func TestReadFrameRejectsBadOctetCount(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader("999999999 x"))
	if _, err := readFrame(reader); err == nil {
		t.Fatal("oversized octet count accepted")
	}
}
