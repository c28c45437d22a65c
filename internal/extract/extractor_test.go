// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package extract

import (
	"testing"
	"time"

	"github.com/grepwise/grepwise/internal/models"
	"github.com/grepwise/grepwise/internal/spl"
)

func TestApplyExtractsTypedFields(t *testing.T) {
	x, err := New([]models.FieldConfiguration{
		{
			Name:              "status",
			Type:              models.FieldTypeNumber,
			ExtractionPattern: `status=(\d+)`,
			Enabled:           true,
		},
		{
			Name:              "user",
			Type:              models.FieldTypeString,
			ExtractionPattern: `user=(\w+)`,
			Enabled:           true,
		},
		{
			Name:              "cached",
			Type:              models.FieldTypeBoolean,
			ExtractionPattern: `cached=(\w+)`,
			Enabled:           true,
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ev := models.NewLogEvent("app", "INFO", "request done", "user=alice status=503 cached=TRUE")
	x.Apply(ev)

	want := map[string]string{"status": "503", "user": "alice", "cached": "true"}
	for k, v := range want {
		if ev.Metadata[k] != v {
			t.Errorf("metadata[%q] = %q, want %q", k, ev.Metadata[k], v)
		}
	}
}

func TestApplyDateCoercion(t *testing.T) {
	x, err := New([]models.FieldConfiguration{
		{
			Name:              "ts",
			Type:              models.FieldTypeDate,
			ExtractionPattern: `\[([^\]]+)\]`,
			DateLayout:        "02/Jan/2006:15:04:05 -0700",
			Enabled:           true,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	ev := models.NewLogEvent("nginx", "", "", `127.0.0.1 [10/Oct/2025:13:55:36 +0000] "GET /"`)
	x.Apply(ev)

	// 2025-10-10T13:55:36Z as epoch millis.
	if got := ev.Metadata["ts"]; got != "1760104536000" {
		t.Errorf("ts = %q, want 1760104536000", got)
	}
}

func TestExtractedDateComparesNumerically(t *testing.T) {
	x, err := New([]models.FieldConfiguration{
		{
			Name:              "event_ts",
			Type:              models.FieldTypeDate,
			ExtractionPattern: `ts=(\S+)`,
			Enabled:           true,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	// The second timestamp is half a second later; as RFC3339 strings it
	// would sort before the first.
	var rows []spl.Row
	for _, raw := range []string{"ts=2025-10-10T13:55:36Z", "ts=2025-10-10T13:55:36.5Z"} {
		ev := models.NewLogEvent("app", "INFO", "", raw)
		x.Apply(ev)
		row := spl.Row{}
		for k, v := range ev.Metadata {
			row[k] = v
		}
		rows = append(rows, row)
	}

	cq, err := spl.Compile("level=INFO | where event_ts > 1760104536000", spl.TimeRange{}, time.Now())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	out, err := spl.ExecutePipeline(rows, cq.Pipeline)
	if err != nil {
		t.Fatalf("ExecutePipeline: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("rows = %d, want 1", len(out))
	}
	if out[0]["event_ts"] != "1760104536500" {
		t.Errorf("survivor = %v, want the later timestamp", out[0]["event_ts"])
	}
}

func TestApplyCoercionFailureCountsButKeepsEvent(t *testing.T) {
	x, err := New([]models.FieldConfiguration{
		{
			Name:              "latency",
			Type:              models.FieldTypeNumber,
			ExtractionPattern: `latency=(\S+)`,
			Enabled:           true,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	ev := models.NewLogEvent("app", "INFO", "", "latency=fast")
	x.Apply(ev)

	if _, ok := ev.Metadata["latency"]; ok {
		t.Error("failed coercion must not write metadata")
	}
	if got := x.ErrorCounts()["latency"]; got != 1 {
		t.Errorf("error count = %d, want 1", got)
	}
}

func TestApplySkipsDisabledRules(t *testing.T) {
	x, err := New([]models.FieldConfiguration{
		{
			Name:              "code",
			Type:              models.FieldTypeNumber,
			ExtractionPattern: `code=(\d+)`,
			Enabled:           false,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	ev := models.NewLogEvent("app", "", "", "code=200")
	x.Apply(ev)
	if _, ok := ev.Metadata["code"]; ok {
		t.Error("disabled rule must not extract")
	}
}

func TestApplySourceFieldSelection(t *testing.T) {
	x, err := New([]models.FieldConfiguration{
		{
			Name:              "verb",
			Type:              models.FieldTypeString,
			SourceField:       SourceMessage,
			ExtractionPattern: `^(\w+) `,
			Enabled:           true,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	ev := models.NewLogEvent("app", "", "GET /healthz 200", "raw line that does not match ^")
	ev.RawContent = `{"msg":"irrelevant"}`
	x.Apply(ev)

	if got := ev.Metadata["verb"]; got != "GET" {
		t.Errorf("verb = %q, want GET", got)
	}
}

func TestUpdateRejectsBadPatternAndKeepsOldRules(t *testing.T) {
	x, err := New([]models.FieldConfiguration{
		{
			Name:              "user",
			Type:              models.FieldTypeString,
			ExtractionPattern: `user=(\w+)`,
			Enabled:           true,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := x.Update([]models.FieldConfiguration{
		{Name: "bad", Type: models.FieldTypeString, ExtractionPattern: `([`, Enabled: true},
	}); err == nil {
		t.Fatal("Update with invalid pattern must fail")
	}

	ev := models.NewLogEvent("app", "", "", "user=bob")
	x.Apply(ev)
	if got := ev.Metadata["user"]; got != "bob" {
		t.Errorf("old rules must stay active, user = %q", got)
	}
}

func TestNewRejectsDuplicateNames(t *testing.T) {
	_, err := New([]models.FieldConfiguration{
		{Name: "dup", Type: models.FieldTypeString, ExtractionPattern: `a`, Enabled: true},
		{Name: "dup", Type: models.FieldTypeString, ExtractionPattern: `b`, Enabled: true},
	})
	if err == nil {
		t.Fatal("duplicate names must be rejected")
	}
}
