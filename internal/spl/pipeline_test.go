// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package spl

import (
	"errors"
	"testing"
)

func mustParsePipeline(t *testing.T, query string) []Command {
	t.Helper()
	q, err := Parse(query)
	if err != nil {
		t.Fatalf("Parse(%q): %v", query, err)
	}
	return q.Pipeline
}

func TestStatsCountBy(t *testing.T) {
	rows := []Row{
		{"source": "api", "bytes": "100"},
		{"source": "api", "bytes": "300"},
		{"source": "web", "bytes": "50"},
	}

	out, err := ExecutePipeline(rows, mustParsePipeline(t, "| stats count, sum(bytes), avg(bytes) by source"))
	if err != nil {
		t.Fatalf("ExecutePipeline: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("groups = %d, want 2", len(out))
	}

	api := out[0]
	if api["source"] != "api" {
		t.Fatalf("first group = %v, want api (input order preserved)", api["source"])
	}
	if api["count"] != 2.0 {
		t.Errorf("count = %v, want 2", api["count"])
	}
	if api["sum(bytes)"] != 400.0 {
		t.Errorf("sum = %v, want 400", api["sum(bytes)"])
	}
	if api["avg(bytes)"] != 200.0 {
		t.Errorf("avg = %v, want 200", api["avg(bytes)"])
	}
}

func TestStatsMinMaxDistinct(t *testing.T) {
	rows := []Row{
		{"latency": "12.5", "host": "a"},
		{"latency": "3", "host": "b"},
		{"latency": "40", "host": "a"},
	}

	out, err := ExecutePipeline(rows, mustParsePipeline(t, "| stats min(latency), max(latency), distinct_count(host)"))
	if err != nil {
		t.Fatalf("ExecutePipeline: %v", err)
	}
	row := out[0]
	if row["min(latency)"] != "3" {
		t.Errorf("min = %v, want 3", row["min(latency)"])
	}
	if row["max(latency)"] != "40" {
		t.Errorf("max = %v, want 40", row["max(latency)"])
	}
	if row["distinct_count(host)"] != 2.0 {
		t.Errorf("distinct_count = %v, want 2", row["distinct_count(host)"])
	}
}

func TestStatsMixedTypesIsTypeMismatch(t *testing.T) {
	rows := []Row{
		{"v": "10"},
		{"v": "fast"},
	}
	_, err := ExecutePipeline(rows, mustParsePipeline(t, "| stats sum(v)"))
	var tm *TypeMismatchError
	if !errors.As(err, &tm) {
		t.Fatalf("error = %v, want TypeMismatchError", err)
	}
	if tm.Field != "v" {
		t.Errorf("field = %q, want v", tm.Field)
	}

	_, err = ExecutePipeline(rows, mustParsePipeline(t, "| stats min(v)"))
	if !errors.As(err, &tm) {
		t.Errorf("min over mixed types = %v, want TypeMismatchError", err)
	}
}

func TestWhereEvalHead(t *testing.T) {
	rows := []Row{
		{"status": "200", "bytes": "512"},
		{"status": "503", "bytes": "1024"},
		{"status": "500", "bytes": "2048"},
		{"status": "404", "bytes": "128"},
	}

	out, err := ExecutePipeline(rows, mustParsePipeline(t,
		"| where status >= 500 | eval kb = bytes / 1024 | sort -kb | head 1"))
	if err != nil {
		t.Fatalf("ExecutePipeline: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("rows = %d, want 1", len(out))
	}
	if out[0]["status"] != "500" {
		t.Errorf("status = %v, want 500", out[0]["status"])
	}
	if out[0]["kb"] != 2.0 {
		t.Errorf("kb = %v, want 2", out[0]["kb"])
	}
}

func TestWhereMissingFieldFiltersRow(t *testing.T) {
	rows := []Row{
		{"status": "500"},
		{"other": "1"},
	}
	out, err := ExecutePipeline(rows, mustParsePipeline(t, "| where status = 500"))
	if err != nil {
		t.Fatalf("ExecutePipeline: %v", err)
	}
	if len(out) != 1 {
		t.Errorf("rows = %d, want 1", len(out))
	}
}

func TestSortIsStable(t *testing.T) {
	rows := []Row{
		{"k": "1", "ord": "a"},
		{"k": "2", "ord": "b"},
		{"k": "1", "ord": "c"},
	}
	out, err := ExecutePipeline(rows, mustParsePipeline(t, "| sort k"))
	if err != nil {
		t.Fatal(err)
	}
	if out[0]["ord"] != "a" || out[1]["ord"] != "c" || out[2]["ord"] != "b" {
		t.Errorf("stable order violated: %v", out)
	}
}

func TestRename(t *testing.T) {
	rows := []Row{{"count": 5.0}}
	out, err := ExecutePipeline(rows, mustParsePipeline(t, "| rename count AS total"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := out[0]["count"]; ok {
		t.Error("old column still present")
	}
	if out[0]["total"] != 5.0 {
		t.Errorf("total = %v, want 5", out[0]["total"])
	}
}

func TestEvalStringConcat(t *testing.T) {
	rows := []Row{{"host": "api", "zone": "eu"}}
	out, err := ExecutePipeline(rows, mustParsePipeline(t, `| eval label = host + "-" + zone`))
	if err != nil {
		t.Fatal(err)
	}
	if out[0]["label"] != "api-eu" {
		t.Errorf("label = %v, want api-eu", out[0]["label"])
	}
}
