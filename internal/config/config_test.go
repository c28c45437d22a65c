// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}
	if cfg.Buffer.Policy != PolicyBackpressure {
		t.Errorf("default buffer policy = %s, want BACKPRESSURE", cfg.Buffer.Policy)
	}
	if cfg.Buffer.FlushInterval() != 2*time.Second {
		t.Errorf("flush interval = %v, want 2s", cfg.Buffer.FlushInterval())
	}
	if cfg.Partition.Type != PartitionDaily {
		t.Errorf("default partition type = %s, want DAILY", cfg.Partition.Type)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grepwise.yaml")
	yaml := `
server:
  port: 9090
buffer:
  maxSize: 50
  policy: DROP_OLDEST
cache:
  ttlMs: 5000
sources:
  syslog:
    - id: sys-udp
      protocol: udp
      port: 5514
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Buffer.MaxSize != 50 {
		t.Errorf("buffer maxSize = %d, want 50", cfg.Buffer.MaxSize)
	}
	if cfg.Buffer.Policy != PolicyDropOldest {
		t.Errorf("buffer policy = %s, want DROP_OLDEST", cfg.Buffer.Policy)
	}
	if cfg.Cache.TTL() != 5*time.Second {
		t.Errorf("cache ttl = %v, want 5s", cfg.Cache.TTL())
	}
	// Unset keys keep their defaults.
	if cfg.Buffer.BatchSize != 500 {
		t.Errorf("buffer batchSize = %d, want default 500", cfg.Buffer.BatchSize)
	}
	if len(cfg.Sources.Syslog) != 1 || cfg.Sources.Syslog[0].ID != "sys-udp" {
		t.Fatalf("syslog sources = %+v, want one entry sys-udp", cfg.Sources.Syslog)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grepwise.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GREPWISE_PORT", "7171")
	t.Setenv("GREPWISE_BUFFER_POLICY", "DROP_OLDEST")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.Port != 7171 {
		t.Errorf("port = %d, want env override 7171", cfg.Server.Port)
	}
	if cfg.Buffer.Policy != PolicyDropOldest {
		t.Errorf("buffer policy = %s, want DROP_OLDEST", cfg.Buffer.Policy)
	}
}

func TestValidateRejectsCrossFieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"archive without dir", func(c *Config) {
			c.Partition.AutoArchive = true
			c.Partition.ArchiveDir = ""
		}},
		{"auth without token", func(c *Config) {
			c.Sources.HTTPPush.RequireAuth = true
			c.Sources.HTTPPush.AuthToken = ""
		}},
		{"duplicate source ids", func(c *Config) {
			c.Sources.Files = []FileSourceConfig{{ID: "a", Directory: "/var/log"}}
			c.Sources.Syslog = []SyslogSourceConfig{{ID: "a", Protocol: "udp", Port: 514}}
		}},
		{"bad buffer policy", func(c *Config) {
			c.Buffer.Policy = "SHED"
		}},
		{"bad partition type", func(c *Config) {
			c.Partition.Type = "HOURLY"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
