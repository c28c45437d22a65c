// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"grepwise.yaml",
	"grepwise.yml",
	"/etc/grepwise/config.yaml",
	"/etc/grepwise/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "GREPWISE_CONFIG"

// envPrefix is stripped from environment variables before mapping.
const envPrefix = "GREPWISE_"

// Load builds configuration from layered sources with Koanf:
//  1. Defaults from Default()
//  2. Optional YAML config file
//  3. GREPWISE_* environment variables (highest priority)
//
// The result is validated before being returned.
func Load() (*Config, error) {
	return loadFrom(findConfigFile())
}

// LoadFile loads configuration with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	return loadFrom(path)
}

func loadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file, env var path first.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices when
// they arrive through environment variables.
var sliceConfigPaths = []string{
	"server.corsOrigins",
}

// processSliceFields converts comma-separated env strings to slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps GREPWISE_* variable suffixes (lowercased) to config paths.
// Struct tags use camelCase, so the usual underscore-to-dot transform cannot
// derive paths mechanically; overridable settings are listed explicitly.
var envMappings = map[string]string{
	"host":                "server.host",
	"port":                "server.port",
	"cors_origins":        "server.corsOrigins",
	"rate_limit_disabled": "server.rateLimitDisabled",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"data_dir":      "storage.dataDir",
	"state_dir":     "storage.stateDir",
	"alarm_db_path": "storage.alarmDbPath",

	"buffer_max_size":           "buffer.maxSize",
	"buffer_flush_interval_ms":  "buffer.flushIntervalMs",
	"buffer_policy":             "buffer.policy",
	"buffer_enqueue_timeout_ms": "buffer.enqueueTimeoutMs",
	"buffer_batch_size":         "buffer.batchSize",
	"buffer_drain_timeout_ms":   "buffer.drainTimeoutMs",

	"partition_type":         "partition.type",
	"partition_max_active":   "partition.maxActive",
	"partition_auto_archive": "partition.autoArchive",
	"partition_archive_dir":  "partition.archiveDir",

	"cache_max_size": "cache.maxSize",
	"cache_ttl_ms":   "cache.ttlMs",
	"cache_enabled":  "cache.enabled",

	"retention_sweep_interval_ms": "retention.sweepIntervalMs",
	"scheduler_tick_ms":           "scheduler.tickMs",

	"http_push_enabled":      "sources.httpPush.enabled",
	"http_push_require_auth": "sources.httpPush.requireAuth",
	"http_push_auth_token":   "sources.httpPush.authToken",
}

// envTransformFunc maps GREPWISE_* environment variables to config paths.
// Unmapped variables are ignored so unrelated environment noise cannot
// override settings by accident.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	if path, ok := envMappings[key]; ok {
		return path
	}
	return ""
}
