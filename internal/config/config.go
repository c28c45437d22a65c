// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

// Package config loads GrepWise configuration through Koanf v2 with layered
// sources (highest priority wins): environment variables, a YAML config
// file, then built-in defaults.
package config

import (
	"time"

	"github.com/grepwise/grepwise/internal/models"
)

// BufferPolicy selects the write-behind buffer's full-queue behavior.
type BufferPolicy string

const (
	// PolicyBackpressure blocks enqueue up to EnqueueTimeout, then drops.
	PolicyBackpressure BufferPolicy = "BACKPRESSURE"
	// PolicyDropOldest evicts the oldest queued event to admit the new one.
	PolicyDropOldest BufferPolicy = "DROP_OLDEST"
)

// PartitionType selects the time bucket granularity for index partitions.
type PartitionType string

const (
	PartitionDaily   PartitionType = "DAILY"
	PartitionWeekly  PartitionType = "WEEKLY"
	PartitionMonthly PartitionType = "MONTHLY"
)

// Config is the root configuration for the GrepWise server.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Storage   StorageConfig   `koanf:"storage"`
	Buffer    BufferConfig    `koanf:"buffer"`
	Partition PartitionConfig `koanf:"partition"`
	Cache     CacheConfig     `koanf:"cache"`
	Retention RetentionConfig `koanf:"retention"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Notify    NotifyConfig    `koanf:"notify"`
	Sources   SourcesConfig   `koanf:"sources"`

	// Fields is the initial set of extraction rules applied before indexing.
	Fields []models.FieldConfiguration `koanf:"fields"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`

	RateLimitReqs     int           `koanf:"rateLimitReqs"`
	RateLimitWindow   time.Duration `koanf:"rateLimitWindow"`
	RateLimitDisabled bool          `koanf:"rateLimitDisabled"`
	CORSOrigins       []string      `koanf:"corsOrigins"`
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// StorageConfig holds on-disk layout roots.
type StorageConfig struct {
	// DataDir is the index root; partitions live under DataDir/partitions.
	DataDir string `koanf:"dataDir" validate:"required"`
	// StateDir is the badger state store (tail positions, cloud cursors).
	StateDir string `koanf:"stateDir" validate:"required"`
	// AlarmDBPath is the DuckDB database for alarms and notification history.
	AlarmDBPath string `koanf:"alarmDbPath" validate:"required"`
}

// BufferConfig holds write-behind buffer settings (C4).
// Interval fields are integer milliseconds; the *Interval/*Timeout accessor
// methods return them as time.Duration.
type BufferConfig struct {
	MaxSize          int          `koanf:"maxSize" validate:"min=1"`
	FlushIntervalMs  int64        `koanf:"flushIntervalMs" validate:"min=1"`
	Policy           BufferPolicy `koanf:"policy" validate:"oneof=BACKPRESSURE DROP_OLDEST"`
	EnqueueTimeoutMs int64        `koanf:"enqueueTimeoutMs" validate:"min=0"`
	BatchSize        int          `koanf:"batchSize" validate:"min=1"`
	DrainTimeoutMs   int64        `koanf:"drainTimeoutMs" validate:"min=0"`
	WarnStreakMs     int64        `koanf:"warnStreakMs" validate:"min=0"`
}

// FlushInterval returns the flush cadence.
func (b BufferConfig) FlushInterval() time.Duration {
	return time.Duration(b.FlushIntervalMs) * time.Millisecond
}

// EnqueueTimeout returns how long a BACKPRESSURE enqueue blocks before dropping.
func (b BufferConfig) EnqueueTimeout() time.Duration {
	return time.Duration(b.EnqueueTimeoutMs) * time.Millisecond
}

// DrainTimeout returns the shutdown drain deadline.
func (b BufferConfig) DrainTimeout() time.Duration {
	return time.Duration(b.DrainTimeoutMs) * time.Millisecond
}

// WarnStreak returns how long utilization must stay high before health degrades.
func (b BufferConfig) WarnStreak() time.Duration {
	return time.Duration(b.WarnStreakMs) * time.Millisecond
}

// PartitionConfig holds partition manager settings (C2).
type PartitionConfig struct {
	Type        PartitionType `koanf:"type" validate:"oneof=DAILY WEEKLY MONTHLY"`
	MaxActive   int           `koanf:"maxActive" validate:"min=1"`
	AutoArchive bool          `koanf:"autoArchive"`
	// ArchiveDir receives sealed partition directories when AutoArchive is on.
	ArchiveDir string `koanf:"archiveDir"`
}

// CacheConfig holds search result cache settings (C8).
type CacheConfig struct {
	MaxSize int   `koanf:"maxSize" validate:"min=1"`
	TTLMs   int64 `koanf:"ttlMs" validate:"min=1"`
	Enabled bool  `koanf:"enabled"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMs) * time.Millisecond
}

// RetentionConfig holds retention worker settings (C11).
type RetentionConfig struct {
	SweepIntervalMs int64                    `koanf:"sweepIntervalMs" validate:"min=1"`
	Policies        []models.RetentionPolicy `koanf:"policies"`
}

// SweepInterval returns the retention sweep cadence.
func (r RetentionConfig) SweepInterval() time.Duration {
	return time.Duration(r.SweepIntervalMs) * time.Millisecond
}

// SchedulerConfig holds alarm scheduler settings (C9).
type SchedulerConfig struct {
	TickMs int64 `koanf:"tickMs" validate:"min=1"`
}

// Tick returns the scheduler evaluation cadence.
func (s SchedulerConfig) Tick() time.Duration {
	return time.Duration(s.TickMs) * time.Millisecond
}

// NotifyConfig holds notification dispatch settings.
type NotifyConfig struct {
	SMTP SMTPConfig `koanf:"smtp"`
	// RatePerSecond caps outbound notifications across all channels.
	RatePerSecond float64 `koanf:"ratePerSecond" validate:"min=0"`
}

// SMTPConfig configures the EMAIL notification channel.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port" validate:"omitempty,min=1,max=65535"`
	From     string `koanf:"from"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// SourcesConfig declares the ingestion sources started at boot (C5).
type SourcesConfig struct {
	Files      []FileSourceConfig       `koanf:"files"`
	Syslog     []SyslogSourceConfig     `koanf:"syslog"`
	HTTPPush   HTTPPushConfig           `koanf:"httpPush"`
	CloudWatch []CloudWatchSourceConfig `koanf:"cloudwatch"`
}

// FileSourceConfig configures one file-tailing source.
type FileSourceConfig struct {
	ID                  string `koanf:"id" validate:"required"`
	Directory           string `koanf:"directory" validate:"required"`
	FilePattern         string `koanf:"filePattern"`
	ScanIntervalSeconds int    `koanf:"scanIntervalSeconds" validate:"min=0"`
	// Format selects the line parser: plain, nginx, or apache.
	// Empty means plain.
	Format string `koanf:"format" validate:"omitempty,oneof=plain nginx apache"`
}

// ScanInterval returns the periodic rescan cadence, defaulting to 10s.
func (f FileSourceConfig) ScanInterval() time.Duration {
	if f.ScanIntervalSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(f.ScanIntervalSeconds) * time.Second
}

// SyslogSourceConfig configures one syslog listener.
type SyslogSourceConfig struct {
	ID       string `koanf:"id" validate:"required"`
	Protocol string `koanf:"protocol" validate:"oneof=udp tcp"`
	BindAddr string `koanf:"bindAddr"`
	Port     int    `koanf:"port" validate:"min=1,max=65535"`
}

// HTTPPushConfig configures the HTTP push endpoint.
type HTTPPushConfig struct {
	Enabled     bool   `koanf:"enabled"`
	RequireAuth bool   `koanf:"requireAuth"`
	AuthToken   string `koanf:"authToken"`
}

// CloudWatchSourceConfig configures one CloudWatch Logs pull source.
type CloudWatchSourceConfig struct {
	ID                     string `koanf:"id" validate:"required"`
	Region                 string `koanf:"region" validate:"required"`
	LogGroup               string `koanf:"logGroup" validate:"required"`
	LogStream              string `koanf:"logStream" validate:"required"`
	RefreshIntervalSeconds int    `koanf:"queryRefreshIntervalSeconds" validate:"min=0"`
}

// RefreshInterval returns the poll cadence, defaulting to 60s.
func (c CloudWatchSourceConfig) RefreshInterval() time.Duration {
	if c.RefreshIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

// Default returns a Config with production-ready defaults. Defaults are
// applied first, then overridden by the config file and environment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            4280,
			Timeout:         30 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Storage: StorageConfig{
			DataDir:     "/data/grepwise/index",
			StateDir:    "/data/grepwise/state",
			AlarmDBPath: "/data/grepwise/alarms.duckdb",
		},
		Buffer: BufferConfig{
			MaxSize:          10000,
			FlushIntervalMs:  2000,
			Policy:           PolicyBackpressure,
			EnqueueTimeoutMs: 500,
			BatchSize:        500,
			DrainTimeoutMs:   10000,
			WarnStreakMs:     30000,
		},
		Partition: PartitionConfig{
			Type:      PartitionDaily,
			MaxActive: 2,
		},
		Cache: CacheConfig{
			MaxSize: 256,
			TTLMs:   30000,
			Enabled: true,
		},
		Retention: RetentionConfig{
			SweepIntervalMs: 3600000,
		},
		Scheduler: SchedulerConfig{
			TickMs: 10000,
		},
		Notify: NotifyConfig{
			RatePerSecond: 5,
			SMTP:          SMTPConfig{Port: 587},
		},
		Sources: SourcesConfig{
			HTTPPush: HTTPPushConfig{Enabled: true},
		},
	}
}
