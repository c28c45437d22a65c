// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

// Command grepwise runs the log search, alerting, and streaming server.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/grepwise/grepwise/internal/alarm"
	"github.com/grepwise/grepwise/internal/api"
	"github.com/grepwise/grepwise/internal/buffer"
	"github.com/grepwise/grepwise/internal/bus"
	"github.com/grepwise/grepwise/internal/config"
	"github.com/grepwise/grepwise/internal/extract"
	"github.com/grepwise/grepwise/internal/index"
	"github.com/grepwise/grepwise/internal/ingest"
	"github.com/grepwise/grepwise/internal/logging"
	"github.com/grepwise/grepwise/internal/retention"
	"github.com/grepwise/grepwise/internal/search"
	"github.com/grepwise/grepwise/internal/statestore"
	"github.com/grepwise/grepwise/internal/supervisor"
	"github.com/grepwise/grepwise/internal/supervisor/services"
)

// Exit codes: 2 for configuration errors, 3 for storage errors.
const (
	exitConfig  = 2
	exitStorage = 3
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "grepwise: invalid configuration: %v\n", err)
		os.Exit(exitConfig)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("version", version).Msg("grepwise starting")

	if err := run(cfg); err != nil {
		logging.Error().Err(err).Msg("grepwise exited with error")
		os.Exit(exitStorage)
	}
}

// version is stamped by the build; "dev" otherwise.
var version = "dev"

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage layers.
	state, err := statestore.Open(cfg.Storage.StateDir)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer func() { _ = state.Close() }()

	alarms, err := alarm.OpenStore(cfg.Storage.AlarmDBPath)
	if err != nil {
		return fmt.Errorf("open alarm store: %w", err)
	}
	defer func() { _ = alarms.Close() }()

	var archiver index.Archiver
	if cfg.Partition.AutoArchive && cfg.Partition.ArchiveDir != "" {
		archiver = index.DirArchiver{Dest: cfg.Partition.ArchiveDir}
	}
	manager, err := index.NewManager(index.ManagerConfig{
		Root:        cfg.Storage.DataDir,
		Bucket:      index.BucketType(cfg.Partition.Type),
		MaxActive:   cfg.Partition.MaxActive,
		AutoArchive: cfg.Partition.AutoArchive,
		Archiver:    archiver,
	})
	if err != nil {
		return fmt.Errorf("open partition manager: %w", err)
	}
	defer func() { _ = manager.Close() }()

	// Ingestion pipeline.
	events := bus.New()
	defer events.Close()

	extractor, err := extract.New(cfg.Fields)
	if err != nil {
		return fmt.Errorf("compile field configurations: %w", err)
	}
	buf := buffer.New(cfg.Buffer, extractor, manager, events)

	// Query path.
	cache := search.NewCache(cfg.Cache)
	executor := search.NewExecutor(manager, cache, events)

	// Alerting.
	dispatcher := alarm.NewDispatcher(cfg.Notify)
	scheduler := alarm.NewScheduler(alarms, executor, dispatcher, events, cfg.Scheduler.Tick())

	// Retention.
	sweeper := retention.NewWorker(cfg.Retention, manager, cache)

	// HTTP surface.
	handler := api.NewHandler(executor, alarms, buf, manager, events, cfg.Sources.HTTPPush)
	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           api.NewRouter(handler, cfg.Server).Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Supervision tree.
	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())

	tree.AddIngestService(services.Named{Name: "write-behind-buffer", Service: buf})
	for _, fc := range cfg.Sources.Files {
		tree.AddIngestService(services.Named{
			Name:    "tail-" + fc.ID,
			Service: ingest.NewTailer(fc, buf, state),
		})
	}
	for _, sc := range cfg.Sources.Syslog {
		tree.AddIngestService(services.Named{
			Name:    "syslog-" + sc.ID,
			Service: ingest.NewSyslogServer(sc, buf),
		})
	}
	for _, cw := range cfg.Sources.CloudWatch {
		poller, err := ingest.NewCloudWatchPoller(ctx, cw, buf, state)
		if err != nil {
			return fmt.Errorf("cloudwatch source %s: %w", cw.ID, err)
		}
		tree.AddIngestService(services.Named{Name: "cloudwatch-" + cw.ID, Service: poller})
	}

	tree.AddAlertingService(services.Named{Name: "alarm-scheduler", Service: scheduler})
	tree.AddAlertingService(services.Named{Name: "retention-worker", Service: sweeper})

	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.Timeout))

	logging.Info().
		Str("addr", server.Addr).
		Int("sources", len(cfg.Sources.Files)+len(cfg.Sources.Syslog)+len(cfg.Sources.CloudWatch)).
		Msg("grepwise ready")

	err = tree.Serve(ctx)
	if err != nil && ctx.Err() == nil {
		return err
	}

	if unstopped, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service did not stop within timeout")
		}
	}
	logging.Info().Msg("grepwise stopped")
	return nil
}
