// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package ingest

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/grepwise/grepwise/internal/config"
	"github.com/grepwise/grepwise/internal/logging"
	"github.com/grepwise/grepwise/internal/metrics"
	"github.com/grepwise/grepwise/internal/models"
	"github.com/grepwise/grepwise/internal/statestore"
)

// Tailer follows every file matching a glob in one directory, reading
// only appended bytes between scans. Offsets persist in the state store,
// so restarts resume where the previous process stopped.
type Tailer struct {
	cfg   config.FileSourceConfig
	buf   Enqueuer
	state *statestore.Store
	parse LineParser
}

// NewTailer builds a tailer for one configured file source.
func NewTailer(cfg config.FileSourceConfig, buf Enqueuer, state *statestore.Store) *Tailer {
	return &Tailer{
		cfg:   cfg,
		buf:   buf,
		state: state,
		parse: ParserFor(cfg.Format),
	}
}

// Serve scans on the configured interval and additionally on filesystem
// notifications. It satisfies the supervisor service contract.
func (t *Tailer) Serve(ctx context.Context) error {
	var notify chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if err := watcher.Add(t.cfg.Directory); err != nil {
			logging.Warn().Err(err).Str("source", t.cfg.ID).Str("dir", t.cfg.Directory).
				Msg("fsnotify watch failed, falling back to interval scans")
			_ = watcher.Close()
			watcher = nil
		}
	} else {
		logging.Warn().Err(err).Str("source", t.cfg.ID).Msg("fsnotify unavailable")
		watcher = nil
	}
	if watcher != nil {
		notify = make(chan fsnotify.Event)
		defer func() { _ = watcher.Close() }()
		go func() {
			for {
				select {
				case ev, ok := <-watcher.Events:
					if !ok {
						return
					}
					if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) {
						select {
						case notify <- ev:
						default: // a scan is already pending
						}
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					logging.Warn().Err(err).Str("source", t.cfg.ID).Msg("fsnotify error")
				}
			}
		}()
	}

	ticker := time.NewTicker(t.cfg.ScanInterval())
	defer ticker.Stop()

	var retry backoff
	for {
		if err := t.Scan(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			metrics.IngestErrors.WithLabelValues(t.cfg.ID, "scan").Inc()
			logging.Error().Err(err).Str("source", t.cfg.ID).Msg("tail scan failed")
			if err := retry.sleep(ctx); err != nil {
				return err
			}
		} else {
			retry.reset()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-notify:
		}
	}
}

// Scan reads the new tail of every matching file once.
func (t *Tailer) Scan(ctx context.Context) error {
	pattern := t.cfg.FilePattern
	if pattern == "" {
		pattern = "*"
	}
	paths, err := filepath.Glob(filepath.Join(t.cfg.Directory, pattern))
	if err != nil {
		return err
	}
	var firstErr error
	for _, path := range paths {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := t.scanFile(ctx, path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *Tailer) scanFile(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return nil
	}

	pos, err := t.state.TailPosition(t.cfg.ID, path)
	if err != nil && !errors.Is(err, statestore.ErrNotFound) {
		return err
	}
	if info.Size() < pos.Size {
		// Truncation: the file was rewritten, start over.
		logging.Info().Str("source", t.cfg.ID).Str("path", path).Msg("file truncated, resetting offset")
		pos = statestore.TailPosition{}
	}
	if info.Size() == pos.Offset && info.ModTime().Equal(pos.LastModified) {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if pos.Offset > 0 {
		if _, err := f.Seek(pos.Offset, io.SeekStart); err != nil {
			return err
		}
	}

	offset, err := t.readTail(ctx, f, pos.Offset)
	if err != nil {
		return err
	}
	return t.state.SetTailPosition(t.cfg.ID, path, statestore.TailPosition{
		Offset:       offset,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	})
}

// readTail consumes complete lines from the reader, emitting events and
// folding whitespace-led continuation lines into the previous event. A
// trailing partial line stays unconsumed until it gains its newline.
func (t *Tailer) readTail(ctx context.Context, f io.Reader, start int64) (int64, error) {
	reader := bufio.NewReader(f)
	offset := start

	var pending *models.LogEvent
	flush := func() error {
		if pending == nil {
			return nil
		}
		err := enqueue(ctx, t.buf, pending)
		pending = nil
		return err
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Partial line without newline: leave it for the next pass.
				break
			}
			return offset, err
		}
		offset += int64(len(line))
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		if !StartsNewEvent(line) && pending != nil {
			pending.Message += "\n" + strings.TrimLeft(line, " \t")
			pending.RawContent += "\n" + line
			continue
		}
		if err := flush(); err != nil {
			return offset, err
		}
		pending = t.parse(t.cfg.ID, line)
	}
	return offset, flush()
}
