// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/goccy/go-json"

	"github.com/grepwise/grepwise/internal/logging"
	"github.com/grepwise/grepwise/internal/models"
	"github.com/grepwise/grepwise/internal/spl"
)

// State is the partition lifecycle state.
type State string

const (
	StateActive   State = "ACTIVE"
	StateSealed   State = "SEALED"
	StateArchived State = "ARCHIVED"
)

// ErrSealed is returned on writes to a partition that no longer accepts them.
var ErrSealed = errors.New("index: partition is sealed")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("index: partition is closed")

const (
	metaFileName = "meta.json"
	lockFileName = "write.lock"
	segmentsDir  = "segments"
)

// Meta is the persisted partition descriptor.
type Meta struct {
	Bucket  string    `json:"bucket"`
	Source  string    `json:"source,omitempty"`
	StartTs time.Time `json:"startTs"`
	EndTs   time.Time `json:"endTs"`
	State   State     `json:"state"`
}

// Partition is one time bucket of the index with its own Bluge writer.
// A mutex serializes add, delete, and commit; searches run against reader
// snapshots and never block the writer beyond snapshot acquisition.
type Partition struct {
	dir  string
	meta Meta

	mu     sync.Mutex
	writer *bluge.Writer
	closed bool
}

// OpenPartition opens or creates the partition directory. A partition
// created fresh starts ACTIVE and holds write.lock; reopening an existing
// directory restores the persisted state.
func OpenPartition(dir string, meta Meta) (*Partition, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create partition dir: %w", err)
	}

	existing, err := readMeta(dir)
	switch {
	case err == nil:
		meta = existing
	case errors.Is(err, os.ErrNotExist):
		if meta.State == "" {
			meta.State = StateActive
		}
		if err := writeMeta(dir, meta); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(filepath.Join(dir, segmentsDir)))
	if err != nil {
		return nil, fmt.Errorf("open index writer for %s: %w", meta.Bucket, err)
	}

	p := &Partition{dir: dir, meta: meta, writer: writer}
	if meta.State == StateActive {
		if err := p.touchLock(); err != nil {
			_ = writer.Close()
			return nil, err
		}
	}

	logging.Debug().
		Str("bucket", meta.Bucket).
		Str("state", string(meta.State)).
		Msg("partition opened")
	return p, nil
}

func readMeta(dir string) (Meta, error) {
	var m Meta
	data, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse %s: %w", metaFileName, err)
	}
	return m, nil
}

func writeMeta(dir string, m Meta) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal partition meta: %w", err)
	}
	tmp := filepath.Join(dir, metaFileName+".tmp")
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write partition meta: %w", err)
	}
	return os.Rename(tmp, filepath.Join(dir, metaFileName))
}

func (p *Partition) touchLock() error {
	f, err := os.OpenFile(filepath.Join(p.dir, lockFileName), os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("create write.lock: %w", err)
	}
	return f.Close()
}

// Meta returns a copy of the partition descriptor.
func (p *Partition) Meta() Meta {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.meta
}

// Dir returns the partition directory.
func (p *Partition) Dir() string {
	return p.dir
}

// Writable reports whether the partition accepts adds.
func (p *Partition) Writable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.meta.State == StateActive && !p.closed
}

// AddBatch indexes a batch of events atomically. Flags carry the field
// configurations controlling per-metadata index treatment.
func (p *Partition) AddBatch(events []*models.LogEvent, flags map[string]models.FieldConfiguration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.meta.State != StateActive {
		return ErrSealed
	}

	batch := bluge.NewBatch()
	for _, ev := range events {
		doc, err := buildDocument(ev, flags)
		if err != nil {
			return err
		}
		batch.Update(doc.ID(), doc)
	}
	if err := p.writer.Batch(batch); err != nil {
		return fmt.Errorf("index batch in %s: %w", p.meta.Bucket, err)
	}
	return nil
}

// Commit is the durability barrier. Bluge persists each batch write, so a
// repeated commit with no intervening writes is a no-op by construction.
func (p *Partition) Commit() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	// The writer flushes per batch; nothing buffered remains here.
	return nil
}

// Search runs a query against a point-in-time snapshot and returns up to
// limit events ordered by timestamp descending, ties broken by id.
// limit <= 0 materializes every match; pipelines with aggregations need
// the full result set.
func (p *Partition) Search(ctx context.Context, pred spl.Predicate, rng spl.TimeRange, limit int) ([]*models.LogEvent, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	reader, err := p.writer.Reader()
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", p.meta.Bucket, err)
	}
	defer func() { _ = reader.Close() }()

	var req bluge.SearchRequest
	if limit > 0 {
		req = bluge.NewTopNSearch(limit, translate(pred, rng)).
			SortBy([]string{"-" + fieldTimestamp, "_id"})
	} else {
		req = bluge.NewAllMatches(translate(pred, rng))
	}

	it, err := reader.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", p.meta.Bucket, err)
	}

	var out []*models.LogEvent
	for {
		match, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("iterate %s: %w", p.meta.Bucket, err)
		}
		if match == nil {
			break
		}
		ev, err := decodeMatch(match)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if limit <= 0 {
		// AllMatches yields hits in internal order; restore result order.
		sort.Slice(out, func(i, j int) bool { return eventBefore(out[i], out[j]) })
	}
	return out, nil
}

// DeleteMatching removes every event matching the predicate and returns
// the count. Deletes are allowed on sealed partitions; retention depends
// on that.
func (p *Partition) DeleteMatching(ctx context.Context, pred spl.Predicate, rng spl.TimeRange) (int, error) {
	return p.deleteByQuery(ctx, translate(pred, rng))
}

// DeleteExpired removes events whose record and ingest times both precede
// the cutoff, optionally restricted to one source. An event with either
// time at or past the cutoff survives.
func (p *Partition) DeleteExpired(ctx context.Context, threshold time.Time, source string) (int, error) {
	return p.deleteByQuery(ctx, expiredQuery(threshold, source))
}

// HasIngestSince reports whether any event in the partition was ingested
// at or after t.
func (p *Partition) HasIngestSince(ctx context.Context, t time.Time) (bool, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false, ErrClosed
	}
	reader, err := p.writer.Reader()
	p.mu.Unlock()
	if err != nil {
		return false, fmt.Errorf("snapshot %s: %w", p.meta.Bucket, err)
	}
	defer func() { _ = reader.Close() }()

	q := bluge.NewDateRangeInclusiveQuery(t, farFuture, true, true).SetField(fieldIngestTime)
	it, err := reader.Search(ctx, bluge.NewTopNSearch(1, q))
	if err != nil {
		return false, fmt.Errorf("ingest scan %s: %w", p.meta.Bucket, err)
	}
	match, err := it.Next()
	if err != nil {
		return false, fmt.Errorf("iterate %s: %w", p.meta.Bucket, err)
	}
	return match != nil, nil
}

func (p *Partition) deleteByQuery(ctx context.Context, q bluge.Query) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	reader, err := p.writer.Reader()
	p.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("snapshot %s: %w", p.meta.Bucket, err)
	}

	it, err := reader.Search(ctx, bluge.NewAllMatches(q))
	if err != nil {
		_ = reader.Close()
		return 0, fmt.Errorf("delete scan %s: %w", p.meta.Bucket, err)
	}

	var ids []string
	for {
		match, err := it.Next()
		if err != nil {
			_ = reader.Close()
			return 0, fmt.Errorf("iterate %s: %w", p.meta.Bucket, err)
		}
		if match == nil {
			break
		}
		id, err := matchID(match)
		if err != nil {
			_ = reader.Close()
			return 0, err
		}
		if id != "" {
			ids = append(ids, id)
		}
	}
	_ = reader.Close()

	if len(ids) == 0 {
		return 0, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	batch := bluge.NewBatch()
	for _, id := range ids {
		batch.Delete(bluge.Identifier(id))
	}
	if err := p.writer.Batch(batch); err != nil {
		return 0, fmt.Errorf("delete batch in %s: %w", p.meta.Bucket, err)
	}
	return len(ids), nil
}

// Count returns the number of live documents.
func (p *Partition) Count(ctx context.Context) (uint64, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	reader, err := p.writer.Reader()
	p.mu.Unlock()
	if err != nil {
		return 0, err
	}
	defer func() { _ = reader.Close() }()
	return reader.Count()
}

// Seal transitions the partition to SEALED: further adds are rejected,
// the write.lock marker is removed, and the new state is persisted.
func (p *Partition) Seal() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.meta.State != StateActive {
		return nil
	}
	p.meta.State = StateSealed
	if err := writeMeta(p.dir, p.meta); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(p.dir, lockFileName)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove write.lock: %w", err)
	}
	logging.Info().Str("bucket", p.meta.Bucket).Msg("partition sealed")
	return nil
}

// MarkArchived records the ARCHIVED state after the directory has been
// handed to the archiver.
func (p *Partition) MarkArchived() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.meta.State == StateArchived {
		return nil
	}
	p.meta.State = StateArchived
	return writeMeta(p.dir, p.meta)
}

// Close flushes and releases the writer. Idempotent.
func (p *Partition) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}
