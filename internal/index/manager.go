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
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/grepwise/grepwise/internal/logging"
	"github.com/grepwise/grepwise/internal/metrics"
	"github.com/grepwise/grepwise/internal/models"
	"github.com/grepwise/grepwise/internal/spl"
)

// BucketType selects the partition time granularity.
type BucketType string

const (
	BucketDaily   BucketType = "DAILY"
	BucketWeekly  BucketType = "WEEKLY"
	BucketMonthly BucketType = "MONTHLY"
)

// Archiver receives sealed partition directories when auto-archive is on.
type Archiver interface {
	Archive(dir string, meta Meta) error
}

// DirArchiver moves partition directories under a destination root.
type DirArchiver struct {
	Dest string
}

// Archive moves the partition directory into the archive root.
func (a DirArchiver) Archive(dir string, meta Meta) error {
	if err := os.MkdirAll(a.Dest, 0o750); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	dest := filepath.Join(a.Dest, filepath.Base(dir))
	if err := os.Rename(dir, dest); err != nil {
		return fmt.Errorf("archive %s: %w", meta.Bucket, err)
	}
	return nil
}

// ManagerConfig configures the partition manager.
type ManagerConfig struct {
	// Root is the index root; partitions live under Root/partitions.
	Root        string
	Bucket      BucketType
	MaxActive   int
	AutoArchive bool
	Archiver    Archiver
}

// Manager owns the partition set: routing writes, sealing on rollover,
// and fanning searches out across overlapping partitions.
type Manager struct {
	cfg ManagerConfig

	mu         sync.RWMutex
	partitions map[string]*Partition
}

// NewManager opens the manager, restoring any partitions already on disk.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.MaxActive < 1 {
		cfg.MaxActive = 1
	}
	m := &Manager{cfg: cfg, partitions: make(map[string]*Partition)}

	root := m.partitionsRoot()
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create partitions root: %w", err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scan partitions root: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		meta, err := readMeta(dir)
		if err != nil {
			logging.Warn().Err(err).Str("dir", dir).Msg("skipping partition without readable meta")
			continue
		}
		p, err := OpenPartition(dir, meta)
		if err != nil {
			// Corrupt partition: log, leave the directory alone, keep serving
			// the others.
			logging.Error().Err(err).Str("bucket", meta.Bucket).Msg("partition unavailable")
			continue
		}
		m.partitions[entry.Name()] = p
	}

	if err := m.enforceActiveLimit(); err != nil {
		m.closeAllLocked()
		return nil, err
	}
	m.publishGauges()
	return m, nil
}

func (m *Manager) partitionsRoot() string {
	return filepath.Join(m.cfg.Root, "partitions")
}

// bucketFor computes the bucket key and time span containing t.
func (m *Manager) bucketFor(t time.Time) (string, time.Time, time.Time) {
	t = t.UTC()
	switch m.cfg.Bucket {
	case BucketWeekly:
		// Buckets start on Monday.
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		year, week := start.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week), start, start.AddDate(0, 0, 7)
	case BucketMonthly:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start.Format("2006-01"), start, start.AddDate(0, 1, 0)
	default: // BucketDaily
		start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return start.Format("2006-01-02"), start, start.AddDate(0, 0, 1)
	}
}

// Route indexes a batch, bucketing each event by its effective timestamp.
// New buckets open ACTIVE partitions; afterwards the active set is trimmed
// to the most recent MaxActive buckets. Commit is invoked per touched
// partition, so an acknowledged Route is durable.
func (m *Manager) Route(ctx context.Context, events []*models.LogEvent, flags map[string]models.FieldConfiguration) error {
	if len(events) == 0 {
		return nil
	}

	byBucket := make(map[string][]*models.LogEvent)
	for _, ev := range events {
		key, _, _ := m.bucketFor(ev.EffectiveTime())
		byBucket[key] = append(byBucket[key], ev)
	}

	for key, batch := range byBucket {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := m.getOrCreate(key, batch[0].EffectiveTime())
		if err != nil {
			return err
		}
		if !p.Writable() {
			// Late data for a sealed bucket is dropped with a trace; the
			// alternative is unsealing, which would break the seal invariant.
			metrics.EventsDropped.WithLabelValues(batch[0].Source, "sealed_partition").Add(float64(len(batch)))
			logging.Warn().Str("bucket", key).Int("events", len(batch)).Msg("dropping late events for sealed partition")
			continue
		}
		if err := p.AddBatch(batch, flags); err != nil {
			return err
		}
		if err := p.Commit(); err != nil {
			return err
		}
	}

	if err := m.enforceActiveLimit(); err != nil {
		return err
	}
	m.publishGauges()
	return nil
}

func (m *Manager) getOrCreate(key string, t time.Time) (*Partition, error) {
	m.mu.RLock()
	p := m.partitions[key]
	m.mu.RUnlock()
	if p != nil {
		return p, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.partitions[key]; p != nil {
		return p, nil
	}

	_, start, end := m.bucketFor(t)
	dir := filepath.Join(m.partitionsRoot(), key)
	p, err := OpenPartition(dir, Meta{Bucket: key, StartTs: start, EndTs: end, State: StateActive})
	if err != nil {
		return nil, err
	}
	m.partitions[key] = p
	logging.Info().Str("bucket", key).Msg("partition created")
	return p, nil
}

// enforceActiveLimit seals every ACTIVE partition outside the most recent
// MaxActive buckets. Sealed partitions hand their directory to the
// archiver when auto-archive is enabled.
func (m *Manager) enforceActiveLimit() error {
	m.mu.Lock()
	var active []*Partition
	for _, p := range m.partitions {
		if p.Meta().State == StateActive {
			active = append(active, p)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].Meta().StartTs.After(active[j].Meta().StartTs)
	})
	var toSeal []*Partition
	if len(active) > m.cfg.MaxActive {
		toSeal = active[m.cfg.MaxActive:]
	}
	m.mu.Unlock()

	for _, p := range toSeal {
		if err := p.Seal(); err != nil {
			return err
		}
		if m.cfg.AutoArchive && m.cfg.Archiver != nil {
			if err := m.archive(p); err != nil {
				return err
			}
		}
	}
	return nil
}

// archive closes the partition, hands its directory to the archiver, and
// drops it from the live set.
func (m *Manager) archive(p *Partition) error {
	meta := p.Meta()
	if err := p.MarkArchived(); err != nil {
		return err
	}
	if err := p.Close(); err != nil {
		return err
	}
	if err := m.cfg.Archiver.Archive(p.Dir(), meta); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.partitions, meta.Bucket)
	m.mu.Unlock()
	logging.Info().Str("bucket", meta.Bucket).Msg("partition archived")
	return nil
}

// overlapping returns partitions whose span intersects the range, ACTIVE
// and SEALED only.
func (m *Manager) overlapping(rng spl.TimeRange) []*Partition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Partition
	for _, p := range m.partitions {
		meta := p.Meta()
		if meta.State == StateArchived {
			continue
		}
		if rng.Overlaps(meta.StartTs, meta.EndTs) {
			out = append(out, p)
		}
	}
	return out
}

// Search fans the query out across overlapping partitions concurrently
// and merges with a bounded heap. limit <= 0 materializes every match.
func (m *Manager) Search(ctx context.Context, pred spl.Predicate, rng spl.TimeRange, limit int) ([]*models.LogEvent, error) {
	parts := m.overlapping(rng)
	if len(parts) == 0 {
		return nil, nil
	}

	merged := newTopKHeap(limit)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, p := range parts {
		g.Go(func() error {
			events, err := p.Search(gctx, pred, rng, limit)
			if err != nil {
				return err
			}
			mu.Lock()
			for _, ev := range events {
				merged.Offer(ev)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merged.Sorted(), nil
}

// DeleteByPredicate removes matching events from every overlapping
// partition and returns the total count.
func (m *Manager) DeleteByPredicate(ctx context.Context, pred spl.Predicate, rng spl.TimeRange) (int, error) {
	total := 0
	for _, p := range m.overlapping(rng) {
		n, err := p.DeleteMatching(ctx, pred, rng)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// DeleteExpired applies a retention cutoff to every partition overlapping
// it and returns the total number of events removed. Only events whose
// record and ingest times both precede the cutoff are deleted.
func (m *Manager) DeleteExpired(ctx context.Context, threshold time.Time, source string) (int, error) {
	total := 0
	rng := spl.TimeRange{End: threshold}
	for _, p := range m.overlapping(rng) {
		n, err := p.DeleteExpired(ctx, threshold, source)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// HasIngestSince reports whether the named partition holds any event
// ingested at or after t. Unknown buckets report false.
func (m *Manager) HasIngestSince(ctx context.Context, bucket string, t time.Time) (bool, error) {
	m.mu.RLock()
	p := m.partitions[bucket]
	m.mu.RUnlock()
	if p == nil {
		return false, nil
	}
	return p.HasIngestSince(ctx, t)
}

// Partitions returns a snapshot of partition descriptors, newest first.
func (m *Manager) Partitions() []Meta {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Meta, 0, len(m.partitions))
	for _, p := range m.partitions {
		out = append(out, p.Meta())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTs.After(out[j].StartTs) })
	return out
}

// Remove permanently deletes a partition and its directory. The caller
// decides about archiving beforehand; Remove is the retention terminal
// operation.
func (m *Manager) Remove(bucket string) error {
	m.mu.Lock()
	p := m.partitions[bucket]
	delete(m.partitions, bucket)
	m.mu.Unlock()
	if p == nil {
		return fmt.Errorf("index: unknown partition %q", bucket)
	}
	if err := p.Close(); err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	if err := os.RemoveAll(p.Dir()); err != nil {
		return fmt.Errorf("remove partition %s: %w", bucket, err)
	}
	m.publishGauges()
	logging.Info().Str("bucket", bucket).Msg("partition removed")
	return nil
}

// ArchivePartition seals (if needed) and archives one partition on demand.
func (m *Manager) ArchivePartition(bucket string) error {
	m.mu.RLock()
	p := m.partitions[bucket]
	m.mu.RUnlock()
	if p == nil {
		return fmt.Errorf("index: unknown partition %q", bucket)
	}
	if m.cfg.Archiver == nil {
		return errors.New("index: no archiver configured")
	}
	if err := p.Seal(); err != nil {
		return err
	}
	return m.archive(p)
}

// publishGauges refreshes the partition state metrics.
func (m *Manager) publishGauges() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := map[State]int{}
	for _, p := range m.partitions {
		counts[p.Meta().State]++
	}
	metrics.PartitionsActive.Set(float64(counts[StateActive]))
	metrics.PartitionsTotal.WithLabelValues("active").Set(float64(counts[StateActive]))
	metrics.PartitionsTotal.WithLabelValues("sealed").Set(float64(counts[StateSealed]))
	metrics.PartitionsTotal.WithLabelValues("archived").Set(float64(counts[StateArchived]))
}

func (m *Manager) closeAllLocked() {
	for _, p := range m.partitions {
		_ = p.Close()
	}
}

// Close flushes and closes every partition.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, p := range m.partitions {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
