// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

// Package statestore persists ingestion source state in BadgerDB: tail
// positions for file sources and pull cursors for cloud sources. State
// survives restarts so sources resume where they left off instead of
// re-ingesting or skipping data.
package statestore

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/grepwise/grepwise/internal/logging"
)

// Key prefixes for BadgerDB storage.
const (
	tailPositionKeyPrefix = "tailpos:"
	cloudCursorKeyPrefix  = "cursor:"
)

// ErrNotFound is returned when no state exists for the requested key.
var ErrNotFound = errors.New("statestore: not found")

// TailPosition records how far a file has been read. Size and LastModified
// are the file attributes observed at the recorded offset; a shrinking size
// signals truncation and resets the offset to zero.
type TailPosition struct {
	Offset       int64     `json:"offset"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// CloudCursor records the pull position within a cloud log stream.
type CloudCursor struct {
	Token     string    `json:"token"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store is a BadgerDB-backed state store.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the state store at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithCompactL0OnClose(true)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	logging.Debug().Str("dir", dir).Msg("state store opened")
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing BadgerDB handle. Used in tests.
func NewWithDB(db *badger.DB) *Store {
	return &Store{db: db}
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// TailPosition returns the recorded position for a source and file path.
func (s *Store) TailPosition(sourceID, path string) (TailPosition, error) {
	var pos TailPosition
	err := s.get(tailPositionKey(sourceID, path), &pos)
	return pos, err
}

// SetTailPosition records the position for a source and file path.
func (s *Store) SetTailPosition(sourceID, path string, pos TailPosition) error {
	return s.put(tailPositionKey(sourceID, path), pos)
}

// DeleteTailPosition removes the position for a file that no longer exists.
func (s *Store) DeleteTailPosition(sourceID, path string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(tailPositionKey(sourceID, path))
	})
}

// CloudCursor returns the pull cursor for a cloud source.
func (s *Store) CloudCursor(sourceID string) (CloudCursor, error) {
	var cur CloudCursor
	err := s.get(cloudCursorKey(sourceID), &cur)
	return cur, err
}

// SetCloudCursor records the pull cursor for a cloud source.
func (s *Store) SetCloudCursor(sourceID string, cur CloudCursor) error {
	return s.put(cloudCursorKey(sourceID), cur)
}

// ResetCloudCursor deletes the cursor so the next pull starts from scratch.
// Called when the remote rejects the stored token as invalid.
func (s *Store) ResetCloudCursor(sourceID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(cloudCursorKey(sourceID))
	})
}

func (s *Store) get(key []byte, out any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	return err
}

func (s *Store) put(key []byte, val any) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

func tailPositionKey(sourceID, path string) []byte {
	return []byte(tailPositionKeyPrefix + sourceID + ":" + path)
}

func cloudCursorKey(sourceID string) []byte {
	return []byte(cloudCursorKeyPrefix + sourceID)
}
