// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

// Package alarm implements alerting: a DuckDB-backed store for alarm
// definitions and firings, the evaluation scheduler, and the
// notification dispatchers.
package alarm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/grepwise/grepwise/internal/logging"
	"github.com/grepwise/grepwise/internal/models"
)

var (
	// ErrNotFound is returned for unknown alarm or event ids.
	ErrNotFound = errors.New("alarm: not found")
	// ErrConflict is returned on duplicate alarm names.
	ErrConflict = errors.New("alarm: name already exists")
	// ErrInvalidTransition is returned when an operator action violates
	// the event state machine.
	ErrInvalidTransition = errors.New("alarm: invalid status transition")
)

const schema = `
CREATE TABLE IF NOT EXISTS alarms (
    id                            TEXT PRIMARY KEY,
    name                          TEXT NOT NULL UNIQUE,
    query                         TEXT NOT NULL,
    condition                     TEXT NOT NULL,
    threshold                     BIGINT NOT NULL,
    time_window_minutes           INTEGER NOT NULL,
    enabled                       BOOLEAN NOT NULL,
    channels                      TEXT NOT NULL,
    throttle_window_minutes       INTEGER NOT NULL,
    max_notifications_per_window  INTEGER NOT NULL,
    grouping_key                  TEXT,
    grouping_window_minutes       INTEGER NOT NULL,
    created_at                    TIMESTAMP NOT NULL,
    updated_at                    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS alarm_events (
    id              TEXT PRIMARY KEY,
    alarm_id        TEXT NOT NULL,
    ts              TIMESTAMP NOT NULL,
    status          TEXT NOT NULL,
    match_count     BIGINT NOT NULL,
    acknowledged_by TEXT,
    acknowledged_at TIMESTAMP,
    resolved_by     TEXT,
    resolved_at     TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_alarm_events_alarm_ts ON alarm_events (alarm_id, ts);

CREATE TABLE IF NOT EXISTS notifications (
    alarm_id    TEXT NOT NULL,
    channel_key TEXT NOT NULL,
    ts          TIMESTAMP NOT NULL,
    success     BOOLEAN NOT NULL,
    error       TEXT
);
CREATE INDEX IF NOT EXISTS idx_notifications_throttle ON notifications (alarm_id, channel_key, ts);

CREATE TABLE IF NOT EXISTS suppressions (
    alarm_id    TEXT NOT NULL,
    channel_key TEXT NOT NULL,
    ts          TIMESTAMP NOT NULL,
    reason      TEXT NOT NULL
);
`

// Store persists alarms, firings, and the notification ledger the
// throttle consults.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the alarm database at path. Use
// ":memory:" for an ephemeral store.
func OpenStore(path string) (*Store, error) {
	connStr := path + "?access_mode=read_write&autoinstall_known_extensions=false&autoload_known_extensions=false"
	db, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open alarm db: %w", err)
	}
	// DuckDB is embedded; a single writer connection avoids lock churn.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate alarm db: %w", err)
	}
	logging.Info().Str("path", path).Msg("alarm store opened")
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateAlarm validates and inserts a new alarm. A missing id is
// assigned; duplicate names surface ErrConflict.
func (s *Store) CreateAlarm(ctx context.Context, a *models.Alarm) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM alarms WHERE name = ?`, a.Name).Scan(&exists); err != nil {
		return fmt.Errorf("check alarm name: %w", err)
	}
	if exists > 0 {
		return ErrConflict
	}

	channels, err := json.Marshal(a.NotificationChannels)
	if err != nil {
		return fmt.Errorf("marshal channels: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alarms (id, name, query, condition, threshold, time_window_minutes,
			enabled, channels, throttle_window_minutes, max_notifications_per_window,
			grouping_key, grouping_window_minutes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Query, string(a.Condition), a.Threshold, a.TimeWindowMinutes,
		a.Enabled, string(channels), a.ThrottleWindowMinutes, a.MaxNotificationsPerWindow,
		a.GroupingKey, a.GroupingWindowMinutes, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert alarm: %w", err)
	}
	return nil
}

// UpdateAlarm replaces a stored alarm in full.
func (s *Store) UpdateAlarm(ctx context.Context, a *models.Alarm) error {
	if err := a.Validate(); err != nil {
		return err
	}
	a.UpdatedAt = time.Now().UTC()

	channels, err := json.Marshal(a.NotificationChannels)
	if err != nil {
		return fmt.Errorf("marshal channels: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE alarms SET name = ?, query = ?, condition = ?, threshold = ?,
			time_window_minutes = ?, enabled = ?, channels = ?,
			throttle_window_minutes = ?, max_notifications_per_window = ?,
			grouping_key = ?, grouping_window_minutes = ?, updated_at = ?
		WHERE id = ?`,
		a.Name, a.Query, string(a.Condition), a.Threshold,
		a.TimeWindowMinutes, a.Enabled, string(channels),
		a.ThrottleWindowMinutes, a.MaxNotificationsPerWindow,
		a.GroupingKey, a.GroupingWindowMinutes, a.UpdatedAt, a.ID)
	if err != nil {
		return fmt.Errorf("update alarm: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAlarm removes an alarm and its history.
func (s *Store) DeleteAlarm(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alarms WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete alarm: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	for _, table := range []string{"alarm_events", "notifications", "suppressions"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE alarm_id = ?`, id); err != nil {
			return fmt.Errorf("delete alarm history: %w", err)
		}
	}
	return nil
}

const alarmColumns = `id, name, query, condition, threshold, time_window_minutes,
	enabled, channels, throttle_window_minutes, max_notifications_per_window,
	grouping_key, grouping_window_minutes, created_at, updated_at`

// GetAlarm loads one alarm by id.
func (s *Store) GetAlarm(ctx context.Context, id string) (*models.Alarm, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alarmColumns+` FROM alarms WHERE id = ?`, id)
	return scanAlarm(row)
}

// ListAlarms returns every alarm ordered by name.
func (s *Store) ListAlarms(ctx context.Context) ([]*models.Alarm, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+alarmColumns+` FROM alarms ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list alarms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Alarm
	for rows.Next() {
		a, err := scanAlarm(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// EnabledAlarms returns the alarms the scheduler evaluates.
func (s *Store) EnabledAlarms(ctx context.Context) ([]*models.Alarm, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+alarmColumns+` FROM alarms WHERE enabled ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list enabled alarms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Alarm
	for rows.Next() {
		a, err := scanAlarm(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlarm(row rowScanner) (*models.Alarm, error) {
	var a models.Alarm
	var condition, channels string
	var groupingKey sql.NullString
	err := row.Scan(&a.ID, &a.Name, &a.Query, &condition, &a.Threshold, &a.TimeWindowMinutes,
		&a.Enabled, &channels, &a.ThrottleWindowMinutes, &a.MaxNotificationsPerWindow,
		&groupingKey, &a.GroupingWindowMinutes, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan alarm: %w", err)
	}
	a.Condition = models.Condition(condition)
	a.GroupingKey = groupingKey.String
	if err := json.Unmarshal([]byte(channels), &a.NotificationChannels); err != nil {
		return nil, fmt.Errorf("decode channels for alarm %s: %w", a.ID, err)
	}
	return &a, nil
}

// InsertEvent records a new firing. A missing id is assigned.
func (s *Store) InsertEvent(ctx context.Context, ev *models.AlarmEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alarm_events (id, alarm_id, ts, status, match_count)
		VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.AlarmID, ev.Timestamp, string(ev.Status), ev.MatchCount)
	if err != nil {
		return fmt.Errorf("insert alarm event: %w", err)
	}
	return nil
}

// AddEventMatches folds additional matches into an existing firing; the
// grouping window accumulates its running matchCount here.
func (s *Store) AddEventMatches(ctx context.Context, id string, delta int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE alarm_events SET match_count = match_count + ? WHERE id = ?`,
		delta, id)
	if err != nil {
		return fmt.Errorf("accumulate alarm event matches: %w", err)
	}
	return nil
}

const eventColumns = `id, alarm_id, ts, status, match_count,
	acknowledged_by, acknowledged_at, resolved_by, resolved_at`

// GetEvent loads one firing by id.
func (s *Store) GetEvent(ctx context.Context, id string) (*models.AlarmEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM alarm_events WHERE id = ?`, id)
	return scanEvent(row)
}

// ListEvents returns firings newest first, optionally filtered by alarm.
func (s *Store) ListEvents(ctx context.Context, alarmID string, limit int) ([]*models.AlarmEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + eventColumns + ` FROM alarm_events`
	args := []any{}
	if alarmID != "" {
		query += ` WHERE alarm_id = ?`
		args = append(args, alarmID)
	}
	query += ` ORDER BY ts DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alarm events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.AlarmEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func scanEvent(row rowScanner) (*models.AlarmEvent, error) {
	var ev models.AlarmEvent
	var status string
	var ackBy, resBy sql.NullString
	var ackAt, resAt sql.NullTime
	err := row.Scan(&ev.ID, &ev.AlarmID, &ev.Timestamp, &status, &ev.MatchCount,
		&ackBy, &ackAt, &resBy, &resAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan alarm event: %w", err)
	}
	ev.Status = models.AlarmStatus(status)
	ev.AcknowledgedBy = ackBy.String
	ev.ResolvedBy = resBy.String
	if ackAt.Valid {
		t := ackAt.Time
		ev.AcknowledgedAt = &t
	}
	if resAt.Valid {
		t := resAt.Time
		ev.ResolvedAt = &t
	}
	return &ev, nil
}

// Acknowledge moves a firing to ACKNOWLEDGED. Operator action only.
func (s *Store) Acknowledge(ctx context.Context, id, by string) (*models.AlarmEvent, error) {
	ev, err := s.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ev.Status.CanTransition(models.AlarmAcknowledged) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ev.Status, models.AlarmAcknowledged)
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE alarm_events SET status = ?, acknowledged_by = ?, acknowledged_at = ?
		WHERE id = ?`,
		string(models.AlarmAcknowledged), by, now, id)
	if err != nil {
		return nil, fmt.Errorf("acknowledge event: %w", err)
	}
	ev.Status = models.AlarmAcknowledged
	ev.AcknowledgedBy = by
	ev.AcknowledgedAt = &now
	return ev, nil
}

// Resolve moves a firing to RESOLVED. Operator action only.
func (s *Store) Resolve(ctx context.Context, id, by string) (*models.AlarmEvent, error) {
	ev, err := s.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ev.Status.CanTransition(models.AlarmResolved) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ev.Status, models.AlarmResolved)
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE alarm_events SET status = ?, resolved_by = ?, resolved_at = ?
		WHERE id = ?`,
		string(models.AlarmResolved), by, now, id)
	if err != nil {
		return nil, fmt.Errorf("resolve event: %w", err)
	}
	ev.Status = models.AlarmResolved
	ev.ResolvedBy = by
	ev.ResolvedAt = &now
	return ev, nil
}

// RecordNotification appends one dispatch attempt outcome to the ledger.
func (s *Store) RecordNotification(ctx context.Context, alarmID, channelKey string, at time.Time, success bool, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (alarm_id, channel_key, ts, success, error)
		VALUES (?, ?, ?, ?, ?)`,
		alarmID, channelKey, at, success, errMsg)
	if err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	return nil
}

// CountNotifications counts successful dispatches for the throttle
// window check.
func (s *Store) CountNotifications(ctx context.Context, alarmID, channelKey string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM notifications
		WHERE alarm_id = ? AND channel_key = ? AND success AND ts >= ?`,
		alarmID, channelKey, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return n, nil
}

// RecordSuppression notes a firing that was withheld and why.
func (s *Store) RecordSuppression(ctx context.Context, alarmID, channelKey, reason string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppressions (alarm_id, channel_key, ts, reason)
		VALUES (?, ?, ?, ?)`,
		alarmID, channelKey, at, reason)
	if err != nil {
		return fmt.Errorf("record suppression: %w", err)
	}
	return nil
}
