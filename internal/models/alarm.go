// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package models

import (
	"fmt"
	"time"
)

// Condition compares a match count against an alarm threshold.
type Condition string

const (
	ConditionGreater      Condition = ">"
	ConditionGreaterEqual Condition = ">="
	ConditionEqual        Condition = "="
	ConditionLessEqual    Condition = "<="
	ConditionLess         Condition = "<"
)

// Satisfied reports whether count satisfies the condition against threshold.
func (c Condition) Satisfied(count, threshold int64) bool {
	switch c {
	case ConditionGreater:
		return count > threshold
	case ConditionGreaterEqual:
		return count >= threshold
	case ConditionEqual:
		return count == threshold
	case ConditionLessEqual:
		return count <= threshold
	case ConditionLess:
		return count < threshold
	default:
		return false
	}
}

// ChannelType tags the notification channel variants.
type ChannelType string

const (
	ChannelEmail     ChannelType = "EMAIL"
	ChannelSlack     ChannelType = "SLACK"
	ChannelWebhook   ChannelType = "WEBHOOK"
	ChannelPagerDuty ChannelType = "PAGERDUTY"
	ChannelOpsgenie  ChannelType = "OPSGENIE"
)

// NotificationChannel is a tagged variant describing where a firing is sent.
// Target carries the variant payload: destination address for EMAIL, webhook
// URL for SLACK and WEBHOOK, routing key for PAGERDUTY, API key for OPSGENIE.
type NotificationChannel struct {
	Type   ChannelType `json:"type" validate:"required,oneof=EMAIL SLACK WEBHOOK PAGERDUTY OPSGENIE"`
	Target string      `json:"target" validate:"required"`
}

// Key identifies the channel for throttle accounting.
func (c NotificationChannel) Key() string {
	return string(c.Type) + ":" + c.Target
}

// Alarm is a user-defined alerting rule evaluated on a schedule.
type Alarm struct {
	ID        string    `json:"id"`
	Name      string    `json:"name" validate:"required"`
	Query     string    `json:"query" validate:"required"`
	Condition Condition `json:"condition" validate:"required,oneof=> >= = <= <"`
	Threshold int64     `json:"threshold"`

	// TimeWindowMinutes is the lookback window per evaluation. Minimum 1.
	TimeWindowMinutes int  `json:"time_window_minutes" validate:"min=1"`
	Enabled           bool `json:"enabled"`

	NotificationChannels []NotificationChannel `json:"notification_channels,omitempty"`

	// Throttling caps notifications per (alarm, channel) within the window.
	ThrottleWindowMinutes     int `json:"throttle_window_minutes" validate:"min=1"`
	MaxNotificationsPerWindow int `json:"max_notifications_per_window" validate:"min=1"`

	// Grouping collapses consecutive firings sharing a grouping key.
	// Empty GroupingKey falls back to the alarm id.
	GroupingKey           string `json:"grouping_key,omitempty"`
	GroupingWindowMinutes int    `json:"grouping_window_minutes" validate:"min=1"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the invariants the scheduler relies on.
func (a *Alarm) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("alarm requires a name")
	}
	if a.Query == "" {
		return fmt.Errorf("alarm %q: requires a query", a.Name)
	}
	switch a.Condition {
	case ConditionGreater, ConditionGreaterEqual, ConditionEqual, ConditionLessEqual, ConditionLess:
	default:
		return fmt.Errorf("alarm %q: unknown condition %q", a.Name, a.Condition)
	}
	if a.TimeWindowMinutes < 1 {
		return fmt.Errorf("alarm %q: time window must be >= 1 minute", a.Name)
	}
	if a.ThrottleWindowMinutes < 1 {
		return fmt.Errorf("alarm %q: throttle window must be >= 1 minute", a.Name)
	}
	if a.MaxNotificationsPerWindow < 1 {
		return fmt.Errorf("alarm %q: max notifications per window must be >= 1", a.Name)
	}
	if a.GroupingWindowMinutes < 1 {
		return fmt.Errorf("alarm %q: grouping window must be >= 1 minute", a.Name)
	}
	for i, ch := range a.NotificationChannels {
		switch ch.Type {
		case ChannelEmail, ChannelSlack, ChannelWebhook, ChannelPagerDuty, ChannelOpsgenie:
		default:
			return fmt.Errorf("alarm %q: channel %d has unknown type %q", a.Name, i, ch.Type)
		}
		if ch.Target == "" {
			return fmt.Errorf("alarm %q: channel %d requires a target", a.Name, i)
		}
	}
	return nil
}

// GroupKey returns the effective grouping key for a firing.
func (a *Alarm) GroupKey() string {
	if a.GroupingKey != "" {
		return a.GroupingKey
	}
	return a.ID
}

// AlarmStatus is the lifecycle state of a materialized firing.
type AlarmStatus string

const (
	AlarmTriggered    AlarmStatus = "TRIGGERED"
	AlarmAcknowledged AlarmStatus = "ACKNOWLEDGED"
	AlarmResolved     AlarmStatus = "RESOLVED"
)

// CanTransition reports whether the operator-driven state machine permits
// moving from the current status to next. The scheduler only ever creates
// TRIGGERED events; all forward transitions are operator actions and there
// are no back-transitions.
func (s AlarmStatus) CanTransition(next AlarmStatus) bool {
	switch s {
	case AlarmTriggered:
		return next == AlarmAcknowledged || next == AlarmResolved
	case AlarmAcknowledged:
		return next == AlarmResolved
	default:
		return false
	}
}

// AlarmEvent is a materialized alarm firing.
type AlarmEvent struct {
	ID         string      `json:"id"`
	AlarmID    string      `json:"alarm_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Status     AlarmStatus `json:"status"`
	MatchCount int64       `json:"match_count"`

	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}
