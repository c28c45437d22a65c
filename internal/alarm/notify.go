// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package alarm

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/slack-go/slack"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/grepwise/grepwise/internal/config"
	"github.com/grepwise/grepwise/internal/logging"
	"github.com/grepwise/grepwise/internal/metrics"
	"github.com/grepwise/grepwise/internal/models"
)

// Notification is one firing handed to a channel.
type Notification struct {
	Alarm      *models.Alarm
	Event      *models.AlarmEvent
	MatchCount int64
}

// Subject renders the one-line summary used by every channel.
func (n Notification) Subject() string {
	return fmt.Sprintf("[GrepWise] alarm %q fired: %d matches", n.Alarm.Name, n.MatchCount)
}

// Body renders the detail text.
func (n Notification) Body() string {
	return fmt.Sprintf("Alarm %q fired at %s.\nQuery: %s\nCondition: count %s %d\nMatches in window: %d\n",
		n.Alarm.Name, n.Event.Timestamp.Format(time.RFC3339), n.Alarm.Query,
		n.Alarm.Condition, n.Alarm.Threshold, n.MatchCount)
}

// Notifier delivers one notification to one channel target.
type Notifier interface {
	Send(ctx context.Context, ch models.NotificationChannel, n Notification) error
}

const (
	dispatchAttempts   = 3
	dispatchBackoff    = 500 * time.Millisecond
	pagerdutyEventsURL = "https://events.pagerduty.com/v2/enqueue"
	opsgenieAlertsURL  = "https://api.opsgenie.com/v2/alerts"
)

// Dispatcher routes firings to channel notifiers with a per-target
// circuit breaker, bounded retries, and a global outbound rate limit.
type Dispatcher struct {
	notifiers map[models.ChannelType]Notifier
	limiter   *rate.Limiter

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

// NewDispatcher builds the production dispatcher. The HTTP client is
// shared by the webhook-style channels.
func NewDispatcher(cfg config.NotifyConfig) *Dispatcher {
	client := &http.Client{Timeout: 10 * time.Second}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 5
	}
	return &Dispatcher{
		notifiers: map[models.ChannelType]Notifier{
			models.ChannelEmail:     &emailNotifier{cfg: cfg.SMTP},
			models.ChannelSlack:     &slackNotifier{},
			models.ChannelWebhook:   &webhookNotifier{client: client},
			models.ChannelPagerDuty: &pagerdutyNotifier{client: client, url: pagerdutyEventsURL},
			models.ChannelOpsgenie:  &opsgenieNotifier{client: client, url: opsgenieAlertsURL},
		},
		limiter:  rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// WithNotifier replaces one channel implementation. Tests use this to
// capture dispatches.
func (d *Dispatcher) WithNotifier(t models.ChannelType, n Notifier) *Dispatcher {
	d.notifiers[t] = n
	return d
}

func (d *Dispatcher) breaker(key string) *gobreaker.CircuitBreaker[struct{}] {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb, ok := d.breakers[key]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    key,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordBreakerTransition(name, from.String(), to.String())
			logging.Warn().
				Str("channel", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("notification breaker state change")
		},
	})
	d.breakers[key] = cb
	return cb
}

// Dispatch delivers one notification to one channel with up to three
// attempts and exponential backoff. A failure is returned to the caller
// but must not suppress delivery to other channels.
func (d *Dispatcher) Dispatch(ctx context.Context, ch models.NotificationChannel, n Notification) error {
	notifier, ok := d.notifiers[ch.Type]
	if !ok {
		return fmt.Errorf("alarm: no notifier for channel type %s", ch.Type)
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}

	cb := d.breaker(n.Alarm.ID + "/" + ch.Key())
	var lastErr error
	backoff := dispatchBackoff
	for attempt := 1; attempt <= dispatchAttempts; attempt++ {
		_, lastErr = cb.Execute(func() (struct{}, error) {
			return struct{}{}, notifier.Send(ctx, ch, n)
		})
		if lastErr == nil {
			metrics.RecordNotification(string(ch.Type), nil)
			return nil
		}
		logging.Warn().Err(lastErr).
			Str("alarm", n.Alarm.ID).
			Str("channel", ch.Key()).
			Int("attempt", attempt).
			Msg("notification attempt failed")
		if attempt < dispatchAttempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
	}
	metrics.RecordNotification(string(ch.Type), lastErr)
	return fmt.Errorf("notify %s: %w", ch.Key(), lastErr)
}

// emailNotifier sends plain-text mail via SMTP.
type emailNotifier struct {
	cfg config.SMTPConfig
}

func (e *emailNotifier) Send(_ context.Context, ch models.NotificationChannel, n Notification) error {
	if e.cfg.Host == "" {
		return fmt.Errorf("smtp host not configured")
	}
	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	msg := strings.Join([]string{
		"From: " + e.cfg.From,
		"To: " + ch.Target,
		"Subject: " + n.Subject(),
		"",
		n.Body(),
	}, "\r\n")

	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}
	return smtp.SendMail(addr, auth, e.cfg.From, []string{ch.Target}, []byte(msg))
}

// slackNotifier posts to an incoming-webhook URL.
type slackNotifier struct{}

func (s *slackNotifier) Send(ctx context.Context, ch models.NotificationChannel, n Notification) error {
	return slack.PostWebhookContext(ctx, ch.Target, &slack.WebhookMessage{
		Text: n.Subject() + "\n" + n.Body(),
	})
}

// webhookNotifier POSTs the firing as JSON to an arbitrary URL.
type webhookNotifier struct {
	client *http.Client
}

func (w *webhookNotifier) Send(ctx context.Context, ch models.NotificationChannel, n Notification) error {
	payload, err := json.Marshal(map[string]any{
		"alarm":       n.Alarm.Name,
		"alarm_id":    n.Alarm.ID,
		"query":       n.Alarm.Query,
		"match_count": n.MatchCount,
		"timestamp":   n.Event.Timestamp,
		"status":      n.Event.Status,
	})
	if err != nil {
		return err
	}
	return postJSON(ctx, w.client, ch.Target, nil, payload)
}

// pagerdutyNotifier triggers an incident via the Events v2 API; the
// channel target is the routing key.
type pagerdutyNotifier struct {
	client *http.Client
	url    string
}

func (p *pagerdutyNotifier) Send(ctx context.Context, ch models.NotificationChannel, n Notification) error {
	payload, err := json.Marshal(map[string]any{
		"routing_key":  ch.Target,
		"event_action": "trigger",
		"dedup_key":    n.Alarm.ID + "/" + n.Event.ID,
		"payload": map[string]any{
			"summary":   n.Subject(),
			"source":    "grepwise",
			"severity":  "error",
			"timestamp": n.Event.Timestamp.Format(time.RFC3339),
		},
	})
	if err != nil {
		return err
	}
	return postJSON(ctx, p.client, p.url, nil, payload)
}

// opsgenieNotifier creates an alert; the channel target is the API key.
type opsgenieNotifier struct {
	client *http.Client
	url    string
}

func (o *opsgenieNotifier) Send(ctx context.Context, ch models.NotificationChannel, n Notification) error {
	payload, err := json.Marshal(map[string]any{
		"message":     n.Subject(),
		"alias":       n.Alarm.ID,
		"description": n.Body(),
	})
	if err != nil {
		return err
	}
	headers := map[string]string{"Authorization": "GenieKey " + ch.Target}
	return postJSON(ctx, o.client, o.url, headers, payload)
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return nil
}
