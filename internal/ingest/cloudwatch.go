// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/grepwise/grepwise/internal/config"
	"github.com/grepwise/grepwise/internal/logging"
	"github.com/grepwise/grepwise/internal/metrics"
	"github.com/grepwise/grepwise/internal/statestore"
)

// LogsClient is the CloudWatch Logs surface the poller needs.
type LogsClient interface {
	GetLogEvents(ctx context.Context, params *cloudwatchlogs.GetLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetLogEventsOutput, error)
}

// CloudWatchPoller pulls one log stream on an interval, resuming from a
// cursor token persisted in the state store. An expired or invalid token
// resets the cursor and the next poll starts from the newest events.
type CloudWatchPoller struct {
	cfg    config.CloudWatchSourceConfig
	buf    Enqueuer
	state  *statestore.Store
	client LogsClient
}

// NewCloudWatchPoller builds a poller using the ambient AWS credential
// chain for the configured region.
func NewCloudWatchPoller(ctx context.Context, cfg config.CloudWatchSourceConfig, buf Enqueuer, state *statestore.Store) (*CloudWatchPoller, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("cloudwatch %s: %w", cfg.ID, err)
	}
	return &CloudWatchPoller{
		cfg:    cfg,
		buf:    buf,
		state:  state,
		client: cloudwatchlogs.NewFromConfig(awsCfg),
	}, nil
}

// NewCloudWatchPollerWithClient injects a client; tests use this.
func NewCloudWatchPollerWithClient(cfg config.CloudWatchSourceConfig, buf Enqueuer, state *statestore.Store, client LogsClient) *CloudWatchPoller {
	return &CloudWatchPoller{cfg: cfg, buf: buf, state: state, client: client}
}

// Serve polls until ctx is canceled. It satisfies the supervisor service
// contract.
func (p *CloudWatchPoller) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.RefreshInterval())
	defer ticker.Stop()

	var retry backoff
	for {
		if err := p.Poll(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			metrics.IngestErrors.WithLabelValues(p.cfg.ID, "poll").Inc()
			logging.Error().Err(err).Str("source", p.cfg.ID).Msg("cloudwatch poll failed")
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
		}
	}
}

// Poll fetches everything past the cursor once.
func (p *CloudWatchPoller) Poll(ctx context.Context) error {
	cursor, err := p.state.CloudCursor(p.cfg.ID)
	if err != nil && !errors.Is(err, statestore.ErrNotFound) {
		return err
	}

	input := &cloudwatchlogs.GetLogEventsInput{
		LogGroupName:  aws.String(p.cfg.LogGroup),
		LogStreamName: aws.String(p.cfg.LogStream),
		StartFromHead: aws.Bool(cursor.Token != ""),
	}
	if cursor.Token != "" {
		input.NextToken = aws.String(cursor.Token)
	}

	out, err := p.client.GetLogEvents(ctx, input)
	if err != nil {
		var invalid *types.InvalidParameterException
		if errors.As(err, &invalid) && cursor.Token != "" {
			// The stored token expired; reset and resume from latest on
			// the next poll.
			logging.Warn().Str("source", p.cfg.ID).Msg("cloudwatch cursor invalid, resetting")
			return p.state.ResetCloudCursor(p.cfg.ID)
		}
		return err
	}

	for _, entry := range out.Events {
		if entry.Message == nil {
			continue
		}
		ev := parsePlainLine(p.cfg.ID, *entry.Message)
		if entry.Timestamp != nil {
			ev.RecordTime = time.UnixMilli(*entry.Timestamp).UTC()
		}
		if err := enqueue(ctx, p.buf, ev); err != nil {
			return err
		}
	}

	if out.NextForwardToken != nil && *out.NextForwardToken != cursor.Token {
		return p.state.SetCloudCursor(p.cfg.ID, statestore.CloudCursor{
			Token:     *out.NextForwardToken,
			UpdatedAt: time.Now().UTC(),
		})
	}
	return nil
}
