// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	syslog "github.com/leodido/go-syslog/v4"
	"github.com/leodido/go-syslog/v4/rfc3164"
	"github.com/leodido/go-syslog/v4/rfc5424"

	"github.com/grepwise/grepwise/internal/config"
	"github.com/grepwise/grepwise/internal/logging"
	"github.com/grepwise/grepwise/internal/metrics"
	"github.com/grepwise/grepwise/internal/models"
)

// maxDatagram is the largest UDP payload accepted.
const maxDatagram = 64 * 1024

// SyslogServer listens on one UDP or TCP port and turns RFC3164/RFC5424
// payloads into events. Unparseable payloads still produce an event
// carrying the raw content.
type SyslogServer struct {
	cfg config.SyslogSourceConfig
	buf Enqueuer

	p5424 syslog.Machine
	p3164 syslog.Machine
}

// NewSyslogServer builds a listener for one configured syslog source.
func NewSyslogServer(cfg config.SyslogSourceConfig, buf Enqueuer) *SyslogServer {
	return &SyslogServer{
		cfg:   cfg,
		buf:   buf,
		p5424: rfc5424.NewParser(),
		p3164: rfc3164.NewParser(rfc3164.WithYear(rfc3164.CurrentYear{})),
	}
}

func (s *SyslogServer) addr() string {
	host := s.cfg.BindAddr
	if host == "" {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, strconv.Itoa(s.cfg.Port))
}

// Serve runs the listener until ctx is canceled.
func (s *SyslogServer) Serve(ctx context.Context) error {
	if s.cfg.Protocol == "udp" {
		return s.serveUDP(ctx)
	}
	return s.serveTCP(ctx)
}

func (s *SyslogServer) serveUDP(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", s.addr())
	if err != nil {
		return fmt.Errorf("syslog %s: %w", s.cfg.ID, err)
	}
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	logging.Info().Str("source", s.cfg.ID).Str("addr", s.addr()).Msg("syslog udp listening")

	buf := make([]byte, maxDatagram)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		// One datagram is one message.
		payload := strings.TrimRight(string(buf[:n]), "\r\n")
		if payload == "" {
			continue
		}
		if err := enqueue(ctx, s.buf, s.parse(payload)); err != nil {
			logging.Warn().Err(err).Str("source", s.cfg.ID).Msg("syslog enqueue failed")
		}
	}
}

func (s *SyslogServer) serveTCP(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr())
	if err != nil {
		return fmt.Errorf("syslog %s: %w", s.cfg.ID, err)
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	logging.Info().Str("source", s.cfg.ID).Str("addr", s.addr()).Msg("syslog tcp listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		go s.handleConn(ctx, conn)
	}
}

// handleConn reads frames from one TCP connection. Frames beginning with
// digits and a space use octet counting; everything else is
// newline-delimited.
func (s *SyslogServer) handleConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()
	reader := bufio.NewReader(conn)

	for {
		if ctx.Err() != nil {
			return
		}
		payload, err := readFrame(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				metrics.IngestErrors.WithLabelValues(s.cfg.ID, "framing").Inc()
				logging.Warn().Err(err).Str("source", s.cfg.ID).Msg("syslog frame error, closing connection")
			}
			return
		}
		payload = strings.TrimRight(payload, "\r\n")
		if payload == "" {
			continue
		}
		if err := enqueue(ctx, s.buf, s.parse(payload)); err != nil {
			logging.Warn().Err(err).Str("source", s.cfg.ID).Msg("syslog enqueue failed")
		}
	}
}

// readFrame consumes one message: octet-counted when the frame starts
// with a length prefix, otherwise up to the next newline.
func readFrame(reader *bufio.Reader) (string, error) {
	head, err := reader.Peek(1)
	if err != nil {
		return "", err
	}
	if head[0] < '0' || head[0] > '9' {
		return reader.ReadString('\n')
	}

	prefix, err := reader.ReadString(' ')
	if err != nil {
		return "", err
	}
	length, err := strconv.Atoi(strings.TrimSpace(prefix))
	if err != nil || length <= 0 || length > maxDatagram {
		return "", fmt.Errorf("invalid octet count %q", strings.TrimSpace(prefix))
	}
	frame := make([]byte, length)
	if _, err := io.ReadFull(reader, frame); err != nil {
		return "", err
	}
	return string(frame), nil
}

// parse tries RFC5424 first, then RFC3164, then falls back to a raw
// event so no payload is lost.
func (s *SyslogServer) parse(payload string) *models.LogEvent {
	data := []byte(payload)
	if m, err := s.p5424.Parse(data); err == nil {
		if msg, ok := m.(*rfc5424.SyslogMessage); ok {
			return s.eventFrom(payload, msg.Severity, msg.Timestamp, msg.Hostname, msg.Appname, msg.ProcID, msg.Message)
		}
	}
	if m, err := s.p3164.Parse(data); err == nil {
		if msg, ok := m.(*rfc3164.SyslogMessage); ok {
			return s.eventFrom(payload, msg.Severity, msg.Timestamp, msg.Hostname, msg.Appname, msg.ProcID, msg.Message)
		}
	}

	metrics.IngestErrors.WithLabelValues(s.cfg.ID, "parse").Inc()
	ev := models.NewLogEvent(s.cfg.ID, "INFO", payload, payload)
	return ev
}

func (s *SyslogServer) eventFrom(raw string, severity *uint8, ts *time.Time, hostname, appname, procID, message *string) *models.LogEvent {
	source := s.cfg.ID
	if hostname != nil && *hostname != "" {
		source = *hostname
	}
	body := raw
	if message != nil {
		body = strings.TrimSpace(*message)
	}

	ev := models.NewLogEvent(source, severityLevel(severity), body, raw)
	if ts != nil {
		ev.RecordTime = ts.UTC()
	}
	if appname != nil && *appname != "" {
		ev.Metadata["app"] = *appname
	}
	if procID != nil && *procID != "" {
		ev.Metadata["pid"] = *procID
	}
	return ev
}

// severityLevel maps the syslog severity code to a level label.
func severityLevel(severity *uint8) string {
	if severity == nil {
		return "INFO"
	}
	switch {
	case *severity <= 2:
		return "FATAL"
	case *severity == 3:
		return "ERROR"
	case *severity == 4:
		return "WARN"
	case *severity == 7:
		return "DEBUG"
	default:
		return "INFO"
	}
}
