// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for errors. Struct tags cover range and
// enum checks; cross-field rules that tags cannot express are checked here.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %s", verrs[0].Namespace())
		}
		return err
	}

	if c.Partition.AutoArchive && c.Partition.ArchiveDir == "" {
		return errors.New("partition.archiveDir is required when partition.autoArchive is enabled")
	}

	if c.Sources.HTTPPush.RequireAuth && c.Sources.HTTPPush.AuthToken == "" {
		return errors.New("sources.httpPush.authToken is required when requireAuth is enabled")
	}

	seen := make(map[string]struct{})
	for _, f := range c.Sources.Files {
		if _, dup := seen[f.ID]; dup {
			return fmt.Errorf("duplicate source id %q", f.ID)
		}
		seen[f.ID] = struct{}{}
	}
	for _, s := range c.Sources.Syslog {
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("duplicate source id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	for _, cw := range c.Sources.CloudWatch {
		if _, dup := seen[cw.ID]; dup {
			return fmt.Errorf("duplicate source id %q", cw.ID)
		}
		seen[cw.ID] = struct{}{}
	}

	for i := range c.Fields {
		if err := c.Fields[i].Validate(); err != nil {
			return fmt.Errorf("fields[%d] (%s): %w", i, c.Fields[i].Name, err)
		}
	}

	for i := range c.Retention.Policies {
		if err := c.Retention.Policies[i].Validate(); err != nil {
			return fmt.Errorf("retention.policies[%d] (%s): %w", i, c.Retention.Policies[i].Name, err)
		}
	}

	return nil
}
