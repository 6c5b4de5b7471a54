// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package health reports coarse per-dependency readiness: one boolean each
// for the database, the external channel, and the cache.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/atticfs/atticfs/pkg/logger"
)

// checkTimeout bounds each probe so a hung dependency cannot stall the
// whole readiness response.
const checkTimeout = 2 * time.Second

// Check probes one dependency.
type Check func(ctx context.Context) error

// Status is the readiness snapshot returned to callers.
type Status struct {
	Database bool `json:"database"`
	Channel  bool `json:"channel"`
	Cache    bool `json:"cache"`
}

// Healthy reports whether every dependency answered.
func (s Status) Healthy() bool {
	return s.Database && s.Channel && s.Cache
}

// Checker runs the dependency probes. A nil check reports healthy, for
// deployments that run without that dependency.
type Checker struct {
	database Check
	channel  Check
	cache    Check
}

// NewChecker creates a Checker over the three dependency probes.
func NewChecker(database, channel, cache Check) *Checker {
	return &Checker{database: database, channel: channel, cache: cache}
}

// Check probes every dependency and returns the snapshot.
func (c *Checker) Check(ctx context.Context) Status {
	return Status{
		Database: c.run(ctx, "database", c.database),
		Channel:  c.run(ctx, "channel", c.channel),
		Cache:    c.run(ctx, "cache", c.cache),
	}
}

func (c *Checker) run(ctx context.Context, name string, check Check) bool {
	if check == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := check(ctx); err != nil {
		logger.Warn().Err(err).Str("dependency", name).Msg("health: probe failed")
		return false
	}
	return true
}

// Handler serves the snapshot as JSON: 200 when everything answers, 503
// otherwise.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if !status.Healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			logger.Debug().Err(err).Msg("health: failed to write response")
		}
	}
}
