// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ttl removes idle sessions on a schedule.
//
// Sessions carry no explicit expiry; a session is deleted once its
// last activity falls behind the configured TTL. Deletion cascades to
// the session's turns and its conversation vectors through the
// session manager.
package ttl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/auraquotes/aura/services/engine/session"
)

// Config holds the cleanup scheduler settings.
type Config struct {
	// SessionTTL is the idle age past which a session is deleted.
	SessionTTL time.Duration

	// Interval is how often cleanup cycles run.
	Interval time.Duration

	// BatchSize caps how many sessions one cycle deletes.
	BatchSize int
}

// DefaultConfig returns the documented default schedule.
func DefaultConfig() Config {
	return Config{
		SessionTTL: 24 * time.Hour,
		Interval:   1 * time.Hour,
		BatchSize:  100,
	}
}

// validateConfig corrects out-of-range values, warning about each one.
func validateConfig(config Config) Config {
	defaults := DefaultConfig()

	if config.SessionTTL <= 0 {
		slog.Warn("Invalid SessionTTL config, using default",
			"provided", config.SessionTTL, "default", defaults.SessionTTL)
		config.SessionTTL = defaults.SessionTTL
	}
	if config.Interval <= 0 {
		slog.Warn("Invalid Interval config, using default",
			"provided", config.Interval, "default", defaults.Interval)
		config.Interval = defaults.Interval
	}
	if config.BatchSize < 1 {
		slog.Warn("Invalid BatchSize config, using default",
			"provided", config.BatchSize, "default", defaults.BatchSize)
		config.BatchSize = defaults.BatchSize
	}

	return config
}

// CleanupResult summarizes one cleanup cycle.
type CleanupResult struct {
	// SessionsFound is how many idle sessions the cycle saw.
	SessionsFound int

	// SessionsDeleted is how many it removed.
	SessionsDeleted int

	// Errors holds per-session delete failures. A failed delete never
	// stops the batch.
	Errors []string

	StartTime time.Time
	EndTime   time.Time
}

// Duration is the wall time the cycle took.
func (r CleanupResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Cleaner runs idle-session cleanup on a ticker.
//
// # Description
//
// Uses the ticker plus done-channel pattern: Start launches the loop
// goroutine, Stop signals it and returns immediately. One initial
// cycle runs on start so restarts do not wait a full interval to
// catch up.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Only one loop runs at a
// time; a second Start before Stop returns an error.
type Cleaner struct {
	sessions *session.Manager
	config   Config

	mu      sync.Mutex
	done    chan struct{}
	running bool
}

// NewCleaner creates a cleaner over the session manager.
func NewCleaner(sessions *session.Manager, config Config) *Cleaner {
	return &Cleaner{
		sessions: sessions,
		config:   validateConfig(config),
		done:     make(chan struct{}),
	}
}

// Start launches the background cleanup loop.
//
// # Inputs
//
//   - ctx: Cancelling it stops the loop, same as Stop.
//
// # Outputs
//
//   - error: Non-nil if the loop is already running.
func (c *Cleaner) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("cleaner is already running")
	}
	c.running = true
	c.done = make(chan struct{})
	c.mu.Unlock()

	slog.Info("Session cleanup scheduler starting",
		"session_ttl", c.config.SessionTTL.String(),
		"interval", c.config.Interval.String(),
		"batch_size", c.config.BatchSize)

	go c.runLoop(ctx)
	return nil
}

// Stop signals the loop to exit. Safe to call multiple times; does not
// interrupt a cycle already in progress.
func (c *Cleaner) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}

	slog.Info("Session cleanup scheduler stopping")
	close(c.done)
	c.running = false
}

// RunNow performs one cleanup cycle immediately, outside the schedule.
// Backs the CLI cleanup command.
func (c *Cleaner) RunNow(ctx context.Context) (CleanupResult, error) {
	return c.runCycle(ctx)
}

func (c *Cleaner) runLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	// Catch up immediately on start instead of idling one interval.
	c.executeCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Session cleanup scheduler stopped", "reason", "context cancelled")
			return
		case <-c.done:
			slog.Info("Session cleanup scheduler stopped", "reason", "stop requested")
			return
		case <-ticker.C:
			c.executeCycle(ctx)
		}
	}
}

// executeCycle wraps runCycle so a failing cycle never kills the loop.
func (c *Cleaner) executeCycle(ctx context.Context) {
	result, err := c.runCycle(ctx)
	if err != nil {
		slog.Error("Session cleanup cycle failed", "error", err)
		return
	}

	if result.SessionsFound > 0 {
		slog.Info("Session cleanup cycle completed",
			"sessions_found", result.SessionsFound,
			"sessions_deleted", result.SessionsDeleted,
			"failed", len(result.Errors),
			"duration_ms", result.Duration().Milliseconds())
	} else {
		slog.Debug("Session cleanup cycle completed, no idle sessions")
	}
}

// runCycle deletes one batch of idle sessions. Individual delete
// failures are collected and the batch continues.
func (c *Cleaner) runCycle(ctx context.Context) (CleanupResult, error) {
	result := CleanupResult{StartTime: time.Now()}

	cutoff := time.Now().Add(-c.config.SessionTTL)
	idle, err := c.sessions.IdleSessions(ctx, cutoff, c.config.BatchSize)
	if err != nil {
		return result, fmt.Errorf("querying idle sessions: %w", err)
	}
	result.SessionsFound = len(idle)

	for _, sess := range idle {
		if err := c.sessions.Delete(ctx, sess.ID); err != nil {
			slog.Warn("Failed to delete idle session",
				"session_id", sess.ID, "error", err)
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.SessionsDeleted++
	}

	result.EndTime = time.Now()
	return result, nil
}
