// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/keepsakelabs/keepsake/services/gateway/observability"
)

// =============================================================================
// Retention Scheduler
// =============================================================================

// DefaultInterval is how often the sweeper runs when not configured.
const DefaultInterval = 1 * time.Hour

// Scheduler runs the retention sweeper on an interval in the background.
//
// # Description
//
// Uses the ticker + done channel pattern for graceful shutdown. An initial
// sweep runs on start so a restarted service does not wait a full interval
// before enforcing retention.
//
// # Thread Safety
//
// All public methods are thread-safe.
type Scheduler struct {
	sweeper  *Sweeper
	audit    *AuditLog
	interval time.Duration
	done     chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewScheduler creates a scheduler over the sweeper. audit may be nil for
// slog-only logging. A non-positive interval falls back to DefaultInterval.
func NewScheduler(sweeper *Sweeper, audit *AuditLog, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		sweeper:  sweeper,
		audit:    audit,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start launches the background sweep loop. Returns an error if the
// scheduler is already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("retention scheduler is already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	slog.Info("Retention sweeper starting", "interval", s.interval.String())
	go s.runLoop(ctx)
	return nil
}

// Stop signals the loop to exit. Safe to call multiple times.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	slog.Info("Retention sweeper stopping")
	close(s.done)
	s.running = false
	return nil
}

// RunNow triggers an immediate sweep outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) (SweepResult, error) {
	return s.sweeper.Sweep(ctx)
}

func (s *Scheduler) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.executeSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Retention sweeper stopped (context cancelled)")
			return
		case <-s.done:
			slog.Info("Retention sweeper stopped (stop requested)")
			return
		case <-ticker.C:
			s.executeSweep(ctx)
		}
	}
}

// executeSweep wraps one cycle with logging so a failed sweep never kills
// the loop.
func (s *Scheduler) executeSweep(ctx context.Context) {
	result, err := s.sweeper.Sweep(ctx)
	if err != nil {
		slog.Error("Retention sweep failed", "error", err)
		return
	}

	if m := observability.DefaultMetrics; m != nil && result.VectorsDeleted > 0 {
		m.RecordRetentionDeletes(result.VectorsDeleted)
	}

	if result.VectorsDeleted > 0 {
		slog.Info("Retention sweep completed",
			"free_users", result.FreeUsers,
			"vectors_deleted", result.VectorsDeleted,
			"duration_ms", result.DurationMs(),
		)
	} else {
		slog.Debug("Retention sweep completed (nothing expired)")
	}

	if s.audit != nil {
		if err := s.audit.LogSweep(result); err != nil {
			slog.Warn("Failed to write retention audit entry", "error", err)
		}
	}
}
