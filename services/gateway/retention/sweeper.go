// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retention enforces the free-tier memory window on the long-term
// recall store. Recall vectors are only written for paying users, but a
// downgrade leaves permanent vectors behind for a user whose tier no longer
// includes them. The sweeper deletes those past the free-tier window.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/keepsakelabs/keepsake/services/gateway/config"
)

// =============================================================================
// Retention Sweeper
// =============================================================================

// Store is the slice of the storage client the sweeper needs.
type Store interface {
	// ListUserIDsByTier returns ids of users currently on the given tier.
	ListUserIDsByTier(ctx context.Context, tier int) ([]string, error)

	// DeleteRecallVectorsBefore deletes the users' recall vectors created
	// before cutoff and returns the number removed.
	DeleteRecallVectorsBefore(ctx context.Context, userIDs []string, cutoff time.Time) (int, error)
}

// Clock abstracts time.Now for deterministic sweep tests.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock backed by the system clock.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time { return time.Now() }

// SweepResult summarizes one sweep cycle for logs and the audit trail.
//
// # Fields
//
//   - StartTime, EndTime: Cycle boundaries.
//   - FreeUsers: How many free-tier users were in scope.
//   - VectorsDeleted: Recall vectors removed this cycle.
//   - Cutoff: Vectors created before this instant were eligible.
type SweepResult struct {
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	FreeUsers      int       `json:"free_users"`
	VectorsDeleted int       `json:"vectors_deleted"`
	Cutoff         time.Time `json:"cutoff"`
}

// DurationMs returns the cycle duration in milliseconds.
func (r SweepResult) DurationMs() int64 {
	return r.EndTime.Sub(r.StartTime).Milliseconds()
}

// Sweeper deletes expired recall vectors for free-tier users.
//
// # Thread Safety
//
// Sweep is safe to call concurrently, though the scheduler only ever runs
// one cycle at a time.
type Sweeper struct {
	store       Store
	clock       Clock
	memoryHours int
}

// NewSweeper builds a sweeper using the free-tier memory window from the
// tier table. A nil clock defaults to the system clock.
func NewSweeper(store Store, tiers config.Tiers, clock Clock) *Sweeper {
	if clock == nil {
		clock = RealClock{}
	}
	hours := tiers.ForTier(config.TierFree).MemoryHours
	if hours <= 0 {
		hours = 48
	}
	return &Sweeper{
		store:       store,
		clock:       clock,
		memoryHours: hours,
	}
}

// Sweep runs one cleanup cycle.
//
// # Description
//
// Lists free-tier users, then deletes their recall vectors older than the
// free-tier memory window. Users on paid tiers are never touched.
//
// # Outputs
//
//   - SweepResult: Summary of the cycle.
//   - error: Non-nil if the user listing or delete fails.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	result := SweepResult{StartTime: s.clock.Now()}

	userIDs, err := s.store.ListUserIDsByTier(ctx, config.TierFree)
	if err != nil {
		return result, fmt.Errorf("failed to list free-tier users: %w", err)
	}
	result.FreeUsers = len(userIDs)
	result.Cutoff = s.clock.Now().Add(-time.Duration(s.memoryHours) * time.Hour)

	if len(userIDs) > 0 {
		deleted, err := s.store.DeleteRecallVectorsBefore(ctx, userIDs, result.Cutoff)
		if err != nil {
			return result, fmt.Errorf("failed to delete expired recall vectors: %w", err)
		}
		result.VectorsDeleted = deleted
	}

	result.EndTime = s.clock.Now()
	return result, nil
}
