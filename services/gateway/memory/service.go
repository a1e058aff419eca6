// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package memory loads, merges, and persists companion memory documents and
// the long-term recall vector store.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/sync/singleflight"

	"github.com/keepsakelabs/keepsake/services/gateway/companion"
	"github.com/keepsakelabs/keepsake/services/gateway/datatypes"
	"github.com/keepsakelabs/keepsake/services/llm"
	"github.com/keepsakelabs/keepsake/services/supabase"
)

const (
	// MaxStoredHistory bounds the persisted conversation tail.
	MaxStoredHistory = 50

	// MaxStoredFacts bounds the rolling fact list.
	MaxStoredFacts = 20

	// MinVectorLength gates which messages are worth embedding.
	MinVectorLength = 20

	matchThreshold = 0.5
	matchCount     = 3

	chunkSize    = 1000
	chunkOverlap = 100
)

// Service mediates between handlers and the memory backend. Document loads
// for the same user are deduplicated so a burst of requests produces one
// backend round trip.
type Service struct {
	store    *supabase.Client
	embedder llm.Embedder
	splitter textsplitter.TextSplitter
	group    singleflight.Group
}

// New builds a memory service over the storage client and embedder.
func New(store *supabase.Client, embedder llm.Embedder) *Service {
	return &Service{
		store:    store,
		embedder: embedder,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

// Load fetches a user's memory document, filling any fields older documents
// lack with defaults. A user with no document gets a fresh default one.
// Concurrent loads for the same user share a single fetch; each caller gets
// its own decoded copy.
func (s *Service) Load(ctx context.Context, userID string) (*datatypes.MemoryDocument, error) {
	raw, err, _ := s.group.Do(userID, func() (interface{}, error) {
		return s.store.GetMemory(ctx, userID)
	})
	if err != nil {
		if errors.Is(err, supabase.ErrNotFound) {
			return datatypes.NewMemoryDocument(), nil
		}
		return nil, fmt.Errorf("failed to load memory for user: %w", err)
	}

	// Unmarshal over a default document so keys missing from older
	// documents keep their default values.
	doc := datatypes.NewMemoryDocument()
	if err := json.Unmarshal(raw.(json.RawMessage), doc); err != nil {
		return nil, fmt.Errorf("failed to decode memory document: %w", err)
	}
	return doc, nil
}

// Save persists a memory document, truncating history to the retained tail.
func (s *Service) Save(ctx context.Context, userID string, doc *datatypes.MemoryDocument) error {
	if len(doc.History) > MaxStoredHistory {
		doc.History = doc.History[len(doc.History)-MaxStoredHistory:]
	}
	if err := s.store.UpsertMemory(ctx, userID, doc); err != nil {
		return fmt.Errorf("failed to save memory for user: %w", err)
	}
	return nil
}

// CreateUserMemory initializes memory for a newly registered user.
func (s *Service) CreateUserMemory(ctx context.Context, userID string, profile datatypes.UserProfile, avatarID string) (*datatypes.MemoryDocument, error) {
	doc := datatypes.NewMemoryDocument()
	doc.UserProfile = profile
	doc.AvatarID = avatarID
	doc.HasChosenAvatar = true

	if err := s.Save(ctx, userID, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ValidFactsWithExpiry filters facts by tier retention. Paid tiers keep all
// facts; the free tier keeps only those younger than memoryHours. Facts with
// missing or unparseable timestamps are kept. Returns the surviving fact
// strings and the count of expired ones.
func ValidFactsWithExpiry(facts []datatypes.UserFact, tier, memoryHours int, now time.Time) ([]string, int) {
	if len(facts) == 0 {
		return nil, 0
	}

	if tier >= 1 || memoryHours <= 0 {
		contents := make([]string, 0, len(facts))
		for _, f := range facts {
			contents = append(contents, f.Content)
		}
		return contents, 0
	}

	cutoff := now.Add(-time.Duration(memoryHours) * time.Hour)
	var valid []string
	expired := 0
	for _, f := range facts {
		if f.CreatedAt == "" {
			valid = append(valid, f.Content)
			continue
		}
		created, err := parseTimestamp(f.CreatedAt)
		if err != nil {
			valid = append(valid, f.Content)
			continue
		}
		if created.Before(cutoff) {
			expired++
			continue
		}
		valid = append(valid, f.Content)
	}
	return valid, expired
}

// SaveFacts merges newly extracted facts into a freshly loaded document so
// that concurrent turns do not clobber each other's facts. Duplicate
// contents are skipped and the list is capped at MaxStoredFacts.
func (s *Service) SaveFacts(ctx context.Context, userID string, newFacts []string, event *companion.SignificantEvent) error {
	if len(newFacts) == 0 && event == nil {
		return nil
	}

	raw, err := s.store.GetMemory(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load memory before fact merge: %w", err)
	}
	doc := datatypes.NewMemoryDocument()
	if err := json.Unmarshal(raw, doc); err != nil {
		return fmt.Errorf("failed to decode memory before fact merge: %w", err)
	}

	existing := make(map[string]bool, len(doc.UserFacts))
	for _, f := range doc.UserFacts {
		existing[f.Content] = true
	}
	now := time.Now().Format(time.RFC3339)
	for _, content := range newFacts {
		if existing[content] {
			continue
		}
		doc.UserFacts = append(doc.UserFacts, datatypes.UserFact{
			Content:   content,
			CreatedAt: now,
		})
		existing[content] = true
	}
	if len(doc.UserFacts) > MaxStoredFacts {
		doc.UserFacts = doc.UserFacts[len(doc.UserFacts)-MaxStoredFacts:]
	}

	if event != nil {
		doc.ActiveContext.SignificantEvent = event.Name
		doc.ActiveContext.EventDate = event.Date
	}

	return s.Save(ctx, userID, doc)
}

// SaveVectorMemory embeds a message and writes it to the recall store.
// Long messages are chunked before embedding so each vector stays focused.
func (s *Service) SaveVectorMemory(ctx context.Context, userID, text string) error {
	chunks, err := s.splitter.SplitText(text)
	if err != nil {
		return fmt.Errorf("failed to chunk message for recall: %w", err)
	}
	for _, chunk := range chunks {
		embedding, err := s.embedder.Embed(ctx, chunk)
		if err != nil {
			return fmt.Errorf("failed to embed recall chunk: %w", err)
		}
		if err := s.store.InsertRecallVector(ctx, userID, chunk, embedding); err != nil {
			return fmt.Errorf("failed to store recall vector: %w", err)
		}
	}
	return nil
}

// RetrieveContext embeds the query and returns matching past memories as a
// prompt-ready block, one "- content" line per match. Retrieval failures
// degrade to an empty context rather than failing the turn.
func (s *Service) RetrieveContext(ctx context.Context, userID, query string) string {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		slog.Warn("Recall embedding failed, skipping long-term context", "error", err)
		return ""
	}
	matches, err := s.store.MatchVectors(ctx, userID, embedding, matchThreshold, matchCount)
	if err != nil {
		slog.Warn("Recall lookup failed, skipping long-term context", "error", err)
		return ""
	}
	if len(matches) == 0 {
		return ""
	}
	lines := make([]string, 0, len(matches))
	for _, m := range matches {
		lines = append(lines, "- "+m.Content)
	}
	return strings.Join(lines, "\n")
}

// parseTimestamp accepts RFC 3339 and zone-less ISO 8601 timestamps. Older
// documents carry naive local timestamps.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.Local)
}
