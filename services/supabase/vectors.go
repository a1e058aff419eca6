// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// VectorMatch is one row returned by the match_vectors RPC.
type VectorMatch struct {
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// InsertRecallVector stores one embedded memory chunk.
func (c *Client) InsertRecallVector(ctx context.Context, userID, content string, embedding []float32) error {
	payload := map[string]any{
		"user_id":   userID,
		"content":   content,
		"embedding": embedding,
	}

	_, err := c.do(ctx, http.MethodPost, "/rest/v1/recall_vectors", payload, nil,
		"Prefer", "return=minimal")
	if err != nil {
		return fmt.Errorf("recall vector insert failed: %w", err)
	}
	return nil
}

// MatchVectors runs pgvector similarity search for one user's memories.
func (c *Client) MatchVectors(ctx context.Context, userID string, queryEmbedding []float32, threshold float64, count int) ([]VectorMatch, error) {
	payload := map[string]any{
		"query_embedding": queryEmbedding,
		"match_threshold": threshold,
		"match_count":     count,
		"filter_user":     userID,
	}

	var matches []VectorMatch
	if _, err := c.do(ctx, http.MethodPost, "/rest/v1/rpc/match_vectors", payload, &matches); err != nil {
		return nil, fmt.Errorf("match_vectors RPC failed: %w", err)
	}
	return matches, nil
}

// DeleteRecallVectorsBefore removes the given users' vectors created before
// the cutoff and reports how many rows went away.
func (c *Client) DeleteRecallVectorsBefore(ctx context.Context, userIDs []string, cutoff time.Time) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}

	escaped := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		escaped = append(escaped, url.QueryEscape(id))
	}
	path := fmt.Sprintf("/rest/v1/recall_vectors?user_id=in.(%s)&created_at=lt.%s",
		strings.Join(escaped, ","), url.QueryEscape(cutoff.UTC().Format(time.RFC3339)))

	resp, err := c.do(ctx, http.MethodDelete, path, nil, nil,
		"Prefer", "count=exact,return=minimal")
	if err != nil {
		return 0, fmt.Errorf("recall vector delete failed: %w", err)
	}

	// PostgREST reports the affected row count via Content-Range: */N.
	contentRange := resp.Header.Get("Content-Range")
	if idx := strings.LastIndex(contentRange, "/"); idx >= 0 {
		if n, err := strconv.Atoi(contentRange[idx+1:]); err == nil {
			return n, nil
		}
	}
	return 0, nil
}
