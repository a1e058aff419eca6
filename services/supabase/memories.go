// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// GetMemory returns the raw memory document for one user, or ErrNotFound.
func (c *Client) GetMemory(ctx context.Context, userID string) (json.RawMessage, error) {
	path := "/rest/v1/memories?select=data&id=eq." + url.QueryEscape(userID)

	var rows []struct {
		Data json.RawMessage `json:"data"`
	}
	if _, err := c.do(ctx, http.MethodGet, path, nil, &rows); err != nil {
		return nil, fmt.Errorf("memory lookup failed: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0].Data, nil
}

// UpsertMemory writes the memory document for one user, inserting or
// replacing on the id primary key.
func (c *Client) UpsertMemory(ctx context.Context, userID string, data any) error {
	payload := []map[string]any{{
		"id":   userID,
		"data": data,
	}}

	_, err := c.do(ctx, http.MethodPost, "/rest/v1/memories", payload, nil,
		"Prefer", "resolution=merge-duplicates,return=minimal")
	if err != nil {
		return fmt.Errorf("memory upsert failed: %w", err)
	}
	return nil
}

// ListUserIDsByTier returns the ids of all memory rows whose document
// carries the given tier. Used by the retention sweeper.
func (c *Client) ListUserIDsByTier(ctx context.Context, tier int) ([]string, error) {
	path := fmt.Sprintf("/rest/v1/memories?select=id&data->>tier=eq.%d", tier)

	var rows []struct {
		ID string `json:"id"`
	}
	if _, err := c.do(ctx, http.MethodGet, path, nil, &rows); err != nil {
		return nil, fmt.Errorf("tier listing failed: %w", err)
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}
