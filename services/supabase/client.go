// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package supabase is a minimal REST client for the two Supabase surfaces
// this service uses: GoTrue (auth) and PostgREST (the memories and
// recall_vectors tables plus the match_vectors RPC).
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// ErrNotFound is returned when a row lookup matches nothing.
var ErrNotFound = errors.New("supabase: row not found")

// APIError is a non-2xx response from Supabase.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("supabase: status %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

// NewClient builds a client from SUPABASE_URL and SUPABASE_SERVICE_KEY.
// The service key may also be provided via /run/secrets/supabase_service_key.
func NewClient() (*Client, error) {
	baseURL := strings.TrimRight(os.Getenv("SUPABASE_URL"), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("SUPABASE_URL environment variable not set")
	}

	serviceKey := os.Getenv("SUPABASE_SERVICE_KEY")
	if serviceKey == "" {
		secretPath := "/run/secrets/supabase_service_key"
		if content, err := os.ReadFile(secretPath); err == nil {
			serviceKey = strings.TrimSpace(string(content))
			slog.Info("Read the Supabase service key from container secrets")
		}
	}
	if serviceKey == "" {
		return nil, fmt.Errorf("SUPABASE_SERVICE_KEY environment variable not set")
	}

	slog.Info("Initializing Supabase client", "url", baseURL)
	return &Client{
		baseURL:    baseURL,
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// NewClientWith builds a client against an explicit URL and key. Used by
// tests to point at an httptest server.
func NewClientWith(baseURL, serviceKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// do sends a JSON request with the service-role credentials and decodes the
// response body into out when out is non-nil. Extra headers are applied as
// key/value pairs.
func (c *Client) do(ctx context.Context, method, path string, body any, out any, headers ...string) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(bodyBytes)}
	}

	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to parse response JSON: %w", err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp, nil
}

// errorMessage pulls the human-readable message out of a Supabase error
// body. GoTrue and PostgREST use different field names.
func errorMessage(body []byte) string {
	var parsed struct {
		Message          string `json:"message"`
		Msg              string `json:"msg"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch {
		case parsed.Message != "":
			return parsed.Message
		case parsed.Msg != "":
			return parsed.Msg
		case parsed.ErrorDescription != "":
			return parsed.ErrorDescription
		}
	}
	return strings.TrimSpace(string(body))
}
