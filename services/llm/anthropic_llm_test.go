// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveClaudeModel(t *testing.T) {
	const (
		everyday = "claude-3-5-haiku-20241022"
		deep     = "claude-3-5-sonnet-20240620"
	)

	tests := []struct {
		name      string
		requested string
		want      string
	}{
		{"empty falls back to everyday", "", everyday},
		{"mini routes to everyday", "gpt-4o-mini", everyday},
		{"deep selection routes to deep", "gpt-4o", deep},
		{"claude id passes through", "claude-3-opus-20240229", "claude-3-opus-20240229"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveClaudeModel(tt.requested, everyday, deep))
		})
	}
}

func TestNewAnthropicClient_Defaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("CLAUDE_MODEL", "")
	t.Setenv("CLAUDE_DEEP_MODEL", "")

	client, err := NewAnthropicClient()
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-haiku-20241022", client.model)
	assert.Equal(t, "claude-3-5-sonnet-20240620", client.deepModel)
	assert.NotEqual(t, client.model, client.deepModel,
		"deep turns answer on a different model than everyday turns")
}

func TestNewAnthropicClient_ModelOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("CLAUDE_MODEL", "claude-3-5-sonnet-20241022")
	t.Setenv("CLAUDE_DEEP_MODEL", "claude-3-opus-20240229")

	client, err := NewAnthropicClient()
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-sonnet-20241022", client.model)
	assert.Equal(t, "claude-3-opus-20240229", client.deepModel)
}
