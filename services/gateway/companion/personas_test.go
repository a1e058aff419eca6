// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package companion

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePrompt(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestNewPersonaStore_LoadsPromptFiles(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "master_system.txt", "master prompt")
	writePrompt(t, dir, "emotional_matrix.txt", "matrix prompt")
	writePrompt(t, dir, "persona_1.txt", "persona one")
	writePrompt(t, dir, "persona_2.txt", "persona two")

	store, err := NewPersonaStore(dir)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, "master prompt", store.Master())
	assert.Equal(t, "matrix prompt", store.Matrix())
	assert.Equal(t, "persona one", store.Persona("1"))
	assert.Equal(t, "persona two", store.Persona("2"))
}

func TestNewPersonaStore_MissingDirServesFallbacks(t *testing.T) {
	store, err := NewPersonaStore(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, fallbackMaster, store.Master())
	assert.Equal(t, fallbackPersona1, store.Persona("1"))
	assert.Equal(t, fallbackPersona2, store.Persona("2"))
}

func TestPersonaStore_UnknownIDFallsBackToPersonaOne(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "persona_1.txt", "persona one")

	store, err := NewPersonaStore(dir)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, "persona one", store.Persona("99"))
}

func TestPersonaStore_HotReloadOnWrite(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "master_system.txt", "before")

	store, err := NewPersonaStore(dir)
	require.NoError(t, err)
	defer store.Close()

	require.Equal(t, "before", store.Master())

	writePrompt(t, dir, "master_system.txt", "after")

	// The watcher delivers events asynchronously.
	assert.Eventually(t, func() bool {
		return store.Master() == "after"
	}, 2*time.Second, 20*time.Millisecond)
}
