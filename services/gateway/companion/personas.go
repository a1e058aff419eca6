// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package companion holds the companion brain: persona prompts, deep-moment
// detection, model routing, emotional scoring, and system prompt assembly.
package companion

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Prompt file names under the prompts directory.
const (
	masterPromptFile    = "master_system.txt"
	emotionalMatrixFile = "emotional_matrix.txt"
	personaFilePrefix   = "persona_" // persona_<id>.txt
)

// Fallbacks keep the service conversational when prompt files are missing.
const (
	fallbackMaster   = "You are a supportive companion."
	fallbackPersona1 = "Warm, empathetic female companion."
	fallbackPersona2 = "Steady, grounded male companion."
)

// PersonaStore loads companion prompt files and hot-reloads them when the
// prompts directory changes, so prompt edits ship without a restart.
//
// # Thread Safety
//
// Safe for concurrent use. Reads take an RLock; the watcher goroutine takes
// the write lock on reload.
type PersonaStore struct {
	mu       sync.RWMutex
	dir      string
	master   string
	matrix   string
	personas map[string]string
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewPersonaStore loads prompts from dir and starts watching it. A missing
// directory is not fatal; the store serves fallbacks and no watcher runs.
func NewPersonaStore(dir string) (*PersonaStore, error) {
	s := &PersonaStore{
		dir:  dir,
		done: make(chan struct{}),
	}
	s.reload()

	if _, err := os.Stat(dir); err != nil {
		slog.Warn("Prompts directory missing, using fallback personas", "dir", dir)
		return s, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create prompts watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch prompts dir: %w", err)
	}
	s.watcher = watcher

	go s.watchLoop()
	return s, nil
}

// Master returns the core identity prompt.
func (s *PersonaStore) Master() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.master
}

// Matrix returns the emotional intelligence matrix block. May be empty.
func (s *PersonaStore) Matrix() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matrix
}

// Persona returns the voice prompt for an avatar id, falling back to
// persona "1" for unknown ids.
func (s *PersonaStore) Persona(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.personas[id]; ok {
		return p
	}
	return s.personas["1"]
}

// Close stops the watcher goroutine.
func (s *PersonaStore) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func (s *PersonaStore) watchLoop() {
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				slog.Info("Prompt file changed, reloading personas", "file", event.Name)
				s.reload()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Prompts watcher error", "error", err)
		}
	}
}

// reload re-reads every prompt file, applying fallbacks for missing ones.
func (s *PersonaStore) reload() {
	master := readPrompt(s.dir, masterPromptFile)
	if master == "" {
		master = fallbackMaster
	}
	matrix := readPrompt(s.dir, emotionalMatrixFile)

	personas := map[string]string{
		"1": fallbackPersona1,
		"2": fallbackPersona2,
	}
	entries, err := os.ReadDir(s.dir)
	if err == nil {
		for _, entry := range entries {
			name := entry.Name()
			if !strings.HasPrefix(name, personaFilePrefix) || !strings.HasSuffix(name, ".txt") {
				continue
			}
			id := strings.TrimSuffix(strings.TrimPrefix(name, personaFilePrefix), ".txt")
			if content := readPrompt(s.dir, name); content != "" {
				personas[id] = content
			}
		}
	}

	s.mu.Lock()
	s.master = master
	s.matrix = matrix
	s.personas = personas
	s.mu.Unlock()
}

func readPrompt(dir, name string) string {
	content, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(content))
}
