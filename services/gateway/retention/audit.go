// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retention

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// =============================================================================
// Retention Audit Log
// =============================================================================

// AuditLog appends one JSON line per sweep to a dedicated file, giving
// operators a durable record of what retention enforcement deleted and when.
//
// # Thread Safety
//
// LogSweep serializes writes with a mutex.
type AuditLog struct {
	mu   sync.Mutex
	file *os.File
}

// NewAuditLog opens (or creates) the audit file in append mode, creating
// parent directories as needed.
func NewAuditLog(path string) (*AuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create retention audit dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open retention audit log: %w", err)
	}
	return &AuditLog{file: file}, nil
}

// LogSweep appends one sweep result as a JSON line.
func (a *AuditLog) LogSweep(result SweepResult) error {
	line, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode sweep result: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append sweep result: %w", err)
	}
	return nil
}

// Close flushes and closes the audit file.
func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}
