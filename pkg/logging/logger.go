// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging configures structured logging for Keepsake services.
//
// The gateway runs in containers, so logs go to stdout as JSON for the log
// collector to pick up. Local development can switch to human-readable text
// output via KEEPSAKE_LOG_FORMAT=text.
//
// # Usage
//
//	logger := logging.Setup(logging.FromEnv())
//	logger.Info("starting gateway", "port", cfg.Port)
//
// Setup also installs the logger as the slog default, so packages that log
// through the slog package functions pick it up without plumbing.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// =============================================================================
// Levels
// =============================================================================

// Level is the minimum severity a log record needs to be emitted.
type Level int

const (
	// LevelDebug emits everything. Verbose; development only.
	LevelDebug Level = iota

	// LevelInfo is the production default.
	LevelInfo

	// LevelWarn emits warnings and errors only.
	LevelWarn

	// LevelError emits errors only.
	LevelError
)

// String returns the level name used in env vars and log output.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps a level name to a Level. Unknown names fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Format selects the handler encoding.
type Format string

const (
	// FormatJSON emits one JSON object per record. Container default.
	FormatJSON Format = "json"

	// FormatText emits key=value records for local development.
	FormatText Format = "text"
)

// Config controls how Setup builds the logger.
type Config struct {
	// Level is the minimum severity to emit.
	Level Level

	// Format selects JSON or text encoding.
	Format Format

	// Output is the destination writer. Defaults to os.Stdout.
	Output io.Writer
}

// FromEnv builds a Config from KEEPSAKE_LOG_LEVEL and KEEPSAKE_LOG_FORMAT.
func FromEnv() Config {
	cfg := Config{
		Level:  ParseLevel(os.Getenv("KEEPSAKE_LOG_LEVEL")),
		Format: FormatJSON,
	}
	if strings.EqualFold(os.Getenv("KEEPSAKE_LOG_FORMAT"), string(FormatText)) {
		cfg.Format = FormatText
	}
	return cfg
}

// =============================================================================
// Setup
// =============================================================================

// Setup builds a slog.Logger from the config and installs it as the
// process-wide default.
func Setup(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: cfg.Level.toSlogLevel()}

	var handler slog.Handler
	if cfg.Format == FormatText {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
