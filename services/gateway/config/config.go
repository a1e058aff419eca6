// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config holds typed runtime settings and the tier entitlement
// tables for the Keepsake gateway.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Settings is everything the gateway reads from the environment.
type Settings struct {
	Port               int
	GinMode            string
	LLMBackend         string // "openai" (default) or "anthropic" for premium deep routing
	OTelEndpoint       string
	EnableMetrics      bool
	RateLimitPerMinute int
	CORSOrigins        []string

	SupabaseJWTSecret string

	PromptsDir    string
	TierTablePath string // optional YAML override for the tier tables

	RetentionEnabled  bool
	RetentionInterval string // parsed by the gateway, e.g. "1h"
	RetentionLogPath  string
}

// Load reads Settings from the environment. Secrets may also live under
// /run/secrets following the container secret convention.
func Load() (Settings, error) {
	s := Settings{
		Port:               getEnvInt("KEEPSAKE_PORT", 8080),
		GinMode:            os.Getenv("GIN_MODE"),
		LLMBackend:         getEnvString("LLM_BACKEND_TYPE", "openai"),
		OTelEndpoint:       getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "keepsake-otel-collector:4317"),
		EnableMetrics:      getEnvBool("ENABLE_METRICS", true),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSOrigins:        splitOrigins(getEnvString("CORS_ORIGINS", "*")),
		PromptsDir:         getEnvString("PROMPTS_DIR", "./prompts"),
		TierTablePath:      os.Getenv("TIER_TABLE_PATH"),
		RetentionEnabled:   getEnvBool("RETENTION_ENABLED", true),
		RetentionInterval:  getEnvString("RETENTION_INTERVAL", "1h"),
		RetentionLogPath:   getEnvString("RETENTION_LOG_PATH", "./logs/retention.log"),
	}

	s.SupabaseJWTSecret = os.Getenv("SUPABASE_JWT_SECRET")
	if s.SupabaseJWTSecret == "" {
		secretPath := "/run/secrets/supabase_jwt_secret"
		if content, err := os.ReadFile(secretPath); err == nil {
			s.SupabaseJWTSecret = strings.TrimSpace(string(content))
			slog.Info("Read the Supabase JWT secret from container secrets")
		}
	}
	if s.SupabaseJWTSecret == "" {
		return Settings{}, fmt.Errorf("SUPABASE_JWT_SECRET environment variable not set")
	}

	return s, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func splitOrigins(raw string) []string {
	if raw == "*" {
		return []string{"*"}
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
