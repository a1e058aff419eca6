// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command keepsake starts the Keepsake companion gateway HTTP server.
//
// This is the main entry point for the containerized gateway. It reads
// configuration from environment variables (a local .env file is honored in
// development) and starts the server.
//
// # Environment Variables
//
//   - KEEPSAKE_PORT: HTTP server port (default: 8080)
//   - LLM_BACKEND_TYPE: chat provider - openai, anthropic (default: openai)
//   - OPENAI_API_KEY: required; also serves greetings, facts, and embeddings
//   - ANTHROPIC_API_KEY: optional on the openai backend; routes premium deep
//     moments to Anthropic (CLAUDE_MODEL / CLAUDE_DEEP_MODEL pick the models)
//   - SUPABASE_URL / SUPABASE_SERVICE_KEY: storage backend
//   - SUPABASE_JWT_SECRET: verifies user tokens
//   - OTEL_EXPORTER_OTLP_ENDPOINT: collector (default: keepsake-otel-collector:4317)
//   - KEEPSAKE_LOG_LEVEL / KEEPSAKE_LOG_FORMAT: logging (default: info, json)
//   - PROMPTS_DIR: persona prompt files (default: ./prompts)
//
// # Usage
//
//	# Build
//	go build -o keepsake ./cmd/keepsake
//
//	# Run
//	./keepsake
package main

import (
	"log"
	"log/slog"

	"github.com/joho/godotenv"

	"github.com/keepsakelabs/keepsake/pkg/logging"
	"github.com/keepsakelabs/keepsake/services/gateway"
	"github.com/keepsakelabs/keepsake/services/gateway/config"
)

func main() {
	// Development convenience; production injects real env vars.
	loadedDotenv := godotenv.Load() == nil

	logging.Setup(logging.FromEnv())
	if loadedDotenv {
		slog.Info("Loaded environment from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	slog.Info("Starting the Keepsake gateway",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"retention_enabled", cfg.RetentionEnabled,
	)

	svc, err := gateway.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create the gateway: %v", err)
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("Gateway error: %v", err)
	}
}
