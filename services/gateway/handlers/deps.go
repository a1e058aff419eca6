// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers provides Gin HTTP handlers for the Keepsake gateway:
// auth passthrough, chat (sync, SSE, WebSocket), greeting, profile, memory,
// and scene endpoints.
package handlers

import (
	"github.com/keepsakelabs/keepsake/services/gateway/companion"
	"github.com/keepsakelabs/keepsake/services/gateway/config"
	"github.com/keepsakelabs/keepsake/services/gateway/memory"
	"github.com/keepsakelabs/keepsake/services/llm"
	"github.com/keepsakelabs/keepsake/services/supabase"
)

// ChatDeps carries the shared dependencies for the chat endpoints.
//
// # Description
//
// One value is built at startup and passed to every handler constructor.
// Chat is the conversational backend the routing layer selects models on;
// Utility is the small fixed model used for greetings and background fact
// extraction where routing never applies. DeepChat, when non-nil, serves
// deep moments on priority-routed tiers instead of Chat.
type ChatDeps struct {
	Tiers    config.Tiers
	Personas *companion.PersonaStore
	Chat     llm.LLMClient
	DeepChat llm.LLMClient
	Utility  llm.LLMClient
	Memory   *memory.Service
	Store    *supabase.Client
}
