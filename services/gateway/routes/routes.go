// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the gateway's HTTP surface onto a Gin engine.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keepsakelabs/keepsake/services/gateway/config"
	"github.com/keepsakelabs/keepsake/services/gateway/handlers"
	"github.com/keepsakelabs/keepsake/services/gateway/middleware"
)

// SetupRoutes registers every gateway endpoint.
//
// Auth endpoints sit outside the JWT middleware (the caller has no token
// yet). Everything else requires a valid Supabase JWT and is rate limited
// per user.
func SetupRoutes(router *gin.Engine, deps *handlers.ChatDeps, cfg config.Settings) {
	router.GET("/", handlers.HandleRoot(cfg))
	router.GET("/health", handlers.HandleHealth())
	if cfg.EnableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	v1 := router.Group("/v1")

	auth := v1.Group("/auth")
	{
		auth.POST("/register", handlers.HandleRegister(deps))
		auth.POST("/login", handlers.HandleLogin(deps))
		auth.POST("/refresh", handlers.HandleRefresh(deps))
		auth.POST("/logout", handlers.HandleLogout())
	}

	authed := v1.Group("")
	authed.Use(middleware.AuthMiddleware(cfg.SupabaseJWTSecret))
	authed.Use(middleware.RateLimitMiddleware(middleware.NewRateLimiter(cfg.RateLimitPerMinute)))
	{
		chat := authed.Group("/chat")
		{
			chat.POST("/message", handlers.HandleChatMessage(deps))
			chat.POST("/stream", handlers.HandleChatStream(deps))
			chat.GET("/ws", handlers.HandleChatWebSocket(deps))
			chat.POST("/greeting", handlers.HandleGreeting(deps))
			chat.GET("/history", handlers.HandleChatHistory(deps))
		}

		user := authed.Group("/user")
		{
			user.GET("/profile", handlers.HandleGetProfile(deps))
			user.PUT("/profile", handlers.HandleUpdateProfile(deps))
			user.POST("/avatar/:avatar_id", handlers.HandleSetAvatar(deps))
			user.GET("/balance", handlers.HandleGetBalance(deps))
			user.POST("/spend/:amount", handlers.HandleSpendCoins(deps))
		}

		mem := authed.Group("/memory")
		{
			mem.GET("/facts", handlers.HandleGetFacts(deps))
			mem.DELETE("/facts", handlers.HandleClearFacts(deps))
			mem.POST("/sync", handlers.HandleMemorySync(deps))
			mem.GET("/emotional-state", handlers.HandleEmotionalState(deps))
			mem.GET("/stats", handlers.HandleMemoryStats(deps))
		}

		scenes := authed.Group("/scenes")
		{
			scenes.GET("", handlers.HandleListScenes(deps))
			scenes.GET("/:name", handlers.HandleGetScene(deps))
		}
	}
}
