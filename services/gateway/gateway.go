// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gateway assembles the Keepsake companion backend: config, tracing,
// metrics, storage, LLM backends, the persona store, the retention sweeper,
// and the HTTP router.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/keepsakelabs/keepsake/services/gateway/companion"
	"github.com/keepsakelabs/keepsake/services/gateway/config"
	"github.com/keepsakelabs/keepsake/services/gateway/handlers"
	"github.com/keepsakelabs/keepsake/services/gateway/memory"
	"github.com/keepsakelabs/keepsake/services/gateway/observability"
	"github.com/keepsakelabs/keepsake/services/gateway/retention"
	"github.com/keepsakelabs/keepsake/services/gateway/routes"
	"github.com/keepsakelabs/keepsake/services/llm"
	"github.com/keepsakelabs/keepsake/services/supabase"
)

// Service is the assembled gateway.
type Service interface {
	// Run starts the HTTP server and blocks until it stops.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

type service struct {
	config config.Settings
	tiers  config.Tiers
	router *gin.Engine

	store    *supabase.Client
	personas *companion.PersonaStore

	retentionScheduler *retention.Scheduler
	retentionAudit     *retention.AuditLog
	retentionCancel    context.CancelFunc

	tracerCleanup func(context.Context)
}

// New builds the gateway from Settings.
//
// # Description
//
// Initialization order matters: tracing and metrics first so every later
// component can record, then storage and the LLM backends, then the
// retention scheduler, then the router. Failures after the tracer is up
// release it before returning.
func New(cfg config.Settings) (Service, error) {
	s := &service{config: cfg}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	if cfg.EnableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics")
	}

	tiers, err := config.LoadTiers(cfg.TierTablePath)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to load the tier table: %w", err)
	}
	s.tiers = tiers

	s.store, err = supabase.NewClient()
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize the Supabase client: %w", err)
	}

	// The OpenAI client always exists: it is the utility model for greetings
	// and fact extraction, and the only embedding backend. The chat backend
	// may be swapped to Anthropic independently.
	openaiClient, err := llm.NewOpenAIClient()
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize the OpenAI client: %w", err)
	}

	chatClient, err := s.initChatClient(openaiClient)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize the chat backend: %w", err)
	}
	deepChatClient := s.initDeepChatClient(chatClient)

	memoryService := memory.New(s.store, openaiClient)

	s.personas, err = companion.NewPersonaStore(cfg.PromptsDir)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to load persona prompts: %w", err)
	}

	if cfg.RetentionEnabled {
		if err := s.initRetention(); err != nil {
			slog.Warn("Retention scheduler initialization failed, continuing without sweeps",
				"error", err)
		}
	}

	deps := &handlers.ChatDeps{
		Tiers:    tiers,
		Personas: s.personas,
		Chat:     chatClient,
		DeepChat: deepChatClient,
		Utility:  openaiClient,
		Memory:   memoryService,
		Store:    s.store,
	}
	s.initRouter(deps)

	return s, nil
}

// Run starts the HTTP server and blocks until it stops. Cleanup runs on
// return, including a purge of all locked reply buffers.
func (s *service) Run() error {
	defer s.cleanup()
	defer handlers.PurgeAllSecureMemory()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting the Keepsake gateway", "port", s.config.Port)
	return s.router.Run(addr)
}

func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTracer sets up the OTLP trace exporter against the configured
// collector. The returned cleanup flushes and shuts the exporter down.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("keepsake-gateway")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("Failed to shutdown the OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initChatClient picks the conversational backend. Unknown values fall back
// to OpenAI, which the model routing table assumes anyway.
func (s *service) initChatClient(openaiClient *llm.OpenAIClient) (llm.LLMClient, error) {
	switch s.config.LLMBackend {
	case "openai", "":
		slog.Info("Using the OpenAI chat backend")
		return openaiClient, nil
	case "claude", "anthropic":
		slog.Info("Using the Anthropic chat backend")
		return llm.NewAnthropicClient()
	default:
		slog.Warn("Unknown chat backend, defaulting to OpenAI", "backend", s.config.LLMBackend)
		return openaiClient, nil
	}
}

// initDeepChatClient builds the dedicated backend for deep moments on
// priority-routed tiers. When the primary backend is already Anthropic there
// is nothing to add; when it is OpenAI and an Anthropic key is present, deep
// premium turns move to the Anthropic backend while everything else stays
// on OpenAI.
func (s *service) initDeepChatClient(chat llm.LLMClient) llm.LLMClient {
	if _, ok := chat.(*llm.AnthropicClient); ok {
		return nil
	}
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return nil
	}
	client, err := llm.NewAnthropicClient()
	if err != nil {
		slog.Warn("Anthropic deep backend unavailable, deep moments stay on the primary backend",
			"error", err)
		return nil
	}
	slog.Info("Routing premium deep moments to the Anthropic backend")
	return client
}

// initRetention builds the recall-vector sweeper and starts its scheduler.
func (s *service) initRetention() error {
	interval, err := time.ParseDuration(s.config.RetentionInterval)
	if err != nil || interval <= 0 {
		slog.Warn("Invalid retention interval, using the default",
			"raw", s.config.RetentionInterval, "default", retention.DefaultInterval)
		interval = retention.DefaultInterval
	}

	audit, err := retention.NewAuditLog(s.config.RetentionLogPath)
	if err != nil {
		slog.Warn("Failed to create the retention audit log, continuing without it",
			"log_path", s.config.RetentionLogPath, "error", err)
		audit = nil
	}
	s.retentionAudit = audit

	sweeper := retention.NewSweeper(s.store, s.tiers, retention.RealClock{})
	s.retentionScheduler = retention.NewScheduler(sweeper, audit, interval)

	ctx, cancel := context.WithCancel(context.Background())
	s.retentionCancel = cancel
	if err := s.retentionScheduler.Start(ctx); err != nil {
		cancel()
		return err
	}
	slog.Info("Retention scheduler started", "interval", interval)
	return nil
}

// initRouter builds the Gin engine with tracing middleware and all routes.
func (s *service) initRouter(deps *handlers.ChatDeps) {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware("keepsake-gateway"))
	s.router.Use(corsMiddleware(s.config.CORSOrigins))

	routes.SetupRoutes(s.router, deps, s.config)
}

// corsMiddleware answers preflight requests and stamps the allowed origin.
// The mobile app talks to the gateway directly; CORS only matters for the
// web client and the ops dashboard.
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (wildcard || allowed[origin]) {
			header := c.Writer.Header()
			if wildcard {
				header.Set("Access-Control-Allow-Origin", "*")
			} else {
				header.Set("Access-Control-Allow-Origin", origin)
				header.Set("Vary", "Origin")
			}
			header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

func (s *service) cleanup() {
	if s.retentionScheduler != nil {
		if err := s.retentionScheduler.Stop(); err != nil {
			slog.Warn("Retention scheduler stop error", "error", err)
		}
	}
	if s.retentionCancel != nil {
		s.retentionCancel()
	}
	if s.retentionAudit != nil {
		if err := s.retentionAudit.Close(); err != nil {
			slog.Warn("Retention audit log close error", "error", err)
		}
	}
	if s.personas != nil {
		if err := s.personas.Close(); err != nil {
			slog.Warn("Persona store close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}
