// Estate Studio - content workflow server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/estate-studio/internal/api"
	"github.com/ashureev/estate-studio/internal/config"
	"github.com/ashureev/estate-studio/internal/generator"
	"github.com/ashureev/estate-studio/internal/identity"
	"github.com/ashureev/estate-studio/internal/metrics"
	"github.com/ashureev/estate-studio/internal/middleware"
	"github.com/ashureev/estate-studio/internal/pipeline"
	"github.com/ashureev/estate-studio/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	m := metrics.New()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := api.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
	limiter.StartEviction(ctx)

	// Content generation is optional; without it the chat endpoint is not
	// mounted and generation routes answer 503.
	var (
		gen      generator.Generator
		registry *pipeline.Registry
		sink     api.DetailsSink
	)
	if cfg.Generator.Enabled() {
		gen = generator.NewHTTPClient(cfg.Generator.URL, cfg.Generator.APIKey, cfg.Generator.Timeout, logger)
		registry = pipeline.NewRegistry()
		sink = registry
		slog.Info("Content generation enabled", "url", cfg.Generator.URL)
	} else {
		slog.Info("Content generation disabled (GENERATOR_URL not set)")
	}

	apiHandler := api.NewHandler(repo, gen, sink, limiter)
	healthHandler := api.NewHealthHandler(repo, cfg.Generator.Enabled())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(m.Middleware)
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", m.Handler())

	if registry != nil {
		runner := pipeline.NewRunner(gen, repo, cfg.DetailsTimeout, m, logger)
		chat := pipeline.NewHandler(registry, runner, m, cfg.AllowedOrigins(), cfg.IsDevelopment())
		chat.RegisterRoutes(r)

		pipeline.StartSweeper(ctx, registry, cfg.SessionIdleTTL, pipeline.DefaultSweepInterval)
	}

	// REST routes require an identity.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.JWTSecret, cfg.AuthDemoFallback))
		apiHandler.RegisterRoutes(r)
	})

	// WebSocket connections are long-lived, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	if registry != nil {
		registry.CloseAll("server shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
