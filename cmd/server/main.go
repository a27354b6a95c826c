// CareerPal - assistant gateway server
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ravindur-dev/careerpal/internal/api"
	"github.com/ravindur-dev/careerpal/internal/backend"
	"github.com/ravindur-dev/careerpal/internal/chat"
	"github.com/ravindur-dev/careerpal/internal/config"
	"github.com/ravindur-dev/careerpal/internal/identity"
	"github.com/ravindur-dev/careerpal/internal/middleware"
	"github.com/ravindur-dev/careerpal/internal/session"
	"github.com/ravindur-dev/careerpal/internal/turnlog"
	"github.com/ravindur-dev/careerpal/internal/voice"
	"github.com/ravindur-dev/careerpal/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "backend", cfg.BackendURL, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	client := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout)

	var turns turnlog.Logger = turnlog.NopLogger{}
	var turnStore *turnlog.SQLiteStore
	if cfg.TurnLog.Enabled {
		turnStore, err = turnlog.NewSQLite(cfg.TurnLog.DBPath)
		if err != nil {
			slog.Error("Failed to initialize turn log database", "error", err)
			os.Exit(1)
		}
		if err := turnStore.Ping(context.Background()); err != nil {
			slog.Error("Turn log database health check failed", "error", err)
			os.Exit(1)
		}
		turns = turnlog.NewAsyncLogger(turnStore, cfg.TurnLog.QueueSize, logger)
		slog.Info("Turn log database connected", "path", cfg.TurnLog.DBPath)
	} else {
		slog.Info("Turn logging disabled")
	}
	defer func() {
		if closeErr := turns.Close(); closeErr != nil {
			slog.Error("Failed to close turn log", "error", closeErr)
		}
	}()

	// Initialize the conversational session and its flow controllers.
	store := session.NewStore()
	chatCtrl := chat.NewController(store, client, turns, logger)
	voiceCtrl := voice.NewController(store, client, turns, logger)

	limiter := api.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	handler := api.NewHandler(chatCtrl, voiceCtrl, store, client, limiter)
	wsHandler := voice.NewWebSocketHandler(voiceCtrl, cfg.FrontendURL, cfg.IsDevelopment())

	var turnPinger api.Pinger
	if turnStore != nil {
		turnPinger = turnStore
	}
	healthHandler := api.NewHealthHandler(client, turnPinger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// API routes.
	handler.RegisterRoutes(r)
	healthHandler.RegisterHealth(r)

	// Voice capture WebSocket endpoint.
	r.Get("/ws/voice", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Create server. The voice capture socket stays open across a whole
	// recording, so no write timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
