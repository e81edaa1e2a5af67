// Synapz - chat proxy between stakeholders, a completion API, and a record store
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
	"github.com/ianibsm/Synapz/internal/api"
	"github.com/ianibsm/Synapz/internal/chat"
	"github.com/ianibsm/Synapz/internal/config"
	"github.com/ianibsm/Synapz/internal/llm"
	"github.com/ianibsm/Synapz/internal/middleware"
	"github.com/ianibsm/Synapz/internal/session"
	"github.com/ianibsm/Synapz/internal/store"
	"github.com/ianibsm/Synapz/internal/transcript"
	"github.com/ianibsm/Synapz/internal/tts"
	"github.com/ianibsm/Synapz/web"
	"github.com/joho/godotenv"
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

	slog.Info("Starting server", "port", cfg.Port, "store_backend", cfg.StoreBackend, "dev", cfg.IsDevelopment())

	// Initialize the record store.
	repo, err := newRepository(cfg)
	if err != nil {
		slog.Error("Failed to initialize record store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close record store", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Record store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Record store connected")

	// Long-lived vendor clients, constructed once and injected.
	completer := llm.NewClient(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.ChatModel)
	speech := tts.NewClient(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.TTSModel, cfg.OpenAI.TTSVoice)

	responder := chat.NewResponder(
		session.NewResolver(repo),
		transcript.NewLogger(repo),
		completer,
		cfg.StreamBuffer,
	)

	handler := api.NewHandler(responder, repo, completer, speech)

	// Setup router.
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(corsOrigins(cfg)))

	handler.RegisterRoutes(r)

	// Serve the embedded test console.
	r.Handle("/*", web.ConsoleHandler())

	// Note: SSE and websocket responses require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout for SSE support
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

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

func newRepository(cfg *config.Config) (store.Repository, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendSQLite:
		return store.NewSQLite(cfg.DBPath)
	default:
		return store.NewAirtable(store.AirtableConfig{
			BaseURL:       cfg.Airtable.BaseURL,
			APIKey:        cfg.Airtable.APIKey,
			BaseID:        cfg.Airtable.BaseID,
			SessionsTable: cfg.Airtable.SessionsTable,
			MessagesTable: cfg.Airtable.MessagesTable,
		})
	}
}

func corsOrigins(cfg *config.Config) []string {
	if cfg.FrontendURL != "" {
		return []string{cfg.FrontendURL}
	}
	return []string{"*"}
}
