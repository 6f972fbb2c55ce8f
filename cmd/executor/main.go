// Executor process — claims ready mission steps, runs them through the
// tiered model pipeline with tool resolution, and resolves pending
// reviews.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zerohq/agentcorp/pkg/chat"
	"github.com/zerohq/agentcorp/pkg/database"
	"github.com/zerohq/agentcorp/pkg/docstore"
	"github.com/zerohq/agentcorp/pkg/events"
	"github.com/zerohq/agentcorp/pkg/executor"
	"github.com/zerohq/agentcorp/pkg/llm"
	"github.com/zerohq/agentcorp/pkg/memory"
	"github.com/zerohq/agentcorp/pkg/persona"
	"github.com/zerohq/agentcorp/pkg/review"
	"github.com/zerohq/agentcorp/pkg/skills"
	"github.com/zerohq/agentcorp/pkg/store"
	"github.com/zerohq/agentcorp/pkg/tools"
	"github.com/zerohq/agentcorp/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	httpPort := getEnv("HTTP_PORT", "8081")
	logger := slog.Default()
	ctx := context.Background()

	slog.Info("Starting executor", "version", version.Full(), "http_port", httpPort)

	// 1. Database
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	st := store.New(dbClient.DB())
	emitter := events.NewEmitter(st, logger)

	// 2. Model router
	registry, err := llm.LoadRegistryFromEnv()
	if err != nil {
		slog.Error("Failed to load model tier configuration", "error", err)
		os.Exit(1)
	}
	router := llm.NewRouter(registry, st, logger)

	// 3. Task pipeline collaborators
	memories := memory.NewService(st, logger)
	personas := persona.NewService(st, router, emitter, logger)
	tracker := skills.NewTracker(st, emitter, logger)
	learner := review.NewLearner(st, logger)

	web := tools.NewWebClient(logger)
	var social tools.SocialQueue
	if adapter := chat.NewSlackAdapter(os.Getenv("SLACK_BOT_TOKEN"), logger); adapter != nil {
		social = chat.NewSocialDrafts(adapter, getEnv("SOCIAL_DRAFTS_CHANNEL", "social-drafts"))
	} else {
		slog.Info("No chat token configured, social posts will be dropped")
	}
	resolver := tools.NewResolver(web, web, social, logger)

	publisher := docstore.NewDirPublisher(getEnv("DOCSTORE_DIR", "./var/docstore"), logger)

	// 4. Worker loop
	worker := executor.New(executor.Deps{
		Store:     st,
		Router:    router,
		Memories:  memories,
		Resolver:  resolver,
		Personas:  personas,
		Skills:    tracker,
		Learner:   learner,
		Publisher: publisher,
		Emitter:   emitter,
		Logger:    logger,
	})
	worker.Start(ctx)

	// 5. HTTP probe (non-blocking)
	httpServer := &http.Server{
		Addr:    ":" + httpPort,
		Handler: executor.NewHTTPHandler(worker),
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Executor started successfully")

	// 6. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 7. Graceful shutdown — finish the in-flight step first
	worker.Stop()
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	slog.Info("Shutdown complete")
}
