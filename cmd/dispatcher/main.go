// Dispatcher process — promotes proposals to missions and steps,
// completes hires, schedules reviews, advances projects, fires scheduled
// jobs, and serves the health probe.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	openai "github.com/sashabaranov/go-openai"

	"github.com/zerohq/agentcorp/pkg/chat"
	"github.com/zerohq/agentcorp/pkg/database"
	"github.com/zerohq/agentcorp/pkg/dispatch"
	"github.com/zerohq/agentcorp/pkg/docstore"
	"github.com/zerohq/agentcorp/pkg/events"
	"github.com/zerohq/agentcorp/pkg/llm"
	"github.com/zerohq/agentcorp/pkg/memory"
	"github.com/zerohq/agentcorp/pkg/persona"
	"github.com/zerohq/agentcorp/pkg/policy"
	"github.com/zerohq/agentcorp/pkg/roster"
	"github.com/zerohq/agentcorp/pkg/sched"
	"github.com/zerohq/agentcorp/pkg/skills"
	"github.com/zerohq/agentcorp/pkg/store"
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

	httpPort := getEnv("HTTP_PORT", "8080")
	logger := slog.Default()
	ctx := context.Background()

	slog.Info("Starting dispatcher", "version", version.Full(), "http_port", httpPort)

	// 1. Database (with migrations)
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
	policies := policy.NewCache(st, logger)

	// 2. Model router
	registry, err := llm.LoadRegistryFromEnv()
	if err != nil {
		slog.Error("Failed to load model tier configuration", "error", err)
		os.Exit(1)
	}
	router := llm.NewRouter(registry, st, logger)

	// 3. Domain services
	memories := memory.NewService(st, logger)
	personas := persona.NewService(st, router, emitter, logger)
	tracker := skills.NewTracker(st, emitter, logger)
	rosterSvc := roster.NewService(st, router, personas, tracker, emitter, logger)

	if err := rosterSvc.Bootstrap(ctx); err != nil {
		slog.Error("Org bootstrap failed", "error", err)
		os.Exit(1)
	}

	// 4. Outbound integrations (all optional)
	adapter := chat.NewSlackAdapter(os.Getenv("SLACK_BOT_TOKEN"), logger)
	if adapter == nil {
		slog.Info("No chat token configured, chat posting disabled")
	}
	publisher := docstore.NewDirPublisher(getEnv("DOCSTORE_DIR", "./var/docstore"), logger)

	// 5. Scheduler with health probes
	memLimitMB, _ := strconv.Atoi(getEnv("MEMORY_LIMIT_MB", "512"))
	health := sched.NewHealthRunner(st, modelKeyCheck(registry), memLimitMB, logger)

	schedCfg := sched.DefaultConfig()
	schedCfg.Timezone = getEnv("TIMEZONE", schedCfg.Timezone)
	schedCfg.AlertChannel = getEnv("ALERT_CHANNEL", schedCfg.AlertChannel)
	schedCfg.SummaryChannel = getEnv("SUMMARY_CHANNEL", schedCfg.SummaryChannel)

	var chatAdapter chat.Adapter
	if adapter != nil {
		chatAdapter = adapter
	}
	scheduler, err := sched.New(schedCfg, st, policies, router, memories, chatAdapter, publisher, emitter, health, logger)
	if err != nil {
		slog.Error("Failed to create scheduler", "error", err)
		os.Exit(1)
	}

	// 6. Dispatcher loop
	dispatcher := dispatch.New(st, policies, rosterSvc, scheduler, publisher, emitter, logger)
	dispatcher.Start(ctx)

	// 7. HTTP surface (non-blocking)
	httpServer := &http.Server{
		Addr:    ":" + httpPort,
		Handler: dispatch.NewHTTPHandler(dispatcher),
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Dispatcher started successfully")

	// 8. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 9. Graceful shutdown
	dispatcher.Stop()
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	slog.Info("Shutdown complete")
}

// modelKeyCheck validates the tier-1 key with a cheap model-list call.
func modelKeyCheck(registry *llm.Registry) sched.KeyCheckFunc {
	cfg := registry.Get("t1")
	if cfg.APIKey == "" {
		return nil
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(clientCfg)
	return func(ctx context.Context) error {
		_, err := client.ListModels(ctx)
		return err
	}
}
