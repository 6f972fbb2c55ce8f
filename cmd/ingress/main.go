// Ingress process — polls the chat command channel for founder messages,
// runs them through the command handler, and announces completed work
// and hiring proposals.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/zerohq/agentcorp/pkg/chat"
	"github.com/zerohq/agentcorp/pkg/database"
	"github.com/zerohq/agentcorp/pkg/events"
	"github.com/zerohq/agentcorp/pkg/llm"
	"github.com/zerohq/agentcorp/pkg/persona"
	"github.com/zerohq/agentcorp/pkg/roster"
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

	logger := slog.Default()
	ctx := context.Background()

	token := os.Getenv("SLACK_BOT_TOKEN")
	founderID := os.Getenv("FOUNDER_USER_ID")
	if token == "" || founderID == "" {
		slog.Error("SLACK_BOT_TOKEN and FOUNDER_USER_ID are required for ingress")
		os.Exit(1)
	}
	commandChannel := getEnv("COMMAND_CHANNEL", "founder-updates")
	slog.Info("Starting ingress", "version", version.Full(), "channel", commandChannel)

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

	// 2. Roster (the !fire command needs the full retire path)
	registry, err := llm.LoadRegistryFromEnv()
	if err != nil {
		slog.Error("Failed to load model tier configuration", "error", err)
		os.Exit(1)
	}
	router := llm.NewRouter(registry, st, logger)
	personas := persona.NewService(st, router, emitter, logger)
	tracker := skills.NewTracker(st, emitter, logger)
	rosterSvc := roster.NewService(st, router, personas, tracker, emitter, logger)

	// 3. Chat surface
	adapter := chat.NewSlackAdapter(token, logger)
	handler := chat.NewHandler(st, rosterSvc, logger)
	announcer := chat.NewAnnouncer(st, adapter, commandChannel, logger)
	poller := chat.NewPoller(adapter, handler, announcer, founderID, commandChannel, logger)
	poller.Start(ctx)

	slog.Info("Ingress started successfully", "channel", commandChannel)

	// 4. Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("Shutdown signal received", "signal", sig)

	poller.Stop()
	slog.Info("Shutdown complete")
}
