package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"travel-companion/internal/config"
	"travel-companion/internal/domain/conversation"
	"travel-companion/internal/domain/delivery"
	"travel-companion/internal/infrastructure/discord"
	"travel-companion/internal/infrastructure/logger"
	"travel-companion/internal/infrastructure/observability"
	"travel-companion/internal/interfaces/httpserver"
)

// Application holds the main application components.
type Application struct {
	httpServer *httpserver.HttpServer
	dispatcher *delivery.Dispatcher
	discord    *discord.Client
	chat       *discord.ChatHandler
	histories  *conversation.Registry
	log        zerolog.Logger
}

// NewApplication creates a new application instance. discordClient and chat
// are nil when Discord is not configured.
func NewApplication(
	httpServer *httpserver.HttpServer,
	dispatcher *delivery.Dispatcher,
	discordClient *discord.Client,
	chat *discord.ChatHandler,
	histories *conversation.Registry,
	log zerolog.Logger,
) *Application {
	return &Application{
		httpServer: httpServer,
		dispatcher: dispatcher,
		discord:    discordClient,
		chat:       chat,
		histories:  histories,
		log:        log,
	}
}

// Start runs the application until ctx is cancelled.
func (a *Application) Start(ctx context.Context) error {
	a.dispatcher.Start(ctx)
	defer a.dispatcher.Stop()

	if a.discord != nil {
		if a.chat != nil {
			a.chat.Register(a.discord)
		}
		if err := a.discord.Start(ctx); err != nil {
			a.log.Error().Err(err).Msg("discord unavailable, deliveries will fail until the watchdog reconnects")
		}
		defer func() {
			if err := a.discord.Stop(); err != nil {
				a.log.Warn().Err(err).Msg("failed to close discord session")
			}
		}()
	}

	a.histories.Observe()
	return a.httpServer.Run(ctx)
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()

	app, err := CreateApplication(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build application")
	}

	log.Info().
		Str("service", cfg.ServiceName).
		Int("port", cfg.HTTPPort).
		Str("environment", cfg.Environment).
		Str("llm_provider", cfg.LLMProvider).
		Bool("discord", cfg.DiscordEnabled()).
		Msg("starting application")

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

func loadEnvFiles() {
	paths := []string{".env", "../.env", "../../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
