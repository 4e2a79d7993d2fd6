package infrastructure

import (
	"github.com/google/wire"
	"github.com/rs/zerolog"

	"travel-companion/internal/config"
	"travel-companion/internal/domain/conversation"
	"travel-companion/internal/domain/delivery"
	"travel-companion/internal/domain/generation"
	"travel-companion/internal/domain/interaction"
	"travel-companion/internal/domain/media"
	"travel-companion/internal/domain/orchestrator"
	"travel-companion/internal/domain/prompt"
	"travel-companion/internal/infrastructure/audio"
	"travel-companion/internal/infrastructure/discord"
	"travel-companion/internal/infrastructure/imaging"
	"travel-companion/internal/infrastructure/llmprovider"
	"travel-companion/internal/infrastructure/places"
	"travel-companion/internal/infrastructure/search"
	"travel-companion/internal/infrastructure/speech"
	"travel-companion/internal/infrastructure/storage"
)

// InfrastructureProvider provides the adapters behind the domain ports.
var InfrastructureProvider = wire.NewSet(
	// Generation and tools
	llmprovider.NewGenerator,
	ProvidePlacesClient,
	ProvideSearchClient,
	ProvideToolRegistry,
	wire.Bind(new(orchestrator.PlacesDigester), new(*places.Client)),

	// Media
	imaging.NewPreparer,
	wire.Bind(new(media.ImagePreparer), new(*imaging.Preparer)),
	audio.NewTranscoderFromConfig,
	wire.Bind(new(media.AudioPreparer), new(*audio.Transcoder)),
	ProvideSpeechService,
	wire.Bind(new(media.Transcriber), new(*speech.Service)),
	wire.Bind(new(media.Synthesizer), new(*speech.Service)),

	// Storage
	storage.NewLocalStorageFromConfig,

	// Discord
	ProvideDiscordClient,
	ProvideSink,
	ProvideChatHandler,
)

func ProvidePlacesClient(cfg *config.Config, log zerolog.Logger) *places.Client {
	return places.NewClient(places.ConfigFromService(cfg), log)
}

func ProvideSearchClient(cfg *config.Config, log zerolog.Logger) *search.Client {
	return search.NewClient(search.ConfigFromService(cfg), log)
}

// ProvideToolRegistry registers every tool a mode may expose.
func ProvideToolRegistry(placesClient *places.Client, searchClient *search.Client) *generation.Registry {
	return generation.NewRegistry(placesClient.Tool(), searchClient.Tool())
}

func ProvideSpeechService(cfg *config.Config, detector *prompt.Detector, log zerolog.Logger) *speech.Service {
	return speech.NewService(speech.NewClientFromConfig(cfg), speech.ConfigFromService(cfg), detector, log)
}

// ProvideDiscordClient returns nil when no bot token or channel is configured.
func ProvideDiscordClient(cfg *config.Config, log zerolog.Logger) (*discord.Client, error) {
	if !cfg.DiscordEnabled() {
		log.Warn().Msg("discord not configured, replies are returned over HTTP only")
		return nil, nil
	}
	return discord.NewClient(cfg, log)
}

func ProvideSink(client *discord.Client, log zerolog.Logger) delivery.Sink {
	if client == nil {
		return nil
	}
	return discord.NewSinkFromClient(client, log)
}

// ProvideChatHandler returns nil when the chat boundary is disabled.
func ProvideChatHandler(
	cfg *config.Config,
	client *discord.Client,
	service orchestrator.Service,
	histories *conversation.Registry,
	tracker *interaction.LocationTracker,
	uploads *storage.LocalStorage,
	deliverer delivery.Deliverer,
	log zerolog.Logger,
) *discord.ChatHandler {
	if client == nil || !cfg.DiscordChatEnabled {
		return nil
	}
	return discord.NewChatHandler(service, histories, tracker, uploads, deliverer, client.ChannelID(), log)
}
