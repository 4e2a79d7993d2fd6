package domain

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
)

// ServiceProvider provides all domain services
var ServiceProvider = wire.NewSet(
	// Conversation
	ProvideHistoryRegistry,
	ProvideLocationTracker,

	// Prompting
	prompt.NewDefaultClock,
	prompt.NewDetector,
	wire.Bind(new(prompt.LanguageDetector), new(*prompt.Detector)),
	ProvidePromptBuilder,

	// Delivery
	ProvideDispatcher,
	wire.Bind(new(delivery.Deliverer), new(*delivery.Dispatcher)),

	// Orchestration
	ProvideOrchestratorConfig,
	ProvideOrchestrator,
)

func ProvideHistoryRegistry(cfg *config.Config, log zerolog.Logger) *conversation.Registry {
	return conversation.NewRegistry(cfg.HistorySize, log)
}

func ProvideLocationTracker(cfg *config.Config) *interaction.LocationTracker {
	return interaction.NewLocationTracker(cfg.LocationTTL)
}

func ProvidePromptBuilder(cfg *config.Config, clock *prompt.Clock, detector prompt.LanguageDetector) (*prompt.Builder, error) {
	return prompt.NewBuilder(clock, detector, cfg.UserPreference)
}

// ProvideDispatcher creates the delivery queue. A nil sink leaves every
// delivery failing fast with ErrSinkUnavailable.
func ProvideDispatcher(cfg *config.Config, sink delivery.Sink, log zerolog.Logger) *delivery.Dispatcher {
	return delivery.NewDispatcher(sink, delivery.Config{
		Timeout:    cfg.DeliveryTimeout,
		ChunkDelay: cfg.DeliveryChunkDelay,
		QueueSize:  cfg.DeliveryQueueSize,
	}, log)
}

func ProvideOrchestratorConfig(cfg *config.Config) orchestrator.Config {
	return orchestrator.Config{
		ImageMaxBytes:   cfg.ImageMaxBytes,
		TranscribeTier:  media.Tier(cfg.STTTier),
		VoiceGender:     media.Gender(cfg.TTSGender),
		VoiceSpeed:      cfg.TTSSpeed,
		ProactivePlaces: cfg.ProactivePlaces,
	}
}

func ProvideOrchestrator(
	cfg orchestrator.Config,
	generator generation.Generator,
	tools *generation.Registry,
	prompts *prompt.Builder,
	images media.ImagePreparer,
	audio media.AudioPreparer,
	transcriber media.Transcriber,
	synthesizer media.Synthesizer,
	places orchestrator.PlacesDigester,
	deliverer delivery.Deliverer,
	log zerolog.Logger,
) (orchestrator.Service, error) {
	return orchestrator.New(orchestrator.Dependencies{
		Generator:   generator,
		Tools:       tools,
		Prompts:     prompts,
		Images:      images,
		Audio:       audio,
		Transcriber: transcriber,
		Synthesizer: synthesizer,
		Places:      places,
		Deliverer:   deliverer,
	}, cfg, log)
}
