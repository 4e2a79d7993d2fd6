package handlers

import (
	"github.com/rs/zerolog"

	"travel-companion/internal/config"
	"travel-companion/internal/domain/conversation"
	"travel-companion/internal/domain/interaction"
	"travel-companion/internal/domain/orchestrator"
)

// Provider wires HTTP handlers.
type Provider struct {
	Upload  *UploadHandler
	History *HistoryHandler
}

func NewProvider(
	cfg *config.Config,
	service orchestrator.Service,
	histories *conversation.Registry,
	tracker *interaction.LocationTracker,
	uploads Uploads,
	log zerolog.Logger,
) *Provider {
	return &Provider{
		Upload:  NewUploadHandler(cfg, service, histories, tracker, uploads, log),
		History: NewHistoryHandler(histories, log),
	}
}
