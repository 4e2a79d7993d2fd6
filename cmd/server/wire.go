//go:build wireinject
// +build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"

	"travel-companion/internal/config"
	"travel-companion/internal/domain"
	"travel-companion/internal/infrastructure"
	"travel-companion/internal/interfaces"
)

// CreateApplication creates the application with all dependencies wired.
func CreateApplication(
	ctx context.Context,
	cfg *config.Config,
	log zerolog.Logger,
) (*Application, error) {
	wire.Build(
		domain.ServiceProvider,
		infrastructure.InfrastructureProvider,
		interfaces.InterfaceProvider,
		NewApplication,
	)
	return nil, nil
}
