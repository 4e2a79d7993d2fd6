package interfaces

import (
	"github.com/google/wire"

	"travel-companion/internal/infrastructure/discord"
	"travel-companion/internal/infrastructure/storage"
	"travel-companion/internal/interfaces/httpserver"
	"travel-companion/internal/interfaces/httpserver/handlers"
)

// InterfaceProvider provides the HTTP boundary.
var InterfaceProvider = wire.NewSet(
	handlers.NewProvider,
	wire.Bind(new(handlers.Uploads), new(*storage.LocalStorage)),
	ProvideReadiness,
	httpserver.New,
)

// ProvideReadiness reports ready once the Discord session is up, or always
// when Discord is not configured.
func ProvideReadiness(client *discord.Client) httpserver.ReadinessCheck {
	return func() bool {
		return client == nil || client.Ready()
	}
}
