package routes

import (
	"github.com/gin-gonic/gin"

	"travel-companion/internal/config"
	"travel-companion/internal/interfaces/httpserver/handlers"
	"travel-companion/internal/interfaces/httpserver/middlewares"
)

// Routes encapsulates route registration.
type Routes struct {
	handlers *handlers.Provider
	apiKey   string
}

func NewRoutes(provider *handlers.Provider, cfg *config.Config) *Routes {
	return &Routes{handlers: provider, apiKey: cfg.APIKey}
}

// Register attaches the upload endpoint at the root and the history
// endpoints under /v1. All of them require the API key.
func (r *Routes) Register(router gin.IRouter) {
	auth := middlewares.APIKey(r.apiKey)

	router.POST("/upload", auth, r.handlers.Upload.Upload)

	v1 := router.Group("/v1", auth)
	v1.GET("/history", r.handlers.History.Get)
	v1.DELETE("/history", r.handlers.History.Reset)
}
