package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"travel-companion/internal/domain/conversation"
	"travel-companion/internal/interfaces/httpserver/responses"
)

// HistoryHandler exposes the shared conversation.
type HistoryHandler struct {
	histories *conversation.Registry
	log       zerolog.Logger
}

func NewHistoryHandler(histories *conversation.Registry, log zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{
		histories: histories,
		log:       log.With().Str("component", "history-handler").Logger(),
	}
}

// Get handles GET /v1/history.
func (h *HistoryHandler) Get(c *gin.Context) {
	shared := h.histories.Shared()
	c.JSON(http.StatusOK, responses.HistoryResponse{
		MaxPairs: shared.MaxPairs(),
		Turns:    shared.Snapshot(),
	})
}

// Reset handles DELETE /v1/history.
func (h *HistoryHandler) Reset(c *gin.Context) {
	h.histories.Reset()
	c.JSON(http.StatusOK, responses.StatusResponse{Status: "cleared"})
}
