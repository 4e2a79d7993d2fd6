package middlewares

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"travel-companion/internal/utils/platformerrors"
)

// Recovery turns a panic into a 500 carrying the panic text, in the same
// envelope as every other error.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error().
			Interface("panic", recovered).
			Str("path", c.Request.URL.Path).
			Str("request_id", GetRequestID(c)).
			Msg("recovered from panic")
		c.AbortWithStatusJSON(http.StatusInternalServerError, platformerrors.HTTPErrorResponse{
			Error:     fmt.Sprint(recovered),
			RequestID: GetRequestID(c),
		})
	})
}
