package platformerrors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// HTTPErrorResponse is the error envelope returned to upload clients.
type HTTPErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError writes err as an HTTP response. PlatformErrors keep their
// status; anything else is a 500 carrying the error text.
func WriteError(c *gin.Context, err error, log zerolog.Logger) {
	if err == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, HTTPErrorResponse{Error: "unknown error"})
		return
	}

	platformErr := GetPlatformError(err)
	if platformErr == nil {
		log.Error().Err(err).Msg("request failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, HTTPErrorResponse{Error: err.Error()})
		return
	}

	LogError(log, platformErr)
	message := platformErr.Message
	if platformErr.Err != nil && platformErr.Type == ErrorTypeInternal {
		message = platformErr.Err.Error()
	}
	c.AbortWithStatusJSON(ErrorTypeToHTTPStatus(platformErr.Type), HTTPErrorResponse{
		Error:     message,
		Code:      platformErr.UUID,
		RequestID: platformErr.RequestID,
	})
}

// WriteForbidden writes a 403 with the given message.
func WriteForbidden(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusForbidden, HTTPErrorResponse{Error: message})
}

// WriteValidationError writes a 400 with the given message.
func WriteValidationError(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, HTTPErrorResponse{Error: message})
}
