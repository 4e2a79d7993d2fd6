package middlewares

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"travel-companion/internal/utils/platformerrors"
)

const (
	// APIKeyHeader carries the static upload key.
	APIKeyHeader = "X-API-Key"
	// InvalidAPIKeyMessage is the body of every rejected request.
	InvalidAPIKeyMessage = "Invalid API Key"
)

// APIKey rejects requests whose X-API-Key does not match key with 403.
func APIKey(key string) gin.HandlerFunc {
	expected := []byte(key)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(APIKeyHeader))
		if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
			platformerrors.WriteForbidden(c, InvalidAPIKeyMessage)
			return
		}
		c.Next()
	}
}
