package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// APIKeyAuth enforces the shared-secret credential on every API route.
// The key is accepted in X-API-Key, as an Authorization bearer token, or as
// an api_key query parameter for websocket clients that cannot set headers.
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader("X-API-Key")
		if presented == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				presented = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if presented == "" {
			presented = c.Query("api_key")
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(apiKey)) != 1 {
			respondError(c, http.StatusUnauthorized, "unauthorized", "invalid or missing API key")
			c.Abort()
			return
		}
		c.Next()
	}
}
