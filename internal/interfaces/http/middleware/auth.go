package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

// HeaderAPIKey is the alternative to a bearer token.
const HeaderAPIKey = "X-API-Key"

// APIKeyAuth requires the configured key as "Authorization: Bearer <key>"
// or in X-API-Key. An empty key disables the check.
func APIKeyAuth(key string, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		got := extractKey(c.Request)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			logger.Warn("rejected unauthenticated request",
				logging.String("path", c.Request.URL.Path),
				logging.String("client_ip", c.ClientIP()),
				logging.Bool("credential_present", got != ""))
			RespondStatus(c, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "missing or invalid API key")
			return
		}
		c.Next()
	}
}

func extractKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(r.Header.Get(HeaderAPIKey))
}
