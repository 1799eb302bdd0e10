package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

// Recovery turns a handler panic into a 500 error envelope.
func Recovery(logger logging.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, rec interface{}) {
		logger.Error("panic in HTTP handler",
			logging.String("path", c.Request.URL.Path),
			logging.String("request_id", GetRequestID(c)),
			logging.String("panic", fmt.Sprint(rec)))
		RespondError(c, errors.New(errors.ErrCodeInternal, "internal server error"))
	})
}
