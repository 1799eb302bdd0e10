package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/tracing"
)

// Tracing opens a server span per request. Service spans started by the
// handlers become its children.
func Tracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		attrs := []attribute.KeyValue{
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
		}
		if id := c.Param("id"); id != "" {
			attrs = append(attrs, tracing.ExplorationID(id))
		}
		ctx, span := tracing.Start(c.Request.Context(), c.Request.Method+" "+route, attrs...)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		var err error
		if status >= http.StatusInternalServerError {
			err = fmt.Errorf("HTTP %d", status)
			if len(c.Errors) > 0 {
				err = c.Errors.Last().Err
			}
		}
		tracing.End(span, err)
	}
}
