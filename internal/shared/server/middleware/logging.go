package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"estimate-backend/internal/shared/telemetry"
)

// Logging emits a structured log per request. Handlers may set documentId
// and estimateId on the context to enrich the line.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": float64(latency.Microseconds()) / 1000.0,
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		if userID := UserIDFromContext(c); userID != "" {
			fields["user_id"] = userID
			fields["is_guest"] = IsGuest(c)
		}
		if documentID := c.GetString("documentId"); documentID != "" {
			fields["document_id"] = documentID
		}
		if estimateID := c.GetString("estimateId"); estimateID != "" {
			fields["estimate_id"] = estimateID
		}

		telemetry.Info("request.complete", fields)
	}
}
