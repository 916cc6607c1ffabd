package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"chartyap-backend/internal/shared/telemetry"
)

// Context keys handlers set to enrich the request log line.
const (
	RunIDKey            = "runId"
	StatusTransitionKey = "statusTransition"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		runID, _ := c.Get(RunIDKey)
		statusTransition := c.GetString(StatusTransitionKey)

		telemetry.Info("request.complete", map[string]any{
			"request_id":        RequestIDFromContext(c),
			"method":            c.Request.Method,
			"path":              c.Request.URL.Path,
			"status":            c.Writer.Status(),
			"status_transition": statusTransition,
			"duration_ms":       float64(latency.Microseconds()) / 1000.0,
			"session_id":        SessionIDFromContext(c),
			"run_id":            runID,
			"client_ip":         c.ClientIP(),
			"user_agent":        c.Request.UserAgent(),
		})
	}
}
