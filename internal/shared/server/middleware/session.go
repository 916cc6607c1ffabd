package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"chartyap-backend/internal/shared/server/respond"
)

// SessionHeader carries the browser session identity.
const SessionHeader = "X-Session-Id"

const sessionIDKey = "sessionId"

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// Session requires an X-Session-Id header and stores it in context.
// Paths listed in public pass through without one.
func Session(public ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(public))
	for _, p := range public {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		id := strings.TrimSpace(c.GetHeader(SessionHeader))
		if id == "" {
			respond.Error(c, http.StatusUnauthorized, "missing_session", "Missing session identity", nil)
			return
		}
		if !sessionIDPattern.MatchString(id) {
			respond.Error(c, http.StatusBadRequest, "invalid_session", "Session identity is malformed", nil)
			return
		}

		c.Set(sessionIDKey, id)
		c.Next()
	}
}

// SessionIDFromContext fetches the session ID set by the Session middleware.
func SessionIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(sessionIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}
