package session

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"chartyap-backend/internal/shared/telemetry"
)

// streamEvents pushes the session view on connect and after every change.
// The stream ends when the client leaves or the session expires.
func (h *Handler) streamEvents(c *gin.Context) {
	s := h.current(c)
	ch := s.Changes.Subscribe()
	defer s.Changes.Unsubscribe(ch)

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("session", sessionView(s))
	c.Writer.Flush()

	telemetry.Info("session.stream_opened", map[string]any{"session_id": s.ID})
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case _, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("session", sessionView(s))
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC().Format(time.RFC3339)})
			return true
		}
	})
	telemetry.Info("session.stream_closed", map[string]any{"session_id": s.ID})
}
