package session

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chartyap-backend/internal/chartspec"
	"chartyap-backend/internal/gallery"
	"chartyap-backend/internal/shared/server/respond"
)

type expandRequest struct {
	ID string `json:"id"`
}

func (h *Handler) listCards(c *gin.Context) {
	respond.OK(c, gin.H{"cards": h.current(c).Surface.Cards()})
}

func (h *Handler) getExpanded(c *gin.Context) {
	overlay, ok := h.current(c).Surface.Expanded()
	if !ok {
		respond.Error(c, http.StatusNotFound, "not_found", "no recommendation is expanded", nil)
		return
	}
	respond.OK(c, overlay)
}

func (h *Handler) expand(c *gin.Context) {
	var req expandRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ID) == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "id is required", nil)
		return
	}
	s := h.current(c)
	if err := s.Surface.Expand(req.ID); err != nil {
		respond.Error(c, http.StatusNotFound, "not_found", "recommendation not found", nil)
		return
	}
	overlay, ok := s.Surface.Expanded()
	if !ok {
		respond.Error(c, http.StatusNotFound, "not_found", "recommendation not found", nil)
		return
	}
	respond.OK(c, overlay)
}

func (h *Handler) collapse(c *gin.Context) {
	h.current(c).Surface.Collapse()
	c.Status(http.StatusNoContent)
}

func (h *Handler) cardImage(c *gin.Context) {
	mode, err := chartspec.ParseMode(c.Query("mode"))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "mode must be compact or expanded", nil)
		return
	}
	format, err := gallery.ParseFormat(c.Query("format"))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "format must be png or svg", nil)
		return
	}

	var buf bytes.Buffer
	err = h.current(c).Surface.RenderCard(c.Request.Context(), c.Param("id"), mode, format, &buf)
	switch {
	case err == nil:
	case errors.Is(err, gallery.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "recommendation not found", nil)
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusServiceUnavailable, "render_cancelled", "render was cancelled", nil)
		return
	case errors.Is(err, gallery.ErrRenderFailed):
		respond.Error(c, http.StatusInternalServerError, "render_failed", "failed to render chart", nil)
		return
	default:
		respond.Error(c, http.StatusUnprocessableEntity, "unsupported_chart", err.Error(), nil)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}
