package session

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"chartyap-backend/internal/orchestrator"
	"chartyap-backend/internal/recommendations"
	"chartyap-backend/internal/runs"
	"chartyap-backend/internal/shared/server/middleware"
	"chartyap-backend/internal/shared/server/respond"
	"chartyap-backend/internal/shared/telemetry"
	"chartyap-backend/internal/staging"
)

const (
	previewRowLimit   = 5
	defaultRunsLimit  = 20
	defaultUploadMax  = 25 << 20
	defaultHeartbeat  = 25 * time.Second
	previewPathFormat = "/api/v1/staging/style/preview?v=%d"
)

// Handler exposes per-session operations over HTTP.
type Handler struct {
	Sessions       *Manager
	Runs           runs.Repo
	UploadMaxBytes int64
	Heartbeat      time.Duration
}

// NewHandler constructs a Handler. runRepo may be nil.
func NewHandler(sessions *Manager, runRepo runs.Repo, uploadMaxBytes int64) *Handler {
	if uploadMaxBytes <= 0 {
		uploadMaxBytes = defaultUploadMax
	}
	return &Handler{
		Sessions:       sessions,
		Runs:           runRepo,
		UploadMaxBytes: uploadMaxBytes,
		Heartbeat:      defaultHeartbeat,
	}
}

// RegisterRoutes attaches session routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/staging/data", h.stageData)
	rg.POST("/staging/style", h.stageStyle)
	rg.GET("/staging", h.getStaging)
	rg.GET("/staging/style/preview", h.getPreview)

	rg.POST("/generate", h.generate)
	rg.GET("/session", h.getSession)
	rg.GET("/session/events", h.streamEvents)

	rg.GET("/gallery", h.listCards)
	rg.GET("/gallery/expanded", h.getExpanded)
	rg.PUT("/gallery/expanded", h.expand)
	rg.DELETE("/gallery/expanded", h.collapse)
	rg.GET("/gallery/cards/:id/image", h.cardImage)

	rg.GET("/runs", h.listRuns)
}

func (h *Handler) current(c *gin.Context) *Session {
	return h.Sessions.Get(middleware.SessionIDFromContext(c))
}

func (h *Handler) stageData(c *gin.Context) {
	h.stage(c, staging.SlotData)
}

func (h *Handler) stageStyle(c *gin.Context) {
	h.stage(c, staging.SlotStyle)
}

func (h *Handler) stage(c *gin.Context, slot staging.Slot) {
	if c.Request.ContentLength > h.UploadMaxBytes {
		respond.Error(c, http.StatusRequestEntityTooLarge, "file_too_large", "file exceeds upload limit", gin.H{"maxBytes": h.UploadMaxBytes})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.UploadMaxBytes)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "file_too_large", "file exceeds upload limit", gin.H{"maxBytes": h.UploadMaxBytes})
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	if !slot.Accepts(fileHeader.Filename) {
		respond.Error(c, http.StatusUnsupportedMediaType, "unsupported_file_type", "file type is not accepted for this slot", gin.H{"slot": slot})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	s := h.current(c)
	var staged staging.StagedFile
	switch slot {
	case staging.SlotStyle:
		staged, err = s.Staging.StageStyle(c.Request.Context(), fileHeader.Filename, file)
	default:
		staged, err = s.Staging.StageData(c.Request.Context(), fileHeader.Filename, file)
	}
	if err != nil {
		if errors.Is(err, staging.ErrUnsupportedType) {
			respond.Error(c, http.StatusUnsupportedMediaType, "unsupported_file_type", "file type is not accepted for this slot", gin.H{"slot": slot})
			return
		}
		telemetry.Error("staging.failed", map[string]any{"session_id": s.ID, "slot": string(slot), "error": err})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to stage file", nil)
		return
	}

	telemetry.Info("staging.staged", map[string]any{
		"session_id": s.ID,
		"slot":       string(slot),
		"file_name":  staged.FileName,
		"size_bytes": staged.SizeBytes,
	})
	respond.JSON(c, http.StatusCreated, stagingView(s.Staging.Snapshot()))
}

type stagingResponse struct {
	staging.Snapshot
	PreviewURL string `json:"previewUrl,omitempty"`
}

func stagingView(snap staging.Snapshot) stagingResponse {
	resp := stagingResponse{Snapshot: snap}
	if snap.Preview != nil {
		resp.PreviewURL = fmt.Sprintf(previewPathFormat, snap.Preview.Version)
	}
	return resp
}

func (h *Handler) getStaging(c *gin.Context) {
	respond.OK(c, stagingView(h.current(c).Staging.Snapshot()))
}

func (h *Handler) getPreview(c *gin.Context) {
	s := h.current(c)
	p, rc, err := s.Staging.OpenPreview(c.Request.Context())
	if err != nil {
		if errors.Is(err, staging.ErrNoPreview) {
			respond.Error(c, http.StatusNotFound, "not_found", "no style preview", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to open preview", nil)
		return
	}
	defer rc.Close()

	c.Header("Cache-Control", "no-store")
	c.Header("X-Preview-Version", strconv.Itoa(p.Version))
	c.DataFromReader(http.StatusOK, -1, "image/png", rc, nil)
}

func (h *Handler) generate(c *gin.Context) {
	s := h.current(c)
	runID, err := s.Orchestrator.Start(c.Request.Context())
	if err != nil {
		reason := "internal_error"
		switch {
		case errors.Is(err, orchestrator.ErrAlreadyRunning):
			reason = "already_running"
		case errors.Is(err, orchestrator.ErrDataNotReady):
			reason = "data_not_ready"
		default:
			respond.Error(c, http.StatusInternalServerError, reason, "failed to start generation", nil)
			return
		}
		respond.JSON(c, http.StatusAccepted, gin.H{"started": false, "reason": reason})
		return
	}
	respond.JSON(c, http.StatusAccepted, gin.H{"started": true, "runId": runID})
}

type sessionResponse struct {
	Status          orchestrator.Status              `json:"status"`
	Running         bool                             `json:"running"`
	RunID           string                           `json:"runId,omitempty"`
	PreviewRows     []recommendations.Row            `json:"previewRows"`
	Columns         []string                         `json:"columns"`
	RowCount        int                              `json:"rowCount"`
	Recommendations []recommendations.Recommendation `json:"recommendations"`
	DetectedStyle   recommendations.DetectedStyle    `json:"detectedStyle"`
	Notice          string                           `json:"notice,omitempty"`
	CanGenerate     bool                             `json:"canGenerate"`
	ExpandedID      string                           `json:"expandedId,omitempty"`
	Staging         stagingResponse                  `json:"staging"`
}

func sessionView(s *Session) sessionResponse {
	snap := s.Orchestrator.Snapshot()
	rows := snap.Result.PreviewRows
	if len(rows) > previewRowLimit {
		rows = rows[:previewRowLimit]
	}
	resp := sessionResponse{
		Status:          snap.Status,
		Running:         snap.Running(),
		RunID:           snap.RunID,
		PreviewRows:     append([]recommendations.Row{}, rows...),
		Columns:         append([]string{}, snap.Result.Columns...),
		RowCount:        snap.Result.RowCount,
		Recommendations: append([]recommendations.Recommendation{}, snap.Result.Recommendations...),
		DetectedStyle:   snap.DetectedStyle,
		Notice:          snap.Notice,
		CanGenerate:     snap.CanGenerate,
		Staging:         stagingView(s.Staging.Snapshot()),
	}
	if id, ok := s.Surface.ExpandedID(); ok {
		resp.ExpandedID = id
	}
	return resp
}

func (h *Handler) getSession(c *gin.Context) {
	respond.OK(c, sessionView(h.current(c)))
}

func (h *Handler) listRuns(c *gin.Context) {
	sessionID := middleware.SessionIDFromContext(c)
	if h.Runs == nil {
		respond.OK(c, gin.H{"runs": []runs.Run{}})
		return
	}
	limit := defaultRunsLimit
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	list, err := h.Runs.ListBySession(c.Request.Context(), sessionID, limit)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list runs", nil)
		return
	}
	if list == nil {
		list = []runs.Run{}
	}
	respond.OK(c, gin.H{"runs": list})
}
