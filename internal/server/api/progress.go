package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/auth"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/store"
)

// ProgressHandler serves per-sign progress for the signed-in learner.
type ProgressHandler struct {
	store  *store.Store
	logger *zap.SugaredLogger
}

// NewProgressHandler creates a handler over s.
func NewProgressHandler(s *store.Store, logger *zap.SugaredLogger) *ProgressHandler {
	return &ProgressHandler{store: s, logger: logging.OrNop(logger)}
}

type progressResponse struct {
	SignID        string    `json:"signId"`
	Attempts      int       `json:"attempts"`
	SuccessCount  int       `json:"successCount"`
	SuccessRate   float64   `json:"successRate"`
	Proficiency   string    `json:"proficiency"`
	LastPracticed time.Time `json:"lastPracticed"`
}

// List handles GET /api/progress.
func (h *ProgressHandler) List(c *gin.Context) {
	id := auth.FromContext(c)

	records, err := h.store.Progress().ListByUser(c.Request.Context(), id.UserID)
	if err != nil {
		h.logger.Errorw("failed to list progress", "user", id.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	resp := make([]progressResponse, 0, len(records))
	for _, p := range records {
		resp = append(resp, toProgressResponse(p))
	}

	c.JSON(http.StatusOK, gin.H{"progress": resp, "count": len(resp)})
}

// Get handles GET /api/progress/:signId.
func (h *ProgressHandler) Get(c *gin.Context) {
	id := auth.FromContext(c)
	signID := c.Param("signId")

	p, err := h.store.Progress().Get(c.Request.Context(), id.UserID, signID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Errorw("failed to get progress", "user", id.UserID, "sign", signID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, toProgressResponse(p))
}

type recordAttemptRequest struct {
	SignID  string `json:"signId" binding:"required"`
	Success *bool  `json:"success" binding:"required"`
}

// Record handles POST /api/progress. It adds one attempt on a vocabulary sign.
func (h *ProgressHandler) Record(c *gin.Context) {
	var req recordAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}

	ctx := c.Request.Context()
	id := auth.FromContext(c)

	if _, err := h.store.Vocabulary().GetByID(ctx, req.SignID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "unknown sign"})
			return
		}
		h.logger.Errorw("failed to look up sign", "sign", req.SignID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	p, err := h.store.Progress().RecordAttempt(ctx, id.UserID, req.SignID, *req.Success)
	if err != nil {
		h.logger.Errorw("failed to record attempt", "user", id.UserID, "sign", req.SignID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, toProgressResponse(p))
}

func toProgressResponse(p *store.Progress) progressResponse {
	r := progressResponse{
		SignID:        p.SignID,
		Attempts:      p.Attempts,
		SuccessCount:  p.SuccessCount,
		Proficiency:   string(p.Proficiency),
		LastPracticed: p.LastPracticed,
	}
	if p.Attempts > 0 {
		r.SuccessRate = float64(p.SuccessCount) / float64(p.Attempts)
	}
	return r
}
