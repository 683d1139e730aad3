package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/auth"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/store"
)

// SessionsHandler manages practice session records for the signed-in learner.
type SessionsHandler struct {
	store  *store.Store
	logger *zap.SugaredLogger
}

// NewSessionsHandler creates a handler over s.
func NewSessionsHandler(s *store.Store, logger *zap.SugaredLogger) *SessionsHandler {
	return &SessionsHandler{store: s, logger: logging.OrNop(logger)}
}

type createSessionRequest struct {
	Mode   string `json:"mode"`
	SignID string `json:"signId"`
}

type completeSessionRequest struct {
	Attempts  int `json:"attempts" binding:"min=0"`
	Successes int `json:"successes" binding:"min=0"`
}

type sessionResponse struct {
	ID          string     `json:"id"`
	Mode        string     `json:"mode"`
	SignID      string     `json:"signId,omitempty"`
	Attempts    int        `json:"attempts"`
	Successes   int        `json:"successes"`
	SuccessRate float64    `json:"successRate"`
	DurationMs  int64      `json:"durationMs"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func toSessionResponse(p *store.PracticeSession) sessionResponse {
	return sessionResponse{
		ID:          p.ID,
		Mode:        string(p.Mode),
		SignID:      p.SignID,
		Attempts:    p.Attempts,
		Successes:   p.Successes,
		SuccessRate: p.SuccessRate,
		DurationMs:  p.Duration.Milliseconds(),
		StartedAt:   p.StartedAt,
		CompletedAt: p.CompletedAt,
	}
}

// List handles GET /api/sessions.
func (h *SessionsHandler) List(c *gin.Context) {
	id := auth.FromContext(c)

	sessions, err := h.store.Sessions().ListByUser(c.Request.Context(), id.UserID)
	if err != nil {
		h.logger.Errorw("failed to list sessions", "user", id.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	resp := make([]sessionResponse, 0, len(sessions))
	for _, p := range sessions {
		resp = append(resp, toSessionResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": resp, "count": len(resp)})
}

// Create handles POST /api/sessions.
func (h *SessionsHandler) Create(c *gin.Context) {
	var req createSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
			return
		}
	}

	mode := store.SessionMode(req.Mode)
	switch mode {
	case "":
		mode = store.ModePractice
	case store.ModePractice, store.ModeRealtime:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "mode must be practice or realtime"})
		return
	}

	sess := &store.PracticeSession{
		ID:     uuid.NewString(),
		UserID: auth.FromContext(c).UserID,
		Mode:   mode,
		SignID: req.SignID,
	}
	if err := h.store.Sessions().Create(c.Request.Context(), sess); err != nil {
		h.logger.Errorw("failed to create session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusCreated, toSessionResponse(sess))
}

// Complete handles POST /api/sessions/:id/complete.
func (h *SessionsHandler) Complete(c *gin.Context) {
	var req completeSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Successes > req.Attempts {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}

	ctx := c.Request.Context()
	sessionID := c.Param("id")

	sess, err := h.store.Sessions().GetByID(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && sess.UserID != auth.FromContext(c).UserID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Errorw("failed to load session", "session", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	if err := h.store.Sessions().Complete(ctx, sessionID, req.Attempts, req.Successes); err != nil {
		h.logger.Errorw("failed to complete session", "session", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	sess, err = h.store.Sessions().GetByID(ctx, sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(sess))
}
