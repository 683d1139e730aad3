package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/auth"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/session"
)

// Practice is the practice loop controlled over HTTP.
type Practice interface {
	StartPractice(ctx context.Context, id auth.Identity) error
	StartCamera(ctx context.Context) error
	StopCamera() error
	Skip()
	Exit() error
	State() app.State
}

// PracticeHandler exposes practice controls.
type PracticeHandler struct {
	practice Practice
	// ctx bounds camera runs started over HTTP; request contexts end too early.
	ctx    context.Context
	logger *zap.SugaredLogger
}

// NewPracticeHandler creates a handler. Camera runs it starts stop when ctx is cancelled.
func NewPracticeHandler(ctx context.Context, p Practice, logger *zap.SugaredLogger) *PracticeHandler {
	return &PracticeHandler{practice: p, ctx: ctx, logger: logging.OrNop(logger)}
}

// Start handles POST /api/practice/start. With a session already active it
// retries the camera.
func (h *PracticeHandler) Start(c *gin.Context) {
	err := h.practice.StartPractice(h.ctx, auth.FromContext(c))
	if errors.Is(err, session.ErrActive) {
		err = h.practice.StartCamera(h.ctx)
	}

	var de *capture.DeviceError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, h.practice.State())
	case errors.Is(err, session.ErrNoItems):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no_vocabulary"})
	case errors.As(err, &de):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "camera_unavailable",
			"message": de.UserMessage(),
			"state":   h.practice.State(),
		})
	default:
		h.logger.Errorw("failed to start practice", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

// Stop handles POST /api/practice/stop.
func (h *PracticeHandler) Stop(c *gin.Context) {
	if err := h.practice.StopCamera(); err != nil {
		h.logger.Warnw("failed to stop camera", "error", err)
	}
	c.JSON(http.StatusOK, h.practice.State())
}

// Skip handles POST /api/practice/skip.
func (h *PracticeHandler) Skip(c *gin.Context) {
	h.practice.Skip()
	c.JSON(http.StatusOK, h.practice.State())
}

// Exit handles POST /api/practice/exit.
func (h *PracticeHandler) Exit(c *gin.Context) {
	if err := h.practice.Exit(); err != nil {
		h.logger.Warnw("failed to release camera on exit", "error", err)
	}
	c.JSON(http.StatusOK, h.practice.State())
}

// State handles GET /api/practice/state.
func (h *PracticeHandler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.practice.State())
}
