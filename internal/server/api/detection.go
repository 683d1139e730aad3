package api

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/detect"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/vocab"
)

// HealthChecker is implemented by detectors that expose a health probe.
type HealthChecker interface {
	Health(ctx context.Context) (*detect.Health, error)
}

// ClassLister is implemented by detectors that can list their classes.
type ClassLister interface {
	Classes(ctx context.Context) (*detect.Classes, error)
}

// DetectionHandler proxies still images to the detector.
type DetectionHandler struct {
	detector  detect.Detector
	source    vocab.Source
	threshold float64
	logger    *zap.SugaredLogger
}

// NewDetectionHandler creates a handler. source backs /classes when the
// detector cannot list its own classes.
func NewDetectionHandler(d detect.Detector, source vocab.Source, threshold float64, logger *zap.SugaredLogger) *DetectionHandler {
	return &DetectionHandler{detector: d, source: source, threshold: threshold, logger: logging.OrNop(logger)}
}

type detectRequest struct {
	Image      string   `json:"image" binding:"required"`
	Confidence *float64 `json:"confidence"`
}

// Detect handles POST /api/detection/detect.
func (h *DetectionHandler) Detect(c *gin.Context) {
	var req detectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}

	img, err := decodeImage(req.Image)
	if err != nil || len(img) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "image must be base64 encoded"})
		return
	}

	threshold := h.threshold
	if req.Confidence != nil {
		threshold = *req.Confidence
	}
	if threshold < 0 || threshold > 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "confidence must be between 0 and 1"})
		return
	}

	res, err := h.detector.Detect(c.Request.Context(), img, threshold)
	switch {
	case err == nil:
		if res.Detections == nil {
			res.Detections = []detect.Detection{}
		}
		res.Count = len(res.Detections)
		c.JSON(http.StatusOK, res)
	case errors.Is(err, detect.ErrTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"success": false, "error": "timeout"})
	default:
		h.logger.Warnw("detection proxy failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "detector_error"})
	}
}

// Health handles GET /api/detection/health.
func (h *DetectionHandler) Health(c *gin.Context) {
	hc, ok := h.detector.(HealthChecker)
	if !ok {
		c.JSON(http.StatusOK, detect.Health{Status: "ok", ModelLoaded: true})
		return
	}

	health, err := hc.Health(c.Request.Context())
	if err != nil {
		h.logger.Warnw("detector health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, detect.Health{Status: "unavailable"})
		return
	}
	c.JSON(http.StatusOK, health)
}

// Classes handles GET /api/detection/classes.
func (h *DetectionHandler) Classes(c *gin.Context) {
	if cl, ok := h.detector.(ClassLister); ok {
		classes, err := cl.Classes(c.Request.Context())
		if err != nil {
			h.logger.Warnw("detector class listing failed", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "detector_error"})
			return
		}
		c.JSON(http.StatusOK, classes)
		return
	}

	if h.source == nil {
		c.JSON(http.StatusOK, detect.Classes{Classes: map[string]string{}})
		return
	}
	items, err := h.source.List(c.Request.Context())
	if err != nil {
		h.logger.Errorw("failed to list vocabulary", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	labels := vocab.Labels(items)
	c.JSON(http.StatusOK, detect.Classes{Classes: labels, Count: len(labels)})
}

// decodeImage accepts raw base64 or a data URL.
func decodeImage(s string) ([]byte, error) {
	if i := strings.Index(s, ","); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+1:]
	}
	return base64.StdEncoding.DecodeString(s)
}
