// Package api provides the HTTP handlers for the mudra practice API.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/vocab"
)

// VocabularyHandler serves the practice vocabulary.
type VocabularyHandler struct {
	source vocab.Source
	logger *zap.SugaredLogger
}

// NewVocabularyHandler creates a handler over source.
func NewVocabularyHandler(source vocab.Source, logger *zap.SugaredLogger) *VocabularyHandler {
	return &VocabularyHandler{source: source, logger: logging.OrNop(logger)}
}

// List handles GET /api/vocabulary.
func (h *VocabularyHandler) List(c *gin.Context) {
	items, err := h.source.List(c.Request.Context())
	if err != nil {
		h.logger.Errorw("failed to list vocabulary", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if items == nil {
		items = []vocab.Item{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// Get handles GET /api/vocabulary/:classId.
func (h *VocabularyHandler) Get(c *gin.Context) {
	item, err := h.source.GetByClassID(c.Request.Context(), c.Param("classId"))
	if errors.Is(err, vocab.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Errorw("failed to get vocabulary item", "class_id", c.Param("classId"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, item)
}
