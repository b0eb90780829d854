package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"contaluz/internal/service"
)

// HealthHandler reports service and collaborator status.
type HealthHandler struct {
	svc            *service.ExtractionService
	modelID        string
	maxConcurrency int64
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(svc *service.ExtractionService, modelID string, maxConcurrency int64) *HealthHandler {
	return &HealthHandler{svc: svc, modelID: modelID, maxConcurrency: maxConcurrency}
}

// Health handles GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":             "ok",
		"model":              h.modelID,
		"max_concurrency":    h.maxConcurrency,
		"engine_available":   h.svc.EngineAvailable(),
		"detector_available": h.svc.DetectorAvailable(),
	})
}
