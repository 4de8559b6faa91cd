package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"catalog-sync-service/internal/services"
)

// MediaHandler handles media reconciliation endpoints
type MediaHandler struct {
	service *services.MediaService
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(service *services.MediaService) *MediaHandler {
	return &MediaHandler{service: service}
}

// ReconcilePending re-checks media assets whose platform processing timed
// out, resolving those that became available since.
func (h *MediaHandler) ReconcilePending(c *gin.Context) {
	resolved, err := h.service.ReconcilePending(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"resolved": resolved})
}
