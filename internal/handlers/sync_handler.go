package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/repository"
	"catalog-sync-service/internal/services"
)

// SyncHandler handles sync run endpoints
type SyncHandler struct {
	orchestrator *services.SyncOrchestrator
	syncRepo     repository.SyncRepositoryInterface
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(orchestrator *services.SyncOrchestrator, syncRepo repository.SyncRepositoryInterface) *SyncHandler {
	return &SyncHandler{
		orchestrator: orchestrator,
		syncRepo:     syncRepo,
	}
}

// StartRunRequest represents the request to start a sync run
type StartRunRequest struct {
	DryRun     bool    `json:"dryRun"`
	ResumeFrom *string `json:"resumeFrom"`
	// ResumeFromItem restarts the plan at this item key; items ordered
	// before it are skipped.
	ResumeFromItem string `json:"resumeFromItem"`
}

// StartRun starts a new sync run. Returns 409 when a run is already in
// flight anywhere in the deployment.
func (h *SyncHandler) StartRun(c *gin.Context) {
	var req StartRunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	opts := services.RunOptions{
		DryRun:         req.DryRun,
		TriggeredBy:    models.TriggerManual,
		ResumeFromItem: req.ResumeFromItem,
	}
	if req.ResumeFrom != nil {
		id, err := uuid.Parse(*req.ResumeFrom)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resumeFrom id"})
			return
		}
		opts.ResumeFrom = &id
	}

	run, err := h.orchestrator.StartRun(c.Request.Context(), opts)
	if err != nil {
		if errors.Is(err, services.ErrRunLocked) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"data": run})
}

// ListRuns returns sync runs, newest first
func (h *SyncHandler) ListRuns(c *gin.Context) {
	opts := repository.RunListOptions{
		State: models.RunState(c.Query("state")),
		Limit: parseIntQuery(c, "limit", 50),
	}
	opts.Offset = parseIntQuery(c, "offset", 0)

	runs, total, err := h.syncRepo.ListRuns(c.Request.Context(), opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  runs,
		"total": total,
	})
}

// GetRun returns a single sync run
func (h *SyncHandler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	run, err := h.syncRepo.GetRun(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": run})
}

// GetRunLogs returns the audit log entries for a run
func (h *SyncHandler) GetRunLogs(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	logs, err := h.syncRepo.GetRunLogs(c.Request.Context(), id, parseIntQuery(c, "limit", 500))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": logs})
}

func parseIntQuery(c *gin.Context, key string, defaultValue int) int {
	value := c.Query(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return defaultValue
	}
	return parsed
}
