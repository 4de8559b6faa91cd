package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"catalog-sync-service/internal/repository"
)

// ReviewHandler handles the manual conflict review queue
type ReviewHandler struct {
	reviewRepo repository.ReviewRepositoryInterface
}

// NewReviewHandler creates a new review handler
func NewReviewHandler(reviewRepo repository.ReviewRepositoryInterface) *ReviewHandler {
	return &ReviewHandler{reviewRepo: reviewRepo}
}

// ListConflicts returns unresolved conflicts with pagination
func (h *ReviewHandler) ListConflicts(c *gin.Context) {
	limit := parseIntQuery(c, "limit", 50)
	offset := parseIntQuery(c, "offset", 0)

	conflicts, total, err := h.reviewRepo.ListUnresolved(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   conflicts,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetConflict returns a single conflict
func (h *ReviewHandler) GetConflict(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	conflict, err := h.reviewRepo.GetConflict(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conflict not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": conflict})
}

// ResolveConflictRequest represents the request to resolve a conflict
type ResolveConflictRequest struct {
	Resolution string `json:"resolution" binding:"required"`
}

// ResolveConflict marks a queued conflict as resolved
func (h *ReviewHandler) ResolveConflict(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req ResolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.reviewRepo.Resolve(c.Request.Context(), id, req.Resolution); err != nil {
		if err == repository.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "conflict not found or already resolved"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "conflict resolved"})
}
