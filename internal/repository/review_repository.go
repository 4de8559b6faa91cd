package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"catalog-sync-service/internal/models"
)

// ReviewRepositoryInterface defines the contract for the manual review queue
type ReviewRepositoryInterface interface {
	CreateConflict(ctx context.Context, conflict *models.Conflict) error
	GetConflict(ctx context.Context, id uuid.UUID) (*models.Conflict, error)
	ListUnresolved(ctx context.Context, limit, offset int) ([]models.Conflict, int64, error)
	ListByRun(ctx context.Context, runID uuid.UUID) ([]models.Conflict, error)
	Resolve(ctx context.Context, id uuid.UUID, resolution string) error
	ListApprovedDeletions(ctx context.Context) ([]models.Conflict, error)
	MarkApplied(ctx context.Context, id uuid.UUID) error
}

// ReviewRepository handles database operations for the manual review queue
type ReviewRepository struct {
	db *gorm.DB
}

// NewReviewRepository creates a new ReviewRepository
func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// CreateConflict queues a conflict for review
func (r *ReviewRepository) CreateConflict(ctx context.Context, conflict *models.Conflict) error {
	return r.db.WithContext(ctx).Create(conflict).Error
}

// GetConflict retrieves a conflict by ID
func (r *ReviewRepository) GetConflict(ctx context.Context, id uuid.UUID) (*models.Conflict, error) {
	var conflict models.Conflict
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conflict).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conflict, nil
}

// ListUnresolved retrieves open conflicts, oldest first
func (r *ReviewRepository) ListUnresolved(ctx context.Context, limit, offset int) ([]models.Conflict, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Conflict{}).Where("resolved = false")

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 20
	}

	var conflicts []models.Conflict
	err := query.Order("created_at ASC").Limit(limit).Offset(offset).Find(&conflicts).Error
	return conflicts, total, err
}

// ListByRun retrieves every conflict queued by one run
func (r *ReviewRepository) ListByRun(ctx context.Context, runID uuid.UUID) ([]models.Conflict, error) {
	var conflicts []models.Conflict
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("created_at ASC").
		Find(&conflicts).Error
	return conflicts, err
}

// ListApprovedDeletions returns resolved deletion conflicts approved for
// archive whose resolution has not been executed yet, oldest approval first.
func (r *ReviewRepository) ListApprovedDeletions(ctx context.Context) ([]models.Conflict, error) {
	var conflicts []models.Conflict
	err := r.db.WithContext(ctx).
		Where("kind = ? AND resolved = true AND applied = false AND resolution = ?",
			models.ConflictDeletion, models.ResolutionArchive).
		Order("resolved_at ASC").
		Find(&conflicts).Error
	return conflicts, err
}

// MarkApplied records that a run executed the conflict's resolution
func (r *ReviewRepository) MarkApplied(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Conflict{}).
		Where("id = ?", id).
		Update("applied", true).Error
}

// Resolve marks a conflict as handled
func (r *ReviewRepository) Resolve(ctx context.Context, id uuid.UUID, resolution string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.Conflict{}).
		Where("id = ? AND resolved = false", id).
		Updates(map[string]interface{}{
			"resolved":    true,
			"resolved_at": now,
			"resolution":  resolution,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
