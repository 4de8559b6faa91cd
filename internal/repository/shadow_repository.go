package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"catalog-sync-service/internal/models"
)

var ErrNotFound = errors.New("not found")

// ShadowRepositoryInterface defines the contract for shadow state operations
type ShadowRepositoryInterface interface {
	GetByItemKey(ctx context.Context, itemKey string) (*models.ShadowRecord, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.ShadowRecord, error)
	ListActive(ctx context.Context) ([]models.ShadowRecord, error)
	Upsert(ctx context.Context, record *models.ShadowRecord) error
	Archive(ctx context.Context, itemKey string) error
	TouchPlatformUpdate(ctx context.Context, itemKey string, at time.Time) error
}

// ShadowRepository handles database operations for shadow records
type ShadowRepository struct {
	db *gorm.DB
}

// NewShadowRepository creates a new ShadowRepository
func NewShadowRepository(db *gorm.DB) *ShadowRepository {
	return &ShadowRepository{db: db}
}

// GetByItemKey retrieves the shadow record for one item key
func (r *ShadowRepository) GetByItemKey(ctx context.Context, itemKey string) (*models.ShadowRecord, error) {
	var record models.ShadowRecord
	err := r.db.WithContext(ctx).Where("item_key = ?", itemKey).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// GetByExternalID retrieves the shadow record linked to a platform product
func (r *ShadowRepository) GetByExternalID(ctx context.Context, externalID string) (*models.ShadowRecord, error) {
	var record models.ShadowRecord
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// ListActive retrieves all non-archived shadow records
func (r *ShadowRepository) ListActive(ctx context.Context) ([]models.ShadowRecord, error) {
	var records []models.ShadowRecord
	err := r.db.WithContext(ctx).Where("archived = false").Find(&records).Error
	return records, err
}

// Upsert inserts or replaces the shadow record for its item key
func (r *ShadowRepository) Upsert(ctx context.Context, record *models.ShadowRecord) error {
	record.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "item_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"feed_id", "external_id", "catalog_item_id", "state",
			"archived", "last_platform_update_at", "updated_at",
		}),
	}).Create(record).Error
}

// Archive marks a shadow record as no longer live on the platform
func (r *ShadowRepository) Archive(ctx context.Context, itemKey string) error {
	return r.db.WithContext(ctx).Model(&models.ShadowRecord{}).
		Where("item_key = ?", itemKey).
		Updates(map[string]interface{}{
			"archived":   true,
			"updated_at": time.Now(),
		}).Error
}

// TouchPlatformUpdate records the newest platform-originated change time
func (r *ShadowRepository) TouchPlatformUpdate(ctx context.Context, itemKey string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.ShadowRecord{}).
		Where("item_key = ?", itemKey).
		Updates(map[string]interface{}{
			"last_platform_update_at": at,
			"updated_at":              time.Now(),
		}).Error
}
