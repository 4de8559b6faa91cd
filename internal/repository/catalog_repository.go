package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"catalog-sync-service/internal/models"
)

// CatalogRepositoryInterface defines the contract for catalog persistence
type CatalogRepositoryInterface interface {
	GetItemByFeedID(ctx context.Context, feedID string) (*models.CatalogItem, error)
	GetItemByExternalID(ctx context.Context, externalID string) (*models.CatalogItem, error)
	UpsertItem(ctx context.Context, item *models.CatalogItem) error
	UpdateItemFields(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	GetVariantBySKU(ctx context.Context, sku string) (*models.CatalogVariant, error)
	UpsertVariant(ctx context.Context, variant *models.CatalogVariant) error
	SetVariantInventoryByExternalItemID(ctx context.Context, inventoryItemID string, quantity int) (int64, error)
	SaveMediaAsset(ctx context.Context, asset *models.MediaAsset) error
	ListMediaNeedingReconcile(ctx context.Context, limit int) ([]models.MediaAsset, error)
}

// CatalogRepository handles database operations for catalog items
type CatalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository creates a new CatalogRepository
func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// GetItemByFeedID retrieves a catalog item by its feed identifier
func (r *CatalogRepository) GetItemByFeedID(ctx context.Context, feedID string) (*models.CatalogItem, error) {
	var item models.CatalogItem
	err := r.db.WithContext(ctx).
		Preload("Variants").
		Preload("Media").
		Where("feed_id = ?", feedID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// GetItemByExternalID retrieves a catalog item by its platform identifier
func (r *CatalogRepository) GetItemByExternalID(ctx context.Context, externalID string) (*models.CatalogItem, error) {
	var item models.CatalogItem
	err := r.db.WithContext(ctx).
		Preload("Variants").
		Preload("Media").
		Where("external_id = ?", externalID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// UpsertItem saves a catalog item with its associations
func (r *CatalogRepository) UpsertItem(ctx context.Context, item *models.CatalogItem) error {
	item.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).
		Session(&gorm.Session{FullSaveAssociations: true}).
		Save(item).Error
}

// UpdateItemFields applies a partial update to a catalog item
func (r *CatalogRepository) UpdateItemFields(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	return r.db.WithContext(ctx).Model(&models.CatalogItem{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// GetVariantBySKU retrieves a variant by SKU
func (r *CatalogRepository) GetVariantBySKU(ctx context.Context, sku string) (*models.CatalogVariant, error) {
	var variant models.CatalogVariant
	err := r.db.WithContext(ctx).Where("sku = ?", sku).First(&variant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &variant, nil
}

// UpsertVariant inserts or updates a variant keyed by SKU
func (r *CatalogRepository) UpsertVariant(ctx context.Context, variant *models.CatalogVariant) error {
	variant.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "sku"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "price", "inventory_quantity", "external_id",
			"external_inventory_item_id", "status", "updated_at",
		}),
	}).Create(variant).Error
}

// SetVariantInventoryByExternalItemID sets the absolute inventory quantity
// for the variant linked to a platform inventory item. Returns the number of
// rows touched so callers can tell an unknown item from a real update.
func (r *CatalogRepository) SetVariantInventoryByExternalItemID(ctx context.Context, inventoryItemID string, quantity int) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.CatalogVariant{}).
		Where("external_inventory_item_id = ?", inventoryItemID).
		Updates(map[string]interface{}{
			"inventory_quantity": quantity,
			"updated_at":         time.Now(),
		})
	return result.RowsAffected, result.Error
}

// SaveMediaAsset persists a media asset and its upload state
func (r *CatalogRepository) SaveMediaAsset(ctx context.Context, asset *models.MediaAsset) error {
	asset.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(asset).Error
}

// ListMediaNeedingReconcile retrieves assets whose final URL is still
// unknown and must be re-queried against the platform
func (r *CatalogRepository) ListMediaNeedingReconcile(ctx context.Context, limit int) ([]models.MediaAsset, error) {
	if limit <= 0 {
		limit = 100
	}
	var assets []models.MediaAsset
	err := r.db.WithContext(ctx).
		Where("needs_reconcile = true").
		Order("updated_at ASC").
		Limit(limit).
		Find(&assets).Error
	return assets, err
}
