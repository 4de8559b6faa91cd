package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"catalog-sync-service/internal/models"
)

// WebhookRepositoryInterface defines the contract for webhook event storage
type WebhookRepositoryInterface interface {
	CreateEvent(ctx context.Context, event *models.WebhookEvent) error
	ExistsWithIdempotencyKey(ctx context.Context, key string) (bool, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, processingError string) error
	ListUnprocessed(ctx context.Context, limit int) ([]models.WebhookEvent, error)
}

// WebhookRepository handles database operations for webhook events
type WebhookRepository struct {
	db *gorm.DB
}

// NewWebhookRepository creates a new WebhookRepository
func NewWebhookRepository(db *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// CreateEvent stores a received webhook event
func (r *WebhookRepository) CreateEvent(ctx context.Context, event *models.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// ExistsWithIdempotencyKey checks whether a delivery was already received
func (r *WebhookRepository) ExistsWithIdempotencyKey(ctx context.Context, key string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("idempotency_key = ?", key).
		Count(&count).Error
	return count > 0, err
}

// MarkProcessed records the terminal processing outcome of an event
func (r *WebhookRepository) MarkProcessed(ctx context.Context, id uuid.UUID, processingError string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed":        true,
			"processed_at":     now,
			"processing_error": processingError,
		}).Error
}

// ListUnprocessed retrieves events that have not reached a terminal outcome
func (r *WebhookRepository) ListUnprocessed(ctx context.Context, limit int) ([]models.WebhookEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []models.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("processed = false").
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
