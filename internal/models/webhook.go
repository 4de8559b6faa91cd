package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEventType is the inbound notification topic
type WebhookEventType string

const (
	WebhookProductCreated   WebhookEventType = "PRODUCT_CREATED"
	WebhookProductUpdated   WebhookEventType = "PRODUCT_UPDATED"
	WebhookProductDeleted   WebhookEventType = "PRODUCT_DELETED"
	WebhookInventoryUpdated WebhookEventType = "INVENTORY_UPDATED"
)

// WebhookEvent stores a received platform notification for dedup and replay
// visibility. IdempotencyKey makes duplicate deliveries no-ops.
type WebhookEvent struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`

	EventID   string           `gorm:"type:varchar(255);not null" json:"eventId"`
	EventType WebhookEventType `gorm:"type:varchar(100);not null;index:idx_webhook_events_type" json:"eventType"`

	Payload JSONB `gorm:"type:jsonb;not null" json:"payload"`

	Processed       bool       `gorm:"default:false;index:idx_webhook_events_processed" json:"processed"`
	ProcessedAt     *time.Time `json:"processedAt,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processingError,omitempty"`

	IdempotencyKey string `gorm:"type:varchar(255);uniqueIndex:idx_webhook_events_idempotency" json:"idempotencyKey"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
}

// TableName specifies the table name for WebhookEvent
func (WebhookEvent) TableName() string {
	return "webhook_events"
}

// ProductChangePayload is the validated shape of a product-change
// notification. Payloads are checked at the boundary; anything failing
// validation never reaches the upsert path.
type ProductChangePayload struct {
	ExternalID string                 `json:"id" validate:"required"`
	Title      string                 `json:"title" validate:"required"`
	Handle     string                 `json:"handle"`
	BodyHTML   string                 `json:"body_html"`
	Vendor     string                 `json:"vendor"`
	Status     string                 `json:"status" validate:"omitempty,oneof=active draft archived"`
	Tags       string                 `json:"tags"`
	Variants   []ProductChangeVariant `json:"variants" validate:"dive"`
	Images     []ProductChangeImage   `json:"images" validate:"dive"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at" validate:"required"`
}

// ProductChangeVariant is the variant portion of a product-change payload.
type ProductChangeVariant struct {
	ExternalID        string `json:"id" validate:"required"`
	Title             string `json:"title"`
	SKU               string `json:"sku"`
	Price             string `json:"price" validate:"required"`
	InventoryQuantity int    `json:"inventory_quantity" validate:"gte=0"`
	InventoryItemID   string `json:"inventory_item_id"`
	Position          int    `json:"position"`
}

// ProductChangeImage is the image portion of a product-change payload.
type ProductChangeImage struct {
	ExternalID string `json:"id"`
	Src        string `json:"src" validate:"required,url"`
	AltText    string `json:"alt"`
	Position   int    `json:"position"`
}

// InventoryChangePayload is the validated shape of an inventory-level
// notification.
type InventoryChangePayload struct {
	InventoryItemID string    `json:"inventory_item_id" validate:"required"`
	LocationID      string    `json:"location_id"`
	Available       int       `json:"available" validate:"gte=0"`
	UpdatedAt       time.Time `json:"updated_at" validate:"required"`
}
