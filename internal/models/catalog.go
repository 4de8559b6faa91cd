package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CatalogStatus represents the lifecycle status of a catalog item
type CatalogStatus string

const (
	CatalogStatusActive   CatalogStatus = "ACTIVE"
	CatalogStatusDraft    CatalogStatus = "DRAFT"
	CatalogStatusArchived CatalogStatus = "ARCHIVED"
)

// CatalogItem is the canonical product record. FeedID and ExternalID stay
// null until the item is linked to the supplier feed and the commerce
// platform respectively. At most one item may own a given ExternalID.
type CatalogItem struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`

	// Identity links
	FeedID     *string `gorm:"type:varchar(255);index:idx_catalog_items_feed" json:"feedId,omitempty"`
	ExternalID *string `gorm:"type:varchar(255);uniqueIndex:idx_catalog_items_external" json:"externalId,omitempty"`

	// Product fields
	Title       string  `gorm:"type:varchar(500);not null" json:"title"`
	Description string  `gorm:"type:text" json:"description,omitempty"`
	Vendor      string  `gorm:"type:varchar(255);index:idx_catalog_items_vendor" json:"vendor,omitempty"`
	Category    *string `gorm:"type:varchar(500)" json:"category,omitempty"`

	Status CatalogStatus `gorm:"type:varchar(50);not null;default:'DRAFT';index:idx_catalog_items_status" json:"status"`
	Tags   StringArray   `gorm:"type:jsonb;default:'[]'" json:"tags,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`

	// Relationships
	Variants []CatalogVariant `gorm:"foreignKey:CatalogItemID" json:"variants,omitempty"`
	Media    []MediaAsset     `gorm:"foreignKey:CatalogItemID" json:"media,omitempty"`
}

// TableName specifies the table name for CatalogItem
func (CatalogItem) TableName() string {
	return "catalog_items"
}

// CatalogVariant is a SKU-level record owned by exactly one CatalogItem.
// Variants are created, updated and soft-removed only by sync operations.
type CatalogVariant struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CatalogItemID uuid.UUID `gorm:"type:uuid;not null;index:idx_catalog_variants_item" json:"catalogItemId"`

	Title string  `gorm:"type:varchar(500)" json:"title,omitempty"`
	SKU   *string `gorm:"type:varchar(255);uniqueIndex:idx_catalog_variants_sku" json:"sku,omitempty"`

	Price             decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"price"`
	InventoryQuantity int             `gorm:"not null;default:0" json:"inventoryQuantity"`

	// External identifiers
	ExternalID              *string `gorm:"type:varchar(255);index:idx_catalog_variants_external" json:"externalId,omitempty"`
	ExternalInventoryItemID *string `gorm:"type:varchar(255);index:idx_catalog_variants_inv_item" json:"externalInventoryItemId,omitempty"`

	Status CatalogStatus `gorm:"type:varchar(50);not null;default:'ACTIVE'" json:"status"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`

	CatalogItem *CatalogItem `gorm:"foreignKey:CatalogItemID" json:"catalogItem,omitempty"`
}

// TableName specifies the table name for CatalogVariant
func (CatalogVariant) TableName() string {
	return "catalog_variants"
}

// MediaState tracks the staged-upload progress of a single asset.
type MediaState string

const (
	MediaPending            MediaState = "PENDING"
	MediaValidated          MediaState = "VALIDATED"
	MediaStagedCreated      MediaState = "STAGED_UPLOAD_CREATED"
	MediaUploadedToStorage  MediaState = "UPLOADED_TO_STORAGE"
	MediaRecordCreated      MediaState = "MEDIA_RECORD_CREATED"
	MediaAvailable          MediaState = "AVAILABLE"
	MediaProcessingTimedOut MediaState = "PROCESSING_TIMED_OUT"
)

// MediaAsset is an image belonging to exactly one CatalogItem. ExternalID is
// null until the platform media record exists; ExternalURL stays null until
// the platform finishes its asynchronous image processing.
type MediaAsset struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CatalogItemID uuid.UUID `gorm:"type:uuid;not null;index:idx_media_assets_item" json:"catalogItemId"`

	SourcePath string `gorm:"type:varchar(1000);not null" json:"sourcePath"`
	AltText    string `gorm:"type:varchar(500)" json:"altText,omitempty"`
	Position   int    `gorm:"not null;default:0" json:"position"`
	IsPrimary  bool   `gorm:"not null;default:false" json:"isPrimary"`

	ExternalID  *string `gorm:"type:varchar(255)" json:"externalId,omitempty"`
	ExternalURL *string `gorm:"type:varchar(1000)" json:"externalUrl,omitempty"`

	State MediaState `gorm:"type:varchar(50);not null;default:'PENDING'" json:"state"`

	// Set when the platform accepted the media record but never reported a
	// final URL; a later reconciliation pass re-polls these.
	NeedsReconcile bool `gorm:"not null;default:false;index:idx_media_assets_reconcile" json:"needsReconcile"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName specifies the table name for MediaAsset
func (MediaAsset) TableName() string {
	return "media_assets"
}
