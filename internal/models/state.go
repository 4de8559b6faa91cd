package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductState is the neutral product snapshot compared by the three-way
// diff. The feed parser, the platform client and the shadow store all
// produce or persist this shape so the conflict detector never sees
// source-specific payloads.
type ProductState struct {
	FeedID     string `json:"feedId,omitempty"`
	ExternalID string `json:"externalId,omitempty"`

	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Vendor      string   `json:"vendor,omitempty"`
	Category    string   `json:"category,omitempty"`
	Status      string   `json:"status"`
	Tags        []string `json:"tags,omitempty"`

	Variants []VariantState `json:"variants,omitempty"`
	Images   []ImageState   `json:"images,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// Key returns the canonical item key used to join feed, platform and shadow
// views: the feed id when the item is feed-linked, otherwise the platform id.
func (p *ProductState) Key() string {
	if p.FeedID != "" {
		return p.FeedID
	}
	return p.ExternalID
}

// VariantState is the variant portion of a ProductState snapshot.
type VariantState struct {
	SKU               string          `json:"sku"`
	Title             string          `json:"title,omitempty"`
	Price             decimal.Decimal `json:"price"`
	InventoryQuantity int             `json:"inventoryQuantity"`
	ExternalID        string          `json:"externalId,omitempty"`
	InventoryItemID   string          `json:"inventoryItemId,omitempty"`
}

// ImageState is the media portion of a ProductState snapshot.
type ImageState struct {
	SourcePath string `json:"sourcePath,omitempty"`
	URL        string `json:"url,omitempty"`
	AltText    string `json:"altText,omitempty"`
	Position   int    `json:"position"`
}

// VariantBySKU returns the variant with the given SKU, or nil.
func (p *ProductState) VariantBySKU(sku string) *VariantState {
	for i := range p.Variants {
		if p.Variants[i].SKU == sku {
			return &p.Variants[i]
		}
	}
	return nil
}

// Snapshot is a set of ProductStates keyed by canonical item key.
type Snapshot map[string]*ProductState
