package feed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"catalog-sync-service/internal/models"
)

// Feed is the merchant catalog document, the source of truth for every
// feed-managed field.
type Feed struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Products    []FeedProduct `json:"products" validate:"dive"`
}

// FeedProduct is one product entry in the feed document.
type FeedProduct struct {
	FeedID      string        `json:"feed_id" validate:"required"`
	Title       string        `json:"title" validate:"required,max=255"`
	Description string        `json:"description"`
	Vendor      string        `json:"vendor"`
	Category    string        `json:"category"`
	Status      string        `json:"status" validate:"omitempty,oneof=ACTIVE DRAFT ARCHIVED"`
	Tags        []string      `json:"tags"`
	Variants    []FeedVariant `json:"variants" validate:"required,min=1,dive"`
	Images      []FeedImage   `json:"images" validate:"dive"`
	UpdatedAt   time.Time     `json:"updated_at" validate:"required"`
}

// FeedVariant is one sellable variant of a feed product.
type FeedVariant struct {
	SKU               string          `json:"sku" validate:"required,max=100"`
	Title             string          `json:"title"`
	Price             decimal.Decimal `json:"price" validate:"required"`
	InventoryQuantity int             `json:"inventory_quantity" validate:"gte=0"`
}

// FeedImage is one product image reference in the feed.
type FeedImage struct {
	SourcePath string `json:"source_path" validate:"required"`
	AltText    string `json:"alt_text"`
	Position   int    `json:"position" validate:"gte=0"`
}

var validate = validator.New()

// Parse decodes and validates a feed document. A feed with duplicate feed
// IDs or duplicate SKUs is rejected outright; ambiguous identity would
// corrupt every downstream comparison.
func Parse(data []byte) (*Feed, error) {
	var f Feed
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode feed document: %w", err)
	}

	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("feed validation failed: %w", err)
	}

	seenIDs := make(map[string]bool, len(f.Products))
	seenSKUs := make(map[string]string)
	var problems []string

	for _, p := range f.Products {
		if seenIDs[p.FeedID] {
			problems = append(problems, fmt.Sprintf("duplicate feed id %q", p.FeedID))
		}
		seenIDs[p.FeedID] = true

		for _, v := range p.Variants {
			if owner, ok := seenSKUs[v.SKU]; ok {
				problems = append(problems, fmt.Sprintf("duplicate sku %q (products %q and %q)", v.SKU, owner, p.FeedID))
			} else {
				seenSKUs[v.SKU] = p.FeedID
			}
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("feed rejected: %s", strings.Join(problems, "; "))
	}

	return &f, nil
}

// ToSnapshot converts the feed into the neutral snapshot keyed by feed id.
func (f *Feed) ToSnapshot() models.Snapshot {
	snapshot := make(models.Snapshot, len(f.Products))
	for i := range f.Products {
		p := &f.Products[i]

		status := p.Status
		if status == "" {
			status = string(models.CatalogStatusActive)
		}

		state := &models.ProductState{
			FeedID:      p.FeedID,
			Title:       p.Title,
			Description: p.Description,
			Vendor:      p.Vendor,
			Category:    p.Category,
			Status:      status,
			Tags:        p.Tags,
			UpdatedAt:   p.UpdatedAt,
		}

		for _, v := range p.Variants {
			state.Variants = append(state.Variants, models.VariantState{
				SKU:               v.SKU,
				Title:             v.Title,
				Price:             v.Price,
				InventoryQuantity: v.InventoryQuantity,
			})
		}

		for _, img := range p.Images {
			state.Images = append(state.Images, models.ImageState{
				SourcePath: img.SourcePath,
				AltText:    img.AltText,
				Position:   img.Position,
			})
		}

		snapshot[state.Key()] = state
	}
	return snapshot
}
