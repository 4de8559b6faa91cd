package services

import (
	"context"
	"strings"

	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/repository"
)

// mirrorStateToCatalog writes a product snapshot into the catalog tables,
// creating or updating the item and its variants keyed by SKU. preserveLocal
// marks platform-sourced states (webhooks, pulls): those never carry the
// internal category mapping, and locally added tags must survive them.
func mirrorStateToCatalog(ctx context.Context, catalogRepo repository.CatalogRepositoryInterface, state *models.ProductState, preserveLocal bool) (*models.CatalogItem, error) {
	var item *models.CatalogItem
	var err error

	existing := true
	if state.ExternalID != "" {
		item, err = catalogRepo.GetItemByExternalID(ctx, state.ExternalID)
	} else {
		item, err = catalogRepo.GetItemByFeedID(ctx, state.FeedID)
	}
	if err == repository.ErrNotFound {
		item = &models.CatalogItem{}
		existing = false
	} else if err != nil {
		return nil, err
	}

	if state.ExternalID != "" {
		externalID := state.ExternalID
		item.ExternalID = &externalID
	}
	if state.FeedID != "" {
		feedID := state.FeedID
		item.FeedID = &feedID
	}
	item.Title = state.Title
	item.Description = state.Description
	item.Vendor = state.Vendor
	item.Status = models.CatalogStatus(strings.ToUpper(state.Status))

	if preserveLocal && existing {
		item.Tags = models.StringArray(unionTags(state.Tags, []string(item.Tags)))
	} else {
		item.Category = strPtrOrNil(state.Category)
		item.Tags = models.StringArray(state.Tags)
	}

	if err := catalogRepo.UpsertItem(ctx, item); err != nil {
		return nil, err
	}

	for _, v := range state.Variants {
		if v.SKU == "" {
			continue
		}
		sku := v.SKU
		variant := &models.CatalogVariant{
			CatalogItemID:     item.ID,
			Title:             v.Title,
			SKU:               &sku,
			Price:             v.Price,
			InventoryQuantity: v.InventoryQuantity,
		}
		if v.ExternalID != "" {
			externalVariantID := v.ExternalID
			variant.ExternalID = &externalVariantID
		}
		if v.InventoryItemID != "" {
			inventoryItemID := v.InventoryItemID
			variant.ExternalInventoryItemID = &inventoryItemID
		}
		if err := catalogRepo.UpsertVariant(ctx, variant); err != nil {
			return nil, err
		}
	}

	return item, nil
}

// unionTags keeps the incoming tag order and appends local tags the incoming
// set does not carry.
func unionTags(incoming, local []string) []string {
	seen := make(map[string]bool, len(incoming))
	merged := make([]string, 0, len(incoming)+len(local))
	for _, tag := range incoming {
		if !seen[tag] {
			seen[tag] = true
			merged = append(merged, tag)
		}
	}
	for _, tag := range local {
		if !seen[tag] {
			seen[tag] = true
			merged = append(merged, tag)
		}
	}
	return merged
}
