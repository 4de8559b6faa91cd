package shopify

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"catalog-sync-service/internal/clients"
	"catalog-sync-service/internal/models"
)

// BuildProductCreate builds the operation that creates a product from a
// feed snapshot. Media is attached separately through the staged uploader.
func BuildProductCreate(state *models.ProductState) *clients.Operation {
	return &clients.Operation{
		Name:    "product_create",
		Kind:    models.OpCreate,
		ItemKey: state.Key(),
		Method:  http.MethodPost,
		Path:    "/products.json",
		Body: map[string]interface{}{
			"product": productPayload(state),
		},
	}
}

// BuildProductUpdate builds the operation that pushes a feed snapshot onto
// an existing platform product.
func BuildProductUpdate(externalID string, state *models.ProductState) *clients.Operation {
	payload := productPayload(state)
	payload["id"] = externalID

	return &clients.Operation{
		Name:    "product_update",
		Kind:    models.OpUpdate,
		ItemKey: state.Key(),
		Method:  http.MethodPut,
		Path:    fmt.Sprintf("/products/%s.json", externalID),
		Body: map[string]interface{}{
			"product": payload,
		},
	}
}

// BuildProductArchive builds the operation that removes a product from sale
// without destroying it. Items dropped from the feed are archived, never
// hard-deleted.
func BuildProductArchive(externalID, itemKey string) *clients.Operation {
	return &clients.Operation{
		Name:    "product_archive",
		Kind:    models.OpDelete,
		ItemKey: itemKey,
		Method:  http.MethodPut,
		Path:    fmt.Sprintf("/products/%s.json", externalID),
		Body: map[string]interface{}{
			"product": map[string]interface{}{
				"id":     externalID,
				"status": "archived",
			},
		},
	}
}

// BuildInventorySet builds the operation that sets an absolute inventory
// level for one inventory item at one location.
func BuildInventorySet(inventoryItemID, locationID string, available int, itemKey string) *clients.Operation {
	return &clients.Operation{
		Name:    "inventory_set",
		Kind:    models.OpInventory,
		ItemKey: itemKey,
		Method:  http.MethodPost,
		Path:    "/inventory_levels/set.json",
		Body: map[string]interface{}{
			"inventory_item_id": inventoryItemID,
			"location_id":       locationID,
			"available":         available,
		},
	}
}

// ParseProductResponse extracts the product from a create or update reply.
func ParseProductResponse(resp *clients.Response) (*models.ProductState, error) {
	var response struct {
		Product shopifyProduct `json:"product"`
	}
	if err := json.Unmarshal(resp.Body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse product response: %w", err)
	}
	return convertProduct(response.Product), nil
}

func productPayload(state *models.ProductState) map[string]interface{} {
	payload := map[string]interface{}{
		"title":        state.Title,
		"body_html":    state.Description,
		"vendor":       state.Vendor,
		"product_type": state.Category,
		"status":       strings.ToLower(state.Status),
	}
	if len(state.Tags) > 0 {
		payload["tags"] = strings.Join(state.Tags, ", ")
	}

	if len(state.Variants) > 0 {
		variants := make([]map[string]interface{}, 0, len(state.Variants))
		for _, v := range state.Variants {
			variant := map[string]interface{}{
				"sku":                v.SKU,
				"price":              v.Price.StringFixed(2),
				"inventory_quantity": v.InventoryQuantity,
			}
			if v.Title != "" {
				variant["title"] = v.Title
			}
			if v.ExternalID != "" {
				variant["id"] = v.ExternalID
			}
			variants = append(variants, variant)
		}
		payload["variants"] = variants
	}

	return payload
}
