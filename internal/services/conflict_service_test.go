package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"catalog-sync-service/internal/models"
)

// Helper function to create a product snapshot
func testState(feedID, externalID, title string, price float64, inventory int) *models.ProductState {
	return &models.ProductState{
		FeedID:     feedID,
		ExternalID: externalID,
		Title:      title,
		Status:     "ACTIVE",
		Variants: []models.VariantState{
			{SKU: "SKU-1", Price: decimal.NewFromFloat(price), InventoryQuantity: inventory},
		},
		UpdatedAt: time.Now(),
	}
}

func TestDetect_NewFeedItem(t *testing.T) {
	service := NewConflictService(10, nil)

	feed := models.Snapshot{
		"feed-1": testState("feed-1", "", "New Product", 19.99, 5),
	}

	result := service.Detect(feed, map[string]*models.ProductState{}, models.Snapshot{})

	assert.Len(t, result.Creates, 1)
	assert.Empty(t, result.Updates)
	assert.Empty(t, result.Conflicts)
	assert.Equal(t, "feed-1", result.Creates[0].FeedID)
}

func TestDetect_InSync(t *testing.T) {
	service := NewConflictService(10, nil)

	shadow := testState("feed-1", "ext-1", "Product", 19.99, 5)
	feed := models.Snapshot{"feed-1": testState("feed-1", "", "Product", 19.99, 5)}
	platform := map[string]*models.ProductState{
		"ext-1": testState("", "ext-1", "Product", 19.99, 5),
	}

	result := service.Detect(feed, platform, models.Snapshot{"feed-1": shadow})

	assert.Equal(t, 1, result.InSync)
	assert.Empty(t, result.Updates)
	assert.Empty(t, result.Conflicts)
}

func TestDetect_FeedOnlyChange_AutoResolves(t *testing.T) {
	service := NewConflictService(10, nil)

	shadow := testState("feed-1", "ext-1", "Old Title", 19.99, 5)
	feed := models.Snapshot{"feed-1": testState("feed-1", "", "New Title", 19.99, 5)}
	platform := map[string]*models.ProductState{
		"ext-1": testState("", "ext-1", "Old Title", 19.99, 5),
	}

	result := service.Detect(feed, platform, models.Snapshot{"feed-1": shadow})

	assert.Len(t, result.Updates, 1)
	assert.Equal(t, "ext-1", result.Updates[0].ExternalID)
	assert.Equal(t, "New Title", result.Updates[0].State.Title)

	assert.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ConflictFeedChange, result.Conflicts[0].Kind)
	assert.Equal(t, models.ConfidenceHigh, result.Conflicts[0].Confidence)
	assert.Equal(t, models.ActionAutoResolve, result.Conflicts[0].Action)
}

func TestDetect_PlatformOnlyChange_Pulled(t *testing.T) {
	service := NewConflictService(10, nil)

	shadow := testState("feed-1", "ext-1", "Product", 19.99, 5)
	feed := models.Snapshot{"feed-1": testState("feed-1", "", "Product", 19.99, 5)}
	platform := map[string]*models.ProductState{
		"ext-1": testState("", "ext-1", "Product Edited In Admin", 19.99, 5),
	}

	result := service.Detect(feed, platform, models.Snapshot{"feed-1": shadow})

	assert.Empty(t, result.Updates)
	assert.Len(t, result.Pulls, 1)
	assert.Equal(t, "Product Edited In Admin", result.Pulls[0].State.Title)

	assert.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ConflictPlatformChange, result.Conflicts[0].Kind)
	assert.Equal(t, models.ActionAutoResolve, result.Conflicts[0].Action)
}

func TestDetect_CompetingEdit_DisjointFields_Merges(t *testing.T) {
	service := NewConflictService(10, nil)

	shadow := testState("feed-1", "ext-1", "Product", 19.99, 5)
	// Feed changed the title; platform changed the inventory.
	feedState := testState("feed-1", "", "Renamed Product", 19.99, 5)
	platState := testState("", "ext-1", "Product", 19.99, 12)
	feed := models.Snapshot{"feed-1": feedState}
	platform := map[string]*models.ProductState{"ext-1": platState}

	result := service.Detect(feed, platform, models.Snapshot{"feed-1": shadow})

	assert.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ConflictCompetingEdit, result.Conflicts[0].Kind)
	assert.Equal(t, models.ActionAutoResolve, result.Conflicts[0].Action)
	assert.Equal(t, models.ConfidenceMedium, result.Conflicts[0].Confidence)

	// The merged update carries the feed title over the platform inventory.
	assert.Len(t, result.Updates, 1)
	merged := result.Updates[0].State
	assert.Equal(t, "Renamed Product", merged.Title)
	assert.Equal(t, 12, merged.Variants[0].InventoryQuantity)
	assert.Equal(t, "ext-1", merged.ExternalID)
}

func TestDetect_CompetingCosmeticEdit_FeedNewer_PushesFeedText(t *testing.T) {
	service := NewConflictService(10, nil)

	shadow := testState("feed-1", "ext-1", "Product", 19.99, 5)
	feedState := testState("feed-1", "", "Feed Title", 19.99, 5)
	platState := testState("", "ext-1", "Platform Title", 19.99, 5)
	platState.UpdatedAt = time.Now().Add(-time.Hour)
	feedState.UpdatedAt = time.Now()
	feed := models.Snapshot{"feed-1": feedState}
	platform := map[string]*models.ProductState{"ext-1": platState}

	result := service.Detect(feed, platform, models.Snapshot{"feed-1": shadow})

	assert.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ConflictCompetingEdit, result.Conflicts[0].Kind)
	assert.Equal(t, models.ActionAutoResolve, result.Conflicts[0].Action)
	assert.Equal(t, models.ConfidenceMedium, result.Conflicts[0].Confidence)

	assert.Len(t, result.Updates, 1)
	assert.Equal(t, "Feed Title", result.Updates[0].State.Title)
	assert.Empty(t, result.Pulls)
}

func TestDetect_CompetingCosmeticEdit_PlatformNewer_Pulled(t *testing.T) {
	service := NewConflictService(10, nil)

	shadow := testState("feed-1", "ext-1", "Product", 19.99, 5)
	feedState := testState("feed-1", "", "Feed Title", 19.99, 5)
	platState := testState("", "ext-1", "Platform Title", 19.99, 5)
	feedState.UpdatedAt = time.Now().Add(-time.Hour)
	platState.UpdatedAt = time.Now()
	feed := models.Snapshot{"feed-1": feedState}
	platform := map[string]*models.ProductState{"ext-1": platState}

	result := service.Detect(feed, platform, models.Snapshot{"feed-1": shadow})

	assert.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ActionAutoResolve, result.Conflicts[0].Action)

	assert.Empty(t, result.Updates)
	assert.Len(t, result.Pulls, 1)
	assert.Equal(t, "Platform Title", result.Pulls[0].State.Title)
}

func TestDetect_CompetingCosmeticEdit_PlatformNewer_KeepsDisjointFeedChanges(t *testing.T) {
	service := NewConflictService(10, nil)

	shadow := testState("feed-1", "ext-1", "Product", 19.99, 5)
	// Feed reworded the title and also restocked; platform only reworded.
	feedState := testState("feed-1", "", "Feed Title", 19.99, 40)
	platState := testState("", "ext-1", "Platform Title", 19.99, 5)
	feedState.UpdatedAt = time.Now().Add(-time.Hour)
	platState.UpdatedAt = time.Now()
	feed := models.Snapshot{"feed-1": feedState}
	platform := map[string]*models.ProductState{"ext-1": platState}

	result := service.Detect(feed, platform, models.Snapshot{"feed-1": shadow})

	assert.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ActionAutoResolve, result.Conflicts[0].Action)

	// The platform title stands; the inventory change still pushes.
	assert.Len(t, result.Updates, 1)
	assert.Equal(t, "Platform Title", result.Updates[0].State.Title)
	assert.Equal(t, 40, result.Updates[0].State.Variants[0].InventoryQuantity)
	assert.Empty(t, result.Pulls)
}

func TestDetect_CompetingPriceEdit_BeyondThreshold_AdminApproval(t *testing.T) {
	service := NewConflictService(10, nil)

	shadow := testState("feed-1", "ext-1", "Product", 20.00, 5)
	// Feed wants 30.00, platform was repriced to 22.00: 36% apart.
	feedState := testState("feed-1", "", "Product", 30.00, 5)
	platState := testState("", "ext-1", "Product", 22.00, 5)
	feed := models.Snapshot{"feed-1": feedState}
	platform := map[string]*models.ProductState{"ext-1": platState}

	result := service.Detect(feed, platform, models.Snapshot{"feed-1": shadow})

	assert.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ActionAdminApproval, result.Conflicts[0].Action)
	assert.Equal(t, models.ConfidenceLow, result.Conflicts[0].Confidence)
}

func TestDetect_CompetingPriceEdit_WithinThreshold_ManualReview(t *testing.T) {
	service := NewConflictService(10, nil)

	shadow := testState("feed-1", "ext-1", "Product", 20.00, 5)
	// Feed wants 21.00, platform was repriced to 20.50: under 10% apart.
	feedState := testState("feed-1", "", "Product", 21.00, 5)
	platState := testState("", "ext-1", "Product", 20.50, 5)
	feed := models.Snapshot{"feed-1": feedState}
	platform := map[string]*models.ProductState{"ext-1": platState}

	result := service.Detect(feed, platform, models.Snapshot{"feed-1": shadow})

	assert.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ActionManualReview, result.Conflicts[0].Action)
}

func TestDetect_PlatformDeletedWhileStillFed(t *testing.T) {
	service := NewConflictService(10, nil)

	shadow := testState("feed-1", "ext-1", "Product", 19.99, 5)
	feed := models.Snapshot{"feed-1": testState("feed-1", "", "Product", 19.99, 5)}

	result := service.Detect(feed, map[string]*models.ProductState{}, models.Snapshot{"feed-1": shadow})

	assert.Empty(t, result.Updates)
	assert.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ConflictDeletion, result.Conflicts[0].Kind)
	assert.Equal(t, models.ConfidenceMedium, result.Conflicts[0].Confidence)
	assert.Equal(t, models.ActionManualReview, result.Conflicts[0].Action)
}

func TestDetect_FeedDropped_PlatformUntouched_QueuesDeletionConflict(t *testing.T) {
	service := NewConflictService(10, nil)

	shadow := testState("feed-1", "ext-1", "Product", 19.99, 5)
	platform := map[string]*models.ProductState{
		"ext-1": testState("", "ext-1", "Product", 19.99, 5),
	}

	result := service.Detect(models.Snapshot{}, platform, models.Snapshot{"feed-1": shadow})

	// Never archive on feed absence alone; a reviewer decides.
	assert.Empty(t, result.Updates)
	assert.Empty(t, result.ShadowRetires)
	assert.Len(t, result.Conflicts, 1)
	assert.Equal(t, "feed-1", result.Conflicts[0].ItemKey)
	assert.Equal(t, models.ConflictDeletion, result.Conflicts[0].Kind)
	assert.Equal(t, models.ConfidenceMedium, result.Conflicts[0].Confidence)
	assert.Equal(t, models.ActionManualReview, result.Conflicts[0].Action)
}

func TestDetect_FeedDropped_PlatformEdited_DeletionConflict(t *testing.T) {
	service := NewConflictService(10, nil)

	shadow := testState("feed-1", "ext-1", "Product", 19.99, 5)
	platform := map[string]*models.ProductState{
		"ext-1": testState("", "ext-1", "Product Edited Since", 19.99, 5),
	}

	result := service.Detect(models.Snapshot{}, platform, models.Snapshot{"feed-1": shadow})

	assert.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ConflictDeletion, result.Conflicts[0].Kind)
	assert.Equal(t, models.ConfidenceLow, result.Conflicts[0].Confidence)
	assert.Equal(t, models.ActionManualReview, result.Conflicts[0].Action)
}

func TestDetect_GoneEverywhere_RetiresShadow(t *testing.T) {
	service := NewConflictService(10, nil)

	shadow := testState("feed-1", "ext-1", "Product", 19.99, 5)

	result := service.Detect(models.Snapshot{}, map[string]*models.ProductState{}, models.Snapshot{"feed-1": shadow})

	assert.Equal(t, []string{"feed-1"}, result.ShadowRetires)
	assert.Empty(t, result.Conflicts)
}

func TestDetect_UnmanagedPlatformProducts_Counted(t *testing.T) {
	service := NewConflictService(10, nil)

	platform := map[string]*models.ProductState{
		"ext-unclaimed": testState("", "ext-unclaimed", "Manually Created", 9.99, 1),
	}

	result := service.Detect(models.Snapshot{}, platform, models.Snapshot{})

	assert.Equal(t, 1, result.Unmanaged)
	assert.Empty(t, result.Conflicts)
}

func TestDiffStates_VariantChanges(t *testing.T) {
	old := &models.ProductState{
		Title: "Product",
		Variants: []models.VariantState{
			{SKU: "A", Price: decimal.NewFromFloat(10), InventoryQuantity: 1},
			{SKU: "B", Price: decimal.NewFromFloat(20), InventoryQuantity: 2},
		},
	}
	new := &models.ProductState{
		Title: "Product",
		Variants: []models.VariantState{
			{SKU: "A", Price: decimal.NewFromFloat(12), InventoryQuantity: 1},
			{SKU: "C", Price: decimal.NewFromFloat(30), InventoryQuantity: 3},
		},
	}

	changes := diffStates(old, new)

	fields := make([]string, 0, len(changes))
	for _, ch := range changes {
		fields = append(fields, ch.Field)
	}
	assert.ElementsMatch(t, []string{
		"variant[A].price",
		"variant[B].removed",
		"variant[C].added",
	}, fields)
}

func TestDiffStates_TagOrderIgnored(t *testing.T) {
	old := &models.ProductState{Title: "P", Tags: []string{"red", "blue"}}
	new := &models.ProductState{Title: "P", Tags: []string{"blue", "red"}}

	assert.Empty(t, diffStates(old, new))
}

func TestParseVariantField(t *testing.T) {
	sku, attr, ok := parseVariantField("variant[SKU-1].price")
	assert.True(t, ok)
	assert.Equal(t, "SKU-1", sku)
	assert.Equal(t, "price", attr)

	_, _, ok = parseVariantField("title")
	assert.False(t, ok)
}
