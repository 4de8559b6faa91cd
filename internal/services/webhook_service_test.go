package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/repository"
)

func newTestWebhookService(
	webhookRepo *MockWebhookRepository,
	shadowRepo *MockShadowRepository,
	catalogRepo *MockCatalogRepository,
	syncRepo *MockSyncRepository,
) *WebhookService {
	return NewWebhookService(webhookRepo, shadowRepo, catalogRepo, syncRepo, nil)
}

func productPayloadJSON(externalID, title string, updatedAt time.Time) []byte {
	return []byte(fmt.Sprintf(
		`{"id":"%s","title":"%s","status":"active","updated_at":"%s"}`,
		externalID, title, updatedAt.Format(time.RFC3339),
	))
}

func TestHandleEvent_DuplicateDeliverySkipped(t *testing.T) {
	ctx := context.Background()
	webhookRepo := new(MockWebhookRepository)
	shadowRepo := new(MockShadowRepository)
	catalogRepo := new(MockCatalogRepository)
	syncRepo := new(MockSyncRepository)
	service := newTestWebhookService(webhookRepo, shadowRepo, catalogRepo, syncRepo)

	webhookRepo.On("ExistsWithIdempotencyKey", ctx, "products/update:evt-1").
		Return(true, nil)

	applied, err := service.HandleEvent(ctx, "products/update", "evt-1",
		productPayloadJSON("ext-1", "Product", time.Now()))

	assert.NoError(t, err)
	assert.False(t, applied)
	webhookRepo.AssertNotCalled(t, "CreateEvent", mock.Anything, mock.Anything)
	webhookRepo.AssertExpectations(t)
}

func TestHandleEvent_UnsupportedTopic(t *testing.T) {
	service := newTestWebhookService(new(MockWebhookRepository), new(MockShadowRepository),
		new(MockCatalogRepository), new(MockSyncRepository))

	_, err := service.HandleEvent(context.Background(), "orders/create", "evt-1", []byte(`{}`))

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported webhook topic")
}

func TestHandleEvent_ProductUpdateApplied(t *testing.T) {
	ctx := context.Background()
	webhookRepo := new(MockWebhookRepository)
	shadowRepo := new(MockShadowRepository)
	catalogRepo := new(MockCatalogRepository)
	syncRepo := new(MockSyncRepository)
	service := newTestWebhookService(webhookRepo, shadowRepo, catalogRepo, syncRepo)

	eventTime := time.Now()
	lastSync := eventTime.Add(-1 * time.Hour)
	feedID := "feed-1"
	shadow := &models.ShadowRecord{
		ItemKey:              "feed-1",
		FeedID:               &feedID,
		LastPlatformUpdateAt: &lastSync,
	}

	webhookRepo.On("ExistsWithIdempotencyKey", ctx, "products/update:evt-2").Return(false, nil)
	webhookRepo.On("CreateEvent", ctx, mock.AnythingOfType("*models.WebhookEvent")).Return(nil)
	shadowRepo.On("GetByExternalID", ctx, "ext-1").Return(shadow, nil)
	catalogRepo.On("GetItemByExternalID", ctx, "ext-1").Return(nil, repository.ErrNotFound)
	catalogRepo.On("UpsertItem", ctx, mock.AnythingOfType("*models.CatalogItem")).Return(nil)
	shadowRepo.On("Upsert", ctx, mock.AnythingOfType("*models.ShadowRecord")).Return(nil)
	syncRepo.On("AppendLogEntry", ctx, mock.AnythingOfType("*models.SyncLogEntry")).Return(nil)
	webhookRepo.On("MarkProcessed", ctx, mock.Anything, "").Return(nil)

	applied, err := service.HandleEvent(ctx, "products/update", "evt-2",
		productPayloadJSON("ext-1", "Edited Title", eventTime))

	assert.NoError(t, err)
	assert.True(t, applied)
	assert.NotNil(t, shadow.LastPlatformUpdateAt)
	assert.WithinDuration(t, eventTime, *shadow.LastPlatformUpdateAt, time.Second)
	webhookRepo.AssertExpectations(t)
	shadowRepo.AssertExpectations(t)
	catalogRepo.AssertExpectations(t)
}

func TestHandleEvent_ProductUpdate_KeepsLocalCategoryAndTags(t *testing.T) {
	ctx := context.Background()
	webhookRepo := new(MockWebhookRepository)
	shadowRepo := new(MockShadowRepository)
	catalogRepo := new(MockCatalogRepository)
	syncRepo := new(MockSyncRepository)
	service := newTestWebhookService(webhookRepo, shadowRepo, catalogRepo, syncRepo)

	eventTime := time.Now()
	lastSync := eventTime.Add(-1 * time.Hour)
	feedID := "feed-1"
	shadow := &models.ShadowRecord{
		ItemKey:              "feed-1",
		FeedID:               &feedID,
		LastPlatformUpdateAt: &lastSync,
	}
	category := "Apparel > Shirts"
	item := &models.CatalogItem{
		Title:    "Product",
		Category: &category,
		Tags:     models.StringArray{"red", "local-only"},
	}

	payload := []byte(fmt.Sprintf(
		`{"id":"ext-1","title":"Edited Title","status":"active","tags":"red, green","updated_at":"%s"}`,
		eventTime.Format(time.RFC3339)))

	webhookRepo.On("ExistsWithIdempotencyKey", ctx, "products/update:evt-8").Return(false, nil)
	webhookRepo.On("CreateEvent", ctx, mock.AnythingOfType("*models.WebhookEvent")).Return(nil)
	shadowRepo.On("GetByExternalID", ctx, "ext-1").Return(shadow, nil)
	catalogRepo.On("GetItemByExternalID", ctx, "ext-1").Return(item, nil)
	// The platform never carries the internal category mapping; it must
	// survive, and so must tags added locally.
	catalogRepo.On("UpsertItem", ctx, mock.MatchedBy(func(updated *models.CatalogItem) bool {
		if updated.Category == nil || *updated.Category != "Apparel > Shirts" {
			return false
		}
		return assert.ObjectsAreEqual(models.StringArray{"red", "green", "local-only"}, updated.Tags)
	})).Return(nil)
	shadowRepo.On("Upsert", ctx, mock.AnythingOfType("*models.ShadowRecord")).Return(nil)
	syncRepo.On("AppendLogEntry", ctx, mock.AnythingOfType("*models.SyncLogEntry")).Return(nil)
	webhookRepo.On("MarkProcessed", ctx, mock.Anything, "").Return(nil)

	applied, err := service.HandleEvent(ctx, "products/update", "evt-8", payload)

	assert.NoError(t, err)
	assert.True(t, applied)
	catalogRepo.AssertExpectations(t)
}

func TestHandleEvent_StaleProductEventDropped(t *testing.T) {
	ctx := context.Background()
	webhookRepo := new(MockWebhookRepository)
	shadowRepo := new(MockShadowRepository)
	catalogRepo := new(MockCatalogRepository)
	syncRepo := new(MockSyncRepository)
	service := newTestWebhookService(webhookRepo, shadowRepo, catalogRepo, syncRepo)

	eventTime := time.Now().Add(-2 * time.Hour)
	newerSync := time.Now()
	feedID := "feed-1"
	shadow := &models.ShadowRecord{
		ItemKey:              "feed-1",
		FeedID:               &feedID,
		LastPlatformUpdateAt: &newerSync,
	}

	webhookRepo.On("ExistsWithIdempotencyKey", ctx, "products/update:evt-3").Return(false, nil)
	webhookRepo.On("CreateEvent", ctx, mock.AnythingOfType("*models.WebhookEvent")).Return(nil)
	shadowRepo.On("GetByExternalID", ctx, "ext-1").Return(shadow, nil)
	webhookRepo.On("MarkProcessed", ctx, mock.Anything, "").Return(nil)

	applied, err := service.HandleEvent(ctx, "products/update", "evt-3",
		productPayloadJSON("ext-1", "Obsolete Title", eventTime))

	assert.NoError(t, err)
	assert.True(t, applied)
	catalogRepo.AssertNotCalled(t, "UpsertItem", mock.Anything, mock.Anything)
	shadowRepo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	webhookRepo.AssertExpectations(t)
}

func TestHandleEvent_InventoryUpdate_UnknownItemAcknowledged(t *testing.T) {
	ctx := context.Background()
	webhookRepo := new(MockWebhookRepository)
	shadowRepo := new(MockShadowRepository)
	catalogRepo := new(MockCatalogRepository)
	syncRepo := new(MockSyncRepository)
	service := newTestWebhookService(webhookRepo, shadowRepo, catalogRepo, syncRepo)

	payload := []byte(fmt.Sprintf(
		`{"inventory_item_id":"inv-404","available":7,"updated_at":"%s"}`,
		time.Now().Format(time.RFC3339)))

	webhookRepo.On("ExistsWithIdempotencyKey", ctx, "inventory_levels/update:evt-4").Return(false, nil)
	webhookRepo.On("CreateEvent", ctx, mock.AnythingOfType("*models.WebhookEvent")).Return(nil)
	catalogRepo.On("SetVariantInventoryByExternalItemID", ctx, "inv-404", 7).Return(int64(0), nil)
	syncRepo.On("AppendLogEntry", ctx, mock.MatchedBy(func(entry *models.SyncLogEntry) bool {
		notFound, _ := entry.Detail["not_found"].(bool)
		return entry.Outcome == models.OutcomeSuccess && notFound
	})).Return(nil)
	webhookRepo.On("MarkProcessed", ctx, mock.Anything, "").Return(nil)

	applied, err := service.HandleEvent(ctx, "inventory_levels/update", "evt-4", payload)

	assert.NoError(t, err)
	assert.True(t, applied)
	syncRepo.AssertExpectations(t)
}

func TestHandleEvent_InventoryUpdate_KnownItem(t *testing.T) {
	ctx := context.Background()
	webhookRepo := new(MockWebhookRepository)
	shadowRepo := new(MockShadowRepository)
	catalogRepo := new(MockCatalogRepository)
	syncRepo := new(MockSyncRepository)
	service := newTestWebhookService(webhookRepo, shadowRepo, catalogRepo, syncRepo)

	payload := []byte(fmt.Sprintf(
		`{"inventory_item_id":"inv-1","available":3,"updated_at":"%s"}`,
		time.Now().Format(time.RFC3339)))

	webhookRepo.On("ExistsWithIdempotencyKey", ctx, "inventory_levels/update:evt-5").Return(false, nil)
	webhookRepo.On("CreateEvent", ctx, mock.AnythingOfType("*models.WebhookEvent")).Return(nil)
	catalogRepo.On("SetVariantInventoryByExternalItemID", ctx, "inv-1", 3).Return(int64(1), nil)
	syncRepo.On("AppendLogEntry", ctx, mock.MatchedBy(func(entry *models.SyncLogEntry) bool {
		_, notFound := entry.Detail["not_found"]
		return entry.Kind == models.OpInventory && !notFound
	})).Return(nil)
	webhookRepo.On("MarkProcessed", ctx, mock.Anything, "").Return(nil)

	applied, err := service.HandleEvent(ctx, "inventory_levels/update", "evt-5", payload)

	assert.NoError(t, err)
	assert.True(t, applied)
	catalogRepo.AssertExpectations(t)
}

func TestHandleEvent_ProductDeletion_ArchivesMirrorAndShadow(t *testing.T) {
	ctx := context.Background()
	webhookRepo := new(MockWebhookRepository)
	shadowRepo := new(MockShadowRepository)
	catalogRepo := new(MockCatalogRepository)
	syncRepo := new(MockSyncRepository)
	service := newTestWebhookService(webhookRepo, shadowRepo, catalogRepo, syncRepo)

	shadow := &models.ShadowRecord{ItemKey: "feed-1"}
	item := &models.CatalogItem{Title: "Product"}

	webhookRepo.On("ExistsWithIdempotencyKey", ctx, "products/delete:evt-6").Return(false, nil)
	webhookRepo.On("CreateEvent", ctx, mock.AnythingOfType("*models.WebhookEvent")).Return(nil)
	shadowRepo.On("GetByExternalID", ctx, "12345").Return(shadow, nil)
	catalogRepo.On("GetItemByExternalID", ctx, "12345").Return(item, nil)
	catalogRepo.On("UpdateItemFields", ctx, item.ID, mock.MatchedBy(func(updates map[string]interface{}) bool {
		externalID, unlinked := updates["external_id"]
		return updates["status"] == models.CatalogStatusArchived && unlinked && externalID == nil
	})).Return(nil)
	shadowRepo.On("Archive", ctx, "feed-1").Return(nil)
	syncRepo.On("AppendLogEntry", ctx, mock.AnythingOfType("*models.SyncLogEntry")).Return(nil)
	webhookRepo.On("MarkProcessed", ctx, mock.Anything, "").Return(nil)

	applied, err := service.HandleEvent(ctx, "products/delete", "evt-6", []byte(`{"id":12345}`))

	assert.NoError(t, err)
	assert.True(t, applied)
	shadowRepo.AssertExpectations(t)
	catalogRepo.AssertExpectations(t)
}

func TestHandleEvent_ProductDeletion_UnknownProductIgnored(t *testing.T) {
	ctx := context.Background()
	webhookRepo := new(MockWebhookRepository)
	shadowRepo := new(MockShadowRepository)
	catalogRepo := new(MockCatalogRepository)
	syncRepo := new(MockSyncRepository)
	service := newTestWebhookService(webhookRepo, shadowRepo, catalogRepo, syncRepo)

	webhookRepo.On("ExistsWithIdempotencyKey", ctx, "products/delete:evt-7").Return(false, nil)
	webhookRepo.On("CreateEvent", ctx, mock.AnythingOfType("*models.WebhookEvent")).Return(nil)
	shadowRepo.On("GetByExternalID", ctx, "99999").Return(nil, repository.ErrNotFound)
	webhookRepo.On("MarkProcessed", ctx, mock.Anything, "").Return(nil)

	applied, err := service.HandleEvent(ctx, "products/delete", "evt-7", []byte(`{"id":99999}`))

	assert.NoError(t, err)
	assert.True(t, applied)
	catalogRepo.AssertNotCalled(t, "UpdateItemFields", mock.Anything, mock.Anything, mock.Anything)
	shadowRepo.AssertNotCalled(t, "Archive", mock.Anything, mock.Anything)
}
