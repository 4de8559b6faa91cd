package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/repository"
)

// MockShadowRepository is a mock implementation of ShadowRepositoryInterface
type MockShadowRepository struct {
	mock.Mock
}

var _ repository.ShadowRepositoryInterface = (*MockShadowRepository)(nil)

func (m *MockShadowRepository) GetByItemKey(ctx context.Context, itemKey string) (*models.ShadowRecord, error) {
	args := m.Called(ctx, itemKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ShadowRecord), args.Error(1)
}

func (m *MockShadowRepository) GetByExternalID(ctx context.Context, externalID string) (*models.ShadowRecord, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ShadowRecord), args.Error(1)
}

func (m *MockShadowRepository) ListActive(ctx context.Context) ([]models.ShadowRecord, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.ShadowRecord), args.Error(1)
}

func (m *MockShadowRepository) Upsert(ctx context.Context, record *models.ShadowRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockShadowRepository) Archive(ctx context.Context, itemKey string) error {
	args := m.Called(ctx, itemKey)
	return args.Error(0)
}

func (m *MockShadowRepository) TouchPlatformUpdate(ctx context.Context, itemKey string, at time.Time) error {
	args := m.Called(ctx, itemKey, at)
	return args.Error(0)
}

// MockCatalogRepository is a mock implementation of CatalogRepositoryInterface
type MockCatalogRepository struct {
	mock.Mock
}

var _ repository.CatalogRepositoryInterface = (*MockCatalogRepository)(nil)

func (m *MockCatalogRepository) GetItemByFeedID(ctx context.Context, feedID string) (*models.CatalogItem, error) {
	args := m.Called(ctx, feedID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CatalogItem), args.Error(1)
}

func (m *MockCatalogRepository) GetItemByExternalID(ctx context.Context, externalID string) (*models.CatalogItem, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CatalogItem), args.Error(1)
}

func (m *MockCatalogRepository) UpsertItem(ctx context.Context, item *models.CatalogItem) error {
	args := m.Called(ctx, item)
	if args.Error(0) == nil && item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockCatalogRepository) UpdateItemFields(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	args := m.Called(ctx, id, updates)
	return args.Error(0)
}

func (m *MockCatalogRepository) GetVariantBySKU(ctx context.Context, sku string) (*models.CatalogVariant, error) {
	args := m.Called(ctx, sku)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CatalogVariant), args.Error(1)
}

func (m *MockCatalogRepository) UpsertVariant(ctx context.Context, variant *models.CatalogVariant) error {
	args := m.Called(ctx, variant)
	return args.Error(0)
}

func (m *MockCatalogRepository) SetVariantInventoryByExternalItemID(ctx context.Context, inventoryItemID string, quantity int) (int64, error) {
	args := m.Called(ctx, inventoryItemID, quantity)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCatalogRepository) SaveMediaAsset(ctx context.Context, asset *models.MediaAsset) error {
	args := m.Called(ctx, asset)
	return args.Error(0)
}

func (m *MockCatalogRepository) ListMediaNeedingReconcile(ctx context.Context, limit int) ([]models.MediaAsset, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.MediaAsset), args.Error(1)
}

// MockSyncRepository is a mock implementation of SyncRepositoryInterface
type MockSyncRepository struct {
	mock.Mock
}

var _ repository.SyncRepositoryInterface = (*MockSyncRepository)(nil)

func (m *MockSyncRepository) CreateRun(ctx context.Context, run *models.SyncRun) error {
	args := m.Called(ctx, run)
	if args.Error(0) == nil && run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockSyncRepository) GetRun(ctx context.Context, id uuid.UUID) (*models.SyncRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SyncRun), args.Error(1)
}

func (m *MockSyncRepository) ListRuns(ctx context.Context, opts repository.RunListOptions) ([]models.SyncRun, int64, error) {
	args := m.Called(ctx, opts)
	return args.Get(0).([]models.SyncRun), args.Get(1).(int64), args.Error(2)
}

func (m *MockSyncRepository) UpdateRunState(ctx context.Context, id uuid.UUID, state models.RunState, updates map[string]interface{}) error {
	args := m.Called(ctx, id, state, updates)
	return args.Error(0)
}

func (m *MockSyncRepository) AppendLogEntry(ctx context.Context, entry *models.SyncLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockSyncRepository) GetRunLogs(ctx context.Context, runID uuid.UUID, limit int) ([]models.SyncLogEntry, error) {
	args := m.Called(ctx, runID, limit)
	return args.Get(0).([]models.SyncLogEntry), args.Error(1)
}

func (m *MockSyncRepository) SucceededItemKeys(ctx context.Context, runID uuid.UUID) (map[string]bool, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(map[string]bool), args.Error(1)
}

func (m *MockSyncRepository) TryAcquireRunLock(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockSyncRepository) ReleaseRunLock(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockWebhookRepository is a mock implementation of WebhookRepositoryInterface
type MockWebhookRepository struct {
	mock.Mock
}

var _ repository.WebhookRepositoryInterface = (*MockWebhookRepository)(nil)

func (m *MockWebhookRepository) CreateEvent(ctx context.Context, event *models.WebhookEvent) error {
	args := m.Called(ctx, event)
	if args.Error(0) == nil && event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockWebhookRepository) ExistsWithIdempotencyKey(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockWebhookRepository) MarkProcessed(ctx context.Context, id uuid.UUID, processingError string) error {
	args := m.Called(ctx, id, processingError)
	return args.Error(0)
}

func (m *MockWebhookRepository) ListUnprocessed(ctx context.Context, limit int) ([]models.WebhookEvent, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.WebhookEvent), args.Error(1)
}

// MockReviewRepository is a mock implementation of ReviewRepositoryInterface
type MockReviewRepository struct {
	mock.Mock
}

var _ repository.ReviewRepositoryInterface = (*MockReviewRepository)(nil)

func (m *MockReviewRepository) CreateConflict(ctx context.Context, conflict *models.Conflict) error {
	args := m.Called(ctx, conflict)
	return args.Error(0)
}

func (m *MockReviewRepository) GetConflict(ctx context.Context, id uuid.UUID) (*models.Conflict, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conflict), args.Error(1)
}

func (m *MockReviewRepository) ListUnresolved(ctx context.Context, limit, offset int) ([]models.Conflict, int64, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]models.Conflict), args.Get(1).(int64), args.Error(2)
}

func (m *MockReviewRepository) ListByRun(ctx context.Context, runID uuid.UUID) ([]models.Conflict, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).([]models.Conflict), args.Error(1)
}

func (m *MockReviewRepository) Resolve(ctx context.Context, id uuid.UUID, resolution string) error {
	args := m.Called(ctx, id, resolution)
	return args.Error(0)
}

func (m *MockReviewRepository) ListApprovedDeletions(ctx context.Context) ([]models.Conflict, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Conflict), args.Error(1)
}

func (m *MockReviewRepository) MarkApplied(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
