package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/repository"
)

// WebhookService ingests platform change notifications. Deliveries are
// deduplicated by idempotency key, serialized per item key, and dropped when
// older than the newest change already applied for that item.
type WebhookService struct {
	webhookRepo repository.WebhookRepositoryInterface
	shadowRepo  repository.ShadowRepositoryInterface
	catalogRepo repository.CatalogRepositoryInterface
	syncRepo    repository.SyncRepositoryInterface
	keyLock     *KeyLock
	validate    *validator.Validate
	logger      *logrus.Logger
}

// NewWebhookService creates a new webhook service
func NewWebhookService(
	webhookRepo repository.WebhookRepositoryInterface,
	shadowRepo repository.ShadowRepositoryInterface,
	catalogRepo repository.CatalogRepositoryInterface,
	syncRepo repository.SyncRepositoryInterface,
	logger *logrus.Logger,
) *WebhookService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WebhookService{
		webhookRepo: webhookRepo,
		shadowRepo:  shadowRepo,
		catalogRepo: catalogRepo,
		syncRepo:    syncRepo,
		keyLock:     NewKeyLock(2 * time.Minute),
		validate:    validator.New(),
		logger:      logger,
	}
}

// topicToEventType maps platform webhook topics onto stored event types.
func topicToEventType(topic string) (models.WebhookEventType, bool) {
	switch topic {
	case "products/create":
		return models.WebhookProductCreated, true
	case "products/update":
		return models.WebhookProductUpdated, true
	case "products/delete":
		return models.WebhookProductDeleted, true
	case "inventory_levels/update":
		return models.WebhookInventoryUpdated, true
	}
	return "", false
}

// HandleEvent stores and processes one delivery. Returns false when the
// delivery is a duplicate and was skipped.
func (s *WebhookService) HandleEvent(ctx context.Context, topic, eventID string, payload []byte) (bool, error) {
	eventType, ok := topicToEventType(topic)
	if !ok {
		return false, fmt.Errorf("unsupported webhook topic %q", topic)
	}

	idempotencyKey := topic + ":" + eventID
	exists, err := s.webhookRepo.ExistsWithIdempotencyKey(ctx, idempotencyKey)
	if err != nil {
		return false, err
	}
	if exists {
		s.logger.WithFields(logrus.Fields{
			"topic":    topic,
			"event_id": eventID,
		}).Debug("Duplicate webhook delivery skipped")
		return false, nil
	}

	var body models.JSONB
	if err := json.Unmarshal(payload, &body); err != nil {
		return false, fmt.Errorf("malformed webhook payload: %w", err)
	}

	event := &models.WebhookEvent{
		EventID:        eventID,
		EventType:      eventType,
		Payload:        body,
		IdempotencyKey: idempotencyKey,
	}
	if err := s.webhookRepo.CreateEvent(ctx, event); err != nil {
		// A concurrent delivery of the same event may have won the insert.
		if strings.Contains(err.Error(), "duplicate key") {
			return false, nil
		}
		return false, err
	}

	if err := s.processEvent(ctx, event, payload); err != nil {
		s.webhookRepo.MarkProcessed(ctx, event.ID, err.Error())
		return true, err
	}

	return true, s.webhookRepo.MarkProcessed(ctx, event.ID, "")
}

// ProcessPending replays stored events that never reached a terminal
// outcome, oldest first.
func (s *WebhookService) ProcessPending(ctx context.Context) (int, error) {
	events, err := s.webhookRepo.ListUnprocessed(ctx, 100)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := range events {
		event := &events[i]
		raw, err := json.Marshal(event.Payload)
		if err != nil {
			continue
		}
		if err := s.processEvent(ctx, event, raw); err != nil {
			s.webhookRepo.MarkProcessed(ctx, event.ID, err.Error())
			continue
		}
		if err := s.webhookRepo.MarkProcessed(ctx, event.ID, ""); err == nil {
			processed++
		}
	}
	return processed, nil
}

func (s *WebhookService) processEvent(ctx context.Context, event *models.WebhookEvent, payload []byte) error {
	switch event.EventType {
	case models.WebhookProductCreated, models.WebhookProductUpdated:
		return s.applyProductChange(ctx, payload)
	case models.WebhookProductDeleted:
		return s.applyProductDeletion(ctx, payload)
	case models.WebhookInventoryUpdated:
		return s.applyInventoryChange(ctx, payload)
	}
	return fmt.Errorf("unknown event type %s", event.EventType)
}

// applyProductChange upserts the local mirror of a platform product edit.
func (s *WebhookService) applyProductChange(ctx context.Context, payload []byte) error {
	var change models.ProductChangePayload
	if err := json.Unmarshal(payload, &change); err != nil {
		return fmt.Errorf("malformed product payload: %w", err)
	}
	if err := s.validate.Struct(&change); err != nil {
		return fmt.Errorf("product payload validation failed: %w", err)
	}

	state := productChangeToState(&change)

	itemKey := state.ExternalID
	shadow, err := s.shadowRepo.GetByExternalID(ctx, state.ExternalID)
	if err == nil {
		itemKey = shadow.ItemKey
		state.FeedID = derefString(shadow.FeedID)
	} else if err != repository.ErrNotFound {
		return err
	} else {
		shadow = nil
	}

	release, err := s.keyLock.Acquire(ctx, itemKey)
	if err != nil {
		return err
	}
	defer release()

	// Out-of-order deliveries: never let an older edit overwrite a newer one.
	if shadow != nil && shadow.LastPlatformUpdateAt != nil && !change.UpdatedAt.After(*shadow.LastPlatformUpdateAt) {
		s.logger.WithFields(logrus.Fields{
			"item_key":   itemKey,
			"event_time": change.UpdatedAt,
		}).Info("Stale product event dropped")
		return nil
	}

	if _, err := mirrorStateToCatalog(ctx, s.catalogRepo, state, true); err != nil {
		return err
	}

	if shadow == nil {
		shadow = &models.ShadowRecord{ItemKey: itemKey}
	}
	if err := shadow.SetProductState(state); err != nil {
		return err
	}
	shadow.Archived = false
	at := change.UpdatedAt
	shadow.LastPlatformUpdateAt = &at
	if err := s.shadowRepo.Upsert(ctx, shadow); err != nil {
		return err
	}

	s.logOutcome(ctx, models.OpUpdate, itemKey, state.ExternalID, models.JSONB{"source": "webhook"})
	return nil
}

// applyProductDeletion archives the local mirror of a deleted product.
func (s *WebhookService) applyProductDeletion(ctx context.Context, payload []byte) error {
	var deletion struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(payload, &deletion); err != nil {
		return fmt.Errorf("malformed deletion payload: %w", err)
	}
	externalID := deletion.ID.String()
	if externalID == "" {
		return fmt.Errorf("deletion payload missing product id")
	}

	shadow, err := s.shadowRepo.GetByExternalID(ctx, externalID)
	if err == repository.ErrNotFound {
		// Never synchronized; nothing local to archive.
		return nil
	}
	if err != nil {
		return err
	}

	release, err := s.keyLock.Acquire(ctx, shadow.ItemKey)
	if err != nil {
		return err
	}
	defer release()

	item, err := s.catalogRepo.GetItemByExternalID(ctx, externalID)
	if err == nil {
		// Unlink the platform id so a later re-create of the same product
		// cannot collide with the archived row.
		if err := s.catalogRepo.UpdateItemFields(ctx, item.ID, map[string]interface{}{
			"status":      models.CatalogStatusArchived,
			"external_id": nil,
		}); err != nil {
			return err
		}
	} else if err != repository.ErrNotFound {
		return err
	}

	if err := s.shadowRepo.Archive(ctx, shadow.ItemKey); err != nil {
		return err
	}

	s.logOutcome(ctx, models.OpDelete, shadow.ItemKey, externalID, models.JSONB{"source": "webhook"})
	return nil
}

// applyInventoryChange sets the mirrored quantity for one inventory item.
// Unknown inventory items are acknowledged, not failed, so the platform
// never retries a delivery we cannot use.
func (s *WebhookService) applyInventoryChange(ctx context.Context, payload []byte) error {
	var change models.InventoryChangePayload
	if err := json.Unmarshal(payload, &change); err != nil {
		return fmt.Errorf("malformed inventory payload: %w", err)
	}
	if err := s.validate.Struct(&change); err != nil {
		return fmt.Errorf("inventory payload validation failed: %w", err)
	}

	release, err := s.keyLock.Acquire(ctx, "inventory:"+change.InventoryItemID)
	if err != nil {
		return err
	}
	defer release()

	rows, err := s.catalogRepo.SetVariantInventoryByExternalItemID(ctx, change.InventoryItemID, change.Available)
	if err != nil {
		return err
	}

	detail := models.JSONB{"source": "webhook", "inventory_item_id": change.InventoryItemID}
	if rows == 0 {
		detail["not_found"] = true
		s.logger.WithField("inventory_item_id", change.InventoryItemID).
			Info("Inventory event for unknown item acknowledged")
	}
	s.logOutcome(ctx, models.OpInventory, "", "", detail)
	return nil
}

func (s *WebhookService) logOutcome(ctx context.Context, kind models.OperationKind, itemKey, externalID string, detail models.JSONB) {
	entry := &models.SyncLogEntry{
		Kind:       kind,
		Outcome:    models.OutcomeSuccess,
		ItemKey:    itemKey,
		ExternalID: externalID,
		Detail:     detail,
	}
	if err := s.syncRepo.AppendLogEntry(ctx, entry); err != nil {
		s.logger.WithField("error", err.Error()).Error("Failed to write webhook log entry")
	}
}

// productChangeToState converts a webhook payload into the neutral snapshot.
func productChangeToState(change *models.ProductChangePayload) *models.ProductState {
	state := &models.ProductState{
		ExternalID:  change.ExternalID,
		Title:       change.Title,
		Description: change.BodyHTML,
		Vendor:      change.Vendor,
		Status:      strings.ToUpper(change.Status),
		UpdatedAt:   change.UpdatedAt,
	}
	if state.Status == "" {
		state.Status = string(models.CatalogStatusActive)
	}
	if change.Tags != "" {
		state.Tags = strings.Split(change.Tags, ", ")
	}

	for _, v := range change.Variants {
		price, err := decimal.NewFromString(v.Price)
		if err != nil {
			price = decimal.Zero
		}
		state.Variants = append(state.Variants, models.VariantState{
			SKU:               v.SKU,
			Title:             v.Title,
			Price:             price,
			InventoryQuantity: v.InventoryQuantity,
			ExternalID:        v.ExternalID,
			InventoryItemID:   v.InventoryItemID,
		})
	}

	for _, img := range change.Images {
		state.Images = append(state.Images, models.ImageState{
			URL:      img.Src,
			AltText:  img.AltText,
			Position: img.Position,
		})
	}

	return state
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
