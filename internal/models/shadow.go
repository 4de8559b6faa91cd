package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ShadowRecord is the persisted mirror of a catalog item as last known
// synchronized with the commerce platform. It is the "previous known state"
// operand of the three-way diff. Only the sync orchestrator and the webhook
// ingestion service write shadow records.
type ShadowRecord struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`

	ItemKey    string  `gorm:"type:varchar(255);not null;uniqueIndex:idx_shadow_records_key" json:"itemKey"`
	FeedID     *string `gorm:"type:varchar(255);index:idx_shadow_records_feed" json:"feedId,omitempty"`
	ExternalID *string `gorm:"type:varchar(255);index:idx_shadow_records_external" json:"externalId,omitempty"`

	CatalogItemID *uuid.UUID `gorm:"type:uuid;index:idx_shadow_records_item" json:"catalogItemId,omitempty"`

	// Last-synchronized product snapshot (ProductState JSON).
	State datatypes.JSON `gorm:"type:jsonb;not null" json:"state"`

	Archived bool `gorm:"not null;default:false" json:"archived"`

	// Timestamp of the newest platform-originated change applied to this
	// record; used to drop stale webhook deliveries.
	LastPlatformUpdateAt *time.Time `json:"lastPlatformUpdateAt,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName specifies the table name for ShadowRecord
func (ShadowRecord) TableName() string {
	return "shadow_records"
}

// ProductState decodes the stored snapshot.
func (s *ShadowRecord) ProductState() (*ProductState, error) {
	var state ProductState
	if err := json.Unmarshal(s.State, &state); err != nil {
		return nil, fmt.Errorf("failed to decode shadow state %s: %w", s.ItemKey, err)
	}
	return &state, nil
}

// SetProductState encodes and stores the snapshot, refreshing the link columns.
func (s *ShadowRecord) SetProductState(state *ProductState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode shadow state %s: %w", s.ItemKey, err)
	}
	s.State = datatypes.JSON(raw)
	if state.FeedID != "" {
		s.FeedID = &state.FeedID
	}
	if state.ExternalID != "" {
		s.ExternalID = &state.ExternalID
	} else {
		s.ExternalID = nil
	}
	return nil
}
