package models

import (
	"time"

	"github.com/google/uuid"
)

// ConflictKind classifies the divergence found by the three-way diff
type ConflictKind string

const (
	ConflictFeedChange     ConflictKind = "FEED_CHANGE"
	ConflictPlatformChange ConflictKind = "PLATFORM_CHANGE"
	ConflictCompetingEdit  ConflictKind = "COMPETING_EDIT"
	ConflictDeletion       ConflictKind = "DELETION_CONFLICT"
)

// Confidence scores how safe an automatic resolution would be
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// ResolutionAction is the recommended handling for a conflict
type ResolutionAction string

const (
	ActionAutoResolve   ResolutionAction = "AUTO_RESOLVE"
	ActionManualReview  ResolutionAction = "MANUAL_REVIEW"
	ActionAdminApproval ResolutionAction = "ADMIN_APPROVAL"
)

// ResolutionArchive approves a deletion conflict: the next sync run archives
// the item on the platform.
const ResolutionArchive = "archive"

// FieldChange describes one field diverging between two snapshots.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old,omitempty"`
	New   string `json:"new,omitempty"`
}

// Conflict is produced per item by the conflict detector. Auto-resolvable
// conflicts are consumed within the same run; the rest are persisted to the
// manual review queue.
type Conflict struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`

	RunID   *uuid.UUID `gorm:"type:uuid;index:idx_conflicts_run" json:"runId,omitempty"`
	ItemKey string     `gorm:"type:varchar(255);not null;index:idx_conflicts_item" json:"itemKey"`

	Kind       ConflictKind     `gorm:"type:varchar(50);not null" json:"kind"`
	Confidence Confidence       `gorm:"type:varchar(20);not null" json:"confidence"`
	Action     ResolutionAction `gorm:"type:varchar(50);not null" json:"action"`

	// Competing change descriptions from each side of the diff.
	FeedChanges     JSONB `gorm:"type:jsonb;default:'[]'" json:"feedChanges,omitempty"`
	PlatformChanges JSONB `gorm:"type:jsonb;default:'[]'" json:"platformChanges,omitempty"`

	Resolved   bool       `gorm:"not null;default:false" json:"resolved"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
	Resolution string     `gorm:"type:text" json:"resolution,omitempty"`

	// Applied flips once a run has executed the approved resolution.
	Applied bool `gorm:"not null;default:false" json:"applied"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
}

// TableName specifies the table name for Conflict
func (Conflict) TableName() string {
	return "sync_conflicts"
}

// SetChanges stores both change lists on the conflict record.
func (c *Conflict) SetChanges(feed, platform []FieldChange) {
	c.FeedChanges = changesToJSONB(feed)
	c.PlatformChanges = changesToJSONB(platform)
}

func changesToJSONB(changes []FieldChange) JSONB {
	fields := make([]interface{}, 0, len(changes))
	for _, ch := range changes {
		fields = append(fields, map[string]interface{}{
			"field": ch.Field,
			"old":   ch.Old,
			"new":   ch.New,
		})
	}
	return JSONB{"changes": fields}
}
