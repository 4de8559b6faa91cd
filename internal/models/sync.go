package models

import (
	"time"

	"github.com/google/uuid"
)

// RunState is the sync orchestrator state machine. Failed is reachable from
// every state on unrecoverable error.
type RunState string

const (
	RunStatePreparation RunState = "PREPARATION"
	RunStateFetching    RunState = "FETCHING"
	RunStateDiffing     RunState = "DIFFING"
	RunStatePlanning    RunState = "PLANNING"
	RunStateExecuting   RunState = "EXECUTING"
	RunStatePersisting  RunState = "PERSISTING"
	RunStateReporting   RunState = "REPORTING"
	RunStateDone        RunState = "DONE"
	RunStateFailed      RunState = "FAILED"
)

// TriggerType represents what triggered the run
type TriggerType string

const (
	TriggerManual    TriggerType = "MANUAL"
	TriggerScheduled TriggerType = "SCHEDULED"
)

// RunProgress tracks counters for an in-flight run
type RunProgress struct {
	PlannedOperations int `json:"plannedOperations"`
	Executed          int `json:"executed"`
	Succeeded         int `json:"succeeded"`
	Failed            int `json:"failed"`
	Skipped           int `json:"skipped"`
	ConflictsQueued   int `json:"conflictsQueued"`
}

// SyncRun is one full reconciliation pass over the catalog.
type SyncRun struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`

	State       RunState    `gorm:"type:varchar(50);not null;default:'PREPARATION';index:idx_sync_runs_state" json:"state"`
	TriggeredBy TriggerType `gorm:"type:varchar(50);not null;default:'MANUAL'" json:"triggeredBy"`

	DryRun     bool   `gorm:"not null;default:false" json:"dryRun"`
	ResumeFrom string `gorm:"type:varchar(255)" json:"resumeFrom,omitempty"`
	Partial    bool   `gorm:"not null;default:false" json:"partial"`

	Progress JSONB `gorm:"type:jsonb;default:'{}'" json:"progress"`

	ErrorMessage string `gorm:"type:text" json:"errorMessage,omitempty"`

	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`

	Logs []SyncLogEntry `gorm:"foreignKey:RunID" json:"logs,omitempty"`
}

// TableName specifies the table name for SyncRun
func (SyncRun) TableName() string {
	return "sync_runs"
}

// GetProgress returns run progress as a structured object
func (r *SyncRun) GetProgress() *RunProgress {
	progress := &RunProgress{}
	if r.Progress != nil {
		if v, ok := r.Progress["plannedOperations"].(float64); ok {
			progress.PlannedOperations = int(v)
		}
		if v, ok := r.Progress["executed"].(float64); ok {
			progress.Executed = int(v)
		}
		if v, ok := r.Progress["succeeded"].(float64); ok {
			progress.Succeeded = int(v)
		}
		if v, ok := r.Progress["failed"].(float64); ok {
			progress.Failed = int(v)
		}
		if v, ok := r.Progress["skipped"].(float64); ok {
			progress.Skipped = int(v)
		}
		if v, ok := r.Progress["conflictsQueued"].(float64); ok {
			progress.ConflictsQueued = int(v)
		}
	}
	return progress
}

// SetProgress stores run progress from a structured object
func (r *SyncRun) SetProgress(progress *RunProgress) {
	r.Progress = JSONB{
		"plannedOperations": progress.PlannedOperations,
		"executed":          progress.Executed,
		"succeeded":         progress.Succeeded,
		"failed":            progress.Failed,
		"skipped":           progress.Skipped,
		"conflictsQueued":   progress.ConflictsQueued,
	}
}

// OperationKind classifies a catalog mutation for audit purposes
type OperationKind string

const (
	OpCreate    OperationKind = "CREATE"
	OpUpdate    OperationKind = "UPDATE"
	OpDelete    OperationKind = "DELETE"
	OpInventory OperationKind = "INVENTORY"
)

// Outcome is the terminal result of an operation
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
)

// SyncLogEntry is the append-only audit record written for every terminal
// operation outcome. Entries are never mutated after creation; the resume
// path reads them back to skip already-completed work.
type SyncLogEntry struct {
	ID    uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	RunID *uuid.UUID `gorm:"type:uuid;index:idx_sync_log_run" json:"runId,omitempty"`

	Kind    OperationKind `gorm:"type:varchar(50);not null;index:idx_sync_log_kind" json:"kind"`
	Outcome Outcome       `gorm:"type:varchar(50);not null" json:"outcome"`

	ItemKey       string     `gorm:"type:varchar(255);index:idx_sync_log_item_key" json:"itemKey,omitempty"`
	CatalogItemID *uuid.UUID `gorm:"type:uuid" json:"catalogItemId,omitempty"`
	ExternalID    string     `gorm:"type:varchar(255)" json:"externalId,omitempty"`

	ErrorMessage string `gorm:"type:text" json:"errorMessage,omitempty"`
	Detail       JSONB  `gorm:"type:jsonb;default:'{}'" json:"detail,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP;index:idx_sync_log_created" json:"createdAt"`
}

// TableName specifies the table name for SyncLogEntry
func (SyncLogEntry) TableName() string {
	return "sync_log_entries"
}

// RunSummary is the batch report delivered to the notification collaborator.
type RunSummary struct {
	RunID    uuid.UUID     `json:"runId"`
	State    RunState      `json:"state"`
	DryRun   bool          `json:"dryRun"`
	Partial  bool          `json:"partial"`
	Progress RunProgress   `json:"progress"`
	Review   []Conflict    `json:"review,omitempty"`
	Duration time.Duration `json:"duration"`
}
