package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"catalog-sync-service/internal/models"
)

// runLockKey is the advisory lock key shared by every instance of this
// service. Holding it means a sync run is in flight somewhere.
const runLockKey = 824011

// RunListOptions controls run listing
type RunListOptions struct {
	State  models.RunState
	Limit  int
	Offset int
}

// SyncRepositoryInterface defines the contract for sync run persistence
type SyncRepositoryInterface interface {
	CreateRun(ctx context.Context, run *models.SyncRun) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.SyncRun, error)
	ListRuns(ctx context.Context, opts RunListOptions) ([]models.SyncRun, int64, error)
	UpdateRunState(ctx context.Context, id uuid.UUID, state models.RunState, updates map[string]interface{}) error
	AppendLogEntry(ctx context.Context, entry *models.SyncLogEntry) error
	GetRunLogs(ctx context.Context, runID uuid.UUID, limit int) ([]models.SyncLogEntry, error)
	SucceededItemKeys(ctx context.Context, runID uuid.UUID) (map[string]bool, error)
	TryAcquireRunLock(ctx context.Context) (bool, error)
	ReleaseRunLock(ctx context.Context) error
}

// SyncRepository handles database operations for sync runs. The advisory
// lock is session-scoped, so it lives on a single pinned connection rather
// than the pool.
type SyncRepository struct {
	db    *gorm.DB
	sqlDB *sql.DB

	lockMu   sync.Mutex
	lockConn *sql.Conn
}

// NewSyncRepository creates a new SyncRepository
func NewSyncRepository(db *gorm.DB) (*SyncRepository, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	return &SyncRepository{db: db, sqlDB: sqlDB}, nil
}

// CreateRun creates a new sync run
func (r *SyncRepository) CreateRun(ctx context.Context, run *models.SyncRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// GetRun retrieves a sync run by ID
func (r *SyncRepository) GetRun(ctx context.Context, id uuid.UUID) (*models.SyncRun, error) {
	var run models.SyncRun
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

// ListRuns retrieves sync runs with filtering and pagination
func (r *SyncRepository) ListRuns(ctx context.Context, opts RunListOptions) ([]models.SyncRun, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.SyncRun{})

	if opts.State != "" {
		query = query.Where("state = ?", opts.State)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	var runs []models.SyncRun
	err := query.Order("created_at DESC").Limit(limit).Offset(opts.Offset).Find(&runs).Error
	return runs, total, err
}

// UpdateRunState transitions a run and applies any extra column updates
func (r *SyncRepository) UpdateRunState(ctx context.Context, id uuid.UUID, state models.RunState, updates map[string]interface{}) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["state"] = state
	updates["updated_at"] = time.Now()

	return r.db.WithContext(ctx).Model(&models.SyncRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// AppendLogEntry writes one terminal operation outcome. Entries are
// append-only.
func (r *SyncRepository) AppendLogEntry(ctx context.Context, entry *models.SyncLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// GetRunLogs retrieves the log entries of one run
func (r *SyncRepository) GetRunLogs(ctx context.Context, runID uuid.UUID, limit int) ([]models.SyncLogEntry, error) {
	if limit <= 0 {
		limit = 500
	}
	var entries []models.SyncLogEntry
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("created_at ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// SucceededItemKeys returns the item keys that reached a successful terminal
// outcome in the given run. The resume path skips these.
func (r *SyncRepository) SucceededItemKeys(ctx context.Context, runID uuid.UUID) (map[string]bool, error) {
	var keys []string
	err := r.db.WithContext(ctx).Model(&models.SyncLogEntry{}).
		Where("run_id = ? AND outcome = ? AND item_key <> ''", runID, models.OutcomeSuccess).
		Distinct().
		Pluck("item_key", &keys).Error
	if err != nil {
		return nil, err
	}

	result := make(map[string]bool, len(keys))
	for _, k := range keys {
		result[k] = true
	}
	return result, nil
}

// TryAcquireRunLock attempts to take the cross-instance run lock without
// blocking. Returns false when another run holds it. The lock is held on a
// dedicated connection so a pooled release from another session can never
// unlock it.
func (r *SyncRepository) TryAcquireRunLock(ctx context.Context) (bool, error) {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()

	if r.lockConn != nil {
		// This instance already holds the lock.
		return false, nil
	}

	conn, err := r.sqlDB.Conn(ctx)
	if err != nil {
		return false, err
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", runLockKey).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}

	r.lockConn = conn
	return true, nil
}

// ReleaseRunLock releases the cross-instance run lock and returns the pinned
// connection to the pool.
func (r *SyncRepository) ReleaseRunLock(ctx context.Context) error {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()

	if r.lockConn == nil {
		return nil
	}

	_, err := r.lockConn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", runLockKey)
	closeErr := r.lockConn.Close()
	r.lockConn = nil
	if err != nil {
		return err
	}
	return closeErr
}
