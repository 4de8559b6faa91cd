package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"catalog-sync-service/internal/clients"
	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/repository"
)

// AuditService records the terminal outcome of every platform mutation as an
// append-only log entry. Entries written while a run is active are attributed
// to that run.
type AuditService struct {
	syncRepo repository.SyncRepositoryInterface
	logger   *logrus.Logger

	mu    sync.RWMutex
	runID *uuid.UUID
}

// NewAuditService creates a new audit service
func NewAuditService(syncRepo repository.SyncRepositoryInterface, logger *logrus.Logger) *AuditService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuditService{
		syncRepo: syncRepo,
		logger:   logger,
	}
}

// BeginRun attributes subsequent entries to the given run. Only one run is
// active at a time; the run lock guarantees that.
func (s *AuditService) BeginRun(runID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := runID
	s.runID = &id
}

// EndRun stops attributing entries to a run
func (s *AuditService) EndRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = nil
}

// LogOperation implements clients.AuditLogger
func (s *AuditService) LogOperation(ctx context.Context, op *clients.Operation, outcome models.Outcome, attempts int, errMessage string) {
	s.mu.RLock()
	runID := s.runID
	s.mu.RUnlock()

	entry := &models.SyncLogEntry{
		RunID:        runID,
		Kind:         op.Kind,
		Outcome:      outcome,
		ItemKey:      op.ItemKey,
		ErrorMessage: errMessage,
		Detail: models.JSONB{
			"operation": op.Name,
			"attempts":  attempts,
		},
	}

	if err := s.syncRepo.AppendLogEntry(ctx, entry); err != nil {
		s.logger.WithFields(logrus.Fields{
			"operation": op.Name,
			"item_key":  op.ItemKey,
			"error":     err.Error(),
		}).Error("Failed to write audit log entry")
	}
}
