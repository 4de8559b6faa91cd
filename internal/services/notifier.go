package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"catalog-sync-service/internal/models"
)

// Notifier receives the batch summary at the end of every run. Individual
// operation failures are never pushed through this interface; they arrive
// aggregated in the summary.
type Notifier interface {
	NotifyRunSummary(ctx context.Context, summary *models.RunSummary)
}

// LogNotifier reports run summaries through the structured log.
type LogNotifier struct {
	logger *logrus.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogNotifier{logger: logger}
}

// NotifyRunSummary implements Notifier
func (n *LogNotifier) NotifyRunSummary(ctx context.Context, summary *models.RunSummary) {
	n.logger.WithFields(logrus.Fields{
		"run_id":           summary.RunID,
		"state":            summary.State,
		"dry_run":          summary.DryRun,
		"partial":          summary.Partial,
		"planned":          summary.Progress.PlannedOperations,
		"executed":         summary.Progress.Executed,
		"succeeded":        summary.Progress.Succeeded,
		"failed":           summary.Progress.Failed,
		"skipped":          summary.Progress.Skipped,
		"conflicts_queued": summary.Progress.ConflictsQueued,
		"review_items":     len(summary.Review),
		"duration":         summary.Duration.String(),
	}).Info("Sync run finished")
}
