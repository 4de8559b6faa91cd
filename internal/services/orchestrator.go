package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"catalog-sync-service/internal/clients"
	"catalog-sync-service/internal/clients/shopify"
	"catalog-sync-service/internal/feed"
	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/repository"
)

var (
	// ErrRunLocked means another sync run holds the cross-instance lock.
	ErrRunLocked = errors.New("a sync run is already in progress")

	// ErrRunTimeout means the run exhausted its wall-clock budget. Work
	// already persisted stays; the run reports partial.
	ErrRunTimeout = errors.New("run budget exhausted")
)

// FeedSource abstracts feed retrieval
type FeedSource interface {
	Fetch(ctx context.Context) (*feed.Feed, error)
}

// RunOptions configures one sync run
type RunOptions struct {
	DryRun      bool
	TriggeredBy models.TriggerType
	// ResumeFrom skips items that already succeeded in the given run.
	ResumeFrom *uuid.UUID
	// ResumeFromItem skips items ordered before this key in the plan.
	ResumeFromItem string
}

// OrchestratorConfig carries the run-level tuning knobs
type OrchestratorConfig struct {
	RunBudget           time.Duration
	FailureAbortPercent float64
	FailureAbortMinOps  int
	LocationID          string
}

// SyncOrchestrator drives a full reconciliation pass through its state
// machine. At most one run executes at a time across all service instances.
type SyncOrchestrator struct {
	cfg         OrchestratorConfig
	feedSource  FeedSource
	platform    clients.PlatformReader
	mutations   *clients.MutationClient
	conflicts   *ConflictService
	media       *MediaService
	audit       *AuditService
	notifier    Notifier
	shadowRepo  repository.ShadowRepositoryInterface
	catalogRepo repository.CatalogRepositoryInterface
	syncRepo    repository.SyncRepositoryInterface
	reviewRepo  repository.ReviewRepositoryInterface
	logger      *logrus.Logger
}

// NewSyncOrchestrator creates a new sync orchestrator
func NewSyncOrchestrator(
	cfg OrchestratorConfig,
	feedSource FeedSource,
	platform clients.PlatformReader,
	mutations *clients.MutationClient,
	conflicts *ConflictService,
	media *MediaService,
	audit *AuditService,
	notifier Notifier,
	shadowRepo repository.ShadowRepositoryInterface,
	catalogRepo repository.CatalogRepositoryInterface,
	syncRepo repository.SyncRepositoryInterface,
	reviewRepo repository.ReviewRepositoryInterface,
	logger *logrus.Logger,
) *SyncOrchestrator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.RunBudget <= 0 {
		cfg.RunBudget = 50 * time.Minute
	}
	if cfg.FailureAbortPercent <= 0 {
		cfg.FailureAbortPercent = 20
	}
	if cfg.FailureAbortMinOps <= 0 {
		cfg.FailureAbortMinOps = 20
	}
	return &SyncOrchestrator{
		cfg:         cfg,
		feedSource:  feedSource,
		platform:    platform,
		mutations:   mutations,
		conflicts:   conflicts,
		media:       media,
		audit:       audit,
		notifier:    notifier,
		shadowRepo:  shadowRepo,
		catalogRepo: catalogRepo,
		syncRepo:    syncRepo,
		reviewRepo:  reviewRepo,
		logger:      logger,
	}
}

// StartRun acquires the run lock, records the run and executes it in the
// background. Returns ErrRunLocked when a run is already in flight.
func (s *SyncOrchestrator) StartRun(ctx context.Context, opts RunOptions) (*models.SyncRun, error) {
	acquired, err := s.syncRepo.TryAcquireRunLock(ctx)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrRunLocked
	}

	if opts.TriggeredBy == "" {
		opts.TriggeredBy = models.TriggerManual
	}

	now := time.Now()
	run := &models.SyncRun{
		State:       models.RunStatePreparation,
		TriggeredBy: opts.TriggeredBy,
		DryRun:      opts.DryRun,
		StartedAt:   &now,
	}
	if opts.ResumeFrom != nil {
		run.ResumeFrom = opts.ResumeFrom.String()
	}
	run.SetProgress(&models.RunProgress{})

	if err := s.syncRepo.CreateRun(ctx, run); err != nil {
		s.syncRepo.ReleaseRunLock(ctx)
		return nil, err
	}

	s.audit.BeginRun(run.ID)
	go s.execute(run, opts)

	return run, nil
}

// plannedOp is one platform mutation plus the local state to persist on
// success. state is nil for archive operations; conflictID links an archive
// back to the review decision that approved it.
type plannedOp struct {
	op         *clients.Operation
	state      *models.ProductState
	isCreate   bool
	conflictID *uuid.UUID
}

func (s *SyncOrchestrator) execute(run *models.SyncRun, opts RunOptions) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunBudget)
	defer cancel()
	defer s.audit.EndRun()
	defer s.syncRepo.ReleaseRunLock(context.Background())

	start := time.Now()
	progress := &models.RunProgress{}

	fail := func(err error, partial bool) {
		s.logger.WithFields(logrus.Fields{
			"run_id": run.ID,
			"error":  err.Error(),
		}).Error("Sync run failed")
		run.SetProgress(progress)
		now := time.Now()
		s.syncRepo.UpdateRunState(context.Background(), run.ID, models.RunStateFailed, map[string]interface{}{
			"error_message": err.Error(),
			"partial":       partial,
			"progress":      run.Progress,
			"completed_at":  now,
		})
		s.notify(run, models.RunStateFailed, partial, progress, nil, time.Since(start))
	}

	// FETCHING
	if err := s.transition(ctx, run, models.RunStateFetching, nil); err != nil {
		fail(err, false)
		return
	}

	feedDoc, err := s.feedSource.Fetch(ctx)
	if err != nil {
		fail(fmt.Errorf("feed fetch: %w", err), false)
		return
	}
	feedSnap := feedDoc.ToSnapshot()

	platformMap, err := s.fetchPlatform(ctx)
	if err != nil {
		fail(fmt.Errorf("platform fetch: %w", err), false)
		return
	}

	shadows, err := s.loadShadows(ctx)
	if err != nil {
		fail(fmt.Errorf("shadow load: %w", err), false)
		return
	}

	// DIFFING
	if err := s.transition(ctx, run, models.RunStateDiffing, nil); err != nil {
		fail(err, false)
		return
	}
	diff := s.conflicts.Detect(feedSnap, platformMap, shadows)

	// PLANNING
	if err := s.transition(ctx, run, models.RunStatePlanning, nil); err != nil {
		fail(err, false)
		return
	}

	resumeSkip := map[string]bool{}
	if opts.ResumeFrom != nil {
		resumeSkip, err = s.syncRepo.SucceededItemKeys(ctx, *opts.ResumeFrom)
		if err != nil {
			fail(fmt.Errorf("resume lookup: %w", err), false)
			return
		}
	}

	planned := s.plan(ctx, diff, resumeSkip, opts.ResumeFromItem, progress)
	planned = append(planned, s.planApprovedDeletions(ctx)...)
	progress.PlannedOperations = len(planned)

	var review []models.Conflict
	for _, conflict := range diff.Conflicts {
		if conflict.Action == models.ActionAutoResolve {
			continue
		}
		conflict.RunID = &run.ID
		if !run.DryRun {
			if err := s.reviewRepo.CreateConflict(ctx, conflict); err != nil {
				fail(fmt.Errorf("queue conflict: %w", err), false)
				return
			}
		}
		progress.ConflictsQueued++
		review = append(review, *conflict)
	}

	if run.DryRun {
		run.SetProgress(progress)
		now := time.Now()
		s.syncRepo.UpdateRunState(ctx, run.ID, models.RunStateDone, map[string]interface{}{
			"progress":     run.Progress,
			"completed_at": now,
		})
		s.notify(run, models.RunStateDone, false, progress, review, time.Since(start))
		return
	}

	// EXECUTING
	if err := s.transition(ctx, run, models.RunStateExecuting, nil); err != nil {
		fail(err, false)
		return
	}

	partial := false
	var abortErr error
	for i, p := range planned {
		if ctx.Err() != nil {
			partial = true
			abortErr = fmt.Errorf("%w after %d of %d operations", ErrRunTimeout, i, len(planned))
			break
		}

		result := s.mutations.Execute(ctx, p.op)
		progress.Executed++
		if result.Succeeded() {
			progress.Succeeded++
			s.applySuccess(ctx, p, result, progress)
		} else {
			progress.Failed++
		}

		if progress.Executed >= s.cfg.FailureAbortMinOps &&
			float64(progress.Failed)*100 > float64(progress.Executed)*s.cfg.FailureAbortPercent {
			partial = true
			abortErr = fmt.Errorf("aborted: %d of %d operations failed", progress.Failed, progress.Executed)
			break
		}

		if (i+1)%10 == 0 {
			run.SetProgress(progress)
			s.syncRepo.UpdateRunState(ctx, run.ID, models.RunStateExecuting, map[string]interface{}{
				"progress": run.Progress,
			})
		}
	}

	// PERSISTING
	if err := s.transition(ctx, run, models.RunStatePersisting, nil); err != nil {
		fail(err, partial)
		return
	}

	for _, pull := range diff.Pulls {
		if err := s.persistPull(ctx, pull); err != nil {
			s.logger.WithFields(logrus.Fields{
				"item_key": pull.ItemKey,
				"error":    err.Error(),
			}).Error("Failed to persist platform change")
		}
	}
	for _, key := range diff.ShadowRetires {
		if err := s.shadowRepo.Archive(ctx, key); err != nil {
			s.logger.WithFields(logrus.Fields{
				"item_key": key,
				"error":    err.Error(),
			}).Error("Failed to retire shadow record")
		}
	}

	if resolved, err := s.media.ReconcilePending(ctx); err == nil && resolved > 0 {
		s.logger.WithField("resolved", resolved).Info("Reconciled pending media assets")
	}

	// REPORTING
	if err := s.transition(ctx, run, models.RunStateReporting, nil); err != nil {
		fail(err, partial)
		return
	}

	run.SetProgress(progress)
	now := time.Now()
	finalState := models.RunStateDone
	updates := map[string]interface{}{
		"progress":     run.Progress,
		"partial":      partial,
		"completed_at": now,
	}
	if abortErr != nil {
		finalState = models.RunStateFailed
		updates["error_message"] = abortErr.Error()
	}
	s.syncRepo.UpdateRunState(context.Background(), run.ID, finalState, updates)
	s.notify(run, finalState, partial, progress, review, time.Since(start))
}

// plan turns the diff into an ordered operation list: creates, then updates,
// each sorted by item key so resume boundaries are stable across runs. Items
// that already succeeded in the resumed run, or that sort before the item
// boundary, are skipped.
func (s *SyncOrchestrator) plan(ctx context.Context, diff *DiffResult, resumeSkip map[string]bool, resumeFromItem string, progress *models.RunProgress) []plannedOp {
	skip := func(key string) bool {
		if resumeSkip[key] {
			progress.Skipped++
			return true
		}
		if resumeFromItem != "" && key < resumeFromItem {
			progress.Skipped++
			return true
		}
		return false
	}

	var planned []plannedOp

	creates := make([]*models.ProductState, len(diff.Creates))
	copy(creates, diff.Creates)
	sort.Slice(creates, func(i, j int) bool { return creates[i].Key() < creates[j].Key() })
	for _, state := range creates {
		if skip(state.Key()) {
			continue
		}
		planned = append(planned, plannedOp{
			op:       shopify.BuildProductCreate(state),
			state:    state,
			isCreate: true,
		})
	}

	updates := make([]PlannedUpdate, len(diff.Updates))
	copy(updates, diff.Updates)
	sort.Slice(updates, func(i, j int) bool { return updates[i].ItemKey < updates[j].ItemKey })
	for _, update := range updates {
		if skip(update.ItemKey) {
			continue
		}
		planned = append(planned, s.planUpdate(ctx, update)...)
	}

	return planned
}

// planApprovedDeletions turns review-approved deletion conflicts into archive
// operations. Deletions only ever execute through this path; the diff itself
// never plans one.
func (s *SyncOrchestrator) planApprovedDeletions(ctx context.Context) []plannedOp {
	approved, err := s.reviewRepo.ListApprovedDeletions(ctx)
	if err != nil {
		s.logger.WithField("error", err.Error()).Error("Failed to load approved deletions")
		return nil
	}

	var planned []plannedOp
	for i := range approved {
		conflict := &approved[i]
		shadow, err := s.shadowRepo.GetByItemKey(ctx, conflict.ItemKey)
		if err != nil || shadow.ExternalID == nil {
			s.logger.WithField("item_key", conflict.ItemKey).
				Warn("Approved deletion has no platform id to archive")
			continue
		}
		planned = append(planned, plannedOp{
			op:         shopify.BuildProductArchive(*shadow.ExternalID, conflict.ItemKey),
			conflictID: &conflict.ID,
		})
	}
	return planned
}

// planUpdate chooses the cheapest operation for one update. Changes limited
// to inventory quantities use the inventory endpoint when the variant is
// linked to a platform inventory item; everything else is a product update.
func (s *SyncOrchestrator) planUpdate(ctx context.Context, update PlannedUpdate) []plannedOp {
	if s.cfg.LocationID != "" && inventoryOnly(update.Changes) {
		var ops []plannedOp
		for _, ch := range update.Changes {
			sku, _, _ := parseVariantField(ch.Field)
			variant, err := s.catalogRepo.GetVariantBySKU(ctx, sku)
			if err != nil || variant.ExternalInventoryItemID == nil {
				ops = nil
				break
			}
			desired := update.State.VariantBySKU(sku)
			if desired == nil {
				continue
			}
			ops = append(ops, plannedOp{
				op: shopify.BuildInventorySet(*variant.ExternalInventoryItemID, s.cfg.LocationID,
					desired.InventoryQuantity, update.ItemKey),
				state: update.State,
			})
		}
		if len(ops) > 0 {
			return ops
		}
	}

	return []plannedOp{{
		op:    shopify.BuildProductUpdate(update.ExternalID, update.State),
		state: update.State,
	}}
}

func inventoryOnly(changes []models.FieldChange) bool {
	for _, ch := range changes {
		_, attr, ok := parseVariantField(ch.Field)
		if !ok || attr != "inventory" {
			return false
		}
	}
	return len(changes) > 0
}

// applySuccess persists the local consequences of a successful mutation.
func (s *SyncOrchestrator) applySuccess(ctx context.Context, p plannedOp, result *clients.OperationResult, progress *models.RunProgress) {
	if p.state == nil {
		// Archive: flag the mirror and shadow.
		s.archiveLocal(ctx, p.op.ItemKey)
		if p.conflictID != nil {
			if err := s.reviewRepo.MarkApplied(ctx, *p.conflictID); err != nil {
				s.logger.WithField("error", err.Error()).Error("Failed to mark deletion conflict applied")
			}
		}
		return
	}

	desired := p.state
	if p.isCreate || p.op.Name == "product_update" {
		if parsed, err := shopify.ParseProductResponse(result.Response); err == nil {
			desired = mergePlatformIdentity(desired, parsed)
		}
	}

	item, err := mirrorStateToCatalog(ctx, s.catalogRepo, desired, false)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"item_key": p.op.ItemKey,
			"error":    err.Error(),
		}).Error("Failed to mirror synced state")
		return
	}

	shadow, err := s.shadowRepo.GetByItemKey(ctx, p.op.ItemKey)
	if err == repository.ErrNotFound {
		shadow = &models.ShadowRecord{ItemKey: p.op.ItemKey}
	} else if err != nil {
		s.logger.WithField("error", err.Error()).Error("Failed to load shadow record")
		return
	}
	shadow.CatalogItemID = &item.ID
	shadow.Archived = false
	if err := shadow.SetProductState(desired); err == nil {
		if err := s.shadowRepo.Upsert(ctx, shadow); err != nil {
			s.logger.WithField("error", err.Error()).Error("Failed to update shadow record")
		}
	}

	if p.isCreate {
		s.uploadNewMedia(ctx, item, desired, progress)
	}
}

// uploadNewMedia runs the staged upload pipeline for each image of a newly
// created product.
func (s *SyncOrchestrator) uploadNewMedia(ctx context.Context, item *models.CatalogItem, state *models.ProductState, progress *models.RunProgress) {
	var assets []*models.MediaAsset
	for _, img := range state.Images {
		if img.SourcePath == "" {
			continue
		}

		asset := &models.MediaAsset{
			CatalogItemID: item.ID,
			SourcePath:    img.SourcePath,
			AltText:       img.AltText,
			Position:      img.Position,
			IsPrimary:     img.Position == 0,
			State:         models.MediaPending,
		}
		if err := s.catalogRepo.SaveMediaAsset(ctx, asset); err != nil {
			s.logger.WithField("error", err.Error()).Error("Failed to record media asset")
			continue
		}
		assets = append(assets, asset)
	}
	if len(assets) == 0 {
		return
	}

	for _, err := range s.media.ProcessBatch(ctx, state.Key(), state.ExternalID, assets) {
		progress.Failed++
		s.logger.WithFields(logrus.Fields{
			"item_key": state.Key(),
			"error":    err.Error(),
		}).Warn("Media upload failed")
	}
}

// persistPull accepts a platform-side change into the mirror and shadow.
func (s *SyncOrchestrator) persistPull(ctx context.Context, pull PlannedPull) error {
	state := pull.State

	item, err := mirrorStateToCatalog(ctx, s.catalogRepo, state, true)
	if err != nil {
		return err
	}

	shadow, err := s.shadowRepo.GetByItemKey(ctx, pull.ItemKey)
	if err == repository.ErrNotFound {
		shadow = &models.ShadowRecord{ItemKey: pull.ItemKey}
	} else if err != nil {
		return err
	}
	shadow.CatalogItemID = &item.ID
	if err := shadow.SetProductState(state); err != nil {
		return err
	}
	at := state.UpdatedAt
	shadow.LastPlatformUpdateAt = &at
	return s.shadowRepo.Upsert(ctx, shadow)
}

func (s *SyncOrchestrator) archiveLocal(ctx context.Context, itemKey string) {
	shadow, err := s.shadowRepo.GetByItemKey(ctx, itemKey)
	if err != nil {
		return
	}
	if shadow.CatalogItemID != nil {
		s.catalogRepo.UpdateItemFields(ctx, *shadow.CatalogItemID, map[string]interface{}{
			"status": models.CatalogStatusArchived,
		})
	}
	s.shadowRepo.Archive(ctx, itemKey)
}

func (s *SyncOrchestrator) fetchPlatform(ctx context.Context) (map[string]*models.ProductState, error) {
	result := make(map[string]*models.ProductState)

	opts := clients.ListOptions{Limit: 250}
	for {
		page, err := s.platform.ListProducts(ctx, opts)
		if err != nil {
			return nil, err
		}
		for _, state := range page.Products {
			result[state.ExternalID] = state
		}
		if page.NextPageInfo == "" {
			break
		}
		opts.PageInfo = page.NextPageInfo
	}

	return result, nil
}

func (s *SyncOrchestrator) loadShadows(ctx context.Context) (models.Snapshot, error) {
	records, err := s.shadowRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := make(models.Snapshot, len(records))
	for i := range records {
		state, err := records[i].ProductState()
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"item_key": records[i].ItemKey,
				"error":    err.Error(),
			}).Error("Skipping undecodable shadow record")
			continue
		}
		snapshot[records[i].ItemKey] = state
	}
	return snapshot, nil
}

func (s *SyncOrchestrator) transition(ctx context.Context, run *models.SyncRun, state models.RunState, updates map[string]interface{}) error {
	s.logger.WithFields(logrus.Fields{
		"run_id": run.ID,
		"state":  state,
	}).Info("Sync run transition")
	run.State = state
	return s.syncRepo.UpdateRunState(ctx, run.ID, state, updates)
}

func (s *SyncOrchestrator) notify(run *models.SyncRun, state models.RunState, partial bool, progress *models.RunProgress, review []models.Conflict, duration time.Duration) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyRunSummary(context.Background(), &models.RunSummary{
		RunID:    run.ID,
		State:    state,
		DryRun:   run.DryRun,
		Partial:  partial,
		Progress: *progress,
		Review:   review,
		Duration: duration,
	})
}

// mergePlatformIdentity copies the platform-assigned identifiers from a
// mutation reply onto the desired state.
func mergePlatformIdentity(desired, parsed *models.ProductState) *models.ProductState {
	merged := *desired
	merged.ExternalID = parsed.ExternalID

	for i := range merged.Variants {
		for _, pv := range parsed.Variants {
			if strings.EqualFold(pv.SKU, merged.Variants[i].SKU) {
				merged.Variants[i].ExternalID = pv.ExternalID
				break
			}
		}
	}
	return &merged
}
