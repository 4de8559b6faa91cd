package services

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"catalog-sync-service/internal/clients"
	"catalog-sync-service/internal/clients/shopify"
	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/repository"
)

var mimeByExtension = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
}

// maxPixelDim is the platform's per-axis limit for product images.
const maxPixelDim = 5760

// MediaService drives each media asset through the staged upload protocol:
// reserve a storage destination, push the bytes, attach the resource to the
// product, then poll until the platform finishes processing. Every state
// transition is persisted so an interrupted upload resumes where it stopped.
type MediaService struct {
	mutations       *clients.MutationClient
	catalogRepo     repository.CatalogRepositoryInterface
	httpClient      *http.Client
	pollInterval    time.Duration
	pollMaxAttempts int
	maxBytes        int64
	interAssetDelay time.Duration
	logger          *logrus.Logger
}

// NewMediaService creates a new media service
func NewMediaService(
	mutations *clients.MutationClient,
	catalogRepo repository.CatalogRepositoryInterface,
	pollInterval time.Duration,
	pollMaxAttempts int,
	maxBytes int64,
	logger *logrus.Logger,
) *MediaService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if pollMaxAttempts <= 0 {
		pollMaxAttempts = 15
	}
	return &MediaService{
		mutations:       mutations,
		catalogRepo:     catalogRepo,
		httpClient:      &http.Client{Timeout: 60 * time.Second},
		pollInterval:    pollInterval,
		pollMaxAttempts: pollMaxAttempts,
		maxBytes:        maxBytes,
		interAssetDelay: 500 * time.Millisecond,
		logger:          logger,
	}
}

// ProcessBatch uploads one product's assets sequentially with a fixed pause
// between assets. One asset's failure never blocks its siblings; the
// returned slice holds the per-asset failures.
func (s *MediaService) ProcessBatch(ctx context.Context, itemKey, productExternalID string, assets []*models.MediaAsset) []error {
	var errs []error
	for i, asset := range assets {
		if i > 0 {
			select {
			case <-ctx.Done():
				errs = append(errs, ctx.Err())
				return errs
			case <-time.After(s.interAssetDelay):
			}
		}
		if err := s.ProcessAsset(ctx, itemKey, productExternalID, asset); err != nil {
			errs = append(errs, fmt.Errorf("media %s: %w", asset.SourcePath, err))
		}
	}
	return errs
}

// ProcessAsset advances one asset to a terminal state. itemKey identifies
// the owning product for audit attribution; productExternalID is the
// platform product the media attaches to.
func (s *MediaService) ProcessAsset(ctx context.Context, itemKey, productExternalID string, asset *models.MediaAsset) error {
	data, mimeType, err := s.validate(asset)
	if err != nil {
		return err
	}
	if asset.State == models.MediaPending {
		asset.State = models.MediaValidated
		if err := s.catalogRepo.SaveMediaAsset(ctx, asset); err != nil {
			return err
		}
	}

	filename := filepath.Base(asset.SourcePath)

	// Reserve a pre-signed destination.
	createOp := shopify.BuildStagedUploadsCreate(itemKey, filename, mimeType, int64(len(data)))
	createResult := s.mutations.Execute(ctx, createOp)
	if createResult.Err != nil {
		return createResult.Err
	}
	target, err := shopify.ParseStagedUploadsCreate(createResult.Response)
	if err != nil {
		return err
	}
	asset.State = models.MediaStagedCreated
	if err := s.catalogRepo.SaveMediaAsset(ctx, asset); err != nil {
		return err
	}

	// Push the bytes to storage. This goes straight to the provider, not
	// through the platform API, so it bypasses the mutation budget.
	if err := shopify.UploadToTarget(ctx, s.httpClient, target, filename, data); err != nil {
		return err
	}
	asset.State = models.MediaUploadedToStorage
	if err := s.catalogRepo.SaveMediaAsset(ctx, asset); err != nil {
		return err
	}

	// Attach the uploaded resource to the product.
	attachOp := shopify.BuildProductCreateMedia(itemKey, productExternalID, target.ResourceURL, asset.AltText)
	attachResult := s.mutations.Execute(ctx, attachOp)
	if attachResult.Err != nil {
		return attachResult.Err
	}
	record, err := shopify.ParseProductCreateMedia(attachResult.Response)
	if err != nil {
		return err
	}
	asset.ExternalID = &record.ID
	asset.State = models.MediaRecordCreated
	if err := s.catalogRepo.SaveMediaAsset(ctx, asset); err != nil {
		return err
	}

	return s.pollUntilAvailable(ctx, asset)
}

// pollUntilAvailable waits for platform-side processing to finish. Running
// out of poll budget is not a failure; the asset is flagged for the next
// reconciliation pass instead.
func (s *MediaService) pollUntilAvailable(ctx context.Context, asset *models.MediaAsset) error {
	if asset.ExternalID == nil {
		return fmt.Errorf("media asset %s has no platform record to poll", asset.SourcePath)
	}

	for attempt := 0; attempt < s.pollMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}

		statusOp := shopify.BuildMediaStatusQuery(*asset.ExternalID)
		statusResult := s.mutations.Execute(ctx, statusOp)
		if statusResult.Err != nil {
			if clients.IsRetryable(statusResult.Err) {
				continue
			}
			return statusResult.Err
		}

		record, err := shopify.ParseMediaStatus(statusResult.Response)
		if err != nil {
			return err
		}

		switch record.Status {
		case shopify.MediaStatusFailed:
			return &clients.APIError{
				Kind:    clients.ErrorKindPermanent,
				Message: fmt.Sprintf("platform rejected media %s", asset.SourcePath),
			}
		case shopify.MediaStatusReady:
			// READY with a null URL means the CDN record has not settled.
			if record.URL != "" {
				asset.ExternalURL = &record.URL
				asset.State = models.MediaAvailable
				asset.NeedsReconcile = false
				return s.catalogRepo.SaveMediaAsset(ctx, asset)
			}
		}
	}

	asset.State = models.MediaProcessingTimedOut
	asset.NeedsReconcile = true
	s.logger.WithFields(logrus.Fields{
		"source_path": asset.SourcePath,
		"media_id":    *asset.ExternalID,
	}).Warn("Media still processing after poll budget, deferring to reconciliation")
	return s.catalogRepo.SaveMediaAsset(ctx, asset)
}

// ReconcilePending re-queries assets whose final URL was still unknown when
// their upload run ended. Returns how many were resolved.
func (s *MediaService) ReconcilePending(ctx context.Context) (int, error) {
	assets, err := s.catalogRepo.ListMediaNeedingReconcile(ctx, 100)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for i := range assets {
		asset := &assets[i]
		if asset.ExternalID == nil {
			continue
		}

		statusOp := shopify.BuildMediaStatusQuery(*asset.ExternalID)
		statusResult := s.mutations.Execute(ctx, statusOp)
		if statusResult.Err != nil {
			continue
		}

		record, err := shopify.ParseMediaStatus(statusResult.Response)
		if err != nil {
			continue
		}

		if record.Status == shopify.MediaStatusReady && record.URL != "" {
			asset.ExternalURL = &record.URL
			asset.State = models.MediaAvailable
			asset.NeedsReconcile = false
			if err := s.catalogRepo.SaveMediaAsset(ctx, asset); err == nil {
				resolved++
			}
		}
	}

	return resolved, nil
}

// validate reads and checks the source file before any platform traffic.
func (s *MediaService) validate(asset *models.MediaAsset) ([]byte, string, error) {
	ext := strings.ToLower(filepath.Ext(asset.SourcePath))
	mimeType, ok := mimeByExtension[ext]
	if !ok {
		return nil, "", &clients.APIError{
			Kind:    clients.ErrorKindValidation,
			Message: fmt.Sprintf("unsupported media format %q for %s", ext, asset.SourcePath),
		}
	}

	data, err := os.ReadFile(asset.SourcePath)
	if err != nil {
		return nil, "", &clients.APIError{
			Kind:    clients.ErrorKindValidation,
			Message: fmt.Sprintf("cannot read media file %s: %v", asset.SourcePath, err),
			Err:     err,
		}
	}

	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, "", &clients.APIError{
			Kind:    clients.ErrorKindValidation,
			Message: fmt.Sprintf("media file %s exceeds %d bytes", asset.SourcePath, s.maxBytes),
		}
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", &clients.APIError{
			Kind:    clients.ErrorKindValidation,
			Message: fmt.Sprintf("media file %s is not a decodable image: %v", asset.SourcePath, err),
			Err:     err,
		}
	}

	bounds := img.Bounds()
	if bounds.Dx() < 1 || bounds.Dy() < 1 || bounds.Dx() > maxPixelDim || bounds.Dy() > maxPixelDim {
		return nil, "", &clients.APIError{
			Kind: clients.ErrorKindValidation,
			Message: fmt.Sprintf("media file %s dimensions %dx%d outside 1x1..%dx%d",
				asset.SourcePath, bounds.Dx(), bounds.Dy(), maxPixelDim, maxPixelDim),
		}
	}

	return data, mimeType, nil
}
