package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"catalog-sync-service/internal/models"
)

// PlannedUpdate is a feed-driven change to push to the platform.
type PlannedUpdate struct {
	ItemKey    string
	ExternalID string
	State      *models.ProductState
	Changes    []models.FieldChange
}

// PlannedPull accepts a platform-originated change into local state without
// touching the platform.
type PlannedPull struct {
	ItemKey string
	State   *models.ProductState
}

// DiffResult is the full output of one three-way comparison. Deletions never
// appear as planned operations; feed-dropped items surface as conflicts and
// are archived only once a reviewer approves them.
type DiffResult struct {
	Creates       []*models.ProductState
	Updates       []PlannedUpdate
	Pulls         []PlannedPull
	Conflicts     []*models.Conflict
	ShadowRetires []string // shadow keys whose item is gone everywhere
	InSync        int
	Unmanaged     int
}

// ConflictService classifies divergence between the feed, the platform and
// the last-synchronized shadow state. Each change is attributed to the side
// that moved relative to the shadow.
type ConflictService struct {
	priceReviewPct decimal.Decimal
	logger         *logrus.Logger
}

// NewConflictService creates a conflict detector. priceReviewPercent is the
// price divergence, in percent, beyond which competing price edits escalate
// to admin approval.
func NewConflictService(priceReviewPercent float64, logger *logrus.Logger) *ConflictService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ConflictService{
		priceReviewPct: decimal.NewFromFloat(priceReviewPercent),
		logger:         logger,
	}
}

// Detect runs the three-way diff across all item keys. shadows maps item key
// to the last-synchronized snapshot; platform is keyed by external id.
func (s *ConflictService) Detect(feed models.Snapshot, platform map[string]*models.ProductState, shadows models.Snapshot) *DiffResult {
	result := &DiffResult{}

	claimed := make(map[string]bool) // external ids owned by a shadow record

	for key, feedState := range feed {
		shadowState, known := shadows[key]
		if !known {
			result.Creates = append(result.Creates, feedState)
			continue
		}

		claimed[shadowState.ExternalID] = true
		platState := platform[shadowState.ExternalID]
		if platState == nil {
			// Item vanished from the platform while still in the feed.
			conflict := &models.Conflict{
				ItemKey:    key,
				Kind:       models.ConflictDeletion,
				Confidence: models.ConfidenceMedium,
				Action:     models.ActionManualReview,
			}
			conflict.SetChanges(diffStates(shadowState, feedState), []models.FieldChange{
				{Field: "product", Old: shadowState.ExternalID, New: ""},
			})
			result.Conflicts = append(result.Conflicts, conflict)
			continue
		}

		feedChanges := diffStates(shadowState, feedState)
		platformChanges := diffStates(shadowState, platState)

		switch {
		case len(feedChanges) == 0 && len(platformChanges) == 0:
			result.InSync++

		case len(platformChanges) == 0:
			// Only the feed moved. Push it.
			desired := withIdentity(feedState, shadowState.ExternalID)
			result.Updates = append(result.Updates, PlannedUpdate{
				ItemKey:    key,
				ExternalID: shadowState.ExternalID,
				State:      desired,
				Changes:    feedChanges,
			})
			conflict := &models.Conflict{
				ItemKey:    key,
				Kind:       models.ConflictFeedChange,
				Confidence: models.ConfidenceHigh,
				Action:     models.ActionAutoResolve,
			}
			conflict.SetChanges(feedChanges, nil)
			result.Conflicts = append(result.Conflicts, conflict)

		case len(feedChanges) == 0:
			// Only the platform moved. Accept it locally.
			result.Pulls = append(result.Pulls, PlannedPull{ItemKey: key, State: platState})
			conflict := &models.Conflict{
				ItemKey:    key,
				Kind:       models.ConflictPlatformChange,
				Confidence: models.ConfidenceHigh,
				Action:     models.ActionAutoResolve,
			}
			conflict.SetChanges(nil, platformChanges)
			result.Conflicts = append(result.Conflicts, conflict)

		default:
			result.Conflicts = append(result.Conflicts,
				s.classifyCompeting(key, shadowState, feedState, platState, feedChanges, platformChanges, result))
		}
	}

	// Shadow records whose feed entry disappeared.
	for key, shadowState := range shadows {
		if _, stillFed := feed[key]; stillFed {
			continue
		}

		claimed[shadowState.ExternalID] = true
		platState := platform[shadowState.ExternalID]
		if platState == nil {
			result.ShadowRetires = append(result.ShadowRetires, key)
			continue
		}

		// Feed absence is a deletion signal, never a deletion command. The
		// item goes to review even when the platform side is untouched;
		// approved deletions are archived by a later run.
		platformChanges := diffStates(shadowState, platState)
		confidence := models.ConfidenceMedium
		if len(platformChanges) > 0 {
			// Edited on the platform since the last sync. Archiving would
			// destroy someone's work.
			confidence = models.ConfidenceLow
		}
		conflict := &models.Conflict{
			ItemKey:    key,
			Kind:       models.ConflictDeletion,
			Confidence: confidence,
			Action:     models.ActionManualReview,
		}
		conflict.SetChanges([]models.FieldChange{
			{Field: "product", Old: key, New: ""},
		}, platformChanges)
		result.Conflicts = append(result.Conflicts, conflict)
	}

	// Platform products no shadow record claims are not feed-managed.
	for externalID := range platform {
		if !claimed[externalID] {
			result.Unmanaged++
		}
	}

	return result
}

// cosmeticFields are descriptive text attributes where a competing edit is
// safe to resolve by recency. Prices, inventory, status and variant
// add/remove always need a human decision when contested.
var cosmeticFields = map[string]bool{
	"title":       true,
	"description": true,
	"vendor":      true,
	"category":    true,
	"tags":        true,
}

func cosmeticOnly(fields []string) bool {
	for _, f := range fields {
		if !cosmeticFields[f] {
			return false
		}
	}
	return len(fields) > 0
}

// classifyCompeting handles items where both sides moved since the shadow.
// Disjoint field sets merge automatically; overlapping cosmetic text resolves
// toward the newer edit; remaining overlaps go to review, escalating to admin
// approval when prices diverge past the threshold.
func (s *ConflictService) classifyCompeting(
	key string,
	shadowState, feedState, platState *models.ProductState,
	feedChanges, platformChanges []models.FieldChange,
	result *DiffResult,
) *models.Conflict {
	feedFields := make(map[string]bool, len(feedChanges))
	for _, ch := range feedChanges {
		feedFields[ch.Field] = true
	}

	var overlap []string
	for _, ch := range platformChanges {
		if feedFields[ch.Field] {
			overlap = append(overlap, ch.Field)
		}
	}

	conflict := &models.Conflict{
		ItemKey: key,
		Kind:    models.ConflictCompetingEdit,
	}
	conflict.SetChanges(feedChanges, platformChanges)

	if len(overlap) == 0 {
		// Changes touch different fields. Push the feed values merged over
		// the platform-side edits.
		desired := mergeStates(feedState, platState, feedFields)
		desired = withIdentity(desired, shadowState.ExternalID)
		result.Updates = append(result.Updates, PlannedUpdate{
			ItemKey:    key,
			ExternalID: shadowState.ExternalID,
			State:      desired,
			Changes:    feedChanges,
		})
		conflict.Confidence = models.ConfidenceMedium
		conflict.Action = models.ActionAutoResolve
		return conflict
	}

	if cosmeticOnly(overlap) {
		// Both sides reworded the same text. The newer edit wins; ties go to
		// the platform since its timestamp is authoritative.
		if feedState.UpdatedAt.After(platState.UpdatedAt) {
			desired := mergeStates(feedState, platState, feedFields)
			desired = withIdentity(desired, shadowState.ExternalID)
			result.Updates = append(result.Updates, PlannedUpdate{
				ItemKey:    key,
				ExternalID: shadowState.ExternalID,
				State:      desired,
				Changes:    feedChanges,
			})
		} else {
			// The platform keeps the contested text; any feed change outside
			// the overlap still pushes.
			remaining := make(map[string]bool, len(feedFields))
			for f := range feedFields {
				remaining[f] = true
			}
			for _, f := range overlap {
				delete(remaining, f)
			}
			if len(remaining) == 0 {
				result.Pulls = append(result.Pulls, PlannedPull{ItemKey: key, State: platState})
			} else {
				desired := mergeStates(feedState, platState, remaining)
				desired = withIdentity(desired, shadowState.ExternalID)
				result.Updates = append(result.Updates, PlannedUpdate{
					ItemKey:    key,
					ExternalID: shadowState.ExternalID,
					State:      desired,
					Changes:    feedChanges,
				})
			}
		}
		conflict.Confidence = models.ConfidenceMedium
		conflict.Action = models.ActionAutoResolve
		return conflict
	}

	if s.priceOverlapBeyondThreshold(overlap, feedState, platState) {
		conflict.Confidence = models.ConfidenceLow
		conflict.Action = models.ActionAdminApproval
	} else {
		conflict.Confidence = models.ConfidenceMedium
		conflict.Action = models.ActionManualReview
	}

	s.logger.WithFields(logrus.Fields{
		"item_key": key,
		"fields":   strings.Join(overlap, ","),
		"action":   conflict.Action,
	}).Info("Competing edit detected")

	return conflict
}

// priceOverlapBeyondThreshold reports whether any contested price field
// diverges between feed and platform by more than the review threshold.
func (s *ConflictService) priceOverlapBeyondThreshold(overlap []string, feedState, platState *models.ProductState) bool {
	for _, field := range overlap {
		sku, attr, ok := parseVariantField(field)
		if !ok || attr != "price" {
			continue
		}

		feedVar := feedState.VariantBySKU(sku)
		platVar := platState.VariantBySKU(sku)
		if feedVar == nil || platVar == nil {
			continue
		}
		if platVar.Price.IsZero() {
			return true
		}

		diff := feedVar.Price.Sub(platVar.Price).Abs()
		pct := diff.Div(platVar.Price).Mul(decimal.NewFromInt(100))
		if pct.GreaterThan(s.priceReviewPct) {
			return true
		}
	}
	return false
}

// diffStates compares two snapshots field by field. Images are handled by
// the media pipeline and excluded here.
func diffStates(old, new *models.ProductState) []models.FieldChange {
	var changes []models.FieldChange

	scalar := func(field, oldVal, newVal string) {
		if oldVal != newVal {
			changes = append(changes, models.FieldChange{Field: field, Old: oldVal, New: newVal})
		}
	}

	scalar("title", old.Title, new.Title)
	scalar("description", old.Description, new.Description)
	scalar("vendor", old.Vendor, new.Vendor)
	scalar("category", old.Category, new.Category)
	scalar("status", strings.ToUpper(old.Status), strings.ToUpper(new.Status))
	scalar("tags", normalizeTags(old.Tags), normalizeTags(new.Tags))

	oldVars := variantMap(old)
	newVars := variantMap(new)

	skus := make([]string, 0, len(oldVars)+len(newVars))
	seen := make(map[string]bool)
	for sku := range oldVars {
		skus = append(skus, sku)
		seen[sku] = true
	}
	for sku := range newVars {
		if !seen[sku] {
			skus = append(skus, sku)
		}
	}
	sort.Strings(skus)

	for _, sku := range skus {
		ov, oldOK := oldVars[sku]
		nv, newOK := newVars[sku]

		switch {
		case !oldOK:
			changes = append(changes, models.FieldChange{
				Field: variantField(sku, "added"),
				New:   nv.Price.StringFixed(2),
			})
		case !newOK:
			changes = append(changes, models.FieldChange{
				Field: variantField(sku, "removed"),
				Old:   ov.Price.StringFixed(2),
			})
		default:
			if !ov.Price.Equal(nv.Price) {
				changes = append(changes, models.FieldChange{
					Field: variantField(sku, "price"),
					Old:   ov.Price.StringFixed(2),
					New:   nv.Price.StringFixed(2),
				})
			}
			if ov.InventoryQuantity != nv.InventoryQuantity {
				changes = append(changes, models.FieldChange{
					Field: variantField(sku, "inventory"),
					Old:   fmt.Sprintf("%d", ov.InventoryQuantity),
					New:   fmt.Sprintf("%d", nv.InventoryQuantity),
				})
			}
		}
	}

	return changes
}

// mergeStates overlays feed values onto the platform snapshot. Fields the
// feed changed win; everything else keeps the platform value.
func mergeStates(feedState, platState *models.ProductState, feedFields map[string]bool) *models.ProductState {
	merged := *platState
	merged.FeedID = feedState.FeedID
	merged.UpdatedAt = feedState.UpdatedAt

	if feedFields["title"] {
		merged.Title = feedState.Title
	}
	if feedFields["description"] {
		merged.Description = feedState.Description
	}
	if feedFields["vendor"] {
		merged.Vendor = feedState.Vendor
	}
	if feedFields["category"] {
		merged.Category = feedState.Category
	}
	if feedFields["status"] {
		merged.Status = feedState.Status
	}
	if feedFields["tags"] {
		merged.Tags = feedState.Tags
	}

	merged.Variants = make([]models.VariantState, len(platState.Variants))
	copy(merged.Variants, platState.Variants)

	for _, fv := range feedState.Variants {
		target := -1
		for i := range merged.Variants {
			if merged.Variants[i].SKU == fv.SKU {
				target = i
				break
			}
		}
		if target == -1 {
			if feedFields[variantField(fv.SKU, "added")] {
				merged.Variants = append(merged.Variants, fv)
			}
			continue
		}
		if feedFields[variantField(fv.SKU, "price")] {
			merged.Variants[target].Price = fv.Price
		}
		if feedFields[variantField(fv.SKU, "inventory")] {
			merged.Variants[target].InventoryQuantity = fv.InventoryQuantity
		}
	}

	// Variants the feed removed
	if len(feedFields) > 0 {
		kept := merged.Variants[:0]
		for _, v := range merged.Variants {
			if !feedFields[variantField(v.SKU, "removed")] {
				kept = append(kept, v)
			}
		}
		merged.Variants = kept
	}

	return &merged
}

// withIdentity returns a copy of the state carrying the platform id.
func withIdentity(state *models.ProductState, externalID string) *models.ProductState {
	copied := *state
	copied.ExternalID = externalID
	return &copied
}

func variantMap(state *models.ProductState) map[string]models.VariantState {
	m := make(map[string]models.VariantState, len(state.Variants))
	for _, v := range state.Variants {
		m[v.SKU] = v
	}
	return m
}

func variantField(sku, attr string) string {
	return fmt.Sprintf("variant[%s].%s", sku, attr)
}

func parseVariantField(field string) (sku, attr string, ok bool) {
	if !strings.HasPrefix(field, "variant[") {
		return "", "", false
	}
	rest := strings.TrimPrefix(field, "variant[")
	idx := strings.Index(rest, "].")
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+2:], true
}

func normalizeTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	sorted := make([]string, len(tags))
	copy(sorted, tags)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
