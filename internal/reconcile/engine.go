package reconcile

import (
	"time"

	"gamecatalog/internal/client/provider"
	"gamecatalog/internal/models"
)

// Scope selects which half of an entry a reconciliation touches.
type Scope string

const (
	ScopeAll      Scope = "all"
	ScopeMetadata Scope = "metadata"
	ScopePricing  Scope = "pricing"
)

func ParseScope(raw string) (Scope, bool) {
	switch Scope(raw) {
	case "", ScopeAll:
		return ScopeAll, true
	case ScopeMetadata:
		return ScopeMetadata, true
	case ScopePricing:
		return ScopePricing, true
	default:
		return "", false
	}
}

func (s Scope) Metadata() bool { return s == ScopeAll || s == ScopeMetadata }
func (s Scope) Pricing() bool  { return s == ScopeAll || s == ScopePricing }

// Engine bundles the reconciliation rules with the shared curated list.
// All methods are pure apart from Rand and Now.
type Engine struct {
	Curated *CuratedList
	Rand    PriceRand
	Now     func() time.Time
}

func NewEngine(curated *CuratedList) *Engine {
	if curated == nil {
		curated = NewCuratedList()
	}
	return &Engine{Curated: curated, Rand: DefaultRand, Now: time.Now}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Engine) IsCurated(title string) bool {
	return e.Curated.Contains(title)
}

// NeedsEnrichment is the batch selection predicate.
func (e *Engine) NeedsEnrichment(entry models.CatalogEntry, scope Scope) bool {
	if scope.Metadata() && (len(entry.Platforms) == 0 || len(entry.Genres) == 0) {
		return true
	}
	if scope.Pricing() {
		if e.IsCurated(entry.Title) {
			return !entry.Price.IsPositive()
		}
		return entry.EnrichmentStatus != models.EnrichmentComplete
	}
	return false
}

// NeedsPricingLookup reports whether the pricing provider should be asked
// about entry. Curated titles never are.
func (e *Engine) NeedsPricingLookup(entry models.CatalogEntry) bool {
	return !e.IsCurated(entry.Title) && !entry.PricingProviderID.IsZero()
}

// Outcome is the result of reconciling one entry.
type Outcome struct {
	Changed bool
	Status  models.EnrichmentStatus
}

// Reconcile runs NormalizeSchema, MergeMetadata and ApplyPricingPolicy in
// order. partial marks that at least one provider call for the entry failed;
// the entry then stays partial instead of complete.
func (e *Engine) Reconcile(local *models.CatalogEntry, meta *provider.ExternalRecord, pricing *provider.PricingRecord, scope Scope, partial bool) Outcome {
	changed := NormalizeSchema(local)
	if scope.Metadata() && meta != nil {
		changed = MergeMetadata(local, meta) || changed
		if pricing == nil && meta.Pricing != nil {
			pricing = meta.Pricing
		}
	}
	if scope.Pricing() {
		changed = ApplyPricingPolicy(local, pricing, e.IsCurated(local.Title), e.Rand) || changed
	}

	status := models.EnrichmentComplete
	if partial {
		status = models.EnrichmentPartial
	}
	if scope == ScopeMetadata && local.EnrichmentStatus != models.EnrichmentComplete && !e.IsCurated(local.Title) && !local.PricingProviderID.IsZero() {
		// pricing still outstanding
		status = models.EnrichmentPartial
	}
	if local.EnrichmentStatus != status {
		local.EnrichmentStatus = status
		changed = true
	}
	if status == models.EnrichmentComplete && local.IsExternal {
		local.IsExternal = false
		changed = true
	}
	if changed {
		now := e.now()
		local.LastSyncedAt = &now
	}
	return Outcome{Changed: changed, Status: status}
}
