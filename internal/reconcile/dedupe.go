package reconcile

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"gamecatalog/internal/client/provider"
	"gamecatalog/internal/models"
)

// DedupeByNormalizedKey keeps the first record for each normalized title.
// Records whose name normalizes to "" are dropped.
func DedupeByNormalizedKey(records []provider.ExternalRecord) []provider.ExternalRecord {
	out := make([]provider.ExternalRecord, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		key := models.NormalizedKey(rec.Name)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// NewEntryFromExternal builds the minimal entry created on first discovery.
func NewEntryFromExternal(rec provider.ExternalRecord, now time.Time) models.CatalogEntry {
	entry := models.CatalogEntry{
		ID:                uuid.NewString(),
		Title:             strings.TrimSpace(rec.Name),
		NormalizedKey:     models.NormalizedKey(rec.Name),
		ExternalID:        models.ProviderID(rec.ExternalID),
		PricingProviderID: models.ProviderID(rec.PricingProviderID),
		Platforms:         datatypes.JSONSlice[string](cleanNames(rec.Platforms, 0)),
		Genres:            datatypes.JSONSlice[string](cleanNames(rec.Genres, provider.MaxGenres)),
		Developer:         strings.TrimSpace(rec.Developer),
		Publisher:         strings.TrimSpace(rec.Publisher),
		ImageURL:          rec.ImageURL,
		Rating:            rec.Rating,
		Price:             decimal.Zero,
		OriginalPrice:     decimal.Zero,
		Currency:          defaultCurrency,
		IsExternal:        true,
		EnrichmentStatus:  models.EnrichmentPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if rec.Released != nil {
		t := *rec.Released
		entry.ReleaseDate = &t
	}
	return entry
}
