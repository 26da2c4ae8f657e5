package reconcile

import (
	"strings"

	"gorm.io/datatypes"

	"gamecatalog/internal/models"
)

// NormalizeSchema folds the legacy singular platform/genre fields into the
// array fields and guarantees both arrays are non-nil. It reports whether the
// entry changed.
func NormalizeSchema(entry *models.CatalogEntry) bool {
	if entry == nil {
		return false
	}
	changed := false
	if entry.Platforms == nil {
		entry.Platforms = datatypes.JSONSlice[string]{}
		changed = true
	}
	if entry.Genres == nil {
		entry.Genres = datatypes.JSONSlice[string]{}
		changed = true
	}
	if entry.LegacyPlatform != nil {
		if v := strings.TrimSpace(*entry.LegacyPlatform); v != "" && len(entry.Platforms) == 0 {
			entry.Platforms = datatypes.JSONSlice[string]{v}
		}
		entry.LegacyPlatform = nil
		changed = true
	}
	if entry.LegacyGenre != nil {
		if v := strings.TrimSpace(*entry.LegacyGenre); v != "" && len(entry.Genres) == 0 {
			entry.Genres = datatypes.JSONSlice[string]{v}
		}
		entry.LegacyGenre = nil
		changed = true
	}
	if entry.NormalizedKey == "" {
		entry.NormalizedKey = models.NormalizedKey(entry.Title)
		changed = true
	}
	if entry.EnrichmentStatus == "" {
		entry.EnrichmentStatus = models.EnrichmentPending
		changed = true
	}
	return changed
}
