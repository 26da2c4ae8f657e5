package reconcile

import (
	"slices"
	"strings"

	"gorm.io/datatypes"

	"gamecatalog/internal/client/provider"
	"gamecatalog/internal/models"
)

// MergeMetadata copies provider metadata onto local. Arrays are overwritten
// only by non-empty provider values, and populated local fields are never
// cleared. It reports whether the entry changed.
func MergeMetadata(local *models.CatalogEntry, external *provider.ExternalRecord) bool {
	if local == nil || external == nil {
		return false
	}
	changed := false

	if platforms := cleanNames(external.Platforms, 0); len(platforms) > 0 && !slices.Equal([]string(local.Platforms), platforms) {
		local.Platforms = datatypes.JSONSlice[string](platforms)
		changed = true
	}
	if genres := cleanNames(external.Genres, provider.MaxGenres); len(genres) > 0 && !slices.Equal([]string(local.Genres), genres) {
		local.Genres = datatypes.JSONSlice[string](genres)
		changed = true
	}

	if local.ExternalID.IsZero() && external.ExternalID != "" {
		local.ExternalID = models.ProviderID(external.ExternalID)
		changed = true
	}
	if local.PricingProviderID.IsZero() && external.PricingProviderID != "" {
		local.PricingProviderID = models.ProviderID(external.PricingProviderID)
		changed = true
	}
	changed = fillString(&local.Developer, external.Developer) || changed
	changed = fillString(&local.Publisher, external.Publisher) || changed
	changed = fillString(&local.Description, external.Description) || changed
	changed = fillString(&local.ImageURL, external.ImageURL) || changed

	if external.Rating > 0 && external.Rating != local.Rating {
		local.Rating = external.Rating
		changed = true
	}
	if local.ReleaseDate == nil && external.Released != nil {
		t := *external.Released
		local.ReleaseDate = &t
		changed = true
	}
	return changed
}

func fillString(dst *string, src string) bool {
	src = strings.TrimSpace(src)
	if src == "" || strings.TrimSpace(*dst) != "" {
		return false
	}
	*dst = src
	return true
}

// cleanNames trims, drops blanks and duplicates, and keeps at most limit
// names when limit > 0.
func cleanNames(items []string, limit int) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, item := range items {
		val := strings.TrimSpace(item)
		if val == "" {
			continue
		}
		key := strings.ToLower(val)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, val)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
