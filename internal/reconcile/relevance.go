package reconcile

import (
	"sort"
	"strings"

	"gamecatalog/internal/models"
)

// RelevanceScore ranks a title against a query. Lower tiers sort first:
// 0 exact normalized match, 1 substring match, 2 no title match.
// Position is where the query starts inside the normalized title, or -1.
type RelevanceScore struct {
	Tier     int
	Position int
}

func Score(query, title string) RelevanceScore {
	q := models.NormalizedKey(query)
	t := models.NormalizedKey(title)
	if q == "" {
		return RelevanceScore{Tier: 2, Position: -1}
	}
	if q == t {
		return RelevanceScore{Tier: 0, Position: 0}
	}
	if idx := strings.Index(t, q); idx >= 0 {
		return RelevanceScore{Tier: 1, Position: idx}
	}
	return RelevanceScore{Tier: 2, Position: -1}
}

// SortByRelevance orders entries in place: exact title match, then earliest
// substring position, then higher rating, then title.
func SortByRelevance(query string, entries []models.CatalogEntry) {
	scores := make(map[string]RelevanceScore, len(entries))
	for _, e := range entries {
		scores[e.NormalizedKey] = Score(query, e.Title)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := scores[entries[i].NormalizedKey], scores[entries[j].NormalizedKey]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if entries[i].Rating != entries[j].Rating {
			return entries[i].Rating > entries[j].Rating
		}
		return strings.ToLower(entries[i].Title) < strings.ToLower(entries[j].Title)
	})
}

// UnionByKey appends extra to base, skipping entries whose normalized key is
// already present.
func UnionByKey(base []models.CatalogEntry, extra ...[]models.CatalogEntry) []models.CatalogEntry {
	out := make([]models.CatalogEntry, 0, len(base))
	seen := make(map[string]struct{}, len(base))
	add := func(list []models.CatalogEntry) {
		for _, e := range list {
			key := e.NormalizedKey
			if key == "" {
				key = models.NormalizedKey(e.Title)
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, e)
		}
	}
	add(base)
	for _, list := range extra {
		add(list)
	}
	return out
}
