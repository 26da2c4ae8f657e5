package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"gamecatalog/internal/client/provider"
	"gamecatalog/internal/metrics"
	"gamecatalog/internal/models"
	"gamecatalog/internal/reconcile"
	"gamecatalog/internal/repository"
)

const (
	defaultMinQueryLength   = 2
	defaultMaxResults       = 50
	defaultExternalLimit    = 20
	defaultDiscoveryTimeout = 15 * time.Second
)

// CatalogSearchService answers live searches from the local catalog and, on
// every call, asks the metadata provider as well, persisting new matches so
// the next identical query is served locally.
type CatalogSearchService struct {
	Store    repository.CatalogRepository
	Provider CatalogProvider
	Settings *SystemSettingsService
	Logger   *zap.Logger

	MinQueryLength   int
	MaxResults       int
	ExternalLimit    int
	DiscoveryTimeout time.Duration
	Now              func() time.Time

	group singleflight.Group
}

type SearchRequest struct {
	Query     string
	Genre     string
	Platform  string
	Developer string
}

type SearchResult struct {
	Query      string                `json:"query"`
	Items      []models.CatalogEntry `json:"items"`
	Local      int                   `json:"local"`
	External   int                   `json:"external"`
	Discovered int                   `json:"discovered"`
	// Degraded is set when the provider or the write-through failed and the
	// items may be incomplete.
	Degraded bool `json:"degraded"`
}

type discovery struct {
	entries  []models.CatalogEntry
	created  int
	degraded bool
}

func (s *CatalogSearchService) Search(ctx context.Context, req SearchRequest) (SearchResult, error) {
	req = normalizeSearchRequest(req)
	result := SearchResult{Query: req.Query, Items: []models.CatalogEntry{}}
	if utf8.RuneCountInString(req.Query) < s.minQueryLength() {
		return result, nil
	}

	params := repository.SearchParams{
		Query:     req.Query,
		Genre:     req.Genre,
		Platform:  req.Platform,
		Developer: req.Developer,
	}
	local, err := s.Store.SearchEntries(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		s.logger().Warn("local catalog search failed", zap.String("query", req.Query), zap.Error(err))
		result.Degraded = true
		local = nil
	}
	result.Local = len(local)

	var found discovery
	if s.discoveryEnabled(ctx) {
		found = s.awaitDiscovery(ctx, req)
		result.Degraded = result.Degraded || found.degraded
	}
	external := filterByDeveloper(found.entries, req.Developer)
	result.External = len(external)
	result.Discovered = found.created

	items := reconcile.UnionByKey(local, external)
	reconcile.SortByRelevance(req.Query, items)
	if limit := s.maxResults(); len(items) > limit {
		items = items[:limit]
	}
	result.Items = items
	return result, nil
}

func normalizeSearchRequest(req SearchRequest) SearchRequest {
	req.Query = strings.TrimSpace(req.Query)
	req.Genre = strings.TrimSpace(req.Genre)
	req.Platform = strings.TrimSpace(req.Platform)
	req.Developer = strings.TrimSpace(req.Developer)
	return req
}

func (s *CatalogSearchService) discoveryEnabled(ctx context.Context) bool {
	if s.Provider == nil {
		return false
	}
	return s.Settings.IsEnabled(ctx, FeatureEagerDiscovery, true)
}

// awaitDiscovery shares one provider call between identical concurrent
// queries. The discovery itself is detached from ctx: a caller that goes away
// gets nothing back, but the write-through still completes.
func (s *CatalogSearchService) awaitDiscovery(ctx context.Context, req SearchRequest) discovery {
	key := strings.Join([]string{models.NormalizedKey(req.Query), strings.ToLower(req.Genre), strings.ToLower(req.Platform)}, "|")
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		discoverCtx, cancel := context.WithTimeout(detached, s.discoveryTimeout())
		defer cancel()
		return s.discover(discoverCtx, req), nil
	})
	select {
	case res := <-ch:
		found, _ := res.Val.(discovery)
		return found
	case <-ctx.Done():
		return discovery{degraded: true}
	}
}

func (s *CatalogSearchService) discover(ctx context.Context, req SearchRequest) discovery {
	records, err := s.Provider.SearchByQuery(ctx, req.Query, provider.SearchFilter{
		Genre:    req.Genre,
		Platform: req.Platform,
		Limit:    s.externalLimit(),
	})
	if err != nil {
		s.logger().Warn("provider search failed",
			zap.String("query", req.Query),
			zap.String("kind", provider.Classify(err)),
			zap.Error(err),
		)
		return discovery{degraded: true}
	}
	records = reconcile.DedupeByNormalizedKey(records)
	if len(records) == 0 {
		return discovery{}
	}

	keys := make([]string, 0, len(records))
	for _, rec := range records {
		keys = append(keys, models.NormalizedKey(rec.Name))
	}
	persisted := map[string]models.CatalogEntry{}
	existing, err := s.Store.FindEntriesByKeys(ctx, keys)
	if err != nil {
		s.logger().Warn("lookup of discovered keys failed", zap.Error(err))
	}
	for _, entry := range existing {
		persisted[entry.NormalizedKey] = entry
	}

	out := discovery{entries: make([]models.CatalogEntry, 0, len(records))}
	now := s.now()
	for _, rec := range records {
		key := models.NormalizedKey(rec.Name)
		if entry, ok := persisted[key]; ok {
			out.entries = append(out.entries, entry)
			continue
		}
		candidate := reconcile.NewEntryFromExternal(rec, now)
		stored, created, err := s.Store.InsertEntryIfAbsent(ctx, &candidate)
		if err != nil || stored == nil {
			s.logger().Warn("write-through of discovered entry failed",
				zap.String("title", candidate.Title),
				zap.Error(err),
			)
			out.degraded = true
			out.entries = append(out.entries, candidate)
			continue
		}
		if created {
			out.created++
			metrics.DiscoveredEntriesTotal.Inc()
			s.logger().Info("catalog entry discovered",
				zap.String("title", stored.Title),
				zap.String("external_id", stored.ExternalID.String()),
			)
		}
		out.entries = append(out.entries, *stored)
	}
	return out
}

// filterByDeveloper keeps provider matches that do not contradict the
// developer filter. Search listings rarely carry a developer, so entries
// without one pass.
func filterByDeveloper(entries []models.CatalogEntry, developer string) []models.CatalogEntry {
	if developer == "" {
		return entries
	}
	out := make([]models.CatalogEntry, 0, len(entries))
	needle := strings.ToLower(developer)
	for _, entry := range entries {
		if entry.Developer == "" || strings.Contains(strings.ToLower(entry.Developer), needle) {
			out = append(out, entry)
		}
	}
	return out
}

func (s *CatalogSearchService) minQueryLength() int {
	if s.MinQueryLength > 0 {
		return s.MinQueryLength
	}
	return defaultMinQueryLength
}

func (s *CatalogSearchService) maxResults() int {
	if s.MaxResults > 0 {
		return s.MaxResults
	}
	return defaultMaxResults
}

func (s *CatalogSearchService) externalLimit() int {
	if s.ExternalLimit > 0 {
		return s.ExternalLimit
	}
	return defaultExternalLimit
}

func (s *CatalogSearchService) discoveryTimeout() time.Duration {
	if s.DiscoveryTimeout > 0 {
		return s.DiscoveryTimeout
	}
	return defaultDiscoveryTimeout
}

func (s *CatalogSearchService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *CatalogSearchService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
