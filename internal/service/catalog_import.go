package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"gamecatalog/internal/client/provider"
	"gamecatalog/internal/models"
	"gamecatalog/internal/reconcile"
	"gamecatalog/internal/repository"
)

var ErrEmptyImport = errors.New("import needs external ids, a query, tags or platforms")

// CatalogImportService is the admin "import from provider" action: a
// one-shot, fully reconciled version of what eager search does lazily.
type CatalogImportService struct {
	Store    repository.CatalogRepository
	Provider CatalogProvider
	Engine   *reconcile.Engine
	Logger   *zap.Logger
}

type ImportRequest struct {
	ExternalIDs []string `json:"externalIds"`
	Query       string   `json:"query"`
	Tags        string   `json:"tags"`
	Platforms   string   `json:"platforms"`
	Limit       int      `json:"limit"`
}

type ImportResult struct {
	Created   int                   `json:"created"`
	Updated   int                   `json:"updated"`
	Unchanged int                   `json:"unchanged"`
	Failed    int                   `json:"failed"`
	Items     []models.CatalogEntry `json:"items"`
	Errors    []string              `json:"errors,omitempty"`
}

func (s *CatalogImportService) Import(ctx context.Context, req ImportRequest) (ImportResult, error) {
	result := ImportResult{Items: []models.CatalogEntry{}}
	ids := cleanIDs(req.ExternalIDs)
	query := strings.TrimSpace(req.Query)
	if len(ids) == 0 && query == "" && strings.TrimSpace(req.Tags) == "" && strings.TrimSpace(req.Platforms) == "" {
		return result, ErrEmptyImport
	}
	if s.Provider == nil || s.Engine == nil || s.Store == nil {
		return result, fmt.Errorf("catalog import is not configured")
	}

	var records []provider.ExternalRecord
	for _, id := range ids {
		rec, err := s.Provider.FetchMetadata(ctx, id)
		if err != nil {
			result.fail(fmt.Sprintf("metadata %s: %v", id, err))
			continue
		}
		records = append(records, *rec)
	}
	if query != "" {
		found, err := s.Provider.SearchByQuery(ctx, query, provider.SearchFilter{Limit: req.Limit})
		if err != nil {
			result.fail(fmt.Sprintf("search %q: %v", query, err))
		}
		records = append(records, found...)
	}
	if strings.TrimSpace(req.Tags) != "" || strings.TrimSpace(req.Platforms) != "" {
		found, err := s.Provider.Discover(ctx, provider.DiscoverParams{
			Tags:      strings.TrimSpace(req.Tags),
			Platforms: strings.TrimSpace(req.Platforms),
			PageSize:  req.Limit,
		})
		if err != nil {
			result.fail(fmt.Sprintf("discover: %v", err))
		}
		records = append(records, found...)
	}

	for _, rec := range reconcile.DedupeByNormalizedKey(records) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.importOne(ctx, rec, &result); err != nil {
			if errors.Is(err, repository.ErrStoreIO) {
				return result, err
			}
			result.fail(fmt.Sprintf("%s: %v", rec.Name, err))
		}
	}
	s.logger().Info("catalog import finished",
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (s *CatalogImportService) importOne(ctx context.Context, rec provider.ExternalRecord, result *ImportResult) error {
	key := models.NormalizedKey(rec.Name)
	existing, err := s.Store.GetEntryByKey(ctx, key)
	if err != nil {
		return err
	}

	// listings omit descriptions and developers
	if rec.Description == "" && rec.ExternalID != "" {
		if full, err := s.Provider.FetchMetadata(ctx, rec.ExternalID); err == nil {
			rec = *full
		}
	}

	created := existing == nil
	var entry models.CatalogEntry
	if created {
		entry = reconcile.NewEntryFromExternal(rec, time.Now().UTC())
		entry.IsExternal = false
	} else {
		entry = existing.Clone()
	}

	var pricing *provider.PricingRecord
	partial := false
	pricingID := entry.PricingProviderID
	if pricingID.IsZero() {
		pricingID = models.ProviderID(rec.PricingProviderID)
	}
	withPricingID := entry
	withPricingID.PricingProviderID = pricingID
	if s.Engine.NeedsPricingLookup(withPricingID) {
		pricing, err = s.Provider.FetchPricing(ctx, pricingID.String())
		if err != nil {
			partial = true
			s.logger().Warn("import pricing failed", zap.String("title", entry.Title), zap.Error(err))
			pricing = nil
		}
	}

	out := s.Engine.Reconcile(&entry, &rec, pricing, reconcile.ScopeAll, partial)
	if !created && !out.Changed {
		result.Unchanged++
		result.Items = append(result.Items, entry)
		return nil
	}
	if err := s.Store.UpsertEntry(ctx, &entry); err != nil {
		return err
	}
	if created {
		result.Created++
	} else {
		result.Updated++
	}
	result.Items = append(result.Items, entry)
	return nil
}

func (r *ImportResult) fail(msg string) {
	r.Failed++
	r.Errors = append(r.Errors, msg)
}

func (s *CatalogImportService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func cleanIDs(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, raw := range items {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		out = append(out, val)
	}
	return out
}
