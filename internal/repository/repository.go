package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gamecatalog/internal/models"
)

// ErrStoreIO marks a failure to read or write the durable catalog. Batch runs
// abort on it; search degrades to uncached results.
var ErrStoreIO = errors.New("catalog store i/o")

// IOError wraps err so that errors.Is matches both ErrStoreIO and err.
func IOError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreIO, op, err)
}

// CatalogRepository is the persistence contract shared by the batch runner,
// the eager search service and the browsing API. Lookups that find nothing
// return (nil, nil).
type CatalogRepository interface {
	GetEntryByID(ctx context.Context, id string) (*models.CatalogEntry, error)
	GetEntryByKey(ctx context.Context, normalizedKey string) (*models.CatalogEntry, error)
	FindEntriesByKeys(ctx context.Context, keys []string) ([]models.CatalogEntry, error)
	ListAllEntries(ctx context.Context) ([]models.CatalogEntry, error)
	SearchEntries(ctx context.Context, params SearchParams) ([]models.CatalogEntry, error)
	ListEntries(ctx context.Context, params ListEntriesParams) ([]models.CatalogEntry, error)
	CountEntries(ctx context.Context, params ListEntriesParams) (int64, error)

	// UpsertEntry inserts or updates by normalized key. On return entry holds
	// the stored row, including the id of a pre-existing row.
	UpsertEntry(ctx context.Context, entry *models.CatalogEntry) error
	// InsertEntryIfAbsent atomically creates entry unless its normalized key
	// exists. It returns the stored entry and whether this call created it.
	InsertEntryIfAbsent(ctx context.Context, entry *models.CatalogEntry) (*models.CatalogEntry, bool, error)
	// SaveSnapshot durably writes every given entry in one operation.
	SaveSnapshot(ctx context.Context, entries []models.CatalogEntry) error

	GetSyncState(ctx context.Context, scope string) (*models.SyncState, error)
	SaveSyncState(ctx context.Context, state *models.SyncState) error
	ListSyncStates(ctx context.Context) ([]models.SyncState, error)

	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error)
}

// SearchParams drives the live search. Every non-empty field must match;
// all comparisons are case-insensitive substring matches.
type SearchParams struct {
	Query     string
	Genre     string
	Platform  string
	Developer string
	Limit     int
}

func (p SearchParams) Normalize() SearchParams {
	p.Query = strings.TrimSpace(p.Query)
	p.Genre = strings.TrimSpace(p.Genre)
	p.Platform = strings.TrimSpace(p.Platform)
	p.Developer = strings.TrimSpace(p.Developer)
	return p
}

// Match reports whether entry satisfies the filters. The query matches title,
// developer or publisher.
func (p SearchParams) Match(entry models.CatalogEntry) bool {
	p = p.Normalize()
	if p.Query != "" &&
		!containsFold(entry.Title, p.Query) &&
		!containsFold(entry.Developer, p.Query) &&
		!containsFold(entry.Publisher, p.Query) {
		return false
	}
	if p.Developer != "" && !containsFold(entry.Developer, p.Developer) {
		return false
	}
	if p.Genre != "" && !anyContainsFold(entry.Genres, p.Genre) {
		return false
	}
	if p.Platform != "" && !anyContainsFold(entry.Platforms, p.Platform) {
		return false
	}
	return true
}

type ListEntriesParams struct {
	Limit    int
	Offset   int
	Query    *string
	Genre    *string
	Platform *string
	// IncludePending also lists discovered entries that are still pending
	// enrichment.
	IncludePending bool
	OrderBy        string
	Asc            *bool
}

// Match applies the list filters in memory, for stores without a query engine.
func (p ListEntriesParams) Match(entry models.CatalogEntry) bool {
	if !p.IncludePending && IsPendingDiscovery(entry) {
		return false
	}
	return SearchParams{
		Query:    deref(p.Query),
		Genre:    deref(p.Genre),
		Platform: deref(p.Platform),
	}.Match(entry)
}

type ListSystemSettingsParams struct {
	Limit   int
	Offset  int
	Prefix  *string
	OrderBy string
	Asc     *bool
}

// IsPendingDiscovery reports whether entry was created by eager search and
// has not been enriched yet.
func IsPendingDiscovery(entry models.CatalogEntry) bool {
	return entry.IsExternal && entry.EnrichmentStatus == models.EnrichmentPending
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func anyContainsFold(items []string, needle string) bool {
	for _, item := range items {
		if containsFold(item, needle) {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
