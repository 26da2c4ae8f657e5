package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gamecatalog/internal/models"
	"gamecatalog/internal/repository"
)

const (
	keyChunkSize      = 500
	snapshotBatchSize = 200
	searchScanLimit   = 1000
)

var entryUpdateColumns = []string{
	"title",
	"external_id",
	"pricing_provider_id",
	"platforms",
	"genres",
	"platform",
	"genre",
	"developer",
	"publisher",
	"description",
	"image_url",
	"rating",
	"price",
	"original_price",
	"currency",
	"on_sale",
	"discount_percent",
	"release_date",
	"is_external",
	"enrichment_status",
	"last_synced_at",
	"updated_at",
}

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- catalog entries --------------------------------------------------------

func (s *Store) GetEntryByID(ctx context.Context, id string) (*models.CatalogEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	return s.first(ctx, "get entry", "id = ?", id)
}

func (s *Store) GetEntryByKey(ctx context.Context, normalizedKey string) (*models.CatalogEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if strings.TrimSpace(normalizedKey) == "" {
		return nil, nil
	}
	return s.first(ctx, "get entry by key", "normalized_key = ?", normalizedKey)
}

func (s *Store) first(ctx context.Context, op string, where string, args ...any) (*models.CatalogEntry, error) {
	var item models.CatalogEntry
	err := s.db.WithContext(ctx).
		Model(&models.CatalogEntry{}).
		Where(where, args...).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, repository.IOError(op, err)
	}
	return &item, nil
}

func (s *Store) FindEntriesByKeys(ctx context.Context, keys []string) ([]models.CatalogEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	keys = cleanStrings(keys)
	if len(keys) == 0 {
		return nil, nil
	}
	var out []models.CatalogEntry
	for start := 0; start < len(keys); start += keyChunkSize {
		end := min(start+keyChunkSize, len(keys))
		var items []models.CatalogEntry
		if err := s.db.WithContext(ctx).
			Model(&models.CatalogEntry{}).
			Where("normalized_key IN ?", keys[start:end]).
			Find(&items).Error; err != nil {
			return nil, repository.IOError("find entries by keys", err)
		}
		out = append(out, items...)
	}
	return out, nil
}

func (s *Store) ListAllEntries(ctx context.Context) ([]models.CatalogEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.CatalogEntry
	if err := s.db.WithContext(ctx).
		Model(&models.CatalogEntry{}).
		Order("created_at asc").
		Order("id asc").
		Find(&items).Error; err != nil {
		return nil, repository.IOError("list entries", err)
	}
	return items, nil
}

// SearchEntries narrows with LIKE in SQL and applies the exact filter
// semantics in memory, since array columns are matched as JSON text.
func (s *Store) SearchEntries(ctx context.Context, params repository.SearchParams) ([]models.CatalogEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	params = params.Normalize()
	query := s.db.WithContext(ctx).Model(&models.CatalogEntry{})
	if params.Query != "" {
		pattern := likePattern(params.Query)
		query = query.Where(
			"LOWER(title) LIKE ? OR LOWER(developer) LIKE ? OR LOWER(publisher) LIKE ?",
			pattern, pattern, pattern,
		)
	}
	if params.Developer != "" {
		query = query.Where("LOWER(developer) LIKE ?", likePattern(params.Developer))
	}
	query = applyArrayFilters(query, params.Genre, params.Platform)

	var items []models.CatalogEntry
	if err := query.Order("title asc").Limit(searchScanLimit).Find(&items).Error; err != nil {
		return nil, repository.IOError("search entries", err)
	}
	out := items[:0]
	for _, item := range items {
		if params.Match(item) {
			out = append(out, item)
		}
	}
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func (s *Store) ListEntries(ctx context.Context, params repository.ListEntriesParams) ([]models.CatalogEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.applyListFilters(s.db.WithContext(ctx).Model(&models.CatalogEntry{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "updated_at")
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.CatalogEntry
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, repository.IOError("list entries", err)
	}
	return items, nil
}

func (s *Store) CountEntries(ctx context.Context, params repository.ListEntriesParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := s.applyListFilters(s.db.WithContext(ctx).Model(&models.CatalogEntry{}), params)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, repository.IOError("count entries", err)
	}
	return total, nil
}

func (s *Store) applyListFilters(query *gorm.DB, params repository.ListEntriesParams) *gorm.DB {
	if !params.IncludePending {
		query = query.Where("NOT (is_external = ? AND enrichment_status = ?)", true, models.EnrichmentPending)
	}
	if params.Query != nil && strings.TrimSpace(*params.Query) != "" {
		pattern := likePattern(*params.Query)
		query = query.Where(
			"LOWER(title) LIKE ? OR LOWER(developer) LIKE ? OR LOWER(publisher) LIKE ?",
			pattern, pattern, pattern,
		)
	}
	var genre, platform string
	if params.Genre != nil {
		genre = strings.TrimSpace(*params.Genre)
	}
	if params.Platform != nil {
		platform = strings.TrimSpace(*params.Platform)
	}
	return applyArrayFilters(query, genre, platform)
}

func (s *Store) UpsertEntry(ctx context.Context, entry *models.CatalogEntry) error {
	if s == nil || s.db == nil || entry == nil {
		return nil
	}
	entry.EnsureDefaults()
	if entry.NormalizedKey == "" {
		return nil
	}
	entry.UpdatedAt = time.Now().UTC()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "normalized_key"}},
		DoUpdates: clause.AssignmentColumns(entryUpdateColumns),
	}).Create(entry).Error
	if err != nil {
		return repository.IOError("upsert entry", err)
	}
	stored, err := s.GetEntryByKey(ctx, entry.NormalizedKey)
	if err != nil {
		return err
	}
	if stored != nil {
		*entry = *stored
	}
	return nil
}

func (s *Store) InsertEntryIfAbsent(ctx context.Context, entry *models.CatalogEntry) (*models.CatalogEntry, bool, error) {
	if s == nil || s.db == nil || entry == nil {
		return nil, false, nil
	}
	entry.EnsureDefaults()
	if entry.NormalizedKey == "" {
		return nil, false, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "normalized_key"}},
		DoNothing: true,
	}).Create(entry)
	if res.Error != nil {
		return nil, false, repository.IOError("insert entry", res.Error)
	}
	if res.RowsAffected == 1 {
		created := entry.Clone()
		return &created, true, nil
	}
	stored, err := s.GetEntryByKey(ctx, entry.NormalizedKey)
	if err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

// SaveSnapshot upserts every entry inside one transaction, so a failed
// checkpoint leaves the previous one intact.
func (s *Store) SaveSnapshot(ctx context.Context, entries []models.CatalogEntry) error {
	if s == nil || s.db == nil || len(entries) == 0 {
		return nil
	}
	// one row per key per statement; later entries win
	now := time.Now().UTC()
	index := make(map[string]int, len(entries))
	items := make([]models.CatalogEntry, 0, len(entries))
	for _, entry := range entries {
		entry.EnsureDefaults()
		entry.UpdatedAt = now
		if entry.NormalizedKey == "" {
			continue
		}
		if i, ok := index[entry.NormalizedKey]; ok {
			items[i] = entry
			continue
		}
		index[entry.NormalizedKey] = len(items)
		items = append(items, entry)
	}
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		return createInBatches(tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "normalized_key"}},
			DoUpdates: clause.AssignmentColumns(entryUpdateColumns),
		}), items, snapshotBatchSize)
	})
	if err != nil {
		return repository.IOError("save snapshot", err)
	}
	return nil
}

// --- sync state -------------------------------------------------------------

func (s *Store) GetSyncState(ctx context.Context, scope string) (*models.SyncState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var state models.SyncState
	err := s.db.WithContext(ctx).First(&state, "scope = ?", scope).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, repository.IOError("get sync state", err)
	}
	return &state, nil
}

func (s *Store) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	if s == nil || s.db == nil || state == nil {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "scope"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"processed_count",
			"updated_count",
			"skipped_count",
			"failed_count",
			"last_checkpoint",
			"last_success_at",
			"last_attempt_at",
			"last_error",
			"stats_json",
		}),
	}).Create(state).Error
	if err != nil {
		return repository.IOError("save sync state", err)
	}
	return nil
}

func (s *Store) ListSyncStates(ctx context.Context) ([]models.SyncState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var states []models.SyncState
	if err := s.db.WithContext(ctx).Order("scope asc").Find(&states).Error; err != nil {
		return nil, repository.IOError("list sync states", err)
	}
	return states, nil
}

// --- system settings --------------------------------------------------------

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
	if err != nil {
		return repository.IOError("upsert setting", err)
	}
	return nil
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Model(&models.SystemSetting{}).Where("key = ?", key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, repository.IOError("get setting", err)
	}
	return &item, nil
}

func (s *Store) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.SystemSetting{})
	if params.Prefix != nil && strings.TrimSpace(*params.Prefix) != "" {
		pattern := strings.TrimSpace(*params.Prefix) + "%"
		query = query.Where("key LIKE ?", pattern)
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "key")
	limit := normalizeLimit(params.Limit, 500)
	offset := normalizeOffset(params.Offset)
	var items []models.SystemSetting
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, repository.IOError("list settings", err)
	}
	return items, nil
}

// --- helpers ----------------------------------------------------------------

func applyArrayFilters(query *gorm.DB, genre, platform string) *gorm.DB {
	if genre != "" {
		query = query.Where("LOWER(CAST(genres AS TEXT)) LIKE ?", likePattern(genre))
	}
	if platform != "" {
		query = query.Where("LOWER(CAST(platforms AS TEXT)) LIKE ?", likePattern(platform))
	}
	return query
}

func likePattern(raw string) string {
	return "%" + strings.ToLower(strings.TrimSpace(raw)) + "%"
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	switch column {
	case "title", "rating", "price", "created_at", "updated_at", "release_date":
	default:
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func createInBatches[T any](db *gorm.DB, items []T, batchSize int) error {
	if len(items) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}
		if err := db.CreateInBatches(items[i:end], batchSize).Error; err != nil {
			return err
		}
	}
	return nil
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func cleanStrings(items []string) []string {
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

var _ repository.CatalogRepository = (*Store)(nil)
