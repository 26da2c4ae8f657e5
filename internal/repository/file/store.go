// Package filerepository keeps the catalog as one JSON document, the format
// the storefront used before it had a database. Every mutation rewrites the
// whole document through a temporary file and an atomic rename.
//
// Several processes may share one document (the server and catalogctl). A
// sidecar lock file serializes their writes, and each read-modify-write
// reloads the document first when another process replaced it.
package filerepository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"gamecatalog/internal/models"
	"gamecatalog/internal/repository"
)

const lockRetry = 10 * time.Millisecond

type Store struct {
	path      string
	statePath string
	lock      *flock.Flock

	mu      sync.RWMutex
	entries []models.CatalogEntry
	byKey   map[string]int
	byID    map[string]int
	side    sidecar
	now     func() time.Time

	// what was on disk when entries and side were last loaded or written
	entriesStamp os.FileInfo
	sideStamp    os.FileInfo
}

// sidecar holds what the legacy document has no room for.
type sidecar struct {
	SyncStates []models.SyncState     `json:"sync_states"`
	Settings   []models.SystemSetting `json:"settings"`
}

// Open loads the document at path. A missing file is an empty catalog.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("snapshot path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, repository.IOError("create snapshot dir", err)
	}
	s := &Store{
		path:      path,
		statePath: path + ".state.json",
		lock:      flock.New(path + ".lock"),
		entries:   []models.CatalogEntry{},
		now:       func() time.Time { return time.Now().UTC() },
	}
	s.reindex()
	if err := s.refresh(context.Background()); err != nil {
		_ = s.lock.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

// Close releases the lock file handle.
func (s *Store) Close() error {
	return s.lock.Close()
}

// refresh picks up changes other processes made since the last load.
func (s *Store) refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	locked, err := s.lock.TryRLockContext(ctx, lockRetry)
	if err != nil || !locked {
		return repository.IOError("lock snapshot", lockError(err))
	}
	defer func() { _ = s.lock.Unlock() }()
	return s.reloadIfStale()
}

// update runs fn with the document lock held exclusively, on a collection
// that reflects every write committed before the lock was taken.
func (s *Store) update(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	locked, err := s.lock.TryLockContext(ctx, lockRetry)
	if err != nil || !locked {
		return repository.IOError("lock snapshot", lockError(err))
	}
	defer func() { _ = s.lock.Unlock() }()
	if err := s.reloadIfStale(); err != nil {
		return err
	}
	return fn()
}

func lockError(err error) error {
	if err == nil {
		return fmt.Errorf("lock not acquired")
	}
	return err
}

// reloadIfStale rereads whichever file was replaced since this store last
// touched it. Callers hold mu and the file lock.
func (s *Store) reloadIfStale() error {
	current, err := statFile(s.path)
	if err != nil {
		return repository.IOError("stat snapshot", err)
	}
	if !sameStamp(s.entriesStamp, current) {
		entries, err := loadEntries(s.path)
		if err != nil {
			return err
		}
		s.entries = entries
		s.reindex()
		s.entriesStamp = current
	}

	current, err = statFile(s.statePath)
	if err != nil {
		return repository.IOError("stat state", err)
	}
	if !sameStamp(s.sideStamp, current) {
		var side sidecar
		if err := readJSON(s.statePath, &side); err != nil {
			return err
		}
		s.side = side
		s.sideStamp = current
	}
	return nil
}

func statFile(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return info, nil
}

// sameStamp reports whether two stats describe the same file version. Every
// write renames a fresh file into place, so the inode changes along with
// the modification time.
func sameStamp(a, b os.FileInfo) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return os.SameFile(a, b) && a.ModTime().Equal(b.ModTime()) && a.Size() == b.Size()
}

func loadEntries(path string) ([]models.CatalogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.CatalogEntry{}, nil
		}
		return nil, repository.IOError("read snapshot", err)
	}
	entries, err := parseEntries(data)
	if err != nil {
		return nil, repository.IOError("parse snapshot", err)
	}
	return entries, nil
}

// parseEntries accepts a bare array or an object with a "games" array. The
// first entry wins when two share a normalized key.
func parseEntries(data []byte) ([]models.CatalogEntry, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []models.CatalogEntry{}, nil
	}
	var raw []models.CatalogEntry
	if data[0] == '{' {
		var doc struct {
			Games []models.CatalogEntry `json:"games"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		raw = doc.Games
	} else if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	out := make([]models.CatalogEntry, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, entry := range raw {
		entry.EnsureDefaults()
		if entry.NormalizedKey == "" {
			continue
		}
		if _, ok := seen[entry.NormalizedKey]; ok {
			continue
		}
		seen[entry.NormalizedKey] = struct{}{}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Store) reindex() {
	s.byKey = make(map[string]int, len(s.entries))
	s.byID = make(map[string]int, len(s.entries))
	for i, entry := range s.entries {
		s.byKey[entry.NormalizedKey] = i
		s.byID[entry.ID] = i
	}
}

// commit writes next to disk and only then makes it the live collection.
// Callers run inside update.
func (s *Store) commit(next []models.CatalogEntry) error {
	if err := writeJSONAtomic(s.path, next); err != nil {
		return repository.IOError("write snapshot", err)
	}
	s.entries = next
	s.reindex()
	// a failed stat only forces a reload on the next access
	s.entriesStamp, _ = statFile(s.path)
	return nil
}

func (s *Store) cloneEntries() []models.CatalogEntry {
	next := make([]models.CatalogEntry, len(s.entries), len(s.entries)+1)
	copy(next, s.entries)
	return next
}

// --- catalog entries --------------------------------------------------------

func (s *Store) GetEntryByID(ctx context.Context, id string) (*models.CatalogEntry, error) {
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return nil, nil
	}
	entry := s.entries[i].Clone()
	return &entry, nil
}

func (s *Store) GetEntryByKey(ctx context.Context, normalizedKey string) (*models.CatalogEntry, error) {
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byKey[normalizedKey]
	if !ok {
		return nil, nil
	}
	entry := s.entries[i].Clone()
	return &entry, nil
}

func (s *Store) FindEntriesByKeys(ctx context.Context, keys []string) ([]models.CatalogEntry, error) {
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.CatalogEntry
	seen := map[string]struct{}{}
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if i, ok := s.byKey[key]; ok {
			out = append(out, s.entries[i].Clone())
		}
	}
	return out, nil
}

func (s *Store) ListAllEntries(ctx context.Context) ([]models.CatalogEntry, error) {
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.CatalogEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry.Clone())
	}
	return out, nil
}

func (s *Store) SearchEntries(ctx context.Context, params repository.SearchParams) ([]models.CatalogEntry, error) {
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.CatalogEntry
	for _, entry := range s.entries {
		if params.Match(entry) {
			out = append(out, entry.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Title) < strings.ToLower(out[j].Title)
	})
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func (s *Store) ListEntries(ctx context.Context, params repository.ListEntriesParams) ([]models.CatalogEntry, error) {
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := s.filter(params)
	sortEntries(matched, params.OrderBy, params.Asc)

	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}
	limit = min(limit, 500)
	offset := max(params.Offset, 0)
	if offset >= len(matched) {
		return []models.CatalogEntry{}, nil
	}
	end := min(offset+limit, len(matched))
	return matched[offset:end], nil
}

func (s *Store) CountEntries(ctx context.Context, params repository.ListEntriesParams) (int64, error) {
	if err := s.refresh(ctx); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.filter(params))), nil
}

func (s *Store) filter(params repository.ListEntriesParams) []models.CatalogEntry {
	var out []models.CatalogEntry
	for _, entry := range s.entries {
		if params.Match(entry) {
			out = append(out, entry.Clone())
		}
	}
	return out
}

func sortEntries(items []models.CatalogEntry, orderBy string, asc *bool) {
	ascending := asc != nil && *asc
	less := func(a, b models.CatalogEntry) bool {
		switch orderBy {
		case "title":
			return strings.ToLower(a.Title) < strings.ToLower(b.Title)
		case "rating":
			return a.Rating < b.Rating
		case "price":
			return a.Price.LessThan(b.Price)
		case "created_at":
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if ascending {
			return less(items[i], items[j])
		}
		return less(items[j], items[i])
	})
}

func (s *Store) UpsertEntry(ctx context.Context, entry *models.CatalogEntry) error {
	if entry == nil {
		return nil
	}
	entry.EnsureDefaults()
	return s.update(ctx, func() error {
		now := s.now()
		stored := entry.Clone()
		stored.UpdatedAt = now
		next := s.cloneEntries()
		if i, ok := s.byKey[stored.NormalizedKey]; ok {
			stored.ID = next[i].ID
			stored.CreatedAt = next[i].CreatedAt
			next[i] = stored
		} else {
			if stored.CreatedAt.IsZero() {
				stored.CreatedAt = now
			}
			if _, taken := s.byID[stored.ID]; taken {
				return fmt.Errorf("upsert entry: id %s already used by another key", stored.ID)
			}
			next = append(next, stored)
		}
		if err := s.commit(next); err != nil {
			return err
		}
		*entry = stored.Clone()
		return nil
	})
}

func (s *Store) InsertEntryIfAbsent(ctx context.Context, entry *models.CatalogEntry) (*models.CatalogEntry, bool, error) {
	if entry == nil {
		return nil, false, nil
	}
	entry.EnsureDefaults()
	var (
		out     models.CatalogEntry
		created bool
	)
	err := s.update(ctx, func() error {
		if i, ok := s.byKey[entry.NormalizedKey]; ok {
			out = s.entries[i].Clone()
			return nil
		}
		now := s.now()
		stored := entry.Clone()
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
		stored.UpdatedAt = now
		if err := s.commit(append(s.cloneEntries(), stored)); err != nil {
			return err
		}
		out = stored.Clone()
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, created, nil
}

// SaveSnapshot merges entries into the collection by normalized key and
// rewrites the document once. Entries not in the argument are kept, so rows
// discovered by concurrent searches survive a batch checkpoint.
func (s *Store) SaveSnapshot(ctx context.Context, entries []models.CatalogEntry) error {
	return s.update(ctx, func() error {
		return s.mergeSnapshot(entries)
	})
}

func (s *Store) mergeSnapshot(entries []models.CatalogEntry) error {
	now := s.now()
	next := s.cloneEntries()
	index := make(map[string]int, len(next))
	for i, entry := range next {
		index[entry.NormalizedKey] = i
	}
	for _, entry := range entries {
		entry = entry.Clone()
		entry.EnsureDefaults()
		if entry.NormalizedKey == "" {
			continue
		}
		entry.UpdatedAt = now
		if i, ok := index[entry.NormalizedKey]; ok {
			entry.ID = next[i].ID
			entry.CreatedAt = next[i].CreatedAt
			next[i] = entry
			continue
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		index[entry.NormalizedKey] = len(next)
		next = append(next, entry)
	}
	return s.commit(next)
}

// --- sync state & settings --------------------------------------------------

func (s *Store) GetSyncState(ctx context.Context, scope string) (*models.SyncState, error) {
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, state := range s.side.SyncStates {
		if state.Scope == scope {
			out := state
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	if state == nil {
		return nil
	}
	return s.update(ctx, func() error {
		next := s.side
		next.SyncStates = slices.Clone(s.side.SyncStates)
		idx := slices.IndexFunc(next.SyncStates, func(item models.SyncState) bool { return item.Scope == state.Scope })
		if idx >= 0 {
			next.SyncStates[idx] = *state
		} else {
			next.SyncStates = append(next.SyncStates, *state)
		}
		return s.commitSidecar(next)
	})
}

func (s *Store) ListSyncStates(ctx context.Context) ([]models.SyncState, error) {
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.side.SyncStates)
	sort.Slice(out, func(i, j int) bool { return out[i].Scope < out[j].Scope })
	return out, nil
}

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	return s.update(ctx, func() error {
		now := s.now()
		next := s.side
		next.Settings = slices.Clone(s.side.Settings)
		idx := slices.IndexFunc(next.Settings, func(existing models.SystemSetting) bool { return existing.Key == item.Key })
		if idx >= 0 {
			item.CreatedAt = next.Settings[idx].CreatedAt
			item.UpdatedAt = now
			next.Settings[idx] = *item
		} else {
			item.CreatedAt = now
			item.UpdatedAt = now
			next.Settings = append(next.Settings, *item)
		}
		return s.commitSidecar(next)
	})
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	key = strings.TrimSpace(key)
	for _, item := range s.side.Settings {
		if item.Key == key {
			out := item
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := ""
	if params.Prefix != nil {
		prefix = strings.TrimSpace(*params.Prefix)
	}
	var out []models.SystemSetting
	for _, item := range s.side.Settings {
		if strings.HasPrefix(item.Key, prefix) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) commitSidecar(next sidecar) error {
	if err := writeJSONAtomic(s.statePath, next); err != nil {
		return repository.IOError("write state", err)
	}
	s.side = next
	s.sideStamp, _ = statFile(s.statePath)
	return nil
}

// --- files ------------------------------------------------------------------

func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return repository.IOError("read "+filepath.Base(path), err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return repository.IOError("parse "+filepath.Base(path), err)
	}
	return nil
}

// writeJSONAtomic never leaves a half-written file at path: the data goes to
// a temporary file in the same directory, is synced, then renamed over path.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := f.Name()
	if _, err := f.Write(append(data, '\n')); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

var _ repository.CatalogRepository = (*Store)(nil)
