package gormrepository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"gamecatalog/internal/config"
	"gamecatalog/internal/db"
	"gamecatalog/internal/models"
	"gamecatalog/internal/repository"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.Open(config.DBConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "catalog.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(conn) })
	if err := db.AutoMigrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(conn.Gorm)
}

func TestUpsertEntryKeepsOneRowPerKey(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first := &models.CatalogEntry{Title: "Celeste", Price: decimal.RequireFromString("19.99")}
	if err := store.UpsertEntry(ctx, first); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	firstID := first.ID

	second := &models.CatalogEntry{Title: "CELESTE (2018)", Genres: datatypes.JSONSlice[string]{"Platformer"}}
	if err := store.UpsertEntry(ctx, second); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if second.ID != firstID {
		t.Fatalf("expected stored id %s, got %s", firstID, second.ID)
	}

	all, err := store.ListAllEntries(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 row, got %d", len(all))
	}
	if len(all[0].Genres) != 1 || all[0].Platforms == nil {
		t.Fatalf("unexpected stored entry: %+v", all[0])
	}
}

func TestInsertEntryIfAbsentConcurrent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[string]struct{}{}
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry := &models.CatalogEntry{Title: "Cyberpunk 2077", IsExternal: true}
			stored, ok, err := store.InsertEntryIfAbsent(ctx, entry)
			if err != nil {
				t.Errorf("insert: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if ok {
				created++
			}
			if stored != nil {
				ids[stored.ID] = struct{}{}
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Fatalf("expected exactly one creator, got %d", created)
	}
	if len(ids) != 1 {
		t.Fatalf("expected every caller to see the same row, got %d ids", len(ids))
	}
	entries, err := store.FindEntriesByKeys(ctx, []string{"cyberpunk 2077"})
	if err != nil || len(entries) != 1 {
		t.Fatalf("entries=%d err=%v", len(entries), err)
	}
}

func TestSaveSnapshotAndSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	snapshot := []models.CatalogEntry{
		{Title: "Hades", Developer: "Supergiant Games", Genres: datatypes.JSONSlice[string]{"Action", "Roguelike"}, Platforms: datatypes.JSONSlice[string]{"PC"}, EnrichmentStatus: models.EnrichmentComplete},
		{Title: "Bastion", Developer: "Supergiant Games", Genres: datatypes.JSONSlice[string]{"Action"}, Platforms: datatypes.JSONSlice[string]{"Xbox"}, EnrichmentStatus: models.EnrichmentComplete},
		{Title: "Cyber Shadow", IsExternal: true, EnrichmentStatus: models.EnrichmentPending},
		{Title: "Hades", Developer: "Supergiant Games", Rating: 4.8, Genres: datatypes.JSONSlice[string]{"Action", "Roguelike"}, Platforms: datatypes.JSONSlice[string]{"PC"}, EnrichmentStatus: models.EnrichmentComplete},
	}
	if err := store.SaveSnapshot(ctx, snapshot); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	hades, err := store.GetEntryByKey(ctx, "hades")
	if err != nil || hades == nil {
		t.Fatalf("hades=%v err=%v", hades, err)
	}
	if hades.Rating != 4.8 {
		t.Fatalf("later duplicate should win, rating=%v", hades.Rating)
	}

	cases := []struct {
		name   string
		params repository.SearchParams
		want   int
	}{
		{name: "developer via query", params: repository.SearchParams{Query: "supergiant"}, want: 2},
		{name: "genre filter", params: repository.SearchParams{Query: "supergiant", Genre: "rogue"}, want: 1},
		{name: "platform filter", params: repository.SearchParams{Platform: "xbox"}, want: 1},
		{name: "developer filter", params: repository.SearchParams{Query: "cyber", Developer: "supergiant"}, want: 0},
		{name: "title", params: repository.SearchParams{Query: "CYBER"}, want: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			items, err := store.SearchEntries(ctx, tc.params)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if len(items) != tc.want {
				t.Fatalf("got %d items, want %d", len(items), tc.want)
			}
		})
	}

	visible, err := store.CountEntries(ctx, repository.ListEntriesParams{})
	if err != nil || visible != 2 {
		t.Fatalf("visible=%d err=%v", visible, err)
	}
	all, err := store.CountEntries(ctx, repository.ListEntriesParams{IncludePending: true})
	if err != nil || all != 3 {
		t.Fatalf("all=%d err=%v", all, err)
	}
}

func TestSyncStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	state, err := store.GetSyncState(ctx, "all")
	if err != nil || state != nil {
		t.Fatalf("expected no state, got %v err=%v", state, err)
	}
	next := &models.SyncState{Scope: "all", Status: models.SyncRunning}
	next.Apply(models.SyncCheckpoint{ProcessedCount: 10, UpdatedCount: 4, FailedCount: 1})
	if err := store.SaveSyncState(ctx, next); err != nil {
		t.Fatalf("save: %v", err)
	}
	next.Status = models.SyncCompleted
	if err := store.SaveSyncState(ctx, next); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.GetSyncState(ctx, "all")
	if err != nil || got == nil {
		t.Fatalf("got=%v err=%v", got, err)
	}
	if got.Status != models.SyncCompleted || got.UpdatedCount != 4 || got.FailedCount != 1 {
		t.Fatalf("unexpected state: %+v", got)
	}
}

func TestClosedDatabaseIsStoreIO(t *testing.T) {
	conn, err := db.Open(config.DBConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "closed.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.AutoMigrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := New(conn.Gorm)
	_ = db.Close(conn)

	_, err = store.ListAllEntries(context.Background())
	if !errors.Is(err, repository.ErrStoreIO) {
		t.Fatalf("expected ErrStoreIO, got %v", err)
	}
}
