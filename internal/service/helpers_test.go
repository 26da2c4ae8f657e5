package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gamecatalog/internal/client/provider"
	"gamecatalog/internal/models"
	"gamecatalog/internal/reconcile"
	"gamecatalog/internal/repository"
	filerepository "gamecatalog/internal/repository/file"
)

type fakeProvider struct {
	mu sync.Mutex

	metadata    map[string]provider.ExternalRecord
	metadataErr map[string]error
	pricing     map[string]provider.PricingRecord
	pricingErr  map[string]error
	search      []provider.ExternalRecord
	searchErr   error
	searchDelay time.Duration
	// release, when set, blocks SearchByQuery until closed.
	release    chan struct{}
	onMetadata func(call int)

	metadataCalls int
	pricingCalls  int
	searchCalls   int
}

func (f *fakeProvider) FetchMetadata(ctx context.Context, externalID string) (*provider.ExternalRecord, error) {
	f.mu.Lock()
	f.metadataCalls++
	call := f.metadataCalls
	hook := f.onMetadata
	err := f.metadataErr[externalID]
	rec, ok := f.metadata[externalID]
	f.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	// like an HTTP call, a cancelled context fails the request
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("metadata %s: %w", externalID, provider.ErrNotFound)
	}
	rec.ExternalID = externalID
	return &rec, nil
}

func (f *fakeProvider) FetchPricing(ctx context.Context, pricingID string) (*provider.PricingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pricingCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.pricingErr[pricingID]; err != nil {
		return nil, err
	}
	rec, ok := f.pricing[pricingID]
	if !ok {
		return nil, fmt.Errorf("pricing %s: %w", pricingID, provider.ErrNotFound)
	}
	return &rec, nil
}

func (f *fakeProvider) SearchByQuery(ctx context.Context, query string, filter provider.SearchFilter) ([]provider.ExternalRecord, error) {
	f.mu.Lock()
	f.searchCalls++
	release := f.release
	delay := f.searchDelay
	results := append([]provider.ExternalRecord(nil), f.search...)
	err := f.searchErr
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	return results, err
}

func (f *fakeProvider) Discover(ctx context.Context, params provider.DiscoverParams) ([]provider.ExternalRecord, error) {
	return f.SearchByQuery(ctx, params.Tags, provider.SearchFilter{})
}

func (f *fakeProvider) counts() (metadata, pricing, search int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metadataCalls, f.pricingCalls, f.searchCalls
}

func newFileStore(t *testing.T, seed ...models.CatalogEntry) *filerepository.Store {
	t.Helper()
	store, err := filerepository.Open(filepath.Join(t.TempDir(), "games.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if len(seed) > 0 {
		if err := store.SaveSnapshot(context.Background(), seed); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}
	return store
}

func newTestEngine(curated ...string) *reconcile.Engine {
	engine := reconcile.NewEngine(reconcile.NewCuratedList(curated))
	engine.Rand = fixedRand(10)
	return engine
}

type fixedRand int

func (f fixedRand) IntN(n int) int { return int(f) % n }

// faultyStore fails selected operations with a store i/o error.
type faultyStore struct {
	repository.CatalogRepository

	mu            sync.Mutex
	failList      bool
	failSnapshot  bool
	failInsert    bool
	snapshotCalls int
	snapshotSizes []int
}

func (f *faultyStore) ListAllEntries(ctx context.Context) ([]models.CatalogEntry, error) {
	if f.failList {
		return nil, repository.IOError("list entries", fmt.Errorf("disk unplugged"))
	}
	return f.CatalogRepository.ListAllEntries(ctx)
}

func (f *faultyStore) SaveSnapshot(ctx context.Context, entries []models.CatalogEntry) error {
	f.mu.Lock()
	f.snapshotCalls++
	f.snapshotSizes = append(f.snapshotSizes, len(entries))
	fail := f.failSnapshot
	f.mu.Unlock()
	if fail {
		return repository.IOError("write snapshot", fmt.Errorf("disk full"))
	}
	return f.CatalogRepository.SaveSnapshot(ctx, entries)
}

func (f *faultyStore) InsertEntryIfAbsent(ctx context.Context, entry *models.CatalogEntry) (*models.CatalogEntry, bool, error) {
	if f.failInsert {
		return nil, false, repository.IOError("insert entry", fmt.Errorf("read-only file system"))
	}
	return f.CatalogRepository.InsertEntryIfAbsent(ctx, entry)
}

func countAll(t *testing.T, store repository.CatalogRepository) int {
	t.Helper()
	n, err := store.CountEntries(context.Background(), repository.ListEntriesParams{IncludePending: true})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return int(n)
}
