package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gamecatalog/internal/client/provider"
	"gamecatalog/internal/models"
	"gamecatalog/internal/repository"
)

func syncSeed() []models.CatalogEntry {
	return []models.CatalogEntry{
		{Title: "Celeste", ExternalID: "1", PricingProviderID: "504230"},
		{Title: "Generic Shooter", ExternalID: "2", PricingProviderID: "123", Price: decimal.RequireFromString("19.99"), OriginalPrice: decimal.RequireFromString("19.99")},
		{Title: "Hollow Knight", ExternalID: "3"},
	}
}

func syncProvider() *fakeProvider {
	return &fakeProvider{
		metadata: map[string]provider.ExternalRecord{
			"1": {Name: "Celeste", Platforms: []string{"PC", "Switch"}, Genres: []string{"Platformer", "Indie"}},
			"2": {Name: "Generic Shooter", Platforms: []string{"PC"}, Genres: []string{"Shooter"}},
			"3": {Name: "Hollow Knight", Platforms: []string{"PC"}, Genres: []string{"Metroidvania", "Action", "Indie", "Adventure"}},
		},
		pricing: map[string]provider.PricingRecord{
			"504230": {Final: decimal.RequireFromString("19.99"), Initial: decimal.RequireFromString("19.99"), Currency: "USD"},
			"123":    {IsFree: true},
		},
	}
}

func TestCatalogSyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t, syncSeed()...)
	fake := syncProvider()
	svc := &CatalogSyncService{Store: store, Provider: fake, Engine: newTestEngine("Hollow Knight")}

	first, err := svc.Sync(ctx, SyncOptions{})
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if first.Status != models.SyncCompleted || first.Updated != 3 || first.Failed != 0 {
		t.Fatalf("first result=%+v", first)
	}

	shooter, _ := store.GetEntryByKey(ctx, "generic shooter")
	if shooter == nil || !shooter.Price.IsZero() || !shooter.OriginalPrice.IsZero() || shooter.OnSale || shooter.Currency != "USD" {
		t.Fatalf("free-to-play reversion failed: %+v", shooter)
	}
	knight, _ := store.GetEntryByKey(ctx, "hollow knight")
	low, high := decimal.RequireFromString("30.99"), decimal.RequireFromString("60.99")
	if knight == nil || knight.Price.LessThan(low) || knight.Price.GreaterThan(high) || !knight.OriginalPrice.Equal(knight.Price) {
		t.Fatalf("curated price out of bounds: %+v", knight)
	}
	if len(knight.Genres) != 3 {
		t.Fatalf("genres should be truncated to 3, got %v", knight.Genres)
	}
	celeste, _ := store.GetEntryByKey(ctx, "celeste")
	if celeste == nil || celeste.EnrichmentStatus != models.EnrichmentComplete || celeste.LastSyncedAt == nil {
		t.Fatalf("celeste not marked complete: %+v", celeste)
	}

	metaBefore, pricingBefore, _ := fake.counts()
	second, err := svc.Sync(ctx, SyncOptions{})
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if second.Updated != 0 || second.Failed != 0 || second.Skipped != 3 || second.Checkpoints != 0 {
		t.Fatalf("second result=%+v", second)
	}
	metaAfter, pricingAfter, _ := fake.counts()
	if metaAfter != metaBefore || pricingAfter != pricingBefore {
		t.Fatalf("second run should not call providers")
	}

	state, err := store.GetSyncState(ctx, "all")
	if err != nil || state == nil || state.Status != models.SyncCompleted || state.LastSuccessAt == nil {
		t.Fatalf("state=%+v err=%v", state, err)
	}
}

func TestCatalogSyncIsolatesItemFailures(t *testing.T) {
	ctx := context.Background()
	seed := append(syncSeed(), models.CatalogEntry{Title: "Broken Game", ExternalID: "404"})
	store := newFileStore(t, seed...)
	fake := syncProvider()
	fake.pricingErr = map[string]error{"504230": provider.ErrRateLimited}
	svc := &CatalogSyncService{Store: store, Provider: fake, Engine: newTestEngine("Hollow Knight")}

	result, err := svc.Sync(ctx, SyncOptions{})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Status != models.SyncCompleted || result.Failed != 2 || result.Updated != 2 {
		t.Fatalf("result=%+v", result)
	}

	broken, _ := store.GetEntryByKey(ctx, "broken game")
	if broken == nil || broken.EnrichmentStatus != models.EnrichmentPending || len(broken.Genres) != 0 || broken.LastSyncedAt != nil {
		t.Fatalf("not-found entry must be left unchanged: %+v", broken)
	}
	celeste, _ := store.GetEntryByKey(ctx, "celeste")
	if celeste == nil || celeste.EnrichmentStatus != models.EnrichmentPartial || len(celeste.Platforms) != 2 {
		t.Fatalf("partial entry should keep metadata: %+v", celeste)
	}
}

func TestCatalogSyncCheckpointsEveryK(t *testing.T) {
	ctx := context.Background()
	var seed []models.CatalogEntry
	fake := &fakeProvider{metadata: map[string]provider.ExternalRecord{}}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		seed = append(seed, models.CatalogEntry{Title: "Game " + id, ExternalID: models.ProviderID(id)})
		fake.metadata[id] = provider.ExternalRecord{Name: "Game " + id, Platforms: []string{"PC"}, Genres: []string{"RPG"}}
	}
	store := &faultyStore{CatalogRepository: newFileStore(t, seed...)}
	svc := &CatalogSyncService{Store: store, Provider: fake, Engine: newTestEngine()}

	result, err := svc.Sync(ctx, SyncOptions{Scope: "metadata", CheckpointEvery: 2})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Checkpoints != 3 || store.snapshotCalls != 3 {
		t.Fatalf("checkpoints=%d snapshot calls=%d", result.Checkpoints, store.snapshotCalls)
	}
	if got := store.snapshotSizes; got[0] != 2 || got[1] != 2 || got[2] != 1 {
		t.Fatalf("snapshot sizes=%v", got)
	}
}

func TestCatalogSyncAbortsOnStoreErrors(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name  string
		store func(*faultyStore)
	}{
		{name: "unreadable snapshot", store: func(f *faultyStore) { f.failList = true }},
		{name: "checkpoint write", store: func(f *faultyStore) { f.failSnapshot = true }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inner := newFileStore(t, syncSeed()...)
			store := &faultyStore{CatalogRepository: inner}
			tc.store(store)
			svc := &CatalogSyncService{Store: store, Provider: syncProvider(), Engine: newTestEngine("Hollow Knight")}

			result, err := svc.Sync(ctx, SyncOptions{CheckpointEvery: 1})
			if !errors.Is(err, ErrSyncAborted) || !errors.Is(err, repository.ErrStoreIO) {
				t.Fatalf("expected abort wrapping store error, got %v", err)
			}
			if result.Status != models.SyncAborted {
				t.Fatalf("status=%s", result.Status)
			}
			if result.Processed > 1 {
				t.Fatalf("run continued after fatal error: %+v", result)
			}
			shooter, _ := inner.GetEntryByKey(ctx, "generic shooter")
			if shooter == nil || !shooter.Price.Equal(decimal.RequireFromString("19.99")) {
				t.Fatalf("no mutation may be persisted after abort: %+v", shooter)
			}
			state, _ := inner.GetSyncState(ctx, "all")
			if state == nil || state.Status != models.SyncAborted || state.LastError == nil {
				t.Fatalf("state=%+v", state)
			}
		})
	}
}

func TestCatalogSyncRejectsConcurrentRun(t *testing.T) {
	svc := &CatalogSyncService{Store: newFileStore(t), Provider: syncProvider(), Engine: newTestEngine()}
	svc.running.Store(true)
	if _, err := svc.Sync(context.Background(), SyncOptions{}); !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("expected ErrSyncInProgress, got %v", err)
	}
	if _, err := (&CatalogSyncService{Store: newFileStore(t), Engine: newTestEngine()}).Sync(context.Background(), SyncOptions{Scope: "everything"}); !errors.Is(err, ErrInvalidScope) {
		t.Fatalf("expected ErrInvalidScope, got %v", err)
	}
}

func TestCatalogSyncStopsBetweenItemsAndResumes(t *testing.T) {
	var seed []models.CatalogEntry
	fake := &fakeProvider{metadata: map[string]provider.ExternalRecord{}}
	for _, id := range []string{"1", "2", "3", "4"} {
		seed = append(seed, models.CatalogEntry{Title: "Title " + id, ExternalID: models.ProviderID(id)})
		fake.metadata[id] = provider.ExternalRecord{Name: "Title " + id, Platforms: []string{"PC"}, Genres: []string{"Puzzle"}}
	}
	store := newFileStore(t, seed...)
	svc := &CatalogSyncService{Store: store, Provider: fake, Engine: newTestEngine(), CheckpointEvery: 10}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fake.onMetadata = func(call int) {
		if call == 2 {
			cancel()
		}
	}
	result, err := svc.Sync(ctx, SyncOptions{Scope: "metadata"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// the call in flight when the stop arrived still completes
	if !result.Canceled || result.Processed != 2 || result.Updated != 2 || result.Failed != 0 || result.Checkpoints != 1 {
		t.Fatalf("result=%+v", result)
	}

	fake.onMetadata = nil
	resumed, err := svc.Sync(context.Background(), SyncOptions{Scope: "metadata"})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Processed != 2 || resumed.Skipped != 2 || resumed.Updated != 2 {
		t.Fatalf("resumed=%+v", resumed)
	}
}

func TestCatalogSyncWaitCoversBackgroundRun(t *testing.T) {
	store := newFileStore(t, syncSeed()...)
	fake := syncProvider()
	entered := make(chan struct{})
	release := make(chan struct{})
	fake.onMetadata = func(call int) {
		if call == 1 {
			close(entered)
			<-release
		}
	}
	svc := &CatalogSyncService{Store: store, Provider: fake, Engine: newTestEngine(), CheckpointEvery: 10}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var (
		mu     sync.Mutex
		runErr error
	)
	if err := svc.Start(ctx, SyncOptions{Scope: "metadata"}, func(_ SyncResult, err error) {
		mu.Lock()
		runErr = err
		mu.Unlock()
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-entered
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	if err := svc.Wait(waitCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("wait should time out while the item is in flight, got %v", err)
	}
	waitCancel()

	close(release)
	waitCtx, waitCancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if err := svc.Wait(waitCtx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if svc.Running() {
		t.Fatalf("runner still claimed after wait")
	}
	mu.Lock()
	defer mu.Unlock()
	if !errors.Is(runErr, context.Canceled) {
		t.Fatalf("run err=%v", runErr)
	}
	state, err := store.GetSyncState(context.Background(), "metadata")
	if err != nil || state == nil {
		t.Fatalf("state=%v err=%v", state, err)
	}
	if state.Status != models.SyncAborted || state.UpdatedCount != 1 {
		t.Fatalf("expected a stopped run with its item persisted, got %+v", state)
	}
}

func TestCatalogSyncResolvesMissingExternalID(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t, models.CatalogEntry{Title: "Stardew Valley"})
	fake := &fakeProvider{
		search: []provider.ExternalRecord{
			{ExternalID: "99", Name: "Stardew Valley Expanded"},
			{ExternalID: "10", Name: "Stardew Valley"},
		},
		metadata: map[string]provider.ExternalRecord{
			"10": {Name: "Stardew Valley", Platforms: []string{"PC"}, Genres: []string{"Simulation"}, Developer: "ConcernedApe"},
		},
	}
	svc := &CatalogSyncService{Store: store, Provider: fake, Engine: newTestEngine()}
	if _, err := svc.Sync(ctx, SyncOptions{Scope: "metadata"}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	entry, _ := store.GetEntryByKey(ctx, "stardew valley")
	if entry == nil || entry.ExternalID != "10" || entry.Developer != "ConcernedApe" {
		t.Fatalf("entry=%+v", entry)
	}
}
