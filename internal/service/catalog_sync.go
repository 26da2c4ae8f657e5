package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gamecatalog/internal/client/provider"
	"gamecatalog/internal/metrics"
	"gamecatalog/internal/models"
	"gamecatalog/internal/reconcile"
	"gamecatalog/internal/repository"
)

var (
	ErrSyncInProgress = errors.New("catalog sync already running")
	ErrSyncAborted    = errors.New("catalog sync aborted")
	ErrInvalidScope   = errors.New("unsupported sync scope")
	ErrNotConfigured  = errors.New("catalog sync is not configured")
)

const (
	defaultCheckpointEvery = 15
	flushTimeout           = 30 * time.Second
	resolveSearchLimit     = 5
	// bounds the provider calls of one item; a stop request does not cut them short
	itemTimeout = 2 * time.Minute
)

// CatalogProvider is what the sync, search and import services need from
// the external providers. *provider.Client satisfies it.
type CatalogProvider interface {
	FetchMetadata(ctx context.Context, externalID string) (*provider.ExternalRecord, error)
	FetchPricing(ctx context.Context, pricingID string) (*provider.PricingRecord, error)
	SearchByQuery(ctx context.Context, query string, filter provider.SearchFilter) ([]provider.ExternalRecord, error)
	Discover(ctx context.Context, params provider.DiscoverParams) ([]provider.ExternalRecord, error)
}

// CatalogSyncService walks the whole catalog, one entry and one provider call
// at a time, and enriches whatever the selection predicate picks.
type CatalogSyncService struct {
	Store           repository.CatalogRepository
	Provider        CatalogProvider
	Engine          *reconcile.Engine
	Logger          *zap.Logger
	CheckpointEvery int

	running atomic.Bool
	runs    sync.WaitGroup
}

type SyncOptions struct {
	Scope           string
	Limit           int
	CheckpointEvery int
}

type SyncResult struct {
	Scope       string               `json:"scope"`
	Status      models.SyncRunStatus `json:"status"`
	Total       int                  `json:"total"`
	Processed   int                  `json:"processed"`
	Updated     int                  `json:"updated"`
	Skipped     int                  `json:"skipped"`
	Failed      int                  `json:"failed"`
	Checkpoints int                  `json:"checkpoints"`
	Canceled    bool                 `json:"canceled"`
	StartedAt   time.Time            `json:"started_at"`
	FinishedAt  time.Time            `json:"finished_at"`
}

func (r SyncResult) checkpoint() models.SyncCheckpoint {
	return models.SyncCheckpoint{
		ProcessedCount: r.Processed,
		UpdatedCount:   r.Updated,
		SkippedCount:   r.Skipped,
		FailedCount:    r.Failed,
	}
}

func (s *CatalogSyncService) Running() bool {
	return s.running.Load()
}

// Sync runs one pass: Idle -> Running -> Completed, or Aborted when the
// snapshot cannot be read or a checkpoint cannot be written. Provider errors
// only fail the item they belong to. A cancelled ctx stops the run between
// items after flushing pending changes.
func (s *CatalogSyncService) Sync(ctx context.Context, opts SyncOptions) (SyncResult, error) {
	scope, err := s.prepare(opts)
	if err != nil {
		return SyncResult{}, err
	}
	if !s.running.CompareAndSwap(false, true) {
		return SyncResult{}, ErrSyncInProgress
	}
	defer s.running.Store(false)
	return s.newRun(scope, opts).execute(ctx, opts.Limit)
}

// Start claims the runner and performs the run in the background. done, if
// set, receives the terminal report. It fails fast with ErrSyncInProgress.
func (s *CatalogSyncService) Start(ctx context.Context, opts SyncOptions, done func(SyncResult, error)) error {
	scope, err := s.prepare(opts)
	if err != nil {
		return err
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer s.running.Store(false)
		result, err := s.newRun(scope, opts).execute(ctx, opts.Limit)
		if done != nil {
			done(result, err)
		}
	}()
	return nil
}

// Wait blocks until every run launched by Start has written its terminal
// state, or ctx ends.
func (s *CatalogSyncService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *CatalogSyncService) prepare(opts SyncOptions) (reconcile.Scope, error) {
	scope, ok := reconcile.ParseScope(strings.ToLower(strings.TrimSpace(opts.Scope)))
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidScope, opts.Scope)
	}
	if s.Store == nil || s.Engine == nil {
		return "", ErrNotConfigured
	}
	return scope, nil
}

func (s *CatalogSyncService) newRun(scope reconcile.Scope, opts SyncOptions) *syncRun {
	checkpointEvery := opts.CheckpointEvery
	if checkpointEvery <= 0 {
		checkpointEvery = s.CheckpointEvery
	}
	if checkpointEvery <= 0 {
		checkpointEvery = defaultCheckpointEvery
	}
	return &syncRun{
		svc:             s,
		scope:           scope,
		checkpointEvery: checkpointEvery,
		dirty:           map[string]models.CatalogEntry{},
		result: SyncResult{
			Scope:     string(scope),
			Status:    models.SyncRunning,
			StartedAt: time.Now().UTC(),
		},
	}
}

type syncRun struct {
	svc             *CatalogSyncService
	scope           reconcile.Scope
	checkpointEvery int
	dirty           map[string]models.CatalogEntry
	order           []string
	sinceCheckpoint int
	result          SyncResult
}

func (r *syncRun) execute(ctx context.Context, limit int) (SyncResult, error) {
	s := r.svc
	if err := r.saveState(ctx, models.SyncRunning, nil); err != nil {
		return r.abort(ctx, err)
	}

	entries, err := s.Store.ListAllEntries(ctx)
	if err != nil {
		return r.abort(ctx, err)
	}
	r.result.Total = len(entries)
	s.logger().Info("catalog sync started",
		zap.String("scope", string(r.scope)),
		zap.Int("entries", len(entries)),
		zap.Int("checkpoint_every", r.checkpointEvery),
	)

	for i := range entries {
		if ctx.Err() != nil {
			return r.stop(ctx)
		}
		if limit > 0 && r.result.Processed >= limit {
			break
		}
		entry := entries[i]
		schemaChanged := reconcile.NormalizeSchema(&entry)
		if !s.Engine.NeedsEnrichment(entry, r.scope) {
			if schemaChanged {
				r.markDirty(entry)
				r.count("updated")
			} else {
				r.result.Skipped++
				metrics.SyncItemsTotal.WithLabelValues("skipped").Inc()
			}
			if err := r.maybeCheckpoint(ctx); err != nil {
				return r.abort(ctx, err)
			}
			continue
		}

		r.result.Processed++
		changed, failed := r.enrich(ctx, &entry)
		switch {
		case failed:
			r.count("failed")
		case changed || schemaChanged:
			r.count("updated")
		default:
			r.result.Skipped++
			metrics.SyncItemsTotal.WithLabelValues("skipped").Inc()
		}
		if changed || schemaChanged {
			r.markDirty(entry)
		}
		if err := r.maybeCheckpoint(ctx); err != nil {
			return r.abort(ctx, err)
		}
	}

	if err := r.flush(ctx); err != nil {
		return r.abort(ctx, err)
	}
	r.result.Status = models.SyncCompleted
	r.result.FinishedAt = time.Now().UTC()
	if err := r.saveState(ctx, models.SyncCompleted, nil); err != nil {
		return r.abort(ctx, err)
	}
	s.logger().Info("catalog sync completed",
		zap.String("scope", string(r.scope)),
		zap.Int("processed", r.result.Processed),
		zap.Int("updated", r.result.Updated),
		zap.Int("skipped", r.result.Skipped),
		zap.Int("failed", r.result.Failed),
		zap.Duration("elapsed", r.result.FinishedAt.Sub(r.result.StartedAt)),
	)
	return r.result, nil
}

func (r *syncRun) count(outcome string) {
	switch outcome {
	case "updated":
		r.result.Updated++
	case "failed":
		r.result.Failed++
	}
	metrics.SyncItemsTotal.WithLabelValues(outcome).Inc()
}

// enrich fetches what the scope needs and reconciles it into entry. failed
// is true when any provider call for the entry failed; whatever did arrive is
// still merged.
func (r *syncRun) enrich(ctx context.Context, entry *models.CatalogEntry) (changed bool, failed bool) {
	s := r.svc
	var (
		meta    *provider.ExternalRecord
		pricing *provider.PricingRecord
	)
	// stop requests are honoured between items only
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), itemTimeout)
	defer cancel()

	if r.scope.Metadata() && s.Provider != nil {
		record, err := r.fetchMetadata(callCtx, entry)
		if err != nil {
			failed = true
			s.itemFailed(entry, "metadata", err)
		} else {
			meta = record
		}
	}

	if r.scope.Pricing() && s.Provider != nil {
		pricingID := entry.PricingProviderID
		if pricingID.IsZero() && meta != nil && meta.PricingProviderID != "" {
			pricingID = models.ProviderID(meta.PricingProviderID)
		}
		withPricingID := *entry
		withPricingID.PricingProviderID = pricingID
		if s.Engine.NeedsPricingLookup(withPricingID) {
			record, err := s.Provider.FetchPricing(callCtx, pricingID.String())
			if err != nil {
				failed = true
				s.itemFailed(entry, "pricing", err)
			} else {
				pricing = record
			}
		}
	}

	if failed && meta == nil && pricing == nil && !s.Engine.IsCurated(entry.Title) {
		// nothing new arrived; leave the entry as it was
		return false, true
	}
	out := s.Engine.Reconcile(entry, meta, pricing, r.scope, failed)
	return out.Changed, failed
}

// fetchMetadata loads the provider record, resolving a missing external id
// through a title search matched on the normalized key.
func (r *syncRun) fetchMetadata(ctx context.Context, entry *models.CatalogEntry) (*provider.ExternalRecord, error) {
	s := r.svc
	if !entry.ExternalID.IsZero() {
		return s.Provider.FetchMetadata(ctx, entry.ExternalID.String())
	}
	candidates, err := s.Provider.SearchByQuery(ctx, entry.Title, provider.SearchFilter{Limit: resolveSearchLimit})
	if err != nil {
		return nil, err
	}
	for _, candidate := range candidates {
		if models.NormalizedKey(candidate.Name) != entry.NormalizedKey || candidate.ExternalID == "" {
			continue
		}
		// search results carry no description; fetch the full record
		full, err := s.Provider.FetchMetadata(ctx, candidate.ExternalID)
		if err != nil {
			if errors.Is(err, provider.ErrNotFound) {
				return &candidate, nil
			}
			return nil, err
		}
		return full, nil
	}
	return nil, fmt.Errorf("resolve %q: %w", entry.Title, provider.ErrNotFound)
}

func (s *CatalogSyncService) itemFailed(entry *models.CatalogEntry, stage string, err error) {
	s.logger().Warn("catalog sync item failed",
		zap.String("title", entry.Title),
		zap.String("key", entry.NormalizedKey),
		zap.String("stage", stage),
		zap.String("kind", provider.Classify(err)),
		zap.Error(err),
	)
}

func (r *syncRun) markDirty(entry models.CatalogEntry) {
	entry.UpdatedAt = time.Now().UTC()
	if _, ok := r.dirty[entry.NormalizedKey]; !ok {
		r.order = append(r.order, entry.NormalizedKey)
	}
	r.dirty[entry.NormalizedKey] = entry
	r.sinceCheckpoint++
}

func (r *syncRun) maybeCheckpoint(ctx context.Context) error {
	if r.sinceCheckpoint < r.checkpointEvery {
		return nil
	}
	return r.flush(ctx)
}

// flush writes pending entries and progress. It runs on a context detached
// from cancellation so a stop request cannot tear a checkpoint in half.
func (r *syncRun) flush(ctx context.Context) error {
	if len(r.dirty) == 0 {
		return nil
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()

	batch := make([]models.CatalogEntry, 0, len(r.order))
	for _, key := range r.order {
		batch = append(batch, r.dirty[key])
	}
	if err := r.svc.Store.SaveSnapshot(writeCtx, batch); err != nil {
		return err
	}
	r.dirty = map[string]models.CatalogEntry{}
	r.order = r.order[:0]
	r.sinceCheckpoint = 0
	r.result.Checkpoints++
	if err := r.saveState(writeCtx, models.SyncRunning, nil); err != nil {
		return err
	}
	r.svc.logger().Debug("catalog sync checkpoint",
		zap.Int("checkpoint", r.result.Checkpoints),
		zap.Int("processed", r.result.Processed),
	)
	return nil
}

func (r *syncRun) stop(ctx context.Context) (SyncResult, error) {
	if err := r.flush(ctx); err != nil {
		return r.abort(ctx, err)
	}
	r.result.Canceled = true
	r.result.Status = models.SyncAborted
	r.result.FinishedAt = time.Now().UTC()
	cause := context.Cause(ctx)
	_ = r.saveState(context.WithoutCancel(ctx), models.SyncAborted, fmt.Errorf("stopped: %w", cause))
	r.svc.logger().Warn("catalog sync stopped",
		zap.Int("processed", r.result.Processed),
		zap.Int("updated", r.result.Updated),
		zap.Error(cause),
	)
	return r.result, cause
}

func (r *syncRun) abort(ctx context.Context, err error) (SyncResult, error) {
	r.result.Status = models.SyncAborted
	r.result.FinishedAt = time.Now().UTC()
	r.svc.writeSyncError(context.WithoutCancel(ctx), r.result, err)
	return r.result, fmt.Errorf("%w: %w", ErrSyncAborted, err)
}

func (r *syncRun) saveState(ctx context.Context, status models.SyncRunStatus, runErr error) error {
	now := time.Now().UTC()
	state := &models.SyncState{
		Scope:         r.result.Scope,
		Status:        status,
		LastAttemptAt: &r.result.StartedAt,
		StatsJSON:     statsJSON(r.result),
	}
	state.Apply(r.result.checkpoint())
	if r.result.Checkpoints > 0 {
		state.LastCheckpoint = &now
	}
	if status == models.SyncCompleted {
		state.LastSuccessAt = &now
	} else if prev, err := r.svc.Store.GetSyncState(ctx, r.result.Scope); err == nil && prev != nil {
		state.LastSuccessAt = prev.LastSuccessAt
		if state.LastCheckpoint == nil {
			state.LastCheckpoint = prev.LastCheckpoint
		}
	}
	if runErr != nil {
		state.LastError = strPtr(runErr.Error())
	}
	return r.svc.Store.SaveSyncState(ctx, state)
}

func (s *CatalogSyncService) writeSyncError(ctx context.Context, result SyncResult, err error) {
	s.logger().Error("catalog sync aborted",
		zap.String("scope", result.Scope),
		zap.Int("processed", result.Processed),
		zap.Error(err),
	)
	now := time.Now().UTC()
	state := &models.SyncState{
		Scope:         result.Scope,
		Status:        models.SyncAborted,
		LastAttemptAt: &now,
		LastError:     strPtr(err.Error()),
		StatsJSON:     statsJSON(result),
	}
	state.Apply(result.checkpoint())
	_ = s.Store.SaveSyncState(ctx, state)
}

func (s *CatalogSyncService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func statsJSON(v any) datatypes.JSON {
	payload, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON([]byte("null"))
	}
	return datatypes.JSON(payload)
}

func strPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
