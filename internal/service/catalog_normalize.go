package service

import (
	"context"

	"go.uber.org/zap"

	"gamecatalog/internal/models"
	"gamecatalog/internal/reconcile"
)

type NormalizeResult struct {
	Total   int `json:"total"`
	Changed int `json:"changed"`
}

// Normalize migrates legacy singular platform/genre fields across the whole
// catalog without calling any provider. It shares the sync run guard so it
// never interleaves with an enrichment pass.
func (s *CatalogSyncService) Normalize(ctx context.Context) (NormalizeResult, error) {
	if s.Store == nil {
		return NormalizeResult{}, ErrNotConfigured
	}
	if !s.running.CompareAndSwap(false, true) {
		return NormalizeResult{}, ErrSyncInProgress
	}
	defer s.running.Store(false)

	entries, err := s.Store.ListAllEntries(ctx)
	if err != nil {
		return NormalizeResult{}, err
	}
	result := NormalizeResult{Total: len(entries)}
	changed := make([]models.CatalogEntry, 0)
	for i := range entries {
		if reconcile.NormalizeSchema(&entries[i]) {
			changed = append(changed, entries[i])
		}
	}
	result.Changed = len(changed)
	if len(changed) == 0 {
		return result, nil
	}
	if err := s.Store.SaveSnapshot(ctx, changed); err != nil {
		return result, err
	}
	s.logger().Info("catalog schema normalized",
		zap.Int("total", result.Total),
		zap.Int("changed", result.Changed),
	)
	return result, nil
}
