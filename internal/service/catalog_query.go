package service

import (
	"context"

	"gamecatalog/internal/models"
	"gamecatalog/internal/repository"
)

// CatalogQueryService is the read-only browsing path. It never reconciles.
type CatalogQueryService struct {
	Repo repository.CatalogRepository
}

type CatalogEntriesResult struct {
	Items []models.CatalogEntry
	Total int64
}

func (s *CatalogQueryService) ListEntries(ctx context.Context, params repository.ListEntriesParams) (CatalogEntriesResult, error) {
	total, err := s.Repo.CountEntries(ctx, params)
	if err != nil {
		return CatalogEntriesResult{}, err
	}
	items, err := s.Repo.ListEntries(ctx, params)
	if err != nil {
		return CatalogEntriesResult{}, err
	}
	return CatalogEntriesResult{Items: items, Total: total}, nil
}

func (s *CatalogQueryService) GetEntry(ctx context.Context, id string) (*models.CatalogEntry, error) {
	return s.Repo.GetEntryByID(ctx, id)
}

func (s *CatalogQueryService) ListSyncStates(ctx context.Context) ([]models.SyncState, error) {
	return s.Repo.ListSyncStates(ctx)
}
