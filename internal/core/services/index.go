package services

import (
	"context"
	"fmt"

	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driven"
	"github.com/DanielTromp/atlas/internal/core/ports/driving"
)

// Ensure IndexService implements the interface.
var _ driving.IndexService = (*IndexService)(nil)

// syncStatus is the slice of the sync engine the index views need.
type syncStatus interface {
	Status() []domain.SyncProgress
}

// IndexService exposes read-only views of the index.
type IndexService struct {
	store driven.IndexStore
	sync  syncStatus
}

// NewIndexService creates an index service. sync may be nil.
func NewIndexService(store driven.IndexStore, sync syncStatus) *IndexService {
	return &IndexService{store: store, sync: sync}
}

// Stats summarises the index with sync bookkeeping and runs in flight.
func (s *IndexService) Stats(ctx context.Context) (*driving.IndexReport, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("index stats: %w", err)
	}
	states, err := s.store.ListSyncStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync states: %w", err)
	}

	report := &driving.IndexReport{
		Index:       *stats,
		SyncStates:  states,
		ActiveSyncs: []domain.SyncProgress{},
	}
	if s.sync != nil {
		report.ActiveSyncs = s.sync.Status()
	}
	return report, nil
}

// ListSpaces returns per-space counts.
func (s *IndexService) ListSpaces(ctx context.Context) ([]domain.SpaceStats, error) {
	return s.store.ListSpaces(ctx)
}

// GetPage returns a page and its chunks in position order.
func (s *IndexService) GetPage(ctx context.Context, pageID string) (*domain.Page, []domain.Chunk, error) {
	page, err := s.store.GetPage(ctx, pageID)
	if err != nil {
		return nil, nil, err
	}
	chunks, err := s.store.GetPageChunks(ctx, pageID)
	if err != nil {
		return nil, nil, fmt.Errorf("page chunks: %w", err)
	}
	return page, chunks, nil
}
