package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driving"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	response *domain.SearchResponse
	err      error
	opts     domain.SearchOptions
}

func (m *mockSearchService) Search(
	_ context.Context,
	query string,
	opts domain.SearchOptions,
) (*domain.SearchResponse, error) {
	m.opts = opts
	if m.err != nil {
		return nil, m.err
	}
	if m.response == nil {
		return &domain.SearchResponse{Query: query}, nil
	}
	return m.response, nil
}

// mockIndexService is a mock implementation of driving.IndexService.
type mockIndexService struct {
	spaces []domain.SpaceStats
	page   *domain.Page
	chunks []domain.Chunk
	err    error
}

func (m *mockIndexService) Stats(_ context.Context) (*driving.IndexReport, error) {
	return &driving.IndexReport{}, m.err
}

func (m *mockIndexService) ListSpaces(_ context.Context) ([]domain.SpaceStats, error) {
	return m.spaces, m.err
}

func (m *mockIndexService) GetPage(_ context.Context, id string) (*domain.Page, []domain.Chunk, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	if m.page == nil || m.page.ID != id {
		return nil, nil, fmt.Errorf("%w: page %s", domain.ErrNotFound, id)
	}
	return m.page, m.chunks, nil
}

// mockSyncEngine is a mock implementation of driving.SyncEngine.
type mockSyncEngine struct {
	spaces []string
	full   bool
	err    error
}

func (m *mockSyncEngine) FullSync(_ context.Context, _ []string) ([]domain.SyncStats, error) {
	return nil, nil
}

func (m *mockSyncEngine) IncrementalSync(_ context.Context, _ []string, _ *time.Time) ([]domain.SyncStats, error) {
	return nil, nil
}

func (m *mockSyncEngine) Start(spaces []string, full bool) error {
	m.spaces, m.full = spaces, full
	return m.err
}

func (m *mockSyncEngine) Status() []domain.SyncProgress {
	return nil
}
