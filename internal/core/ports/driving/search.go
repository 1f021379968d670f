package driving

import (
	"context"

	"github.com/DanielTromp/atlas/internal/core/domain"
)

// SearchService provides hybrid search to external actors.
type SearchService interface {
	// Search runs a query against both index halves and fuses the rankings.
	// A query with no matches returns an empty response, not an error.
	Search(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SearchResponse, error)
}

// IndexService exposes read-only views of the index.
type IndexService interface {
	// Stats summarises the index together with per-space sync state.
	Stats(ctx context.Context) (*IndexReport, error)

	// ListSpaces returns per-space counts.
	ListSpaces(ctx context.Context) ([]domain.SpaceStats, error)

	// GetPage returns a page and its chunks.
	// Returns domain.ErrNotFound if the page is not indexed.
	GetPage(ctx context.Context, pageID string) (*domain.Page, []domain.Chunk, error)
}

// IndexReport is the payload behind the stats surfaces.
type IndexReport struct {
	Index       domain.IndexStats
	SyncStates  []domain.SpaceSyncState
	ActiveSyncs []domain.SyncProgress
}
