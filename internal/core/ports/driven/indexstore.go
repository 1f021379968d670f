package driven

import (
	"context"
	"time"

	"github.com/DanielTromp/atlas/internal/core/domain"
)

// IndexStore persists pages, chunks and embeddings and answers
// dense and sparse queries over them.
//
// Every backend must guarantee that a page's chunk set changes in a
// single visible transition: concurrent readers see the old set or the
// new set, never a mix. Query methods return empty results, not errors,
// when the index is empty or has not been created yet.
type IndexStore interface {
	// UpsertChunks inserts or overwrites chunks and the page row.
	// Returns the number of chunks written.
	UpsertChunks(ctx context.Context, page domain.Page, chunks []domain.IndexedChunk) (int, error)

	// ReplacePage atomically swaps the page's chunk set for chunks.
	ReplacePage(ctx context.Context, page domain.Page, chunks []domain.IndexedChunk) error

	// DeletePage removes a page with its chunks and embeddings.
	DeletePage(ctx context.Context, pageID string) error

	// GetPageVersion returns the stored version.
	// Returns domain.ErrNotFound if the page is not indexed.
	GetPageVersion(ctx context.Context, pageID string) (int, error)

	// GetLastIndexedTime returns when the space was last synced successfully.
	// Returns nil if the space has never been indexed.
	GetLastIndexedTime(ctx context.Context, spaceKey string) (*time.Time, error)

	// QueryDense ranks chunks by cosine similarity to vector, descending.
	// spaces filters by space key when non-empty.
	QueryDense(ctx context.Context, vector []float32, limit int, spaces []string) ([]domain.ScoredChunk, error)

	// QuerySparse ranks chunks by keyword relevance to text, descending.
	QuerySparse(ctx context.Context, text string, limit int, spaces []string) ([]domain.ScoredChunk, error)

	// GetPage returns a stored page.
	// Returns domain.ErrNotFound if absent.
	GetPage(ctx context.Context, pageID string) (*domain.Page, error)

	// GetChunks returns the chunks with the given ids. Unknown ids are skipped.
	GetChunks(ctx context.Context, ids []string) ([]domain.Chunk, error)

	// GetPageChunks returns a page's chunks ordered by position.
	GetPageChunks(ctx context.Context, pageID string) ([]domain.Chunk, error)

	// ListSpaces returns page and chunk counts per space.
	ListSpaces(ctx context.Context) ([]domain.SpaceStats, error)

	// SaveSyncState records a space's sync bookkeeping.
	SaveSyncState(ctx context.Context, state domain.SpaceSyncState) error

	// GetSyncState returns a space's sync bookkeeping.
	// Returns domain.ErrNotFound if the space has never been synced.
	GetSyncState(ctx context.Context, spaceKey string) (*domain.SpaceSyncState, error)

	// ListSyncStates returns bookkeeping for every synced space.
	ListSyncStates(ctx context.Context) ([]domain.SpaceSyncState, error)

	// Stats summarises the index.
	Stats(ctx context.Context) (*domain.IndexStats, error)

	// Close releases resources.
	Close() error
}
