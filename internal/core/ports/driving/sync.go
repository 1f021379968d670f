package driving

import (
	"context"
	"time"

	"github.com/DanielTromp/atlas/internal/core/domain"
)

// SyncEngine keeps the index consistent with the corpus.
type SyncEngine interface {
	// FullSync reprocesses every page of the given spaces.
	// Empty spaces means the configured default spaces.
	FullSync(ctx context.Context, spaces []string) ([]domain.SyncStats, error)

	// IncrementalSync processes pages updated after since.
	// A nil since is resolved per space from the last indexed time.
	IncrementalSync(ctx context.Context, spaces []string, since *time.Time) ([]domain.SyncStats, error)

	// Start launches a sync in the background and returns immediately.
	// Returns domain.ErrSyncInProgress if every requested space is busy.
	Start(spaces []string, full bool) error

	// Status returns progress for runs in flight.
	Status() []domain.SyncProgress
}
