package domain

import "time"

// SyncStatus is the terminal state of a space sync.
type SyncStatus string

// Available sync statuses.
const (
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncMode distinguishes full and incremental runs.
type SyncMode string

// Available sync modes.
const (
	SyncModeFull        SyncMode = "full"
	SyncModeIncremental SyncMode = "incremental"
)

// SyncStats aggregates the outcome of one sync invocation for a space.
type SyncStats struct {
	SpaceKey       string
	Mode           SyncMode
	PagesProcessed int
	PagesSkipped   int
	PagesFailed    int
	ChunksCreated  int
	StartTime      time.Time
	EndTime        time.Time

	// Err is set when the space failed at engine level.
	Err error
}

// Duration returns the wall time of the run.
func (s SyncStats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// SpaceSyncState is the persisted bookkeeping for a space.
// LastSyncAt drives incremental sync and only moves forward.
type SpaceSyncState struct {
	SpaceKey       string
	LastSyncAt     *time.Time
	LastPageCount  int
	LastChunkCount int
	Status         SyncStatus
	ErrorMessage   string
}

// SyncProgress describes a run that is still in flight.
type SyncProgress struct {
	SpaceKey       string
	Mode           SyncMode
	StartedAt      time.Time
	PagesProcessed int
	PagesSkipped   int
	PagesFailed    int
}

// SpaceStats holds per-space index counts.
type SpaceStats struct {
	SpaceKey   string
	PageCount  int
	ChunkCount int
}

// IndexStats summarises the whole index.
type IndexStats struct {
	TotalPages      int
	TotalChunks     int
	TotalEmbeddings int
	Spaces          []SpaceStats
}
