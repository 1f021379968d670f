package cli

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanielTromp/atlas/internal/core/domain"
)

func TestSyncCmd_Use(t *testing.T) {
	assert.Equal(t, "sync [space-key...]", syncCmd.Use)
	assert.NotNil(t, syncCmd.Flags().Lookup("full"))
	assert.NotNil(t, syncCmd.Flags().Lookup("since"))
}

func TestSyncCmd_IncrementalByDefault(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ts.sync.stats = []domain.SyncStats{{
		SpaceKey:       "OPS",
		Mode:           domain.SyncModeIncremental,
		PagesProcessed: 4,
		PagesSkipped:   10,
		ChunksCreated:  23,
		StartTime:      start,
		EndTime:        start.Add(1500 * time.Millisecond),
	}}

	out, err := runCommand("sync")

	require.NoError(t, err)
	assert.Equal(t, []string{"incremental"}, ts.sync.calls)
	assert.Empty(t, ts.sync.spaces)
	assert.Nil(t, ts.sync.since)
	assert.Contains(t, out, "Synchronising configured spaces (incremental)")
	assert.Contains(t, out, "4 processed, 10 skipped, 0 failed, 23 chunks in 1.5s (ok)")
}

func TestSyncCmd_FullWithSpaces(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	out, err := runCommand("sync", "--full", "OPS", "DEV")

	require.NoError(t, err)
	assert.Equal(t, []string{"full"}, ts.sync.calls)
	assert.Equal(t, []string{"OPS", "DEV"}, ts.sync.spaces)
	assert.Contains(t, out, "Synchronising [OPS DEV] (full)")
}

func TestSyncCmd_Since(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	_, err := runCommand("sync", "--since", "2026-01-02T03:04:05Z", "OPS")

	require.NoError(t, err)
	require.NotNil(t, ts.sync.since)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), ts.sync.since.UTC())
}

func TestSyncCmd_FullAndSinceConflict(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	_, err := runCommand("sync", "--full", "--since", "24h")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, ts.sync.calls)
}

func TestSyncCmd_ReportsFailures(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	spaceErr := errors.New("confluence unreachable")
	ts.sync.stats = []domain.SyncStats{{SpaceKey: "OPS", Err: spaceErr}}
	ts.sync.err = spaceErr

	out, err := runCommand("sync", "OPS")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync failed")
	assert.Contains(t, out, "failed: confluence unreachable")
}

func TestSyncCmd_ShowsProgress(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	prevInterval := progressInterval
	progressInterval = time.Millisecond
	defer func() { progressInterval = prevInterval }()

	ts.sync.delay = 50 * time.Millisecond
	ts.sync.progress = []domain.SyncProgress{{SpaceKey: "OPS", PagesProcessed: 2, PagesSkipped: 5}}

	out, err := runCommand("sync", "OPS")

	require.NoError(t, err)
	assert.Contains(t, out, "Processing... 7 pages")
}

func TestSyncCmd_NoEngine(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	syncEngine = nil

	_, err := runCommand("sync")

	assert.ErrorIs(t, err, errSyncUnavailable)
}

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	t.Run("empty is nil", func(t *testing.T) {
		since, err := parseSince("", now)
		require.NoError(t, err)
		assert.Nil(t, since)
	})

	t.Run("RFC 3339", func(t *testing.T) {
		since, err := parseSince("2026-05-01T00:00:00+02:00", now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 4, 30, 22, 0, 0, 0, time.UTC), since.UTC())
	})

	t.Run("duration counts back from now", func(t *testing.T) {
		since, err := parseSince("36h", now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 5, 9, 0, 0, 0, 0, time.UTC), *since)
	})

	t.Run("negative duration rejected", func(t *testing.T) {
		_, err := parseSince("-1h", now)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("garbage rejected", func(t *testing.T) {
		_, err := parseSince("yesterday", now)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}
