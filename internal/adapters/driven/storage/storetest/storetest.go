// Package storetest is a behavioural test suite that every
// driven.IndexStore backend runs against itself.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driven"
)

// Dimensions is the vector size the suite writes. Factories must configure
// their store for it.
const Dimensions = 3

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) driven.IndexStore

// Run executes the whole suite.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(*testing.T, driven.IndexStore)
	}{
		{"EmptyIndex", testEmptyIndex},
		{"UpsertAndVersion", testUpsertAndVersion},
		{"ReplacePageGrows", testReplacePageGrows},
		{"ReplacePageShrinks", testReplacePageShrinks},
		{"DimensionMismatch", testDimensionMismatch},
		{"QueryDense", testQueryDense},
		{"QuerySparse", testQuerySparse},
		{"GetChunks", testGetChunks},
		{"DeletePage", testDeletePage},
		{"SyncState", testSyncState},
		{"ListSpacesAndStats", testListSpacesAndStats},
		{"AtomicVisibility", testAtomicVisibility},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// ==================== Fixtures ====================

// Page returns a test page.
func Page(id, space string, version int) domain.Page {
	return domain.Page{
		ID:        id,
		SpaceKey:  space,
		Title:     "Page " + id,
		URL:       "https://wiki.example.com/pages/" + id,
		Labels:    []string{"runbook"},
		Version:   version,
		UpdatedAt: time.Date(2024, 1, version, 0, 0, 0, 0, time.UTC),
		UpdatedBy: "tester",
		Ancestors: []string{"Root"},
	}
}

// Chunks returns n chunks for page with vectors pointing along vec.
func Chunks(pageID, tag string, n int, vec []float32) []domain.IndexedChunk {
	out := make([]domain.IndexedChunk, n)
	for i := range out {
		id := fmt.Sprintf("%s-%s-%d", pageID, tag, i)
		out[i] = domain.IndexedChunk{
			Chunk: domain.Chunk{
				ID:              id,
				PageID:          pageID,
				Content:         fmt.Sprintf("%s content %s %d", tag, pageID, i),
				OriginalContent: fmt.Sprintf("<p>%s content %s %d</p>", tag, pageID, i),
				ContextPath:     []string{"OPS", "Root", "Page " + pageID},
				Type:            domain.ChunkTypeProse,
				TokenCount:      4,
				Position:        i,
				Spans:           []domain.TextSpan{{Start: i * 10, End: i*10 + 9, OriginalText: "x"}},
				HeadingContext:  "Intro",
			},
			Embedding: &domain.ChunkEmbedding{ChunkID: id, Vector: vec, ModelVersion: "test-model"},
		}
	}
	return out
}

func chunkIDs(chunks []domain.Chunk) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return ids
}

func scoredIDs(hits []domain.ScoredChunk) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	return ids
}

// ==================== Cases ====================

func testEmptyIndex(t *testing.T, s driven.IndexStore) {
	ctx := context.Background()

	dense, err := s.QueryDense(ctx, []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, dense)

	sparse, err := s.QuerySparse(ctx, "vpn password", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, sparse)

	_, err = s.GetPageVersion(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = s.GetPage(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	last, err := s.GetLastIndexedTime(ctx, "OPS")
	require.NoError(t, err)
	assert.Nil(t, last)

	spaces, err := s.ListSpaces(ctx)
	require.NoError(t, err)
	assert.Empty(t, spaces)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalChunks)
}

func testUpsertAndVersion(t *testing.T, s driven.IndexStore) {
	ctx := context.Background()
	page := Page("p1", "OPS", 3)
	chunks := Chunks("p1", "v3", 2, []float32{1, 0, 0})

	n, err := s.UpsertChunks(ctx, page, chunks)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// upserting again must not duplicate
	_, err = s.UpsertChunks(ctx, page, chunks)
	require.NoError(t, err)

	version, err := s.GetPageVersion(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, version)

	stored, err := s.GetPageChunks(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1-v3-0", "p1-v3-1"}, chunkIDs(stored))
	assert.Equal(t, chunks[1].Chunk, stored[1])

	got, err := s.GetPage(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, page.Title, got.Title)
	assert.Equal(t, page.Labels, got.Labels)
	assert.Equal(t, page.Ancestors, got.Ancestors)
	assert.True(t, page.UpdatedAt.Equal(got.UpdatedAt))
}

func testReplacePageGrows(t *testing.T, s driven.IndexStore) {
	ctx := context.Background()

	require.NoError(t, s.ReplacePage(ctx, Page("p1", "OPS", 1), Chunks("p1", "old", 4, []float32{1, 0, 0})))
	require.NoError(t, s.ReplacePage(ctx, Page("p1", "OPS", 2), Chunks("p1", "new", 6, []float32{0, 1, 0})))

	stored, err := s.GetPageChunks(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, stored, 6)
	for _, c := range stored {
		assert.Contains(t, c.ID, "-new-")
	}

	old, err := s.GetChunks(ctx, []string{"p1-old-0", "p1-old-3"})
	require.NoError(t, err)
	assert.Empty(t, old)

	version, err := s.GetPageVersion(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func testReplacePageShrinks(t *testing.T, s driven.IndexStore) {
	ctx := context.Background()

	require.NoError(t, s.ReplacePage(ctx, Page("p1", "OPS", 1), Chunks("p1", "same", 5, []float32{1, 0, 0})))
	require.NoError(t, s.ReplacePage(ctx, Page("p1", "OPS", 2), Chunks("p1", "same", 2, []float32{1, 0, 0})))

	stored, err := s.GetPageChunks(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1-same-0", "p1-same-1"}, chunkIDs(stored))

	hits, err := s.QueryDense(ctx, []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func testDimensionMismatch(t *testing.T, s driven.IndexStore) {
	ctx := context.Background()
	bad := Chunks("p1", "bad", 1, []float32{1, 0})

	err := s.ReplacePage(ctx, Page("p1", "OPS", 1), bad)
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))

	_, err = s.GetPageVersion(ctx, "p1")
	assert.True(t, errors.Is(err, domain.ErrNotFound), "nothing may be written")
}

func testQueryDense(t *testing.T, s driven.IndexStore) {
	ctx := context.Background()
	require.NoError(t, s.ReplacePage(ctx, Page("a", "OPS", 1), Chunks("a", "x", 1, []float32{1, 0, 0})))
	require.NoError(t, s.ReplacePage(ctx, Page("b", "OPS", 1), Chunks("b", "x", 1, []float32{0.8, 0.6, 0})))
	require.NoError(t, s.ReplacePage(ctx, Page("c", "DEV", 1), Chunks("c", "x", 1, []float32{0, 0, 1})))

	hits, err := s.QueryDense(ctx, []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, []string{"a-x-0", "b-x-0", "c-x-0"}, scoredIDs(hits))
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.InDelta(t, 0.8, hits[1].Score, 1e-6)

	limited, err := s.QueryDense(ctx, []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-x-0"}, scoredIDs(limited))

	filtered, err := s.QueryDense(ctx, []float32{1, 0, 0}, 10, []string{"DEV"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c-x-0"}, scoredIDs(filtered))
}

func testQuerySparse(t *testing.T, s driven.IndexStore) {
	ctx := context.Background()
	texts := map[string]string{
		"a": "Reset your VPN password in the self-service portal",
		"b": "Install the VPN client on a laptop",
		"c": "Printer setup for the third floor",
	}
	for _, id := range []string{"a", "b", "c"} {
		space := "OPS"
		if id == "b" {
			space = "DEV"
		}
		chunks := Chunks(id, "x", 1, []float32{1, 0, 0})
		chunks[0].Chunk.Content = texts[id]
		require.NoError(t, s.ReplacePage(ctx, Page(id, space, 1), chunks))
	}

	hits, err := s.QuerySparse(ctx, "how do I reset my VPN password", 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a-x-0", hits[0].ChunkID)
	assert.Equal(t, "b-x-0", hits[1].ChunkID)
	assert.Greater(t, hits[0].Score, hits[1].Score)

	filtered, err := s.QuerySparse(ctx, "vpn", 10, []string{"DEV"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b-x-0"}, scoredIDs(filtered))

	none, err := s.QuerySparse(ctx, "the and of", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testGetChunks(t *testing.T, s driven.IndexStore) {
	ctx := context.Background()
	require.NoError(t, s.ReplacePage(ctx, Page("p1", "OPS", 1), Chunks("p1", "x", 3, []float32{1, 0, 0})))

	got, err := s.GetChunks(ctx, []string{"p1-x-2", "unknown", "p1-x-0"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1-x-0", "p1-x-2"}, chunkIDs(got))
}

func testDeletePage(t *testing.T, s driven.IndexStore) {
	ctx := context.Background()
	require.NoError(t, s.ReplacePage(ctx, Page("p1", "OPS", 1), Chunks("p1", "x", 2, []float32{1, 0, 0})))

	require.NoError(t, s.DeletePage(ctx, "p1"))

	_, err := s.GetPage(ctx, "p1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	hits, err := s.QueryDense(ctx, []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func testSyncState(t *testing.T, s driven.IndexStore) {
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.GetSyncState(ctx, "OPS")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	state := domain.SpaceSyncState{
		SpaceKey:       "OPS",
		LastSyncAt:     &at,
		LastPageCount:  3,
		LastChunkCount: 9,
		Status:         domain.SyncStatusCompleted,
	}
	require.NoError(t, s.SaveSyncState(ctx, state))

	got, err := s.GetSyncState(ctx, "OPS")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusCompleted, got.Status)
	assert.Equal(t, 9, got.LastChunkCount)
	require.NotNil(t, got.LastSyncAt)
	assert.True(t, at.Equal(*got.LastSyncAt))

	last, err := s.GetLastIndexedTime(ctx, "OPS")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, at.Equal(*last))

	state.Status = domain.SyncStatusFailed
	state.ErrorMessage = "unreachable"
	require.NoError(t, s.SaveSyncState(ctx, state))

	all, err := s.ListSyncStates(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "unreachable", all[0].ErrorMessage)
}

func testListSpacesAndStats(t *testing.T, s driven.IndexStore) {
	ctx := context.Background()
	require.NoError(t, s.ReplacePage(ctx, Page("a", "OPS", 1), Chunks("a", "x", 2, []float32{1, 0, 0})))
	require.NoError(t, s.ReplacePage(ctx, Page("b", "OPS", 1), Chunks("b", "x", 1, []float32{1, 0, 0})))
	require.NoError(t, s.ReplacePage(ctx, Page("c", "DEV", 1), Chunks("c", "x", 3, []float32{1, 0, 0})))

	spaces, err := s.ListSpaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.SpaceStats{
		{SpaceKey: "DEV", PageCount: 1, ChunkCount: 3},
		{SpaceKey: "OPS", PageCount: 2, ChunkCount: 3},
	}, spaces)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalPages)
	assert.Equal(t, 6, stats.TotalChunks)
	assert.Equal(t, 6, stats.TotalEmbeddings)
	assert.Len(t, stats.Spaces, 2)
}

// testAtomicVisibility interleaves replaces with readers; every read must
// see one complete generation of the page.
func testAtomicVisibility(t *testing.T, s driven.IndexStore) {
	ctx := context.Background()
	gens := [][]domain.IndexedChunk{
		Chunks("p1", "g0", 4, []float32{1, 0, 0}),
		Chunks("p1", "g1", 6, []float32{1, 0, 0}),
	}
	require.NoError(t, s.ReplacePage(ctx, Page("p1", "OPS", 1), gens[0]))

	var stop atomic.Bool
	var wg sync.WaitGroup
	errs := make(chan string, 8)

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				chunks, err := s.GetPageChunks(ctx, "p1")
				if err != nil {
					errs <- err.Error()
					return
				}
				if !oneGeneration(chunks) {
					errs <- fmt.Sprintf("mixed generations: %v", chunkIDs(chunks))
					return
				}
			}
		}()
	}

	for i := 0; i < 30; i++ {
		if err := s.ReplacePage(ctx, Page("p1", "OPS", i+2), gens[i%2]); err != nil {
			stop.Store(true)
			wg.Wait()
			require.NoError(t, err)
		}
	}
	stop.Store(true)
	wg.Wait()
	close(errs)

	for msg := range errs {
		t.Error(msg)
	}
}

func oneGeneration(chunks []domain.Chunk) bool {
	if len(chunks) != 4 && len(chunks) != 6 {
		return false
	}
	tag := chunks[0].ID[:len("p1-g0")]
	for _, c := range chunks {
		if c.ID[:len(tag)] != tag {
			return false
		}
	}
	return true
}
