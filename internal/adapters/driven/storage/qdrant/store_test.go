package qdrant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanielTromp/atlas/internal/adapters/driven/storage/storetest"
	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driven"
)

func setupTestStore(t *testing.T) (*Store, *fakeQdrant) {
	t.Helper()
	fake, srv := newFakeQdrant(t)

	store, err := NewStore(context.Background(), Config{
		URL:        srv.URL + "/",
		Collection: "test_chunks",
		Dimensions: storetest.Dimensions,
	})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store, fake
}

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) driven.IndexStore {
		store, _ := setupTestStore(t)
		return store
	})
}

func TestNewStore_CreatesCollections(t *testing.T) {
	_, fake := setupTestStore(t)

	assert.Contains(t, fake.collections, "test_chunks")
	assert.Contains(t, fake.collections, "test_chunks_state")
}

func TestNewStore_ExistingCollectionsKept(t *testing.T) {
	fake, srv := newFakeQdrant(t)
	fake.collections["test_chunks"] = map[string]fakePoint{"x": {ID: "x"}}
	fake.collections["test_chunks_state"] = map[string]fakePoint{}

	_, err := NewStore(context.Background(), Config{URL: srv.URL, Collection: "test_chunks", Dimensions: 3})
	require.NoError(t, err)
	assert.Len(t, fake.collections["test_chunks"], 1)
}

func TestNewStore_RequiresDimensions(t *testing.T) {
	_, err := NewStore(context.Background(), Config{URL: "http://localhost:1"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNewStore_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewStore(context.Background(), Config{URL: srv.URL, Dimensions: 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStore)
	assert.Contains(t, err.Error(), "status 500")
}

func TestStore_APIKeyHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("api-key")
		w.Write([]byte(`{"result":{},"status":"ok"}`))
	}))
	defer srv.Close()

	_, err := NewStore(context.Background(), Config{URL: srv.URL, APIKey: "secret", Dimensions: 3})
	require.NoError(t, err)
	assert.Equal(t, "secret", got)
}

func TestStore_ChunksWithoutEmbeddingsSkipDense(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	chunks := storetest.Chunks("p1", "x", 2, nil)
	for i := range chunks {
		chunks[i].Embedding = nil
	}
	require.NoError(t, store.ReplacePage(ctx, storetest.Page("p1", "OPS", 1), chunks))

	dense, err := store.QueryDense(ctx, []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, dense)

	sparse, err := store.QuerySparse(ctx, "content", 10, nil)
	require.NoError(t, err)
	assert.Len(t, sparse, 2)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalChunks)
	assert.Zero(t, stats.TotalEmbeddings)
}

func TestStore_ScrollPaginates(t *testing.T) {
	store, fake := setupTestStore(t)
	ctx := context.Background()

	n := scrollPage + 10
	require.NoError(t, store.ReplacePage(ctx, storetest.Page("p1", "OPS", 1), storetest.Chunks("p1", "x", n, []float32{1, 0, 0})))

	chunks, err := store.GetPageChunks(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, chunks, n)
	assert.Equal(t, 0, chunks[0].Position)
	assert.Equal(t, n-1, chunks[n-1].Position)
	assert.Equal(t, 2, fake.requests["POST /collections/test_chunks/points/scroll"])
}

func TestPointIDsAreStableUUIDs(t *testing.T) {
	a := chunkPointID("page-1-x-0", "g1")
	assert.Equal(t, a, chunkPointID("page-1-x-0", "g1"))
	assert.NotEqual(t, a, chunkPointID("page-1-x-0", "g2"))
	assert.NotEqual(t, a, pagePointID("page-1-x-0"))
	assert.Len(t, a, 36)
}

func countByTag(chunks []domain.Chunk) map[string]int {
	out := make(map[string]int)
	for _, c := range chunks {
		out[strings.Split(c.ID, "-")[1]]++
	}
	return out
}

func TestReplacePage_FailedCleanupKeepsNewSetVisible(t *testing.T) {
	store, fake := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ReplacePage(ctx, storetest.Page("p1", "OPS", 1), storetest.Chunks("p1", "old", 4, []float32{1, 0, 0})))

	fake.failFromNow(http.MethodPost, "/collections/test_chunks/points/delete")
	require.NoError(t, store.ReplacePage(ctx, storetest.Page("p1", "OPS", 2), storetest.Chunks("p1", "new", 2, []float32{1, 0, 0})))
	assert.Equal(t, 6, fake.size("test_chunks"), "superseded points are still stored")

	chunks, err := store.GetPageChunks(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"new": 2}, countByTag(chunks))

	dense, err := store.QueryDense(ctx, []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	assert.Len(t, dense, 2)

	sparse, err := store.QuerySparse(ctx, "content", 10, nil)
	require.NoError(t, err)
	assert.Len(t, sparse, 2)

	old, err := store.GetChunks(ctx, []string{"p1-old-0", "p1-old-3", "p1-new-1"})
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, "p1-new-1", old[0].ID)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalChunks)
	assert.Equal(t, 2, stats.TotalEmbeddings)

	fake.heal()
	require.NoError(t, store.ReplacePage(ctx, storetest.Page("p1", "OPS", 3), storetest.Chunks("p1", "new", 2, []float32{1, 0, 0})))
	assert.Equal(t, 2, fake.size("test_chunks"), "next replace collects the garbage")
}

func TestReplacePage_FailedWriteKeepsPreviousSet(t *testing.T) {
	store, fake := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ReplacePage(ctx, storetest.Page("p1", "OPS", 1), storetest.Chunks("p1", "old", 4, []float32{1, 0, 0})))

	// The first batch lands, the second fails.
	fake.mu.Lock()
	key := "PUT /collections/test_chunks/points"
	fake.failAfter[key] = fake.requests[key] + 1
	fake.mu.Unlock()

	err := store.ReplacePage(ctx, storetest.Page("p1", "OPS", 2), storetest.Chunks("p1", "new", upsertBatch+5, []float32{0, 1, 0}))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStore)

	chunks, err := store.GetPageChunks(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"old": 4}, countByTag(chunks))
	assert.Equal(t, 4, fake.size("test_chunks"), "the partial batch is discarded")

	version, err := store.GetPageVersion(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	dense, err := store.QueryDense(ctx, []float32{0, 1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Len(t, dense, 4)
}

func TestReplacePage_FailedCommitKeepsPreviousSet(t *testing.T) {
	store, fake := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ReplacePage(ctx, storetest.Page("p1", "OPS", 1), storetest.Chunks("p1", "old", 3, []float32{1, 0, 0})))

	fake.failFromNow(http.MethodPut, "/collections/test_chunks_state/points")
	err := store.ReplacePage(ctx, storetest.Page("p1", "OPS", 2), storetest.Chunks("p1", "new", 1, []float32{1, 0, 0}))
	require.Error(t, err)

	chunks, err := store.GetPageChunks(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"old": 3}, countByTag(chunks))
}

func TestQueryDense_SkipsSupersededHitsAndPagesOn(t *testing.T) {
	store, fake := setupTestStore(t)
	ctx := context.Background()

	// Leave two superseded points that score higher than the live ones.
	require.NoError(t, store.ReplacePage(ctx, storetest.Page("p1", "OPS", 1), storetest.Chunks("p1", "old", 2, []float32{1, 0, 0})))
	fake.failFromNow(http.MethodPost, "/collections/test_chunks/points/delete")
	require.NoError(t, store.ReplacePage(ctx, storetest.Page("p1", "OPS", 2), storetest.Chunks("p1", "new", 2, []float32{0.6, 0.8, 0})))

	hits, err := store.QueryDense(ctx, []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1-new-0", "p1-new-1"}, []string{hits[0].ChunkID, hits[1].ChunkID})
}
