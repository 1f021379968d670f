// Package memory provides an in-process driven.IndexStore.
// It backs tests and ephemeral runs; nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driven"
	"github.com/DanielTromp/atlas/internal/textindex"
)

// Ensure IndexStore implements the interface.
var _ driven.IndexStore = (*IndexStore)(nil)

// IndexStore keeps pages, chunks and vectors in maps behind one RWMutex,
// so a page replace is a single critical section.
type IndexStore struct {
	mu         sync.RWMutex
	dimensions int

	pages      map[string]domain.Page
	indexedAt  map[string]time.Time
	pageChunks map[string][]string
	chunks     map[string]domain.Chunk
	embeddings map[string]domain.ChunkEmbedding
	states     map[string]domain.SpaceSyncState
}

// NewIndexStore creates an empty store. dimensions > 0 enforces vector length.
func NewIndexStore(dimensions int) *IndexStore {
	return &IndexStore{
		dimensions: dimensions,
		pages:      make(map[string]domain.Page),
		indexedAt:  make(map[string]time.Time),
		pageChunks: make(map[string][]string),
		chunks:     make(map[string]domain.Chunk),
		embeddings: make(map[string]domain.ChunkEmbedding),
		states:     make(map[string]domain.SpaceSyncState),
	}
}

func (s *IndexStore) validate(page domain.Page, chunks []domain.IndexedChunk) error {
	for _, ic := range chunks {
		if ic.Chunk.PageID != page.ID {
			return fmt.Errorf("%w: chunk %s belongs to page %s, not %s",
				domain.ErrInvalidInput, ic.Chunk.ID, ic.Chunk.PageID, page.ID)
		}
		if ic.Embedding != nil && s.dimensions > 0 && len(ic.Embedding.Vector) != s.dimensions {
			return fmt.Errorf("%w: chunk %s has %d dimensions, want %d",
				domain.ErrDimensionMismatch, ic.Chunk.ID, len(ic.Embedding.Vector), s.dimensions)
		}
	}
	return nil
}

// UpsertChunks inserts or overwrites chunks and the page row.
func (s *IndexStore) UpsertChunks(_ context.Context, page domain.Page, chunks []domain.IndexedChunk) (int, error) {
	if err := s.validate(page, chunks); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.putPage(page)
	for _, ic := range chunks {
		if _, exists := s.chunks[ic.Chunk.ID]; !exists {
			s.pageChunks[page.ID] = append(s.pageChunks[page.ID], ic.Chunk.ID)
		}
		s.putChunk(ic)
	}
	return len(chunks), nil
}

// ReplacePage swaps the page's chunk set under the write lock.
func (s *IndexStore) ReplacePage(_ context.Context, page domain.Page, chunks []domain.IndexedChunk) error {
	if err := s.validate(page, chunks); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropChunks(page.ID)
	s.putPage(page)
	ids := make([]string, 0, len(chunks))
	for _, ic := range chunks {
		s.putChunk(ic)
		ids = append(ids, ic.Chunk.ID)
	}
	s.pageChunks[page.ID] = ids
	return nil
}

func (s *IndexStore) putPage(page domain.Page) {
	s.pages[page.ID] = page
	s.indexedAt[page.ID] = time.Now().UTC()
}

func (s *IndexStore) putChunk(ic domain.IndexedChunk) {
	s.chunks[ic.Chunk.ID] = ic.Chunk
	if ic.Embedding != nil {
		s.embeddings[ic.Chunk.ID] = *ic.Embedding
	} else {
		delete(s.embeddings, ic.Chunk.ID)
	}
}

func (s *IndexStore) dropChunks(pageID string) {
	for _, id := range s.pageChunks[pageID] {
		delete(s.chunks, id)
		delete(s.embeddings, id)
	}
	delete(s.pageChunks, pageID)
}

// DeletePage removes a page with its chunks and embeddings.
func (s *IndexStore) DeletePage(_ context.Context, pageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropChunks(pageID)
	delete(s.pages, pageID)
	delete(s.indexedAt, pageID)
	return nil
}

// GetPageVersion returns the stored version of a page.
func (s *IndexStore) GetPageVersion(_ context.Context, pageID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page, ok := s.pages[pageID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return page.Version, nil
}

// GetLastIndexedTime prefers the recorded sync time and falls back to
// the newest page write in the space.
func (s *IndexStore) GetLastIndexedTime(_ context.Context, spaceKey string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if state, ok := s.states[spaceKey]; ok && state.LastSyncAt != nil {
		t := *state.LastSyncAt
		return &t, nil
	}

	var latest *time.Time
	for id, page := range s.pages {
		if page.SpaceKey != spaceKey {
			continue
		}
		if at := s.indexedAt[id]; latest == nil || at.After(*latest) {
			latest = &at
		}
	}
	return latest, nil
}

func (s *IndexStore) inSpaces(chunkID string, spaces map[string]bool) bool {
	if len(spaces) == 0 {
		return true
	}
	return spaces[s.pages[s.chunks[chunkID].PageID].SpaceKey]
}

func spaceSet(spaces []string) map[string]bool {
	set := make(map[string]bool, len(spaces))
	for _, sp := range spaces {
		set[sp] = true
	}
	return set
}

// QueryDense ranks chunks by cosine similarity.
func (s *IndexStore) QueryDense(_ context.Context, vector []float32, limit int, spaces []string) ([]domain.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter := spaceSet(spaces)
	var scored []textindex.Scored
	for id, emb := range s.embeddings {
		if !s.inSpaces(id, filter) {
			continue
		}
		scored = append(scored, textindex.Scored{ID: id, Score: textindex.CosineSimilarity(vector, emb.Vector)})
	}
	textindex.SortScored(scored)
	return toScoredChunks(scored, limit), nil
}

// QuerySparse ranks chunks with BM25 over their normalised content.
func (s *IndexStore) QuerySparse(_ context.Context, text string, limit int, spaces []string) ([]domain.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter := spaceSet(spaces)
	docs := make([]textindex.Document, 0, len(s.chunks))
	for id, c := range s.chunks {
		if s.inSpaces(id, filter) {
			docs = append(docs, textindex.Document{ID: id, Text: c.Content})
		}
	}
	return toScoredChunks(textindex.BM25(text, docs, limit), limit), nil
}

func toScoredChunks(scored []textindex.Scored, limit int) []domain.ScoredChunk {
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	out := make([]domain.ScoredChunk, len(scored))
	for i, sc := range scored {
		out[i] = domain.ScoredChunk{ChunkID: sc.ID, Score: sc.Score}
	}
	return out
}

// GetPage returns a stored page.
func (s *IndexStore) GetPage(_ context.Context, pageID string) (*domain.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page, ok := s.pages[pageID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &page, nil
}

// GetChunks returns known chunks among ids.
func (s *IndexStore) GetChunks(_ context.Context, ids []string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// GetPageChunks returns a page's chunks ordered by position.
func (s *IndexStore) GetPageChunks(_ context.Context, pageID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Chunk, 0, len(s.pageChunks[pageID]))
	for _, id := range s.pageChunks[pageID] {
		out = append(out, s.chunks[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

// ListSpaces returns page and chunk counts per space, ordered by key.
func (s *IndexStore) ListSpaces(_ context.Context) ([]domain.SpaceStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spaceStats(), nil
}

func (s *IndexStore) spaceStats() []domain.SpaceStats {
	bySpace := make(map[string]*domain.SpaceStats)
	for id, page := range s.pages {
		st, ok := bySpace[page.SpaceKey]
		if !ok {
			st = &domain.SpaceStats{SpaceKey: page.SpaceKey}
			bySpace[page.SpaceKey] = st
		}
		st.PageCount++
		st.ChunkCount += len(s.pageChunks[id])
	}

	out := make([]domain.SpaceStats, 0, len(bySpace))
	for _, st := range bySpace {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SpaceKey < out[j].SpaceKey })
	return out
}

// SaveSyncState records a space's sync bookkeeping.
func (s *IndexStore) SaveSyncState(_ context.Context, state domain.SpaceSyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.SpaceKey] = state
	return nil
}

// GetSyncState returns a space's sync bookkeeping.
func (s *IndexStore) GetSyncState(_ context.Context, spaceKey string) (*domain.SpaceSyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[spaceKey]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &state, nil
}

// ListSyncStates returns bookkeeping for every synced space.
func (s *IndexStore) ListSyncStates(_ context.Context) ([]domain.SpaceSyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.SpaceSyncState, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SpaceKey < out[j].SpaceKey })
	return out, nil
}

// Stats summarises the index.
func (s *IndexStore) Stats(_ context.Context) (*domain.IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &domain.IndexStats{
		TotalPages:      len(s.pages),
		TotalChunks:     len(s.chunks),
		TotalEmbeddings: len(s.embeddings),
		Spaces:          s.spaceStats(),
	}, nil
}

// Close releases resources.
func (s *IndexStore) Close() error {
	return nil
}
