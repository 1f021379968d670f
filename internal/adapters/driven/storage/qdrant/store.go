// Package qdrant provides a driven.IndexStore backed by a Qdrant server.
//
// Chunks live in the configured collection, one point per chunk with the
// chunk and its page's space in the payload. Page records and sync state
// live in a companion "<collection>_state" collection.
//
// Every chunk point carries the generation it was written in, and a page
// record names the page's current generation. Readers only see chunks of
// the current generation, so a replace becomes visible when its page record
// is written and a failed replace leaves the previous chunk set in place.
// Points of older generations are garbage and are deleted after the flip.
package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driven"
	"github.com/DanielTromp/atlas/internal/logger"
	"github.com/DanielTromp/atlas/internal/textindex"
)

// Ensure Store implements the interface.
var _ driven.IndexStore = (*Store)(nil)

const (
	scrollPage  = 256
	upsertBatch = 128

	kindPage  = "page"
	kindState = "state"
)

// pointNamespace derives Qdrant point ids, which must be UUIDs or integers.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("atlas:qdrant"))

// Config configures the Qdrant store.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Dimensions int
	Timeout    time.Duration
}

// Store is the Qdrant-backed index.
// Writes hold mu exclusively; other processes rely on the generation flip.
type Store struct {
	mu         sync.RWMutex
	url        string
	apiKey     string
	chunks     string
	state      string
	dimensions int
	client     *http.Client
}

// NewStore connects to Qdrant and creates both collections if missing.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: qdrant needs the embedding dimensions", domain.ErrInvalidInput)
	}
	if cfg.Collection == "" {
		cfg.Collection = "atlas_chunks"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	s := &Store{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		chunks:     cfg.Collection,
		state:      cfg.Collection + "_state",
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: timeout},
	}

	if err := s.ensureCollection(ctx, s.chunks, s.dimensions); err != nil {
		return nil, err
	}
	// State points carry a placeholder one-dimensional vector.
	if err := s.ensureCollection(ctx, s.state, 1); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases idle connections.
func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// ==================== Payloads ====================

type chunkPayload struct {
	ChunkID         string            `json:"chunk_id"`
	PageID          string            `json:"page_id"`
	SpaceKey        string            `json:"space_key"`
	Generation      string            `json:"generation"`
	Content         string            `json:"content"`
	OriginalContent string            `json:"original_content"`
	ContextPath     []string          `json:"context_path"`
	ChunkType       string            `json:"chunk_type"`
	TokenCount      int               `json:"token_count"`
	Position        int               `json:"position"`
	Spans           []domain.TextSpan `json:"text_spans"`
	HeadingContext  string            `json:"heading_context"`
	Embedded        bool              `json:"embedded"`
	ModelVersion    string            `json:"model_version,omitempty"`
}

func (p chunkPayload) chunk() domain.Chunk {
	return domain.Chunk{
		ID:              p.ChunkID,
		PageID:          p.PageID,
		Content:         p.Content,
		OriginalContent: p.OriginalContent,
		ContextPath:     p.ContextPath,
		Type:            domain.ChunkType(p.ChunkType),
		TokenCount:      p.TokenCount,
		Position:        p.Position,
		Spans:           p.Spans,
		HeadingContext:  p.HeadingContext,
	}
}

type pagePayload struct {
	Kind      string    `json:"kind"`
	PageID    string    `json:"page_id"`
	SpaceKey  string    `json:"space_key"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Labels    []string  `json:"labels"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by"`
	ParentID  string    `json:"parent_id"`
	Ancestors []string  `json:"ancestors"`
	IndexedAt time.Time `json:"indexed_at"`

	Generation    string `json:"generation"`
	ChunkCount    int    `json:"chunk_count"`
	EmbeddedCount int    `json:"embedded_count"`
}

func (p pagePayload) page() domain.Page {
	return domain.Page{
		ID:        p.PageID,
		SpaceKey:  p.SpaceKey,
		Title:     p.Title,
		URL:       p.URL,
		Labels:    p.Labels,
		Version:   p.Version,
		UpdatedAt: p.UpdatedAt,
		UpdatedBy: p.UpdatedBy,
		ParentID:  p.ParentID,
		Ancestors: p.Ancestors,
	}
}

type statePayload struct {
	Kind           string     `json:"kind"`
	SpaceKey       string     `json:"space_key"`
	LastSyncAt     *time.Time `json:"last_sync_at"`
	LastPageCount  int        `json:"last_page_count"`
	LastChunkCount int        `json:"last_chunk_count"`
	Status         string     `json:"status"`
	ErrorMessage   string     `json:"error_message"`
}

func chunkPointID(chunkID, generation string) string {
	return uuid.NewSHA1(pointNamespace, []byte("chunk:"+generation+":"+chunkID)).String()
}

func pagePointID(pageID string) string {
	return uuid.NewSHA1(pointNamespace, []byte("page:"+pageID)).String()
}

func statePointID(spaceKey string) string {
	return uuid.NewSHA1(pointNamespace, []byte("state:"+spaceKey)).String()
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: decoding payload: %v", domain.ErrStore, err)
	}
	return v, nil
}

// ==================== Writes ====================

func (s *Store) validate(page domain.Page, chunks []domain.IndexedChunk) error {
	for _, ic := range chunks {
		if ic.Chunk.PageID != page.ID {
			return fmt.Errorf("%w: chunk %s belongs to page %s, not %s",
				domain.ErrInvalidInput, ic.Chunk.ID, ic.Chunk.PageID, page.ID)
		}
		if ic.Embedding != nil && len(ic.Embedding.Vector) != s.dimensions {
			return fmt.Errorf("%w: chunk %s has %d dimensions, want %d",
				domain.ErrDimensionMismatch, ic.Chunk.ID, len(ic.Embedding.Vector), s.dimensions)
		}
	}
	return nil
}

func (s *Store) chunkPoints(page domain.Page, generation string, chunks []domain.IndexedChunk) []point {
	points := make([]point, len(chunks))
	for i, ic := range chunks {
		c := ic.Chunk
		payload := chunkPayload{
			ChunkID:         c.ID,
			PageID:          c.PageID,
			SpaceKey:        page.SpaceKey,
			Generation:      generation,
			Content:         c.Content,
			OriginalContent: c.OriginalContent,
			ContextPath:     c.ContextPath,
			ChunkType:       string(c.Type),
			TokenCount:      c.TokenCount,
			Position:        c.Position,
			Spans:           c.Spans,
			HeadingContext:  c.HeadingContext,
		}

		// Qdrant requires a vector on every point. Chunks without an
		// embedding get a placeholder and are excluded from dense search.
		vector := make([]float32, s.dimensions)
		vector[0] = 1
		if ic.Embedding != nil {
			vector = ic.Embedding.Vector
			payload.Embedded = true
			payload.ModelVersion = ic.Embedding.ModelVersion
		}

		points[i] = point{ID: chunkPointID(c.ID, generation), Vector: vector, Payload: payload}
	}
	return points
}

// putPage writes the page record, which makes generation the visible one.
func (s *Store) putPage(ctx context.Context, page domain.Page, generation string, chunks, embedded int) error {
	payload := pagePayload{
		Kind:          kindPage,
		PageID:        page.ID,
		SpaceKey:      page.SpaceKey,
		Title:         page.Title,
		URL:           page.URL,
		Labels:        page.Labels,
		Version:       page.Version,
		UpdatedAt:     page.UpdatedAt,
		UpdatedBy:     page.UpdatedBy,
		ParentID:      page.ParentID,
		Ancestors:     page.Ancestors,
		IndexedAt:     time.Now().UTC(),
		Generation:    generation,
		ChunkCount:    chunks,
		EmbeddedCount: embedded,
	}
	return s.upsertPoints(ctx, s.state, []point{{ID: pagePointID(page.ID), Vector: []float32{1}, Payload: payload}})
}

func generationFilter(pageID, generation string) filter {
	return filter{Must: []condition{matchValue("page_id", pageID), matchValue("generation", generation)}}
}

// collect deletes the page's chunk points outside the given generation.
// Failures only leave invisible garbage behind, so they are logged.
func (s *Store) collect(ctx context.Context, pageID, keep string) {
	f := filter{
		Must:    []condition{matchValue("page_id", pageID)},
		MustNot: []condition{matchValue("generation", keep)},
	}
	if err := s.deleteByFilter(ctx, s.chunks, f); err != nil {
		logger.Warn("qdrant: removing superseded chunks of page %s: %v", pageID, err)
	}
}

// UpsertChunks inserts or overwrites chunks in the page's current generation
// and refreshes the page record.
func (s *Store) UpsertChunks(ctx context.Context, page domain.Page, chunks []domain.IndexedChunk) (int, error) {
	if err := s.validate(page, chunks); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	generation := uuid.NewString()
	existing, err := s.loadPage(ctx, page.ID)
	switch {
	case err == nil:
		generation = existing.Generation
	case !errors.Is(err, domain.ErrNotFound):
		return 0, err
	}

	if err := s.upsertPoints(ctx, s.chunks, s.chunkPoints(page, generation, chunks)); err != nil {
		return 0, err
	}

	f := generationFilter(page.ID, generation)
	total, err := s.count(ctx, s.chunks, &f)
	if err != nil {
		return 0, err
	}
	f.Must = append(f.Must, matchValue("embedded", true))
	embedded, err := s.count(ctx, s.chunks, &f)
	if err != nil {
		return 0, err
	}

	if err := s.putPage(ctx, page, generation, total, embedded); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// ReplacePage writes the new chunk set as a fresh generation, flips the page
// record to it and then removes the previous generation.
func (s *Store) ReplacePage(ctx context.Context, page domain.Page, chunks []domain.IndexedChunk) error {
	if err := s.validate(page, chunks); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	generation := uuid.NewString()
	if err := s.upsertPoints(ctx, s.chunks, s.chunkPoints(page, generation, chunks)); err != nil {
		// The page record still names the previous generation.
		if derr := s.deleteByFilter(ctx, s.chunks, generationFilter(page.ID, generation)); derr != nil {
			logger.Warn("qdrant: discarding partial chunks of page %s: %v", page.ID, derr)
		}
		return fmt.Errorf("writing chunks: %w", err)
	}

	embedded := 0
	for _, ic := range chunks {
		if ic.Embedding != nil {
			embedded++
		}
	}
	if err := s.putPage(ctx, page, generation, len(chunks), embedded); err != nil {
		return fmt.Errorf("committing page: %w", err)
	}

	s.collect(ctx, page.ID, generation)
	return nil
}

// DeletePage removes a page with its chunks. The page record goes first,
// which hides the chunks even if their deletion fails.
func (s *Store) DeletePage(ctx context.Context, pageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.deleteByID(ctx, s.state, []string{pagePointID(pageID)}); err != nil {
		return err
	}
	return s.deleteByFilter(ctx, s.chunks, filter{Must: []condition{matchValue("page_id", pageID)}})
}

// ==================== Page Queries ====================

func (s *Store) loadPage(ctx context.Context, pageID string) (*pagePayload, error) {
	points, err := s.retrieve(ctx, s.state, []string{pagePointID(pageID)})
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, domain.ErrNotFound
	}
	p, err := decode[pagePayload](points[0].Payload)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// generations returns the current generation of each known page.
func (s *Store) generations(ctx context.Context, pageIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(pageIDs))
	if len(pageIDs) == 0 {
		return out, nil
	}
	ids := make([]string, len(pageIDs))
	for i, id := range pageIDs {
		ids[i] = pagePointID(id)
	}
	points, err := s.retrieve(ctx, s.state, ids)
	if err != nil {
		return nil, err
	}
	for _, sp := range points {
		p, err := decode[pagePayload](sp.Payload)
		if err != nil {
			return nil, err
		}
		out[p.PageID] = p.Generation
	}
	return out, nil
}

// live drops chunk payloads that are not in their page's current generation.
// keep receives the index of every surviving payload.
func (s *Store) live(ctx context.Context, payloads []chunkPayload, keep func(i int)) error {
	seen := make(map[string]bool)
	var pageIDs []string
	for _, p := range payloads {
		if !seen[p.PageID] {
			seen[p.PageID] = true
			pageIDs = append(pageIDs, p.PageID)
		}
	}
	gens, err := s.generations(ctx, pageIDs)
	if err != nil {
		return err
	}
	for i, p := range payloads {
		if g, ok := gens[p.PageID]; ok && g == p.Generation {
			keep(i)
		}
	}
	return nil
}

// GetPageVersion returns the stored version of a page.
func (s *Store) GetPageVersion(ctx context.Context, pageID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.loadPage(ctx, pageID)
	if err != nil {
		return 0, err
	}
	return p.Version, nil
}

// GetPage returns a stored page.
func (s *Store) GetPage(ctx context.Context, pageID string) (*domain.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.loadPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	page := p.page()
	return &page, nil
}

// GetLastIndexedTime prefers the recorded sync time and falls back to
// the newest page write in the space.
func (s *Store) GetLastIndexedTime(ctx context.Context, spaceKey string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, err := s.loadState(ctx, spaceKey)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if state != nil && state.LastSyncAt != nil {
		return state.LastSyncAt, nil
	}

	var latest *time.Time
	f := &filter{Must: []condition{matchValue("kind", kindPage), matchValue("space_key", spaceKey)}}
	err = s.scroll(ctx, s.state, f, func(sp storedPoint) error {
		p, err := decode[pagePayload](sp.Payload)
		if err != nil {
			return err
		}
		if latest == nil || p.IndexedAt.After(*latest) {
			at := p.IndexedAt
			latest = &at
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return latest, nil
}

// ==================== Chunk Queries ====================

// GetChunks returns known chunks among ids, in the order of ids.
func (s *Store) GetChunks(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	if len(ids) == 0 {
		return []domain.Chunk{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var payloads []chunkPayload
	err := s.scroll(ctx, s.chunks, &filter{Must: []condition{matchAny("chunk_id", ids)}}, func(sp storedPoint) error {
		p, err := decode[chunkPayload](sp.Payload)
		if err != nil {
			return err
		}
		payloads = append(payloads, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Chunk, len(payloads))
	if err := s.live(ctx, payloads, func(i int) { byID[payloads[i].ChunkID] = payloads[i].chunk() }); err != nil {
		return nil, err
	}
	out := make([]domain.Chunk, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// GetPageChunks returns a page's current chunks ordered by position.
func (s *Store) GetPageChunks(ctx context.Context, pageID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Chunk{}
	page, err := s.loadPage(ctx, pageID)
	if errors.Is(err, domain.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}

	f := generationFilter(pageID, page.Generation)
	err = s.scroll(ctx, s.chunks, &f, func(sp storedPoint) error {
		p, err := decode[chunkPayload](sp.Payload)
		if err != nil {
			return err
		}
		out = append(out, p.chunk())
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

// ==================== Retrieval ====================

func spaceFilter(spaces []string, extra ...condition) *filter {
	f := &filter{Must: extra}
	if len(spaces) > 0 {
		f.Must = append(f.Must, matchAny("space_key", spaces))
	}
	if len(f.Must) == 0 {
		return nil
	}
	return f
}

// QueryDense runs a cosine search over embedded chunks. Hits from superseded
// generations are skipped and the search pages on until limit live hits
// are found or the candidates run out.
func (s *Store) QueryDense(ctx context.Context, vector []float32, limit int, spaces []string) ([]domain.ScoredChunk, error) {
	if limit <= 0 {
		limit = domain.DefaultTopK
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ScoredChunk, 0, limit)
	for offset := 0; len(out) < limit; {
		req := searchRequest{
			Vector:      vector,
			Limit:       limit,
			Offset:      offset,
			Filter:      spaceFilter(spaces, matchValue("embedded", true)),
			WithPayload: true,
		}
		var hits []storedPoint
		if err := s.do(ctx, http.MethodPost, "/collections/"+s.chunks+"/points/search", req, &hits); err != nil {
			return nil, err
		}

		payloads := make([]chunkPayload, len(hits))
		for i, h := range hits {
			p, err := decode[chunkPayload](h.Payload)
			if err != nil {
				return nil, err
			}
			payloads[i] = p
		}
		err := s.live(ctx, payloads, func(i int) {
			if len(out) < limit {
				out = append(out, domain.ScoredChunk{ChunkID: payloads[i].ChunkID, Score: hits[i].Score})
			}
		})
		if err != nil {
			return nil, err
		}

		if len(hits) < limit {
			break
		}
		offset += len(hits)
	}
	return out, nil
}

// QuerySparse scrolls the candidate chunks and ranks them with BM25 in process.
func (s *Store) QuerySparse(ctx context.Context, text string, limit int, spaces []string) ([]domain.ScoredChunk, error) {
	if len(textindex.Terms(text)) == 0 {
		return []domain.ScoredChunk{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var payloads []chunkPayload
	err := s.scroll(ctx, s.chunks, spaceFilter(spaces), func(sp storedPoint) error {
		p, err := decode[chunkPayload](sp.Payload)
		if err != nil {
			return err
		}
		payloads = append(payloads, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var docs []textindex.Document
	err = s.live(ctx, payloads, func(i int) {
		docs = append(docs, textindex.Document{ID: payloads[i].ChunkID, Text: payloads[i].Content})
	})
	if err != nil {
		return nil, err
	}

	scored := textindex.BM25(text, docs, limit)
	out := make([]domain.ScoredChunk, len(scored))
	for i, sc := range scored {
		out[i] = domain.ScoredChunk{ChunkID: sc.ID, Score: sc.Score}
	}
	return out, nil
}

// ==================== Spaces and Stats ====================

// ListSpaces returns page and chunk counts per space, ordered by key.
func (s *Store) ListSpaces(ctx context.Context) ([]domain.SpaceStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	spaces, _, err := s.spaceStats(ctx)
	return spaces, err
}

// spaceStats sums the page records, which count only current chunks.
func (s *Store) spaceStats(ctx context.Context) ([]domain.SpaceStats, int, error) {
	bySpace := make(map[string]*domain.SpaceStats)
	embedded := 0
	err := s.scroll(ctx, s.state, &filter{Must: []condition{matchValue("kind", kindPage)}}, func(sp storedPoint) error {
		p, err := decode[pagePayload](sp.Payload)
		if err != nil {
			return err
		}
		st, ok := bySpace[p.SpaceKey]
		if !ok {
			st = &domain.SpaceStats{SpaceKey: p.SpaceKey}
			bySpace[p.SpaceKey] = st
		}
		st.PageCount++
		st.ChunkCount += p.ChunkCount
		embedded += p.EmbeddedCount
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	out := make([]domain.SpaceStats, 0, len(bySpace))
	for _, st := range bySpace {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SpaceKey < out[j].SpaceKey })
	return out, embedded, nil
}

// Stats summarises the index.
func (s *Store) Stats(ctx context.Context) (*domain.IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	spaces, embedded, err := s.spaceStats(ctx)
	if err != nil {
		return nil, err
	}
	stats := &domain.IndexStats{Spaces: spaces, TotalEmbeddings: embedded}
	for _, sp := range spaces {
		stats.TotalPages += sp.PageCount
		stats.TotalChunks += sp.ChunkCount
	}
	return stats, nil
}

// ==================== Sync State ====================

func (s *Store) loadState(ctx context.Context, spaceKey string) (*domain.SpaceSyncState, error) {
	points, err := s.retrieve(ctx, s.state, []string{statePointID(spaceKey)})
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, domain.ErrNotFound
	}
	p, err := decode[statePayload](points[0].Payload)
	if err != nil {
		return nil, err
	}
	st := p.state()
	return &st, nil
}

func (p statePayload) state() domain.SpaceSyncState {
	return domain.SpaceSyncState{
		SpaceKey:       p.SpaceKey,
		LastSyncAt:     p.LastSyncAt,
		LastPageCount:  p.LastPageCount,
		LastChunkCount: p.LastChunkCount,
		Status:         domain.SyncStatus(p.Status),
		ErrorMessage:   p.ErrorMessage,
	}
}

// SaveSyncState records a space's sync bookkeeping.
func (s *Store) SaveSyncState(ctx context.Context, state domain.SpaceSyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := statePayload{
		Kind:           kindState,
		SpaceKey:       state.SpaceKey,
		LastSyncAt:     state.LastSyncAt,
		LastPageCount:  state.LastPageCount,
		LastChunkCount: state.LastChunkCount,
		Status:         string(state.Status),
		ErrorMessage:   state.ErrorMessage,
	}
	return s.upsertPoints(ctx, s.state, []point{{ID: statePointID(state.SpaceKey), Vector: []float32{1}, Payload: payload}})
}

// GetSyncState returns a space's sync bookkeeping.
func (s *Store) GetSyncState(ctx context.Context, spaceKey string) (*domain.SpaceSyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadState(ctx, spaceKey)
}

// ListSyncStates returns bookkeeping for every synced space.
func (s *Store) ListSyncStates(ctx context.Context) ([]domain.SpaceSyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.SpaceSyncState{}
	err := s.scroll(ctx, s.state, &filter{Must: []condition{matchValue("kind", kindState)}}, func(sp storedPoint) error {
		p, err := decode[statePayload](sp.Payload)
		if err != nil {
			return err
		}
		out = append(out, p.state())
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SpaceKey < out[j].SpaceKey })
	return out, nil
}
