package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driven"
	"github.com/DanielTromp/atlas/internal/core/ports/driving"
	"github.com/DanielTromp/atlas/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// Fusion constants.
const (
	// RRFConstant damps the contribution of top ranks.
	RRFConstant = 60

	// MissingRank stands in for the rank of a chunk absent from one list.
	MissingRank = 1000

	// CandidateMultiplier sizes each half's candidate list relative to top_k.
	CandidateMultiplier = 3
)

// FusedHit is one candidate after rank fusion.
type FusedHit struct {
	ChunkID string
	Score   float64

	// SemanticRank and KeywordRank are 1-based, 0 when absent.
	SemanticRank int
	KeywordRank  int
}

// SearchService provides hybrid search functionality.
type SearchService struct {
	store     driven.IndexStore
	embedder  *Embedder
	citations *CitationExtractor
	cache     *ResultCache
}

// NewSearchService creates a new search service.
// The embedder and cache are optional (can be nil): without an embedder the
// search is keyword-only, without a cache every call hits the index.
func NewSearchService(
	store driven.IndexStore,
	embedder *Embedder,
	citations *CitationExtractor,
	cache *ResultCache,
) *SearchService {
	if citations == nil {
		citations = NewCitationExtractor(0)
	}
	return &SearchService{
		store:     store,
		embedder:  embedder,
		citations: citations,
		cache:     cache,
	}
}

// Search performs hybrid search across the index.
func (s *SearchService) Search(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SearchResponse, error) {
	started := time.Now()
	logger.Section("Search Execution")
	logger.Debug("Query: %q", query)

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInvalidInput)
	}

	if opts.TopK == 0 {
		opts.TopK = domain.DefaultTopK
	}
	if opts.IncludeCitations && opts.MaxCitationsPerResult == 0 {
		opts.MaxCitationsPerResult = domain.DefaultMaxCitationsPerResult
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	key := CacheKey(query, opts)
	var epoch uint64
	if opts.UseCache && s.cache != nil {
		epoch = s.cache.Epoch()
		if cached, ok := s.cache.Get(key); ok {
			logger.Debug("Cache hit for %q", query)
			cached.Cached = true
			cached.SearchTime = time.Since(started)
			return &cached, nil
		}
	}

	limit := opts.TopK * CandidateMultiplier
	dense, sparse := s.candidates(ctx, query, limit, opts)
	logger.Debug("Candidates: %d dense, %d sparse", len(dense), len(sparse))

	hits := FuseRRF(dense, sparse, opts.SemanticWeight, opts.KeywordWeight)
	kept := hits[:0]
	for _, h := range hits {
		if h.Score >= opts.MinRelevanceScore {
			kept = append(kept, h)
		}
	}
	if len(kept) > opts.TopK {
		kept = kept[:opts.TopK]
	}

	results, err := s.hydrate(ctx, query, kept, opts)
	if err != nil {
		return nil, fmt.Errorf("hydrate results: %w", err)
	}

	resp := domain.SearchResponse{
		Query:        query,
		Results:      results,
		TotalResults: len(results),
		SearchTime:   time.Since(started),
	}
	if opts.UseCache && s.cache != nil && !s.cache.PutIfCurrent(epoch, key, resp) {
		logger.Debug("Index changed during search for %q, not caching", query)
	}

	logger.Info("Search %q: %d results in %s", query, resp.TotalResults, resp.SearchTime.Round(time.Millisecond))
	return &resp, nil
}

// candidates fetches both halves in parallel. Either half degrades to
// empty on error; a zero weight skips its half.
func (s *SearchService) candidates(
	ctx context.Context, query string, limit int, opts domain.SearchOptions,
) (dense, sparse []domain.ScoredChunk) {
	var wg sync.WaitGroup

	if opts.SemanticWeight > 0 && s.embedder.Enabled() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vec, err := s.embedder.EmbedQuery(ctx, query)
			if err != nil {
				logger.Warn("Query embedding failed, using keyword results only: %v", err)
				return
			}
			hits, err := s.store.QueryDense(ctx, vec, limit, opts.SpaceKeys)
			if err != nil {
				logger.Warn("Dense query failed: %v", err)
				return
			}
			dense = hits
		}()
	}

	if opts.KeywordWeight > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := s.store.QuerySparse(ctx, query, limit, opts.SpaceKeys)
			if err != nil {
				logger.Warn("Sparse query failed: %v", err)
				return
			}
			sparse = hits
		}()
	}

	wg.Wait()
	return dense, sparse
}

// FuseRRF merges two ranked lists with weighted Reciprocal Rank Fusion over
// the union of both. A chunk missing from one list takes MissingRank there.
// The result is ordered by score, ties by chunk id.
func FuseRRF(dense, sparse []domain.ScoredChunk, semanticWeight, keywordWeight float64) []FusedHit {
	byID := make(map[string]*FusedHit)
	get := func(id string) *FusedHit {
		h, ok := byID[id]
		if !ok {
			h = &FusedHit{ChunkID: id}
			byID[id] = h
		}
		return h
	}
	for i, c := range dense {
		if h := get(c.ChunkID); h.SemanticRank == 0 {
			h.SemanticRank = i + 1
		}
	}
	for i, c := range sparse {
		if h := get(c.ChunkID); h.KeywordRank == 0 {
			h.KeywordRank = i + 1
		}
	}

	out := make([]FusedHit, 0, len(byID))
	for _, h := range byID {
		h.Score = semanticWeight/float64(RRFConstant+rankOrMissing(h.SemanticRank)) +
			keywordWeight/float64(RRFConstant+rankOrMissing(h.KeywordRank))
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}

func rankOrMissing(rank int) int {
	if rank == 0 {
		return MissingRank
	}
	return rank
}

// maxFusedScore is the score of a chunk ranked first in both lists.
func maxFusedScore(opts domain.SearchOptions) float64 {
	return (opts.SemanticWeight + opts.KeywordWeight) / float64(RRFConstant+1)
}

// hydrate loads chunks and pages for the surviving hits. Chunks or pages
// that vanished since the query ran are skipped.
func (s *SearchService) hydrate(
	ctx context.Context, query string, hits []FusedHit, opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	results := make([]domain.SearchResult, 0, len(hits))
	if len(hits) == 0 {
		return results, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	chunks, err := s.store.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	pages := make(map[string]*domain.Page)
	maxScore := maxFusedScore(opts)
	for _, h := range hits {
		chunk, ok := byID[h.ChunkID]
		if !ok {
			continue
		}

		page, ok := pages[chunk.PageID]
		if !ok {
			page, err = s.store.GetPage(ctx, chunk.PageID)
			if errors.Is(err, domain.ErrNotFound) {
				page = nil
			} else if err != nil {
				return nil, fmt.Errorf("get page %s: %w", chunk.PageID, err)
			}
			pages[chunk.PageID] = page
		}
		if page == nil {
			continue
		}

		result := domain.SearchResult{
			ChunkID:        chunk.ID,
			Content:        chunk.Content,
			RelevanceScore: h.Score,
			Page:           *page,
			ContextPath:    chunk.ContextPath,
			ChunkType:      chunk.Type,
			HeadingContext: chunk.HeadingContext,
			SemanticRank:   h.SemanticRank,
			KeywordRank:    h.KeywordRank,
		}
		if opts.IncludeCitations {
			result.Citations = s.citations.Extract(chunk, *page, query, h.Score/maxScore, opts.MaxCitationsPerResult)
		}
		results = append(results, result)
	}
	return results, nil
}
