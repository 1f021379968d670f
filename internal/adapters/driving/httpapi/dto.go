package httpapi

import (
	"time"

	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driving"
)

// SearchRequest is the body for POST /search.
// Pointer fields fall back to the server defaults when omitted.
type SearchRequest struct {
	Query             string   `json:"query"`
	TopK              int      `json:"top_k,omitempty"`
	Spaces            []string `json:"spaces,omitempty"`
	IncludeCitations  *bool    `json:"include_citations,omitempty"`
	MaxCitations      *int     `json:"max_citations_per_result,omitempty"`
	SemanticWeight    *float64 `json:"semantic_weight,omitempty"`
	KeywordWeight     *float64 `json:"keyword_weight,omitempty"`
	MinRelevanceScore *float64 `json:"min_relevance_score,omitempty"`
	UseCache          *bool    `json:"use_cache,omitempty"`
}

// options merges the request over defaults.
func (r SearchRequest) options(defaults domain.SearchOptions) domain.SearchOptions {
	opts := defaults
	if r.TopK != 0 {
		opts.TopK = r.TopK
	}
	if len(r.Spaces) > 0 {
		opts.SpaceKeys = r.Spaces
	}
	if r.IncludeCitations != nil {
		opts.IncludeCitations = *r.IncludeCitations
	}
	if r.MaxCitations != nil {
		opts.MaxCitationsPerResult = *r.MaxCitations
	}
	if r.SemanticWeight != nil {
		opts.SemanticWeight = *r.SemanticWeight
	}
	if r.KeywordWeight != nil {
		opts.KeywordWeight = *r.KeywordWeight
	}
	if r.MinRelevanceScore != nil {
		opts.MinRelevanceScore = *r.MinRelevanceScore
	}
	if r.UseCache != nil {
		opts.UseCache = *r.UseCache
	}
	return opts
}

// SyncRequest is the body for POST /sync.
type SyncRequest struct {
	Spaces   []string `json:"spaces,omitempty"`
	FullSync bool     `json:"full_sync,omitempty"`
}

// SyncAccepted acknowledges a detached sync.
type SyncAccepted struct {
	Status string   `json:"status"`
	Mode   string   `json:"mode"`
	Spaces []string `json:"spaces,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SearchResponse mirrors domain.SearchResponse.
type SearchResponse struct {
	Query        string         `json:"query"`
	Results      []SearchResult `json:"results"`
	TotalResults int            `json:"total_results"`
	SearchTimeMS float64        `json:"search_time_ms"`
	Cached       bool           `json:"cached"`
}

// SearchResult is one ranked chunk.
type SearchResult struct {
	ChunkID        string     `json:"chunk_id"`
	Content        string     `json:"content"`
	RelevanceScore float64    `json:"relevance_score"`
	ChunkType      string     `json:"chunk_type"`
	HeadingContext string     `json:"heading_context,omitempty"`
	ContextPath    []string   `json:"context_path"`
	SemanticRank   int        `json:"semantic_rank,omitempty"`
	KeywordRank    int        `json:"keyword_rank,omitempty"`
	Page           Page       `json:"page"`
	Citations      []Citation `json:"citations"`
}

// Citation is an attributable quote.
type Citation struct {
	Quote           string  `json:"quote"`
	PageTitle       string  `json:"page_title"`
	PageURL         string  `json:"page_url"`
	SpaceKey        string  `json:"space_key"`
	Section         string  `json:"section,omitempty"`
	ContextBefore   string  `json:"context_before"`
	ContextAfter    string  `json:"context_after"`
	ChunkID         string  `json:"chunk_id"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// Page is the page metadata attached to results.
type Page struct {
	ID        string    `json:"id"`
	SpaceKey  string    `json:"space_key"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Labels    []string  `json:"labels"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by,omitempty"`
	ParentID  string    `json:"parent_id,omitempty"`
	Ancestors []string  `json:"ancestors"`
}

// Chunk is a stored chunk as returned by GET /page/{id}.
type Chunk struct {
	ID             string   `json:"id"`
	Position       int      `json:"position"`
	Type           string   `json:"type"`
	HeadingContext string   `json:"heading_context,omitempty"`
	ContextPath    []string `json:"context_path"`
	Content        string   `json:"content"`
	TokenCount     int      `json:"token_count"`
}

// PageResponse is the body for GET /page/{id}.
type PageResponse struct {
	Page   Page    `json:"page"`
	Chunks []Chunk `json:"chunks"`
}

// SpaceStats holds per-space counts.
type SpaceStats struct {
	SpaceKey   string `json:"space_key"`
	PageCount  int    `json:"page_count"`
	ChunkCount int    `json:"chunk_count"`
}

// SyncState is the persisted bookkeeping for a space.
type SyncState struct {
	SpaceKey       string     `json:"space_key"`
	LastSyncAt     *time.Time `json:"last_sync_at"`
	LastPageCount  int        `json:"last_page_count"`
	LastChunkCount int        `json:"last_chunk_count"`
	Status         string     `json:"status"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

// SyncProgress is a run in flight.
type SyncProgress struct {
	SpaceKey       string    `json:"space_key"`
	Mode           string    `json:"mode"`
	StartedAt      time.Time `json:"started_at"`
	PagesProcessed int       `json:"pages_processed"`
	PagesSkipped   int       `json:"pages_skipped"`
	PagesFailed    int       `json:"pages_failed"`
}

// StatsResponse is the body for GET /stats.
type StatsResponse struct {
	TotalPages      int            `json:"total_pages"`
	TotalChunks     int            `json:"total_chunks"`
	TotalEmbeddings int            `json:"total_embeddings"`
	Spaces          []SpaceStats   `json:"spaces"`
	SyncStates      []SyncState    `json:"sync_states"`
	ActiveSyncs     []SyncProgress `json:"active_syncs"`
}

// ==================== Conversions ====================

func toSearchResponse(resp *domain.SearchResponse) SearchResponse {
	out := SearchResponse{
		Query:        resp.Query,
		Results:      make([]SearchResult, len(resp.Results)),
		TotalResults: resp.TotalResults,
		SearchTimeMS: float64(resp.SearchTime.Microseconds()) / 1000,
		Cached:       resp.Cached,
	}
	for i, r := range resp.Results {
		res := SearchResult{
			ChunkID:        r.ChunkID,
			Content:        r.Content,
			RelevanceScore: r.RelevanceScore,
			ChunkType:      r.ChunkType.String(),
			HeadingContext: r.HeadingContext,
			ContextPath:    nonNil(r.ContextPath),
			SemanticRank:   r.SemanticRank,
			KeywordRank:    r.KeywordRank,
			Page:           toPage(r.Page),
			Citations:      make([]Citation, len(r.Citations)),
		}
		for j, c := range r.Citations {
			res.Citations[j] = Citation{
				Quote:           c.Quote,
				PageTitle:       c.PageTitle,
				PageURL:         c.PageURL,
				SpaceKey:        c.SpaceKey,
				Section:         c.Section,
				ContextBefore:   c.ContextBefore,
				ContextAfter:    c.ContextAfter,
				ChunkID:         c.ChunkID,
				ConfidenceScore: c.ConfidenceScore,
			}
		}
		out.Results[i] = res
	}
	return out
}

func toPage(p domain.Page) Page {
	return Page{
		ID:        p.ID,
		SpaceKey:  p.SpaceKey,
		Title:     p.Title,
		URL:       p.URL,
		Labels:    nonNil(p.Labels),
		Version:   p.Version,
		UpdatedAt: p.UpdatedAt,
		UpdatedBy: p.UpdatedBy,
		ParentID:  p.ParentID,
		Ancestors: nonNil(p.Ancestors),
	}
}

func toPageResponse(page *domain.Page, chunks []domain.Chunk) PageResponse {
	out := PageResponse{
		Page:   toPage(*page),
		Chunks: make([]Chunk, len(chunks)),
	}
	for i, c := range chunks {
		out.Chunks[i] = Chunk{
			ID:             c.ID,
			Position:       c.Position,
			Type:           c.Type.String(),
			HeadingContext: c.HeadingContext,
			ContextPath:    nonNil(c.ContextPath),
			Content:        c.Content,
			TokenCount:     c.TokenCount,
		}
	}
	return out
}

func toSpaces(spaces []domain.SpaceStats) []SpaceStats {
	out := make([]SpaceStats, len(spaces))
	for i, s := range spaces {
		out[i] = SpaceStats{SpaceKey: s.SpaceKey, PageCount: s.PageCount, ChunkCount: s.ChunkCount}
	}
	return out
}

func toStats(report *driving.IndexReport) StatsResponse {
	out := StatsResponse{
		TotalPages:      report.Index.TotalPages,
		TotalChunks:     report.Index.TotalChunks,
		TotalEmbeddings: report.Index.TotalEmbeddings,
		Spaces:          toSpaces(report.Index.Spaces),
		SyncStates:      make([]SyncState, len(report.SyncStates)),
		ActiveSyncs:     make([]SyncProgress, len(report.ActiveSyncs)),
	}
	for i, s := range report.SyncStates {
		out.SyncStates[i] = SyncState{
			SpaceKey:       s.SpaceKey,
			LastSyncAt:     s.LastSyncAt,
			LastPageCount:  s.LastPageCount,
			LastChunkCount: s.LastChunkCount,
			Status:         string(s.Status),
			ErrorMessage:   s.ErrorMessage,
		}
	}
	for i, p := range report.ActiveSyncs {
		out.ActiveSyncs[i] = SyncProgress{
			SpaceKey:       p.SpaceKey,
			Mode:           string(p.Mode),
			StartedAt:      p.StartedAt,
			PagesProcessed: p.PagesProcessed,
			PagesSkipped:   p.PagesSkipped,
			PagesFailed:    p.PagesFailed,
		}
	}
	return out
}

// nonNil keeps JSON arrays as [] instead of null.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
