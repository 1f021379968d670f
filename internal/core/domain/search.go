package domain

import (
	"fmt"
	"strings"
	"time"
)

// Search defaults.
const (
	DefaultTopK                  = 10
	DefaultSemanticWeight        = 0.5
	DefaultKeywordWeight         = 0.5
	DefaultMaxCitationsPerResult = 3
	MaxTopK                      = 100
)

// SearchOptions configures a hybrid search query.
type SearchOptions struct {
	// TopK is the maximum number of results.
	TopK int

	// SemanticWeight scales the dense half of the fused score.
	SemanticWeight float64

	// KeywordWeight scales the sparse half of the fused score.
	KeywordWeight float64

	// MinRelevanceScore drops results whose fused score is lower.
	MinRelevanceScore float64

	// SpaceKeys restricts results to these spaces. Empty means all.
	SpaceKeys []string

	// IncludeCitations attaches citations to each result.
	IncludeCitations bool

	// MaxCitationsPerResult caps citations per result.
	MaxCitationsPerResult int

	// UseCache allows serving and storing cached responses.
	UseCache bool
}

// DefaultSearchOptions returns options with sensible defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		TopK:                  DefaultTopK,
		SemanticWeight:        DefaultSemanticWeight,
		KeywordWeight:         DefaultKeywordWeight,
		IncludeCitations:      true,
		MaxCitationsPerResult: DefaultMaxCitationsPerResult,
		UseCache:              true,
	}
}

// Validate checks the options are usable.
func (o SearchOptions) Validate() error {
	if o.TopK <= 0 || o.TopK > MaxTopK {
		return fmt.Errorf("%w: top_k must be between 1 and %d", ErrInvalidInput, MaxTopK)
	}
	if o.SemanticWeight < 0 || o.KeywordWeight < 0 {
		return fmt.Errorf("%w: weights must not be negative", ErrInvalidInput)
	}
	if o.SemanticWeight == 0 && o.KeywordWeight == 0 {
		return fmt.Errorf("%w: at least one weight must be positive", ErrInvalidInput)
	}
	if o.MinRelevanceScore < 0 {
		return fmt.Errorf("%w: min_relevance_score must not be negative", ErrInvalidInput)
	}
	if o.MaxCitationsPerResult < 0 {
		return fmt.Errorf("%w: max_citations_per_result must not be negative", ErrInvalidInput)
	}
	return nil
}

// ScoredChunk is one hit from a single index half.
type ScoredChunk struct {
	ChunkID string
	Score   float64
}

// Citation is an exact, attributable quote extracted from a chunk.
type Citation struct {
	Quote           string
	PageTitle       string
	PageURL         string
	SpaceKey        string
	Section         string
	ContextBefore   string
	ContextAfter    string
	ChunkID         string
	ConfidenceScore float64
}

// SearchResult is a ranked chunk assembled at query time.
type SearchResult struct {
	ChunkID        string
	Content        string
	RelevanceScore float64
	Citations      []Citation
	Page           Page
	ContextPath    []string
	ChunkType      ChunkType
	HeadingContext string

	// SemanticRank and KeywordRank are 1-based ranks in each half, 0 when absent.
	SemanticRank int
	KeywordRank  int
}

// Breadcrumb joins the context path for display.
func (r SearchResult) Breadcrumb() string {
	return strings.Join(r.ContextPath, " > ")
}

// SearchResponse is the outcome of one search call.
type SearchResponse struct {
	Query        string
	Results      []SearchResult
	TotalResults int
	SearchTime   time.Duration
	Cached       bool
}
